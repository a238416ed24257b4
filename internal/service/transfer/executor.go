// Package transfer 逐笔执行 ERC20 发奖转账
package transfer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"settlement-core/internal/service/chain"
	"settlement-core/internal/service/payout"
	"settlement-core/pkg/logger"
	"settlement-core/pkg/monitor"
)

// ChainClient 执行转账需要的 RPC 能力, *ethclient.Client 直接满足
type ChainClient interface {
	ethereum.ContractCaller
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type Options struct {
	DefaultToken   string
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	GasLimit       uint64 // EstimateGas 失败时不会使用, 只作为估算结果的上限
}

// Executor 持有发奖热钱包私钥
type Executor struct {
	client  ChainClient
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	opts    Options

	// 同一个热钱包的 nonce 必须串行分配
	sendMu sync.Mutex

	decimalsMu sync.Mutex
	decimals   map[common.Address]uint8
}

func NewExecutor(client ChainClient, key *ecdsa.PrivateKey, chainID *big.Int, opts Options) *Executor {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 90 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.GasLimit == 0 {
		opts.GasLimit = 100000
	}
	return &Executor{
		client:   client,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
		opts:     opts,
		decimals: make(map[common.Address]uint8),
	}
}

// From 发奖热钱包地址
func (e *Executor) From() common.Address {
	return e.from
}

// Transfer 按顺序逐笔转账, 每笔确认上链后才发下一笔
// 失败时返回已确认的交易哈希与 *TransferError, 不做任何自动重试
func (e *Executor) Transfer(ctx context.Context, winners []payout.ResolvedWinner, token string) ([]string, error) {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	hashes := make([]string, 0, len(winners))
	if len(winners) == 0 {
		return hashes, nil
	}

	if token == "" {
		token = e.opts.DefaultToken
	}
	if !common.IsHexAddress(token) {
		return hashes, e.fail(0, winners[0], KindInvalidAddress, "", fmt.Errorf("invalid token address %q", token))
	}
	tokenAddr := common.HexToAddress(token)

	dec, err := e.decimalsOf(ctx, tokenAddr)
	if err != nil {
		return hashes, e.fail(0, winners[0], classify(err), "", err)
	}

	for i, w := range winners {
		// 1. 校验地址与金额
		if !common.IsHexAddress(w.Address) {
			return hashes, e.fail(i, w, KindInvalidAddress, "", fmt.Errorf("invalid recipient %q", w.Address))
		}
		amount, err := toBaseUnits(w.Amount, dec)
		if err != nil {
			return hashes, e.fail(i, w, KindInvalidAmount, "", err)
		}

		// 2. 余额检查, 余额不足时不广播
		balance, err := chain.BalanceOf(ctx, e.client, tokenAddr, e.from)
		if err != nil {
			return hashes, e.fail(i, w, classify(err), "", err)
		}
		if balance.Cmp(amount) < 0 {
			return hashes, e.fail(i, w, KindInsufficientBalance, "",
				fmt.Errorf("hot wallet balance %s < %s", balance, amount))
		}

		// 3. 签名并广播
		txHash, err := e.send(ctx, tokenAddr, common.HexToAddress(w.Address), amount)
		if err != nil {
			return hashes, e.fail(i, w, classify(err), "", err)
		}

		// 4. 等待确认
		if kind, err := e.waitMined(ctx, txHash); err != nil {
			return hashes, e.fail(i, w, kind, txHash.Hex(), err)
		}

		monitor.ObserveTransfer("success")
		logger.Info("payout transfer confirmed",
			zap.Int64("fid", w.FID),
			zap.Int("position", w.Position),
			zap.String("to", w.Address),
			zap.String("amount", w.Amount.String()),
			zap.String("tx_hash", txHash.Hex()))
		hashes = append(hashes, txHash.Hex())
	}
	return hashes, nil
}

func (e *Executor) send(ctx context.Context, token, to common.Address, amount *big.Int) (common.Hash, error) {
	data, err := chain.PackTransfer(to, amount)
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := e.client.PendingNonceAt(ctx, e.from)
	if err != nil {
		return common.Hash{}, err
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	gas, err := e.client.EstimateGas(ctx, ethereum.CallMsg{From: e.from, To: &token, Data: data})
	if err != nil {
		return common.Hash{}, err
	}
	gas = gas * 12 / 10 // 预留 20% 余量
	if gas > e.opts.GasLimit {
		gas = e.opts.GasLimit
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &token,
		Value:    big.NewInt(0),
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})

	// EIP-155 签名
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(e.chainID), e.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	if err := e.client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, err
	}
	return signedTx.Hash(), nil
}

// waitMined 轮询回执直到确认、回滚或超时
func (e *Executor) waitMined(ctx context.Context, hash common.Hash) (Kind, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := e.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				return "", nil
			}
			monitor.ObserveTransfer("reverted")
			return KindReverted, fmt.Errorf("transaction %s reverted", hash.Hex())
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			logger.Debug("receipt lookup failed, retrying", zap.String("tx_hash", hash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			monitor.ObserveTransfer("timeout")
			return KindTimeout, fmt.Errorf("transaction %s not confirmed: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (e *Executor) decimalsOf(ctx context.Context, token common.Address) (uint8, error) {
	e.decimalsMu.Lock()
	defer e.decimalsMu.Unlock()

	if d, ok := e.decimals[token]; ok {
		return d, nil
	}
	d, err := chain.Decimals(ctx, e.client, token)
	if err != nil {
		return 0, err
	}
	e.decimals[token] = d
	return d, nil
}

func (e *Executor) fail(index int, w payout.ResolvedWinner, kind Kind, txHash string, err error) *TransferError {
	if kind != KindTimeout && kind != KindReverted {
		monitor.ObserveTransfer(string(kind))
	}
	logger.Error("payout transfer failed",
		zap.Int("index", index),
		zap.Int64("fid", w.FID),
		zap.Int("position", w.Position),
		zap.String("kind", string(kind)),
		zap.String("tx_hash", txHash),
		zap.Error(err))
	return &TransferError{Index: index, FID: w.FID, Position: w.Position, Kind: kind, TxHash: txHash, Err: err}
}

// toBaseUnits 整币金额换算为最小单位, 超出代币精度的小数视为非法
func toBaseUnits(amount decimal.Decimal, decimals uint8) (*big.Int, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("amount %s must be positive", amount)
	}
	shifted := amount.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("amount %s exceeds token precision (%d decimals)", amount, decimals)
	}
	return shifted.BigInt(), nil
}

func classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return KindTimeout
	case strings.Contains(msg, "insufficient funds"):
		return KindInsufficientBalance
	case strings.Contains(msg, "revert"):
		return KindReverted
	default:
		return KindRPC
	}
}
