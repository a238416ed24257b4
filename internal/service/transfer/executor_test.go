package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement-core/internal/service/chain"
	"settlement-core/internal/service/payout"
)

var testToken = common.HexToAddress("0x00000000000000000000000000000000000000f0")

// fakeChain 最小化的链模拟: 一个 18 位精度的 ERC20, 发送即出块
type fakeChain struct {
	mu        sync.Mutex
	balance   *big.Int
	nonce     uint64
	receipts  map[common.Hash]*types.Receipt
	sent      []*types.Transaction
	revertAll bool
	neverMine bool
	sendErr   error
}

func newFakeChain(balance *big.Int) *fakeChain {
	return &fakeChain{balance: balance, receipts: map[common.Hash]*types.Receipt{}}
}

func (f *fakeChain) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case bytes.Equal(call.Data[:4], chain.ERC20ABI.Methods["decimals"].ID):
		return chain.ERC20ABI.Methods["decimals"].Outputs.Pack(uint8(18))
	case bytes.Equal(call.Data[:4], chain.ERC20ABI.Methods["balanceOf"].ID):
		return chain.ERC20ABI.Methods["balanceOf"].Outputs.Pack(new(big.Int).Set(f.balance))
	}
	return nil, errors.New("execution reverted: unknown selector")
}

func (f *fakeChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeChain) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 50_000, nil
}

func (f *fakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendErr != nil {
		return f.sendErr
	}
	args, err := chain.ERC20ABI.Methods["transfer"].Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		return err
	}
	amount := args[1].(*big.Int)

	f.sent = append(f.sent, tx)
	f.nonce++
	if f.neverMine {
		return nil
	}
	status := types.ReceiptStatusSuccessful
	if f.revertAll {
		status = types.ReceiptStatusFailed
	} else {
		f.balance.Sub(f.balance, amount)
	}
	f.receipts[tx.Hash()] = &types.Receipt{Status: status, TxHash: tx.Hash()}
	return nil
}

func (f *fakeChain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[txHash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func newTestExecutor(t *testing.T, client ChainClient) *Executor {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return NewExecutor(client, key, big.NewInt(8453), Options{
		DefaultToken:   testToken.Hex(),
		ConfirmTimeout: 100 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
	})
}

func winner(fid int64, amount string, position int) payout.ResolvedWinner {
	return payout.ResolvedWinner{
		FID:      fid,
		Amount:   decimal.RequireFromString(amount),
		Position: position,
		Address:  common.HexToAddress(fmt.Sprintf("0x%040x", fid)).Hex(),
	}
}

func TestTransferSequentialSuccess(t *testing.T) {
	fc := newFakeChain(tokens(100))
	exec := newTestExecutor(t, fc)

	winners := []payout.ResolvedWinner{winner(1, "10", 1), winner(2, "5", 2), winner(3, "1.5", 3)}
	hashes, err := exec.Transfer(context.Background(), winners, "")
	require.NoError(t, err)
	require.Len(t, hashes, 3)
	assert.NotEqual(t, hashes[0], hashes[1])

	// 每笔交易发往 token 合约, 收款人与金额编码在 calldata 中
	require.Len(t, fc.sent, 3)
	for i, tx := range fc.sent {
		assert.Equal(t, testToken, *tx.To())
		assert.Equal(t, uint64(i), tx.Nonce())
		assert.Equal(t, hashes[i], tx.Hash().Hex())

		args, err := chain.ERC20ABI.Methods["transfer"].Inputs.Unpack(tx.Data()[4:])
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress(winners[i].Address), args[0].(common.Address))
	}
	last, _ := chain.ERC20ABI.Methods["transfer"].Inputs.Unpack(fc.sent[2].Data()[4:])
	assert.Equal(t, "1500000000000000000", last[1].(*big.Int).String())
	assert.Equal(t, "83500000000000000000", fc.balance.String())
}

func TestTransferInsufficientBalanceStopsBatch(t *testing.T) {
	fc := newFakeChain(tokens(12))
	exec := newTestExecutor(t, fc)

	hashes, err := exec.Transfer(context.Background(),
		[]payout.ResolvedWinner{winner(1, "10", 1), winner(2, "5", 2), winner(3, "1", 3)}, testToken.Hex())

	var te *TransferError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, KindInsufficientBalance, te.Kind)
	assert.Equal(t, 1, te.Index)
	assert.Equal(t, int64(2), te.FID)
	assert.Len(t, hashes, 1)
	assert.Len(t, fc.sent, 1)
}

func TestTransferTypedFailures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(fc *fakeChain)
		winners  []payout.ResolvedWinner
		token    string
		wantKind Kind
		wantHash bool
	}{
		{
			name:     "invalid recipient",
			winners:  []payout.ResolvedWinner{{FID: 9, Amount: decimal.NewFromInt(1), Position: 1, Address: "0x123"}},
			wantKind: KindInvalidAddress,
		},
		{
			name:     "invalid token",
			winners:  []payout.ResolvedWinner{winner(1, "1", 1)},
			token:    "bogus",
			wantKind: KindInvalidAddress,
		},
		{
			name:     "too many decimals",
			winners:  []payout.ResolvedWinner{winner(1, "0.0000000000000000001", 1)},
			wantKind: KindInvalidAmount,
		},
		{
			name:     "reverted",
			setup:    func(fc *fakeChain) { fc.revertAll = true },
			winners:  []payout.ResolvedWinner{winner(1, "1", 1)},
			wantKind: KindReverted,
			wantHash: true,
		},
		{
			name:     "never confirmed",
			setup:    func(fc *fakeChain) { fc.neverMine = true },
			winners:  []payout.ResolvedWinner{winner(1, "1", 1)},
			wantKind: KindTimeout,
			wantHash: true,
		},
		{
			name:     "rpc send failure",
			setup:    func(fc *fakeChain) { fc.sendErr = errors.New("connection reset by peer") },
			winners:  []payout.ResolvedWinner{winner(1, "1", 1)},
			wantKind: KindRPC,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := newFakeChain(tokens(100))
			if tt.setup != nil {
				tt.setup(fc)
			}
			exec := newTestExecutor(t, fc)

			hashes, err := exec.Transfer(context.Background(), tt.winners, tt.token)
			var te *TransferError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.wantKind, te.Kind)
			assert.Empty(t, hashes)
			assert.Equal(t, tt.wantHash, te.TxHash != "")
		})
	}
}

func TestTransferEmptyBatch(t *testing.T) {
	exec := newTestExecutor(t, newFakeChain(tokens(1)))
	hashes, err := exec.Transfer(context.Background(), nil, "")
	assert.NoError(t, err)
	assert.Empty(t, hashes)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindTimeout, classify(context.DeadlineExceeded))
	assert.Equal(t, KindTimeout, classify(errors.New("i/o timeout")))
	assert.Equal(t, KindInsufficientBalance, classify(errors.New("insufficient funds for gas * price + value")))
	assert.Equal(t, KindReverted, classify(errors.New("execution reverted")))
	assert.Equal(t, KindRPC, classify(errors.New("502 bad gateway")))
}
