package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const defaultStakeFunction = "balanceOf"

// StakeReader 通过只读合约调用读取地址的质押量
// 质押函数签名固定为 fn(address) returns (uint256), 函数名可配置
type StakeReader struct {
	caller ethereum.ContractCaller

	mu   sync.Mutex
	abis map[string]abi.ABI
}

func NewStakeReader(caller ethereum.ContractCaller) *StakeReader {
	return &StakeReader{caller: caller, abis: make(map[string]abi.ABI)}
}

func (r *StakeReader) ReadStake(ctx context.Context, contract, function, holder string) (*big.Int, error) {
	if !common.IsHexAddress(contract) || !common.IsHexAddress(holder) {
		return nil, fmt.Errorf("invalid contract or holder address")
	}
	if function == "" {
		function = defaultStakeFunction
	}

	parsed, err := r.abiFor(function)
	if err != nil {
		return nil, err
	}
	data, err := parsed.Pack(function, common.HexToAddress(holder))
	if err != nil {
		return nil, err
	}

	to := common.HexToAddress(contract)
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	values, err := parsed.Unpack(function, out)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", function, err)
	}
	return values[0].(*big.Int), nil
}

func (r *StakeReader) abiFor(function string) (abi.ABI, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if parsed, ok := r.abis[function]; ok {
		return parsed, nil
	}
	raw := fmt.Sprintf(`[{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":%q,"outputs":[{"name":"","type":"uint256"}],"type":"function"}]`, function)
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("build abi for %s: %w", function, err)
	}
	r.abis[function] = parsed
	return parsed, nil
}
