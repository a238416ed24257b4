package transfer

import "fmt"

// Kind 转账失败类型
type Kind string

const (
	KindInvalidAddress      Kind = "invalid_address"
	KindInvalidAmount       Kind = "invalid_amount"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindTimeout             Kind = "timeout"
	KindReverted            Kind = "reverted"
	KindRPC                 Kind = "rpc"
)

// TransferError 第 Index 笔转账失败, 之前的转账已确认
// TxHash 非空表示交易已广播但结果未知 (超时) 或已回滚
type TransferError struct {
	Index    int
	FID      int64
	Position int
	Kind     Kind
	TxHash   string
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer #%d (fid %d, position %d) failed: %s: %v", e.Index, e.FID, e.Position, e.Kind, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
