// Package payout 把调用方声明的赢家校验并绑定到收款地址
package payout

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"settlement-core/pkg/errno"
)

// WinnerEntry 调用方提交的赢家 (不可信输入)
type WinnerEntry struct {
	FID      int64           `json:"fid"`
	Amount   decimal.Decimal `json:"amount"`
	Position int             `json:"position"` // >= 1 为名次, 0 表示无名次
}

// ResolvedWinner 已绑定地址的发奖指令
type ResolvedWinner struct {
	FID      int64           `json:"fid"`
	Amount   decimal.Decimal `json:"amount"`
	Position int             `json:"position"`
	Address  string          `json:"address"`
}

// IsAdvantageOnly 金额为 0 的赢家只获得非货币权益, 不发生转账
func (w ResolvedWinner) IsAdvantageOnly() bool {
	return w.Amount.IsZero()
}

type ResolveOptions struct {
	// AdvantageOnly 由调用方显式声明, 不从金额推断
	AdvantageOnly bool
}

// Resolve 校验并解析赢家列表, 输出顺序与输入一致
// addrs 中每个 fid 的第一个地址即收款地址 (AddressDirectory 已按质押排好序)
func Resolve(entries []WinnerEntry, addrs map[int64][]string, opts ResolveOptions) ([]ResolvedWinner, error) {
	if len(entries) == 0 {
		return nil, errno.New(errno.ErrValidation, "no winners supplied")
	}

	seen := make(map[int64]int, len(entries))
	resolved := make([]ResolvedWinner, 0, len(entries))

	for i, e := range entries {
		if first, dup := seen[e.FID]; dup {
			return nil, errno.New(errno.ErrValidation,
				fmt.Sprintf("winner fid %d appears more than once (entries %d and %d)", e.FID, first+1, i+1)).
				ForFID(e.FID).AtPosition(e.Position)
		}
		seen[e.FID] = i

		if err := checkEntry(e, opts); err != nil {
			return nil, err
		}

		candidates := addrs[e.FID]
		if len(candidates) == 0 || strings.TrimSpace(candidates[0]) == "" {
			return nil, errno.New(errno.ErrValidation,
				fmt.Sprintf("no payout address found for fid %d at position %d", e.FID, e.Position)).
				ForFID(e.FID).AtPosition(e.Position).WithReason("address_not_found")
		}
		address := strings.TrimSpace(candidates[0])
		if !common.IsHexAddress(address) {
			return nil, errno.New(errno.ErrValidation,
				fmt.Sprintf("payout address for fid %d at position %d is malformed", e.FID, e.Position)).
				ForFID(e.FID).AtPosition(e.Position).WithReason("invalid_address")
		}

		resolved = append(resolved, ResolvedWinner{
			FID:      e.FID,
			Amount:   e.Amount,
			Position: e.Position,
			Address:  common.HexToAddress(address).Hex(),
		})
	}
	return resolved, nil
}

func checkEntry(e WinnerEntry, opts ResolveOptions) error {
	if e.FID <= 0 {
		return errno.New(errno.ErrValidation, fmt.Sprintf("invalid fid %d at position %d", e.FID, e.Position)).
			AtPosition(e.Position)
	}
	if e.Position < 0 {
		return errno.New(errno.ErrValidation, fmt.Sprintf("invalid position %d for fid %d", e.Position, e.FID)).
			ForFID(e.FID)
	}
	// decimal 本身不存在 NaN / Inf, 只需要检查符号
	switch {
	case e.Amount.IsNegative():
		return errno.New(errno.ErrValidation,
			fmt.Sprintf("amount for fid %d at position %d must be positive", e.FID, e.Position)).
			ForFID(e.FID).AtPosition(e.Position).WithReason("invalid_amount")
	case e.Amount.IsZero() && !opts.AdvantageOnly:
		return errno.New(errno.ErrValidation,
			fmt.Sprintf("amount for fid %d at position %d must be positive", e.FID, e.Position)).
			ForFID(e.FID).AtPosition(e.Position).WithReason("invalid_amount")
	}
	return nil
}
