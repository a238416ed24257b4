package payout

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement-core/pkg/errno"
)

func addr(n int) string {
	return fmt.Sprintf("0x%040x", n)
}

func TestResolvePreservesOrderAndAmount(t *testing.T) {
	entries := []WinnerEntry{
		{FID: 3, Amount: decimal.RequireFromString("5"), Position: 3},
		{FID: 1, Amount: decimal.RequireFromString("10.5"), Position: 1},
		{FID: 2, Amount: decimal.RequireFromString("0.000000000000000001"), Position: 2},
	}
	addrs := map[int64][]string{
		1: {addr(1), addr(11)},
		2: {addr(2)},
		3: {addr(3)},
	}

	got, err := Resolve(entries, addrs, ResolveOptions{})
	require.NoError(t, err)
	require.Len(t, got, 3)

	for i, e := range entries {
		assert.Equal(t, e.FID, got[i].FID)
		assert.Equal(t, e.Position, got[i].Position)
		assert.True(t, e.Amount.Equal(got[i].Amount))
	}
	// 取排序后的第一个地址
	assert.Equal(t, common.HexToAddress(addr(1)).Hex(), got[1].Address)
}

func TestResolveValidation(t *testing.T) {
	addrs := map[int64][]string{1: {addr(1)}, 2: {addr(2)}, 4: {"not-an-address"}}

	tests := []struct {
		name       string
		entries    []WinnerEntry
		opts       ResolveOptions
		wantReason string
	}{
		{
			name:    "duplicate fid",
			entries: []WinnerEntry{{FID: 1, Amount: decimal.NewFromInt(1), Position: 1}, {FID: 1, Amount: decimal.NewFromInt(1), Position: 2}},
		},
		{
			name:       "missing address",
			entries:    []WinnerEntry{{FID: 3, Amount: decimal.NewFromInt(1), Position: 1}},
			wantReason: "address_not_found",
		},
		{
			name:       "malformed address",
			entries:    []WinnerEntry{{FID: 4, Amount: decimal.NewFromInt(1), Position: 1}},
			wantReason: "invalid_address",
		},
		{
			name:       "zero amount without advantage flag",
			entries:    []WinnerEntry{{FID: 1, Amount: decimal.Zero, Position: 1}},
			wantReason: "invalid_amount",
		},
		{
			name:       "negative amount even with advantage flag",
			entries:    []WinnerEntry{{FID: 1, Amount: decimal.NewFromInt(-1), Position: 1}},
			opts:       ResolveOptions{AdvantageOnly: true},
			wantReason: "invalid_amount",
		},
		{
			name:    "negative position",
			entries: []WinnerEntry{{FID: 1, Amount: decimal.NewFromInt(1), Position: -1}},
		},
		{
			name:    "empty batch",
			entries: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.entries, addrs, tt.opts)
			assert.Nil(t, got)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errno.ErrValidation))
			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, errno.DataOf(err)["reason"])
			}
		})
	}
}

func TestResolveDuplicateDetectionHasNoFalsePositives(t *testing.T) {
	addrs := map[int64][]string{}
	var entries []WinnerEntry
	for i := 1; i <= 50; i++ {
		addrs[int64(i)] = []string{addr(i)}
		entries = append(entries, WinnerEntry{FID: int64(i), Amount: decimal.NewFromInt(1), Position: i})
	}

	got, err := Resolve(entries, addrs, ResolveOptions{})
	require.NoError(t, err)
	assert.Len(t, got, 50)

	entries = append(entries, WinnerEntry{FID: 17, Amount: decimal.NewFromInt(1), Position: 51})
	_, err = Resolve(entries, addrs, ResolveOptions{})
	require.Error(t, err)
	assert.Equal(t, int64(17), errno.DataOf(err)["fid"])
}

func TestResolveAdvantageOnlyAllowsZero(t *testing.T) {
	entries := []WinnerEntry{{FID: 1, Amount: decimal.Zero, Position: 0}, {FID: 2, Amount: decimal.NewFromInt(3), Position: 1}}
	addrs := map[int64][]string{1: {addr(1)}, 2: {addr(2)}}

	got, err := Resolve(entries, addrs, ResolveOptions{AdvantageOnly: true})
	require.NoError(t, err)
	assert.True(t, got[0].IsAdvantageOnly())
	assert.False(t, got[1].IsAdvantageOnly())
}
