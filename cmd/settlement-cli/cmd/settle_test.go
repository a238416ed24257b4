package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement-core/pkg/config"
	"settlement-core/pkg/errno"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "winners.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadWinners(t *testing.T) {
	path := writeFile(t, `[{"fid":10,"amount":"12.5","position":1},{"fid":11,"amount":3,"position":2}]`)

	winners, err := loadWinners(path)
	require.NoError(t, err)
	require.Len(t, winners, 2)
	assert.Equal(t, int64(10), winners[0].FID)
	assert.True(t, decimal.RequireFromString("12.5").Equal(winners[0].Amount))
	assert.Equal(t, 2, winners[1].Position)
}

func TestLoadWinnersRejectsEmptyAndGarbage(t *testing.T) {
	_, err := loadWinners(writeFile(t, `[]`))
	assert.Error(t, err)

	_, err = loadWinners(writeFile(t, `{not json`))
	assert.Error(t, err)

	_, err = loadWinners(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestRequireAdmin(t *testing.T) {
	saved := config.Global
	t.Cleanup(func() { config.Global = saved; actorFID = 0 })

	config.Global.Admin.FIDs = []int64{7}
	actorFID = 8
	assert.Error(t, requireAdmin())
	actorFID = 7
	assert.NoError(t, requireAdmin())
}

func TestDescribeIncludesData(t *testing.T) {
	err := describe(errno.New(errno.ErrValidation, "game g1 still has unsettled positions: q2").
		WithReason("positions_unsettled"))
	assert.Contains(t, err.Error(), "30001")
	assert.Contains(t, err.Error(), "positions_unsettled")
}

func TestPendingOutcome(t *testing.T) {
	mined, err := pendingOutcome(true, false)
	require.NoError(t, err)
	assert.True(t, mined)

	mined, err = pendingOutcome(false, true)
	require.NoError(t, err)
	assert.False(t, mined)

	_, err = pendingOutcome(true, true)
	assert.Error(t, err)
	_, err = pendingOutcome(false, false)
	assert.Error(t, err)
}
