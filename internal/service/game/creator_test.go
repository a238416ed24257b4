package game

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement-core/internal/model"
	"settlement-core/internal/service/approval"
	"settlement-core/internal/testutil"
	"settlement-core/pkg/errno"
)

const squaresPayload = `{
	"kind": "squares_pool",
	"title": "Week 3",
	"pool_size": 100,
	"windows": [
		{"min_stake": "200000000", "allocation_count": 10, "opens_at": "2026-01-01T00:00:00Z", "closes_at": "2026-01-02T00:00:00Z"},
		{"min_stake": "50000000", "allocation_count": 4, "opens_at": "2026-01-02T00:00:00Z"}
	]
}`

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"turn game", `{"kind":"turn_game","title":"t"}`, false},
		{"squares", squaresPayload, false},
		{"bad json", `{`, true},
		{"unknown kind", `{"kind":"poker","title":"t"}`, true},
		{"bad token", `{"kind":"turn_game","title":"t","token_address":"0x12"}`, true},
		{"squares without windows", `{"kind":"squares_pool","title":"t","pool_size":10}`, true},
		{"windows on turn game", `{"kind":"turn_game","title":"t","pool_size":10,"windows":[{"min_stake":"1","allocation_count":1}]}`, true},
		{"window closes before open", `{"kind":"squares_pool","title":"t","pool_size":10,"windows":[{"min_stake":"1","allocation_count":1,"opens_at":"2026-01-02T00:00:00Z","closes_at":"2026-01-01T00:00:00Z"}]}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))
			if tt.wantErr {
				assert.True(t, errors.Is(err, errno.ErrValidation), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApproveCreatesSquaresPool(t *testing.T) {
	db := testutil.NewDB(t)
	coord := approval.NewCoordinator(db)
	coord.Register(model.RequestKindGame, NewCreator(db).Action())
	ctx := context.Background()

	req, err := coord.Submit(ctx, model.RequestKindGame, 7, []byte(squaresPayload))
	require.NoError(t, err)

	gameID, err := coord.Approve(ctx, req.ID, 42)
	require.NoError(t, err)

	g, err := NewCreator(db).Get(ctx, gameID)
	require.NoError(t, err)
	assert.Equal(t, model.GameKindSquares, g.Kind)
	assert.Equal(t, 4, g.RequiredPositions)
	assert.Equal(t, int64(7), g.CreatedByFID)
	assert.Equal(t, "default", g.Community)

	var windows []model.TierWindow
	require.NoError(t, db.Where("pool_id = ?", gameID).Find(&windows).Error)
	assert.Len(t, windows, 2)

	var pool model.Pool
	require.NoError(t, db.First(&pool, "id = ?", gameID).Error)
	assert.Equal(t, 100, pool.Size)
}
