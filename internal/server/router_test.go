package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement-core/internal/auth"
	"settlement-core/internal/handler"
	"settlement-core/internal/model"
	"settlement-core/internal/service/allocation"
	"settlement-core/internal/service/approval"
	"settlement-core/internal/service/directory"
	"settlement-core/internal/service/game"
	"settlement-core/internal/service/payout"
	"settlement-core/internal/service/settlement"
	"settlement-core/internal/testutil"
)

const adminFID = 1

type stubDirectory struct{}

func (stubDirectory) ResolveAddresses(ctx context.Context, fids []int64, ordering *directory.StakeOrdering) map[int64][]string {
	out := make(map[int64][]string, len(fids))
	for _, fid := range fids {
		out[fid] = []string{fmt.Sprintf("0x%040x", fid)}
	}
	return out
}

func (stubDirectory) MeasureStake(ctx context.Context, fid int64, ordering directory.StakeOrdering) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

type countingTransferer struct{ n int }

func (c *countingTransferer) Transfer(ctx context.Context, winners []payout.ResolvedWinner, token string) ([]string, error) {
	hashes := make([]string, len(winners))
	for i := range winners {
		c.n++
		hashes[i] = fmt.Sprintf("0x%064x", c.n)
	}
	return hashes, nil
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T) (*gin.Engine, *countingTransferer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	tr := &countingTransferer{}
	participants := settlement.NewParticipantEligibility(db)
	settleSvc := settlement.NewService(settlement.NewLedger(db), stubDirectory{}, tr, participants, settlement.Options{
		Communities: map[string]settlement.Community{"default": {Token: "0x00000000000000000000000000000000000000f0"}},
	})
	games := game.NewCreator(db)
	coord := approval.NewCoordinator(db)
	coord.Register(model.RequestKindGame, games.Action())

	r := NewHTTPRouter(Handlers{
		Settlement: handler.NewSettlementHandler(settleSvc),
		Approval:   handler.NewApprovalHandler(coord),
		Pool:       handler.NewPoolHandler(allocation.NewClaimService(db, stubDirectory{}, nil), games, participants),
	}, auth.NewAllowlist([]int64{adminFID}))
	return r, tr
}

func call(t *testing.T, r http.Handler, method, path string, actor int64, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != 0 {
		req.Header.Set(auth.ActorHeader, fmt.Sprint(actor))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)
	code, env := call(t, r, http.MethodGet, "/health", 0, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, env.Code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	r, _ := newTestRouter(t)

	code, _ := call(t, r, http.MethodPost, "/api/v1/admin/games/g1/finalize", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env := call(t, r, http.MethodPost, "/api/v1/admin/games/g1/finalize", 99, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, 10005, env.Code)

	code, env = call(t, r, http.MethodPost, "/api/v1/admin/games/g1/finalize", adminFID, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, 30006, env.Code)
}

func TestRequestApproveJoinSettle(t *testing.T) {
	r, tr := newTestRouter(t)

	// 1. 玩家提交建游戏请求
	code, env := call(t, r, http.MethodPost, "/api/v1/requests", 5, gin.H{
		"kind":    model.RequestKindGame,
		"payload": gin.H{"kind": model.GameKindTurn, "title": "Friday turn game"},
	})
	require.Equal(t, http.StatusOK, code, env.Msg)
	var submitted model.ApprovalRequest
	require.NoError(t, json.Unmarshal(env.Data, &submitted))

	// 2. 管理员审批, 重试返回同一个游戏
	path := fmt.Sprintf("/api/v1/admin/requests/%d/approve", submitted.ID)
	code, env = call(t, r, http.MethodPost, path, adminFID, nil)
	require.Equal(t, http.StatusOK, code, env.Msg)
	var approved struct {
		ResourceID string `json:"resource_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &approved))
	require.NotEmpty(t, approved.ResourceID)

	code, env = call(t, r, http.MethodPost, path, adminFID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), approved.ResourceID)

	// 3. 玩家参赛
	gameID := approved.ResourceID
	code, _ = call(t, r, http.MethodPost, "/api/v1/games/"+gameID+"/join", 10, nil)
	require.Equal(t, http.StatusOK, code)

	// 4. 结算并自动收尾
	settle := gin.H{
		"winners": []gin.H{{"fid": 10, "amount": "5", "position": 1}},
		"confirm": true,
	}
	code, env = call(t, r, http.MethodPost, "/api/v1/admin/games/"+gameID+"/settle", adminFID, settle)
	require.Equal(t, http.StatusOK, code, env.Msg)
	var res settlement.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, model.GameStatusSettled, res.GameStatus)
	assert.Equal(t, 1, tr.n)

	// 5. 重放不会再次转账
	code, _ = call(t, r, http.MethodPost, "/api/v1/admin/games/"+gameID+"/settle", adminFID, settle)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, tr.n)

	code, env = call(t, r, http.MethodGet, "/api/v1/admin/games/"+gameID+"/settlements", adminFID, nil)
	require.Equal(t, http.StatusOK, code)
	var records []model.SettlementRecord
	require.NoError(t, json.Unmarshal(env.Data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "p1", records[0].PositionKey)
}

func TestSettleRejectsMissingConfirm(t *testing.T) {
	r, tr := newTestRouter(t)
	code, env := call(t, r, http.MethodPost, "/api/v1/admin/games/g1/settle", adminFID, gin.H{
		"winners": []gin.H{{"fid": 10, "amount": "5", "position": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 30001, env.Code)
	assert.Zero(t, tr.n)
}

func TestResolvePendingRoute(t *testing.T) {
	r, _ := newTestRouter(t)

	code, env := call(t, r, http.MethodPost, "/api/v1/admin/games/g1/pending/p1", adminFID, gin.H{"outcome": "maybe"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.NotZero(t, env.Code)

	code, env = call(t, r, http.MethodPost, "/api/v1/admin/games/g1/pending/p1", adminFID, gin.H{"outcome": "mined"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, 30006, env.Code)
}
