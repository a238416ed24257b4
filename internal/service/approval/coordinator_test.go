package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"settlement-core/internal/event"
	"settlement-core/internal/model"
	"settlement-core/internal/testutil"
	"settlement-core/pkg/errno"
)

const testKind = "test_kind"

// countingAction 每次执行创建一个新资源
type countingAction struct {
	calls atomic.Int32
	fail  func(n int32) (string, error)
}

func (a *countingAction) action() Action {
	return Action{Execute: func(ctx context.Context, req *model.ApprovalRequest) (string, error) {
		n := a.calls.Add(1)
		if a.fail != nil {
			if id, err := a.fail(n); err != nil {
				return id, err
			}
		}
		return fmt.Sprintf("R%d", n), nil
	}}
}

func setup(t *testing.T, a *countingAction) (*Coordinator, *gorm.DB, uint64) {
	t.Helper()
	db := testutil.NewDB(t)
	c := NewCoordinator(db)
	c.Register(testKind, a.action())

	req, err := c.Submit(context.Background(), testKind, 7, []byte(`{"title":"x"}`))
	require.NoError(t, err)
	return c, db, req.ID
}

func TestApproveSameActorRetryReturnsResource(t *testing.T) {
	a := &countingAction{}
	c, db, id := setup(t, a)
	ctx := context.Background()

	rid, err := c.Approve(ctx, id, 42)
	require.NoError(t, err)
	assert.Equal(t, "R1", rid)

	again, err := c.Approve(ctx, id, 42)
	require.NoError(t, err)
	assert.Equal(t, "R1", again)
	assert.Equal(t, int32(1), a.calls.Load())

	_, err = c.Approve(ctx, id, 43)
	assert.True(t, errors.Is(err, errno.ErrConflict))

	assert.Equal(t, 1, testutil.CountEvents(t, db, event.TypeRequestApproved))
}

func TestClaimRaceExactlyOneWins(t *testing.T) {
	a := &countingAction{}
	c, _, id := setup(t, a)

	var wg sync.WaitGroup
	var won atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(actor int64) {
			defer wg.Done()
			res, err := c.Claim(context.Background(), id, actor, fmt.Sprintf("token-%d", actor))
			if err == nil && res.Claimed {
				won.Add(1)
			}
		}(int64(100 + i))
	}
	wg.Wait()
	assert.Equal(t, int32(1), won.Load())
}

func TestApproveRaceCreatesOneResource(t *testing.T) {
	a := &countingAction{}
	c, _, id := setup(t, a)

	var wg sync.WaitGroup
	var mu sync.Mutex
	resources := map[string]bool{}
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(actor int64) {
			defer wg.Done()
			rid, err := c.Approve(context.Background(), id, actor)
			if err != nil {
				assert.True(t, errors.Is(err, errno.ErrConflict), "unexpected error %v", err)
				return
			}
			mu.Lock()
			resources[rid] = true
			mu.Unlock()
		}(int64(200 + i))
	}
	wg.Wait()

	assert.Len(t, resources, 1)
	assert.Equal(t, int32(1), a.calls.Load())
}

func TestApproveRollbackWhenNoResource(t *testing.T) {
	a := &countingAction{fail: func(n int32) (string, error) {
		if n == 1 {
			return "", errors.New("rpc down")
		}
		return "", nil
	}}
	c, _, id := setup(t, a)
	ctx := context.Background()

	_, err := c.Approve(ctx, id, 42)
	require.Error(t, err)
	_, msg := errno.Decode(err)
	assert.NotContains(t, msg, "rpc down")

	req, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusPending, req.Status)
	assert.Nil(t, req.ApprovalClaimID)
	assert.Nil(t, req.ApprovedByFID)

	rid, err := c.Approve(ctx, id, 43)
	require.NoError(t, err)
	assert.Equal(t, "R2", rid)

	req, _ = c.Get(ctx, id)
	assert.Equal(t, model.RequestStatusApproved, req.Status)
	require.NotNil(t, req.ApprovedByFID)
	assert.Equal(t, int64(43), *req.ApprovedByFID)
}

func TestApproveNoRollbackOnceResourceExists(t *testing.T) {
	a := &countingAction{fail: func(n int32) (string, error) {
		return fmt.Sprintf("R%d", n), errors.New("notify admins failed")
	}}
	c, _, id := setup(t, a)
	ctx := context.Background()

	_, err := c.Approve(ctx, id, 42)
	require.Error(t, err)

	req, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusApproved, req.Status)
	require.NotNil(t, req.CreatedResourceID)
	assert.Equal(t, "R1", *req.CreatedResourceID)

	// 其他管理员不能再创建一次
	_, err = c.Approve(ctx, id, 43)
	assert.True(t, errors.Is(err, errno.ErrConflict))

	// 原管理员重试拿到已有资源
	rid, err := c.Approve(ctx, id, 42)
	require.NoError(t, err)
	assert.Equal(t, "R1", rid)
	assert.Equal(t, int32(1), a.calls.Load())
}

func TestApproveClaimedButUnfinishedIsConflict(t *testing.T) {
	a := &countingAction{}
	c, _, id := setup(t, a)
	ctx := context.Background()

	res, err := c.Claim(ctx, id, 42, "held")
	require.NoError(t, err)
	require.True(t, res.Claimed)

	_, err = c.Approve(ctx, id, 42)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errno.ErrConflict))
	assert.Equal(t, "approval_in_progress", errno.DataOf(err)["reason"])
	assert.Zero(t, a.calls.Load())
}

func TestReject(t *testing.T) {
	a := &countingAction{}
	c, _, id := setup(t, a)
	ctx := context.Background()

	require.NoError(t, c.Reject(ctx, id, 42, "spam"))
	require.NoError(t, c.Reject(ctx, id, 42, "spam"), "same actor re-reject is a no-op")

	err := c.Reject(ctx, id, 43, "dup")
	assert.True(t, errors.Is(err, errno.ErrConflict))

	_, err = c.Approve(ctx, id, 42)
	assert.True(t, errors.Is(err, errno.ErrConflict))
	assert.Zero(t, a.calls.Load())

	req, _ := c.Get(ctx, id)
	assert.Equal(t, model.RequestStatusRejected, req.Status)
	assert.Equal(t, "spam", req.RejectReason)
}

func TestRejectApprovedIsConflict(t *testing.T) {
	a := &countingAction{}
	c, _, id := setup(t, a)
	ctx := context.Background()

	_, err := c.Approve(ctx, id, 42)
	require.NoError(t, err)
	err = c.Reject(ctx, id, 42, "changed my mind")
	assert.True(t, errors.Is(err, errno.ErrConflict))
}

func TestMissingRequest(t *testing.T) {
	a := &countingAction{}
	c, _, _ := setup(t, a)

	_, err := c.Approve(context.Background(), 999, 42)
	assert.True(t, errors.Is(err, errno.ErrNotFound))
	err = c.Reject(context.Background(), 999, 42, "")
	assert.True(t, errors.Is(err, errno.ErrNotFound))
}

func TestSubmitUnknownKind(t *testing.T) {
	c := NewCoordinator(testutil.NewDB(t))
	_, err := c.Submit(context.Background(), "nope", 1, []byte(`{}`))
	assert.True(t, errors.Is(err, errno.ErrValidation))
}
