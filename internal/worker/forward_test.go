package worker

import (
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement-core/internal/service/mq"
	"settlement-core/internal/worker/tasks"
	"settlement-core/pkg/config"
)

type fakeQueue struct {
	tasks []*asynq.Task
	err   error
}

func (q *fakeQueue) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: "t1"}, nil
}

func TestForwarderEnqueuesWebhookTask(t *testing.T) {
	q := &fakeQueue{}
	f := NewForwarder(q)

	payload := []byte(`{"type":"game.settled","occurred_at":"2026-01-01T00:00:00Z","data":{"game_id":"g1"}}`)
	err := f.Handle(&mq.Message{ID: "1-0", Topic: "settlement_events", Payload: payload})
	require.NoError(t, err)

	require.Len(t, q.tasks, 1)
	assert.Equal(t, tasks.TypeWebhookDelivery, q.tasks[0].Type())
	assert.Equal(t, payload, q.tasks[0].Payload())
}

func TestForwarderAcksMalformedEvents(t *testing.T) {
	q := &fakeQueue{}
	err := NewForwarder(q).Handle(&mq.Message{ID: "2-0", Topic: "settlement_events", Payload: []byte("nope")})
	assert.NoError(t, err)
	assert.Empty(t, q.tasks)
}

func TestForwarderTreatsDuplicateAsDelivered(t *testing.T) {
	payload := []byte(`{"type":"game.settled","data":{}}`)

	err := NewForwarder(&fakeQueue{err: asynq.ErrTaskIDConflict}).Handle(&mq.Message{ID: "3-0", Topic: "t", Payload: payload})
	assert.NoError(t, err)

	err = NewForwarder(&fakeQueue{err: errors.New("redis down")}).Handle(&mq.Message{ID: "3-0", Topic: "t", Payload: payload})
	assert.Error(t, err)
}

func TestRedisOptFollowsConfig(t *testing.T) {
	opt := RedisOpt(config.RedisConfig{Addr: "redis:6380", Password: "secret", DB: 3, MQType: "kafka"})
	assert.Equal(t, "redis:6380", opt.Addr)
	assert.Equal(t, "secret", opt.Password)
	assert.Equal(t, 3, opt.DB)
}

func TestQueueSatisfiesEnqueuer(t *testing.T) {
	q := NewQueue(config.RedisConfig{Addr: "127.0.0.1:6379"})
	defer q.Close()

	var e Enqueuer = q
	assert.NotNil(t, NewForwarder(e))
}
