package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement-core/internal/event"
	"settlement-core/internal/model"
	"settlement-core/internal/service/mq"
	"settlement-core/internal/testutil"
)

type fakeProducer struct {
	published []mq.Message
	failAfter int // 第 N 条之后全部失败, 0 表示不失败
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	if p.failAfter > 0 && len(p.published) >= p.failAfter {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, mq.Message{Topic: topic, Key: key, Payload: payload})
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func TestRelayPublishesInOrderAndMarksSent(t *testing.T) {
	db := testutil.NewDB(t)
	for _, key := range []string{"g1", "g2", "g1"} {
		require.NoError(t, model.CreateOutboxMessage(db, event.TopicSettlement, key, map[string]string{"game_id": key}))
	}

	producer := &fakeProducer{}
	relay := NewRelayService(db, producer)

	assert.Equal(t, 3, relay.ProcessPending(context.Background()))
	require.Len(t, producer.published, 3)
	assert.Equal(t, []string{"g1", "g2", "g1"}, []string{producer.published[0].Key, producer.published[1].Key, producer.published[2].Key})
	assert.Equal(t, event.TopicSettlement, producer.published[0].Topic)

	pending, err := relay.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)

	assert.Zero(t, relay.ProcessPending(context.Background()), "sent messages are not re-published")
}

func TestRelayStopsAtFirstFailure(t *testing.T) {
	db := testutil.NewDB(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, model.CreateOutboxMessage(db, event.TopicApproval, "k", map[string]int{"n": i}))
	}

	producer := &fakeProducer{failAfter: 1}
	relay := NewRelayService(db, producer)

	assert.Equal(t, 1, relay.ProcessPending(context.Background()))
	pending, _ := relay.PendingCount(context.Background())
	assert.Equal(t, int64(2), pending)

	var failed model.OutboxMessage
	require.NoError(t, db.Order("id ASC").Where("status = ?", model.OutboxStatusPending).First(&failed).Error)
	assert.Equal(t, 1, failed.Attempts)

	producer.failAfter = 0
	assert.Equal(t, 2, relay.ProcessPending(context.Background()))
}
