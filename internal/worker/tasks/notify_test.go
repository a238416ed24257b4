package tasks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const envelope = `{"type":"settlement.completed","occurred_at":"2026-01-01T00:00:00Z","data":{"game_id":"g1"}}`

func TestWebhookDelivery(t *testing.T) {
	var gotType, gotBody string
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("X-Event-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(status)
	}))
	defer srv.Close()

	task, err := NewWebhookDeliveryTask("1-0", []byte(envelope))
	require.NoError(t, err)
	n := NewWebhookNotifier(srv.URL, srv.Client())

	require.NoError(t, n.HandleWebhookDeliveryTask(context.Background(), task))
	assert.Equal(t, "settlement.completed", gotType)
	assert.JSONEq(t, envelope, gotBody)

	status = http.StatusBadGateway
	err = n.HandleWebhookDeliveryTask(context.Background(), task)
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))

	status = http.StatusBadRequest
	err = n.HandleWebhookDeliveryTask(context.Background(), task)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestWebhookBadPayloadSkipsRetry(t *testing.T) {
	_, err := NewWebhookDeliveryTask("", []byte("not json"))
	assert.Error(t, err)

	n := NewWebhookNotifier("http://127.0.0.1:0", nil)
	err = n.HandleWebhookDeliveryTask(context.Background(), asynq.NewTask(TypeWebhookDelivery, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}
