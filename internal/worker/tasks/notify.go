package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"settlement-core/internal/event"
	"settlement-core/pkg/logger"
)

// 任务类型常量
const (
	TypeWebhookDelivery = "notify:webhook"
)

// ---------------------------------------------------------------------
// 1. Producer (Client) Code
// ---------------------------------------------------------------------

// NewWebhookDeliveryTask 事件原样转发, TaskID 保证同一条 MQ 消息重复消费时只入队一次
func NewWebhookDeliveryTask(messageID string, envelope []byte) (*asynq.Task, error) {
	var head event.Envelope
	if err := json.Unmarshal(envelope, &head); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	opts := []asynq.Option{asynq.MaxRetry(8), asynq.Timeout(30 * time.Second), asynq.Queue("default")}
	if messageID != "" {
		opts = append(opts, asynq.TaskID("webhook:"+messageID), asynq.Retention(24*time.Hour))
	}
	return asynq.NewTask(TypeWebhookDelivery, envelope, opts...), nil
}

// ---------------------------------------------------------------------
// 2. Consumer (Server) Code
// ---------------------------------------------------------------------

// WebhookNotifier 把事件 POST 到配置的 webhook
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{url: url, client: client}
}

// HandleWebhookDeliveryTask 处理通知任务; 4xx 不重试, 5xx 与网络错误交给 asynq 重试
func (n *WebhookNotifier) HandleWebhookDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var env event.Envelope
	if err := json.Unmarshal(t.Payload(), &env); err != nil {
		// JSON 解析失败，重试也没用，直接跳过 (SkipRetry)
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if n.url == "" {
		logger.Debug("webhook url not configured, dropping notification", zap.String("type", env.Type))
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(t.Payload()))
	if err != nil {
		return fmt.Errorf("build request: %v: %w", err, asynq.SkipRetry)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", env.Type)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		logger.Warn("webhook rejected notification", zap.String("type", env.Type), zap.Int("status", resp.StatusCode))
		return fmt.Errorf("webhook returned %d: %w", resp.StatusCode, asynq.SkipRetry)
	}

	logger.Info("notification delivered", zap.String("type", env.Type))
	return nil
}
