package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/birthdays/internal/birthday"
	"github.com/lalithlochan/birthdays/internal/db"
)

// WebhookSender POSTs the greeting as JSON to a fixed endpoint
type WebhookSender struct {
	client *http.Client
	url    string
	logger *zap.Logger
}

type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

// WebhookPayload is the JSON body delivered to the endpoint
type WebhookPayload struct {
	Event    string `json:"event"`
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Timezone string `json:"timezone"`
	Message  string `json:"message"`
}

func NewWebhookSender(logger *zap.Logger, cfg WebhookConfig) (*WebhookSender, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook sender requires a url")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &WebhookSender{
		client: &http.Client{Timeout: timeout},
		url:    cfg.URL,
		logger: logger,
	}, nil
}

func (s *WebhookSender) Send(ctx context.Context, user *db.User) error {
	body, err := json.Marshal(WebhookPayload{
		Event:    "birthday",
		UserID:   user.ID.String(),
		Name:     user.Name,
		Email:    user.Email,
		Timezone: user.Timezone,
		Message:  birthday.Greeting(user),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "birthdays/1.0")
	req.Header.Set("X-Birthday-User-ID", user.ID.String())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	preview, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d, body: %s", resp.StatusCode, string(preview))
	}

	s.logger.Info("birthday webhook delivered",
		zap.String("user_id", user.ID.String()),
		zap.String("url", s.url),
		zap.Int("status_code", resp.StatusCode),
	)
	return nil
}

func (s *WebhookSender) Name() string { return "webhook" }
