package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type PushMessage struct {
	To    string         `json:"to"`
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Sound string         `json:"sound,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

type Sender interface {
	Send(ctx context.Context, msg PushMessage) error
}

// ExpoSender posts messages to the Expo push API.
type ExpoSender struct {
	url    string
	client *http.Client
}

func NewExpoSender(url string) *ExpoSender {
	return &ExpoSender{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

type expoResponse struct {
	Data struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"data"`
}

func (s *ExpoSender) Send(ctx context.Context, msg PushMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode push: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("send push: status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var out expoResponse
	if err := json.Unmarshal(raw, &out); err == nil && out.Data.Status == "error" {
		return fmt.Errorf("send push: %s", out.Data.Message)
	}
	return nil
}

// LogSender only logs messages. Used when no push endpoint is configured.
type LogSender struct {
	log zerolog.Logger
}

func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log.With().Str("component", "push_log_sender").Logger()}
}

func (s *LogSender) Send(_ context.Context, msg PushMessage) error {
	s.log.Info().Str("to", msg.To).Str("title", msg.Title).Str("body", msg.Body).Msg("push notification")
	return nil
}
