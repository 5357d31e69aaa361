package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"stockpilot/internal/logger"
)

const (
	telegramAPIBase    = "https://api.telegram.org"
	telegramMaxRetries = 3
	telegramRetryDelay = 2 * time.Second
)

// Telegram sends messages to a chat through the Bot API.
type Telegram struct {
	botToken   string
	chatID     string
	baseURL    string
	client     *http.Client
	retryDelay time.Duration
}

var _ Notifier = (*Telegram)(nil)

type TelegramOption func(*Telegram)

// WithTelegramBaseURL overrides the API host, used by tests.
func WithTelegramBaseURL(u string) TelegramOption {
	return func(t *Telegram) { t.baseURL = u }
}

func WithTelegramClient(c *http.Client) TelegramOption {
	return func(t *Telegram) { t.client = c }
}

func WithTelegramRetryDelay(d time.Duration) TelegramOption {
	return func(t *Telegram) { t.retryDelay = d }
}

func NewTelegram(botToken, chatID string, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		botToken:   botToken,
		chatID:     chatID,
		baseURL:    telegramAPIBase,
		client:     &http.Client{Timeout: 10 * time.Second},
		retryDelay: telegramRetryDelay,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Notify sends one message, retrying transient failures a few times before
// giving up.
func (t *Telegram) Notify(ctx context.Context, msg Message) error {
	text := msg.Text
	if msg.Title != "" {
		text = msg.Title + "\n" + msg.Text
	}
	payload, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)

	var lastErr error
	for attempt := 1; attempt <= telegramMaxRetries; attempt++ {
		lastErr = t.send(ctx, url, payload)
		if lastErr == nil {
			return nil
		}
		logger.Warnf("telegram send attempt %d/%d failed: %v", attempt, telegramMaxRetries, lastErr)
		if attempt < telegramMaxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(t.retryDelay):
			}
		}
	}
	return fmt.Errorf("telegram send failed after %d attempts: %w", telegramMaxRetries, lastErr)
}

func (t *Telegram) send(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("telegram api status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
