package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const telegramAPI = "https://api.telegram.org"

var (
	ErrChatNotFound = errors.New("telegram: chat not found; send /start to the bot or add it to the group, then check the chat id")
	ErrUnauthorized = errors.New("telegram: bot token rejected")
)

// Telegram posts messages through the Bot API sendMessage method. Messages
// go out as plain text.
type Telegram struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		token:   token,
		chatID:  chatID,
		baseURL: telegramAPI,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// WithBaseURL points the notifier at another Bot API host.
func (t *Telegram) WithBaseURL(url string) *Telegram {
	t.baseURL = strings.TrimRight(url, "/")
	return t
}

func (t *Telegram) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	lower := strings.ToLower(string(respBody))
	switch {
	case strings.Contains(lower, "chat not found"):
		return fmt.Errorf("status %d: %w", resp.StatusCode, ErrChatNotFound)
	case strings.Contains(lower, "unauthorized"):
		return fmt.Errorf("status %d: %w", resp.StatusCode, ErrUnauthorized)
	}
	snippet := string(respBody)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, snippet)
}
