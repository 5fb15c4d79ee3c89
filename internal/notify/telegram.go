package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mfolkes/portwarden/internal/errors"
	"github.com/mfolkes/portwarden/internal/logging"
	"github.com/mfolkes/portwarden/internal/metrics"
)

const (
	telegramAPIBase = "https://api.telegram.org"

	// telegramTimeout bounds every Telegram API call.
	telegramTimeout = 10 * time.Second

	// maxErrorBodyBytes caps how much of an API error response is read
	// back for logging.
	maxErrorBodyBytes = 512
)

// testMessage is sent by Test to verify the bot configuration end to end.
const testMessage = "🔒 portwarden test message\n✅ Telegram notifications are working correctly!"

// TelegramNotifier delivers messages through the Telegram bot API.
type TelegramNotifier struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	logger  *logging.Logger
}

// NewTelegramNotifier creates a Telegram notifier for the given bot token
// and chat ID.
func NewTelegramNotifier(token, chatID string, logger *logging.Logger) *TelegramNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &TelegramNotifier{
		token:   token,
		chatID:  chatID,
		baseURL: telegramAPIBase,
		client:  &http.Client{Timeout: telegramTimeout},
		logger:  logger.WithComponent("notify"),
	}
}

// sendMessagePayload is the JSON body for the sendMessage bot method.
type sendMessagePayload struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// Notify implements Notifier. A failed delivery is logged and reported as
// false; the caller decides whether the message mattered.
func (n *TelegramNotifier) Notify(ctx context.Context, message string) bool {
	if n.token == "" || n.chatID == "" {
		n.logger.WarnNotify("Telegram notifier not configured, dropping message")
		return false
	}

	if err := n.sendMessage(ctx, message); err != nil {
		n.logger.WarnNotify("Telegram delivery failed", "error", err)
		metrics.Counter("notifications_total", metrics.Labels{"sink": "telegram", "status": "error"})
		return false
	}

	metrics.Counter("notifications_total", metrics.Labels{"sink": "telegram", "status": "success"})
	return true
}

// Test verifies the bot configuration: it calls getMe to validate the
// token, then sends a test message to the configured chat.
func (n *TelegramNotifier) Test(ctx context.Context) error {
	if n.token == "" {
		return errors.ErrConfigMissing("notifications.telegram.token")
	}
	if n.chatID == "" {
		return errors.ErrConfigMissing("notifications.telegram.chat_id")
	}

	if err := n.getMe(ctx); err != nil {
		return errors.WrapMonitorError(errors.CodeNotifyFailed, "Telegram token validation failed", err)
	}
	if err := n.sendMessage(ctx, testMessage); err != nil {
		return errors.WrapMonitorError(errors.CodeNotifyFailed, "Telegram test message failed", err)
	}
	return nil
}

// sendMessage posts a message to the configured chat.
func (n *TelegramNotifier) sendMessage(ctx context.Context, text string) error {
	payload, err := json.Marshal(sendMessagePayload{
		ChatID: n.chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return n.do(req)
}

// getMe validates the bot token against the API.
func (n *TelegramNotifier) getMe(ctx context.Context) error {
	url := fmt.Sprintf("%s/bot%s/getMe", n.baseURL, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	return n.do(req)
}

// do executes a request and maps non-200 responses to errors.
func (n *TelegramNotifier) do(req *http.Request) error {
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram API request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
