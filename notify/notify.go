// Package notify delivers detection alerts and status messages to a tenant's
// chat through the Telegram Bot API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cyberinferno/camingest/logger"
)

// DefaultAPIBase is the public Telegram Bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

// Notifier sends alerts to a chat.
type Notifier interface {
	// Notify sends the image at imagePath with a caption.
	Notify(ctx context.Context, chatID, imagePath, caption string) error
	// SendMessage sends a text message.
	SendMessage(ctx context.Context, chatID, text string) error
}

// Telegram is a Notifier backed by the Bot API sendPhoto and sendMessage
// methods.
type Telegram struct {
	apiBase string
	token   string
	client  *http.Client
	logger  logger.Logger
}

// NewTelegram creates a Telegram notifier.
//
// Parameters:
//   - apiBase: API root, DefaultAPIBase when empty
//   - token: Bot token
//   - timeout: Per-request timeout
//   - log: Logger for delivery results
//
// Returns:
//   - The notifier
func NewTelegram(apiBase, token string, timeout time.Duration, log logger.Logger) *Telegram {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Telegram{
		apiBase: strings.TrimRight(apiBase, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  log.With(logger.Field{Key: "component", Value: "notify"}),
	}
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Notify uploads the image as multipart/form-data with chat_id, caption and
// photo fields.
func (t *Telegram) Notify(ctx context.Context, chatID, imagePath, caption string) error {
	f, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("chat_id", chatID); err != nil {
		return err
	}
	if err := w.WriteField("caption", caption); err != nil {
		return err
	}
	part, err := w.CreateFormFile("photo", filepath.Base(imagePath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if err := w.Close(); err != nil {
		return err
	}

	if err := t.call(ctx, "sendPhoto", w.FormDataContentType(), &body); err != nil {
		return err
	}

	t.logger.Info("photo sent",
		logger.Field{Key: "chat_id", Value: chatID},
		logger.Field{Key: "image", Value: imagePath})
	return nil
}

// SendMessage posts a text message.
func (t *Telegram) SendMessage(ctx context.Context, chatID, text string) error {
	payload, err := json.Marshal(map[string]string{"chat_id": chatID, "text": text})
	if err != nil {
		return err
	}

	if err := t.call(ctx, "sendMessage", "application/json", bytes.NewReader(payload)); err != nil {
		return err
	}

	t.logger.Info("message sent", logger.Field{Key: "chat_id", Value: chatID})
	return nil
}

func (t *Telegram) call(ctx context.Context, method, contentType string, body io.Reader) error {
	url := fmt.Sprintf("%s/bot%s/%s", t.apiBase, t.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL carries the bot token; keep it out of errors and logs.
		return fmt.Errorf("%s: request failed: %w", method, redact(err, t.token))
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	var result apiResponse
	_ = json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode/100 != 2 || !result.OK {
		desc := result.Description
		if desc == "" {
			desc = resp.Status
		}
		return fmt.Errorf("%s: %s", method, desc)
	}

	return nil
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, secret string) error {
	if secret == "" {
		return err
	}

	return &redactedError{msg: strings.ReplaceAll(err.Error(), secret, "***"), err: err}
}

// Nop discards every notification. It is used when no bot token is
// configured.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, string, string, string) error { return nil }

// SendMessage implements Notifier.
func (Nop) SendMessage(context.Context, string, string) error { return nil }
