package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// TelegramConfig for the Bot API client.
type TelegramConfig struct {
	Token   string
	ChatID  int64
	BaseURL string // default https://api.telegram.org
	Timeout time.Duration
}

// Telegram sends notifications to one chat through the Bot API.
type Telegram struct {
	cfg    TelegramConfig
	http   *http.Client
	logger *slog.Logger
}

// New returns a Telegram notifier, or a Noop when the token or chat id is missing.
func New(cfg TelegramConfig, logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Token == "" || cfg.ChatID == 0 {
		logger.Warn("notify.telegram.not_configured")
		return NewNoop(logger)
	}
	return NewTelegram(cfg, logger)
}

func NewTelegram(cfg TelegramConfig, logger *slog.Logger) *Telegram {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Telegram{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (t *Telegram) SendMessage(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]any{
		"chat_id": t.cfg.ChatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("%w: encode message: %v", ErrSend, err)
	}
	return t.call(ctx, "sendMessage", "application/json", bytes.NewReader(body))
}

func (t *Telegram) SendDocument(ctx context.Context, path, caption string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open document: %v", ErrSend, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("chat_id", strconv.FormatInt(t.cfg.ChatID, 10)); err != nil {
		return fmt.Errorf("%w: build form: %v", ErrSend, err)
	}
	if caption != "" {
		if err := mw.WriteField("caption", caption); err != nil {
			return fmt.Errorf("%w: build form: %v", ErrSend, err)
		}
	}
	part, err := mw.CreateFormFile("document", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("%w: build form: %v", ErrSend, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("%w: read document: %v", ErrSend, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("%w: build form: %v", ErrSend, err)
	}
	return t.call(ctx, "sendDocument", mw.FormDataContentType(), &buf)
}

// call posts to a Bot API method. The token is part of the URL, so only the
// method name is logged.
func (t *Telegram) call(ctx context.Context, method, contentType string, body io.Reader) error {
	start := time.Now()
	endpoint := strings.TrimRight(t.cfg.BaseURL, "/") + "/bot" + t.cfg.Token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrSend, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.http.Do(req)
	if err != nil {
		t.logger.Error("notify.telegram.send_error", "method", method, "error", redact(err, t.cfg.Token))
		return fmt.Errorf("%w: %s: %v", ErrSend, method, redact(err, t.cfg.Token))
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			t.logger.Warn("notify.telegram.response_body_close_error", "error", err)
		}
	}(resp.Body)

	var out struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &out)

	t.logger.Info("notify.telegram.response",
		"method", method,
		"status", resp.StatusCode,
		"ok", out.OK,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	if resp.StatusCode/100 != 2 || !out.OK {
		return fmt.Errorf("%w: %s: status %d: %s", ErrSend, method, resp.StatusCode, out.Description)
	}
	return nil
}

// redact strips the bot token from transport errors, which embed the URL.
func redact(err error, token string) string {
	if err == nil {
		return ""
	}
	if token == "" {
		return err.Error()
	}
	return strings.ReplaceAll(err.Error(), token, "<redacted>")
}
