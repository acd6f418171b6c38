// Package telegram
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gitdeploy/internal/domain"
	"gitdeploy/internal/logger"
)

const (
	DefaultBaseURL = "https://api.telegram.org"
	userAgent      = "GitDeploy/1.0"
	maxErrorBody   = 512
)

type Options struct {
	BotToken string
	ChatID   string
	Enabled  bool
	BaseURL  string
}

type Notifier struct {
	client  *http.Client
	baseURL string
	token   string
	chatID  string
	enabled bool
	log     logger.Logger
}

func NewNotifier(opts Options, log logger.Logger) *Notifier {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: 5 * time.Second}).DialContext

	return &Notifier{
		client:  &http.Client{Timeout: 10 * time.Second, Transport: transport},
		baseURL: baseURL,
		token:   opts.BotToken,
		chatID:  opts.ChatID,
		enabled: opts.Enabled,
		log:     log,
	}
}

// Enabled reports whether messages can be delivered at all.
func (n *Notifier) Enabled() bool {
	return n.enabled && n.token != "" && n.chatID != ""
}

func (n *Notifier) Send(ctx context.Context, message string) error {
	if !n.Enabled() {
		return nil
	}

	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", message)
	form.Set("parse_mode", "Markdown")

	if err := n.call(ctx, "sendMessage", form, nil); err != nil {
		return err
	}

	n.log.Debug("telegram message sent", "chat_id", n.chatID)
	return nil
}

type BotInfo struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// Check verifies the bot token with getMe. It needs a token but not a
// chat id, and ignores the enabled flag.
func (n *Notifier) Check(ctx context.Context) (*BotInfo, error) {
	if n.token == "" {
		return nil, fmt.Errorf("%w: bot token is not configured", domain.ErrNotification)
	}

	var info BotInfo
	if err := n.call(ctx, "getMe", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// call posts form to a bot API method and decodes the result field
// into out when out is non-nil.
func (n *Notifier) call(ctx context.Context, method string, form url.Values, out any) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", n.baseURL, n.token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", domain.ErrNotification, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request failed: %v", domain.ErrNotification, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: telegram API returned HTTP %d: %s", domain.ErrNotification, resp.StatusCode, truncate(string(body), maxErrorBody))
	}

	var payload struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || !payload.OK {
		return fmt.Errorf("%w: telegram API rejected %s: %s", domain.ErrNotification, method, truncate(string(body), maxErrorBody))
	}

	if out != nil {
		if err := json.Unmarshal(payload.Result, out); err != nil {
			return fmt.Errorf("%w: invalid %s result: %v", domain.ErrNotification, method, err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
