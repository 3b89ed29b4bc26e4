package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultTelegramAPI = "https://api.telegram.org"

// ChatTarget is one chat (and optional forum thread) that receives alerts.
type ChatTarget struct {
	ChatID   int64 `yaml:"chatId" json:"chatId"`
	ThreadID int64 `yaml:"threadId,omitempty" json:"threadId,omitempty"`
}

// LoadChatTargets reads a JSON (or YAML) list of chat targets. A missing
// file yields no targets.
func LoadChatTargets(path string) ([]ChatTarget, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read chat targets %s: %w", path, err)
	}
	var targets []ChatTarget
	if err := yaml.Unmarshal(raw, &targets); err != nil {
		return nil, fmt.Errorf("parse chat targets %s: %w", path, err)
	}
	for i, t := range targets {
		if t.ChatID == 0 {
			return nil, fmt.Errorf("chat target %d: chatId is required", i)
		}
	}
	return targets, nil
}

type TelegramConfig struct {
	BotToken string
	Targets  []ChatTarget
	// APIBase overrides the Bot API host. Empty means api.telegram.org.
	APIBase string
}

// TelegramAlerter posts alerts through the Bot API sendMessage method using
// HTML parse mode.
type TelegramAlerter struct {
	token   string
	apiBase string
	targets []ChatTarget
	client  *http.Client
}

func NewTelegramAlerter(cfg TelegramConfig) *TelegramAlerter {
	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = defaultTelegramAPI
	}
	return &TelegramAlerter{
		token:   cfg.BotToken,
		apiBase: base,
		targets: cfg.Targets,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	MessageThreadID       int64  `json:"message_thread_id,omitempty"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send delivers the alert to every target. Failures on one target do not
// stop delivery to the others.
func (t *TelegramAlerter) Send(ctx context.Context, alert Alert) error {
	if len(t.targets) == 0 {
		return errors.New("telegram: no chat targets configured")
	}
	text := alert.HTML
	if text == "" {
		text = renderHTML(alert)
	}

	var errs []error
	for _, target := range t.targets {
		if err := t.sendMessage(ctx, target, text); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", target.ChatID, err))
		}
	}
	return errors.Join(errs...)
}

func (t *TelegramAlerter) sendMessage(ctx context.Context, target ChatTarget, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                target.ChatID,
		MessageThreadID:       target.ThreadID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL carries the bot token; keep it out of logs.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("send telegram alert: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var decoded sendMessageResponse
	_ = json.Unmarshal(raw, &decoded)
	if resp.StatusCode != http.StatusOK || !decoded.OK {
		return fmt.Errorf("telegram returned status %d: %s", resp.StatusCode, decoded.Description)
	}
	return nil
}

// renderHTML builds a minimal HTML body for alerts that were not
// pre-rendered, such as operational alerts.
func renderHTML(alert Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>[%s] %s</b>", html.EscapeString(string(alert.Type)), html.EscapeString(alert.Title))
	if alert.Chain != "" {
		fmt.Fprintf(&b, " (%s)", html.EscapeString(alert.Chain))
	}
	if alert.Message != "" {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(alert.Message))
	}
	for _, k := range sortedFields(alert.Fields) {
		fmt.Fprintf(&b, "\n<b>%s:</b> %s", html.EscapeString(k), html.EscapeString(alert.Fields[k]))
	}
	return b.String()
}
