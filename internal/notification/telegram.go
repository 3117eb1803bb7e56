package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	telegramAPI = "https://api.telegram.org"
	// telegramMaxText is the Bot API limit for one message.
	telegramMaxText = 4096
)

// TelegramNotifier posts alerts to a chat through the Bot API.
type TelegramNotifier struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:   token,
		chatID:  chatID,
		baseURL: telegramAPI,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type telegramReply struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send delivers the alert, splitting a long batch report over several
// messages so no single message exceeds the API limit.
func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	head := "📊"
	if alert.Level == AlertWarning {
		head = "⚠️"
	}
	head += " *" + escapeMarkdown(alert.Title) + "*\n\n"

	for i, part := range splitLines(escapeMarkdown(alert.Message), telegramMaxText-len(head)) {
		text := part
		if i == 0 {
			text = head + part
		}
		if err := t.post(ctx, text); err != nil {
			return err
		}
	}
	log.Printf("[notify] telegram delivered %q", alert.Title)
	return nil
}

func (t *TelegramNotifier) post(ctx context.Context, text string) error {
	body, _ := json.Marshal(map[string]string{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "MarkdownV2",
	})
	url := t.baseURL + "/bot" + t.token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	var reply telegramReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil && resp.StatusCode == http.StatusOK {
		return fmt.Errorf("telegram: decode reply: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !reply.OK {
		return fmt.Errorf("telegram: status %d: %s", resp.StatusCode, reply.Description)
	}
	return nil
}

// splitLines cuts s into chunks of at most max bytes, breaking on newlines
// where it can.
func splitLines(s string, max int) []string {
	if max <= 0 || len(s) <= max {
		return []string{s}
	}
	var out []string
	for len(s) > max {
		cut := strings.LastIndexByte(s[:max], '\n')
		if cut <= 0 {
			cut = max
		}
		out = append(out, s[:cut])
		s = strings.TrimPrefix(s[cut:], "\n")
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

// escapeMarkdown escapes the MarkdownV2 reserved characters.
func escapeMarkdown(s string) string {
	const reserved = "_*[]()~`>#+-=|{}.!\\"
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(reserved, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
