package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// TelegramNotifier delivers alerts through the Telegram Bot API.
type TelegramNotifier struct {
	sendURL string
	chatID  string
	client  *http.Client
}

// NewTelegramNotifier creates a notifier for the given bot token and
// target chat ID.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		sendURL: "https://api.telegram.org/bot" + botToken + "/sendMessage",
		chatID:  chatID,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	var b strings.Builder
	b.WriteString(levelEmoji(alert.Level))
	b.WriteString(" *")
	b.WriteString(escapeMarkdown(alert.Title))
	b.WriteString("*\n\n")
	b.WriteString(escapeMarkdown(alert.Message))
	if alert.Symbol != "" {
		b.WriteString("\n\n`")
		b.WriteString(escapeMarkdown(alert.Symbol))
		b.WriteString("`")
	}

	err := postJSON(ctx, t.client, t.sendURL, map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       b.String(),
		"parse_mode": "MarkdownV2",
	})
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	log.Printf("[telegram] sent alert: %s", alert.Title)
	return nil
}

func levelEmoji(level AlertLevel) string {
	switch level {
	case AlertWarning:
		return "⚠️"
	case AlertCritical:
		return "🚨"
	}
	return "ℹ️"
}

// escapeMarkdown backslash-escapes the characters Telegram MarkdownV2
// treats as syntax.
func escapeMarkdown(s string) string {
	const specials = `_*[]()~` + "`" + `>#+-=|{}.!`
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(specials, s[i]) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
