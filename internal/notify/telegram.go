package notify

import (
	"context"
	"fmt"
	"html"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Alerter notifies moderators about protocol lockouts and moderation actions.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// NopAlerter drops alerts. Used when no moderator chat is configured.
type NopAlerter struct{}

func (NopAlerter) Alert(context.Context, string) error { return nil }

// TelegramAlerter posts alerts into a moderators' chat.
type TelegramAlerter struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger
}

// NewTelegramAlerter connects to the Bot API (a getMe round trip). endpoint may be
// empty for api.telegram.org; otherwise it is a format like tgbotapi.APIEndpoint.
func NewTelegramAlerter(token string, chatID int64, endpoint string, logger *zap.Logger) (*TelegramAlerter, error) {
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram token and chat id are required")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	logger = logger.Named("telegram")
	logger.Info("[tg] alerter ready", zap.String("bot", bot.Self.UserName), zap.Int64("chat_id", chatID))
	return &TelegramAlerter{bot: bot, chatID: chatID, logger: logger}, nil
}

func (t *TelegramAlerter) Alert(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram sendMessage failed: %w", err)
	}
	return nil
}

// LockoutAlert formats the text sent when a device exhausts its attempts.
func LockoutAlert(fingerprint, maskedPhone string, attempts int) string {
	return fmt.Sprintf("🔒 <b>Device locked out</b>\nfingerprint: <code>%s</code>\nphone: %s\nfailed attempts: %d",
		html.EscapeString(shortFingerprint(fingerprint)), html.EscapeString(maskedPhone), attempts)
}

// BlockAlert formats the text sent when a moderator blocks or unblocks a device.
func BlockAlert(fingerprint, moderator, reason string, blocked bool) string {
	action := "blocked"
	if !blocked {
		action = "unblocked"
	}
	return fmt.Sprintf("⛔ <b>Device %s</b> by %s\nfingerprint: <code>%s</code>\nreason: %s",
		action, html.EscapeString(moderator), html.EscapeString(shortFingerprint(fingerprint)), html.EscapeString(reason))
}

func shortFingerprint(fp string) string {
	if len(fp) > 16 {
		return fp[:16] + "…"
	}
	return fp
}
