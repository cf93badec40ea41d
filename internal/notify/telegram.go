package notify

import (
	"context"
	"fmt"
	"html"

	"github.com/mymmrac/telego"
)

type telegramSender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// TelegramSurface delivers reminders as bot messages to a single chat.
// Actionable reminders get inline buttons: the open action as a URL button and
// dismiss as a callback.
type TelegramSurface struct {
	bot    telegramSender
	chatID int64
}

func NewTelegramSurface(token string, chatID int64) (*TelegramSurface, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newTelegramSurface(bot, chatID), nil
}

func newTelegramSurface(bot telegramSender, chatID int64) *TelegramSurface {
	return &TelegramSurface{bot: bot, chatID: chatID}
}

func (s *TelegramSurface) Name() string { return "telegram" }

func (s *TelegramSurface) Show(ctx context.Context, r Reminder) error {
	params := &telego.SendMessageParams{
		ChatID:    telego.ChatID{ID: s.chatID},
		Text:      telegramText(r),
		ParseMode: "HTML",
	}

	if kb := telegramKeyboard(r); len(kb) > 0 {
		params.ReplyMarkup = &telego.InlineKeyboardMarkup{InlineKeyboard: kb}
	}

	_, err := s.bot.SendMessage(ctx, params)
	return err
}

func telegramText(r Reminder) string {
	return fmt.Sprintf("<b>%s</b>\n%s\n\n<i>%s</i>",
		html.EscapeString(r.Title),
		html.EscapeString(r.Body),
		html.EscapeString(r.Text))
}

func telegramKeyboard(r Reminder) [][]telego.InlineKeyboardButton {
	var row []telego.InlineKeyboardButton
	for _, a := range r.Actions {
		switch a.Action {
		case ActionOpen:
			row = append(row, telego.InlineKeyboardButton{Text: a.Title, URL: a.URL})
		case ActionDismiss:
			row = append(row, telego.InlineKeyboardButton{
				Text:         a.Title,
				CallbackData: ActionDismiss + ":" + r.MessageID,
			})
		}
	}
	if len(row) == 0 {
		return nil
	}
	return [][]telego.InlineKeyboardButton{row}
}
