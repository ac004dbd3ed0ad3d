package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"talentbook/internal/events"
	"talentbook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramNotifier forwards committed events to an operations chat.
// It is a pure outbox consumer: nothing in the commit path waits on
// telegram, and a delivery failure only means the event retries.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *zerolog.Logger
}

func NewTelegramNotifier(botToken string, chatID int64, debug bool, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = debug

	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram notifier connected")

	return &TelegramNotifier{
		bot:    bot,
		chatID: chatID,
		logger: logger,
	}, nil
}

// NotifyEvent sends a message for the event types the operations team
// acts on and silently skips the rest.
func (n *TelegramNotifier) NotifyEvent(ctx context.Context, event *models.Event) error {
	text, err := formatEvent(event)
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	return nil
}

func formatEvent(event *models.Event) (string, error) {
	switch event.EventType {
	case events.EventVerificationOpen:
		var p events.VerificationPayload
		if err := json.Unmarshal([]byte(event.Payload), &p); err != nil {
			return "", fmt.Errorf("decode verification payload: %w", err)
		}
		return fmt.Sprintf("🔍 New verification to review\nID: %s\nBooking: %s", p.VerificationID, p.BookingID), nil

	case events.EventWithdrawalOpen:
		var p events.WithdrawalPayload
		if err := json.Unmarshal([]byte(event.Payload), &p); err != nil {
			return "", fmt.Errorf("decode withdrawal payload: %w", err)
		}
		return fmt.Sprintf("💸 Withdrawal requested\nID: %s\nTalent: %s\nAmount: %d coins\nBank: %s %s",
			p.RequestID, p.TalentID, p.Amount, p.Bank.BankName, p.Bank.AccountNumber), nil

	case events.EventWithdrawalDone:
		var p events.WithdrawalPayload
		if err := json.Unmarshal([]byte(event.Payload), &p); err != nil {
			return "", fmt.Errorf("decode withdrawal payload: %w", err)
		}
		icon := "✅"
		if p.Status == models.ResolutionRejected {
			icon = "❌"
		}
		return fmt.Sprintf("%s Withdrawal %s\nID: %s\nTalent: %s\nAmount: %d coins",
			icon, p.Status, p.RequestID, p.TalentID, p.Amount), nil

	case events.EventBookingExpired:
		var p events.BookingPayload
		if err := json.Unmarshal([]byte(event.Payload), &p); err != nil {
			return "", fmt.Errorf("decode booking payload: %w", err)
		}
		return fmt.Sprintf("⏰ Booking expired\nID: %s\nClient: %s\nAmount: %d coins", p.BookingID, p.ClientID, p.TotalPrice), nil
	}

	return "", nil
}
