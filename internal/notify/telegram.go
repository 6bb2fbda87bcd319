package notify

import (
	"context"
	"encoding/json"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"tablero/internal/engine"
	"tablero/internal/events"
)

// Sender is the slice of the Telegram API the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier pushes engine events to the restaurant managers'
// Telegram chats. Sends are rate limited to stay under the Bot API's
// ~30 messages per second ceiling.
type TelegramNotifier struct {
	bot      Sender
	managers []int64
	limiter  *rate.Limiter
	logger   *zerolog.Logger
}

// NewTelegramNotifier creates a notifier for the given manager chat ids.
func NewTelegramNotifier(bot Sender, managers []int64, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		bot:      bot,
		managers: managers,
		limiter:  rate.NewLimiter(rate.Limit(20), 5),
		logger:   logger,
	}
}

// SubscribeToBus wires the notifier to reservation lifecycle events.
func (n *TelegramNotifier) SubscribeToBus(bus *events.Bus) {
	bus.Subscribe(events.TypeReservationCreated, n.handleReservationCreated)
	bus.Subscribe(events.TypeReservationCancelled, n.handleReservationCancelled)
}

func (n *TelegramNotifier) handleReservationCreated(event events.Event) error {
	var r events.ReservationEvent
	if err := json.Unmarshal(event.Payload, &r); err != nil {
		n.logger.Error().Err(err).Msg("notify: bad reservation payload")
		return err
	}

	text := fmt.Sprintf(
		"Новая бронь: %s\nСтол %s, гостей: %d\n%s %s\nГость: %s %s",
		r.RestaurantID,
		r.TableID,
		r.PartySize,
		r.StartAt.Format("02.01.2006"),
		r.StartAt.Format("15:04"),
		r.ClientName,
		r.ClientPhone,
	)
	n.broadcast(text)
	return nil
}

func (n *TelegramNotifier) handleReservationCancelled(event events.Event) error {
	var r events.ReservationEvent
	if err := json.Unmarshal(event.Payload, &r); err != nil {
		n.logger.Error().Err(err).Msg("notify: bad reservation payload")
		return err
	}
	n.broadcast(fmt.Sprintf("Бронь отменена: %s, %s", r.RestaurantID, r.ReservationID))
	return nil
}

// NotifyFindings reports critical audit findings to the managers. Warnings
// stay in the logs.
func (n *TelegramNotifier) NotifyFindings(restaurantID string, findings []engine.Finding) {
	for _, f := range findings {
		if f.Severity != engine.SeverityCritical {
			continue
		}
		text := fmt.Sprintf("Аудит %s: стол %s: %s", restaurantID, f.TableID, f.Message)
		n.broadcast(text)
	}
}

func (n *TelegramNotifier) broadcast(text string) {
	for _, chatID := range n.managers {
		if err := n.limiter.Wait(context.Background()); err != nil {
			return
		}
		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.Error().Err(err).Int64("chat_id", chatID).Msg("notify: telegram send failed")
		}
	}
}
