package notify

import (
	"io"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablero/internal/engine"
	"tablero/internal/events"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func TestNotifierOnReservationCreated(t *testing.T) {
	logger := zerolog.New(io.Discard)
	sender := &fakeSender{}
	n := NewTelegramNotifier(sender, []int64{100, 200}, &logger)

	bus := events.NewBus()
	n.SubscribeToBus(bus)

	require.NoError(t, bus.PublishJSON(events.TypeReservationCreated, events.ReservationEvent{
		ReservationID: "abc",
		RestaurantID:  "trattoria",
		PartySize:     4,
		TableID:       "T2",
		ClientName:    "Мария",
	}))

	require.Len(t, sender.sent, 2)
	assert.Equal(t, int64(100), sender.sent[0].ChatID)
	assert.Equal(t, int64(200), sender.sent[1].ChatID)
	assert.Contains(t, sender.sent[0].Text, "trattoria")
	assert.Contains(t, sender.sent[0].Text, "T2")
	assert.Contains(t, sender.sent[0].Text, "Мария")
}

func TestNotifierOnReservationCancelled(t *testing.T) {
	logger := zerolog.New(io.Discard)
	sender := &fakeSender{}
	n := NewTelegramNotifier(sender, []int64{100}, &logger)

	bus := events.NewBus()
	n.SubscribeToBus(bus)

	require.NoError(t, bus.PublishJSON(events.TypeReservationCancelled, events.ReservationEvent{
		ReservationID: "abc",
		RestaurantID:  "trattoria",
	}))

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Text, "trattoria")
	assert.Contains(t, sender.sent[0].Text, "abc")
}

func TestNotifierFindings(t *testing.T) {
	logger := zerolog.New(io.Discard)
	sender := &fakeSender{}
	n := NewTelegramNotifier(sender, []int64{100}, &logger)

	n.NotifyFindings("trattoria", []engine.Finding{
		{TableID: "T1", Severity: engine.SeverityWarning, Message: "minor"},
		{TableID: "T2", Severity: engine.SeverityCritical, Message: "stuck occupancy"},
	})

	// Only the critical finding reaches the managers.
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Text, "T2")
	assert.Contains(t, sender.sent[0].Text, "stuck occupancy")
}
