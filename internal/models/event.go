package models

import "time"

// EventKind is the set of lifecycle events a session emits to the webhook
// emitter (spec §4.6).
type EventKind string

const (
	EventTradeOpened    EventKind = "trade_opened"
	EventTradeClosed    EventKind = "trade_closed"
	EventStatusUpdate   EventKind = "status_update"
	EventStatusChanged  EventKind = "status_changed"
	EventErrorOccurred  EventKind = "error_occurred"
	EventBalanceWarning EventKind = "balance_warning"
	EventGlobalLimitHit EventKind = "global_limit_hit"
)

// Event is one outbound lifecycle notification. Data holds the event-kind
// specific payload described in spec §6.
type Event struct {
	UserID    string                 `json:"user_id"`
	Kind      EventKind              `json:"event"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// EventSink is the pluggable emission target an Engine reports lifecycle
// events to. The webhook Emitter is one implementation; a no-op sink is
// another, used in tests (spec §9: compose, don't inherit).
type EventSink interface {
	Emit(e Event)
}

// NopSink discards every event. Useful for engine tests that don't care
// about webhook delivery.
type NopSink struct{}

func (NopSink) Emit(Event) {}
