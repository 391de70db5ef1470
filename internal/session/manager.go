// Package session provides the process-wide registry of running grid
// engines, one per user, enforcing the maximum concurrent session cap and
// coordinating idempotent start/stop across the HTTP control surface.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/gridforge/hedgeengine/internal/engine"
	"github.com/gridforge/hedgeengine/internal/exchange"
	"github.com/gridforge/hedgeengine/internal/metrics"
	"github.com/gridforge/hedgeengine/internal/models"
	"github.com/gridforge/hedgeengine/internal/store"
	"github.com/gridforge/hedgeengine/internal/webhook"
)

// AdapterFactory builds the exchange adapter a new session should trade
// against; it lets the Manager stay agnostic of demo vs. live wiring.
type AdapterFactory func(symbol string) exchange.Adapter

// entry is one registered session: its state, its engine, its optional
// webhook emitter (closed on unregister), and the settings it was
// registered with.
type entry struct {
	state    *models.SessionState
	eng      *engine.Engine
	webhook  *webhook.Emitter // nil when the session has no webhook configured
	settings models.Settings
}

// fanoutSink emits every event to more than one EventSink, letting a
// session report to both the Manager's shared sink (e.g. the admin
// WebSocket broadcaster) and its own per-user webhook without either
// implementation knowing about the other (spec §9: compose, don't inherit).
type fanoutSink struct {
	sinks []models.EventSink
}

func (f fanoutSink) Emit(e models.Event) {
	for _, s := range f.sinks {
		s.Emit(e)
	}
}

// Manager is the process-wide session registry (spec §4.5). All methods
// are safe for concurrent use; each session's own tick loop is
// serialized independently by its Engine.
type Manager struct {
	mu             sync.RWMutex
	sessions       map[string]*entry
	maxConcurrent  int
	adapterFactory AdapterFactory
	sink           models.EventSink
	indicators     *store.IndicatorStore // nil => no crash-recovery persistence
}

// NewManager builds a Manager capped at maxConcurrent simultaneous
// sessions (spec §4.5: "enforces max concurrent sessions").
func NewManager(maxConcurrent int, adapterFactory AdapterFactory, sink models.EventSink) *Manager {
	if sink == nil {
		sink = models.NopSink{}
	}
	return &Manager{
		sessions:       make(map[string]*entry),
		maxConcurrent:  maxConcurrent,
		adapterFactory: adapterFactory,
		sink:           sink,
	}
}

// WithIndicatorStore attaches indicator-state persistence; every engine
// registered afterward loads its SAR/CCI state on start and saves it on
// stop.
func (m *Manager) WithIndicatorStore(s *store.IndicatorStore) *Manager {
	m.indicators = s
	return m
}

// Register creates a new IDLE session for userID. It does not start the
// engine; callers call Start separately so validation and launch remain
// distinct failure points.
func (m *Manager) Register(userID, symbol string, leverage int, settings models.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[userID]; exists {
		return fmt.Errorf("session already registered for user %s", userID)
	}
	if len(m.sessions) >= m.maxConcurrent {
		return fmt.Errorf("max concurrent sessions (%d) reached", m.maxConcurrent)
	}

	state := models.NewSessionState(userID, symbol, leverage)
	adapter := m.adapterFactory(symbol)

	sink := m.sink
	var emitter *webhook.Emitter
	if settings.WebhookURL != "" {
		emitter = webhook.New(userID, settings.WebhookURL, settings.WebhookSecret)
		sink = fanoutSink{sinks: []models.EventSink{m.sink, emitter}}
	}

	eng := engine.New(state, settings, adapter, sink)
	if m.indicators != nil {
		eng = eng.WithStore(m.indicators)
	}

	m.sessions[userID] = &entry{
		state:    state,
		eng:      eng,
		webhook:  emitter,
		settings: settings,
	}
	metrics.SessionsActive.Set(float64(len(m.sessions)))
	log.Info().Str("user_id", userID).Str("symbol", symbol).Msg("session registered")
	return nil
}

// Start launches the tick loop for an already-registered session.
func (m *Manager) Start(ctx context.Context, userID string) error {
	e, err := m.get(userID)
	if err != nil {
		return err
	}
	return e.eng.Start(ctx)
}

// Stop requests cooperative shutdown of a running session and waits for
// its tick loop to exit.
func (m *Manager) Stop(userID string) error {
	e, err := m.get(userID)
	if err != nil {
		return err
	}
	e.eng.Stop()
	return nil
}

// ForceClosePositions flattens every open position for userID and
// cancels resting orders (spec §4.5/§6 force_close_positions), the admin
// escape hatch for a session stuck on the wrong side of the market.
func (m *Manager) ForceClosePositions(ctx context.Context, userID string) error {
	e, err := m.get(userID)
	if err != nil {
		return err
	}
	return e.eng.ForceClosePositions(ctx)
}

// Status returns a snapshot of a session's current state.
func (m *Manager) Status(userID string) (models.SessionState, error) {
	e, err := m.get(userID)
	if err != nil {
		return models.SessionState{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *e.state, nil
}

// Unregister stops the session if running and removes it from the
// registry. It is idempotent: unregistering an already-absent userID is
// not an error, matching the control surface's "DELETE is safe to retry"
// contract.
func (m *Manager) Unregister(userID string) error {
	m.mu.Lock()
	e, exists := m.sessions[userID]
	if !exists {
		m.mu.Unlock()
		return nil
	}
	delete(m.sessions, userID)
	metrics.SessionsActive.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	e.eng.Stop() // awaits tick-loop termination before returning
	if e.webhook != nil {
		e.webhook.Close()
	}
	if m.indicators != nil {
		if err := m.indicators.Delete(userID); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("failed to delete persisted indicator state")
		}
	}
	log.Info().Str("user_id", userID).Msg("session unregistered")
	return nil
}

// ListAll returns a snapshot of every registered session's state.
func (m *Manager) ListAll() []models.SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.SessionState, 0, len(m.sessions))
	for _, e := range m.sessions {
		out = append(out, *e.state)
	}
	return out
}

// Count returns the number of currently registered sessions, used by the
// resource-usage admin endpoint.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) get(userID string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[userID]
	if !ok {
		return nil, fmt.Errorf("no session registered for user %s", userID)
	}
	return e, nil
}
