// Package webhook delivers session lifecycle events to a per-session
// HTTP endpoint, HMAC-signed, with bounded queueing and retry.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog/log"

	"github.com/gridforge/hedgeengine/internal/metrics"
	"github.com/gridforge/hedgeengine/internal/models"
)

// MaxQueueSize bounds the per-session outbound queue (spec §4.6).
const MaxQueueSize = 1000

// enqueueTimeout is how long Emit blocks trying to enqueue before giving
// up and dropping the event (spec §4.6: "non-blocking enqueue with a
// bounded wait").
const enqueueTimeout = 500 * time.Millisecond

const minRetries = 3

// Emitter delivers one session's events to its configured webhook URL.
// One consumer goroutine drains the queue in FIFO order so a slow
// endpoint never reorders deliveries; a full queue drops the newest
// event rather than blocking the tick loop indefinitely.
type Emitter struct {
	userID string
	url    string
	secret string
	client *http.Client

	queue  chan models.Event
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	dropped int64
}

// New builds an Emitter for one session's webhook and starts its consumer
// goroutine. Call Close to drain in-flight work and stop the consumer.
func New(userID, url, secret string) *Emitter {
	e := &Emitter{
		userID: userID,
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		queue:  make(chan models.Event, MaxQueueSize),
		stopCh: make(chan struct{}),
	}
	e.wg.Add(1)
	go e.consume()
	return e
}

// Emit implements models.EventSink. It never blocks the caller beyond
// enqueueTimeout; on a full queue the event is dropped and counted.
func (e *Emitter) Emit(event models.Event) {
	select {
	case e.queue <- event:
		metrics.WebhookQueueDepth.WithLabelValues(e.userID).Set(float64(len(e.queue)))
	case <-time.After(enqueueTimeout):
		e.mu.Lock()
		e.dropped++
		e.mu.Unlock()
		metrics.WebhookEventsDroppedTotal.WithLabelValues(e.userID).Inc()
		log.Warn().Str("user_id", event.UserID).Str("event", string(event.Kind)).
			Msg("webhook queue full, dropping event")
	}
}

// Dropped returns the count of events dropped due to backpressure. The
// same drops are also counted in metrics.WebhookEventsDroppedTotal.
func (e *Emitter) Dropped() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// QueueDepth returns the number of events currently queued.
func (e *Emitter) QueueDepth() int {
	return len(e.queue)
}

// Close stops the consumer after draining any events already queued.
func (e *Emitter) Close() {
	close(e.stopCh)
	e.wg.Wait()
}

func (e *Emitter) consume() {
	defer e.wg.Done()
	for {
		select {
		case event := <-e.queue:
			e.deliver(event)
		case <-e.stopCh:
			// drain remaining events best-effort before exiting
			for {
				select {
				case event := <-e.queue:
					e.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (e *Emitter) deliver(event models.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal webhook event")
		return
	}

	b := &backoff.Backoff{Min: 100 * time.Millisecond, Max: 5 * time.Second, Jitter: true}
	var lastErr error
	for attempt := 0; attempt < minRetries; attempt++ {
		if attempt > 0 {
			metrics.WebhookDeliveryAttemptsTotal.WithLabelValues("retry").Inc()
			time.Sleep(b.Duration())
		}
		if err := e.post(payload); err != nil {
			lastErr = err
			continue
		}
		metrics.WebhookDeliveryAttemptsTotal.WithLabelValues("ok").Inc()
		return
	}
	metrics.WebhookDeliveryAttemptsTotal.WithLabelValues("failed").Inc()
	log.Error().Err(lastErr).Str("user_id", event.UserID).Str("event", string(event.Kind)).
		Msg("webhook delivery exhausted retries")
}

func (e *Emitter) post(payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", sign(e.secret, payload))

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// sign computes the HMAC-SHA256 signature webhooks must carry, matching
// the stdlib hmac/sha256 pattern used across the retrieval pack for
// exchange request signing.
func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
