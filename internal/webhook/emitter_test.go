package webhook

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridforge/hedgeengine/internal/models"
)

func TestEmitter_DeliversSignedPayload(t *testing.T) {
	var received atomic.Int32
	var gotSig atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig.Store(r.Header.Get("X-Webhook-Signature"))
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := New("u1", srv.URL, "shared-secret")
	defer e.Close()

	e.Emit(models.Event{UserID: "u1", Kind: models.EventTradeOpened, Timestamp: time.Now()})

	require.Eventually(t, func() bool { return received.Load() == 1 }, time.Second, 5*time.Millisecond)
	sig, _ := gotSig.Load().(string)
	assert.NotEmpty(t, sig)
}

func TestEmitter_RetriesOnFailureThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := New("u1", srv.URL, "secret")
	defer e.Close()

	e.Emit(models.Event{UserID: "u1", Kind: models.EventTradeClosed, Timestamp: time.Now()})

	require.Eventually(t, func() bool { return attempts.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestEmitter_DropsNewestWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := New("u1", srv.URL, "secret")
	defer e.Close()
	defer close(block) // unblock the endpoint before Close drains the queue

	for i := 0; i < MaxQueueSize+5; i++ {
		e.Emit(models.Event{UserID: "u1", Kind: models.EventStatusUpdate, Timestamp: time.Now()})
	}

	assert.True(t, e.Dropped() > 0, "expected backpressure to drop at least one event")
}
