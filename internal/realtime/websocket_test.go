package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridforge/hedgeengine/internal/models"
)

func TestManager_BroadcastsEventToConnectedClient(t *testing.T) {
	m := NewManager()
	go m.Run()

	srv := httptest.NewServer(http.HandlerFunc(m.HandleWebSocket))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(20 * time.Millisecond) // let registration land before broadcasting

	m.Emit(models.Event{UserID: "u1", Kind: models.EventStatusChanged, Timestamp: time.Now()})

	var received models.Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&received))
	assert.Equal(t, "u1", received.UserID)
	assert.Equal(t, models.EventStatusChanged, received.Kind)
}

func TestManager_EmitDoesNotBlockWithNoClients(t *testing.T) {
	m := NewManager()
	assert.NotPanics(t, func() {
		m.Emit(models.Event{UserID: "u1", Kind: models.EventTradeOpened, Timestamp: time.Now()})
	})
}
