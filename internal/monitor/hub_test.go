package monitor

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/marker.tracker/internal/tracking"
)

func TestHub_StreamsFilteredRecords(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 5*time.Millisecond)

	hub.Observe(tracking.Failure(1), successRecord(2, 0.3))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, 2.0, got["timestamp"])
	assert.Equal(t, true, got["success"])
	assert.InDelta(t, 0.3, got["translation_x"], 1e-12)
}

func TestHub_ViewerDisconnect(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_SlowViewerDoesNotBlock(t *testing.T) {
	hub := NewHub()
	slow := &wsClient{send: make(chan []byte, 1)}
	hub.clients[slow] = struct{}{}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Broadcast([]byte("x"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a full viewer")
	}
	assert.Equal(t, uint64(9), hub.Dropped())
}

func TestHub_ObserveWithoutViewers(t *testing.T) {
	hub := NewHub()
	hub.Observe(tracking.Failure(1), tracking.Failure(1))
	assert.Zero(t, hub.Dropped())
}
