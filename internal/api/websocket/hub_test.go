package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

func dialTestHub(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()
	hub := NewHub(logger.New("error"))
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleConnection))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)
	return hub, conn
}

func TestBroadcastEnvelope(t *testing.T) {
	hub, conn := dialTestHub(t)

	hub.Broadcast("new_incident", map[string]interface{}{"id": "i1", "severity": "critical"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type      string                 `json:"type"`
		Event     string                 `json:"event"`
		Data      map[string]interface{} `json:"data"`
		Timestamp string                 `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "new_incident", msg.Type)
	assert.Equal(t, "NEW_INCIDENT", msg.Event)
	assert.Equal(t, "i1", msg.Data["id"])
	_, err = time.Parse(time.RFC3339, msg.Timestamp)
	assert.NoError(t, err)
}

func TestBroadcastEvictsClosedClients(t *testing.T) {
	hub, conn := dialTestHub(t)

	require.NoError(t, conn.Close())
	// The read loop may not have noticed yet; broadcasting must clean up
	// regardless.
	require.Eventually(t, func() bool {
		hub.Broadcast("new_event", map[string]string{"id": "e1"})
		return hub.ClientCount() == 0
	}, 2*time.Second, 50*time.Millisecond)
}

func TestCloseDisconnectsAll(t *testing.T) {
	hub, _ := dialTestHub(t)
	hub.Close()
	assert.Equal(t, 0, hub.ClientCount())
}
