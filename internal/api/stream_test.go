package api

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTopics(t *testing.T) {
	assert.Nil(t, ParseTopics(""))
	assert.Nil(t, ParseTopics("  "))

	got := ParseTopics(" Board, alert,,")
	assert.Equal(t, map[string]struct{}{EventSnapshot: {}, EventBoard: {}, EventAlert: {}}, got)

	c := &Client{topics: got}
	assert.True(t, c.wants(EventAlert))
	assert.True(t, c.wants(EventSnapshot))
	assert.False(t, c.wants(EventHeartbeat))
	assert.True(t, (&Client{}).wants(EventHeartbeat))
}

func readType(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var evt DashboardEvent
	require.NoError(t, json.Unmarshal(data, &evt))
	return evt.Type
}

func TestHubFiltersByTopic(t *testing.T) {
	srv, ts := startServer(t, newFakeProvider())
	hub := srv.hub
	base := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	all, _, err := websocket.DefaultDialer.Dial(base, nil)
	require.NoError(t, err)
	defer all.Close()
	alerts, _, err := websocket.DefaultDialer.Dial(base+"?events=alert", nil)
	require.NoError(t, err)
	defer alerts.Close()

	assert.Equal(t, EventSnapshot, readType(t, all))
	assert.Equal(t, EventSnapshot, readType(t, alerts))

	// Broadcasts go out only once both clients have joined.
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	hub.BroadcastEvent(NewEvent(EventHeartbeat, time.Now()))
	hub.BroadcastEvent(NewEvent(EventAlert, nil))

	assert.Equal(t, EventHeartbeat, readType(t, all))
	assert.Equal(t, EventAlert, readType(t, all))
	assert.Equal(t, EventAlert, readType(t, alerts))
}
