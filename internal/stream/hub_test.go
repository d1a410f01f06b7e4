package stream

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/singletrack/race-control/internal/service"
)

func newTestHub() *Hub {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewHub(l)
}

func dialHub(t *testing.T, server *httptest.Server, raceID uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?race_id=" + raceID.String()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestHubBroadcast(t *testing.T) {
	hub := newTestHub()
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()
	defer hub.Close()

	raceID := uuid.New()
	conn := dialHub(t, server, raceID)
	defer conn.Close()

	// Watcher of a different race must not receive the broadcast
	other := dialHub(t, server, uuid.New())
	defer other.Close()

	require.Eventually(t, func() bool { return hub.Watchers() == 2 }, time.Second, 10*time.Millisecond)

	standings := &service.LiveStandings{StillRacing: 4, TotalStarted: 4}
	hub.BroadcastStandings(raceID, standings)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type      string                 `json:"type"`
		RaceID    uuid.UUID              `json:"race_id"`
		Standings *service.LiveStandings `json:"standings"`
	}
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, "standings", msg.Type)
	assert.Equal(t, raceID, msg.RaceID)
	assert.Equal(t, 4, msg.Standings.StillRacing)

	other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = other.ReadMessage()
	assert.Error(t, err)
}

func TestHubRejectsInvalidRaceID(t *testing.T) {
	hub := newTestHub()
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	resp, err := http.Get(server.URL + "?race_id=not-a-uuid")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHubWatcherDisconnect(t *testing.T) {
	hub := newTestHub()
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()
	defer hub.Close()

	conn := dialHub(t, server, uuid.New())
	require.Eventually(t, func() bool { return hub.Watchers() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Watchers() == 0 }, time.Second, 10*time.Millisecond)
}
