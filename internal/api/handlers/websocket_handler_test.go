package handlers

import (
	"net"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henny-hen/DASOS-backend/internal/pipeline"
)

func dialAnalyses(t *testing.T) *websocket.Conn {
	t.Helper()
	app, _ := newTestApp(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/api/v1/ws/analyses", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	return conn
}

func TestWebSocketStreamsProgress(t *testing.T) {
	conn := dialAnalyses(t)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "run"}))

	var events []pipeline.Event
	for {
		var ev pipeline.Event
		require.NoError(t, conn.ReadJSON(&ev))
		events = append(events, ev)
		if ev.Type == pipeline.EventCompleted || ev.Type == pipeline.EventFailed {
			break
		}
	}

	require.Len(t, events, 4)
	assert.Equal(t, pipeline.EventStarted, events[0].Type)
	assert.Equal(t, 2, events[0].Total)
	assert.Equal(t, "A", events[1].SubjectCode)
	assert.Equal(t, pipeline.OutcomeSucceeded, events[1].Outcome)
	assert.Equal(t, pipeline.OutcomeSkipped, events[2].Outcome)
	assert.Equal(t, pipeline.EventCompleted, events[3].Type)
	require.NotNil(t, events[3].Summary)
	assert.Equal(t, events[0].AnalysisID, events[3].Summary.AnalysisID)
}

func TestWebSocketRejectsUnknownMessages(t *testing.T) {
	conn := dialAnalyses(t)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "query", "content": "hello"}))

	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg["type"])
	assert.Contains(t, msg["error"], "unsupported message type")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "run", "metric": "grades"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg["type"])
	assert.Contains(t, msg["error"], "unknown metric")
}
