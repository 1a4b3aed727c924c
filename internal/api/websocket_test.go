package api

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

	"github.com/nerrad567/emubot-core/internal/auth"
	"github.com/nerrad567/emubot-core/internal/runner"
)

func dialWS(t *testing.T, ts *httptest.Server, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws" + query
	return websocket.DefaultDialer.Dial(url, nil)
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg WSMessage
	require.NoError(t, json.Unmarshal(data, &msg), string(data))
	return msg
}

func TestWebSocket_RequiresToken(t *testing.T) {
	srv := testServer(t, testSecret)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	_, resp, err := dialWS(t, ts, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocket_StreamsRunStatus(t *testing.T) {
	srv := testServer(t, testSecret)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	admin, err := auth.GenerateToken(testSecret, "tester", auth.RoleAdmin, time.Hour)
	require.NoError(t, err)
	viewer, err := auth.GenerateToken(testSecret, "watcher", auth.RoleViewer, time.Hour)
	require.NoError(t, err)

	conn, _, err := dialWS(t, ts, "?token="+viewer)
	require.NoError(t, err)
	defer conn.Close()
	waitFor(t, "client registration", func() bool { return srv.hub.ClientCount() == 1 })

	do(t, srv, http.MethodPost, "/api/v1/scripts", helloScript, admin)
	botID := createBot(t, srv, "hello", admin)
	rec := do(t, srv, http.MethodPost, "/api/v1/bots/"+botID+"/start", "", admin)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var messages []string
	for {
		msg := readMessage(t, conn)
		require.Equal(t, WSTypeEvent, msg.Type, "%+v", msg)
		require.Equal(t, ChannelRunStatus, msg.EventType)

		raw, err := json.Marshal(msg.Payload)
		require.NoError(t, err)
		var st runner.RunStatus
		require.NoError(t, json.Unmarshal(raw, &st))
		messages = append(messages, st.Message)
		if st.State == runner.StateStopped {
			break
		}
	}
	assert.Equal(t, runner.MsgCompleted, messages[len(messages)-1], "%v", messages)
}

func TestWebSocket_PingAndErrors(t *testing.T) {
	srv := testServer(t, "")
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	conn, _, err := dialWS(t, ts, "")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}))
	msg := readMessage(t, conn)
	assert.Equal(t, WSTypePong, msg.Type)
	assert.Equal(t, "p1", msg.ID)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: "subscribe", ID: "s1"}))
	msg = readMessage(t, conn)
	assert.Equal(t, WSTypeError, msg.Type)
	assert.Equal(t, "s1", msg.ID)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	assert.Equal(t, WSTypeError, readMessage(t, conn).Type)
}

func TestHub_StatusChanged(t *testing.T) {
	srv := testServer(t, "")
	hub := srv.hub

	fast := &wsClient{send: make(chan []byte, 1)}
	slow := &wsClient{send: make(chan []byte, 1)}
	hub.register(fast)
	hub.register(slow)
	slow.send <- []byte("backlog")

	hub.StatusChanged(runner.RunStatus{RunID: "r1", State: runner.StateRunning})

	select {
	case data := <-fast.send:
		assert.Contains(t, string(data), `"run_id":"r1"`)
		assert.Contains(t, string(data), `"event_type":"run.status"`)
	default:
		assert.Fail(t, "client received nothing")
	}
	assert.Equal(t, "backlog", string(<-slow.send), "full buffer drops instead of blocking")

	hub.unregister(fast)
	hub.unregister(fast)
	hub.unregister(slow)
	assert.Zero(t, hub.ClientCount())

	// Closed clients are skipped.
	hub.StatusChanged(runner.RunStatus{RunID: "r2"})
	_, open := <-fast.send
	assert.False(t, open)
}
