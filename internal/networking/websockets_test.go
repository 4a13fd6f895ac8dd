package networking

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upperHandler answers every message in upper case, and hangs up on "bye".
type upperHandler struct {
	reader chan []byte
	writer chan []byte
}

func newUpperHandler() *upperHandler {
	h := &upperHandler{reader: make(chan []byte), writer: make(chan []byte, 1)}
	go func() {
		defer close(h.writer)
		for msg := range h.reader {
			if string(msg) == "bye" {
				return
			}
			h.writer <- []byte(strings.ToUpper(string(msg)))
		}
	}()
	return h
}

func (h *upperHandler) GetReader() chan<- []byte { return h.reader }
func (h *upperHandler) GetWriter() <-chan []byte { return h.writer }

func dial(t *testing.T) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(NewWebsocketHandlerFunc(func(*http.Request) WebsocketMessageHandler {
		return newUpperHandler()
	}))
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	return conn
}

func TestWebsocketRoundTrip(t *testing.T) {
	conn := dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("record")))
	messageType, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, messageType)
	assert.Equal(t, "RECORD", string(msg))
}

func TestWebsocketClosesGracefullyWhenHandlerIsDone(t *testing.T) {
	conn := dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("bye")))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestGetClientIpAddress(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1:1234", getClientIpAddress(r))

	r.Header.Set("X-Forwarded-For", "1.2.3.4")
	assert.Equal(t, "1.2.3.4", getClientIpAddress(r))

	r.Header.Set("X-Real-IP", "5.6.7.8")
	assert.Equal(t, "5.6.7.8", getClientIpAddress(r))
}
