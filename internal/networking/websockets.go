package networking

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// Host messages are tiny JSON objects.
	maxMessageSize = 4096
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	writeWait      = 10 * time.Second
)

// WebsocketMessageHandler usage:
// * Read from GetReader chan until closed (which means the other party closed it)
// * Write into GetWriter chan until you want - if you close it than the websocket will be closed gracefully.
//
// NOTE: This assumes the message encoding is websocket.TextMessage type (NOT websocket.Binary).
type WebsocketMessageHandler interface {
	// GetReader is where websocket.ReadMessage will produce messages into UNTIL the websocket is closed,
	// then the Reader chan will be CLOSED, i.e. do NOT close this channel yourself as panic is a guaranteed.
	GetReader() chan<- []byte
	// GetWriter is where you can write response - upon channel close, or invalid message produced,
	// the websocket will attempt to close gracefully.
	GetWriter() <-chan []byte
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // The host is a local shell, not a browser page on another origin.
	},
}

func getClientIpAddress(r *http.Request) (clientIP string) {
	clientIP = r.RemoteAddr

	// Check for real IP in headers (useful if behind proxy)
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		clientIP = realIP
	} else if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		clientIP = forwardedFor
	}
	return
}

// NewWebsocketHandlerFunc takes the raw http reader / writer,
// and abstracts it into WebsocketMessageHandler which works at the chan []byte message level.
// createHandler is called once per connection, after the upgrade succeeded.
func NewWebsocketHandlerFunc(createHandler func(r *http.Request) WebsocketMessageHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientIP := getClientIpAddress(r)
		log.Info().Str("client_ip", clientIP).Str("method", r.Method).Str("request_url", r.URL.String()).Msg("websocket: attempting to establish a connection")

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errLog(err, "websocket upgrader.Upgrade")
			return
		}
		defer func() { errLog(ws.Close(), "websocket.Close()") }()

		handler := createHandler(r)
		defer close(handler.GetReader())

		writerDone := make(chan struct{})
		go writeRoutine(ws, handler.GetWriter(), writerDone)

		ws.SetReadLimit(maxMessageSize)
		errLog(ws.SetReadDeadline(time.Now().Add(pongWait)), "websocket.SetReadDeadline")
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})

		log.Info().Str("client_ip", clientIP).Msg("websocket: starting to read")
		for {
			messageType, msg, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					log.Info().Str("client_ip", clientIP).Msg("websocket: connection closed normally from the other party")
				} else {
					log.Error().Err(err).Str("client_ip", clientIP).Msg("websocket: couldn't read message")
				}
				// Usually, nothing good will happen ever after a bad websocket message
				return
			}
			if messageType != websocket.TextMessage {
				log.Warn().Int("message_type", messageType).Msg("websocket: ignoring non-text message")
				continue
			}
			select {
			case handler.GetReader() <- msg:
			case <-writerDone:
				// The handler is done with us, no point in reading further.
				return
			}
		}
	}
}

// writeRoutine forwards handler output and keeps the connection alive with pings.
func writeRoutine(ws *websocket.Conn, writer <-chan []byte, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-writer:
			errLog(ws.SetWriteDeadline(time.Now().Add(writeWait)), "websocket.SetWriteDeadline")
			// Channel closed by the handler, attempt to close connection gracefully.
			// That will also end up the reader routine.
			if !ok {
				log.Info().Msg("websocket: writer channel closed, attempting to close connection gracefully")
				closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				errLog(ws.WriteMessage(websocket.CloseMessage, closeMsg), "websocket.CloseMessage gracefully")
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
					log.Info().Msg("websocket: too late to write message, as already closed")
				} else {
					errLog(err, "ws.WriteMessage")
				}
				return
			}
		case <-ticker.C:
			errLog(ws.SetWriteDeadline(time.Now().Add(writeWait)), "websocket.SetWriteDeadline")
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				errLog(err, "websocket ping")
				return
			}
		}
	}
}

func errLog(err error, what string) {
	if err != nil {
		log.Error().Err(err).Msg(what)
	}
}
