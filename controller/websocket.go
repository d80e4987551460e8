package controller

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketMessage is one frame exchanged over a Controller WebSocket
// connection: a command request in, a response out (spec §4.7/§6 wire
// schema: `{"request":...}` in, `{"response":...,"success":...}` out).
type WebSocketMessage struct {
	Request  string `json:"request,omitempty"`
	Response string `json:"response,omitempty"`
	Success  bool   `json:"success"`
}

// WebSocketServer upgrades HTTP connections into a line-oriented Controller
// session equivalent to Telnet, for browser-based dashboards (spec §4.7,
// §6 --websocket-host/--websocket-port).
//
// Grounded on internal/demo/websocket.go's WebSocketHub/WebSocketSubscriber:
// the same upgrader configuration and read/write pump split, simplified
// from a broadcast hub (many producers, many subscribers) to a
// request/reply protocol since each Controller connection here drives its
// own independent command stream rather than receiving a shared feed.
type WebSocketServer struct {
	attack   Attack
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketServer builds a WebSocketServer; CheckOrigin always accepts,
// matching the teacher's demo-purposes stance (documented here rather than
// silently inherited).
func NewWebSocketServer(attack Attack, logger *slog.Logger) *WebSocketServer {
	return &WebSocketServer{
		attack: attack,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and runs the connection's command loop
// until the client disconnects or sends "exit"/"quit".
func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	s.logger.Info("websocket connection opened", "remote", r.RemoteAddr)

	for {
		var msg WebSocketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}

		cmd := msg.Request
		if cmd == "exit" || cmd == "quit" {
			conn.WriteJSON(WebSocketMessage{Response: "bye", Success: true})
			break
		}
		// Over WebSocket, config and metrics always answer in JSON.
		switch strings.ToLower(strings.TrimSpace(cmd)) {
		case "config":
			cmd = "config-json"
		case "metrics":
			cmd = "metrics-json"
		}

		out, err := Dispatch(cmd, s.attack)
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err != nil {
			if writeErr := conn.WriteJSON(WebSocketMessage{Response: err.Error(), Success: false}); writeErr != nil {
				break
			}
			continue
		}
		if writeErr := conn.WriteJSON(WebSocketMessage{Response: out, Success: true}); writeErr != nil {
			break
		}
	}
	s.logger.Info("websocket connection closed", "remote", r.RemoteAddr)
}
