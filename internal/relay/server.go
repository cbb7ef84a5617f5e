package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxgate/voxgate/internal/observability"
)

const defaultKeepaliveInterval = 20 * time.Second

// ServerConfig configures the relay server handler.
type ServerConfig struct {
	Logger            *slog.Logger
	Metrics           *observability.Metrics
	KeepaliveInterval time.Duration
}

// Server is the websocket test relay. Plain GET requests answer a health
// probe; upgrade requests get a per-connection loop that acknowledges the
// welcome, keeps the connection alive with pings, and answers ping, echo,
// and test frames. Unknown frame types are echoed back as
// unknown_message_response, unlike the client, which drops them.
type Server struct {
	logger    *slog.Logger
	metrics   *observability.Metrics
	keepalive time.Duration
	upgrader  websocket.Upgrader
}

// NewServer builds a relay server handler.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		keepalive: cfg.KeepaliveInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.keepalive <= 0 {
		s.keepalive = defaultKeepaliveInterval
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		if r.Method == http.MethodGet {
			s.handleHealth(w)
			return
		}
		w.Header().Set("Upgrade", "websocket")
		w.Header().Set("Connection", "Upgrade")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUpgradeRequired)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":    "WebSocket upgrade required",
			"expected": "websocket",
		})
		return
	}

	connID := strings.Split(uuid.New().String(), "-")[0]
	logger := s.logger.With("connection_id", connID)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("relay upgrade failed", "error", err)
		return
	}

	query := r.URL.Query()
	sess := &serverConn{
		server: s,
		conn:   conn,
		logger: logger,
		connID: connID,

		userID:      queryOr(query.Get("userId"), "anonymous"),
		callID:      queryOr(query.Get("callId"), "browser-session"),
		assistantID: queryOr(query.Get("assistantId"), "default"),
	}
	sess.run()
}

func (s *Server) handleHealth(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    "healthy",
		"service":   "relay",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func queryOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// serverConn is one upgraded relay connection.
type serverConn struct {
	server *Server
	conn   *websocket.Conn
	logger *slog.Logger
	connID string

	userID      string
	callID      string
	assistantID string

	writeMu sync.Mutex
}

func (sc *serverConn) run() {
	sc.logger.Info("relay connection opened",
		"user_id", sc.userID, "call_id", sc.callID, "assistant_id", sc.assistantID)
	if sc.server.metrics != nil {
		sc.server.metrics.RelayConnections.WithLabelValues("server").Inc()
	}

	sc.send(&Frame{
		Type:         TypeConnectionEstablished,
		ConnectionID: sc.connID,
		Message:      "relay connection successful",
		UserID:       sc.userID,
		CallID:       sc.callID,
		AssistantID:  sc.assistantID,
		Timestamp:    time.Now().UnixMilli(),
		Capabilities: []string{"basic-websocket", "ping-pong", "echo"},
	})

	stopKeepalive := make(chan struct{})
	go sc.keepaliveLoop(stopKeepalive)

	for {
		_, data, err := sc.conn.ReadMessage()
		if err != nil {
			break
		}
		sc.handleFrame(data)
	}

	close(stopKeepalive)
	sc.conn.Close()
	if sc.server.metrics != nil {
		sc.server.metrics.RelayConnections.WithLabelValues("server").Dec()
	}
	sc.logger.Info("relay connection closed")
}

func (sc *serverConn) keepaliveLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(sc.server.keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			sc.send(&Frame{
				Type:         TypePing,
				ConnectionID: sc.connID,
				Timestamp:    time.Now().UnixMilli(),
			})
		}
	}
}

func (sc *serverConn) handleFrame(data []byte) {
	frame, err := DecodeFrame(data)
	if err != nil {
		sc.logger.Warn("relay frame parse failed", "error", err)
		sc.send(&Frame{
			Type:      TypeError,
			Error:     "Message processing failed",
			Details:   err.Error(),
			Timestamp: time.Now().UnixMilli(),
		})
		return
	}

	if sc.server.metrics != nil {
		sc.server.metrics.RelayFrames.WithLabelValues(frame.Kind(), "in").Inc()
	}

	switch frame.Kind() {
	case TypePong:
		sc.logger.Debug("relay pong received")

	case TypePing:
		sc.send(&Frame{
			Type:         TypePong,
			ConnectionID: sc.connID,
			Timestamp:    time.Now().UnixMilli(),
		})

	case TypeEcho:
		msg := frame.Message
		if msg == "" {
			msg = "Hello from server!"
		}
		sc.send(&Frame{
			Type:            TypeEchoResponse,
			OriginalMessage: msg,
			ConnectionID:    sc.connID,
			Timestamp:       time.Now().UnixMilli(),
		})

	case TypeTest:
		sc.send(&Frame{
			Type:         TypeTestResponse,
			Message:      "Test successful! WebSocket is working.",
			ConnectionID: sc.connID,
			Timestamp:    time.Now().UnixMilli(),
		})

	default:
		// Everything else, including the client handshake, is echoed back.
		sc.logger.Debug("relay unknown frame", "type", frame.Kind())
		sc.send(&Frame{
			Type:         TypeUnknownResponse,
			ReceivedType: frame.Kind(),
			Message:      "Unknown message type received",
			ConnectionID: sc.connID,
			Timestamp:    time.Now().UnixMilli(),
		})
	}
}

func (sc *serverConn) send(f *Frame) {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	if err := sc.conn.WriteJSON(f); err != nil {
		sc.logger.Warn("relay write failed", "type", f.Kind(), "error", err)
		return
	}
	if sc.server.metrics != nil {
		sc.server.metrics.RelayFrames.WithLabelValues(f.Kind(), "out").Inc()
	}
}
