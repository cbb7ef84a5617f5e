package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxgate/voxgate/internal/observability"
)

const (
	// DefaultCallID is used when the caller does not name a call, matching
	// the browser test page.
	DefaultCallID = "browser-test"

	// DefaultAssistantID is the placeholder assistant.
	DefaultAssistantID = "demo"

	// DefaultReconnectDelay is the fixed pause before re-dialing after an
	// abnormal close. There is no backoff and no retry cap: an unreachable
	// endpoint is retried at this cadence until Disconnect.
	DefaultReconnectDelay = 3 * time.Second

	writeWait = 10 * time.Second
)

// Handlers receive routed inbound frames and connection-state transitions.
// All callbacks are optional and are invoked from the client's read loop.
type Handlers struct {
	// OnConnectionChange fires with true after the socket opens and false
	// after it closes.
	OnConnectionChange func(connected bool)

	// OnMessage receives every decoded inbound frame before routing.
	OnMessage func(f *Frame)

	// OnTranscript receives transcript frames that carry non-empty text.
	OnTranscript func(text string, isFinal bool)

	// OnAIResponse receives ai_response frames that carry non-empty text.
	OnAIResponse func(text string)

	// OnAudioResponse receives base64 audio payloads.
	OnAudioResponse func(audio string)

	// OnError fires for transport errors and backend error frames.
	// Transport errors never trigger a reconnect by themselves; the
	// reconnect decision is driven only by the close.
	OnError func(msg string)
}

// ClientConfig configures a relay client.
type ClientConfig struct {
	// URL is the relay endpoint (ws:// or wss://).
	URL string

	UserID      string
	CallID      string // defaults to DefaultCallID
	AssistantID string // defaults to DefaultAssistantID

	// ReconnectDelay overrides DefaultReconnectDelay. Tests shorten it.
	ReconnectDelay time.Duration

	Dialer   *websocket.Dialer
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Handlers Handlers
}

// Client is the browser-side relay connection state machine:
// disconnected -> connecting -> connected -> disconnected. Connect is
// idempotent while a connection is in flight or established. A close with
// any code other than normal closure schedules a single re-dial after a
// fixed delay, unless the caller disconnected on purpose.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger
	dialer *websocket.Dialer
	delay  time.Duration

	mu               sync.Mutex
	writeMu          sync.Mutex
	conn             *websocket.Conn
	connected        bool
	connecting       bool
	manualDisconnect bool
	reconnectTimer   *time.Timer
	lastErr          string
}

// NewClient builds a relay client. URL and UserID are required.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("relay: url is required")
	}
	if cfg.UserID == "" {
		return nil, errors.New("relay: user id is required")
	}
	if cfg.CallID == "" {
		cfg.CallID = DefaultCallID
	}
	if cfg.AssistantID == "" {
		cfg.AssistantID = DefaultAssistantID
	}

	c := &Client{
		cfg:    cfg,
		logger: cfg.Logger,
		dialer: cfg.Dialer,
		delay:  cfg.ReconnectDelay,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.dialer == nil {
		c.dialer = websocket.DefaultDialer
	}
	if c.delay <= 0 {
		c.delay = DefaultReconnectDelay
	}
	return c, nil
}

// Connect opens the relay socket. It is a no-op when a connection attempt is
// already in flight or established. On success the connection-change handler
// fires and the handshake frame is sent before the read loop starts.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.connecting || c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connecting = true
	c.manualDisconnect = false
	c.lastErr = ""
	c.mu.Unlock()

	endpoint, err := c.endpoint()
	if err != nil {
		c.mu.Lock()
		c.connecting = false
		c.lastErr = err.Error()
		c.mu.Unlock()
		c.emitError(err.Error())
		return err
	}

	conn, _, err := c.dialer.Dial(endpoint, nil)
	if err != nil {
		c.mu.Lock()
		c.connecting = false
		c.lastErr = "relay connection error"
		manual := c.manualDisconnect
		c.mu.Unlock()

		c.logger.Warn("relay dial failed", "url", endpoint, "error", err)
		c.emitError("relay connection error")
		// A failed dial behaves like an abnormal close: keep retrying at
		// the fixed cadence until the caller disconnects.
		if !manual {
			c.scheduleReconnect()
		}
		return fmt.Errorf("relay: dial: %w", err)
	}

	c.mu.Lock()
	if c.manualDisconnect {
		// Disconnect raced the dial; drop the fresh socket.
		c.connecting = false
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.connected = true
	c.connecting = false
	c.mu.Unlock()

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RelayConnections.WithLabelValues("client").Inc()
	}
	c.emitConnectionChange(true)

	c.writeFrame(conn, &Frame{
		Type:        TypeConnected,
		UserID:      c.cfg.UserID,
		CallID:      c.cfg.CallID,
		AssistantID: c.cfg.AssistantID,
		Timestamp:   time.Now().UnixMilli(),
	})

	go c.readLoop(conn)
	return nil
}

// Disconnect closes the socket with the normal-closure code, cancels any
// pending reconnect, and resets local state. Safe to call at any time.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.manualDisconnect = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	wasOpen := c.connected
	c.connected = false
	c.connecting = false
	c.lastErr = ""
	c.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Manual disconnect")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
	}
	if wasOpen && c.cfg.Metrics != nil {
		c.cfg.Metrics.RelayConnections.WithLabelValues("client").Dec()
	}
	c.emitConnectionChange(false)
}

// Send writes a frame if the socket is open. It returns false, without
// blocking or panicking, when the socket is not open.
func (c *Client) Send(f *Frame) bool {
	c.mu.Lock()
	conn := c.conn
	open := c.connected
	c.mu.Unlock()

	if !open || conn == nil {
		c.logger.Warn("relay send skipped, socket not open", "type", f.Kind())
		return false
	}
	return c.writeFrame(conn, f)
}

// SendText wraps text in a text_input envelope and sends it.
func (c *Client) SendText(text string) bool {
	return c.Send(&Frame{
		Type:      TypeTextInput,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	})
}

// IsConnected reports whether the socket is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// IsConnecting reports whether a connection attempt is in flight.
func (c *Client) IsConnecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connecting
}

// Err returns the last error message, cleared on connect and disconnect.
func (c *Client) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("relay: parse url: %w", err)
	}
	q := u.Query()
	q.Set("userId", c.cfg.UserID)
	q.Set("callId", c.cfg.CallID)
	q.Set("assistantId", c.cfg.AssistantID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}
		frame, err := DecodeFrame(data)
		if err != nil {
			// Malformed frames are dropped, never surfaced to the caller.
			c.logger.Warn("relay frame parse failed", "error", err)
			continue
		}
		c.dispatch(frame)
	}
}

// dispatch routes one inbound frame. Unrecognized types are silently
// dropped; the server-side test relay echoes unknowns back but the client
// deliberately has no generic unknown handler.
func (c *Client) dispatch(f *Frame) {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RelayFrames.WithLabelValues(f.Kind(), "in").Inc()
	}
	h := c.cfg.Handlers
	if h.OnMessage != nil {
		h.OnMessage(f)
	}

	switch f.Kind() {
	case TypeTranscript:
		if f.Text != "" && h.OnTranscript != nil {
			h.OnTranscript(f.Text, f.IsFinal)
		}
	case TypeAIResponse:
		if f.Text != "" && h.OnAIResponse != nil {
			h.OnAIResponse(f.Text)
		}
	case TypeAudioResponse:
		if f.Audio != "" && h.OnAudioResponse != nil {
			h.OnAudioResponse(f.Audio)
		}
	case TypeError:
		msg := f.Error
		if msg == "" {
			msg = "backend error"
		}
		c.mu.Lock()
		c.lastErr = msg
		c.mu.Unlock()
		if h.OnError != nil {
			h.OnError(msg)
		}
	case TypePong:
		c.logger.Debug("relay pong received")
	}
}

func (c *Client) handleClose(conn *websocket.Conn, err error) {
	code := websocket.CloseAbnormalClosure
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		code = closeErr.Code
	}

	c.mu.Lock()
	if c.conn != conn {
		// A stale read loop from a socket already replaced or torn down.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connected = false
	c.connecting = false
	manual := c.manualDisconnect
	c.mu.Unlock()

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RelayConnections.WithLabelValues("client").Dec()
	}
	c.logger.Info("relay socket closed", "code", code)
	c.emitConnectionChange(false)

	if !manual && code != websocket.CloseNormalClosure {
		c.scheduleReconnect()
	}
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.manualDisconnect || c.reconnectTimer != nil {
		return
	}
	c.logger.Info("relay scheduling reconnect", "delay", c.delay)
	c.reconnectTimer = time.AfterFunc(c.delay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		c.mu.Unlock()
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.RelayReconnects.Inc()
		}
		_ = c.Connect()
	})
}

func (c *Client) writeFrame(conn *websocket.Conn, f *Frame) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(f); err != nil {
		c.logger.Warn("relay write failed", "type", f.Kind(), "error", err)
		return false
	}
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RelayFrames.WithLabelValues(f.Kind(), "out").Inc()
	}
	return true
}

func (c *Client) emitConnectionChange(connected bool) {
	if c.cfg.Handlers.OnConnectionChange != nil {
		c.cfg.Handlers.OnConnectionChange(connected)
	}
}

func (c *Client) emitError(msg string) {
	if c.cfg.Handlers.OnError != nil {
		c.cfg.Handlers.OnError(msg)
	}
}
