package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// testRelay is a minimal websocket endpoint that records upgrades and
// inbound frames, and lets tests drive server-side sends and closes.
type testRelay struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    []*websocket.Conn
	upgrades []time.Time
	queries  []url.Values

	inbound chan *Frame
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()
	tr := &testRelay{t: t, inbound: make(chan *Frame, 64)}
	tr.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := tr.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		tr.mu.Lock()
		tr.conns = append(tr.conns, conn)
		tr.upgrades = append(tr.upgrades, time.Now())
		tr.queries = append(tr.queries, r.URL.Query())
		tr.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if f, err := DecodeFrame(data); err == nil {
				tr.inbound <- f
			}
		}
	}))
	t.Cleanup(tr.srv.Close)
	return tr
}

func (tr *testRelay) wsURL() string {
	return "ws" + strings.TrimPrefix(tr.srv.URL, "http")
}

func (tr *testRelay) upgradeCount() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.upgrades)
}

func (tr *testRelay) lastConn() *websocket.Conn {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.conns) == 0 {
		return nil
	}
	return tr.conns[len(tr.conns)-1]
}

func (tr *testRelay) lastQuery() url.Values {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.queries) == 0 {
		return nil
	}
	return tr.queries[len(tr.queries)-1]
}

func (tr *testRelay) sendJSON(raw string) {
	conn := tr.lastConn()
	if conn == nil {
		tr.t.Fatal("no server connection")
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		tr.t.Fatalf("server send: %v", err)
	}
}

// closeWithCode performs a server-initiated close handshake.
func (tr *testRelay) closeWithCode(code int) {
	conn := tr.lastConn()
	if conn == nil {
		tr.t.Fatal("no server connection")
	}
	msg := websocket.FormatCloseMessage(code, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	time.Sleep(50 * time.Millisecond)
	conn.Close()
}

func (tr *testRelay) awaitHandshake(t *testing.T) *Frame {
	t.Helper()
	select {
	case f := <-tr.inbound:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handshake")
		return nil
	}
}

func mustConnect(t *testing.T, c *Client) {
	t.Helper()
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
}

func TestConnectSendsHandshakeWithDefaults(t *testing.T) {
	tr := newTestRelay(t)
	c, err := NewClient(ClientConfig{URL: tr.wsURL(), UserID: "u-1"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Disconnect()
	mustConnect(t, c)

	f := tr.awaitHandshake(t)
	if f.Kind() != TypeConnected {
		t.Fatalf("handshake type = %q, want connected", f.Kind())
	}
	if f.UserID != "u-1" || f.CallID != DefaultCallID || f.AssistantID != DefaultAssistantID {
		t.Errorf("handshake identifiers = %q/%q/%q", f.UserID, f.CallID, f.AssistantID)
	}
	if f.Timestamp == 0 {
		t.Error("handshake timestamp missing")
	}

	q := tr.lastQuery()
	if q.Get("userId") != "u-1" || q.Get("callId") != DefaultCallID || q.Get("assistantId") != DefaultAssistantID {
		t.Errorf("query parameters = %v", q)
	}
}

func TestConnectIdempotent(t *testing.T) {
	tr := newTestRelay(t)
	c, _ := NewClient(ClientConfig{URL: tr.wsURL(), UserID: "u-1"})
	defer c.Disconnect()

	mustConnect(t, c)
	tr.awaitHandshake(t)

	// Further Connect calls while connected must not open a second socket.
	for i := 0; i < 3; i++ {
		if err := c.Connect(); err != nil {
			t.Fatalf("repeat connect: %v", err)
		}
	}
	time.Sleep(100 * time.Millisecond)
	if got := tr.upgradeCount(); got != 1 {
		t.Errorf("upgrades = %d, want 1", got)
	}
	if !c.IsConnected() || c.IsConnecting() {
		t.Errorf("state = connected %v connecting %v", c.IsConnected(), c.IsConnecting())
	}
}

func TestDispatchRouting(t *testing.T) {
	tr := newTestRelay(t)

	connChanges := make(chan bool, 4)
	transcripts := make(chan [2]any, 4)
	aiResponses := make(chan string, 4)
	audio := make(chan string, 4)
	errs := make(chan string, 4)

	c, _ := NewClient(ClientConfig{
		URL:    tr.wsURL(),
		UserID: "u-1",
		Handlers: Handlers{
			OnConnectionChange: func(v bool) { connChanges <- v },
			OnTranscript:       func(text string, final bool) { transcripts <- [2]any{text, final} },
			OnAIResponse:       func(text string) { aiResponses <- text },
			OnAudioResponse:    func(b64 string) { audio <- b64 },
			OnError:            func(msg string) { errs <- msg },
		},
	})
	defer c.Disconnect()
	mustConnect(t, c)
	tr.awaitHandshake(t)

	if v := <-connChanges; !v {
		t.Fatal("expected connection-change true")
	}

	tr.sendJSON(`{"type":"transcript","text":"hello","isFinal":true}`)
	got := <-transcripts
	if got[0] != "hello" || got[1] != true {
		t.Errorf("transcript = %v", got)
	}

	// Legacy frames keyed by "event" route the same way.
	tr.sendJSON(`{"event":"transcript","text":"legacy"}`)
	got = <-transcripts
	if got[0] != "legacy" || got[1] != false {
		t.Errorf("legacy transcript = %v", got)
	}

	tr.sendJSON(`{"type":"ai_response","text":"sure thing"}`)
	if v := <-aiResponses; v != "sure thing" {
		t.Errorf("ai_response = %q", v)
	}

	tr.sendJSON(`{"type":"audio_response","audio":"UklGRg=="}`)
	if v := <-audio; v != "UklGRg==" {
		t.Errorf("audio = %q", v)
	}

	tr.sendJSON(`{"type":"error","error":"backend exploded"}`)
	if v := <-errs; v != "backend exploded" {
		t.Errorf("error = %q", v)
	}
	if c.Err() != "backend exploded" {
		t.Errorf("Err() = %q", c.Err())
	}
}

func TestEmptyTranscriptNotForwarded(t *testing.T) {
	tr := newTestRelay(t)

	messages := make(chan *Frame, 8)
	transcripts := make(chan string, 8)

	c, _ := NewClient(ClientConfig{
		URL:    tr.wsURL(),
		UserID: "u-1",
		Handlers: Handlers{
			OnMessage:    func(f *Frame) { messages <- f },
			OnTranscript: func(text string, _ bool) { transcripts <- text },
		},
	})
	defer c.Disconnect()
	mustConnect(t, c)
	tr.awaitHandshake(t)

	tr.sendJSON(`{"type":"transcript","text":""}`)
	tr.sendJSON(`{"type":"transcript","text":"real"}`)

	if v := <-transcripts; v != "real" {
		t.Fatalf("transcript = %q, empty-text frame leaked through", v)
	}
	// Both frames still reached the generic message callback.
	if len(messages) < 2 {
		time.Sleep(100 * time.Millisecond)
	}
	if got := len(messages); got != 2 {
		t.Errorf("message callback count = %d, want 2", got)
	}
}

func TestMalformedFrameSwallowed(t *testing.T) {
	tr := newTestRelay(t)

	transcripts := make(chan string, 4)
	errs := make(chan string, 4)

	c, _ := NewClient(ClientConfig{
		URL:    tr.wsURL(),
		UserID: "u-1",
		Handlers: Handlers{
			OnTranscript: func(text string, _ bool) { transcripts <- text },
			OnError:      func(msg string) { errs <- msg },
		},
	})
	defer c.Disconnect()
	mustConnect(t, c)
	tr.awaitHandshake(t)

	tr.sendJSON(`{not json`)
	tr.sendJSON(`{"type":"transcript","text":"after garbage"}`)

	if v := <-transcripts; v != "after garbage" {
		t.Fatalf("transcript = %q", v)
	}
	select {
	case msg := <-errs:
		t.Errorf("parse failure surfaced to error handler: %q", msg)
	default:
	}
	if !c.IsConnected() {
		t.Error("connection should survive malformed frames")
	}
}

func TestUnknownTypeSilentlyIgnored(t *testing.T) {
	tr := newTestRelay(t)

	messages := make(chan *Frame, 4)
	c, _ := NewClient(ClientConfig{
		URL:      tr.wsURL(),
		UserID:   "u-1",
		Handlers: Handlers{OnMessage: func(f *Frame) { messages <- f }},
	})
	defer c.Disconnect()
	mustConnect(t, c)
	tr.awaitHandshake(t)

	tr.sendJSON(`{"type":"mystery","text":"???"}`)
	f := <-messages
	if f.Kind() != "mystery" {
		t.Errorf("message kind = %q", f.Kind())
	}
}

func TestReconnectAfterAbnormalClose(t *testing.T) {
	tr := newTestRelay(t)

	delay := 150 * time.Millisecond
	c, _ := NewClient(ClientConfig{URL: tr.wsURL(), UserID: "u-1", ReconnectDelay: delay})
	defer c.Disconnect()
	mustConnect(t, c)
	tr.awaitHandshake(t)

	closedAt := time.Now()
	tr.closeWithCode(websocket.CloseInternalServerErr)

	// No early reconnect before the fixed delay elapses.
	time.Sleep(delay / 2)
	if got := tr.upgradeCount(); got != 1 {
		t.Fatalf("reconnected before delay: upgrades = %d", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for tr.upgradeCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := tr.upgradeCount(); got != 2 {
		t.Fatalf("upgrades = %d, want 2", got)
	}

	tr.mu.Lock()
	reconnectedAt := tr.upgrades[1]
	tr.mu.Unlock()
	if elapsed := reconnectedAt.Sub(closedAt); elapsed < delay {
		t.Errorf("reconnect after %v, want >= %v", elapsed, delay)
	}

	// The new socket sends a fresh handshake.
	f := tr.awaitHandshake(t)
	if f.Kind() != TypeConnected {
		t.Errorf("post-reconnect frame = %q", f.Kind())
	}
}

func TestNoReconnectAfterNormalClose(t *testing.T) {
	tr := newTestRelay(t)

	c, _ := NewClient(ClientConfig{URL: tr.wsURL(), UserID: "u-1", ReconnectDelay: 100 * time.Millisecond})
	defer c.Disconnect()
	mustConnect(t, c)
	tr.awaitHandshake(t)

	tr.closeWithCode(websocket.CloseNormalClosure)

	time.Sleep(400 * time.Millisecond)
	if got := tr.upgradeCount(); got != 1 {
		t.Errorf("upgrades = %d, want 1 (normal close must not reconnect)", got)
	}
	if c.IsConnected() || c.IsConnecting() {
		t.Error("state should be disconnected")
	}
}

func TestNoReconnectAfterManualDisconnect(t *testing.T) {
	tr := newTestRelay(t)

	c, _ := NewClient(ClientConfig{URL: tr.wsURL(), UserID: "u-1", ReconnectDelay: 100 * time.Millisecond})
	mustConnect(t, c)
	tr.awaitHandshake(t)

	c.Disconnect()

	time.Sleep(400 * time.Millisecond)
	if got := tr.upgradeCount(); got != 1 {
		t.Errorf("upgrades = %d, want 1 (manual disconnect must not reconnect)", got)
	}
	if c.IsConnected() || c.IsConnecting() {
		t.Error("state should be disconnected")
	}
	if c.Err() != "" {
		t.Errorf("error should be cleared, got %q", c.Err())
	}
}

func TestDialFailureRetriesAtFixedCadence(t *testing.T) {
	tr := newTestRelay(t)
	wsURL := tr.wsURL()
	tr.srv.Close() // endpoint now unreachable

	errs := make(chan string, 16)
	c, _ := NewClient(ClientConfig{
		URL:            wsURL,
		UserID:         "u-1",
		ReconnectDelay: 60 * time.Millisecond,
		Handlers:       Handlers{OnError: func(msg string) { errs <- msg }},
	})
	defer c.Disconnect()

	if err := c.Connect(); err == nil {
		t.Fatal("expected dial error")
	}

	// Fixed-delay retry keeps producing dial errors until disconnected.
	for i := 0; i < 2; i++ {
		select {
		case <-errs:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected retry attempt %d", i+1)
		}
	}
	c.Disconnect()
}

func TestSendWhenNotOpen(t *testing.T) {
	c, _ := NewClient(ClientConfig{URL: "ws://127.0.0.1:1/ws", UserID: "u-1"})
	if c.Send(&Frame{Type: TypePing}) {
		t.Error("Send should return false when the socket is not open")
	}
	if c.SendText("hello") {
		t.Error("SendText should return false when the socket is not open")
	}
}

func TestSendText(t *testing.T) {
	tr := newTestRelay(t)
	c, _ := NewClient(ClientConfig{URL: tr.wsURL(), UserID: "u-1"})
	defer c.Disconnect()
	mustConnect(t, c)
	tr.awaitHandshake(t)

	if !c.SendText("hi there") {
		t.Fatal("SendText returned false on open socket")
	}
	select {
	case f := <-tr.inbound:
		if f.Kind() != TypeTextInput || f.Text != "hi there" || f.Timestamp == 0 {
			t.Errorf("text frame = %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for text frame")
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(ClientConfig{UserID: "u-1"}); err == nil {
		t.Error("expected error for missing URL")
	}
	if _, err := NewClient(ClientConfig{URL: "ws://x/ws"}); err == nil {
		t.Error("expected error for missing user id")
	}
}

func TestClientDefaults(t *testing.T) {
	if DefaultReconnectDelay != 3*time.Second {
		t.Errorf("DefaultReconnectDelay = %v, want 3s", DefaultReconnectDelay)
	}
	c, err := NewClient(ClientConfig{URL: "ws://127.0.0.1:1/ws", UserID: "u-1"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.cfg.CallID != DefaultCallID || c.cfg.AssistantID != DefaultAssistantID {
		t.Errorf("identity defaults = %q/%q", c.cfg.CallID, c.cfg.AssistantID)
	}
	if c.delay != DefaultReconnectDelay {
		t.Errorf("delay = %v", c.delay)
	}
}

func TestFrameKindFallback(t *testing.T) {
	var f Frame
	if err := json.Unmarshal([]byte(`{"event":"pong"}`), &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.Kind() != TypePong {
		t.Errorf("Kind() = %q, want pong", f.Kind())
	}
	f.Type = TypePing
	if f.Kind() != TypePing {
		t.Errorf("type should win over event, got %q", f.Kind())
	}
}
