package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newServerFixture(t *testing.T, cfg ServerConfig) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(cfg))
	t.Cleanup(srv.Close)
	return srv
}

func dialRelay(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) *Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return &f
}

func writeRaw(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestServerWelcomeFrame(t *testing.T) {
	srv := newServerFixture(t, ServerConfig{})
	conn := dialRelay(t, srv, "?userId=u-9&callId=c-9&assistantId=a-9")

	f := readFrame(t, conn)
	if f.Kind() != TypeConnectionEstablished {
		t.Fatalf("welcome type = %q", f.Kind())
	}
	if f.UserID != "u-9" || f.CallID != "c-9" || f.AssistantID != "a-9" {
		t.Errorf("identifiers = %q/%q/%q", f.UserID, f.CallID, f.AssistantID)
	}
	if f.ConnectionID == "" || f.Timestamp == 0 {
		t.Errorf("connection id %q timestamp %d", f.ConnectionID, f.Timestamp)
	}
	want := []string{"basic-websocket", "ping-pong", "echo"}
	if len(f.Capabilities) != len(want) {
		t.Fatalf("capabilities = %v", f.Capabilities)
	}
	for i, c := range want {
		if f.Capabilities[i] != c {
			t.Errorf("capabilities[%d] = %q, want %q", i, f.Capabilities[i], c)
		}
	}
}

func TestServerDefaultsIdentity(t *testing.T) {
	srv := newServerFixture(t, ServerConfig{})
	conn := dialRelay(t, srv, "")

	f := readFrame(t, conn)
	if f.UserID != "anonymous" || f.CallID != "browser-session" || f.AssistantID != "default" {
		t.Errorf("defaults = %q/%q/%q", f.UserID, f.CallID, f.AssistantID)
	}
}

func TestServerPingPong(t *testing.T) {
	srv := newServerFixture(t, ServerConfig{})
	conn := dialRelay(t, srv, "")
	readFrame(t, conn) // welcome

	writeRaw(t, conn, `{"type":"ping"}`)
	f := readFrame(t, conn)
	if f.Kind() != TypePong || f.Timestamp == 0 {
		t.Errorf("pong = %+v", f)
	}
}

func TestServerEcho(t *testing.T) {
	srv := newServerFixture(t, ServerConfig{})
	conn := dialRelay(t, srv, "")
	readFrame(t, conn)

	writeRaw(t, conn, `{"type":"echo","message":"bounce me"}`)
	f := readFrame(t, conn)
	if f.Kind() != TypeEchoResponse || f.OriginalMessage != "bounce me" {
		t.Errorf("echo = %+v", f)
	}

	// Empty message gets the canned greeting.
	writeRaw(t, conn, `{"type":"echo"}`)
	f = readFrame(t, conn)
	if f.OriginalMessage != "Hello from server!" {
		t.Errorf("default echo message = %q", f.OriginalMessage)
	}
}

func TestServerTestHandler(t *testing.T) {
	srv := newServerFixture(t, ServerConfig{})
	conn := dialRelay(t, srv, "")
	readFrame(t, conn)

	writeRaw(t, conn, `{"type":"test"}`)
	f := readFrame(t, conn)
	if f.Kind() != TypeTestResponse {
		t.Fatalf("type = %q", f.Kind())
	}
	if f.Message != "Test successful! WebSocket is working." {
		t.Errorf("message = %q", f.Message)
	}
}

func TestServerMalformedFrame(t *testing.T) {
	srv := newServerFixture(t, ServerConfig{})
	conn := dialRelay(t, srv, "")
	readFrame(t, conn)

	writeRaw(t, conn, `this is not json`)
	f := readFrame(t, conn)
	if f.Kind() != TypeError || f.Error != "Message processing failed" {
		t.Errorf("error frame = %+v", f)
	}

	// Connection keeps working afterwards.
	writeRaw(t, conn, `{"type":"ping"}`)
	if f := readFrame(t, conn); f.Kind() != TypePong {
		t.Errorf("post-error frame = %q", f.Kind())
	}
}

func TestServerUnknownEchoedBack(t *testing.T) {
	srv := newServerFixture(t, ServerConfig{})
	conn := dialRelay(t, srv, "")
	readFrame(t, conn)

	writeRaw(t, conn, `{"type":"mystery"}`)
	f := readFrame(t, conn)
	if f.Kind() != TypeUnknownResponse || f.ReceivedType != "mystery" {
		t.Errorf("unknown response = %+v", f)
	}

	// The client handshake has no dedicated handler and round-trips the same way.
	writeRaw(t, conn, `{"type":"connected","userId":"u-1"}`)
	f = readFrame(t, conn)
	if f.Kind() != TypeUnknownResponse || f.ReceivedType != TypeConnected {
		t.Errorf("handshake response = %+v", f)
	}

	// Legacy event-keyed frames resolve through the same fallback.
	writeRaw(t, conn, `{"event":"legacy_thing"}`)
	f = readFrame(t, conn)
	if f.ReceivedType != "legacy_thing" {
		t.Errorf("legacy received type = %q", f.ReceivedType)
	}
}

func TestServerKeepalivePing(t *testing.T) {
	srv := newServerFixture(t, ServerConfig{KeepaliveInterval: 50 * time.Millisecond})
	conn := dialRelay(t, srv, "")
	readFrame(t, conn)

	f := readFrame(t, conn)
	if f.Kind() != TypePing || f.Timestamp == 0 {
		t.Errorf("keepalive = %+v", f)
	}
}

func TestServerHealthEndpoint(t *testing.T) {
	srv := newServerFixture(t, ServerConfig{})

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" || body["service"] != "relay" {
		t.Errorf("health body = %v", body)
	}
	if body["timestamp"] == "" {
		t.Error("missing timestamp")
	}
}

func TestServerUpgradeRequired(t *testing.T) {
	srv := newServerFixture(t, ServerConfig{})

	resp, err := http.Post(srv.URL, "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Fatalf("status = %d, want 426", resp.StatusCode)
	}
	if got := resp.Header.Get("Upgrade"); got != "websocket" {
		t.Errorf("Upgrade header = %q", got)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] == "" {
		t.Error("missing error body")
	}
}

func TestDefaultKeepaliveInterval(t *testing.T) {
	s := NewServer(ServerConfig{})
	if s.keepalive != 20*time.Second {
		t.Errorf("keepalive = %v, want 20s", s.keepalive)
	}
}
