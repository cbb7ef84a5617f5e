package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voxgate/voxgate/internal/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.HTTPPort = 1 // replaced below; Validate rejects 0
	cfg.Database.Driver = "memory"
	return cfg
}

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	cfg := testConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := newServer(cfg, logger, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	// Port 0 lets the kernel pick; Addr reports the bound port.
	cfg.Server.HTTPPort = 0
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			t.Errorf("Stop: %v", err)
		}
	})
	return srv, "http://" + srv.Addr()
}

func TestServerServesAPIAndRelay(t *testing.T) {
	_, base := startTestServer(t)

	resp, err := http.Get(base + "/api/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	var health map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("health = %v", health)
	}

	// Plain GET on the relay path answers its health probe.
	resp2, err := http.Get(base + "/ws")
	if err != nil {
		t.Fatalf("relay request: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("relay health status = %d", resp2.StatusCode)
	}

	resp3, err := http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("metrics request: %v", err)
	}
	defer resp3.Body.Close()
	if resp3.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp3.StatusCode)
	}
}

func TestServerWithoutTelephony(t *testing.T) {
	srv, base := startTestServer(t)
	if srv.callManager != nil {
		t.Fatal("call manager should be nil without credentials")
	}

	resp, err := http.Post(base+"/api/make-call", "application/json", nil)
	if err != nil {
		t.Fatalf("make-call request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("make-call status = %d, want 503", resp.StatusCode)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "postgres"
	if _, err := newServer(cfg, nil, prometheus.NewRegistry()); err == nil {
		t.Fatal("expected error for unknown driver")
	}

	if _, err := newServer(nil, nil, prometheus.NewRegistry()); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestTelephonyEnabledWithCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.Providers.SignalWire = config.SignalWireConfig{
		ProjectID:   "proj",
		Token:       "tok",
		Space:       "example.signalwire.com",
		PhoneNumber: "+15550001111",
	}
	cfg.Server.PublicURL = "https://voxgate.example.com"

	srv, err := newServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	if srv.callManager == nil {
		t.Fatal("call manager should be wired when signalwire is configured")
	}
}

// The per-call media path must be mounted alongside the relay whenever
// telephony is up: a dialed call's stream URL points at /ws/call/<id>.
func TestCallStreamPathMounted(t *testing.T) {
	cfg := testConfig()
	cfg.Providers.SignalWire = config.SignalWireConfig{
		ProjectID:   "proj",
		Token:       "tok",
		Space:       "example.signalwire.com",
		PhoneNumber: "+15550001111",
	}
	cfg.Server.PublicURL = "https://voxgate.example.com"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := newServer(cfg, logger, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	cfg.Server.HTTPPort = 0
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
	})
	base := "http://" + srv.Addr()

	// An unknown call id gets the handler's JSON rejection, not the mux's
	// bare 404 — proof the route is actually served.
	resp, err := http.Get(base + "/ws/call/no-such-call")
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("stream status = %d, want 404", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q, want application/json", ct)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "Unknown call" {
		t.Errorf("body = %v", body)
	}
}
