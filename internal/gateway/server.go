// Package gateway assembles the voxgate server: storage, auth, providers,
// the call manager, the verification engine, the websocket relay, and the
// REST API, plus the background sweeps that keep their registries bounded.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/voxgate/voxgate/internal/auth"
	"github.com/voxgate/voxgate/internal/config"
	"github.com/voxgate/voxgate/internal/observability"
	"github.com/voxgate/voxgate/internal/providers"
	"github.com/voxgate/voxgate/internal/relay"
	"github.com/voxgate/voxgate/internal/storage"
	"github.com/voxgate/voxgate/internal/verify"
	"github.com/voxgate/voxgate/internal/voice"
	"github.com/voxgate/voxgate/internal/web"
)

// staleCallAge is how long a live call session may sit without a terminal
// webhook before the sweep discards it.
const staleCallAge = 2 * time.Hour

// Server is the assembled gateway.
type Server struct {
	config  *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics

	stores      storage.StoreSet
	authService *auth.Service
	callManager *voice.Manager
	dialer      *providers.SignalWire
	speech      *providers.OpenAI
	transcriber *providers.Deepgram
	verifier    *verify.Engine
	relay       *relay.Server

	httpServer   *http.Server
	httpListener net.Listener
	sweeper      *cron.Cron
}

// New wires a server from configuration. External providers are optional:
// without SignalWire credentials the call endpoints answer 503 but the relay
// and verification surfaces still work, which is the dev-mode posture.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	return newServer(cfg, logger, prometheus.DefaultRegisterer)
}

func newServer(cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("gateway: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		})
	}

	metrics := observability.NewMetrics(reg)

	s := &Server{
		config:  cfg,
		logger:  logger,
		metrics: metrics,
	}

	if err := s.setupStorage(); err != nil {
		return nil, err
	}
	s.authService = auth.NewService(auth.Config{
		JWTSecret:   cfg.Auth.JWTSecret,
		TokenExpiry: cfg.Auth.Expiry,
	})
	if !s.authService.Enabled() {
		logger.Warn("jwt secret not configured; API auth is disabled")
	}

	if err := s.setupProviders(); err != nil {
		return nil, err
	}

	s.verifier = verify.NewEngine(verify.Config{
		CheckDelay: cfg.Verification.CheckDelay,
		SessionTTL: cfg.Verification.SessionTTL,
		Logger:     logger,
		Metrics:    metrics,
	})

	s.relay = relay.NewServer(relay.ServerConfig{
		Logger:            logger,
		Metrics:           metrics,
		KeepaliveInterval: cfg.Relay.KeepaliveInterval,
	})

	return s, nil
}

func (s *Server) setupStorage() error {
	switch s.config.Database.Driver {
	case "memory":
		s.stores = storage.NewMemoryStores()
	case "sqlite":
		stores, err := storage.OpenSQLite(s.config.Database.Path)
		if err != nil {
			return fmt.Errorf("gateway: open database: %w", err)
		}
		s.stores = stores
	default:
		return fmt.Errorf("gateway: unknown database driver %q", s.config.Database.Driver)
	}
	s.logger.Info("storage ready", "driver", s.config.Database.Driver)
	return nil
}

// setupProviders builds whichever external integrations have credentials and
// wires the call manager when telephony is available.
func (s *Server) setupProviders() error {
	if key := s.config.Providers.Deepgram.APIKey; key != "" {
		stt, err := providers.NewDeepgram(providers.DeepgramConfig{
			APIKey:  key,
			Model:   s.config.Providers.Deepgram.Model,
			Logger:  s.logger,
			Metrics: s.metrics,
		})
		if err != nil {
			return fmt.Errorf("gateway: deepgram: %w", err)
		}
		s.transcriber = stt
	}

	if key := s.config.Providers.OpenAI.APIKey; key != "" {
		client, err := providers.NewOpenAI(providers.OpenAIConfig{
			APIKey:  key,
			Model:   s.config.Providers.OpenAI.Model,
			Logger:  s.logger,
			Metrics: s.metrics,
		})
		if err != nil {
			return fmt.Errorf("gateway: openai: %w", err)
		}
		s.speech = client
	}

	if !s.config.SignalWireEnabled() {
		s.logger.Info("signalwire not configured; outbound calling disabled")
		return nil
	}

	sw := s.config.Providers.SignalWire
	dialer, err := providers.NewSignalWire(providers.SignalWireConfig{
		ProjectID:  sw.ProjectID,
		Token:      sw.Token,
		Space:      sw.Space,
		FromNumber: sw.PhoneNumber,
		Logger:     s.logger,
		Metrics:    s.metrics,
	})
	if err != nil {
		return fmt.Errorf("gateway: signalwire: %w", err)
	}
	s.dialer = dialer

	publicURL := s.config.Server.PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("http://%s:%d", s.config.Server.Host, s.config.Server.HTTPPort)
		s.logger.Warn("public_url not set; provider callbacks will use the listen address", "url", publicURL)
	}

	cfg := voice.ManagerConfig{
		Dialer:     dialer,
		Calls:      s.stores.Calls,
		Assistants: s.stores.Assistants,
		PublicURL:  publicURL,
		Logger:     s.logger,
		Metrics:    s.metrics,
	}
	// Assign only when set so the manager's nil check still works.
	if s.speech != nil {
		cfg.Replier = s.speech
	}
	manager, err := voice.NewManager(cfg)
	if err != nil {
		return fmt.Errorf("gateway: call manager: %w", err)
	}
	s.callManager = manager
	return nil
}

// Start brings up the HTTP listener and the background sweeps. It returns
// once the server is accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if err := s.startHTTPServer(); err != nil {
		return err
	}
	s.startSweeper()
	s.logger.Info("gateway started",
		"addr", s.httpListener.Addr().String(),
		"relay_path", s.config.Relay.Path,
		"telephony", s.callManager != nil,
	)
	return nil
}

func (s *Server) startHTTPServer() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.HTTPPort)

	handler, err := s.buildHandler()
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway: http listen: %w", err)
	}

	s.httpListener = listener
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()
	return nil
}

// buildHandler composes the full HTTP surface: metrics, the websocket relay,
// and the REST API with its middleware stack.
func (s *Server) buildHandler() (http.Handler, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle(s.config.Relay.Path, s.relay)

	if s.callManager != nil {
		streamCfg := voice.StreamConfig{
			Manager: s.callManager,
			Logger:  s.logger,
			Metrics: s.metrics,
		}
		if s.speech != nil {
			streamCfg.Synthesizer = s.speech
		}
		if s.transcriber != nil {
			streamCfg.Transcriber = s.transcriber
		}
		stream, err := voice.NewStreamHandler(streamCfg)
		if err != nil {
			return nil, fmt.Errorf("gateway: stream handler: %w", err)
		}
		mux.Handle(voice.StreamPathPrefix, stream)
	}

	webCfg := &web.Config{
		AuthService:  s.authService,
		Stores:       s.stores,
		CallManager:  s.callManager,
		VerifyEngine: s.verifier,
		Logger:       s.logger,
		Metrics:      s.metrics,
	}
	// Assign only when set: a nil pointer inside the interface would
	// defeat the handler's nil checks.
	if s.transcriber != nil {
		webCfg.Transcriber = s.transcriber
	}
	if s.dialer != nil {
		webCfg.WebhookVerifier = s.dialer
		webCfg.PublicURL = s.config.Server.PublicURL
	}
	apiHandler, err := web.NewHandler(webCfg)
	if err != nil {
		return nil, fmt.Errorf("gateway: api handler: %w", err)
	}
	mux.Handle("/", apiHandler.Mount())
	return mux, nil
}

// startSweeper schedules the periodic registry sweeps: finished verification
// sessions past their TTL and call sessions that never saw a terminal
// webhook.
func (s *Server) startSweeper() {
	interval := s.config.Verification.SweepInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	s.sweeper = cron.New()
	spec := fmt.Sprintf("@every %s", interval)
	_, err := s.sweeper.AddFunc(spec, func() {
		if n := s.verifier.ClearOldSessions(); n > 0 {
			s.logger.Info("cleared old verification sessions", "count", n)
		}
		if s.callManager != nil {
			if n := s.callManager.CleanupStaleCalls(staleCallAge); n > 0 {
				s.logger.Warn("dropped stale call sessions", "count", n)
			}
		}
	})
	if err != nil {
		// "@every <duration>" with a positive interval always parses.
		s.logger.Error("sweep schedule rejected", "spec", spec, "error", err)
		return
	}
	s.sweeper.Start()
}

// Addr returns the bound listen address, useful when the configured port
// was 0.
func (s *Server) Addr() string {
	if s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// Stop shuts the server down: the listener drains, the sweeper stops, and
// storage closes.
func (s *Server) Stop(ctx context.Context) error {
	if s.sweeper != nil {
		s.sweeper.Stop()
	}

	var firstErr error
	if s.httpServer != nil {
		shutdownCtx := ctx
		var cancel context.CancelFunc
		if shutdownCtx == nil {
			shutdownCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
		}
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http server shutdown error", "error", err)
			firstErr = err
		}
		s.httpServer = nil
		s.httpListener = nil
	}

	if err := s.stores.Close(); err != nil {
		s.logger.Warn("storage close error", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	s.logger.Info("gateway stopped")
	return firstErr
}
