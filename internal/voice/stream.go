package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxgate/voxgate/internal/observability"
	"github.com/voxgate/voxgate/internal/providers"
	"github.com/voxgate/voxgate/internal/relay"
)

// StreamPathPrefix is where the per-call media websocket is mounted. The
// LaML <Connect><Stream> URL handed to the telephony provider points here.
const StreamPathPrefix = "/ws/call/"

// Synthesizer renders reply text to audio. *providers.OpenAI satisfies it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// Transcriber converts an audio chunk to text. *providers.Deepgram
// satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType string) (*providers.Transcription, error)
}

// StreamConfig holds dependencies for the call media endpoint.
type StreamConfig struct {
	// Manager owns the live sessions the stream attaches to (required).
	Manager *Manager

	// Synthesizer adds an audio_response frame after each reply. Optional.
	Synthesizer Synthesizer

	// Transcriber enables inbound audio frames. Optional; without it audio
	// frames are answered with an error frame.
	Transcriber Transcriber

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// StreamHandler serves the per-call media websocket. One connection carries
// the conversation for one live call: transcript or audio frames come in,
// the assistant reply (and synthesized audio when configured) goes out.
// Connections for unknown calls are rejected before the upgrade.
type StreamHandler struct {
	manager     *Manager
	synthesizer Synthesizer
	transcriber Transcriber
	logger      *slog.Logger
	metrics     *observability.Metrics
	upgrader    websocket.Upgrader
}

// NewStreamHandler builds the media endpoint.
func NewStreamHandler(cfg StreamConfig) (*StreamHandler, error) {
	if cfg.Manager == nil {
		return nil, errors.New("voice: call manager is required")
	}
	h := &StreamHandler{
		manager:     cfg.Manager,
		synthesizer: cfg.Synthesizer,
		transcriber: cfg.Transcriber,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h, nil
}

// ServeHTTP implements http.Handler for StreamPathPrefix.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	callID := strings.TrimPrefix(r.URL.Path, StreamPathPrefix)
	if callID == "" || strings.Contains(callID, "/") {
		jsonStatus(w, http.StatusNotFound, map[string]string{"error": "Unknown call"})
		return
	}
	if _, ok := h.manager.GetSession(callID); !ok {
		jsonStatus(w, http.StatusNotFound, map[string]string{"error": "Unknown call"})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("stream upgrade failed", "call_id", callID, "error", err)
		return
	}

	sc := &streamConn{
		handler: h,
		conn:    conn,
		callID:  callID,
		logger:  h.logger.With("call_id", callID),
	}
	sc.run(r.Context())
}

func jsonStatus(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// streamConn is one attached media connection.
type streamConn struct {
	handler *StreamHandler
	conn    *websocket.Conn
	callID  string
	logger  *slog.Logger

	writeMu sync.Mutex
}

func (sc *streamConn) run(ctx context.Context) {
	sc.logger.Info("call stream attached")
	if sc.handler.metrics != nil {
		sc.handler.metrics.RelayConnections.WithLabelValues("stream").Inc()
	}

	sc.send(&relay.Frame{
		Type:      relay.TypeConnected,
		CallID:    sc.callID,
		Timestamp: time.Now().UnixMilli(),
	})

	for {
		_, data, err := sc.conn.ReadMessage()
		if err != nil {
			break
		}
		sc.handleFrame(ctx, data)
	}

	sc.conn.Close()
	if sc.handler.metrics != nil {
		sc.handler.metrics.RelayConnections.WithLabelValues("stream").Dec()
	}
	sc.logger.Info("call stream detached")
}

func (sc *streamConn) handleFrame(ctx context.Context, data []byte) {
	frame, err := relay.DecodeFrame(data)
	if err != nil {
		sc.logger.Warn("stream frame parse failed", "error", err)
		sc.sendError("Message processing failed", err.Error())
		return
	}
	if sc.handler.metrics != nil {
		sc.handler.metrics.RelayFrames.WithLabelValues(frame.Kind(), "in").Inc()
	}

	switch frame.Kind() {
	case relay.TypePing:
		sc.send(&relay.Frame{Type: relay.TypePong, Timestamp: time.Now().UnixMilli()})

	case relay.TypePong:

	case relay.TypeTranscript:
		// Interim fragments only update the running transcript; the
		// reply fires once the utterance is final.
		if !frame.IsFinal {
			if err := sc.manager().RecordUtterance(sc.callID, SpeakerUser, frame.Text, false); err != nil {
				sc.logger.Warn("interim transcript dropped", "error", err)
			}
			return
		}
		if frame.Text == "" {
			return
		}
		sc.reply(ctx, frame.Text)

	case relay.TypeTextInput:
		if frame.Text == "" {
			return
		}
		sc.reply(ctx, frame.Text)

	case relay.TypeAudio:
		sc.handleAudio(ctx, frame)

	default:
		sc.logger.Debug("stream frame ignored", "type", frame.Kind())
	}
}

// handleAudio transcribes an inbound audio chunk and runs the reply loop on
// the resulting text.
func (sc *streamConn) handleAudio(ctx context.Context, frame *relay.Frame) {
	if sc.handler.transcriber == nil {
		sc.sendError("Transcription is not configured", "")
		return
	}

	audio, err := base64.StdEncoding.DecodeString(frame.Audio)
	if err != nil {
		sc.sendError("Invalid audio payload", err.Error())
		return
	}

	result, err := sc.handler.transcriber.Transcribe(ctx, audio, "audio/wav")
	if err != nil {
		sc.logger.Error("stream transcription failed", "error", err)
		sc.sendError("Transcription failed", "")
		return
	}
	if result.Text == "" {
		return
	}

	// Surface the recognized text so the far side sees what was heard.
	sc.send(&relay.Frame{
		Type:      relay.TypeTranscript,
		CallID:    sc.callID,
		Text:      result.Text,
		IsFinal:   true,
		Timestamp: time.Now().UnixMilli(),
	})
	sc.reply(ctx, result.Text)
}

// reply generates the assistant's answer, sends it as ai_response, and
// follows with synthesized audio when a synthesizer is configured.
func (sc *streamConn) reply(ctx context.Context, userText string) {
	text, err := sc.manager().GenerateReply(ctx, sc.callID, userText)
	if err != nil {
		sc.logger.Error("reply generation failed", "error", err)
		sc.sendError("Reply generation failed", "")
		return
	}

	sc.send(&relay.Frame{
		Type:      relay.TypeAIResponse,
		CallID:    sc.callID,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	})

	if sc.handler.synthesizer == nil {
		return
	}
	audio, err := sc.handler.synthesizer.Synthesize(ctx, text, "")
	if err != nil {
		sc.logger.Warn("reply synthesis failed", "error", err)
		return
	}
	sc.send(&relay.Frame{
		Type:      relay.TypeAudioResponse,
		CallID:    sc.callID,
		Audio:     base64.StdEncoding.EncodeToString(audio),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (sc *streamConn) manager() *Manager {
	return sc.handler.manager
}

func (sc *streamConn) sendError(message, details string) {
	sc.send(&relay.Frame{
		Type:      relay.TypeError,
		Error:     message,
		Details:   details,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (sc *streamConn) send(f *relay.Frame) {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	if err := sc.conn.WriteJSON(f); err != nil {
		sc.logger.Warn("stream write failed", "type", f.Kind(), "error", err)
		return
	}
	if sc.handler.metrics != nil {
		sc.handler.metrics.RelayFrames.WithLabelValues(f.Kind(), "out").Inc()
	}
}
