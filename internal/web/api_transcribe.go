package web

import (
	"io"
	"net/http"
)

// maxAudioBytes caps an uploaded recording at 10 MiB, which covers several
// minutes of compressed call audio.
const maxAudioBytes = 10 << 20

// apiTranscribe handles POST /api/transcribe. The raw audio is the request
// body; the Content-Type header names its format.
func (h *Handler) apiTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.config.Transcriber == nil {
		h.jsonError(w, "Transcription is not configured", http.StatusServiceUnavailable)
		return
	}

	audio, err := io.ReadAll(io.LimitReader(r.Body, maxAudioBytes+1))
	if err != nil {
		h.jsonError(w, "Failed to read audio", http.StatusBadRequest)
		return
	}
	if len(audio) == 0 {
		h.jsonError(w, "Audio body is required", http.StatusBadRequest)
		return
	}
	if len(audio) > maxAudioBytes {
		h.jsonError(w, "Audio exceeds the 10MB limit", http.StatusRequestEntityTooLarge)
		return
	}

	result, err := h.config.Transcriber.Transcribe(r.Context(), audio, r.Header.Get("Content-Type"))
	if err != nil {
		h.config.Logger.Error("transcription failed", "error", err)
		h.jsonError(w, "Transcription failed", http.StatusBadGateway)
		return
	}

	h.jsonResponse(w, map[string]any{
		"text":       result.Text,
		"confidence": result.Confidence,
	})
}
