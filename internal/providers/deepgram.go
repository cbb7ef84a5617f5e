package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/voxgate/voxgate/internal/observability"
	"github.com/voxgate/voxgate/internal/retry"
)

const deepgramBaseURL = "https://api.deepgram.com"

// DeepgramConfig holds configuration for the transcription provider.
type DeepgramConfig struct {
	// APIKey is the Deepgram API key (required).
	APIKey string

	// Model selects the transcription model. Default "nova-2".
	Model string

	// Language is the expected audio language. Default "en".
	Language string

	// BaseURL overrides the API endpoint. Tests point it at a local server.
	BaseURL string

	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *observability.Metrics
}

// Deepgram transcribes recorded audio over the pre-recorded HTTP API.
// Safe for concurrent use.
type Deepgram struct {
	apiKey   string
	model    string
	language string
	baseURL  string

	client  *http.Client
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewDeepgram creates the provider.
func NewDeepgram(cfg DeepgramConfig) (*Deepgram, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("deepgram: API key is required")
	}

	d := &Deepgram{
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		language: cfg.Language,
		baseURL:  cfg.BaseURL,
		client:   cfg.HTTPClient,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
	if d.model == "" {
		d.model = "nova-2"
	}
	if d.language == "" {
		d.language = "en"
	}
	if d.baseURL == "" {
		d.baseURL = deepgramBaseURL
	}
	if d.client == nil {
		d.client = &http.Client{Timeout: 60 * time.Second}
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d, nil
}

// Transcription is the flattened result of one transcription request.
type Transcription struct {
	Text       string
	Confidence float64
}

// Transcribe sends audio to the /v1/listen endpoint and returns the first
// alternative of the first channel. Transient failures are retried.
func (d *Deepgram) Transcribe(ctx context.Context, audio []byte, contentType string) (*Transcription, error) {
	if len(audio) == 0 {
		return nil, errors.New("deepgram: audio is required")
	}
	if contentType == "" {
		contentType = "audio/wav"
	}

	q := url.Values{
		"model":        {d.model},
		"language":     {d.language},
		"smart_format": {"true"},
	}
	reqURL := d.baseURL + "/v1/listen?" + q.Encode()

	body, err := retry.DoWithValue(ctx, retry.Exponential(3, 300*time.Millisecond, 3*time.Second), func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(audio))
		if err != nil {
			return nil, retry.Permanent(err)
		}
		req.Header.Set("Authorization", "Token "+d.apiKey)
		req.Header.Set("Content-Type", contentType)

		resp, err := d.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		out, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(out))
		}
		if resp.StatusCode >= 400 {
			return nil, retry.Permanent(fmt.Errorf("API error (%d): %s", resp.StatusCode, string(out)))
		}
		return out, nil
	})
	if err != nil {
		d.observe("error")
		return nil, fmt.Errorf("deepgram: transcribe: %w", err)
	}

	var parsed struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string  `json:"transcript"`
					Confidence float64 `json:"confidence"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		d.observe("error")
		return nil, fmt.Errorf("deepgram: parse response: %w", err)
	}
	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		d.observe("error")
		return nil, errors.New("deepgram: empty transcription response")
	}

	alt := parsed.Results.Channels[0].Alternatives[0]
	d.observe("ok")
	return &Transcription{Text: alt.Transcript, Confidence: alt.Confidence}, nil
}

func (d *Deepgram) observe(status string) {
	if d.metrics != nil {
		d.metrics.ProviderCalls.WithLabelValues("deepgram", status).Inc()
	}
}
