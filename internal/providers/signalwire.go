// Package providers holds the outbound telephony and speech integrations:
// SignalWire for call control, OpenAI for chat and speech synthesis, and
// Deepgram for transcription.
package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/voxgate/voxgate/internal/observability"
	"github.com/voxgate/voxgate/internal/retry"
)

// SignalWireConfig holds credentials and addressing for the LaML API.
type SignalWireConfig struct {
	// ProjectID is the SignalWire project identifier (required).
	ProjectID string

	// Token is the API token (required).
	Token string

	// Space is the subdomain of the SignalWire space (required).
	Space string

	// FromNumber is the caller id for outbound calls (required).
	FromNumber string

	// BaseURL overrides the API endpoint. Tests point it at a local server.
	BaseURL string

	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *observability.Metrics
}

// SignalWire drives outbound calls through the LaML REST API. Safe for
// concurrent use.
type SignalWire struct {
	projectID  string
	token      string
	fromNumber string
	baseURL    string

	client  *http.Client
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewSignalWire validates cfg and builds the provider.
func NewSignalWire(cfg SignalWireConfig) (*SignalWire, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("signalwire: project id is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("signalwire: token is required")
	}
	if cfg.Space == "" && cfg.BaseURL == "" {
		return nil, errors.New("signalwire: space is required")
	}
	if cfg.FromNumber == "" {
		return nil, errors.New("signalwire: from number is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.signalwire.com", cfg.Space)
	}

	p := &SignalWire{
		projectID:  cfg.ProjectID,
		token:      cfg.Token,
		fromNumber: cfg.FromNumber,
		baseURL:    fmt.Sprintf("%s/api/laml/2010-04-01/Accounts/%s", baseURL, cfg.ProjectID),
		client:     cfg.HTTPClient,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: 30 * time.Second}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// CallRequest describes one outbound call.
type CallRequest struct {
	To string

	// Greeting, when set, is spoken before the media stream connects.
	Greeting string

	// StreamURL is the websocket endpoint the call's audio is bridged to.
	StreamURL string

	// StatusCallbackURL receives call lifecycle webhooks.
	StatusCallbackURL string
}

// CallResult is the provider's acknowledgement of an initiated call.
type CallResult struct {
	SID    string
	Status string
}

// InitiateCall places an outbound call with inline LaML connecting the
// answered leg to the stream endpoint. Transient API failures are retried.
func (p *SignalWire) InitiateCall(ctx context.Context, req *CallRequest) (*CallResult, error) {
	if req.To == "" {
		return nil, errors.New("signalwire: destination number is required")
	}
	if req.StreamURL == "" {
		return nil, errors.New("signalwire: stream url is required")
	}

	params := url.Values{
		"To":    {req.To},
		"From":  {p.fromNumber},
		"Twiml": {buildCallLaML(req.Greeting, req.StreamURL)},
	}
	if req.StatusCallbackURL != "" {
		params.Set("StatusCallback", req.StatusCallbackURL)
		params.Set("StatusCallbackEvent", "initiated,ringing,answered,completed")
		params.Set("StatusCallbackMethod", "POST")
	}

	body, err := p.apiRequest(ctx, "/Calls.json", params)
	if err != nil {
		p.observe("error")
		return nil, fmt.Errorf("signalwire: initiate call: %w", err)
	}

	var resp struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		p.observe("error")
		return nil, fmt.Errorf("signalwire: parse response: %w", err)
	}

	p.observe("ok")
	p.logger.Info("outbound call initiated", "to", req.To, "provider_call_id", resp.SID)
	return &CallResult{SID: resp.SID, Status: resp.Status}, nil
}

// HangupCall terminates an in-flight call. A 404 means the call already
// ended and is not an error.
func (p *SignalWire) HangupCall(ctx context.Context, providerCallID string) error {
	params := url.Values{"Status": {"completed"}}
	_, err := p.apiRequest(ctx, fmt.Sprintf("/Calls/%s.json", providerCallID), params)
	if err != nil && !strings.Contains(err.Error(), "404") {
		p.observe("error")
		return fmt.Errorf("signalwire: hangup call: %w", err)
	}
	p.observe("ok")
	return nil
}

// VerifyWebhook checks the HMAC-SHA1 request signature: the full URL
// concatenated with the sorted form parameters, keyed by the API token.
func (p *SignalWire) VerifyWebhook(signature, fullURL, body string) (bool, error) {
	if signature == "" {
		return false, nil
	}

	params, err := url.ParseQuery(body)
	if err != nil {
		return false, fmt.Errorf("signalwire: parse webhook body: %w", err)
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sigString := fullURL
	for _, k := range keys {
		for _, v := range params[k] {
			sigString += k + v
		}
	}

	mac := hmac.New(sha1.New, []byte(p.token))
	mac.Write([]byte(sigString))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected)), nil
}

// StatusEvent is one parsed call-status webhook.
type StatusEvent struct {
	CallSID string
	Status  string
	From    string
	To      string
}

// ParseStatusWebhook extracts the call status fields from a webhook form
// post. CallSid is mandatory; a missing status maps to "unknown".
func ParseStatusWebhook(form url.Values) (*StatusEvent, error) {
	sid := form.Get("CallSid")
	if sid == "" {
		return nil, errors.New("signalwire: webhook missing CallSid")
	}
	status := strings.ToLower(form.Get("CallStatus"))
	if status == "" {
		status = "unknown"
	}
	return &StatusEvent{
		CallSID: sid,
		Status:  status,
		From:    form.Get("From"),
		To:      form.Get("To"),
	}, nil
}

func buildCallLaML(greeting, streamURL string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n<Response>\n")
	if greeting != "" {
		fmt.Fprintf(&b, "  <Say voice=\"alice\">%s</Say>\n", escapeXML(greeting))
	}
	fmt.Fprintf(&b, "  <Connect>\n    <Stream url=\"%s\" />\n  </Connect>\n", escapeXML(streamURL))
	b.WriteString("</Response>")
	return b.String()
}

// apiRequest posts a form to the LaML API with basic auth. Network errors
// and 5xx responses are retried; 4xx responses are terminal.
func (p *SignalWire) apiRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	reqURL := p.baseURL + endpoint
	encoded := params.Encode()

	return retry.DoWithValue(ctx, retry.Exponential(3, 200*time.Millisecond, 2*time.Second), func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(encoded))
		if err != nil {
			return nil, retry.Permanent(err)
		}
		req.SetBasicAuth(p.projectID, p.token)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
		}
		if resp.StatusCode >= 400 {
			return nil, retry.Permanent(fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body)))
		}
		return body, nil
	})
}

func (p *SignalWire) observe(status string) {
	if p.metrics != nil {
		p.metrics.ProviderCalls.WithLabelValues("signalwire", status).Inc()
	}
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}
