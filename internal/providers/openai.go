package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voxgate/voxgate/internal/observability"
	"github.com/voxgate/voxgate/internal/retry"
)

// DefaultChatModel is used when neither the request nor the assistant names
// a model.
const DefaultChatModel = openai.GPT4oMini

// OpenAIConfig holds configuration for the OpenAI provider.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// Model is the fallback chat model.
	Model string

	// BaseURL overrides the API endpoint (optional, for proxies and tests).
	BaseURL string

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// OpenAI wraps chat completion and speech synthesis. Safe for concurrent use.
type OpenAI struct {
	client       *openai.Client
	defaultModel string
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewOpenAI creates the provider.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultChatModel
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAI{
		client:       openai.NewClientWithConfig(clientConfig),
		defaultModel: model,
		logger:       logger,
		metrics:      cfg.Metrics,
	}, nil
}

// ChatMessage is one turn of conversation history.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatRequest asks for an assistant reply to the latest user utterance.
type ChatRequest struct {
	Model        string
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
	History      []ChatMessage
	UserText     string
}

// Reply runs a chat completion and returns the assistant's text. Transient
// API failures are retried.
func (p *OpenAI) Reply(ctx context.Context, req *ChatRequest) (string, error) {
	if req.UserText == "" {
		return "", errors.New("openai: user text is required")
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserText,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}

	resp, err := retry.DoWithValue(ctx, retry.Exponential(3, 500*time.Millisecond, 5*time.Second),
		func() (openai.ChatCompletionResponse, error) {
			resp, err := p.client.CreateChatCompletion(ctx, chatReq)
			if err != nil && !isRetryableAPIError(err) {
				return resp, retry.Permanent(err)
			}
			return resp, err
		})
	if err != nil {
		p.observe("error")
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		p.observe("error")
		return "", errors.New("openai: empty completion response")
	}

	p.observe("ok")
	return resp.Choices[0].Message.Content, nil
}

// Synthesize converts text to MP3 audio.
func (p *OpenAI) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("openai: text is required")
	}

	v := openai.SpeechVoice(voice)
	if voice == "" {
		v = openai.VoiceAlloy
	}

	resp, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          v,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		p.observe("error")
		return nil, fmt.Errorf("openai: speech synthesis: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		p.observe("error")
		return nil, fmt.Errorf("openai: read audio: %w", err)
	}

	p.observe("ok")
	return audio, nil
}

func (p *OpenAI) observe(status string) {
	if p.metrics != nil {
		p.metrics.ProviderCalls.WithLabelValues("openai", status).Inc()
	}
}

func isRetryableAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{"rate limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded", "connection refused"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
