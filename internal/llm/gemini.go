package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/teemow/inboxagent/internal/logging"
	"github.com/teemow/inboxagent/internal/retry"
)

// DefaultGeminiModel is used when GeminiConfig.Model is empty.
const DefaultGeminiModel = "gemini-2.5-flash"

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("empty response from model")

// GeminiConfig configures the Gemini inferer.
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int32

	// BaseURL and HTTPClient override the API endpoint, mainly for tests.
	BaseURL    string
	HTTPClient *http.Client
}

// Gemini is an Inferer backed by the Google Gen AI API.
type Gemini struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
	policy retry.Policy
	logger logging.Logger
}

var _ Inferer = (*Gemini)(nil)

// NewGemini creates a Gemini inferer. Transient API failures are retried
// according to policy.
func NewGemini(ctx context.Context, cfg GeminiConfig, policy retry.Policy, logger logging.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(cfg.Temperature),
	}
	if cfg.MaxOutputTokens > 0 {
		gc.MaxOutputTokens = cfg.MaxOutputTokens
	}

	return &Gemini{
		client: client,
		model:  cfg.Model,
		config: gc,
		policy: policy,
		logger: logger,
	}, nil
}

// Infer implements Inferer.
func (g *Gemini) Infer(ctx context.Context, prompt string) (string, error) {
	notify := func(err error, wait time.Duration) {
		g.logger.Warn("inference failed, retrying",
			logging.Operation("llm.infer"),
			"model", g.model,
			"wait", wait,
			logging.Err(err))
	}
	return retry.Value(ctx, g.policy, notify, func(ctx context.Context) (string, error) {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), g.config)
		if err != nil {
			err = fmt.Errorf("gemini generate content: %w", err)
			if isTransientAPIError(err) {
				return "", retry.Transient(err)
			}
			return "", err
		}
		text := strings.TrimSpace(resp.Text())
		if text == "" {
			return "", ErrEmptyResponse
		}
		return text, nil
	})
}

// Model returns the configured model name.
func (g *Gemini) Model() string {
	return g.model
}

func isTransientAPIError(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code == http.StatusTooManyRequests || apiErrPtr.Code >= 500
	}
	return retry.IsTransient(err)
}
