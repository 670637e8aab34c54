package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"neural-garden/internal/config"
	"neural-garden/internal/constants"
	"neural-garden/internal/domain"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

// JudgeClient talks to an OpenAI-compatible chat completions endpoint.
type JudgeClient struct {
	apiKey     string
	baseURL    string
	model      string
	structured bool
	client     *fasthttp.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

type JudgeOption func(*JudgeClient)

func WithBaseURL(url string) JudgeOption {
	return func(c *JudgeClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

func WithModel(model string) JudgeOption {
	return func(c *JudgeClient) {
		c.model = model
	}
}

func WithStructuredVerdicts(enabled bool) JudgeOption {
	return func(c *JudgeClient) {
		c.structured = enabled
	}
}

func WithRateLimit(rps float64, burst int) JudgeOption {
	return func(c *JudgeClient) {
		limit := rate.Limit(rps)
		if rps <= 0 {
			limit = rate.Inf
		}
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

func WithLogger(logger zerolog.Logger) JudgeOption {
	return func(c *JudgeClient) {
		c.logger = logger
	}
}

func NewJudgeClient(apiKey string, opts ...JudgeOption) *JudgeClient {
	c := &JudgeClient{
		apiKey:  apiKey,
		baseURL: constants.DefaultJudgeBaseURL,
		model:   constants.DefaultJudgeModel,
		client:  newHTTPClient(constants.JudgeTimeout),
		limiter: rate.NewLimiter(rate.Limit(constants.DefaultJudgeRPS), constants.DefaultJudgeBurst),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func ProvideJudgeClient(cfg *config.Config, logger zerolog.Logger) *JudgeClient {
	return NewJudgeClient(cfg.JudgeAPIKey,
		WithBaseURL(cfg.JudgeBaseURL),
		WithModel(cfg.JudgeModel),
		WithStructuredVerdicts(cfg.JudgeStructured),
		WithRateLimit(cfg.JudgeRPS, constants.DefaultJudgeBurst),
		WithLogger(logger),
	)
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Messages    []ChatMessage
	Temperature *float64
	// Schema requests a strict json_schema response format when set.
	SchemaName string
	Schema     map[string]any
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

func (c *JudgeClient) Structured() bool {
	return c.structured
}

func (c *JudgeClient) Complete(ctx context.Context, in ChatRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", domain.ExternalService("judge rate limit wait aborted", true, err)
	}

	body := chatCompletionRequest{
		Model:       c.model,
		Messages:    in.Messages,
		Temperature: in.Temperature,
	}
	if c.structured && in.Schema != nil {
		body.ResponseFormat = &responseFormat{
			Type:       "json_schema",
			JSONSchema: jsonSchema{Name: in.SchemaName, Strict: true, Schema: in.Schema},
		}
	}

	start := time.Now()
	resp, err := doRequest[chatCompletionResponse](ctx, c.client, "judge", request{
		method:  fasthttp.MethodPost,
		url:     c.baseURL + "/chat/completions",
		headers: map[string]string{"Authorization": "Bearer " + c.apiKey},
		body:    body,
	})
	if err != nil {
		c.logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("judge request failed")
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", domain.ExternalService("judge returned no choices", false, errors.New("no choices returned"))
	}

	c.logger.Debug().
		Str("model", c.model).
		Dur("elapsed", time.Since(start)).
		Msg("judge replied")

	return resp.Choices[0].Message.Content, nil
}
