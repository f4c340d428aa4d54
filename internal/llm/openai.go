package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/frontdesk/internal/backoff"
	"github.com/haasonsaas/frontdesk/internal/conversation"
	"github.com/haasonsaas/frontdesk/internal/observability"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout bounds one Complete call, retries included.
	DefaultTimeout = 20 * time.Second

	// DefaultMaxAttempts is the number of tries for retryable failures.
	DefaultMaxAttempts = 3
)

// OpenAIConfig configures the OpenAI completion client.
type OpenAIConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API root, for OpenAI-compatible servers.
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
}

// Option customizes an OpenAIClient.
type Option func(*OpenAIClient)

// WithLogger sets the logger.
func WithLogger(logger *observability.Logger) Option {
	return func(c *OpenAIClient) { c.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(c *OpenAIClient) { c.metrics = metrics }
}

// WithTracer sets the tracer.
func WithTracer(tracer *observability.Tracer) Option {
	return func(c *OpenAIClient) { c.tracer = tracer }
}

// WithRetryPolicy overrides the backoff between attempts.
func WithRetryPolicy(policy backoff.Policy) Option {
	return func(c *OpenAIClient) { c.policy = policy }
}

// OpenAIClient implements Completer with the OpenAI chat completions API,
// using the function-calling fields (functions / function_call) so that
// function results travel back as "function" role messages.
//
// OpenAIClient is safe for concurrent use.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	timeout     time.Duration
	maxAttempts int
	policy      backoff.Policy

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// NewOpenAIClient creates a completion client.
func NewOpenAIClient(cfg OpenAIConfig, opts ...Option) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("llm: openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	c := &OpenAIClient{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		policy:      backoff.LLMPolicy(),
		logger:      observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Complete sends req and returns the first choice.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	start := time.Now()
	ctx, span := c.tracer.TraceLLMRequest(ctx, c.model, len(req.Functions), len(req.Messages))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	chatReq := c.buildRequest(req)
	resp, err := backoff.Retry(ctx, c.policy, c.maxAttempts, func(ctx context.Context, attempt int) (openai.ChatCompletionResponse, error) {
		resp, err := c.client.CreateChatCompletion(ctx, chatReq)
		if err == nil {
			return resp, nil
		}
		if !IsRetryable(err) {
			return resp, backoff.Permanent(err)
		}
		if attempt < c.maxAttempts {
			c.logger.Warn(ctx, "completion request failed, retrying", "attempt", attempt, "error", err)
		}
		return resp, err
	})
	if err != nil {
		c.tracer.RecordError(span, err)
		c.metrics.RecordLLMRequest(c.model, "error", time.Since(start).Seconds(), 0, 0)
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	c.metrics.RecordLLMRequest(c.model, "success", time.Since(start).Seconds(),
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}
	choice := resp.Choices[0]
	out := &Completion{
		Content:          choice.Message.Content,
		FinishReason:     string(choice.FinishReason),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	if fc := choice.Message.FunctionCall; fc != nil && fc.Name != "" {
		out.FunctionCall = &conversation.FunctionCall{Name: fc.Name, Arguments: fc.Arguments}
	}
	return out, nil
}

func (c *OpenAIClient) buildRequest(req Request) openai.ChatCompletionRequest {
	chatReq := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toOpenAIMessages(req.Messages),
	}
	if len(req.Functions) > 0 {
		defs := make([]openai.FunctionDefinition, 0, len(req.Functions))
		for _, fn := range req.Functions {
			defs = append(defs, openai.FunctionDefinition{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  fn.Parameters,
			})
		}
		chatReq.Functions = defs
		chatReq.FunctionCall = "auto"
	}
	return chatReq
}

func toOpenAIMessages(history conversation.History) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, msg := range history {
		switch {
		case msg.IsFunctionCall():
			out = append(out, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				FunctionCall: &openai.FunctionCall{
					Name:      msg.FunctionCall.Name,
					Arguments: msg.FunctionCall.Arguments,
				},
			})
		case msg.Role == conversation.RoleFunction:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleFunction,
				Name:    msg.Name,
				Content: msg.Content,
			})
		default:
			out = append(out, openai.ChatCompletionMessage{
				Role:    string(msg.Role),
				Content: msg.Content,
			})
		}
	}
	return out
}
