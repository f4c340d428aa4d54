// Package turn runs one caller turn: a completion over the windowed history,
// at most one function call serviced through the catalog, and a second
// completion that phrases the function result for the caller.
package turn

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/haasonsaas/frontdesk/internal/conversation"
	"github.com/haasonsaas/frontdesk/internal/functions"
	"github.com/haasonsaas/frontdesk/internal/llm"
	"github.com/haasonsaas/frontdesk/internal/observability"
)

// FallbackReply is spoken whenever a turn cannot produce a model reply.
const FallbackReply = "I'm sorry, I ran into a problem looking that up. Could you please repeat that?"

// Paths a turn can take, used as the metrics label.
const (
	PathDirect   = "direct"
	PathFunction = "function"
	PathFallback = "fallback"
)

// ErrInvalidHistory is returned for a history without a leading system entry.
var ErrInvalidHistory = errors.New("turn: history must start with a system message")

// Invoker runs a model-requested function and renders its result as text.
type Invoker interface {
	Specs() []llm.FunctionSpec
	Invoke(ctx context.Context, call conversation.FunctionCall) (string, error)
}

// CueSink receives filler audio to play while the second completion runs.
type CueSink interface {
	PlayAudio(ctx context.Context, url string) error
}

// Result is the outcome of a turn.
type Result struct {
	// History is the input history plus, on the function path, the call
	// request and function result entries. The reply is not appended.
	History conversation.History
	Reply   string
	Path    string
}

// Config configures a Processor.
type Config struct {
	// Window is the maximum number of entries sent for completion.
	Window int
	// CueBaseURL is the public origin serving filler audio.
	CueBaseURL string
}

// Option customizes a Processor.
type Option func(*Processor)

// WithLogger sets the logger.
func WithLogger(logger *observability.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(p *Processor) { p.metrics = metrics }
}

// WithTracer sets the tracer.
func WithTracer(tracer *observability.Tracer) Option {
	return func(p *Processor) { p.tracer = tracer }
}

// WithCuePicker overrides the random filler cue selection. pick must return
// a value in [1, CueCount].
func WithCuePicker(pick func() int) Option {
	return func(p *Processor) { p.pickCue = pick }
}

// Processor executes turns. It holds no per-call state and is safe for
// concurrent use; callers serialize turns of the same call.
type Processor struct {
	completer  llm.Completer
	invoker    Invoker
	window     int
	cueBaseURL string
	pickCue    func() int

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// NewProcessor creates a Processor.
func NewProcessor(completer llm.Completer, invoker Invoker, cfg Config, opts ...Option) *Processor {
	if cfg.Window <= 0 {
		cfg.Window = conversation.DefaultWindow
	}
	p := &Processor{
		completer:  completer,
		invoker:    invoker,
		window:     cfg.Window,
		cueBaseURL: cfg.CueBaseURL,
		pickCue:    RandomCue,
		logger:     observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleTurn processes the latest user message in history. Failures of the
// completion service or of function argument parsing resolve to
// FallbackReply; the returned error is reserved for invalid input.
func (p *Processor) HandleTurn(ctx context.Context, history conversation.History, cues CueSink) (Result, error) {
	if len(history) == 0 || history[0].Role != conversation.RoleSystem {
		return Result{}, ErrInvalidHistory
	}

	start := time.Now()
	ctx, span := p.tracer.TraceTurn(ctx, observability.GetCallSID(ctx))
	defer span.End()

	res := p.run(ctx, history.Clone(), cues)
	p.metrics.RecordTurn(res.Path, time.Since(start).Seconds())
	return res, nil
}

func (p *Processor) run(ctx context.Context, stored conversation.History, cues CueSink) Result {
	payload := conversation.Window(stored, p.window)

	first, err := p.completer.Complete(ctx, llm.Request{
		Messages:  payload,
		Functions: p.invoker.Specs(),
	})
	if err != nil {
		p.logger.Error(ctx, "completion failed", "stage", "first", "error", err, "error_type", observability.ErrorType(err))
		return fallback(stored)
	}

	if first.FunctionCall == nil {
		reply := strings.TrimSpace(first.Content)
		if reply == "" {
			p.logger.Warn(ctx, "completion returned no text", "finish_reason", first.FinishReason)
			return fallback(stored)
		}
		return Result{History: stored, Reply: reply, Path: PathDirect}
	}

	call := *first.FunctionCall
	output, err := p.invoke(ctx, call)
	if err != nil {
		return fallback(stored)
	}

	entries := []conversation.Message{
		conversation.AssistantCall(call.Name, call.Arguments),
		conversation.FunctionResult(call.Name, output),
	}
	stored = append(stored, entries...)
	payload = append(payload, entries...)

	p.playCue(ctx, cues)

	second, err := p.completer.Complete(ctx, llm.Request{Messages: payload})
	if err != nil {
		p.logger.Error(ctx, "completion failed", "stage", "second", "function", call.Name, "error", err, "error_type", observability.ErrorType(err))
		return Result{History: stored, Reply: FallbackReply, Path: PathFallback}
	}
	reply := strings.TrimSpace(second.Content)
	if reply == "" {
		p.logger.Warn(ctx, "completion returned no text after function call", "function", call.Name, "finish_reason", second.FinishReason)
		return Result{History: stored, Reply: FallbackReply, Path: PathFallback}
	}
	return Result{History: stored, Reply: reply, Path: PathFunction}
}

func (p *Processor) invoke(ctx context.Context, call conversation.FunctionCall) (string, error) {
	ctx, span := p.tracer.TraceFunction(ctx, call.Name)
	defer span.End()

	output, err := p.invoker.Invoke(ctx, call)
	if err != nil {
		p.tracer.RecordError(span, err)
		status := "error"
		var perr *functions.ParseError
		switch {
		case errors.As(err, &perr):
			status = "invalid_arguments"
		case errors.Is(err, functions.ErrUnknownFunction):
			status = "unknown"
		}
		p.metrics.RecordFunctionCall(call.Name, status)
		p.logger.Warn(ctx, "function call rejected", "function", call.Name, "status", status, "error", err)
		return "", err
	}
	p.metrics.RecordFunctionCall(call.Name, "success")
	p.logger.Debug(ctx, "function call serviced", "function", call.Name)
	return output, nil
}

func (p *Processor) playCue(ctx context.Context, cues CueSink) {
	if cues == nil || p.cueBaseURL == "" {
		return
	}
	url := CueURL(p.cueBaseURL, p.pickCue())
	if err := cues.PlayAudio(ctx, url); err != nil {
		p.logger.Warn(ctx, "filler cue not sent", "url", url, "error", err)
	}
}

func fallback(stored conversation.History) Result {
	return Result{History: stored, Reply: FallbackReply, Path: PathFallback}
}
