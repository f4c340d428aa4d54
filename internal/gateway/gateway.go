// Package gateway assembles the voice gateway: the incoming-call webhook,
// the relay websocket and the operational endpoints, wired to the turn
// processor and session registry.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/frontdesk/internal/config"
	"github.com/haasonsaas/frontdesk/internal/conversation"
	"github.com/haasonsaas/frontdesk/internal/datetime"
	"github.com/haasonsaas/frontdesk/internal/functions"
	"github.com/haasonsaas/frontdesk/internal/llm"
	"github.com/haasonsaas/frontdesk/internal/lookup"
	"github.com/haasonsaas/frontdesk/internal/observability"
	"github.com/haasonsaas/frontdesk/internal/turn"
	"github.com/haasonsaas/frontdesk/internal/voice"
)

// IncomingCallPath receives the telephony provider's call webhook.
const IncomingCallPath = "/incoming-call"

// Option customizes a Gateway.
type Option func(*options)

type options struct {
	logger    *observability.Logger
	completer llm.Completer
	registry  *prometheus.Registry
	version   string
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *observability.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCompleter replaces the OpenAI client.
func WithCompleter(c llm.Completer) Option {
	return func(o *options) { o.completer = c }
}

// WithPrometheusRegistry sets the registry exposed on /metrics.
func WithPrometheusRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithVersion sets the service version reported in traces.
func WithVersion(version string) Option {
	return func(o *options) { o.version = version }
}

// Gateway is the running voice gateway.
type Gateway struct {
	config  *config.Config
	logger  *observability.Logger
	metrics *observability.Metrics

	sessions *conversation.Registry
	manager  *voice.Manager
	sweeper  *conversation.Sweeper
	webhook  *voice.WebhookHandler
	handler  http.Handler
	server   *HTTPServer

	shutdownTracer func(context.Context) error
}

// New builds the gateway from cfg. It fails when settings the gateway cannot
// run without are missing.
func New(cfg *config.Config, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.New("gateway: config is required")
	}
	if err := cfg.RequireGateway(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = observability.NopLogger()
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
		o.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	loc, err := datetime.LoadLocation(cfg.Assistant.Timezone)
	if err != nil {
		return nil, err
	}

	logger := o.logger
	metrics := observability.NewMetrics(o.registry)
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: o.version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Insecure:       cfg.Tracing.Insecure,
	})

	lookups, err := lookup.NewClient(lookup.Config{
		BaseURL:     cfg.Backend.BaseURL,
		Timeout:     cfg.Lookup.Timeout,
		MaxAttempts: cfg.Lookup.MaxAttempts,
	}, lookup.WithLogger(logger), lookup.WithMetrics(metrics), lookup.WithTracer(tracer))
	if err != nil {
		return nil, err
	}

	completer := o.completer
	if completer == nil {
		completer, err = llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			BaseURL:     cfg.LLM.BaseURL,
			Timeout:     cfg.LLM.Timeout,
			MaxAttempts: cfg.LLM.MaxAttempts,
		}, llm.WithLogger(logger), llm.WithMetrics(metrics), llm.WithTracer(tracer))
		if err != nil {
			return nil, err
		}
	}

	catalog, err := functions.NewCatalog(functions.Dependencies{
		Insurance: lookups,
		Slots:     lookups,
		Location:  loc,
	})
	if err != nil {
		return nil, err
	}
	processor := turn.NewProcessor(completer, catalog, turn.Config{
		Window:     cfg.Assistant.HistoryWindow,
		CueBaseURL: cfg.Assistant.CueBaseURL,
	}, turn.WithLogger(logger), turn.WithMetrics(metrics), turn.WithTracer(tracer))

	instructions := cfg.Assistant.SystemPrompt
	if strings.TrimSpace(instructions) == "" {
		instructions = voice.DefaultInstructions
	}
	sessions := conversation.NewRegistry()
	manager := voice.NewManager(sessions, processor, voice.ManagerConfig{
		Instructions: instructions,
		Location:     loc,
		LockTimeout:  cfg.Assistant.TurnLockTimeout,
	}, voice.WithManagerLogger(logger), voice.WithManagerMetrics(metrics))

	sweeper, err := conversation.NewSweeper(sessions, conversation.SweeperConfig{
		Schedule: cfg.Session.SweepSchedule,
		MaxIdle:  cfg.Session.IdleTTL,
		OnEvict: func(string) {
			metrics.SetActiveSessions(sessions.Len())
		},
	}, logger)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		config:         cfg,
		logger:         logger,
		metrics:        metrics,
		sessions:       sessions,
		manager:        manager,
		sweeper:        sweeper,
		webhook:        voice.NewWebhookHandler(webhookSettings(cfg), logger),
		shutdownTracer: shutdownTracer,
	}

	relay := voice.NewRelayHandler(manager, voice.WithRelayLogger(logger), voice.WithRelayMetrics(metrics))
	mux := http.NewServeMux()
	mux.Handle(IncomingCallPath, g.webhook)
	mux.Handle("GET "+voice.RelayPath, relay)
	mux.Handle("GET /metrics", promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", g.handleHealthz)
	g.handler = observability.HTTPMiddleware(logger, metrics, mux)

	addr := net.JoinHostPort(cfg.Gateway.Host, strconv.Itoa(cfg.Gateway.Port))
	g.server = NewHTTPServer("gateway", addr, g.handler, logger)
	return g, nil
}

// Handler returns the gateway's HTTP routes.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Sessions exposes the session registry.
func (g *Gateway) Sessions() *conversation.Registry {
	return g.sessions
}

// Addr returns the listening address.
func (g *Gateway) Addr() string {
	return g.server.Addr()
}

// Start begins serving and sweeping idle sessions.
func (g *Gateway) Start(ctx context.Context) error {
	if err := g.server.Start(ctx); err != nil {
		return err
	}
	g.sweeper.Start()
	g.logger.Info(ctx, "voice gateway started",
		"addr", g.server.Addr(),
		"relay", voice.RelayPath,
		"model", g.config.LLM.Model,
	)
	return nil
}

// Done reports serve failures after Start.
func (g *Gateway) Done() <-chan error {
	return g.server.Wait()
}

// Stop shuts the server down, stops the sweeper and flushes traces.
func (g *Gateway) Stop(ctx context.Context) error {
	var errs []error
	if err := g.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	g.sweeper.Stop(ctx)
	if err := g.shutdownTracer(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// ApplyConfig applies the settings that can change while serving: the
// call-setup document and the log level.
func (g *Gateway) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	g.webhook.Update(webhookSettings(cfg))
	g.logger.SetLevel(cfg.Logging.Level)
	g.logger.Info(context.Background(), "configuration reloaded",
		"log_level", cfg.Logging.Level,
		"voice", cfg.Voice.VoiceID,
	)
}

func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, `{"status":"ok","active_sessions":%d}`, g.sessions.Len()) //nolint:errcheck
}

func webhookSettings(cfg *config.Config) voice.WebhookSettings {
	settings := voice.DefaultWebhookSettings()
	settings.PublicURL = cfg.Gateway.PublicURL
	if greeting := strings.TrimSpace(cfg.Assistant.Greeting); greeting != "" {
		settings.Greeting = greeting
	}
	settings.VoiceID = cfg.Voice.VoiceID
	settings.TTSProvider = cfg.Voice.TTSProvider
	settings.TranscriptionProvider = cfg.Voice.TranscriptionProvider
	settings.SpeechModel = cfg.Voice.SpeechModel
	settings.Hints = cfg.Voice.Hints
	return settings
}
