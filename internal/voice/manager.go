package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/frontdesk/internal/conversation"
	"github.com/haasonsaas/frontdesk/internal/observability"
	"github.com/haasonsaas/frontdesk/internal/turn"
)

// DefaultLockTimeout bounds how long a prompt waits for the previous turn of
// the same call.
const DefaultLockTimeout = 30 * time.Second

// Sender delivers directives to one relay connection.
type Sender interface {
	Send(ctx context.Context, d Directive) error
}

// TurnHandler runs one turn over a call's history.
type TurnHandler interface {
	HandleTurn(ctx context.Context, history conversation.History, cues turn.CueSink) (turn.Result, error)
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Instructions string
	Location     *time.Location
	LockTimeout  time.Duration
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger.
func WithManagerLogger(logger *observability.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithManagerMetrics sets the metrics sink.
func WithManagerMetrics(metrics *observability.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// WithClock overrides the clock used for call start timestamps.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// Manager drives each call through absent, active and terminated states.
// Turns of one call run strictly one after another; different calls proceed
// independently.
type Manager struct {
	registry     *conversation.Registry
	turns        TurnHandler
	instructions string
	loc          *time.Location
	lockTimeout  time.Duration
	now          func() time.Time

	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewManager creates a Manager over registry.
func NewManager(registry *conversation.Registry, turns TurnHandler, cfg ManagerConfig, opts ...ManagerOption) *Manager {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	m := &Manager{
		registry:     registry,
		turns:        turns,
		instructions: cfg.Instructions,
		loc:          cfg.Location,
		lockTimeout:  cfg.LockTimeout,
		now:          time.Now,
		logger:       observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Setup starts the session for ev.CallSID with a fresh system message. A
// repeated setup for the same call replaces its history.
func (m *Manager) Setup(ctx context.Context, ev SetupEvent) error {
	callSID := strings.TrimSpace(ev.CallSID)
	if callSID == "" {
		return errors.New("voice: setup without callSid")
	}

	release, err := m.lock(ctx, callSID)
	if err != nil {
		return err
	}
	defer release()

	prompt := BuildSystemPrompt(m.instructions, m.now(), m.loc)
	if err := m.registry.Create(callSID, prompt); err != nil {
		return err
	}
	m.metrics.SetActiveSessions(m.registry.Len())
	m.logger.Info(ctx, "call session started", "call_sid", callSID, "from", ev.From, "direction", ev.Direction)
	return nil
}

// Prompt runs one turn for callSID and sends the reply as a final text token.
// A prompt for a call without an active session is a lifecycle error: it is
// logged, answered with the fallback reply and returned.
func (m *Manager) Prompt(ctx context.Context, callSID string, ev PromptEvent, out Sender) error {
	release, err := m.lock(ctx, callSID)
	if err != nil {
		m.logger.Error(ctx, "turn lock not acquired", "call_sid", callSID, "error", err)
		m.reply(ctx, out, turn.FallbackReply)
		return err
	}
	defer release()

	history, err := m.registry.Get(callSID)
	if err != nil {
		m.logger.Error(ctx, "prompt for call without active session", "call_sid", callSID, "error", err)
		m.reply(ctx, out, turn.FallbackReply)
		return err
	}

	history = append(history, conversation.User(ev.VoicePrompt))
	res, err := m.turns.HandleTurn(ctx, history, cueSender{out: out})
	if err != nil {
		m.logger.Error(ctx, "turn failed", "call_sid", callSID, "error", err)
		res = turn.Result{History: history, Reply: turn.FallbackReply, Path: turn.PathFallback}
	}

	final := append(res.History, conversation.Assistant(res.Reply))
	if err := m.registry.Replace(callSID, final); err != nil {
		if errors.Is(err, conversation.ErrSessionNotFound) {
			m.logger.Info(ctx, "call ended during turn, reply dropped", "call_sid", callSID)
			return nil
		}
		return fmt.Errorf("store turn: %w", err)
	}

	m.reply(ctx, out, res.Reply)
	return nil
}

// Interrupt acknowledges a barge-in. The session is left unchanged.
func (m *Manager) Interrupt(ctx context.Context, callSID string, ev InterruptEvent) {
	m.logger.Debug(ctx, "caller interrupted playback",
		"call_sid", callSID,
		"utterance", ev.UtteranceUntilInterrupt,
		"duration_ms", ev.DurationUntilInterruptMs,
	)
}

// Disconnect ends the session for callSID. It is a no-op for an unknown or
// empty identifier.
func (m *Manager) Disconnect(ctx context.Context, callSID string) {
	if callSID == "" {
		return
	}
	if m.registry.Remove(callSID) {
		m.metrics.SetActiveSessions(m.registry.Len())
		m.logger.Info(ctx, "call session ended", "call_sid", callSID)
	}
}

func (m *Manager) lock(ctx context.Context, callSID string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, m.lockTimeout)
	defer cancel()
	return m.registry.Lock(lockCtx, callSID)
}

func (m *Manager) reply(ctx context.Context, out Sender, text string) {
	if out == nil {
		return
	}
	if err := out.Send(ctx, TextDirective{Token: text, Last: true}); err != nil {
		m.logger.Warn(ctx, "reply not sent", "error", err)
	}
}

type cueSender struct {
	out Sender
}

func (c cueSender) PlayAudio(ctx context.Context, url string) error {
	if c.out == nil {
		return errors.New("voice: no relay connection")
	}
	return c.out.Send(ctx, PlayDirective{URL: url})
}
