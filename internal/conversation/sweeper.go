package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/frontdesk/internal/observability"
)

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// SweeperConfig configures idle session eviction.
type SweeperConfig struct {
	// Schedule is a cron expression or descriptor such as "@every 5m".
	Schedule string
	// MaxIdle is how long a session may go without a turn before eviction.
	MaxIdle time.Duration
	// OnEvict is called once per evicted call identifier.
	OnEvict func(callID string)
}

// Sweeper evicts sessions whose disconnect was never observed.
type Sweeper struct {
	registry *Registry
	config   SweeperConfig
	cron     *cron.Cron
	logger   *observability.Logger
}

// NewSweeper validates the schedule and prepares the cron job. Call Start
// to begin sweeping.
func NewSweeper(registry *Registry, cfg SweeperConfig, logger *observability.Logger) (*Sweeper, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.MaxIdle <= 0 {
		return nil, fmt.Errorf("max idle must be positive")
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	s := &Sweeper{
		registry: registry,
		config:   cfg,
		cron:     cron.New(cron.WithParser(cronParser)),
		logger:   logger.WithFields("component", "session_sweeper"),
	}
	if _, err := s.cron.AddFunc(cfg.Schedule, s.Sweep); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// Start runs the cron scheduler in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running sweep to finish or ctx
// to be done.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Sweep evicts idle sessions once.
func (s *Sweeper) Sweep() {
	evicted := s.registry.Sweep(s.config.MaxIdle)
	for _, id := range evicted {
		ctx := observability.AddCallSID(context.Background(), id)
		s.logger.Warn(ctx, "evicted idle session", "max_idle", s.config.MaxIdle.String())
		if s.config.OnEvict != nil {
			s.config.OnEvict(id)
		}
	}
}
