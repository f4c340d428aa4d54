package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/haasonsaas/frontdesk/internal/observability"
)

// ErrProviderNotFound is returned for an insurance provider with no record.
var ErrProviderNotFound = errors.New("backend: insurance provider not found")

// Slot is an open appointment slot.
type Slot struct {
	ID        int64     `json:"id"`
	StartTime time.Time `json:"start_time"`
}

// Store answers lookup queries.
type Store interface {
	// InsuranceAccepted reports whether the named provider is accepted. It
	// returns ErrProviderNotFound when the provider is unknown.
	InsuranceAccepted(ctx context.Context, name string) (bool, error)
	// AvailableSlots lists open slots with start in [start, end], earliest
	// first.
	AvailableSlots(ctx context.Context, start, end time.Time) ([]Slot, error)
	Ping(ctx context.Context) error
}

type dialect struct {
	name           string
	insuranceQuery string
	slotsQuery     string
	// timeArg converts a bound instant to the driver's representation.
	timeArg func(time.Time) any
}

// sqliteTimeLayout is how slot instants are stored in SQLite: UTC, second
// precision, so that text comparison orders chronologically.
const sqliteTimeLayout = "2006-01-02T15:04:05Z"

var dialects = map[string]dialect{
	DriverPostgres: {
		name:           DriverPostgres,
		insuranceQuery: `SELECT accepted FROM insurance_details WHERE name = $1 LIMIT 1`,
		slotsQuery: `SELECT id, start_time FROM appt_slots
			WHERE is_available = TRUE AND start_time >= $1 AND start_time <= $2
			ORDER BY start_time ASC`,
		timeArg: func(t time.Time) any { return t.UTC() },
	},
	DriverSQLite: {
		name:           DriverSQLite,
		insuranceQuery: `SELECT accepted FROM insurance_details WHERE name = ? LIMIT 1`,
		slotsQuery: `SELECT id, start_time FROM appt_slots
			WHERE is_available = TRUE AND start_time >= ? AND start_time <= ?
			ORDER BY start_time ASC`,
		timeArg: func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) },
	},
}

func dialectFor(driver string) (dialect, error) {
	d, ok := dialects[driver]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
	return d, nil
}

// SQLStore implements Store over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// StoreOption customizes an SQLStore.
type StoreOption func(*SQLStore)

// WithStoreMetrics sets the metrics sink.
func WithStoreMetrics(metrics *observability.Metrics) StoreOption {
	return func(s *SQLStore) { s.metrics = metrics }
}

// WithStoreTracer sets the tracer.
func WithStoreTracer(tracer *observability.Tracer) StoreOption {
	return func(s *SQLStore) { s.tracer = tracer }
}

// NewSQLStore wraps db using the query dialect of driver.
func NewSQLStore(db *sql.DB, driver string, opts ...StoreOption) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("backend: db is required")
	}
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	s := &SQLStore{db: db, dialect: d}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases database resources.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsuranceAccepted implements Store.
func (s *SQLStore) InsuranceAccepted(ctx context.Context, name string) (accepted bool, err error) {
	ctx, done := s.observe(ctx, "get_insurance_status")
	defer func() { done(err) }()

	err = s.db.QueryRowContext(ctx, s.dialect.insuranceQuery, name).Scan(&accepted)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrProviderNotFound
	}
	if err != nil {
		return false, fmt.Errorf("query insurance %q: %w", name, err)
	}
	return accepted, nil
}

// AvailableSlots implements Store.
func (s *SQLStore) AvailableSlots(ctx context.Context, start, end time.Time) (slots []Slot, err error) {
	ctx, done := s.observe(ctx, "check_appt_slots")
	defer func() { done(err) }()

	rows, err := s.db.QueryContext(ctx, s.dialect.slotsQuery, s.dialect.timeArg(start), s.dialect.timeArg(end))
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()

	slots = []Slot{}
	for rows.Next() {
		var (
			slot Slot
			ts   instant
		)
		if err := rows.Scan(&slot.ID, &ts); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slot.StartTime = ts.Time
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slots: %w", err)
	}
	return slots, nil
}

func (s *SQLStore) observe(ctx context.Context, operation string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.TraceDatabaseQuery(ctx, operation)
	return ctx, func(err error) {
		status := "success"
		if err != nil && !errors.Is(err, ErrProviderNotFound) {
			status = "error"
			s.tracer.RecordError(span, err)
		}
		s.metrics.RecordDatabaseQuery(operation, status, time.Since(start).Seconds())
		span.End()
	}
}

// instant scans timestamps stored natively or as RFC 3339 text.
type instant struct {
	time.Time
}

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

func (i *instant) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		i.Time = v
		return nil
	case string:
		return i.parse(v)
	case []byte:
		return i.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into instant", src)
	}
}

func (i *instant) parse(s string) error {
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			i.Time = t
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}
