package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrSessionNotFound is returned for a call identifier that was never set
	// up or has already been removed.
	ErrSessionNotFound = errors.New("conversation: session not found")

	// ErrLockTimeout is returned when a turn lock could not be acquired before
	// the context deadline.
	ErrLockTimeout = errors.New("conversation: turn lock timeout")

	// ErrInvalidHistory is returned when a history would break the
	// system-message-first invariant.
	ErrInvalidHistory = errors.New("conversation: history must start with a system message")
)

type session struct {
	history    History
	createdAt  time.Time
	lastActive time.Time
}

type turnLock struct {
	ch   chan struct{}
	refs int
}

// Registry stores one conversation history per live call. It is safe for
// concurrent use; callers serialize turns on the same call with Lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
	locks    map[string]*turnLock
	now      func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*session),
		locks:    make(map[string]*turnLock),
		now:      time.Now,
	}
}

// Create starts (or restarts) the history for callID with a single system
// message. An existing history for the same call is replaced.
func (r *Registry) Create(callID, systemPrompt string) error {
	if strings.TrimSpace(callID) == "" {
		return errors.New("conversation: call id is required")
	}
	now := r.now()
	r.mu.Lock()
	r.sessions[callID] = &session{
		history:    History{System(systemPrompt)},
		createdAt:  now,
		lastActive: now,
	}
	r.mu.Unlock()
	return nil
}

// Get returns a copy of the history for callID.
func (r *Registry) Get(callID string) (History, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[callID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, callID)
	}
	return s.history.Clone(), nil
}

// Append adds messages to the end of the history for callID.
func (r *Registry) Append(callID string, msgs ...Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, callID)
	}
	s.history = append(s.history, History(msgs).Clone()...)
	s.lastActive = r.now()
	return nil
}

// Replace swaps the stored history for callID. The new history must still
// start with a system message.
func (r *Registry) Replace(callID string, h History) error {
	if len(h) == 0 || h[0].Role != RoleSystem {
		return ErrInvalidHistory
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, callID)
	}
	s.history = h.Clone()
	s.lastActive = r.now()
	return nil
}

// Remove deletes the session for callID. It reports whether a session existed.
func (r *Registry) Remove(callID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[callID]
	delete(r.sessions, callID)
	return ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Lock acquires the turn lock for callID, waiting until ctx is done. The
// lock does not require an existing session, so setup can hold it too.
// The returned release function is safe to call more than once.
func (r *Registry) Lock(ctx context.Context, callID string) (func(), error) {
	r.mu.Lock()
	l, ok := r.locks[callID]
	if !ok {
		l = &turnLock{ch: make(chan struct{}, 1)}
		r.locks[callID] = l
	}
	l.refs++
	r.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		r.dropLock(callID, l)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrLockTimeout
		}
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			r.dropLock(callID, l)
		})
	}, nil
}

func (r *Registry) dropLock(callID string, l *turnLock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.refs--
	if l.refs == 0 && r.locks[callID] == l {
		delete(r.locks, callID)
	}
}

// Sweep removes sessions with no activity for longer than maxIdle and
// returns their call identifiers in sorted order.
func (r *Registry) Sweep(maxIdle time.Duration) []string {
	if maxIdle <= 0 {
		return nil
	}
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	var evicted []string
	for id, s := range r.sessions {
		if s.lastActive.Before(cutoff) {
			delete(r.sessions, id)
			evicted = append(evicted, id)
		}
	}
	r.mu.Unlock()

	sort.Strings(evicted)
	return evicted
}
