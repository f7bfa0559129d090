package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/client-roster/internal/domain"
	"github.com/spec-kit/client-roster/internal/events"
	"github.com/spec-kit/client-roster/internal/roster"
)

// SessionRegistry keeps one roster session per actor. All sessions share the
// per-record mutation queue. Sessions idle for longer than the idle timeout
// are evicted on the next refresh unless they still have mutations in flight.
type SessionRegistry struct {
	deps   RosterDependencies
	idle   time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*registryEntry
}

type registryEntry struct {
	session  *RosterService
	lastSeen time.Time
}

// NewSessionRegistry builds a registry whose sessions use deps. A
// non-positive idleTimeout keeps sessions until they are dropped.
func NewSessionRegistry(deps RosterDependencies, idleTimeout time.Duration, logger *zap.Logger) *SessionRegistry {
	if deps.Queue == nil {
		deps.Queue = NewRecordQueue()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &SessionRegistry{
		deps:     deps,
		idle:     idleTimeout,
		now:      now,
		logger:   logger,
		sessions: make(map[string]*registryEntry),
	}
}

// Session returns the actor's session, creating it on first use. A role
// change rebuilds the session around the same cache: pending mutations and
// the active descriptor survive, cached pages are dropped because the
// visible set may have changed.
func (r *SessionRegistry) Session(actor *domain.User) *RosterService {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[actor.ID]
	switch {
	case !ok:
		entry = &registryEntry{session: NewRosterService(actor, r.deps)}
		r.sessions[actor.ID] = entry
	case entry.session.actor.Role != actor.Role:
		old := entry.session
		old.cache.DropPages()
		s := newRosterService(actor, r.deps, old.cache)
		if d, ok := old.Active(); ok {
			s.SetActive(d)
		}
		entry.session = s
	}
	entry.lastSeen = r.now()
	return entry.session
}

// Drop forgets the actor's session.
func (r *SessionRegistry) Drop(actorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, actorID)
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// EvictIdle drops sessions unused for longer than the idle timeout and
// returns how many went. Sessions with unsettled mutations are kept.
func (r *SessionRegistry) EvictIdle() int {
	if r.idle <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idle)
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, entry := range r.sessions {
		if entry.lastSeen.Before(cutoff) && entry.session.cache.PendingCount() == 0 {
			delete(r.sessions, id)
			evicted++
		}
	}
	return evicted
}

func (r *SessionRegistry) snapshot() []*RosterService {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*RosterService, 0, len(r.sessions))
	for _, entry := range r.sessions {
		out = append(out, entry.session)
	}
	return out
}

// RefreshAll evicts idle sessions, then refetches every remaining session's
// active page. Failures are collected and do not stop the remaining sessions.
func (r *SessionRegistry) RefreshAll(ctx context.Context) error {
	if n := r.EvictIdle(); n > 0 {
		r.logger.Debug("evicted idle roster sessions", zap.Int("count", n))
	}
	var errs []error
	for _, s := range r.snapshot() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Refresh(ctx); err != nil {
			r.logger.Warn("roster refresh failed", zap.String("actor_id", s.actor.ID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ApplyChange merges a pushed change into every session.
func (r *SessionRegistry) ApplyChange(ev roster.ChangeEvent) {
	for _, s := range r.snapshot() {
		s.ApplyChange(ev)
	}
}

// Attach feeds confirmed client events from d straight into the sessions.
// It is used when no cross-instance channel is available.
func (r *SessionRegistry) Attach(d events.Dispatcher) {
	for _, eventType := range events.ClientEventTypes {
		d.Subscribe(eventType, func(_ context.Context, event events.Event) error {
			data, err := events.EncodeChange(event)
			if err != nil {
				return err
			}
			change, err := events.DecodeChange(data)
			if err != nil {
				return err
			}
			r.ApplyChange(change)
			return nil
		})
	}
}
