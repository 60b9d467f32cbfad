package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a session key is unknown.
var ErrNotFound = eris.New("session: not found")

// Finalizer captures a session's lead when it ends before capture. It
// returns the id of the lead it produced.
type Finalizer func(ctx context.Context, s *Session) (string, error)

// EndResult reports what ending a session did.
type EndResult struct {
	Captured bool   `json:"lead_captured"`
	LeadID   string `json:"lead_id,omitempty"`
}

// Manager owns the session store and the end-of-session safety net.
type Manager struct {
	store    Store
	finalize Finalizer
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore overrides the default in-memory store.
func WithStore(s Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithFinalizer sets the function run when a session with contact details
// ends uncaptured.
func WithFinalizer(f Finalizer) Option {
	return func(m *Manager) { m.finalize = f }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager returns a Manager backed by a MemoryStore unless overridden.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		store: NewMemoryStore(),
		now:   time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// SetFinalizer installs the finalizer after construction. The orchestrator
// and the manager reference each other, so one side is wired late.
func (m *Manager) SetFinalizer(f Finalizer) {
	m.finalize = f
}

// GetOrCreate returns the session for key, creating it when missing. An
// empty key mints a fresh id.
func (m *Manager) GetOrCreate(key, userID string) *Session {
	if key == "" {
		key = uuid.NewString()
	}
	if s, ok := m.store.Get(key); ok {
		return s
	}
	return m.store.PutIfAbsent(newSession(key, userID, m.now()))
}

// Get returns an existing session.
func (m *Manager) Get(key string) (*Session, bool) {
	return m.store.Get(key)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	return m.store.Len()
}

// End removes a session. When the session has an email or phone and was
// never captured, the finalizer runs once before removal.
func (m *Manager) End(ctx context.Context, key string) (EndResult, error) {
	s, ok := m.store.Get(key)
	if !ok {
		return EndResult{}, ErrNotFound
	}

	res := EndResult{Captured: s.Captured(), LeadID: s.LeadID()}
	lead := s.Lead()
	if m.finalize != nil && lead.HasContact() && !s.Captured() {
		leadID, err := m.finalize(ctx, s)
		if err != nil {
			zap.L().Warn("session: end-of-session capture failed",
				zap.String("session_id", key),
				zap.Error(err),
			)
		} else if leadID != "" {
			res = EndResult{Captured: true, LeadID: leadID}
		}
	}

	m.store.Delete(key)
	zap.L().Debug("session: ended",
		zap.String("session_id", key),
		zap.Bool("lead_captured", res.Captured),
	)
	return res, nil
}

// Sweep ends every session idle for longer than idle and returns how many
// were ended.
func (m *Manager) Sweep(ctx context.Context, idle time.Duration) int {
	cutoff := m.now().Add(-idle)
	var stale []string
	m.store.Range(func(s *Session) bool {
		if s.UpdatedAt().Before(cutoff) {
			stale = append(stale, s.ID)
		}
		return true
	})

	ended := 0
	for _, key := range stale {
		if ctx.Err() != nil {
			break
		}
		if _, err := m.End(ctx, key); err != nil {
			if !errors.Is(err, ErrNotFound) {
				zap.L().Warn("session: sweep end failed", zap.String("session_id", key), zap.Error(err))
			}
			continue
		}
		ended++
	}
	if ended > 0 {
		zap.L().Info("session: swept idle sessions", zap.Int("ended", ended), zap.Duration("idle", idle))
	}
	return ended
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (m *Manager) RunSweeper(ctx context.Context, every, idle time.Duration) error {
	if every <= 0 || idle <= 0 {
		return eris.New("session: sweeper interval and idle timeout must be positive")
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			m.Sweep(ctx, idle)
		}
	}
}
