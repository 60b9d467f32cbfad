// Package session tracks in-memory conversation state keyed by session id.
package session

import (
	"sync"
	"time"

	"github.com/sells-group/lead-concierge/internal/model"
)

// Stage is an advisory label describing how far a conversation has
// progressed. It does not gate behavior.
type Stage string

const (
	StageGreeting   Stage = "greeting"
	StageQualifying Stage = "qualifying"
	StageCollecting Stage = "collecting"
	StageCaptured   Stage = "captured"
)

// Session is the mutable state of one conversation. Callers share the same
// *Session, so updates are visible without re-fetching. All access to
// mutable fields goes through methods that take the session lock.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	mu        sync.Mutex
	updatedAt time.Time
	history   []model.Turn
	lead      model.LeadFields
	captured  bool
	greeted   bool
	leadID    string
	metadata  map[string]any
}

func newSession(id, userID string, now time.Time) *Session {
	return &Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		updatedAt: now,
	}
}

// Snapshot is a point-in-time copy of a session's state.
type Snapshot struct {
	ID        string           `json:"session_id"`
	UserID    string           `json:"user_id,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	History   []model.Turn     `json:"history"`
	Lead      model.LeadFields `json:"lead"`
	Captured  bool             `json:"captured"`
	Greeted   bool             `json:"greeted"`
	LeadID    string           `json:"lead_id,omitempty"`
	Stage     Stage            `json:"stage"`
}

// Snapshot copies the session state for readers.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	hist := make([]model.Turn, len(s.history))
	copy(hist, s.history)
	return Snapshot{
		ID:        s.ID,
		UserID:    s.UserID,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.updatedAt,
		History:   hist,
		Lead:      s.lead,
		Captured:  s.captured,
		Greeted:   s.greeted,
		LeadID:    s.leadID,
		Stage:     s.stageLocked(),
	}
}

// RecentHistory returns a copy of the last n turns.
func (s *Session) RecentHistory(n int) []model.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := max(len(s.history)-n, 0)
	out := make([]model.Turn, len(s.history)-start)
	copy(out, s.history[start:])
	return out
}

// RecentUserMessages returns up to n of the latest user turns, oldest first.
func (s *Session) RecentUserMessages(n int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for i := len(s.history) - 1; i >= 0 && len(out) < n; i-- {
		if s.history[i].Role == model.RoleUser {
			out = append(out, s.history[i].Content)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// AppendExchange records a user/assistant pair and trims the history to at
// most limit turns, dropping the oldest first. It also marks the session
// greeted.
func (s *Session) AppendExchange(user, assistant string, limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history,
		model.Turn{Role: model.RoleUser, Content: user},
		model.Turn{Role: model.RoleAssistant, Content: assistant},
	)
	if limit > 0 && len(s.history) > limit {
		s.history = append([]model.Turn(nil), s.history[len(s.history)-limit:]...)
	}
	s.greeted = true
	s.updatedAt = time.Now()
}

// Greeted reports whether a reply has been produced for this session.
func (s *Session) Greeted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.greeted
}

// Lead returns a copy of the accumulated lead fields.
func (s *Session) Lead() model.LeadFields {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lead
}

// MergeLead applies an extraction with first-write-wins semantics and sets
// the message count. It returns the fields newly set.
func (s *Session) MergeLead(e model.Extraction, messageCount int) []model.Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.lead.Merge(e)
	s.lead.MessageCount = messageCount
	s.updatedAt = time.Now()
	return set
}

// Captured reports whether a lead has been dispatched for this session.
func (s *Session) Captured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captured
}

// MarkCaptured sets the captured flag. It returns false when the session was
// already captured, so at most one caller wins.
func (s *Session) MarkCaptured(leadID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.captured {
		return false
	}
	s.captured = true
	s.leadID = leadID
	return true
}

// SetLeadID records the id assigned to this session's lead.
func (s *Session) SetLeadID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leadID = id
}

// LeadID returns the captured lead id, if any.
func (s *Session) LeadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leadID
}

// SetMetadata merges client-supplied metadata into the session.
func (s *Session) SetMetadata(md map[string]any) {
	if len(md) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metadata == nil {
		s.metadata = make(map[string]any, len(md))
	}
	for k, v := range md {
		s.metadata[k] = v
	}
}

// Metadata returns a copy of the session metadata.
func (s *Session) Metadata() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.metadata))
	for k, v := range s.metadata {
		out[k] = v
	}
	return out
}

// UpdatedAt returns the time of the last mutation.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Touch refreshes the last-activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updatedAt = time.Now()
}

// Stage derives the advisory conversation stage.
func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stageLocked()
}

func (s *Session) stageLocked() Stage {
	switch {
	case s.captured:
		return StageCaptured
	case !s.greeted:
		return StageGreeting
	case s.lead.HasContact() || len(s.lead.Collected()) >= 2:
		return StageCollecting
	default:
		return StageQualifying
	}
}
