// Package conversation runs a chat turn end to end: model reply, fact
// extraction, qualification and the hand-off to lead capture.
package conversation

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-concierge/internal/assistant"
	"github.com/sells-group/lead-concierge/internal/capture"
	"github.com/sells-group/lead-concierge/internal/model"
	"github.com/sells-group/lead-concierge/internal/scorer"
	"github.com/sells-group/lead-concierge/internal/session"
)

// Generator produces the assistant reply. *assistant.Client implements it.
type Generator interface {
	Generate(ctx context.Context, req assistant.Request) (*assistant.Reply, error)
}

// Extractor pulls lead facts out of a message. *extract.Extractor
// implements it.
type Extractor interface {
	Extract(message string, existing model.LeadFields) model.Extraction
}

// Submitter queues a capture. *capture.Queue implements it.
type Submitter interface {
	Submit(t capture.Task) bool
}

// Config tunes the orchestrator.
type Config struct {
	// ContextTurns is how many recent turns are sent to the model.
	ContextTurns int
	// HistoryCap bounds the stored history per session.
	HistoryCap int
	Contact    assistant.Contact
	Source     string
}

// ChatRequest is one inbound chat message.
type ChatRequest struct {
	Message   string         `json:"message"`
	SessionID string         `json:"session_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Metadata describes the session state after a turn.
type Metadata struct {
	SessionID       string        `json:"session_id"`
	Stage           session.Stage `json:"stage"`
	MessageCount    int           `json:"message_count"`
	LeadScore       int           `json:"lead_score"`
	LeadCaptured    bool          `json:"lead_captured"`
	LeadID          string        `json:"lead_id,omitempty"`
	FieldsCollected []model.Field `json:"fields_collected"`
	Fallback        bool          `json:"fallback"`
	Timestamp       time.Time     `json:"timestamp"`
}

// ChatResponse is the reply to a ChatRequest.
type ChatResponse struct {
	Response    string   `json:"response"`
	Suggestions []string `json:"suggestions"`
	Metadata    Metadata `json:"metadata"`
}

// Orchestrator handles chat turns. It is safe for concurrent use.
type Orchestrator struct {
	sessions  *session.Manager
	gen       Generator
	extractor Extractor
	queue     Submitter
	capturer  capture.Capturer
	cfg       Config
	now       func() time.Time
}

// New wires an orchestrator and installs its end-of-session finalizer on
// sessions. capturer runs captures the queue cannot take and the
// end-of-session safety net.
func New(sessions *session.Manager, gen Generator, ext Extractor, queue Submitter, capturer capture.Capturer, cfg Config) *Orchestrator {
	if cfg.ContextTurns <= 0 {
		cfg.ContextTurns = 6
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = 20
	}
	o := &Orchestrator{
		sessions:  sessions,
		gen:       gen,
		extractor: ext,
		queue:     queue,
		capturer:  capturer,
		cfg:       cfg,
		now:       time.Now,
	}
	sessions.SetFinalizer(o.finalize)
	return o
}

// FallbackMessage is returned when the model cannot answer.
func FallbackMessage(c assistant.Contact) string {
	return fmt.Sprintf("Sorry, I'm having some technical difficulties right now. "+
		"No worries though! You can reach %s directly at %s or call %s. We're here to help!",
		c.Name, c.Email, c.Phone)
}

// HandleTurn answers one chat message. It never fails: model errors and
// panics produce the fallback reply.
func (o *Orchestrator) HandleTurn(ctx context.Context, req ChatRequest) (resp ChatResponse) {
	s := o.sessions.GetOrCreate(req.SessionID, req.UserID)
	log := zap.L().With(zap.String("session_id", s.ID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("conversation: turn panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			resp = o.respond(s, FallbackMessage(o.cfg.Contact), req.Message, true)
		}
	}()

	s.SetMetadata(req.Metadata)

	reply, err := o.gen.Generate(ctx, assistant.Request{
		SessionID: s.ID,
		Message:   req.Message,
		History:   s.RecentHistory(o.cfg.ContextTurns),
		Lead:      s.Lead(),
		Greeted:   s.Greeted(),
	})
	fallback := err != nil
	var text string
	if fallback {
		log.Warn("conversation: model unavailable, sending fallback", zap.Error(err))
		text = FallbackMessage(o.cfg.Contact)
	} else {
		text = reply.Text
		s.AppendExchange(req.Message, text, o.cfg.HistoryCap)
	}

	lead := s.Lead()
	if set := s.MergeLead(o.extractor.Extract(req.Message, lead), lead.MessageCount+1); len(set) > 0 {
		log.Info("conversation: lead fields collected", zap.Any("fields", set))
	}

	lead = s.Lead()
	if scorer.Ready(lead, s.Captured()) {
		o.submitCapture(ctx, s, o.recentUserMessages(s, req.Message, fallback))
	}
	return o.respond(s, text, req.Message, fallback)
}

// recentUserMessages returns the latest user messages including the
// current one, which a fallback turn never stores.
func (o *Orchestrator) recentUserMessages(s *session.Session, current string, fallback bool) []string {
	msgs := s.RecentUserMessages(3)
	if fallback {
		msgs = append(msgs, current)
	}
	return msgs
}

func (o *Orchestrator) input(s *session.Session, userMessages []string) capture.Input {
	lead := s.Lead()
	return capture.Input{
		Fields:    lead,
		Summary:   Summary(lead, userMessages),
		Score:     scorer.Score(lead),
		SessionID: s.ID,
		Source:    o.cfg.Source,
	}
}

// submitCapture marks the session captured and queues the capture. When
// the queue is full the capture runs on its own goroutine.
func (o *Orchestrator) submitCapture(ctx context.Context, s *session.Session, userMessages []string) {
	if !s.MarkCaptured("") {
		return
	}
	in := o.input(s, userMessages)
	log := zap.L().With(zap.String("session_id", s.ID), zap.Int("score", in.Score))

	done := func(res model.CaptureResult) {
		s.SetLeadID(res.LeadID)
		log.Info("conversation: lead captured",
			zap.String("lead_id", res.LeadID),
			zap.Bool("persisted", res.Success),
			zap.Any("outcomes", res.Outcomes),
		)
	}

	if o.queue != nil && o.queue.Submit(capture.Task{Input: in, Done: done}) {
		log.Debug("conversation: capture queued")
		return
	}
	log.Warn("conversation: capture queue unavailable, capturing inline")
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("conversation: detached capture panicked", zap.Any("panic", r))
			}
		}()
		done(o.capturer.Capture(context.WithoutCancel(ctx), in))
	}()
}

// finalize is the end-of-session safety net. It runs the capture
// synchronously so the lead is persisted before the session disappears.
func (o *Orchestrator) finalize(ctx context.Context, s *session.Session) (string, error) {
	if !s.MarkCaptured("") {
		return s.LeadID(), nil
	}
	res := o.capturer.Capture(ctx, o.input(s, s.RecentUserMessages(3)))
	s.SetLeadID(res.LeadID)
	if !res.Success {
		return res.LeadID, eris.Errorf("conversation: lead %s was not persisted", res.LeadID)
	}
	zap.L().Info("conversation: lead captured at session end",
		zap.String("session_id", s.ID),
		zap.String("lead_id", res.LeadID),
	)
	return res.LeadID, nil
}

func (o *Orchestrator) respond(s *session.Session, text, message string, fallback bool) ChatResponse {
	lead := s.Lead()
	fields := lead.Collected()
	if fields == nil {
		fields = []model.Field{}
	}
	return ChatResponse{
		Response:    text,
		Suggestions: Suggestions(message),
		Metadata: Metadata{
			SessionID:       s.ID,
			Stage:           s.Stage(),
			MessageCount:    lead.MessageCount,
			LeadScore:       scorer.Score(lead),
			LeadCaptured:    s.Captured(),
			LeadID:          s.LeadID(),
			FieldsCollected: fields,
			Fallback:        fallback,
			Timestamp:       o.now().UTC(),
		},
	}
}

// EndSession ends a session, capturing its lead first when it has contact
// details but was never captured.
func (o *Orchestrator) EndSession(ctx context.Context, sessionID string) (session.EndResult, error) {
	return o.sessions.End(ctx, sessionID)
}

// LeadData is the lead state of a live session.
type LeadData struct {
	SessionID    string           `json:"session_id"`
	Lead         model.LeadFields `json:"lead_data"`
	LeadScore    int              `json:"lead_score"`
	LeadQuality  model.Quality    `json:"lead_quality"`
	LeadCaptured bool             `json:"lead_captured"`
	LeadID       string           `json:"lead_id,omitempty"`
	MessageCount int              `json:"message_count"`
	Stage        session.Stage    `json:"stage"`
}

// LeadData reports the lead collected so far in a session.
func (o *Orchestrator) LeadData(sessionID string) (LeadData, error) {
	s, ok := o.sessions.Get(sessionID)
	if !ok {
		return LeadData{}, session.ErrNotFound
	}
	lead := s.Lead()
	score := scorer.Score(lead)
	return LeadData{
		SessionID:    s.ID,
		Lead:         lead,
		LeadScore:    score,
		LeadQuality:  scorer.Tier(score),
		LeadCaptured: s.Captured(),
		LeadID:       s.LeadID(),
		MessageCount: lead.MessageCount,
		Stage:        s.Stage(),
	}, nil
}

// Sessions returns the session manager.
func (o *Orchestrator) Sessions() *session.Manager { return o.sessions }

// ActiveSessions returns the number of live sessions.
func (o *Orchestrator) ActiveSessions() int { return o.sessions.Len() }
