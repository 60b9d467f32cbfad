// Package capture turns a qualified conversation into a lead record,
// persists it, and fans it out to the configured delivery channels.
package capture

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-concierge/internal/model"
	"github.com/sells-group/lead-concierge/internal/resilience"
	"github.com/sells-group/lead-concierge/internal/scorer"
	"github.com/sells-group/lead-concierge/internal/store"
)

// ErrChannelDisabled is returned by a channel that lacks configuration.
// Its outcome is recorded as skipped rather than failed.
var ErrChannelDisabled = eris.New("capture: channel disabled")

// DefaultSource labels leads captured by the chat assistant.
const DefaultSource = "Leni Chatbot"

// Channel delivers a lead record to one destination.
type Channel interface {
	Name() string
	// Deliver returns a short human-readable detail on success.
	Deliver(ctx context.Context, rec *model.LeadRecord) (string, error)
}

// Input is what the conversation hands over at capture time.
type Input struct {
	Fields    model.LeadFields
	Summary   string
	Score     int
	SessionID string
	Source    string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLedger records every capture and its outcomes.
func WithLedger(l store.Ledger) Option {
	return func(d *Dispatcher) { d.ledger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithChannelTimeout bounds each channel delivery.
func WithChannelTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithBreakers guards each channel with its own circuit breaker, keyed by
// channel name.
func WithBreakers(b *resilience.Breakers) Option {
	return func(d *Dispatcher) { d.breakers = b }
}

// Dispatcher persists captured leads and fans them out to channels.
type Dispatcher struct {
	store    store.LeadStore
	ledger   store.Ledger
	breakers *resilience.Breakers
	channels []Channel
	ids      *IDGenerator
	now      func() time.Time
	timeout  time.Duration
}

// NewDispatcher creates a dispatcher writing to st and delivering to channels.
func NewDispatcher(st store.LeadStore, channels []Channel, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    st,
		channels: channels,
		ids:      NewIDGenerator(),
		now:      time.Now,
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Channels returns the configured channel names.
func (d *Dispatcher) Channels() []string {
	names := make([]string, len(d.channels))
	for i, ch := range d.channels {
		names[i] = ch.Name()
	}
	return names
}

// Circuits reports the breaker state of every channel that has been called.
// It is nil when no breakers are configured.
func (d *Dispatcher) Circuits() map[string]resilience.BreakerState {
	if d.breakers == nil {
		return nil
	}
	return d.breakers.States()
}

// NewRecord builds the immutable lead snapshot for in.
func NewRecord(in Input, leadID string, capturedAt time.Time) *model.LeadRecord {
	source := in.Source
	if source == "" {
		source = DefaultSource
	}
	f := in.Fields
	return &model.LeadRecord{
		LeadID:              leadID,
		SessionID:           in.SessionID,
		Name:                f.Name,
		Email:               f.Email,
		Phone:               f.Phone,
		Company:             f.Company,
		BusinessType:        f.BusinessType,
		Location:            f.Location,
		MainChallenge:       f.MainChallenge,
		BudgetRange:         f.BudgetRange,
		MessageCount:        f.MessageCount,
		QualificationScore:  in.Score,
		LeadQuality:         scorer.Tier(in.Score),
		ConversationSummary: in.Summary,
		Source:              source,
		CapturedAt:          capturedAt.UTC(),
	}
}

// Capture builds a lead record, writes it to the store, then delivers it
// to every channel. Success reflects the store write only.
func (d *Dispatcher) Capture(ctx context.Context, in Input) model.CaptureResult {
	now := d.now()
	rec := NewRecord(in, d.ids.New(now), now)
	log := zap.L().With(zap.String("lead_id", rec.LeadID), zap.String("session_id", rec.SessionID))

	result := model.CaptureResult{LeadID: rec.LeadID}
	path, err := d.store.Save(ctx, rec)
	if err != nil {
		log.Error("capture: persist lead failed", append(d.storeDiagnostics(), zap.Error(err))...)
	} else {
		result.Success = true
		result.Path = path
		log.Info("capture: lead persisted",
			zap.String("path", path),
			zap.Int("score", rec.QualificationScore),
			zap.String("quality", string(rec.LeadQuality)),
		)
	}

	result.Outcomes = d.Deliver(ctx, rec)

	if d.ledger != nil {
		if err := d.ledger.RecordCapture(ctx, rec, result.Outcomes); err != nil {
			log.Warn("capture: ledger record failed", zap.Error(err))
		}
	}
	return result
}

// storeDiagnostics describes the lead directory when the store can report
// on it.
func (d *Dispatcher) storeDiagnostics() []zap.Field {
	hs, ok := d.store.(interface{ Health() store.DirHealth })
	if !ok {
		return nil
	}
	h := hs.Health()
	return []zap.Field{
		zap.String("store_dir", h.Dir),
		zap.Bool("store_dir_exists", h.Exists),
		zap.Bool("store_parent_exists", h.ParentExists),
		zap.Bool("store_writable", h.Writable),
	}
}

// Redeliver sends an already captured lead to the named channels again and
// records the new outcomes. Unknown names are reported as failed outcomes.
// An empty names list means every channel.
func (d *Dispatcher) Redeliver(ctx context.Context, rec *model.LeadRecord, names []string) []model.ChannelOutcome {
	selected := d.channels
	var unknown []string
	if len(names) > 0 {
		byName := make(map[string]Channel, len(d.channels))
		for _, ch := range d.channels {
			byName[ch.Name()] = ch
		}
		selected = nil
		for _, n := range names {
			if ch, ok := byName[n]; ok {
				selected = append(selected, ch)
			} else {
				unknown = append(unknown, n)
			}
		}
	}

	outcomes := d.deliverTo(ctx, selected, rec)
	for _, n := range unknown {
		outcomes = append(outcomes, model.ChannelOutcome{Channel: n, Error: "capture: unknown channel"})
	}

	if d.ledger != nil && len(selected) > 0 {
		if err := d.ledger.RecordCapture(ctx, rec, outcomes[:len(selected)]); err != nil {
			zap.L().Warn("capture: ledger record failed", zap.String("lead_id", rec.LeadID), zap.Error(err))
		}
	}
	return outcomes
}

// Deliver fans rec out to every channel concurrently. A failing or
// panicking channel never affects the others. Outcomes keep channel order.
func (d *Dispatcher) Deliver(ctx context.Context, rec *model.LeadRecord) []model.ChannelOutcome {
	return d.deliverTo(ctx, d.channels, rec)
}

func (d *Dispatcher) deliverTo(ctx context.Context, channels []Channel, rec *model.LeadRecord) []model.ChannelOutcome {
	outcomes := make([]model.ChannelOutcome, len(channels))
	var g errgroup.Group
	for i, ch := range channels {
		g.Go(func() error {
			outcomes[i] = d.deliverOne(ctx, ch, rec)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (d *Dispatcher) deliverOne(ctx context.Context, ch Channel, rec *model.LeadRecord) (out model.ChannelOutcome) {
	out.Channel = ch.Name()
	log := zap.L().With(zap.String("lead_id", rec.LeadID), zap.String("channel", out.Channel))

	defer func() {
		if r := recover(); r != nil {
			log.Error("capture: channel panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			out = model.ChannelOutcome{Channel: ch.Name(), Error: fmt.Sprintf("panic: %v", r)}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var br *resilience.Breaker
	if d.breakers != nil {
		br = d.breakers.Get(out.Channel)
		if err := br.Allow(); err != nil {
			out.Error = err.Error()
			log.Warn("capture: channel circuit open, not delivering")
			return out
		}
	}

	start := time.Now()
	detail, err := ch.Deliver(ctx, rec)
	if br != nil {
		br.Record(err)
	}
	switch {
	case eris.Is(err, ErrChannelDisabled):
		out.Skipped = true
		out.Detail = "not configured"
		log.Debug("capture: channel skipped")
	case err != nil:
		out.Error = err.Error()
		log.Warn("capture: channel failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
	default:
		out.Sent = true
		out.Detail = detail
		log.Info("capture: channel delivered", zap.String("detail", detail), zap.Duration("elapsed", time.Since(start)))
	}
	return out
}
