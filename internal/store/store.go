// Package store persists captured leads as JSON files and keeps a SQL
// ledger of channel deliveries.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-concierge/internal/model"
)

// ErrLeadNotFound is returned when a lead id has no record.
var ErrLeadNotFound = eris.New("store: lead not found")

// LeadFilter narrows a listing.
type LeadFilter struct {
	Quality model.Quality `json:"quality,omitempty"`
	Since   time.Time     `json:"since,omitempty"`
	Limit   int           `json:"limit,omitempty"`
}

// LeadStore is the durable home of lead records.
type LeadStore interface {
	// Save writes rec and returns where it was written.
	Save(ctx context.Context, rec *model.LeadRecord) (string, error)
	Get(ctx context.Context, leadID string) (*model.LeadRecord, error)
	// List returns records newest first.
	List(ctx context.Context, filter LeadFilter) ([]model.LeadRecord, error)
	Delete(ctx context.Context, leadID string) error
}

// Delivery is one channel outcome recorded for a lead.
type Delivery struct {
	LeadID     string    `json:"lead_id"`
	Channel    string    `json:"channel"`
	Sent       bool      `json:"sent"`
	Skipped    bool      `json:"skipped"`
	Error      string    `json:"error,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ChannelStats tallies deliveries for one channel.
type ChannelStats struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// LedgerStats summarizes the ledger.
type LedgerStats struct {
	Leads     int                     `json:"leads"`
	ByChannel map[string]ChannelStats `json:"by_channel"`
}

// Ledger records captures and their channel outcomes in a SQL database.
// It indexes leads for reporting and never replaces the file store.
type Ledger interface {
	RecordCapture(ctx context.Context, rec *model.LeadRecord, outcomes []model.ChannelOutcome) error
	Deliveries(ctx context.Context, leadID string) ([]Delivery, error)
	Stats(ctx context.Context) (*LedgerStats, error)
	// Reindex upserts lead rows for existing records.
	Reindex(ctx context.Context, recs []model.LeadRecord) (int64, error)
	Forget(ctx context.Context, leadID string) error
	Migrate(ctx context.Context) error
	Close() error
}

// leadColumns is the shared column order for lead rows.
var leadColumns = []string{
	"lead_id", "session_id", "name", "email", "phone", "company",
	"business_type", "location", "qualification_score", "lead_quality", "captured_at",
}

func leadRow(rec *model.LeadRecord) []any {
	return []any{
		rec.LeadID, rec.SessionID, rec.Name, rec.Email, rec.Phone, rec.Company,
		rec.BusinessType, rec.Location, rec.QualificationScore, string(rec.LeadQuality), rec.CapturedAt.UTC(),
	}
}

func outcomeStats(stats map[string]ChannelStats, channel string, sent, skipped bool, n int) {
	cs := stats[channel]
	switch {
	case sent:
		cs.Sent += n
	case skipped:
		cs.Skipped += n
	default:
		cs.Failed += n
	}
	stats[channel] = cs
}

// FailedChannels returns the channels whose most recent delivery in ds
// failed, in the order they were first seen. ds is expected oldest first,
// as Ledger.Deliveries returns it.
func FailedChannels(ds []Delivery) []string {
	var order []string
	latest := make(map[string]Delivery, len(ds))
	for _, d := range ds {
		if _, seen := latest[d.Channel]; !seen {
			order = append(order, d.Channel)
		}
		latest[d.Channel] = d
	}

	var failed []string
	for _, ch := range order {
		if d := latest[ch]; !d.Sent && !d.Skipped {
			failed = append(failed, ch)
		}
	}
	return failed
}
