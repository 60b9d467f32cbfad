package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-concierge/internal/model"
)

// SQLiteLedger implements Ledger using modernc.org/sqlite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteLedger{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	lead_id             TEXT PRIMARY KEY,
	session_id          TEXT NOT NULL DEFAULT '',
	name                TEXT NOT NULL DEFAULT '',
	email               TEXT NOT NULL DEFAULT '',
	phone               TEXT NOT NULL DEFAULT '',
	company             TEXT NOT NULL DEFAULT '',
	business_type       TEXT NOT NULL DEFAULT '',
	location            TEXT NOT NULL DEFAULT '',
	qualification_score INTEGER NOT NULL DEFAULT 0,
	lead_quality        TEXT NOT NULL DEFAULT 'cold',
	captured_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS lead_deliveries (
	lead_id     TEXT NOT NULL,
	channel     TEXT NOT NULL,
	sent        INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	recorded_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_leads_captured_at ON leads(captured_at);
CREATE INDEX IF NOT EXISTS idx_leads_email ON leads(email);
CREATE INDEX IF NOT EXISTS idx_lead_deliveries_lead_id ON lead_deliveries(lead_id);
`

const sqliteUpsertLead = `INSERT INTO leads (lead_id, session_id, name, email, phone, company,
	business_type, location, qualification_score, lead_quality, captured_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(lead_id) DO UPDATE SET
	session_id = excluded.session_id, name = excluded.name, email = excluded.email,
	phone = excluded.phone, company = excluded.company, business_type = excluded.business_type,
	location = excluded.location, qualification_score = excluded.qualification_score,
	lead_quality = excluded.lead_quality, captured_at = excluded.captured_at`

func (s *SQLiteLedger) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}

func (s *SQLiteLedger) RecordCapture(ctx context.Context, rec *model.LeadRecord, outcomes []model.ChannelOutcome) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, sqliteUpsertLead, leadRow(rec)...); err != nil {
		return eris.Wrapf(err, "sqlite: upsert lead %s", rec.LeadID)
	}
	now := time.Now().UTC()
	for _, o := range outcomes {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO lead_deliveries (lead_id, channel, sent, skipped, error, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
			rec.LeadID, o.Channel, o.Sent, o.Skipped, o.Error, now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert delivery %s/%s", rec.LeadID, o.Channel)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit capture")
}

func (s *SQLiteLedger) Deliveries(ctx context.Context, leadID string) ([]Delivery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT lead_id, channel, sent, skipped, error, recorded_at FROM lead_deliveries
		 WHERE lead_id = ? ORDER BY recorded_at, channel`,
		leadID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query deliveries %s", leadID)
	}
	defer rows.Close() //nolint:errcheck

	var out []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.LeadID, &d.Channel, &d.Sent, &d.Skipped, &d.Error, &d.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan delivery")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate deliveries")
}

func (s *SQLiteLedger) Stats(ctx context.Context) (*LedgerStats, error) {
	stats := &LedgerStats{ByChannel: make(map[string]ChannelStats)}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads`).Scan(&stats.Leads); err != nil {
		return nil, eris.Wrap(err, "sqlite: count leads")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT channel, sent, skipped, COUNT(*) FROM lead_deliveries GROUP BY channel, sent, skipped`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: delivery stats")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var channel string
		var sent, skipped bool
		var n int
		if err := rows.Scan(&channel, &sent, &skipped, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan delivery stats")
		}
		outcomeStats(stats.ByChannel, channel, sent, skipped, n)
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: iterate delivery stats")
}

func (s *SQLiteLedger) Reindex(ctx context.Context, recs []model.LeadRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertLead)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare reindex")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for i := range recs {
		if _, err := stmt.ExecContext(ctx, leadRow(&recs[i])...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: reindex %s", recs[i].LeadID)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit reindex")
	}
	return n, nil
}

func (s *SQLiteLedger) Forget(ctx context.Context, leadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM lead_deliveries WHERE lead_id = ?`, leadID); err != nil {
		return eris.Wrapf(err, "sqlite: delete deliveries %s", leadID)
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM leads WHERE lead_id = ?`, leadID)
	return eris.Wrapf(err, "sqlite: delete lead %s", leadID)
}
