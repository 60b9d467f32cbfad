package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-concierge/internal/db"
	"github.com/sells-group/lead-concierge/internal/model"
)

// PostgresLedger implements Ledger using pgxpool.
type PostgresLedger struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var deliveryColumns = []string{"lead_id", "channel", "sent", "skipped", "error", "recorded_at"}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"upsert_lead": `INSERT INTO leads (lead_id, session_id, name, email, phone, company,
		business_type, location, qualification_score, lead_quality, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (lead_id) DO UPDATE SET
		session_id = EXCLUDED.session_id, name = EXCLUDED.name, email = EXCLUDED.email,
		phone = EXCLUDED.phone, company = EXCLUDED.company, business_type = EXCLUDED.business_type,
		location = EXCLUDED.location, qualification_score = EXCLUDED.qualification_score,
		lead_quality = EXCLUDED.lead_quality, captured_at = EXCLUDED.captured_at`,
	"get_deliveries": `SELECT lead_id, channel, sent, skipped, error, recorded_at FROM lead_deliveries
		WHERE lead_id = $1 ORDER BY recorded_at, channel`,
}

// NewPostgres creates a PostgresLedger with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresLedger, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresLedger{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
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
	captured_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS lead_deliveries (
	lead_id     TEXT NOT NULL REFERENCES leads(lead_id) ON DELETE CASCADE,
	channel     TEXT NOT NULL,
	sent        BOOLEAN NOT NULL DEFAULT false,
	skipped     BOOLEAN NOT NULL DEFAULT false,
	error       TEXT NOT NULL DEFAULT '',
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leads_captured_at ON leads(captured_at);
CREATE INDEX IF NOT EXISTS idx_leads_email ON leads(email);
CREATE INDEX IF NOT EXISTS idx_lead_deliveries_lead_id ON lead_deliveries(lead_id);
`

func (s *PostgresLedger) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresLedger) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresLedger) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresLedger) RecordCapture(ctx context.Context, rec *model.LeadRecord, outcomes []model.ChannelOutcome) error {
	if _, err := s.pool.Exec(ctx, "upsert_lead", leadRow(rec)...); err != nil {
		return eris.Wrapf(err, "postgres: upsert lead %s", rec.LeadID)
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, []any{rec.LeadID, o.Channel, o.Sent, o.Skipped, o.Error, now})
	}
	if _, err := db.AppendRows(ctx, s.pool, "lead_deliveries", deliveryColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: record deliveries %s", rec.LeadID)
	}
	return nil
}

func (s *PostgresLedger) Deliveries(ctx context.Context, leadID string) ([]Delivery, error) {
	rows, err := s.pool.Query(ctx, "get_deliveries", leadID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query deliveries %s", leadID)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.LeadID, &d.Channel, &d.Sent, &d.Skipped, &d.Error, &d.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan delivery")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate deliveries")
}

func (s *PostgresLedger) Stats(ctx context.Context) (*LedgerStats, error) {
	stats := &LedgerStats{ByChannel: make(map[string]ChannelStats)}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM leads`).Scan(&stats.Leads); err != nil {
		return nil, eris.Wrap(err, "postgres: count leads")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT channel, sent, skipped, COUNT(*) FROM lead_deliveries GROUP BY channel, sent, skipped`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: delivery stats")
	}
	defer rows.Close()

	for rows.Next() {
		var channel string
		var sent, skipped bool
		var n int
		if err := rows.Scan(&channel, &sent, &skipped, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan delivery stats")
		}
		outcomeStats(stats.ByChannel, channel, sent, skipped, n)
	}
	return stats, eris.Wrap(rows.Err(), "postgres: iterate delivery stats")
}

func (s *PostgresLedger) Reindex(ctx context.Context, recs []model.LeadRecord) (int64, error) {
	rows := make([][]any, len(recs))
	for i := range recs {
		rows[i] = leadRow(&recs[i])
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "leads",
		Columns:      leadColumns,
		ConflictKeys: []string{"lead_id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: reindex leads")
	}
	return n, nil
}

func (s *PostgresLedger) Forget(ctx context.Context, leadID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM leads WHERE lead_id = $1`, leadID)
	return eris.Wrapf(err, "postgres: delete lead %s", leadID)
}
