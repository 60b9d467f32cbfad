package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-concierge/internal/model"
)

func newTestSQLiteLedger(t *testing.T) *SQLiteLedger {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_RecordCapture(t *testing.T) {
	st := newTestSQLiteLedger(t)
	ctx := context.Background()
	rec := testLead("lead_1", model.QualityHot, 85, time.Now().UTC())

	err := st.RecordCapture(ctx, rec, []model.ChannelOutcome{
		{Channel: "email", Sent: true},
		{Channel: "crm", Error: "hubspot: unexpected status 500"},
		{Channel: "webhook", Skipped: true},
	})
	require.NoError(t, err)

	deliveries, err := st.Deliveries(ctx, "lead_1")
	require.NoError(t, err)
	require.Len(t, deliveries, 3)
	assert.Equal(t, "crm", deliveries[0].Channel)
	assert.Equal(t, "hubspot: unexpected status 500", deliveries[0].Error)
	assert.Equal(t, "email", deliveries[1].Channel)
	assert.True(t, deliveries[1].Sent)
	assert.True(t, deliveries[2].Skipped)
}

func TestSQLite_RecordCapture_Twice(t *testing.T) {
	st := newTestSQLiteLedger(t)
	ctx := context.Background()
	rec := testLead("lead_1", model.QualityWarm, 65, time.Now().UTC())

	require.NoError(t, st.RecordCapture(ctx, rec, []model.ChannelOutcome{{Channel: "email", Sent: true}}))
	rec.LeadQuality = model.QualityHot
	require.NoError(t, st.RecordCapture(ctx, rec, []model.ChannelOutcome{{Channel: "crm", Sent: true}}))

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Leads)
	assert.Equal(t, 1, stats.ByChannel["email"].Sent)
	assert.Equal(t, 1, stats.ByChannel["crm"].Sent)
}

func TestSQLite_Stats(t *testing.T) {
	st := newTestSQLiteLedger(t)
	ctx := context.Background()

	for _, id := range []string{"lead_a", "lead_b"} {
		require.NoError(t, st.RecordCapture(ctx, testLead(id, model.QualityCool, 40, time.Now().UTC()), []model.ChannelOutcome{
			{Channel: "email", Sent: true},
			{Channel: "webhook", Error: "timeout"},
		}))
	}

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Leads)
	assert.Equal(t, ChannelStats{Sent: 2}, stats.ByChannel["email"])
	assert.Equal(t, ChannelStats{Failed: 2}, stats.ByChannel["webhook"])
}

func TestSQLite_Reindex(t *testing.T) {
	st := newTestSQLiteLedger(t)
	ctx := context.Background()
	now := time.Now().UTC()

	n, err := st.Reindex(ctx, []model.LeadRecord{
		*testLead("lead_a", model.QualityHot, 90, now),
		*testLead("lead_b", model.QualityCold, 10, now),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = st.Reindex(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Leads)
	assert.Empty(t, stats.ByChannel)
}

func TestSQLite_Forget(t *testing.T) {
	st := newTestSQLiteLedger(t)
	ctx := context.Background()

	require.NoError(t, st.RecordCapture(ctx, testLead("lead_x", model.QualityHot, 80, time.Now().UTC()),
		[]model.ChannelOutcome{{Channel: "email", Sent: true}}))
	require.NoError(t, st.Forget(ctx, "lead_x"))

	deliveries, err := st.Deliveries(ctx, "lead_x")
	require.NoError(t, err)
	assert.Empty(t, deliveries)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Leads)
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteLedger(t)
	assert.NoError(t, st.Migrate(context.Background()))
}
