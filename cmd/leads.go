package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-concierge/internal/capture"
	"github.com/sells-group/lead-concierge/internal/model"
	"github.com/sells-group/lead-concierge/internal/scorer"
	"github.com/sells-group/lead-concierge/internal/store"
	"github.com/sells-group/lead-concierge/pkg/notion"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Inspect and manage captured leads",
	Long:  "Commands for listing, exporting, importing, and summarizing leads in the local store and capture ledger.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadRuntimeConfig(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("leads")
	},
}

// leadsRuntime opens the lead store and, when configured, the ledger.
func leadsRuntime(ctx context.Context) (*store.FileStore, store.Ledger, func(), error) {
	ledger, err := initLedger(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	closeFn := func() {
		if ledger != nil {
			ledger.Close() //nolint:errcheck
		}
	}
	return store.NewFileStore(cfg.Store.Dir), ledger, closeFn, nil
}

// -- leads list --

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List captured leads, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		quality, _ := cmd.Flags().GetString("quality")
		limit, _ := cmd.Flags().GetInt("limit")
		since, _ := cmd.Flags().GetDuration("since")

		filter, err := leadFilter(quality, limit, since, time.Now())
		if err != nil {
			return err
		}

		recs, err := store.NewFileStore(cfg.Store.Dir).List(cmd.Context(), filter)
		if err != nil {
			return eris.Wrap(err, "leads list")
		}
		if len(recs) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No leads found.") //nolint:errcheck
			return nil
		}

		formatLeadsList(cmd.OutOrStdout(), recs)
		return nil
	},
}

func leadFilter(quality string, limit int, since time.Duration, now time.Time) (store.LeadFilter, error) {
	filter := store.LeadFilter{Limit: limit}
	if quality != "" {
		q := model.Quality(strings.ToLower(quality))
		if !slices.Contains(model.Qualities, q) {
			return filter, eris.Errorf("unknown quality %q (want hot, warm, cool, or cold)", quality)
		}
		filter.Quality = q
	}
	if since > 0 {
		filter.Since = now.Add(-since)
	}
	return filter, nil
}

// -- leads show --

var leadsShowCmd = &cobra.Command{
	Use:   "show <lead-id>",
	Short: "Show a lead and its delivery history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		leads, ledger, closeFn, err := leadsRuntime(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		rec, err := leads.Get(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "leads show")
		}

		out := struct {
			Lead       *model.LeadRecord `json:"lead"`
			Deliveries []store.Delivery  `json:"deliveries,omitempty"`
		}{Lead: rec}
		if ledger != nil {
			if out.Deliveries, err = ledger.Deliveries(ctx, rec.LeadID); err != nil {
				return eris.Wrap(err, "leads show: deliveries")
			}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

// -- leads export --

var leadsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export leads as json, csv, or xlsx",
	RunE: func(cmd *cobra.Command, _ []string) error {
		formatName, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		format, err := store.ParseFormat(formatName)
		if err != nil {
			return err
		}
		recs, err := store.NewFileStore(cfg.Store.Dir).List(cmd.Context(), store.LeadFilter{})
		if err != nil {
			return eris.Wrap(err, "leads export")
		}

		var w io.Writer = cmd.OutOrStdout()
		if output != "" && output != "-" {
			f, err := os.Create(output)
			if err != nil {
				return eris.Wrapf(err, "leads export: create %s", output)
			}
			defer f.Close() //nolint:errcheck
			w = f
		}
		if err := store.Export(w, format, recs); err != nil {
			return err
		}

		zap.L().Info("leads exported", zap.Int("count", len(recs)), zap.String("format", string(format)))
		return nil
	},
}

// -- leads import --

var leadsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import leads from a json, csv, or xlsx export",
	Long:  "Reads leads from a file written by 'leads export' or a spreadsheet with matching column names. Records without a lead id get a fresh one; missing tiers are derived from the score.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		formatName, _ := cmd.Flags().GetString("format")

		format, err := formatFromPath(args[0], formatName)
		if err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrapf(err, "leads import: open %s", args[0])
		}
		defer f.Close() //nolint:errcheck

		recs, err := store.ReadLeads(ctx, f, format)
		if err != nil {
			return err
		}
		normalizeImported(recs, capture.NewIDGenerator(), time.Now())

		leads, ledger, closeFn, err := leadsRuntime(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		for i := range recs {
			if _, err := leads.Save(ctx, &recs[i]); err != nil {
				return eris.Wrapf(err, "leads import: save %s", recs[i].LeadID)
			}
		}
		if ledger != nil {
			if _, err := ledger.Reindex(ctx, recs); err != nil {
				return eris.Wrap(err, "leads import: reindex")
			}
		}

		zap.L().Info("leads imported", zap.Int("count", len(recs)), zap.String("file", args[0]))
		return nil
	},
}

// formatFromPath returns the explicit format, or infers it from the file
// extension.
func formatFromPath(path, explicit string) (store.Format, error) {
	if explicit != "" {
		return store.ParseFormat(explicit)
	}
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", eris.Errorf("cannot infer format of %s; pass --format", path)
	}
	return store.ParseFormat(ext)
}

// normalizeImported fills ids, timestamps and tiers that imported rows lack.
func normalizeImported(recs []model.LeadRecord, ids *capture.IDGenerator, now time.Time) {
	for i := range recs {
		r := &recs[i]
		if r.CapturedAt.IsZero() {
			r.CapturedAt = now.UTC()
		}
		if r.LeadID == "" {
			r.LeadID = ids.New(r.CapturedAt)
		}
		if !slices.Contains(model.Qualities, r.LeadQuality) {
			r.LeadQuality = scorer.Tier(r.QualificationScore)
		}
	}
}

// -- leads stats --

var leadsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show lead and delivery statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		leads, ledger, closeFn, err := leadsRuntime(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		recs, err := leads.List(ctx, store.LeadFilter{})
		if err != nil {
			return eris.Wrap(err, "leads stats")
		}

		var ls *store.LedgerStats
		if ledger != nil {
			if ls, err = ledger.Stats(ctx); err != nil {
				return eris.Wrap(err, "leads stats: ledger")
			}
		}
		formatLeadStats(cmd.OutOrStdout(), store.Summarize(recs), ls)
		return nil
	},
}

// -- leads delete --

var leadsDeleteCmd = &cobra.Command{
	Use:   "delete <lead-id>",
	Short: "Delete a lead from the store and ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		leads, ledger, closeFn, err := leadsRuntime(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		if err := leads.Delete(ctx, args[0]); err != nil {
			return eris.Wrap(err, "leads delete")
		}
		if ledger != nil {
			if err := ledger.Forget(ctx, args[0]); err != nil {
				return eris.Wrap(err, "leads delete: ledger")
			}
		}
		zap.L().Info("lead deleted", zap.String("lead_id", args[0]))
		return nil
	},
}

// -- leads sync --

var leadsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Re-index the ledger and Notion board from the lead store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		leads, ledger, closeFn, err := leadsRuntime(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		recs, err := leads.List(ctx, store.LeadFilter{})
		if err != nil {
			return eris.Wrap(err, "leads sync")
		}

		if ledger != nil {
			n, err := ledger.Reindex(ctx, recs)
			if err != nil {
				return eris.Wrap(err, "leads sync: reindex")
			}
			zap.L().Info("ledger reindexed", zap.Int64("rows", n))
		}

		if cfg.Notion.Token == "" || cfg.Notion.LeadDB == "" {
			zap.L().Info("notion not configured, skipping board sync")
			return nil
		}
		synced, failed := syncNotion(ctx, notion.NewClient(cfg.Notion.Token), cfg.Notion.LeadDB, recs)
		zap.L().Info("notion board synced", zap.Int("synced", synced), zap.Int("failed", failed))
		if failed > 0 {
			return eris.Errorf("leads sync: %d of %d leads failed to sync to notion", failed, len(recs))
		}
		return nil
	},
}

// syncNotion upserts each record as a Notion page, oldest first.
func syncNotion(ctx context.Context, client notion.Client, dbID string, recs []model.LeadRecord) (synced, failed int) {
	ordered := slices.Clone(recs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].CapturedAt.Before(ordered[j].CapturedAt) })

	for i := range ordered {
		if _, err := notion.UpsertLead(ctx, client, dbID, capture.LeadPage(&ordered[i])); err != nil {
			zap.L().Warn("notion sync failed", zap.String("lead_id", ordered[i].LeadID), zap.Error(err))
			failed++
			continue
		}
		synced++
	}
	return synced, failed
}

// -- leads redeliver --

var leadsRedeliverCmd = &cobra.Command{
	Use:   "redeliver <lead-id>",
	Short: "Retry channels whose last delivery failed",
	Long:  "Looks up the lead's delivery history in the ledger and sends it again to every channel whose most recent attempt failed. --channel picks channels explicitly and works without a ledger.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		only, _ := cmd.Flags().GetStringSlice("channel")

		leads, ledger, closeFn, err := leadsRuntime(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		rec, err := leads.Get(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "leads redeliver")
		}
		targets, err := redeliveryTargets(ctx, ledger, rec.LeadID, only)
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "Nothing to redeliver.") //nolint:errcheck
			return nil
		}

		channels, err := initChannels(cfg)
		if err != nil {
			return err
		}
		opts := []capture.Option{capture.WithChannelTimeout(cfg.Capture.ChannelTimeout)}
		if ledger != nil {
			opts = append(opts, capture.WithLedger(ledger))
		}
		outs := capture.NewDispatcher(leads, channels, opts...).Redeliver(ctx, rec, targets)

		formatOutcomes(cmd.OutOrStdout(), outs)
		if n := countFailed(outs); n > 0 {
			return eris.Errorf("leads redeliver: %d channel(s) still failing", n)
		}
		return nil
	},
}

// redeliveryTargets returns the explicit channel list, or the channels the
// ledger shows as last failed.
func redeliveryTargets(ctx context.Context, ledger store.Ledger, leadID string, only []string) ([]string, error) {
	if len(only) > 0 {
		return only, nil
	}
	if ledger == nil {
		return nil, eris.New("leads redeliver: no ledger configured; pass --channel")
	}
	ds, err := ledger.Deliveries(ctx, leadID)
	if err != nil {
		return nil, eris.Wrap(err, "leads redeliver: deliveries")
	}
	return store.FailedChannels(ds), nil
}

func countFailed(outs []model.ChannelOutcome) int {
	n := 0
	for _, o := range outs {
		if !o.Sent && !o.Skipped {
			n++
		}
	}
	return n
}

func init() {
	leadsListCmd.Flags().String("quality", "", "filter by tier (hot, warm, cool, cold)")
	leadsListCmd.Flags().Int("limit", 50, "max number of leads to display")
	leadsListCmd.Flags().Duration("since", 0, "only leads captured within this window (e.g. 24h, 168h)")

	leadsExportCmd.Flags().String("format", "csv", "export format (json, csv, xlsx)")
	leadsExportCmd.Flags().StringP("output", "o", "", "output file (default stdout)")

	leadsImportCmd.Flags().String("format", "", "input format (default from file extension)")

	leadsRedeliverCmd.Flags().StringSlice("channel", nil, "channels to send to (default: last failed)")

	leadsCmd.AddCommand(leadsListCmd)
	leadsCmd.AddCommand(leadsShowCmd)
	leadsCmd.AddCommand(leadsExportCmd)
	leadsCmd.AddCommand(leadsImportCmd)
	leadsCmd.AddCommand(leadsStatsCmd)
	leadsCmd.AddCommand(leadsDeleteCmd)
	leadsCmd.AddCommand(leadsSyncCmd)
	leadsCmd.AddCommand(leadsRedeliverCmd)
	rootCmd.AddCommand(leadsCmd)
}

// formatLeadsList writes a tabular list of leads to out.
func formatLeadsList(out io.Writer, recs []model.LeadRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LEAD_ID\tNAME\tCONTACT\tLOCATION\tSCORE\tQUALITY\tCAPTURED")
	_, _ = fmt.Fprintln(w, "-------\t----\t-------\t--------\t-----\t-------\t--------")

	for i := range recs {
		r := &recs[i]
		reach := r.Email
		if reach == "" {
			reach = r.Phone
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.LeadID,
			r.DisplayName(),
			orDash(reach),
			orDash(r.Location),
			r.QualificationScore,
			r.LeadQuality,
			r.CapturedAt.UTC().Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatLeadStats writes lead and delivery statistics to out. ls may be nil.
func formatLeadStats(out io.Writer, s store.Summary, ls *store.LedgerStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total leads:\t%d\n", s.Total)
	for _, q := range model.Qualities {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", strings.ToUpper(string(q)), s.ByQuality[q])
	}
	_, _ = fmt.Fprintf(w, "With contact:\t%d\n", s.WithContact)
	if s.Total > 0 {
		_, _ = fmt.Fprintf(w, "Avg score:\t%.1f\n", s.AverageScore)
		_, _ = fmt.Fprintf(w, "Last captured:\t%s\n", s.LastCapturedAt.UTC().Format("2006-01-02 15:04"))
	}
	writeCounts(w, "Locations:", s.ByLocation)
	writeCounts(w, "Business types:", s.ByBusinessType)

	if ls != nil {
		_, _ = fmt.Fprintf(w, "Deliveries:\tsent\tskipped\tfailed\n")
		channels := make([]string, 0, len(ls.ByChannel))
		for ch := range ls.ByChannel {
			channels = append(channels, ch)
		}
		sort.Strings(channels)
		for _, ch := range channels {
			cs := ls.ByChannel[ch]
			_, _ = fmt.Fprintf(w, "  %s\t%d\t%d\t%d\n", ch, cs.Sent, cs.Skipped, cs.Failed)
		}
	}
	_ = w.Flush()
}

// formatOutcomes writes one line per channel outcome.
func formatOutcomes(out io.Writer, outs []model.ChannelOutcome) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CHANNEL\tRESULT\tDETAIL")
	for _, o := range outs {
		result, detail := "failed", o.Error
		switch {
		case o.Sent:
			result, detail = "sent", o.Detail
		case o.Skipped:
			result, detail = "skipped", o.Detail
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", o.Channel, result, orDash(detail))
	}
	_ = w.Flush()
}

// writeCounts prints counts sorted by frequency, then name.
func writeCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	_, _ = fmt.Fprintln(w, title)
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", k, counts[k])
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
