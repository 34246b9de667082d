package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadsync/internal/export"
	"github.com/sells-group/leadsync/internal/model"
	"github.com/sells-group/leadsync/internal/monitoring"
	"github.com/sells-group/leadsync/internal/store"
)

var syncsCmd = &cobra.Command{
	Use:   "syncs",
	Short: "Inspect the sync journal",
	Long:  "Commands for listing, viewing, and exporting journaled submissions.",
}

// -- syncs list --

var syncsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journaled syncs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openJournal(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := st.ListSyncs(ctx, syncFilterFromFlags(cmd))
		if err != nil {
			return eris.Wrap(err, "syncs list")
		}

		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No syncs found.")
			return nil
		}

		formatSyncsList(os.Stdout, recs)
		return nil
	},
}

// -- syncs show --

var syncsShowCmd = &cobra.Command{
	Use:   "show <sync-id>",
	Short: "Show full details of a sync",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openJournal(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.GetSync(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrap(err, "syncs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

// -- syncs export --

var syncsExportCmd = &cobra.Command{
	Use:   "export <out.xlsx>",
	Short: "Export journaled syncs to a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openJournal(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := st.ListSyncs(cmd.Context(), syncFilterFromFlags(cmd))
		if err != nil {
			return eris.Wrap(err, "syncs export")
		}
		if err := export.WriteSyncs(args[0], recs); err != nil {
			return err
		}

		zap.L().Info("syncs exported", zap.String("path", args[0]), zap.Int("rows", len(recs)))
		return nil
	},
}

// -- syncs stats --

var syncsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show sync health over a time window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openJournal(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		hours := int(since.Hours())
		if hours < 1 {
			hours = 1
		}

		snap, err := monitoring.NewCollector(st).Collect(cmd.Context(), hours)
		if err != nil {
			return eris.Wrap(err, "syncs stats")
		}
		formatSyncStats(os.Stdout, snap)
		return nil
	},
}

func init() {
	syncsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	for _, c := range []*cobra.Command{syncsListCmd, syncsExportCmd} {
		c.Flags().String("status", "", "filter by status (succeeded, failed)")
		c.Flags().String("phone", "", "filter by normalized phone")
	}
	syncsListCmd.Flags().Int("limit", 50, "max number of syncs to display")
	syncsExportCmd.Flags().Int("limit", 10000, "max number of syncs to export")

	syncsCmd.AddCommand(syncsListCmd)
	syncsCmd.AddCommand(syncsShowCmd)
	syncsCmd.AddCommand(syncsExportCmd)
	syncsCmd.AddCommand(syncsStatsCmd)
	rootCmd.AddCommand(syncsCmd)
}

func openJournal(cmd *cobra.Command) (store.Store, error) {
	if err := cfg.Validate("journal"); err != nil {
		return nil, err
	}
	return initStore(cmd.Context(), cfg.Store)
}

func syncFilterFromFlags(cmd *cobra.Command) store.SyncFilter {
	status, _ := cmd.Flags().GetString("status")
	phone, _ := cmd.Flags().GetString("phone")
	limit, _ := cmd.Flags().GetInt("limit")
	return store.SyncFilter{
		Status: model.SyncStatus(status),
		Phone:  phone,
		Limit:  limit,
	}
}

// formatSyncsList writes a tabular list of syncs to out.
func formatSyncsList(out io.Writer, recs []model.SyncRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tPHONE\tSTATUS\tDEAL\tERROR_KIND\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t------\t----\t----------\t-------")

	for _, r := range recs {
		name := r.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			name,
			r.Phone,
			r.Status,
			r.DealID,
			r.ErrorKind,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatSyncStats writes a health summary to out.
func formatSyncStats(out io.Writer, s *monitoring.Snapshot) {
	_, _ = fmt.Fprintf(out, "Sync Stats (last %dh)\n", s.LookbackHours)
	_, _ = fmt.Fprintf(out, "  Total:      %d\n", s.Total)
	_, _ = fmt.Fprintf(out, "  Succeeded:  %d\n", s.Succeeded)
	_, _ = fmt.Fprintf(out, "  Failed:     %d (%.1f%%)\n", s.Failed, s.FailRate*100)
	_, _ = fmt.Fprintf(out, "  CRM errors: %d\n", s.UpstreamFailures)
	_, _ = fmt.Fprintf(out, "  Warnings:   %d\n", s.WithWarnings)

	kinds := make([]string, 0, len(s.FailedByKind))
	for k := range s.FailedByKind {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	for _, k := range kinds {
		_, _ = fmt.Fprintf(out, "    %-14s %d\n", k+":", s.FailedByKind[k])
	}
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
