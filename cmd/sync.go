package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadsync/internal/api"
	"github.com/sells-group/leadsync/internal/leadsync"
	"github.com/sells-group/leadsync/internal/model"
)

var syncCmd = &cobra.Command{
	Use:   "sync <file|->",
	Short: "Sync submissions from a JSON file (object or array) into the CRM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		subs, err := readSubmissionsFrom(args[0])
		if err != nil {
			return err
		}

		env, err := initApp(ctx, cfg, "sync")
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency, _ := cmd.Flags().GetInt("concurrency")
		outcomes, failed := syncAll(ctx, env.Orchestrator, subs, concurrency)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(outcomes); err != nil {
			return eris.Wrap(err, "encode results")
		}
		if failed > 0 {
			return eris.Errorf("%d of %d submissions failed", failed, len(subs))
		}
		return nil
	},
}

// syncOutcome is the per-submission report printed by the sync command.
type syncOutcome struct {
	Index  int               `json:"index"`
	OK     bool              `json:"ok"`
	Result *model.SyncResult `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
	Kind   leadsync.Kind     `json:"kind,omitempty"`
}

// syncAll runs submissions with bounded concurrency. Individual failures do
// not stop the batch.
func syncAll(ctx context.Context, s api.Syncer, subs []model.Submission, concurrency int) ([]syncOutcome, int64) {
	if concurrency < 1 {
		concurrency = 1
	}

	outcomes := make([]syncOutcome, len(subs))
	var failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, sub := range subs {
		g.Go(func() error {
			res, err := s.Sync(gctx, sub)
			if err != nil {
				failed.Add(1)
				zap.L().Error("sync failed", zap.Int("index", i), zap.Error(err))
				outcomes[i] = syncOutcome{Index: i, Error: err.Error(), Kind: leadsync.KindOf(err)}
				return nil
			}
			outcomes[i] = syncOutcome{Index: i, OK: true, Result: res}
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("sync complete",
		zap.Int("submissions", len(subs)),
		zap.Int64("failed", failed.Load()),
	)
	return outcomes, failed.Load()
}

func readSubmissionsFrom(path string) ([]model.Submission, error) {
	if path == "-" {
		return readSubmissions(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return readSubmissions(f)
}

// readSubmissions decodes a single submission object or an array of them.
func readSubmissions(r io.Reader) ([]model.Submission, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "read submissions")
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, eris.New("no submissions in input")
	}

	if data[0] == '[' {
		var subs []model.Submission
		if err := json.Unmarshal(data, &subs); err != nil {
			return nil, eris.Wrap(err, "decode submissions")
		}
		return subs, nil
	}

	var sub model.Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, eris.Wrap(err, "decode submission")
	}
	return []model.Submission{sub}, nil
}

func init() {
	syncCmd.Flags().Int("concurrency", 1, "number of submissions synced in parallel")
	rootCmd.AddCommand(syncCmd)
}
