// Package monitoring watches the sync journal and raises alerts when
// submissions start failing.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadsync/internal/leadsync"
	"github.com/sells-group/leadsync/internal/model"
	"github.com/sells-group/leadsync/internal/store"
)

// journalScanLimit caps how many recent records one collection reads.
const journalScanLimit = 10000

// Snapshot holds a point-in-time view of sync health.
type Snapshot struct {
	Total     int     `json:"total"`
	Succeeded int     `json:"succeeded"`
	Failed    int     `json:"failed"`
	FailRate  float64 `json:"fail_rate"`

	// FailedByKind counts failed syncs per error kind.
	FailedByKind map[string]int `json:"failed_by_kind"`
	// UpstreamFailures counts failures caused by the CRM (schema or call).
	UpstreamFailures int `json:"upstream_failures"`
	// WithWarnings counts syncs that succeeded with non-fatal warnings.
	WithWarnings int `json:"with_warnings"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Journal lists recorded syncs, newest first.
type Journal interface {
	ListSyncs(ctx context.Context, filter store.SyncFilter) ([]model.SyncRecord, error)
}

// Collector gathers metrics from the sync journal.
type Collector struct {
	journal Journal
	now     func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(j Journal) *Collector {
	return &Collector{journal: j, now: time.Now}
}

// Collect gathers a snapshot of the syncs recorded in the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{
		FailedByKind:  map[string]int{},
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	recs, err := c.journal.ListSyncs(ctx, store.SyncFilter{Limit: journalScanLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list syncs")
	}

	for _, r := range recs {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		snap.Total++
		switch r.Status {
		case model.SyncStatusSucceeded:
			snap.Succeeded++
			if len(r.Warnings) > 0 {
				snap.WithWarnings++
			}
		case model.SyncStatusFailed:
			snap.Failed++
			kind := r.ErrorKind
			if kind == "" {
				kind = "unknown"
			}
			snap.FailedByKind[kind]++
			switch leadsync.Kind(r.ErrorKind) {
			case leadsync.KindSchemaFetch, leadsync.KindCRMCall:
				snap.UpstreamFailures++
			}
		}
	}

	if finished := snap.Succeeded + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	return snap, nil
}
