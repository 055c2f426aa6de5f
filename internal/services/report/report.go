// Package report accumulates per-path restore outcomes and persists them.
package report

import (
	"sort"
	"sync"
	"time"

	"github.com/fgeck/versionrestore/internal/models"
)

// Miss is one non-restored path, as written to the miss-log.
type Miss struct {
	Path   models.ExpectedPath
	Reason models.Reason
	Detail string
}

// Report collects outcomes for a single run. Add and RecordRejected are safe
// for concurrent use.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool

	mu       sync.Mutex
	outcomes []models.RestoreOutcome
	rejected map[string]struct{}
}

// New creates an empty report for runID.
func New(runID string, dryRun bool) *Report {
	return &Report{
		RunID:     runID,
		StartedAt: time.Now(),
		DryRun:    dryRun,
		rejected:  make(map[string]struct{}),
	}
}

// Add appends an outcome.
func (r *Report) Add(o models.RestoreOutcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
}

// RecordRejected notes history entries whose names did not parse. Entries
// seen by several scans are counted once.
func (r *Report) RecordRejected(locations ...string) {
	if len(locations) == 0 {
		return
	}
	r.mu.Lock()
	for _, l := range locations {
		r.rejected[l] = struct{}{}
	}
	r.mu.Unlock()
}

// Finalize orders outcomes by path and stamps the finish time.
func (r *Report) Finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()

	sort.SliceStable(r.outcomes, func(i, j int) bool {
		return r.outcomes[i].Path < r.outcomes[j].Path
	})
	r.FinishedAt = time.Now()
}

// Outcomes returns a copy of the recorded outcomes.
func (r *Report) Outcomes() []models.RestoreOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.RestoreOutcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// Total is the number of recorded outcomes.
func (r *Report) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outcomes)
}

// Restored is the number of restored paths.
func (r *Report) Restored() int { return r.count(models.StatusRestored) }

// Missing is the number of paths without a usable version.
func (r *Report) Missing() int { return r.count(models.StatusMissing) }

// Failed is the number of paths whose restore failed.
func (r *Report) Failed() int { return r.count(models.StatusFailed) }

func (r *Report) count(status models.OutcomeStatus) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, o := range r.outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Rejected is the number of distinct history entries that failed to parse.
func (r *Report) Rejected() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rejected)
}

// BytesRestored sums the bytes copied by restored outcomes.
func (r *Report) BytesRestored() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total int64
	for _, o := range r.outcomes {
		total += o.BytesCopied
	}
	return total
}

// Misses lists every non-restored outcome in report order.
func (r *Report) Misses() []Miss {
	r.mu.Lock()
	defer r.mu.Unlock()

	var misses []Miss
	for _, o := range r.outcomes {
		if o.Status != models.StatusRestored {
			misses = append(misses, Miss{Path: o.Path, Reason: o.Reason, Detail: o.Detail})
		}
	}
	return misses
}

// PossiblyCorrupted lists paths whose newest version was ignored for being
// past the cutoff.
func (r *Report) PossiblyCorrupted() []models.ExpectedPath {
	r.mu.Lock()
	defer r.mu.Unlock()

	var paths []models.ExpectedPath
	for _, o := range r.outcomes {
		if o.Selection != nil && o.Selection.NewestBeyondCutoff {
			paths = append(paths, o.Path)
		}
	}
	return paths
}
