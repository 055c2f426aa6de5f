// Package selector picks the version to restore from a set of candidates.
package selector

import (
	"sort"
	"time"

	"github.com/fgeck/versionrestore/internal/models"
)

// Service defines the interface for version selection.
type Service interface {
	Select(candidates []models.Candidate) (models.Candidate, bool)
	Evaluate(candidates []models.Candidate) models.Selection
}

// Impl ranks candidates by timestamp (newest first), then size (largest
// first), then history location (lexicographically smallest first).
type Impl struct {
	notAfter time.Time
}

// New creates a selector. A non-zero notAfter excludes candidates tagged
// later than it.
func New(notAfter time.Time) *Impl {
	return &Impl{notAfter: notAfter}
}

// Select returns the winning candidate, or false when none is eligible.
func (s *Impl) Select(candidates []models.Candidate) (models.Candidate, bool) {
	sel := s.Evaluate(candidates)
	if sel.Chosen == nil {
		return models.Candidate{}, false
	}
	return *sel.Chosen, true
}

// Evaluate ranks candidates and reports why any were excluded.
func (s *Impl) Evaluate(candidates []models.Candidate) models.Selection {
	sel := models.Selection{CandidateCount: len(candidates)}
	if len(candidates) == 0 {
		return sel
	}

	ranked := make([]models.Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return Less(ranked[i], ranked[j])
	})

	newest := ranked[0]
	sel.Newest = &newest

	for i := range ranked {
		c := ranked[i]
		if !c.Readable {
			sel.UnreadableCount++
			continue
		}
		if s.beyondCutoff(c) {
			sel.BeyondCutoffCount++
			continue
		}
		if sel.Chosen == nil {
			chosen := c
			sel.Chosen = &chosen
		}
	}

	sel.NewestBeyondCutoff = s.beyondCutoff(newest)

	return sel
}

func (s *Impl) beyondCutoff(c models.Candidate) bool {
	return !s.notAfter.IsZero() && c.Tag.Timestamp.After(s.notAfter)
}

// Less reports whether a ranks before b.
func Less(a, b models.Candidate) bool {
	if !a.Tag.Timestamp.Equal(b.Tag.Timestamp) {
		return a.Tag.Timestamp.After(b.Tag.Timestamp)
	}
	if a.SizeBytes != b.SizeBytes {
		return a.SizeBytes > b.SizeBytes
	}
	return a.HistoryLocation < b.HistoryLocation
}
