package selector

import (
	"math/rand"
	"testing"
	"time"

	"github.com/fgeck/versionrestore/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t1 = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 = time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	t3 = time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)
)

func cand(location string, ts time.Time, size int64) models.Candidate {
	return models.Candidate{
		ExpectedPath:    "docs/report.txt",
		HistoryLocation: location,
		Tag:             models.VersionTag{LogicalName: "report.txt", Timestamp: ts},
		SizeBytes:       size,
		Readable:        true,
	}
}

func TestSelect_Empty(t *testing.T) {
	_, ok := New(time.Time{}).Select(nil)

	assert.False(t, ok)
}

func TestSelect_NewestWinsForEverySubset(t *testing.T) {
	all := []models.Candidate{
		cand("/h/a", t1, 10),
		cand("/h/b", t2, 10),
		cand("/h/c", t3, 10),
	}

	// Every non-empty subset, encoded as a bitmask.
	for mask := 1; mask < 1<<len(all); mask++ {
		var subset []models.Candidate
		var want models.Candidate
		for i, c := range all {
			if mask&(1<<i) != 0 {
				subset = append(subset, c)
				want = c // all is ordered oldest to newest
			}
		}

		got, ok := New(time.Time{}).Select(subset)
		require.True(t, ok)
		assert.Equal(t, want.HistoryLocation, got.HistoryLocation, "mask %03b", mask)
	}
}

func TestSelect_TieBreakPrefersLargerSize(t *testing.T) {
	got, ok := New(time.Time{}).Select([]models.Candidate{
		cand("/h/a", t3, 10),
		cand("/h/b", t3, 99),
		cand("/h/c", t2, 500),
	})

	require.True(t, ok)
	assert.Equal(t, "/h/b", got.HistoryLocation)
}

func TestSelect_TieBreakIsStable(t *testing.T) {
	candidates := []models.Candidate{
		cand("/h/z", t3, 10),
		cand("/h/m", t3, 10),
		cand("/h/a", t3, 10),
	}

	for i := 0; i < 20; i++ {
		shuffled := make([]models.Candidate, len(candidates))
		copy(shuffled, candidates)
		rand.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got, ok := New(time.Time{}).Select(shuffled)
		require.True(t, ok)
		assert.Equal(t, "/h/a", got.HistoryLocation)
	}
}

func TestSelect_DeterministicAcrossOrders(t *testing.T) {
	candidates := []models.Candidate{
		cand("/h/1", t1, 1),
		cand("/h/2", t3, 4),
		cand("/h/3", t2, 9),
		cand("/h/4", t3, 4),
	}
	first, ok := New(time.Time{}).Select(candidates)
	require.True(t, ok)

	reversed := []models.Candidate{candidates[3], candidates[2], candidates[1], candidates[0]}
	second, ok := New(time.Time{}).Select(reversed)
	require.True(t, ok)

	assert.Equal(t, first, second)
	assert.Equal(t, "/h/2", first.HistoryLocation)
}

func TestSelect_ExcludesUnreadable(t *testing.T) {
	newest := cand("/h/new", t3, 10)
	newest.Readable = false

	got, ok := New(time.Time{}).Select([]models.Candidate{newest, cand("/h/old", t1, 10)})

	require.True(t, ok)
	assert.Equal(t, "/h/old", got.HistoryLocation)
}

func TestSelect_AllUnreadable(t *testing.T) {
	a := cand("/h/a", t1, 10)
	a.Readable = false
	b := cand("/h/b", t2, 10)
	b.Readable = false

	sel := New(time.Time{}).Evaluate([]models.Candidate{a, b})

	assert.Nil(t, sel.Chosen)
	assert.Equal(t, 2, sel.CandidateCount)
	assert.Equal(t, 2, sel.UnreadableCount)
	require.NotNil(t, sel.Newest)
	assert.Equal(t, "/h/b", sel.Newest.HistoryLocation)
}

func TestEvaluate_Cutoff(t *testing.T) {
	s := New(t2)

	sel := s.Evaluate([]models.Candidate{
		cand("/h/a", t1, 10),
		cand("/h/b", t2, 10),
		cand("/h/c", t3, 10),
	})

	require.NotNil(t, sel.Chosen)
	assert.Equal(t, "/h/b", sel.Chosen.HistoryLocation)
	assert.Equal(t, "/h/c", sel.Newest.HistoryLocation)
	assert.True(t, sel.NewestBeyondCutoff)
	assert.Equal(t, 1, sel.BeyondCutoffCount)
}

func TestEvaluate_EverythingBeyondCutoff(t *testing.T) {
	sel := New(t1).Evaluate([]models.Candidate{
		cand("/h/b", t2, 10),
		cand("/h/c", t3, 10),
	})

	assert.Nil(t, sel.Chosen)
	assert.Equal(t, 2, sel.BeyondCutoffCount)
	assert.True(t, sel.NewestBeyondCutoff)
}

func TestEvaluate_DoesNotReorderInput(t *testing.T) {
	input := []models.Candidate{cand("/h/a", t1, 1), cand("/h/b", t3, 1)}

	New(time.Time{}).Evaluate(input)

	assert.Equal(t, "/h/a", input[0].HistoryLocation)
}
