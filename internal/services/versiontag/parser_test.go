package versiontag

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/fgeck/versionrestore/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultIsSyncthing(t *testing.T) {
	p, err := New(models.GrammarSettings{})

	require.NoError(t, err)
	assert.IsType(t, SyncthingParser{}, p)
}

func TestNew_SuffixDefaults(t *testing.T) {
	p, err := New(models.GrammarSettings{Kind: GrammarSuffix})

	require.NoError(t, err)
	sp, ok := p.(SuffixParser)
	require.True(t, ok)
	assert.Equal(t, "~", sp.Separator)
	assert.Equal(t, "20060102T150405", sp.Layout)
}

func TestNew_UnknownGrammar(t *testing.T) {
	_, err := New(models.GrammarSettings{Kind: "timemachine"})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown version grammar")
}

func TestSuffixParser_Parse(t *testing.T) {
	p := SuffixParser{Separator: "~", Layout: DefaultSuffixLayout}

	tag, err := p.Parse("report.txt~20230615T120000")

	require.NoError(t, err)
	assert.Equal(t, "report.txt", tag.LogicalName)
	assert.Equal(t, "20230615T120000", tag.RawSuffix)
	assert.Equal(t, time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC), tag.Timestamp)
}

func TestSuffixParser_UsesLastSeparator(t *testing.T) {
	p := SuffixParser{Separator: "~", Layout: DefaultSuffixLayout}

	tag, err := p.Parse("a~b.txt~20230101T000000")

	require.NoError(t, err)
	assert.Equal(t, "a~b.txt", tag.LogicalName)
}

func TestSuffixParser_CustomSeparatorAndLayout(t *testing.T) {
	p := SuffixParser{Separator: ".v", Layout: "2006-01-02_150405"}

	tag, err := p.Parse("notes.md.v2024-02-29_235959")

	require.NoError(t, err)
	assert.Equal(t, "notes.md", tag.LogicalName)
	assert.Equal(t, time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC), tag.Timestamp)
}

func TestSuffixParser_Rejects(t *testing.T) {
	p := SuffixParser{Separator: "~", Layout: DefaultSuffixLayout}

	tests := []struct {
		name     string
		filename string
	}{
		{"no separator", "report.txt"},
		{"empty suffix", "report.txt~"},
		{"no logical name", "~20230101T000000"},
		{"garbage suffix", "report.txt~backup"},
		{"invalid date", "report.txt~20231301T000000"},
		{"non canonical", "report.txt~2023011T000000"},
		{"trailing data", "report.txt~20230101T000000.bak"},
		{"path not name", "docs/report.txt~20230101T000000"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(tt.filename)
			assert.ErrorIs(t, err, ErrParseFailure)
		})
	}
}

func TestSyncthingParser_Parse(t *testing.T) {
	tests := []struct {
		filename string
		logical  string
		ts       time.Time
	}{
		{"report~20240714-180000.txt", "report.txt", time.Date(2024, 7, 14, 18, 0, 0, 0, time.UTC)},
		{"Makefile~20240101-000000", "Makefile", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"~20240101-093000.gitignore", ".gitignore", time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)},
		{"archive.tar~20240301-101010.gz", "archive.tar.gz", time.Date(2024, 3, 1, 10, 10, 10, 0, time.UTC)},
		{".bashrc~20240101-000000.bak", ".bashrc.bak", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"notes~20240101-000000.txt~", "notes.txt~", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"a~20240101-000000.b~c", "a.b~c", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"foo~20240101-000000.", "foo.", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"draft~v2~20240101-000000.md", "draft~v2.md", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			tag, err := SyncthingParser{}.Parse(tt.filename)
			require.NoError(t, err)
			assert.Equal(t, tt.logical, tag.LogicalName)
			assert.Equal(t, tt.ts, tag.Timestamp)
		})
	}
}

func TestSyncthingParser_Rejects(t *testing.T) {
	tests := []string{
		"report.txt",
		"report~2024.txt",
		"report~20240714-180000x.txt",
		"report~20240714-180000.txt.old",
		"report~20241314-180000.txt",
		"~20240101-000000",
		"notes.txt~20240101-000000~",
		"img.jpg~20240714-180000",
	}

	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := SyncthingParser{}.Parse(name)
			assert.ErrorIs(t, err, ErrParseFailure)
		})
	}
}

// syncthingName tags name the way Syncthing's staggered versioner does.
func syncthingName(name string, ts time.Time) string {
	ext := filepath.Ext(name)
	return name[:len(name)-len(ext)] + "~" + ts.Format(SyncthingLayout) + ext
}

func TestSyncthingParser_RoundTrip(t *testing.T) {
	ts := time.Date(2024, 7, 14, 18, 0, 0, 0, time.UTC)
	names := []string{
		"report.txt", "Makefile", ".gitignore", "archive.tar.gz",
		"notes.txt~", "a.b~c", "foo.", "..", "x~y", "~lock.docx", "v1.2.3~rc",
	}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			tag, err := SyncthingParser{}.Parse(syncthingName(name, ts))

			require.NoError(t, err)
			assert.Equal(t, name, tag.LogicalName)
			assert.Equal(t, ts, tag.Timestamp)
		})
	}
}
