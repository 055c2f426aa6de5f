package models

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// ExpectedPath is a slash-separated path relative to the tree being restored.
type ExpectedPath string

// NewExpectedPath cleans rel and rejects absolute or escaping paths.
func NewExpectedPath(rel string) (ExpectedPath, error) {
	if rel == "" {
		return "", fmt.Errorf("empty path")
	}
	if strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("path %q must be relative", rel)
	}
	cleaned := path.Clean(rel)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("path %q escapes the tree root", rel)
	}
	return ExpectedPath(cleaned), nil
}

// Dir returns the parent directory ("." for top-level files).
func (p ExpectedPath) Dir() string {
	return path.Dir(string(p))
}

// Base returns the final path segment.
func (p ExpectedPath) Base() string {
	return path.Base(string(p))
}

func (p ExpectedPath) String() string {
	return string(p)
}

// VersionTag is the metadata encoded in a version-history entry name.
type VersionTag struct {
	LogicalName string
	Timestamp   time.Time
	RawSuffix   string
}

// Candidate is a history entry that may satisfy one expected path.
type Candidate struct {
	ExpectedPath    ExpectedPath
	HistoryLocation string
	Tag             VersionTag
	SizeBytes       int64
	ModTime         time.Time
	Readable        bool
}

// ScanResult is what the candidate scanner found for one expected path.
type ScanResult struct {
	Dir        string
	Candidates []Candidate
	Rejected   []string // entries whose name did not parse as a version
}

// Selection describes how a winner was picked from a candidate set.
type Selection struct {
	Chosen             *Candidate
	Newest             *Candidate // newest parsed candidate, eligible or not
	CandidateCount     int
	UnreadableCount    int
	BeyondCutoffCount  int
	NewestBeyondCutoff bool
}
