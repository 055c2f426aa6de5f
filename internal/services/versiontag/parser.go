// Package versiontag parses version-history entry names into a logical name
// and an orderable timestamp.
package versiontag

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fgeck/versionrestore/internal/models"
)

const (
	// GrammarSyncthing names versions <stem>~YYYYMMDD-HHMMSS<ext>.
	GrammarSyncthing = "syncthing"
	// GrammarSuffix names versions <name><separator><timestamp>.
	GrammarSuffix = "suffix"

	// SyncthingLayout is the timestamp layout used by Syncthing's staggered versioning.
	SyncthingLayout = "20060102-150405"
	// DefaultSuffixSeparator separates the logical name from the timestamp.
	DefaultSuffixSeparator = "~"
	// DefaultSuffixLayout is an ISO-8601 basic timestamp.
	DefaultSuffixLayout = "20060102T150405"
)

// ErrParseFailure is returned for names that carry no recognizable version tag.
var ErrParseFailure = errors.New("not a version entry")

// Parser turns a history entry name into a VersionTag.
type Parser interface {
	Parse(filename string) (models.VersionTag, error)
}

// New returns the parser for the configured grammar.
func New(settings models.GrammarSettings) (Parser, error) {
	switch settings.Kind {
	case "", GrammarSyncthing:
		return SyncthingParser{}, nil
	case GrammarSuffix:
		p := SuffixParser{Separator: settings.Separator, Layout: settings.Layout}
		if p.Separator == "" {
			p.Separator = DefaultSuffixSeparator
		}
		if p.Layout == "" {
			p.Layout = DefaultSuffixLayout
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown version grammar %q", settings.Kind)
	}
}

// SuffixParser handles names of the form <name><Separator><timestamp>.
// The last occurrence of Separator splits the name.
type SuffixParser struct {
	Separator string
	Layout    string
}

// Parse implements Parser.
func (p SuffixParser) Parse(filename string) (models.VersionTag, error) {
	if err := checkName(filename); err != nil {
		return models.VersionTag{}, err
	}

	i := strings.LastIndex(filename, p.Separator)
	if p.Separator == "" || i <= 0 {
		return models.VersionTag{}, fmt.Errorf("%w: %q has no %q suffix", ErrParseFailure, filename, p.Separator)
	}

	suffix := filename[i+len(p.Separator):]
	ts, err := parseTimestamp(p.Layout, suffix)
	if err != nil {
		return models.VersionTag{}, fmt.Errorf("%w: %q: %w", ErrParseFailure, filename, err)
	}

	return models.VersionTag{
		LogicalName: filename[:i],
		Timestamp:   ts,
		RawSuffix:   suffix,
	}, nil
}

// SyncthingParser handles Syncthing's .stversions naming, where the tag is
// inserted between the stem and the extension. Names without a stem, such as
// ".gitignore", are versioned as "~<timestamp>.gitignore".
type SyncthingParser struct{}

// Parse implements Parser.
func (SyncthingParser) Parse(filename string) (models.VersionTag, error) {
	if err := checkName(filename); err != nil {
		return models.VersionTag{}, err
	}

	// The tag sits in front of filepath.Ext of the original name. A tag
	// holds no dot, so the version name has the same extension.
	ext := filepath.Ext(filename)
	tagged := filename[:len(filename)-len(ext)]

	tagLen := len("~") + len(SyncthingLayout)
	if len(tagged) < tagLen || tagged[len(tagged)-tagLen] != '~' {
		if !strings.Contains(tagged, "~") {
			return models.VersionTag{}, fmt.Errorf("%w: %q has no ~ tag", ErrParseFailure, filename)
		}
		return models.VersionTag{}, fmt.Errorf("%w: %q has no tag in front of its extension", ErrParseFailure, filename)
	}
	stem, suffix := tagged[:len(tagged)-tagLen], tagged[len(tagged)-len(SyncthingLayout):]

	if stem == "" && ext == "" {
		return models.VersionTag{}, fmt.Errorf("%w: %q has no logical name", ErrParseFailure, filename)
	}

	ts, err := parseTimestamp(SyncthingLayout, suffix)
	if err != nil {
		return models.VersionTag{}, fmt.Errorf("%w: %q: %w", ErrParseFailure, filename, err)
	}

	return models.VersionTag{
		LogicalName: stem + ext,
		Timestamp:   ts,
		RawSuffix:   suffix,
	}, nil
}

func checkName(filename string) error {
	if filename == "" || strings.ContainsAny(filename, `/\`) {
		return fmt.Errorf("%w: %q is not a file name", ErrParseFailure, filename)
	}
	return nil
}

// parseTimestamp parses s in UTC and requires it to be the canonical
// rendering of the layout, so "2023611T..." style variants are rejected.
func parseTimestamp(layout, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	ts, err := time.ParseInLocation(layout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	if ts.Format(layout) != s {
		return time.Time{}, fmt.Errorf("timestamp %q is not in canonical %s form", s, layout)
	}
	return ts, nil
}
