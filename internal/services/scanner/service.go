// Package scanner maps expected paths into the history tree and lists the
// version entries that belong to them.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/fgeck/versionrestore/internal/models"
	"github.com/fgeck/versionrestore/internal/services/versiontag"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// ErrDirNotFound means the history tree has no directory mirroring the
// expected path's parent. It is a normal outcome, not a scan failure.
var ErrDirNotFound = errors.New("history directory not found")

// Service defines the interface for candidate discovery.
type Service interface {
	MapDir(historyRoot string, expected models.ExpectedPath) (string, error)
	Scan(ctx context.Context, expected models.ExpectedPath, dir string) (*models.ScanResult, error)
}

// Impl implements the scanner Service interface.
type Impl struct {
	fs     afero.Fs
	parser versiontag.Parser
	logger zerolog.Logger
}

// New creates a scanner over fs using parser to read entry names.
func New(logger zerolog.Logger, fs afero.Fs, parser versiontag.Parser) *Impl {
	return &Impl{
		fs:     fs,
		parser: parser,
		logger: logger,
	}
}

// MapDir returns the directory under historyRoot that mirrors expected's parent.
func (s *Impl) MapDir(historyRoot string, expected models.ExpectedPath) (string, error) {
	dir := filepath.Join(historyRoot, filepath.FromSlash(expected.Dir()))

	info, err := s.fs.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return dir, ErrDirNotFound
		}
		return dir, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return dir, ErrDirNotFound
	}

	return dir, nil
}

// Scan lists dir and returns every entry whose logical name is expected's
// base name. Entries that vanish between listing and stat are returned as
// unreadable candidates.
func (s *Impl) Scan(ctx context.Context, expected models.ExpectedPath, dir string) (*models.ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names, err := s.readDirNames(dir)
	if err != nil {
		return nil, err
	}

	result := &models.ScanResult{Dir: dir}
	base := expected.Base()

	for _, name := range names {
		tag, err := s.parser.Parse(name)
		if err != nil {
			// Subdirectories mirror the tree; only files can be malformed versions.
			if !s.isDir(filepath.Join(dir, name)) {
				result.Rejected = append(result.Rejected, filepath.Join(dir, name))
			}
			continue
		}
		if tag.LogicalName != base {
			continue
		}

		location := filepath.Join(dir, name)
		cand := models.Candidate{
			ExpectedPath:    expected,
			HistoryLocation: location,
			Tag:             tag,
		}

		info, err := s.fs.Stat(location)
		switch {
		case err != nil:
			s.logger.Debug().Err(err).Str("entry", location).Msg("version entry disappeared during scan")
		case info.IsDir():
			// A directory can share a file's versioned name; it is never a candidate.
			continue
		default:
			cand.SizeBytes = info.Size()
			cand.ModTime = info.ModTime()
			cand.Readable = s.canOpen(location)
		}

		result.Candidates = append(result.Candidates, cand)
	}

	s.logger.Debug().
		Str("path", expected.String()).
		Str("dir", dir).
		Int("candidates", len(result.Candidates)).
		Int("rejected", len(result.Rejected)).
		Msg("scanned history directory")

	return result, nil
}

func (s *Impl) isDir(name string) bool {
	info, err := s.fs.Stat(name)
	return err == nil && info.IsDir()
}

func (s *Impl) readDirNames(dir string) ([]string, error) {
	f, err := s.fs.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dir, err)
	}
	defer func() { _ = f.Close() }()

	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	sort.Strings(names)

	return names, nil
}

// canOpen checks read permission without reading content.
func (s *Impl) canOpen(location string) bool {
	f, err := s.fs.Open(location)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}
