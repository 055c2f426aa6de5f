// Package layout builds the set of expected paths a restore must produce.
package layout

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fgeck/versionrestore/internal/models"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Service defines the interface for expected path enumeration.
type Service interface {
	Resolve(settings models.RestoreSettings, exclude ...string) ([]models.ExpectedPath, error)
}

// Impl implements the layout Service interface.
type Impl struct {
	fs     afero.Fs
	logger zerolog.Logger
}

// New creates a layout service.
func New(logger zerolog.Logger, fs afero.Fs) *Impl {
	return &Impl{fs: fs, logger: logger}
}

// Resolve reads expected paths from whichever source settings names. A
// reference directory walk skips the history and destination roots and any
// extra exclude directories nested inside it.
func (s *Impl) Resolve(settings models.RestoreSettings, exclude ...string) ([]models.ExpectedPath, error) {
	switch {
	case settings.ReferenceDir != "":
		skip := append([]string{settings.HistoryRoot, settings.DestinationRoot}, exclude...)
		return s.FromDir(settings.ReferenceDir, skip...)
	case settings.PathsFile != "":
		return s.FromFile(settings.PathsFile)
	case len(settings.Paths) > 0:
		return FromList(settings.Paths)
	default:
		return nil, fmt.Errorf("no expected path source configured")
	}
}

// FromDir returns every regular file below root, relative to root. Directories
// below root listed in skip are not descended into.
func (s *Impl) FromDir(root string, skip ...string) ([]models.ExpectedPath, error) {
	info, err := s.fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("reference directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("reference directory %s is not a directory", root)
	}

	absRoot := absPath(root)
	skipped := make(map[string]struct{}, len(skip))
	for _, dir := range skip {
		if dir == "" {
			continue
		}
		if abs := absPath(dir); abs != absRoot {
			skipped[abs] = struct{}{}
		}
	}

	var raw []string
	err = afero.Walk(s.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if _, ok := skipped[absPath(path)]; ok {
				s.logger.Debug().Str("dir", path).Msg("not enumerating excluded directory")
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		raw = append(raw, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	s.logger.Info().Str("root", root).Int("files", len(raw)).Msg("expected paths enumerated")
	return FromList(raw)
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// FromFile reads one relative path per line. Blank lines and lines starting
// with '#' are ignored.
func (s *Impl) FromFile(name string) ([]models.ExpectedPath, error) {
	data, err := afero.ReadFile(s.fs, name)
	if err != nil {
		return nil, fmt.Errorf("reading paths file: %w", err)
	}

	var raw []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raw = append(raw, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading paths file: %w", err)
	}

	return FromList(raw)
}

// FromList validates, deduplicates and sorts raw paths.
func FromList(raw []string) ([]models.ExpectedPath, error) {
	seen := make(map[models.ExpectedPath]struct{}, len(raw))
	paths := make([]models.ExpectedPath, 0, len(raw))

	for _, r := range raw {
		p, err := models.NewExpectedPath(r)
		if err != nil {
			return nil, fmt.Errorf("invalid expected path: %w", err)
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}

	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	return paths, nil
}
