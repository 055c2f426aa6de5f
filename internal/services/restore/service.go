// Package restore copies a selected version into the destination tree.
package restore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fgeck/versionrestore/internal/models"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Service defines the interface for materializing a candidate.
type Service interface {
	Restore(ctx context.Context, cand models.Candidate, destination string) models.RestoreOutcome
	Preview(cand models.Candidate, destination string) models.RestoreOutcome
}

// Impl implements the restore Service interface.
type Impl struct {
	fs        afero.Fs
	overwrite bool
	logger    zerolog.Logger
}

// New creates a restore executor. Existing destination files are only
// replaced when overwrite is set.
func New(logger zerolog.Logger, fs afero.Fs, overwrite bool) *Impl {
	return &Impl{
		fs:        fs,
		overwrite: overwrite,
		logger:    logger,
	}
}

// Restore copies cand to destination through a temporary file in the
// destination directory, verifies its size and renames it into place.
// Every failure is reported as a Failed outcome.
func (s *Impl) Restore(_ context.Context, cand models.Candidate, destination string) models.RestoreOutcome {
	p := cand.ExpectedPath

	if collision, detail := s.collides(destination); collision {
		return models.Failed(p, models.ReasonCollision, detail)
	}

	srcInfo, err := s.fs.Stat(cand.HistoryLocation)
	if err != nil {
		if os.IsNotExist(err) {
			return models.Failed(p, models.ReasonSourceVanished, err.Error())
		}
		return models.Failed(p, models.ReasonUnreadableSource, err.Error())
	}
	if srcInfo.Size() == 0 && cand.SizeBytes > 0 {
		return models.Failed(p, models.ReasonSourceVanished,
			fmt.Sprintf("%s shrank from %d bytes to zero", cand.HistoryLocation, cand.SizeBytes))
	}

	dir := filepath.Dir(destination)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return models.Failed(p, models.ReasonWriteError, fmt.Sprintf("create %s: %v", dir, err))
	}

	tmpName, written, reason, err := s.copyToTemp(cand.HistoryLocation, dir, filepath.Base(destination))
	if err != nil {
		return models.Failed(p, reason, err.Error())
	}
	keep := false
	defer func() {
		if !keep {
			_ = s.fs.Remove(tmpName)
		}
	}()

	if outcome, ok := s.verify(p, tmpName, written, srcInfo.Size()); !ok {
		return outcome
	}

	if err := s.fs.Chmod(tmpName, srcInfo.Mode().Perm()); err != nil {
		s.logger.Warn().Err(err).Str("path", p.String()).Msg("could not apply source permissions")
	}

	// The destination may have appeared while copying.
	if collision, detail := s.collides(destination); collision {
		return models.Failed(p, models.ReasonCollision, detail)
	}

	if err := s.fs.Rename(tmpName, destination); err != nil {
		return models.Failed(p, models.ReasonWriteError, fmt.Sprintf("rename into %s: %v", destination, err))
	}
	keep = true

	if err := s.fs.Chtimes(destination, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		s.logger.Warn().Err(err).Str("path", p.String()).Msg("could not restore modification time")
	}

	s.logger.Debug().
		Str("path", p.String()).
		Str("source", cand.HistoryLocation).
		Int64("bytes", written).
		Msg("restored")

	return models.Restored(p, cand.HistoryLocation, written)
}

// Preview reports what Restore would do without touching the destination.
// It applies the same collision rules; the copy itself is not attempted.
func (s *Impl) Preview(cand models.Candidate, destination string) models.RestoreOutcome {
	if collision, detail := s.collides(destination); collision {
		return models.Failed(cand.ExpectedPath, models.ReasonCollision, detail)
	}
	outcome := models.Restored(cand.ExpectedPath, cand.HistoryLocation, 0)
	outcome.DryRun = true
	return outcome
}

func (s *Impl) collides(destination string) (bool, string) {
	info, err := s.fs.Stat(destination)
	if err != nil {
		return false, ""
	}
	if info.IsDir() {
		return true, fmt.Sprintf("%s exists and is a directory", destination)
	}
	if !s.overwrite {
		return true, fmt.Sprintf("%s already exists", destination)
	}
	return false, ""
}

// copyToTemp streams src into a new temp file in dir. The returned reason
// tells read failures from write failures.
func (s *Impl) copyToTemp(src, dir, base string) (string, int64, models.Reason, error) {
	in, err := s.fs.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return "", 0, models.ReasonSourceVanished, fmt.Errorf("open %s: %w", src, err)
		}
		return "", 0, models.ReasonUnreadableSource, fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := afero.TempFile(s.fs, dir, "."+base+".restore-*")
	if err != nil {
		return "", 0, models.ReasonWriteError, fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := out.Name()

	reader := &readTracker{r: in}
	written, err := io.Copy(out, reader)
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = s.fs.Remove(tmpName)
		if reader.err != nil {
			return "", 0, models.ReasonUnreadableSource, fmt.Errorf("read %s: %w", src, reader.err)
		}
		return "", 0, models.ReasonWriteError, fmt.Errorf("write %s: %w", tmpName, err)
	}

	return tmpName, written, "", nil
}

func (s *Impl) verify(p models.ExpectedPath, tmpName string, written, expected int64) (models.RestoreOutcome, bool) {
	info, err := s.fs.Stat(tmpName)
	if err != nil {
		return models.Failed(p, models.ReasonWriteError, fmt.Sprintf("stat %s: %v", tmpName, err)), false
	}
	if written != expected || info.Size() != expected {
		return models.Failed(p, models.ReasonSizeMismatch,
			fmt.Sprintf("expected %d bytes, copied %d, on disk %d", expected, written, info.Size())), false
	}
	return models.RestoreOutcome{}, true
}

// readTracker remembers the first read error so copy failures can be attributed.
type readTracker struct {
	r   io.Reader
	err error
}

func (t *readTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF && t.err == nil {
		t.err = err
	}
	return n, err
}
