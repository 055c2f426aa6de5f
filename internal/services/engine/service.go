// Package engine drives the scan, select and restore pipeline for every
// expected path on a bounded worker pool.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"github.com/fgeck/versionrestore/internal/models"
	"github.com/fgeck/versionrestore/internal/services/report"
	"github.com/fgeck/versionrestore/internal/services/restore"
	"github.com/fgeck/versionrestore/internal/services/scanner"
	"github.com/fgeck/versionrestore/internal/services/selector"
	"github.com/fgeck/versionrestore/internal/services/versiontag"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Fatal configuration errors. They abort a run before any path is processed.
var (
	ErrNoExpectedPaths        = errors.New("no expected paths")
	ErrHistoryRootMissing     = errors.New("history root does not exist")
	ErrDestinationNotWritable = errors.New("destination root is not writable")
	ErrNoParser               = errors.New("no version parser configured")
)

const defaultProgressEvery = 500

// Config is everything a single run needs.
type Config struct {
	RunID             string
	ExpectedPaths     []models.ExpectedPath
	HistoryRoot       string
	DestinationRoot   string
	OverwriteExisting bool
	Concurrency       int // <= 0 means runtime.NumCPU()
	DryRun            bool
	Cutoff            *models.CutoffSettings
	Parser            versiontag.Parser
}

// Service defines the interface for the restore engine.
type Service interface {
	Run(ctx context.Context, cfg Config) (*report.Report, error)
}

// Impl implements the engine Service interface.
type Impl struct {
	fs            afero.Fs
	logger        zerolog.Logger
	progressEvery int64
}

// New creates a restore engine working on fs.
func New(logger zerolog.Logger, fs afero.Fs) *Impl {
	return &Impl{
		fs:            fs,
		logger:        logger,
		progressEvery: defaultProgressEvery,
	}
}

type pipeline struct {
	cfg      Config
	scanner  scanner.Service
	selector selector.Service
	restorer restore.Service
	report   *report.Report
}

// Run processes every expected path and returns a report holding exactly one
// outcome per distinct path. If ctx is cancelled, paths not yet started are
// recorded as cancelled and the context error is returned with the report.
func (s *Impl) Run(ctx context.Context, cfg Config) (*report.Report, error) {
	paths, err := s.preflight(&cfg)
	if err != nil {
		return nil, err
	}

	p := &pipeline{
		cfg:      cfg,
		scanner:  scanner.New(s.logger, s.fs, cfg.Parser),
		selector: selector.New(cfg.Cutoff.NotAfter()),
		restorer: restore.New(s.logger, s.fs, cfg.OverwriteExisting),
		report:   report.New(cfg.RunID, cfg.DryRun),
	}

	s.logger.Info().
		Str("run_id", cfg.RunID).
		Int("paths", len(paths)).
		Int("concurrency", cfg.Concurrency).
		Str("history_root", cfg.HistoryRoot).
		Str("destination_root", cfg.DestinationRoot).
		Bool("dry_run", cfg.DryRun).
		Msg("starting restore")

	total := int64(len(paths))
	var done atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(cfg.Concurrency)

	for i, path := range paths {
		if ctx.Err() != nil {
			for _, rest := range paths[i:] {
				p.report.Add(models.Failed(rest, models.ReasonCancelled, "run stopped before this path was processed"))
			}
			break
		}

		path := path
		g.Go(func() error {
			p.report.Add(s.process(ctx, p, path))
			s.progress(done.Add(1), total, path)
			return nil
		})
	}
	_ = g.Wait()

	p.report.Finalize()

	s.logger.Info().
		Str("run_id", cfg.RunID).
		Int("total", p.report.Total()).
		Int("restored", p.report.Restored()).
		Int("missing", p.report.Missing()).
		Int("failed", p.report.Failed()).
		Int("rejected_entries", p.report.Rejected()).
		Msg("restore finished")

	if err := ctx.Err(); err != nil {
		return p.report, fmt.Errorf("restore interrupted: %w", err)
	}
	return p.report, nil
}

// process runs scan, select and restore for one path and always yields an outcome.
func (s *Impl) process(ctx context.Context, p *pipeline, path models.ExpectedPath) models.RestoreOutcome {
	if ctx.Err() != nil {
		return models.Failed(path, models.ReasonCancelled, "run stopped before this path was processed")
	}

	dir, err := p.scanner.MapDir(p.cfg.HistoryRoot, path)
	if err != nil {
		if errors.Is(err, scanner.ErrDirNotFound) {
			return s.miss(models.Missing(path, models.ReasonMissingVersion, "no history directory "+dir))
		}
		return s.miss(models.Failed(path, models.ReasonUnreadableSource, err.Error()))
	}

	scan, err := p.scanner.Scan(ctx, path, dir)
	if err != nil {
		if ctx.Err() != nil {
			return models.Failed(path, models.ReasonCancelled, err.Error())
		}
		return s.miss(models.Failed(path, models.ReasonUnreadableSource, err.Error()))
	}
	p.report.RecordRejected(scan.Rejected...)

	sel := p.selector.Evaluate(scan.Candidates)
	if sel.Chosen == nil {
		outcome := s.noWinner(path, dir, sel)
		outcome.Selection = &sel
		return s.miss(outcome)
	}

	destination := filepath.Join(p.cfg.DestinationRoot, filepath.FromSlash(path.String()))

	if p.cfg.DryRun {
		outcome := p.restorer.Preview(*sel.Chosen, destination)
		outcome.Selection = &sel
		if outcome.Status != models.StatusRestored {
			return s.miss(outcome)
		}
		s.logger.Info().Str("path", path.String()).Str("source", sel.Chosen.HistoryLocation).Msg("would restore")
		return outcome
	}

	outcome := p.restorer.Restore(ctx, *sel.Chosen, destination)
	outcome.Selection = &sel
	if outcome.Status != models.StatusRestored {
		return s.miss(outcome)
	}
	return outcome
}

func (s *Impl) noWinner(path models.ExpectedPath, dir string, sel models.Selection) models.RestoreOutcome {
	switch {
	case sel.CandidateCount == 0:
		return models.Missing(path, models.ReasonMissingVersion, "no versions in "+dir)
	case sel.UnreadableCount == sel.CandidateCount:
		return models.Missing(path, models.ReasonUnreadableSource,
			fmt.Sprintf("all %d versions are unreadable", sel.CandidateCount))
	default:
		return models.Missing(path, models.ReasonMissingVersion,
			fmt.Sprintf("%d of %d versions are newer than the cutoff", sel.BeyondCutoffCount, sel.CandidateCount))
	}
}

func (s *Impl) miss(o models.RestoreOutcome) models.RestoreOutcome {
	s.logger.Warn().
		Str("path", o.Path.String()).
		Str("status", string(o.Status)).
		Str("reason", string(o.Reason)).
		Str("detail", o.Detail).
		Msg("path not restored")
	return o
}

func (s *Impl) progress(done, total int64, path models.ExpectedPath) {
	s.logger.Debug().Int64("done", done).Int64("total", total).Str("path", path.String()).Msg("processed")
	if done == total || (s.progressEvery > 0 && done%s.progressEvery == 0) {
		s.logger.Info().Int64("done", done).Int64("total", total).Msg("progress")
	}
}

// preflight detects fatal configuration errors and normalizes cfg.
func (s *Impl) preflight(cfg *Config) ([]models.ExpectedPath, error) {
	if cfg.Parser == nil {
		return nil, ErrNoParser
	}

	paths := dedupe(cfg.ExpectedPaths)
	if len(paths) == 0 {
		return nil, ErrNoExpectedPaths
	}

	info, err := s.fs.Stat(cfg.HistoryRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrHistoryRootMissing, cfg.HistoryRoot)
		}
		return nil, fmt.Errorf("history root %s: %w", cfg.HistoryRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrHistoryRootMissing, cfg.HistoryRoot)
	}

	if !cfg.DryRun {
		if err := s.checkWritable(cfg.DestinationRoot); err != nil {
			return nil, err
		}
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}

	return paths, nil
}

func (s *Impl) checkWritable(dir string) error {
	if dir == "" {
		return fmt.Errorf("%w: destination root is empty", ErrDestinationNotWritable)
	}
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrDestinationNotWritable, err)
	}

	probe, err := afero.TempFile(s.fs, dir, ".versionrestore-probe-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDestinationNotWritable, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = s.fs.Remove(name)

	return nil
}

func dedupe(paths []models.ExpectedPath) []models.ExpectedPath {
	seen := make(map[models.ExpectedPath]struct{}, len(paths))
	out := make([]models.ExpectedPath, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
