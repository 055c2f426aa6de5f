// Package runner orchestrates a restore run: wake the history host, resolve
// the expected layout, restore, persist the logs, shut the host down and
// notify.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/fgeck/versionrestore/internal/models"
	"github.com/fgeck/versionrestore/internal/services/engine"
	"github.com/fgeck/versionrestore/internal/services/layout"
	"github.com/fgeck/versionrestore/internal/services/report"
	"github.com/fgeck/versionrestore/internal/services/ssh"
	"github.com/fgeck/versionrestore/internal/services/telegram"
	"github.com/fgeck/versionrestore/internal/services/versiontag"
	"github.com/fgeck/versionrestore/internal/services/wol"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Step names reported when a run fails.
const (
	StepWOL         = "wol"
	StepLayout      = "layout"
	StepRestore     = "restore"
	StepReport      = "report"
	StepSSHShutdown = "ssh_shutdown"
)

// Service defines the interface for the restore runner.
type Service interface {
	Run(ctx context.Context, cfg models.RestoreConfig) (*report.Report, error)
}

// ArtifactWriter persists a finished report.
type ArtifactWriter interface {
	Write(dir string, r *report.Report) (*report.Artifacts, error)
}

// Impl implements the runner Service interface.
type Impl struct {
	wolSvc      wol.Service
	layoutSvc   layout.Service
	engineSvc   engine.Service
	writer      ArtifactWriter
	sshSvc      ssh.Service
	telegramSvc telegram.Service
	logger      zerolog.Logger
	newRunID    func() string
}

// New creates a new runner service working on the local filesystem.
func New(logger zerolog.Logger) *Impl {
	fs := afero.NewOsFs()
	return NewWithServices(
		logger,
		wol.New(logger),
		layout.New(logger, fs),
		engine.New(logger, fs),
		report.NewWriter(logger, fs),
		ssh.New(logger),
		telegram.New(logger),
	)
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	wolSvc wol.Service,
	layoutSvc layout.Service,
	engineSvc engine.Service,
	writer ArtifactWriter,
	sshSvc ssh.Service,
	telegramSvc telegram.Service,
) *Impl {
	return &Impl{
		wolSvc:      wolSvc,
		layoutSvc:   layoutSvc,
		engineSvc:   engineSvc,
		writer:      writer,
		sshSvc:      sshSvc,
		telegramSvc: telegramSvc,
		logger:      logger,
		newRunID:    uuid.NewString,
	}
}

// run carries the state a notification needs.
type run struct {
	id         string
	start      time.Time
	failedStep string
	err        error
	report     *report.Report
	artifacts  *report.Artifacts
}

func (r *run) fail(step string, err error) error {
	if r.err == nil {
		r.failedStep = step
		r.err = err
	}
	return err
}

// Run executes the complete restore workflow. A report is returned whenever
// the engine got to process paths, including interrupted runs.
func (s *Impl) Run(ctx context.Context, cfg models.RestoreConfig) (*report.Report, error) {
	r := &run{id: s.newRunID(), start: time.Now()}

	s.logger.Info().
		Str("run_id", r.id).
		Str("history_root", cfg.Restore.HistoryRoot).
		Str("destination_root", cfg.Restore.DestinationRoot).
		Msg("starting restore run")

	defer func() {
		if cfg.Telegram != nil {
			s.sendNotification(ctx, cfg, r)
		}
	}()

	if cfg.WOL != nil {
		if err := s.runWOL(ctx, cfg); err != nil {
			return nil, r.fail(StepWOL, err)
		}
	}

	s.restore(ctx, cfg, r)

	// The history host goes back to sleep whatever the restore did.
	if cfg.SSHShutdown != nil {
		if err := s.runSSHShutdown(ctx, cfg.SSHShutdown); err != nil {
			_ = r.fail(StepSSHShutdown, err)
		}
	}

	if r.err != nil {
		return r.report, r.err
	}

	s.logger.Info().
		Str("run_id", r.id).
		Dur("duration", time.Since(r.start)).
		Msg("restore run completed")

	return r.report, nil
}

// restore resolves the layout, runs the engine and persists its report.
func (s *Impl) restore(ctx context.Context, cfg models.RestoreConfig, r *run) {
	paths, err := s.layoutSvc.Resolve(cfg.Restore, cfg.Logs.Dir)
	if err != nil {
		_ = r.fail(StepLayout, fmt.Errorf("resolving expected paths: %w", err))
		return
	}

	parser, err := versiontag.New(cfg.Restore.Grammar)
	if err != nil {
		_ = r.fail(StepLayout, err)
		return
	}

	rep, err := s.engineSvc.Run(ctx, engine.Config{
		RunID:             r.id,
		ExpectedPaths:     paths,
		HistoryRoot:       cfg.Restore.HistoryRoot,
		DestinationRoot:   cfg.Restore.DestinationRoot,
		OverwriteExisting: cfg.Restore.OverwriteExisting,
		Concurrency:       cfg.Restore.Concurrency,
		DryRun:            cfg.Restore.DryRun,
		Cutoff:            cfg.Restore.Cutoff,
		Parser:            parser,
	})
	if err != nil {
		_ = r.fail(StepRestore, err)
	}
	if rep == nil {
		return
	}
	r.report = rep

	artifacts, err := s.writer.Write(cfg.Logs.Dir, rep)
	if err != nil {
		s.logger.Error().Err(err).Str("dir", cfg.Logs.Dir).Msg("failed to write run logs")
		_ = r.fail(StepReport, fmt.Errorf("writing run logs: %w", err))
		return
	}
	r.artifacts = artifacts
}

func (s *Impl) runWOL(ctx context.Context, cfg models.RestoreConfig) error {
	wolCfg := *cfg.WOL
	if wolCfg.WaitPath == "" {
		wolCfg.WaitPath = cfg.Restore.HistoryRoot
	}

	result, err := s.wolSvc.Wake(ctx, wolCfg)
	if err != nil {
		return fmt.Errorf("WOL failed: %w", err)
	}
	if result.Error != nil {
		return fmt.Errorf("WOL failed: %w", result.Error)
	}
	if !result.TargetReady {
		return fmt.Errorf("history share did not become ready after WOL")
	}

	s.logger.Info().
		Bool("packet_sent", result.PacketSent).
		Dur("wait_duration", result.WaitDuration).
		Msg("WOL completed")

	return nil
}

func (s *Impl) runSSHShutdown(ctx context.Context, cfg *models.SSHShutdownConfig) error {
	// The run context may already be cancelled; the host should still go to sleep.
	ctx = context.WithoutCancel(ctx)

	result, err := s.sshSvc.Shutdown(ctx, *cfg)
	if err != nil {
		return fmt.Errorf("SSH shutdown failed: %w", err)
	}
	if result.Error != nil && !result.CommandRun {
		return fmt.Errorf("SSH shutdown failed: %w", result.Error)
	}

	s.logger.Info().
		Str("host", cfg.Host).
		Bool("command_run", result.CommandRun).
		Msg("SSH shutdown command sent")

	return nil
}

func (s *Impl) sendNotification(ctx context.Context, cfg models.RestoreConfig, r *run) {
	msg := models.TelegramMessage{
		Success:         r.err == nil,
		RunID:           r.id,
		HistoryRoot:     cfg.Restore.HistoryRoot,
		DestinationRoot: cfg.Restore.DestinationRoot,
		StartTime:       r.start,
		Duration:        time.Since(r.start),
		DryRun:          cfg.Restore.DryRun,
	}

	if r.err != nil {
		msg.FailedStep = r.failedStep
		msg.ErrorMessage = r.err.Error()
	}

	if r.report != nil {
		msg.Total = r.report.Total()
		msg.Restored = r.report.Restored()
		msg.Missing = r.report.Missing()
		msg.Failed = r.report.Failed()
		msg.BytesRestored = r.report.BytesRestored()
	}
	if r.artifacts != nil {
		msg.MissLogPath = r.artifacts.MissLog
	}

	result, err := s.telegramSvc.SendNotification(context.WithoutCancel(ctx), *cfg.Telegram, msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		s.logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
		return
	}

	s.logger.Info().Msg("Telegram notification sent")
}
