// Package wol wakes the machine that hosts the version history and waits
// until its share is reachable.
package wol

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/fgeck/versionrestore/internal/models"
	"github.com/mdlayher/wol"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Service defines the interface for Wake-on-LAN operations.
type Service interface {
	Wake(ctx context.Context, cfg models.WOLConfig) (*models.WOLResult, error)
}

// Client wraps the wol library for mocking.
type Client interface {
	Wake(broadcastIP string, mac net.HardwareAddr) error
}

// DefaultClient is the default implementation using mdlayher/wol.
type DefaultClient struct{}

// Wake sends a magic packet to the specified MAC address.
func (c *DefaultClient) Wake(broadcastIP string, mac net.HardwareAddr) error {
	client, err := wol.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create WOL client: %w", err)
	}
	defer func() { _ = client.Close() }()

	ip := net.ParseIP(broadcastIP)
	if ip == nil {
		return fmt.Errorf("invalid broadcast IP: %s", broadcastIP)
	}

	if err := client.Wake(ip.String()+":9", mac); err != nil {
		return fmt.Errorf("failed to send WOL packet: %w", err)
	}

	return nil
}

// Impl implements the WOL Service interface.
type Impl struct {
	wolClient Client
	fs        afero.Fs
	logger    zerolog.Logger
}

// New creates a new WOL service that polls the local filesystem.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		wolClient: &DefaultClient{},
		fs:        afero.NewOsFs(),
		logger:    logger,
	}
}

// NewWithClients creates a new WOL service with custom clients (for testing).
func NewWithClients(logger zerolog.Logger, wolClient Client, fs afero.Fs) *Impl {
	return &Impl{
		wolClient: wolClient,
		fs:        fs,
		logger:    logger,
	}
}

// Wake sends a WOL packet and, when a wait path is configured, blocks until
// that path is a readable directory (the history share is mounted).
func (s *Impl) Wake(ctx context.Context, cfg models.WOLConfig) (*models.WOLResult, error) {
	result := &models.WOLResult{}
	start := time.Now()

	mac, err := net.ParseMAC(cfg.MACAddress)
	if err != nil {
		result.Error = fmt.Errorf("invalid MAC address %q: %w", cfg.MACAddress, err)
		return result, nil
	}

	s.logger.Info().
		Str("mac", cfg.MACAddress).
		Str("broadcast", cfg.BroadcastIP).
		Msg("sending WOL packet")

	if err := s.wolClient.Wake(cfg.BroadcastIP, mac); err != nil {
		result.Error = err
		return result, nil //nolint:nilerr
	}

	result.PacketSent = true
	s.logger.Info().Msg("WOL packet sent successfully")

	if cfg.WaitPath == "" {
		result.WaitDuration = time.Since(start)
		result.TargetReady = true
		return result, nil
	}

	s.logger.Info().
		Str("path", cfg.WaitPath).
		Dur("timeout", cfg.Timeout).
		Msg("waiting for history share to become available")

	if err := s.waitForPath(ctx, cfg); err != nil {
		result.WaitDuration = time.Since(start)
		result.Error = err
		return result, nil //nolint:nilerr
	}

	if cfg.StabilizeWait > 0 {
		s.logger.Debug().Str("wait", cfg.StabilizeWait.Round(time.Millisecond).String()).Msg("waiting for share to stabilize")
		select {
		case <-ctx.Done():
			result.WaitDuration = time.Since(start)
			result.Error = ctx.Err()
			return result, nil
		case <-time.After(cfg.StabilizeWait):
		}
	}

	result.TargetReady = true
	result.WaitDuration = time.Since(start)

	s.logger.Info().
		Dur("duration", result.WaitDuration).
		Msg("history share is ready")

	return result, nil
}

func (s *Impl) waitForPath(ctx context.Context, cfg models.WOLConfig) error {
	deadline := time.Now().Add(cfg.Timeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for %s", cfg.WaitPath)
		}

		err := s.probe(cfg.WaitPath)
		if err == nil {
			return nil
		}

		s.logger.Debug().Err(err).Msg("share not ready yet")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.PollInterval):
		}
	}
}

// probe succeeds once path is a directory whose entries can be listed.
// An unmounted share point usually exists as an empty directory, so the
// listing has to return at least one entry.
func (s *Impl) probe(path string) error {
	info, err := s.fs.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}

	f, err := s.fs.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	names, err := f.Readdirnames(1)
	if err != nil || len(names) == 0 {
		return fmt.Errorf("%s is empty", path)
	}
	return nil
}
