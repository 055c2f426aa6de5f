// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fgeck/versionrestore/internal/models"
	"github.com/fgeck/versionrestore/internal/services/versiontag"
	"github.com/spf13/viper"
)

// ReferenceTimeLayout is the layout of cutoff.reference_time.
const ReferenceTimeLayout = "20060102-150405"

// Defaults applied when a value is not configured.
const (
	DefaultDestinationRoot = "recovery"
	DefaultLogsDir         = "logs"
	DefaultTimeLimit       = 3 * time.Hour
)

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser. Scalar keys can also be
// supplied as VERSIONRESTORE_* environment variables, e.g.
// VERSIONRESTORE_RESTORE_HISTORY_ROOT.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("VERSIONRESTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.RestoreConfig, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a string (useful for testing).
func (p *Parser) LoadReader(content string) (*models.RestoreConfig, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

// LoadDefaults builds a configuration from defaults and environment only,
// for runs driven entirely by flags.
func (p *Parser) LoadDefaults() (*models.RestoreConfig, error) {
	return p.parse()
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.RestoreConfig, error) {
	cfg := &models.RestoreConfig{}

	// Parse restore settings.
	cfg.Restore = models.RestoreSettings{
		HistoryRoot:       p.expandEnv(p.v.GetString("restore.history_root")),
		DestinationRoot:   p.expandEnv(p.v.GetString("restore.destination_root")),
		ReferenceDir:      p.expandEnv(p.v.GetString("restore.reference_dir")),
		PathsFile:         p.expandEnv(p.v.GetString("restore.paths_file")),
		Paths:             p.v.GetStringSlice("restore.paths"),
		OverwriteExisting: p.v.GetBool("restore.overwrite_existing"),
		Concurrency:       p.v.GetInt("restore.concurrency"),
		DryRun:            p.v.GetBool("restore.dry_run"),
		Grammar: models.GrammarSettings{
			Kind:      p.v.GetString("restore.grammar.kind"),
			Separator: p.v.GetString("restore.grammar.separator"),
			Layout:    p.v.GetString("restore.grammar.layout"),
		},
	}

	if cfg.Restore.DestinationRoot == "" {
		cfg.Restore.DestinationRoot = DefaultDestinationRoot
	}
	if cfg.Restore.Concurrency < 0 {
		return nil, fmt.Errorf("restore.concurrency must not be negative")
	}
	if cfg.Restore.Grammar.Kind == "" {
		cfg.Restore.Grammar.Kind = versiontag.GrammarSyncthing
	}
	if _, err := versiontag.New(cfg.Restore.Grammar); err != nil {
		return nil, fmt.Errorf("restore.grammar.kind: %w", err)
	}

	// Parse optional cutoff.
	if p.v.IsSet("restore.cutoff") {
		raw := p.v.GetString("restore.cutoff.reference_time")
		if raw == "" {
			return nil, fmt.Errorf("restore.cutoff.reference_time is required when cutoff is configured")
		}
		ref, err := ParseReferenceTime(raw)
		if err != nil {
			return nil, err
		}
		cfg.Restore.Cutoff = &models.CutoffSettings{
			ReferenceTime: ref,
			TimeLimit:     p.v.GetDuration("restore.cutoff.time_limit"),
		}
		if !p.v.IsSet("restore.cutoff.time_limit") {
			cfg.Restore.Cutoff.TimeLimit = DefaultTimeLimit
		}
	}

	// Parse logs settings.
	cfg.Logs = models.LogSettings{
		Dir: p.expandEnv(p.v.GetString("logs.dir")),
	}
	if cfg.Logs.Dir == "" {
		cfg.Logs.Dir = DefaultLogsDir
	}

	// Parse optional WOL config.
	if p.v.IsSet("wol") { //nolint:nestif // config parsing with defaults
		cfg.WOL = &models.WOLConfig{
			MACAddress:    p.v.GetString("wol.mac_address"),
			BroadcastIP:   p.v.GetString("wol.broadcast_ip"),
			WaitPath:      p.expandEnv(p.v.GetString("wol.wait_path")),
			Timeout:       p.v.GetDuration("wol.timeout"),
			PollInterval:  p.v.GetDuration("wol.poll_interval"),
			StabilizeWait: p.v.GetDuration("wol.stabilize_wait"),
		}

		if cfg.WOL.MACAddress == "" {
			return nil, fmt.Errorf("wol.mac_address is required when wol is configured")
		}

		// Set defaults.
		if cfg.WOL.BroadcastIP == "" {
			cfg.WOL.BroadcastIP = "255.255.255.255"
		}
		if cfg.WOL.Timeout == 0 {
			cfg.WOL.Timeout = 5 * time.Minute
		}
		if cfg.WOL.PollInterval == 0 {
			cfg.WOL.PollInterval = 10 * time.Second
		}
		if cfg.WOL.StabilizeWait == 0 {
			cfg.WOL.StabilizeWait = 10 * time.Second
		}
	}

	// Parse optional SSH shutdown config.
	if p.v.IsSet("ssh_shutdown") { //nolint:nestif // config parsing with defaults
		cfg.SSHShutdown = &models.SSHShutdownConfig{
			Host:          p.v.GetString("ssh_shutdown.host"),
			Port:          p.v.GetInt("ssh_shutdown.port"),
			Username:      p.v.GetString("ssh_shutdown.username"),
			KeyPath:       p.expandEnv(p.v.GetString("ssh_shutdown.key_path")),
			ShutdownDelay: p.v.GetInt("ssh_shutdown.shutdown_delay"),
			OS:            p.v.GetString("ssh_shutdown.os"),
		}

		if cfg.SSHShutdown.Host == "" {
			return nil, fmt.Errorf("ssh_shutdown.host is required when ssh_shutdown is configured")
		}
		if cfg.SSHShutdown.Port == 0 {
			cfg.SSHShutdown.Port = 22
		}
		if cfg.SSHShutdown.Username == "" {
			cfg.SSHShutdown.Username = "root"
		}
		if cfg.SSHShutdown.KeyPath == "" {
			return nil, fmt.Errorf("ssh_shutdown.key_path is required when ssh_shutdown is configured")
		}
		if cfg.SSHShutdown.ShutdownDelay == 0 {
			cfg.SSHShutdown.ShutdownDelay = 1
		}
		if cfg.SSHShutdown.OS == "" {
			cfg.SSHShutdown.OS = "linux"
		}
		validOS := map[string]bool{"linux": true, "windows": true}
		if !validOS[cfg.SSHShutdown.OS] {
			return nil, fmt.Errorf("ssh_shutdown.os must be one of: linux, windows")
		}
	}

	// Parse optional Telegram config.
	if p.v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("telegram.chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, fmt.Errorf("telegram.bot_token is required when telegram is configured")
		}
		if cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram.chat_id is required when telegram is configured")
		}
	}

	return cfg, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// ParseReferenceTime parses a cutoff reference time such as "20240714-180000".
func ParseReferenceTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(ReferenceTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("reference time %q must use layout %s: %w", s, ReferenceTimeLayout, err)
	}
	return t, nil
}

// Validate performs validation on the loaded configuration, after any
// command line overrides have been applied.
func Validate(cfg *models.RestoreConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.Restore.HistoryRoot == "" {
		return fmt.Errorf("restore.history_root is required")
	}

	if cfg.Restore.DestinationRoot == "" {
		return fmt.Errorf("restore.destination_root is required")
	}

	sources := 0
	if cfg.Restore.ReferenceDir != "" {
		sources++
	}
	if cfg.Restore.PathsFile != "" {
		sources++
	}
	if len(cfg.Restore.Paths) > 0 {
		sources++
	}
	switch {
	case sources == 0:
		return fmt.Errorf("one of restore.reference_dir, restore.paths_file or restore.paths is required")
	case sources > 1:
		return fmt.Errorf("only one of restore.reference_dir, restore.paths_file or restore.paths may be set")
	}

	if cfg.Restore.Concurrency < 0 {
		return fmt.Errorf("restore.concurrency must not be negative")
	}

	if _, err := versiontag.New(cfg.Restore.Grammar); err != nil {
		return err
	}

	if cfg.Logs.Dir == "" {
		return fmt.Errorf("logs.dir is required")
	}

	return nil
}
