package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fgeck/versionrestore/internal/services/layout"
	"github.com/fgeck/versionrestore/internal/services/ssh"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	validateFlags overrides
	checkSSH      bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and expected paths",
	Long: `Validate the configuration without restoring anything. The expected
paths are resolved and counted; with --check-ssh the shutdown host is
contacted as well.`,
	RunE: validateConfig,
}

func init() {
	validateFlags.register(validateCmd.Flags())
	validateCmd.Flags().BoolVar(&checkSSH, "check-ssh", false, "test the SSH connection to the shutdown host")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			log.Error().Str("file", configFile).Msg("config file not found")
			return fmt.Errorf("config file not found: %s", configFile)
		}
	}

	cfg, err := loadConfig(cmd.Flags(), &validateFlags)
	if err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	paths, err := layout.New(log.Logger, afero.NewOsFs()).Resolve(cfg.Restore, cfg.Logs.Dir)
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve expected paths")
		return err
	}

	out := cmd.OutOrStdout()
	r := cfg.Restore

	fmt.Fprintln(out, "Configuration is valid!")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Summary:")
	fmt.Fprintf(out, "  History root: %s\n", r.HistoryRoot)
	fmt.Fprintf(out, "  Destination root: %s\n", r.DestinationRoot)
	switch {
	case r.ReferenceDir != "":
		fmt.Fprintf(out, "  Reference dir: %s\n", r.ReferenceDir)
	case r.PathsFile != "":
		fmt.Fprintf(out, "  Paths file: %s\n", r.PathsFile)
	}
	fmt.Fprintf(out, "  Expected paths: %d\n", len(paths))
	fmt.Fprintf(out, "  Grammar: %s\n", r.Grammar.Kind)
	fmt.Fprintf(out, "  Overwrite existing: %v\n", r.OverwriteExisting)
	fmt.Fprintf(out, "  Dry run: %v\n", r.DryRun)
	fmt.Fprintf(out, "  Logs dir: %s\n", cfg.Logs.Dir)
	if r.Cutoff != nil {
		fmt.Fprintf(out, "  Cutoff: versions after %s are ignored\n", r.Cutoff.NotAfter().Format(time.RFC3339))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Optional Features:")
	fmt.Fprintf(out, "  Wake-on-LAN: %v\n", cfg.WOL != nil)
	fmt.Fprintf(out, "  SSH Shutdown: %v\n", cfg.SSHShutdown != nil)
	fmt.Fprintf(out, "  Telegram: %v\n", cfg.Telegram != nil)

	if cfg.WOL != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "WOL Configuration:")
		fmt.Fprintf(out, "  MAC Address: %s\n", cfg.WOL.MACAddress)
		fmt.Fprintf(out, "  Broadcast IP: %s\n", cfg.WOL.BroadcastIP)
		waitPath := cfg.WOL.WaitPath
		if waitPath == "" {
			waitPath = cfg.Restore.HistoryRoot
		}
		fmt.Fprintf(out, "  Wait path: %s\n", waitPath)
	}

	if cfg.SSHShutdown != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "SSH Shutdown Configuration:")
		fmt.Fprintf(out, "  Host: %s\n", cfg.SSHShutdown.Host)
		fmt.Fprintf(out, "  Port: %d\n", cfg.SSHShutdown.Port)
		fmt.Fprintf(out, "  Username: %s\n", cfg.SSHShutdown.Username)
		fmt.Fprintf(out, "  OS: %s\n", cfg.SSHShutdown.OS)
		fmt.Fprintf(out, "  Shutdown Delay: %d minute(s)\n", cfg.SSHShutdown.ShutdownDelay)

		if checkSSH {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			result, err := ssh.New(log.Logger).TestConnection(ctx, *cfg.SSHShutdown)
			if err == nil {
				err = result.Error
			}
			if err != nil {
				log.Error().Err(err).Str("host", cfg.SSHShutdown.Host).Msg("SSH connection test failed")
				return err
			}
			fmt.Fprintln(out, "  Connection: OK")
		}
	}

	if cfg.Telegram != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Telegram Configuration:")
		fmt.Fprintf(out, "  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Fprintln(out, "  Bot Token: (configured)")
	}

	return nil
}
