package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fgeck/versionrestore/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	restoreFlags overrides
	strict       bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore the newest version of every expected file",
	Long: `Execute the restore workflow:
1. Wake-on-LAN and wait for the history share (if configured)
2. Resolve the expected paths (reference dir, paths file or inline list)
3. Select and copy the newest readable version of each path
4. Write the miss log, recovered-files CSV and summary to the logs dir
5. SSH shutdown (if configured)
6. Send Telegram notification (if configured)

Paths without a usable version are listed in the miss log; they only make the
command fail when --strict is given.`,
	RunE: runRestore,
}

func init() {
	restoreFlags.register(restoreCmd.Flags())
	restoreCmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any path could not be restored")
}

func runRestore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags(), &restoreFlags)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("invalid configuration")
		return err
	}

	log.Info().
		Str("config", configFile).
		Str("history_root", cfg.Restore.HistoryRoot).
		Str("destination_root", cfg.Restore.DestinationRoot).
		Bool("dry_run", cfg.Restore.DryRun).
		Msg("configuration loaded")

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, finishing in-flight copies")
			cancel()
		case <-ctx.Done():
		}
	}()

	rep, err := runner.New(log.Logger).Run(ctx, *cfg)
	if err != nil {
		log.Error().Err(err).Msg("restore failed")
		return err
	}

	misses := rep.Missing() + rep.Failed()
	if misses > 0 {
		log.Warn().
			Int("restored", rep.Restored()).
			Int("missing", rep.Missing()).
			Int("failed", rep.Failed()).
			Str("logs_dir", cfg.Logs.Dir).
			Msg("restore finished with misses")
		if strict {
			return fmt.Errorf("%d of %d paths were not restored", misses, rep.Total())
		}
		return nil
	}

	log.Info().Int("restored", rep.Restored()).Msg("restore completed successfully")
	return nil
}
