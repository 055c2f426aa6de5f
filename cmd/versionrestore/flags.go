package main

import (
	"github.com/fgeck/versionrestore/internal/config"
	"github.com/fgeck/versionrestore/internal/models"
	"github.com/spf13/pflag"
)

// overrides holds the restore settings that can be given on the command line.
type overrides struct {
	historyRoot     string
	destinationRoot string
	referenceDir    string
	pathsFile       string
	logsDir         string
	grammar         string
	referenceTime   string
	overwrite       bool
	concurrency     int
	dryRun          bool
}

func (o *overrides) register(fs *pflag.FlagSet) {
	fs.StringVar(&o.historyRoot, "history-root", "", "version history directory (overrides restore.history_root)")
	fs.StringVar(&o.destinationRoot, "destination-root", "", "recovery tree to write into (overrides restore.destination_root)")
	fs.StringVar(&o.referenceDir, "reference-dir", "", "damaged tree whose files should be restored")
	fs.StringVar(&o.pathsFile, "paths-file", "", "file listing the relative paths to restore, one per line")
	fs.StringVar(&o.logsDir, "logs-dir", "", "directory for the miss log and run summary (overrides logs.dir)")
	fs.StringVar(&o.grammar, "grammar", "", "version name grammar: syncthing or suffix")
	fs.StringVar(&o.referenceTime, "reference-time", "", "ignore versions newer than this time (layout "+config.ReferenceTimeLayout+") plus the time limit")
	fs.BoolVar(&o.overwrite, "overwrite", false, "replace files already present in the recovery tree")
	fs.IntVar(&o.concurrency, "concurrency", 0, "number of paths restored in parallel (0 = number of CPUs)")
	fs.BoolVar(&o.dryRun, "dry-run", false, "select versions and report without copying")
}

// apply copies every flag the user set onto cfg. Setting one expected-path
// source on the command line replaces whichever source the file configured.
func (o *overrides) apply(fs *pflag.FlagSet, cfg *models.RestoreConfig) error {
	r := &cfg.Restore

	if fs.Changed("history-root") {
		r.HistoryRoot = o.historyRoot
	}
	if fs.Changed("destination-root") {
		r.DestinationRoot = o.destinationRoot
	}
	if fs.Changed("reference-dir") || fs.Changed("paths-file") {
		r.ReferenceDir, r.PathsFile, r.Paths = "", "", nil
		if fs.Changed("reference-dir") {
			r.ReferenceDir = o.referenceDir
		}
		if fs.Changed("paths-file") {
			r.PathsFile = o.pathsFile
		}
	}
	if fs.Changed("logs-dir") {
		cfg.Logs.Dir = o.logsDir
	}
	if fs.Changed("grammar") {
		r.Grammar.Kind = o.grammar
	}
	if fs.Changed("reference-time") {
		ref, err := config.ParseReferenceTime(o.referenceTime)
		if err != nil {
			return err
		}
		if r.Cutoff == nil {
			r.Cutoff = &models.CutoffSettings{TimeLimit: config.DefaultTimeLimit}
		}
		r.Cutoff.ReferenceTime = ref
	}
	if fs.Changed("overwrite") {
		r.OverwriteExisting = o.overwrite
	}
	if fs.Changed("concurrency") {
		r.Concurrency = o.concurrency
	}
	if fs.Changed("dry-run") {
		r.DryRun = o.dryRun
	}
	return nil
}

// loadConfig reads the config file, if any, applies flag overrides and
// validates the result.
func loadConfig(fs *pflag.FlagSet, o *overrides) (*models.RestoreConfig, error) {
	parser := config.NewParser()

	var (
		cfg *models.RestoreConfig
		err error
	)
	if configFile != "" {
		cfg, err = parser.LoadFile(configFile)
	} else {
		cfg, err = parser.LoadDefaults()
	}
	if err != nil {
		return nil, err
	}

	if err := o.apply(fs, cfg); err != nil {
		return nil, err
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
