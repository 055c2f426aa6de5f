// Package models contains the data structures used throughout versionrestore.
package models

import "time"

// RestoreConfig holds the complete configuration for a restore run.
type RestoreConfig struct {
	Restore     RestoreSettings
	Logs        LogSettings
	WOL         *WOLConfig         // nil if not configured
	SSHShutdown *SSHShutdownConfig // nil if not configured
	Telegram    *TelegramConfig    // nil if not configured
}

// RestoreSettings holds the restore engine settings.
type RestoreSettings struct {
	HistoryRoot     string
	DestinationRoot string

	// Expected path sources; exactly one is set.
	ReferenceDir string
	PathsFile    string
	Paths        []string

	OverwriteExisting bool
	Concurrency       int // 0 means runtime.NumCPU()
	DryRun            bool
	Grammar           GrammarSettings
	Cutoff            *CutoffSettings // nil if not configured
}

// GrammarSettings selects how version-history filenames are parsed.
type GrammarSettings struct {
	Kind      string // "syncthing" (default) or "suffix"
	Separator string // suffix only, e.g. "~"
	Layout    string // suffix only, Go time layout
}

// CutoffSettings excludes versions written after ReferenceTime+TimeLimit.
type CutoffSettings struct {
	ReferenceTime time.Time
	TimeLimit     time.Duration
}

// NotAfter returns the newest timestamp a version may carry to be eligible.
func (c *CutoffSettings) NotAfter() time.Time {
	if c == nil {
		return time.Time{}
	}
	return c.ReferenceTime.Add(c.TimeLimit)
}

// LogSettings controls where run artifacts are persisted.
type LogSettings struct {
	Dir string
}
