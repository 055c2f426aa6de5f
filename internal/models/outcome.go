package models

// OutcomeStatus is the terminal state of one expected path.
type OutcomeStatus string

const (
	StatusRestored OutcomeStatus = "restored"
	StatusMissing  OutcomeStatus = "missing"
	StatusFailed   OutcomeStatus = "failed"
)

// Reason explains a non-restored outcome. Values are written to the miss-log.
type Reason string

const (
	ReasonMissingVersion   Reason = "missing-version"
	ReasonUnreadableSource Reason = "unreadable-source"
	ReasonCollision        Reason = "collision"
	ReasonSizeMismatch     Reason = "size-mismatch"
	ReasonSourceVanished   Reason = "source-vanished"
	ReasonWriteError       Reason = "write-error"
	ReasonCancelled        Reason = "cancelled"
)

// RestoreOutcome is the single result recorded for an expected path.
type RestoreOutcome struct {
	Path        ExpectedPath
	Status      OutcomeStatus
	Source      string // history location, set when restored
	BytesCopied int64
	Reason      Reason // empty when restored
	Detail      string
	DryRun      bool
	Selection   *Selection // nil when no scan took place
}

// Restored builds a successful outcome.
func Restored(p ExpectedPath, source string, bytesCopied int64) RestoreOutcome {
	return RestoreOutcome{Path: p, Status: StatusRestored, Source: source, BytesCopied: bytesCopied}
}

// Missing builds an outcome for a path without a usable version.
func Missing(p ExpectedPath, reason Reason, detail string) RestoreOutcome {
	return RestoreOutcome{Path: p, Status: StatusMissing, Reason: reason, Detail: detail}
}

// Failed builds an outcome for a path whose restore was attempted and failed.
func Failed(p ExpectedPath, reason Reason, detail string) RestoreOutcome {
	return RestoreOutcome{Path: p, Status: StatusFailed, Reason: reason, Detail: detail}
}
