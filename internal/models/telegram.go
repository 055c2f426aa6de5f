package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage summarizes a restore run for notification.
type TelegramMessage struct {
	Success         bool
	RunID           string
	HistoryRoot     string
	DestinationRoot string
	StartTime       time.Time
	Duration        time.Duration
	DryRun          bool

	// Report counts (if the engine ran).
	Total         int
	Restored      int
	Missing       int
	Failed        int
	BytesRestored int64
	MissLogPath   string

	// Error info (if failed).
	ErrorMessage string
	FailedStep   string
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
