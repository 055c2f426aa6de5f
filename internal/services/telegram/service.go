// Package telegram sends restore run summaries to a Telegram chat.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fgeck/versionrestore/internal/models"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the Telegram Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// Service defines the interface for Telegram notification operations.
type Service interface {
	SendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error)
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the Telegram Service interface.
type Impl struct {
	httpClient HTTPClient
	logger     zerolog.Logger
	baseURL    string
}

// New creates a new Telegram service.
func New(logger zerolog.Logger) *Impl {
	return NewWithClient(logger, &http.Client{Timeout: 30 * time.Second}, DefaultBaseURL)
}

// NewWithClient creates a new Telegram service with a custom HTTP client (for testing).
func NewWithClient(logger zerolog.Logger, httpClient HTTPClient, baseURL string) *Impl {
	return &Impl{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
	}
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendNotification posts the run summary to the configured chat.
func (s *Impl) SendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error) {
	result := &models.TelegramResult{}

	s.logger.Info().
		Str("chat_id", cfg.ChatID).
		Bool("success", msg.Success).
		Msg("sending Telegram notification")

	body, err := json.Marshal(sendMessageRequest{
		ChatID:    cfg.ChatID,
		Text:      formatMessage(msg),
		ParseMode: "HTML",
	})
	if err != nil {
		result.Error = fmt.Errorf("failed to marshal request: %w", err)
		return result, nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		result.Error = fmt.Errorf("failed to create request: %w", err)
		return result, nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		result.Error = fmt.Errorf("failed to send request: %w", err)
		return result, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Errorf("telegram API returned status %d%s", resp.StatusCode, describe(resp.Body))
		return result, nil
	}

	result.MessageSent = true
	s.logger.Info().Msg("Telegram notification sent successfully")

	return result, nil
}

// describe extracts the API's error description, if any.
func describe(r io.Reader) string {
	var payload apiResponse
	if err := json.NewDecoder(io.LimitReader(r, 64<<10)).Decode(&payload); err != nil || payload.Description == "" {
		return ""
	}
	return ": " + payload.Description
}

func formatMessage(msg models.TelegramMessage) string {
	var b strings.Builder

	switch {
	case !msg.Success:
		b.WriteString("❌ <b>Restore Failed</b>")
	case msg.Missing > 0 || msg.Failed > 0:
		b.WriteString("⚠️ <b>Restore Incomplete</b>")
	default:
		b.WriteString("✅ <b>Restore Complete</b>")
	}
	if msg.DryRun {
		b.WriteString(" <i>(dry run)</i>")
	}
	b.WriteString("\n\n")

	if msg.RunID != "" {
		fmt.Fprintf(&b, "🆔 <b>Run:</b> <code>%s</code>\n", html.EscapeString(msg.RunID))
	}
	fmt.Fprintf(&b, "📂 <b>History:</b> %s\n", html.EscapeString(msg.HistoryRoot))
	fmt.Fprintf(&b, "📁 <b>Destination:</b> %s\n", html.EscapeString(msg.DestinationRoot))
	fmt.Fprintf(&b, "⏰ <b>Started:</b> %s\n", msg.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "⏱ <b>Duration:</b> %s\n", msg.Duration.Round(time.Second))

	if msg.Total > 0 {
		b.WriteString("\n<b>📊 Outcomes:</b>\n")
		fmt.Fprintf(&b, "  • Expected: %d\n", msg.Total)
		fmt.Fprintf(&b, "  • Restored: %d\n", msg.Restored)
		fmt.Fprintf(&b, "  • Missing: %d\n", msg.Missing)
		fmt.Fprintf(&b, "  • Failed: %d\n", msg.Failed)
		fmt.Fprintf(&b, "  • Data restored: %s\n", formatBytes(msg.BytesRestored))
		if msg.MissLogPath != "" && (msg.Missing > 0 || msg.Failed > 0) {
			fmt.Fprintf(&b, "  • Miss log: <code>%s</code>\n", html.EscapeString(msg.MissLogPath))
		}
	}

	if !msg.Success {
		b.WriteString("\n<b>Error Details:</b>\n")
		fmt.Fprintf(&b, "  • Failed step: %s\n", html.EscapeString(msg.FailedStep))
		fmt.Fprintf(&b, "  • Error: <code>%s</code>\n", html.EscapeString(msg.ErrorMessage))
	}

	return b.String()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
