package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/versionrestore/internal/models"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Artifact file names inside the logs directory.
const (
	MissLogFile           = "missing-files.txt"
	RecoveredFile         = "recovered-files.csv"
	PossiblyCorruptedFile = "possibly-corrupted-file-backups.txt"
	SummaryFile           = "restore-summary.yaml"
)

const csvTimeLayout = "2006-01-02 15:04:05"

var recoveredHeader = []string{
	"Original File",
	"Backup File",
	"Timestamp of Backup File",
	"Number of Backup Files Present",
	"Is Last Backup Outside Limit",
	"Last Backup Found",
	"Last Backup Timestamp",
}

// Artifacts holds the paths of the files written for a run.
type Artifacts struct {
	MissLog           string
	Recovered         string
	PossiblyCorrupted string
	Summary           string
}

// Summary is the persisted overview of a run.
type Summary struct {
	RunID           string         `yaml:"run_id"`
	StartedAt       time.Time      `yaml:"started_at"`
	FinishedAt      time.Time      `yaml:"finished_at"`
	DryRun          bool           `yaml:"dry_run"`
	Total           int            `yaml:"total"`
	Restored        int            `yaml:"restored"`
	Missing         int            `yaml:"missing"`
	Failed          int            `yaml:"failed"`
	BytesRestored   int64          `yaml:"bytes_restored"`
	RejectedEntries int            `yaml:"rejected_entries"`
	Reasons         map[string]int `yaml:"reasons,omitempty"`
}

// Summarize builds the persisted overview of r.
func Summarize(r *Report) Summary {
	s := Summary{
		RunID:           r.RunID,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		DryRun:          r.DryRun,
		Total:           r.Total(),
		Restored:        r.Restored(),
		Missing:         r.Missing(),
		Failed:          r.Failed(),
		BytesRestored:   r.BytesRestored(),
		RejectedEntries: r.Rejected(),
	}
	for _, m := range r.Misses() {
		if s.Reasons == nil {
			s.Reasons = make(map[string]int)
		}
		s.Reasons[string(m.Reason)]++
	}
	return s
}

// Writer persists reports into a logs directory.
type Writer struct {
	fs     afero.Fs
	logger zerolog.Logger
}

// NewWriter creates a report writer.
func NewWriter(logger zerolog.Logger, fs afero.Fs) *Writer {
	return &Writer{fs: fs, logger: logger}
}

// Write stores the miss-log, the recovered-files CSV, the possibly-corrupted
// list and the run summary in dir.
func (w *Writer) Write(dir string, r *Report) (*Artifacts, error) {
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating logs directory: %w", err)
	}

	artifacts := &Artifacts{
		MissLog:           filepath.Join(dir, MissLogFile),
		Recovered:         filepath.Join(dir, RecoveredFile),
		PossiblyCorrupted: filepath.Join(dir, PossiblyCorruptedFile),
		Summary:           filepath.Join(dir, SummaryFile),
	}

	if err := w.writeFile(artifacts.MissLog, MissLog(r)); err != nil {
		return nil, err
	}

	recovered, err := RecoveredCSV(r)
	if err != nil {
		return nil, err
	}
	if err := w.writeFile(artifacts.Recovered, recovered); err != nil {
		return nil, err
	}

	var corrupted bytes.Buffer
	for _, p := range r.PossiblyCorrupted() {
		corrupted.WriteString(logPath(p))
		corrupted.WriteByte('\n')
	}
	if err := w.writeFile(artifacts.PossiblyCorrupted, corrupted.Bytes()); err != nil {
		return nil, err
	}

	summary, err := yaml.Marshal(Summarize(r))
	if err != nil {
		return nil, fmt.Errorf("encoding summary: %w", err)
	}
	if err := w.writeFile(artifacts.Summary, summary); err != nil {
		return nil, err
	}

	w.logger.Info().
		Str("miss_log", artifacts.MissLog).
		Str("recovered", artifacts.Recovered).
		Str("possibly_corrupted", artifacts.PossiblyCorrupted).
		Str("summary", artifacts.Summary).
		Msg("run artifacts written")

	return artifacts, nil
}

func (w *Writer) writeFile(name string, data []byte) error {
	if err := afero.WriteFile(w.fs, name, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// MissLog renders one "<path>\t<reason>" line per non-restored outcome.
// Paths that would break the line format are written Go-quoted.
func MissLog(r *Report) []byte {
	var b bytes.Buffer
	for _, m := range r.Misses() {
		b.WriteString(logPath(m.Path))
		b.WriteByte('\t')
		b.WriteString(string(m.Reason))
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// logPath quotes p when it holds a tab, a line break or a leading quote.
func logPath(p models.ExpectedPath) string {
	s := p.String()
	if strings.ContainsAny(s, "\t\n\r") || strings.HasPrefix(s, `"`) {
		return strconv.Quote(s)
	}
	return s
}

// RecoveredCSV renders the restored outcomes with their selection details.
func RecoveredCSV(r *Report) ([]byte, error) {
	var b bytes.Buffer
	cw := csv.NewWriter(&b)

	if err := cw.Write(recoveredHeader); err != nil {
		return nil, fmt.Errorf("encoding csv header: %w", err)
	}

	for _, o := range r.Outcomes() {
		if o.Status != models.StatusRestored {
			continue
		}
		row := []string{o.Path.String(), filepath.Base(o.Source), "", "0", "false", "", ""}
		if sel := o.Selection; sel != nil {
			row[3] = strconv.Itoa(sel.CandidateCount)
			row[4] = strconv.FormatBool(sel.NewestBeyondCutoff)
			if sel.Chosen != nil {
				row[2] = sel.Chosen.Tag.Timestamp.Format(csvTimeLayout)
			}
			if sel.Newest != nil {
				row[5] = filepath.Base(sel.Newest.HistoryLocation)
				row[6] = sel.Newest.Tag.Timestamp.Format(csvTimeLayout)
			}
		}
		if err := cw.Write(row); err != nil {
			return nil, fmt.Errorf("encoding csv row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("encoding csv: %w", err)
	}
	return b.Bytes(), nil
}
