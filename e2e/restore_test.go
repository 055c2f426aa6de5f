//go:build e2e

package e2e

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fgeck/versionrestore/internal/models"
	"github.com/fgeck/versionrestore/internal/services/engine"
	"github.com/fgeck/versionrestore/internal/services/layout"
	"github.com/fgeck/versionrestore/internal/services/report"
	"github.com/fgeck/versionrestore/internal/services/runner"
	"github.com/fgeck/versionrestore/internal/services/ssh"
	"github.com/fgeck/versionrestore/internal/services/telegram"
	"github.com/fgeck/versionrestore/internal/services/wol"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// fakeTelegram is a stand-in for the Bot API that keeps every message text.
type fakeTelegram struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	f.texts = append(f.texts, body.Text)
	f.mu.Unlock()
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func (f *fakeTelegram) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func writeFile(t *testing.T, name, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, os.WriteFile(name, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(name, mtime, mtime))
}

// syncthingTree lays out a damaged reference tree and its .stversions history.
func syncthingTree(t *testing.T) (ref, history string) {
	t.Helper()
	root := t.TempDir()
	ref = filepath.Join(root, "photos")
	history = filepath.Join(root, ".stversions")
	old := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

	writeFile(t, filepath.Join(ref, "2024/beach.jpg"), "encrypted", old)
	writeFile(t, filepath.Join(ref, "2024/dinner.jpg"), "encrypted", old)
	writeFile(t, filepath.Join(ref, ".hidden"), "encrypted", old)
	writeFile(t, filepath.Join(ref, "notes.txt"), "encrypted", old)

	writeFile(t, filepath.Join(history, "2024/beach~20240701-120000.jpg"), "beach v1", old)
	writeFile(t, filepath.Join(history, "2024/beach~20240710-120000.jpg"), "beach v2", old)
	writeFile(t, filepath.Join(history, "2024/beach~20240714-190000.jpg"), "encrypted", old)
	writeFile(t, filepath.Join(history, "2024/dinner~20240702-080000.jpg"), "dinner", old)
	writeFile(t, filepath.Join(history, "~20240705-101010.hidden"), "hidden", old)
	writeFile(t, filepath.Join(history, "2024/beach.jpg.tmp"), "junk", old)
	return ref, history
}

func TestRestoreRun_SyncthingHistory_E2E(t *testing.T) {
	ref, history := syncthingTree(t)
	dest := filepath.Join(t.TempDir(), "recovery")
	logsDir := filepath.Join(t.TempDir(), "logs")

	keyPath, pub := writeClientKey(t)
	sshHost, sshPort, cmds := startSSHServer(t, pub, "Shutdown scheduled\n")

	tg := &fakeTelegram{}
	api := httptest.NewServer(tg)
	defer api.Close()

	logger := testLogger()
	fs := afero.NewOsFs()
	r := runner.NewWithServices(
		logger,
		wol.NewWithClients(logger, silentNIC{}, fs),
		layout.New(logger, fs),
		engine.New(logger, fs),
		report.NewWriter(logger, fs),
		ssh.New(logger),
		telegram.NewWithClient(logger, api.Client(), api.URL),
	)

	cfg := models.RestoreConfig{
		Restore: models.RestoreSettings{
			HistoryRoot:     history,
			DestinationRoot: dest,
			ReferenceDir:    ref,
			Concurrency:     2,
			Cutoff: &models.CutoffSettings{
				ReferenceTime: time.Date(2024, 7, 14, 15, 0, 0, 0, time.UTC),
				TimeLimit:     3 * time.Hour,
			},
		},
		Logs: models.LogSettings{Dir: logsDir},
		WOL: &models.WOLConfig{
			MACAddress:   "AA:BB:CC:DD:EE:FF",
			BroadcastIP:  "255.255.255.255",
			Timeout:      5 * time.Second,
			PollInterval: 50 * time.Millisecond,
		},
		SSHShutdown: &models.SSHShutdownConfig{
			Host:          sshHost,
			Port:          sshPort,
			Username:      "nas",
			KeyPath:       keyPath,
			ShutdownDelay: 1,
			OS:            "linux",
		},
		Telegram: &models.TelegramConfig{BotToken: "123:abc", ChatID: "42"},
	}

	rep, err := r.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 4, rep.Total())
	assert.Equal(t, 3, rep.Restored())
	assert.Equal(t, 1, rep.Missing())
	assert.Equal(t, 0, rep.Failed())
	assert.Equal(t, 1, rep.Rejected(), "beach.jpg.tmp is not a version entry")

	// The 19:00 version is past the 18:00 cutoff, so v2 wins.
	got, err := os.ReadFile(filepath.Join(dest, "2024/beach.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "beach v2", string(got))

	got, err = os.ReadFile(filepath.Join(dest, ".hidden"))
	require.NoError(t, err)
	assert.Equal(t, "hidden", string(got))

	_, err = os.Stat(filepath.Join(dest, "notes.txt"))
	assert.True(t, os.IsNotExist(err))

	// Artifacts.
	missLog, err := os.ReadFile(filepath.Join(logsDir, report.MissLogFile))
	require.NoError(t, err)
	assert.Equal(t, "notes.txt\tmissing-version\n", string(missLog))

	corrupted, err := os.ReadFile(filepath.Join(logsDir, report.PossiblyCorruptedFile))
	require.NoError(t, err)
	assert.Equal(t, "2024/beach.jpg\n", string(corrupted))

	f, err := os.Open(filepath.Join(logsDir, report.RecoveredFile))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 4, "header plus one row per restored file")

	raw, err := os.ReadFile(filepath.Join(logsDir, report.SummaryFile))
	require.NoError(t, err)
	var summary report.Summary
	require.NoError(t, yaml.Unmarshal(raw, &summary))
	assert.Equal(t, rep.RunID, summary.RunID)
	assert.Equal(t, 3, summary.Restored)
	assert.Equal(t, 1, summary.Missing)

	// Host lifecycle.
	assert.Equal(t, []string{"sudo shutdown -h +1"}, cmds.all())
	msgs := tg.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Restore Incomplete")
	assert.Contains(t, msgs[0], rep.RunID)

	// A second run leaves the restored files alone and reports them as collisions.
	rep2, err := r.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, rep2.Restored())
	assert.Equal(t, 3, rep2.Failed())
	assert.Equal(t, 1, rep2.Missing())
	for _, o := range rep2.Outcomes() {
		if o.Status == models.StatusFailed {
			assert.Equal(t, models.ReasonCollision, o.Reason)
		}
	}
	got, err = os.ReadFile(filepath.Join(dest, "2024/beach.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "beach v2", string(got))
}

func TestRestoreRun_PathsFileSuffixGrammar_E2E(t *testing.T) {
	root := t.TempDir()
	history := filepath.Join(root, "history")
	dest := filepath.Join(root, "out")
	mtime := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	writeFile(t, filepath.Join(history, "docs/report.txt~20230101T000000"), "v1", mtime)
	writeFile(t, filepath.Join(history, "docs/report.txt~20230301T000000"), "v3", mtime)
	writeFile(t, filepath.Join(history, "docs/report.txt~garbage"), "junk", mtime)

	pathsFile := filepath.Join(root, "paths.txt")
	require.NoError(t, os.WriteFile(pathsFile, []byte("# damaged files\ndocs/report.txt\r\n\nmissing/file.bin\n"), 0o644))

	r := runner.New(testLogger())

	rep, err := r.Run(context.Background(), models.RestoreConfig{
		Restore: models.RestoreSettings{
			HistoryRoot:     history,
			DestinationRoot: dest,
			PathsFile:       pathsFile,
			Grammar:         models.GrammarSettings{Kind: "suffix"},
		},
		Logs: models.LogSettings{Dir: filepath.Join(root, "logs")},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, rep.Total())
	assert.Equal(t, 1, rep.Restored())
	assert.Equal(t, 1, rep.Missing())

	got, err := os.ReadFile(filepath.Join(dest, "docs/report.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v3", string(got))

	info, err := os.Stat(filepath.Join(dest, "docs/report.txt"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime), "modification time is carried over")

	missLog, err := os.ReadFile(filepath.Join(root, "logs", report.MissLogFile))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(missLog), "missing/file.bin\t"))
}

func TestRestoreRun_DryRun_E2E(t *testing.T) {
	ref, history := syncthingTree(t)
	dest := filepath.Join(t.TempDir(), "recovery")

	rep, err := runner.New(testLogger()).Run(context.Background(), models.RestoreConfig{
		Restore: models.RestoreSettings{
			HistoryRoot:     history,
			DestinationRoot: dest,
			ReferenceDir:    ref,
			DryRun:          true,
		},
		Logs: models.LogSettings{Dir: filepath.Join(t.TempDir(), "logs")},
	})

	require.NoError(t, err)
	assert.Equal(t, 3, rep.Restored())
	assert.Zero(t, rep.BytesRestored())
	_, err = os.Stat(dest)
	assert.True(t, os.IsNotExist(err), "dry run does not create the destination")
}
