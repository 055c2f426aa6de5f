//go:build integration

package integration

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fgeck/versionrestore/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

var baseTime = time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)

// generatedTree is a synthetic Syncthing history with dirs*files expected
// paths. Every tenth path has no versions at all.
type generatedTree struct {
	historyRoot string
	paths       []models.ExpectedPath
	newest      map[models.ExpectedPath]string
	missing     int
}

func generateTree(t *testing.T, dirs, files int) generatedTree {
	t.Helper()

	tree := generatedTree{
		historyRoot: t.TempDir(),
		newest:      make(map[models.ExpectedPath]string),
	}

	n := 0
	for d := 0; d < dirs; d++ {
		dir := fmt.Sprintf("album-%02d", d)
		require.NoError(t, os.MkdirAll(filepath.Join(tree.historyRoot, dir), 0o755))

		for f := 0; f < files; f++ {
			rel := fmt.Sprintf("%s/img-%03d.jpg", dir, f)
			p, err := models.NewExpectedPath(rel)
			require.NoError(t, err)
			tree.paths = append(tree.paths, p)
			n++

			if n%10 == 0 {
				tree.missing++
				continue
			}

			versions := 1 + n%3
			for v := 0; v < versions; v++ {
				ts := baseTime.Add(time.Duration(n)*time.Minute + time.Duration(v)*time.Hour)
				name := fmt.Sprintf("img-%03d~%s.jpg", f, ts.Format("20060102-150405"))
				content := fmt.Sprintf("%s version %d", rel, v)
				require.NoError(t, os.WriteFile(filepath.Join(tree.historyRoot, dir, name), []byte(content), 0o644))
				tree.newest[p] = content
			}
		}
	}

	return tree
}

// leftoverTemps lists restore temp files remaining under root.
func leftoverTemps(t *testing.T, root string) []string {
	t.Helper()

	var found []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.Contains(d.Name(), ".restore-") {
			found = append(found, path)
		}
		return nil
	})
	require.NoError(t, err)
	return found
}
