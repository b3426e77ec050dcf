//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/scamshield/internal/export"
	"github.com/dusk-indust/scamshield/internal/record"
)

var update = flag.Bool("update", false, "update golden files")

// goldenDir returns the path to the testdata/golden directory.
func goldenDir() string {
	return filepath.Join("..", "..", "testdata", "golden")
}

// sessionPlaceholder replaces the random session id in golden output.
const sessionPlaceholder = "00000000-0000-0000-0000-000000000000"

// runPipelineForGolden runs the courier call scenario to a full package and
// returns the rendered outputs keyed by golden file name.
func runPipelineForGolden(t *testing.T) map[string][]byte {
	t.Helper()

	o, _ := newPipeline(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	_, id, err := o.StartIntake(ctx, loadIntake(t))
	require.NoError(t, err)
	_, err = o.Verify(ctx, id, "OFC-001", nil)
	require.NoError(t, err)
	_, err = o.RunFull(ctx, id, record.DefaultCreatorConfig())
	require.NoError(t, err)

	st, err := o.GetState(ctx, id)
	require.NoError(t, err)
	exports, err := export.ExportPackage(st, clock)
	require.NoError(t, err)

	out := map[string][]byte{
		"diagram.mmd": []byte(export.GenerateMermaid(st)),
	}
	for _, pe := range exports {
		// Clip paths live under a temp dir and vary between runs.
		pe.Clips = nil
		data, err := json.MarshalIndent(pe, "", "  ")
		require.NoError(t, err)
		data = bytes.ReplaceAll(data, []byte(id), []byte(sessionPlaceholder))
		out[export.FileName(pe)] = append(data, '\n')
	}
	return out
}

// TestGolden compares the pipeline output against golden files. If golden files
// do not exist, the test is skipped with a message to run with -update.
func TestGolden(t *testing.T) {
	outputs := runPipelineForGolden(t)
	gDir := goldenDir()

	for name, actual := range outputs {
		t.Run(name, func(t *testing.T) {
			golden, err := os.ReadFile(filepath.Join(gDir, name))
			if os.IsNotExist(err) {
				t.Skipf("golden file %s not found; run with -update to generate", name)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, string(golden), string(actual),
				"output %s does not match golden file", name)
		})
	}
}

// TestUpdateGolden regenerates golden files from the current pipeline output.
// Run with: go test -tags e2e -run TestUpdateGolden ./internal/e2e/ -update
func TestUpdateGolden(t *testing.T) {
	if !*update {
		t.Skip("skipping golden file update; run with -update flag")
	}

	outputs := runPipelineForGolden(t)
	gDir := goldenDir()
	require.NoError(t, os.MkdirAll(gDir, 0o755))

	for name, data := range outputs {
		require.NoError(t, os.WriteFile(filepath.Join(gDir, name), data, 0o644))
		t.Logf("updated %s", name)
	}
}
