package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/veil/internal/config"
)

// setupConfig points the data directory at a temp dir and disables the NER
// sidecar so commands run pattern-only and leave no state behind.
func setupConfig(t *testing.T) string {
	t.Helper()
	keys := []string{config.KeyDataDir, config.KeyNERBaseURL}
	prior := map[string]any{}
	for _, k := range keys {
		prior[k] = viper.Get(k)
	}
	t.Cleanup(func() {
		for _, k := range keys {
			viper.Set(k, prior[k])
		}
	})

	dir := t.TempDir()
	viper.Set(config.KeyDataDir, dir)
	viper.Set(config.KeyNERBaseURL, "")
	return dir
}

func newTestCmd(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	return cmd, buf
}

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRunBatch_MalformedJSONLRecordSkipped(t *testing.T) {
	dir := setupConfig(t)

	dataset := writeFixture(t, dir, "data.jsonl", `{"id": "a", "text": "mail user@example.com now"}
{"broken json
{"id": "c", "text": "server at 192.168.1.100 up"}
`)
	csvPath := filepath.Join(dir, "results.csv")

	batchMode = "mask"
	batchWorkers = 2
	batchOut = csvPath
	batchExpected = ""
	batchStore = false

	cmd, buf := newTestCmd(t)
	require.NoError(t, runBatch(cmd, []string{dataset}))

	output := buf.String()
	assert.Contains(t, output, "Documents evaluated:   2")
	assert.Contains(t, output, "Failures:              1")
	assert.Contains(t, output, "Mean entities found:   1.00")

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 4, "header, two results, one decode failure")
	assert.Equal(t, "a", rows[1][0])
	assert.Contains(t, rows[1][5], "[EMAIL]")
	assert.Equal(t, "c", rows[2][0])
	assert.Contains(t, rows[2][5], "[IP_ADDRESS]")
	assert.Contains(t, rows[3][5], "FAILED (decode_failure)")
}

func TestRunBatch_UnknownMode(t *testing.T) {
	dir := setupConfig(t)
	dataset := writeFixture(t, dir, "data.jsonl", `{"id": "a", "text": "hello"}`+"\n")

	batchMode = "highlight"
	batchOut = ""
	batchExpected = ""
	batchStore = false

	cmd, _ := newTestCmd(t)
	err := runBatch(cmd, []string{dataset})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown redaction mode")
}

func TestRunBatch_StoreThenRunsAndShow(t *testing.T) {
	dir := setupConfig(t)
	dataset := writeFixture(t, dir, "data.jsonl", `{"id": "a", "text": "mail user@example.com now"}
{"id": "b", "text": "call 5551234567 back"}
`)

	batchMode = "mask"
	batchWorkers = 1
	batchOut = ""
	batchExpected = ""
	batchStore = true

	cmd, _ := newTestCmd(t)
	require.NoError(t, runBatch(cmd, []string{dataset}))

	runsLimit = 20
	runsShow = ""
	cmd, buf := newTestCmd(t)
	require.NoError(t, runRuns(cmd, nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "mode=mask")
	assert.Contains(t, lines[0], "docs=2")
	runID := strings.Fields(lines[0])[0]

	runsShow = runID
	t.Cleanup(func() { runsShow = "" })
	cmd, buf = newTestCmd(t)
	require.NoError(t, runRuns(cmd, nil))

	output := buf.String()
	assert.Contains(t, output, "a ")
	assert.Contains(t, output, "b ")
	assert.Contains(t, output, "[EMAIL]")
	assert.Contains(t, output, "[PHONE]")
	assert.Contains(t, output, "similarity=")
}

func TestRunRuns_NoDatabase(t *testing.T) {
	setupConfig(t)

	runsShow = ""
	cmd, buf := newTestCmd(t)
	require.NoError(t, runRuns(cmd, nil))
	assert.Contains(t, buf.String(), "No stored runs.")
}

func TestRunProcess_MaskFile(t *testing.T) {
	dir := setupConfig(t)
	path := writeFixture(t, dir, "note.txt", "mail user@example.com now")

	processMode = "mask"
	processExpected = ""

	cmd, buf := newTestCmd(t)
	require.NoError(t, runProcess(cmd, []string{path}))

	output := buf.String()
	assert.Contains(t, output, "mail [EMAIL] now")
	assert.Contains(t, output, "Detected entities (1):")
	assert.Contains(t, output, "Levenshtein distance:")
	assert.Contains(t, output, "Similarity score:")
}
