package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstaack/sw-usb-audio/internal/history"
	"github.com/mstaack/sw-usb-audio/internal/models"
)

// Helper function to execute history command with args
func executeHistoryCommand(t *testing.T, args []string) (string, error) {
	t.Helper()

	rootCmd := &cobra.Command{Use: "soundcheck"}
	historyCmd := NewHistoryCommand()
	rootCmd.AddCommand(historyCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return buf.String(), err
}

// seedHistoryDB records three runs in a fresh database and returns its path:
// a pass, a verification failure and an aborted run, oldest first.
func seedHistoryDB(t *testing.T) string {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "runs.db")
	store, err := history.NewStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	started := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	records := []*history.Record{
		{
			RunID:        "aaaaaaaa-1111-2222-3333-444444444444",
			CaseNumber:   "1",
			CaseName:     "stereo tones",
			Device:       "xk_evk_xu316",
			Config:       "stereo.json",
			SampleRate:   48000,
			Direction:    "output",
			Status:       models.StatusPassed,
			DurationSecs: 25.2,
			StartedAt:    started,
		},
		{
			RunID:        "bbbbbbbb-1111-2222-3333-444444444444",
			CaseNumber:   "4",
			CaseName:     "channel 0 volume",
			Device:       "xk_216_mc",
			Config:       "stereo.json",
			SampleRate:   48000,
			Channel:      "0",
			Direction:    "output",
			Status:       models.StatusFailed,
			Failures:     []string{"Incorrect frequency on channel 0; got 999, expected 1000"},
			DurationSecs: 25.7,
			StartedAt:    started.Add(time.Minute),
		},
		{
			RunID:        "cccccccc-1111-2222-3333-444444444444",
			CaseNumber:   "2",
			CaseName:     "input tones",
			Device:       "xk_evk_xu316",
			Config:       "stereo.json",
			SampleRate:   44100,
			Direction:    "input",
			Status:       models.StatusError,
			ErrorMessage: "volume reset failed: exit status 1",
			DurationSecs: 3.1,
			StartedAt:    started.Add(2 * time.Minute),
		},
	}
	for _, rec := range records {
		require.NoError(t, store.RecordRun(ctx, rec))
	}

	return dbPath
}

func TestHistoryCommand_RecentRuns(t *testing.T) {
	dbPath := seedHistoryDB(t)

	output, err := executeHistoryCommand(t, []string{"history", "--db", dbPath})
	require.NoError(t, err)

	assert.Contains(t, output, "RUN")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "aaaaaaaa")
	assert.Contains(t, output, "bbbbbbbb")
	assert.Contains(t, output, "cccccccc")
	assert.Contains(t, output, "PASSED")
	assert.Contains(t, output, "FAILED")
	assert.Contains(t, output, "ERROR")

	// Newest first
	assert.Less(t, strings.Index(output, "cccccccc"), strings.Index(output, "aaaaaaaa"))
}

func TestHistoryCommand_Limit(t *testing.T) {
	dbPath := seedHistoryDB(t)

	output, err := executeHistoryCommand(t, []string{"history", "--db", dbPath, "--limit", "1"})
	require.NoError(t, err)

	assert.Contains(t, output, "cccccccc")
	assert.NotContains(t, output, "aaaaaaaa")
	assert.NotContains(t, output, "bbbbbbbb")
}

func TestHistoryCommand_DeviceFilter(t *testing.T) {
	dbPath := seedHistoryDB(t)

	output, err := executeHistoryCommand(t, []string{"history", "--db", dbPath, "--device", "xk_216_mc"})
	require.NoError(t, err)

	assert.Contains(t, output, "bbbbbbbb")
	assert.NotContains(t, output, "aaaaaaaa")
	assert.NotContains(t, output, "cccccccc")
}

func TestHistoryCommand_CaseFilter(t *testing.T) {
	dbPath := seedHistoryDB(t)

	output, err := executeHistoryCommand(t, []string{"history", "--db", dbPath, "--case", "1"})
	require.NoError(t, err)

	assert.Contains(t, output, "aaaaaaaa")
	assert.NotContains(t, output, "bbbbbbbb")
	assert.NotContains(t, output, "cccccccc")
}

func TestHistoryCommand_DeviceAndCaseConflict(t *testing.T) {
	dbPath := seedHistoryDB(t)

	_, err := executeHistoryCommand(t, []string{
		"history", "--db", dbPath, "--device", "xk_216_mc", "--case", "1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot use both --device and --case")
}

func TestHistoryCommand_Failures(t *testing.T) {
	dbPath := seedHistoryDB(t)

	output, err := executeHistoryCommand(t, []string{"history", "--db", dbPath, "--failures"})
	require.NoError(t, err)

	assert.Contains(t, output, "- Incorrect frequency on channel 0; got 999, expected 1000")
	assert.Contains(t, output, "volume reset failed: exit status 1")
}

func TestHistoryCommand_Stats(t *testing.T) {
	dbPath := seedHistoryDB(t)

	output, err := executeHistoryCommand(t, []string{"history", "--db", dbPath, "--stats"})
	require.NoError(t, err)

	assert.Contains(t, output, "DEVICE")
	assert.Contains(t, output, "PASS RATE")
	assert.Contains(t, output, "xk_evk_xu316")
	assert.Contains(t, output, "xk_216_mc")
	assert.Contains(t, output, "50%")
	assert.Contains(t, output, "0%")

	// Most active device first
	assert.Less(t, strings.Index(output, "xk_evk_xu316"), strings.Index(output, "xk_216_mc"))
}

func TestHistoryCommand_MissingDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "missing.db")

	output, err := executeHistoryCommand(t, []string{"history", "--db", dbPath})
	require.NoError(t, err)

	assert.Contains(t, output, "No run history found.")
	assert.Contains(t, output, dbPath)
}

func TestHistoryCommand_EmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	store, err := history.NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	output, err := executeHistoryCommand(t, []string{"history", "--db", dbPath})
	require.NoError(t, err)

	assert.Contains(t, output, "No runs recorded.")
}

func TestHistoryCommand_RejectsArgs(t *testing.T) {
	dbPath := seedHistoryDB(t)

	_, err := executeHistoryCommand(t, []string{"history", "extra", "--db", dbPath})
	require.Error(t, err)
}

func TestNewHistoryCommand(t *testing.T) {
	cmd := NewHistoryCommand()

	assert.Equal(t, "history", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	for _, flagName := range []string{"limit", "device", "case", "db", "stats", "failures"} {
		assert.NotNil(t, cmd.Flags().Lookup(flagName), "flag %q should exist", flagName)
	}
}
