package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/cmipconv/internal/ledger"
	"github.com/vk/cmipconv/internal/testutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := Execute(context.Background(), Streams{In: strings.NewReader(""), Out: &out, Err: &out}, args)
	return out.String(), err
}

func TestParseTimeout(t *testing.T) {
	testCases := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"3600", time.Hour, false},
		{"90m", 90 * time.Minute, false},
		{" 45s ", 45 * time.Second, false},
		{"-5", 0, true},
		{"soon", 0, true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseTimeout(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSplitVariables(t *testing.T) {
	assert.Equal(t, []string{"pr", "tas", "rlut"}, splitVariables([]string{"pr,tas", "rlut"}))
	assert.Equal(t, []string{"pr", "tas"}, splitVariables([]string{"pr tas"}))
	assert.Nil(t, splitVariables(nil))
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "CMIPCONV_NUM_PROC", EnvName("num-proc"))
	assert.Equal(t, "CMIPCONV_VAR_LIST", EnvName("var-list"))
}

func TestConfig_Precedence(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	runFile := filepath.Join(dir, "run.hcl")
	require.NoError(t, os.WriteFile(runFile, []byte(`
variables   = ["pr", "tas"]
input_path  = "/from/file/in"
output_path = "/from/file/out"
simple      = true
num_proc    = 3
timeout     = "2h"
`), 0o644))
	t.Setenv("CMIPCONV_INPUT_PATH", "/from/env/in")
	t.Setenv("CMIPCONV_NUM_PROC", "4")

	root, f := newRootCommand(Streams{Out: &bytes.Buffer{}, Err: &bytes.Buffer{}})
	require.NoError(t, root.ParseFlags([]string{"--config", runFile, "-n", "8", "--timeout", "60"}))

	// --- Act ---
	cfg, err := f.config(root.Flags())

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{"pr", "tas"}, cfg.Variables, "run file")
	assert.Equal(t, "/from/env/in", cfg.InputPath, "environment beats run file")
	assert.Equal(t, "/from/file/out", cfg.OutputPath)
	assert.Equal(t, 8, cfg.NumProc, "flag beats environment")
	assert.Equal(t, time.Minute, cfg.Timeout, "flag beats run file")
	assert.True(t, cfg.Simple)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestExecute_UsageErrors(t *testing.T) {
	testCases := []struct {
		name    string
		args    []string
		errLike string
	}{
		{"unknown flag", []string{"--this-is-not-a-valid-flag"}, "unknown flag"},
		{"missing input", []string{"-v", "pr", "-o", "/tmp/out", "--simple"}, "input path is required"},
		{"bad log level", []string{"-v", "pr", "-i", "in", "-o", "out", "--simple", "--log-level", "loud"}, "log-level"},
		{"bad timeout", []string{"-v", "pr", "-i", "in", "-o", "out", "--simple", "--timeout", "soon"}, "invalid timeout"},
		{"missing run file", []string{"--config", "/does/not/exist.hcl"}, "run file"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := execute(t, tc.args...)

			require.Error(t, err)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.errLike)
		})
	}
}

func TestExecute_Help(t *testing.T) {
	out, err := execute(t)

	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "--var-list")
	assert.Contains(t, out, "ledger")
	assert.NotContains(t, out, "  worker ", "the worker command is hidden")
}

func TestExecute_SerialSimpleRun(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	testutil.WriteTimeSeries(t, in, testutil.MonthlyGrid{
		Months: 12, NLat: 2, NLon: 2,
		Vars: map[string]testutil.GridFn{"QFLX": testutil.Const(2e-5)},
	})
	out := filepath.Join(dir, "out")

	// --- Act ---
	console, err := execute(t, "-v", "evspsbl", "-i", in, "-o", out, "--simple", "--serial", "--ledger", "-")

	// --- Assert ---
	require.NoError(t, err, console)
	assert.Contains(t, console, "All handlers completed successfully")
	assert.FileExists(t, filepath.Join(out, "evspsbl.nc"))
	assert.NoFileExists(t, filepath.Join(out, "ledger.db"))
}

func TestExecute_FailedRunExitsWithOne(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "in"), 0o755))

	console, err := execute(t, "-v", "evspsbl", "-i", filepath.Join(dir, "in"), "-o", filepath.Join(dir, "out"), "--simple", "-s")

	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.Code)
	assert.Contains(t, console, "evspsbl")
}

func TestLedgerCommand(t *testing.T) {
	// --- Arrange ---
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := ledger.Open(path)
	require.NoError(t, err)
	runID, err := l.StartRun(ctx, "serial", 1)
	require.NoError(t, err)
	require.NoError(t, l.SetJob(ctx, ledger.Job{
		RunID: runID, Variable: "pr", State: ledger.StateSucceeded, OutputPath: "/out/pr.nc", DurationMS: 1200,
	}))
	require.NoError(t, l.FinishRun(ctx, runID, 0, nil))
	require.NoError(t, l.Close())

	t.Run("lists runs", func(t *testing.T) {
		out, err := execute(t, "ledger", "--ledger", path)

		require.NoError(t, err)
		assert.Contains(t, out, runID)
		assert.Contains(t, out, "serial")
	})

	t.Run("shows jobs of a run", func(t *testing.T) {
		out, err := execute(t, "ledger", "--ledger", path, runID)

		require.NoError(t, err)
		assert.Contains(t, out, "pr")
		assert.Contains(t, out, "succeeded")
		assert.Contains(t, out, "1.2s")
	})

	t.Run("unknown run", func(t *testing.T) {
		_, err := execute(t, "ledger", "--ledger", path, "nope")
		assert.Error(t, err)
	})

	t.Run("needs a location", func(t *testing.T) {
		_, err := execute(t, "ledger")
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 2, exitErr.Code)
	})
}
