package integration_tests

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/cmipconv/internal/app"
	"github.com/vk/cmipconv/internal/hcl"
	"github.com/vk/cmipconv/internal/ledger"
	"github.com/vk/cmipconv/internal/session"
	"github.com/vk/cmipconv/internal/testutil"
)

const workerEnv = "CMIPCONV_IT_WORKER"

// TestHelperWorker is not a real test. It is the worker process that
// parallel runs start.
func TestHelperWorker(t *testing.T) {
	if os.Getenv(workerEnv) != "1" {
		t.Skip("helper process")
	}
	if err := app.RunWorker(context.Background(), os.Stdin, os.Stdout, os.Stderr, hcl.NewLoader()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	os.Exit(0)
}

// withTestWorkers makes parallel runs re-execute this test binary.
func withTestWorkers(cfg app.Config) app.Config {
	cfg.Executable = os.Args[0]
	cfg.WorkerArgs = []string{"-test.run=^TestHelperWorker$"}
	cfg.WorkerEnv = []string{workerEnv + "=1"}
	return cfg
}

// atmInputs writes two yearly files for each named E3SM field under dir.
func atmInputs(t *testing.T, dir string, fields map[string]float64) {
	t.Helper()
	vars := make(map[string]testutil.GridFn, len(fields))
	units := make(map[string]string, len(fields))
	for name, v := range fields {
		vars[name] = testutil.Const(v)
		units[name] = "m/s"
	}
	for _, start := range []int{0, 12} {
		testutil.WriteTimeSeries(t, dir, testutil.MonthlyGrid{
			StartMonth: start, Months: 12, NLat: 2, NLon: 3, Vars: vars, Units: units,
		})
	}
}

// standardConfig returns a standard-mode config reading from root/in and
// writing to root/out.
func standardConfig(t *testing.T, root string, variables ...string) app.Config {
	t.Helper()
	tables := filepath.Join(root, "tables")
	testutil.StandardTables(t, tables)
	return app.Config{
		Variables:    variables,
		InputPath:    filepath.Join(root, "in"),
		OutputPath:   filepath.Join(root, "out"),
		TablesPath:   tables,
		UserMetadata: testutil.WriteMetadata(t, filepath.Join(root, "metadata.json")),
	}
}

// outputPath is where a standard run writes variable v of table tableID.
func outputPath(t *testing.T, cfg app.Config, tableID, v string) string {
	t.Helper()
	md, err := session.ReadMetadata(cfg.UserMetadata)
	require.NoError(t, err)
	path, err := md.OutputPath(cfg.OutputPath, tableID, v)
	require.NoError(t, err)
	return path
}

// jobStates returns the recorded state of every job of the latest run.
func jobStates(t *testing.T, path string) (map[string]ledger.Job, ledger.Run) {
	t.Helper()
	ctx := context.Background()
	l, err := ledger.Open(path)
	require.NoError(t, err)
	defer l.Close()

	runs, err := l.Runs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	jobs, err := l.Jobs(ctx, runs[0].ID)
	require.NoError(t, err)
	out := make(map[string]ledger.Job, len(jobs))
	for _, j := range jobs {
		out[j.Variable] = j
	}
	return out, runs[0]
}
