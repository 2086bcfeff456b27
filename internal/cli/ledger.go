package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vk/cmipconv/internal/ledger"
)

func newLedgerCommand() *cobra.Command {
	var path, outputPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "ledger [run-id]",
		Short: "Show recorded runs, or the jobs of one run",
		Long: `Show the run ledger written by previous conversion runs.

Without arguments the most recent runs are listed. With a run ID the state of
every job of that run is shown.

Example: cmipconv ledger -o ./out 5f0c1e0a-8d4b-4a53-9d0c-3c4f1f0f6c1e`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				if outputPath == "" {
					return usageError(errors.New("either --ledger or --output-path is required"))
				}
				path = filepath.Join(outputPath, "ledger.db")
			}
			l, err := ledger.Open(path)
			if err != nil {
				return err
			}
			defer l.Close()

			if len(args) == 1 {
				return printJobs(cmd, l, args[0])
			}
			return printRuns(cmd, l, limit)
		},
	}
	cmd.Flags().StringVar(&path, "ledger", "", "Run ledger database.")
	cmd.Flags().StringVarP(&outputPath, "output-path", "o", "", "Output directory of the runs; the ledger is read from <output-path>/ledger.db.")
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to list; 0 lists all.")
	return cmd
}

func printRuns(cmd *cobra.Command, l *ledger.Ledger, limit int) error {
	runs, err := l.Runs(cmd.Context(), limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tMODE\tHANDLERS\tSTARTED\tFINISHED\tEXIT\tERROR")
	for _, r := range runs {
		finished, exit, runErr := "-", "-", ""
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Format(time.DateTime)
		}
		if r.ExitCode != nil {
			exit = fmt.Sprint(*r.ExitCode)
		}
		if r.RunError != nil {
			runErr = *r.RunError
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			r.ID, r.Mode, r.Handlers, r.StartedAt.Format(time.DateTime), finished, exit, runErr)
	}
	return w.Flush()
}

func printJobs(cmd *cobra.Command, l *ledger.Ledger, runID string) error {
	ctx := cmd.Context()
	if _, err := l.GetRun(ctx, runID); err != nil {
		return err
	}
	jobs, err := l.Jobs(ctx, runID)
	if err != nil {
		return err
	}
	return writeJobs(cmd.OutOrStdout(), jobs)
}

func writeJobs(out io.Writer, jobs []ledger.Job) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VARIABLE\tSTATE\tDURATION\tOUTPUT\tERROR")
	for _, j := range jobs {
		detail := j.Error
		if j.ErrorKind != "" {
			detail = j.ErrorKind + ": " + detail
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			j.Variable, j.State, time.Duration(j.DurationMS)*time.Millisecond, j.OutputPath, detail)
	}
	return w.Flush()
}
