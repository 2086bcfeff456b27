package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/vk/cmipconv/internal/app"
	"github.com/vk/cmipconv/internal/hcl"
	"github.com/vk/cmipconv/internal/schema"
	"github.com/vk/cmipconv/internal/workerproc"
)

// EnvPrefix prefixes the environment variable of every flag, e.g.
// CMIPCONV_NUM_PROC for --num-proc.
const EnvPrefix = "CMIPCONV_"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) error {
	return &ExitError{Code: 2, Message: err.Error()}
}

// Streams are the standard streams of the process.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// flags holds the raw values of the root command's flags.
type flags struct {
	variables      []string
	inputPath      string
	outputPath     string
	tablesPath     string
	userMetadata   string
	customMetadata string
	mapPath        string
	logDir         string
	handlersPath   string
	realm          string
	frequency      string
	numProc        int
	serial         bool
	simple         bool
	timeout        string
	precheckPath   string
	info           bool
	infoOut        string
	configPath     string
	ledgerPath     string
	logFormat      string
	logLevel       string
}

// Execute runs the command line args and returns the process outcome. An
// *ExitError carries the exit code; any other error means exit code 1.
func Execute(ctx context.Context, s Streams, args []string) error {
	root := NewRootCommand(s)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCommand builds the cmipconv command tree.
func NewRootCommand(s Streams) *cobra.Command {
	root, _ := newRootCommand(s)
	return root
}

func newRootCommand(s Streams) (*cobra.Command, *flags) {
	f := &flags{}
	root := &cobra.Command{
		Use:   "cmipconv",
		Short: "Convert E3SM model output into CMIP6-compliant datasets",
		Long: `cmipconv converts E3SM native output into CMIP6 variables.

Every requested variable is handled by one handler. Handlers run in parallel
worker processes by default, or one after another with --serial. Settings
come from flags, CMIPCONV_* environment variables (a .env file is read when
present) and an optional HCL run file, in that order of precedence.

Example:
  cmipconv -v pr,tas -i ./ts -o ./out -t ./cmip6-cmor-tables/Tables -u metadata.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().NFlag() == 0 && os.Getenv(EnvPrefix+"VAR_LIST") == "" {
				return cmd.Help()
			}
			cfg, err := f.config(cmd.Flags())
			if err != nil {
				return usageError(err)
			}
			return runApp(cmd.Context(), s.Out, cfg)
		},
	}
	root.SetIn(s.In)
	root.SetOut(s.Out)
	root.SetErr(s.Err)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError(err) })

	pf := root.Flags()
	pf.StringSliceVarP(&f.variables, "var-list", "v", nil, "Variables to convert, or 'all'.")
	pf.StringVarP(&f.inputPath, "input-path", "i", "", "Directory of E3SM time-series input files.")
	pf.StringVarP(&f.outputPath, "output-path", "o", "", "Directory the CMIP6 output is written to.")
	pf.StringVarP(&f.tablesPath, "tables-path", "t", "", "Directory of the CMIP6 table files.")
	pf.StringVarP(&f.userMetadata, "user-metadata", "u", "", "Dataset metadata JSON file.")
	pf.StringVar(&f.customMetadata, "custom-metadata", "", "JSON file of extra global attributes.")
	pf.StringVar(&f.mapPath, "map", "", "Regridding map file for MPAS variables.")
	pf.StringVar(&f.logDir, "logdir", "", "Directory for per-variable logs. Defaults to <output-path>/cmor_logs.")
	pf.StringVar(&f.handlersPath, "handlers", "", "Directory of extra handler manifests.")
	pf.StringVar(&f.realm, "realm", "", "Only convert variables of this realm (atm, lnd, ocn, ice).")
	pf.StringVarP(&f.frequency, "freq", "f", "", "Output frequency (mon, day, 6hrLev, 6hrPlev, 3hr, fx).")
	pf.IntVarP(&f.numProc, "num-proc", "n", app.DefaultNumProc, "Number of parallel worker processes.")
	pf.BoolVarP(&f.serial, "serial", "s", false, "Run handlers one at a time in this process, stopping at the first failure.")
	pf.BoolVar(&f.simple, "simple", false, "Write plain NetCDF without CMIP6 tables or metadata.")
	pf.StringVar(&f.timeout, "timeout", "", "Wall-clock limit for the run, as a duration (90m) or seconds.")
	pf.StringVar(&f.precheckPath, "precheck", "", "Skip variables whose output already exists under this directory.")
	pf.BoolVar(&f.info, "info", false, "Describe the selected handlers instead of running them.")
	pf.StringVar(&f.infoOut, "info-out", "", "Write the --info report to this file.")
	pf.StringVarP(&f.configPath, "config", "c", "", "HCL run file.")
	pf.StringVar(&f.ledgerPath, "ledger", "", "Run ledger database. Defaults to <output-path>/ledger.db; '-' disables it.")
	pf.StringVar(&f.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	pf.StringVar(&f.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	root.AddCommand(newWorkerCommand(), newLedgerCommand())
	return root, f
}

// runApp builds the application and runs it. Run failures exit with 1.
func runApp(ctx context.Context, outW io.Writer, cfg *app.Config) error {
	a, err := app.NewApp(outW, cfg, hcl.NewLoader())
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Run(ctx); err != nil {
		return &ExitError{Code: 1, Message: err.Error()}
	}
	return nil
}

// config merges the run file, environment and flags into a validated
// application config.
func (f *flags) config(pf *pflag.FlagSet) (*app.Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	if err := applyEnv(pf); err != nil {
		return nil, err
	}

	cfg := app.Config{}
	if f.configPath != "" {
		rf, err := hcl.LoadRunFile(f.configPath)
		if err != nil {
			return nil, err
		}
		if err := applyRunFile(&cfg, rf); err != nil {
			return nil, err
		}
	}

	set := func(name string, apply func()) {
		if pf.Changed(name) {
			apply()
		}
	}
	set("var-list", func() { cfg.Variables = splitVariables(f.variables) })
	set("input-path", func() { cfg.InputPath = f.inputPath })
	set("output-path", func() { cfg.OutputPath = f.outputPath })
	set("tables-path", func() { cfg.TablesPath = f.tablesPath })
	set("user-metadata", func() { cfg.UserMetadata = f.userMetadata })
	set("custom-metadata", func() { cfg.CustomMetadata = f.customMetadata })
	set("map", func() { cfg.MapPath = f.mapPath })
	set("logdir", func() { cfg.LogDir = f.logDir })
	set("handlers", func() { cfg.HandlersPath = f.handlersPath })
	set("realm", func() { cfg.Realm = f.realm })
	set("freq", func() { cfg.Frequency = f.frequency })
	set("num-proc", func() { cfg.NumProc = f.numProc })
	set("serial", func() { cfg.Serial = f.serial })
	set("simple", func() { cfg.Simple = f.simple })
	set("precheck", func() { cfg.PrecheckPath = f.precheckPath })
	set("info", func() { cfg.Info = f.info })
	set("info-out", func() { cfg.InfoOut = f.infoOut })
	set("ledger", func() { cfg.LedgerPath = f.ledgerPath })
	if pf.Changed("timeout") {
		d, err := parseTimeout(f.timeout)
		if err != nil {
			return nil, err
		}
		cfg.Timeout = d
	}
	if pf.Changed("log-format") || cfg.LogFormat == "" {
		cfg.LogFormat = strings.ToLower(f.logFormat)
	}
	if pf.Changed("log-level") || cfg.LogLevel == "" {
		cfg.LogLevel = strings.ToLower(f.logLevel)
	}
	if cfg.NumProc == 0 {
		cfg.NumProc = f.numProc
	}

	slog.Debug("CLI parameters merged.", "variables", cfg.Variables, "serial", cfg.Serial, "simple", cfg.Simple)
	return app.NewConfig(cfg)
}

// loadDotEnv reads .env from the working directory when it exists. Values
// already in the environment are kept.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read .env: %w", err)
	}
	return nil
}

// applyEnv sets every flag not given on the command line from its
// CMIPCONV_* environment variable.
func applyEnv(pf *pflag.FlagSet) error {
	var errs []error
	pf.VisitAll(func(fl *pflag.Flag) {
		if fl.Changed {
			return
		}
		v, ok := os.LookupEnv(EnvName(fl.Name))
		if !ok || v == "" {
			return
		}
		if err := pf.Set(fl.Name, v); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", EnvName(fl.Name), err))
		}
	})
	return errors.Join(errs...)
}

// EnvName returns the environment variable that backs flag name.
func EnvName(name string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func applyRunFile(cfg *app.Config, rf *schema.RunFile) error {
	cfg.Variables = splitVariables(rf.Variables)
	cfg.InputPath = rf.InputPath
	cfg.OutputPath = rf.OutputPath
	cfg.TablesPath = rf.TablesPath
	cfg.UserMetadata = rf.UserMetadata
	cfg.CustomMetadata = rf.CustomMetadata
	cfg.MapPath = rf.MapPath
	cfg.LogDir = rf.LogDir
	cfg.HandlersPath = rf.HandlersPath
	cfg.Realm = rf.Realm
	cfg.Frequency = rf.Frequency
	cfg.LedgerPath = rf.LedgerPath
	cfg.LogLevel = rf.LogLevel
	cfg.LogFormat = rf.LogFormat
	if rf.NumProc != nil {
		cfg.NumProc = *rf.NumProc
	}
	if rf.Serial != nil {
		cfg.Serial = *rf.Serial
	}
	if rf.Simple != nil {
		cfg.Simple = *rf.Simple
	}
	if rf.Timeout != "" {
		d, err := parseTimeout(rf.Timeout)
		if err != nil {
			return err
		}
		cfg.Timeout = d
	}
	return nil
}

// splitVariables accepts both comma and space separated lists.
func splitVariables(in []string) []string {
	var out []string
	for _, v := range in {
		for _, name := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, name)
		}
	}
	return out
}

// parseTimeout reads a Go duration or a plain number of seconds.
func parseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("invalid timeout %q: must not be negative", s)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: use a duration like 90m or a number of seconds", s)
	}
	return d, nil
}

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:    workerproc.WorkerCommand,
		Short:  "Run one conversion job read from stdin",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.RunWorker(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), hcl.NewLoader())
		},
	}
}
