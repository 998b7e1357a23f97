package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bamsammich/snretrieve/internal/config"
	"github.com/bamsammich/snretrieve/internal/engine"
	"github.com/bamsammich/snretrieve/internal/event"
	"github.com/bamsammich/snretrieve/internal/filter"
	"github.com/bamsammich/snretrieve/internal/metrics"
	"github.com/bamsammich/snretrieve/internal/stats"
	"github.com/bamsammich/snretrieve/internal/stornext"
	"github.com/bamsammich/snretrieve/internal/ui"
)

var version = "dev"

// DefaultTimeout bounds a single file transfer. A retrieve waiting on a
// tape mount can legitimately take hours.
const DefaultTimeout = 6 * time.Hour

// heartbeat is the interval between time-based progress lines.
const heartbeat = 30 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// options holds every flag of the retrieve command.
type options struct {
	verbose     bool
	dryRun      bool
	parallel    int
	copyNum     int
	glacier     string
	force       bool
	logFile     string
	timeout     time.Duration
	verify      bool
	bwLimit     sizeFlag
	metricsFile string
	fsretrieve  string
	fsfileinfo  string
	binDir      string
	envFile     string
	showVersion bool

	selector   *filter.Selector
	filterFile string
	filesFrom  string
}

func run(args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(stdout, stderr)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := options{selector: filter.New()}

	rootCmd := &cobra.Command{
		Use:   "snretrieve [flags] <source_dir> <dest_dir>",
		Short: "Retrieve a StorNext managed tree into an unmanaged destination",
		Long: `snretrieve walks a StorNext managed directory and recreates it under an
unmanaged destination. Files whose data is on disk are copied directly;
files whose data lives only on tape or archive media are brought back
with fsretrieve. Existing destination files are skipped unless --force.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				return nil
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				fmt.Fprintf(stdout, "snretrieve %s\n", version)
				return nil
			}
			return runRetrieve(cmd, &opts, args[0], args[1], stdout, stderr)
		},
	}

	f := rootCmd.Flags()
	f.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log every file")
	f.BoolVarP(&opts.dryRun, "dry-run", "d", false, "classify files and report what would happen without writing")
	f.IntVarP(&opts.parallel, "parallel", "p", engine.DefaultWorkers, "number of files transferred at once")
	f.IntVarP(&opts.copyNum, "copy", "c", 0, "retrieve from storage copy N")
	f.StringVarP(&opts.glacier, "glacier", "g", "", "restore tier for archive-class media (e.g. expedited, standard, bulk)")
	f.BoolVarP(&opts.force, "force", "f", false, "overwrite existing destination files")
	f.StringVarP(&opts.logFile, "log", "l", "", "append an uncolored copy of the log to FILE")
	f.DurationVar(&opts.timeout, "timeout", DefaultTimeout, "per-file transfer timeout (0 disables)")
	f.BoolVar(&opts.verify, "verify", false, "verify local copies with BLAKE3 checksums")
	f.Var(&opts.bwLimit, "bwlimit", "bandwidth limit for local copies (e.g. 100MB, 1GiB)")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to FILE (node_exporter textfile format)")
	f.StringVar(&opts.fsretrieve, "fsretrieve", "", "path to fsretrieve")
	f.StringVar(&opts.fsfileinfo, "fsfileinfo", "", "path to fsfileinfo")
	f.StringVar(&opts.binDir, "bin-dir", "", "directory holding the StorNext tools")
	f.StringVar(&opts.envFile, "env-file", "", "read SNRETRIEVE_* defaults from a KEY=VALUE file")
	f.Var(&selectFlag{sel: opts.selector}, "exclude", "skip files matching PATTERN (repeatable)")
	f.Var(&selectFlag{sel: opts.selector, include: true}, "include", "keep files matching PATTERN (repeatable)")
	f.StringVar(&opts.filterFile, "filter", "", "read include/exclude rules from FILE")
	f.StringVar(&opts.filesFrom, "files-from", "", "retrieve only the paths listed in FILE")

	rootCmd.AddCommand(newAnalyzeCmd(stdout))
	rootCmd.AddCommand(newDocsCmd())
	return rootCmd
}

//nolint:gocyclo,revive // cyclomatic,cognitive-complexity: orchestrates config, logging and the run
func runRetrieve(cmd *cobra.Command, opts *options, src, dst string, stdout, stderr io.Writer) error {
	cfg, cfgErr := config.Load()
	if opts.envFile != "" {
		if err := config.LoadEnvFile(&cfg, opts.envFile); err != nil {
			return err
		}
	}
	if err := applyConfigDefaults(cmd, cfg, opts); err != nil {
		return err
	}

	ui.ApplyTheme(cfg.Theme)
	logger, closeLog, err := setupLogging(opts, stderr)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	if cfgErr != nil {
		slog.Warn("failed to load config", "path", config.Path(), "error", cfgErr)
	}

	if cmd.Flags().Changed("copy") && opts.copyNum < 1 {
		return errors.New("--copy must be a positive integer")
	}
	policy := engine.Policy{
		Workers: opts.parallel,
		Copy:    opts.copyNum,
		Tier:    opts.glacier,
		Force:   opts.force,
		DryRun:  opts.dryRun,
		Verify:  opts.verify,
		Timeout: opts.timeout,
		BWLimit: int64(opts.bwLimit), //nolint:gosec // parsed from a human size
	}
	if err := policy.Validate(); err != nil {
		return err
	}
	if info, err := os.Stat(src); err != nil {
		return fmt.Errorf("source directory: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", src)
	}
	if err := loadSelection(opts, src); err != nil {
		return err
	}

	manager := stornext.NewCLI(stornext.CLIConfig{
		BinDir:   opts.binDir,
		FileInfo: opts.fsfileinfo,
		Retrieve: opts.fsretrieve,
	})
	if err := stornext.CheckPrerequisites(manager.Tools()...); err != nil {
		return fmt.Errorf("missing prerequisite: %w", err)
	}

	slog.Info("starting retrieval",
		"source", src,
		"destination", dst,
		"parallel", policy.Workers,
		"copy", policy.Copy,
		"glacier", policy.Tier,
		"force", policy.Force,
		"dry_run", policy.DryRun,
	)
	if policy.DryRun {
		slog.Info("dry run mode, nothing will be written")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	var recorder *metrics.Recorder
	if opts.metricsFile != "" {
		recorder = metrics.NewRecorder()
	}

	events := make(chan event.Event, 256)
	presenter := ui.NewPresenter(ui.Config{Logger: logger, Stats: collector, Heartbeat: heartbeat})

	var presenterErr error
	var presenterWg sync.WaitGroup
	presenterWg.Add(1)
	go func() {
		defer presenterWg.Done()
		presenterErr = presenter.Run(events)
	}()

	result := engine.Run(ctx, engine.Config{
		Src:     src,
		Dst:     dst,
		Select:  opts.selector,
		Policy:  policy,
		Manager: manager,
		Events:  events,
		Stats:   collector,
		Metrics: recorder,
	})
	interrupted := ctx.Err() != nil
	stop()
	close(events)
	presenterWg.Wait()
	if presenterErr != nil {
		slog.Warn("presenter", "error", presenterErr)
	}

	if interrupted {
		engine.CleanupTmpFiles()
		slog.Warn("interrupted, unstarted files were recorded as failed")
	}

	if result.Err != nil {
		slog.Error("retrieval failed", "error", result.Err)
		return &exitError{code: 1}
	}

	if err := recorder.WriteTextfile(opts.metricsFile); err != nil {
		slog.Warn("metrics", "error", err)
	}

	ui.RenderSummary(stdout, result.Summary)
	slog.Info(presenter.Summary())
	for _, scanErr := range result.ScanErrs {
		slog.Error("unreadable source entry", "error", scanErr)
	}
	ui.LogSummary(logger, result.Summary)

	if !result.OK() {
		return &exitError{code: 1}
	}
	return nil
}

// loadSelection appends --filter rules after any --exclude/--include
// flags and applies --files-from.
func loadSelection(opts *options, src string) error {
	if opts.filterFile != "" {
		if err := opts.selector.LoadRules(opts.filterFile); err != nil {
			return err
		}
	}
	if opts.filesFrom == "" {
		return nil
	}
	root, err := filepath.Abs(src)
	if err != nil {
		return fmt.Errorf("source directory: %w", err)
	}
	f, err := os.Open(opts.filesFrom)
	if err != nil {
		return fmt.Errorf("files-from: %w", err)
	}
	defer f.Close()
	outside, err := opts.selector.LoadFileList(f, root)
	if err != nil {
		return err
	}
	for _, p := range outside {
		slog.Warn("listed path is outside the source directory", "path", p)
	}
	return nil
}

// setupLogging builds the console handler and, with --log, mirrors every
// record uncolored to the log file.
func setupLogging(opts *options, stderr io.Writer) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	color := false
	if f, ok := stderr.(*os.File); ok {
		color = ui.IsTTY(f.Fd())
	}
	console := ui.NewLineHandler(stderr, &ui.LineOptions{Level: level, Color: color})

	if opts.logFile == "" {
		return slog.New(console), func() {}, nil
	}
	lf, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	file := ui.NewLineHandler(lf, &ui.LineOptions{Level: slog.LevelDebug})
	return slog.New(ui.NewMultiHandler(console, file)), func() { _ = lf.Close() }, nil
}

// applyConfigDefaults applies env-file and config-file defaults for flags
// not explicitly set on the CLI.
//
//nolint:gocyclo // one branch per flag
func applyConfigDefaults(cmd *cobra.Command, cfg config.Config, opts *options) error {
	d := cfg.Defaults
	changed := cmd.Flags().Changed

	if !changed("parallel") && d.Parallel != nil {
		opts.parallel = *d.Parallel
	}
	if !changed("copy") && d.Copy != nil {
		opts.copyNum = *d.Copy
	}
	if !changed("glacier") && d.Glacier != nil {
		opts.glacier = *d.Glacier
	}
	if !changed("force") && d.Force != nil {
		opts.force = *d.Force
	}
	if !changed("verify") && d.Verify != nil {
		opts.verify = *d.Verify
	}
	if !changed("metrics-file") && d.MetricsFile != nil {
		opts.metricsFile = *d.MetricsFile
	}
	if !changed("timeout") && d.Timeout != nil {
		t, err := time.ParseDuration(*d.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		opts.timeout = t
	}
	if !changed("bwlimit") && d.BWLimit != nil {
		if err := opts.bwLimit.Set(*d.BWLimit); err != nil {
			return fmt.Errorf("config bwlimit: %w", err)
		}
	}

	sn := cfg.StorNext
	if !changed("fsretrieve") && sn.FSRetrieve != nil {
		opts.fsretrieve = *sn.FSRetrieve
	}
	if !changed("fsfileinfo") && sn.FSFileInfo != nil {
		opts.fsfileinfo = *sn.FSFileInfo
	}
	if !changed("bin-dir") && sn.BinDir != nil {
		opts.binDir = *sn.BinDir
	}
	return nil
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
