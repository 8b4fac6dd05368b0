package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/cbuildbot/internal/command"
	"github.com/kingrea/cbuildbot/internal/config"
	"github.com/kingrea/cbuildbot/internal/history"
	"github.com/kingrea/cbuildbot/internal/logbook"
	"github.com/kingrea/cbuildbot/internal/logging"
	"github.com/kingrea/cbuildbot/internal/metrics"
	"github.com/kingrea/cbuildbot/internal/pipeline"
	"github.com/kingrea/cbuildbot/internal/telemetry"
	"github.com/kingrea/cbuildbot/internal/tui"
)

// Version is stamped into traces.
var Version = "dev"

type buildOptions struct {
	buildroot    string
	buildNumber  int
	revisionFile string
	noClobber    bool
	configFile   string
	stateDir     string
	metricsFile  string
	traceFile    string
	useTUI       bool
}

// NewCbuildbotCommand builds `cbuildbot [flags] CONFIG` and its
// subcommands.
func NewCbuildbotCommand(env Env) *cobra.Command {
	env = env.withDefaults()
	opts := &buildOptions{}
	cmd := &cobra.Command{
		Use:           "cbuildbot [flags] CONFIG",
		Short:         "Check out, build and uprev a ChromiumOS buildroot",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usagef("expected exactly one build config name, got %d arguments", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), env, opts, args[0])
		},
	}
	cmd.SetOut(env.Stdout)
	cmd.SetErr(env.Stderr)
	cmd.SetFlagErrorFunc(flagErrors)

	flags := cmd.Flags()
	flags.StringVarP(&opts.buildroot, "buildroot", "r", ".", "root directory where the build occurs")
	flags.IntVarP(&opts.buildNumber, "buildnumber", "n", 0, "build number")
	flags.StringVarP(&opts.revisionFile, "revisionfile", "f", "", "file listing the revisions that triggered this build")
	flags.BoolVar(&opts.noClobber, "noclobber", false, "leave the buildroot in place when a stage fails")
	flags.StringVar(&opts.configFile, "config-file", "", "YAML build config table (default: built-in table)")
	flags.StringVar(&opts.stateDir, "state-dir", "", "directory for logs and run history (default ~/"+config.StateDirName+")")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "write stage metrics in textfile format to this path")
	flags.StringVar(&opts.traceFile, "trace-file", "", "write OpenTelemetry spans as JSON to this path")
	flags.BoolVar(&opts.useTUI, "tui", false, "show an interactive progress view")

	cmd.AddCommand(newHistoryCommand(env))
	cmd.AddCommand(newConfigsCommand(env))
	return cmd
}

func runBuild(ctx context.Context, env Env, opts *buildOptions, name string) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	table, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	cfg, err := table.Get(name)
	if err != nil {
		return err
	}
	paths, err := config.InitStateDir(opts.stateDir)
	if err != nil {
		return err
	}

	// The progress view owns the terminal, so diagnostics go to files only.
	logStream := env.Stderr
	if opts.useTUI {
		logStream = nil
	}
	logger, err := logging.New(paths.LogPath(), logStream)
	if err != nil {
		return err
	}
	defer logger.Close()
	if !table.Has(name) {
		logger.Printf("Unknown build config %q, using %s settings (known: %s)",
			name, config.DefaultName, strings.Join(table.Names(), ", "))
	}

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{TraceFile: opts.traceFile, ServiceVersion: Version})
	if err != nil {
		return err
	}
	defer func() {
		if serr := shutdown(context.Background()); serr != nil {
			logger.Printf("Trace flush failed: %v", serr)
		}
	}()

	req := pipeline.Request{
		Buildroot:    opts.buildroot,
		Config:       cfg,
		RevisionFile: opts.revisionFile,
		Clobber:      !opts.noClobber,
		BuildNumber:  opts.buildNumber,
	}

	store, err := history.Open(paths.HistoryDir())
	if err != nil {
		logger.Printf("Run history unavailable: %v", err)
		store = nil
	} else {
		defer store.Close()
	}
	recorder := history.NewRecorder(store, req)

	book, err := logbook.New(paths.RunLogPath(recorder.ID()))
	if err != nil {
		return err
	}
	defer book.Close()
	book.Info("run %s: config %s board %s buildroot %s", recorder.ID(), cfg.Name, cfg.Board, req.Buildroot)
	stats := metrics.New()

	listeners := pipeline.MultiListener{pipeline.JournalListener{Journal: book}, stats, recorder}
	runner := env.Runner
	if runner == nil {
		execRunner := command.NewExecRunner()
		execRunner.Stdout, execRunner.Stderr = env.Stdout, env.Stderr
		if opts.useTUI {
			execRunner.Stdout, execRunner.Stderr = book, book
		}
		runner = execRunner
	}

	execute := func(ctx context.Context, extra pipeline.Listener) error {
		all := listeners
		if extra != nil {
			all = append(all, extra)
		}
		ctrl, err := pipeline.New(runner, pipeline.WithLogger(logger), pipeline.WithListener(all))
		if err != nil {
			return err
		}
		return ctrl.Run(ctx, req)
	}

	var runErr error
	if opts.useTUI {
		runErr = tui.Run(ctx, tui.Options{
			Title:   fmt.Sprintf("cbuildbot %s (%s)", cfg.Name, cfg.Board),
			Journal: book,
			Input:   env.Stdin,
			Output:  env.Stdout,
		}, execute)
	} else {
		runErr = execute(ctx, nil)
	}

	if runErr != nil {
		book.Error("run failed: %v", runErr)
	} else {
		book.Info("run succeeded")
	}
	if store != nil {
		if err := recorder.Finish(runErr); err != nil {
			logger.Printf("Could not save run history: %v", err)
		}
	}
	if opts.metricsFile != "" {
		if err := stats.WriteTextfile(opts.metricsFile); err != nil {
			logger.Printf("Could not write metrics: %v", err)
		}
	}
	return runErr
}
