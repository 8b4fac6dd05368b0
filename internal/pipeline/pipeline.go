// internal/pipeline/pipeline.go
//
// The controller drives one build through a fixed stage order:
//
//	checkout -> make-chroot -> setup-board -> uprev -> build -> uprev-push -> uprev-cleanup
//
// Expensive provisioning stages are skipped when the buildroot already shows
// them as done. The first failing stage aborts the run. With clobber enabled
// the buildroot is then removed so the next run starts from a full checkout
// instead of a half-written tree.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kingrea/cbuildbot/internal/buildroot"
	"github.com/kingrea/cbuildbot/internal/command"
	"github.com/kingrea/cbuildbot/internal/config"
	"github.com/kingrea/cbuildbot/internal/logging"
	"github.com/kingrea/cbuildbot/internal/retry"
)

const (
	DefaultManifestURL = "http://src.chromium.org/git/manifest"
	DefaultFetchURL    = "http://git.chromium.org/git"
	DefaultPushURL     = "ssh://git@gitrw.chromium.org:9222"
	TrackingBranch     = "cros/master"

	// repoInitInput answers repo init's name, email and confirmation prompts.
	repoInitInput = "\n\ny\n"
	tracerName    = "github.com/kingrea/cbuildbot/internal/pipeline"
)

// Request describes one pipeline run.
type Request struct {
	Buildroot string
	Config    config.BuildConfig
	// RevisionFile optionally lists the revisions that triggered the build.
	RevisionFile string
	// Clobber removes the buildroot after a failed stage.
	Clobber bool
	// BuildNumber is recorded for observers only.
	BuildNumber int
}

// Controller runs the stage sequence against a buildroot.
type Controller struct {
	runner      command.Runner
	logger      *logging.Logger
	listener    Listener
	tracer      trace.Tracer
	selector    func(root string) *buildroot.Selector
	clock       func() time.Time
	manifestURL string
	fetchURL    string
	pushURL     string
	removeCmd   []string
}

// Option customizes the controller.
type Option func(*Controller)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithListener subscribes l to stage events.
func WithListener(l Listener) Option {
	return func(c *Controller) {
		if l != nil {
			c.listener = l
		}
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithSelectorFactory changes how stage markers are inspected.
func WithSelectorFactory(factory func(root string) *buildroot.Selector) Option {
	return func(c *Controller) {
		if factory != nil {
			c.selector = factory
		}
	}
}

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithManifestURL sets the manifest repo init points at.
func WithManifestURL(url string) Option {
	return func(c *Controller) {
		if url = strings.TrimSpace(url); url != "" {
			c.manifestURL = url
		}
	}
}

// WithRemoteRewrite sets the fetch URL prefix that pushes are redirected
// away from, and the push URL they are redirected to.
func WithRemoteRewrite(fetchURL, pushURL string) Option {
	return func(c *Controller) {
		if fetchURL != "" {
			c.fetchURL = fetchURL
		}
		if pushURL != "" {
			c.pushURL = pushURL
		}
	}
}

// WithRemoveCommand sets the argv prefix used to delete the buildroot.
func WithRemoveCommand(argv ...string) Option {
	return func(c *Controller) {
		if len(argv) > 0 {
			c.removeCmd = append([]string(nil), argv...)
		}
	}
}

// New builds a controller that runs stages through runner.
func New(runner command.Runner, opts ...Option) (*Controller, error) {
	if runner == nil {
		return nil, fmt.Errorf("pipeline: command runner is required")
	}
	c := &Controller{
		runner:      runner,
		logger:      logging.Discard(),
		listener:    NopListener{},
		tracer:      otel.Tracer(tracerName),
		selector:    func(root string) *buildroot.Selector { return buildroot.NewSelector(buildroot.New(root)) },
		clock:       time.Now,
		manifestURL: DefaultManifestURL,
		fetchURL:    DefaultFetchURL,
		pushURL:     DefaultPushURL,
		removeCmd:   []string{"sudo", "rm", "-rf"},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run executes every stage in order. The returned error is a *StageError
// naming the stage that failed.
func (c *Controller) Run(ctx context.Context, req Request) (err error) {
	if strings.TrimSpace(req.Buildroot) == "" {
		return fmt.Errorf("pipeline: buildroot is required")
	}
	ctx, span := c.tracer.Start(ctx, "cbuildbot.run", trace.WithAttributes(
		attribute.String("cbuildbot.config", req.Config.Name),
		attribute.String("cbuildbot.board", req.Config.Board),
		attribute.String("cbuildbot.buildroot", req.Buildroot),
		attribute.Int("cbuildbot.build_number", req.BuildNumber),
		attribute.Bool("cbuildbot.clobber", req.Clobber),
	))
	defer span.End()

	err = c.runStages(ctx, req)
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var stageErr *StageError
	if errors.As(err, &stageErr) {
		c.logger.Printf("Stage %s failed: %v", stageErr.Stage, stageErr.Err)
	} else {
		c.logger.Printf("Build failed: %v", err)
	}
	if req.Clobber {
		// A cancelled run still clobbers.
		c.clobber(context.WithoutCancel(ctx), req.Buildroot)
	}
	return err
}

func (c *Controller) runStages(ctx context.Context, req Request) error {
	cfg := req.Config
	sel := c.selector(req.Buildroot)
	layout := sel.Layout()

	if err := c.stage(ctx, StageCheckout, func(ctx context.Context) error {
		if !sel.Exists() {
			return c.fullCheckout(ctx, layout.Root, cfg)
		}
		return c.sync(ctx, layout.Root, cfg)
	}); err != nil {
		return err
	}

	if sel.ChrootExists() {
		c.skip(StageMakeChroot, "chroot already present")
	} else if err := c.stage(ctx, StageMakeChroot, func(ctx context.Context) error {
		return c.script(ctx, layout, "./make_chroot", "--fast")
	}); err != nil {
		return err
	}

	if sel.BoardExists(cfg.Board) {
		c.skip(StageSetupBoard, fmt.Sprintf("board %s already set up", cfg.Board))
	} else if err := c.stage(ctx, StageSetupBoard, func(ctx context.Context) error {
		return c.script(ctx, layout, "./setup_board", "--fast", "--default", "--board="+cfg.Board)
	}); err != nil {
		return err
	}

	if cfg.Uprev {
		if err := c.stage(ctx, StageUprev, func(ctx context.Context) error {
			return c.uprevPackages(ctx, layout, req.RevisionFile)
		}); err != nil {
			return err
		}
	} else {
		c.skip(StageUprev, "uprev disabled")
	}

	if err := c.stage(ctx, StageBuild, func(ctx context.Context) error {
		return c.script(ctx, layout, "./build_packages")
	}); err != nil {
		return err
	}

	if !cfg.Uprev {
		c.skip(StageUprevPush, "uprev disabled")
		c.skip(StageUprevCleanup, "uprev disabled")
		return nil
	}
	if err := c.stage(ctx, StageUprevPush, func(ctx context.Context) error {
		return c.script(ctx, layout, "./cros_mark_as_stable", "--srcroot=..",
			"--tracking_branch="+TrackingBranch,
			"--push_options", "--bypass-hooks -f", "push")
	}); err != nil {
		return err
	}
	return c.stage(ctx, StageUprevCleanup, func(ctx context.Context) error {
		return c.script(ctx, layout, "./cros_mark_as_stable", "--srcroot=..",
			"--tracking_branch="+TrackingBranch, "clean")
	})
}

func (c *Controller) stage(ctx context.Context, stage Stage, fn func(context.Context) error) error {
	ctx, span := c.tracer.Start(ctx, "stage."+string(stage),
		trace.WithAttributes(attribute.String("cbuildbot.stage", string(stage))))
	defer span.End()

	c.listener.StageStarted(stage)
	start := c.clock()
	err := fn(ctx)
	elapsed := c.clock().Sub(start)
	c.listener.StageFinished(stage, elapsed, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}

func (c *Controller) skip(stage Stage, reason string) {
	c.logger.Filef("Skipping %s: %s", stage, reason)
	c.listener.StageSkipped(stage, reason)
}

func (c *Controller) fullCheckout(ctx context.Context, root string, cfg config.BuildConfig) error {
	if err := c.remove(ctx, root, false); err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create buildroot: %w", err)
	}
	if _, err := c.runner.Run(ctx, command.Cmd{
		Args:  []string{"repo", "init", "-u", c.manifestURL},
		Dir:   root,
		Input: repoInitInput,
	}); err != nil {
		return err
	}
	return c.sync(ctx, root, cfg)
}

// sync runs repo sync and, for read/write checkouts, rewrites push URLs. Both
// steps are retried together: a new project or a sync interrupted by a stopped
// build leaves repos without the rewrite.
func (c *Controller) sync(ctx context.Context, root string, cfg config.BuildConfig) error {
	return retry.Do(cfg.Retries, func() error {
		if _, err := c.runner.Run(ctx, command.Cmd{Args: []string{"repo", "sync"}, Dir: root}); err != nil {
			return err
		}
		if !cfg.RWCheckout {
			return nil
		}
		_, err := c.runner.Run(ctx, command.Cmd{
			Args: []string{"repo", "forall", "-c", "git", "config",
				"url." + c.pushURL + ".pushinsteadof", c.fetchURL},
			Dir: root,
		})
		return err
	}, retry.WithNotify(func(attempt int, err error, remaining int) {
		if remaining > 0 {
			c.logger.Printf("Repo Sync Failed, retrying")
		} else {
			c.logger.Printf("Retries exhausted")
		}
		c.listener.SyncAttemptFailed(attempt, err, remaining)
	}))
}

func (c *Controller) uprevPackages(ctx context.Context, layout buildroot.Layout, revisionFile string) error {
	revisions := ReadRevisions(revisionFile)
	if revisions.ReadErr != nil {
		c.logger.Printf("Error reading %s", revisionFile)
	}
	if !revisions.Forced {
		// TODO: hand the list to cros_mark_as_stable once it can uprev a subset.
		c.logger.Printf("Revision list found %s", strings.TrimSpace(revisions.Raw))
		c.logger.Printf("Revision list not yet propagating to build, marking all instead")
	}
	// enter_chroot.sh re-evaluates its arguments in a shell, so the quotes
	// around the branch are consumed there.
	return c.script(ctx, layout, "./enter_chroot.sh", "--", "./cros_mark_all_as_stable",
		fmt.Sprintf("--tracking_branch=%q", TrackingBranch))
}

func (c *Controller) script(ctx context.Context, layout buildroot.Layout, args ...string) error {
	_, err := c.runner.Run(ctx, command.Cmd{Args: args, Dir: layout.ScriptsDir()})
	return err
}

func (c *Controller) remove(ctx context.Context, root string, failureCleanup bool) error {
	argv := append(append([]string(nil), c.removeCmd...), root)
	_, err := c.runner.Run(ctx, command.Cmd{Args: argv, ErrorOK: failureCleanup, Quiet: failureCleanup})
	return err
}

// clobber removes the buildroot after a failure. Its own failure is logged
// and otherwise ignored so the stage error stays the one reported.
func (c *Controller) clobber(ctx context.Context, root string) {
	c.logger.Printf("Clobbering buildroot %s", root)
	if err := c.remove(ctx, root, true); err != nil {
		c.logger.Printf("Clobber of %s did not complete: %v", root, err)
	}
}
