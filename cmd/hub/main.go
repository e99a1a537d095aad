package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hylla/deliveryhub/internal/adapters/storage/sqlite"
	"github.com/hylla/deliveryhub/internal/app"
	"github.com/hylla/deliveryhub/internal/config"
	"github.com/hylla/deliveryhub/internal/domain"
	"github.com/hylla/deliveryhub/internal/platform"
	"github.com/hylla/deliveryhub/internal/tui"
)

// version stores a package-level helper value.
var version = "dev"

// program represents program data used by this package.
type program interface {
	Run() (tea.Model, error)
}

// programFactory stores a package-level helper value.
var programFactory = func(ctx context.Context, m tea.Model) program {
	return tea.NewProgram(m, tea.WithContext(ctx))
}

// main handles main.
func main() {
	root := newRootCommand(os.Stdout, os.Stderr)
	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		os.Exit(1)
	}
}

// run executes the command tree without fang styling; tests drive the CLI through it.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	root.SilenceErrors = true
	root.SilenceUsage = true
	return root.ExecuteContext(ctx)
}

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	appName    string
	devMode    bool
}

// session bundles the resolved paths, config and logger of one command run.
type session struct {
	opts       rootOptions
	paths      platform.Paths
	configPath string
	cfg        config.Config
	logger     *runtimeLogger
}

// newRootCommand builds the hub command tree.
func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	defaults := platform.Options{AppName: platform.DefaultAppName, DevMode: version == "dev"}.WithEnv(os.Getenv)
	opts := rootOptions{appName: defaults.AppName, devMode: defaults.DevMode}

	root := &cobra.Command{
		Use:     "hub",
		Short:   "AI delivery hub: board and simulation engine",
		Long:    "hub plays a simulated AI-assisted delivery flow: BRD review, story generation,\ncode generation, simulated tests and scripted agent scenarios.",
		Version: version,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := openSession(opts, stderr, false)
			if err != nil {
				return err
			}
			defer sess.close(stderr)
			return runTUI(cmd.Context(), sess)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config TOML")
	root.PersistentFlags().StringVar(&opts.appName, "app", opts.appName, "application name for config/data path resolution")
	root.PersistentFlags().BoolVar(&opts.devMode, "dev", opts.devMode, "use dev mode paths (<app>-dev) and the dev log file")

	root.AddCommand(
		newSimulateCommand(&opts, stdout, stderr),
		newScenariosCommand(stdout),
		newPathsCommand(&opts, stdout),
	)
	return root
}

// newPathsCommand prints the resolved config and data paths.
func newPathsCommand(opts *rootOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config and data paths",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			paths, err := opts.paths()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(stdout, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(stdout, "app_dir: %s\n", paths.AppDir)
			_, _ = fmt.Fprintf(stdout, "config: %s\n", paths.ResolveConfig(opts.configPath, os.Getenv))
			_, _ = fmt.Fprintf(stdout, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(stdout, "log_dir: %s\n", paths.LogDir)
			return nil
		},
	}
}

// newScenariosCommand lists the built-in scenarios and their agents.
func newScenariosCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List scripted agent scenarios",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			for _, sc := range app.DefaultContent().Scenarios {
				_, _ = fmt.Fprintf(stdout, "%s\t%s\n", sc.ID, sc.Title)
				_, _ = fmt.Fprintf(stdout, "  agents: %s\n", strings.Join(sc.Agents, ", "))
				if sc.Summary != "" {
					_, _ = fmt.Fprintf(stdout, "  %s\n", sc.Summary)
				}
			}
			return nil
		},
	}
}

// paths resolves the installation selected by the root flags.
func (o rootOptions) paths() (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{AppName: o.appName, DevMode: o.devMode})
}

// openSession resolves paths, loads config and configures the runtime logger.
// A session without console logging only writes to the dev-file sink.
func openSession(opts rootOptions, stderr io.Writer, console bool) (*session, error) {
	paths, err := opts.paths()
	if err != nil {
		return nil, err
	}
	configPath := paths.ResolveConfig(opts.configPath, os.Getenv)
	cfg, err := config.Load(configPath, config.Default())
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	logger, err := newRuntimeLogger(stderr, paths, opts.devMode, cfg.Logging, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	if !console {
		logger.muteConsole()
	}
	logger.Info("startup configuration resolved", "app", opts.appName, "dev_mode", opts.devMode)
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "log_dir", paths.LogDir)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Debug("dev file logging enabled", "path", devPath)
	}
	return &session{opts: opts, paths: paths, configPath: configPath, cfg: cfg, logger: logger}, nil
}

// close releases the logger sinks of the session.
func (s *session) close(stderr io.Writer) {
	if closeErr := s.logger.Close(); closeErr != nil && !s.logger.consoleMuted() {
		_, _ = fmt.Fprintf(stderr, "warning: close runtime log sink: %v\n", closeErr)
	}
}

// openJournal opens the session journal and subscribes it to engine notifications.
// The returned func unsubscribes and closes the journal.
func (s *session) openJournal(ctx context.Context, engine *app.Engine) (*sqlite.Journal, func(), error) {
	if !s.cfg.Journal.Enabled {
		s.logger.Debug("session journal disabled")
		return nil, func() {}, nil
	}
	journal, err := sqlite.OpenInMemory("")
	if err != nil {
		s.logger.Error("session journal open failed", "err", err)
		return nil, nil, fmt.Errorf("open session journal: %w", err)
	}
	unsubscribe := engine.Subscribe(app.JournalRecorder(ctx, journal, s.logger.journalSink()))
	s.logger.Debug("session journal ready", "name", journal.Name())
	return journal, func() {
		unsubscribe()
		if failed := s.logger.journalFailures(); failed > 0 {
			s.logger.Warn("session journal incomplete", "failed_writes", failed)
		}
		if err := journal.Close(); err != nil {
			s.logger.Warn("session journal close failed", "err", err)
		}
	}, nil
}

// runTUI runs the scheduler loop and the bubbletea program side by side.
func runTUI(ctx context.Context, sess *session) error {
	logger := sess.logger.forCommand("tui")
	logger.Info("command flow start")

	sched := app.NewLoopScheduler()
	engine := app.NewEngine(sched, nil, engineConfig(sess.cfg))
	_, closeJournal, err := sess.openJournal(ctx, engine)
	if err != nil {
		return err
	}
	defer closeJournal()

	feed := tui.NewFeed()
	unsubscribe := engine.Subscribe(feed.Observe)
	defer unsubscribe()

	g, gctx := errgroup.WithContext(ctx)
	loopCtx, stopLoop := context.WithCancel(gctx)
	defer stopLoop()
	g.Go(func() error {
		return sched.Run(loopCtx)
	})
	g.Go(func() error {
		defer stopLoop()
		defer feed.Close()
		m := tui.NewModel(engine, tui.WithFeed(feed))
		logger.Info("starting tui program loop")
		if _, err := programFactory(loopCtx, m).Run(); err != nil {
			if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
				return nil
			}
			logger.Error("tui program terminated with error", "err", err)
			return fmt.Errorf("run tui program: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	cancelled := engine.CancelRuns()
	logger.Info("command flow complete", "cancelled_runs", cancelled)
	return nil
}

// engineConfig maps persisted config values into engine settings.
func engineConfig(cfg config.Config) app.EngineConfig {
	sim := cfg.Simulation
	delays := make([]time.Duration, 0, len(sim.ReasoningDelaysMS))
	for _, ms := range sim.ReasoningDelaysMS {
		delays = append(delays, millis(ms))
	}
	content := app.DefaultContent()
	if len(cfg.Stories) > 0 {
		content.Stories = storyInputs(cfg.Stories)
	}
	engineCfg := app.EngineConfig{
		Timings: app.Timings{
			ReasoningDelays:    delays,
			CodeLineInterval:   millis(sim.CodeLineIntervalMS),
			TestDelay:          millis(sim.TestDelayMS),
			ScenarioAgentPause: millis(sim.ScenarioAgentPauseMS),
			ScenarioFinish:     millis(sim.ScenarioFinishMS),
		},
		ActivityLimit: sim.ActivityLimit,
		Content:       content,
		ScenarioSeed:  sim.ScenarioSeed,
	}
	// Without configured ids the engine passes the first sample story.
	if len(cfg.Oracle.PassStoryIDs) > 0 {
		engineCfg.Oracle = app.PassStories(cfg.Oracle.PassStoryIDs...)
	}
	return engineCfg
}

// storyInputs converts configured stories into engine story inputs.
func storyInputs(stories []config.StoryConfig) []domain.StoryInput {
	out := make([]domain.StoryInput, 0, len(stories))
	for _, story := range stories {
		out = append(out, domain.StoryInput{
			ID:                 story.ID,
			Title:              story.Title,
			Description:        story.Description,
			AcceptanceCriteria: append([]string(nil), story.Acceptance...),
		})
	}
	return out
}

// millis converts a millisecond count into a duration.
func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
