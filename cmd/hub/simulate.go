package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hylla/deliveryhub/internal/adapters/storage/sqlite"
	"github.com/hylla/deliveryhub/internal/app"
	"github.com/hylla/deliveryhub/internal/domain"
)

// fastStepLimit caps callbacks fired per settle on the virtual clock.
const fastStepLimit = 10000

// journalReportLimit caps the journal rows read back for the report.
const journalReportLimit = 1000

// simulateOptions holds the simulate command flags.
type simulateOptions struct {
	fast     bool
	scenario string
	json     bool
	moves    []string
}

// storyMove is one --move request: a story id and its target lane.
type storyMove struct {
	id   string
	lane domain.Lane
}

// parseMoves decodes id:lane pairs. Lanes accept ids, labels and kebab variants.
func parseMoves(raw []string) ([]storyMove, error) {
	out := make([]storyMove, 0, len(raw))
	for _, entry := range raw {
		id, laneRaw, ok := strings.Cut(entry, ":")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid --move %q: want <story-id>:<lane>", entry)
		}
		lane, err := domain.ParseLane(laneRaw)
		if err != nil {
			return nil, fmt.Errorf("invalid --move %q: %w", entry, err)
		}
		out = append(out, storyMove{id: id, lane: lane})
	}
	return out, nil
}

// driver abstracts how simulated time passes between scripted actions.
type driver interface {
	settle(ctx context.Context) error
}

// newSimulateCommand plays a scripted delivery flow headlessly.
func newSimulateCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	sim := simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play a scripted delivery flow without the TUI",
		Long: "simulate generates stories, streams code for the first story, runs simulated\n" +
			"tests on the first two stories and optionally plays a scenario, then prints\n" +
			"the activity feed and the final board. Each --move is applied after the\n" +
			"test runs settle, before the scenario.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := openSession(*opts, stderr, true)
			if err != nil {
				return err
			}
			defer sess.close(stderr)
			return runSimulate(cmd.Context(), sess, sim, stdout)
		},
	}
	cmd.Flags().BoolVar(&sim.fast, "fast", false, "advance a virtual clock instead of waiting in real time")
	cmd.Flags().StringVar(&sim.scenario, "scenario", "", "scenario id to play after the test runs")
	cmd.Flags().BoolVar(&sim.json, "json", false, "print the final snapshot as JSON")
	cmd.Flags().StringArrayVar(&sim.moves, "move", nil, "extra story move as <story-id>:<lane>, repeatable")
	return cmd
}

// runSimulate drives the engine through the scripted flow and reports the outcome.
func runSimulate(ctx context.Context, sess *session, sim simulateOptions, stdout io.Writer) error {
	logger := sess.logger.forCommand("simulate")
	logger.Info("command flow start", "fast", sim.fast, "scenario", sim.scenario, "moves", len(sim.moves))

	moves, err := parseMoves(sim.moves)
	if err != nil {
		return err
	}
	cfg := engineConfig(sess.cfg)
	if sim.scenario != "" {
		if _, ok := cfg.Content.Scenario(sim.scenario); !ok {
			return fmt.Errorf("%w: %s", app.ErrScenarioNotFound, sim.scenario)
		}
	}

	var (
		engine *app.Engine
		drv    driver
	)
	g, gctx := errgroup.WithContext(ctx)
	loopCtx, stopLoop := context.WithCancel(gctx)
	defer stopLoop()
	if sim.fast {
		sched := app.NewManualScheduler(time.Now().UTC())
		engine = app.NewEngine(sched, nil, cfg)
		drv = manualDriver{sched: sched}
	} else {
		sched := app.NewLoopScheduler()
		engine = app.NewEngine(sched, nil, cfg)
		idle := newIdleWaiter(engine)
		defer idle.unsubscribe()
		drv = idle
		g.Go(func() error {
			return sched.Run(loopCtx)
		})
	}

	journal, closeJournal, err := sess.openJournal(ctx, engine)
	if err != nil {
		return err
	}
	defer closeJournal()

	g.Go(func() error {
		defer stopLoop()
		return playScript(gctx, engine, drv, moves, sim.scenario)
	})
	if err := g.Wait(); err != nil {
		logger.Error("simulation failed", "err", err)
		return err
	}
	cancelled := engine.CancelRuns()

	snap := engine.Snapshot()
	if sim.json {
		if err := writeSnapshotJSON(stdout, snap); err != nil {
			return err
		}
	} else if err := writeSimulationReport(ctx, stdout, snap, journal); err != nil {
		return err
	}
	logger.Info("command flow complete", "cancelled_runs", cancelled, "activity", len(snap.Activity))
	return nil
}

// playScript issues the scripted user actions, settling after each phase.
func playScript(ctx context.Context, engine *app.Engine, drv driver, moves []storyMove, scenarioID string) error {
	if err := engine.GenerateStories(); err != nil {
		return fmt.Errorf("generate stories: %w", err)
	}
	if err := drv.settle(ctx); err != nil {
		return err
	}

	backlog := engine.Snapshot().Stories(domain.LaneBacklog)
	if len(backlog) == 0 {
		return errors.New("story generation produced an empty backlog")
	}
	first := backlog[0].ID
	if _, err := engine.MoveStoryByID(first, domain.LaneInProgress); err != nil {
		return fmt.Errorf("start story %s: %w", first, err)
	}
	if err := drv.settle(ctx); err != nil {
		return err
	}

	toTest := []string{first}
	if len(backlog) > 1 {
		toTest = append(toTest, backlog[1].ID)
	}
	for _, id := range toTest {
		if _, err := engine.MoveStoryByID(id, domain.LaneTesting); err != nil {
			return fmt.Errorf("test story %s: %w", id, err)
		}
	}
	if err := drv.settle(ctx); err != nil {
		return err
	}

	if len(moves) > 0 {
		for _, move := range moves {
			if _, err := engine.MoveStoryByID(move.id, move.lane); err != nil {
				return fmt.Errorf("move story %s to %s: %w", move.id, move.lane, err)
			}
		}
		if err := drv.settle(ctx); err != nil {
			return err
		}
	}

	if scenarioID == "" {
		return nil
	}
	if err := engine.StartScenario(scenarioID); err != nil {
		return fmt.Errorf("start scenario: %w", err)
	}
	return drv.settle(ctx)
}

// manualDriver settles by firing every pending callback on the virtual clock.
type manualDriver struct {
	sched *app.ManualScheduler
}

// settle drains the manual scheduler.
func (d manualDriver) settle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.sched.RunUntilIdle(fastStepLimit)
	if pending := d.sched.Pending(); pending > 0 {
		return fmt.Errorf("simulation did not settle: %d callbacks pending", pending)
	}
	return nil
}

// idleWaiter settles by waiting for a notification with no runs in flight.
type idleWaiter struct {
	engine      *app.Engine
	idle        chan struct{}
	unsubscribe func()
}

// newIdleWaiter subscribes an idle detector to engine.
func newIdleWaiter(engine *app.Engine) *idleWaiter {
	w := &idleWaiter{engine: engine, idle: make(chan struct{}, 1)}
	w.unsubscribe = engine.Subscribe(func(n app.Notification) {
		if len(n.Snapshot.Runs) > 0 {
			return
		}
		select {
		case w.idle <- struct{}{}:
		default:
		}
	})
	return w
}

// settle blocks until every run has finished or ctx is done.
func (w *idleWaiter) settle(ctx context.Context) error {
	for len(w.engine.Snapshot().Runs) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.idle:
		}
	}
	return nil
}

// writeSimulationReport prints the activity feed oldest first, the board and,
// when a journal is open, every journaled run with totals.
func writeSimulationReport(ctx context.Context, stdout io.Writer, snap app.Snapshot, journal *sqlite.Journal) error {
	_, _ = fmt.Fprintf(stdout, "activity (%d retained, limit %d):\n", len(snap.Activity), snap.ActivityLimit)
	for i := len(snap.Activity) - 1; i >= 0; i-- {
		event := snap.Activity[i]
		_, _ = fmt.Fprintf(stdout, "  %s  %s\n", event.At.Format("15:04:05"), event.Text)
	}

	_, _ = fmt.Fprintln(stdout, "board:")
	for _, lane := range domain.Lanes() {
		stories := snap.Stories(lane)
		ids := make([]string, 0, len(stories))
		for _, story := range stories {
			ids = append(ids, story.ID)
		}
		_, _ = fmt.Fprintf(stdout, "  %-12s %d  %s\n", lane.Label(), len(stories), strings.Join(ids, ", "))
	}

	if journal == nil {
		return nil
	}
	runs, err := journal.ListRuns(ctx, journalReportLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	_, _ = fmt.Fprintln(stdout, "runs:")
	for _, run := range runs {
		target := run.StoryID
		if target == "" {
			target = "-"
		}
		_, _ = fmt.Fprintf(stdout, "  %-10s %-8s %-10s %d/%d\n", run.Kind, target, run.Status, run.Step, run.Total)
	}
	counts, err := journal.RunSummary(ctx)
	if err != nil {
		return fmt.Errorf("summarize runs: %w", err)
	}
	_, _ = fmt.Fprintln(stdout, "totals:")
	for _, count := range counts {
		_, _ = fmt.Fprintf(stdout, "  %-10s %-10s %d\n", count.Kind, count.Status, count.Count)
	}
	events, err := journal.ListActivity(ctx, journalReportLimit)
	if err != nil {
		return fmt.Errorf("list journaled activity: %w", err)
	}
	_, _ = fmt.Fprintf(stdout, "journal: %d events, %d runs\n", len(events), len(runs))
	return nil
}

// writeSnapshotJSON encodes the snapshot export document.
func writeSnapshotJSON(stdout io.Writer, snap app.Snapshot) error {
	encoded, err := json.MarshalIndent(snap.Document(time.Now().UTC()), "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, _ = fmt.Fprintln(stdout, string(encoded))
	return nil
}
