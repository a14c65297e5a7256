// ════════════════════════════════════════════════════════════════════════════════════════════════
// Race Controller
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Block Hash Horse Race
// Component: Orchestrates one race from starting height to winner
//
// Description:
//   Resolves the starting point, pulls blocks from the source one at a time, turns each into
//   a pace vector and a usage multiplier, applies them to the race state, mirrors distances on
//   the display and journals every step. Stops at the first winner.
//
// Guarantees:
//   - One writer: blocks are applied on the calling goroutine only
//   - Exactly one outcome per run: a winner or an error, never both
//   - On every exit path the source is closed and the display is stopped exactly once
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/mjpowersjr/block-hash-experiments/control"
	"github.com/mjpowersjr/block-hash-experiments/debug"
	"github.com/mjpowersjr/block-hash-experiments/display"
	"github.com/mjpowersjr/block-hash-experiments/journal"
	"github.com/mjpowersjr/block-hash-experiments/pace"
	"github.com/mjpowersjr/block-hash-experiments/race"
	"github.com/mjpowersjr/block-hash-experiments/source"
	"github.com/mjpowersjr/block-hash-experiments/types"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// COLLABORATORS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Display shows one indicator per horse.
type Display interface {
	CreateIndicator(name string, max float64) display.Handle
	UpdateIndicator(h display.Handle, value float64)
	StopAll()
}

// Recorder persists runs. Recording failures are logged and never end a run.
type Recorder interface {
	StartRun(start uint64, threshold float64, horses int, endpoint string) (string, error)
	RecordBlock(runID string, step journal.Step) error
	FinishRun(runID string, winner *types.Winner, runErr error) error
}

// Config describes one race.
type Config struct {
	Horses   int
	Distance float64
	Pace     pace.Options
	Source   source.Options
	Start    Start
	// Endpoint is stored in the journal to identify the chain raced on.
	Endpoint string
	// Recorder is optional.
	Recorder Recorder
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// CONTROLLER
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Controller runs races against one chain and one display.
type Controller struct {
	chain   source.Chain
	display Display
	cfg     Config
}

// New creates a controller.
func New(chain source.Chain, disp Display, cfg Config) *Controller {
	return &Controller{chain: chain, display: disp, cfg: cfg}
}

// Run races until a horse crosses the finish line, a fatal error occurs or
// ctx is cancelled.
func (c *Controller) Run(ctx context.Context) (types.Winner, error) {
	defer c.display.StopAll()

	latch := control.NewLatch()

	state, err := race.NewState(c.cfg.Horses, c.cfg.Distance)
	if err != nil {
		return types.Winner{}, err
	}
	if err := c.cfg.Pace.Validate(); err != nil {
		return types.Winner{}, err
	}

	start, err := c.resolveStart(ctx)
	if err != nil {
		return types.Winner{}, err
	}
	debug.DropMessage("RACE", fmt.Sprintf("%d horses racing to %v from block %d (%s)",
		c.cfg.Horses, c.cfg.Distance, start, c.cfg.Start))

	src := source.New(c.chain, start, c.cfg.Source)
	defer src.Close()

	runID := c.startRun(start)

	handles := make([]display.Handle, state.Len())
	for i, e := range state.Snapshot() {
		handles[i] = c.display.CreateIndicator(e.Name, state.Threshold())
	}

	for !latch.Settled() {
		blk, err := src.Next(ctx)
		if err != nil {
			latch.Fail(err)
			break
		}

		paces, multiplier, err := pace.ForBlock(blk, state.Len(), c.cfg.Pace)
		if err != nil {
			latch.Fail(err)
			break
		}

		_, won, err := state.ApplyBlock(paces, multiplier)
		if err != nil {
			latch.Fail(fmt.Errorf("block %d: %w", blk.Height, err))
			break
		}

		for i, d := range state.Distances() {
			c.display.UpdateIndicator(handles[i], d)
		}
		c.recordBlock(runID, blk, paces, multiplier, src.Mode())
		debug.DropTrace("RACE", fmt.Sprintf("block %d applied (x%.3f) paces %v", blk.Height, multiplier, paces))

		if won {
			e, _ := state.Winner()
			latch.Win(types.Winner{Index: e.Index, Name: e.Name, Height: blk.Height})
		}
	}

	winner, runErr := latch.Outcome()
	c.finishRun(runID, winner, runErr)
	return winner, runErr
}

// resolveStart turns the selector into a height, asking for the tip only
// when the selector is relative.
func (c *Controller) resolveStart(ctx context.Context) (uint64, error) {
	if !c.cfg.Start.NeedsTip() {
		return c.cfg.Start.Resolve(0), nil
	}
	tip, err := c.chain.CurrentHeight(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if !errors.Is(err, types.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %w", types.ErrSourceUnavailable, err)
		}
		return 0, fmt.Errorf("resolve start %s: %w", c.cfg.Start, err)
	}
	return c.cfg.Start.Resolve(tip), nil
}

// ───────────────────────────── Journal Hooks ─────────────────────────────

func (c *Controller) startRun(start uint64) string {
	if c.cfg.Recorder == nil {
		return ""
	}
	id, err := c.cfg.Recorder.StartRun(start, c.cfg.Distance, c.cfg.Horses, c.cfg.Endpoint)
	if err != nil {
		debug.DropError("JOURNAL", err)
		return ""
	}
	return id
}

func (c *Controller) recordBlock(runID string, blk types.Block, paces []int, multiplier float64, mode source.Mode) {
	if runID == "" {
		return
	}
	step := journal.Step{
		Height:     blk.Height,
		Hash:       blk.HashHex(),
		Multiplier: multiplier,
		Paces:      paces,
		Mode:       mode.String(),
	}
	if err := c.cfg.Recorder.RecordBlock(runID, step); err != nil {
		debug.DropError("JOURNAL", err)
	}
}

func (c *Controller) finishRun(runID string, winner types.Winner, runErr error) {
	if runID == "" {
		return
	}
	var w *types.Winner
	if runErr == nil {
		w = &winner
	}
	if err := c.cfg.Recorder.FinishRun(runID, w, runErr); err != nil {
		debug.DropError("JOURNAL", err)
	}
}
