// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: source.go — Ordered, exactly-once block delivery
//
// Purpose:
//   - Replays history from a starting height up to the tip (catch-up), then
//     follows new heads (live) without losing or repeating a height.
//
// Notes:
//   - Pull-based: a single consumer calls Next, so the race state has exactly
//     one writer and no locking is needed anywhere downstream.
//   - CatchingUp → Live happens exactly once. Live → Done on Close or on the
//     first fatal error.
//   - The processed-height guard, not fetch timing, is what keeps the tail of
//     catch-up and the first live notifications from overlapping.
//
// ⚠️ Not safe for concurrent Next calls.
// ─────────────────────────────────────────────────────────────────────────────

package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mjpowersjr/block-hash-experiments/constants"
	"github.com/mjpowersjr/block-hash-experiments/debug"
	"github.com/mjpowersjr/block-hash-experiments/dedupe"
	"github.com/mjpowersjr/block-hash-experiments/types"
)

// ───────────────────────────── Collaborators ────────────────────────────────

// Chain is the chain-data collaborator.
type Chain interface {
	// CurrentHeight returns the current tip.
	CurrentHeight(ctx context.Context) (uint64, error)

	// Block returns block height, or (nil, nil) if it does not exist yet.
	Block(ctx context.Context, height uint64) (*types.Block, error)

	// SubscribeNewBlocks starts a stream of new head heights.
	SubscribeNewBlocks(ctx context.Context) (Subscription, error)
}

// Subscription is a cancellable stream of new head heights.
type Subscription interface {
	Heights() <-chan uint64
	Err() <-chan error
	Unsubscribe()
}

// ─────────────────────────────── State ──────────────────────────────────────

// Mode is the delivery phase of a Source.
type Mode int

const (
	CatchingUp Mode = iota
	Live
	Done
)

func (m Mode) String() string {
	switch m {
	case CatchingUp:
		return "catching-up"
	case Live:
		return "live"
	case Done:
		return "done"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ErrDone is returned by Next once the source is closed or has failed.
var ErrDone = errors.New("block source closed")

// Options tunes catch-up pacing.
type Options struct {
	// Delay is waited between consecutive catch-up polls.
	Delay time.Duration
}

// DefaultOptions returns the default catch-up pacing.
func DefaultOptions() Options {
	return Options{Delay: constants.CatchUpDelay}
}

// Source delivers blocks in strictly ascending height order, each height at
// most once, starting at a fixed height.
type Source struct {
	chain Chain
	opts  Options

	start uint64
	next  uint64 // next height to deliver
	tip   uint64 // tip observed when catch-up began
	// fillTo bounds live gap filling: heights in [next, fillTo) are pending.
	fillTo uint64

	tipKnown bool
	polled   bool
	mode     Mode

	// subCtx scopes the live subscription to the source, not to one Next call.
	subCtx    context.Context
	subCancel context.CancelFunc
	sub       Subscription
	guard     dedupe.HeightGuard
}

// New creates a source that starts delivering at height start.
func New(chain Chain, start uint64, opts Options) *Source {
	subCtx, subCancel := context.WithCancel(context.Background())
	return &Source{
		chain:     chain,
		opts:      opts,
		start:     start,
		next:      start,
		mode:      CatchingUp,
		subCtx:    subCtx,
		subCancel: subCancel,
	}
}

// Start returns the first height the source delivers.
func (s *Source) Start() uint64 { return s.start }

// Mode returns the current phase.
func (s *Source) Mode() Mode { return s.mode }

// Delivered returns how many blocks Next has handed out.
func (s *Source) Delivered() int { return s.guard.Count() }

// ─────────────────────────────── Delivery ───────────────────────────────────

// Next blocks until the next block is available and returns it.
// Fetch and subscription failures are fatal: the source moves to Done and the
// error wraps types.ErrSourceUnavailable. Context cancellation is returned
// as-is and leaves the source usable: the live subscription belongs to the
// source and ends only on Close.
func (s *Source) Next(ctx context.Context) (types.Block, error) {
	for {
		if err := ctx.Err(); err != nil {
			return types.Block{}, err
		}

		switch s.mode {
		case Done:
			return types.Block{}, ErrDone

		case CatchingUp:
			blk, ok, err := s.catchUp(ctx)
			if err != nil || ok {
				return blk, err
			}

		case Live:
			blk, ok, err := s.live(ctx)
			if err != nil || ok {
				return blk, err
			}
		}
	}
}

// catchUp performs one catch-up step. ok is false when the step produced no
// block (the source switched to live mode).
func (s *Source) catchUp(ctx context.Context) (types.Block, bool, error) {
	if !s.tipKnown {
		tip, err := s.chain.CurrentHeight(ctx)
		if err != nil {
			return types.Block{}, false, s.fail(ctx, fmt.Errorf("tip: %w", err))
		}
		s.tip, s.tipKnown = tip, true
		debug.DropMessage("SOURCE", fmt.Sprintf("catching up from %d to tip %d", s.start, tip))
	}

	if s.next > s.tip {
		s.goLive("caught up with tip")
		return types.Block{}, false, nil
	}

	if s.polled && s.opts.Delay > 0 {
		timer := time.NewTimer(s.opts.Delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return types.Block{}, false, ctx.Err()
		}
	}

	height := s.next
	blk, err := s.chain.Block(ctx, height)
	s.polled = true
	if err != nil {
		return types.Block{}, false, s.fail(ctx, fmt.Errorf("catch-up block %d: %w", height, err))
	}
	if blk == nil {
		s.goLive(fmt.Sprintf("block %d not found", height))
		return types.Block{}, false, nil
	}

	s.next = height + 1
	s.guard.Mark(height)
	return *blk, true, nil
}

// live performs one live step: fill the next pending height, or wait for
// the next notification.
func (s *Source) live(ctx context.Context) (types.Block, bool, error) {
	if s.sub == nil {
		sub, err := s.chain.SubscribeNewBlocks(s.subCtx)
		if err != nil {
			return types.Block{}, false, s.fail(ctx, fmt.Errorf("subscribe: %w", err))
		}
		s.sub = sub
	}

	if s.next < s.fillTo {
		height := s.next
		if s.guard.Seen(height) {
			s.next++
			return types.Block{}, false, nil
		}
		blk, err := s.chain.Block(ctx, height)
		if err != nil {
			return types.Block{}, false, s.fail(ctx, fmt.Errorf("live block %d: %w", height, err))
		}
		if blk == nil {
			// Announced but not served yet; retry on the next notification.
			debug.DropMessage("SOURCE", fmt.Sprintf("block %d not available yet", height))
			s.fillTo = height
			return types.Block{}, false, nil
		}
		s.next = height + 1
		s.guard.Mark(height)
		return *blk, true, nil
	}

	select {
	case <-ctx.Done():
		return types.Block{}, false, ctx.Err()

	case err := <-s.sub.Err():
		return types.Block{}, false, s.fail(ctx, fmt.Errorf("subscription: %w", err))

	case h, ok := <-s.sub.Heights():
		if !ok {
			var err error = errors.New("subscription closed")
			select {
			case e := <-s.sub.Err():
				err = e
			default:
			}
			return types.Block{}, false, s.fail(ctx, fmt.Errorf("subscription: %w", err))
		}
		if h < s.next || s.guard.Seen(h) {
			debug.DropTrace("SOURCE", fmt.Sprintf("discarding notified height %d", h))
			return types.Block{}, false, nil
		}
		if h+1 > s.fillTo {
			s.fillTo = h + 1
		}
		return types.Block{}, false, nil
	}
}

func (s *Source) goLive(reason string) {
	s.mode = Live
	debug.DropMessage("SOURCE", fmt.Sprintf("switching to live mode at %d: %s", s.next, reason))
}

// fail moves the source to Done and normalises err to ErrSourceUnavailable.
// A failure caused by cancellation is reported as the context error.
func (s *Source) fail(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	s.Close()
	if !errors.Is(err, types.ErrSourceUnavailable) {
		err = fmt.Errorf("%w: %w", types.ErrSourceUnavailable, err)
	}
	debug.DropError("SOURCE", err)
	return err
}

// Close releases the live subscription and moves the source to Done.
// Safe to call more than once.
func (s *Source) Close() {
	s.mode = Done
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
	s.subCancel()
}
