// control.go — Run outcome latch and shutdown signalling
// ============================================================================
// RUN CONTROL
// ============================================================================
//
// Control package coordinates how a race run ends.
//
// Architecture overview:
//   • Latch records the single outcome of a run: one winner or one error
//   • WithSignals turns SIGINT/SIGTERM into context cancellation
//   • The returned stop function releases the handler and cancels the run
//
// Guarantees:
//   • The first Win or Fail wins; every later call is ignored and reported
//   • Settlement happens exactly once, from any goroutine

package control

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mjpowersjr/block-hash-experiments/debug"
	"github.com/mjpowersjr/block-hash-experiments/types"
)

// ============================================================================
// OUTCOME LATCH
// ============================================================================

// Latch holds the outcome of one run. The zero value is not usable; call
// NewLatch. Win, Fail and Settled may be called from any goroutine, so a
// watcher (a signal handler, a second source) can settle a run alongside the
// loop that drives it.
type Latch struct {
	once   sync.Once
	done   chan struct{}
	winner types.Winner
	err    error
	won    bool
}

// NewLatch creates an unsettled latch.
func NewLatch() *Latch {
	return &Latch{done: make(chan struct{})}
}

// Win settles the latch with w. It returns false if the latch was already
// settled.
func (l *Latch) Win(w types.Winner) bool {
	settled := false
	l.once.Do(func() {
		l.winner, l.won = w, true
		settled = true
		close(l.done)
	})
	if !settled {
		debug.DropMessage("LATCH", "late winner ignored: "+w.Name)
	}
	return settled
}

// Fail settles the latch with err. It returns false if the latch was
// already settled. A nil err is ignored.
func (l *Latch) Fail(err error) bool {
	if err == nil {
		return false
	}
	settled := false
	l.once.Do(func() {
		l.err = err
		settled = true
		close(l.done)
	})
	if !settled {
		debug.DropError("LATCH", err)
	}
	return settled
}

// Settled reports whether Win or Fail has taken effect.
func (l *Latch) Settled() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Outcome returns the settled result. Exactly one of the winner or the
// error is meaningful; an unsettled latch reports context.Canceled.
func (l *Latch) Outcome() (types.Winner, error) {
	if !l.Settled() {
		return types.Winner{}, context.Canceled
	}
	if l.won {
		return l.winner, nil
	}
	return types.Winner{}, l.err
}

// ============================================================================
// SHUTDOWN
// ============================================================================

// Signals returns the signals that stop a run.
func Signals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}

// WithSignals returns a context cancelled on SIGINT/SIGTERM or when the
// returned shutdown function is called. The shutdown function also stops
// signal delivery and must be called to release resources.
func WithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, Signals()...)

	stopped := make(chan struct{})
	go func() {
		select {
		case sig := <-sigs:
			debug.DropMessage("SIGNAL", "received "+sig.String()+", shutting down")
			cancel()
		case <-stopped:
		case <-ctx.Done():
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			signal.Stop(sigs)
			close(stopped)
			cancel()
		})
	}
}
