package rpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mjpowersjr/block-hash-experiments/constants"
	"github.com/mjpowersjr/block-hash-experiments/debug"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// HEAD POLLING SUBSCRIPTION
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// HeadPoller discovers new heads by polling eth_blockNumber. It is the
// fallback subscription when no websocket endpoint is configured.
//
// The first poll emits the current tip; later polls emit only heights above
// the last one emitted. Skipped heights are not emitted individually: the
// block source fills gaps itself.
type HeadPoller struct {
	heights chan uint64
	errs    chan error
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// SubscribeHeads starts polling every interval until ctx is cancelled or
// Unsubscribe is called. A poll failure is delivered on Err and ends the
// subscription.
func (c *Client) SubscribeHeads(ctx context.Context, interval time.Duration) *HeadPoller {
	if interval <= 0 {
		interval = constants.HeadPollInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &HeadPoller{
		heights: make(chan uint64, constants.HeadBuffer),
		errs:    make(chan error, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go p.run(ctx, c, interval)
	return p
}

func (p *HeadPoller) run(ctx context.Context, c *Client, interval time.Duration) {
	defer close(p.done)
	defer close(p.heights)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last uint64
	first := true
	for {
		tip, err := c.BlockNumber(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.errs <- fmt.Errorf("head poll: %w", err)
			return
		}
		if first || tip > last {
			debug.DropTrace("HEAD_POLL", fmt.Sprintf("new head %d", tip))
			select {
			case p.heights <- tip:
			case <-ctx.Done():
				return
			}
			last, first = tip, false
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// Heights returns new head heights in ascending order.
func (p *HeadPoller) Heights() <-chan uint64 { return p.heights }

// Err delivers at most one terminal error.
func (p *HeadPoller) Err() <-chan error { return p.errs }

// Unsubscribe stops polling and waits for the poll goroutine to exit.
// It is safe to call more than once.
func (p *HeadPoller) Unsubscribe() {
	p.once.Do(func() {
		p.cancel()
		<-p.done
	})
}
