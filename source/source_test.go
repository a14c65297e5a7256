package source

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/mjpowersjr/block-hash-experiments/types"
)

// ============================================================================
// FAKE CHAIN
// ============================================================================

type fakeSub struct {
	heights      chan uint64
	errs         chan error
	unsubscribed atomic.Int32
}

func newFakeSub(heights ...uint64) *fakeSub {
	s := &fakeSub{heights: make(chan uint64, 16), errs: make(chan error, 1)}
	for _, h := range heights {
		s.heights <- h
	}
	return s
}

func (s *fakeSub) Heights() <-chan uint64 { return s.heights }
func (s *fakeSub) Err() <-chan error      { return s.errs }
func (s *fakeSub) Unsubscribe()           { s.unsubscribed.Add(1) }

type fakeChain struct {
	mu         sync.Mutex
	tip        uint64
	tipErr     error
	blocks     map[uint64]bool
	absentOnce map[uint64]bool
	failAt     map[uint64]error
	sub        *fakeSub
	subErr     error
	fetched    []uint64
	subscribes int
	subCtx     context.Context
}

func newFakeChain(tip uint64, from, to uint64) *fakeChain {
	c := &fakeChain{
		tip:        tip,
		blocks:     map[uint64]bool{},
		absentOnce: map[uint64]bool{},
		failAt:     map[uint64]error{},
		sub:        newFakeSub(),
	}
	for h := from; h <= to; h++ {
		c.blocks[h] = true
	}
	return c
}

func testBlock(h uint64) *types.Block {
	var seed [8]byte
	for i := range seed {
		seed[i] = byte(h >> (8 * i))
	}
	sum := sha3.Sum256(seed[:])
	return &types.Block{Height: h, Hash: sum[:], GasUsed: 1, GasLimit: 2}
}

func (c *fakeChain) CurrentHeight(ctx context.Context) (uint64, error) {
	return c.tip, c.tipErr
}

func (c *fakeChain) Block(ctx context.Context, h uint64) (*types.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetched = append(c.fetched, h)
	if err := c.failAt[h]; err != nil {
		return nil, err
	}
	if c.absentOnce[h] {
		delete(c.absentOnce, h)
		return nil, nil
	}
	if !c.blocks[h] {
		return nil, nil
	}
	return testBlock(h), nil
}

func (c *fakeChain) SubscribeNewBlocks(ctx context.Context) (Subscription, error) {
	c.subscribes++
	c.subCtx = ctx
	if c.subErr != nil {
		return nil, c.subErr
	}
	return c.sub, nil
}

func nextHeights(t *testing.T, s *Source, n int) []uint64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var got []uint64
	for i := 0; i < n; i++ {
		blk, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("Next after %v: %v", got, err)
		}
		got = append(got, blk.Height)
	}
	return got
}

func equal(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ============================================================================
// MODE TRANSITIONS
// ============================================================================

func TestCatchUpThenLiveDeliversEachHeightOnce(t *testing.T) {
	chain := newFakeChain(102, 100, 104)
	// 102 arrives again over the live stream after catch-up delivered it.
	chain.sub = newFakeSub(102, 104)
	s := New(chain, 100, Options{})

	got := nextHeights(t, s, 3)
	if !equal(got, []uint64{100, 101, 102}) {
		t.Fatalf("catch-up delivered %v", got)
	}
	if s.Mode() != CatchingUp {
		t.Fatalf("mode = %v before tip passed", s.Mode())
	}

	got = nextHeights(t, s, 2)
	if !equal(got, []uint64{103, 104}) {
		t.Fatalf("live delivered %v, want gap 103 filled then 104", got)
	}
	if s.Mode() != Live {
		t.Errorf("mode = %v, want live", s.Mode())
	}
	if s.Delivered() != 5 {
		t.Errorf("delivered = %d, want 5", s.Delivered())
	}
	count102 := 0
	for _, h := range chain.fetched {
		if h == 102 {
			count102++
		}
	}
	if count102 != 1 {
		t.Errorf("block 102 fetched %d times", count102)
	}
	if chain.subscribes != 1 {
		t.Errorf("subscribed %d times", chain.subscribes)
	}
}

func TestAbsentBlockSwitchesToLive(t *testing.T) {
	chain := newFakeChain(110, 100, 110)
	chain.absentOnce[101] = true
	chain.sub = newFakeSub(101)
	s := New(chain, 100, Options{})

	got := nextHeights(t, s, 2)
	if !equal(got, []uint64{100, 101}) {
		t.Fatalf("delivered %v", got)
	}
	if s.Mode() != Live {
		t.Errorf("mode = %v, want live after missing block", s.Mode())
	}
}

func TestStartAboveTipGoesLiveImmediately(t *testing.T) {
	chain := newFakeChain(99, 100, 101)
	chain.sub = newFakeSub(101)
	s := New(chain, 100, Options{})

	got := nextHeights(t, s, 2)
	if !equal(got, []uint64{100, 101}) {
		t.Fatalf("delivered %v", got)
	}
}

func TestLiveAbsentBlockRetriedOnNextNotification(t *testing.T) {
	chain := newFakeChain(109, 110, 111)
	chain.absentOnce[110] = true
	chain.sub = newFakeSub(110, 111)
	s := New(chain, 110, Options{})

	got := nextHeights(t, s, 2)
	if !equal(got, []uint64{110, 111}) {
		t.Fatalf("delivered %v", got)
	}
}

func TestNotificationsBelowStartIgnored(t *testing.T) {
	chain := newFakeChain(49, 50, 50)
	chain.sub = newFakeSub(10, 49, 50)
	s := New(chain, 50, Options{})

	got := nextHeights(t, s, 1)
	if !equal(got, []uint64{50}) {
		t.Fatalf("delivered %v", got)
	}
	for _, h := range chain.fetched {
		if h < 50 {
			t.Errorf("fetched height %d below start", h)
		}
	}
}

// ============================================================================
// FAILURES
// ============================================================================

func TestTipFailureIsFatal(t *testing.T) {
	chain := newFakeChain(0, 0, 0)
	chain.tipErr = errors.New("connection refused")
	s := New(chain, 0, Options{})

	_, err := s.Next(context.Background())
	if !errors.Is(err, types.ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
	if _, err := s.Next(context.Background()); !errors.Is(err, ErrDone) {
		t.Errorf("Next after failure = %v, want ErrDone", err)
	}
}

func TestCatchUpFetchFailureIsFatal(t *testing.T) {
	chain := newFakeChain(105, 100, 105)
	chain.failAt[101] = errors.New("HTTP 502")
	s := New(chain, 100, Options{})

	nextHeights(t, s, 1)
	_, err := s.Next(context.Background())
	if !errors.Is(err, types.ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
	if s.Mode() != Done {
		t.Errorf("mode = %v, want done", s.Mode())
	}
	// Never retried.
	calls := 0
	for _, h := range chain.fetched {
		if h == 101 {
			calls++
		}
	}
	if calls != 1 {
		t.Errorf("block 101 fetched %d times", calls)
	}
}

func TestSubscribeFailureIsFatal(t *testing.T) {
	chain := newFakeChain(0, 1, 1)
	chain.subErr = errors.New("ws handshake failed")
	s := New(chain, 1, Options{})

	_, err := s.Next(context.Background())
	if !errors.Is(err, types.ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
}

func TestSubscriptionErrorTearsDown(t *testing.T) {
	chain := newFakeChain(0, 1, 1)
	chain.sub.errs <- errors.New("connection reset")
	s := New(chain, 1, Options{})

	_, err := s.Next(context.Background())
	if !errors.Is(err, types.ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
	if chain.sub.unsubscribed.Load() != 1 {
		t.Errorf("unsubscribed %d times", chain.sub.unsubscribed.Load())
	}
}

func TestClosedSubscriptionIsFatal(t *testing.T) {
	chain := newFakeChain(0, 1, 1)
	close(chain.sub.heights)
	s := New(chain, 1, Options{})

	_, err := s.Next(context.Background())
	if !errors.Is(err, types.ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
}

// ============================================================================
// PACING & CANCELLATION
// ============================================================================

func TestDelayBetweenPolls(t *testing.T) {
	chain := newFakeChain(3, 1, 3)
	s := New(chain, 1, Options{Delay: 20 * time.Millisecond})

	begin := time.Now()
	nextHeights(t, s, 3)
	if elapsed := time.Since(begin); elapsed < 40*time.Millisecond {
		t.Errorf("3 polls took %v, want at least two delays", elapsed)
	}
}

func TestCancelDuringDelay(t *testing.T) {
	chain := newFakeChain(3, 1, 3)
	s := New(chain, 1, Options{Delay: time.Hour})
	nextHeights(t, s, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Next(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestCancelWhileLiveThenClose(t *testing.T) {
	chain := newFakeChain(0, 1, 1)
	s := New(chain, 1, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := s.Next(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want canceled", err)
	}

	s.Close()
	s.Close()
	if chain.sub.unsubscribed.Load() != 1 {
		t.Errorf("unsubscribed %d times, want 1", chain.sub.unsubscribed.Load())
	}
	if _, err := s.Next(context.Background()); !errors.Is(err, ErrDone) {
		t.Errorf("Next after Close = %v, want ErrDone", err)
	}
}

func TestCancelledNextKeepsSubscription(t *testing.T) {
	chain := newFakeChain(0, 1, 2)
	s := New(chain, 1, Options{})
	defer s.Close()

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	_, err := s.Next(short)
	cancel()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if err := chain.subCtx.Err(); err != nil {
		t.Fatalf("subscription context ended with the Next call: %v", err)
	}

	chain.sub.heights <- 2
	if got := nextHeights(t, s, 2); !equal(got, []uint64{1, 2}) {
		t.Fatalf("delivered %v, want [1 2]", got)
	}
	if s.Mode() != Live || chain.subscribes != 1 {
		t.Errorf("mode %v after %d subscribes", s.Mode(), chain.subscribes)
	}

	s.Close()
	if chain.subCtx.Err() == nil {
		t.Error("subscription context still live after Close")
	}
}

func TestModeString(t *testing.T) {
	for m, want := range map[Mode]string{CatchingUp: "catching-up", Live: "live", Done: "done"} {
		if m.String() != want {
			t.Errorf("%d.String() = %q", m, m.String())
		}
	}
}
