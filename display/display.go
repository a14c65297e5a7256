// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: display.go — Terminal multi-bar race board
//
// Purpose:
//   - Draws one progress bar per horse and redraws the whole board in place
//     after every update.
//
// Notes:
//   - Line format: "{name} [{bar}] {pct}% | {value}/{total} Distance", with
//     the horse glyph glued to the leading edge of the filled section.
//   - On a terminal the cursor is hidden while racing and restored by StopAll.
//   - When the output is not a terminal nothing is drawn until StopAll, which
//     writes the final board once.
//
// ⚠️ StopAll is terminal: later updates are ignored.
// ─────────────────────────────────────────────────────────────────────────────

package display

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/mjpowersjr/block-hash-experiments/constants"
)

const (
	hideCursor = "\033[?25l"
	showCursor = "\033[?25h"
	clearLine  = "\r\033[2K"

	complete   = "█"
	incomplete = "░"

	// Space taken by everything on a line except the name and the bar.
	lineOverhead = 40
)

// Handle identifies one indicator on a Board.
type Handle int

type indicator struct {
	name  string
	max   float64
	value float64
}

// Options controls rendering.
type Options struct {
	// Width is the number of cells in a bar.
	Width int
	// Interactive enables in-place redraws and cursor control.
	Interactive bool
}

// Board is a set of progress bars sharing one output. Safe for concurrent use.
type Board struct {
	mu      sync.Mutex
	out     io.Writer
	opts    Options
	bars    []indicator
	drawn   int
	hidden  bool
	stopped bool
}

// New creates a board on out, detecting whether out is a terminal and
// narrowing bars to fit its width.
func New(out io.Writer) *Board {
	opts := Options{Width: constants.BarWidth}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		opts.Interactive = true
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil {
			opts.Width = fit(cols)
		}
	}
	return NewWithOptions(out, opts)
}

// NewWithOptions creates a board with explicit rendering options.
func NewWithOptions(out io.Writer, opts Options) *Board {
	if opts.Width <= 0 {
		opts.Width = constants.BarWidth
	}
	return &Board{out: out, opts: opts}
}

func fit(cols int) int {
	w := cols - lineOverhead
	if w > constants.BarWidth {
		return constants.BarWidth
	}
	if w < 10 {
		return 10
	}
	return w
}

// CreateIndicator adds a bar running from 0 to max.
func (b *Board) CreateIndicator(name string, max float64) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bars = append(b.bars, indicator{name: name, max: max})
	if b.opts.Interactive && !b.stopped {
		if !b.hidden {
			io.WriteString(b.out, hideCursor)
			b.hidden = true
		}
		b.redraw()
	}
	return Handle(len(b.bars) - 1)
}

// UpdateIndicator sets the current value of bar h.
func (b *Board) UpdateIndicator(h Handle, value float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped || int(h) < 0 || int(h) >= len(b.bars) {
		return
	}
	b.bars[h].value = value
	if b.opts.Interactive {
		b.redraw()
	}
}

// StopAll draws the final board and restores the cursor. Only the first
// call has any effect.
func (b *Board) StopAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	b.stopped = true
	b.redraw()
	if b.hidden {
		io.WriteString(b.out, showCursor)
		b.hidden = false
	}
}

// Stopped reports whether StopAll has run.
func (b *Board) Stopped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped
}

// redraw rewrites every bar. On a terminal the cursor first moves back to
// the top of the previous frame.
func (b *Board) redraw() {
	var sb strings.Builder
	if b.opts.Interactive && b.drawn > 0 {
		fmt.Fprintf(&sb, "\033[%dA", b.drawn)
	}
	for _, bar := range b.bars {
		if b.opts.Interactive {
			sb.WriteString(clearLine)
		}
		sb.WriteString(renderLine(bar, b.opts.Width))
		sb.WriteByte('\n')
	}
	b.drawn = len(b.bars)
	io.WriteString(b.out, sb.String())
}

// renderLine formats one bar.
func renderLine(bar indicator, width int) string {
	frac := 0.0
	if bar.max > 0 {
		frac = bar.value / bar.max
	}
	frac = math.Max(0, math.Min(1, frac))

	filled := int(math.Round(frac * float64(width)))
	var sb strings.Builder
	sb.WriteString(strings.Repeat(complete, filled))
	if filled < width {
		sb.WriteString(constants.BarGlue)
	}
	sb.WriteString(strings.Repeat(incomplete, width-filled))

	return fmt.Sprintf("%s [%s] %3d%% | %s/%s Distance",
		bar.name, sb.String(), int(math.Round(frac*100)), number(bar.value), number(bar.max))
}

// number drops a trailing ".0" so whole distances print as integers.
func number(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
