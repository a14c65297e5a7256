package controller

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mjpowersjr/block-hash-experiments/types"
)

// StartKind tells how a Start resolves against the tip.
type StartKind int

const (
	// StartLatest begins at the current tip.
	StartLatest StartKind = iota
	// StartOffset begins a fixed number of blocks behind the tip.
	StartOffset
	// StartAbsolute begins at a fixed height.
	StartAbsolute
)

// Start is a parsed starting-point selector.
type Start struct {
	Kind   StartKind
	Offset uint64 // blocks behind the tip, for StartOffset
	Height uint64 // for StartAbsolute
}

// startPattern is the whole integer grammar: no sign other than a leading
// minus, no padding.
var startPattern = regexp.MustCompile(`^-?[0-9]+$`)

// ParseStart accepts "latest", a negative integer (offset behind the tip) or
// a non-negative integer (absolute height).
func ParseStart(s string) (Start, error) {
	if strings.EqualFold(s, "latest") {
		return Start{Kind: StartLatest}, nil
	}
	if !startPattern.MatchString(s) {
		return Start{}, fmt.Errorf("%w: %q is neither \"latest\" nor an integer", types.ErrInvalidStartingPoint, s)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Start{}, fmt.Errorf("%w: %q is neither \"latest\" nor an integer", types.ErrInvalidStartingPoint, s)
	}
	if n < 0 {
		return Start{Kind: StartOffset, Offset: uint64(-n)}, nil
	}
	return Start{Kind: StartAbsolute, Height: uint64(n)}, nil
}

// NeedsTip reports whether Resolve depends on the current tip.
func (s Start) NeedsTip() bool {
	return s.Kind != StartAbsolute
}

// Resolve returns the starting height for the given tip. Offsets reaching
// past genesis resolve to 0.
func (s Start) Resolve(tip uint64) uint64 {
	switch s.Kind {
	case StartOffset:
		if s.Offset > tip {
			return 0
		}
		return tip - s.Offset
	case StartAbsolute:
		return s.Height
	default:
		return tip
	}
}

func (s Start) String() string {
	switch s.Kind {
	case StartOffset:
		return "-" + strconv.FormatUint(s.Offset, 10)
	case StartAbsolute:
		return strconv.FormatUint(s.Height, 10)
	default:
		return "latest"
	}
}
