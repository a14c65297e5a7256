// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: dedupe.go — Processed block-height guard
//
// Purpose:
//   - Guarantees every block height is applied to the race at most once,
//     even when catch-up polling and the live subscription both produce it.
//
// Notes:
//   - Direct-mapped ring: slot = height & mask. Heights advance monotonically,
//     so any window of 2^GuardBits consecutive heights is tracked exactly.
//   - A height that fell out of the window is reported as unseen; the source
//     never asks about heights that old because it also tracks its cursor.
//
// ⚠️ Not thread-safe. The block source is its only caller.
// ─────────────────────────────────────────────────────────────────────────────

package dedupe

import "github.com/mjpowersjr/block-hash-experiments/constants"

const ringSize = 1 << constants.GuardBits

// HeightGuard remembers recently processed block heights.
type HeightGuard struct {
	// slot stores height+1 so the zero value means "empty".
	buf   [ringSize]uint64
	count int
}

// Seen reports whether height was already marked.
func (g *HeightGuard) Seen(height uint64) bool {
	return g.buf[height&(ringSize-1)] == height+1
}

// Mark records height as processed. It returns false if height was already
// marked, so Mark doubles as an atomic check-and-set for the single caller.
func (g *HeightGuard) Mark(height uint64) bool {
	slot := &g.buf[height&(ringSize-1)]
	if *slot == height+1 {
		return false
	}
	*slot = height + 1
	g.count++
	return true
}

// Count returns the number of distinct heights marked so far.
func (g *HeightGuard) Count() int {
	return g.count
}
