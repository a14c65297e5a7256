package types

import (
	"encoding/hex"
	"errors"
	"strconv"
)

// ============================================================================
// BLOCK VIEW - THE ONLY CHAIN DATA THE RACE CONSUMES
// ============================================================================

// Block is one unit of the chain's append-only sequence as seen by the race.
// The hash is never interpreted: it is a source of entropy only.
type Block struct {
	// Height orders blocks; it is the only ordering the race relies on.
	Height uint64

	// Hash is the raw block hash (32 bytes on EVM chains).
	Hash []byte

	// GasUsed and GasLimit form the resource-usage pair that scales pace
	// into distance. The source guarantees GasLimit > 0.
	GasUsed  uint64
	GasLimit uint64
}

// HashHex renders the block hash with a 0x prefix for logs and the journal.
func (b Block) HashHex() string {
	return "0x" + hex.EncodeToString(b.Hash)
}

// ============================================================================
// RACE OUTCOME
// ============================================================================

// Winner identifies the horse that crossed the finish first and the block
// that carried it over the line.
type Winner struct {
	Index  int
	Name   string
	Height uint64
}

// String formats the announcement printed by the CLI.
func (w Winner) String() string {
	return "🏆 " + w.Name + " wins the race! (block " + strconv.FormatUint(w.Height, 10) + ")"
}

// ============================================================================
// ERROR KINDS
// ============================================================================

var (
	// ErrInsufficientEntropy reports a hash too short to feed every horse.
	ErrInsufficientEntropy = errors.New("insufficient entropy in block hash")

	// ErrInvalidUsage reports a block whose usage limit is zero.
	ErrInvalidUsage = errors.New("invalid block usage")

	// ErrInvalidStartingPoint reports an unparseable start selector.
	ErrInvalidStartingPoint = errors.New("invalid starting point")

	// ErrSourceUnavailable reports a failed fetch or subscription.
	ErrSourceUnavailable = errors.New("block source unavailable")
)
