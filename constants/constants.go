// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: constants.go — Race tunables & chain endpoint defaults
//
// Purpose:
//   - Defines the race parameters shared by the deriver, the race state and
//     the CLI defaults.
//   - Holds the JSON-RPC / websocket endpoint defaults and polling cadence.
//
// Notes:
//   - Every value here is a default; config.Config can override all of them.
//
// ⚠️ No runtime logic here; all values must be compile-time resolvable
// ─────────────────────────────────────────────────────────────────────────────

package constants

import "time"

// ───────────────────────────── Race Parameters ──────────────────────────────

const (
	// Horses is the number of racers in a default race.
	Horses = 12

	// TotalDistance is the finish threshold every horse races towards.
	TotalDistance = 100.0

	// ChunkBytes is the number of hash bytes consumed per horse when deriving pace.
	// 12 horses × 2 bytes = 24 bytes, which fits inside a 32-byte block hash.
	ChunkBytes = 2

	// PaceModulus bounds each derived pace to [0, PaceModulus).
	PaceModulus = 10

	// MaxChunkBytes is the widest chunk that still fits in a uint64 read.
	MaxChunkBytes = 8
)

// ───────────────────────────── Source Cadence ───────────────────────────────

const (
	// CatchUpDelay is the pause between consecutive catch-up polls.
	// Bounds the request rate against public RPC endpoints.
	CatchUpDelay = 3 * time.Second

	// HeadPollInterval is used when no websocket endpoint is configured and
	// new heads are discovered by polling eth_blockNumber.
	HeadPollInterval = 2 * time.Second

	// RequestTimeout caps a single JSON-RPC round trip.
	RequestTimeout = 15 * time.Second

	// HeadBuffer is the capacity of the channel carrying live head heights.
	HeadBuffer = 64
)

// ───────────────────────── Processed-Height Window ──────────────────────────

const (
	// GuardBits sizes the processed-height ring: 2^12 = 4096 heights.
	// Heights are direct-mapped, so any window of 4096 consecutive heights is
	// tracked exactly. A race over 100 distance needs far fewer blocks.
	GuardBits = 12
)

// ─────────────────────────── Endpoint Defaults ──────────────────────────────

const (
	// RPCURL is the JSON-RPC HTTP endpoint used for tip queries and block fetches.
	RPCURL = "https://polygon.llamarpc.com/"

	// WSURL is the websocket endpoint used for eth_subscribe newHeads.
	// Leave empty to fall back to head polling over RPCURL.
	WSURL = ""
)

// ──────────────────────────────── Display ───────────────────────────────────

const (
	// BarWidth is the number of cells in one progress bar.
	BarWidth = 40

	// BarGlue marks the leading edge of a running bar.
	BarGlue = "🐎"
)
