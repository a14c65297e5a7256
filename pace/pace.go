// Package pace turns one block into per-horse progress inputs.
//
// Both functions are pure: the same block always yields the same pace vector
// and the same multiplier, which is what makes a replayed race reproducible.
package pace

import (
	"fmt"

	"github.com/mjpowersjr/block-hash-experiments/constants"
	"github.com/mjpowersjr/block-hash-experiments/types"
	"github.com/mjpowersjr/block-hash-experiments/utils"
)

// Options controls how a hash is partitioned.
type Options struct {
	// ChunkBytes is the number of hash bytes read per horse (1..8).
	ChunkBytes int
	// Modulus bounds every pace to [0, Modulus).
	Modulus int
}

// DefaultOptions returns 2-byte chunks reduced modulo 10.
func DefaultOptions() Options {
	return Options{ChunkBytes: constants.ChunkBytes, Modulus: constants.PaceModulus}
}

// Validate rejects partitions that cannot be read into a uint64 or reduced.
func (o Options) Validate() error {
	if o.ChunkBytes < 1 || o.ChunkBytes > constants.MaxChunkBytes {
		return fmt.Errorf("chunk size %d outside 1..%d", o.ChunkBytes, constants.MaxChunkBytes)
	}
	if o.Modulus < 1 {
		return fmt.Errorf("pace modulus %d must be positive", o.Modulus)
	}
	return nil
}

// Required returns the number of hash bytes needed to feed n horses.
func (o Options) Required(n int) int {
	return n * o.ChunkBytes
}

// Derive splits hash into n consecutive chunks, reads each as a big-endian
// unsigned integer and reduces it modulo opts.Modulus.
//
// A hash shorter than n*ChunkBytes fails with types.ErrInsufficientEntropy;
// it is never padded or extended.
func Derive(hash []byte, n int, opts Options) ([]int, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("negative horse count %d", n)
	}
	need := opts.Required(n)
	if len(hash) < need {
		return nil, fmt.Errorf("%w: have %d bytes, need %d for %d horses",
			types.ErrInsufficientEntropy, len(hash), need, n)
	}

	paces := make([]int, n)
	mod := uint64(opts.Modulus)
	for i := 0; i < n; i++ {
		chunk := hash[i*opts.ChunkBytes : (i+1)*opts.ChunkBytes]
		paces[i] = int(utils.LoadBEN(chunk) % mod)
	}
	return paces, nil
}

// Multiplier returns used/limit clamped to [0, 1].
//
// Some chains let gasUsed edge past gasLimit; the clamp keeps the race
// moving instead of failing. A zero limit fails with types.ErrInvalidUsage.
func Multiplier(used, limit uint64) (float64, error) {
	if limit == 0 {
		return 0, fmt.Errorf("%w: limit is zero (used %d)", types.ErrInvalidUsage, used)
	}
	m := float64(used) / float64(limit)
	if m > 1 {
		m = 1
	}
	return m, nil
}

// ForBlock derives both inputs for one block.
func ForBlock(b types.Block, n int, opts Options) ([]int, float64, error) {
	paces, err := Derive(b.Hash, n, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("block %d: %w", b.Height, err)
	}
	m, err := Multiplier(b.GasUsed, b.GasLimit)
	if err != nil {
		return nil, 0, fmt.Errorf("block %d: %w", b.Height, err)
	}
	return paces, m, nil
}
