package pace

import (
	"errors"
	"reflect"
	"testing"

	"golang.org/x/crypto/sha3"

	"github.com/mjpowersjr/block-hash-experiments/types"
	"github.com/mjpowersjr/block-hash-experiments/utils"
)

// hashFor returns a deterministic 32-byte hash for a seed.
func hashFor(seed byte) []byte {
	h := sha3.Sum256([]byte{seed})
	return h[:]
}

// -----------------------------------------------------------------------------
// Derive
// -----------------------------------------------------------------------------

func TestDeriveScenarioTwoHorses(t *testing.T) {
	hash, err := utils.DecodeHexData("0x0005000a")
	if err != nil {
		t.Fatal(err)
	}
	got, err := Derive(hash, 2, DefaultOptions())
	if err != nil {
		t.Fatalf("Derive error: %v", err)
	}
	if want := []int{5, 0}; !reflect.DeepEqual(got, want) {
		t.Errorf("Derive = %v, want %v", got, want)
	}
}

func TestDeriveRangeAndPurity(t *testing.T) {
	opts := DefaultOptions()
	for seed := 0; seed < 256; seed++ {
		hash := hashFor(byte(seed))
		first, err := Derive(hash, 12, opts)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if len(first) != 12 {
			t.Fatalf("seed %d: got %d paces", seed, len(first))
		}
		for i, p := range first {
			if p < 0 || p >= 10 {
				t.Fatalf("seed %d horse %d: pace %d outside [0,10)", seed, i, p)
			}
		}
		second, _ := Derive(hash, 12, opts)
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("seed %d: Derive not pure: %v vs %v", seed, first, second)
		}
	}
}

func TestDeriveDoesNotMutateHash(t *testing.T) {
	hash := hashFor(7)
	orig := append([]byte(nil), hash...)
	if _, err := Derive(hash, 16, DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(hash, orig) {
		t.Error("Derive mutated its input")
	}
}

func TestDeriveChunkSizes(t *testing.T) {
	hash := []byte{0x01, 0x02, 0x03, 0x04}
	tests := []struct {
		name string
		opts Options
		n    int
		want []int
	}{
		{"one byte mod 10", Options{ChunkBytes: 1, Modulus: 10}, 4, []int{1, 2, 3, 4}},
		{"two bytes mod 1000", Options{ChunkBytes: 2, Modulus: 1000}, 2, []int{258, 772}},
		{"four bytes mod 7", Options{ChunkBytes: 4, Modulus: 7}, 1, []int{0x01020304 % 7}},
		{"zero horses", Options{ChunkBytes: 2, Modulus: 10}, 0, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Derive(hash, tt.n, tt.opts)
			if err != nil {
				t.Fatalf("Derive error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Derive = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeriveInsufficientEntropy(t *testing.T) {
	// 12 horses need 24 bytes.
	_, err := Derive(make([]byte, 23), 12, DefaultOptions())
	if !errors.Is(err, types.ErrInsufficientEntropy) {
		t.Fatalf("err = %v, want ErrInsufficientEntropy", err)
	}
	if _, err := Derive(make([]byte, 24), 12, DefaultOptions()); err != nil {
		t.Fatalf("exact length rejected: %v", err)
	}
}

func TestDeriveRejectsBadOptions(t *testing.T) {
	for _, opts := range []Options{
		{ChunkBytes: 0, Modulus: 10},
		{ChunkBytes: 9, Modulus: 10},
		{ChunkBytes: 2, Modulus: 0},
	} {
		if _, err := Derive(hashFor(1), 2, opts); err == nil {
			t.Errorf("Derive accepted %+v", opts)
		}
	}
}

// -----------------------------------------------------------------------------
// Multiplier
// -----------------------------------------------------------------------------

func TestMultiplier(t *testing.T) {
	tests := []struct {
		name        string
		used, limit uint64
		want        float64
	}{
		{"empty block", 0, 30_000_000, 0},
		{"half full", 15_000_000, 30_000_000, 0.5},
		{"full", 30_000_000, 30_000_000, 1},
		{"over limit clamps", 31_000_000, 30_000_000, 1},
		{"tiny limit", 1, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Multiplier(tt.used, tt.limit)
			if err != nil {
				t.Fatalf("Multiplier error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Multiplier(%d, %d) = %v, want %v", tt.used, tt.limit, got, tt.want)
			}
		})
	}
}

func TestMultiplierRange(t *testing.T) {
	for seed := 0; seed < 128; seed++ {
		h := hashFor(byte(seed))
		used := utils.LoadBEN(h[:4])
		limit := utils.LoadBEN(h[4:8])%uint64(1<<31) + 1
		m, err := Multiplier(used, limit)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if m < 0 || m > 1 {
			t.Fatalf("seed %d: multiplier %v outside [0,1]", seed, m)
		}
	}
}

func TestMultiplierZeroLimit(t *testing.T) {
	if _, err := Multiplier(10, 0); !errors.Is(err, types.ErrInvalidUsage) {
		t.Fatalf("err = %v, want ErrInvalidUsage", err)
	}
}

func TestForBlockWrapsHeight(t *testing.T) {
	_, _, err := ForBlock(types.Block{Height: 42, Hash: hashFor(1), GasLimit: 0}, 2, DefaultOptions())
	if !errors.Is(err, types.ErrInvalidUsage) {
		t.Fatalf("err = %v, want ErrInvalidUsage", err)
	}
	paces, m, err := ForBlock(types.Block{Height: 43, Hash: hashFor(1), GasUsed: 1, GasLimit: 4}, 2, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(paces) != 2 || m != 0.25 {
		t.Errorf("ForBlock = %v, %v", paces, m)
	}
}
