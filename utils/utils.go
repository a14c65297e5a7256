package utils

import (
	"encoding/hex"
	"errors"
)

var (
	errEmptyHex    = errors.New("empty hex quantity")
	errBadNibble   = errors.New("invalid hex digit")
	errHexOverflow = errors.New("hex quantity overflows uint64")
)

///////////////////////////////////////////////////////////////////////////////
// Hex Decoders — JSON-RPC Quantities & Data
///////////////////////////////////////////////////////////////////////////////

// ParseHexU64 parses a JSON-RPC quantity ("0x1b4") into a uint64.
// The 0x prefix is optional. Unlike a lenient scanner it rejects any
// non-nibble byte and values wider than 64 bits.
func ParseHexU64(s string) (uint64, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1]|0x20) == 'x' {
		s = s[2:]
	}
	if s == "" {
		return 0, errEmptyHex
	}
	if len(s) > 16 {
		return 0, errHexOverflow
	}
	var u uint64
	for i := 0; i < len(s); i++ {
		v, ok := nibble(s[i])
		if !ok {
			return 0, errBadNibble
		}
		u = u<<4 | uint64(v)
	}
	return u, nil
}

// FormatHexU64 renders a uint64 as a JSON-RPC quantity.
func FormatHexU64(v uint64) string {
	const digits = "0123456789abcdef"
	if v == 0 {
		return "0x0"
	}
	var buf [18]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v&0xF]
		v >>= 4
	}
	i--
	buf[i] = 'x'
	i--
	buf[i] = '0'
	return string(buf[i:])
}

// DecodeHexData decodes 0x-prefixed DATA (hashes) into raw bytes.
func DecodeHexData(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1]|0x20) == 'x' {
		s = s[2:]
	}
	return hex.DecodeString(s)
}

func nibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

///////////////////////////////////////////////////////////////////////////////
// Unaligned Loads — Big-Endian Chunk Reads
///////////////////////////////////////////////////////////////////////////////

// LoadBEN reads len(b) bytes as an unsigned big-endian integer.
// Callers keep len(b) <= 8; wider input keeps only the low 64 bits.
// A 2-byte chunk {0x00, 0x0a} yields 10.
func LoadBEN(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
