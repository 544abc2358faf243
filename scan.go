package audiotag

import "bytes"

// find returns the offset of the first occurrence of needle in b at or after
// from, or -1. It delegates to bytes.Index, whose runtime implementation is
// already sub-linear (architecture-specific SIMD in internal/bytealg) —
// there's no reason to hand-roll a scanner here.
func find(b ByteSlice, needle []byte, from int) int {
	if from >= len(b) {
		return -1
	}
	idx := bytes.Index(b[from:], needle)
	if idx < 0 {
		return -1
	}
	return from + idx
}

// findByte returns the offset of the first occurrence of c in b at or after
// from, or -1.
func findByte(b ByteSlice, c byte, from int) int {
	if from >= len(b) {
		return -1
	}
	idx := bytes.IndexByte(b[from:], c)
	if idx < 0 {
		return -1
	}
	return from + idx
}

// hasPrefixAt reports whether b[off:] begins with prefix.
func hasPrefixAt(b ByteSlice, off int, prefix []byte) bool {
	if off < 0 || off+len(prefix) > len(b) {
		return false
	}
	return bytes.Equal(b[off:off+len(prefix)], prefix)
}
