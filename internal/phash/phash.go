// Package phash computes 64-bit perceptual fingerprints of screenshots and
// the Hamming distance between them.
package phash

import (
	"fmt"
	"image"
	"strconv"

	"github.com/corona10/goimagehash"
)

// Bits is the fingerprint width.
const Bits = 64

// Fingerprint is a DCT perceptual hash.
type Fingerprint uint64

// Compute hashes img.
func Compute(img image.Image) (Fingerprint, error) {
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, fmt.Errorf("failed to compute perceptual hash: %w", err)
	}
	return Fingerprint(h.GetHash()), nil
}

// String renders the fingerprint as 16 lowercase hex characters.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// Parse reverses String.
func Parse(s string) (Fingerprint, error) {
	if len(s) != Bits/4 {
		return 0, fmt.Errorf("invalid fingerprint %q: want %d hex chars", s, Bits/4)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid fingerprint %q: %w", s, err)
	}
	return Fingerprint(v), nil
}

// Distance is the number of differing bits between a and b.
func Distance(a, b Fingerprint) int {
	ha := goimagehash.NewImageHash(uint64(a), goimagehash.PHash)
	hb := goimagehash.NewImageHash(uint64(b), goimagehash.PHash)
	// Distance only fails on mismatched hash kinds.
	d, _ := ha.Distance(hb)
	return d
}
