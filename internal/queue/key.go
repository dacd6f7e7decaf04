package queue

import (
	"fmt"
	"math"
)

// Priority keys are fixed-width decimal strings chosen so that plain
// lexicographic order equals publish order: larger change magnitudes map to
// smaller keys, which sort (and therefore publish) first. Ties are broken by
// the rest of the item name, i.e. arrival order.
const (
	keyWidth = 13
	keyBase  = 100_000_000_000 // magnitude is subtracted from this
	keyMax   = 9_999_999_999_999
)

// EncodeKey encodes a change magnitude as a priority key.
// Monotonic: for m1 > m2, EncodeKey(m1) < EncodeKey(m2) lexicographically.
func EncodeKey(magnitude float64) string {
	v := int64(math.Round(keyBase - magnitude))
	if v < 0 {
		v = 0
	}
	if v > keyMax {
		v = keyMax
	}
	return fmt.Sprintf("%0*d", keyWidth, v)
}
