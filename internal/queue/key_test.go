package queue

import "testing"

func TestEncodeKeyOrdering(t *testing.T) {
	t.Parallel()

	// Bigger magnitudes must sort first.
	magnitudes := []float64{0, 1, 100, 1520.5, 50000, 1e6, 1e11, 1e15}
	for i := 1; i < len(magnitudes); i++ {
		lo, hi := magnitudes[i-1], magnitudes[i]
		kLo, kHi := EncodeKey(lo), EncodeKey(hi)
		if kHi > kLo {
			t.Errorf("EncodeKey(%v)=%s should sort before EncodeKey(%v)=%s", hi, kHi, lo, kLo)
		}
	}
}

func TestEncodeKeyWidthAndClamp(t *testing.T) {
	t.Parallel()

	for _, m := range []float64{-5, 0, 1, 1e11, 1e18} {
		k := EncodeKey(m)
		if len(k) != 13 {
			t.Errorf("EncodeKey(%v) = %q, want 13 digits", m, k)
		}
	}
	if EncodeKey(1e18) != "0000000000000" {
		t.Errorf("huge magnitude should clamp to the smallest key, got %s", EncodeKey(1e18))
	}
	if EncodeKey(-5) <= EncodeKey(0) {
		// Negative magnitudes clamp at the large end.
		t.Errorf("negative magnitude should not outrank zero")
	}
}
