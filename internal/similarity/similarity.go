// Package similarity implements the coarse byte-level heuristic used to decide
// whether a freshly downloaded receipt is a re-render of the last saved one.
package similarity

// Threshold is the score a pair must exceed to count as the same document.
const Threshold = 0.99

// Result carries the components of one comparison.
type Result struct {
	ByteAgreement float64
	SizeAgreement float64
	Score         float64
	Same          bool
}

// Compare scores prev against next. A missing or empty blob on either side
// never counts as the same document.
func Compare(prev, next []byte) Result {
	minLen, maxLen := len(prev), len(next)
	if minLen > maxLen {
		minLen, maxLen = maxLen, minLen
	}
	if minLen == 0 {
		return Result{}
	}

	matches := 0
	for i := 0; i < minLen; i++ {
		if prev[i] == next[i] {
			matches++
		}
	}

	r := Result{
		ByteAgreement: float64(matches) / float64(minLen),
		SizeAgreement: float64(minLen) / float64(maxLen),
	}
	r.Score = r.ByteAgreement * r.SizeAgreement
	r.Same = r.Score > Threshold
	return r
}

// Score returns byteAgreement * sizeAgreement, or 0 when either blob is empty.
func Score(a, b []byte) float64 {
	return Compare(a, b).Score
}

// Same reports whether next is materially the same document as prev.
func Same(prev, next []byte) bool {
	return Compare(prev, next).Same
}
