// Package random provides cryptographically secure shuffling and sampling
// for winner selection. Draw outcomes must be unpredictable even to someone
// who can observe previous draws, so math/rand is not used anywhere here.
package random

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Shuffle performs a cryptographically secure Fisher-Yates shuffle of the
// slice in place.
func Shuffle[T any](slice []T) error {
	n := len(slice)
	for i := n - 1; i > 0; i-- {
		jBig, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return fmt.Errorf("failed to generate random number: %w", err)
		}
		j := int(jBig.Int64())
		slice[i], slice[j] = slice[j], slice[i]
	}
	return nil
}

// Sample returns n distinct elements drawn uniformly from slice, in random
// order. When n exceeds the slice length the whole slice is returned
// (shuffled). The input is not modified.
func Sample[T any](slice []T, n int) ([]T, error) {
	cp := make([]T, len(slice))
	copy(cp, slice)
	if err := Shuffle(cp); err != nil {
		return nil, err
	}
	if n > len(cp) {
		n = len(cp)
	}
	if n < 0 {
		n = 0
	}
	return cp[:n], nil
}
