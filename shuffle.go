// shuffle.go: Deterministic seeded shuffle and pool driven Fisher-Yates shuffles.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nebula

// SeededShuffle permutes items in place as a function of seed alone.
//
// It walks i from len-1 down to 1 and swaps items[i] with items[seed mod (i+1)],
// using the same seed at every step. The result is reproducible across runs
// and platforms; cipher tables depend on this exact order.
func SeededShuffle[T any](items []T, seed uint64) {
	for i := len(items) - 1; i > 0; i-- {
		j := seed % uint64(i+1)
		items[i], items[j] = items[j], items[i]
	}
}

// ShuffleWith permutes items in place with a Fisher-Yates shuffle whose swap
// indices are drawn from pool.
func ShuffleWith[T any](items []T, pool *EntropyPool) error {
	for i := len(items) - 1; i > 0; i-- {
		j, err := pool.BoundedNumber(0, uint64(i))
		if err != nil {
			return err
		}
		items[i], items[j] = items[j], items[i]
	}
	return nil
}

// Shuffle permutes items in place using a fresh secured pool over source.
func Shuffle[T any](items []T, source EntropySource) error {
	if len(items) < 2 {
		return nil
	}
	pool, err := NewSecuredPool(&PoolParams{Source: source})
	if err != nil {
		return err
	}
	return ShuffleWith(items, pool)
}
