// shuffle_test.go: Tests for seeded and pool driven shuffles.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nebula_test

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"

	"github.com/agilira/nebula"
)

type failingSource struct{}

func (failingSource) Sample() (nebula.EntropySample, error) {
	return nebula.EntropySample{}, errors.New("no counters")
}

func sequence(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func assertPermutation(t *testing.T, items []int) {
	t.Helper()
	sorted := append([]int(nil), items...)
	sort.Ints(sorted)
	assert.Equal(t, sequence(len(items)), sorted, "shuffle must only reorder elements")
}

// TestSeededShuffle_KnownOrder pins the swap rule j = seed mod (i+1).
func TestSeededShuffle_KnownOrder(t *testing.T) {
	items := []byte("abcde")
	nebula.SeededShuffle(items, 7)
	// i=4 j=2, i=3 j=3, i=2 j=1, i=1 j=1
	assert.Equal(t, "aebdc", string(items))
}

// TestSeededShuffle_Deterministic verifies equal seeds give equal orders.
func TestSeededShuffle_Deterministic(t *testing.T) {
	a := sequence(256)
	b := sequence(256)
	nebula.SeededShuffle(a, 7520649604647622479)
	nebula.SeededShuffle(b, 7520649604647622479)
	assert.Equal(t, a, b)
	assertPermutation(t, a)

	c := sequence(256)
	nebula.SeededShuffle(c, 120062)
	assert.NotEqual(t, a, c)
	assertPermutation(t, c)
}

// TestSeededShuffle_Degenerate covers empty and single element inputs.
func TestSeededShuffle_Degenerate(t *testing.T) {
	var empty []int
	nebula.SeededShuffle(empty, 1)
	assert.Empty(t, empty)

	one := []int{42}
	nebula.SeededShuffle(one, 99)
	assert.Equal(t, []int{42}, one)

	zero := sequence(10)
	nebula.SeededShuffle(zero, 0)
	assertPermutation(t, zero)
}

// TestShuffleWith verifies pool driven shuffles are reproducible and complete.
func TestShuffleWith(t *testing.T) {
	newPool := func() *nebula.EntropyPool {
		return nebula.NewEntropyPool(uint128.From64(12345), &nebula.PoolParams{Source: nebula.NewStaticEntropySource(1)})
	}

	a := sequence(100)
	b := sequence(100)
	require.NoError(t, nebula.ShuffleWith(a, newPool()))
	require.NoError(t, nebula.ShuffleWith(b, newPool()))
	assert.Equal(t, a, b)
	assertPermutation(t, a)
	assert.NotEqual(t, sequence(100), a)
}

// TestShuffle verifies the secured pool variant and its failure path.
func TestShuffle(t *testing.T) {
	items := sequence(64)
	require.NoError(t, nebula.Shuffle(items, nebula.NewStaticEntropySource(5)))
	assertPermutation(t, items)

	single := []int{1}
	assert.NoError(t, nebula.Shuffle(single, failingSource{}), "short inputs never touch the source")

	err := nebula.Shuffle(sequence(3), failingSource{})
	assert.True(t, errors.Is(err, nebula.ErrEntropySourceUnavailable))
}
