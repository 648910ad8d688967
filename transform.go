// transform.go: Byte-wise cipher stages: keystream XOR, keyed bit rotation and marker padding.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nebula

import (
	"bytes"
	"math/bits"
)

// XORKeystream XORs data in place with key repeated cyclically. Applying it
// twice with the same key restores data. An empty key leaves data unchanged.
func XORKeystream(data, key []byte) {
	if len(key) == 0 {
		return
	}
	_ = parallelFor(len(data), minParallelChunk, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			data[i] ^= key[i%len(key)]
		}
		return nil
	})
}

// RotateLeft rotates byte i of data left by key[i mod len(key)] mod 8 bits, in place.
func RotateLeft(data, key []byte) {
	rotate(data, key, 1)
}

// RotateRight is the inverse of RotateLeft.
func RotateRight(data, key []byte) {
	rotate(data, key, -1)
}

func rotate(data, key []byte, dir int) {
	if len(key) == 0 {
		return
	}
	_ = parallelFor(len(data), minParallelChunk, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			data[i] = bits.RotateLeft8(data[i], dir*int(key[i%len(key)]%8))
		}
		return nil
	})
}

// insertPadding returns data with count marker bytes inserted, where count is
// drawn from [len/2, len] and every marker lands at a pool chosen gap in
// [0, len]. Several markers may share a gap.
func insertPadding(data []byte, marker byte, pool *EntropyPool) ([]byte, error) {
	n := uint64(len(data))
	count, err := pool.BoundedNumber(n/2, n)
	if err != nil {
		return nil, err
	}

	gaps := make([]int, n+1)
	for i := uint64(0); i < count; i++ {
		pos, err := pool.BoundedNumber(0, n)
		if err != nil {
			return nil, err
		}
		gaps[pos]++
	}

	out := make([]byte, 0, n+count)
	for i, b := range data {
		for j := 0; j < gaps[i]; j++ {
			out = append(out, marker)
		}
		out = append(out, b)
	}
	for j := 0; j < gaps[n]; j++ {
		out = append(out, marker)
	}
	return out, nil
}

// stripPadding removes every marker byte from data.
func stripPadding(data []byte, marker byte) []byte {
	if bytes.IndexByte(data, marker) < 0 {
		return data
	}
	out := data[:0]
	for _, b := range data {
		if b != marker {
			out = append(out, b)
		}
	}
	return out
}
