// parallel.go: Chunked parallel maps for the data-parallel cipher stages.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nebula

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// minParallelChunk is the smallest number of positions handed to one goroutine
// by the byte-wise stages. Smaller inputs are processed inline.
const minParallelChunk = 4096

// parallelFor calls fn on disjoint [lo, hi) ranges covering [0, n), each at
// least minChunk long except the last, with at most GOMAXPROCS ranges in
// flight. The first error returned by fn is returned.
func parallelFor(n, minChunk int, fn func(lo, hi int) error) error {
	if n <= 0 {
		return nil
	}
	if minChunk < 1 {
		minChunk = 1
	}

	workers := runtime.GOMAXPROCS(0)
	if n <= minChunk || workers == 1 {
		return fn(0, n)
	}

	chunk := (n + workers - 1) / workers
	if chunk < minChunk {
		chunk = minChunk
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		g.Go(func() error {
			return fn(lo, hi)
		})
	}
	return g.Wait()
}
