// table.go: Keyed 3-D substitution table built from a seeded alphabet permutation, with a bounded cache.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nebula

import (
	"fmt"
	"sync"

	goerrors "github.com/agilira/go-errors"
	"github.com/zeebo/blake3"
)

// tableCacheSize bounds the number of cached tables. A full 256 symbol table
// holds 16 MiB of cells.
const tableCacheSize = 4

// LookupTable is an n*n*n substitution table over a permuted alphabet.
//
// Cell (a, b, c) holds perm[(a+b+c) mod n], so every (a, b) row is a cyclic
// rotation of the permutation and therefore a bijection over the alphabet.
// Tables are immutable after construction and safe for concurrent reads.
type LookupTable struct {
	n     int
	perm  []byte
	posOf [256]int // index of a symbol in perm, -1 when absent
	cells []byte
}

// NewLookupTable shuffles alphabet with SeededShuffle(seed) and expands the
// permutation into the full table. The alphabet must be non-empty and free of
// duplicates.
func NewLookupTable(alphabet []byte, seed uint64) (*LookupTable, error) {
	if err := validateAlphabet(alphabet); err != nil {
		return nil, err
	}

	n := len(alphabet)
	t := &LookupTable{
		n:     n,
		perm:  make([]byte, n),
		cells: make([]byte, n*n*n),
	}
	copy(t.perm, alphabet)
	SeededShuffle(t.perm, seed)

	for i := range t.posOf {
		t.posOf[i] = -1
	}
	for i, s := range t.perm {
		t.posOf[s] = i
	}

	// One plane per a; planes are independent.
	_ = parallelFor(n, 1, func(lo, hi int) error {
		for a := lo; a < hi; a++ {
			plane := t.cells[a*n*n : (a+1)*n*n]
			for b := 0; b < n; b++ {
				row := plane[b*n : (b+1)*n]
				start := (a + b) % n
				copy(row, t.perm[start:])
				copy(row[n-start:], t.perm[:start])
			}
		}
		return nil
	})

	return t, nil
}

func validateAlphabet(alphabet []byte) error {
	if len(alphabet) == 0 {
		return newError(ErrInvalidAlphabet, ErrCodeInvalidAlphabet, "alphabet must not be empty")
	}
	if len(alphabet) > 256 {
		return newError(ErrInvalidAlphabet, ErrCodeInvalidAlphabet, fmt.Sprintf("alphabet has %d symbols, at most 256 are possible", len(alphabet)))
	}
	var seen [256]bool
	for _, s := range alphabet {
		if seen[s] {
			return newError(ErrInvalidAlphabet, ErrCodeInvalidAlphabet, fmt.Sprintf("duplicate symbol 0x%02x in alphabet", s))
		}
		seen[s] = true
	}
	return nil
}

// Size returns the alphabet size n.
func (t *LookupTable) Size() int { return t.n }

// Permutation returns a copy of the shuffled alphabet.
func (t *LookupTable) Permutation() []byte {
	out := make([]byte, t.n)
	copy(out, t.perm)
	return out
}

// Index returns the position of symbol in the permutation.
func (t *LookupTable) Index(symbol byte) (int, bool) {
	i := t.posOf[symbol]
	return i, i >= 0
}

// At returns cell (a, b, c), or ErrInvalidTableIndex when a coordinate is out of range.
func (t *LookupTable) At(a, b, c int) (byte, error) {
	if !t.inRange(a) || !t.inRange(b) || !t.inRange(c) {
		return 0, t.indexError(a, b, c)
	}
	return t.cells[(a*t.n+b)*t.n+c], nil
}

// Row returns the n cells at (a, b). The slice aliases the table and must not be modified.
func (t *LookupTable) Row(a, b int) ([]byte, error) {
	if !t.inRange(a) || !t.inRange(b) {
		return nil, t.indexError(a, b, 0)
	}
	off := (a*t.n + b) * t.n
	return t.cells[off : off+t.n : off+t.n], nil
}

func (t *LookupTable) inRange(i int) bool { return i >= 0 && i < t.n }

func (t *LookupTable) indexError(a, b, c int) error {
	richErr := goerrors.New(ErrCodeInvalidIndex, fmt.Sprintf("table index (%d, %d, %d) out of range for size %d", a, b, c, t.n))
	return fmt.Errorf("%w: %w", ErrInvalidTableIndex, richErr)
}

type tableKey struct {
	alphabet [32]byte
	seed     uint64
}

// tableCache holds recently built tables. Lookups take the read lock first and
// only build under the write lock on a miss.
type tableCache struct {
	mu     sync.RWMutex
	tables map[tableKey]*LookupTable
	order  []tableKey
	limit  int
}

func newTableCache(limit int) *tableCache {
	return &tableCache{
		tables: make(map[tableKey]*LookupTable, limit),
		limit:  limit,
	}
}

// get returns the cached table for (alphabet, seed), building it on a miss.
// The boolean reports whether the table was built by this call.
func (c *tableCache) get(alphabet []byte, seed uint64) (*LookupTable, bool, error) {
	key := tableKey{alphabet: blake3.Sum256(alphabet), seed: seed}

	c.mu.RLock()
	t, ok := c.tables[key]
	c.mu.RUnlock()
	if ok {
		return t, false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double check: another goroutine may have built it.
	if t, ok := c.tables[key]; ok {
		return t, false, nil
	}

	t, err := NewLookupTable(alphabet, seed)
	if err != nil {
		return nil, false, err
	}

	if len(c.order) >= c.limit {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.tables, oldest)
	}
	c.tables[key] = t
	c.order = append(c.order, key)

	return t, true, nil
}

// len returns the number of cached tables.
func (c *tableCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tables)
}
