// entropypool.go: Mutex-guarded entropy pool generator with byte-count and wall-clock reseed gating.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nebula

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	goerrors "github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
	"github.com/sirupsen/logrus"
	"lukechampine.com/uint128"
)

// Default pool policy.
const (
	// MaxPoolSize is the upper bound on buffered pool bytes.
	MaxPoolSize = 1024

	// ReseedThreshold is the number of emitted bytes after which a reseed is attempted.
	ReseedThreshold = 512

	// MaxReseedInterval is the minimum wall-clock time between two seed updates.
	MaxReseedInterval = 60 * time.Second
)

// PoolParams configures an EntropyPool. Zero fields use the package defaults.
type PoolParams struct {
	// MaxPoolSize bounds the pool buffer. If zero, MaxPoolSize is used.
	// Values below the PRF output size are raised to it, since every mix
	// leaves one PRF block in the pool.
	MaxPoolSize int

	// ReseedThreshold is the byte count gate for reseeding. If zero, ReseedThreshold is used.
	ReseedThreshold int

	// MaxReseedInterval is the time gate for seed updates. If zero, MaxReseedInterval is used.
	MaxReseedInterval time.Duration

	// Source provides entropy samples. If nil, SystemEntropySource is used.
	Source EntropySource

	// Clock returns the current time. If nil, the go-timecache clock is used.
	Clock func() time.Time

	// PRF hashes samples and mixes the pool. If nil, BLAKE3 is used.
	PRF PRF

	// Logger receives reseed events. If nil, the logrus standard logger is used.
	Logger logrus.FieldLogger
}

// EntropyPool is a stateful generator over a bounded byte pool.
//
// Every output byte is derived from the whole pool and the seed, and the pool
// is re-hashed after each byte, so draws are strictly sequential. All state is
// guarded by one mutex; the entropy source is always queried outside it.
//
// The pool starts cold (empty). It is never reset; only Reseed changes the seed.
type EntropyPool struct {
	mu               sync.Mutex
	seed             uint128.Uint128
	pool             []byte
	spare            []byte
	lastReseed       uint128.Uint128 // unix nanoseconds
	bytesSinceReseed int

	maxPoolSize int
	threshold   int
	interval    time.Duration
	source      EntropySource
	clock       func() time.Time
	prf         PRF
	logger      logrus.FieldLogger
}

// NewEntropyPool creates a cold pool with the given seed. nil params use the defaults.
func NewEntropyPool(seed uint128.Uint128, params *PoolParams) *EntropyPool {
	p := &EntropyPool{
		seed:        seed,
		maxPoolSize: MaxPoolSize,
		threshold:   ReseedThreshold,
		interval:    MaxReseedInterval,
		source:      SystemEntropySource{},
		clock:       timecache.CachedTime,
		prf:         BLAKE3(),
		logger:      logrus.StandardLogger(),
	}

	if params != nil {
		if params.MaxPoolSize > 0 {
			p.maxPoolSize = params.MaxPoolSize
		}
		if params.ReseedThreshold > 0 {
			p.threshold = params.ReseedThreshold
		}
		if params.MaxReseedInterval > 0 {
			p.interval = params.MaxReseedInterval
		}
		if params.Source != nil {
			p.source = params.Source
		}
		if params.Clock != nil {
			p.clock = params.Clock
		}
		if params.PRF != nil {
			p.prf = params.PRF
		}
		if params.Logger != nil {
			p.logger = params.Logger
		}
	}

	if p.maxPoolSize < p.prf.Size() {
		p.maxPoolSize = p.prf.Size()
	}

	p.pool = make([]byte, 0, p.maxPoolSize+EntropySampleSize*p.prf.Size())
	p.spare = make([]byte, 0, p.prf.Size())
	return p
}

// NewSecuredPool creates a pool seeded with SecuredSeed over one sample of
// the configured source.
func NewSecuredPool(params *PoolParams) (*EntropyPool, error) {
	p := NewEntropyPool(uint128.Zero, params)

	sample, err := p.readSource()
	if err != nil {
		return nil, err
	}
	p.seed = SecuredSeed(sample, p.clock())
	return p, nil
}

// newMixerPool returns a pool that never reseeds. It shuffles sample tuples
// inside AddEntropy, where a reseed would recurse into the source.
func newMixerPool(seed uint128.Uint128, prf PRF) *EntropyPool {
	return NewEntropyPool(seed, &PoolParams{
		ReseedThreshold: math.MaxInt,
		Source:          StaticEntropySource{},
		PRF:             prf,
		Logger:          logrus.StandardLogger(),
	})
}

// Size returns the current number of buffered pool bytes.
func (p *EntropyPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pool)
}

// AddEntropy samples the entropy source, shuffles the sample words, hashes
// each word to a PRF block and appends the blocks to the pool, evicting the
// oldest bytes so the pool never exceeds its maximum size.
func (p *EntropyPool) AddEntropy() error {
	sample, err := p.readSource()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.appendSampleLocked(sample)
	return nil
}

// readSource queries the source and shuffles the word order with a fresh
// pool seeded from the same sample. Must be called without p.mu held.
func (p *EntropyPool) readSource() (EntropySample, error) {
	sample, err := p.source.Sample()
	if err != nil {
		if errors.Is(err, ErrEntropySourceUnavailable) {
			return EntropySample{}, err
		}
		return EntropySample{}, wrapError(ErrEntropySourceUnavailable, err, ErrCodeEntropy, "entropy source failed")
	}

	mixer := newMixerPool(SecuredSeed(sample, p.clock()), p.prf)
	if err := ShuffleWith(sample[:], mixer); err != nil {
		return EntropySample{}, err
	}
	return sample, nil
}

func (p *EntropyPool) appendSampleLocked(sample EntropySample) {
	var word [16]byte
	for _, v := range sample {
		v.PutBytesBE(word[:])
		p.pool = p.prf.Sum(p.pool, word[:])
	}
	clearBuffer(word[:])

	if over := len(p.pool) - p.maxPoolSize; over > 0 {
		copy(p.pool, p.pool[over:])
		clearBuffer(p.pool[p.maxPoolSize:])
		p.pool = p.pool[:p.maxPoolSize]
	}
}

// combineEntropyLocked folds every pool byte into the seed (acc*33 + b,
// wrapping at 128 bits) and XORs in the last reseed time. It does not mutate.
func (p *EntropyPool) combineEntropyLocked() uint128.Uint128 {
	acc := p.seed
	for _, b := range p.pool {
		acc = acc.MulWrap64(33).AddWrap64(uint64(b))
	}
	return acc.Xor(p.lastReseed)
}

// mixEntropyLocked replaces the pool with PRF(pool || be128(value)).
func (p *EntropyPool) mixEntropyLocked(value uint128.Uint128) {
	var word [16]byte
	value.PutBytesBE(word[:])

	next := p.prf.Sum(p.spare[:0], p.pool, word[:])
	clearBuffer(p.pool[:cap(p.pool)])
	p.spare = p.pool[:0]
	p.pool = next
}

// RandomBytes returns n bytes. Each byte is the low byte of the combined
// entropy, which is then mixed back into the pool. After the batch the pool
// attempts a reseed with the last emitted byte; a source failure at that
// point is logged and does not affect the returned bytes.
func (p *EntropyPool) RandomBytes(n int) []byte {
	if n <= 0 {
		return []byte{}
	}

	out := make([]byte, n)

	p.mu.Lock()
	for i := range out {
		e := p.combineEntropyLocked()
		p.mixEntropyLocked(e)
		out[i] = byte(e.Lo)
	}
	if p.bytesSinceReseed <= math.MaxInt-n {
		p.bytesSinceReseed += n
	}
	p.mu.Unlock()

	if err := p.Reseed(uint128.From64(uint64(out[n-1]))); err != nil {
		p.logger.WithError(err).Warn("entropy pool reseed could not sample the entropy source")
	}

	return out
}

// Read implements io.Reader. It never fails.
func (p *EntropyPool) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	out := p.RandomBytes(len(b))
	copy(b, out)
	Zeroize(out)
	return len(b), nil
}

// RandomNumber returns 8 random bytes read as a big-endian integer.
func (p *EntropyPool) RandomNumber() uint64 {
	return binary.BigEndian.Uint64(p.RandomBytes(8))
}

// BoundedNumber returns min + RandomNumber() mod (max-min+1).
//
// The reduction is a plain modulo and therefore biased for spans that do not
// divide 2^64. The full 64-bit span returns RandomNumber() unchanged.
func (p *EntropyPool) BoundedNumber(min, max uint64) (uint64, error) {
	if min > max {
		richErr := goerrors.New(ErrCodeInvalidRange, fmt.Sprintf("min %d is greater than max %d", min, max))
		return 0, fmt.Errorf("%w: %w", ErrInvalidRange, richErr)
	}

	r := p.RandomNumber()
	span := max - min + 1
	if span == 0 {
		return r, nil
	}
	return min + r%span, nil
}

// Reseed refreshes the pool once at least ReseedThreshold bytes were emitted
// since the previous reseed; before that it is a no-op.
//
// A due reseed resets the byte counter, appends a fresh entropy sample,
// mixes the combined entropy into the pool and, only when more than
// MaxReseedInterval elapsed since the last seed update, XORs newSeed into the
// seed. Source errors are returned after the pool has been mixed.
func (p *EntropyPool) Reseed(newSeed uint128.Uint128) error {
	p.mu.Lock()
	due := p.bytesSinceReseed >= p.threshold
	p.mu.Unlock()
	if !due {
		return nil
	}

	sample, sampleErr := p.readSource()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Another draw may have completed the reseed while the source was queried.
	if p.bytesSinceReseed < p.threshold {
		return nil
	}
	p.bytesSinceReseed = 0

	if sampleErr == nil {
		p.appendSampleLocked(sample)
	}
	p.mixEntropyLocked(p.combineEntropyLocked())

	now := uint128.From64(uint64(p.clock().UnixNano())) // #nosec G115 -- pre-1970 clocks only disable the time gate
	if now.Cmp(p.lastReseed) > 0 && now.Sub(p.lastReseed).Cmp64(uint64(p.interval)) > 0 {
		p.lastReseed = now
		p.seed = p.seed.Xor(newSeed)
		p.logger.WithFields(logrus.Fields{
			"pool_size": len(p.pool),
			"prf":       p.prf.Name(),
		}).Debug("entropy pool seed updated")
	}

	return sampleErr
}
