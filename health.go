// health.go: Statistical health checks on generator output.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nebula

import (
	"fmt"
	"math"
	"math/bits"
)

// DefaultSelfTestBytes is the sample size used by SelfTest when n is not positive.
const DefaultSelfTestBytes = 8192

// MonobitDeviation returns |ones - zeros| over the bits of seq and the pass
// limit floor(sqrt(total bits)).
func MonobitDeviation(seq []byte) (deviation, limit int) {
	ones := 0
	for _, b := range seq {
		ones += bits.OnesCount8(b)
	}
	total := 8 * len(seq)
	deviation = ones - (total - ones)
	if deviation < 0 {
		deviation = -deviation
	}
	return deviation, int(math.Sqrt(float64(total)))
}

// Monobit reports whether the counts of one and zero bits in seq differ by
// less than the square root of the bit count. Empty input fails.
func Monobit(seq []byte) bool {
	deviation, limit := MonobitDeviation(seq)
	return deviation < limit
}

// SelfTest draws n bytes and runs the monobit check on them. A non-positive n
// uses DefaultSelfTestBytes. The check is statistical: a healthy generator
// fails it for roughly a third of samples, so callers should retry before
// treating a single failure as fatal.
func (p *EntropyPool) SelfTest(n int) error {
	if n <= 0 {
		n = DefaultSelfTestBytes
	}

	sample := p.RandomBytes(n)
	defer Zeroize(sample)

	deviation, limit := MonobitDeviation(sample)
	if deviation >= limit {
		return newError(ErrHealthCheckFailed, ErrCodeHealthCheck,
			fmt.Sprintf("monobit deviation %d over %d bits exceeds %d", deviation, 8*n, limit))
	}

	p.logger.WithField("bytes", n).Debug("entropy pool self test passed")
	return nil
}
