// entropy.go: Collaborator interfaces for entropy samples, salts and hardware addresses.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nebula

import (
	"strconv"
	"time"

	"lukechampine.com/uint128"
)

// EntropySampleSize is the arity of an entropy sample tuple.
const EntropySampleSize = 10

// EntropySample is a fixed-arity tuple of wide integers sampled from volatile
// system state.
type EntropySample [EntropySampleSize]uint128.Uint128

// Bytes returns the sample as concatenated 16-byte big-endian words.
func (s EntropySample) Bytes() []byte {
	out := make([]byte, 16*len(s))
	for i, v := range s {
		v.PutBytesBE(out[16*i:])
	}
	return out
}

// EntropySource produces entropy samples. Implementations must report failure
// with an error wrapping ErrEntropySourceUnavailable and never fall back to
// zero samples.
type EntropySource interface {
	Sample() (EntropySample, error)
}

// StaticEntropySource always returns the same sample. It makes pools fully
// reproducible, which is what tests and known-answer checks need; it provides
// no entropy at all.
type StaticEntropySource struct {
	Value EntropySample
}

// Sample implements EntropySource.
func (s StaticEntropySource) Sample() (EntropySample, error) {
	return s.Value, nil
}

// NewStaticEntropySource builds a StaticEntropySource whose words are seed, seed+1, ...
func NewStaticEntropySource(seed uint64) StaticEntropySource {
	var s StaticEntropySource
	for i := range s.Value {
		s.Value[i] = uint128.From64(seed + uint64(i))
	}
	return s
}

// SaltProvider returns the KDF salt. The salt must be stable across calls
// within a process so that encryption and decryption derive the same material.
type SaltProvider interface {
	Salt() ([]byte, error)
}

// StaticSalt is a SaltProvider returning a fixed value.
type StaticSalt []byte

// Salt implements SaltProvider.
func (s StaticSalt) Salt() ([]byte, error) {
	out := make([]byte, len(s))
	copy(out, s)
	return out, nil
}

// MACProvider returns a link-layer address string, or an error wrapping
// ErrNoAddressFound.
type MACProvider interface {
	HardwareAddr() (string, error)
}

// SecuredSeed derives a 128-bit pool seed from an entropy sample and a
// timestamp: the sample words are stretched with the KDF using the decimal
// nanosecond timestamp as salt, and the first 16 bytes of the derived key are
// read big-endian.
func SecuredSeed(sample EntropySample, now time.Time) uint128.Uint128 {
	ctx := sample.Bytes()
	salt := []byte(strconv.FormatInt(now.UnixNano(), 10))

	key := deriveKey(BLAKE3(), ctx, salt, SecuredSeedIterations, KeyLength)
	seed := uint128.FromBytesBE(key[:16])

	Zeroize(key)
	Zeroize(ctx)
	return seed
}
