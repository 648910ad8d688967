// keyutils.go: Key utilities for import/export, zeroization, fingerprinting and key generation.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nebula

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"runtime"
	"sync"

	goerrors "github.com/agilira/go-errors"
	"github.com/zeebo/blake3"
)

const (
	// MinSeedLength is the minimum seed length accepted by KeyFromSeed.
	MinSeedLength = 10

	// SeedKeyIterations is the KDF iteration count used by KeyFromSeed.
	SeedKeyIterations = 300
)

// KeyToBase64 encodes a key as a base64 string.
//
// Example:
//
//	key := nebula.DeriveKeyDefault(password, salt, nebula.DefaultIterations)
//	fmt.Println("Base64 key:", nebula.KeyToBase64(key))
func KeyToBase64(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// KeyFromBase64 decodes a base64 string to a key.
func KeyFromBase64(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, goerrors.Wrap(err, "BASE64_DECODE_ERROR", "failed to decode base64 key")
	}
	return key, nil
}

// KeyToHex encodes a key as a lowercase hexadecimal string.
func KeyToHex(key []byte) string {
	return hex.EncodeToString(key)
}

// KeyFromHex decodes a hexadecimal string to a key. Upper and lower case are accepted.
func KeyFromHex(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, goerrors.Wrap(err, "HEX_DECODE_ERROR", "failed to decode hex key")
	}
	return key, nil
}

// Zeroize overwrites b with zeros in place.
//
// Example:
//
//	key := nebula.DeriveKeyDefault(password, salt, nebula.DefaultIterations)
//	defer nebula.Zeroize(key)
func Zeroize(b []byte) {
	clearBuffer(b)
}

// GetKeyFingerprint returns the first 8 bytes of the BLAKE3 hash of key as 16
// hex characters, or "" for an empty key. It identifies keys in logs without
// exposing them.
func GetKeyFingerprint(key []byte) string {
	if len(key) == 0 {
		return ""
	}
	hash := blake3.Sum256(key)
	return fmt.Sprintf("%016x", hash[:8])
}

// GenerateKey draws size bytes from pool.
//
// Example:
//
//	pool, err := nebula.NewSecuredPool(nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	key1, _ := nebula.GenerateKey(pool, 64)
func GenerateKey(pool *EntropyPool, size int) ([]byte, error) {
	if size <= 0 {
		return nil, goerrors.New(ErrCodeInvalidKeyLen, fmt.Sprintf("key size must be positive, got %d", size))
	}
	return pool.RandomBytes(size), nil
}

// KeyFromSeed stretches a human supplied seed into KeyLength bytes:
// KDF(seed, reverse(seed), SeedKeyIterations). Seeds shorter than
// MinSeedLength bytes are rejected with ErrSeedTooShort.
func KeyFromSeed(seed []byte) ([]byte, error) {
	if len(seed) < MinSeedLength {
		return nil, newError(ErrSeedTooShort, ErrCodeSeedTooShort,
			fmt.Sprintf("seed has %d bytes, at least %d required", len(seed), MinSeedLength))
	}

	salt := make([]byte, len(seed))
	for i, b := range seed {
		salt[len(seed)-1-i] = b
	}
	defer Zeroize(salt)

	return deriveKey(BLAKE3(), seed, salt, SeedKeyIterations, KeyLength), nil
}

// HostKey derives KeyLength bytes bound to the hardware address reported by
// mac. The address is the password; the iteration count is ten times the sum
// of its decimal digits, and at least one.
func HostKey(mac MACProvider, salt []byte) ([]byte, error) {
	addr, err := mac.HardwareAddr()
	if err != nil {
		return nil, err
	}

	iterations := 0
	for _, r := range addr {
		if r >= '0' && r <= '9' {
			iterations += int(r - '0')
		}
	}
	iterations *= 10
	if iterations < 1 {
		iterations = 1
	}

	return deriveKey(BLAKE3(), []byte(addr), salt, iterations, KeyLength), nil
}

// Secret holds key material that is only exposed on demand. The bytes are
// wiped by Destroy, or when the Secret becomes unreachable.
type Secret struct {
	mu        sync.RWMutex
	b         []byte
	destroyed bool
}

// NewSecret copies b into a new Secret. The caller may wipe b afterwards.
func NewSecret(b []byte) *Secret {
	buf := make([]byte, len(b))
	copy(buf, b)
	s := &Secret{b: buf}
	runtime.AddCleanup(s, func(buf []byte) { clearBuffer(buf) }, buf)
	return s
}

// Expose calls fn with the secret bytes. fn must not retain the slice.
// After Destroy, fn receives an empty slice.
func (s *Secret) Expose(fn func([]byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.destroyed {
		return fn(nil)
	}
	return fn(s.b)
}

// Len returns the secret length, or 0 once destroyed.
func (s *Secret) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.destroyed {
		return 0
	}
	return len(s.b)
}

// Destroy wipes the secret. It is idempotent.
func (s *Secret) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clearBuffer(s.b)
	s.destroyed = true
}

// String never reveals the secret.
func (s *Secret) String() string {
	return "nebula.Secret(redacted)"
}
