// kdf.go: HMAC-based password stretching (PBKDF2 style XOR folding) over the nebula PRFs.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nebula

import (
	"encoding/binary"
	"fmt"

	goerrors "github.com/agilira/go-errors"
)

const (
	// KeyLength is the default derived key length in bytes.
	KeyLength = 512

	// MaxKDFBlocks caps the number of PRF blocks per derivation, as in PBKDF2.
	// Output beyond MaxKDFBlocks*PRF size is zero filled.
	MaxKDFBlocks = 255

	// DefaultIterations is the iteration count used for the cipher keystream.
	DefaultIterations = 1000

	// KeyScheduleIterations is the iteration count for the rotation key.
	KeyScheduleIterations = 10

	// SecuredSeedIterations is the iteration count for secured pool seeds.
	SecuredSeedIterations = 15
)

// KDFParams defines parameters for key derivation.
//
// If a field is zero, the library default is used.
//
// Example:
//
//	params := &nebula.KDFParams{
//		PRF:        nebula.SHAKE256(),
//		Iterations: 5000,
//		KeyLen:     64,
//	}
//	key, err := nebula.DeriveKeyWithParams(password, salt, params)
type KDFParams struct {
	// PRF is the hash behind HMAC. If nil, BLAKE3 is used.
	PRF PRF `json:"-"`

	// Iterations is the number of chained HMAC applications per block.
	// If zero, DefaultIterations is used.
	Iterations int `json:"iterations,omitempty"`

	// KeyLen is the output length in bytes. If zero, KeyLength is used.
	KeyLen int `json:"key_len,omitempty"`
}

// DefaultKDFParams returns the parameters used for the cipher keystream.
func DefaultKDFParams() *KDFParams {
	return &KDFParams{PRF: BLAKE3(), Iterations: DefaultIterations, KeyLen: KeyLength}
}

// KeyScheduleKDFParams returns the parameters used for the rotation key.
func KeyScheduleKDFParams() *KDFParams {
	return &KDFParams{PRF: BLAKE3(), Iterations: KeyScheduleIterations, KeyLen: KeyLength}
}

// SecuredSeedKDFParams returns the parameters used to derive secured pool seeds.
func SecuredSeedKDFParams() *KDFParams {
	return &KDFParams{PRF: BLAKE3(), Iterations: SecuredSeedIterations, KeyLen: KeyLength}
}

// DeriveKey stretches password and salt into keyLen bytes with HMAC-BLAKE3.
//
// For every block index b in 1..min(ceil(keyLen/64), 255) the block input is
// salt || uint64_be(b). U1 = HMAC(password, input) and Ui = HMAC(password,
// U(i-1)); every Ui is XOR folded into the block accumulator. Blocks are
// concatenated, then truncated or zero padded to exactly keyLen bytes.
//
// Iteration counts of 0 and 1 are accepted and yield a single HMAC per block.
//
// Example:
//
//	key, err := nebula.DeriveKey([]byte("password"), []byte("salt"), 1000, 64)
//	if err != nil {
//		log.Fatal(err)
//	}
func DeriveKey(password, salt []byte, iterations, keyLen int) ([]byte, error) {
	if keyLen <= 0 {
		richErr := goerrors.New(ErrCodeInvalidKeyLen, fmt.Sprintf("key length must be positive, got %d", keyLen))
		return nil, fmt.Errorf("invalid key length: %w", richErr)
	}
	return deriveKey(BLAKE3(), password, salt, iterations, keyLen), nil
}

// DeriveKeyDefault derives exactly KeyLength bytes with HMAC-BLAKE3. It never fails.
func DeriveKeyDefault(password, salt []byte, iterations int) []byte {
	return deriveKey(BLAKE3(), password, salt, iterations, KeyLength)
}

// DeriveKeyWithParams derives a key with custom parameters. nil params use
// DefaultKDFParams.
func DeriveKeyWithParams(password, salt []byte, params *KDFParams) ([]byte, error) {
	prf := BLAKE3()
	iterations := DefaultIterations
	keyLen := KeyLength

	if params != nil {
		if params.PRF != nil {
			prf = params.PRF
		}
		if params.Iterations > 0 {
			iterations = params.Iterations
		}
		if params.KeyLen < 0 {
			richErr := goerrors.New(ErrCodeInvalidKeyLen, fmt.Sprintf("key length must be positive, got %d", params.KeyLen))
			return nil, fmt.Errorf("invalid key length: %w", richErr)
		}
		if params.KeyLen > 0 {
			keyLen = params.KeyLen
		}
	}

	return deriveKey(prf, password, salt, iterations, keyLen), nil
}

// deriveKey is the unchecked derivation shared by the public entry points.
// keyLen must be positive.
func deriveKey(prf PRF, password, salt []byte, iterations, keyLen int) []byte {
	size := prf.Size()
	blockCount := (keyLen + size - 1) / size
	if blockCount > MaxKDFBlocks {
		blockCount = MaxKDFBlocks
	}
	take := size
	if keyLen < take {
		take = keyLen
	}

	out := make([]byte, keyLen)
	// Bytes past the last block stay zero; blocks are independent, so they are
	// derived in parallel straight into out.
	_ = parallelFor(blockCount, 1, func(lo, hi int) error {
		for b := lo; b < hi; b++ {
			start := b * take
			end := start + take
			if end > keyLen {
				end = keyLen
			}
			block := deriveBlock(prf, password, salt, uint64(b+1), iterations)
			copy(out[start:end], block)
			Zeroize(block)
		}
		return nil
	})

	return out
}

// deriveBlock computes one XOR-folded block for the given 1-based index.
func deriveBlock(prf PRF, password, salt []byte, index uint64, iterations int) []byte {
	input := getDynamicScratch()
	input = append(input, salt...)
	input = binary.BigEndian.AppendUint64(input, index)

	u := appendHMAC(nil, prf, password, input)
	putDynamicScratch(input)

	acc := make([]byte, len(u))
	copy(acc, u)

	next := getScratch(prf.Size())
	defer putScratch(next)
	for i := 2; i <= iterations; i++ {
		x := appendHMAC((*next)[:0], prf, password, u)
		for j := range acc {
			acc[j] ^= x[j]
		}
		copy(u, x)
	}
	Zeroize(u)

	return acc
}
