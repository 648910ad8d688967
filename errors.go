// errors.go: Sentinel errors and error codes for the nebula cipher stack.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nebula

import (
	"errors"
	"fmt"

	goerrors "github.com/agilira/go-errors"
)

// Public standard errors for use with errors.Is().
//
// Errors in the cipher, pool and key paths wrap one of these sentinels together
// with a rich go-errors value carrying one of the ErrCode constants below.
// Format and parameter errors carry only the go-errors code.
var (
	// ErrInvalidRange is returned when a bounded draw is requested with min > max.
	ErrInvalidRange = errors.New("nebula: invalid range")

	// ErrSeedTooShort is returned when a seed is shorter than MinSeedLength.
	ErrSeedTooShort = errors.New("nebula: seed too short")

	// ErrKeyTooShort is returned when a cipher key is shorter than the configured minimum.
	ErrKeyTooShort = errors.New("nebula: key too short")

	// ErrCharacterNotInAlphabet is returned when a plaintext byte is outside the working alphabet.
	ErrCharacterNotInAlphabet = errors.New("nebula: character not in alphabet")

	// ErrByteNotInTable is returned when a ciphertext byte is absent from its table row.
	// This usually means wrong keys, wrong password, a different salt or corrupted input.
	ErrByteNotInTable = errors.New("nebula: byte not in table")

	// ErrInvalidTableIndex is returned when a table coordinate is out of bounds.
	ErrInvalidTableIndex = errors.New("nebula: invalid table index")

	// ErrEntropySourceUnavailable is returned when the entropy source cannot produce samples.
	ErrEntropySourceUnavailable = errors.New("nebula: entropy source unavailable")

	// ErrNoAddressFound is returned when no hardware address could be found.
	ErrNoAddressFound = errors.New("nebula: no hardware address found")

	// ErrMarkerInAlphabet is returned when the padding marker is part of the data alphabet.
	ErrMarkerInAlphabet = errors.New("nebula: padding marker collides with alphabet")

	// ErrInvalidAlphabet is returned for empty alphabets or alphabets with duplicate bytes.
	ErrInvalidAlphabet = errors.New("nebula: invalid alphabet")

	// ErrKeyDigestMismatch is returned when an unwrapped key does not match its digest.
	ErrKeyDigestMismatch = errors.New("nebula: key digest mismatch")

	// ErrHealthCheckFailed is returned when generator output fails a statistical self test.
	ErrHealthCheckFailed = errors.New("nebula: health check failed")
)

// Error codes for rich error handling
const (
	ErrCodeInvalidRange      goerrors.ErrorCode = "NEBULA_INVALID_RANGE"
	ErrCodeSeedTooShort      goerrors.ErrorCode = "NEBULA_SEED_TOO_SHORT"
	ErrCodeKeyTooShort       goerrors.ErrorCode = "NEBULA_KEY_TOO_SHORT"
	ErrCodeCharNotInAlphabet goerrors.ErrorCode = "NEBULA_CHAR_NOT_IN_ALPHABET"
	ErrCodeByteNotInTable    goerrors.ErrorCode = "NEBULA_BYTE_NOT_IN_TABLE"
	ErrCodeInvalidIndex      goerrors.ErrorCode = "NEBULA_INVALID_TABLE_INDEX"
	ErrCodeEntropy           goerrors.ErrorCode = "NEBULA_ENTROPY_UNAVAILABLE"
	ErrCodeNoAddress         goerrors.ErrorCode = "NEBULA_NO_ADDRESS"
	ErrCodeMarkerInAlphabet  goerrors.ErrorCode = "NEBULA_MARKER_IN_ALPHABET"
	ErrCodeInvalidAlphabet   goerrors.ErrorCode = "NEBULA_INVALID_ALPHABET"
	ErrCodeKeyDigest         goerrors.ErrorCode = "NEBULA_KEY_DIGEST_MISMATCH"
	ErrCodeHealthCheck       goerrors.ErrorCode = "NEBULA_HEALTH_CHECK"
	ErrCodeInvalidKeyLen     goerrors.ErrorCode = "NEBULA_INVALID_KEYLEN"
	ErrCodeSaltUnavailable   goerrors.ErrorCode = "NEBULA_SALT_UNAVAILABLE"
	ErrCodeInvalidSchedule   goerrors.ErrorCode = "NEBULA_INVALID_SCHEDULE"
	ErrCodeInvalidChunkSize  goerrors.ErrorCode = "NEBULA_INVALID_CHUNK_SIZE"
	ErrCodeStreamFormat      goerrors.ErrorCode = "NEBULA_STREAM_FORMAT"
)

// newError pairs a sentinel with a coded go-errors value so callers can use
// errors.Is on the sentinel and still read the code from the rich error.
func newError(sentinel error, code goerrors.ErrorCode, msg string) error {
	return fmt.Errorf("%w: %w", sentinel, goerrors.New(code, msg))
}

// wrapError is newError for failures with an underlying cause.
func wrapError(sentinel error, cause error, code goerrors.ErrorCode, msg string) error {
	return fmt.Errorf("%w: %w", sentinel, goerrors.Wrap(cause, code, msg))
}
