// keywrap.go: Sealing a secret under a transport key, with a digest to detect wrong keys.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nebula

import (
	"crypto/subtle"
	"encoding/json"

	goerrors "github.com/agilira/go-errors"
)

// KeyWrapIterations is the KDF iteration count used by WrapKey and UnwrapKey.
const KeyWrapIterations = 5

// WrappedKey is a sealed secret together with the PRF digest of the plain
// secret. It marshals to JSON with base64 fields.
type WrappedKey struct {
	Sealed []byte `json:"sealed"`
	Digest []byte `json:"digest"`
}

// WrapKey seals secret under key:
//
//	v1     = KDF(key, salt, KeyWrapIterations)
//	sealed = RotateLeft(secret XOR v1, KDF(v1, salt, KeyWrapIterations))
//	digest = BLAKE3(secret)
//
// Secrets longer than KeyLength reuse the mask cyclically.
func WrapKey(key, secret, salt []byte) (*WrappedKey, error) {
	if len(key) == 0 {
		return nil, newError(ErrKeyTooShort, ErrCodeKeyTooShort, "wrapping key must not be empty")
	}

	mask, rot := wrapMaterial(key, salt)
	defer Zeroize(mask)
	defer Zeroize(rot)

	sealed := make([]byte, len(secret))
	copy(sealed, secret)
	XORKeystream(sealed, mask)
	RotateLeft(sealed, rot)

	return &WrappedKey{
		Sealed: sealed,
		Digest: BLAKE3().Sum(nil, secret),
	}, nil
}

// UnwrapKey reverses WrapKey and verifies the digest in constant time.
// A wrong key or salt yields ErrKeyDigestMismatch.
func UnwrapKey(key []byte, wrapped *WrappedKey, salt []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, newError(ErrKeyTooShort, ErrCodeKeyTooShort, "wrapping key must not be empty")
	}
	if wrapped == nil {
		return nil, newError(ErrKeyDigestMismatch, ErrCodeKeyDigest, "no wrapped key")
	}

	mask, rot := wrapMaterial(key, salt)
	defer Zeroize(mask)
	defer Zeroize(rot)

	secret := make([]byte, len(wrapped.Sealed))
	copy(secret, wrapped.Sealed)
	RotateRight(secret, rot)
	XORKeystream(secret, mask)

	digest := BLAKE3().Sum(nil, secret)
	if subtle.ConstantTimeCompare(digest, wrapped.Digest) != 1 {
		Zeroize(secret)
		return nil, newError(ErrKeyDigestMismatch, ErrCodeKeyDigest, "unwrapped key does not match its digest")
	}
	return secret, nil
}

func wrapMaterial(key, salt []byte) (mask, rot []byte) {
	mask = deriveKey(BLAKE3(), key, salt, KeyWrapIterations, KeyLength)
	rot = deriveKey(BLAKE3(), mask, salt, KeyWrapIterations, KeyLength)
	return mask, rot
}

// MarshalWrappedKey encodes w as JSON.
func MarshalWrappedKey(w *WrappedKey) ([]byte, error) {
	return json.Marshal(w)
}

// UnmarshalWrappedKey decodes a WrappedKey from JSON.
func UnmarshalWrappedKey(data []byte) (*WrappedKey, error) {
	var w WrappedKey
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, goerrors.Wrap(err, "WRAPPED_KEY_DECODE_ERROR", "failed to decode wrapped key")
	}
	return &w, nil
}
