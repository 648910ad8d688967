// prf.go: Pseudorandom functions over extendable and fixed output hashes, and the HMAC construction built on them.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nebula

import (
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// PRFSize is the output size in bytes shared by every built-in PRF.
const PRFSize = 64

// PRF is a keyless pseudorandom function over a cryptographic hash.
//
// Sum appends exactly Size() bytes of hash output, computed over the
// concatenation of data, to dst and returns the extended slice. BlockSize is
// the internal block size used by HMAC for key padding.
//
// Implementations must be safe for concurrent use.
type PRF interface {
	Name() string
	Size() int
	BlockSize() int
	Sum(dst []byte, data ...[]byte) []byte
}

// BLAKE3 returns the default PRF: BLAKE3 in extendable output mode truncated
// to 64 bytes, with a 128 byte HMAC block.
func BLAKE3() PRF { return blake3PRF{} }

// SHAKE256 returns a PRF over SHAKE-256 with 64 bytes of output and the
// sponge rate (136 bytes) as HMAC block size.
func SHAKE256() PRF { return shakePRF{} }

// BLAKE2b returns a PRF over BLAKE2b-512 with a 128 byte HMAC block.
func BLAKE2b() PRF { return blake2bPRF{} }

type blake3PRF struct{}

func (blake3PRF) Name() string   { return "blake3-xof-512" }
func (blake3PRF) Size() int      { return PRFSize }
func (blake3PRF) BlockSize() int { return 128 }

func (blake3PRF) Sum(dst []byte, data ...[]byte) []byte {
	h := blake3.New()
	for _, d := range data {
		_, _ = h.Write(d) // never fails
	}
	return readXOF(dst, h.Digest().Read)
}

type shakePRF struct{}

func (shakePRF) Name() string   { return "shake256-512" }
func (shakePRF) Size() int      { return PRFSize }
func (shakePRF) BlockSize() int { return 136 }

func (shakePRF) Sum(dst []byte, data ...[]byte) []byte {
	h := sha3.NewShake256()
	for _, d := range data {
		_, _ = h.Write(d)
	}
	return readXOF(dst, h.Read)
}

type blake2bPRF struct{}

func (blake2bPRF) Name() string   { return "blake2b-512" }
func (blake2bPRF) Size() int      { return blake2b.Size }
func (blake2bPRF) BlockSize() int { return blake2b.BlockSize }

func (blake2bPRF) Sum(dst []byte, data ...[]byte) []byte {
	h, _ := blake2b.New512(nil) // only fails for keys longer than 64 bytes
	for _, d := range data {
		_, _ = h.Write(d)
	}
	return h.Sum(dst)
}

// readXOF appends PRFSize bytes read from an extendable output function.
func readXOF(dst []byte, read func([]byte) (int, error)) []byte {
	n := len(dst)
	if cap(dst)-n < PRFSize {
		grown := make([]byte, n, n+PRFSize)
		copy(grown, dst)
		dst = grown
	}
	dst = dst[:n+PRFSize]
	_, _ = read(dst[n:]) // XOF readers never fail before 2^64 bytes
	return dst
}

// HMAC computes the hash-based message authentication code of message under
// key with the given PRF.
//
// Keys longer than the PRF block size are first hashed to Size() bytes. The
// key is then zero padded to the block size, and the result is
// H((key ^ 0x5c..) || H((key ^ 0x36..) || message)). The output is always
// exactly prf.Size() bytes, for every key and message length including empty
// messages.
func HMAC(prf PRF, key, message []byte) []byte {
	return appendHMAC(nil, prf, key, message)
}

// Sum512HMAC is HMAC with the default BLAKE3 PRF.
func Sum512HMAC(key, message []byte) []byte {
	return HMAC(BLAKE3(), key, message)
}

// appendHMAC appends the HMAC to dst. Pad blocks come from the scratch pool
// and are wiped before they are returned.
func appendHMAC(dst []byte, prf PRF, key, message []byte) []byte {
	blockSize := prf.BlockSize()

	if len(key) > blockSize {
		hashed := getScratch(prf.Size())
		key = prf.Sum((*hashed)[:0], key)
		defer putScratch(hashed)
	}

	ipad := getScratch(blockSize)
	defer putScratch(ipad)
	opad := getScratch(blockSize)
	defer putScratch(opad)

	inner := *ipad
	outer := *opad
	for i := range inner {
		var k byte
		if i < len(key) {
			k = key[i]
		}
		inner[i] = k ^ 0x36
		outer[i] = k ^ 0x5c
	}

	innerSum := getScratch(prf.Size())
	defer putScratch(innerSum)
	innerHash := prf.Sum((*innerSum)[:0], inner, message)

	return prf.Sum(dst, outer, innerHash)
}

// PRFByName returns the built-in PRF with the given name. Both the short names
// ("blake3", "shake256", "blake2b") and the Name() values are accepted.
func PRFByName(name string) (PRF, bool) {
	switch name {
	case "", "blake3", "blake3-xof-512":
		return BLAKE3(), true
	case "shake256", "shake256-512":
		return SHAKE256(), true
	case "blake2b", "blake2b-512":
		return BLAKE2b(), true
	default:
		return nil, false
	}
}
