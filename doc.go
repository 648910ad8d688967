// Package nebula provides a keyed substitution cipher, HMAC based password
// stretching and an entropy pool generator.
//
// The package is built from four layers:
//   - PRF and HMAC over BLAKE3 (default), SHAKE-256 or BLAKE2b-512, always 64 bytes of output
//   - A PBKDF2 style key derivation that XOR folds iterated HMAC blocks
//   - EntropyPool, a mutex guarded generator over a bounded byte pool with a reseed policy
//   - Cipher, a 3-D substitution table selected by two keys, composed with marker
//     padding, a password keystream and per byte bit rotation
//
// Cryptographic strength is not certified. The cipher is unauthenticated; use
// it where its exact invertibility and keyed table structure are the point.
//
// # Quick Start
//
//	key1 := []byte("first substitution key")
//	key2 := []byte("second substitution key")
//
//	ciphertext, err := nebula.Encrypt([]byte("sensitive data"), key1, key2, []byte("password"))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	plaintext, err := nebula.Decrypt(ciphertext, key1, key2, []byte("password"))
//	if err != nil {
//		log.Fatal(err)
//	}
//
// The package level functions use the host salt, so ciphertext only decrypts
// on the machine that produced it. Build a Cipher with a StaticSalt to move
// ciphertext between hosts:
//
//	c, err := nebula.NewCipher(&nebula.CipherConfig{
//		Salt:    nebula.StaticSalt("application salt"),
//		Padding: true,
//	})
//
// # Key Derivation
//
//	key, err := nebula.DeriveKey([]byte("password"), []byte("salt"), 1000, 64)
//
//	// Other PRFs and lengths
//	key, err = nebula.DeriveKeyWithParams(password, salt, &nebula.KDFParams{
//		PRF:        nebula.SHAKE256(),
//		Iterations: 5000,
//		KeyLen:     128,
//	})
//
// # Entropy Pool
//
//	pool, err := nebula.NewSecuredPool(nil)
//	if err != nil {
//		log.Fatal(err) // no usable system entropy
//	}
//	n, err := pool.BoundedNumber(1, 6)
//
// Tests and known answer checks use NewEntropyPool with a StaticEntropySource
// and a fixed clock, which makes every draw reproducible.
//
// # Error Handling
//
// Cipher, pool and key errors wrap an exported sentinel usable with errors.Is,
// together with a github.com/agilira/go-errors value carrying a stable code:
//
//	_, err := c.Decrypt(ciphertext, key1, key2, password)
//	if errors.Is(err, nebula.ErrByteNotInTable) {
//		// wrong keys, password or salt
//	}
//
// # Streaming
//
//	enc, err := nebula.NewStreamEncryptor(out, c, key1, key2, password)
//	if err != nil {
//		log.Fatal(err)
//	}
//	io.Copy(enc, in)
//	enc.Close()
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra library
// SPDX-License-Identifier: MPL-2.0
package nebula
