// cipher_test.go: Tests for the substitution cipher
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nebula_test

import (
	"bytes"
	"encoding/hex"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"

	"github.com/agilira/nebula"
)

var (
	testKey1     = []byte("Key1")
	testKey2     = []byte("Key2")
	testPassword = []byte("LeMOTdePAsse34!")
)

const lowercase = "abcdefghijklmnopqrstuvwxyz "

func newTestCipher(t testing.TB, config *nebula.CipherConfig) *nebula.Cipher {
	t.Helper()
	if config.Salt == nil {
		config.Salt = nebula.StaticSalt("salt")
	}
	if config.Iterations == 0 {
		config.Iterations = 3
	}
	c, err := nebula.NewCipher(config)
	require.NoError(t, err)
	return c
}

func staticPool(seed uint64) *nebula.EntropyPool {
	return nebula.NewEntropyPool(uint128.From64(seed), &nebula.PoolParams{Source: nebula.NewStaticEntropySource(seed)})
}

// TestCipher_KnownAnswers pins ciphertexts and table seeds for both key schedules.
func TestCipher_KnownAnswers(t *testing.T) {
	tests := []struct {
		schedule nebula.KeySchedule
		seed     uint64
		want     string
	}{
		{nebula.KeyedSchedule, 7520649604647622479, "029325fcea196d2d465d"},
		{nebula.ChecksumSchedule, 120062, "425323282b795a6f58d4"},
	}

	for _, tt := range tests {
		t.Run(tt.schedule.String(), func(t *testing.T) {
			c := newTestCipher(t, &nebula.CipherConfig{Schedule: tt.schedule})

			ct, err := c.Encrypt([]byte("HelloWorld"), testKey1, testKey2, testPassword)
			require.NoError(t, err)
			assert.Equal(t, tt.want, hex.EncodeToString(ct))

			pt, err := c.Decrypt(ct, testKey1, testKey2, testPassword)
			require.NoError(t, err)
			assert.Equal(t, "HelloWorld", string(pt))

			table, err := c.Table(testKey1, testKey2)
			require.NoError(t, err)
			expected, err := nebula.NewLookupTable(c.Alphabet(), tt.seed)
			require.NoError(t, err)
			assert.Equal(t, expected.Permutation(), table.Permutation())
		})
	}
}

// TestCipher_RoundTrip covers a range of lengths, including the parallel path.
func TestCipher_RoundTrip(t *testing.T) {
	c := newTestCipher(t, &nebula.CipherConfig{})

	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	large := bytes.Repeat([]byte("nebula parallel substitution "), 400)

	inputs := map[string][]byte{
		"empty":     {},
		"one byte":  {0x42},
		"all bytes": all,
		"text":      []byte("The quick brown fox jumps over the lazy dog"),
		"large":     large,
	}

	for name, plaintext := range inputs {
		t.Run(name, func(t *testing.T) {
			ct, err := c.Encrypt(plaintext, testKey1, testKey2, testPassword)
			require.NoError(t, err)
			assert.Len(t, ct, len(plaintext), "without padding the length is preserved")

			pt, err := c.Decrypt(ct, testKey1, testKey2, testPassword)
			require.NoError(t, err)
			assert.Equal(t, plaintext, pt)
		})
	}
}

// TestCipher_OtherPRFs verifies every PRF round trips.
func TestCipher_OtherPRFs(t *testing.T) {
	msg := []byte("alternate hash functions")
	var outputs [][]byte
	for _, prf := range []nebula.PRF{nebula.BLAKE3(), nebula.SHAKE256(), nebula.BLAKE2b()} {
		c := newTestCipher(t, &nebula.CipherConfig{PRF: prf})
		ct, err := c.Encrypt(msg, testKey1, testKey2, testPassword)
		require.NoError(t, err)
		pt, err := c.Decrypt(ct, testKey1, testKey2, testPassword)
		require.NoError(t, err)
		assert.Equal(t, msg, pt, prf.Name())
		outputs = append(outputs, ct)
	}
	assert.NotEqual(t, outputs[0], outputs[1])
	assert.NotEqual(t, outputs[0], outputs[2])
}

// TestCipher_Padding verifies markers are inserted and stripped.
func TestCipher_Padding(t *testing.T) {
	c := newTestCipher(t, &nebula.CipherConfig{
		Alphabet: []byte(lowercase),
		Padding:  true,
		Pool:     staticPool(12345),
	})
	assert.True(t, c.Padding())
	assert.Equal(t, []byte(lowercase), c.Alphabet())

	plaintext := []byte("attack at dawn")
	ct1, err := c.Encrypt(plaintext, testKey1, testKey2, testPassword)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(ct1), len(plaintext)+len(plaintext)/2)
	assert.LessOrEqual(t, len(ct1), 2*len(plaintext))

	pt, err := c.Decrypt(ct1, testKey1, testKey2, testPassword)
	require.NoError(t, err)
	assert.Equal(t, plaintext, pt)

	ct2, err := c.Encrypt(plaintext, testKey1, testKey2, testPassword)
	require.NoError(t, err)
	assert.NotEqual(t, ct1, ct2, "padding draws fresh positions on every call")

	pt, err = c.Decrypt(ct2, testKey1, testKey2, testPassword)
	require.NoError(t, err)
	assert.Equal(t, plaintext, pt)
}

// TestCipher_PaddingLeavesCallerPlaintext verifies the padded working copy is
// wiped without touching the caller's buffer or the ciphertext.
func TestCipher_PaddingLeavesCallerPlaintext(t *testing.T) {
	for _, padding := range []bool{false, true} {
		config := &nebula.CipherConfig{Alphabet: []byte(lowercase), Padding: padding}
		if padding {
			config.Pool = staticPool(77)
		}
		c := newTestCipher(t, config)

		plaintext := []byte("wipe the padded copy only")
		original := append([]byte(nil), plaintext...)

		for i := 0; i < 3; i++ {
			ct, err := c.Encrypt(plaintext, testKey1, testKey2, testPassword)
			require.NoError(t, err)
			assert.Equal(t, original, plaintext, "padding=%v: caller plaintext modified", padding)
			assert.NotEqual(t, make([]byte, len(ct)), ct)

			pt, err := c.Decrypt(ct, testKey1, testKey2, testPassword)
			require.NoError(t, err)
			assert.Equal(t, original, pt)
		}
	}
}

// TestCipher_PaddingDefaultAlphabet verifies the marker leaves the default alphabet.
func TestCipher_PaddingDefaultAlphabet(t *testing.T) {
	c := newTestCipher(t, &nebula.CipherConfig{Padding: true, PadMarker: '#', Pool: staticPool(3)})

	alphabet := c.Alphabet()
	assert.Len(t, alphabet, 255)
	assert.NotContains(t, string(alphabet), "#")

	_, err := c.Encrypt([]byte("a#b"), testKey1, testKey2, testPassword)
	assert.True(t, errors.Is(err, nebula.ErrCharacterNotInAlphabet))

	ct, err := c.Encrypt([]byte("abc"), testKey1, testKey2, testPassword)
	require.NoError(t, err)
	pt, err := c.Decrypt(ct, testKey1, testKey2, testPassword)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(pt))
}

// TestCipher_ConfigErrors covers invalid cipher configurations.
func TestCipher_ConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		config *nebula.CipherConfig
		target error
	}{
		{"marker in alphabet", &nebula.CipherConfig{Alphabet: []byte("ab^"), Padding: true}, nebula.ErrMarkerInAlphabet},
		{"duplicate symbols", &nebula.CipherConfig{Alphabet: []byte("abca")}, nebula.ErrInvalidAlphabet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Salt = nebula.StaticSalt("s")
			_, err := nebula.NewCipher(tt.config)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}

	_, err := nebula.NewCipher(&nebula.CipherConfig{Schedule: nebula.KeySchedule(9), Salt: nebula.StaticSalt("s")})
	assert.Error(t, err)

	// The marker is only reserved when padding is on.
	_, err = nebula.NewCipher(&nebula.CipherConfig{Alphabet: []byte("ab^"), Salt: nebula.StaticSalt("s")})
	assert.NoError(t, err)
}

// TestCipher_InputErrors covers key and alphabet validation on each call.
func TestCipher_InputErrors(t *testing.T) {
	c := newTestCipher(t, &nebula.CipherConfig{Alphabet: []byte(lowercase)})

	_, err := c.Encrypt([]byte("Hello"), testKey1, testKey2, testPassword)
	assert.True(t, errors.Is(err, nebula.ErrCharacterNotInAlphabet))

	_, err = c.Encrypt([]byte("hello"), nil, testKey2, testPassword)
	assert.True(t, errors.Is(err, nebula.ErrKeyTooShort))

	_, err = c.Decrypt([]byte("hello"), testKey1, []byte{}, testPassword)
	assert.True(t, errors.Is(err, nebula.ErrKeyTooShort))

	_, err = c.Table(nil, nil)
	assert.True(t, errors.Is(err, nebula.ErrKeyTooShort))

	strict := newTestCipher(t, &nebula.CipherConfig{MinKeyLength: 8})
	_, err = strict.Encrypt([]byte("x"), testKey1, []byte("long enough key"), testPassword)
	assert.True(t, errors.Is(err, nebula.ErrKeyTooShort))
}

// TestCipher_DecryptGarbage verifies bytes outside a restricted alphabet are reported.
func TestCipher_DecryptGarbage(t *testing.T) {
	c := newTestCipher(t, &nebula.CipherConfig{Alphabet: []byte(lowercase)})

	garbage := bytes.Repeat([]byte{0xFF, 0x00, 0x80, 0x7F}, 8)
	_, err := c.Decrypt(garbage, testKey1, testKey2, testPassword)
	require.Error(t, err)
	assert.True(t, errors.Is(err, nebula.ErrByteNotInTable))
}

// TestCipher_WrongSecrets verifies wrong keys or password do not recover the plaintext.
func TestCipher_WrongSecrets(t *testing.T) {
	c := newTestCipher(t, &nebula.CipherConfig{})
	plaintext := []byte("confidential payload with enough length")

	ct, err := c.Encrypt(plaintext, testKey1, testKey2, testPassword)
	require.NoError(t, err)

	wrong := [][3][]byte{
		{[]byte("Key3"), testKey2, testPassword},
		{testKey1, []byte("Key3"), testPassword},
		{testKey1, testKey2, []byte("lemotdepasse34!")},
	}
	for _, w := range wrong {
		pt, err := c.Decrypt(ct, w[0], w[1], w[2])
		require.NoError(t, err, "the full byte alphabet accepts any ciphertext")
		assert.NotEqual(t, plaintext, pt)
	}
}

// TestCipher_SaltMatters verifies ciphertexts are bound to the salt.
func TestCipher_SaltMatters(t *testing.T) {
	a := newTestCipher(t, &nebula.CipherConfig{Salt: nebula.StaticSalt("host-a")})
	b := newTestCipher(t, &nebula.CipherConfig{Salt: nebula.StaticSalt("host-b")})

	ctA, err := a.Encrypt([]byte("same input"), testKey1, testKey2, testPassword)
	require.NoError(t, err)
	ctB, err := b.Encrypt([]byte("same input"), testKey1, testKey2, testPassword)
	require.NoError(t, err)
	assert.NotEqual(t, ctA, ctB)
}

// TestCipher_TableCacheLogging verifies tables are built once per key pair.
func TestCipher_TableCacheLogging(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	c := newTestCipher(t, &nebula.CipherConfig{Logger: logger})

	for i := 0; i < 3; i++ {
		_, err := c.Encrypt([]byte("cached"), testKey1, testKey2, testPassword)
		require.NoError(t, err)
	}

	built := 0
	for _, e := range hook.AllEntries() {
		if e.Message == "substitution table built" {
			built++
		}
	}
	assert.Equal(t, 1, built)
}

// TestCipher_Concurrent exercises one cipher from several goroutines.
func TestCipher_Concurrent(t *testing.T) {
	c := newTestCipher(t, &nebula.CipherConfig{Padding: true, Pool: staticPool(77)})

	var wg sync.WaitGroup
	for g := 0; g < 6; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			key1 := []byte{byte('a' + g), 'k'}
			msg := bytes.Repeat([]byte{byte(g)}, 50+g)
			for i := 0; i < 5; i++ {
				ct, err := c.Encrypt(msg, key1, testKey2, testPassword)
				if !assert.NoError(t, err) {
					return
				}
				pt, err := c.Decrypt(ct, key1, testKey2, testPassword)
				if assert.NoError(t, err) {
					assert.Equal(t, msg, pt)
				}
			}
		}(g)
	}
	wg.Wait()
}

// TestPackageEncryptDecrypt verifies the default cipher helpers round trip.
func TestPackageEncryptDecrypt(t *testing.T) {
	ct, err := nebula.Encrypt([]byte("host bound"), testKey1, testKey2, []byte("pw"))
	require.NoError(t, err)

	pt, err := nebula.Decrypt(ct, testKey1, testKey2, []byte("pw"))
	require.NoError(t, err)
	assert.Equal(t, "host bound", string(pt))
}

// TestPackageEncryptUsesKeyedSchedule verifies the package cipher uses the
// keyed schedule, and that the byte-sum format needs an explicit ChecksumSchedule.
func TestPackageEncryptUsesKeyedSchedule(t *testing.T) {
	plaintext := []byte("schedule check")
	ct, err := nebula.Encrypt(plaintext, testKey1, testKey2, []byte("pw"))
	require.NoError(t, err)

	keyed := newTestCipher(t, &nebula.CipherConfig{Salt: nebula.HostSalt(), Iterations: nebula.DefaultIterations})
	want, err := keyed.Encrypt(plaintext, testKey1, testKey2, []byte("pw"))
	require.NoError(t, err)
	assert.Equal(t, want, ct)

	checksum := newTestCipher(t, &nebula.CipherConfig{Salt: nebula.HostSalt(), Iterations: nebula.DefaultIterations, Schedule: nebula.ChecksumSchedule})
	legacy, err := checksum.Encrypt(plaintext, testKey1, testKey2, []byte("pw"))
	require.NoError(t, err)
	assert.NotEqual(t, legacy, ct)

	pt, err := checksum.Decrypt(legacy, testKey1, testKey2, []byte("pw"))
	require.NoError(t, err)
	assert.Equal(t, plaintext, pt)
}

// FuzzCipherRoundTrip checks Decrypt inverts Encrypt for arbitrary input.
func FuzzCipherRoundTrip(f *testing.F) {
	f.Add([]byte("HelloWorld"), []byte("Key1"), []byte("Key2"))
	f.Add([]byte{0, 255, 128}, []byte{0}, []byte{255})

	c, err := nebula.NewCipher(&nebula.CipherConfig{Salt: nebula.StaticSalt("fuzz"), Iterations: 1})
	if err != nil {
		f.Fatal(err)
	}

	f.Fuzz(func(t *testing.T, data, key1, key2 []byte) {
		if len(key1) == 0 || len(key2) == 0 {
			t.Skip()
		}
		ct, err := c.Encrypt(data, key1, key2, []byte("fuzz"))
		if err != nil {
			t.Fatal(err)
		}
		pt, err := c.Decrypt(ct, key1, key2, []byte("fuzz"))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(data, pt) {
			t.Fatalf("round trip mismatch: %x != %x", data, pt)
		}
	})
}

// BenchmarkCipher_Encrypt measures a 64 KiB encryption with a warm table cache.
func BenchmarkCipher_Encrypt(b *testing.B) {
	c := newTestCipher(b, &nebula.CipherConfig{Iterations: 100})
	data := bytes.Repeat([]byte{0xA5}, 64*1024)
	if _, err := c.Encrypt(data, testKey1, testKey2, testPassword); err != nil {
		b.Fatal(err)
	}

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Encrypt(data, testKey1, testKey2, testPassword); err != nil {
			b.Fatal(err)
		}
	}
}
