// streaming_test.go: Test cases for streaming encryption/decryption.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nebula_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agilira/nebula"
)

func streamCipher(t testing.TB, padding bool) *nebula.Cipher {
	t.Helper()
	config := &nebula.CipherConfig{Salt: nebula.StaticSalt("stream salt"), Iterations: 2, Padding: padding}
	if padding {
		config.Pool = staticPool(11)
	}
	c, err := nebula.NewCipher(config)
	require.NoError(t, err)
	return c
}

func encryptStream(t testing.TB, c *nebula.Cipher, data []byte, chunkSize int) []byte {
	t.Helper()
	var out bytes.Buffer
	enc, err := nebula.NewStreamEncryptorWithChunkSize(&out, c, testKey1, testKey2, testPassword, chunkSize)
	require.NoError(t, err)

	n, err := enc.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.NoError(t, enc.Close())
	return out.Bytes()
}

func decryptStream(t testing.TB, c *nebula.Cipher, stream []byte) ([]byte, error) {
	t.Helper()
	dec, err := nebula.NewStreamDecryptor(bytes.NewReader(stream), c, testKey1, testKey2, testPassword)
	require.NoError(t, err)
	defer dec.Close()
	return io.ReadAll(dec)
}

// TestStreamingEncryptionBasic tests basic streaming encryption functionality
func TestStreamingEncryptionBasic(t *testing.T) {
	c := streamCipher(t, false)
	testData := []byte("Hello, World! This is a test of streaming encryption.")

	var encrypted bytes.Buffer
	enc, err := nebula.NewStreamEncryptor(&encrypted, c, testKey1, testKey2, testPassword)
	if err != nil {
		t.Fatalf("Failed to create encryptor: %v", err)
	}
	if _, err := enc.Write(testData); err != nil {
		t.Fatalf("Failed to write data: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Failed to close encryptor: %v", err)
	}

	// header + one frame
	if got, want := encrypted.Len(), 20+4+len(testData); got != want {
		t.Errorf("Expected %d stream bytes, got %d", want, got)
	}

	decrypted, err := decryptStream(t, c, encrypted.Bytes())
	if err != nil {
		t.Fatalf("Failed to decrypt: %v", err)
	}
	if !bytes.Equal(testData, decrypted) {
		t.Errorf("Decrypted data mismatch: %q", decrypted)
	}
}

// TestStreamingMultipleChunks verifies framing across chunk boundaries
func TestStreamingMultipleChunks(t *testing.T) {
	c := streamCipher(t, false)
	data := bytes.Repeat([]byte("0123456789abcdef"), 100) // 1600 bytes

	for _, chunkSize := range []int{1, 7, 100, 1600, 4096} {
		stream := encryptStream(t, c, data, chunkSize)

		frames := (len(data) + chunkSize - 1) / chunkSize
		assert.Equal(t, 20+4*frames+len(data), len(stream), "chunk size %d", chunkSize)

		decrypted, err := decryptStream(t, c, stream)
		require.NoError(t, err)
		assert.Equal(t, data, decrypted, "chunk size %d", chunkSize)
	}
}

// TestStreamingChunksDiffer verifies equal chunks encrypt differently
func TestStreamingChunksDiffer(t *testing.T) {
	c := streamCipher(t, false)
	stream := encryptStream(t, c, bytes.Repeat([]byte("A"), 64), 32)

	first := stream[20+4 : 20+4+32]
	second := stream[20+4+32+4:]
	assert.NotEqual(t, first, second)
}

// TestStreamingWithPadding verifies padded frames decrypt and stay within limits
func TestStreamingWithPadding(t *testing.T) {
	c := streamCipher(t, true)
	data := []byte(strings.Repeat("padded stream content ", 50))

	stream := encryptStream(t, c, data, 128)
	assert.Greater(t, len(stream), 20+len(data))

	decrypted, err := decryptStream(t, c, stream)
	require.NoError(t, err)
	assert.Equal(t, data, decrypted)
}

// TestStreamingEmpty verifies an empty stream is just the header
func TestStreamingEmpty(t *testing.T) {
	c := streamCipher(t, false)
	stream := encryptStream(t, c, nil, 16)
	assert.Len(t, stream, 20)

	decrypted, err := decryptStream(t, c, stream)
	require.NoError(t, err)
	assert.Empty(t, decrypted)
}

// TestStreamingSmallReads reads the plaintext one byte at a time
func TestStreamingSmallReads(t *testing.T) {
	c := streamCipher(t, false)
	data := []byte("byte by byte across several frames")
	stream := encryptStream(t, c, data, 5)

	dec, err := nebula.NewStreamDecryptor(bytes.NewReader(stream), c, testKey1, testKey2, testPassword)
	require.NoError(t, err)

	var got []byte
	buf := make([]byte, 1)
	for {
		n, err := dec.Read(buf)
		got = append(got, buf[:n]...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, data, got)
	require.NoError(t, dec.Close())

	_, err = dec.Read(buf)
	assert.Error(t, err, "reading a closed decryptor must fail")
}

// TestStreamHeader verifies the header fields
func TestStreamHeader(t *testing.T) {
	c := streamCipher(t, false)
	before := time.Now().Add(-time.Minute)
	stream := encryptStream(t, c, []byte("header"), 4096)

	assert.Equal(t, "NBLA", string(stream[:4]))

	h, err := nebula.ReadStreamHeader(bytes.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), h.Version)
	assert.Equal(t, 4096, h.ChunkSize)
	assert.True(t, h.Created.After(before))

	dec, err := nebula.NewStreamDecryptor(bytes.NewReader(stream), c, testKey1, testKey2, testPassword)
	require.NoError(t, err)
	dh, err := dec.Header()
	require.NoError(t, err)
	assert.Equal(t, h, dh)
}

// TestStreamingInvalidInput covers malformed headers and frames
func TestStreamingInvalidInput(t *testing.T) {
	c := streamCipher(t, false)
	valid := encryptStream(t, c, []byte("some content"), 64)

	corrupt := func(mutate func([]byte) []byte) []byte {
		return mutate(append([]byte(nil), valid...))
	}

	tests := map[string][]byte{
		"short header": valid[:10],
		"bad magic": corrupt(func(b []byte) []byte {
			copy(b, "XXXX")
			return b
		}),
		"bad version": corrupt(func(b []byte) []byte {
			binary.BigEndian.PutUint32(b[4:], 9)
			return b
		}),
		"zero chunk size": corrupt(func(b []byte) []byte {
			binary.BigEndian.PutUint32(b[8:], 0)
			return b
		}),
		"oversized frame": corrupt(func(b []byte) []byte {
			binary.BigEndian.PutUint32(b[20:], 1000)
			return b
		}),
		"zero frame": corrupt(func(b []byte) []byte {
			binary.BigEndian.PutUint32(b[20:], 0)
			return b
		}),
		"truncated frame": valid[:len(valid)-3],
		"truncated prefix": corrupt(func(b []byte) []byte {
			return append(b, 0x00, 0x01)
		}),
	}

	for name, stream := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := decryptStream(t, c, stream)
			assert.Error(t, err)
		})
	}
}

// TestStreamingConstructorErrors covers invalid chunk sizes and keys
func TestStreamingConstructorErrors(t *testing.T) {
	c := streamCipher(t, false)
	var out bytes.Buffer

	for _, size := range []int{0, -1, nebula.MaxChunkSize + 1} {
		_, err := nebula.NewStreamEncryptorWithChunkSize(&out, c, testKey1, testKey2, testPassword, size)
		assert.Error(t, err, "chunk size %d", size)
	}

	_, err := nebula.NewStreamEncryptor(&out, c, nil, testKey2, testPassword)
	assert.ErrorIs(t, err, nebula.ErrKeyTooShort)

	_, err = nebula.NewStreamDecryptor(&out, c, testKey1, nil, testPassword)
	assert.ErrorIs(t, err, nebula.ErrKeyTooShort)
}

// TestStreamingWriteAfterClose verifies a closed encryptor rejects writes
func TestStreamingWriteAfterClose(t *testing.T) {
	c := streamCipher(t, false)
	var out bytes.Buffer
	enc, err := nebula.NewStreamEncryptor(&out, c, testKey1, testKey2, testPassword)
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, enc.Close(), "Close is idempotent")

	_, err = enc.Write([]byte("late"))
	assert.Error(t, err)
}

// FuzzReadStreamHeader checks the header parser never panics
func FuzzReadStreamHeader(f *testing.F) {
	f.Add([]byte("NBLA\x00\x00\x00\x01\x00\x01\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00"))
	f.Add([]byte("short"))

	f.Fuzz(func(t *testing.T, data []byte) {
		h, err := nebula.ReadStreamHeader(bytes.NewReader(data))
		if err == nil && (h.ChunkSize <= 0 || h.ChunkSize > nebula.MaxChunkSize) {
			t.Fatalf("accepted chunk size %d", h.ChunkSize)
		}
	})
}
