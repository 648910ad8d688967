// streaming.go: Chunked stream encryption and decryption over the substitution cipher.
//
// Large inputs are split into chunks that are encrypted independently and
// written as length prefixed frames, so neither side holds the whole stream
// in memory.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nebula

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	goerrors "github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// StreamEncryptor encrypts everything written to it into framed chunks.
//
// Example usage:
//
//	enc, _ := nebula.NewStreamEncryptor(out, cipher, key1, key2, password)
//	defer enc.Close()
//
//	io.Copy(enc, in)
type StreamEncryptor interface {
	// Write buffers data and emits a frame whenever a full chunk is available.
	Write(data []byte) (int, error)

	// Close emits the final partial chunk. It must be called.
	Close() error
}

// StreamDecryptor decrypts a stream produced by a StreamEncryptor.
type StreamDecryptor interface {
	// Read returns decrypted plaintext, reading frames as needed.
	Read(data []byte) (int, error)

	// Header returns the stream header, reading it first if needed.
	Header() (StreamHeader, error)

	// Close releases the key material.
	Close() error
}

// DefaultChunkSize is the plaintext size of one frame (64KB).
const DefaultChunkSize = 64 * 1024

// MaxChunkSize bounds the chunk size accepted in either direction.
const MaxChunkSize = 10 * 1024 * 1024

// Stream format header:
// [4 bytes: Magic] [4 bytes: Version] [4 bytes: Chunk Size] [8 bytes: Created, unix ns]
// followed by frames of [4 bytes: Length] [Length bytes: ciphertext], all big endian.
const (
	streamMagic   = "NBLA"
	streamVersion = uint32(1)
	headerSize    = 4 + 4 + 4 + 8
)

// StreamHeader is the decoded stream header.
type StreamHeader struct {
	Version   uint32
	ChunkSize int
	Created   time.Time
}

type streamEncryptor struct {
	writer    io.Writer
	cipher    *Cipher
	key1      []byte
	key2      []byte
	password  []byte
	buffer    []byte
	chunkSize int
	chunks    uint64
	closed    bool
}

type streamDecryptor struct {
	reader     io.Reader
	cipher     *Cipher
	key1       []byte
	key2       []byte
	password   []byte
	header     StreamHeader
	headerRead bool
	remaining  []byte
	chunks     uint64
	closed     bool
}

// NewStreamEncryptor creates a stream encryptor with DefaultChunkSize.
//
// Example:
//
//	file, _ := os.Create("secret.nbla")
//	enc, err := nebula.NewStreamEncryptor(file, c, key1, key2, password)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer enc.Close()
func NewStreamEncryptor(writer io.Writer, c *Cipher, key1, key2, password []byte) (StreamEncryptor, error) {
	return NewStreamEncryptorWithChunkSize(writer, c, key1, key2, password, DefaultChunkSize)
}

// NewStreamEncryptorWithChunkSize creates a stream encryptor with a custom
// chunk size between 1 byte and MaxChunkSize. The header is written immediately.
func NewStreamEncryptorWithChunkSize(writer io.Writer, c *Cipher, key1, key2, password []byte, chunkSize int) (StreamEncryptor, error) {
	if chunkSize <= 0 || chunkSize > MaxChunkSize {
		return nil, goerrors.New(ErrCodeInvalidChunkSize, fmt.Sprintf("chunk size must be between 1 and %d bytes", MaxChunkSize))
	}
	if err := c.checkKeys(key1, key2); err != nil {
		return nil, err
	}

	enc := &streamEncryptor{
		writer:    writer,
		cipher:    c,
		key1:      cloneBytes(key1),
		key2:      cloneBytes(key2),
		password:  cloneBytes(password),
		buffer:    make([]byte, 0, chunkSize),
		chunkSize: chunkSize,
	}

	if err := enc.writeHeader(); err != nil {
		return nil, err
	}
	return enc, nil
}

// NewStreamDecryptor creates a stream decryptor. The header is read lazily on the first Read.
func NewStreamDecryptor(reader io.Reader, c *Cipher, key1, key2, password []byte) (StreamDecryptor, error) {
	if err := c.checkKeys(key1, key2); err != nil {
		return nil, err
	}
	return &streamDecryptor{
		reader:   reader,
		cipher:   c,
		key1:     cloneBytes(key1),
		key2:     cloneBytes(key2),
		password: cloneBytes(password),
	}, nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// chunkPassword binds the password to the frame index so that equal chunks
// encrypt differently.
func chunkPassword(password []byte, index uint64) []byte {
	out := make([]byte, len(password), len(password)+8)
	copy(out, password)
	return binary.BigEndian.AppendUint64(out, index)
}

func (e *streamEncryptor) writeHeader() error {
	header := make([]byte, 0, headerSize)
	header = append(header, streamMagic...)
	header = binary.BigEndian.AppendUint32(header, streamVersion)
	header = binary.BigEndian.AppendUint32(header, uint32(e.chunkSize))                          // #nosec G115 -- bounded by MaxChunkSize
	header = binary.BigEndian.AppendUint64(header, uint64(timecache.CachedTime().UnixNano())) // #nosec G115 -- post-1970 clock

	if _, err := e.writer.Write(header); err != nil {
		return goerrors.Wrap(err, "HEADER_WRITE_FAILED", "failed to write stream header")
	}
	return nil
}

// Write implements StreamEncryptor.
func (e *streamEncryptor) Write(data []byte) (int, error) {
	if e.closed {
		return 0, goerrors.New("ENCRYPTOR_CLOSED", "cannot write to closed encryptor")
	}

	totalWritten := 0
	for len(data) > 0 {
		toWrite := e.chunkSize - len(e.buffer)
		if toWrite > len(data) {
			toWrite = len(data)
		}

		e.buffer = append(e.buffer, data[:toWrite]...)
		data = data[toWrite:]
		totalWritten += toWrite

		if len(e.buffer) == e.chunkSize {
			if err := e.flushChunk(); err != nil {
				return totalWritten, err
			}
		}
	}
	return totalWritten, nil
}

// Close implements StreamEncryptor.
func (e *streamEncryptor) Close() error {
	if e.closed {
		return nil
	}
	err := e.flushChunk()
	e.closed = true
	Zeroize(e.buffer[:cap(e.buffer)])
	Zeroize(e.key1)
	Zeroize(e.key2)
	Zeroize(e.password)
	return err
}

func (e *streamEncryptor) flushChunk() error {
	if len(e.buffer) == 0 {
		return nil
	}

	pw := chunkPassword(e.password, e.chunks)
	encrypted, err := e.cipher.Encrypt(e.buffer, e.key1, e.key2, pw)
	Zeroize(pw)
	if err != nil {
		return err
	}

	frame := make([]byte, 4, 4+len(encrypted))
	binary.BigEndian.PutUint32(frame, uint32(len(encrypted))) // #nosec G115 -- at most 2*MaxChunkSize
	frame = append(frame, encrypted...)

	if _, err := e.writer.Write(frame); err != nil {
		return goerrors.Wrap(err, "CHUNK_WRITE_FAILED", "failed to write encrypted chunk")
	}

	e.chunks++
	Zeroize(e.buffer)
	e.buffer = e.buffer[:0]
	return nil
}

// ReadStreamHeader reads and validates a stream header from r.
func ReadStreamHeader(r io.Reader) (StreamHeader, error) {
	var h StreamHeader

	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return h, goerrors.Wrap(err, "HEADER_READ_FAILED", "failed to read stream header")
	}
	if string(raw[0:4]) != streamMagic {
		return h, goerrors.New(ErrCodeStreamFormat, "invalid magic bytes")
	}

	h.Version = binary.BigEndian.Uint32(raw[4:8])
	if h.Version != streamVersion {
		return h, goerrors.New(ErrCodeStreamFormat, fmt.Sprintf("unsupported stream version %d", h.Version))
	}

	chunkSize := binary.BigEndian.Uint32(raw[8:12])
	if chunkSize == 0 || chunkSize > MaxChunkSize {
		return h, goerrors.New(ErrCodeInvalidChunkSize, "invalid chunk size in header")
	}
	h.ChunkSize = int(chunkSize)
	h.Created = time.Unix(0, int64(binary.BigEndian.Uint64(raw[12:20]))) // #nosec G115 -- written from UnixNano

	return h, nil
}

// Header returns the stream header, reading it if needed.
func (d *streamDecryptor) Header() (StreamHeader, error) {
	if err := d.readHeader(); err != nil {
		return StreamHeader{}, err
	}
	return d.header, nil
}

func (d *streamDecryptor) readHeader() error {
	if d.headerRead {
		return nil
	}
	h, err := ReadStreamHeader(d.reader)
	if err != nil {
		return err
	}
	d.header = h
	d.headerRead = true
	return nil
}

// Read implements StreamDecryptor.
func (d *streamDecryptor) Read(data []byte) (int, error) {
	if d.closed {
		return 0, goerrors.New("DECRYPTOR_CLOSED", "cannot read from closed decryptor")
	}
	if err := d.readHeader(); err != nil {
		return 0, err
	}

	totalRead := 0
	for len(data) > 0 {
		if len(d.remaining) > 0 {
			n := copy(data, d.remaining)
			d.remaining = d.remaining[n:]
			data = data[n:]
			totalRead += n
			continue
		}

		chunk, err := d.readNextChunk()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if totalRead > 0 {
					return totalRead, nil
				}
				return 0, io.EOF
			}
			return totalRead, err
		}
		d.remaining = chunk
	}
	return totalRead, nil
}

// Close implements StreamDecryptor.
func (d *streamDecryptor) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	Zeroize(d.remaining)
	Zeroize(d.key1)
	Zeroize(d.key2)
	Zeroize(d.password)
	return nil
}

// readNextChunk reads and decrypts one frame. A clean end of stream returns io.EOF.
func (d *streamDecryptor) readNextChunk() ([]byte, error) {
	prefix := make([]byte, 4)
	if _, err := io.ReadFull(d.reader, prefix); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, goerrors.Wrap(err, "CHUNK_READ_FAILED", "failed to read chunk length")
	}

	size := binary.BigEndian.Uint32(prefix)
	// Padding can at most double a chunk.
	if size == 0 || uint64(size) > 2*uint64(d.header.ChunkSize) {
		return nil, goerrors.New(ErrCodeInvalidChunkSize, fmt.Sprintf("frame of %d bytes exceeds chunk limit", size))
	}

	encrypted := make([]byte, size)
	if _, err := io.ReadFull(d.reader, encrypted); err != nil {
		return nil, goerrors.Wrap(err, "CHUNK_READ_FAILED", "failed to read encrypted chunk")
	}

	pw := chunkPassword(d.password, d.chunks)
	plain, err := d.cipher.Decrypt(encrypted, d.key1, d.key2, pw)
	Zeroize(pw)
	if err != nil {
		return nil, err
	}
	d.chunks++
	return plain, nil
}
