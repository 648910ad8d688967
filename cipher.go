// cipher.go: Keyed substitution cipher composing padding, 3-D table substitution, keystream XOR and bit rotation.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nebula

import (
	"bytes"
	"fmt"
	"sync"

	goerrors "github.com/agilira/go-errors"
	"github.com/sirupsen/logrus"
)

// DefaultPadMarker is the padding marker used when CipherConfig.PadMarker is zero.
const DefaultPadMarker byte = '^'

// CipherConfig configures a Cipher. A nil config, or zero fields, select the defaults.
//
// Example:
//
//	c, err := nebula.NewCipher(&nebula.CipherConfig{
//		Alphabet: []byte("abcdefghijklmnopqrstuvwxyz "),
//		Padding:  true,
//	})
type CipherConfig struct {
	// Alphabet is the set of plaintext symbols. If empty, all 256 byte values
	// are used, minus the marker when Padding is enabled.
	Alphabet []byte

	// Padding enables random marker insertion before substitution.
	Padding bool

	// PadMarker is the padding symbol. It must not be part of Alphabet.
	// If zero, DefaultPadMarker is used.
	PadMarker byte

	// Iterations is the KDF iteration count for the password keystream.
	// If zero, DefaultIterations is used.
	Iterations int

	// Schedule selects the key condensation. The zero value is KeyedSchedule.
	Schedule KeySchedule

	// PRF is used for HMAC and the KDF. If nil, BLAKE3 is used.
	PRF PRF

	// Pool draws padding positions. If nil and Padding is enabled, a secured
	// pool over the system entropy source is created on first use.
	Pool *EntropyPool

	// Salt provides the KDF salt. If nil, HostSalt is used.
	Salt SaltProvider

	// MinKeyLength is the minimum length of key1 and key2. If zero, 1 is used.
	MinKeyLength int

	// Logger receives table cache events. If nil, the logrus standard logger is used.
	Logger logrus.FieldLogger
}

// Cipher encrypts and decrypts byte strings under two substitution keys and a
// password. It is safe for concurrent use.
type Cipher struct {
	dataAlphabet  []byte
	tableAlphabet []byte
	inAlphabet    [256]bool
	fullAlphabet  bool

	padding    bool
	marker     byte
	iterations int
	schedule   KeySchedule
	prf        PRF
	salt       []byte
	minKeyLen  int
	logger     logrus.FieldLogger

	poolOnce sync.Once
	pool     *EntropyPool
	poolErr  error

	tables *tableCache
}

// NewCipher creates a cipher from config.
func NewCipher(config *CipherConfig) (*Cipher, error) {
	if config == nil {
		config = &CipherConfig{}
	}

	c := &Cipher{
		padding:    config.Padding,
		marker:     DefaultPadMarker,
		iterations: DefaultIterations,
		schedule:   config.Schedule,
		prf:        BLAKE3(),
		minKeyLen:  1,
		logger:     logrus.StandardLogger(),
		pool:       config.Pool,
		tables:     newTableCache(tableCacheSize),
	}
	if config.PadMarker != 0 {
		c.marker = config.PadMarker
	}
	if config.Iterations > 0 {
		c.iterations = config.Iterations
	}
	if config.PRF != nil {
		c.prf = config.PRF
	}
	if config.MinKeyLength > 0 {
		c.minKeyLen = config.MinKeyLength
	}
	if config.Logger != nil {
		c.logger = config.Logger
	}
	if c.schedule != KeyedSchedule && c.schedule != ChecksumSchedule {
		return nil, goerrors.New(ErrCodeInvalidSchedule, fmt.Sprintf("unknown key schedule %d", c.schedule))
	}

	if err := c.initAlphabet(config.Alphabet); err != nil {
		return nil, err
	}

	saltProvider := config.Salt
	if saltProvider == nil {
		saltProvider = HostSalt()
	}
	salt, err := saltProvider.Salt()
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeSaltUnavailable, "failed to obtain KDF salt")
	}
	c.salt = salt

	return c, nil
}

func (c *Cipher) initAlphabet(alphabet []byte) error {
	if len(alphabet) == 0 {
		c.dataAlphabet = make([]byte, 0, 256)
		for i := 0; i < 256; i++ {
			if c.padding && byte(i) == c.marker {
				continue
			}
			c.dataAlphabet = append(c.dataAlphabet, byte(i))
		}
	} else {
		if err := validateAlphabet(alphabet); err != nil {
			return err
		}
		if c.padding && bytes.IndexByte(alphabet, c.marker) >= 0 {
			return newError(ErrMarkerInAlphabet, ErrCodeMarkerInAlphabet,
				fmt.Sprintf("padding marker 0x%02x is part of the alphabet", c.marker))
		}
		c.dataAlphabet = append([]byte(nil), alphabet...)
	}

	c.tableAlphabet = append([]byte(nil), c.dataAlphabet...)
	if c.padding {
		c.tableAlphabet = append(c.tableAlphabet, c.marker)
	}

	for _, s := range c.dataAlphabet {
		c.inAlphabet[s] = true
	}
	c.fullAlphabet = len(c.dataAlphabet) == 256
	return nil
}

// Alphabet returns a copy of the plaintext alphabet.
func (c *Cipher) Alphabet() []byte {
	return append([]byte(nil), c.dataAlphabet...)
}

// Padding reports whether marker padding is enabled.
func (c *Cipher) Padding() bool { return c.padding }

// Table returns the substitution table selected by key1 and key2.
func (c *Cipher) Table(key1, key2 []byte) (*LookupTable, error) {
	if err := c.checkKeys(key1, key2); err != nil {
		return nil, err
	}
	return c.table(deriveTableSeed(c.schedule, c.prf, key1, key2))
}

func (c *Cipher) table(seed uint64) (*LookupTable, error) {
	t, built, err := c.tables.get(c.tableAlphabet, seed)
	if err != nil {
		return nil, err
	}
	if built {
		c.logger.WithFields(logrus.Fields{
			"alphabet_size": len(c.tableAlphabet),
			"cached_tables": c.tables.len(),
		}).Debug("substitution table built")
	}
	return t, nil
}

func (c *Cipher) checkKeys(key1, key2 []byte) error {
	for i, k := range [][]byte{key1, key2} {
		if len(k) < c.minKeyLen {
			return newError(ErrKeyTooShort, ErrCodeKeyTooShort,
				fmt.Sprintf("key%d has %d bytes, at least %d required", i+1, len(k), c.minKeyLen))
		}
	}
	return nil
}

func (c *Cipher) entropyPool() (*EntropyPool, error) {
	c.poolOnce.Do(func() {
		if c.pool != nil {
			return
		}
		c.pool, c.poolErr = NewSecuredPool(&PoolParams{PRF: c.prf, Logger: c.logger})
	})
	return c.pool, c.poolErr
}

// Encrypt runs plaintext through pad, substitute, XOR and rotate.
//
// Every plaintext byte must belong to the alphabet. With padding enabled the
// ciphertext is longer than the plaintext and differs between calls.
func (c *Cipher) Encrypt(plaintext, key1, key2, password []byte) ([]byte, error) {
	if err := c.checkKeys(key1, key2); err != nil {
		return nil, err
	}
	if !c.fullAlphabet {
		for i, b := range plaintext {
			if !c.inAlphabet[b] {
				return nil, newError(ErrCharacterNotInAlphabet, ErrCodeCharNotInAlphabet,
					fmt.Sprintf("byte 0x%02x at offset %d is not in the alphabet", b, i))
			}
		}
	}

	data := plaintext
	if c.padding {
		pool, err := c.entropyPool()
		if err != nil {
			return nil, err
		}
		if data, err = insertPadding(plaintext, c.marker, pool); err != nil {
			return nil, err
		}
		defer Zeroize(data)
	}

	sched := deriveSchedule(c.schedule, c.prf, key1, key2, c.salt)
	defer Zeroize(sched.rotation)

	table, err := c.table(sched.seed)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(data))
	n := table.Size()
	err = parallelFor(len(data), minParallelChunk, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			v, ok := table.Index(data[i])
			if !ok {
				return newError(ErrCharacterNotInAlphabet, ErrCodeCharNotInAlphabet,
					fmt.Sprintf("byte 0x%02x at offset %d is not in the table", data[i], i))
			}
			row := int(key1[i%len(key1)]) % n
			col := int(key2[i%len(key2)]) % n
			s, err := table.At(row, col, v%n)
			if err != nil {
				return err
			}
			out[i] = s
		}
		return nil
	})
	if err != nil {
		Zeroize(out)
		return nil, err
	}

	keystream := deriveKey(c.prf, password, c.salt, c.iterations, KeyLength)
	XORKeystream(out, keystream)
	Zeroize(keystream)

	RotateLeft(out, sched.rotation)
	return out, nil
}

// Decrypt inverts Encrypt. Wrong keys or password produce ErrByteNotInTable
// only when a recovered byte falls outside the table alphabet; with the full
// byte alphabet they silently yield different plaintext.
func (c *Cipher) Decrypt(ciphertext, key1, key2, password []byte) ([]byte, error) {
	if err := c.checkKeys(key1, key2); err != nil {
		return nil, err
	}

	sched := deriveSchedule(c.schedule, c.prf, key1, key2, c.salt)
	defer Zeroize(sched.rotation)

	table, err := c.table(sched.seed)
	if err != nil {
		return nil, err
	}

	data := make([]byte, len(ciphertext))
	copy(data, ciphertext)
	RotateRight(data, sched.rotation)

	keystream := deriveKey(c.prf, password, c.salt, c.iterations, KeyLength)
	XORKeystream(data, keystream)
	Zeroize(keystream)

	n := table.Size()
	err = parallelFor(len(data), minParallelChunk, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			row, err := table.Row(int(key1[i%len(key1)])%n, int(key2[i%len(key2)])%n)
			if err != nil {
				return err
			}
			v := bytes.IndexByte(row, data[i])
			if v < 0 {
				return newError(ErrByteNotInTable, ErrCodeByteNotInTable,
					fmt.Sprintf("byte 0x%02x at offset %d is not in its table row", data[i], i))
			}
			data[i] = table.perm[v]
		}
		return nil
	})
	if err != nil {
		Zeroize(data)
		return nil, err
	}

	if c.padding {
		data = stripPadding(data, c.marker)
	}
	return data, nil
}

var (
	defaultCipherOnce sync.Once
	defaultCipher     *Cipher
	defaultCipherErr  error
)

func getDefaultCipher() (*Cipher, error) {
	defaultCipherOnce.Do(func() {
		defaultCipher, defaultCipherErr = NewCipher(nil)
	})
	return defaultCipher, defaultCipherErr
}

// Encrypt encrypts plaintext with the default cipher: full byte alphabet, no
// padding, keyed schedule and the host salt.
//
// The keyed schedule does not reproduce the byte-sum key condensation of
// earlier releases. Use NewCipher with Schedule: ChecksumSchedule to read or
// write that format.
//
// Example:
//
//	ct, err := nebula.Encrypt([]byte("hello"), key1, key2, []byte("password"))
//	if err != nil {
//		log.Fatal(err)
//	}
func Encrypt(plaintext, key1, key2, password []byte) ([]byte, error) {
	c, err := getDefaultCipher()
	if err != nil {
		return nil, err
	}
	return c.Encrypt(plaintext, key1, key2, password)
}

// Decrypt decrypts ciphertext produced by Encrypt on the same host.
func Decrypt(ciphertext, key1, key2, password []byte) ([]byte, error) {
	c, err := getDefaultCipher()
	if err != nil {
		return nil, err
	}
	return c.Decrypt(ciphertext, key1, key2, password)
}
