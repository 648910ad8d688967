// commands.go: nebula subcommands.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	goerrors "github.com/agilira/go-errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/agilira/nebula"
)

// selfTestAttempts bounds retries of the statistical pool check.
const selfTestAttempts = 3

func (a *app) poolParams() *nebula.PoolParams {
	return &nebula.PoolParams{
		MaxPoolSize:       a.cfg.Pool.MaxPoolSize,
		ReseedThreshold:   a.cfg.Pool.ReseedThreshold,
		MaxReseedInterval: a.cfg.Pool.MaxReseedInterval,
		Logger:            a.log,
	}
}

func (a *app) newCipher() (*nebula.Cipher, error) {
	prf, ok := nebula.PRFByName(a.cfg.Cipher.PRF)
	if !ok {
		return nil, fmt.Errorf("unknown prf %q", a.cfg.Cipher.PRF)
	}
	schedule, ok := nebula.ParseKeySchedule(a.cfg.Cipher.Schedule)
	if !ok {
		return nil, fmt.Errorf("unknown key schedule %q", a.cfg.Cipher.Schedule)
	}

	cc := &nebula.CipherConfig{
		Padding:    a.cfg.Cipher.Padding,
		Iterations: a.cfg.Cipher.Iterations,
		Schedule:   schedule,
		PRF:        prf,
		Logger:     a.log,
	}
	if a.cfg.Cipher.Salt != "" {
		cc.Salt = nebula.StaticSalt(a.cfg.Cipher.Salt)
	}
	if cc.Padding {
		params := a.poolParams()
		params.PRF = prf
		pool, err := nebula.NewSecuredPool(params)
		if err != nil {
			return nil, err
		}
		cc.Pool = pool
	}
	return nebula.NewCipher(cc)
}

// cipherFlags are shared by encrypt and decrypt.
type cipherFlags struct {
	*pflag.FlagSet

	input    string
	output   string
	key1     string
	key2     string
	password string
}

func newCipherFlags(name string) *cipherFlags {
	f := &cipherFlags{FlagSet: pflag.NewFlagSet(name, pflag.ContinueOnError)}
	f.StringVarP(&f.input, "input", "i", "", "Input file (default stdin)")
	f.StringVarP(&f.output, "output", "o", "", "Output file (default stdout)")
	f.StringVar(&f.key1, "key1", "", "File holding the first substitution key")
	f.StringVar(&f.key2, "key2", "", "File holding the second substitution key")
	f.StringVarP(&f.password, "password", "p", "", "Password (default $NEBULA_PASSWORD)")
	return f
}

func (f *cipherFlags) keys() (key1, key2 []byte, err error) {
	if f.key1 == "" || f.key2 == "" {
		return nil, nil, errors.New("--key1 and --key2 are required")
	}
	if key1, err = os.ReadFile(f.key1); err != nil {
		return nil, nil, goerrors.Wrap(err, "KEY_READ_ERROR", "cannot read key1")
	}
	if key2, err = os.ReadFile(f.key2); err != nil {
		nebula.Zeroize(key1)
		return nil, nil, goerrors.Wrap(err, "KEY_READ_ERROR", "cannot read key2")
	}
	return key1, key2, nil
}

func (f *cipherFlags) open(a *app) (io.ReadCloser, io.WriteCloser, error) {
	var in io.ReadCloser = os.Stdin
	var out io.WriteCloser = nopCloser{a.stdout}

	if f.input != "" {
		file, err := os.Open(f.input)
		if err != nil {
			return nil, nil, err
		}
		in = file
	}
	if f.output != "" {
		file, err := os.OpenFile(f.output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			in.Close()
			return nil, nil, err
		}
		out = file
	}
	return in, out, nil
}

// closeOutput closes out and reports its error unless err is already set.
// A file on --output may only fail its final write on close.
func closeOutput(out io.Closer, err *error) {
	if cerr := out.Close(); cerr != nil && *err == nil {
		*err = goerrors.Wrap(cerr, "OUTPUT_CLOSE_ERROR", "cannot close output")
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func (a *app) password(flagValue string) []byte {
	if flagValue != "" {
		return []byte(flagValue)
	}
	if a.cfg.Password == "" {
		a.log.Warn("no password given, the keystream is derived from an empty password")
	}
	return []byte(a.cfg.Password)
}

func runEncrypt(a *app, args []string) (err error) {
	f := newCipherFlags("encrypt")
	if err := f.Parse(args); err != nil {
		return err
	}

	key1, key2, err := f.keys()
	if err != nil {
		return err
	}
	defer nebula.Zeroize(key1)
	defer nebula.Zeroize(key2)

	c, err := a.newCipher()
	if err != nil {
		return err
	}

	in, out, err := f.open(a)
	if err != nil {
		return err
	}
	defer in.Close()
	defer closeOutput(out, &err)

	pw := a.password(f.password)
	defer nebula.Zeroize(pw)

	enc, err := nebula.NewStreamEncryptorWithChunkSize(out, c, key1, key2, pw, a.cfg.Cipher.ChunkSize)
	if err != nil {
		return err
	}
	n, err := io.Copy(enc, in)
	if err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}

	a.log.WithFields(logrus.Fields{
		"bytes":    n,
		"key1":     nebula.GetKeyFingerprint(key1),
		"key2":     nebula.GetKeyFingerprint(key2),
		"schedule": a.cfg.Cipher.Schedule,
	}).Info("encrypted")
	return nil
}

func runDecrypt(a *app, args []string) (err error) {
	f := newCipherFlags("decrypt")
	if err := f.Parse(args); err != nil {
		return err
	}

	key1, key2, err := f.keys()
	if err != nil {
		return err
	}
	defer nebula.Zeroize(key1)
	defer nebula.Zeroize(key2)

	c, err := a.newCipher()
	if err != nil {
		return err
	}

	in, out, err := f.open(a)
	if err != nil {
		return err
	}
	defer in.Close()
	defer closeOutput(out, &err)

	pw := a.password(f.password)
	defer nebula.Zeroize(pw)

	dec, err := nebula.NewStreamDecryptor(in, c, key1, key2, pw)
	if err != nil {
		return err
	}
	defer dec.Close()

	n, err := io.Copy(out, dec)
	if err != nil {
		return err
	}

	a.log.WithField("bytes", n).Info("decrypted")
	return nil
}

func runDerive(a *app, args []string) error {
	flags := pflag.NewFlagSet("derive", pflag.ContinueOnError)
	password := flags.StringP("password", "p", "", "Password (default $NEBULA_PASSWORD)")
	salt := flags.StringP("salt", "s", "", "Salt (default: configured or host salt)")
	iterations := flags.IntP("iterations", "n", 0, "Iterations (default: configured)")
	length := flags.IntP("length", "l", nebula.KeyLength, "Output length in bytes")
	if err := flags.Parse(args); err != nil {
		return err
	}

	prf, ok := nebula.PRFByName(a.cfg.Cipher.PRF)
	if !ok {
		return fmt.Errorf("unknown prf %q", a.cfg.Cipher.PRF)
	}

	saltValue := []byte(*salt)
	if *salt == "" {
		var provider nebula.SaltProvider = nebula.HostSalt()
		if a.cfg.Cipher.Salt != "" {
			provider = nebula.StaticSalt(a.cfg.Cipher.Salt)
		}
		var err error
		if saltValue, err = provider.Salt(); err != nil {
			return err
		}
	}

	it := *iterations
	if it <= 0 {
		it = a.cfg.Cipher.Iterations
	}

	pw := a.password(*password)
	defer nebula.Zeroize(pw)

	key, err := nebula.DeriveKeyWithParams(pw, saltValue, &nebula.KDFParams{PRF: prf, Iterations: it, KeyLen: *length})
	if err != nil {
		return err
	}
	defer nebula.Zeroize(key)

	_, err = fmt.Fprintln(a.stdout, nebula.KeyToHex(key))
	return err
}

func runSelfTest(a *app, args []string) error {
	flags := pflag.NewFlagSet("selftest", pflag.ContinueOnError)
	size := flags.IntP("bytes", "b", nebula.DefaultSelfTestBytes, "Bytes drawn per check")
	if err := flags.Parse(args); err != nil {
		return err
	}

	pool, err := nebula.NewSecuredPool(a.poolParams())
	if err != nil {
		return err
	}

	for attempt := 1; attempt <= selfTestAttempts; attempt++ {
		err = pool.SelfTest(*size)
		if err == nil {
			_, err = fmt.Fprintf(a.stdout, "ok: monobit check passed on attempt %d\n", attempt)
			return err
		}
		a.log.WithError(err).WithField("attempt", attempt).Warn("self test failed")
	}
	return err
}

func runKeygen(a *app, args []string) error {
	flags := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
	output := flags.StringP("output", "o", "", "Key file to write (required)")
	size := flags.IntP("size", "n", 64, "Key size in bytes")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *output == "" {
		return errors.New("--output is required")
	}

	pool, err := nebula.NewSecuredPool(a.poolParams())
	if err != nil {
		return err
	}
	key, err := nebula.GenerateKey(pool, *size)
	if err != nil {
		return err
	}
	defer nebula.Zeroize(key)

	if err := os.WriteFile(*output, key, 0o600); err != nil {
		return err
	}
	a.log.WithField("fingerprint", nebula.GetKeyFingerprint(key)).Info("key written")
	return nil
}
