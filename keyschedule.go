// keyschedule.go: Table seed and rotation key derivation from the two cipher keys.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nebula

import (
	"encoding/binary"

	"lukechampine.com/uint128"
)

// KeySchedule selects how the two cipher keys are condensed into the table
// seed and the rotation key.
type KeySchedule int

const (
	// KeyedSchedule condenses the keys with HMAC(key1, key2). Any change to
	// either key changes the seed with overwhelming probability.
	KeyedSchedule KeySchedule = iota

	// ChecksumSchedule uses the byte sums of the keys. It is kept for
	// compatibility with data encrypted by earlier releases; keys with equal
	// byte sums share a table.
	ChecksumSchedule
)

// String returns the schedule name.
func (s KeySchedule) String() string {
	switch s {
	case KeyedSchedule:
		return "keyed"
	case ChecksumSchedule:
		return "checksum"
	default:
		return "unknown"
	}
}

// ParseKeySchedule maps a schedule name back to its value.
func ParseKeySchedule(name string) (KeySchedule, bool) {
	switch name {
	case "keyed", "":
		return KeyedSchedule, true
	case "checksum":
		return ChecksumSchedule, true
	default:
		return KeyedSchedule, false
	}
}

// keySchedule is the per key pair material shared by both cipher directions.
type keySchedule struct {
	seed     uint64
	rotation []byte
}

// condensedKeys holds the integers the two keys are condensed into.
type condensedKeys struct {
	val1, val2 uint64
	seed       uint64
	product    uint128.Uint128
}

// condenseKeys reduces key1 and key2 to the schedule integers. The keyed
// schedule takes them from HMAC(key1, key2); the checksum schedule uses the
// byte sums.
func condenseKeys(kind KeySchedule, prf PRF, key1, key2 []byte) condensedKeys {
	var k condensedKeys
	switch kind {
	case ChecksumSchedule:
		k.val1 = byteSum(key2)
		k.val2 = byteSum(key1)
		k.product = uint128.From64(k.val1).MulWrap64(k.val2)
		k.seed = k.product.Lo
	default:
		d := HMAC(prf, key1, key2)
		k.val1 = binary.BigEndian.Uint64(d[0:8])
		k.val2 = binary.BigEndian.Uint64(d[8:16])
		k.seed = binary.BigEndian.Uint64(d[16:24])
		k.product = uint128.From64(k.val1).MulWrap64(k.val2)
		Zeroize(d)
	}
	return k
}

// deriveTableSeed returns only the table seed, skipping the rotation KDF.
func deriveTableSeed(kind KeySchedule, prf PRF, key1, key2 []byte) uint64 {
	return condenseKeys(kind, prf, key1, key2).seed
}

// deriveSchedule computes the table seed and the rotation key vz.
//
// vz = KDF(be128(val1+val2) || be128(val1*val2) || be128(val1 mod val2) ||
// be128(product) || be128(|val1-val2|), salt, KeyScheduleIterations), where
// the modulo term is zero when val2 is zero.
func deriveSchedule(kind KeySchedule, prf PRF, key1, key2, salt []byte) keySchedule {
	k := condenseKeys(kind, prf, key1, key2)
	val1, val2 := k.val1, k.val2

	var mod uint64
	if val2 != 0 {
		mod = val1 % val2
	}
	diff := val1 - val2
	if val2 > val1 {
		diff = val2 - val1
	}

	terms := [5]uint128.Uint128{
		uint128.From64(val1).AddWrap64(val2),
		uint128.From64(val1).MulWrap64(val2),
		uint128.From64(mod),
		k.product,
		uint128.From64(diff),
	}
	ctx := make([]byte, 16*len(terms))
	for i, v := range terms {
		v.PutBytesBE(ctx[16*i:])
	}

	rotation := deriveKey(prf, ctx, salt, KeyScheduleIterations, KeyLength)
	Zeroize(ctx)

	return keySchedule{seed: k.seed, rotation: rotation}
}

func byteSum(b []byte) uint64 {
	var sum uint64
	for _, v := range b {
		sum += uint64(v)
	}
	return sum
}
