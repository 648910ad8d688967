// host_test.go: Tests for the host backed providers
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nebula_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agilira/nebula"
)

// TestSystemEntropySource samples the host, skipping where counters are hidden.
func TestSystemEntropySource(t *testing.T) {
	sample, err := nebula.SystemEntropySource{}.Sample()
	if errors.Is(err, nebula.ErrEntropySourceUnavailable) {
		t.Skipf("host counters unavailable: %v", err)
	}
	require.NoError(t, err)

	assert.False(t, sample[0].IsZero(), "timestamp word must be set")
	assert.False(t, sample[2].IsZero(), "memory total must be set")
	assert.False(t, sample[6].IsZero(), "disk reads must be non-zero")

	pool, err := nebula.NewSecuredPool(nil)
	require.NoError(t, err)
	assert.Len(t, pool.RandomBytes(32), 32)
}

// TestHostSalt verifies the host salt is stable and copied on every call.
func TestHostSalt(t *testing.T) {
	a, err := nebula.HostSalt().Salt()
	require.NoError(t, err)
	b, err := nebula.HostSalt().Salt()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	if len(a) > 0 {
		a[0] ^= 0xFF
		c, _ := nebula.HostSalt().Salt()
		assert.Equal(t, b, c, "callers must not be able to modify the cached salt")
	}
}

// TestSystemMAC checks the hardware address lookup when the host has one.
func TestSystemMAC(t *testing.T) {
	addr, err := nebula.SystemMAC{}.HardwareAddr()
	if err != nil {
		assert.True(t, errors.Is(err, nebula.ErrNoAddressFound))
		t.Skipf("no hardware address: %v", err)
	}
	assert.NotEmpty(t, addr)

	key, err := nebula.HostKey(nebula.SystemMAC{}, []byte("salt"))
	require.NoError(t, err)
	assert.Len(t, key, nebula.KeyLength)
}
