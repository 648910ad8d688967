// buffers.go: Scratch buffer pooling for key material and PRF blocks
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nebula

import (
	"sync"
)

var (
	// Size classes match the hot paths: PRF outputs (64), HMAC pad blocks (up
	// to 136) and the default derived key (512).
	prfScratchPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, PRFSize)
			return &buf
		},
	}

	blockScratchPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, 256)
			return &buf
		},
	}

	keyScratchPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, KeyLength)
			return &buf
		},
	}

	// Growable buffers for KDF block inputs (salt || counter)
	dynamicScratchPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, 0, 256)
			return &buf // pointer avoids an allocation on Put (SA6002)
		},
	}
)

func init() {
	WarmupScratch(4)
}

// getScratch returns a buffer of exactly size bytes from the matching size class.
func getScratch(size int) *[]byte {
	switch {
	case size <= PRFSize:
		buf := prfScratchPool.Get().(*[]byte)
		*buf = (*buf)[:size]
		return buf
	case size <= 256:
		buf := blockScratchPool.Get().(*[]byte)
		*buf = (*buf)[:size]
		return buf
	case size <= KeyLength:
		buf := keyScratchPool.Get().(*[]byte)
		*buf = (*buf)[:size]
		return buf
	default:
		buf := make([]byte, size)
		return &buf
	}
}

// clearBuffer zeroes buf. Long buffers are cleared eight bytes per step.
func clearBuffer(buf []byte) {
	if len(buf) <= 64 {
		for i := range buf {
			buf[i] = 0
		}
		return
	}

	i := 0
	for i < len(buf)-7 {
		buf[i] = 0
		buf[i+1] = 0
		buf[i+2] = 0
		buf[i+3] = 0
		buf[i+4] = 0
		buf[i+5] = 0
		buf[i+6] = 0
		buf[i+7] = 0
		i += 8
	}
	for i < len(buf) {
		buf[i] = 0
		i++
	}
}

// putScratch wipes the whole capacity of buf and returns it to its pool.
// Buffers that do not belong to a size class are wiped and dropped.
func putScratch(buf *[]byte) {
	if buf == nil {
		return
	}

	clearBuffer((*buf)[:cap(*buf)])

	switch cap(*buf) {
	case PRFSize:
		prfScratchPool.Put(buf)
	case 256:
		blockScratchPool.Put(buf)
	case KeyLength:
		keyScratchPool.Put(buf)
	}
}

// getDynamicScratch returns an empty growable buffer.
func getDynamicScratch() []byte {
	buf := dynamicScratchPool.Get().(*[]byte)
	return (*buf)[:0]
}

// putDynamicScratch wipes buf and returns it to the pool if its capacity is reasonable.
func putDynamicScratch(buf []byte) {
	bufCap := cap(buf)
	if bufCap == 0 {
		return
	}

	clearBuffer(buf[:bufCap])

	if bufCap <= 4*1024 && bufCap >= 128 {
		dynamicScratchPool.Put(&buf)
	}
}

// WarmupScratch pre allocates count buffers in every scratch pool.
func WarmupScratch(count int) {
	prfBufs := make([]*[]byte, count)
	blockBufs := make([]*[]byte, count)
	keyBufs := make([]*[]byte, count)
	dynamicBufs := make([][]byte, count)

	for i := 0; i < count; i++ {
		prfBufs[i] = getScratch(PRFSize)
		blockBufs[i] = getScratch(256)
		keyBufs[i] = getScratch(KeyLength)
		dynamicBufs[i] = getDynamicScratch()
	}

	for i := 0; i < count; i++ {
		putScratch(prfBufs[i])
		putScratch(blockBufs[i])
		putScratch(keyBufs[i])
		putDynamicScratch(dynamicBufs[i])
	}
}
