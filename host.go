// host.go: System backed entropy source, host salt and hardware address provider.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nebula

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
	"lukechampine.com/uint128"
)

// SystemEntropySource samples volatile host state: wall clock nanoseconds,
// process id, memory totals, swap, logical CPU count, summed per process read
// bytes, uptime, boot time and network counters.
//
// It fails with ErrEntropySourceUnavailable when memory statistics cannot be
// read or when no process reports any read I/O, which happens in restricted
// sandboxes.
type SystemEntropySource struct{}

// Sample implements EntropySource.
func (SystemEntropySource) Sample() (EntropySample, error) {
	var s EntropySample

	vm, err := mem.VirtualMemory()
	if err != nil {
		return s, wrapError(ErrEntropySourceUnavailable, err, ErrCodeEntropy, "failed to read memory statistics")
	}

	var swapTotal uint64
	if sw, err := mem.SwapMemory(); err == nil {
		swapTotal = sw.Total
	}

	cpus, err := cpu.Counts(true)
	if err != nil || cpus <= 0 {
		cpus = cpuid.CPU.LogicalCores
	}

	diskRead := processReadBytes()
	if diskRead.IsZero() {
		return s, newError(ErrEntropySourceUnavailable, ErrCodeEntropy, "no process reported disk reads")
	}

	uptime, _ := host.Uptime()
	bootTime, _ := host.BootTime()

	s[0] = uint128.From64(uint64(time.Now().UnixNano())) // #nosec G115 -- post-1970 clock
	s[1] = uint128.From64(uint64(os.Getpid()))           // #nosec G115 -- pids are positive
	s[2] = uint128.From64(vm.Total)
	s[3] = uint128.From64(vm.Used)
	s[4] = uint128.From64(swapTotal)
	s[5] = uint128.From64(uint64(cpus)) // #nosec G115 -- non-negative count
	s[6] = diskRead
	s[7] = uint128.From64(uptime)
	s[8] = uint128.From64(bootTime)
	s[9] = networkActivity()

	return s, nil
}

// processReadBytes sums the read byte counters of every visible process.
// Processes that cannot be inspected are skipped.
func processReadBytes() uint128.Uint128 {
	var total uint128.Uint128

	procs, err := process.Processes()
	if err != nil {
		return total
	}
	for _, p := range procs {
		ioc, err := p.IOCounters()
		if err != nil || ioc == nil {
			continue
		}
		total = total.AddWrap64(ioc.ReadBytes)
	}
	return total
}

// networkActivity sums traffic, packet and error counters over all interfaces.
func networkActivity() uint128.Uint128 {
	var total uint128.Uint128

	counters, err := psnet.IOCounters(true)
	if err != nil {
		return total
	}
	for _, c := range counters {
		for _, v := range []uint64{c.BytesRecv, c.BytesSent, c.PacketsRecv, c.PacketsSent, c.Errin, c.Errout, c.Dropin, c.Dropout} {
			total = total.AddWrap64(v)
		}
	}
	return total
}

type hostSalt struct {
	once sync.Once
	salt []byte
}

var defaultHostSalt = &hostSalt{}

// HostSalt returns the SaltProvider bound to this machine: the concatenation
// of OS, hostname, platform, kernel version and CPU brand. Components that
// cannot be read are left empty, so the salt degrades towards a constant on
// locked down hosts. The value is computed once per process and never fails.
//
// Ciphertext produced with the host salt decrypts only on a host that reports
// the same identity.
func HostSalt() SaltProvider {
	return defaultHostSalt
}

// Salt implements SaltProvider.
func (h *hostSalt) Salt() ([]byte, error) {
	h.once.Do(func() {
		var parts []string
		if info, err := host.Info(); err == nil && info != nil {
			parts = append(parts, info.OS, info.Hostname, info.Platform, info.KernelVersion)
		}
		parts = append(parts, strings.TrimSpace(cpuid.CPU.BrandName))
		h.salt = []byte(strings.Join(parts, ""))
	})
	return StaticSalt(h.salt).Salt()
}

// SystemMAC reports the first non-loopback interface with a hardware address.
type SystemMAC struct{}

// HardwareAddr implements MACProvider.
func (SystemMAC) HardwareAddr() (string, error) {
	ifaces, err := psnet.Interfaces()
	if err != nil {
		return "", wrapError(ErrNoAddressFound, err, ErrCodeNoAddress, "failed to list network interfaces")
	}
	for _, iface := range ifaces {
		if iface.HardwareAddr == "" || isLoopback(iface.Flags) {
			continue
		}
		return iface.HardwareAddr, nil
	}
	return "", newError(ErrNoAddressFound, ErrCodeNoAddress, "no interface with a hardware address")
}

func isLoopback(flags []string) bool {
	for _, f := range flags {
		if f == "loopback" {
			return true
		}
	}
	return false
}
