// Copyright © 2017 Kent Gibson <warthog618@gmail.com>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build linux
// +build linux

package gpio

import (
	"bytes"
	"errors"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Chipset identifies the GPIO controller.
type Chipset int

const (
	// BCM2835 indicates the chipset is BCM2835 or compatible.
	BCM2835 Chipset = iota
	// BCM2711 indicates the chipset is BCM2711, as found on the Pi 4.
	BCM2711
)

// Arrays for 8 / 32 bit access to memory and a semaphore for write locking
var (
	// The memlock covers read/modify/write access to the mem block.
	// Individual reads and writes can skip the lock on the assumption that
	// concurrent register writes are atomic. e.g. Read, Write and Mode.
	memlock sync.Mutex
	mem     []uint32
	mem8    []uint8
	chipset Chipset
)

// Paths overridden in tests.
var (
	memPath        = "/dev/gpiomem"
	compatiblePath = "/proc/device-tree/compatible"
)

// Open memory maps the GPIO registers from /dev/gpiomem and identifies the
// chipset.
func Open() (err error) {
	if len(mem) != 0 {
		return ErrAlreadyOpen
	}
	file, err := os.OpenFile(memPath, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return
	}
	defer file.Close()

	memlock.Lock()
	defer memlock.Unlock()

	mem8, err = unix.Mmap(
		int(file.Fd()),
		0,
		memLength,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED)
	if err != nil {
		return
	}
	// 32 bit register view of the mapped bytes
	mem = unsafe.Slice((*uint32)(unsafe.Pointer(&mem8[0])), len(mem8)/4)
	chipset = detectChipset(compatiblePath)
	return nil
}

// Close unmaps GPIO memory.
func Close() error {
	memlock.Lock()
	defer memlock.Unlock()
	if len(mem8) == 0 {
		return nil
	}
	mem = nil
	err := unix.Munmap(mem8)
	mem8 = nil
	return err
}

// Chip returns the chipset identified by Open.
func Chip() Chipset {
	return chipset
}

// detectChipset identifies the chipset from the device tree compatible
// strings, defaulting to BCM2835.
func detectChipset(path string) Chipset {
	b, err := os.ReadFile(path)
	if err != nil {
		return BCM2835
	}
	for _, c := range bytes.Split(b, []byte{0}) {
		if bytes.Equal(c, []byte("brcm,bcm2711")) {
			return BCM2711
		}
	}
	return BCM2835
}

var (
	// ErrAlreadyOpen indicates the mem is already open.
	ErrAlreadyOpen = errors.New("already open")
)
