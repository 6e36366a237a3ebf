//go:build windows

// File: core/buffer/alloc_windows.go
//
// Windows backing-store allocator for pooled buffers, using VirtualAlloc via
// golang.org/x/sys/windows exactly as pool/bufferpool_windows.go does in the
// teacher repository, narrowed to the single backing-store call this
// package needs (no per-NUMA-node channel bookkeeping, which belongs to
// pool.BufferPool, not the raw allocator).

package buffer

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kernel32         = windows.NewLazySystemDLL("kernel32.dll")
	procVirtualAlloc = kernel32.NewProc("VirtualAlloc")
	procVirtualFree  = kernel32.NewProc("VirtualFree")
)

const (
	memCommit  = 0x1000
	memReserve = 0x2000
	memRelease = 0x8000
	pageRW     = 0x04
)

// allocBacking returns a slice of exactly size bytes and whether it was
// obtained via VirtualAlloc (and therefore must be released with
// VirtualFree, never left to the GC).
func allocBacking(size Size) ([]byte, bool) {
	if size <= 0 {
		return make([]byte, 0), false
	}
	addr, _, _ := procVirtualAlloc.Call(0, uintptr(size), memCommit|memReserve, pageRW)
	if addr == 0 {
		return make([]byte, size), false
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), true
}

func freeBacking(data []byte, mmapped bool) {
	if !mmapped || data == nil || len(data) == 0 {
		return
	}
	addr := uintptr(unsafe.Pointer(&data[0]))
	_, _, _ = procVirtualFree.Call(addr, 0, memRelease)
}
