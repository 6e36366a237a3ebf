//go:build linux

// File: core/buffer/alloc_linux.go
//
// Linux backing-store allocator for pooled buffers. Buffers large enough to
// benefit from it are mapped with MAP_HUGETLB (2 MiB pages) to cut TLB
// pressure on the hot write/read path; smaller buffers and any hugepage
// allocation failure fall back to the Go heap. This mirrors
// pool/bufferpool_linux.go's allocation strategy in the teacher repository,
// narrowed from a NUMA-aware slab allocator down to the single backing-store
// call this package needs.

package buffer

import "syscall"

const hugePageSize = 2 << 20 // 2 MiB

// allocBacking returns a slice of exactly size bytes and whether it was
// obtained via mmap (and therefore must be released with munmap, never left
// to the GC).
func allocBacking(size Size) ([]byte, bool) {
	if size <= 0 {
		return make([]byte, 0), false
	}
	if size < hugePageSize {
		return make([]byte, size), false
	}
	length := ((size + hugePageSize - 1) / hugePageSize) * hugePageSize
	data, err := syscall.Mmap(-1, 0, length,
		syscall.PROT_READ|syscall.PROT_WRITE,
		syscall.MAP_ANONYMOUS|syscall.MAP_PRIVATE|syscall.MAP_HUGETLB)
	if err != nil {
		return make([]byte, size), false
	}
	return data[:size], true
}

func freeBacking(data []byte, mmapped bool) {
	if !mmapped || data == nil {
		return
	}
	_ = syscall.Munmap(data[:cap(data)])
}
