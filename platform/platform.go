// Package platform stands in for the boot/memory manager and scheduler
// that spec.md places out of scope ("external collaborators"): alloc_page,
// map_io, heap_alloc/free, sleep, get_system_time_ms, mutex primitives,
// IRQ enable/disable. A real EXOS kernel gets these from its own
// allocator and scheduler; this user-space simulation backs "physical"
// pages with real anonymous mmap regions (golang.org/x/sys/unix, the
// same syscall family go-ublk's queue runner uses to mmap the ublk
// descriptor ring) so driver code that writes into a "BAR" or "DMA
// buffer" is touching real, page-sized, independently addressed memory
// rather than a plain Go slice that the GC could move or coalesce.
package platform

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// PageSize is the simulated physical page size.
const PageSize = 4096

// AllocPage returns one zeroed, page-aligned, anonymously mapped page.
// Stands in for the kernel's physical page allocator.
func AllocPage() ([]byte, error) {
	return MapIO(0, PageSize)
}

// FreePage releases a page obtained from AllocPage or MapIO.
func FreePage(page []byte) error {
	if len(page) == 0 {
		return nil
	}
	return unix.Munmap(page)
}

// MapIO maps length bytes (rounded up to a page) and returns the mapped
// region. phys is accepted for signature parity with the kernel's
// map_io(phys, len) -> linear but is otherwise unused: there is no real
// physical address space to back here, only anonymous memory.
func MapIO(phys uintptr, length int) ([]byte, error) {
	_ = phys
	if length <= 0 {
		length = PageSize
	}
	rounded := ((length + PageSize - 1) / PageSize) * PageSize
	mem, err := unix.Mmap(-1, 0, rounded, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return mem[:length], nil
}

// HeapAlloc is a thin allocation helper standing in for the kernel heap
// allocator; real memory management is Go's GC, so this only exists to
// give driver code calling convention parity with the original source.
func HeapAlloc(size int) []byte {
	return make([]byte, size)
}

// HeapFree is a no-op placeholder; Go's GC reclaims the slice once
// unreferenced. Kept so call sites mirror the original alloc/free pairing.
func HeapFree(_ []byte) {}

// Sleep stands in for the scheduler's cooperative sleep(ms).
func Sleep(d time.Duration) {
	time.Sleep(d)
}

// NowMillis stands in for get_system_time_ms().
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Mutex is the scheduler mutex primitive; a thin alias so call sites read
// the way the original kernel's mutex acquire/release pairing does.
type Mutex = sync.Mutex

// IRQGuard disables (simulated) interrupts for the duration of a critical
// section, matching the ATA driver's "interrupts disabled around each
// physical access" invariant (spec.md §4.8). There is no real interrupt
// controller in user space; this just serializes callers through a
// package-level lock so concurrent simulated "IRQ work" cannot interleave
// with a guarded section.
type IRQGuard struct {
	mu sync.Mutex
}

// Enter disables IRQs (acquires the guard) and returns a function that
// re-enables them (releases the guard). Usage: defer g.Enter()().
func (g *IRQGuard) Enter() func() {
	g.mu.Lock()
	return g.mu.Unlock
}

// Deadline implements the bounded-spin pattern used throughout the driver
// layer: a loop-count ceiling paired with an elapsed-time check, timing
// out when either condition is met (spec.md §5, "Cancellation/timeouts").
type Deadline struct {
	maxIterations int
	until         time.Time
	iterations    int
}

// NewDeadline creates a bounded spin with both an iteration ceiling and a
// wall-clock timeout.
func NewDeadline(maxIterations int, timeout time.Duration) *Deadline {
	return &Deadline{maxIterations: maxIterations, until: time.Now().Add(timeout)}
}

// Tick records one loop iteration and reports whether the caller should
// give up: either bound being exceeded counts as expired.
func (d *Deadline) Tick() (expired bool) {
	d.iterations++
	if d.iterations >= d.maxIterations {
		return true
	}
	return time.Now().After(d.until)
}
