package pkg

import (
	"strconv"
	"sync"
)

// AllocationLedger records the target names handed out during one batch run.
// It starts empty for every run and only grows. A single ledger may be shared
// by concurrent callers; each Allocate call is atomic with respect to the others.
type AllocationLedger struct {
	mu     sync.Mutex
	taken  map[string]struct{}
	counts map[string]int
}

// NewAllocationLedger returns an empty ledger for a new run.
func NewAllocationLedger() *AllocationLedger {
	return &AllocationLedger{
		taken:  make(map[string]struct{}),
		counts: make(map[string]int),
	}
}

// Allocate picks a unique target name for a file whose timestamp-derived stem is
// baseName. It tries baseName+ext first and then baseName_1+ext, baseName_2+ext, ...
// until a name is found that neither this ledger nor existsOnDisk reports as
// taken. The chosen name is recorded before Allocate returns.
//
// The ledger lock is held across the existsOnDisk calls, so no other
// allocation can interleave between the check and the record.
func (l *AllocationLedger) Allocate(baseName, ext string, existsOnDisk func(name string) bool) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	candidate := baseName + ext
	for i := 1; l.isTaken(candidate, existsOnDisk); i++ {
		candidate = baseName + "_" + strconv.Itoa(i) + ext
	}

	l.taken[candidate] = struct{}{}
	l.counts[baseName]++
	return candidate
}

func (l *AllocationLedger) isTaken(name string, existsOnDisk func(string) bool) bool {
	if _, ok := l.taken[name]; ok {
		return true
	}
	return existsOnDisk != nil && existsOnDisk(name)
}

// Count returns how many names have been allocated from baseName in this run.
func (l *AllocationLedger) Count(baseName string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[baseName]
}

// Allocated reports whether name has already been handed out in this run.
func (l *AllocationLedger) Allocated(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.taken[name]
	return ok
}

// Len returns the total number of names allocated in this run.
func (l *AllocationLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.taken)
}
