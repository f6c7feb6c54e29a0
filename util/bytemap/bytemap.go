// Package bytemap implements an allocation map with one byte of state per
// tracked slot. Some filesystems keep their free-space map at byte rather
// than bit granularity so the on-disk image is directly indexable; this type
// is that map, in memory, with the raw bytes exposed for persistence.
package bytemap

import "fmt"

// Free and Used are the only values a slot may hold on disk.
const (
	Free byte = 0
	Used byte = 1
)

// Map is a structure holding a byte-granularity allocation map
type Map struct {
	slots []byte
}

// New creates a map of n slots, all free.
func New(n int) *Map {
	if n < 0 {
		n = 0
	}
	return &Map{
		slots: make([]byte, n),
	}
}

// FromBytes creates a map from the raw on-disk bytes. Any nonzero byte is
// treated as used.
func FromBytes(b []byte) *Map {
	slots := make([]byte, len(b))
	copy(slots, b)
	m := Map{
		slots: slots,
	}
	return &m
}

// ToBytes returns raw bytes ready to be written to disk
func (m *Map) ToBytes() []byte {
	b := make([]byte, len(m.slots))
	copy(b, m.slots)
	return b
}

// Len returns the number of slots tracked.
func (m *Map) Len() int {
	return len(m.slots)
}

// IsSet reports whether a slot is allocated.
func (m *Map) IsSet(location int) (bool, error) {
	if location < 0 || location >= len(m.slots) {
		return false, fmt.Errorf("location %d is not in %d slot map", location, len(m.slots))
	}
	return m.slots[location] != Free, nil
}

// Set marks a slot allocated.
func (m *Map) Set(location int) error {
	if location < 0 || location >= len(m.slots) {
		return fmt.Errorf("location %d is not in %d slot map", location, len(m.slots))
	}
	m.slots[location] = Used
	return nil
}

// Clear marks a slot free.
func (m *Map) Clear(location int) error {
	if location < 0 || location >= len(m.slots) {
		return fmt.Errorf("location %d is not in %d slot map", location, len(m.slots))
	}
	m.slots[location] = Free
	return nil
}

// FirstFree returns the lowest free slot, or -1 if the map is full.
func (m *Map) FirstFree() int {
	for i, b := range m.slots {
		if b == Free {
			return i
		}
	}
	return -1
}

// CountSet returns the number of allocated slots.
func (m *Map) CountSet() int {
	count := 0
	for _, b := range m.slots {
		if b != Free {
			count++
		}
	}
	return count
}
