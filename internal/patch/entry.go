package patch

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	ErrNegativeOffset = errors.New("negative offset")
	ErrEmptyData      = errors.New("patch data is empty")
)

// Entry overwrites len(Data) bytes of the target starting at Offset.
type Entry struct {
	Offset int64
	Data   []byte
	// Optional note describing what the patch changes.
	Description string
	// Set when Data was encoded from a string, for display.
	Text string
}

// NewEntry returns an Entry writing a copy of data at offset.
func NewEntry(offset int64, data ...byte) Entry {
	return Entry{Offset: offset, Data: append([]byte(nil), data...)}
}

// Fill returns an Entry writing n copies of value at offset.
func Fill(offset int64, value byte, n int) Entry {
	if n < 0 {
		n = 0
	}
	return Entry{Offset: offset, Data: bytes.Repeat([]byte{value}, n)}
}

// Describe returns a copy of e with its description set to desc.
func (e Entry) Describe(desc string) Entry {
	e.Description = desc
	return e
}

// End returns the offset one past the last byte written by e.
func (e Entry) End() int64 {
	return e.Offset + int64(len(e.Data))
}

// Overlaps reports whether e and other write to at least one common byte.
func (e Entry) Overlaps(other Entry) bool {
	return e.Offset < other.End() && other.Offset < e.End()
}

func (e Entry) Validate() error {
	if e.Offset < 0 {
		return fmt.Errorf("entry at %#x: %w", e.Offset, ErrNegativeOffset)
	}
	if len(e.Data) == 0 {
		return fmt.Errorf("entry at %#x: %w", e.Offset, ErrEmptyData)
	}
	return nil
}

func (e Entry) String() string {
	if e.Description != "" {
		return fmt.Sprintf("%#x (%d bytes): %s", e.Offset, len(e.Data), e.Description)
	}
	return fmt.Sprintf("%#x (%d bytes)", e.Offset, len(e.Data))
}

// Set is an ordered list of entries applied in one run. Entries are applied in
// insertion order, so when two entries overlap the later one wins.
type Set struct {
	Name string
	// Exact size in bytes the target must have. Zero defers to the engine.
	ExpectedSize int64
	Entries      []Entry
}

// Add appends entries to the set, copying their data.
func (s *Set) Add(entries ...Entry) {
	for _, e := range entries {
		e.Data = append([]byte(nil), e.Data...)
		s.Entries = append(s.Entries, e)
	}
}

func (s *Set) Len() int {
	return len(s.Entries)
}

// Validate checks every entry in the set. Overlapping entries are allowed.
func (s *Set) Validate() error {
	var errs []error
	for i, e := range s.Entries {
		if err := e.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("patch %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Size returns the total number of bytes written by the set.
func (s *Set) Size() int {
	n := 0
	for _, e := range s.Entries {
		n += len(e.Data)
	}
	return n
}
