package procsched

import (
	"fmt"
)

// Handle identifies a process spawned by a Scheduler. It encodes the slot
// the process occupies and the slot's generation at spawn time, and is live
// only while that generation is current, see Scheduler.IsActive.
//
// The zero value is the invalid handle, returned by failed spawns. Handles
// are comparable, and safe to copy.
type Handle struct {
	index      uint32
	generation uint32
	segment    Segment
}

// Valid returns true if the handle was issued by a successful spawn. It says
// nothing about whether the process is still running.
func (x Handle) Valid() bool { return x.generation != 0 }

// Segment returns the segment the process was spawned into.
func (x Handle) Segment() Segment { return x.segment }

func (x Handle) String() string {
	if !x.Valid() {
		return `handle(invalid)`
	}
	return fmt.Sprintf(`handle(%s:%d#%d)`, x.segment, x.index, x.generation)
}
