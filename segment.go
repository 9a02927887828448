package procsched

import (
	"fmt"
	"strings"
)

// Segment identifies an independent scheduling domain. Each segment has its
// own clock, advanced only by Scheduler.Tick, and its own process table.
// A process lives in exactly one segment, for its entire life.
type Segment uint8

const (
	// SegmentUpdate is the primary, per-frame segment, and the default
	// target of Scheduler.Spawn.
	SegmentUpdate Segment = iota

	// SegmentFixedUpdate is intended to be ticked at a fixed step, e.g. for
	// simulation or physics, independently of the frame rate.
	SegmentFixedUpdate

	// SegmentLateUpdate is intended to be ticked after SegmentUpdate, within
	// the same frame.
	SegmentLateUpdate

	// SegmentLazy is intended for background work, ticked at a low rate.
	SegmentLazy

	numSegments
)

var segmentNames = [numSegments]string{
	SegmentUpdate:      `update`,
	SegmentFixedUpdate: `fixed_update`,
	SegmentLateUpdate:  `late_update`,
	SegmentLazy:        `lazy`,
}

// Segments returns all valid segments, in tick order.
func Segments() []Segment {
	return []Segment{SegmentFixedUpdate, SegmentUpdate, SegmentLateUpdate, SegmentLazy}
}

// ParseSegment parses the value returned by Segment.String, ignoring case.
func ParseSegment(s string) (Segment, error) {
	for i, name := range segmentNames {
		if strings.EqualFold(s, name) {
			return Segment(i), nil
		}
	}
	return 0, fmt.Errorf(`%w: %q`, ErrInvalidSegment, s)
}

// Valid returns true if the segment is one of the defined constants.
func (x Segment) Valid() bool { return x < numSegments }

func (x Segment) String() string {
	if x.Valid() {
		return segmentNames[x]
	}
	return fmt.Sprintf(`segment(%d)`, uint8(x))
}
