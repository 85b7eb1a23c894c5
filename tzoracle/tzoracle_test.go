package tzoracle

import (
	"testing"

	"github.com/earlchew/crontime/tzif"
)

// synthetic builds a minimal two-type V2 TZif file switching once from
// standard to daylight time, for exercising newZone without touching
// the filesystem.
func synthetic() tzif.File {
	ltt := []tzif.LocalTimeTypeRecord{
		{Utoff: -8 * 3600, Dst: false, Idx: 0},
		{Utoff: -7 * 3600, Dst: true, Idx: 0},
	}
	return tzif.File{
		Version: tzif.V2,
		V2Data: tzif.V2DataBlock{
			TransitionTimes:     []int64{1000},
			TransitionTypes:     []uint8{1},
			LocalTimeTypeRecord: ltt,
			TimeZoneDesignation: []byte{0},
		},
	}
}

func TestNewZoneTransitions(t *testing.T) {
	z, err := newZone("Test/Zone", synthetic())
	if err != nil {
		t.Fatalf("newZone() error = %v", err)
	}

	prev, begin, end := z.Transitions(500)
	if begin.Offset != -8*3600 {
		t.Errorf("before transition: begin.Offset = %d, want %d", begin.Offset, -8*3600)
	}
	if prev.Offset != begin.Offset {
		t.Errorf("before the first transition, prev should equal begin")
	}
	if end.At != 1000 || end.Offset != -7*3600 {
		t.Errorf("end = %+v, want At=1000 Offset=%d", end, -7*3600)
	}

	prev, begin, end = z.Transitions(1500)
	if begin.At != 1000 || begin.Offset != -7*3600 {
		t.Errorf("after transition: begin = %+v", begin)
	}
	if prev.Offset != -8*3600 {
		t.Errorf("after transition: prev.Offset = %d, want %d", prev.Offset, -8*3600)
	}
	if end != begin {
		t.Errorf("with no further transitions, end should repeat begin, got %+v vs %+v", end, begin)
	}
}

func TestNewZoneNoTypes(t *testing.T) {
	if _, err := newZone("Empty", tzif.File{}); err == nil {
		t.Errorf("newZone() with no local time types: want error")
	}
}
