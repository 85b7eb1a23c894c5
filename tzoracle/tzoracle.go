// Package tzoracle answers the transition oracle queries a civil time
// computation needs: given a UTC instant, what is the UTC offset
// boundary in effect around it, and when did (or will) it change.
//
// Zone decodes the TZif binary format compiled for the ambient time
// zone using tzif.DecodeFile, this module's TZif codec. This keeps the
// oracle honest:
// it answers from the same transition table the system's own C library
// would consult, rather than reimplementing a second source of truth.
package tzoracle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/earlchew/crontime/civiltime"
	"github.com/earlchew/crontime/tzif"
)

// ErrNoTransitions is returned by Load when the named zone's TZif data
// contains no local time type records at all.
var ErrNoTransitions = errors.New("tzoracle: zone has no local time types")

// Boundary is a single point where the UTC offset in effect changes.
// It is an alias for civiltime.Boundary so that *Zone satisfies
// civiltime.Oracle without either package needing to know about the
// other's concrete type.
type Boundary = civiltime.Boundary

// Zone is a compiled transition table for a single time zone.
type Zone struct {
	name       string
	boundaries []Boundary // ascending by At; boundaries[0].At is a sentinel far in the past
}

// Transitions returns the boundary immediately preceding t (prev), the
// boundary in effect at t (begin), and the next boundary strictly after
// t (end). If t precedes every recorded transition, prev and begin
// coincide with the earliest known boundary. If t is at or after the
// last recorded transition, end repeats begin (the offset is assumed to
// hold indefinitely).
func (z *Zone) Transitions(t int64) (prev, begin, end Boundary) {
	// boundaries[i].At <= t < boundaries[i+1].At identifies i.
	i := sort.Search(len(z.boundaries), func(i int) bool {
		return z.boundaries[i].At > t
	}) - 1
	if i < 0 {
		i = 0
	}

	begin = z.boundaries[i]
	if i > 0 {
		prev = z.boundaries[i-1]
	} else {
		prev = begin
	}
	if i+1 < len(z.boundaries) {
		end = z.boundaries[i+1]
	} else {
		end = begin
	}
	return prev, begin, end
}

// Name returns the zone name Zone was loaded with.
func (z *Zone) Name() string { return z.name }

// Load reads and compiles the TZif data for the named zone (e.g.
// "America/Los_Angeles") from the system zoneinfo tree.
func Load(name string) (*Zone, error) {
	path, err := findZoneinfo(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tzoracle: open %s: %w", path, err)
	}
	defer f.Close()

	file, err := tzif.DecodeFile(f)
	if err != nil {
		return nil, fmt.Errorf("tzoracle: decode %s: %w", path, err)
	}

	return newZone(name, file)
}

// LoadAmbient loads the zone named by the TZ environment variable, or
// the system default zone if TZ is unset or empty.
func LoadAmbient() (*Zone, error) {
	name := os.Getenv("TZ")
	if name == "" {
		name = ambientZoneName()
	}
	return Load(name)
}

func newZone(name string, file tzif.File) (*Zone, error) {
	ltt, transitions, indices := file.V2Data.LocalTimeTypeRecord, file.V2Data.TransitionTimes, file.V2Data.TransitionTypes

	if len(ltt) == 0 {
		// No V2+ block present (a pure V1 file); fall back to its
		// 32-bit data, widening transition times to 64 bits.
		ltt = file.V1Data.LocalTimeTypeRecord
		transitions = make([]int64, len(file.V1Data.TransitionTimes))
		for i, t := range file.V1Data.TransitionTimes {
			transitions[i] = int64(t)
		}
		indices = file.V1Data.TransitionTypes
	}

	if len(ltt) == 0 {
		return nil, ErrNoTransitions
	}

	boundaries := make([]Boundary, 0, len(transitions)+1)
	boundaries = append(boundaries, Boundary{
		At:     minInt64,
		Offset: int64(ltt[firstStandardType(ltt)].Utoff),
	})

	for i, at := range transitions {
		typ := ltt[indices[i]]
		b := Boundary{At: at, Offset: int64(typ.Utoff)}
		if boundaries[len(boundaries)-1].Offset == b.Offset {
			continue
		}
		boundaries = append(boundaries, b)
	}

	return &Zone{name: name, boundaries: boundaries}, nil
}

// firstStandardType returns the index of the first non-DST local time
// type, falling back to index 0 if every type observes DST.
func firstStandardType(ltt []tzif.LocalTimeTypeRecord) int {
	for i, t := range ltt {
		if !t.Dst {
			return i
		}
	}
	return 0
}

const minInt64 = -1 << 63

func findZoneinfo(name string) (string, error) {
	if name == "" || name == "UTC" {
		name = "UTC"
	}
	roots := []string{
		os.Getenv("ZONEINFO"),
		"/usr/share/zoneinfo",
		"/usr/share/lib/zoneinfo",
		"/usr/lib/zoneinfo",
	}
	for _, root := range roots {
		if root == "" {
			continue
		}
		path := filepath.Join(root, name)
		if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("tzoracle: zoneinfo for %q not found under known roots", name)
}

// ambientZoneName derives a zone name from /etc/localtime when TZ is
// unset, by resolving the symlink IANA-distributed systems install
// there and trimming it to the part beneath the zoneinfo root.
func ambientZoneName() string {
	target, err := os.Readlink("/etc/localtime")
	if err != nil {
		return "UTC"
	}
	const marker = "zoneinfo/"
	if i := strings.LastIndex(target, marker); i >= 0 {
		return target[i+len(marker):]
	}
	return "UTC"
}
