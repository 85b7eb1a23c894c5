// Package crontime computes the next wall-clock instant at or after a
// reference instant that satisfies a cron-style five-field schedule,
// optionally perturbed by bounded triangular jitter.
//
// It exists to get daylight saving time right: minutes a spring-forward
// transition skips are never matched, and minutes a fall-back
// transition repeats are matched by a wildcard field but not by an
// explicit enumeration. See package civiltime for how that is modelled,
// and package schedule for the search that drives it.
package crontime

import (
	"math/rand"
	"time"

	"github.com/earlchew/crontime/civiltime"
	"github.com/earlchew/crontime/jitter"
	"github.com/earlchew/crontime/schedule"
)

// Next returns the next instant, in seconds since the Unix epoch, at or
// after now that sched admits under the civil calendar oracle and loc
// describe.
//
// maxJitter bounds a triangular-distributed perturbation applied around
// the unjittered result; maxJitter <= 0 disables jitter and Next
// returns the exact match. r supplies the randomness for the
// perturbation and is unused when jitter is disabled; pass nil in that
// case.
func Next(sched *schedule.Schedule, oracle civiltime.Oracle, loc *time.Location, now int64, maxJitter int64, r *rand.Rand) (int64, error) {
	ct, err := civiltime.New(oracle, loc, now)
	if err != nil {
		return 0, err
	}
	s0, err := sched.Next(ct)
	if err != nil {
		return 0, err
	}
	if maxJitter <= 0 {
		return s0, nil
	}

	// The next candidate after s0 bounds how far jitter may advance the
	// result; re-evaluate the same schedule starting one minute later.
	ct1, err := civiltime.New(oracle, loc, s0+60)
	if err != nil {
		return 0, err
	}
	s1, err := sched.Next(ct1)
	if err != nil {
		return 0, err
	}

	return jitter.Apply(r, now, s0, s1, maxJitter)
}
