// Package jitter perturbs a scheduled instant by a bounded random
// offset, so that many callers waking on the same cron schedule do not
// all act in the same instant (a classic thundering-herd hazard for
// anything scheduled against wall-clock boundaries).
//
// The offset is drawn from a triangular distribution that peaks at the
// unperturbed instant and falls away linearly towards its bounds,
// rather than a uniform distribution, so that the jittered result
// stays close to the schedule far more often than it drifts to the
// edge of its allowed window.
package jitter

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// ErrInvalid reports that s1 does not strictly follow s0. A correctly
// produced pair never triggers this: s1 is the Schedule's own next
// match starting one minute after s0, which is always later.
var ErrInvalid = errors.New("jitter: next instant does not follow scheduled instant")

// Apply perturbs s0, the instant a Schedule matched when searching
// forward from now, and returns the jittered instant. s1 is the next
// instant the same Schedule would match starting one minute after s0;
// it bounds how far Apply may advance the result so that jitter never
// pushes a match past its successor. max further caps the magnitude of
// the perturbation in either direction; max <= 0 disables jitter
// entirely and Apply returns s0 unchanged.
//
// When now already equals s0 (the schedule's idempotent fixed point),
// the perturbation is one-sided: there is no "early" side to draw
// from, so Apply only ever delays the result.
//
// r supplies the randomness; pass rand.New(rand.NewSource(seed)) for a
// reproducible result, or a shared *rand.Rand for ordinary use.
func Apply(r *rand.Rand, now, s0, s1, max int64) (int64, error) {
	if s1 <= s0 {
		return 0, fmt.Errorf("%w: %d does not follow %d", ErrInvalid, s1, s0)
	}
	if max <= 0 {
		return s0, nil
	}

	lhs := s0 - now
	rhs := s1 - s0

	bound := rhs
	if lhs != 0 {
		bound = min64(lhs, rhs)
	}

	peak := float64(min64(max, bound))
	delta := int64(peak * (1 - math.Sqrt(r.Float64())))

	if lhs > 0 && r.Float64() < 0.5 {
		return s0 - delta, nil
	}
	return s0 + delta, nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
