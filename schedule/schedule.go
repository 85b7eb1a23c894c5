// Package schedule evaluates cron-style five-field expressions against
// a civiltime.CivilTime, searching forward for the next wall-clock
// instant the expression admits.
package schedule

import (
	"errors"
	"fmt"
	"strings"

	"github.com/earlchew/crontime/bitring"
	"github.com/earlchew/crontime/civiltime"
)

// ErrInvalid reports a malformed schedule expression.
var ErrInvalid = errors.New("schedule: invalid expression")

// ErrNoMore reports that no candidate instant exists within the search
// horizon. A well-formed schedule never triggers this; it guards
// against expressions such as "0 0 31 2 *" (February 31st) that can
// never match and would otherwise search forever.
var ErrNoMore = errors.New("schedule: no candidate within search horizon")

// errAgain signals, internally, that the current search level
// exhausted its domain and the caller one level up must advance and
// retry. It never escapes Next's caller.
var errAgain = errors.New("schedule: level exhausted, retry one up")

const daysInWeek = 7

// Horizon bounds how many years the year-level search advances before
// giving up with ErrNoMore. The spec's own C source has no such bound
// and will loop indefinitely against an unsatisfiable schedule; eight
// years comfortably covers every leap cycle a real cron expression
// could need.
const Horizon = 8

// Schedule is a parsed five-field cron-style expression: minute, hour,
// day of month, month, and day of week. The zero value is not usable;
// construct one with New.
type Schedule struct {
	minutes  bitring.BitRing
	hours    bitring.BitRing
	days     bitring.BitRing
	months   bitring.BitRing
	weekdays bitring.BitRing
}

// New parses expr, a five whitespace-separated field cron expression
// ("MIN HOUR DOM MONTH DOW"), and returns the resulting Schedule.
//
// DOW accepts [0,7] with 7 folded onto 0 (both name Sunday); the
// canonical weekday ring New builds internally spans [0,6].
func New(expr string) (*Schedule, error) {
	if expr == "" || expr[0] == ' ' || expr[0] == '\t' || strings.ContainsAny(expr[len(expr)-1:], " \t") {
		return nil, fmt.Errorf("%w: leading or trailing whitespace in %q", ErrInvalid, expr)
	}
	for i := 1; i < len(expr); i++ {
		if isCronSep(expr[i]) && isCronSep(expr[i-1]) {
			return nil, fmt.Errorf("%w: repeated separator in %q", ErrInvalid, expr)
		}
	}

	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("%w: expected 5 fields, got %d in %q", ErrInvalid, len(fields), expr)
	}

	minuteExpr, hourExpr, dayExpr, monthExpr, weekdayExpr := fields[0], fields[1], fields[2], fields[3], fields[4]

	s := &Schedule{}

	var err error
	if s.minutes, err = bitring.New(0, 59, minuteExpr); err != nil {
		return nil, err
	}
	if s.hours, err = bitring.New(0, 23, hourExpr); err != nil {
		return nil, err
	}
	if s.days, err = bitring.New(1, 31, dayExpr); err != nil {
		return nil, err
	}
	if s.months, err = bitring.New(1, 12, monthExpr); err != nil {
		return nil, err
	}

	weekdays, err := bitring.New(0, 7, weekdayExpr)
	if err != nil {
		return nil, err
	}
	if s.weekdays, err = bitring.New(0, daysInWeek-1, ""); err != nil {
		return nil, err
	}
	for weekday := 0; weekday <= 7; weekday++ {
		if weekdays.Contains(weekday) {
			if err := s.weekdays.Add(weekday % daysInWeek); err != nil {
				return nil, err
			}
		}
	}

	return s, nil
}

func isCronSep(c byte) bool { return c == ' ' || c == '\t' }

// nextValue returns the wall-clock value strictly after value that
// ring admits, or errAgain if advancing that far would overrun ring's
// domain and the search must carry to the next coarser field.
func nextValue(ring bitring.BitRing, value int) (int, error) {
	delta, err := ring.GapTo(value)
	if err != nil {
		return 0, err
	}
	if delta == 0 {
		delta = 1
	}
	if delta > ring.Max()-value {
		return 0, errAgain
	}
	return value + delta, nil
}

func (s *Schedule) matchMinute(ct *civiltime.CivilTime) error {
	for {
		matched := true
		if s.minutes.Population() > 0 {
			matched = s.minutes.Contains(ct.Clock().Minute)
		}
		if matched {
			return nil
		}

		minute, err := nextValue(s.minutes, ct.WallClock().Minute)
		if err != nil {
			return err
		}
		if err := ct.AdvanceMinute(minute); err != nil && !civiltime.IsTryAgain(err) {
			return err
		}
	}
}

func (s *Schedule) matchHour(ct *civiltime.CivilTime) error {
	for {
		matched := true
		if s.hours.Population() > 0 {
			matched = s.hours.Contains(ct.Clock().Hour)
		}
		if matched {
			if err := s.matchMinute(ct); err == nil {
				return nil
			} else if !errors.Is(err, errAgain) {
				return err
			}
		}

		hour, err := nextValue(s.hours, ct.WallClock().Hour)
		if err != nil {
			return err
		}
		if err := ct.AdvanceHour(hour); err != nil && !civiltime.IsTryAgain(err) {
			return err
		}
	}
}

func (s *Schedule) matchDay(ct *civiltime.CivilTime) error {
	for {
		cal := ct.Calendar()
		matched := true
		if s.weekdays.Population() > 0 || s.days.Population() > 0 {
			matched = s.weekdays.Contains(int(cal.Weekday)) || s.days.Contains(cal.Day)
		}

		if matched {
			if err := s.matchHour(ct); err == nil {
				return nil
			} else if !errors.Is(err, errAgain) {
				return err
			}
		}

		wall := ct.WallCalendar()

		skipWeekdays, err := s.weekdays.GapTo(int(wall.Weekday))
		if err != nil {
			return err
		}
		skipDays, err := s.days.GapTo(wall.Day)
		if err != nil {
			return err
		}

		var deltaDays int
		switch {
		case skipWeekdays != 0 && skipDays != 0:
			deltaDays = min(skipWeekdays, skipDays)
		case skipWeekdays != 0:
			deltaDays = skipWeekdays
		case skipDays != 0:
			deltaDays = skipDays
		default:
			deltaDays = 1
		}

		lastDay := wall.DayLength()
		if deltaDays > lastDay-wall.Day {
			return errAgain
		}

		if err := ct.AdvanceDay(wall.Day + deltaDays); err != nil && !civiltime.IsTryAgain(err) {
			return err
		}
	}
}

func (s *Schedule) matchMonth(ct *civiltime.CivilTime) error {
	for {
		matched := true
		if s.months.Population() > 0 {
			matched = s.months.Contains(ct.Calendar().Month)
		}

		if matched {
			if err := s.matchDay(ct); err == nil {
				return nil
			} else if !errors.Is(err, errAgain) {
				return err
			}
		}

		month, err := nextValue(s.months, ct.WallCalendar().Month)
		if err != nil {
			return err
		}
		if err := ct.AdvanceMonth(month); err != nil && !civiltime.IsTryAgain(err) {
			return err
		}
	}
}

func (s *Schedule) matchYear(ct *civiltime.CivilTime) error {
	startYear := ct.WallCalendar().Year
	for {
		err := s.matchMonth(ct)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errAgain) {
			return err
		}
		if ct.WallCalendar().Year-startYear >= Horizon {
			return ErrNoMore
		}

		year := ct.Calendar().Year
		if err := ct.AdvanceYear(year + 1); err != nil && !civiltime.IsTryAgain(err) {
			return err
		}
	}
}

// Next searches forward from ct (which Next mutates in place) for the
// next instant this Schedule admits, and returns its UTC time in
// seconds since the Unix epoch.
func (s *Schedule) Next(ct *civiltime.CivilTime) (int64, error) {
	if err := s.matchYear(ct); err != nil {
		return 0, err
	}
	return ct.Utc(), nil
}
