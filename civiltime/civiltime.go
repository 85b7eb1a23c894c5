// Package civiltime tracks a broken-down local calendar time alongside
// the UTC instant it corresponds to, and lets that local time be
// advanced field by field (minute, hour, day, month, year) the way a
// schedule evaluator needs to search forward for the next match.
//
// The tricky part is daylight saving time. When a zone's UTC offset
// changes, an hour of wall-clock time is either skipped (the clocks
// jump forward, "spring forward") or repeated (the clocks fall back,
// "fall back"). CivilTime models both cases as a second, shadow
// Interval stacked on top of the interval the change occurred in:
// a skip interval stands in for wall-clock time that never happened,
// and a repeat interval is flagged so that explicit enumerations in a
// schedule (unlike the wildcard) do not match it twice.
package civiltime

import (
	"errors"
	"fmt"
	"time"

	"github.com/earlchew/crontime/internal/unixtime"
)

// ErrInvalid reports a field value outside the domain the operation
// accepts (e.g. advancing to hour 24).
var ErrInvalid = errors.New("civiltime: value out of domain")

// ErrNoAdvance reports a field value that would not move the current
// interval strictly forward.
var ErrNoAdvance = errors.New("civiltime: value does not advance the current position")

// errTryAgain signals that advancing crossed a shadow interval boundary
// and the CivilTime has already been repositioned; the caller should
// retry its own search step rather than treat this as failure.
var errTryAgain = errors.New("civiltime: crossed a shadow interval, retry")

// IsTryAgain reports whether err is the sentinel that tells a schedule
// search to retry its current step because CivilTime repositioned
// itself across a daylight saving boundary.
func IsTryAgain(err error) bool {
	return errors.Is(err, errTryAgain)
}

// Boundary is a single UTC instant at which a zone's offset changes.
type Boundary struct {
	At     int64
	Offset int64
}

// Oracle answers transition boundary queries for a single time zone.
// *tzoracle.Zone satisfies this interface.
type Oracle interface {
	// Transitions returns the boundary immediately before t (prev), the
	// boundary in effect at t (begin), and the next boundary strictly
	// after t (end).
	Transitions(t int64) (prev, begin, end Boundary)
}

// Mask marks which broken-down fields of an Interval are "shadowed":
// they describe time inserted or repeated by a daylight saving
// transition rather than the zone's ordinary progression. A wildcard
// schedule field matches shadowed time; an explicit enumeration does
// not.
type Mask uint8

const (
	MaskMinutes Mask = 1 << iota
	MaskHours
	MaskDays
	MaskMonths
	MaskYears
)

type fields struct {
	year, month, day, hour, minute int
	weekday                        time.Weekday
}

func (f fields) sameClock(g fields) bool {
	return f.year == g.year && f.month == g.month && f.day == g.day &&
		f.hour == g.hour && f.minute == g.minute
}

type interval struct {
	tm       fields
	t        int64 // unix seconds, minute-aligned
	mask     Mask
	dstBegin Boundary
	dstEnd   Boundary
	calendar *[13]int
}

// CivilTime is a broken-down local time with DST-aware advancement. The
// zero value is not usable; construct one with New.
type CivilTime struct {
	oracle Oracle
	loc    *time.Location
	depth  int
	stack  [2]interval
}

// New returns a CivilTime positioned at t (seconds since the Unix
// epoch), rounded down to the start of its minute, using loc to
// determine local calendar fields and oracle to find DST transitions.
func New(oracle Oracle, loc *time.Location, t int64) (*CivilTime, error) {
	if oracle == nil || loc == nil {
		return nil, fmt.Errorf("%w: nil oracle or location", ErrInvalid)
	}
	ct := &CivilTime{oracle: oracle, loc: loc}
	ct.reset(t)
	return ct, nil
}

func (ct *CivilTime) current() *interval { return &ct.stack[ct.depth] }

func (ct *CivilTime) reset(t int64) {
	ct.depth = 0
	iv := &ct.stack[0]
	ct.loadTm(iv, t)
	iv.mask = 0

	prev, begin, end := ct.oracle.Transitions(iv.t)
	iv.dstBegin = begin
	iv.dstEnd = end
	iv.calendar = calendarFor(iv.tm.year)

	ct.applyDSTChange(begin.Offset - prev.Offset)
}

func (ct *CivilTime) loadTm(iv *interval, t int64) {
	t = t / 60 * 60
	iv.t = t
	iv.tm = ct.localFields(t)
}

func (ct *CivilTime) localFields(t int64) fields {
	tt := time.Unix(t, 0).In(ct.loc)
	y, mo, d := tt.Date()
	return fields{year: y, month: int(mo), day: d, hour: tt.Hour(), minute: tt.Minute(), weekday: tt.Weekday()}
}

// applyDSTChange inserts a shadow interval if the transition that
// brought the current interval into being changed the UTC offset. A
// negative change (offset decreases, e.g. DST ending) repeats an hour
// of wall time; a positive change (offset increases, e.g. DST
// starting) skips an hour.
func (ct *CivilTime) applyDSTChange(dstChange int64) {
	if dstChange == 0 {
		return
	}

	iv := ct.current()

	transitionUTC := unixtime.FromDateTime(iv.tm.year, iv.tm.month, iv.tm.day, iv.tm.hour, iv.tm.minute, 0) - dstChange
	transitionTm := civilFromPseudoUTC(transitionUTC)

	if dstChange < 0 {
		if iv.t+dstChange < iv.dstBegin.At {
			ct.depth++
			shadow := ct.current()
			*shadow = *iv

			var mask Mask
			if shadow.tm.year != transitionTm.year {
				mask |= MaskYears
			}
			if shadow.tm.month != transitionTm.month {
				mask |= MaskMonths
			}
			if shadow.tm.day != transitionTm.day {
				mask |= MaskDays
			}
			if shadow.tm.hour != transitionTm.hour {
				mask |= MaskHours
			}
			if shadow.tm.minute != transitionTm.minute {
				mask |= MaskMinutes
			}
			shadow.mask = mask

			shadow.dstEnd = shadow.dstBegin
			shadow.dstEnd.At -= dstChange
			shadow.dstBegin.At = shadow.t

			iv.dstBegin.At -= dstChange
		}
	} else {
		if iv.t-dstChange < iv.dstBegin.At {
			ct.depth++
			shadow := ct.current()
			*shadow = *iv
			shadow.tm = transitionTm

			shadow.dstEnd = shadow.dstBegin
			shadow.dstEnd.At += dstChange
			shadow.dstBegin.At = shadow.t

			iv.dstBegin.At = iv.t
		}
	}
}

func invert(v int) int { return 0 - 1 - v }

func nominal(v int) int {
	if v < 0 {
		return invert(v)
	}
	return v
}

func shadow(v int, masked bool) int {
	if masked {
		return invert(v)
	}
	return v
}

// Calendar is a shadow-aware (masked values are inverted, see Mask)
// snapshot of the calendar fields: year, month, day of month, and
// weekday, along with the month-length table in effect for the year.
type Calendar struct {
	Year, Month, Day int
	Weekday          time.Weekday
	monthTable       *[13]int
}

// DayLength returns the number of days in Month.
func (c Calendar) DayLength() int {
	return c.monthTable[c.Month-1] - c.monthTable[c.Month]
}

// Clock is a shadow-aware snapshot of the hour and minute fields.
type Clock struct {
	Hour, Minute int
}

// Calendar returns the current shadow-aware calendar fields, for
// matching against a schedule's day-of-month, month, and weekday
// BitRings. Values from a shadow-repeat interval are inverted so they
// cannot equal any explicit enumeration member, but still satisfy a
// wildcard (population-zero) BitRing.
func (ct *CivilTime) Calendar() Calendar {
	iv := ct.current()
	return Calendar{
		Year:       shadow(iv.tm.year, iv.mask&MaskYears != 0),
		Month:      shadow(iv.tm.month, iv.mask&MaskMonths != 0),
		Day:        shadow(iv.tm.day, iv.mask&MaskDays != 0),
		Weekday:    iv.tm.weekday,
		monthTable: iv.calendar,
	}
}

// Clock returns the current shadow-aware clock fields.
func (ct *CivilTime) Clock() Clock {
	iv := ct.current()
	return Clock{
		Hour:   shadow(iv.tm.hour, iv.mask&MaskHours != 0),
		Minute: shadow(iv.tm.minute, iv.mask&MaskMinutes != 0),
	}
}

// WallCalendar returns the raw (never shadow-inverted) calendar
// fields, used to compute how far forward a schedule needs to advance.
func (ct *CivilTime) WallCalendar() Calendar {
	iv := ct.current()
	return Calendar{Year: iv.tm.year, Month: iv.tm.month, Day: iv.tm.day, Weekday: iv.tm.weekday, monthTable: iv.calendar}
}

// WallClock returns the raw (never shadow-inverted) clock fields.
func (ct *CivilTime) WallClock() Clock {
	iv := ct.current()
	return Clock{Hour: iv.tm.hour, Minute: iv.tm.minute}
}

// Utc returns the UTC instant, in seconds since the Unix epoch,
// corresponding to the current interval.
func (ct *CivilTime) Utc() int64 { return ct.current().t }

// Nominal strips the shadow-inversion a Calendar or Clock field may
// carry, recovering the plain field value.
func Nominal(v int) int { return nominal(v) }

// forward finds the UTC instant corresponding to the broken-down local
// time f, preferring the earliest candidate strictly greater than
// since when f names an ambiguous (repeated) local time. When f names a
// skipped local time, f is read with the offset in force before the
// transition, which lands past the gap (in which case the returned
// fields differ from f).
func (ct *CivilTime) forward(since int64, f fields) (int64, fields) {
	naive := unixtime.FromDateTime(f.year, f.month, f.day, f.hour, f.minute, 0)

	_, approxBegin, _ := ct.oracle.Transitions(naive)
	left := naive - approxBegin.Offset
	prevAtLeft, beginAtLeft, _ := ct.oracle.Transitions(left)
	if beginAtLeft.Offset != approxBegin.Offset {
		left = naive - beginAtLeft.Offset
		prevAtLeft, beginAtLeft, _ = ct.oracle.Transitions(left)
	}

	leftFields := ct.localFields(left)
	if !leftFields.sameClock(f) {
		// The requested local time was skipped; report what it snapped to.
		if alt := naive - approxBegin.Offset; alt > left {
			left, leftFields = alt, ct.localFields(alt)
		}
		return left, leftFields
	}

	if prevAtLeft.Offset == beginAtLeft.Offset {
		return left, f
	}

	right := naive - prevAtLeft.Offset
	rightFields := ct.localFields(right)
	if !rightFields.sameClock(f) {
		return left, f
	}

	if left < right {
		if since < left {
			return left, f
		}
		return right, f
	}
	if since < right {
		return right, f
	}
	return left, f
}

func (ct *CivilTime) pop() (*interval, error) {
	if ct.depth == 0 {
		return nil, errNoInterval
	}
	ct.depth--
	iv := ct.current()
	ct.loadTm(iv, iv.dstBegin.At)
	return iv, nil
}

var errNoInterval = errors.New("civiltime: already at base interval")

func (ct *CivilTime) restack(t int64) (*interval, error) {
	if ct.depth != 0 {
		return nil, fmt.Errorf("civiltime: cannot restack while %d shadow intervals remain", ct.depth)
	}
	ct.reset(t)
	return ct.current(), nil
}

func (ct *CivilTime) rewindMinute(since int64) error {
	iv := ct.current()

	iv.t -= int64(iv.tm.minute) * 60
	iv.tm.minute = 0

	t, tm := ct.forward(since, iv.tm)

	if t < iv.dstBegin.At {
		boundary := (iv.dstBegin.At - 1) / 60 * 60
		if _, err := ct.pop(); err != nil {
			if !errors.Is(err, errNoInterval) {
				return err
			}
			if _, err := ct.restack(boundary); err != nil {
				return err
			}
		}
		return errTryAgain
	}

	if t >= iv.dstEnd.At {
		boundary := (iv.dstEnd.At + 59) / 60 * 60
		if _, err := ct.pop(); err != nil {
			if !errors.Is(err, errNoInterval) {
				return err
			}
			if _, err := ct.restack(boundary); err != nil {
				return err
			}
		}
		return errTryAgain
	}

	iv.tm = tm
	iv.t = t
	iv.calendar = calendarFor(iv.tm.year)

	return nil
}

func (ct *CivilTime) rewindHour(since int64) error {
	iv := ct.current()
	iv.t -= int64(iv.tm.hour) * 3600
	iv.tm.hour = 0
	return ct.rewindMinute(since)
}

func (ct *CivilTime) subtractDays(days int) {
	iv := ct.current()
	iv.t -= int64(days) * 86400
	iv.tm.weekday = time.Weekday((int(iv.tm.weekday) + 7 - days%7) % 7)
}

func (ct *CivilTime) advanceDays(days int) {
	iv := ct.current()
	iv.t += int64(days) * 86400
	iv.tm.weekday = time.Weekday((int(iv.tm.weekday) + days) % 7)
}

func (ct *CivilTime) rewindDay(since int64) error {
	iv := ct.current()
	ct.subtractDays(iv.tm.day - 1)
	iv.tm.day = 1
	return ct.rewindHour(since)
}

func (ct *CivilTime) rewindMonth(since int64, calendar *[13]int) error {
	iv := ct.current()
	ct.subtractDays(calendar[0] - calendar[iv.tm.month-1])
	iv.tm.month = 1
	return ct.rewindDay(since)
}

// AdvanceMinute moves the current interval forward so its minute field
// equals minute, shifting the UTC instant by the same number of
// minutes. It does not check for daylight saving boundaries.
//
// It fails with ErrInvalid if minute is outside [0,59], or ErrNoAdvance
// if minute does not exceed the current minute.
func (ct *CivilTime) AdvanceMinute(minute int) error {
	iv := ct.current()

	if minute < 0 || minute > 59 {
		return fmt.Errorf("%w: minute %d", ErrInvalid, minute)
	}
	if minute <= iv.tm.minute {
		return fmt.Errorf("%w: minute %d", ErrNoAdvance, minute)
	}

	iv.t += int64(minute-iv.tm.minute) * 60
	iv.tm.minute = minute

	return nil
}

// AdvanceHour moves the current interval forward so its hour field
// equals hour, rewinding the minute field. If the result lies outside
// the current interval, the CivilTime is instead repositioned at the
// daylight saving boundary crossed and the error satisfies IsTryAgain.
//
// It fails with ErrInvalid if hour is outside [0,23], or ErrNoAdvance
// if hour does not exceed the current hour.
func (ct *CivilTime) AdvanceHour(hour int) error {
	iv := ct.current()

	if hour < 0 || hour > 23 {
		return fmt.Errorf("%w: hour %d", ErrInvalid, hour)
	}
	if hour <= iv.tm.hour {
		return fmt.Errorf("%w: hour %d", ErrNoAdvance, hour)
	}

	since := iv.t
	iv.t += int64(hour-iv.tm.hour) * 3600
	iv.tm.hour = hour

	return ct.rewindMinute(since)
}

// AdvanceDay moves the current interval forward so its day-of-month
// field equals day, rewinding the hour and minute fields. If the result
// lies outside the current interval, the CivilTime is instead
// repositioned at the daylight saving boundary crossed and the error
// satisfies IsTryAgain.
//
// It fails with ErrInvalid if day is outside [1,daysInMonth], or
// ErrNoAdvance if day does not exceed the current day.
func (ct *CivilTime) AdvanceDay(day int) error {
	iv := ct.current()

	lastDay := iv.calendar[iv.tm.month-1] - iv.calendar[iv.tm.month]
	if day < 1 || day > lastDay {
		return fmt.Errorf("%w: day %d", ErrInvalid, day)
	}
	if day <= iv.tm.day {
		return fmt.Errorf("%w: day %d", ErrNoAdvance, day)
	}

	since := iv.t
	ct.advanceDays(day - iv.tm.day)
	iv.tm.day = day

	return ct.rewindHour(since)
}

// AdvanceMonth moves the current interval forward so its month field
// equals month, rewinding the day, hour, and minute fields. If the
// result lies outside the current interval, the CivilTime is instead
// repositioned at the daylight saving boundary crossed and the error
// satisfies IsTryAgain.
//
// It fails with ErrInvalid if month is outside [1,12], or ErrNoAdvance
// if month does not exceed the current month.
func (ct *CivilTime) AdvanceMonth(month int) error {
	iv := ct.current()

	if month < 1 || month > 12 {
		return fmt.Errorf("%w: month %d", ErrInvalid, month)
	}
	if month <= iv.tm.month {
		return fmt.Errorf("%w: month %d", ErrNoAdvance, month)
	}

	since := iv.t
	days := iv.calendar[iv.tm.month-1] - iv.calendar[month-1]
	ct.advanceDays(days)
	iv.tm.month = month

	return ct.rewindDay(since)
}

// AdvanceYear moves the current interval forward so its year field
// equals year, rewinding the month, day, hour, and minute fields. If
// the result lies outside the current interval, the CivilTime is
// instead repositioned at the daylight saving boundary crossed and the
// error satisfies IsTryAgain.
//
// It fails with ErrInvalid if year is before 1, or ErrNoAdvance if
// year does not exceed the current year.
func (ct *CivilTime) AdvanceYear(year int) error {
	iv := ct.current()

	if year < 1 {
		return fmt.Errorf("%w: year %d", ErrInvalid, year)
	}
	if year <= iv.tm.year {
		return fmt.Errorf("%w: year %d", ErrNoAdvance, year)
	}

	since := iv.t

	leapYears := (year-1)/4 - (iv.tm.year-1)/4
	leapYears -= (year-1)/100 - (iv.tm.year-1)/100
	leapYears += (year-1)/400 - (iv.tm.year-1)/400

	days := int64(commonYearTable[0]) * int64(year-iv.tm.year)
	days += int64(leapYearTable[0]-commonYearTable[0]) * int64(leapYears)

	calendar := iv.calendar

	iv.t += days * 86400
	iv.tm.weekday = time.Weekday((int64(iv.tm.weekday) + days) % 7)
	iv.tm.year = year
	iv.calendar = nil

	return ct.rewindMonth(since, calendar)
}

// civilFromPseudoUTC breaks seconds (counted from the Unix epoch as if
// they were already UTC, i.e. the result of treating local calendar
// fields as UTC the way timegm does) back down into calendar fields,
// using the proleptic Gregorian calendar with no further zone
// adjustment.
func civilFromPseudoUTC(t int64) fields {
	tt := time.Unix(t, 0).UTC()
	y, mo, d := tt.Date()
	return fields{year: y, month: int(mo), day: d, hour: tt.Hour(), minute: tt.Minute(), weekday: tt.Weekday()}
}

var leapYearTable = [13]int{366, 335, 306, 275, 245, 214, 184, 153, 122, 92, 61, 31, 0}
var commonYearTable = [13]int{365, 334, 306, 275, 245, 214, 184, 153, 122, 92, 61, 31, 0}

func isLeapYear(year int) bool {
	if year%100 != 0 {
		return year%4 == 0
	}
	return year%400 == 0
}

func calendarFor(year int) *[13]int {
	if isLeapYear(year) {
		return &leapYearTable
	}
	return &commonYearTable
}
