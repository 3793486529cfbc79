package rules

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/teambition/rrule-go"
)

var (
	// ErrInvalidRule is returned when a recurrence rule cannot be parsed
	ErrInvalidRule = errors.New("invalid recurrence rule")

	// ErrInvalidTimezone is returned when a timezone is not a known IANA name
	ErrInvalidTimezone = errors.New("invalid timezone")
)

// dtstartLayout is the RFC 5545 basic format used for pinned DTSTART values
const dtstartLayout = "20060102T150405Z"

// Engine computes occurrences of recurrence rules. Implementations must be safe
// for concurrent use.
type Engine interface {
	// Next returns the first occurrence strictly after the given instant, with the
	// rule's BYHOUR/BYMINUTE read as wall-clock time in tz. ok is false once a
	// finite rule is exhausted.
	Next(rule, tz string, after time.Time) (next time.Time, ok bool, err error)

	// Between returns occurrences in [start, end], evaluated in UTC
	Between(rule string, start, end time.Time) ([]time.Time, error)

	// Valid reports whether rule parses
	Valid(rule string) bool

	// Describe returns a human-readable summary of rule
	Describe(rule string) string
}

// RRuleEngine implements Engine on top of rrule-go
type RRuleEngine struct{}

// New creates a new rule engine
func New() *RRuleEngine {
	return &RRuleEngine{}
}

// NormalizeToMinute truncates t to minute precision in UTC
func NormalizeToMinute(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}

// Next implements Engine.
//
// The rrule library evaluates BYHOUR/BYMINUTE against the clock of its start
// time, so the search runs in a shifted frame: after is moved forward by the
// zone's offset at that instant, the occurrence is found there, and the offset
// is removed again.
func (e *RRuleEngine) Next(rule, tz string, after time.Time) (time.Time, bool, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return time.Time{}, false, err
	}

	opt, err := parse(rule)
	if err != nil {
		return time.Time{}, false, err
	}

	offset := zoneOffset(after, loc)
	shifted := after.UTC().Add(offset)

	if opt.Dtstart.IsZero() {
		opt.Dtstart = shifted.Truncate(time.Minute)
	}

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	occurrence := r.After(shifted, false)
	if occurrence.IsZero() {
		return time.Time{}, false, nil
	}

	return NormalizeToMinute(occurrence.UTC().Add(-offset)), true, nil
}

// Between implements Engine. Bounds are inclusive.
func (e *RRuleEngine) Between(rule string, start, end time.Time) ([]time.Time, error) {
	opt, err := parse(rule)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end %s is before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	if opt.Dtstart.IsZero() {
		opt.Dtstart = NormalizeToMinute(start)
	}

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	raw := r.Between(start.UTC(), end.UTC(), true)
	out := make([]time.Time, 0, len(raw))
	for _, t := range raw {
		out = append(out, NormalizeToMinute(t))
	}
	return out, nil
}

// Valid implements Engine
func (e *RRuleEngine) Valid(rule string) bool {
	opt, err := parse(rule)
	if err != nil {
		return false
	}
	if opt.Dtstart.IsZero() {
		opt.Dtstart = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	_, err = rrule.NewRRule(*opt)
	return err == nil
}

// Describe implements Engine
func (e *RRuleEngine) Describe(rule string) string {
	opt, err := parse(rule)
	if err != nil {
		return "Invalid rule"
	}
	return describe(opt)
}

// Preview returns up to n upcoming occurrences after the given instant
func Preview(e Engine, rule, tz string, after time.Time, n int) ([]time.Time, error) {
	var out []time.Time
	cursor := after
	for i := 0; i < n; i++ {
		next, ok, err := e.Next(rule, tz, cursor)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, next)
		cursor = next
	}
	return out, nil
}

// Anchor pins a DTSTART to rules that do not carry one, so that COUNT is consumed
// across executions and defaulted fields (minute, weekday, month day) stay fixed
// to the creation time instead of drifting with every evaluation. DTSTART is
// written as the wall-clock minute in tz.
func Anchor(rule, tz string, now time.Time) (string, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return "", err
	}
	opt, err := parse(rule)
	if err != nil {
		return "", err
	}
	if !opt.Dtstart.IsZero() {
		return strings.TrimSpace(rule), nil
	}

	wall := now.UTC().Add(zoneOffset(now, loc)).Truncate(time.Minute)
	body := strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:")
	return "DTSTART:" + wall.Format(dtstartLayout) + "\nRRULE:" + body, nil
}

// LoadLocation resolves an IANA timezone name. Empty means UTC.
func LoadLocation(tz string) (*time.Location, error) {
	if tz == "" || tz == "UTC" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimezone, tz)
	}
	return loc, nil
}

func zoneOffset(at time.Time, loc *time.Location) time.Duration {
	_, seconds := at.In(loc).Zone()
	return time.Duration(seconds) * time.Second
}

func parse(rule string) (*rrule.ROption, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return nil, fmt.Errorf("%w: empty rule", ErrInvalidRule)
	}
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return opt, nil
}
