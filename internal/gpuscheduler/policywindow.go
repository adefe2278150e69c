package gpuscheduler

import (
	"fmt"
	"strings"
	"time"
)

var dayIndex = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// InWindow reports whether now falls inside w, evaluated in w's own tz (or
// the host zone if unset). An end time before the start time wraps past
// midnight, so start=22:00 end=02:00 matches from 22:00 through 02:00 the
// next calendar day.
func InWindow(now time.Time, w TimeWindow) (bool, error) {
	loc := time.Local
	if w.TZ != "" {
		l, err := time.LoadLocation(w.TZ)
		if err != nil {
			return false, fmt.Errorf("load tz %q: %w", w.TZ, err)
		}
		loc = l
	}
	local := now.In(loc)

	if len(w.Days) > 0 && !dayMatches(local.Weekday(), w.Days) {
		return false, nil
	}

	start, err := parseClock(w.Start)
	if err != nil {
		return false, fmt.Errorf("start: %w", err)
	}
	end, err := parseClock(w.End)
	if err != nil {
		return false, fmt.Errorf("end: %w", err)
	}
	cur := local.Hour()*60 + local.Minute()

	if end < start {
		return cur >= start || cur < end, nil
	}
	return cur >= start && cur < end, nil
}

func dayMatches(d time.Weekday, days []string) bool {
	for _, name := range days {
		if idx, ok := dayIndex[strings.ToLower(strings.TrimSpace(name))]; ok && idx == d {
			return true
		}
	}
	return false
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid HH:MM %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid HH:MM %q", s)
	}
	return h*60 + m, nil
}

// effectivePause decides whether a queued job should be policy-paused,
// given its current pause state. windows=[] with autoPause=true is treated
// as "always paused" — an empty window list names no eligible run time, so
// the conservative reading is never-eligible rather than always-eligible.
func effectivePause(now time.Time, p Policy, currentlyPolicyPaused bool) (pause bool, changed bool) {
	if !p.AutoPause && !p.AutoResume {
		return currentlyPolicyPaused, false
	}
	if len(p.Windows) == 0 {
		if p.AutoPause {
			return true, !currentlyPolicyPaused
		}
		return currentlyPolicyPaused, false
	}
	inAny := false
	for _, w := range p.Windows {
		ok, err := InWindow(now, w)
		if err == nil && ok {
			inAny = true
			break
		}
	}
	switch {
	case p.AutoPause && !inAny:
		return true, !currentlyPolicyPaused
	case p.AutoResume && inAny:
		return false, currentlyPolicyPaused
	default:
		return currentlyPolicyPaused, false
	}
}
