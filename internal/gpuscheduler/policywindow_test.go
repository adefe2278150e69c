package gpuscheduler

import (
	"testing"
	"time"
)

func TestInWindow_SimpleDaytimeWindow(t *testing.T) {
	w := TimeWindow{Start: "09:00", End: "17:00", TZ: "UTC"}
	inside := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	outside := time.Date(2026, 7, 31, 20, 0, 0, 0, time.UTC)

	if ok, err := InWindow(inside, w); err != nil || !ok {
		t.Fatalf("expected inside window, ok=%v err=%v", ok, err)
	}
	if ok, err := InWindow(outside, w); err != nil || ok {
		t.Fatalf("expected outside window, ok=%v err=%v", ok, err)
	}
}

func TestInWindow_WrapsPastMidnight(t *testing.T) {
	w := TimeWindow{Start: "22:00", End: "02:00", TZ: "UTC"}
	lateNight := time.Date(2026, 7, 31, 23, 30, 0, 0, time.UTC)
	earlyMorning := time.Date(2026, 8, 1, 1, 30, 0, 0, time.UTC)
	midday := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	for _, tc := range []struct {
		name string
		ts   time.Time
		want bool
	}{
		{"late night", lateNight, true},
		{"early morning", earlyMorning, true},
		{"midday", midday, false},
	} {
		ok, err := InWindow(tc.ts, w)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if ok != tc.want {
			t.Fatalf("%s: InWindow = %v, want %v", tc.name, ok, tc.want)
		}
	}
}

func TestInWindow_DayFilter(t *testing.T) {
	w := TimeWindow{Days: []string{"sat", "sun"}, Start: "00:00", End: "23:59", TZ: "UTC"}
	saturday := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC) // a Saturday
	monday := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)   // a Monday

	if ok, _ := InWindow(saturday, w); !ok {
		t.Fatalf("expected saturday to match weekend window")
	}
	if ok, _ := InWindow(monday, w); ok {
		t.Fatalf("expected monday to not match weekend window")
	}
}

func TestEffectivePause_EmptyWindowsWithAutoPauseIsAlwaysPaused(t *testing.T) {
	p := Policy{AutoPause: true}
	pause, changed := effectivePause(time.Now(), p, false)
	if !pause || !changed {
		t.Fatalf("pause=%v changed=%v, want true/true", pause, changed)
	}
}

func TestEffectivePause_NoPolicyLeavesStateUnchanged(t *testing.T) {
	pause, changed := effectivePause(time.Now(), Policy{}, true)
	if !pause || changed {
		t.Fatalf("pause=%v changed=%v, want true/false (no policy active)", pause, changed)
	}
}
