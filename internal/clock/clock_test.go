package clock

import (
	"math"
	"testing"
	"time"
)

func TestDueWrapsModulo2to32(t *testing.T) {
	cases := []struct {
		name        string
		now, anchor uint32
		delay       uint32
		wantDue     bool
	}{
		{"not yet due", 1000, 500, 1000, false},
		{"exactly due", 1500, 500, 1000, true},
		{"past due", 5000, 500, 1000, true},
		{"wraps around 2^32", 150, math.MaxUint32 - 50, 200, true},
		{"wraps around but not due yet", 10, math.MaxUint32 - 50, 200, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Due(c.now, c.anchor, c.delay); got != c.wantDue {
				t.Fatalf("Due(%d, %d, %d) = %v, want %v", c.now, c.anchor, c.delay, got, c.wantDue)
			}
		})
	}
}

func TestNowTmstAdvancesMonotonically(t *testing.T) {
	s := NewSource()
	first := s.NowTmst()
	time.Sleep(2 * time.Millisecond)
	second := s.NowTmst()
	if second <= first {
		t.Fatalf("NowTmst did not advance: first=%d second=%d", first, second)
	}
}

func TestGPSMillisBeforeEpochClampsToZero(t *testing.T) {
	before := time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)
	if got := GPSMillis(before); got != 0 {
		t.Fatalf("GPSMillis before epoch = %d, want 0", got)
	}
}

func TestGPSMillisKnownOffset(t *testing.T) {
	oneDayAfterEpoch := gpsEpoch.Add(24 * time.Hour)
	want := uint64(24 * time.Hour / time.Millisecond)
	if got := GPSMillis(oneDayAfterEpoch); got != want {
		t.Fatalf("GPSMillis = %d, want %d", got, want)
	}
}

func TestISO8601FormatsAreUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	local := time.Date(2014, time.January, 12, 10, 59, 28, 0, loc)

	expanded := ISO8601Expanded(local)
	if expanded != "2014-01-12 08:59:28 UTC" {
		t.Fatalf("ISO8601Expanded = %q", expanded)
	}

	compact := ISO8601Compact(local)
	if compact[:19] != "2014-01-12T08:59:28" {
		t.Fatalf("ISO8601Compact = %q", compact)
	}
}
