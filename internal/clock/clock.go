// Package clock provides the gateway's internal free-running microsecond
// timebase used to schedule downlinks, plus the wall-clock/GPS time helpers
// needed to stamp uplinks.
package clock

import (
	"sync"
	"time"
)

// gpsEpoch is 00:00:00 UTC on 6 January 1980, the GPS time origin.
var gpsEpoch = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)

// Source is the monotonic microsecond counter described in spec §3 and §6:
// free-running, wraps at 2^32, and must keep advancing for as long as the
// supervisor runs. A zero value is ready to use; NowTmst reports elapsed time
// since the Source was first read.
type Source struct {
	once  sync.Once
	start time.Time
}

// NewSource returns a Source anchored to the current monotonic clock.
func NewSource() *Source {
	return &Source{start: time.Now()}
}

// NowTmst returns the current 32-bit free-running microsecond timestamp.
// Wrap-around is intentional: the value truncates silently at 2^32.
func (s *Source) NowTmst() uint32 {
	s.once.Do(func() {
		if s.start.IsZero() {
			s.start = time.Now()
		}
	})
	return uint32(time.Since(s.start).Microseconds())
}

// UTCNow returns the current wall-clock time, disciplined externally by SNTP
// (§6); this package only formats it, it never synchronizes it.
func UTCNow() time.Time {
	return time.Now().UTC()
}

// ISO8601Expanded formats t the way gwproto.Stat.Time expects: UTC 'system'
// time in expanded ISO 8601 form, e.g. "2014-01-12 08:59:28 UTC".
func ISO8601Expanded(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 MST")
}

// ISO8601Compact formats t the way gwproto.RXPK.Time expects: UTC time of
// packet RX with microsecond precision, compact ISO 8601 form.
func ISO8601Compact(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.999999Z")
}

// GPSMillis returns milliseconds elapsed since the GPS epoch, the value
// carried in RXPK.Tmms. The original firmware derives this from the same
// SNTP-disciplined UTC time used for RXPK.Time (udpsem_set_timestamp); this
// is a direct restatement of that derivation.
func GPSMillis(t time.Time) uint64 {
	d := t.UTC().Sub(gpsEpoch)
	if d < 0 {
		return 0
	}
	return uint64(d.Milliseconds())
}

// Due reports whether a schedule anchored at anchor with delay microseconds
// has become due at now, using wrap-around modular subtraction as required
// by spec §4.6 and §9: delta := (now - anchor) mod 2^32 must never be
// computed with signed arithmetic.
func Due(now, anchor, delay uint32) bool {
	delta := now - anchor // unsigned subtraction wraps mod 2^32 automatically
	return delta >= delay
}
