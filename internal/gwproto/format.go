package gwproto

import "fmt"

// FormatCodr renders a coding-rate denominator as the wire string "4/N"
// (spec §6).
func FormatCodr(denominator int) string {
	return fmt.Sprintf("4/%d", denominator)
}

// ParseCodr parses a wire coding-rate string "4/N" into its denominator.
func ParseCodr(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "4/%d", &n); err != nil {
		return 0, fmt.Errorf("gwproto: invalid codr %q: %w", s, err)
	}
	return n, nil
}

// FormatDatr renders a spreading factor and bandwidth (Hz) as the wire
// string "SF<sf>BW<bw>" (spec §6), where bandwidth is expressed in kHz on
// the wire (e.g. 125000 Hz -> "BW125").
func FormatDatr(sf int, bwHz int) string {
	return fmt.Sprintf("SF%dBW%d", sf, bwHz/1000)
}

// ParseDatr parses a wire datarate string "SF<sf>BW<bw>" into spreading
// factor and bandwidth in Hz.
func ParseDatr(s string) (sf int, bwHz int, err error) {
	var bwKHz int
	if _, err := fmt.Sscanf(s, "SF%dBW%d", &sf, &bwKHz); err != nil {
		return 0, 0, fmt.Errorf("gwproto: invalid datr %q: %w", s, err)
	}
	return sf, bwKHz * 1000, nil
}
