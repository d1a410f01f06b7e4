// Package timeutil provides elapsed-time rendering shared by standings and
// reporting. The format must stay stable: gap strings on podium views are
// built from it and compared for display parity.
package timeutil

import "fmt"

// FormatSeconds renders an elapsed time in whole seconds. Durations of an
// hour or more render as H:MM:SS; shorter ones as M:SS with the minute field
// unpadded and seconds zero-padded to two digits.
func FormatSeconds(seconds int64) string {
	if seconds >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// FormatSecondsPtr renders an optional elapsed time. Nil and zero carry no
// meaningful elapsed time and map to nil.
func FormatSecondsPtr(seconds *int64) *string {
	if seconds == nil || *seconds == 0 {
		return nil
	}
	s := FormatSeconds(*seconds)
	return &s
}
