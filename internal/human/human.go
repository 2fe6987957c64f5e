// Package human formats sizes and rates for terminal output.
package human

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var p = message.NewPrinter(language.English)

var units = []string{"B", "KiB", "MiB", "GiB", "TiB"}

// Bytes renders n with a binary unit, e.g. "1.5 MiB". Values below 1 KiB
// are exact.
func Bytes(n int64) string {
	if n < 1024 {
		return p.Sprintf("%d B", n)
	}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	return p.Sprintf("%.1f %s", v, units[i])
}

// Count renders n with digit grouping, e.g. "12,345".
func Count[T ~int | ~int64 | ~uint64](n T) string {
	return p.Sprintf("%d", n)
}

// Rate renders a throughput in MB/s.
func Rate(mbps float64) string {
	return p.Sprintf("%.1f MB/s", mbps)
}

// Ratio renders out/in as a percentage of the input retained.
func Ratio(out, in int64) string {
	if in == 0 {
		return "100.0%"
	}
	return p.Sprintf("%.1f%%", 100*float64(out)/float64(in))
}

// Duration renders d rounded to a readable precision.
func Duration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return d.Round(time.Millisecond).String()
	case d >= time.Millisecond:
		return d.Round(time.Microsecond).String()
	default:
		return d.String()
	}
}
