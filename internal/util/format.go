package util

import "fmt"

// FormatBitsPerSecond formats a bitrate with an appropriate SI unit.
func FormatBitsPerSecond(bps float64) string {
	return formatWithUnits(bps, []string{"bps", "Kbps", "Mbps", "Gbps", "Tbps"}, 1000)
}

// FormatBytes formats a byte count with an appropriate SI unit.
func FormatBytes(bytes float64) string {
	return formatWithUnits(bytes, []string{"B", "KB", "MB", "GB", "TB", "PB"}, 1000)
}

func formatWithUnits(value float64, units []string, base float64) string {
	if value < 0 {
		return "0"
	}
	idx := 0
	for value >= base && idx < len(units)-1 {
		value /= base
		idx++
	}
	if value >= 100 {
		return fmt.Sprintf("%.0f %s", value, units[idx])
	}
	if value >= 10 {
		return fmt.Sprintf("%.1f %s", value, units[idx])
	}
	return fmt.Sprintf("%.2f %s", value, units[idx])
}
