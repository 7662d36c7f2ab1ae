package extractor

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

func formatBytes(n float64) string {
	if n <= 0 {
		return ""
	}
	return humanize.Bytes(uint64(n))
}

func formatSpeed(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return ""
	}
	return humanize.Bytes(uint64(bytesPerSec)) + "/s"
}

func formatETA(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	d := time.Duration(seconds) * time.Second
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", m, s)
}
