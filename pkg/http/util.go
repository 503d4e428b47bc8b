package http

import (
	"time"

	xutil "SignalTrack/pkg/util"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int { return xutil.ParseIntDefault(s, def) }

// ParseWindow parses a lookback window such as "720h", "30d" or "all".
func ParseWindow(s string) (time.Duration, error) { return xutil.ParseWindow(s) }

// ParseSince parses an absolute time or a lookback window relative to now.
func ParseSince(s string, now time.Time) (time.Time, error) { return xutil.Since(s, now) }
