package gateway

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	defaultWhatToShow = "TRADES"
	historicalEndTag  = "finished"
	venueTimeLayout   = "20060102 15:04:05"
)

var barTimeLayouts = []string{
	"20060102  15:04:05",
	venueTimeLayout,
	"20060102-15:04:05",
	"20060102",
	time.RFC3339Nano,
}

func whatToShowOrDefault(v string) string {
	v = strings.ToUpper(strings.TrimSpace(v))
	if v == "" {
		return defaultWhatToShow
	}
	return v
}

// IsHistoricalEnd reports whether a historical bar date is the end-of-request marker.
func IsHistoricalEnd(date string) bool {
	return strings.HasPrefix(strings.TrimSpace(date), historicalEndTag)
}

// ParseVenueTime parses the venue's bar and execution timestamps. Numeric
// values are unix seconds; layouts without a zone are read in loc.
func ParseVenueTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty venue time")
	}
	if loc == nil {
		loc = time.UTC
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil && len(value) != len("20060102") {
		return time.Unix(secs, 0).UTC(), nil
	}
	// Trailing zone names such as "US/Eastern" are resolved when known.
	if fields := strings.Fields(value); len(fields) == 3 {
		if zone, err := time.LoadLocation(fields[2]); err == nil {
			loc = zone
			value = fields[0] + " " + fields[1]
		}
	}
	for _, layout := range barTimeLayouts {
		if ts, err := time.ParseInLocation(layout, value, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised venue time %q", value)
}

// NewHistoricalQuery derives venue parameters for the [from, to) range.
func NewHistoricalQuery(from, to time.Time, barSize time.Duration, whatToShow string) HistoricalQuery {
	return HistoricalQuery{
		EndDateTime: to.UTC().Format(venueTimeLayout) + " UTC",
		Duration:    durationString(to.Sub(from)),
		BarSize:     barSizeSetting(barSize),
		WhatToShow:  whatToShowOrDefault(whatToShow),
		UseRTH:      false,
		FormatDate:  1,
	}
}

func durationString(d time.Duration) string {
	const day = 24 * time.Hour
	if d <= 0 {
		return "1 D"
	}
	if d < day {
		secs := int64((d + time.Second - 1) / time.Second)
		return strconv.FormatInt(secs, 10) + " S"
	}
	days := int64((d + day - 1) / day)
	return strconv.FormatInt(days, 10) + " D"
}

func barSizeSetting(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return plural(int64(d/(24*time.Hour)), "day", "days")
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int64(d/time.Hour), "hour", "hours")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int64(d/time.Minute), "min", "mins")
	default:
		secs := int64(d / time.Second)
		if secs < 1 {
			secs = 1
		}
		return strconv.FormatInt(secs, 10) + " secs"
	}
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return strconv.FormatInt(n, 10) + " " + many
}
