package reconcile

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ErrUnparseableDate is returned when no known format matches a date value.
var ErrUnparseableDate = errors.New("reconcile: unparseable date")

// Tried in order; the first layout that yields a valid date wins, so an
// ambiguous value such as 03/04/2025 always reads as day/month.
var dateLayouts = []string{
	"2006-1-2",
	"2/1/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"2006/1/2",
	"1-2-2006",
	"2-1-2006",
}

var timeSuffixes = []string{"", " 15:04", " 15:04:05"}

var italianMonths = map[string]time.Month{
	"gennaio":   time.January,
	"febbraio":  time.February,
	"marzo":     time.March,
	"aprile":    time.April,
	"maggio":    time.May,
	"giugno":    time.June,
	"luglio":    time.July,
	"agosto":    time.August,
	"settembre": time.September,
	"ottobre":   time.October,
	"novembre":  time.November,
	"dicembre":  time.December,
	"gen":       time.January,
	"feb":       time.February,
	"mar":       time.March,
	"apr":       time.April,
	"mag":       time.May,
	"giu":       time.June,
	"lug":       time.July,
	"ago":       time.August,
	"set":       time.September,
	"ott":       time.October,
	"nov":       time.November,
	"dic":       time.December,
}

// TikTok exports omit the year: "14 luglio".
var bareDayMonth = regexp.MustCompile(`^(\d{1,2})\s+(\p{L}+)\.?$`)

// DateParser turns export date strings into calendar dates.
type DateParser struct {
	// ReferenceYear is used for year-less TikTok dates. Zero means the
	// current year according to Now.
	ReferenceYear int
	// Now defaults to time.Now.
	Now func() time.Time
	// Location is the zone the author schedules in. Dates without an offset
	// are read in it and calendar days are compared in it. Nil means UTC.
	Location *time.Location
}

func (p DateParser) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

func (p DateParser) year() int {
	if p.ReferenceYear > 0 {
		return p.ReferenceYear
	}
	if p.Now != nil {
		return p.Now().In(p.location()).Year()
	}
	return time.Now().In(p.location()).Year()
}

// ParseDate parses raw as exported by platform.
func (p DateParser) ParseDate(platform, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrUnparseableDate
	}

	if platformKey(platform) == "tiktok" {
		if t, ok := p.parseDayMonth(raw); ok {
			return t, nil
		}
	}

	for _, layout := range dateLayouts {
		for _, suffix := range timeSuffixes {
			if t, err := time.ParseInLocation(layout+suffix, raw, p.location()); err == nil {
				return t, nil
			}
		}
	}

	if t, err := dateparse.ParseIn(raw, p.location()); err == nil {
		return t.In(p.location()), nil
	}
	return time.Time{}, ErrUnparseableDate
}

func (p DateParser) parseDayMonth(raw string) (time.Time, bool) {
	m := bareDayMonth.FindStringSubmatch(raw)
	if m == nil {
		return time.Time{}, false
	}
	month, ok := italianMonths[strings.ToLower(m[2])]
	if !ok {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(m[1])
	if err != nil || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(p.year(), month, day, 0, 0, 0, 0, p.location())
	if t.Day() != day {
		// 31 aprile and friends
		return time.Time{}, false
	}
	return t, true
}
