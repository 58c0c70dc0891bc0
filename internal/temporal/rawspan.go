package temporal

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Pattern families tried by the raw span extractor, in order. Each family is
// applied independently over the full text; all matches contribute.
var (
	// MM/DD HH[:MM]-HH[:MM], full/half-width space tolerant, 〜/~/- separators.
	reSlashDateRange = regexp.MustCompile(`(\d{1,2})/(\d{1,2})[\s　]*([0-9]{1,2}):?([0-9]{0,2})[\-〜~]([0-9]{1,2}):?([0-9]{0,2})`)
	// Bulleted ・MM/DD H-H時.
	reBulletHourSpan = regexp.MustCompile(`[・\-]\s*(\d{1,2})/(\d{1,2})\s*([0-9]{1,2})-([0-9]{1,2})時`)
	// MM/DD H時-H時 (CJK hour suffix, no colon).
	reSlashHourSpan = regexp.MustCompile(`(\d{1,2})/(\d{1,2})\s*([0-9]{1,2})時?-([0-9]{1,2})時?`)
	// Bare DD日 HH[:MM]-HH[:MM], month inferred from the clock.
	reBareDayRange = regexp.MustCompile(`(\d{1,2})日\s*([0-9]{1,2}):?([0-9]{0,2})[\-〜~]([0-9]{1,2}):?([0-9]{0,2})`)
	// Bare DD日 with two slash-separated ranges on one line.
	reBareDayPair = regexp.MustCompile(`(\d{1,2})日\s*([0-9]{1,2}):?([0-9]{0,2})[\-〜~]([0-9]{1,2}):?([0-9]{0,2})/([0-9]{1,2}):?([0-9]{0,2})[\-〜~]([0-9]{1,2}):?([0-9]{0,2})`)

	reBareDayMarker = regexp.MustCompile(`(\d{1,2})日`)
	reTimeSpan      = regexp.MustCompile(`([0-9]{1,2}):?([0-9]{0,2})[\-〜~]([0-9]{1,2}):?([0-9]{0,2})`)
)

// ExtractRawSpans scans the original text for date+time-range spans the
// upstream guess may have missed. Output is additive and deduplicated on the
// exact (date, start, end) triple; it never merges overlapping spans. When
// the request is an event creation, candidates carry a presentation-only
// placeholder title.
func ExtractRawSpans(text string, clock Clock, creation bool) []Entry {
	out := make([]Entry, 0, 4)
	add := func(date, start, end string) {
		entry := Entry{Date: date, StartTime: start, EndTime: end}
		if creation {
			entry.Title = defaultTitle(entry)
		}
		if !containsKey(out, entry.Key()) {
			out = append(out, entry)
		}
	}

	for _, m := range reSlashDateRange.FindAllStringSubmatch(text, -1) {
		date, ok := resolveMonthDay(clock, atoi(m[1]), atoi(m[2]))
		if !ok {
			continue
		}
		add(date, clockString(m[3], m[4]), clockString(m[5], m[6]))
	}

	for _, m := range reBulletHourSpan.FindAllStringSubmatch(text, -1) {
		date, ok := resolveMonthDay(clock, atoi(m[1]), atoi(m[2]))
		if !ok {
			continue
		}
		add(date, clockString(m[3], ""), clockString(m[4], ""))
	}

	for _, m := range reSlashHourSpan.FindAllStringSubmatch(text, -1) {
		date, ok := resolveMonthDay(clock, atoi(m[1]), atoi(m[2]))
		if !ok {
			continue
		}
		add(date, clockString(m[3], ""), clockString(m[4], ""))
	}

	for _, m := range reBareDayRange.FindAllStringSubmatch(text, -1) {
		date, ok := resolveBareDay(clock, atoi(m[1]))
		if !ok {
			continue
		}
		add(date, clockString(m[2], m[3]), clockString(m[4], m[5]))
	}

	for _, m := range reBareDayPair.FindAllStringSubmatch(text, -1) {
		date, ok := resolveBareDay(clock, atoi(m[1]))
		if !ok {
			continue
		}
		add(date, clockString(m[2], m[3]), clockString(m[4], m[5]))
		add(date, clockString(m[6], m[7]), clockString(m[8], m[9]))
	}

	// Line-by-line scan: arbitrarily many ranges per DD日 line.
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		dayMatch := reBareDayMarker.FindStringSubmatch(line)
		if dayMatch == nil {
			continue
		}
		date, ok := resolveBareDay(clock, atoi(dayMatch[1]))
		if !ok {
			continue
		}
		for _, m := range reTimeSpan.FindAllStringSubmatch(line, -1) {
			add(date, clockString(m[1], m[2]), clockString(m[3], m[4]))
		}
	}

	return out
}

// resolveMonthDay applies the year inference rule: current year, rolled to
// next year when the resulting date is strictly before the current moment.
func resolveMonthDay(clock Clock, month, day int) (string, bool) {
	year := clock.Now().Year()
	dt, ok := civilDate(clock, year, month, day)
	if !ok {
		return "", false
	}
	if dt.Before(clock.Now()) {
		dt, ok = civilDate(clock, year+1, month, day)
		if !ok {
			return "", false
		}
	}
	return dt.Format(DateLayout), true
}

// resolveBareDay infers the month for a month-less day: current month, rolled
// to next month (December rolls into January) when the date already passed.
func resolveBareDay(clock Clock, day int) (string, bool) {
	year := clock.Now().Year()
	month := int(clock.Now().Month())
	dt, ok := civilDate(clock, year, month, day)
	if !ok {
		return "", false
	}
	if dt.Before(clock.Now()) {
		month++
		if month > 12 {
			month = 1
			year++
		}
		dt, ok = civilDate(clock, year, month, day)
		if !ok {
			return "", false
		}
	}
	return dt.Format(DateLayout), true
}

// civilDate builds midnight of (year, month, day) and rejects components that
// time.Date would silently normalize (e.g. 2月30日).
func civilDate(clock Clock, year, month, day int) (time.Time, bool) {
	t := clock.Midnight(year, time.Month(month), day)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func clockString(hour, minute string) string {
	if minute == "" {
		minute = "00"
	}
	return fmt.Sprintf("%02d:%s", atoi(hour), minute)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
