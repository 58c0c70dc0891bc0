package temporal

import (
	"regexp"
	"strings"
	"time"
)

var (
	reMonthOnly = regexp.MustCompile(`(\d{1,2})月`)
	reAnyDay    = regexp.MustCompile(`\d{1,2}日`)

	relativeDayWords = []string{"明日", "明後日", "今日", "本日"}
)

// MonthOnlyQuery detects inputs like 「11月の空き時間」: a month marker with
// no explicit day and no relative day word. Those expand to the whole month.
func MonthOnlyQuery(text string) (int, bool) {
	m := reMonthOnly.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	if reAnyDay.MatchString(text) {
		return 0, false
	}
	for _, word := range relativeDayWords {
		if strings.Contains(text, word) {
			return 0, false
		}
	}
	month := atoi(m[1])
	if month < 1 || month > 12 {
		return 0, false
	}
	return month, true
}

// ExpandMonth produces one availability entry per day of the given month,
// 08:00 through 23:59, using next year when the month already passed.
func ExpandMonth(clock Clock, month int) []Entry {
	year := clock.Now().Year()
	if month < int(clock.Now().Month()) {
		year++
	}

	first := clock.Midnight(year, time.Month(month), 1)
	entries := make([]Entry, 0, 31)
	for day := first; int(day.Month()) == month; day = day.AddDate(0, 0, 1) {
		entries = append(entries, Entry{
			Date:      day.Format(DateLayout),
			StartTime: "08:00",
			EndTime:   "23:59",
		})
	}
	return entries
}
