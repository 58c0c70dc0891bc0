package temporal

import (
	"fmt"
	"regexp"
	"strings"
)

// Cue patterns used during per-entry repair.
var (
	reHourSpanCue  = regexp.MustCompile(`(\d{1,2})[\-〜~](\d{1,2})時`)
	reAfterHourCue = regexp.MustCompile(`(\d{1,2})時以降`)
	reTodayHourCue = map[string]*regexp.Regexp{
		"今日": regexp.MustCompile(`今日(\d{1,2})時`),
		"本日": regexp.MustCompile(`本日(\d{1,2})時`),
	}
)

// Result is the canonical output of normalization: repaired entries plus the
// derived task classification and the pass-through request hints.
type Result struct {
	Entries        []Entry
	Classification Classification
	Location       string
	TravelMinutes  int
}

// Normalize reconciles the upstream guess against the raw text: repairs
// entries with missing fields from language cues, merges in raw-span
// candidates the guess missed, drops unresolvable entries and derives the
// task classification from what survives.
//
// Repair only touches entries missing a start or end time; re-running
// Normalize on its own output leaves every surviving entry unchanged.
func Normalize(guess Guess, rawText string, clock Clock) Result {
	// The upstream task type only counts as event creation when the guess
	// actually carries a title or description; a bare date list is always an
	// availability query no matter what the collaborator claimed.
	creation := guess.TaskType == TaskAddEvent && hasTitleOrDescription(guess.Dates)

	repaired := repairEntries(guess.Dates, rawText, clock, creation)

	for _, candidate := range ExtractRawSpans(rawText, clock, creation) {
		if !containsKey(repaired, candidate.Key()) {
			repaired = append(repaired, candidate)
		}
	}

	surviving := repaired[:0:0]
	for _, e := range repaired {
		if e.Date == "" || !e.Complete() {
			continue
		}
		surviving = append(surviving, e)
	}

	classification := AvailabilityQuery
	if hasTitleOrDescription(surviving) {
		classification = EventCreation
	}

	return Result{
		Entries:        surviving,
		Classification: classification,
		Location:       strings.TrimSpace(guess.Location),
		TravelMinutes:  guess.TravelTimeMinutes,
	}
}

// repairEntries applies the cue rules to each entry in order. The checks are
// an unconditional sequence, not mutually exclusive branches; the only
// override is the 今日/本日 rule, which re-asserts end = start + 1h as its
// final step even when another rule already set an end time.
func repairEntries(dates []Entry, rawText string, clock Clock, creation bool) []Entry {
	alldayDates := make(map[string]struct{})
	out := make([]Entry, 0, len(dates))

	for _, d := range dates {
		phrase := d.Description
		if phrase == "" {
			phrase = rawText
		}

		// Entries with both times already set pass through untouched.
		if d.Complete() {
			out = append(out, d)
			continue
		}

		if m := reHourSpanCue.FindStringSubmatch(phrase); m != nil {
			d.StartTime = fmt.Sprintf("%02d:00", atoi(m[1]))
			d.EndTime = fmt.Sprintf("%02d:00", atoi(m[2]))
		}

		if d.StartTime == "" || d.EndTime == "" {
			if m := reAfterHourCue.FindStringSubmatch(phrase); m != nil {
				d.StartTime = fmt.Sprintf("%02d:00", atoi(m[1]))
				d.EndTime = "23:59"
			}
		}

		// 終日, or no time information at all. At most one all-day entry
		// survives per date.
		if (d.StartTime == "" && d.EndTime == "") || strings.Contains(phrase, "終日") {
			d.StartTime = "00:00"
			d.EndTime = "23:59"
			if _, seen := alldayDates[d.Date]; seen {
				continue
			}
			alldayDates[d.Date] = struct{}{}
		}

		if strings.Contains(phrase, "明日") {
			d.Date = clock.Now().AddDate(0, 0, 1).Format(DateLayout)
			if d.StartTime == "" {
				d.StartTime = "08:00"
			}
			if d.EndTime == "" {
				d.EndTime = "23:59"
			}
		}

		for _, cue := range []string{"今日", "本日"} {
			if !strings.Contains(phrase, cue) {
				continue
			}
			d.Date = clock.Today()
			if m := reTodayHourCue[cue].FindStringSubmatch(phrase); m != nil {
				hour := atoi(m[1])
				d.StartTime = fmt.Sprintf("%02d:00", hour)
				d.EndTime = fmt.Sprintf("%02d:00", hour+1)
			} else if d.StartTime == "" {
				d.StartTime = clock.TimeOfDay()
			}
			// Forced override: for a today cue the end time is always one
			// hour after the start, even when another rule set it already.
			if d.StartTime != "" {
				d.EndTime = addMinutes(d.StartTime, 60)
			}
		}

		// 来週 replaces the entry with the seven days of the following week.
		if strings.Contains(phrase, "来週") {
			for _, date := range nextWeekDates(clock) {
				if containsDate(out, date) {
					continue
				}
				out = append(out, Entry{Date: date, StartTime: "08:00", EndTime: "23:59"})
			}
			continue
		}

		if strings.Contains(phrase, "今日から1週間") {
			d.Date = clock.Today()
			d.EndDate = clock.Now().AddDate(0, 0, 6).Format(DateLayout)
			d.StartTime = "00:00"
			d.EndTime = "23:59"
		}

		if d.StartTime != "" && d.EndTime == "" {
			d.EndTime = addMinutes(d.StartTime, 60)
		}

		if strings.TrimSpace(d.Title) == "" {
			if d.Description != "" {
				d.Title = d.Description
			} else if creation {
				d.Title = defaultTitle(d)
			}
		}

		out = append(out, d)
	}
	return out
}

// nextWeekDates returns the Monday through Sunday of the following week. When
// today is a Monday the whole next week is used, never the current one.
func nextWeekDates(clock Clock) []string {
	weekday := (int(clock.Now().Weekday()) + 6) % 7 // Monday = 0
	daysUntilMonday := (7 - weekday) % 7
	if daysUntilMonday == 0 {
		daysUntilMonday = 7
	}
	monday := clock.Now().AddDate(0, 0, daysUntilMonday)

	dates := make([]string, 0, 7)
	for i := 0; i < 7; i++ {
		dates = append(dates, monday.AddDate(0, 0, i).Format(DateLayout))
	}
	return dates
}
