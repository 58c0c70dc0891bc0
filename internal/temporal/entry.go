package temporal

import (
	"fmt"
	"strings"
	"time"
)

// Upstream task type values as the language-understanding collaborator emits
// them. The derived classification always wins over these (see Normalize).
const (
	TaskAvailabilityCheck = "availability_check"
	TaskAddEvent          = "add_event"
)

type Classification int

const (
	AvailabilityQuery Classification = iota
	EventCreation
)

func (c Classification) String() string {
	if c == EventCreation {
		return TaskAddEvent
	}
	return TaskAvailabilityCheck
}

// Entry is one candidate date/time span extracted from a request. Field names
// follow the upstream guess JSON ("time" is the start time of day). Entries
// are ephemeral: built per request, discarded after the response.
type Entry struct {
	Date        string `json:"date"`
	StartTime   string `json:"time"`
	EndTime     string `json:"end_time"`
	EndDate     string `json:"end_date,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// Complete reports whether both times of day are set.
func (e Entry) Complete() bool {
	return e.StartTime != "" && e.EndTime != ""
}

// Key is the exact-match dedup key shared by the extractor, the normalizer
// merge step and the travel buffer expander.
func (e Entry) Key() string {
	return e.Date + "|" + e.StartTime + "|" + e.EndTime
}

// AllDay reports whether the entry covers the whole civil day.
func (e Entry) AllDay() bool {
	return e.StartTime == "00:00" && e.EndTime == "23:59"
}

// Guess is the structured first pass produced by the upstream
// language-understanding collaborator. Every field may be missing or partial.
type Guess struct {
	TaskType          string  `json:"task_type"`
	Dates             []Entry `json:"dates"`
	Location          string  `json:"location,omitempty"`
	TravelTimeMinutes int     `json:"travel_time_minutes,omitempty"`
}

func hasTitleOrDescription(entries []Entry) bool {
	for _, e := range entries {
		if strings.TrimSpace(e.Title) != "" || strings.TrimSpace(e.Description) != "" {
			return true
		}
	}
	return false
}

func containsKey(entries []Entry, key string) bool {
	for _, e := range entries {
		if e.Key() == key {
			return true
		}
	}
	return false
}

func containsDate(entries []Entry, date string) bool {
	for _, e := range entries {
		if e.Date == date {
			return true
		}
	}
	return false
}

// defaultTitle is the presentation-only placeholder attached to untitled
// event-creation entries.
func defaultTitle(e Entry) string {
	return fmt.Sprintf("予定（%s %s〜%s）", e.Date, e.StartTime, e.EndTime)
}

// addMinutes shifts an HH:MM time of day, wrapping at midnight the way a
// same-day civil time does.
func addMinutes(timeOfDay string, minutes int) string {
	t, err := time.Parse(TimeLayout, timeOfDay)
	if err != nil {
		return timeOfDay
	}
	return t.Add(time.Duration(minutes) * time.Minute).Format(TimeLayout)
}
