package freebusy

import (
	"sort"
	"time"
)

// Slot is one free span rendered as wall-clock strings for a single date.
type Slot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Frame is the per-date outcome of one free-time computation. Err records a
// lookup failure for this date so the response can keep the other dates.
type Frame struct {
	Date  string
	Slots []Slot
	Err   error
}

// DaySlots is one date's deduplicated, ordered free slots in the aggregated
// response.
type DaySlots struct {
	Date  string `json:"date"`
	Slots []Slot `json:"slots"`
	Err   error  `json:"-"`
}

// Aggregate merges per-date frames into an ordered response. Dates whose
// frame produced no slots and no error are omitted. An empty result means the
// whole query found no free time, which the presentation layer renders as its
// own terminal message.
func Aggregate(frames []Frame) []DaySlots {
	byDate := make(map[string]*DaySlots)
	order := make([]string, 0, len(frames))
	for _, f := range frames {
		day, ok := byDate[f.Date]
		if !ok {
			day = &DaySlots{Date: f.Date}
			byDate[f.Date] = day
			order = append(order, f.Date)
		}
		if f.Err != nil {
			day.Err = f.Err
			continue
		}
		for _, s := range f.Slots {
			if containsSlot(day.Slots, s) {
				continue
			}
			day.Slots = append(day.Slots, s)
		}
	}

	out := make([]DaySlots, 0, len(order))
	for _, date := range order {
		day := byDate[date]
		if len(day.Slots) == 0 && day.Err == nil {
			continue
		}
		sort.Slice(day.Slots, func(i, j int) bool {
			return day.Slots[i].Start < day.Slots[j].Start
		})
		out = append(out, *day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func containsSlot(slots []Slot, s Slot) bool {
	for _, have := range slots {
		if have.Start == s.Start && have.End == s.End {
			return true
		}
	}
	return false
}

// RenderSlots converts free intervals into wall-clock slots in loc.
func RenderSlots(free []FreeInterval, loc *time.Location) []Slot {
	slots := make([]Slot, 0, len(free))
	for _, f := range free {
		slots = append(slots, Slot{
			Start: f.Start.In(loc).Format("15:04"),
			End:   f.End.In(loc).Format("15:04"),
		})
	}
	return slots
}
