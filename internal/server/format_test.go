package server

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kikuchi-mizuki/task-yoshimura/internal/calendar"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/freebusy"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/temporal"
)

func TestFormatDateHeader(t *testing.T) {
	cases := []struct {
		date string
		want string
	}{
		{"2025-07-07", "7/7（月）"},
		{"2025-07-10", "7/10（木）"},
		{"2025-07-13", "7/13（日）"},
	}
	for _, tc := range cases {
		if got := formatDateHeader(tc.date, jst); got != tc.want {
			t.Fatalf("formatDateHeader(%s) = %q, want %q", tc.date, got, tc.want)
		}
	}
}

func TestFormatFreeSlots(t *testing.T) {
	days := []freebusy.DaySlots{
		{Date: "2025-07-10", Slots: []freebusy.Slot{{Start: "09:00", End: "10:00"}, {Start: "12:00", End: "13:00"}}},
	}
	got := formatFreeSlots(days, jst)
	want := "✅以下が空き時間です！\n\n7/10（木）\n・09:00〜10:00\n・12:00〜13:00\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFormatFreeSlotsEmpty(t *testing.T) {
	if got := formatFreeSlots(nil, jst); got != msgNoFreeTime {
		t.Fatalf("got %q", got)
	}
	days := []freebusy.DaySlots{{Date: "2025-07-10"}}
	if got := formatFreeSlots(days, jst); got != msgNoFreeTime {
		t.Fatalf("got %q", got)
	}
}

func TestFormatFreeSlotsReportsFailedDates(t *testing.T) {
	days := []freebusy.DaySlots{
		{Date: "2025-07-10", Err: errors.New("boom")},
		{Date: "2025-07-11", Slots: []freebusy.Slot{{Start: "08:00", End: "09:00"}}},
	}
	got := formatFreeSlots(days, jst)
	if !strings.Contains(got, "予定の取得に失敗しました") {
		t.Fatalf("got %q", got)
	}
	if !strings.Contains(got, "7/11（金）") {
		t.Fatalf("sibling date lost: %q", got)
	}
}

func TestFormatAddedEventsGroupsByDate(t *testing.T) {
	entries := []temporal.Entry{
		{Date: "2025-07-10", StartTime: "14:00", EndTime: "15:00", Title: "面談"},
		{Date: "2025-07-10", StartTime: "13:00", EndTime: "14:00", Title: "移動時間（往路）"},
		{Date: "2025-07-11", StartTime: "09:00", EndTime: "10:00", Title: "定例"},
	}
	got := formatAddedEvents(entries, jst)
	if !strings.HasPrefix(got, "✅予定を追加しました！") {
		t.Fatalf("got %q", got)
	}
	if !strings.Contains(got, "7/10（木）") || !strings.Contains(got, "7/11（金）") {
		t.Fatalf("got %q", got)
	}
	if !strings.Contains(got, "1. 面談") || !strings.Contains(got, "2. 移動時間（往路）") {
		t.Fatalf("numbering wrong: %q", got)
	}
	if !strings.Contains(got, "🕐 14:00〜15:00") {
		t.Fatalf("got %q", got)
	}
}

func TestFormatConflictPrompt(t *testing.T) {
	got := formatConflictPrompt([]calendar.Event{{
		Title: "既存の会議",
		Start: time.Date(2025, 7, 10, 14, 0, 0, 0, jst),
		End:   time.Date(2025, 7, 10, 15, 0, 0, 0, jst),
	}})
	if !strings.Contains(got, "既存の会議") || !strings.Contains(got, "(14:00〜15:00)") {
		t.Fatalf("got %q", got)
	}
	if !strings.Contains(got, "「はい」と返信してください。") {
		t.Fatalf("got %q", got)
	}
}

func TestFormatAgenda(t *testing.T) {
	events := []calendar.Event{{
		Title: "朝会",
		Start: time.Date(2025, 7, 10, 9, 0, 0, 0, jst),
		End:   time.Date(2025, 7, 10, 9, 30, 0, 0, jst),
	}}
	got := formatAgenda("2025-07-10", events, jst)
	if !strings.Contains(got, "📅 7/10（木）の予定") {
		t.Fatalf("got %q", got)
	}
	if !strings.Contains(got, "・09:00〜09:30 朝会") {
		t.Fatalf("got %q", got)
	}

	empty := formatAgenda("2025-07-10", nil, jst)
	if !strings.Contains(empty, "予定はありません。") {
		t.Fatalf("got %q", empty)
	}
}
