package temporal

import "testing"

func TestHasTravelCue(t *testing.T) {
	for _, text := range []string{"移動あり", "明日の会議、移動時間も入れて", "移動必要"} {
		if !HasTravelCue(text) {
			t.Fatalf("expected travel cue in %q", text)
		}
	}
	if HasTravelCue("7/10 9:00-10:00 面談") {
		t.Fatalf("unexpected travel cue")
	}
}

func TestExpandTravelBuffers(t *testing.T) {
	entries := []Entry{
		{Date: "2025-07-10", StartTime: "10:00", EndTime: "11:00", Title: "面談"},
	}
	out := ExpandTravelBuffers(entries, 60)
	if len(out) != 3 {
		t.Fatalf("got %d entries, want 3: %v", len(out), out)
	}
	if out[0].Title != "面談" {
		t.Fatalf("primary must come first, got %+v", out[0])
	}
	outbound, ret := out[1], out[2]
	if outbound.Title != TravelOutboundTitle || outbound.StartTime != "09:00" || outbound.EndTime != "10:00" {
		t.Fatalf("outbound = %+v", outbound)
	}
	if ret.Title != TravelReturnTitle || ret.StartTime != "11:00" || ret.EndTime != "12:00" {
		t.Fatalf("return = %+v", ret)
	}
	for _, e := range out[1:] {
		if !IsTravelBuffer(e) {
			t.Fatalf("expected travel buffer, got %+v", e)
		}
	}
}

func TestExpandTravelBuffersDedup(t *testing.T) {
	// Back-to-back events share a boundary; the return buffer of the first
	// and the outbound buffer of the second are the same triple.
	entries := []Entry{
		{Date: "2025-07-10", StartTime: "10:00", EndTime: "11:00", Title: "面談A"},
		{Date: "2025-07-10", StartTime: "12:00", EndTime: "13:00", Title: "面談B"},
	}
	out := ExpandTravelBuffers(entries, 60)
	if len(out) != 5 {
		t.Fatalf("got %d entries, want 5 (shared buffer deduplicated): %v", len(out), out)
	}
	seen := map[string]bool{}
	for _, e := range out {
		if IsTravelBuffer(e) && seen[e.Key()] {
			t.Fatalf("duplicate buffer %s", e.Key())
		}
		if IsTravelBuffer(e) {
			seen[e.Key()] = true
		}
	}
}

func TestExpandTravelBuffersDefaultMinutes(t *testing.T) {
	entries := []Entry{{Date: "2025-07-10", StartTime: "10:00", EndTime: "11:00", Title: "面談"}}
	out := ExpandTravelBuffers(entries, 0)
	if out[1].StartTime != "09:00" {
		t.Fatalf("zero buffer must fall back to the default, got %+v", out[1])
	}
}
