package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/kikuchi-mizuki/task-yoshimura/internal/ai"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/calendar"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/freebusy"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/store"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/temporal"
)

// Availability windows are clamped to waking hours.
const (
	dayWindowStart = "08:00"
	dayWindowEnd   = "23:59"
)

var confirmWords = map[string]struct{}{
	"はい": {}, "追加": {}, "OK": {}, "Yes": {}, "yes": {},
}

// HandleMessage processes one inbound text message end to end and replies.
// The clock is captured once here so every date decision in the request sees
// the same moment.
func (a *App) HandleMessage(ctx context.Context, lineUserID, replyToken, text string) error {
	clock := a.clockFn()

	if err := a.store.EnsureUser(ctx, lineUserID); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}

	authed, err := a.store.Authenticated(ctx, lineUserID)
	if err != nil {
		return fmt.Errorf("auth check: %w", err)
	}
	if !authed {
		return a.sendAuthGuide(ctx, lineUserID, replyToken)
	}

	if _, ok := confirmWords[strings.TrimSpace(text)]; ok {
		handled, err := a.confirmPending(ctx, lineUserID, replyToken, clock)
		if err != nil || handled {
			return err
		}
	} else if cancelled, err := a.cancelPending(ctx, lineUserID, replyToken); err != nil || cancelled {
		return err
	}

	guess, err := a.extractor.Extract(ctx, text, clock)
	if err != nil {
		if !errors.Is(err, ai.ErrGuessUnavailable) {
			return fmt.Errorf("extract: %w", err)
		}
		guess = temporal.Guess{}
	}

	var result temporal.Result
	if month, ok := temporal.MonthOnlyQuery(text); ok {
		result = temporal.Result{
			Entries:        temporal.ExpandMonth(clock, month),
			Classification: temporal.AvailabilityQuery,
			Location:       strings.TrimSpace(guess.Location),
			TravelMinutes:  guess.TravelTimeMinutes,
		}
	} else {
		result = temporal.Normalize(guess, text, clock)
	}

	if len(result.Entries) == 0 {
		return a.messenger.Reply(ctx, replyToken, msgDateNotFound)
	}

	if result.Classification == temporal.EventCreation {
		return a.handleCreation(ctx, lineUserID, replyToken, text, result, clock)
	}
	return a.handleAvailability(ctx, lineUserID, replyToken, result, clock)
}

func (a *App) sendAuthGuide(ctx context.Context, lineUserID, replyToken string) error {
	ttl := time.Duration(a.cfg.OnetimeCodeTTLMinutes) * time.Minute
	code, err := a.store.CreateOnetimeCode(ctx, lineUserID, ttl)
	if err != nil {
		return fmt.Errorf("create onetime code: %w", err)
	}
	loginURL := strings.TrimRight(a.cfg.BaseURL, "/") + "/onetime_login"
	return a.messenger.Reply(ctx, replyToken, formatAuthGuide(code, loginURL))
}

// confirmPending force-adds the saved pending events on a confirmation word.
// Returns false when there was nothing pending, so the message falls through
// to normal processing.
func (a *App) confirmPending(ctx context.Context, lineUserID, replyToken string, clock temporal.Clock) (bool, error) {
	pending, err := a.store.PendingEvents(ctx, lineUserID)
	if errors.Is(err, store.ErrNoPendingSave) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load pending: %w", err)
	}
	if err := a.store.DeletePendingEvents(ctx, lineUserID); err != nil {
		return false, fmt.Errorf("delete pending: %w", err)
	}
	return true, a.addEvents(ctx, lineUserID, replyToken, pending, clock)
}

// cancelPending drops a pending confirmation when the user replies anything
// but a confirmation word.
func (a *App) cancelPending(ctx context.Context, lineUserID, replyToken string) (bool, error) {
	_, err := a.store.PendingEvents(ctx, lineUserID)
	if errors.Is(err, store.ErrNoPendingSave) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load pending: %w", err)
	}
	if err := a.store.DeletePendingEvents(ctx, lineUserID); err != nil {
		return false, fmt.Errorf("delete pending: %w", err)
	}
	return true, a.messenger.Reply(ctx, replyToken, msgAddCancelled)
}

func (a *App) handleAvailability(ctx context.Context, lineUserID, replyToken string, result temporal.Result, clock temporal.Clock) error {
	frames := make([]freebusy.Frame, 0, len(result.Entries))
	travelMargin := time.Duration(result.TravelMinutes) * time.Minute

	for _, entry := range result.Entries {
		for _, date := range entryDates(entry, clock) {
			frame := freebusy.Frame{Date: date}

			windowStart, windowEnd, ok := a.frameWindow(entry, date, clock)
			if !ok {
				frames = append(frames, frame)
				continue
			}

			busy, err := a.cal.BusyIntervals(ctx, lineUserID, date)
			if err != nil {
				log.Printf("busy lookup failed for %s: %v", date, err)
				frame.Err = err
				frames = append(frames, frame)
				continue
			}

			free, included := freebusy.ComputeFree(windowStart, windowEnd, busy, freebusy.Options{
				Location:     result.Location,
				TravelMargin: travelMargin,
			})
			if !included {
				continue
			}
			frame.Slots = freebusy.RenderSlots(free, a.loc)
			frames = append(frames, frame)
		}
	}

	days := freebusy.Aggregate(frames)
	return a.messenger.Reply(ctx, replyToken, formatFreeSlots(days, a.loc))
}

// entryDates expands a multi-day entry into its civil dates. Single-day
// entries yield just their own date.
func entryDates(entry temporal.Entry, clock temporal.Clock) []string {
	if entry.EndDate == "" || entry.EndDate == entry.Date {
		return []string{entry.Date}
	}
	start, err1 := time.ParseInLocation(temporal.DateLayout, entry.Date, clock.Location())
	end, err2 := time.ParseInLocation(temporal.DateLayout, entry.EndDate, clock.Location())
	if err1 != nil || err2 != nil || end.Before(start) {
		return []string{entry.Date}
	}
	dates := make([]string, 0, 8)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(temporal.DateLayout))
	}
	return dates
}

// frameWindow clamps an entry's span on one date to the waking-hours window.
// Returns false when the clamped window is empty, which also covers entries
// whose literal end time precedes their start.
func (a *App) frameWindow(entry temporal.Entry, date string, clock temporal.Clock) (time.Time, time.Time, bool) {
	startOfDay, err := clock.At(date, dayWindowStart)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	endOfDay, _ := clock.At(date, dayWindowEnd)

	windowStart, windowEnd := startOfDay, endOfDay
	multiDay := entry.EndDate != "" && entry.EndDate != entry.Date
	if !multiDay {
		if s, err := clock.At(date, entry.StartTime); err == nil && s.After(windowStart) {
			windowStart = s
		}
		if e, err := clock.At(date, entry.EndTime); err == nil && e.Before(windowEnd) {
			windowEnd = e
		}
	}
	if !windowEnd.After(windowStart) {
		return time.Time{}, time.Time{}, false
	}
	return windowStart, windowEnd, true
}

func (a *App) handleCreation(ctx context.Context, lineUserID, replyToken, text string, result temporal.Result, clock temporal.Clock) error {
	entries := result.Entries
	if temporal.HasTravelCue(text) {
		bufferMinutes := result.TravelMinutes
		if bufferMinutes <= 0 {
			bufferMinutes = a.cfg.TravelBufferMinutes
		}
		entries = temporal.ExpandTravelBuffers(entries, bufferMinutes)
	}

	conflicts := make([][]calendar.Event, 0)
	for _, entry := range entries {
		if temporal.IsTravelBuffer(entry) {
			continue
		}
		overlapping, err := a.cal.Conflicts(ctx, lineUserID, entry, clock)
		if err != nil {
			log.Printf("conflict check failed for %s: %v", entry.Date, err)
			continue
		}
		if len(overlapping) > 0 {
			conflicts = append(conflicts, overlapping)
		}
	}
	if len(conflicts) > 0 {
		if err := a.store.SavePendingEvents(ctx, lineUserID, entries); err != nil {
			return fmt.Errorf("save pending: %w", err)
		}
		flat := conflicts[0]
		for _, more := range conflicts[1:] {
			flat = append(flat, more...)
		}
		return a.messenger.Reply(ctx, replyToken, formatConflictPrompt(flat))
	}

	return a.addEvents(ctx, lineUserID, replyToken, entries, clock)
}

func (a *App) addEvents(ctx context.Context, lineUserID, replyToken string, entries []temporal.Entry, clock temporal.Clock) error {
	added := make([]temporal.Entry, 0, len(entries))
	failed := make([]temporal.Entry, 0)
	reasons := make([]string, 0)
	for _, entry := range entries {
		if err := a.cal.AddEvent(ctx, lineUserID, entry, clock); err != nil {
			log.Printf("add event failed for %s %s: %v", entry.Date, entry.Title, err)
			failed = append(failed, entry)
			reasons = append(reasons, "カレンダーへの登録に失敗しました")
			continue
		}
		added = append(added, entry)
	}

	if len(failed) > 0 {
		return a.messenger.Reply(ctx, replyToken, formatAddFailures(added, failed, reasons, a.loc))
	}
	return a.messenger.Reply(ctx, replyToken, formatAddedEvents(added, a.loc))
}
