// Package calendar wraps the Google Calendar API: per-user OAuth tokens,
// busy-interval lookups and event insertion.
package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/kikuchi-mizuki/task-yoshimura/internal/config"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/freebusy"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/store"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/temporal"
)

// TokenStore persists per-user Google OAuth tokens.
type TokenStore interface {
	GoogleToken(ctx context.Context, lineUserID string) (store.TokenRecord, error)
	SaveGoogleToken(ctx context.Context, lineUserID string, record store.TokenRecord) error
}

// Event is a stored calendar event in the simplified shape the bot renders.
type Event struct {
	Title string
	Start time.Time
	End   time.Time
}

type Service struct {
	oauthConfig *oauth2.Config
	tokens      TokenStore
	calendarID  string
	loc         *time.Location
}

func New(cfg config.Config, tokens TokenStore, loc *time.Location) *Service {
	return &Service{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes:       []string{gcal.CalendarScope},
			Endpoint:     google.Endpoint,
		},
		tokens:     tokens,
		calendarID: cfg.GoogleCalendarID,
		loc:        loc,
	}
}

// AuthURL returns the Google consent page URL for the given signed state.
func (s *Service) AuthURL(state string) string {
	return s.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and stores it for the
// user.
func (s *Service) Exchange(ctx context.Context, lineUserID, code string) error {
	token, err := s.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("oauth exchange: %w", err)
	}
	return s.tokens.SaveGoogleToken(ctx, lineUserID, store.TokenRecord{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
	})
}

// persistingTokenSource saves refreshed tokens back to the store so the next
// request does not have to refresh again.
type persistingTokenSource struct {
	ctx        context.Context
	base       oauth2.TokenSource
	tokens     TokenStore
	lineUserID string
	lastAccess string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	if token.AccessToken != p.lastAccess {
		p.lastAccess = token.AccessToken
		saveErr := p.tokens.SaveGoogleToken(p.ctx, p.lineUserID, store.TokenRecord{
			AccessToken:  token.AccessToken,
			RefreshToken: token.RefreshToken,
			TokenType:    token.TokenType,
			Expiry:       token.Expiry,
		})
		if saveErr != nil {
			return nil, saveErr
		}
	}
	return token, nil
}

func (s *Service) clientFor(ctx context.Context, lineUserID string) (*gcal.Service, error) {
	record, err := s.tokens.GoogleToken(ctx, lineUserID)
	if err != nil {
		return nil, err
	}
	token := &oauth2.Token{
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		TokenType:    record.TokenType,
		Expiry:       record.Expiry,
	}
	source := &persistingTokenSource{
		ctx:        ctx,
		base:       s.oauthConfig.TokenSource(ctx, token),
		tokens:     s.tokens,
		lineUserID: lineUserID,
		lastAccess: token.AccessToken,
	}
	return gcal.NewService(ctx, option.WithTokenSource(source))
}

func (s *Service) listEvents(svc *gcal.Service, windowStart, windowEnd time.Time) ([]*gcal.Event, error) {
	call := svc.Events.List(s.calendarID).
		TimeMin(windowStart.Format(time.RFC3339)).
		TimeMax(windowEnd.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		ShowDeleted(false)

	events := []*gcal.Event{}
	pageToken := ""
	for {
		if pageToken != "" {
			call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, err
		}
		events = append(events, resp.Items...)
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return events, nil
}

// BusyIntervals returns the user's events overlapping one civil day, in the
// shape the interval calculator consumes. All-day events keep their marker
// role; timed events become busy spans.
func (s *Service) BusyIntervals(ctx context.Context, lineUserID, date string) ([]freebusy.BusyInterval, error) {
	day, err := time.ParseInLocation(temporal.DateLayout, date, s.loc)
	if err != nil {
		return nil, fmt.Errorf("bad date %q: %w", date, err)
	}
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	svc, err := s.clientFor(ctx, lineUserID)
	if err != nil {
		return nil, err
	}
	events, err := s.listEvents(svc, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}

	busy := make([]freebusy.BusyInterval, 0, len(events))
	for _, e := range events {
		if strings.EqualFold(e.Status, "cancelled") {
			continue
		}
		if strings.EqualFold(e.Transparency, "transparent") {
			continue
		}
		interval, ok := s.eventInterval(e, dayStart, dayEnd)
		if !ok {
			continue
		}
		busy = append(busy, interval)
	}
	return busy, nil
}

func (s *Service) eventInterval(e *gcal.Event, dayStart, dayEnd time.Time) (freebusy.BusyInterval, bool) {
	if e.Start != nil && e.Start.DateTime != "" && e.End != nil && e.End.DateTime != "" {
		start, err1 := time.Parse(time.RFC3339, e.Start.DateTime)
		end, err2 := time.Parse(time.RFC3339, e.End.DateTime)
		if err1 != nil || err2 != nil || !end.After(start) {
			return freebusy.BusyInterval{}, false
		}
		return freebusy.BusyInterval{
			Start:    start.In(s.loc),
			End:      end.In(s.loc),
			Title:    e.Summary,
			Location: e.Location,
		}, true
	}
	if e.Start != nil && e.Start.Date != "" {
		// All-day event: spans the whole civil day, marker only.
		return freebusy.BusyInterval{
			Start:    dayStart,
			End:      dayEnd,
			Title:    e.Summary,
			Location: e.Location,
			AllDay:   true,
		}, true
	}
	return freebusy.BusyInterval{}, false
}

// Conflicts returns the timed events overlapping an entry's span. All-day
// events never count as conflicts.
func (s *Service) Conflicts(ctx context.Context, lineUserID string, entry temporal.Entry, clock temporal.Clock) ([]Event, error) {
	start, end, err := entrySpan(entry, clock)
	if err != nil {
		return nil, err
	}
	busy, err := s.BusyIntervals(ctx, lineUserID, entry.Date)
	if err != nil {
		return nil, err
	}
	conflicts := []Event{}
	for _, b := range busy {
		if b.AllDay || temporal.IsTravelTitle(b.Title) {
			continue
		}
		if b.Start.Before(end) && start.Before(b.End) {
			conflicts = append(conflicts, Event{Title: b.Title, Start: b.Start, End: b.End})
		}
	}
	return conflicts, nil
}

// AddEvent inserts one event into the user's calendar.
func (s *Service) AddEvent(ctx context.Context, lineUserID string, entry temporal.Entry, clock temporal.Clock) error {
	start, end, err := entrySpan(entry, clock)
	if err != nil {
		return err
	}
	svc, err := s.clientFor(ctx, lineUserID)
	if err != nil {
		return err
	}
	event := &gcal.Event{
		Summary:     entry.Title,
		Description: entry.Description,
		Start:       &gcal.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: s.loc.String()},
		End:         &gcal.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: s.loc.String()},
	}
	_, err = svc.Events.Insert(s.calendarID, event).Context(ctx).Do()
	return err
}

// DayEvents returns the user's timed events on one civil day, for the daily
// agenda push.
func (s *Service) DayEvents(ctx context.Context, lineUserID, date string) ([]Event, error) {
	busy, err := s.BusyIntervals(ctx, lineUserID, date)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(busy))
	for _, b := range busy {
		if b.AllDay {
			continue
		}
		events = append(events, Event{Title: b.Title, Start: b.Start, End: b.End})
	}
	return events, nil
}

// entrySpan resolves an entry's civil date and times into instants. An end
// time at or before the start spills into the next day so the API accepts
// the event.
func entrySpan(entry temporal.Entry, clock temporal.Clock) (time.Time, time.Time, error) {
	start, err := clock.At(entry.Date, entry.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad entry start: %w", err)
	}
	endDate := entry.Date
	if entry.EndDate != "" {
		endDate = entry.EndDate
	}
	end, err := clock.At(endDate, entry.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad entry end: %w", err)
	}
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, nil
}
