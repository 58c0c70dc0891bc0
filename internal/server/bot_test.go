package server

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kikuchi-mizuki/task-yoshimura/internal/calendar"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/config"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/freebusy"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/store"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/temporal"
)

var jst = time.FixedZone("JST", 9*3600)

func init() {
	gin.SetMode(gin.TestMode)
}

// memStore is an in-memory Store for handler tests.
type memStore struct {
	users    map[string]bool
	authed   map[string]bool
	pending  map[string][]temporal.Entry
	codes    map[string]string
	lastCode string
}

func newMemStore() *memStore {
	return &memStore{
		users:   map[string]bool{},
		authed:  map[string]bool{},
		pending: map[string][]temporal.Entry{},
		codes:   map[string]string{},
	}
}

func (m *memStore) EnsureUser(_ context.Context, id string) error {
	m.users[id] = true
	return nil
}

func (m *memStore) Authenticated(_ context.Context, id string) (bool, error) {
	return m.authed[id], nil
}

func (m *memStore) ListAuthenticatedUsers(_ context.Context) ([]string, error) {
	users := []string{}
	for id, ok := range m.authed {
		if ok {
			users = append(users, id)
		}
	}
	return users, nil
}

func (m *memStore) SavePendingEvents(_ context.Context, id string, entries []temporal.Entry) error {
	m.pending[id] = entries
	return nil
}

func (m *memStore) PendingEvents(_ context.Context, id string) ([]temporal.Entry, error) {
	entries, ok := m.pending[id]
	if !ok {
		return nil, store.ErrNoPendingSave
	}
	return entries, nil
}

func (m *memStore) DeletePendingEvents(_ context.Context, id string) error {
	delete(m.pending, id)
	return nil
}

func (m *memStore) CreateOnetimeCode(_ context.Context, id string, _ time.Duration) (string, error) {
	code := "code-" + id
	m.codes[code] = id
	m.lastCode = code
	return code, nil
}

func (m *memStore) ConsumeOnetimeCode(_ context.Context, code string) (string, error) {
	id, ok := m.codes[code]
	if !ok {
		return "", store.ErrCodeInvalid
	}
	delete(m.codes, code)
	return id, nil
}

// stubExtractor returns a scripted guess.
type stubExtractor struct {
	guess temporal.Guess
	err   error
}

func (s stubExtractor) Extract(_ context.Context, _ string, _ temporal.Clock) (temporal.Guess, error) {
	return s.guess, s.err
}

// stubCalendar serves canned busy intervals and records added events.
type stubCalendar struct {
	busy      map[string][]freebusy.BusyInterval
	conflicts []calendar.Event
	added     []temporal.Entry
	addErr    error
}

func (s *stubCalendar) AuthURL(state string) string { return "https://accounts.example/auth?state=" + state }

func (s *stubCalendar) Exchange(_ context.Context, _, _ string) error { return nil }

func (s *stubCalendar) BusyIntervals(_ context.Context, _, date string) ([]freebusy.BusyInterval, error) {
	return s.busy[date], nil
}

func (s *stubCalendar) Conflicts(_ context.Context, _ string, _ temporal.Entry, _ temporal.Clock) ([]calendar.Event, error) {
	return s.conflicts, nil
}

func (s *stubCalendar) AddEvent(_ context.Context, _ string, entry temporal.Entry, _ temporal.Clock) error {
	if s.addErr != nil {
		return s.addErr
	}
	s.added = append(s.added, entry)
	return nil
}

func (s *stubCalendar) DayEvents(_ context.Context, _, _ string) ([]calendar.Event, error) {
	return nil, nil
}

// captureMessenger records outbound messages.
type captureMessenger struct {
	replies []string
	pushes  []string
}

func (m *captureMessenger) Reply(_ context.Context, _ string, text string) error {
	m.replies = append(m.replies, text)
	return nil
}

func (m *captureMessenger) Push(_ context.Context, _ string, text string) error {
	m.pushes = append(m.pushes, text)
	return nil
}

func testConfig() config.Config {
	return config.Config{
		AppPort:               "8000",
		BaseURL:               "http://localhost:8000",
		Timezone:              "Asia/Tokyo",
		LINEChannelSecret:     "test-channel-secret",
		JWTSecret:             "test-jwt-secret-0123456789",
		OnetimeCodeTTLMinutes: 10,
		TravelBufferMinutes:   60,
	}
}

func newTestApp(st Store, extractor stubExtractor, cal *stubCalendar, m *captureMessenger) *App {
	app := New(testConfig(), st, extractor, cal, m)
	app.clockFn = func() temporal.Clock {
		return temporal.NewClock(time.Date(2025, 7, 1, 10, 0, 0, 0, jst), jst)
	}
	return app
}

func lastReply(t *testing.T, m *captureMessenger) string {
	t.Helper()
	if len(m.replies) == 0 {
		t.Fatalf("no reply sent")
	}
	return m.replies[len(m.replies)-1]
}

func TestHandleMessageUnauthenticatedGetsAuthGuide(t *testing.T) {
	st := newMemStore()
	m := &captureMessenger{}
	app := newTestApp(st, stubExtractor{}, &stubCalendar{}, m)

	if err := app.HandleMessage(context.Background(), "U1", "rt", "来週の空き時間"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	reply := lastReply(t, m)
	if !strings.Contains(reply, "ワンタイムコード") || !strings.Contains(reply, st.lastCode) {
		t.Fatalf("reply = %q", reply)
	}
	if !strings.Contains(reply, "/onetime_login") {
		t.Fatalf("reply lacks the login URL: %q", reply)
	}
}

func TestHandleMessageAvailability(t *testing.T) {
	st := newMemStore()
	st.authed["U1"] = true
	cal := &stubCalendar{busy: map[string][]freebusy.BusyInterval{
		"2025-07-10": {{
			Start: time.Date(2025, 7, 10, 9, 30, 0, 0, jst),
			End:   time.Date(2025, 7, 10, 9, 45, 0, 0, jst),
			Title: "朝会",
		}},
	}}
	m := &captureMessenger{}
	app := newTestApp(st, stubExtractor{}, cal, m)

	if err := app.HandleMessage(context.Background(), "U1", "rt", "・7/10 9-10時\n・7/11 9-10時"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	reply := lastReply(t, m)
	if !strings.Contains(reply, "✅以下が空き時間です！") {
		t.Fatalf("reply = %q", reply)
	}
	if !strings.Contains(reply, "7/10（木）") || !strings.Contains(reply, "7/11（金）") {
		t.Fatalf("reply = %q", reply)
	}
	if !strings.Contains(reply, "・09:00〜09:30") || !strings.Contains(reply, "・09:45〜10:00") {
		t.Fatalf("busy interval not subtracted: %q", reply)
	}
	if !strings.Contains(reply, "・09:00〜10:00") {
		t.Fatalf("free day 7/11 missing full span: %q", reply)
	}
}

func TestHandleMessageAvailabilityEmptyWindow(t *testing.T) {
	// End before start leaves an empty frame; the whole query reports no
	// free time rather than inventing an overnight span.
	st := newMemStore()
	st.authed["U1"] = true
	m := &captureMessenger{}
	app := newTestApp(st, stubExtractor{}, &stubCalendar{}, m)

	if err := app.HandleMessage(context.Background(), "U1", "rt", "7/20 13:00-0:00"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if got := lastReply(t, m); got != msgNoFreeTime {
		t.Fatalf("reply = %q, want %q", got, msgNoFreeTime)
	}
}

func TestHandleMessageLocationGate(t *testing.T) {
	st := newMemStore()
	st.authed["U1"] = true
	cal := &stubCalendar{busy: map[string][]freebusy.BusyInterval{
		"2025-07-10": {{
			Start:  time.Date(2025, 7, 10, 0, 0, 0, 0, jst),
			End:    time.Date(2025, 7, 11, 0, 0, 0, 0, jst),
			Title:  "東京出張",
			AllDay: true,
		}},
	}}
	m := &captureMessenger{}
	extractor := stubExtractor{guess: temporal.Guess{
		TaskType: temporal.TaskAvailabilityCheck,
		Location: "東京",
	}}
	app := newTestApp(st, extractor, cal, m)

	// 7/10 carries the marker, 7/11 does not and is excluded.
	if err := app.HandleMessage(context.Background(), "U1", "rt", "7/10 9:00-10:00と7/11 9:00-10:00"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	reply := lastReply(t, m)
	if !strings.Contains(reply, "7/10（木）") {
		t.Fatalf("gated date missing: %q", reply)
	}
	if strings.Contains(reply, "7/11") {
		t.Fatalf("date without marker must be excluded: %q", reply)
	}
}

func TestHandleMessageCreationWithTravelBuffers(t *testing.T) {
	st := newMemStore()
	st.authed["U1"] = true
	cal := &stubCalendar{}
	m := &captureMessenger{}
	extractor := stubExtractor{guess: temporal.Guess{
		TaskType: temporal.TaskAddEvent,
		Dates: []temporal.Entry{{
			Date: "2025-07-10", StartTime: "14:00", EndTime: "15:00", Title: "面談",
		}},
	}}
	app := newTestApp(st, extractor, cal, m)

	if err := app.HandleMessage(context.Background(), "U1", "rt", "7/10 14:00-15:00 面談を追加、移動あり"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(cal.added) != 3 {
		t.Fatalf("added %d events, want primary plus two buffers: %v", len(cal.added), cal.added)
	}
	reply := lastReply(t, m)
	if !strings.Contains(reply, "✅予定を追加しました！") {
		t.Fatalf("reply = %q", reply)
	}
	if !strings.Contains(reply, "移動時間（往路）") || !strings.Contains(reply, "移動時間（復路）") {
		t.Fatalf("buffers missing from confirmation: %q", reply)
	}
}

func TestHandleMessageConflictSavesPendingAndConfirms(t *testing.T) {
	st := newMemStore()
	st.authed["U1"] = true
	cal := &stubCalendar{conflicts: []calendar.Event{{
		Title: "既存の会議",
		Start: time.Date(2025, 7, 10, 14, 0, 0, 0, jst),
		End:   time.Date(2025, 7, 10, 15, 0, 0, 0, jst),
	}}}
	m := &captureMessenger{}
	extractor := stubExtractor{guess: temporal.Guess{
		TaskType: temporal.TaskAddEvent,
		Dates: []temporal.Entry{{
			Date: "2025-07-10", StartTime: "14:00", EndTime: "15:00", Title: "面談",
		}},
	}}
	app := newTestApp(st, extractor, cal, m)
	ctx := context.Background()

	if err := app.HandleMessage(ctx, "U1", "rt1", "7/10 14:00-15:00 面談を追加"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	reply := lastReply(t, m)
	if !strings.Contains(reply, "⚠️ この時間帯に既に予定が存在します") || !strings.Contains(reply, "既存の会議") {
		t.Fatalf("reply = %q", reply)
	}
	if len(st.pending["U1"]) == 0 {
		t.Fatalf("pending events not saved")
	}
	if len(cal.added) != 0 {
		t.Fatalf("nothing should be added before confirmation")
	}

	// 「はい」 force-adds the saved entries.
	if err := app.HandleMessage(ctx, "U1", "rt2", "はい"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(cal.added) != 1 || cal.added[0].Title != "面談" {
		t.Fatalf("added = %v", cal.added)
	}
	if _, ok := st.pending["U1"]; ok {
		t.Fatalf("pending not cleared after confirmation")
	}
	if !strings.Contains(lastReply(t, m), "✅予定を追加しました！") {
		t.Fatalf("reply = %q", lastReply(t, m))
	}
}

func TestHandleMessageNonConfirmCancelsPending(t *testing.T) {
	st := newMemStore()
	st.authed["U1"] = true
	st.pending["U1"] = []temporal.Entry{{Date: "2025-07-10", StartTime: "14:00", EndTime: "15:00", Title: "面談"}}
	cal := &stubCalendar{}
	m := &captureMessenger{}
	app := newTestApp(st, stubExtractor{}, cal, m)

	if err := app.HandleMessage(context.Background(), "U1", "rt", "やっぱりやめる"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if got := lastReply(t, m); got != msgAddCancelled {
		t.Fatalf("reply = %q, want %q", got, msgAddCancelled)
	}
	if _, ok := st.pending["U1"]; ok {
		t.Fatalf("pending not cleared on cancel")
	}
	if len(cal.added) != 0 {
		t.Fatalf("cancel must not add events")
	}
}

func TestHandleMessageUnrecognizedDate(t *testing.T) {
	st := newMemStore()
	st.authed["U1"] = true
	m := &captureMessenger{}
	app := newTestApp(st, stubExtractor{}, &stubCalendar{}, m)

	if err := app.HandleMessage(context.Background(), "U1", "rt", "こんにちは"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if got := lastReply(t, m); got != msgDateNotFound {
		t.Fatalf("reply = %q", got)
	}
}

func TestHandleMessageMonthExpansion(t *testing.T) {
	st := newMemStore()
	st.authed["U1"] = true
	busy := map[string][]freebusy.BusyInterval{}
	cal := &stubCalendar{busy: busy}
	m := &captureMessenger{}
	app := newTestApp(st, stubExtractor{}, cal, m)

	if err := app.HandleMessage(context.Background(), "U1", "rt", "11月の空き時間"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	reply := lastReply(t, m)
	if !strings.Contains(reply, "11/1（土）") || !strings.Contains(reply, "11/30（日）") {
		t.Fatalf("month not fully expanded: %q", reply)
	}
}
