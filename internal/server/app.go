// Package server wires the LINE webhook, the Google auth flow and the
// temporal engine into an HTTP application.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/kikuchi-mizuki/task-yoshimura/internal/ai"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/calendar"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/config"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/freebusy"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/line"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/temporal"
)

// Store is the persistence surface the handlers use. *store.Store satisfies
// it; tests substitute an in-memory implementation.
type Store interface {
	EnsureUser(ctx context.Context, lineUserID string) error
	Authenticated(ctx context.Context, lineUserID string) (bool, error)
	ListAuthenticatedUsers(ctx context.Context) ([]string, error)
	SavePendingEvents(ctx context.Context, lineUserID string, entries []temporal.Entry) error
	PendingEvents(ctx context.Context, lineUserID string) ([]temporal.Entry, error)
	DeletePendingEvents(ctx context.Context, lineUserID string) error
	CreateOnetimeCode(ctx context.Context, lineUserID string, ttl time.Duration) (string, error)
	ConsumeOnetimeCode(ctx context.Context, code string) (string, error)
}

// CalendarService is the calendar surface the bot depends on. The concrete
// implementation is calendar.Service.
type CalendarService interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, lineUserID, code string) error
	BusyIntervals(ctx context.Context, lineUserID, date string) ([]freebusy.BusyInterval, error)
	Conflicts(ctx context.Context, lineUserID string, entry temporal.Entry, clock temporal.Clock) ([]calendar.Event, error)
	AddEvent(ctx context.Context, lineUserID string, entry temporal.Entry, clock temporal.Clock) error
	DayEvents(ctx context.Context, lineUserID, date string) ([]calendar.Event, error)
}

type App struct {
	cfg       config.Config
	store     Store
	extractor ai.Extractor
	cal       CalendarService
	messenger line.Messenger
	loc       *time.Location

	// clockFn supplies the request clock; tests pin it to a fixed instant.
	clockFn func() temporal.Clock
}

func New(cfg config.Config, st Store, extractor ai.Extractor, cal CalendarService, messenger line.Messenger) *App {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.FixedZone("JST", 9*3600)
	}
	app := &App{
		cfg:       cfg,
		store:     st,
		extractor: extractor,
		cal:       cal,
		messenger: messenger,
		loc:       loc,
	}
	app.clockFn = func() temporal.Clock {
		return temporal.NewClock(time.Now(), loc)
	}
	return app
}

func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.CORSAllowOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Line-Signature"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", a.health)
	router.POST("/callback", a.lineWebhook)
	router.GET("/onetime_login", a.onetimeLoginForm)
	router.POST("/onetime_login", a.onetimeLogin)
	router.GET("/oauth2callback", a.oauthCallback)
	router.POST("/api/send_daily_agenda", a.sendDailyAgenda)

	return router
}

func (a *App) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "schedule-assistant-api",
	})
}

func writeError(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}
