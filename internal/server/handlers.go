package server

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kikuchi-mizuki/task-yoshimura/internal/line"
)

// lineWebhook receives message events from the LINE platform. The signature
// covers the raw body, so the body is read before any JSON decoding.
func (a *App) lineWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, http.StatusBadRequest, "Cannot read request body")
		return
	}

	signature := c.GetHeader("X-Line-Signature")
	if !line.ValidSignature(a.cfg.LINEChannelSecret, body, signature) {
		writeError(c, http.StatusBadRequest, "Invalid signature")
		return
	}

	var req line.WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid webhook payload")
		return
	}

	ctx := c.Request.Context()
	for _, event := range req.Events {
		if !event.TextMessage() {
			continue
		}
		if err := a.HandleMessage(ctx, event.Source.UserID, event.ReplyToken, event.Message.Text); err != nil {
			log.Printf("webhook message handling failed: %v", err)
		}
	}
	c.String(http.StatusOK, "OK")
}

// sendDailyAgenda pushes today's events to every linked user. Invoked by an
// external scheduler.
func (a *App) sendDailyAgenda(c *gin.Context) {
	ctx := c.Request.Context()
	clock := a.clockFn()
	today := clock.Today()

	users, err := a.store.ListAuthenticatedUsers(ctx)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Cannot list users")
		return
	}

	sent := 0
	for _, userID := range users {
		events, err := a.cal.DayEvents(ctx, userID, today)
		if err != nil {
			log.Printf("agenda lookup failed for user %s: %v", userID, err)
			continue
		}
		if err := a.messenger.Push(ctx, userID, formatAgenda(today, events, a.loc)); err != nil {
			log.Printf("agenda push failed for user %s: %v", userID, err)
			continue
		}
		sent++
	}

	c.JSON(http.StatusOK, gin.H{
		"date": today,
		"sent": sent,
	})
}
