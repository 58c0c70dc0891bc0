package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WebhookRequest is the body LINE posts to the webhook endpoint.
type WebhookRequest struct {
	Events []Event `json:"events"`
}

// Event is one webhook event. Only text messages are acted on; everything
// else is acknowledged and ignored.
type Event struct {
	Type       string  `json:"type"`
	ReplyToken string  `json:"replyToken"`
	Source     Source  `json:"source"`
	Message    Message `json:"message"`
}

type Source struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type Message struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Text string `json:"text"`
}

// TextMessage reports whether the event carries user text to process.
func (e Event) TextMessage() bool {
	return e.Type == "message" && e.Message.Type == "text" && strings.TrimSpace(e.Message.Text) != ""
}

// Messenger delivers outbound messages. The bot logic depends on this
// interface so tests can capture replies without hitting the LINE API.
type Messenger interface {
	Reply(ctx context.Context, replyToken, text string) error
	Push(ctx context.Context, userID, text string) error
}

// Client talks to the LINE Messaging API.
type Client struct {
	accessToken string
	baseURL     string
	httpClient  *http.Client
}

func NewClient(accessToken, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.line.me"
	}
	return &Client{
		accessToken: strings.TrimSpace(accessToken),
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

type textPayload struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	payload := map[string]any{
		"replyToken": replyToken,
		"messages":   []textPayload{{Type: "text", Text: text}},
	}
	return c.post(ctx, "/v2/bot/message/reply", payload)
}

func (c *Client) Push(ctx context.Context, userID, text string) error {
	payload := map[string]any{
		"to":       userID,
		"messages": []textPayload{{Type: "text", Text: text}},
	}
	return c.post(ctx, "/v2/bot/message/push", payload)
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	bodyRaw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyRaw))
	if err != nil {
		return err
	}
	request.Header.Set("Authorization", "Bearer "+c.accessToken)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(io.LimitReader(response.Body, 600))
		return fmt.Errorf("line api error (%d) on %s: %s", response.StatusCode, path, strings.TrimSpace(string(responseBody)))
	}
	return nil
}
