// Package ai calls the language-understanding collaborator that turns raw
// scheduling text into a structured first-pass guess. The guess is best
// effort; the temporal normalizer repairs or replaces whatever comes back.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/kikuchi-mizuki/task-yoshimura/internal/config"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/temporal"
)

// ErrGuessUnavailable reports that no usable structured guess could be
// produced. Callers fall back to raw-span extraction alone; this error is
// never surfaced to the end user.
var ErrGuessUnavailable = errors.New("ai guess unavailable")

type Extractor interface {
	Extract(ctx context.Context, text string, clock temporal.Clock) (temporal.Guess, error)
}

type OpenAIExtractor struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewOpenAIExtractor(cfg config.Config) *OpenAIExtractor {
	timeoutSeconds := cfg.AITimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = 20
	}
	return &OpenAIExtractor{
		apiKey:  strings.TrimSpace(cfg.OpenAIAPIKey),
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.OpenAIBaseURL), "/"),
		model:   strings.TrimSpace(cfg.OpenAIModel),
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
	}
}

const systemPromptTemplate = `あなたは日本語のスケジュール調整アシスタントです。ユーザーのメッセージから日時情報を抽出し、JSONのみで返答してください。
現在日時: %s

ルール:
1. 予定追加の依頼なら task_type は "add_event"、空き時間の確認なら "availability_check"。
2. 日本語の日付表現（今日、明日、来週月曜日など）を具体的な日付 YYYY-MM-DD に変換。
3. 時刻は HH:MM の24時間表記。不明な項目は空文字のままにする。
4. 場所の指定があれば location に、移動時間の指定があれば travel_time_minutes に入れる。

出力形式:
{"task_type": "availability_check", "dates": [{"date": "YYYY-MM-DD", "time": "HH:MM", "end_time": "HH:MM", "title": "", "description": ""}], "location": "", "travel_time_minutes": 0}`

var reJSONObject = regexp.MustCompile(`(?s)\{.*\}`)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Extract asks the model for a structured guess. Any transport, status or
// parse failure collapses into ErrGuessUnavailable so the caller can degrade
// to raw-span extraction.
func (e *OpenAIExtractor) Extract(ctx context.Context, text string, clock temporal.Clock) (temporal.Guess, error) {
	if e.apiKey == "" || e.baseURL == "" || e.model == "" {
		return temporal.Guess{}, fmt.Errorf("%w: extractor is not configured", ErrGuessUnavailable)
	}

	payload := map[string]any{
		"model": e.model,
		"messages": []chatMessage{
			{Role: "system", Content: fmt.Sprintf(systemPromptTemplate, clock.Now().Format("2006-01-02 15:04"))},
			{Role: "user", Content: text},
		},
		"temperature": 0,
	}
	bodyRaw, err := json.Marshal(payload)
	if err != nil {
		return temporal.Guess{}, fmt.Errorf("%w: %v", ErrGuessUnavailable, err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewReader(bodyRaw))
	if err != nil {
		return temporal.Guess{}, fmt.Errorf("%w: %v", ErrGuessUnavailable, err)
	}
	request.Header.Set("Authorization", "Bearer "+e.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := e.httpClient.Do(request)
	if err != nil {
		return temporal.Guess{}, fmt.Errorf("%w: %v", ErrGuessUnavailable, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return temporal.Guess{}, fmt.Errorf("%w: %v", ErrGuessUnavailable, err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		log.Printf("openai chat error (%d): %s", response.StatusCode, truncateForLog(string(responseBody), 600))
		return temporal.Guess{}, fmt.Errorf("%w: status %d", ErrGuessUnavailable, response.StatusCode)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		return temporal.Guess{}, fmt.Errorf("%w: %v", ErrGuessUnavailable, err)
	}
	if len(parsed.Choices) == 0 {
		return temporal.Guess{}, fmt.Errorf("%w: empty choices", ErrGuessUnavailable)
	}

	return ParseGuess(parsed.Choices[0].Message.Content)
}

// ParseGuess pulls the first JSON object out of a model reply and decodes it.
// Models wrap the object in prose or code fences often enough that a bare
// Unmarshal of the whole reply is not reliable.
func ParseGuess(content string) (temporal.Guess, error) {
	raw := reJSONObject.FindString(content)
	if raw == "" {
		return temporal.Guess{}, fmt.Errorf("%w: no JSON object in reply", ErrGuessUnavailable)
	}
	var guess temporal.Guess
	if err := json.Unmarshal([]byte(raw), &guess); err != nil {
		return temporal.Guess{}, fmt.Errorf("%w: %v", ErrGuessUnavailable, err)
	}
	return guess, nil
}

func truncateForLog(value string, limit int) string {
	trimmed := strings.TrimSpace(value)
	if limit <= 0 || len(trimmed) <= limit {
		return trimmed
	}
	return trimmed[:limit] + "...(truncated)"
}

// MockExtractor produces a deterministic guess without calling the network.
// It leans on the keyword cues the normalizer understands, which is enough
// for local development and the handler tests.
type MockExtractor struct{}

func (MockExtractor) Extract(_ context.Context, text string, _ temporal.Clock) (temporal.Guess, error) {
	guess := temporal.Guess{TaskType: temporal.TaskAvailabilityCheck}
	if strings.Contains(text, "追加") || strings.Contains(text, "入れて") || strings.Contains(text, "登録") {
		guess.TaskType = temporal.TaskAddEvent
	}
	guess.Dates = []temporal.Entry{{Description: text}}
	return guess, nil
}
