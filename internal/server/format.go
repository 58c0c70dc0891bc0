package server

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kikuchi-mizuki/task-yoshimura/internal/calendar"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/freebusy"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/temporal"
)

const (
	msgNoFreeTime   = "✅空き時間はありませんでした。"
	msgUsageGuide   = "日時の送信で空き時間が分かります！\n日時と内容の送信で予定を追加します！\n\n例：\n・「明日の空き時間」\n・「7/15 15:00〜16:00の空き時間」\n・「明日の午前9時から会議を追加して」\n・「来週月曜日の14時から打ち合わせ」"
	msgDateNotFound = "日付を正しく認識できませんでした。\n\n例: 「明日7/7 15:00〜15:30の空き時間を教えて」"
	msgAddCancelled = "予定追加をキャンセルしました。"
)

// weekdayKanji is indexed Monday first, matching time.Weekday via monIndex.
const weekdayKanji = "月火水木金土日"

func monIndex(w time.Weekday) int {
	return (int(w) + 6) % 7
}

// formatDateHeader renders M/D（曜） for a YYYY-MM-DD date.
func formatDateHeader(date string, loc *time.Location) string {
	dt, err := time.ParseInLocation(temporal.DateLayout, date, loc)
	if err != nil {
		return date
	}
	kanji := []rune(weekdayKanji)[monIndex(dt.Weekday())]
	return fmt.Sprintf("%d/%d（%c）", int(dt.Month()), dt.Day(), kanji)
}

// formatFreeSlots renders the aggregated availability response. Days that
// failed the calendar lookup are reported inline so the rest of the answer
// still arrives.
func formatFreeSlots(days []freebusy.DaySlots, loc *time.Location) string {
	if len(days) == 0 {
		return msgNoFreeTime
	}

	var b strings.Builder
	b.WriteString("✅以下が空き時間です！\n\n")
	wroteAny := false
	for _, day := range days {
		if day.Err != nil {
			b.WriteString(formatDateHeader(day.Date, loc))
			b.WriteString("\n・予定の取得に失敗しました\n")
			wroteAny = true
			continue
		}
		if len(day.Slots) == 0 {
			continue
		}
		b.WriteString(formatDateHeader(day.Date, loc))
		b.WriteString("\n")
		for _, slot := range day.Slots {
			fmt.Fprintf(&b, "・%s〜%s\n", slot.Start, slot.End)
		}
		wroteAny = true
	}
	if !wroteAny {
		return msgNoFreeTime
	}
	return b.String()
}

// formatAddedEvents confirms created events grouped per date, numbering the
// entries under a date header the way the original bot did.
func formatAddedEvents(entries []temporal.Entry, loc *time.Location) string {
	byDate := make(map[string][]temporal.Entry)
	dates := make([]string, 0)
	for _, e := range entries {
		if _, ok := byDate[e.Date]; !ok {
			dates = append(dates, e.Date)
		}
		byDate[e.Date] = append(byDate[e.Date], e)
	}
	sort.Strings(dates)

	var b strings.Builder
	b.WriteString("✅予定を追加しました！\n\n")
	for _, date := range dates {
		b.WriteString(formatDateHeader(date, loc))
		b.WriteString("\n────────\n")
		for i, e := range byDate[date] {
			fmt.Fprintf(&b, "%d. %s\n", i+1, e.Title)
			fmt.Fprintf(&b, "🕐 %s〜%s\n", e.StartTime, e.EndTime)
		}
		b.WriteString("────────\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatAddFailures lists the entries that could not be stored.
func formatAddFailures(added []temporal.Entry, failed []temporal.Entry, reasons []string, loc *time.Location) string {
	var b strings.Builder
	if len(added) > 0 {
		b.WriteString(formatAddedEvents(added, loc))
		b.WriteString("\n\n⚠️追加できなかった予定:\n")
	} else {
		b.WriteString("❌予定を追加できませんでした。\n\n")
	}
	for i, e := range failed {
		reason := "不明なエラー"
		if i < len(reasons) {
			reason = reasons[i]
		}
		fmt.Fprintf(&b, "• %s (%s〜%s) - %s\n", e.Title, e.StartTime, e.EndTime, reason)
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatConflictPrompt warns about overlapping events and asks for the
// confirmation word that finishes a pending add.
func formatConflictPrompt(conflicts []calendar.Event) string {
	var b strings.Builder
	b.WriteString("⚠️ この時間帯に既に予定が存在します:\n")
	for _, e := range conflicts {
		fmt.Fprintf(&b, "- %s\n(%s〜%s)\n", e.Title, e.Start.Format("15:04"), e.End.Format("15:04"))
	}
	b.WriteString("\nそれでも追加しますか？\n「はい」と返信してください。")
	return b.String()
}

// formatAuthGuide explains the one-time-code Google link flow.
func formatAuthGuide(code, loginURL string) string {
	return fmt.Sprintf(`Google Calendar認証が必要です。

🔐 ワンタイムコード: %s

📱 認証手順:
1. 下のURLをクリックまたはコピー
2. ワンタイムコードを入力
3. Googleアカウントで認証

🔗 認証URL:
%s

⚠️ コードの有効期限は10分です`, code, loginURL)
}

// formatAgenda renders the daily agenda push message.
func formatAgenda(date string, events []calendar.Event, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📅 %sの予定\n\n", formatDateHeader(date, loc))
	if len(events) == 0 {
		b.WriteString("予定はありません。")
		return b.String()
	}
	for _, e := range events {
		fmt.Fprintf(&b, "・%s〜%s %s\n", e.Start.In(loc).Format("15:04"), e.End.In(loc).Format("15:04"), e.Title)
	}
	return strings.TrimRight(b.String(), "\n")
}
