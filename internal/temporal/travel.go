package temporal

import "strings"

// DefaultTravelBufferMinutes is the buffer span used when no override is
// configured.
const DefaultTravelBufferMinutes = 60

var travelKeywords = []string{"移動", "移動あり", "移動時間", "移動必要"}

const (
	TravelOutboundTitle = "移動時間（往路）"
	TravelReturnTitle   = "移動時間（復路）"
	travelDescription   = "移動のための時間"
)

// HasTravelCue reports whether the text asks for travel time around the
// events it describes.
func HasTravelCue(text string) bool {
	for _, keyword := range travelKeywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// IsTravelBuffer reports whether an entry is a synthesized travel buffer.
func IsTravelBuffer(e Entry) bool {
	return IsTravelTitle(e.Title)
}

// IsTravelTitle reports whether a calendar event title marks a travel buffer.
func IsTravelTitle(title string) bool {
	return strings.Contains(title, "移動時間")
}

// ExpandTravelBuffers appends an outbound buffer immediately before and a
// return buffer immediately after every entry. Buffers whose (date, start,
// end) triple already exists in the output are skipped.
func ExpandTravelBuffers(entries []Entry, bufferMinutes int) []Entry {
	if bufferMinutes <= 0 {
		bufferMinutes = DefaultTravelBufferMinutes
	}

	out := make([]Entry, 0, len(entries)*3)
	add := func(e Entry) {
		if !containsKey(out, e.Key()) {
			out = append(out, e)
		}
	}

	for _, primary := range entries {
		out = append(out, primary)

		add(Entry{
			Date:        primary.Date,
			StartTime:   addMinutes(primary.StartTime, -bufferMinutes),
			EndTime:     primary.StartTime,
			Title:       TravelOutboundTitle,
			Description: travelDescription,
		})
		add(Entry{
			Date:        primary.Date,
			StartTime:   primary.EndTime,
			EndTime:     addMinutes(primary.EndTime, bufferMinutes),
			Title:       TravelReturnTitle,
			Description: travelDescription,
		})
	}
	return out
}
