package transform

import (
	"sort"
	"strconv"
	"unicode/utf16"

	"tgrelay/internal/domain/dispatch"
)

// Entity is a formatting entity in the shape BotSendAPI's JSON payload
// expects (Telegram Bot API "MessageEntity"), offsets already revalidated
// against the (possibly truncated) destination text.
type Entity struct {
	Type          string `json:"type"`
	Offset        int    `json:"offset"`
	Length        int    `json:"length"`
	URL           string `json:"url,omitempty"`
	UserID        int64  `json:"user_id,omitempty"`
	Language      string `json:"language,omitempty"`
	CustomEmojiID string `json:"custom_emoji_id,omitempty"`
}

// sourceTypeToDest mirrors the teacher's BuildCopyTextFromTG type switch,
// generalized from a fixed "copy text" helper into a lookup table.
var sourceTypeToDest = map[string]string{
	"Bold":        "BOLD",
	"Italic":      "ITALIC",
	"Underline":   "UNDERLINE",
	"Strike":      "STRIKETHROUGH",
	"Spoiler":     "SPOILER",
	"Code":        "CODE",
	"Pre":         "PRE",
	"Url":         "URL",
	"TextUrl":     "TEXT_LINK",
	"Mention":     "MENTION",
	"MentionName": "TEXT_MENTION",
	"CustomEmoji": "CUSTOM_EMOJI",
	"Hashtag":     "HASHTAG",
	"Cashtag":     "CASHTAG",
	"BotCommand":  "BOT_COMMAND",
	"Email":       "EMAIL",
	"Phone":       "PHONE_NUMBER",
}

// utf16Len returns the length of text in UTF-16 code units, the unit
// Telegram's entity offsets are expressed in. Go strings are UTF-8; this is
// the one place that distinction matters, so it is made explicit rather
// than assumed away.
func utf16Len(text string) int {
	return len(utf16.Encode([]rune(text)))
}

// revalidateEntities drops out-of-bounds entities, truncates any that
// overrun textLen, maps each surviving type to its destination tag, and
// returns the result sorted by offset ascending. textLen is the caller's
// content bound, not necessarily utf16Len(text): when text was truncated
// and an ellipsis appended, entities must still be clamped to the
// pre-ellipsis boundary.
func revalidateEntities(textLen int, entities []dispatch.Entity) []Entity {
	out := make([]Entity, 0, len(entities))

	for _, e := range entities {
		if e.Offset < 0 || e.Length <= 0 || e.Offset >= textLen {
			continue
		}
		length := e.Length
		if e.Offset+length > textLen {
			length = textLen - e.Offset
		}

		destType, ok := sourceTypeToDest[e.Type]
		if !ok {
			continue // unknown source type: discarded, not fatal
		}

		de := Entity{Type: destType, Offset: e.Offset, Length: length}
		switch e.Type {
		case "Pre":
			de.Language = e.Extra
		case "TextUrl":
			if e.Extra == "" {
				continue
			}
			de.URL = e.Extra
		case "MentionName":
			if e.Extra == "" {
				continue
			}
			id, err := strconv.ParseInt(e.Extra, 10, 64)
			if err != nil {
				continue
			}
			de.UserID = id
		case "CustomEmoji":
			if e.Extra == "" {
				continue
			}
			de.CustomEmojiID = e.Extra
		}
		out = append(out, de)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}
