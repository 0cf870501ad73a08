// Package pairs holds the replication-rule model (Pair) and the in-memory,
// bbolt-backed registry that routes a source chat id to the pairs that
// replicate it.
package pairs

import "time"

// Status is the lifecycle state of a Pair.
type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
)

// MediaType is one of the classes MediaPipeline assigns to incoming media.
type MediaType string

const (
	MediaPhoto     MediaType = "photo"
	MediaVideo     MediaType = "video"
	MediaDocument  MediaType = "document"
	MediaAudio     MediaType = "audio"
	MediaVoice     MediaType = "voice"
	MediaAnimation MediaType = "animation"
	MediaVideoNote MediaType = "video_note"
	MediaSticker   MediaType = "sticker"
	MediaWebpage   MediaType = "webpage"
)

// FilterConfig bundles a pair's per-message decision knobs (SPEC_FULL §3).
type FilterConfig struct {
	SyncEdits          bool        `json:"sync_edits"`
	SyncDeletes        bool        `json:"sync_deletes"`
	PreserveReplies    bool        `json:"preserve_replies"`
	AllowedMediaTypes  []MediaType `json:"allowed_media_types"`
	MinMessageLength   int         `json:"min_message_length"`
	MaxMessageLength   int         `json:"max_message_length"`
	HeaderPatterns     []string    `json:"header_patterns,omitempty"`
	FooterPatterns     []string    `json:"footer_patterns,omitempty"`
	MentionPlaceholder string      `json:"mention_placeholder,omitempty"`
	BlockWords         []string    `json:"block_words,omitempty"`
	// Rule is the optional keyword/regex boolean tree gating ContentTransformer
	// step 1; nil means "no additional filtering beyond the built-in knobs above".
	Rule *FilterRule `json:"filter_rule,omitempty"`
}

// AllowsMedia reports whether mt is in AllowedMediaTypes. An empty list means
// "all types allowed" so pairs don't have to enumerate every type to accept everything.
func (f FilterConfig) AllowsMedia(mt MediaType) bool {
	if len(f.AllowedMediaTypes) == 0 {
		return true
	}
	for _, allowed := range f.AllowedMediaTypes {
		if allowed == mt {
			return true
		}
	}
	return false
}

// DefaultFilterConfig mirrors the defaults named in SPEC_FULL §4.5/§3.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		SyncEdits:       true,
		SyncDeletes:     false,
		PreserveReplies: true,
	}
}

// Counters are the per-pair activity counts maintained by the worker pool
// and dispatcher (SPEC_FULL §3).
type Counters struct {
	MessagesCopied  int64     `json:"messages_copied"`
	MessagesFiltered int64    `json:"messages_filtered"`
	EditsSynced     int64     `json:"edits_synced"`
	DeletesSynced   int64     `json:"deletes_synced"`
	RepliesPreserved int64    `json:"replies_preserved"`
	ImagesBlocked   int64     `json:"images_blocked"`
	Errors          int64     `json:"errors"`
	LastActivity    time.Time `json:"last_activity"`
}

// Pair is one configured source-chat -> destination-chat replication rule.
type Pair struct {
	ID                int64        `json:"id"`
	Name              string       `json:"name"`
	SourceChatID      int64        `json:"source_chat_id"`
	DestinationChatID int64        `json:"destination_chat_id"`
	Status            Status       `json:"status"`
	BotIndex          int          `json:"bot_index"`
	Filter            FilterConfig `json:"filter"`
	Counters          Counters     `json:"counters"`
}

// Active reports whether the pair should currently be processed.
func (p Pair) Active() bool {
	return p.Status == StatusActive
}
