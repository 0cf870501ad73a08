// Package botsendapi implements BotSendAPI: one Telegram Bot API HTTP client
// per configured bot token, exposing the worker.Sender surface the worker
// pool drives. Grounded on the teacher's
// internal/adapters/botapi/notifier.BotSender (HTTP client construction,
// request building, 4xx/429/5xx classification), generalized from a single
// sendMessage-only sender into the full send/edit/delete/media surface.
package botsendapi

import (
	"fmt"
	"net/http"
	"time"

	"tgrelay/internal/domain/pairs"
	"tgrelay/internal/domain/worker"
)

const httpClientTimeout = 30 * time.Second

var _ worker.Sender = (*Pool)(nil)

// botClient is one bot identity's HTTP endpoint.
type botClient struct {
	botAPIBaseURL string
	client        *http.Client
}

// Pool is an indexed set of bot clients; botIndex is the position of the
// token in config's BOT_TOKENS list, the same index WorkItem.BotIndex and
// RateLimiter key on.
type Pool struct {
	bots []*botClient
}

// NewPool builds one botClient per token. testDC appends the Bot API "/test"
// suffix the teacher's NewBotSender used for the Telegram test environment.
func NewPool(tokens []string, testDC bool) (*Pool, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("botsendapi: at least one bot token is required")
	}
	bots := make([]*botClient, len(tokens))
	for i, token := range tokens {
		if testDC {
			token += "/test"
		}
		bots[i] = &botClient{
			botAPIBaseURL: fmt.Sprintf("https://api.telegram.org/bot%s", token),
			client:        &http.Client{Timeout: httpClientTimeout},
		}
	}
	return &Pool{bots: bots}, nil
}

func (p *Pool) botFor(botIndex int) (*botClient, error) {
	if botIndex < 0 || botIndex >= len(p.bots) {
		return nil, fmt.Errorf("botsendapi: bot index %d out of range (have %d bots)", botIndex, len(p.bots))
	}
	return p.bots[botIndex], nil
}

// mediaEndpoint picks the Bot API method for a prepared media payload, per
// the type-priority rules in domain/media.Classify.
func mediaEndpoint(t pairs.MediaType) string {
	switch t {
	case pairs.MediaVideo:
		return "sendVideo"
	case pairs.MediaVideoNote:
		return "sendVideoNote"
	case pairs.MediaVoice:
		return "sendVoice"
	case pairs.MediaAudio:
		return "sendAudio"
	case pairs.MediaAnimation:
		return "sendAnimation"
	case pairs.MediaSticker:
		return "sendSticker"
	case pairs.MediaPhoto:
		return "sendPhoto"
	default:
		return "sendDocument"
	}
}
