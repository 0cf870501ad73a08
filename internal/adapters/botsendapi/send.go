package botsendapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"tgrelay/internal/domain/media"
	"tgrelay/internal/domain/pairs"
	"tgrelay/internal/domain/transform"
	"tgrelay/internal/domain/worker"
)

// apiResponse is the Bot API's envelope shape, shared by every method.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
	Result      json.RawMessage `json:"result"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

type sentMessage struct {
	MessageID int `json:"message_id"`
}

// SendMessage implements worker.Sender. A nil prepared sends a plain
// sendMessage call; otherwise it dispatches to the media method matching
// prepared.Type.
func (p *Pool) SendMessage(ctx context.Context, botIndex int, destChatID int64, text string, entities []transform.Entity, prepared *media.Prepared) (int, error) {
	bot, err := p.botFor(botIndex)
	if err != nil {
		return 0, err
	}

	if prepared == nil {
		return bot.sendText(ctx, destChatID, text, entities, true)
	}
	return bot.sendMedia(ctx, destChatID, text, entities, *prepared)
}

// EditMessage implements worker.Sender.
func (p *Pool) EditMessage(ctx context.Context, botIndex int, destChatID int64, destMsgID int, text string) error {
	bot, err := p.botFor(botIndex)
	if err != nil {
		return err
	}
	payload := map[string]any{
		"chat_id":    destChatID,
		"message_id": destMsgID,
		"text":       text,
	}
	_, err = bot.doJSON(ctx, "editMessageText", payload)
	return err
}

// DeleteMessage implements worker.Sender.
func (p *Pool) DeleteMessage(ctx context.Context, botIndex int, destChatID int64, destMsgID int) error {
	bot, err := p.botFor(botIndex)
	if err != nil {
		return err
	}
	payload := map[string]any{
		"chat_id":    destChatID,
		"message_id": destMsgID,
	}
	_, err = bot.doJSON(ctx, "deleteMessage", payload)
	return err
}

// GetMe is the health probe MetricsMonitor's RunHealthProbe loop calls.
func (p *Pool) GetMe(ctx context.Context, botIndex int) bool {
	bot, err := p.botFor(botIndex)
	if err != nil {
		return false
	}
	_, err = bot.doJSON(ctx, "getMe", nil)
	return err == nil
}

func (b *botClient) sendText(ctx context.Context, chatID int64, text string, entities []transform.Entity, disablePreview bool) (int, error) {
	payload := map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"disable_web_page_preview": disablePreview,
	}
	if len(entities) > 0 {
		payload["entities"] = entities
	}
	body, err := b.doJSON(ctx, "sendMessage", payload)
	if err != nil {
		return 0, err
	}
	return decodeMessageID(body)
}

func (b *botClient) sendMedia(ctx context.Context, chatID int64, caption string, entities []transform.Entity, prepared media.Prepared) (int, error) {
	if prepared.Data == nil {
		// Webpage media carries no bytes: fall back to a plain text send with
		// the link preview enabled so Telegram renders its own card.
		return b.sendText(ctx, chatID, caption, entities, false)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("chat_id", strconv.FormatInt(chatID, 10))
	if caption != "" {
		_ = w.WriteField("caption", caption)
		if len(entities) > 0 {
			if data, err := json.Marshal(entities); err == nil {
				_ = w.WriteField("caption_entities", string(data))
			}
		}
	}
	part, err := w.CreateFormFile(mediaFieldName(prepared.Type), fallbackFilename(prepared))
	if err != nil {
		return 0, fmt.Errorf("botsendapi: build multipart field: %w", err)
	}
	if _, err := part.Write(prepared.Data); err != nil {
		return 0, fmt.Errorf("botsendapi: write multipart body: %w", err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("botsendapi: close multipart writer: %w", err)
	}

	respBody, err := b.doMultipart(ctx, mediaEndpoint(prepared.Type), w.FormDataContentType(), &buf)
	if err != nil {
		return 0, err
	}
	return decodeMessageID(respBody)
}

func fallbackFilename(p media.Prepared) string {
	if p.Filename != "" {
		return p.Filename
	}
	return "file"
}

// mediaFieldName is the multipart field Bot API expects for each media
// method; unlike the endpoint name these don't share a simple prefix
// (sendVideoNote's field is "video_note", not "videonote").
func mediaFieldName(t pairs.MediaType) string {
	switch t {
	case pairs.MediaVideo:
		return "video"
	case pairs.MediaVideoNote:
		return "video_note"
	case pairs.MediaVoice:
		return "voice"
	case pairs.MediaAudio:
		return "audio"
	case pairs.MediaAnimation:
		return "animation"
	case pairs.MediaSticker:
		return "sticker"
	case pairs.MediaPhoto:
		return "photo"
	default:
		return "document"
	}
}

func decodeMessageID(body []byte) (int, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("botsendapi: decode response: %w", err)
	}
	var msg sentMessage
	if err := json.Unmarshal(resp.Result, &msg); err != nil {
		return 0, fmt.Errorf("botsendapi: decode result: %w", err)
	}
	return msg.MessageID, nil
}

func (b *botClient) doJSON(ctx context.Context, method string, payload any) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("botsendapi: encode %s payload: %w", method, err)
		}
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.botAPIBaseURL+"/"+method, bodyReader)
	if err != nil {
		return nil, &worker.NetworkError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return b.do(req, method)
}

func (b *botClient) doMultipart(ctx context.Context, method, contentType string, body *bytes.Buffer) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.botAPIBaseURL+"/"+method, body)
	if err != nil {
		return nil, &worker.NetworkError{Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	return b.do(req, method)
}

func (b *botClient) do(req *http.Request, method string) ([]byte, error) {
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &worker.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &worker.NetworkError{Err: err}
	}

	var decoded apiResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, &worker.NetworkError{Err: fmt.Errorf("%s: decode response: %w", method, err)}
	}
	if decoded.OK {
		return respBody, nil
	}
	return nil, classifyError(method, resp.StatusCode, decoded)
}

// classifyError maps a failed Bot API response onto the worker package's
// typed error taxonomy, generalized from the teacher's
// isPermanentBotError/handleJSONResponse pair (which only distinguished
// permanent vs. retryable) into the richer set WorkerPool dispatches on.
func classifyError(method string, status int, resp apiResponse) error {
	desc := strings.ToLower(resp.Description)

	if status == http.StatusTooManyRequests || resp.Parameters.RetryAfter > 0 {
		retryAfter := resp.Parameters.RetryAfter
		if retryAfter == 0 {
			retryAfter = 1
		}
		return &worker.FloodWaitError{RetrySeconds: retryAfter}
	}
	if strings.Contains(desc, "message is not modified") {
		return &worker.NotModifiedError{}
	}
	if strings.Contains(desc, "message to delete not found") ||
		strings.Contains(desc, "message to edit not found") ||
		strings.Contains(desc, "chat not found") {
		return &worker.NotFoundError{}
	}
	if strings.Contains(desc, "bot was blocked") ||
		strings.Contains(desc, "not enough rights") ||
		strings.Contains(desc, "have no rights") ||
		strings.Contains(desc, "kicked") ||
		status == http.StatusForbidden {
		return &worker.ForbiddenError{Reason: resp.Description}
	}
	if status >= 500 {
		return &worker.NetworkError{Err: fmt.Errorf("%s: bot api server error (%d): %s", method, status, resp.Description)}
	}
	if status >= 400 {
		return &worker.BadRequestError{Reason: resp.Description}
	}
	return fmt.Errorf("%s: bot api error %d: %s", method, resp.ErrorCode, resp.Description)
}
