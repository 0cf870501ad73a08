// Package media implements MediaPipeline: classifying, gating, downloading
// and describing a message's attached media before BotSendAPI ships it.
package media

import (
	"context"
	"fmt"
	"strings"

	"tgrelay/internal/domain/pairs"
)

// Descriptor is the opaque-to-the-caller view MediaPipeline needs of a
// source media attachment. SourceFeed fills this in from the gotd tg.*
// media union; MediaPipeline never imports gotd/td directly so it stays
// testable without a live client.
type Descriptor struct {
	MIMEType       string
	IsPhoto        bool
	IsWebpage      bool
	IsAnimated     bool
	IsRoundMessage bool
	IsVoice        bool
	IsSticker      bool
	IsAudio        bool

	Filename string
	Duration int
	Width    int
	Height   int

	// Fetch downloads the media into memory, retried by Download. nil for
	// webpage descriptors, which never download.
	Fetch func(ctx context.Context) ([]byte, error)
}

// Classify assigns one of the pairs.MediaType classes, by the priority
// rules in order: photo, webpage, animation, image, video/video_note,
// voice/audio, sticker, document.
func Classify(d Descriptor) pairs.MediaType {
	switch {
	case d.IsPhoto:
		return pairs.MediaPhoto
	case d.IsWebpage:
		return pairs.MediaWebpage
	case strings.EqualFold(d.MIMEType, "image/gif"), d.IsAnimated:
		return pairs.MediaAnimation
	case strings.HasPrefix(strings.ToLower(d.MIMEType), "image/"):
		return pairs.MediaPhoto
	case strings.HasPrefix(strings.ToLower(d.MIMEType), "video/") && d.IsRoundMessage:
		return pairs.MediaVideoNote
	case strings.HasPrefix(strings.ToLower(d.MIMEType), "video/"):
		return pairs.MediaVideo
	case d.IsVoice:
		return pairs.MediaVoice
	case strings.HasPrefix(strings.ToLower(d.MIMEType), "audio/"):
		return pairs.MediaAudio
	case d.IsSticker:
		return pairs.MediaSticker
	default:
		return pairs.MediaDocument
	}
}

// DedupPredicate reports whether a photo/animation should be blocked as a
// duplicate. Supplied by the caller (e.g. a perceptual-hash cache); nil
// means no dedup is performed.
type DedupPredicate func(d Descriptor) bool

// Prepared is the downloaded, described result of a successful pipeline run.
type Prepared struct {
	Type     pairs.MediaType
	Data     []byte // nil for webpage passthrough
	Filename string
	Duration int
	Width    int
	Height   int
	MIMEType string
}

const maxDownloadAttempts = 3

// Decision explains why a message was not prepared for sending.
type Decision int

const (
	DecisionPrepared Decision = iota
	DecisionTypeNotAllowed
	DecisionDuplicateBlocked
)

// Run executes the classify -> gate -> download -> describe pipeline
// described for MediaPipeline. For a webpage descriptor, Data is left nil
// and callers should send the text with link preview enabled instead of an
// attachment (step 5, "webpage pass-through").
func Run(ctx context.Context, d Descriptor, filter pairs.FilterConfig, dedup DedupPredicate) (Prepared, Decision, error) {
	mediaType := Classify(d)

	if !filter.AllowsMedia(mediaType) {
		return Prepared{}, DecisionTypeNotAllowed, nil
	}

	if (mediaType == pairs.MediaPhoto || mediaType == pairs.MediaAnimation) && dedup != nil && dedup(d) {
		return Prepared{}, DecisionDuplicateBlocked, nil
	}

	prepared := Prepared{
		Type:     mediaType,
		Filename: d.Filename,
		Duration: d.Duration,
		Width:    d.Width,
		Height:   d.Height,
		MIMEType: d.MIMEType,
	}

	if mediaType == pairs.MediaWebpage || d.Fetch == nil {
		return prepared, DecisionPrepared, nil
	}

	data, err := download(ctx, d.Fetch)
	if err != nil {
		return Prepared{}, DecisionPrepared, fmt.Errorf("media: download failed after %d attempts: %w", maxDownloadAttempts, err)
	}
	prepared.Data = data
	return prepared, DecisionPrepared, nil
}

func download(ctx context.Context, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxDownloadAttempts; attempt++ {
		data, err := fetch(ctx)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
