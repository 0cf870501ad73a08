package sourcefeed

import (
	"bytes"
	"context"
	"fmt"

	"tgrelay/internal/domain/media"

	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"
)

// documentDescriptor classifies a tg.Document into the attribute bag
// media.Classify needs, reading its attribute union the way the teacher's
// debug.PrintUpdate inspects tg.Message media for console output.
func documentDescriptor(doc *tg.Document) media.Descriptor {
	d := media.Descriptor{MIMEType: doc.MimeType}
	for _, attr := range doc.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeFilename:
			d.Filename = a.FileName
		case *tg.DocumentAttributeVideo:
			d.Duration = int(a.Duration)
			d.Width = a.W
			d.Height = a.H
			d.IsRoundMessage = a.RoundMessage
		case *tg.DocumentAttributeAudio:
			d.Duration = int(a.Duration)
			d.IsVoice = a.Voice
		case *tg.DocumentAttributeAnimated:
			d.IsAnimated = true
		case *tg.DocumentAttributeSticker:
			d.IsSticker = true
		}
	}
	return d
}

func downloadPhoto(ctx context.Context, api *tg.Client, photo *tg.Photo) ([]byte, error) {
	size := largestPhotoSize(photo.Sizes)
	if size == "" {
		return nil, fmt.Errorf("sourcefeed: photo has no usable size")
	}
	loc := &tg.InputPhotoFileLocation{
		ID:            photo.ID,
		AccessHash:    photo.AccessHash,
		FileReference: photo.FileReference,
		ThumbSize:     size,
	}
	return download(ctx, api, loc)
}

func downloadDocument(ctx context.Context, api *tg.Client, doc *tg.Document) ([]byte, error) {
	loc := &tg.InputDocumentFileLocation{
		ID:            doc.ID,
		AccessHash:    doc.AccessHash,
		FileReference: doc.FileReference,
	}
	return download(ctx, api, loc)
}

func download(ctx context.Context, api *tg.Client, loc tg.InputFileLocationClass) ([]byte, error) {
	var buf bytes.Buffer
	d := downloader.NewDownloader()
	if _, err := d.Download(api, loc).Stream(ctx, &buf); err != nil {
		return nil, fmt.Errorf("sourcefeed: download: %w", err)
	}
	return buf.Bytes(), nil
}

// largestPhotoSize picks the highest-resolution tg.PhotoSize type among a
// photo's variants, preferring the full-size "w" / "y" buckets Telegram uses
// over thumbnails.
func largestPhotoSize(sizes []tg.PhotoSizeClass) string {
	priority := []string{"y", "x", "w", "m", "s"}
	available := map[string]bool{}
	for _, sz := range sizes {
		switch s := sz.(type) {
		case *tg.PhotoSize:
			available[s.Type] = true
		case *tg.PhotoSizeProgressive:
			available[s.Type] = true
		case *tg.PhotoCachedSize:
			available[s.Type] = true
		}
	}
	for _, p := range priority {
		if available[p] {
			return p
		}
	}
	for t := range available {
		return t
	}
	return ""
}
