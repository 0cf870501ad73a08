package media

import (
	"context"
	"errors"
	"testing"

	"tgrelay/internal/domain/pairs"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		d    Descriptor
		want pairs.MediaType
	}{
		{name: "photo", d: Descriptor{IsPhoto: true}, want: pairs.MediaPhoto},
		{name: "webpage", d: Descriptor{IsWebpage: true}, want: pairs.MediaWebpage},
		{name: "animatedGIF", d: Descriptor{MIMEType: "image/gif", IsAnimated: true}, want: pairs.MediaAnimation},
		{name: "imageMIME", d: Descriptor{MIMEType: "image/png"}, want: pairs.MediaPhoto},
		{name: "roundVideo", d: Descriptor{MIMEType: "video/mp4", IsRoundMessage: true}, want: pairs.MediaVideoNote},
		{name: "plainVideo", d: Descriptor{MIMEType: "video/mp4"}, want: pairs.MediaVideo},
		{name: "voice", d: Descriptor{IsVoice: true}, want: pairs.MediaVoice},
		{name: "audioMIME", d: Descriptor{MIMEType: "audio/mpeg"}, want: pairs.MediaAudio},
		{name: "sticker", d: Descriptor{IsSticker: true}, want: pairs.MediaSticker},
		{name: "fallbackDocument", d: Descriptor{MIMEType: "application/pdf"}, want: pairs.MediaDocument},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tc.d); got != tc.want {
				t.Fatalf("Classify() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRunGatesDisallowedType(t *testing.T) {
	t.Parallel()
	filter := pairs.FilterConfig{AllowedMediaTypes: []pairs.MediaType{pairs.MediaPhoto}}
	d := Descriptor{MIMEType: "video/mp4"}

	_, decision, err := Run(context.Background(), d, filter, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if decision != DecisionTypeNotAllowed {
		t.Fatalf("decision = %v, want DecisionTypeNotAllowed", decision)
	}
}

func TestRunBlocksDuplicatePhoto(t *testing.T) {
	t.Parallel()
	d := Descriptor{IsPhoto: true}
	dedup := func(Descriptor) bool { return true }

	_, decision, err := Run(context.Background(), d, pairs.FilterConfig{}, dedup)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if decision != DecisionDuplicateBlocked {
		t.Fatalf("decision = %v, want DecisionDuplicateBlocked", decision)
	}
}

func TestRunDownloadsAndRetries(t *testing.T) {
	t.Parallel()
	attempts := 0
	d := Descriptor{
		IsPhoto: true,
		Fetch: func(context.Context) ([]byte, error) {
			attempts++
			if attempts < 2 {
				return nil, errors.New("transient network error")
			}
			return []byte("image-bytes"), nil
		},
	}

	prepared, decision, err := Run(context.Background(), d, pairs.FilterConfig{}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if decision != DecisionPrepared {
		t.Fatalf("decision = %v, want DecisionPrepared", decision)
	}
	if string(prepared.Data) != "image-bytes" {
		t.Fatalf("prepared.Data = %q, want image-bytes", prepared.Data)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

func TestRunDownloadFailsAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	d := Descriptor{
		IsPhoto: true,
		Fetch: func(context.Context) ([]byte, error) {
			return nil, errors.New("permanent failure")
		},
	}

	_, _, err := Run(context.Background(), d, pairs.FilterConfig{}, nil)
	if err == nil {
		t.Fatal("Run() should return an error once all download attempts are exhausted")
	}
}

func TestRunWebpagePassthroughSkipsDownload(t *testing.T) {
	t.Parallel()
	called := false
	d := Descriptor{
		IsWebpage: true,
		Fetch: func(context.Context) ([]byte, error) {
			called = true
			return nil, nil
		},
	}
	prepared, decision, err := Run(context.Background(), d, pairs.FilterConfig{}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if decision != DecisionPrepared {
		t.Fatalf("decision = %v, want DecisionPrepared", decision)
	}
	if prepared.Data != nil {
		t.Fatal("webpage passthrough should not populate Data")
	}
	if called {
		t.Fatal("webpage passthrough should not invoke Fetch")
	}
}
