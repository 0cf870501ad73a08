package transform

import (
	"testing"

	"tgrelay/internal/domain/dispatch"
	"tgrelay/internal/domain/pairs"
)

func TestTransformTruncatesTextAndClampsEntity(t *testing.T) {
	t.Parallel()

	filter := pairs.FilterConfig{MaxMessageLength: 5}
	entities := []dispatch.Entity{{Type: "Bold", Offset: 0, Length: 8}}

	result, ok := Transform("abcdefgh", entities, filter)
	if !ok {
		t.Fatal("Transform() dropped the message, want kept")
	}
	if result.Text != "abcde"+truncationSuffix {
		t.Fatalf("Text = %q, want %q", result.Text, "abcde"+truncationSuffix)
	}
	if len(result.Entities) != 1 {
		t.Fatalf("Entities len = %d, want 1", len(result.Entities))
	}
	if result.Entities[0].Length != 5 {
		t.Fatalf("Entity.Length = %d, want 5", result.Entities[0].Length)
	}
	if result.Entities[0].Type != "BOLD" {
		t.Fatalf("Entity.Type = %q, want BOLD", result.Entities[0].Type)
	}
}

func TestTransformDropsUnderMinLength(t *testing.T) {
	t.Parallel()
	filter := pairs.FilterConfig{MinMessageLength: 20}
	_, ok := Transform("too short", nil, filter)
	if ok {
		t.Fatal("Transform() should drop text under min_message_length")
	}
}

func TestTransformDropsOnDenyRule(t *testing.T) {
	t.Parallel()
	rule := &pairs.FilterRule{Deny: &pairs.RuleNode{Type: "kw", Value: "spam"}}
	if err := rule.ValidateAndCompile(); err != nil {
		t.Fatalf("ValidateAndCompile() error = %v", err)
	}
	filter := pairs.FilterConfig{Rule: rule}
	_, ok := Transform("this is spam content", nil, filter)
	if ok {
		t.Fatal("Transform() should drop text matching a deny rule")
	}
}

func TestTransformDropsOnBlockWord(t *testing.T) {
	t.Parallel()
	filter := pairs.FilterConfig{BlockWords: []string{"giveaway"}}
	_, ok := Transform("huge GIVEAWAY today", nil, filter)
	if ok {
		t.Fatal("Transform() should drop text containing a block word (case-insensitive)")
	}
}

func TestTransformStripsHeaderFooterAndMentions(t *testing.T) {
	t.Parallel()
	filter := pairs.FilterConfig{MentionPlaceholder: "[user]"}
	text := "Channel: breaking news\nHello @someone check it out\nFollow t.me/examplechannel"
	result, ok := Transform(text, nil, filter)
	if !ok {
		t.Fatal("Transform() unexpectedly dropped the message")
	}
	if result.Text == text {
		t.Fatal("Transform() should have stripped header/footer/mention patterns")
	}
}

func TestRevalidateEntitiesDropsOutOfBounds(t *testing.T) {
	t.Parallel()
	entities := []dispatch.Entity{
		{Type: "Bold", Offset: -1, Length: 3},
		{Type: "Italic", Offset: 100, Length: 3},
		{Type: "Unknown", Offset: 0, Length: 3},
		{Type: "TextUrl", Offset: 0, Length: 3, Extra: ""},
		{Type: "Code", Offset: 0, Length: 3},
	}
	out := revalidateEntities(10, entities)
	if len(out) != 1 {
		t.Fatalf("revalidateEntities() len = %d, want 1 (only the valid Code entity survives)", len(out))
	}
	if out[0].Type != "CODE" {
		t.Fatalf("surviving entity type = %q, want CODE", out[0].Type)
	}
}
