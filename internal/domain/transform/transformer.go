// Package transform implements ContentTransformer: the filter/strip/
// truncate/entity-revalidate pipeline a message's text goes through before
// BotSendAPI ever sees it.
package transform

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"tgrelay/internal/domain/dispatch"
	"tgrelay/internal/domain/pairs"
	"tgrelay/internal/infra/logger"
)

const truncationSuffix = "…"

var (
	defaultHeaderPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^.*?[:｜：].*?\n`),
		regexp.MustCompile(`(?m)^.*?[➜👉📢].*?\n`),
	}
	defaultFooterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)\n.*?@\w+.*?$`),
		regexp.MustCompile(`(?m)\n.*?t\.me/.*?$`),
		regexp.MustCompile(`(?m)\n.*?[📨📱💌].*?$`),
	}
	mentionPattern = regexp.MustCompile(`@\w+|tg://user\?id=\d+`)
)

// Result is ContentTransformer's output for a message that was not dropped.
type Result struct {
	Text     string
	Entities []Entity
}

// Transform runs a source message through the ordered pipeline described for
// ContentTransformer. ok is false when the message should not be copied at
// all (filtered out or under min length). Stripping that leaves the text
// empty does not by itself drop the message, so media-only messages pass.
func Transform(text string, entities []dispatch.Entity, filter pairs.FilterConfig) (Result, bool) {
	if filter.Rule != nil && !filter.Rule.Passes(text) {
		logger.Debug("transform: message dropped by filter rule", zap.String("reason", "filter_rule"))
		return Result{}, false
	}
	if matchesBlockWord(text, filter.BlockWords) {
		logger.Debug("transform: message dropped by block word")
		return Result{}, false
	}

	text = stripPatterns(text, headerPatterns(filter))
	text = stripPatterns(text, footerPatterns(filter))
	text = stripMentions(text, filter.MentionPlaceholder)

	if filter.MinMessageLength > 0 && utf16Len(text) < filter.MinMessageLength {
		return Result{}, false
	}

	entityBound := utf16Len(text)
	if filter.MaxMessageLength > 0 && entityBound > filter.MaxMessageLength {
		entityBound = filter.MaxMessageLength
		text = truncate(text, filter.MaxMessageLength)
	}

	return Result{Text: text, Entities: revalidateEntities(entityBound, entities)}, true
}

func headerPatterns(filter pairs.FilterConfig) []*regexp.Regexp {
	return compileOrDefault(filter.HeaderPatterns, defaultHeaderPatterns)
}

func footerPatterns(filter pairs.FilterConfig) []*regexp.Regexp {
	return compileOrDefault(filter.FooterPatterns, defaultFooterPatterns)
}

func compileOrDefault(patterns []string, fallback []*regexp.Regexp) []*regexp.Regexp {
	if len(patterns) == 0 {
		return fallback
	}
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			logger.Warn("transform: invalid header/footer pattern, skipping", zap.String("pattern", p), zap.Error(err))
			continue
		}
		out = append(out, re)
	}
	return out
}

func stripPatterns(text string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		text = re.ReplaceAllString(text, "\n")
	}
	return strings.Trim(text, "\n")
}

func stripMentions(text, placeholder string) string {
	return mentionPattern.ReplaceAllString(text, placeholder)
}

func matchesBlockWord(text string, blockWords []string) bool {
	lower := strings.ToLower(text)
	for _, w := range blockWords {
		if w == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

// truncate cuts text to at most maxLen UTF-16 code units and appends the
// truncation suffix, walking runes (never splitting a surrogate pair).
func truncate(text string, maxLen int) string {
	if maxLen <= 0 {
		return truncationSuffix
	}
	var b strings.Builder
	units := 0
	for _, r := range text {
		runeUnits := 1
		if r > 0xFFFF {
			runeUnits = 2
		}
		if units+runeUnits > maxLen {
			break
		}
		b.WriteRune(r)
		units += runeUnits
	}
	return b.String() + truncationSuffix
}
