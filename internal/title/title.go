// Package title derives short display titles from free text.
package title

import (
	"strings"

	"github.com/codechat-ai/codechat/internal/model"
)

const (
	maxTitleRunes = 29
	prefixRunes   = 28
	ellipsis      = "…"
)

// Derive produces a conversation title from its first user message.
// Blank input yields the default title. Embedded line breaks are
// collapsed to spaces; text longer than 29 runes is cut to a 28-rune
// prefix plus a single ellipsis, so the result never exceeds 29 runes.
func Derive(text string) string {
	t := strings.TrimSpace(text)
	if t == "" {
		return model.DefaultTitle
	}

	t = strings.ReplaceAll(t, "\n", " ")

	runes := []rune(t)
	if len(runes) > maxTitleRunes {
		return string(runes[:prefixRunes]) + ellipsis
	}
	return t
}
