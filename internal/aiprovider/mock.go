package aiprovider

import (
	"context"
	"fmt"
)

// Mock derives a subtitle deterministically from the input's length and
// first words, without any network call — the fallback whenever a real
// provider is unconfigured, disabled, or exhausted.
type Mock struct{}

func (Mock) EnrichObservation(_ context.Context, text string) (EnrichmentResult, error) {
	words := splitWords(text, 8)
	return EnrichmentResult{Subtitle: fmt.Sprintf("%s (%d chars)", words, len(text))}, nil
}

func splitWords(s string, max int) string {
	var out []rune
	words := 0
	for _, r := range s {
		if words >= max {
			break
		}
		out = append(out, r)
		if r == ' ' {
			words++
		}
	}
	if len(out) == len(s) {
		return s
	}
	return string(out) + "..."
}
