// Package lyrics turns raw lyrics-page text into clean Simplified Chinese
// song lyrics via an LLM pass.
//
// The cleaner asks the model to strip translations, metadata, page chrome and
// duplicated blocks, keeping only lyric lines. Output that contains no
// Chinese characters fails the contract and the caller moves on to the next
// search candidate; there are no per-candidate retries.
package lyrics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/songwords/internal/zhtext"
	"github.com/MrWong99/songwords/pkg/provider/llm"
)

// Cleaning parameters. Temperature matches the extraction stage; the token
// budget comfortably covers a full song.
const (
	temperature = 0.7
	maxTokens   = 2048
)

// maxInputRunes caps how much page text is forwarded to the model.
const maxInputRunes = 6000

const systemPrompt = `You clean up raw text scraped from Chinese lyrics webpages. ` +
	`Return only the song lyrics in Simplified Chinese, one lyric line per line. ` +
	`Remove translations, pinyin annotations, navigation text, advertisements, ` +
	`metadata such as composer or album credits, and repeated copies of the same verse block. ` +
	`Do not add commentary. Do not translate. Output nothing but the lyrics.`

// ErrNoChinese is returned when the model's output contains no Chinese
// characters, which marks the candidate page as unusable.
var ErrNoChinese = fmt.Errorf("lyrics: cleaned output contains no Chinese characters")

// Cleaner runs the LLM cleaning pass.
type Cleaner struct {
	provider llm.Provider
	logger   *slog.Logger
}

// NewCleaner creates a Cleaner on top of an LLM provider.
func NewCleaner(provider llm.Provider, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{provider: provider, logger: logger}
}

// Clean extracts pure Simplified Chinese lyrics from raw page text. It
// returns ErrNoChinese when the model output fails the Chinese-content gate
// and the provider's error when the LLM is unavailable.
func (c *Cleaner) Clean(ctx context.Context, raw string) (string, error) {
	raw = truncateRunes(raw, maxInputRunes)

	resp, err := c.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Prompt:       "Raw page text:\n\n" + raw,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("lyrics: clean: %w", err)
	}

	cleaned := strings.TrimSpace(resp.Content)
	if !zhtext.ContainsChinese(cleaned) {
		c.logger.Warn("cleaner output failed Chinese gate", "output_len", len(cleaned))
		return "", ErrNoChinese
	}

	// The model occasionally echoes Traditional input verbatim.
	simplified, converted := zhtext.ToSimplified(cleaned)
	if converted {
		c.logger.Debug("converted cleaned lyrics to Simplified")
	}
	return simplified, nil
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
