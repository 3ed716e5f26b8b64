// Package vocab extracts a vocabulary list from Simplified Chinese lyrics.
//
// The primary path prompts an LLM for a strict JSON array of word entries;
// responses are located with a balanced-bracket scan so chatter around the
// array does not break decoding. When the model fails or returns nothing
// usable a deterministic character-run fallback keeps the pipeline alive.
package vocab

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/songwords/internal/zhtext"
	"github.com/MrWong99/songwords/pkg/provider/llm"
)

// Item is a single vocabulary entry. Jiantizi always contains at least one
// Chinese character; pinyin and english may be "unknown" for fallback items.
type Item struct {
	Jiantizi string `json:"jiantizi"`
	Pinyin   string `json:"pinyin"`
	English  string `json:"english"`
}

// FallbackGloss marks pinyin/english fields the fallback cannot fill in.
const FallbackGloss = "unknown"

// maxFallbackItems caps the size of a fallback-produced list.
const maxFallbackItems = 30

const (
	temperature = 0.7
	maxTokens   = 2048
)

const systemPrompt = `You extract vocabulary from Simplified Chinese song lyrics for language learners. ` +
	`Respond with a JSON array and nothing else. Each element must be an object with exactly these fields: ` +
	`"jiantizi" (the word in Simplified Chinese), "pinyin" (with tone marks), "english" (a short gloss). ` +
	`Pick the words a learner would want to study, in the order they appear. ` +
	`Do not wrap the array in markdown fences or add any commentary.`

// Extractor produces vocabulary items from lyrics text.
type Extractor struct {
	provider llm.Provider
	logger   *slog.Logger
}

// NewExtractor creates an Extractor on top of an LLM provider.
func NewExtractor(provider llm.Provider, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{provider: provider, logger: logger}
}

// Extract returns vocabulary for the given lyrics. The second return value
// reports whether the deterministic fallback produced the list. It is an
// error only when the input contains no Chinese characters at all.
func (e *Extractor) Extract(ctx context.Context, lyrics string) ([]Item, bool, error) {
	if !zhtext.ContainsChinese(lyrics) {
		return nil, false, fmt.Errorf("vocab: input contains no Chinese characters")
	}

	items, err := e.llmExtract(ctx, lyrics)
	if err != nil {
		e.logger.Warn("LLM extraction failed, using fallback", "error", err)
		return Fallback(lyrics), true, nil
	}
	if len(items) == 0 {
		e.logger.Warn("LLM returned no valid vocabulary items, using fallback")
		return Fallback(lyrics), true, nil
	}
	return items, false, nil
}

func (e *Extractor) llmExtract(ctx context.Context, lyrics string) ([]Item, error) {
	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Prompt:       "Lyrics:\n\n" + lyrics,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}
	return ParseItems(resp.Content)
}

// ParseItems locates the first balanced JSON array in raw model output,
// decodes it and drops entries that fail validation. Order is preserved.
func ParseItems(raw string) ([]Item, error) {
	arr, ok := balancedArray(raw)
	if !ok {
		return nil, fmt.Errorf("no JSON array in output")
	}

	var decoded []Item
	if err := json.Unmarshal([]byte(arr), &decoded); err != nil {
		return nil, fmt.Errorf("decode array: %w", err)
	}

	items := make([]Item, 0, len(decoded))
	for _, it := range decoded {
		it.Jiantizi = strings.TrimSpace(it.Jiantizi)
		it.Pinyin = strings.TrimSpace(it.Pinyin)
		it.English = strings.TrimSpace(it.English)
		if it.Jiantizi == "" || it.Pinyin == "" || it.English == "" {
			continue
		}
		if !zhtext.ContainsChinese(it.Jiantizi) {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

// balancedArray scans raw for the first '[' and returns the substring up to
// its matching ']', honoring JSON string literals and escapes.
func balancedArray(raw string) (string, bool) {
	start := strings.IndexByte(raw, '[')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}

// Fallback builds a vocabulary list without an LLM: every run of 2 to 4
// consecutive Chinese characters in order of appearance, then every distinct
// single character. Exact duplicates are dropped and the list is capped at
// maxFallbackItems.
func Fallback(lyrics string) []Item {
	var items []Item
	seen := make(map[string]bool)

	add := func(word string) {
		if len(items) >= maxFallbackItems || seen[word] {
			return
		}
		seen[word] = true
		items = append(items, Item{Jiantizi: word, Pinyin: FallbackGloss, English: FallbackGloss})
	}

	runes := []rune(lyrics)
	var singles []rune
	run := make([]rune, 0, 8)

	flush := func() {
		// Runs split greedily into chunks of at most 4. A leftover single
		// character is only picked up by the per-character pass below.
		for i := 0; i < len(run); i += 4 {
			end := min(i+4, len(run))
			if end-i >= 2 {
				add(string(run[i:end]))
			}
		}
		run = run[:0]
	}

	for _, r := range runes {
		if isChinese(r) {
			run = append(run, r)
			singles = append(singles, r)
		} else {
			flush()
		}
	}
	flush()

	for _, r := range singles {
		if len(items) >= maxFallbackItems {
			break
		}
		add(string(r))
	}
	return items
}

func isChinese(r rune) bool {
	return r >= 0x4E00 && r <= 0x9FFF
}
