// Package zhtext normalises raw text into compact Simplified Chinese.
//
// The pipeline stages downstream of a web fetch (lyrics cleaning, vocabulary
// extraction) work best on short, mostly-Chinese input. This package strips
// URLs and markup noise, extracts the Chinese runs, and converts Traditional
// characters to Simplified so the rest of the system only ever sees jiantizi.
package zhtext

import (
	"regexp"
	"strings"

	"github.com/siongui/gojianfan"
	"golang.org/x/text/width"
)

// Chinese characters live in the CJK Unified Ideographs block.
const (
	hanMin = 0x4E00
	hanMax = 0x9FFF
)

var (
	urlRe      = regexp.MustCompile(`https?://\S+|www\.\S+`)
	markupRe   = regexp.MustCompile(`\[.*?\]|\(.*?\)|\*\*|__|\*|_|##+`)
	hanRunRe   = regexp.MustCompile(`[\x{4e00}-\x{9fff}]+|\n`)
	spaceRunRe = regexp.MustCompile(`[ \t]+`)
)

// ContainsChinese reports whether text contains at least one CJK Unified
// Ideograph (U+4E00..U+9FFF).
func ContainsChinese(text string) bool {
	for _, r := range text {
		if r >= hanMin && r <= hanMax {
			return true
		}
	}
	return false
}

// Clean strips URLs, markdown markers, and everything that is neither a
// Chinese run nor a newline, then rejoins the surviving runs with single
// spaces. Newlines between Chinese runs are preserved so lyric line breaks
// survive cleaning. Empty input yields an empty string.
func Clean(text string) string {
	if text == "" {
		return ""
	}

	// Fullwidth ASCII variants (ＡＢＣ１２３) fold to their halfwidth forms so
	// the markup patterns below match them too. CJK ideographs are unaffected.
	text = width.Fold.String(text)

	text = urlRe.ReplaceAllString(text, "")
	text = markupRe.ReplaceAllString(text, "")

	runs := hanRunRe.FindAllString(text, -1)
	if len(runs) == 0 {
		return ""
	}

	var b strings.Builder
	for i, run := range runs {
		if run == "\n" {
			// Collapse consecutive newlines; never start with one.
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
				b.WriteByte('\n')
			}
			continue
		}
		if i > 0 && b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte(' ')
		}
		b.WriteString(run)
	}

	out := spaceRunRe.ReplaceAllString(b.String(), " ")
	return strings.TrimSpace(out)
}

// ToSimplified converts Traditional Chinese characters to Simplified using
// the standard conversion table. The second return value reports whether the
// conversion changed anything.
func ToSimplified(text string) (string, bool) {
	simplified := gojianfan.T2S(text)
	return simplified, simplified != text
}

// Process runs the full normalisation: gate on Chinese presence, clean, then
// convert to Simplified. Text without any Chinese character is returned
// untouched with converted == false.
//
// Process is idempotent on already-normalised Simplified text.
func Process(text string) (string, bool) {
	if !ContainsChinese(text) {
		return text, false
	}
	return ToSimplified(Clean(text))
}
