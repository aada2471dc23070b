package splitter

import (
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// TextSplitter wraps the langchaingo text splitter
type TextSplitter struct {
	splitter textsplitter.TextSplitter
}

// NewRecursiveCharacterTextSplitter creates a new recursive character text splitter
func NewRecursiveCharacterTextSplitter(chunkSize, chunkOverlap int) *TextSplitter {
	ts := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)

	return &TextSplitter{splitter: ts}
}

// SplitText splits text into chunks
func (ts *TextSplitter) SplitText(text string) ([]string, error) {
	return ts.splitter.SplitText(text)
}

// Budget keeps whole leading chunks of text until maxChars runes are used.
// The first chunk is always kept, cut at maxChars if it is longer.
func (ts *TextSplitter) Budget(text string, maxChars int) (string, error) {
	if maxChars <= 0 || len([]rune(text)) <= maxChars {
		return text, nil
	}

	chunks, err := ts.splitter.SplitText(text)
	if err != nil {
		return "", err
	}

	var kept []string
	used := 0
	for _, chunk := range chunks {
		n := len([]rune(chunk))
		if used+n > maxChars {
			if len(kept) == 0 {
				kept = append(kept, string([]rune(chunk)[:maxChars]))
			}
			break
		}
		kept = append(kept, chunk)
		used += n
	}
	return strings.Join(kept, "\n"), nil
}
