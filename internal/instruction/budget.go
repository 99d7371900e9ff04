package instruction

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates token counts for budgeting. It prefers the
// cl100k_base BPE; when the encoding cannot be loaded (offline hosts,
// no cache dir) it falls back to a rune estimate so budgeting still
// works, just less precisely.
type TokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenCounter creates a lazy counter. The encoding is loaded on
// first use.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

func (t *TokenCounter) Count(text string) int {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err != nil {
			slog.Debug("tiktoken encoding unavailable, using rune estimate", "error", err)
			return
		}
		t.enc = enc
	})
	if t.enc != nil {
		return len(t.enc.Encode(text, nil, nil))
	}
	// Rough average of 4 characters per token.
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
