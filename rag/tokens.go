package rag

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter reports how many tokens a text costs against the prompt budget.
type TokenCounter func(text string) int

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// defaultTokenCounter counts tokens with the cl100k_base encoding. When the
// encoding cannot be loaded it falls back to a bytes/4 approximation, which
// overshoots rarely enough for budgeting purposes.
func defaultTokenCounter(text string) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err == nil {
			encoding = enc
		}
	})
	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	return approxTokens(text)
}

func approxTokens(text string) int {
	return len(text)/4 + 1
}
