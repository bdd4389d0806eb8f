package chat

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

func init() {
	// Offline BPE loader so token counting needs no network access.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
	encodingErr  error
)

// countTokens returns the cl100k_base token count of the given texts.
// Falls back to a bytes/4 estimate if the encoding cannot be loaded.
func countTokens(texts ...string) int {
	encodingOnce.Do(func() {
		encoding, encodingErr = tiktoken.GetEncoding("cl100k_base")
	})

	total := 0
	for _, text := range texts {
		if text == "" {
			continue
		}
		if encodingErr != nil {
			total += len(text) / 4
			continue
		}
		total += len(encoding.Encode(text, nil, nil))
	}
	return total
}
