package genclient

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

var (
	encoderMu    sync.Mutex
	encoderCache = map[string]*tiktoken.Tiktoken{}
)

// estimateTokens counts tokens of text for model. Unknown models use
// cl100k_base. ok is false when no tokenizer could be loaded.
func estimateTokens(model string, texts ...string) (n int, ok bool) {
	enc := encoderFor(model)
	if enc == nil {
		return 0, false
	}
	for _, t := range texts {
		n += len(enc.Encode(t, nil, nil))
	}
	return n, true
}

func encoderFor(model string) *tiktoken.Tiktoken {
	encoderMu.Lock()
	defer encoderMu.Unlock()

	if enc, ok := encoderCache[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			// not cached, the next call may succeed once the BPE file is reachable
			return nil
		}
	}
	encoderCache[model] = enc
	return enc
}
