package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

// EstimateTokenCount returns a token estimate for the provided content using
// the cl100k_base encoding, falling back to a chars/4 heuristic when the
// encoding is unavailable.
func EstimateTokenCount(content string) int {
	if content == "" {
		return 0
	}

	encoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoder = enc
		}
	})

	if encoder != nil {
		return len(encoder.Encode(content, nil, nil))
	}
	return charsToTokens(len(content))
}

// EstimateRequestTokens sums the estimates for every message in the request
// plus the configured output budget.
func EstimateRequestTokens(req *CompletionRequest) int {
	if req == nil {
		return 0
	}

	total := EstimateTokenCount(req.SystemPrompt)
	for _, msg := range req.Messages {
		if msg == nil {
			continue
		}
		total += EstimateTokenCount(msg.Content)
	}
	if req.MaxTokens > 0 {
		total += req.MaxTokens
	}
	return total
}

func charsToTokens(chars int) int {
	if chars <= 0 {
		return 0
	}
	tokens := chars / 4
	if tokens <= 0 {
		tokens = 1
	}
	return tokens
}
