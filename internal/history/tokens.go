package history

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens for one model's encoding, caching the
// encoding lookup since constructing one is not free. It covers
// exactly what the compactor's proactive-shrink check needs: plain
// string counts and whole-message-list estimates.
type TokenCounter struct {
	mu       sync.RWMutex
	model    string
	encoding *tiktoken.Tiktoken
}

var (
	encodingCacheMu sync.RWMutex
	encodingCache   = make(map[string]*tiktoken.Tiktoken)
)

// NewTokenCounter builds a counter for model, falling back to the
// cl100k_base encoding when the model isn't one tiktoken-go maps
// directly (true for Anthropic model names, which have no first-party
// tiktoken encoding but tokenize similarly enough for an estimate).
func NewTokenCounter(model string) (*TokenCounter, error) {
	encodingCacheMu.RLock()
	cached, ok := encodingCache[model]
	encodingCacheMu.RUnlock()
	if ok {
		return &TokenCounter{model: model, encoding: cached}, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	encodingCacheMu.Lock()
	encodingCache[model] = enc
	encodingCacheMu.Unlock()
	return &TokenCounter{model: model, encoding: enc}, nil
}

// Count returns the token count of a single string.
func (tc *TokenCounter) Count(text string) int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return len(tc.encoding.Encode(text, nil, nil))
}

// messageOverheadTokens is the per-message framing cost counted
// alongside role and content, following the OpenAI chat-format
// accounting.
const messageOverheadTokens = 3

// CountMessages returns the estimated token count of a full message
// list, including per-message role/framing overhead and the trailing
// reply-priming tokens every chat completion reserves.
func (tc *TokenCounter) CountMessages(messages []Message) int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	total := 0
	for _, m := range messages {
		total += messageOverheadTokens
		total += len(tc.encoding.Encode(m.Role, nil, nil))
		total += len(tc.encoding.Encode(m.Content, nil, nil))
	}
	return total + messageOverheadTokens
}
