package llm

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// messageOverhead approximates the role and separator tokens the chat
// format adds around every message.
const messageOverhead = 4

var loadCodec = sync.OnceValues(func() (tokenizer.Codec, error) {
	return tokenizer.Get(tokenizer.Cl100kBase)
})

// CountTokens estimates how many tokens text costs in a request. Without a
// codec it guesses four bytes per token.
func CountTokens(text string) int {
	if c, err := loadCodec(); err == nil {
		if ids, _, err := c.Encode(text); err == nil {
			return len(ids)
		}
	}
	return (len(text) + 3) / 4
}

// MessageTokens is CountTokens plus the per-message framing.
func MessageTokens(m Message) int {
	return messageOverhead + CountTokens(m.Content)
}

// ConversationTokens estimates a whole request: system prompt and history.
func ConversationTokens(system string, history []Message) int {
	total := MessageTokens(Message{Role: RoleSystem, Content: system})
	for _, m := range history {
		total += MessageTokens(m)
	}
	return total
}

// TrimToTokenBudget keeps the newest messages whose combined cost fits in
// budget. The newest message always survives; budget <= 0 keeps everything.
func TrimToTokenBudget(messages []Message, budget int) []Message {
	if budget <= 0 || len(messages) == 0 {
		return messages
	}
	start := len(messages) - 1
	total := MessageTokens(messages[start])
	for start > 0 {
		total += MessageTokens(messages[start-1])
		if total > budget {
			break
		}
		start--
	}
	return messages[start:]
}
