// Package tokenizer bounds text to a token budget before it is sent to the
// embedding service.
package tokenizer

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultEncoding is the vocabulary used for embedding input. Changing it
// invalidates comparability of previously generated embeddings.
const DefaultEncoding = "cl100k_base"

// DefaultMaxTokens keeps embedding input under the service's input limit.
const DefaultMaxTokens = 8000

// ErrInvalidBudget is returned for a non-positive token budget.
var ErrInvalidBudget = errors.New("max tokens must be greater than 0")

func init() {
	// Vocabularies are embedded in the binary; nothing is downloaded at runtime.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Codec encodes text with a fixed vocabulary.
type Codec struct {
	encoding string
	enc      *tiktoken.Tiktoken
}

// New loads the named encoding.
func New(encoding string) (*Codec, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", encoding, err)
	}
	return &Codec{encoding: encoding, enc: enc}, nil
}

// Encoding returns the vocabulary name.
func (c *Codec) Encoding() string {
	return c.encoding
}

// Encode returns the token ids of text.
func (c *Codec) Encode(text string) []int {
	return c.enc.Encode(text, nil, nil)
}

// Count returns the number of tokens in text.
func (c *Codec) Count(text string) int {
	return len(c.Encode(text))
}

// Truncate returns text unchanged when it fits in maxTokens, otherwise the
// decoded first maxTokens tokens. If that prefix ends inside a multi-byte
// character, trailing tokens are dropped until the result is valid UTF-8.
func (c *Codec) Truncate(text string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		return "", ErrInvalidBudget
	}

	tokens := c.Encode(text)
	if len(tokens) <= maxTokens {
		return text, nil
	}

	kept := tokens[:maxTokens]
	out := c.enc.Decode(kept)
	for !utf8.ValidString(out) && len(kept) > 0 {
		kept = kept[:len(kept)-1]
		out = c.enc.Decode(kept)
	}
	return out, nil
}
