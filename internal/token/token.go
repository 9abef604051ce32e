// Package token counts and truncates text under a fixed BPE tokenization.
package token

import (
	"github.com/pkoukk/tiktoken-go"
)

const encodingName = "cl100k_base"

// Counter counts tokens and truncates text by token prefix. All methods are
// pure; the zero-value Counter is not usable, call New.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// New returns a Counter backed by the cl100k_base encoding. When the encoding
// cannot be loaded the Counter falls back to the character estimate so the
// engine still boots; the same fallback is then used everywhere consistently.
func New() (*Counter, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return &Counter{}, err
	}
	return &Counter{enc: enc}, nil
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.enc == nil {
		return Estimate(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// Truncate returns the longest prefix of text whose token count is at most
// budget, and that count. The returned count may be lower than budget when
// the prefix decodes short.
func (c *Counter) Truncate(text string, budget int) (string, int) {
	if budget <= 0 {
		return "", 0
	}
	if c.enc == nil {
		if len(text) <= budget*4 {
			return text, Estimate(text)
		}
		cut := text[:budget*4]
		return cut, Estimate(cut)
	}
	ids := c.enc.Encode(text, nil, nil)
	if len(ids) <= budget {
		return text, len(ids)
	}
	prefix := c.enc.Decode(ids[:budget])
	return prefix, len(c.enc.Encode(prefix, nil, nil))
}

// Estimate is the cheap character-based lower envelope: ceil(len/4).
// Callers use it only as a fast gate; it is never persisted.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
