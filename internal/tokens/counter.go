// Package tokens estimates the token cost of text for a given model.
//
// Counting prefers an exact BPE tokenizer (tiktoken) for the model hint and
// silently falls back to Heuristic when none is available. Heuristic is an
// upper-bound estimate: budgets stay safe even when the tokenizer is missing.
package tokens

import (
	"sync"

	"github.com/petasbytes/toolchat/internal/metrics"
	"github.com/pkoukk/tiktoken-go"
)

// MessageOverhead is the fixed per-message cost (role and separators).
const MessageOverhead = 4

// Counter counts tokens in text. Implementations must be deterministic and never fail.
type Counter interface {
	Count(text, model string) int
}

// Encoder is the subset of *tiktoken.Tiktoken used for counting.
type Encoder interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
}

// EncoderLookup resolves an encoder for a model hint.
type EncoderLookup func(model string) (Encoder, error)

// TiktokenCounter counts with a BPE encoder per model, cached after the first lookup.
// Models without an encoder (or whose lookup fails) are counted with Heuristic.
type TiktokenCounter struct {
	lookup EncoderLookup

	mu       sync.Mutex
	encoders map[string]Encoder // nil value: lookup failed, use heuristic
}

type Option func(*TiktokenCounter)

// WithEncoderLookup replaces the tiktoken lookup.
func WithEncoderLookup(fn EncoderLookup) Option {
	return func(c *TiktokenCounter) { c.lookup = fn }
}

func NewCounter(opts ...Option) *TiktokenCounter {
	c := &TiktokenCounter{
		lookup:   tiktokenLookup,
		encoders: make(map[string]Encoder),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Count returns the token count of text for model.
func (c *TiktokenCounter) Count(text, model string) int {
	if text == "" {
		return 0
	}
	enc := c.encoder(model)
	if enc == nil {
		return Heuristic(text)
	}
	return len(enc.Encode(text, nil, nil))
}

func (c *TiktokenCounter) encoder(model string) Encoder {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encoders[model]; ok {
		return enc
	}
	var enc Encoder
	if model != "" && c.lookup != nil {
		if e, err := safeLookup(c.lookup, model); err == nil {
			enc = e
		}
	}
	c.encoders[model] = enc
	return enc
}

// safeLookup guards against tokenizer loaders that panic on unexpected input.
func safeLookup(fn EncoderLookup, model string) (enc Encoder, err error) {
	defer func() {
		if r := recover(); r != nil {
			enc, err = nil, errLookupPanic
		}
	}()
	return fn(model)
}

type lookupError string

func (e lookupError) Error() string { return string(e) }

const errLookupPanic = lookupError("tokens: encoder lookup panicked")

// tiktokenLookup accepts either a model name ("gpt-4o") or an encoding name ("cl100k_base").
func tiktokenLookup(model string) (Encoder, error) {
	if enc, err := tiktoken.EncodingForModel(model); err == nil {
		return enc, nil
	}
	enc, err := tiktoken.GetEncoding(model)
	if err != nil {
		return nil, err
	}
	return enc, nil
}

// HeuristicCounter counts with Heuristic regardless of model.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text, _ string) int { return Heuristic(text) }

// Heuristic is a closed-form upper-bound estimate over text shape counts:
//
//	ceil((alnumRunes + alnumRuns) / 2) + punct + nonASCIIBytes + extraSpace
//
// Each ASCII word costs at least half its length rounded up, every punctuation
// rune and every non-ASCII byte costs one, and whitespace beyond what merges
// into the next word costs one per newline or extra space.
func Heuristic(text string) int {
	if text == "" {
		return 0
	}
	f := metrics.CountFeatures(text)
	words := (f.AlnumRunes + f.AlnumRuns + 1) / 2
	return words + f.Punct + f.NonASCIIBytes + f.ExtraSpace
}

// MessageCost is the cost of one message: its content plus MessageOverhead.
// Empty content still pays the overhead.
func MessageCost(c Counter, content, model string) int {
	return c.Count(content, model) + MessageOverhead
}
