// Package tokenizer estimates token counts for model input, preferring an
// accurate tiktoken encoding when the model is known and falling back to a
// cheap character-based estimate otherwise.
package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// modelEncodings maps a model name (or prefix) to the tiktoken encoding that
// approximates its tokenization. Claude/Kiro models have no public tiktoken
// encoding, so cl100k_base is used as the closest available approximation;
// OpenAI-compatible models get their real encoding.
var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
	"o1":            "o200k_base",
	"o3":            "o200k_base",
	"claude-opus":   "cl100k_base",
	"claude-sonnet": "cl100k_base",
	"claude-haiku":  "cl100k_base",
	"amazonq":       "cl100k_base",
}

func encodingForModel(table map[string]string, model string) (string, bool) {
	if encoding, ok := table[model]; ok {
		return encoding, true
	}
	for prefix, encoding := range table {
		if strings.HasPrefix(model, prefix) {
			return encoding, true
		}
	}
	return "", false
}

type encodingHandle struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

// Option customizes a Counter.
type Option func(*Counter)

// WithModelEncoding adds or overrides a single model -> encoding mapping,
// layered on top of the package defaults. Useful in tests to exercise the
// tokenizer-init-failure fallback with a deliberately bogus encoding name.
func WithModelEncoding(model, encoding string) Option {
	return func(c *Counter) {
		c.table[model] = encoding
	}
}

// Counter counts tokens for a model/text pair, caching one initialized
// tiktoken encoding per distinct encoding name.
type Counter struct {
	mu    sync.Mutex
	cache map[string]*encodingHandle
	table map[string]string
}

// NewCounter builds a Counter with the default model encoding table, merged
// with any overrides supplied through opts.
func NewCounter(opts ...Option) *Counter {
	table := make(map[string]string, len(modelEncodings))
	for model, encoding := range modelEncodings {
		table[model] = encoding
	}
	c := &Counter{
		cache: make(map[string]*encodingHandle),
		table: table,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Counter) handleFor(encoding string) *encodingHandle {
	c.mu.Lock()
	h, ok := c.cache[encoding]
	if !ok {
		h = &encodingHandle{}
		c.cache[encoding] = h
	}
	c.mu.Unlock()

	h.once.Do(func() {
		h.enc, h.err = tiktoken.GetEncoding(encoding)
	})
	return h
}

// CountTokens returns the token count for text under model's encoding when
// known, falling back to len(text)/4 for unknown models or when tiktoken
// fails to initialize the encoding.
func (c *Counter) CountTokens(model, text string) int {
	if text == "" {
		return 0
	}
	if encoding, ok := encodingForModel(c.table, model); ok {
		h := c.handleFor(encoding)
		if h.err == nil {
			return len(h.enc.Encode(text, nil, nil))
		}
	}
	return fallbackCount(text)
}

func fallbackCount(text string) int {
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

var defaultCounter = NewCounter()

// CountTokens counts text against the package-wide default Counter.
func CountTokens(model, text string) int {
	return defaultCounter.CountTokens(model, text)
}
