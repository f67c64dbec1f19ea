package protocol

import "strings"

// TextBlob is the newline-delimited key|value format used by the login
// credential exchange and by OnSpawn/OnRemove bodies. Values may contain
// further '|' characters; only the first one splits.
type TextBlob struct {
	pairs map[string]string
	order []string
}

// NewTextBlob creates an empty blob for building outbound payloads.
func NewTextBlob() *TextBlob {
	return &TextBlob{pairs: make(map[string]string)}
}

// ParseTextBlob parses key|value lines. Lines without a separator and
// blank lines are skipped.
func ParseTextBlob(text string) *TextBlob {
	b := NewTextBlob()
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		key, value, ok := strings.Cut(line, "|")
		if !ok || key == "" {
			continue
		}
		b.Set(key, value)
	}
	return b
}

// Set stores a key|value pair, preserving first-set order.
func (b *TextBlob) Set(key, value string) {
	if _, ok := b.pairs[key]; !ok {
		b.order = append(b.order, key)
	}
	b.pairs[key] = value
}

// Get returns the value for key, or "".
func (b *TextBlob) Get(key string) string {
	return b.pairs[key]
}

// Has reports whether key is present.
func (b *TextBlob) Has(key string) bool {
	_, ok := b.pairs[key]
	return ok
}

// Len returns the number of pairs.
func (b *TextBlob) Len() int {
	return len(b.order)
}

// String renders the blob in insertion order, one key|value per line.
func (b *TextBlob) String() string {
	var sb strings.Builder
	for i, key := range b.order {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(key)
		sb.WriteByte('|')
		sb.WriteString(b.pairs[key])
	}
	return sb.String()
}
