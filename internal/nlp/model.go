package nlp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrModelUnavailable marks failures of the language model service. Callers
// treat it as fatal for the current batch.
var ErrModelUnavailable = errors.New("language model unavailable")

// Model tokenizes, lemmatizes, tags entities and embeds text.
type Model interface {
	Analyze(ctx context.Context, texts []string) ([]Doc, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Token struct {
	Text       string `json:"text"`
	Lemma      string `json:"lemma"`
	Whitespace string `json:"whitespace,omitempty"`
	IsStop     bool   `json:"is_stop"`
	IsPunct    bool   `json:"is_punct"`
	IsSpace    bool   `json:"is_space"`
	IsCurrency bool   `json:"is_currency"`
	LikeNum    bool   `json:"like_num"`
}

// Span is a half-open token range [Start, End) with an entity label.
type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Label string `json:"label"`
	Text  string `json:"text,omitempty"`
}

type Doc struct {
	Text     string  `json:"text"`
	Tokens   []Token `json:"tokens"`
	Entities []Span  `json:"ents"`
}

// SpanText rebuilds the surface text of tokens [start, end), keeping inner
// whitespace and dropping the trailing whitespace of the last token.
func (d *Doc) SpanText(start, end int) string {
	if d == nil || start < 0 || end > len(d.Tokens) || start >= end {
		return ""
	}
	var b strings.Builder
	for i := start; i < end; i++ {
		b.WriteString(d.Tokens[i].Text)
		if i < end-1 {
			b.WriteString(d.Tokens[i].Whitespace)
		}
	}
	return b.String()
}

// Validate checks that entity spans are in bounds, non-empty, ordered and
// non-overlapping.
func (d *Doc) Validate() error {
	if d == nil {
		return fmt.Errorf("doc is nil")
	}
	prevEnd := 0
	for i, span := range d.Entities {
		if span.Start < 0 || span.End > len(d.Tokens) || span.Start >= span.End {
			return fmt.Errorf("entity %d span [%d,%d) out of bounds for %d tokens", i, span.Start, span.End, len(d.Tokens))
		}
		if span.Start < prevEnd {
			return fmt.Errorf("entity %d span [%d,%d) overlaps previous entity", i, span.Start, span.End)
		}
		prevEnd = span.End
	}
	return nil
}

// ContainsDigit reports whether s has at least one decimal digit.
func ContainsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
