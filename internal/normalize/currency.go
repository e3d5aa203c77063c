package normalize

import (
	"fmt"
	"strings"

	"horse.fit/newsdigest/internal/nlp"
)

const moneyLabel = "MONEY"

// MergeCurrencyEntities folds a currency symbol that directly precedes a MONEY
// entity into that entity, retokenizing the symbol and the entity tokens into
// a single token. "$ 5 million" tagged MONEY over "5 million" becomes one
// token "$5 million" and one MONEY span over it. A MONEY entity at token 0, or
// one whose preceding token already belongs to another entity, is left alone.
func MergeCurrencyEntities(doc *nlp.Doc) error {
	if doc == nil {
		return fmt.Errorf("doc is nil")
	}
	if err := doc.Validate(); err != nil {
		return err
	}

	merges := make(map[int]int)
	merged := make(map[int]bool)
	prevEnd := 0
	for i, span := range doc.Entities {
		symbol := span.Start - 1
		if span.Label == moneyLabel && symbol >= prevEnd && doc.Tokens[symbol].IsCurrency {
			merges[symbol] = span.End
			merged[i] = true
		}
		prevEnd = span.End
	}
	if len(merges) == 0 {
		return nil
	}

	newIndex := make([]int, len(doc.Tokens)+1)
	tokens := make([]nlp.Token, 0, len(doc.Tokens))
	for i := 0; i < len(doc.Tokens); {
		newIndex[i] = len(tokens)
		if end, ok := merges[i]; ok {
			tokens = append(tokens, mergeTokens(doc.Tokens[i:end]))
			for j := i + 1; j < end; j++ {
				newIndex[j] = len(tokens) - 1
			}
			i = end
			continue
		}
		tokens = append(tokens, doc.Tokens[i])
		i++
	}
	newIndex[len(doc.Tokens)] = len(tokens)

	entities := make([]nlp.Span, len(doc.Entities))
	for i, span := range doc.Entities {
		if merged[i] {
			start := newIndex[span.Start-1]
			entities[i] = nlp.Span{Start: start, End: start + 1, Label: span.Label}
			continue
		}
		entities[i] = nlp.Span{Start: newIndex[span.Start], End: newIndex[span.End], Label: span.Label, Text: span.Text}
	}

	doc.Tokens = tokens
	doc.Entities = entities
	return nil
}

func mergeTokens(parts []nlp.Token) nlp.Token {
	var b strings.Builder
	likeNum := false
	for i, part := range parts {
		b.WriteString(part.Text)
		if i < len(parts)-1 {
			b.WriteString(part.Whitespace)
		}
		likeNum = likeNum || part.LikeNum
	}
	text := b.String()
	return nlp.Token{
		Text:       text,
		Lemma:      text,
		Whitespace: parts[len(parts)-1].Whitespace,
		LikeNum:    likeNum,
	}
}

// FinalizeEntities fills in each span's surface text from its tokens.
func FinalizeEntities(doc *nlp.Doc) error {
	if doc == nil {
		return fmt.Errorf("doc is nil")
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	for i := range doc.Entities {
		doc.Entities[i].Text = doc.SpanText(doc.Entities[i].Start, doc.Entities[i].End)
	}
	return nil
}
