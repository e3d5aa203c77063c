// Package nlptest provides a deterministic in-process nlp.Model for tests.
package nlptest

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"horse.fit/newsdigest/internal/nlp"
)

var tokenPattern = regexp.MustCompile(`\p{L}[\p{L}\p{M}'’]*|\d+(?:[.,]\d+)*|\S`)

var defaultStopwords = []string{
	"a", "all", "among", "an", "and", "as", "at", "be", "by", "for", "from", "in",
	"including", "is", "it", "of", "on", "or", "said", "the", "to", "was", "were", "with",
}

var magnitudes = map[string]struct{}{
	"thousand": {},
	"million":  {},
	"billion":  {},
	"trillion": {},
}

// Model tokenizes on letters, numbers and single symbols, lowercases lemmas,
// tags gazetteer phrases as entities, and tags bare amounts as MONEY without
// their currency symbol.
type Model struct {
	Dimensions int
	Gazetteer  map[string]string
	Stopwords  []string

	mu         sync.Mutex
	err        error
	embedCalls int
}

func New(dimensions int, gazetteer map[string]string) *Model {
	return &Model{
		Dimensions: dimensions,
		Gazetteer:  gazetteer,
		Stopwords:  defaultStopwords,
	}
}

// Fail makes every following call return err.
func (m *Model) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *Model) EmbedCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embedCalls
}

func (m *Model) failure() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *Model) Analyze(_ context.Context, texts []string) ([]nlp.Doc, error) {
	if err := m.failure(); err != nil {
		return nil, err
	}
	docs := make([]nlp.Doc, 0, len(texts))
	for _, text := range texts {
		docs = append(docs, m.analyze(text))
	}
	return docs, nil
}

func (m *Model) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if err := m.failure(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.embedCalls++
	m.mu.Unlock()

	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vectors = append(vectors, m.embed(text))
	}
	return vectors, nil
}

func (m *Model) analyze(text string) nlp.Doc {
	stop := make(map[string]struct{}, len(m.Stopwords))
	for _, word := range m.Stopwords {
		stop[word] = struct{}{}
	}

	doc := nlp.Doc{Text: text}
	locs := tokenPattern.FindAllStringIndex(text, -1)
	for i, loc := range locs {
		surface := text[loc[0]:loc[1]]
		next := len(text)
		if i+1 < len(locs) {
			next = locs[i+1][0]
		}
		whitespace := ""
		if loc[1] < next {
			whitespace = " "
		}

		lemma := strings.ToLower(surface)
		_, isStop := stop[lemma]
		doc.Tokens = append(doc.Tokens, nlp.Token{
			Text:       surface,
			Lemma:      lemma,
			Whitespace: whitespace,
			IsStop:     isStop,
			IsPunct:    isPunct(surface),
			IsCurrency: isCurrency(surface),
			LikeNum:    nlp.ContainsDigit(surface),
		})
	}

	doc.Entities = m.entities(doc.Tokens)
	return doc
}

func (m *Model) entities(tokens []nlp.Token) []nlp.Span {
	type phrase struct {
		words []string
		label string
	}
	phrases := make([]phrase, 0, len(m.Gazetteer))
	for text, label := range m.Gazetteer {
		phrases = append(phrases, phrase{words: tokenPattern.FindAllString(text, -1), label: label})
	}

	var spans []nlp.Span
	for i := 0; i < len(tokens); {
		best := phrase{}
		for _, p := range phrases {
			if len(p.words) <= len(best.words) || i+len(p.words) > len(tokens) {
				continue
			}
			matched := true
			for j, word := range p.words {
				if tokens[i+j].Text != word {
					matched = false
					break
				}
			}
			if matched {
				best = p
			}
		}
		if len(best.words) > 0 {
			spans = append(spans, nlp.Span{Start: i, End: i + len(best.words), Label: best.label})
			i += len(best.words)
			continue
		}

		if tokens[i].LikeNum && i > 0 && tokens[i-1].IsCurrency {
			end := i + 1
			if end < len(tokens) {
				if _, ok := magnitudes[tokens[end].Lemma]; ok {
					end++
				}
			}
			spans = append(spans, nlp.Span{Start: i, End: end, Label: "MONEY"})
			i = end
			continue
		}
		i++
	}
	return spans
}

func (m *Model) embed(text string) []float32 {
	dims := m.Dimensions
	if dims <= 0 {
		dims = 8
	}
	vector := make([]float32, dims)
	for _, word := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vector[int(h.Sum32()%uint32(dims))]++
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vector[0] = 1
		return vector
	}
	norm = math.Sqrt(norm)
	for i := range vector {
		vector[i] = float32(float64(vector[i]) / norm)
	}
	return vector
}

func isPunct(s string) bool {
	for _, r := range s {
		if !unicode.IsPunct(r) {
			return false
		}
	}
	return s != ""
}

func isCurrency(s string) bool {
	for _, r := range s {
		if !unicode.Is(unicode.Sc, r) {
			return false
		}
	}
	return s != ""
}
