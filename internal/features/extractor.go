package features

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"horse.fit/newsdigest/internal/nlp"
	"horse.fit/newsdigest/internal/normalize"
)

// DefaultPunctuation is ASCII punctuation without the hyphen, so hyphenated
// compounds and dashes survive lemma filtering.
const DefaultPunctuation = "!\"#$%&'()*+,./:;<=>?@[\\]^_`{|}~"

var DefaultEntityTypes = []string{"GEO", "ORG", "PER", "GPE"}

var ErrInvalidEmbedding = errors.New("invalid title embedding")

// Exclusions decides which lemmas are dropped before counting numerals.
type Exclusions struct {
	Stopwords   map[string]struct{}
	Punctuation string
	// Keep lists punctuation characters that survive even when the model
	// flags the token as punctuation.
	Keep string
}

func DefaultExclusions() Exclusions {
	return Exclusions{
		Stopwords:   map[string]struct{}{},
		Punctuation: DefaultPunctuation,
		Keep:        "-",
	}
}

// Excludes reports whether a token is a space, a stopword or punctuation.
func (e Exclusions) Excludes(token nlp.Token) bool {
	lemma := tokenLemma(token)
	if token.IsSpace || strings.TrimSpace(lemma) == "" {
		return true
	}
	if token.IsStop {
		return true
	}
	if _, ok := e.Stopwords[strings.ToLower(lemma)]; ok {
		return true
	}
	if onlyRunesOf(lemma, e.Punctuation) {
		return true
	}
	return token.IsPunct && !onlyRunesOf(lemma, e.Keep)
}

type Input struct {
	Title    string
	Maintext string
}

type Features struct {
	TitleVector    []float32
	NumNumericals  int
	NamedEntities  []string
	LemmatizedText string
}

type Options struct {
	Exclusions  *Exclusions
	EntityTypes []string
	// Dimensions pins the title vector width. Zero accepts the width of the
	// first vector in each batch and requires the rest to match it.
	Dimensions int
	Steps      []normalize.Step
}

type Extractor struct {
	model       nlp.Model
	normalizer  *normalize.Normalizer
	exclusions  Exclusions
	entityTypes map[string]struct{}
	dimensions  int
}

func NewExtractor(model nlp.Model, opts Options) *Extractor {
	exclusions := DefaultExclusions()
	if opts.Exclusions != nil {
		exclusions = *opts.Exclusions
	}
	types := opts.EntityTypes
	if len(types) == 0 {
		types = DefaultEntityTypes
	}
	entityTypes := make(map[string]struct{}, len(types))
	for _, label := range types {
		entityTypes[strings.ToUpper(strings.TrimSpace(label))] = struct{}{}
	}

	return &Extractor{
		model:       model,
		normalizer:  normalize.New(model, opts.Steps...),
		exclusions:  exclusions,
		entityTypes: entityTypes,
		dimensions:  opts.Dimensions,
	}
}

func (e *Extractor) Extract(ctx context.Context, in Input) (Features, error) {
	out, err := e.ExtractBatch(ctx, []Input{in})
	if err != nil {
		return Features{}, err
	}
	return out[0], nil
}

// ExtractBatch derives features for every input or returns an error; it never
// returns a partial batch.
func (e *Extractor) ExtractBatch(ctx context.Context, inputs []Input) ([]Features, error) {
	if e == nil || e.model == nil {
		return nil, fmt.Errorf("feature extractor is not initialized")
	}
	if len(inputs) == 0 {
		return []Features{}, nil
	}

	bodies := make([]string, len(inputs))
	titles := make([]string, len(inputs))
	for i, in := range inputs {
		bodies[i] = in.Maintext
		titles[i] = in.Title
	}

	docs, err := e.normalizer.NormalizeBatch(ctx, bodies)
	if err != nil {
		return nil, fmt.Errorf("normalize maintext: %w", err)
	}

	vectors, err := e.model.Embed(ctx, titles)
	if err != nil {
		return nil, fmt.Errorf("embed titles: %w", err)
	}
	if len(vectors) != len(inputs) {
		return nil, fmt.Errorf("%w: embedded %d of %d titles", nlp.ErrModelUnavailable, len(vectors), len(inputs))
	}
	if err := e.checkVectors(vectors); err != nil {
		return nil, err
	}

	out := make([]Features, len(inputs))
	for i := range inputs {
		lemmatized, numerals := e.Lemmatize(&docs[i])
		out[i] = Features{
			TitleVector:    vectors[i],
			NumNumericals:  numerals,
			NamedEntities:  e.Entities(&docs[i]),
			LemmatizedText: lemmatized,
		}
	}
	return out, nil
}

// Lemmatize drops excluded tokens, then counts and removes every remaining
// lemma that contains a digit. It returns the space-joined survivors and the
// number of removed numeric lemmas.
func (e *Extractor) Lemmatize(doc *nlp.Doc) (string, int) {
	if doc == nil {
		return "", 0
	}
	lemmas := make([]string, 0, len(doc.Tokens))
	numerals := 0
	for _, token := range doc.Tokens {
		if e.exclusions.Excludes(token) {
			continue
		}
		lemma := tokenLemma(token)
		if nlp.ContainsDigit(lemma) {
			numerals++
			continue
		}
		lemmas = append(lemmas, lemma)
	}
	return strings.Join(lemmas, " "), numerals
}

// Entities formats allowed entity spans as _<TYPE>_<TEXT>, first occurrence
// order, without duplicates.
func (e *Extractor) Entities(doc *nlp.Doc) []string {
	entities := make([]string, 0)
	if doc == nil {
		return entities
	}
	seen := make(map[string]struct{}, len(doc.Entities))
	for _, span := range doc.Entities {
		label := strings.ToUpper(span.Label)
		if _, ok := e.entityTypes[label]; !ok {
			continue
		}
		text := span.Text
		if text == "" {
			text = doc.SpanText(span.Start, span.End)
		}
		tag := "_" + label + "_" + text
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		entities = append(entities, tag)
	}
	return entities
}

func (e *Extractor) checkVectors(vectors [][]float32) error {
	width := e.dimensions
	if width == 0 && len(vectors) > 0 {
		width = len(vectors[0])
	}
	for i, vector := range vectors {
		if len(vector) == 0 || len(vector) != width {
			return fmt.Errorf("%w: title %d has %d dimensions, expected %d", ErrInvalidEmbedding, i, len(vector), width)
		}
		for j, value := range vector {
			if math.IsNaN(float64(value)) || math.IsInf(float64(value), 0) {
				return fmt.Errorf("%w: title %d has non-finite value at index %d", ErrInvalidEmbedding, i, j)
			}
		}
	}
	return nil
}

func tokenLemma(token nlp.Token) string {
	if token.Lemma != "" {
		return token.Lemma
	}
	return token.Text
}

func onlyRunesOf(s, set string) bool {
	if s == "" || set == "" {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune(set, r) {
			return false
		}
	}
	return true
}
