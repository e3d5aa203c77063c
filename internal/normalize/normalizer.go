package normalize

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"horse.fit/newsdigest/internal/nlp"
)

// Step transforms an analyzed document in place. Steps run in order after the
// model has produced tokens and raw entity spans.
type Step struct {
	Name  string
	Apply func(doc *nlp.Doc) error
}

var (
	MergeCurrency = Step{Name: "merge_currency", Apply: MergeCurrencyEntities}
	Finalize      = Step{Name: "finalize_entities", Apply: FinalizeEntities}
)

// DefaultSteps glues currency symbols onto MONEY entities, then finalizes entities.
func DefaultSteps() []Step {
	return []Step{MergeCurrency, Finalize}
}

type Normalizer struct {
	model nlp.Model
	steps []Step
}

// New builds a Normalizer. Without explicit steps it uses DefaultSteps.
func New(model nlp.Model, steps ...Step) *Normalizer {
	if len(steps) == 0 {
		steps = DefaultSteps()
	}
	return &Normalizer{
		model: model,
		steps: steps,
	}
}

func (n *Normalizer) Normalize(ctx context.Context, raw string) (*nlp.Doc, error) {
	docs, err := n.NormalizeBatch(ctx, []string{raw})
	if err != nil {
		return nil, err
	}
	return &docs[0], nil
}

// NormalizeBatch analyzes all non-empty texts in one model call and runs the
// steps over each result. Empty texts yield empty documents without touching
// the model.
func (n *Normalizer) NormalizeBatch(ctx context.Context, texts []string) ([]nlp.Doc, error) {
	if n == nil || n.model == nil {
		return nil, fmt.Errorf("normalizer has no language model")
	}

	docs := make([]nlp.Doc, len(texts))
	pending := make([]string, 0, len(texts))
	positions := make([]int, 0, len(texts))
	for i, text := range texts {
		prepared := PrepareText(text)
		docs[i] = nlp.Doc{Text: prepared}
		if prepared == "" {
			continue
		}
		pending = append(pending, prepared)
		positions = append(positions, i)
	}
	if len(pending) == 0 {
		return docs, nil
	}

	analyzed, err := n.model.Analyze(ctx, pending)
	if err != nil {
		return nil, err
	}
	if len(analyzed) != len(pending) {
		return nil, fmt.Errorf("%w: analyzed %d of %d texts", nlp.ErrModelUnavailable, len(analyzed), len(pending))
	}

	for j, doc := range analyzed {
		if err := n.Apply(&doc); err != nil {
			return nil, fmt.Errorf("normalize text %d: %w", positions[j], err)
		}
		docs[positions[j]] = doc
	}
	return docs, nil
}

// Apply runs the configured steps over an already analyzed document.
func (n *Normalizer) Apply(doc *nlp.Doc) error {
	for _, step := range n.steps {
		if step.Apply == nil {
			continue
		}
		if err := step.Apply(doc); err != nil {
			return fmt.Errorf("step %s: %w", step.Name, err)
		}
	}
	return nil
}

// PrepareText applies NFC normalization, normalizes line endings and collapses
// runs of inline whitespace while keeping paragraph breaks.
func PrepareText(raw string) string {
	normalized := norm.NFC.String(raw)
	normalized = strings.ReplaceAll(normalized, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	lines := strings.Split(normalized, "\n")
	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		clean := strings.Join(strings.Fields(line), " ")
		if clean == "" {
			continue
		}
		paragraphs = append(paragraphs, clean)
	}
	return strings.Join(paragraphs, "\n\n")
}
