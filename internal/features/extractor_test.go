package features

import (
	"context"
	"errors"
	"math"
	"slices"
	"strings"
	"testing"

	"horse.fit/newsdigest/internal/nlp"
	"horse.fit/newsdigest/internal/nlp/nlptest"
)

const kabulText = "KABUL, Aug 8 (Reuters) - Taliban fighters overran three provincial capitals including the strategic northeastern city of Kunduz on Sunday"

func kabulModel() *nlptest.Model {
	return nlptest.New(16, map[string]string{
		"KABUL":   "GPE",
		"Kunduz":  "GPE",
		"Reuters": "ORG",
		"Sunday":  "DATE",
	})
}

func TestExtractKabulScenario(t *testing.T) {
	t.Parallel()

	extractor := NewExtractor(kabulModel(), Options{Dimensions: 16})
	got, err := extractor.Extract(context.Background(), Input{
		Title:    "Taliban take Kunduz",
		Maintext: kabulText,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.NumNumericals != 1 {
		t.Fatalf("expected 1 numeral, got %d", got.NumNumericals)
	}
	if !slices.Contains(got.NamedEntities, "_GPE_KABUL") {
		t.Fatalf("expected _GPE_KABUL in %v", got.NamedEntities)
	}
	want := []string{"_GPE_KABUL", "_ORG_Reuters", "_GPE_Kunduz"}
	if !slices.Equal(got.NamedEntities, want) {
		t.Fatalf("unexpected entities: got %v want %v", got.NamedEntities, want)
	}
	if len(got.TitleVector) != 16 {
		t.Fatalf("expected 16 dimensions, got %d", len(got.TitleVector))
	}
	if strings.Contains(got.LemmatizedText, "8") {
		t.Fatalf("lemmatized text still holds a numeral: %q", got.LemmatizedText)
	}
	for _, dropped := range []string{"the", "of", ",", "(", ")"} {
		for _, word := range strings.Fields(got.LemmatizedText) {
			if word == dropped {
				t.Fatalf("lemmatized text kept excluded token %q: %q", dropped, got.LemmatizedText)
			}
		}
	}
	if !strings.Contains(got.LemmatizedText, "reuters - taliban") {
		t.Fatalf("expected hyphen token to survive: %q", got.LemmatizedText)
	}
}

func TestExtractEmptyMaintextStillEmbedsTitle(t *testing.T) {
	t.Parallel()

	model := kabulModel()
	got, err := NewExtractor(model, Options{}).Extract(context.Background(), Input{Title: "Quiet day"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.NumNumericals != 0 || got.LemmatizedText != "" || len(got.NamedEntities) != 0 {
		t.Fatalf("expected empty body features, got %+v", got)
	}
	if got.NamedEntities == nil {
		t.Fatalf("expected non-nil empty entity list")
	}
	if len(got.TitleVector) != 16 {
		t.Fatalf("expected title vector, got %d dimensions", len(got.TitleVector))
	}
	if model.EmbedCalls() != 1 {
		t.Fatalf("expected one embed call, got %d", model.EmbedCalls())
	}
}

func TestExtractBatchEmbedsTitlesOnce(t *testing.T) {
	t.Parallel()

	model := kabulModel()
	out, err := NewExtractor(model, Options{}).ExtractBatch(context.Background(), []Input{
		{Title: "one", Maintext: "KABUL on Sunday"},
		{Title: "two", Maintext: "Reuters said 12 and 3.5"},
		{Title: "three"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 feature records, got %d", len(out))
	}
	if model.EmbedCalls() != 1 {
		t.Fatalf("expected one embed call, got %d", model.EmbedCalls())
	}
	if out[1].NumNumericals != 2 {
		t.Fatalf("expected 2 numerals, got %d", out[1].NumNumericals)
	}
	for i, f := range out {
		if len(f.TitleVector) != len(out[0].TitleVector) {
			t.Fatalf("vector %d has %d dimensions, expected %d", i, len(f.TitleVector), len(out[0].TitleVector))
		}
	}
}

func TestExtractDropsDisallowedEntityTypes(t *testing.T) {
	t.Parallel()

	got, err := NewExtractor(kabulModel(), Options{}).Extract(context.Background(), Input{
		Title:    "t",
		Maintext: "Sunday in KABUL and KABUL again",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(got.NamedEntities, []string{"_GPE_KABUL"}) {
		t.Fatalf("unexpected entities: %v", got.NamedEntities)
	}
}

func TestExtractCountsMergedMoneyOnce(t *testing.T) {
	t.Parallel()

	got, err := NewExtractor(kabulModel(), Options{}).Extract(context.Background(), Input{
		Title:    "t",
		Maintext: "Investors raised $5 million",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.NumNumericals != 1 {
		t.Fatalf("expected merged amount counted once, got %d", got.NumNumericals)
	}
	if got.LemmatizedText != "investors raised" {
		t.Fatalf("unexpected lemmatized text: %q", got.LemmatizedText)
	}
}

func TestExtractModelFailureIsFatal(t *testing.T) {
	t.Parallel()

	model := kabulModel()
	model.Fail(nlp.ErrModelUnavailable)

	out, err := NewExtractor(model, Options{}).ExtractBatch(context.Background(), []Input{{Title: "t", Maintext: kabulText}})
	if !errors.Is(err, nlp.ErrModelUnavailable) {
		t.Fatalf("expected model unavailable, got %v", err)
	}
	if out != nil {
		t.Fatalf("expected no partial output, got %+v", out)
	}
}

type fixedEmbedder struct {
	*nlptest.Model
	vectors [][]float32
}

func (f fixedEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return f.vectors, nil
}

func TestExtractRejectsInvalidEmbeddings(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		dims    int
		vectors [][]float32
	}{
		"wrong width":  {dims: 3, vectors: [][]float32{{1, 0}}},
		"non-finite":   {vectors: [][]float32{{1, float32(math.NaN())}}},
		"ragged batch": {vectors: [][]float32{{1, 0}, {1}}},
		"empty vector": {vectors: [][]float32{{}}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			model := fixedEmbedder{Model: kabulModel(), vectors: tc.vectors}
			inputs := make([]Input, len(tc.vectors))
			for i := range inputs {
				inputs[i] = Input{Title: "t"}
			}
			_, err := NewExtractor(model, Options{Dimensions: tc.dims}).ExtractBatch(context.Background(), inputs)
			if !errors.Is(err, ErrInvalidEmbedding) {
				t.Fatalf("expected invalid embedding error, got %v", err)
			}
		})
	}
}

func TestExclusionsKeepHyphen(t *testing.T) {
	t.Parallel()

	ex := DefaultExclusions()
	if ex.Excludes(nlp.Token{Text: "-", Lemma: "-", IsPunct: true}) {
		t.Fatalf("expected hyphen to survive")
	}
	if ex.Excludes(nlp.Token{Text: "well-known", Lemma: "well-known"}) {
		t.Fatalf("expected hyphenated compound to survive")
	}
	if !ex.Excludes(nlp.Token{Text: "—", Lemma: "—", IsPunct: true}) {
		t.Fatalf("expected model punctuation to be excluded")
	}
	if !ex.Excludes(nlp.Token{Text: "...", Lemma: "..."}) {
		t.Fatalf("expected ascii punctuation run to be excluded")
	}
	if !ex.Excludes(nlp.Token{Text: " ", Lemma: " ", IsSpace: true}) {
		t.Fatalf("expected space token to be excluded")
	}
}
