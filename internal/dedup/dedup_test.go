package dedup

import (
	"testing"

	"horse.fit/newsdigest/internal/source"
)

func candidate(topic, title string) source.Candidate {
	return source.Candidate{Topic: topic, Article: source.Article{Title: title, URL: "https://example.com/" + topic}}
}

func TestDedupSameTitleSameTopic(t *testing.T) {
	t.Parallel()

	unique, accepted := Dedup([]source.Candidate{
		candidate("bitcoin", "Pytest test is the best test among all tests!"),
		candidate("bitcoin", "Pytest test is the best test among all tests!"),
	}, nil)
	if len(unique) != 1 {
		t.Fatalf("expected 1 unique candidate, got %d", len(unique))
	}
	if len(accepted) != 1 {
		t.Fatalf("expected 1 accepted title, got %d", len(accepted))
	}
}

func TestDedupSameTitleAcrossTopics(t *testing.T) {
	t.Parallel()

	unique, accepted := Dedup([]source.Candidate{
		candidate("bitcoin", "T1"),
		candidate("bitcoin", "T1"),
		candidate("crypto", "T1"),
	}, TitleSet{})
	if len(unique) != 1 {
		t.Fatalf("expected 1 unique candidate, got %d", len(unique))
	}
	if unique[0].Topic != "bitcoin" {
		t.Fatalf("expected first occurrence to win, got topic %q", unique[0].Topic)
	}
	if !accepted.Has("T1") {
		t.Fatalf("expected T1 in accepted titles")
	}
}

func TestDedupKnownTitleExcluded(t *testing.T) {
	t.Parallel()

	known := TitleSet{"T1": {}}
	unique, accepted := Dedup([]source.Candidate{candidate("reuters", "T1")}, known)
	if len(unique) != 0 {
		t.Fatalf("expected no unique candidates, got %d", len(unique))
	}
	if len(accepted) != 0 {
		t.Fatalf("expected no accepted titles, got %d", len(accepted))
	}
}

func TestDedupDoesNotMutateKnown(t *testing.T) {
	t.Parallel()

	known := TitleSet{"old": {}}
	_, accepted := Dedup([]source.Candidate{candidate("a", "new"), candidate("b", "old")}, known)
	if len(known) != 1 || !known.Has("old") {
		t.Fatalf("known titles were mutated: %v", known)
	}
	if len(accepted) != 1 || !accepted.Has("new") {
		t.Fatalf("unexpected accepted titles: %v", accepted)
	}
}

func TestDedupPreservesOrder(t *testing.T) {
	t.Parallel()

	unique, _ := Dedup([]source.Candidate{
		candidate("a", "x"),
		candidate("a", "y"),
		candidate("b", "x"),
		candidate("b", "z"),
		candidate("b", "Y"),
	}, nil)

	want := []string{"x", "y", "z", "Y"}
	if len(unique) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(unique))
	}
	for i, title := range want {
		if unique[i].Article.Title != title {
			t.Fatalf("position %d: expected %q, got %q", i, title, unique[i].Article.Title)
		}
	}
}

func TestDedupEmpty(t *testing.T) {
	t.Parallel()

	unique, accepted := Dedup(nil, TitleSet{"T1": {}})
	if len(unique) != 0 || len(accepted) != 0 {
		t.Fatalf("expected empty results, got %d candidates and %d titles", len(unique), len(accepted))
	}
	if unique == nil || accepted == nil {
		t.Fatalf("expected non-nil empty results")
	}
}
