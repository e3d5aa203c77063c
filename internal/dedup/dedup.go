package dedup

import "horse.fit/newsdigest/internal/source"

// TitleSet is a set of exact article titles.
type TitleSet map[string]struct{}

func (s TitleSet) Has(title string) bool {
	_, ok := s[title]
	return ok
}

func (s TitleSet) Add(title string) {
	s[title] = struct{}{}
}

// Dedup keeps the first candidate for every title that is not already in
// known, preserving input order. Titles are compared byte for byte. known is
// only read; a nil known set behaves as an empty corpus. The second return
// value holds exactly the titles accepted by this call.
func Dedup(candidates []source.Candidate, known TitleSet) ([]source.Candidate, TitleSet) {
	accepted := make(TitleSet, len(candidates))
	unique := make([]source.Candidate, 0, len(candidates))

	for _, candidate := range candidates {
		title := candidate.Article.Title
		if known.Has(title) || accepted.Has(title) {
			continue
		}
		accepted.Add(title)
		unique = append(unique, candidate)
	}
	return unique, accepted
}
