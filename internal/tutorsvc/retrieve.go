package tutorsvc

import (
	"sort"
	"strings"
	"unicode"

	"github.com/pavelanni/aitutor/internal/store"
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true, "not": true,
	"you": true, "all": true, "can": true, "was": true, "one": true, "our": true,
	"has": true, "how": true, "its": true, "what": true, "why": true, "who": true,
	"with": true, "this": true, "that": true, "from": true, "they": true, "have": true,
	"does": true, "into": true, "about": true, "which": true, "when": true, "where": true,
	"there": true, "their": true, "will": true, "would": true, "could": true, "should": true,
}

func terms(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) < 3 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// retrieve ranks chunks by how many distinct query terms they contain and
// returns the best k. Ties keep ingestion order. When no chunk shares a term
// with the query, the first k chunks are returned.
func retrieve(chunks []store.Chunk, query string, k int) []store.Chunk {
	if k <= 0 || len(chunks) == 0 {
		return nil
	}
	want := map[string]bool{}
	for _, t := range terms(query) {
		want[t] = true
	}
	type scored struct {
		chunk store.Chunk
		score int
	}
	ranked := make([]scored, len(chunks))
	for i, c := range chunks {
		seen := map[string]bool{}
		for _, t := range terms(c.Content) {
			if want[t] {
				seen[t] = true
			}
		}
		ranked[i] = scored{chunk: c, score: len(seen)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]store.Chunk, k)
	for i := range out {
		out[i] = ranked[i].chunk
	}
	return out
}

func contents(chunks []store.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}
