package knowledge

import (
	"fmt"
	"sort"
	"strings"
)

// chunkRenderLimit caps an individual chunk's content when rendering
// excerpts for the prompt.
const chunkRenderLimit = 800

// Retriever scores indexed chunks against a query and returns the
// best matches. Retrieval is a pure lexical heuristic: keyword set
// overlap plus substring matches, no embeddings involved.
type Retriever struct {
	index *Index
}

// NewRetriever creates a retriever over the given index.
func NewRetriever(index *Index) *Retriever {
	return &Retriever{index: index}
}

// Retrieve returns up to topK chunks ordered by descending score.
// Chunks scoring zero are excluded; ties keep the index insertion
// order. Triggers the index load if the cache is empty.
func (r *Retriever) Retrieve(query string, topK int) []Chunk {
	chunks := r.index.Load()

	queryLower := strings.ToLower(query)
	queryKeywords := extractKeywords(query)
	queryWords := longQueryWords(queryLower)

	type scored struct {
		chunk Chunk
		score float64
	}

	var matches []scored
	for _, chunk := range chunks {
		score := scoreChunk(chunk, queryLower, queryKeywords, queryWords)
		if score == 0 {
			continue
		}
		matches = append(matches, scored{chunk: chunk, score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}

	result := make([]Chunk, len(matches))
	for i, m := range matches {
		result[i] = m.chunk
	}
	return result
}

// scoreChunk computes the lexical relevance of one chunk. Keyword set
// overlap weighs 3.0, a long query word found as a substring of the
// content weighs 1.0, and a boost term present in both query and
// content weighs 3.0.
func scoreChunk(chunk Chunk, queryLower string, queryKeywords map[string]struct{}, queryWords []string) float64 {
	var score float64

	for kw := range queryKeywords {
		if _, ok := chunk.Keywords[kw]; ok {
			score += 3.0
		}
	}

	contentLower := strings.ToLower(chunk.Content)
	for _, word := range queryWords {
		if strings.Contains(contentLower, word) {
			score += 1.0
		}
	}

	for _, term := range boostTerms {
		if strings.Contains(queryLower, term) && strings.Contains(contentLower, term) {
			score += 3.0
		}
	}

	return score
}

// longQueryWords returns the query's words longer than three
// characters, lower-cased, for substring matching.
func longQueryWords(queryLower string) []string {
	var words []string
	for _, w := range strings.Fields(queryLower) {
		if len(w) > 3 {
			words = append(words, w)
		}
	}
	return words
}

// FormatChunks renders retrieved chunks as one text block, a delimiter
// line with source and section per chunk, each chunk's content capped
// at chunkRenderLimit characters. Returns the empty string for an
// empty list so the caller can omit the section entirely.
func FormatChunks(chunks []Chunk) string {
	if len(chunks) == 0 {
		return ""
	}

	var b strings.Builder
	for i, chunk := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- %s / %s ---\n", chunk.SourcePath, chunk.SectionTitle)
		content := chunk.Content
		if runes := []rune(content); len(runes) > chunkRenderLimit {
			content = string(runes[:chunkRenderLimit]) + "..."
		}
		b.WriteString(content)
	}
	return b.String()
}
