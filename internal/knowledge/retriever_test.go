package knowledge

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/strategos/advisor/internal/log"
)

func testIndex(t *testing.T, docs map[string]string) *Index {
	t.Helper()
	dir := t.TempDir()
	for name, content := range docs {
		writeCorpusFile(t, dir, name, content)
	}
	return NewIndex([]string{dir}, log.NewNop())
}

func pad(s string) string {
	return s + " " + strings.Repeat("filler text to clear the minimum. ", 3)
}

func TestRetrieveOrdering(t *testing.T) {
	t.Parallel()

	ix := testIndex(t, map[string]string{
		"a.md": "# Weak\n" + pad("Some general notes about the weather."),
		"b.md": "# Strong\n" + pad("Churn and revenue and retention dominate this quarter."),
		"c.md": "# Medium\n" + pad("Revenue went up modestly."),
	})
	r := NewRetriever(ix)

	got := r.Retrieve("How do churn and revenue affect retention?", 10)
	if len(got) != 2 {
		t.Fatalf("Retrieve() returned %d chunks, want 2", len(got))
	}
	if got[0].SectionTitle != "Strong" {
		t.Errorf("first chunk = %q, want %q", got[0].SectionTitle, "Strong")
	}
	if got[1].SectionTitle != "Medium" {
		t.Errorf("second chunk = %q, want %q", got[1].SectionTitle, "Medium")
	}
}

func TestRetrieveRespectsTopK(t *testing.T) {
	t.Parallel()

	ix := testIndex(t, map[string]string{
		"a.md": "# One\n" + pad("Revenue summary for January."),
		"b.md": "# Two\n" + pad("Revenue summary for February."),
		"c.md": "# Three\n" + pad("Revenue summary for March."),
	})
	r := NewRetriever(ix)

	got := r.Retrieve("revenue", 2)
	if len(got) != 2 {
		t.Fatalf("Retrieve() returned %d chunks, want 2", len(got))
	}
}

func TestRetrieveExcludesZeroScores(t *testing.T) {
	t.Parallel()

	ix := testIndex(t, map[string]string{
		"a.md": "# Unrelated\n" + pad("Nothing in here matches anything asked."),
	})
	r := NewRetriever(ix)

	if got := r.Retrieve("quarterly subscription outlook", 5); len(got) != 0 {
		t.Errorf("Retrieve() returned %d chunks, want 0", len(got))
	}
}

func TestRetrieveStableTieBreak(t *testing.T) {
	t.Parallel()

	// Identical scoring content in two files; walk order is
	// lexicographic, so a.md's chunk must come first.
	ix := testIndex(t, map[string]string{
		"a.md": "# First\n" + pad("Subscription revenue held steady."),
		"b.md": "# Second\n" + pad("Subscription revenue held steady."),
	})
	r := NewRetriever(ix)

	got := r.Retrieve("subscription revenue", 5)
	if len(got) != 2 {
		t.Fatalf("Retrieve() returned %d chunks, want 2", len(got))
	}
	if got[0].SectionTitle != "First" || got[1].SectionTitle != "Second" {
		t.Errorf("tie-break order = [%q, %q], want [First, Second]",
			got[0].SectionTitle, got[1].SectionTitle)
	}
}

func TestScoreChunk(t *testing.T) {
	t.Parallel()

	chunk := Chunk{
		Content:  "Churn went down after the onboarding rework.",
		Keywords: map[string]struct{}{"churn": {}, "onboarding": {}},
	}

	query := "why did churn improve"
	score := scoreChunk(chunk,
		strings.ToLower(query),
		extractKeywords(query),
		longQueryWords(strings.ToLower(query)))

	// keyword overlap {churn} = 3.0, substring matches "churn" = 1.0,
	// boost term "churn" in both = 3.0.
	if score != 7.0 {
		t.Errorf("scoreChunk() = %v, want 7.0", score)
	}
}

func TestFormatChunks(t *testing.T) {
	t.Parallel()

	t.Run("empty list", func(t *testing.T) {
		t.Parallel()
		if got := FormatChunks(nil); got != "" {
			t.Errorf("FormatChunks(nil) = %q, want empty", got)
		}
	})

	t.Run("delimiter and truncation", func(t *testing.T) {
		t.Parallel()

		long := strings.Repeat("z", chunkRenderLimit+100)
		got := FormatChunks([]Chunk{
			{SourcePath: "docs/a.md", SectionTitle: "Pricing", Content: "short"},
			{SourcePath: "docs/b.md", SectionTitle: "Churn", Content: long},
		})

		if !strings.Contains(got, "--- docs/a.md / Pricing ---") {
			t.Error("missing delimiter for first chunk")
		}
		if !strings.Contains(got, "--- docs/b.md / Churn ---") {
			t.Error("missing delimiter for second chunk")
		}
		if !strings.Contains(got, strings.Repeat("z", chunkRenderLimit)+"...") {
			t.Error("long content not truncated with ellipsis")
		}
		if strings.Contains(got, strings.Repeat("z", chunkRenderLimit+1)) {
			t.Error("content exceeds render limit")
		}
	})

	t.Run("multi-byte content", func(t *testing.T) {
		t.Parallel()

		got := FormatChunks([]Chunk{{
			SourcePath:   "docs/intl.md",
			SectionTitle: "Markets",
			Content:      strings.Repeat("市場", chunkRenderLimit),
		}})

		if !utf8.ValidString(got) {
			t.Error("truncation split a multi-byte rune")
		}
		if !strings.HasSuffix(got, "...") {
			t.Error("long content not truncated with ellipsis")
		}
	})
}
