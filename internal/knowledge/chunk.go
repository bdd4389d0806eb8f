// Package knowledge indexes a directory of markdown documents into
// titled, keyword-tagged chunks and retrieves the most relevant ones
// for a free-text query using exact lexical scoring.
package knowledge

import "strings"

// Chunk is the unit of retrieval: a titled slice of a source document
// with the domain keywords found in it. Chunks are immutable once the
// index is built.
type Chunk struct {
	ID           string
	SourcePath   string
	SectionTitle string
	Content      string
	Keywords     map[string]struct{}
}

// domainVocabulary is the fixed set of product and business terms used
// for keyword tagging. Extraction intersects document tokens with this
// set; everything else is ignored.
var domainVocabulary = map[string]struct{}{
	"acquisition":  {},
	"alert":        {},
	"alerts":       {},
	"arpu":         {},
	"billing":      {},
	"bot":          {},
	"bots":         {},
	"campaign":     {},
	"churn":        {},
	"cohort":       {},
	"competitor":   {},
	"content":      {},
	"conversion":   {},
	"discount":     {},
	"engagement":   {},
	"funnel":       {},
	"growth":       {},
	"index":        {},
	"launch":       {},
	"ltv":          {},
	"market":       {},
	"marketing":    {},
	"metric":       {},
	"metrics":      {},
	"mrr":          {},
	"onboarding":   {},
	"payment":      {},
	"payments":     {},
	"plan":         {},
	"plans":        {},
	"pricing":      {},
	"product":      {},
	"retention":    {},
	"revenue":      {},
	"roadmap":      {},
	"segment":      {},
	"seo":          {},
	"strategy":     {},
	"subscriber":   {},
	"subscribers":  {},
	"subscription": {},
	"trial":        {},
	"upgrade":      {},
	"usage":        {},
	"user":         {},
	"users":        {},
}

// boostTerms are high-signal domain words. A boost term appearing in
// both the query and a chunk's content raises that chunk's score beyond
// plain keyword overlap.
var boostTerms = []string{
	"churn",
	"revenue",
	"retention",
	"growth",
	"conversion",
	"pricing",
	"campaign",
	"seo",
	"subscription",
	"onboarding",
}

// markdownStripper removes markup characters before tokenization so
// that "**churn**" and "churn" tag identically.
var markdownStripper = strings.NewReplacer(
	"#", " ",
	"*", " ",
	"`", " ",
	"_", " ",
	">", " ",
	"[", " ",
	"]", " ",
	"(", " ",
	")", " ",
	"|", " ",
	"-", " ",
	":", " ",
	",", " ",
	".", " ",
	"!", " ",
	"?", " ",
)

// extractKeywords lower-cases text, strips markdown markup, tokenizes
// on whitespace, and keeps only tokens present in the domain
// vocabulary.
func extractKeywords(text string) map[string]struct{} {
	keywords := make(map[string]struct{})
	cleaned := markdownStripper.Replace(strings.ToLower(text))
	for _, token := range strings.Fields(cleaned) {
		if _, ok := domainVocabulary[token]; ok {
			keywords[token] = struct{}{}
		}
	}
	return keywords
}
