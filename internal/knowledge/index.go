package knowledge

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/strategos/advisor/internal/log"
)

const (
	// chunkSizeThreshold is the content length at which a section is
	// split into multiple parts.
	chunkSizeThreshold = 1500

	// chunkOverlap is how many characters consecutive parts share so
	// a retrieved part keeps context from its boundary.
	chunkOverlap = 200

	// minChunkLength discards near-empty sections after trimming.
	minChunkLength = 50
)

// indexedExtensions lists the corpus file types the indexer reads.
var indexedExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
}

// Index is the process-wide chunk cache. The corpus is scanned once
// on the first Load call; later calls return the cached chunks without
// touching disk.
//
// Thread-safe: safe for concurrent use (protected by mu).
type Index struct {
	dirs   []string
	logger log.Logger

	mu     sync.Mutex
	chunks []Chunk
}

// NewIndex creates an index over the given corpus root directories.
// Nothing is read until the first Load call.
func NewIndex(dirs []string, logger log.Logger) *Index {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Index{dirs: dirs, logger: logger}
}

// Load returns the chunk set, scanning the corpus on the first call.
// Unreadable directories and files are logged and skipped; Load never
// fails as a whole. Concurrent first callers are serialized so the
// corpus is scanned at most once.
func (ix *Index) Load() []Chunk {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if len(ix.chunks) > 0 {
		return ix.chunks
	}

	var chunks []Chunk
	for _, dir := range ix.dirs {
		entries, err := collectFiles(dir)
		if err != nil {
			ix.logger.Warn("skipping corpus directory", "dir", dir, "error", err)
			continue
		}
		for _, path := range entries {
			data, err := os.ReadFile(path)
			if err != nil {
				ix.logger.Warn("skipping corpus file", "path", path, "error", err)
				continue
			}
			chunks = append(chunks, chunkDocument(path, string(data))...)
		}
	}

	ix.logger.Info("knowledge index built", "dirs", len(ix.dirs), "chunks", len(chunks))
	ix.chunks = chunks
	return ix.chunks
}

// collectFiles walks a corpus root and returns the indexable file
// paths in walk order.
func collectFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if indexedExtensions[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// chunkDocument splits one document at top-level and second-level
// heading boundaries, then splits oversized sections by length.
func chunkDocument(path, content string) []Chunk {
	defaultTitle := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var chunks []Chunk
	title := defaultTitle
	var body strings.Builder

	flush := func() {
		chunks = append(chunks, buildSectionChunks(path, title, body.String())...)
		body.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		if heading, ok := headingText(line); ok {
			flush()
			title = heading
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()

	return chunks
}

// headingText reports whether a line is a top-level or second-level
// markdown heading and returns its text.
func headingText(line string) (string, bool) {
	switch {
	case strings.HasPrefix(line, "## "):
		return strings.TrimSpace(line[3:]), true
	case strings.HasPrefix(line, "# "):
		return strings.TrimSpace(line[2:]), true
	default:
		return "", false
	}
}

// buildSectionChunks turns one section's body into one or more chunks.
// Sections longer than chunkSizeThreshold are cut at the nearest
// newline before the threshold, falling back to a hard cut when no
// newline is found in the second half, with chunkOverlap characters
// carried into the next part. Parts shorter than minChunkLength after
// trimming are discarded.
func buildSectionChunks(path, title, body string) []Chunk {
	text := strings.TrimSpace(body)
	if len(text) < minChunkLength {
		return nil
	}

	if len(text) <= chunkSizeThreshold {
		return []Chunk{newChunk(path, title, text)}
	}

	var chunks []Chunk
	part := 1
	remaining := text
	for len(remaining) > chunkSizeThreshold {
		cut := strings.LastIndexByte(remaining[:chunkSizeThreshold], '\n')
		if cut < chunkSizeThreshold/2 {
			// Hard cut, backed up to a rune boundary.
			cut = chunkSizeThreshold
			for cut > 0 && !utf8.RuneStart(remaining[cut]) {
				cut--
			}
		}
		partTitle := fmt.Sprintf("%s (part %d)", title, part)
		piece := strings.TrimSpace(remaining[:cut])
		if len(piece) >= minChunkLength {
			chunks = append(chunks, newChunk(path, partTitle, piece))
			part++
		}
		next := cut - chunkOverlap
		for next < len(remaining) && !utf8.RuneStart(remaining[next]) {
			next++
		}
		remaining = remaining[next:]
	}

	tail := strings.TrimSpace(remaining)
	if len(tail) >= minChunkLength {
		partTitle := fmt.Sprintf("%s (part %d)", title, part)
		chunks = append(chunks, newChunk(path, partTitle, tail))
	}

	return chunks
}

func newChunk(path, title, content string) Chunk {
	return Chunk{
		ID:           path + "#" + title,
		SourcePath:   path,
		SectionTitle: title,
		Content:      content,
		Keywords:     extractKeywords(title + "\n" + content),
	}
}
