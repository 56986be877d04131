package service

import (
	"strings"
	"unicode"
)

// ChunkConfig controls how extracted text is split for embedding.
type ChunkConfig struct {
	MaxChars     int
	MinChars     int
	Overlap      int
	MaxChunks    int
	CharsPerPage int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars:     1200,
		MinChars:     400,
		Overlap:      200,
		MaxChunks:    400,
		CharsPerPage: 3000,
	}
}

// TextChunk is one retrieval-sized slice of a document, with the page it
// approximately came from.
type TextChunk struct {
	Index      int
	Content    string
	ApproxPage int
}

// chunkDocument splits extracted text into overlapping windows, cutting at
// whitespace where possible. Pages are tracked from form feeds when the
// extractor emits them, otherwise estimated from character offset.
func chunkDocument(text string, cfg ChunkConfig) []TextChunk {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	if cfg.MaxChars <= 0 {
		cfg = DefaultChunkConfig()
	}

	runes := []rune(clean)
	if len(runes) <= cfg.MaxChars {
		return []TextChunk{{Index: 0, Content: clean, ApproxPage: 1}}
	}

	chunks := make([]TextChunk, 0, 8)
	start := 0
	for start < len(runes) {
		if cfg.MaxChunks > 0 && len(chunks) >= cfg.MaxChunks {
			break
		}

		end := start + cfg.MaxChars
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) {
			cut := end
			minCut := start + cfg.MinChars
			if minCut > end {
				minCut = start
			}
			for i := end; i > minCut; i-- {
				if unicode.IsSpace(runes[i-1]) {
					cut = i
					break
				}
			}
			end = cut
		}

		if end <= start {
			break
		}

		content := strings.TrimSpace(string(runes[start:end]))
		if content != "" {
			chunks = append(chunks, TextChunk{
				Index:      len(chunks),
				Content:    content,
				ApproxPage: approxPage(runes, start, cfg.CharsPerPage),
			})
		}

		if end >= len(runes) {
			break
		}

		nextStart := end
		if cfg.Overlap > 0 && end-start > cfg.Overlap {
			nextStart = end - cfg.Overlap
		}
		if nextStart <= start {
			nextStart = end
		}
		start = nextStart
	}

	return chunks
}

func approxPage(runes []rune, offset, charsPerPage int) int {
	feeds := 0
	for i := 0; i < offset && i < len(runes); i++ {
		if runes[i] == '\f' {
			feeds++
		}
	}
	if feeds > 0 {
		return feeds + 1
	}
	if charsPerPage <= 0 {
		charsPerPage = 3000
	}
	return offset/charsPerPage + 1
}
