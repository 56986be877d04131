package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkDocument_ShortTextSingleChunk(t *testing.T) {
	chunks := chunkDocument("a short document", DefaultChunkConfig())

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "a short document", chunks[0].Content)
	assert.Equal(t, 1, chunks[0].ApproxPage)
}

func TestChunkDocument_EmptyText(t *testing.T) {
	assert.Nil(t, chunkDocument("", DefaultChunkConfig()))
	assert.Nil(t, chunkDocument("   \n\t  ", DefaultChunkConfig()))
}

func TestChunkDocument_SplitsLongText(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 200)
	cfg := DefaultChunkConfig()

	chunks := chunkDocument(text, cfg)

	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.LessOrEqual(t, len([]rune(c.Content)), cfg.MaxChars)
		assert.NotEmpty(t, c.Content)
	}
}

func TestChunkDocument_OverlappingWindows(t *testing.T) {
	text := strings.Repeat("overlap test words here ", 200)
	cfg := ChunkConfig{MaxChars: 500, MinChars: 200, Overlap: 100, MaxChunks: 100, CharsPerPage: 3000}

	chunks := chunkDocument(text, cfg)
	require.Greater(t, len(chunks), 1)

	// Consecutive chunks share trailing/leading text through the overlap
	first := chunks[0].Content
	second := chunks[1].Content
	tail := first[len(first)-40:]
	assert.True(t, strings.Contains(second, strings.TrimSpace(tail[:20])) || strings.HasPrefix(second, strings.TrimSpace(tail)),
		"expected overlap between consecutive chunks")
}

func TestChunkDocument_CutsAtWhitespace(t *testing.T) {
	text := strings.Repeat("word ", 1000)
	cfg := ChunkConfig{MaxChars: 300, MinChars: 100, Overlap: 0, MaxChunks: 100, CharsPerPage: 3000}

	chunks := chunkDocument(text, cfg)
	for _, c := range chunks[:len(chunks)-1] {
		assert.False(t, strings.HasSuffix(c.Content, "wor"), "chunk should not cut mid-word: %q", c.Content[len(c.Content)-10:])
	}
}

func TestChunkDocument_MaxChunksBound(t *testing.T) {
	text := strings.Repeat("bounded output please ", 2000)
	cfg := ChunkConfig{MaxChars: 100, MinChars: 40, Overlap: 0, MaxChunks: 5, CharsPerPage: 3000}

	chunks := chunkDocument(text, cfg)
	assert.Len(t, chunks, 5)
}

func TestChunkDocument_FormFeedPages(t *testing.T) {
	page := strings.Repeat("page content ", 100)
	text := page + "\f" + page + "\f" + page
	cfg := ChunkConfig{MaxChars: 600, MinChars: 200, Overlap: 0, MaxChunks: 100, CharsPerPage: 3000}

	chunks := chunkDocument(text, cfg)
	require.NotEmpty(t, chunks)

	assert.Equal(t, 1, chunks[0].ApproxPage)
	assert.Equal(t, 3, chunks[len(chunks)-1].ApproxPage)
}

func TestChunkDocument_OffsetPagesWithoutFormFeeds(t *testing.T) {
	text := strings.Repeat("x", 7000)
	cfg := ChunkConfig{MaxChars: 1000, MinChars: 400, Overlap: 0, MaxChunks: 100, CharsPerPage: 3000}

	chunks := chunkDocument(text, cfg)
	require.NotEmpty(t, chunks)
	assert.Equal(t, 1, chunks[0].ApproxPage)
	assert.Equal(t, 3, chunks[len(chunks)-1].ApproxPage)
}
