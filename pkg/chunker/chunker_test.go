package chunker_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engram-ai/engram-go/pkg/chunker"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, chunker.EstimateTokens(""))
	assert.Equal(t, 1, chunker.EstimateTokens("ab"))
	assert.Equal(t, 1, chunker.EstimateTokens("abcd"))
	assert.Equal(t, 2, chunker.EstimateTokens("abcde"))

	// Runes, not bytes: four Chinese characters are one token.
	assert.Equal(t, 1, chunker.EstimateTokens("数据库迁移"[:12]))
}

func TestChunkShortContentStaysAtomic(t *testing.T) {
	cfg := chunker.DefaultConfig()

	pieces := chunker.Chunk("a short note about the deploy process", chunker.KindProse, "discussion", cfg)

	require.Len(t, pieces, 1)
	assert.Equal(t, 0, pieces[0].Index)
	assert.Equal(t, 1, pieces[0].Total)
	assert.Equal(t, "a short note about the deploy process", pieces[0].Content)
}

func TestChunkAlwaysSplitForcesGuidelineSplit(t *testing.T) {
	cfg := chunker.DefaultConfig()

	// Above the convention target (400 tokens) but below what the default
	// atomic grace zone would forgive.
	text := strings.Repeat("never commit generated files to the main branch ", 45)
	require.Greater(t, chunker.EstimateTokens(text), 400)

	pieces := chunker.Chunk(text, chunker.KindProse, "convention", cfg)

	assert.Greater(t, len(pieces), 1)
}

func TestChunkProseOverlapAndReconstruction(t *testing.T) {
	cfg := chunker.DefaultConfig()

	var b strings.Builder
	for i := 0; i < 2000; i++ {
		fmt.Fprintf(&b, "word%d and some filler text ", i)
	}
	original := b.String()
	require.Greater(t, chunker.EstimateTokens(original), 4000)

	pieces := chunker.Chunk(original, chunker.KindProse, "discussion", cfg)
	require.Greater(t, len(pieces), 1)

	for i, p := range pieces {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, len(pieces), p.Total)
		assert.Equal(t, chunker.EstimateTokens(original), p.OriginalSizeTokens)
		if i > 0 {
			assert.Greater(t, p.OverlapRunes, 0, "non-first pieces carry overlap")
		}
	}

	// Adjacent pieces share the overlap region verbatim.
	second := []rune(pieces[1].Content)
	overlap := string(second[:pieces[1].OverlapRunes])
	assert.True(t, strings.HasSuffix(pieces[0].Content, overlap))

	assert.Equal(t, original, chunker.Reconstruct(pieces))
}

func TestChunkMultiByteReconstruction(t *testing.T) {
	cfg := chunker.DefaultConfig()

	var b strings.Builder
	for i := 0; i < 800; i++ {
		fmt.Fprintf(&b, "第%d条 数据库迁移必须在持续集成环境中先行执行 ", i)
	}
	original := b.String()

	pieces := chunker.Chunk(original, chunker.KindProse, "discussion", cfg)
	require.Greater(t, len(pieces), 1)

	assert.Equal(t, original, chunker.Reconstruct(pieces))
}

func TestChunkDeterministic(t *testing.T) {
	cfg := chunker.DefaultConfig()
	text := strings.Repeat("the same input must always produce the same pieces ", 60)

	first := chunker.Chunk(text, chunker.KindProse, "discussion", cfg)
	second := chunker.Chunk(text, chunker.KindProse, "discussion", cfg)

	assert.Equal(t, first, second)
}

func TestChunkGoSourceAtDeclarationBoundaries(t *testing.T) {
	cfg := chunker.DefaultConfig()

	var b strings.Builder
	b.WriteString("package payments\n\nimport \"fmt\"\n\n")
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, "// Handler%d processes batch %d.\nfunc Handler%d() string {\n\treturn fmt.Sprintf(\"batch %d processed with retries and backoff\")\n}\n\n", i, i, i, i)
	}
	original := b.String()
	require.Greater(t, chunker.EstimateTokens(original), 700)

	pieces := chunker.Chunk(original, chunker.KindCode, "code_blob", cfg)
	require.Greater(t, len(pieces), 1)

	for i, p := range pieces {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, len(pieces), p.Total)
		assert.Equal(t, 0, p.OverlapRunes, "structural code chunks carry no overlap")
	}

	// Code sections partition the source exactly.
	assert.Equal(t, original, chunker.Reconstruct(pieces))

	// Cuts land at declaration starts, so every piece after the first opens
	// with a doc comment or declaration keyword.
	for _, p := range pieces[1:] {
		trimmed := strings.TrimSpace(p.Content)
		ok := strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "func ")
		assert.True(t, ok, "piece starts mid-declaration: %q", trimmed[:40])
	}
}

func TestChunkUnparsableCodeFallsBackToProse(t *testing.T) {
	cfg := chunker.DefaultConfig()

	// Not valid Go, long enough to split.
	original := strings.Repeat("SELECT id, payload FROM events WHERE tenant = ? ORDER BY at; ", 120)

	pieces := chunker.Chunk(original, chunker.KindCode, "code_blob", cfg)
	require.Greater(t, len(pieces), 1)

	assert.Equal(t, original, chunker.Reconstruct(pieces))
}

func TestChunkEmptyInput(t *testing.T) {
	cfg := chunker.DefaultConfig()
	assert.Nil(t, chunker.Chunk("", chunker.KindProse, "discussion", cfg))
}
