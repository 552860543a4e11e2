package chunker

import (
	"go/ast"
	"go/parser"
	"go/token"
	"unicode/utf8"
)

// chunkCode splits source code at syntax-tree boundaries.
//
// Go source is parsed with go/parser and split at top-level declarations
// (including each declaration's doc comment). Sections partition the file's
// bytes exactly, so concatenating the chunks reproduces the original with no
// overlap trimming. Sources that fail to parse report ok=false and the caller
// falls back to the prose strategy.
func chunkCode(src string, policy Policy, totalTokens int) ([]Piece, bool) {
	offsets, ok := goDeclOffsets(src)
	if !ok {
		return nil, false
	}

	sections := sliceSections(src, offsets)
	if len(sections) == 0 {
		return nil, false
	}

	target := policy.TargetTokens
	if target <= 0 {
		target = 400
	}

	// Greedily group declaration sections up to the target size. The file
	// preamble (package clause and imports) is the first section and rides
	// with the first declaration group.
	var groups []string
	var current string
	currentTokens := 0

	for _, section := range sections {
		sectionTokens := EstimateTokens(section)
		if current != "" && currentTokens+sectionTokens > target {
			groups = append(groups, current)
			current = ""
			currentTokens = 0
		}
		current += section
		currentTokens += sectionTokens
	}
	if current != "" {
		groups = append(groups, current)
	}

	pieces := make([]Piece, len(groups))
	for i, content := range groups {
		pieces[i] = Piece{
			Content:            content,
			Index:              i,
			Total:              len(groups),
			OriginalSizeTokens: totalTokens,
		}
	}
	return pieces, true
}

// goDeclOffsets parses src as a Go file and returns the byte offset of each
// top-level declaration, counting an attached doc comment as part of the
// declaration.
func goDeclOffsets(src string) ([]int, bool) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "src.go", src, parser.ParseComments)
	if err != nil {
		return nil, false
	}
	if len(file.Decls) == 0 {
		return nil, false
	}

	var offsets []int
	for _, decl := range file.Decls {
		pos := decl.Pos()
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Doc != nil {
				pos = d.Doc.Pos()
			}
		case *ast.GenDecl:
			if d.Doc != nil {
				pos = d.Doc.Pos()
			}
		}
		offsets = append(offsets, fset.Position(pos).Offset)
	}
	return offsets, true
}

// sliceSections cuts src at the given byte offsets.
//
// Parser positions are byte offsets while the prose splitter and overlap
// accounting work in runes, so every cut is first aligned back onto a rune
// boundary. For valid Go the offsets already fall on boundaries, but a
// misaligned cut would corrupt the start of the following chunk in
// multi-byte sources, so the alignment is enforced rather than assumed.
func sliceSections(src string, offsets []int) []string {
	cuts := make([]int, 0, len(offsets)+1)
	cuts = append(cuts, 0)
	for _, off := range offsets {
		off = alignToRune(src, off)
		if off > cuts[len(cuts)-1] && off < len(src) {
			cuts = append(cuts, off)
		}
	}

	var sections []string
	for i, start := range cuts {
		end := len(src)
		if i+1 < len(cuts) {
			end = cuts[i+1]
		}
		sections = append(sections, src[start:end])
	}
	return sections
}

// alignToRune moves a byte offset backwards until it lands on a rune start.
func alignToRune(src string, off int) int {
	if off < 0 {
		return 0
	}
	if off >= len(src) {
		return len(src)
	}
	for off > 0 && !utf8.RuneStart(src[off]) {
		off--
	}
	return off
}
