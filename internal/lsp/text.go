package lsp

import (
	"strings"
	"unicode/utf8"

	"github.com/timvw/shotlens/internal/model"
)

// lineAt returns line n of text without its terminator, or "" when out of
// range.
func lineAt(text string, n int) string {
	for i := 0; i < n; i++ {
		idx := strings.IndexByte(text, '\n')
		if idx < 0 {
			return ""
		}
		text = text[idx+1:]
	}
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSuffix(text, "\r")
}

// utf16Column converts a byte offset within line to UTF-16 code units, the
// unit LSP positions are expressed in.
func utf16Column(line string, byteCol int) int {
	if byteCol > len(line) {
		byteCol = len(line)
	}
	units := 0
	for i := 0; i < byteCol; {
		r, size := utf8.DecodeRuneInString(line[i:])
		if r > 0xFFFF {
			units += 2
		} else {
			units++
		}
		i += size
	}
	return units
}

// toLSPRange converts a byte-column range to LSP positions using text.
func toLSPRange(text string, r model.Range) lspRange {
	startLine := lineAt(text, r.Start.Line)
	endLine := startLine
	if r.End.Line != r.Start.Line {
		endLine = lineAt(text, r.End.Line)
	}
	return lspRange{
		Start: position{Line: r.Start.Line, Character: utf16Column(startLine, r.Start.Column)},
		End:   position{Line: r.End.Line, Character: utf16Column(endLine, r.End.Column)},
	}
}

func patternRange(text string, p model.Pattern) lspRange {
	return toLSPRange(text, model.Range{
		Start: model.Position{Line: p.Line, Column: p.Column},
		End:   p.End(),
	})
}
