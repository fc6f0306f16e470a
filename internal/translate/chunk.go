// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package translate

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize is the per-request character budget.
const DefaultChunkSize = 3000

var paragraphSep = regexp.MustCompile(`\n[ \t]*\n`)

// Chunk splits Markdown for translation. It cuts before every level 1-3
// heading and packs whole sections greedily up to limit characters. A
// section that alone exceeds limit is packed by paragraph instead; a
// single paragraph over limit becomes its own chunk. Chunks are trimmed,
// and joining them with blank lines reproduces the input's content.
func Chunk(md string, limit int) []string {
	if limit <= 0 {
		limit = DefaultChunkSize
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
		curLen = 0
	}

	for _, sec := range splitSections(md) {
		n := utf8.RuneCountInString(sec)
		if n > limit {
			flush()
			chunks = append(chunks, packParagraphs(sec, limit)...)
			continue
		}
		if curLen > 0 && curLen+n > limit {
			flush()
		}
		cur.WriteString(sec)
		curLen += n
	}
	flush()
	return chunks
}

// splitSections cuts md before each line starting with "# ", "## ", or "### ".
// Concatenating the sections gives back md.
func splitSections(md string) []string {
	var sections []string
	start := 0
	for i := 0; i < len(md); {
		end := strings.IndexByte(md[i:], '\n')
		var line string
		if end < 0 {
			line = md[i:]
		} else {
			line = md[i : i+end]
		}
		if i > start && isSectionHeading(line) {
			sections = append(sections, md[start:i])
			start = i
		}
		if end < 0 {
			break
		}
		i += end + 1
	}
	if start < len(md) {
		sections = append(sections, md[start:])
	}
	return sections
}

func isSectionHeading(line string) bool {
	return strings.HasPrefix(line, "# ") ||
		strings.HasPrefix(line, "## ") ||
		strings.HasPrefix(line, "### ")
}

// packParagraphs greedily joins the paragraphs of sec with blank lines,
// keeping each chunk within limit where possible.
func packParagraphs(sec string, limit int) []string {
	var (
		chunks []string
		cur    []string
		curLen int
	)
	for _, p := range paragraphSep.Split(sec, -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n := utf8.RuneCountInString(p)
		if len(cur) > 0 && curLen+2+n > limit {
			chunks = append(chunks, strings.Join(cur, "\n\n"))
			cur, curLen = nil, 0
		}
		if len(cur) > 0 {
			curLen += 2
		}
		cur = append(cur, p)
		curLen += n
	}
	if len(cur) > 0 {
		chunks = append(chunks, strings.Join(cur, "\n\n"))
	}
	return chunks
}
