// Package redline segments a contract's paragraph stream into numbered
// sections and reconciles every tracked edit to the section it belongs to.
// Deletions have no surviving text in the live body, so reconciliation is a
// cascade of strategies rather than a single lookup.
package redline

import (
	"regexp"
	"strings"
)

// PreambleTitle names the synthetic section covering everything before the
// first recognized heading.
const PreambleTitle = "PREAMBLE"

const maxTitleChars = 80

// defaultHeadingPattern matches headings like "1.0 CONTRACT", "7.1 INDEMNITY"
// and "ATTACHMENT A.1 SCOPE OF WORK".
var defaultHeadingPattern = regexp.MustCompile(`(?i)^(\d+\.\d+|ATTACHMENT\s+[A-Z]\.\d+)\s+(.+)`)

// SectionEntry is one contiguous run of paragraphs starting at a heading.
// The first entry of every segmentation is the preamble (Number == "").
type SectionEntry struct {
	Number         string   `json:"sectionNumber"`
	Title          string   `json:"sectionTitle"`
	ParagraphTexts []string `json:"paragraphTexts"`
}

// Segmenter splits paragraph streams by heading pattern. The zero value is
// not usable; construct with NewSegmenter.
type Segmenter struct {
	patterns []*regexp.Regexp
}

// NewSegmenter builds a segmenter matching the default contract heading
// pattern plus any extra patterns (from the review playbook). Each pattern's
// first capture group must be the section number.
func NewSegmenter(extra ...*regexp.Regexp) *Segmenter {
	patterns := append([]*regexp.Regexp{defaultHeadingPattern}, extra...)
	return &Segmenter{patterns: patterns}
}

// Segment scans paragraphs in order and groups them into sections. Every
// paragraph lands in exactly one entry; the preamble entry is always first,
// even when empty. A document with no headings yields a single preamble
// entry holding every paragraph.
func (s *Segmenter) Segment(paragraphs []string) []SectionEntry {
	var sections []SectionEntry
	current := SectionEntry{Number: "", Title: PreambleTitle}

	for _, text := range paragraphs {
		trimmed := strings.TrimSpace(text)
		if number, ok := s.matchHeading(trimmed); ok {
			sections = append(sections, current)
			current = SectionEntry{
				Number:         number,
				Title:          truncate(trimmed, maxTitleChars),
				ParagraphTexts: []string{trimmed},
			}
			continue
		}
		current.ParagraphTexts = append(current.ParagraphTexts, trimmed)
	}
	return append(sections, current)
}

func (s *Segmenter) matchHeading(trimmed string) (string, bool) {
	for _, pattern := range s.patterns {
		if m := pattern.FindStringSubmatch(trimmed); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// ParagraphIndex returns, for each input paragraph position, the index of
// the section that owns it. Sections partition the paragraph stream in
// order, so the mapping follows from each entry's paragraph count (the
// preamble's count excludes nothing; headings count toward their own entry).
func ParagraphIndex(sections []SectionEntry) []int {
	var index []int
	for si, section := range sections {
		count := len(section.ParagraphTexts)
		for i := 0; i < count; i++ {
			index = append(index, si)
		}
	}
	return index
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
