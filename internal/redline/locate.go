package redline

import (
	"strings"

	"lexreview/engine/internal/document"
)

const (
	maxContextChars   = 600
	editNeedleChars   = 60
	paraNeedleChars   = 80
	positionScanWords = 4
)

// Placement names the section an edit was reconciled to. Exact is true when
// the placement is backed by a text match and false when it is the
// last-non-preamble guess, so callers can tell evidence from heuristics.
type Placement struct {
	SectionNumber    string
	SectionTitle     string
	ParagraphContext string
	Exact            bool
}

// ResolvedEdit is a tracked edit enriched with its placement.
type ResolvedEdit struct {
	document.TrackedEdit
	SectionNumber    string `json:"sectionNumber"`
	SectionTitle     string `json:"sectionTitle"`
	ParagraphContext string `json:"paragraphContext"`
	Exact            bool   `json:"exact"`
}

// strategy attempts to place one edit. Strategies are pure over the
// locator's snapshot; the first to succeed wins.
type strategy func(edit document.TrackedEdit) (Placement, bool)

// Locator places tracked edits into sections using an ordered strategy
// cascade over an immutable snapshot of the paragraph stream:
//
//  1. the paragraph that physically contains the edit, when the host
//     reported one (exact when available, works for deletions);
//  2. a search for the edit's own text (reliable for insertions only);
//  3. a positional scan for the edit's leading words across the flat
//     paragraph list (heuristic);
//
// and finally the last non-preamble section as a guess, since an unmatched
// deletion was probably further into the document than the preamble.
// Resolve never fails: every edit gets a placement.
type Locator struct {
	paragraphs []string
	sections   []SectionEntry
	paraIndex  []int
	strategies []strategy
}

// NewLocator snapshots paragraphs and their segmentation for placement.
func NewLocator(paragraphs []string, sections []SectionEntry) *Locator {
	l := &Locator{
		paragraphs: paragraphs,
		sections:   sections,
		paraIndex:  ParagraphIndex(sections),
	}
	l.strategies = []strategy{
		l.byContainingParagraph,
		l.byEditText,
		l.byPosition,
	}
	return l
}

// Resolve places one tracked edit.
func (l *Locator) Resolve(edit document.TrackedEdit) ResolvedEdit {
	placement, ok := l.tryStrategies(edit)
	if !ok || (placement.SectionNumber == "" && l.realSectionCount() >= 2) {
		placement = l.fallback(edit)
	}
	return ResolvedEdit{
		TrackedEdit:      edit,
		SectionNumber:    placement.SectionNumber,
		SectionTitle:     placement.SectionTitle,
		ParagraphContext: placement.ParagraphContext,
		Exact:            placement.Exact,
	}
}

func (l *Locator) tryStrategies(edit document.TrackedEdit) (Placement, bool) {
	for _, try := range l.strategies {
		if placement, ok := try(edit); ok {
			return placement, true
		}
	}
	return Placement{}, false
}

// byContainingParagraph uses the paragraph text the host reported as
// physically containing the edit.
func (l *Locator) byContainingParagraph(edit document.TrackedEdit) (Placement, bool) {
	needle := strings.TrimSpace(edit.ContainingParagraph)
	if needle == "" {
		return Placement{}, false
	}
	return l.findInSections(truncate(needle, paraNeedleChars))
}

// byEditText searches section paragraphs for the edit's own text. Deletions
// usually carry no surviving text, so this mostly places insertions.
func (l *Locator) byEditText(edit document.TrackedEdit) (Placement, bool) {
	needle := strings.TrimSpace(edit.Text)
	if needle == "" {
		return Placement{}, false
	}
	return l.findInSections(truncate(needle, editNeedleChars))
}

// byPosition scans the flat paragraph list for the edit's leading words and
// maps the hit back through the paragraph index.
func (l *Locator) byPosition(edit document.TrackedEdit) (Placement, bool) {
	words := strings.Fields(strings.TrimSpace(edit.Text))
	if len(words) > positionScanWords {
		words = words[:positionScanWords]
	}
	needle := strings.ToLower(strings.Join(words, " "))
	if len(needle) < 4 {
		return Placement{}, false
	}
	for i, para := range l.paragraphs {
		if !strings.Contains(strings.ToLower(para), needle) {
			continue
		}
		if i >= len(l.paraIndex) {
			break
		}
		section := l.sections[l.paraIndex[i]]
		if section.Number == "" {
			continue
		}
		return Placement{
			SectionNumber:    section.Number,
			SectionTitle:     section.Title,
			ParagraphContext: truncate(para, maxContextChars),
			Exact:            true,
		}, true
	}
	return Placement{}, false
}

func (l *Locator) findInSections(needle string) (Placement, bool) {
	lowered := strings.ToLower(needle)
	if lowered == "" {
		return Placement{}, false
	}
	for _, section := range l.sections {
		for _, para := range section.ParagraphTexts {
			if strings.Contains(strings.ToLower(para), lowered) {
				return Placement{
					SectionNumber:    section.Number,
					SectionTitle:     section.Title,
					ParagraphContext: truncate(para, maxContextChars),
					Exact:            true,
				}, true
			}
		}
	}
	return Placement{}, false
}

// fallback guesses the last non-preamble section; Exact is false so callers
// know the placement carries no text evidence. With no sections at all the
// edit is placed under an explicit unknown marker.
func (l *Locator) fallback(edit document.TrackedEdit) Placement {
	context := truncate(strings.TrimSpace(edit.Text), maxContextChars)
	for i := len(l.sections) - 1; i >= 0; i-- {
		if l.sections[i].Number != "" {
			return Placement{
				SectionNumber:    l.sections[i].Number,
				SectionTitle:     l.sections[i].Title,
				ParagraphContext: context,
			}
		}
	}
	if len(l.sections) > 0 {
		last := l.sections[len(l.sections)-1]
		return Placement{SectionNumber: last.Number, SectionTitle: last.Title, ParagraphContext: context}
	}
	return Placement{SectionTitle: "Unknown Section", ParagraphContext: context}
}

func (l *Locator) realSectionCount() int {
	count := 0
	for _, section := range l.sections {
		if section.Number != "" {
			count++
		}
	}
	return count
}
