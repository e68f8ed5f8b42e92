package redline

import (
	"context"

	"lexreview/engine/internal/document"
)

// RedlinedSection groups every tracked edit reconciled to one section, in
// document order of discovery. Only sections with at least one edit are
// ever produced.
type RedlinedSection struct {
	SectionNumber  string         `json:"sectionNumber"`
	SectionTitle   string         `json:"sectionTitle"`
	SectionContext string         `json:"sectionContext"`
	Changes        []ResolvedEdit `json:"changes"`
}

// Reconcile takes one snapshot of the document (paragraphs and tracked
// edits), segments it, and resolves every edit to a placement. Resolution
// never fails per edit; only host reads can error.
func Reconcile(ctx context.Context, host document.Host, seg *Segmenter) ([]ResolvedEdit, error) {
	paragraphs, err := host.Paragraphs(ctx)
	if err != nil {
		return nil, err
	}
	edits, err := host.TrackedEdits(ctx)
	if err != nil {
		return nil, err
	}
	locator := NewLocator(paragraphs, seg.Segment(paragraphs))
	resolved := make([]ResolvedEdit, 0, len(edits))
	for _, edit := range edits {
		resolved = append(resolved, locator.Resolve(edit))
	}
	return resolved, nil
}

// Group folds resolved edits into per-section collections keyed by section
// number (the preamble keys as "PREAMBLE"), preserving first-seen order.
func Group(edits []ResolvedEdit) []RedlinedSection {
	byKey := make(map[string]int)
	var sections []RedlinedSection
	for _, edit := range edits {
		key := edit.SectionNumber
		if key == "" {
			key = PreambleTitle
		}
		idx, ok := byKey[key]
		if !ok {
			idx = len(sections)
			byKey[key] = idx
			sections = append(sections, RedlinedSection{
				SectionNumber:  edit.SectionNumber,
				SectionTitle:   edit.SectionTitle,
				SectionContext: edit.ParagraphContext,
			})
		}
		sections[idx].Changes = append(sections[idx].Changes, edit)
	}
	return sections
}

// TotalChanges sums the edits across all grouped sections.
func TotalChanges(sections []RedlinedSection) int {
	total := 0
	for _, section := range sections {
		total += len(section.Changes)
	}
	return total
}
