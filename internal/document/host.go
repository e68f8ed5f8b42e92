package document

import (
	"context"
	"errors"
)

// Edit kinds as reported by document hosts. Hosts may report further kinds
// (moves, table edits); the engine treats anything unknown as opaque.
const (
	EditInsertion  = "insertion"
	EditDeletion   = "deletion"
	EditFormatting = "formatting"
)

// ErrUnavailable reports that a host primitive is not supported or failed in
// a way the caller may recover from by falling through to another strategy.
var ErrUnavailable = errors.New("document host unavailable")

// TrackedEdit is one recorded change in a document, not yet accepted or
// rejected. Text may be empty for deletions depending on host fidelity.
// ContainingParagraph is the text of the paragraph that physically contains
// the edit, when the host can report it; empty otherwise.
type TrackedEdit struct {
	ID                  string `json:"id"`
	Kind                string `json:"kind"`
	Author              string `json:"author"`
	Date                string `json:"date"`
	Text                string `json:"text"`
	ContainingParagraph string `json:"-"`
}

// Range is a half-open character span into the document body text.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// SearchOptions control how Search matches a needle against body text.
type SearchOptions struct {
	MatchCase      bool
	MatchWholeWord bool
}

// Annotation is a comment attached to a span of document text. The engine
// only ever inserts annotations; it never mutates tracked edits.
type Annotation struct {
	Range Range  `json:"range"`
	Text  string `json:"text"`
}

// Host is the document-editing host boundary. Every method is fallible:
// callers with a fallback treat any error as "primitive unavailable" and move
// on; callers without one propagate it.
type Host interface {
	// Paragraphs returns the document's paragraph texts in document order.
	Paragraphs(ctx context.Context) ([]string, error)
	// TrackedEdits returns all tracked edits in the document.
	TrackedEdits(ctx context.Context) ([]TrackedEdit, error)
	// BodyText returns the full body text of the document.
	BodyText(ctx context.Context) (string, error)
	// Search returns every match of needle in the body text, in order.
	Search(ctx context.Context, needle string, opts SearchOptions) ([]Range, error)
	// InsertAnnotation attaches a comment to the given span.
	InsertAnnotation(ctx context.Context, r Range, text string) error
}
