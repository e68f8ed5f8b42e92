package document

import (
	"context"
	"strings"
	"sync"
)

// Fake is an in-memory Host for tests. Paragraphs and edits are fixed at
// construction; inserted annotations are recorded for assertions. Individual
// primitives can be made to fail to exercise fallback paths.
type Fake struct {
	mu          sync.Mutex
	paragraphs  []string
	edits       []TrackedEdit
	annotations []Annotation

	FailParagraphs bool
	FailEdits      bool
	FailSearch     bool
	FailInsert     bool
}

// NewFake builds a fake host over the given paragraphs and tracked edits.
func NewFake(paragraphs []string, edits []TrackedEdit) *Fake {
	return &Fake{paragraphs: paragraphs, edits: edits}
}

func (f *Fake) Paragraphs(ctx context.Context) ([]string, error) {
	if f.FailParagraphs {
		return nil, ErrUnavailable
	}
	out := make([]string, len(f.paragraphs))
	copy(out, f.paragraphs)
	return out, nil
}

func (f *Fake) TrackedEdits(ctx context.Context) ([]TrackedEdit, error) {
	if f.FailEdits {
		return nil, ErrUnavailable
	}
	out := make([]TrackedEdit, len(f.edits))
	copy(out, f.edits)
	return out, nil
}

func (f *Fake) BodyText(ctx context.Context) (string, error) {
	if f.FailParagraphs {
		return "", ErrUnavailable
	}
	return strings.Join(f.paragraphs, "\n"), nil
}

func (f *Fake) Search(ctx context.Context, needle string, opts SearchOptions) ([]Range, error) {
	if f.FailSearch {
		return nil, ErrUnavailable
	}
	body, err := f.BodyText(ctx)
	if err != nil {
		return nil, err
	}
	return SearchBody(body, needle, opts), nil
}

func (f *Fake) InsertAnnotation(ctx context.Context, r Range, text string) error {
	if f.FailInsert {
		return ErrUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.annotations = append(f.annotations, Annotation{Range: r, Text: text})
	return nil
}

// Annotations returns a copy of everything inserted so far.
func (f *Fake) Annotations() []Annotation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Annotation, len(f.annotations))
	copy(out, f.annotations)
	return out
}
