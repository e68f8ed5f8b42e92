package document

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"
)

// FileHost serves a plain-text document from disk: one paragraph per
// non-empty line, tracked edits from a JSON sidecar, annotations appended to
// a JSON file next to the document. It exists for offline runs and for the
// scan subcommand; a real deployment fronts a live editing host instead.
type FileHost struct {
	docPath         string
	editsPath       string
	annotationsPath string
}

// NewFileHost builds a host over the document at docPath. Tracked edits are
// read from editsPath when non-empty; annotations are written to
// docPath+".annotations.json".
func NewFileHost(docPath, editsPath string) *FileHost {
	return &FileHost{
		docPath:         docPath,
		editsPath:       editsPath,
		annotationsPath: docPath + ".annotations.json",
	}
}

func (h *FileHost) Paragraphs(ctx context.Context) ([]string, error) {
	text, err := h.BodyText(ctx)
	if err != nil {
		return nil, err
	}
	var paragraphs []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		paragraphs = append(paragraphs, line)
	}
	return paragraphs, nil
}

func (h *FileHost) TrackedEdits(ctx context.Context) ([]TrackedEdit, error) {
	if h.editsPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(h.editsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tracked edits: %w", err)
	}
	var edits []TrackedEdit
	if err := json.Unmarshal(data, &edits); err != nil {
		return nil, fmt.Errorf("parse tracked edits: %w", err)
	}
	return edits, nil
}

func (h *FileHost) BodyText(ctx context.Context) (string, error) {
	data, err := os.ReadFile(h.docPath)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return string(data), nil
}

func (h *FileHost) Search(ctx context.Context, needle string, opts SearchOptions) ([]Range, error) {
	body, err := h.BodyText(ctx)
	if err != nil {
		return nil, err
	}
	return SearchBody(body, needle, opts), nil
}

func (h *FileHost) InsertAnnotation(ctx context.Context, r Range, text string) error {
	var existing []Annotation
	if data, err := os.ReadFile(h.annotationsPath); err == nil {
		_ = json.Unmarshal(data, &existing)
	}
	existing = append(existing, Annotation{Range: r, Text: text})
	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(h.annotationsPath, data, 0o600); err != nil {
		return fmt.Errorf("write annotations: %w", err)
	}
	return nil
}

// SearchBody returns every match of needle in body, in order. Shared by
// FileHost and the test fake so both match the way a live host searches.
// Ranges are byte offsets into body itself; the case-insensitive scan folds
// rune by rune so offsets never drift on runes whose lowered form has a
// different byte length.
func SearchBody(body, needle string, opts SearchOptions) []Range {
	if needle == "" {
		return nil
	}
	var matches []Range
	for start := range body {
		var end int
		if opts.MatchCase {
			if !strings.HasPrefix(body[start:], needle) {
				continue
			}
			end = start + len(needle)
		} else {
			n, ok := foldPrefixLen(body[start:], needle)
			if !ok {
				continue
			}
			end = start + n
		}
		if !opts.MatchWholeWord || isWholeWord(body, start, end) {
			matches = append(matches, Range{Start: start, End: end})
		}
	}
	return matches
}

// foldPrefixLen reports whether s begins with needle under simple case
// folding, and the byte length of the matched prefix of s.
func foldPrefixLen(s, needle string) (int, bool) {
	n := 0
	for _, want := range needle {
		r, size := utf8.DecodeRuneInString(s[n:])
		if size == 0 {
			return 0, false
		}
		if r != want && unicode.ToLower(r) != unicode.ToLower(want) {
			return 0, false
		}
		n += size
	}
	return n, true
}

func isWholeWord(body string, start, end int) bool {
	if start > 0 {
		if r := rune(body[start-1]); unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	if end < len(body) {
		if r := rune(body[end]); unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
