package review

import (
	"fmt"
	"strings"

	"lexreview/engine/internal/redline"
)

const (
	promptContextChars  = 400
	promptEditTextChars = 120
)

// PrimeContent wraps the document body as the reference message injected
// when a conversation is primed.
func PrimeContent(bodyText string) string {
	return "The following is the full text of the contract document the user will be reviewing. " +
		"Use it to answer questions about the contract.\n\n" +
		"--- DOCUMENT START ---\n" + bodyText + "\n--- DOCUMENT END ---"
}

// SectionPrompt builds the analysis request for one redlined section: its
// title, truncated context, and a numbered list of its edits.
func SectionPrompt(section redline.RedlinedSection, index, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Please analyse Section %d of %d:\n", index+1, total)
	fmt.Fprintf(&b, "Section: %s\n", section.SectionTitle)
	fmt.Fprintf(&b, "Section context: %s\n\n", truncate(section.SectionContext, promptContextChars))
	noun := "tracked changes"
	if len(section.Changes) == 1 {
		noun = "tracked change"
	}
	fmt.Fprintf(&b, "This section contains %d %s:\n", len(section.Changes), noun)
	for i, change := range section.Changes {
		fmt.Fprintf(&b, "  Redline %d: [%s by %s] %q\n",
			i+1, change.Kind, change.Author, truncate(change.Text, promptEditTextChars))
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
