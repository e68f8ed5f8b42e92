package review

import (
	"encoding/json"
	"strings"
)

// Decision values a recommendation may carry.
const (
	DecisionAccept = "accept"
	DecisionReject = "reject"
	DecisionReview = "review"
)

// AlternativeLanguage is one suggested replacement clause.
type AlternativeLanguage struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Recommendation is the structured decision object parsed from an analysis
// reply. Held only transiently, for the section currently under review.
type Recommendation struct {
	SectionTitle               string                `json:"sectionTitle"`
	SectionNumber              string                `json:"sectionNumber,omitempty"`
	OriginalText               string                `json:"originalText"`
	ProposedText               string                `json:"proposedText"`
	Recommendation             string                `json:"recommendation"`
	RiskLevel                  string                `json:"riskLevel,omitempty"`
	Reasoning                  string                `json:"reasoning"`
	AlternativeLanguageOptions []AlternativeLanguage `json:"alternativeLanguageOptions,omitempty"`
	CommentDraft               string                `json:"commentDraft,omitempty"`
}

// ParseRecommendation extracts a structured recommendation from a reply.
// Models tend to wrap JSON in code fences, so those are stripped first. A
// reply that does not parse, or parses without the required fields, is not
// an error: it is treated as a plain conversational reply.
func ParseRecommendation(text string) (*Recommendation, bool) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)
	if !strings.HasPrefix(cleaned, "{") {
		return nil, false
	}
	var rec Recommendation
	if err := json.Unmarshal([]byte(cleaned), &rec); err != nil {
		return nil, false
	}
	if rec.Recommendation == "" || rec.Reasoning == "" {
		return nil, false
	}
	return &rec, true
}
