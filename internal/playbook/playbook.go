// Package playbook holds the reviewer-tunable policy: system instructions
// for the reasoning service, extra section heading patterns, and how review
// comments are prefixed. Defaults are compiled in; a YAML file under the
// data directory overrides individual fields.
package playbook

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultCommentPrefix = "AI Review"

const defaultInstructions = `You are a contract review assistant embedded in a document editor.
You help a reviewer work through a redlined contract section by section.

You can call tools to read the document body, list its tracked edits grouped
by contract section, and insert comments anchored to document text. Never
accept or reject tracked edits; only attach comments near them.

When asked to analyse a section, reply with a single JSON object:
{
  "sectionTitle": string,
  "sectionNumber": string,
  "originalText": string,
  "proposedText": string,
  "recommendation": "accept" | "reject" | "review",
  "riskLevel": "low" | "medium" | "high",
  "reasoning": string,
  "alternativeLanguageOptions": [{"id": string, "label": string, "text": string}],
  "commentDraft": string
}
Reply with plain prose only when the question is conversational.`

// Playbook is the loaded policy.
type Playbook struct {
	Instructions    string   `yaml:"instructions"`
	CommentPrefix   string   `yaml:"comment_prefix"`
	HeadingPatterns []string `yaml:"heading_patterns"`
}

// Default returns the built-in policy.
func Default() *Playbook {
	return &Playbook{
		Instructions:  defaultInstructions,
		CommentPrefix: defaultCommentPrefix,
	}
}

// Load reads a YAML playbook and overlays it on the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (*Playbook, error) {
	pb := Default()
	if strings.TrimSpace(path) == "" {
		return pb, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read playbook: %w", err)
	}
	var loaded Playbook
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parse playbook: %w", err)
	}
	if strings.TrimSpace(loaded.Instructions) != "" {
		pb.Instructions = loaded.Instructions
	}
	if strings.TrimSpace(loaded.CommentPrefix) != "" {
		pb.CommentPrefix = loaded.CommentPrefix
	}
	pb.HeadingPatterns = loaded.HeadingPatterns
	return pb, nil
}

// CompilePatterns compiles the extra heading patterns. Each must expose the
// section number as its first capture group.
func (p *Playbook) CompilePatterns() ([]*regexp.Regexp, error) {
	patterns := make([]*regexp.Regexp, 0, len(p.HeadingPatterns))
	for _, raw := range p.HeadingPatterns {
		compiled, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("heading pattern %q: %w", raw, err)
		}
		if compiled.NumSubexp() < 1 {
			return nil, fmt.Errorf("heading pattern %q: needs a section-number capture group", raw)
		}
		patterns = append(patterns, compiled)
	}
	return patterns, nil
}
