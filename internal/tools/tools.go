// Package tools maps tool-invocation requests from the reasoning service to
// document operations. Every failure, unknown names included, is reported as
// data inside the tool output so the model can see it and adapt; nothing
// escapes as a protocol-level error.
package tools

import (
	"encoding/json"

	"lexreview/engine/internal/llm"
)

// Tool names exposed to the reasoning service.
const (
	ToolReadDocumentBody = "read_document_body"
	ToolListTrackedEdits = "list_tracked_edits"
	ToolInsertAnnotation = "insert_annotation"
)

// DefaultBodyCap bounds how much document text one read_document_body call
// returns before the truncation marker.
const DefaultBodyCap = 60_000

// TruncationMarker is appended to capped body text.
const TruncationMarker = "\n...[truncated]..."

// Definitions returns the tool schema advertised to the reasoning service.
func Definitions() []llm.Tool {
	return []llm.Tool{
		{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        ToolReadDocumentBody,
				Description: "Read the full body text of the document under review.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"maxChars": {
							"type": "integer",
							"description": "Optional cap on how many characters to return."
						}
					},
					"required": [],
					"additionalProperties": false
				}`),
			},
		},
		{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        ToolListTrackedEdits,
				Description: "List every tracked edit in the document, each annotated with the contract section it belongs to.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {},
					"required": [],
					"additionalProperties": false
				}`),
			},
		},
		{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        ToolInsertAnnotation,
				Description: "Insert a comment anchored to a span of text in the document. Provide anchorText copied from the document body and the commentText to attach.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"anchorText": {
							"type": "string",
							"description": "Exact snippet of text copied from the document body to locate the comment."
						},
						"commentText": {
							"type": "string",
							"description": "The comment content. Should include the suggested change and a brief rationale."
						},
						"occurrence": {
							"type": "integer",
							"description": "If anchorText appears multiple times, which match to use (0 = first).",
							"default": 0,
							"minimum": 0
						},
						"matchCase": {
							"type": "boolean",
							"description": "Whether the anchor search is case-sensitive.",
							"default": false
						},
						"matchWholeWord": {
							"type": "boolean",
							"description": "Whether the anchor search matches whole words only.",
							"default": false
						}
					},
					"required": ["anchorText", "commentText"],
					"additionalProperties": false
				}`),
			},
		},
	}
}
