// Package annotate attaches comments to document text by specificity-ordered
// anchor search. The literal edit text is the most precise anchor but is
// gone for deletions, so the resolver degrades through broader text regions
// instead of failing.
package annotate

import (
	"context"
	"strings"

	"lexreview/engine/internal/document"
)

const (
	minEditAnchorChars = 6
	maxAnchorChars     = 80
	contextSkipWords   = 2
	contextWindowWords = 8
	minContextAnchor   = 10
	maxTitleAnchor     = 40
)

// Request is a logical annotation request for a tracked edit: the anchor
// candidates in order of specificity plus the comment body.
type Request struct {
	EditText         string
	ParagraphContext string
	SectionNumber    string
	SectionTitle     string
	CommentText      string
}

// Result reports how an annotation landed. Matches counts how many spans the
// winning anchor matched; UsedIndex is which one received the comment.
type Result struct {
	OK        bool   `json:"ok"`
	Matches   int    `json:"matches,omitempty"`
	UsedIndex int    `json:"usedIndex,omitempty"`
	Error     string `json:"error,omitempty"`
}

// OnEdit inserts a comment near a tracked edit, trying anchors from most to
// least specific and stopping at the first that matches live body text:
//
//  1. the first 80 characters of the edit's own text, when it is at least
//     6 characters (absent for deletions);
//  2. an 8-word window of the paragraph context starting at word 3 — the
//     first two words are commonly the heading and must not anchor;
//  3. the section number, or failing that the first 40 characters of the
//     section title.
//
// A host search error counts as "no match" and falls through; only a failed
// insert or a fully exhausted chain produces OK == false.
func OnEdit(ctx context.Context, host document.Host, req Request) Result {
	comment := strings.TrimSpace(req.CommentText)
	if comment == "" {
		return Result{Error: "missing comment text"}
	}
	for _, anchor := range candidates(req) {
		matches, err := host.Search(ctx, anchor, document.SearchOptions{})
		if err != nil || len(matches) == 0 {
			continue
		}
		if err := host.InsertAnnotation(ctx, matches[0], comment); err != nil {
			return Result{Error: err.Error(), Matches: len(matches)}
		}
		return Result{OK: true, Matches: len(matches), UsedIndex: 0}
	}
	return Result{Error: "could not find any anchor text in document"}
}

func candidates(req Request) []string {
	var anchors []string
	editText := strings.TrimSpace(req.EditText)
	if len(editText) >= minEditAnchorChars {
		anchors = append(anchors, truncate(editText, maxAnchorChars))
	}
	if snippet := contextSnippet(req.ParagraphContext); snippet != "" {
		anchors = append(anchors, snippet)
	}
	if number := strings.TrimSpace(req.SectionNumber); number != "" {
		anchors = append(anchors, number)
	} else if title := strings.TrimSpace(req.SectionTitle); title != "" {
		anchors = append(anchors, truncate(title, maxTitleAnchor))
	}
	return anchors
}

// contextSnippet carves a distinctive window out of the paragraph context,
// skipping the leading words so the section heading itself never anchors.
func contextSnippet(context string) string {
	words := strings.Fields(strings.TrimSpace(context))
	if len(words) <= contextSkipWords {
		return ""
	}
	end := contextSkipWords + contextWindowWords
	if end > len(words) {
		end = len(words)
	}
	snippet := truncate(strings.Join(words[contextSkipWords:end], " "), maxAnchorChars)
	if len(snippet) < minContextAnchor {
		return ""
	}
	return snippet
}

// AnchorArgs are the caller-supplied arguments of the generic single-anchor
// variant, as exposed to the reasoning service.
type AnchorArgs struct {
	AnchorText     string `json:"anchorText"`
	CommentText    string `json:"commentText"`
	Occurrence     int    `json:"occurrence,omitempty"`
	MatchCase      bool   `json:"matchCase,omitempty"`
	MatchWholeWord bool   `json:"matchWholeWord,omitempty"`
}

// ByAnchor inserts a comment at the nth occurrence of an explicit anchor.
// An out-of-range occurrence clamps to the last available match rather than
// failing; there is no fallback chain.
func ByAnchor(ctx context.Context, host document.Host, args AnchorArgs) Result {
	anchor := strings.TrimSpace(args.AnchorText)
	comment := strings.TrimSpace(args.CommentText)
	if anchor == "" || comment == "" {
		return Result{Error: "missing anchorText or commentText"}
	}
	opts := document.SearchOptions{MatchCase: args.MatchCase, MatchWholeWord: args.MatchWholeWord}
	matches, err := host.Search(ctx, anchor, opts)
	if err != nil {
		return Result{Error: err.Error()}
	}
	if len(matches) == 0 {
		return Result{Error: "anchor text not found"}
	}
	idx := args.Occurrence
	if idx < 0 {
		idx = 0
	}
	if idx > len(matches)-1 {
		idx = len(matches) - 1
	}
	if err := host.InsertAnnotation(ctx, matches[idx], comment); err != nil {
		return Result{Error: err.Error(), Matches: len(matches)}
	}
	return Result{OK: true, Matches: len(matches), UsedIndex: idx}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
