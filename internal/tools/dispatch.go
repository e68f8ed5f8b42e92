package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"lexreview/engine/internal/annotate"
	"lexreview/engine/internal/document"
	"lexreview/engine/internal/llm"
	"lexreview/engine/internal/logging"
	"lexreview/engine/internal/redline"
)

// Dispatcher executes tool calls against the document host. One dispatcher
// serves one document; a round's calls run strictly in request order so tool
// ordering stays deterministic.
type Dispatcher struct {
	host      document.Host
	segmenter *redline.Segmenter
	bodyCap   int
	logger    *slog.Logger
}

// NewDispatcher builds a dispatcher over the given host. bodyCap <= 0 uses
// DefaultBodyCap.
func NewDispatcher(host document.Host, segmenter *redline.Segmenter, bodyCap int, logger *slog.Logger) *Dispatcher {
	if bodyCap <= 0 {
		bodyCap = DefaultBodyCap
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Dispatcher{host: host, segmenter: segmenter, bodyCap: bodyCap, logger: logger}
}

// ExecuteAll resolves a full tool round, one call after another in array
// order, and returns the combined result set.
func (d *Dispatcher) ExecuteAll(ctx context.Context, calls []llm.ToolCall) []llm.ToolResult {
	results := make([]llm.ToolResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, d.Execute(ctx, call))
	}
	return results
}

// Execute resolves one tool call. The result output is either the tool's
// payload or a serialized {"ok":false,"error":...} object; Execute itself
// never fails.
func (d *Dispatcher) Execute(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	name := call.Function.Name
	start := time.Now()
	output := d.run(ctx, name, call.Function.Arguments)
	d.logger.Info("tools.executed",
		"tool", name,
		"tool_call_id", call.ID,
		"elapsed_ms", time.Since(start).Milliseconds(),
		"output_bytes", len(output))
	return llm.ToolResult{ToolCallID: call.ID, Output: output}
}

func (d *Dispatcher) run(ctx context.Context, name, arguments string) string {
	switch name {
	case ToolReadDocumentBody:
		return d.readBody(ctx, arguments)
	case ToolListTrackedEdits:
		return d.listEdits(ctx)
	case ToolInsertAnnotation:
		return d.insertAnnotation(ctx, arguments)
	default:
		d.logger.Warn("tools.unknown", "tool", name)
		return errorPayload(fmt.Sprintf("unknown tool: %s", name))
	}
}

func (d *Dispatcher) readBody(ctx context.Context, arguments string) string {
	var args struct {
		MaxChars int `json:"maxChars"`
	}
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return errorPayload(fmt.Sprintf("invalid arguments: %s", err))
		}
	}
	limit := d.bodyCap
	if args.MaxChars > 0 && args.MaxChars < limit {
		limit = args.MaxChars
	}
	text, err := d.host.BodyText(ctx)
	if err != nil {
		return errorPayload(err.Error())
	}
	if len(text) > limit {
		text = text[:limit] + TruncationMarker
	}
	return text
}

func (d *Dispatcher) listEdits(ctx context.Context) string {
	resolved, err := redline.Reconcile(ctx, d.host, d.segmenter)
	if err != nil {
		return errorPayload(err.Error())
	}
	if resolved == nil {
		resolved = []redline.ResolvedEdit{}
	}
	data, err := json.Marshal(resolved)
	if err != nil {
		return errorPayload(err.Error())
	}
	return string(data)
}

func (d *Dispatcher) insertAnnotation(ctx context.Context, arguments string) string {
	var args annotate.AnchorArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return errorPayload(fmt.Sprintf("invalid arguments: %s", err))
	}
	result := annotate.ByAnchor(ctx, d.host, args)
	data, err := json.Marshal(result)
	if err != nil {
		return errorPayload(err.Error())
	}
	return string(data)
}

func errorPayload(message string) string {
	data, _ := json.Marshal(map[string]any{"ok": false, "error": message})
	return string(data)
}
