// Package engine assembles the review components behind the RPC host
// boundary: one engine serves one document host and owns the conversation
// manager, the tool dispatcher and the review session.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"lexreview/engine/internal/appdirs"
	"lexreview/engine/internal/conversation"
	"lexreview/engine/internal/document"
	"lexreview/engine/internal/egress"
	"lexreview/engine/internal/envutil"
	"lexreview/engine/internal/errinfo"
	"lexreview/engine/internal/llm"
	"lexreview/engine/internal/logging"
	"lexreview/engine/internal/openai"
	"lexreview/engine/internal/playbook"
	"lexreview/engine/internal/redline"
	"lexreview/engine/internal/review"
	"lexreview/engine/internal/rpc"
	"lexreview/engine/internal/secrets"
	"lexreview/engine/internal/settings"
	"lexreview/engine/internal/tools"
)

const (
	EngineVersion = "0.1.0"
	APIVersion    = "1"
)

// Engine wires the host boundary to the review components.
type Engine struct {
	host       document.Host
	settings   *settings.Settings
	playbook   *playbook.Playbook
	conv       *conversation.Manager
	dispatcher *tools.Dispatcher
	session    *review.Session
	secrets    *secrets.Store
	provider   *providerHolder
	baseURL    string
	keySource  string
	logger     *slog.Logger
}

// providerHolder is the conversation client handed to the manager. The inner
// client can be swapped when a key is configured over RPC after startup;
// without one every call reports the provider as unconfigured.
type providerHolder struct {
	mu     sync.Mutex
	inner  conversation.Client
	source string
}

func (h *providerHolder) ChatWithTools(ctx context.Context, messages []llm.ChatMessage, toolDefs []llm.Tool) (llm.ChatResponse, error) {
	h.mu.Lock()
	inner := h.inner
	h.mu.Unlock()
	if inner == nil {
		return llm.ChatResponse{}, llm.ErrNotConfigured
	}
	return inner.ChatWithTools(ctx, messages, toolDefs)
}

func (h *providerHolder) set(client conversation.Client, source string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inner = client
	h.source = source
}

func (h *providerHolder) status() (bool, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inner != nil, h.source
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	logger *slog.Logger
	client conversation.Client
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClient overrides the reasoning-service client (tests).
func WithClient(client conversation.Client) Option {
	return func(o *options) {
		if client != nil {
			o.client = client
		}
	}
}

// New builds an engine over the given document host, loading settings and
// the review playbook from the data directory.
func New(host document.Host, opts ...Option) (*Engine, error) {
	o := options{logger: logging.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	dataDir, err := appdirs.DataDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	store := settings.NewStore(appdirs.SettingsPath(dataDir))
	cfg, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	playbookPath := cfg.PlaybookPath
	if override := os.Getenv("LEXREVIEW_PLAYBOOK"); override != "" {
		playbookPath = override
	}
	pb, err := playbook.Load(playbookPath)
	if err != nil {
		return nil, err
	}
	patterns, err := pb.CompilePatterns()
	if err != nil {
		return nil, err
	}
	segmenter := redline.NewSegmenter(patterns...)

	keyStore := secrets.NewStore(
		filepath.Join(dataDir, "secrets.json"),
		filepath.Join(dataDir, "master.key"),
	)
	baseURL := os.Getenv("LEXREVIEW_OPENAI_BASE_URL")

	holder := &providerHolder{}
	var client conversation.Client = holder
	switch {
	case o.client != nil:
		client = o.client
	case envutil.Bool("LEXREVIEW_FAKE_OPENAI"):
		client = scriptedFake()
	default:
		apiKey, source := resolveAPIKey(keyStore)
		if apiKey != "" {
			holder.set(buildProviderClient(apiKey, baseURL, cfg), source)
		}
	}

	conv := conversation.NewManager(client, pb.Instructions, tools.Definitions(),
		conversation.WithMaxMessages(cfg.MaxMessages),
		conversation.WithLogger(o.logger.With("component", "conversation")))
	dispatcher := tools.NewDispatcher(host, segmenter, cfg.BodyCapChars, o.logger.With("component", "tools"))
	session := review.NewSession(host, conv, dispatcher, segmenter, review.Config{
		MaxToolRounds: cfg.MaxToolRounds,
		BodyCap:       cfg.BodyCapChars,
		CommentPrefix: pb.CommentPrefix,
		Logger:        o.logger.With("component", "review"),
	})

	return &Engine{
		host:       host,
		settings:   cfg,
		playbook:   pb,
		conv:       conv,
		dispatcher: dispatcher,
		session:    session,
		secrets:    keyStore,
		provider:   holder,
		baseURL:    baseURL,
		logger:     o.logger,
	}, nil
}

// resolveAPIKey checks the environment before the encrypted store, so a
// deployment-level key wins over one configured through the add-in.
func resolveAPIKey(store *secrets.Store) (string, string) {
	if key := os.Getenv("LEXREVIEW_OPENAI_API_KEY"); key != "" {
		return key, "env"
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key, "env"
	}
	if key, err := store.GetOpenAIKey(); err == nil && key != "" {
		return key, "stored"
	}
	return "", ""
}

// buildProviderClient constructs the OpenAI client behind an egress
// allowlist holding only the reasoning service's host.
func buildProviderClient(apiKey, baseURL string, cfg *settings.Settings) *openai.Client {
	hosts := []string{"api.openai.com"}
	opts := []openai.Option{openai.WithTemperature(cfg.Temperature)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
		if u, err := url.Parse(baseURL); err == nil && u.Hostname() != "" {
			hosts = append(hosts, u.Hostname())
		}
	}
	transport := egress.NewAllowlistRoundTripper(nil, hosts)
	opts = append(opts, openai.WithHTTPClient(&http.Client{Transport: transport}))
	return openai.NewClient(apiKey, cfg.ModelID, opts...)
}

// Session exposes the review session (scan subcommand, tests).
func (e *Engine) Session() *review.Session {
	return e.session
}

type method func(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo)

// RegisterMethods installs every engine method on the server.
func (e *Engine) RegisterMethods(server *rpc.Server) {
	methods := map[string]method{
		"EngineGetInfo":        e.EngineGetInfo,
		"ReviewScan":           e.ReviewScan,
		"ReviewStart":          e.ReviewStart,
		"ReviewAnalyzeSection": e.ReviewAnalyzeSection,
		"ReviewApplyAction":    e.ReviewApplyAction,
		"ChatPrime":            e.ChatPrime,
		"ChatSend":             e.ChatSend,
		"ChatToolResult":       e.ChatToolResult,
		"SessionEnd":           e.SessionEnd,
		"ProviderGetStatus":    e.ProviderGetStatus,
		"ProviderSetKey":       e.ProviderSetKey,
		"ProviderClearKey":     e.ProviderClearKey,
		"ProviderValidate":     e.ProviderValidate,
	}
	for name, fn := range methods {
		server.Register(name, adapt(fn))
	}
}

// adapt converts an engine method into an rpc handler, carrying the
// structured error payload through the error data field.
func adapt(fn method) rpc.Handler {
	return func(ctx context.Context, params json.RawMessage) (any, *rpc.Error) {
		result, info := fn(ctx, params)
		if info != nil {
			msg := info.ErrorCode
			if info.Detail != "" {
				msg = info.Detail
			}
			return nil, &rpc.Error{Message: msg, Data: info}
		}
		return result, nil
	}
}

// EngineGetInfo reports engine and protocol versions.
func (e *Engine) EngineGetInfo(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	return map[string]any{
		"engine_version": EngineVersion,
		"api_version":    APIVersion,
		"model_id":       e.settings.ModelID,
	}, nil
}

// ReviewScan runs the initial document scan.
func (e *Engine) ReviewScan(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	result, err := e.session.Scan(ctx)
	if err != nil {
		return nil, e.mapError(errinfo.PhaseScan, err)
	}
	return result, nil
}

// ReviewStart begins section-by-section review at the first section.
func (e *Engine) ReviewStart(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	analysis, err := e.session.StartReview(ctx)
	if err != nil {
		return nil, e.mapError(errinfo.PhaseAnalysis, err)
	}
	return analysis, nil
}

// ReviewAnalyzeSection analyses the section currently under review.
func (e *Engine) ReviewAnalyzeSection(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	analysis, err := e.session.AnalyzeSection(ctx)
	if err != nil {
		return nil, e.mapError(errinfo.PhaseAnalysis, err)
	}
	return analysis, nil
}

type applyActionParams struct {
	Action   string `json:"action"`
	AltIndex int    `json:"alt_index"`
}

// ReviewApplyAction applies a reviewer decision to the current section.
func (e *Engine) ReviewApplyAction(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req applyActionParams
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseAnnotate, err.Error())
	}
	result, err := e.session.ApplyAction(ctx, req.Action, req.AltIndex)
	if err != nil {
		if !result.Anchor.OK && result.Anchor.Error != "" {
			return nil, errinfo.NoAnchorFound("", result.Anchor.Error)
		}
		return nil, e.mapError(errinfo.PhaseAnnotate, err)
	}
	return result, nil
}

type chatPrimeParams struct {
	Content string `json:"content"`
}

// ChatPrime creates a conversation seeded with reference content without
// requesting a reply.
func (e *Engine) ChatPrime(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req chatPrimeParams
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseChat, err.Error())
	}
	if req.Content == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseChat, "missing content")
	}
	id := e.conv.Prime(req.Content)
	return map[string]any{"conversation_id": id}, nil
}

type chatSendParams struct {
	Prompt         string `json:"prompt"`
	ConversationID string `json:"conversation_id"`
}

// ChatSend runs one model round over a conversation. The reply either
// carries final content or the tool requests the host must resolve through
// ChatToolResult.
func (e *Engine) ChatSend(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	if e.session.State() == review.StateEnded {
		return nil, errinfo.SessionEnded("")
	}
	var req chatSendParams
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseChat, err.Error())
	}
	if req.Prompt == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseChat, "missing prompt")
	}
	turn, err := e.conv.Send(ctx, req.ConversationID, req.Prompt)
	if err != nil {
		return nil, e.mapError(errinfo.PhaseChat, err)
	}
	return turnPayload(turn), nil
}

type chatToolResultParams struct {
	ConversationID string           `json:"conversation_id"`
	ToolResults    []llm.ToolResult `json:"tool_results"`
}

// ChatToolResult feeds host-side tool outputs back into a pending turn.
func (e *Engine) ChatToolResult(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	if e.session.State() == review.StateEnded {
		return nil, errinfo.SessionEnded("")
	}
	var req chatToolResultParams
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseChat, err.Error())
	}
	if req.ConversationID == "" || len(req.ToolResults) == 0 {
		return nil, errinfo.ValidationFailed(errinfo.PhaseChat, "missing conversation_id or tool_results")
	}
	turn, err := e.conv.Resume(ctx, req.ConversationID, req.ToolResults)
	if err != nil {
		return nil, e.mapError(errinfo.PhaseChat, err)
	}
	return turnPayload(turn), nil
}

// ProviderGetStatus reports whether a reasoning-service key is configured
// and where it came from.
func (e *Engine) ProviderGetStatus(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	configured, source := e.provider.status()
	if source == "" {
		source = "none"
	}
	return map[string]any{
		"configured": configured,
		"source":     source,
		"model_id":   e.settings.ModelID,
	}, nil
}

type providerSetKeyParams struct {
	APIKey string `json:"api_key"`
}

// ProviderSetKey stores the key encrypted and swaps in a live client.
func (e *Engine) ProviderSetKey(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req providerSetKeyParams
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSession, err.Error())
	}
	if req.APIKey == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSession, "missing api_key")
	}
	if err := e.secrets.SetOpenAIKey(req.APIKey); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSession, err.Error())
	}
	e.provider.set(buildProviderClient(req.APIKey, e.baseURL, e.settings), "stored")
	e.logger.Info("engine.provider_key_set")
	return map[string]any{"ok": true}, nil
}

// ProviderClearKey removes the stored key. A key supplied through the
// environment stays in effect until restart.
func (e *Engine) ProviderClearKey(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	if err := e.secrets.ClearOpenAIKey(); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSession, err.Error())
	}
	apiKey, source := resolveAPIKey(e.secrets)
	if apiKey == "" {
		e.provider.set(nil, "")
	} else {
		e.provider.set(buildProviderClient(apiKey, e.baseURL, e.settings), source)
	}
	e.logger.Info("engine.provider_key_cleared")
	return map[string]any{"ok": true}, nil
}

// ProviderValidate runs a cheap authenticated request against the configured
// key.
func (e *Engine) ProviderValidate(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	apiKey, _ := resolveAPIKey(e.secrets)
	if apiKey == "" {
		return nil, errinfo.ProviderNotConfigured(errinfo.PhaseSession)
	}
	client := buildProviderClient(apiKey, e.baseURL, e.settings)
	if err := client.ValidateKey(ctx); err != nil {
		return nil, e.mapError(errinfo.PhaseSession, err)
	}
	return map[string]any{"ok": true}, nil
}

// SessionEnd tears the review session down. Idempotent.
func (e *Engine) SessionEnd(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	if err := e.session.EndSession(); err != nil {
		return nil, e.mapError(errinfo.PhaseSession, err)
	}
	return map[string]any{"ok": true, "message": "session ended"}, nil
}

func turnPayload(turn conversation.Turn) map[string]any {
	payload := map[string]any{"conversation_id": turn.ConversationID}
	if len(turn.ToolRequests) > 0 {
		payload["tool_requests"] = turn.ToolRequests
		return payload
	}
	payload["reply"] = turn.Reply
	return payload
}

func (e *Engine) mapError(phase string, err error) *errinfo.ErrorInfo {
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		return errinfo.ProviderNotConfigured(phase)
	case errors.Is(err, llm.ErrEgressBlocked):
		return errinfo.ProviderUnavailable(phase, err.Error())
	case errors.Is(err, llm.ErrUnauthorized):
		return errinfo.ProviderAuthFailed(phase)
	case errors.Is(err, llm.ErrRateLimited), errors.Is(err, llm.ErrUnavailable):
		return errinfo.ProviderUnavailable(phase, err.Error())
	case errors.Is(err, conversation.ErrTurnInProgress):
		return errinfo.TurnInProgress("")
	case errors.Is(err, conversation.ErrNotFound):
		return errinfo.SessionEnded("")
	case errors.Is(err, review.ErrSessionEnded):
		return errinfo.SessionEnded("")
	case errors.Is(err, document.ErrUnavailable):
		return errinfo.HostUnavailable(phase, err.Error())
	case errors.Is(err, review.ErrNotScanned), errors.Is(err, review.ErrNoRecommendation), errors.Is(err, review.ErrUnknownAction):
		return errinfo.ValidationFailed(phase, err.Error())
	default:
		info := errinfo.ProviderUnavailable(phase, err.Error())
		if phase == errinfo.PhaseScan || phase == errinfo.PhaseAnnotate {
			info = errinfo.HostUnavailable(phase, err.Error())
		}
		return info
	}
}

// scriptedFake backs LEXREVIEW_FAKE_OPENAI runs with a canned recommendation
// so the full loop can be exercised without network access.
func scriptedFake() conversation.Client {
	rec := review.Recommendation{
		SectionTitle:   "1.0 SCOPE",
		SectionNumber:  "1.0",
		OriginalText:   "original clause",
		ProposedText:   "proposed clause",
		Recommendation: review.DecisionReview,
		RiskLevel:      "medium",
		Reasoning:      "scripted response for offline runs",
	}
	data, _ := json.Marshal(rec)
	return conversation.NewFakeClient(
		llm.ChatResponse{Content: string(data), FinishReason: "stop"},
		llm.ChatResponse{Content: string(data), FinishReason: "stop"},
		llm.ChatResponse{Content: string(data), FinishReason: "stop"},
	)
}
