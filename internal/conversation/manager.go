// Package conversation owns per-conversation message history and turn
// taking against the remote reasoning service. A logical turn may span
// several tool rounds; the manager persists every partial assistant turn so
// no context is lost between rounds.
package conversation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lexreview/engine/internal/llm"
	"lexreview/engine/internal/logging"
)

// DefaultMaxMessages bounds history length; trimming keeps the system
// message plus the most recent entries.
const DefaultMaxMessages = 30

var (
	// ErrNotFound reports an unknown or already-ended conversation id.
	ErrNotFound = errors.New("conversation not found")
	// ErrTurnInProgress rejects a second turn issued on a conversation
	// before the first resolves. Turns on one id are strictly serial.
	ErrTurnInProgress = errors.New("conversation turn already in progress")
)

// Client is the remote reasoning service: one request over the full trimmed
// history, returning final content or pending tool calls.
type Client interface {
	ChatWithTools(ctx context.Context, messages []llm.ChatMessage, tools []llm.Tool) (llm.ChatResponse, error)
}

// Turn is the outcome of a Send or Resume: either a final reply or a batch
// of tool requests the caller must resolve and feed back through Resume.
type Turn struct {
	ConversationID string
	Reply          string
	ToolRequests   []llm.ToolCall
}

type state struct {
	messages []llm.ChatMessage
	busy     bool
}

// Manager owns every live conversation, keyed by id. Histories are mutated
// only under the manager's lock; the model call itself runs unlocked with a
// per-conversation busy flag holding off concurrent turns.
type Manager struct {
	client       Client
	tools        []llm.Tool
	instructions string
	maxMessages  int
	logger       *slog.Logger

	mu            sync.Mutex
	conversations map[string]*state
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxMessages overrides the history length bound.
func WithMaxMessages(n int) Option {
	return func(m *Manager) {
		if n > 1 {
			m.maxMessages = n
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager builds a manager whose conversations all start from the given
// system instructions and advertise the given tools to the model.
func NewManager(client Client, instructions string, tools []llm.Tool, opts ...Option) *Manager {
	m := &Manager{
		client:        client,
		tools:         tools,
		instructions:  instructions,
		maxMessages:   DefaultMaxMessages,
		logger:        logging.Nop(),
		conversations: make(map[string]*state),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Prime creates a fresh conversation and injects reference content as a
// user message without invoking the model, so the first real turn starts
// from a deterministic state with no reply pending.
func (m *Manager) Prime(content string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := newConversationID()
	st := &state{messages: []llm.ChatMessage{llm.SystemMessage(m.instructions)}}
	st.messages = m.appendTrimmed(st.messages, llm.UserMessage(content))
	m.conversations[id] = st
	m.logger.Info("conversation.primed", "conversation_id", id, "content_length", len(content))
	return id
}

// Send appends a user prompt and runs one model round. An empty id creates
// a new conversation.
func (m *Manager) Send(ctx context.Context, conversationID, prompt string) (Turn, error) {
	id, err := m.begin(conversationID, true, llm.UserMessage(prompt))
	if err != nil {
		return Turn{}, err
	}
	return m.invoke(ctx, id)
}

// Resume appends one tool-result message per result, matched by call id,
// and runs the next model round of the same logical turn.
func (m *Manager) Resume(ctx context.Context, conversationID string, results []llm.ToolResult) (Turn, error) {
	if len(results) == 0 {
		return Turn{}, fmt.Errorf("no tool results provided")
	}
	messages := make([]llm.ChatMessage, 0, len(results))
	for _, result := range results {
		if result.ToolCallID == "" {
			continue
		}
		messages = append(messages, llm.ToolMessage(result.ToolCallID, result.Output))
	}
	id, err := m.begin(conversationID, false, messages...)
	if err != nil {
		return Turn{}, err
	}
	return m.invoke(ctx, id)
}

// End deletes the conversation. Further operations on the id fail with
// ErrNotFound.
func (m *Manager) End(conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[conversationID]; !ok {
		return ErrNotFound
	}
	delete(m.conversations, conversationID)
	m.logger.Info("conversation.ended", "conversation_id", conversationID)
	return nil
}

// Active reports the number of live conversations.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conversations)
}

// History returns a copy of the conversation's current messages.
func (m *Manager) History(conversationID string) ([]llm.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]llm.ChatMessage, len(st.messages))
	copy(out, st.messages)
	return out, nil
}

// begin appends the turn's opening messages under lock and marks the
// conversation busy. createMissing distinguishes Send (which may open a new
// conversation) from Resume (which may not).
func (m *Manager) begin(conversationID string, createMissing bool, messages ...llm.ChatMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := conversationID
	st, ok := m.conversations[id]
	if !ok {
		if !createMissing {
			return "", ErrNotFound
		}
		if id == "" {
			id = newConversationID()
		}
		st = &state{messages: []llm.ChatMessage{llm.SystemMessage(m.instructions)}}
		m.conversations[id] = st
	}
	if st.busy {
		return "", ErrTurnInProgress
	}
	st.busy = true
	for _, msg := range messages {
		st.messages = m.appendTrimmed(st.messages, msg)
	}
	return id, nil
}

// invoke runs one model round over the trimmed history and persists the
// assistant message, tool calls included, before reporting the turn.
func (m *Manager) invoke(ctx context.Context, conversationID string) (Turn, error) {
	m.mu.Lock()
	st := m.conversations[conversationID]
	history := make([]llm.ChatMessage, len(st.messages))
	copy(history, st.messages)
	m.mu.Unlock()

	start := time.Now()
	resp, err := m.client.ChatWithTools(ctx, history, m.tools)

	m.mu.Lock()
	defer m.mu.Unlock()
	// The conversation may have been ended while the call was in flight.
	st, ok := m.conversations[conversationID]
	if ok {
		st.busy = false
	}
	if err != nil {
		m.logger.Warn("conversation.call_failed", "conversation_id", conversationID, "error", err.Error())
		return Turn{}, err
	}
	if ok {
		st.messages = m.appendTrimmed(st.messages, llm.ChatMessage{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
	}
	m.logger.Info("conversation.turn_complete",
		"conversation_id", conversationID,
		"elapsed_ms", time.Since(start).Milliseconds(),
		"tool_call_count", len(resp.ToolCalls),
		"content_length", len(resp.Content))
	if len(resp.ToolCalls) > 0 {
		return Turn{ConversationID: conversationID, ToolRequests: resp.ToolCalls}, nil
	}
	return Turn{ConversationID: conversationID, Reply: resp.Content}, nil
}

// appendTrimmed appends and re-establishes the history invariant: at most
// maxMessages entries, position 0 always the system message. Trimming after
// every append keeps the invariant continuous, not just at read time.
func (m *Manager) appendTrimmed(history []llm.ChatMessage, msg llm.ChatMessage) []llm.ChatMessage {
	history = append(history, msg)
	if len(history) <= m.maxMessages {
		return history
	}
	trimmed := make([]llm.ChatMessage, 0, m.maxMessages)
	if history[0].Role == llm.RoleSystem {
		trimmed = append(trimmed, history[0])
	} else {
		trimmed = append(trimmed, llm.SystemMessage(m.instructions))
	}
	tail := history[len(history)-(m.maxMessages-1):]
	return append(trimmed, tail...)
}

func newConversationID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("conv_%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("conv_%d_%s", time.Now().Unix(), hex.EncodeToString(buf))
}
