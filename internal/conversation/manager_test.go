package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"lexreview/engine/internal/llm"
)

const instructions = "You are a contract review assistant."

func TestSendCreatesConversation(t *testing.T) {
	client := NewFakeClient(llm.ChatResponse{Content: "hello", FinishReason: "stop"})
	m := NewManager(client, instructions, nil)

	turn, err := m.Send(context.Background(), "", "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if turn.ConversationID == "" || turn.Reply != "hello" {
		t.Fatalf("turn = %+v", turn)
	}

	history, err := m.History(turn.ConversationID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	wantRoles := []string{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant}
	if len(history) != len(wantRoles) {
		t.Fatalf("history = %d messages, want %d", len(history), len(wantRoles))
	}
	for i, want := range wantRoles {
		if history[i].Role != want {
			t.Fatalf("history[%d].Role = %q, want %q", i, history[i].Role, want)
		}
	}
	if history[0].Content != instructions {
		t.Fatalf("system content = %q", history[0].Content)
	}
}

func TestPrimeDoesNotInvokeModel(t *testing.T) {
	client := NewFakeClient()
	m := NewManager(client, instructions, nil)

	id := m.Prime("--- DOCUMENT START ---\nbody\n--- DOCUMENT END ---")
	if id == "" {
		t.Fatal("empty conversation id")
	}
	if calls := client.Calls(); len(calls) != 0 {
		t.Fatalf("prime made %d model calls, want 0", len(calls))
	}
	history, err := m.History(id)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[1].Role != llm.RoleUser {
		t.Fatalf("history = %+v", history)
	}
}

func TestResumeAppendsOneToolMessagePerResult(t *testing.T) {
	client := NewFakeClient(
		llm.ChatResponse{ToolCalls: []llm.ToolCall{
			{ID: "call_1", Function: llm.ToolCallFunction{Name: "read_document_body", Arguments: "{}"}},
			{ID: "call_2", Function: llm.ToolCallFunction{Name: "list_tracked_edits", Arguments: "{}"}},
		}, FinishReason: "tool_calls"},
		llm.ChatResponse{Content: "done", FinishReason: "stop"},
	)
	m := NewManager(client, instructions, nil)

	turn, err := m.Send(context.Background(), "", "scan the document")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(turn.ToolRequests) != 2 {
		t.Fatalf("tool requests = %d, want 2", len(turn.ToolRequests))
	}

	final, err := m.Resume(context.Background(), turn.ConversationID, []llm.ToolResult{
		{ToolCallID: "call_1", Output: `{"text":"body"}`},
		{ToolCallID: "call_2", Output: `{"sections":[]}`},
	})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if final.Reply != "done" {
		t.Fatalf("reply = %q", final.Reply)
	}

	history, err := m.History(turn.ConversationID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	// Exactly one tool message per result since the last user message.
	toolCount := 0
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == llm.RoleUser {
			break
		}
		if history[i].Role == llm.RoleTool {
			toolCount++
		}
	}
	if toolCount != 2 {
		t.Fatalf("tool messages since last user message = %d, want 2", toolCount)
	}
}

func TestResumeUnknownConversation(t *testing.T) {
	m := NewManager(NewFakeClient(), instructions, nil)
	_, err := m.Resume(context.Background(), "conv_missing", []llm.ToolResult{{ToolCallID: "c1", Output: "{}"}})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestResumeRequiresResults(t *testing.T) {
	m := NewManager(NewFakeClient(), instructions, nil)
	if _, err := m.Resume(context.Background(), "any", nil); err == nil {
		t.Fatal("expected error for empty results")
	}
}

func TestHistoryTrimKeepsSystemMessage(t *testing.T) {
	const maxMessages = 6
	responses := make([]llm.ChatResponse, 0, 20)
	for i := 0; i < 20; i++ {
		responses = append(responses, llm.ChatResponse{Content: fmt.Sprintf("reply %d", i), FinishReason: "stop"})
	}
	m := NewManager(NewFakeClient(responses...), instructions, nil, WithMaxMessages(maxMessages))

	id := ""
	for i := 0; i < 10; i++ {
		turn, err := m.Send(context.Background(), id, fmt.Sprintf("prompt %d", i))
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		id = turn.ConversationID

		history, err := m.History(id)
		if err != nil {
			t.Fatalf("history %d: %v", i, err)
		}
		if len(history) > maxMessages {
			t.Fatalf("after turn %d history = %d messages, want <= %d", i, len(history), maxMessages)
		}
		if history[0].Role != llm.RoleSystem || history[0].Content != instructions {
			t.Fatalf("after turn %d history[0] = %+v, want system message", i, history[0])
		}
	}

	history, _ := m.History(id)
	last := history[len(history)-1]
	if last.Role != llm.RoleAssistant || last.Content != "reply 9" {
		t.Fatalf("last message = %+v, want newest assistant reply", last)
	}
}

func TestEndRemovesConversation(t *testing.T) {
	client := NewFakeClient(llm.ChatResponse{Content: "ok", FinishReason: "stop"})
	m := NewManager(client, instructions, nil)

	turn, err := m.Send(context.Background(), "", "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := m.End(turn.ConversationID); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := m.End(turn.ConversationID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second end = %v, want ErrNotFound", err)
	}
	// Send with an ended id starts a fresh history, not a revival.
	turn2, err := m.Send(context.Background(), turn.ConversationID, "again")
	if err != nil {
		t.Fatalf("send after end: %v", err)
	}
	history, err := m.History(turn2.ConversationID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("revived history = %d messages, want 3", len(history))
	}
}

func TestConcurrentTurnRejected(t *testing.T) {
	release := make(chan struct{})
	client := &blockingClient{release: release, started: make(chan struct{}, 1)}
	m := NewManager(client, instructions, nil)

	id := m.Prime("doc")
	var wg sync.WaitGroup
	wg.Add(1)
	errCh := make(chan error, 1)
	go func() {
		defer wg.Done()
		_, err := m.Send(context.Background(), id, "first")
		errCh <- err
	}()

	<-client.started
	_, err := m.Send(context.Background(), id, "second")
	if !errors.Is(err, ErrTurnInProgress) {
		t.Fatalf("err = %v, want ErrTurnInProgress", err)
	}

	close(release)
	wg.Wait()
	if err := <-errCh; err != nil {
		t.Fatalf("first turn: %v", err)
	}

	// The busy flag clears once the turn resolves.
	if _, err := m.Send(context.Background(), id, "third"); err != nil {
		t.Fatalf("third turn: %v", err)
	}
}

// blockingClient parks the first call until released so a second turn can be
// issued while the first is in flight.
type blockingClient struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingClient) ChatWithTools(ctx context.Context, messages []llm.ChatMessage, tools []llm.Tool) (llm.ChatResponse, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-b.release
	return llm.ChatResponse{Content: "unblocked", FinishReason: "stop"}, nil
}
