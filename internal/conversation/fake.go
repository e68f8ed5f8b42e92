package conversation

import (
	"context"
	"sync"

	"lexreview/engine/internal/llm"
)

// FakeClient is a scripted reasoning service for tests: it replays queued
// responses in order and records every request's history snapshot.
type FakeClient struct {
	mu        sync.Mutex
	responses []llm.ChatResponse
	err       error
	calls     [][]llm.ChatMessage
}

// NewFakeClient queues the given responses.
func NewFakeClient(responses ...llm.ChatResponse) *FakeClient {
	return &FakeClient{responses: responses}
}

// Fail makes every subsequent call return err.
func (f *FakeClient) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *FakeClient) ChatWithTools(ctx context.Context, messages []llm.ChatMessage, tools []llm.Tool) (llm.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := make([]llm.ChatMessage, len(messages))
	copy(snapshot, messages)
	f.calls = append(f.calls, snapshot)
	if f.err != nil {
		return llm.ChatResponse{}, f.err
	}
	if len(f.responses) == 0 {
		return llm.ChatResponse{Content: "(no scripted response)", FinishReason: "stop"}, nil
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

// Calls returns the recorded request histories.
func (f *FakeClient) Calls() [][]llm.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]llm.ChatMessage, len(f.calls))
	copy(out, f.calls)
	return out
}
