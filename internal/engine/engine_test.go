package engine

import (
	"context"
	"encoding/json"
	"testing"

	"lexreview/engine/internal/conversation"
	"lexreview/engine/internal/document"
	"lexreview/engine/internal/errinfo"
	"lexreview/engine/internal/llm"
	"lexreview/engine/internal/review"
)

const recommendationJSON = `{
	"sectionTitle": "2.0 PAYMENT TERMS",
	"sectionNumber": "2.0",
	"originalText": "thirty days",
	"proposedText": "sixty days",
	"recommendation": "review",
	"riskLevel": "high",
	"reasoning": "Doubles the payment window.",
	"commentDraft": "Confirm finance can absorb net-60 terms.",
	"alternativeLanguageOptions": [
		{"id": "a1", "label": "Net 45", "text": "Customer shall pay within forty-five days of invoice."}
	]
}`

func testHost() *document.Fake {
	paragraphs := []string{
		"MASTER SERVICES AGREEMENT",
		"This Agreement is made between Customer and Contractor.",
		"1.0 SCOPE",
		"Contractor shall perform the services described herein.",
		"2.0 PAYMENT TERMS",
		"Customer shall pay within sixty days of invoice.",
	}
	edits := []document.TrackedEdit{
		{
			ID:                  "e1",
			Kind:                document.EditInsertion,
			Author:              "Vendor Counsel",
			Text:                "sixty",
			ContainingParagraph: "Customer shall pay within sixty days of invoice.",
		},
	}
	return document.NewFake(paragraphs, edits)
}

func newTestEngine(t *testing.T, host *document.Fake, client conversation.Client) *Engine {
	t.Helper()
	t.Setenv("LEXREVIEW_DATA_DIR", t.TempDir())
	eng, err := New(host, WithClient(client))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng
}

func TestReviewFlow(t *testing.T) {
	host := testHost()
	client := conversation.NewFakeClient(
		llm.ChatResponse{Content: recommendationJSON, FinishReason: "stop"},
	)
	eng := newTestEngine(t, host, client)
	ctx := context.Background()

	scanAny, info := eng.ReviewScan(ctx, nil)
	if info != nil {
		t.Fatalf("ReviewScan: %+v", info)
	}
	scan := scanAny.(review.ScanResult)
	if len(scan.Sections) != 1 || scan.TotalChanges != 1 {
		t.Fatalf("scan = %d sections, %d changes, want 1 and 1", len(scan.Sections), scan.TotalChanges)
	}
	if scan.Sections[0].SectionNumber != "2.0" {
		t.Fatalf("section number = %q, want 2.0", scan.Sections[0].SectionNumber)
	}
	if scan.ConversationID == "" {
		t.Fatal("scan returned empty conversation id")
	}

	startAny, info := eng.ReviewStart(ctx, nil)
	if info != nil {
		t.Fatalf("ReviewStart: %+v", info)
	}
	analysis := startAny.(review.Analysis)
	if analysis.Recommendation == nil {
		t.Fatalf("expected structured recommendation, reply = %q", analysis.Reply)
	}
	if analysis.Recommendation.RiskLevel != "high" {
		t.Fatalf("risk = %q, want high", analysis.Recommendation.RiskLevel)
	}

	applyAny, info := eng.ReviewApplyAction(ctx, json.RawMessage(`{"action":"accept"}`))
	if info != nil {
		t.Fatalf("ReviewApplyAction: %+v", info)
	}
	applied := applyAny.(review.ApplyResult)
	if !applied.Complete {
		t.Fatal("expected review complete after the only section")
	}
	annotations := host.Annotations()
	if len(annotations) != 1 {
		t.Fatalf("annotations = %d, want 1", len(annotations))
	}

	if _, info := eng.SessionEnd(ctx, nil); info != nil {
		t.Fatalf("SessionEnd: %+v", info)
	}
	// Ending twice stays clean.
	if _, info := eng.SessionEnd(ctx, nil); info != nil {
		t.Fatalf("second SessionEnd: %+v", info)
	}
}

func TestChatSendAfterEndRejected(t *testing.T) {
	client := conversation.NewFakeClient()
	eng := newTestEngine(t, testHost(), client)
	ctx := context.Background()

	if _, info := eng.SessionEnd(ctx, nil); info != nil {
		t.Fatalf("SessionEnd: %+v", info)
	}
	_, info := eng.ChatSend(ctx, json.RawMessage(`{"prompt":"hello"}`))
	if info == nil || info.ErrorCode != errinfo.CodeSessionEnded {
		t.Fatalf("info = %+v, want %s", info, errinfo.CodeSessionEnded)
	}
	_, info = eng.ChatToolResult(ctx, json.RawMessage(`{"conversation_id":"c1","tool_results":[{"tool_call_id":"t1","output":"{}"}]}`))
	if info == nil || info.ErrorCode != errinfo.CodeSessionEnded {
		t.Fatalf("info = %+v, want %s", info, errinfo.CodeSessionEnded)
	}
	if len(client.Calls()) != 0 {
		t.Fatalf("rejected sends reached the model %d times", len(client.Calls()))
	}
}

func TestChatPrimeAndSend(t *testing.T) {
	client := conversation.NewFakeClient(
		llm.ChatResponse{Content: "The indemnity clause caps liability at fees paid.", FinishReason: "stop"},
	)
	eng := newTestEngine(t, testHost(), client)
	ctx := context.Background()

	primeAny, info := eng.ChatPrime(ctx, json.RawMessage(`{"content":"--- DOCUMENT START ---"}`))
	if info != nil {
		t.Fatalf("ChatPrime: %+v", info)
	}
	id := primeAny.(map[string]any)["conversation_id"].(string)
	if id == "" {
		t.Fatal("empty conversation id")
	}
	if len(client.Calls()) != 0 {
		t.Fatalf("prime made %d model calls, want 0", len(client.Calls()))
	}

	sendAny, info := eng.ChatSend(ctx, json.RawMessage(`{"prompt":"Summarize the indemnity clause.","conversation_id":"`+id+`"}`))
	if info != nil {
		t.Fatalf("ChatSend: %+v", info)
	}
	payload := sendAny.(map[string]any)
	if payload["conversation_id"] != id {
		t.Fatalf("conversation id changed: %v", payload["conversation_id"])
	}
	if payload["reply"] == "" {
		t.Fatal("empty reply")
	}
}

func TestChatSendValidation(t *testing.T) {
	eng := newTestEngine(t, testHost(), conversation.NewFakeClient())
	ctx := context.Background()

	_, info := eng.ChatSend(ctx, json.RawMessage(`{}`))
	if info == nil || info.ErrorCode != errinfo.CodeValidationFailed {
		t.Fatalf("info = %+v, want %s", info, errinfo.CodeValidationFailed)
	}
	_, info = eng.ChatPrime(ctx, json.RawMessage(`{"content":""}`))
	if info == nil || info.ErrorCode != errinfo.CodeValidationFailed {
		t.Fatalf("info = %+v, want %s", info, errinfo.CodeValidationFailed)
	}
}

func TestProviderErrorsMapped(t *testing.T) {
	client := conversation.NewFakeClient()
	client.Fail(llm.ErrUnauthorized)
	eng := newTestEngine(t, testHost(), client)
	ctx := context.Background()

	if _, info := eng.ReviewScan(ctx, nil); info != nil {
		t.Fatalf("ReviewScan: %+v", info)
	}
	_, info := eng.ReviewStart(ctx, nil)
	if info == nil || info.ErrorCode != errinfo.CodeProviderAuthFailed {
		t.Fatalf("info = %+v, want %s", info, errinfo.CodeProviderAuthFailed)
	}

	client.Fail(llm.ErrRateLimited)
	_, info = eng.ReviewAnalyzeSection(ctx, nil)
	if info == nil || info.ErrorCode != errinfo.CodeProviderUnavailable {
		t.Fatalf("info = %+v, want %s", info, errinfo.CodeProviderUnavailable)
	}
	if !info.Retryable {
		t.Fatal("rate limit should be retryable")
	}
}

func TestHostUnavailableMapped(t *testing.T) {
	host := testHost()
	host.FailEdits = true
	eng := newTestEngine(t, host, conversation.NewFakeClient())

	_, info := eng.ReviewScan(context.Background(), nil)
	if info == nil || info.ErrorCode != errinfo.CodeHostUnavailable {
		t.Fatalf("info = %+v, want %s", info, errinfo.CodeHostUnavailable)
	}
	if !info.Retryable {
		t.Fatal("host unavailability should be retryable")
	}
}

func TestProviderKeyLifecycle(t *testing.T) {
	t.Setenv("LEXREVIEW_DATA_DIR", t.TempDir())
	t.Setenv("LEXREVIEW_OPENAI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	eng, err := New(testHost())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	statusAny, info := eng.ProviderGetStatus(ctx, nil)
	if info != nil {
		t.Fatalf("ProviderGetStatus: %+v", info)
	}
	status := statusAny.(map[string]any)
	if status["configured"] != false || status["source"] != "none" {
		t.Fatalf("status = %v", status)
	}

	// Without a key, a chat turn reports the provider as unconfigured
	// instead of attempting a request.
	primeAny, info := eng.ChatPrime(ctx, json.RawMessage(`{"content":"doc"}`))
	if info != nil {
		t.Fatalf("ChatPrime: %+v", info)
	}
	id := primeAny.(map[string]any)["conversation_id"].(string)
	_, info = eng.ChatSend(ctx, json.RawMessage(`{"prompt":"hi","conversation_id":"`+id+`"}`))
	if info == nil || info.ErrorCode != errinfo.CodeProviderNotConfigured {
		t.Fatalf("info = %+v, want %s", info, errinfo.CodeProviderNotConfigured)
	}

	if _, info := eng.ProviderSetKey(ctx, json.RawMessage(`{"api_key":"sk-test"}`)); info != nil {
		t.Fatalf("ProviderSetKey: %+v", info)
	}
	statusAny, _ = eng.ProviderGetStatus(ctx, nil)
	status = statusAny.(map[string]any)
	if status["configured"] != true || status["source"] != "stored" {
		t.Fatalf("status after set = %v", status)
	}

	if _, info := eng.ProviderClearKey(ctx, nil); info != nil {
		t.Fatalf("ProviderClearKey: %+v", info)
	}
	statusAny, _ = eng.ProviderGetStatus(ctx, nil)
	status = statusAny.(map[string]any)
	if status["configured"] != false {
		t.Fatalf("status after clear = %v", status)
	}
}

func TestApplyActionWithoutRecommendation(t *testing.T) {
	eng := newTestEngine(t, testHost(), conversation.NewFakeClient())
	ctx := context.Background()

	if _, info := eng.ReviewScan(ctx, nil); info != nil {
		t.Fatalf("ReviewScan: %+v", info)
	}
	_, info := eng.ReviewApplyAction(ctx, json.RawMessage(`{"action":"accept"}`))
	if info == nil || info.ErrorCode != errinfo.CodeValidationFailed {
		t.Fatalf("info = %+v, want %s", info, errinfo.CodeValidationFailed)
	}
}

func TestApplyActionUnknownAction(t *testing.T) {
	client := conversation.NewFakeClient(
		llm.ChatResponse{Content: recommendationJSON, FinishReason: "stop"},
	)
	eng := newTestEngine(t, testHost(), client)
	ctx := context.Background()

	if _, info := eng.ReviewScan(ctx, nil); info != nil {
		t.Fatalf("ReviewScan: %+v", info)
	}
	if _, info := eng.ReviewStart(ctx, nil); info != nil {
		t.Fatalf("ReviewStart: %+v", info)
	}
	_, info := eng.ReviewApplyAction(ctx, json.RawMessage(`{"action":"escalate"}`))
	if info == nil || info.ErrorCode != errinfo.CodeValidationFailed {
		t.Fatalf("info = %+v, want %s", info, errinfo.CodeValidationFailed)
	}
}
