package errinfo

import "testing"

func TestProviderNotConfigured(t *testing.T) {
	err := ProviderNotConfigured(PhaseChat)
	if err.ErrorCode != CodeProviderNotConfigured {
		t.Fatalf("expected provider not configured")
	}
	if len(err.Actions) == 0 || err.Actions[0] != ActionOpenSettings {
		t.Fatalf("expected open_settings action")
	}
}

func TestNoAnchorFound(t *testing.T) {
	err := NoAnchorFound("7.1", "no anchor matched")
	if err.ErrorCode != CodeNoAnchorFound {
		t.Fatalf("expected no anchor found")
	}
	if err.SectionNumber != "7.1" {
		t.Fatalf("expected section number to be set")
	}
	if !err.Retryable {
		t.Fatalf("anchor failures must be retryable")
	}
}

func TestSessionHelpers(t *testing.T) {
	ended := SessionEnded("conv_1")
	if ended.ErrorCode != CodeSessionEnded || ended.ConversationID != "conv_1" {
		t.Fatalf("expected session ended payload")
	}
	busy := TurnInProgress("conv_1")
	if busy.ErrorCode != CodeTurnInProgress || !busy.Retryable {
		t.Fatalf("expected retryable turn-in-progress payload")
	}
	rounds := ToolRoundsExceeded("conv_1", 8)
	if rounds.ErrorCode != CodeToolRoundsExceeded || rounds.Detail == "" {
		t.Fatalf("expected tool rounds payload with detail")
	}
}
