// Package errinfo defines the structured error payloads carried in RPC
// error data, so the host can distinguish retryable conditions and offer the
// right recovery action.
package errinfo

import "fmt"

// ErrorInfo is the structured error payload.
type ErrorInfo struct {
	ErrorCode      string   `json:"error_code"`
	Phase          string   `json:"phase,omitempty"`
	Retryable      bool     `json:"retryable"`
	Actions        []string `json:"actions,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	SectionNumber  string   `json:"section_number,omitempty"`
	Detail         string   `json:"detail,omitempty"`
}

const (
	CodeHostUnavailable       = "HOST_UNAVAILABLE"
	CodeProviderNotConfigured = "PROVIDER_NOT_CONFIGURED"
	CodeProviderAuthFailed    = "PROVIDER_AUTH_FAILED"
	CodeProviderUnavailable   = "PROVIDER_UNAVAILABLE"
	CodeNoAnchorFound         = "NO_ANCHOR_FOUND"
	CodeUnknownTool           = "UNKNOWN_TOOL"
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeSessionEnded          = "SESSION_ENDED"
	CodeTurnInProgress        = "TURN_IN_PROGRESS"
	CodeToolRoundsExceeded    = "TOOL_ROUNDS_EXCEEDED"
)

const (
	ActionRetry        = "retry"
	ActionOpenSettings = "open_settings"
)

const (
	PhaseScan     = "scan"
	PhaseAnalysis = "analysis"
	PhaseAnnotate = "annotate"
	PhaseChat     = "chat"
	PhaseSession  = "session"
)

func HostUnavailable(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeHostUnavailable,
		Phase:     phase,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    detail,
	}
}

func ProviderNotConfigured(phase string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProviderNotConfigured,
		Phase:     phase,
		Retryable: false,
		Actions:   []string{ActionOpenSettings},
	}
}

func ProviderAuthFailed(phase string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProviderAuthFailed,
		Phase:     phase,
		Retryable: false,
		Actions:   []string{ActionOpenSettings},
	}
}

func ProviderUnavailable(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProviderUnavailable,
		Phase:     phase,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    detail,
	}
}

func NoAnchorFound(sectionNumber, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode:     CodeNoAnchorFound,
		Phase:         PhaseAnnotate,
		Retryable:     true,
		Actions:       []string{ActionRetry},
		SectionNumber: sectionNumber,
		Detail:        detail,
	}
}

func ValidationFailed(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeValidationFailed,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func SessionEnded(conversationID string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode:      CodeSessionEnded,
		Phase:          PhaseSession,
		Retryable:      false,
		ConversationID: conversationID,
	}
}

func TurnInProgress(conversationID string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode:      CodeTurnInProgress,
		Phase:          PhaseChat,
		Retryable:      true,
		Actions:        []string{ActionRetry},
		ConversationID: conversationID,
	}
}

func ToolRoundsExceeded(conversationID string, rounds int) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode:      CodeToolRoundsExceeded,
		Phase:          PhaseChat,
		Retryable:      true,
		Actions:        []string{ActionRetry},
		ConversationID: conversationID,
		Detail:         fmt.Sprintf("tool rounds exceeded the configured bound of %d", rounds),
	}
}
