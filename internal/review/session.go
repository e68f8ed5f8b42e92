// Package review drives the section-by-section review loop: scan the
// document, prime a conversation with its text, analyse each redlined
// section through the reasoning service (resolving tool rounds along the
// way), and apply reviewer decisions as anchored comments.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"lexreview/engine/internal/annotate"
	"lexreview/engine/internal/conversation"
	"lexreview/engine/internal/document"
	"lexreview/engine/internal/logging"
	"lexreview/engine/internal/redline"
	"lexreview/engine/internal/tools"
)

// State of the review loop.
type State string

const (
	StateScanning     State = "scanning"
	StateNoRedlines   State = "no_redlines"
	StateSectionReady State = "section_ready"
	StateReviewing    State = "reviewing"
	StateComplete     State = "complete"
	StateEnded        State = "ended"
)

// Reviewer decisions on a recommendation card.
const (
	ActionAccept            = "accept"
	ActionReject            = "reject"
	ActionInsertAlternative = "insert_alternative"
)

// DefaultMaxToolRounds bounds how many tool rounds one logical turn may
// take before the engine gives up on it.
const DefaultMaxToolRounds = 8

// couldNotCompleteReply is surfaced when the reasoning service keeps
// requesting tools past the round bound.
const couldNotCompleteReply = "The assistant could not complete this request: it kept requesting document tools without reaching an answer. Please try again."

var (
	// ErrSessionEnded rejects operations after an explicit end.
	ErrSessionEnded = errors.New("review session ended")
	// ErrNotScanned rejects review operations before the initial scan.
	ErrNotScanned = errors.New("document not scanned yet")
	// ErrNoRecommendation rejects card actions when no recommendation is
	// pending.
	ErrNoRecommendation = errors.New("no recommendation pending")
	// ErrUnknownAction rejects card actions outside the accept, reject and
	// insert-alternative set.
	ErrUnknownAction = errors.New("unknown review action")
)

// Config tunes a session.
type Config struct {
	MaxToolRounds int
	BodyCap       int
	CommentPrefix string
	Logger        *slog.Logger
}

// ScanResult summarizes the initial document scan.
type ScanResult struct {
	Sections       []redline.RedlinedSection `json:"sections"`
	TotalChanges   int                       `json:"total_changes"`
	ConversationID string                    `json:"conversation_id"`
	State          State                     `json:"state"`
}

// Analysis is the outcome of analysing one section: a structured
// recommendation when the reply parses as one, the raw reply otherwise.
type Analysis struct {
	SectionIndex   int             `json:"section_index"`
	SectionTotal   int             `json:"section_total"`
	SectionTitle   string          `json:"section_title,omitempty"`
	Reply          string          `json:"reply,omitempty"`
	Recommendation *Recommendation `json:"recommendation,omitempty"`
	Done           bool            `json:"done"`
}

// ApplyResult reports an applied card action.
type ApplyResult struct {
	Message  string          `json:"message"`
	Anchor   annotate.Result `json:"anchor"`
	Complete bool            `json:"complete"`
}

// Session owns one review of one document. All mutable state lives on the
// session instance; construct one per review and End it when done.
type Session struct {
	host       document.Host
	conv       *conversation.Manager
	dispatcher *tools.Dispatcher
	segmenter  *redline.Segmenter
	logger     *slog.Logger

	maxToolRounds int
	bodyCap       int
	commentPrefix string

	mu             sync.Mutex
	state          State
	conversationID string
	sections       []redline.RedlinedSection
	current        int
	lastRec        *Recommendation
	ended          bool
}

// NewSession builds a session over one document host.
func NewSession(host document.Host, conv *conversation.Manager, dispatcher *tools.Dispatcher, segmenter *redline.Segmenter, cfg Config) *Session {
	if cfg.MaxToolRounds < 1 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	if cfg.BodyCap < 1 {
		cfg.BodyCap = tools.DefaultBodyCap
	}
	if cfg.CommentPrefix == "" {
		cfg.CommentPrefix = "AI Review"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	return &Session{
		host:          host,
		conv:          conv,
		dispatcher:    dispatcher,
		segmenter:     segmenter,
		logger:        cfg.Logger,
		maxToolRounds: cfg.MaxToolRounds,
		bodyCap:       cfg.BodyCap,
		commentPrefix: cfg.CommentPrefix,
		state:         StateScanning,
	}
}

// Scan reconciles tracked edits and reads the body text (the two reads are
// independent and issued concurrently), then primes a conversation with the
// document so the first analysis turn starts from an idle context.
func (s *Session) Scan(ctx context.Context) (ScanResult, error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return ScanResult{}, ErrSessionEnded
	}
	if s.state != StateScanning {
		sections := s.sections
		result := ScanResult{Sections: sections, TotalChanges: redline.TotalChanges(sections), ConversationID: s.conversationID, State: s.state}
		s.mu.Unlock()
		return result, nil
	}
	s.mu.Unlock()

	type reconcileOut struct {
		sections []redline.RedlinedSection
		err      error
	}
	type bodyOut struct {
		text string
		err  error
	}
	reconcileCh := make(chan reconcileOut, 1)
	bodyCh := make(chan bodyOut, 1)
	go func() {
		resolved, err := redline.Reconcile(ctx, s.host, s.segmenter)
		reconcileCh <- reconcileOut{sections: redline.Group(resolved), err: err}
	}()
	go func() {
		text, err := s.host.BodyText(ctx)
		bodyCh <- bodyOut{text: text, err: err}
	}()
	reconciled := <-reconcileCh
	body := <-bodyCh
	if reconciled.err != nil {
		return ScanResult{}, fmt.Errorf("reconcile tracked edits: %w", reconciled.err)
	}
	if body.err != nil {
		return ScanResult{}, fmt.Errorf("read document body: %w", body.err)
	}
	bodyText := body.text
	if len(bodyText) > s.bodyCap {
		bodyText = bodyText[:s.bodyCap] + tools.TruncationMarker
	}

	conversationID := s.conv.Prime(PrimeContent(bodyText))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		// The session was ended while priming; release the conversation
		// that would otherwise linger in the manager.
		_ = s.conv.End(conversationID)
		return ScanResult{}, ErrSessionEnded
	}
	s.sections = reconciled.sections
	s.conversationID = conversationID
	s.current = 0
	if len(s.sections) == 0 {
		s.state = StateNoRedlines
	} else {
		s.state = StateSectionReady
	}
	total := redline.TotalChanges(s.sections)
	s.logger.Info("review.scan_complete",
		"sections", len(s.sections),
		"total_changes", total,
		"conversation_id", conversationID,
		"state", string(s.state))
	return ScanResult{
		Sections:       s.sections,
		TotalChanges:   total,
		ConversationID: conversationID,
		State:          s.state,
	}, nil
}

// StartReview moves to the first section and analyses it.
func (s *Session) StartReview(ctx context.Context) (Analysis, error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return Analysis{}, ErrSessionEnded
	}
	if s.state == StateScanning {
		s.mu.Unlock()
		return Analysis{}, ErrNotScanned
	}
	if s.state == StateNoRedlines || len(s.sections) == 0 {
		s.mu.Unlock()
		return Analysis{Done: true}, nil
	}
	s.current = 0
	s.state = StateReviewing
	s.mu.Unlock()
	return s.AnalyzeSection(ctx)
}

// AnalyzeSection runs the analysis prompt for the current section through
// the conversation, resolving any tool rounds, and parses the reply.
func (s *Session) AnalyzeSection(ctx context.Context) (Analysis, error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return Analysis{}, ErrSessionEnded
	}
	if s.state == StateScanning {
		s.mu.Unlock()
		return Analysis{}, ErrNotScanned
	}
	index := s.current
	total := len(s.sections)
	if index >= total {
		s.state = StateComplete
		s.mu.Unlock()
		return Analysis{SectionIndex: index, SectionTotal: total, Done: true}, nil
	}
	section := s.sections[index]
	conversationID := s.conversationID
	s.mu.Unlock()

	prompt := SectionPrompt(section, index, total)
	reply, newID, err := s.send(ctx, conversationID, prompt)
	if err != nil {
		return Analysis{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = newID
	analysis := Analysis{
		SectionIndex: index,
		SectionTotal: total,
		SectionTitle: section.SectionTitle,
		Reply:        reply,
	}
	if rec, ok := ParseRecommendation(reply); ok {
		s.lastRec = rec
		analysis.Recommendation = rec
	} else {
		s.lastRec = nil
	}
	s.logger.Info("review.section_analyzed",
		"section_index", index,
		"section_number", section.SectionNumber,
		"structured", analysis.Recommendation != nil)
	return analysis, nil
}

// send runs one logical turn: a prompt, then as many tool rounds as the
// model requests, bounded by maxToolRounds.
func (s *Session) send(ctx context.Context, conversationID, prompt string) (string, string, error) {
	id := conversationID
	turn, err := s.conv.Send(ctx, id, prompt)
	if err != nil {
		return "", id, err
	}
	id = turn.ConversationID
	rounds := 0
	for len(turn.ToolRequests) > 0 {
		rounds++
		if rounds > s.maxToolRounds {
			s.logger.Warn("review.tool_rounds_exceeded", "conversation_id", id, "rounds", rounds)
			return couldNotCompleteReply, id, nil
		}
		results := s.dispatcher.ExecuteAll(ctx, turn.ToolRequests)
		turn, err = s.conv.Resume(ctx, id, results)
		if err != nil {
			return "", id, err
		}
		id = turn.ConversationID
	}
	return turn.Reply, id, nil
}

// ApplyAction applies a reviewer decision for the section under review:
// synthesizes the comment, anchors it on the section's first edit, and
// advances to the next section. On anchoring failure the index and pending
// recommendation are left untouched so the action can be retried.
func (s *Session) ApplyAction(ctx context.Context, action string, altIndex int) (ApplyResult, error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return ApplyResult{}, ErrSessionEnded
	}
	rec := s.lastRec
	index := s.current
	if rec == nil || index >= len(s.sections) {
		s.mu.Unlock()
		return ApplyResult{}, ErrNoRecommendation
	}
	section := s.sections[index]
	s.mu.Unlock()

	comment, message, err := s.composeComment(rec, action, altIndex)
	if err != nil {
		return ApplyResult{}, err
	}

	req := annotate.Request{
		SectionTitle:  rec.SectionTitle,
		SectionNumber: rec.SectionNumber,
		CommentText:   comment,
	}
	if len(section.Changes) > 0 {
		first := section.Changes[0]
		req.EditText = first.Text
		req.ParagraphContext = first.ParagraphContext
		if req.SectionNumber == "" {
			req.SectionNumber = first.SectionNumber
		}
	}
	result := annotate.OnEdit(ctx, s.host, req)
	if !result.OK {
		s.logger.Warn("review.annotate_failed",
			"section_index", index,
			"section_number", section.SectionNumber,
			"error", result.Error)
		return ApplyResult{Anchor: result}, fmt.Errorf("could not anchor comment in section %q: %s", rec.SectionTitle, result.Error)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current++
	s.lastRec = nil
	complete := s.current >= len(s.sections)
	if complete {
		s.state = StateComplete
	}
	s.logger.Info("review.action_applied",
		"action", action,
		"section_index", index,
		"matches", result.Matches,
		"complete", complete)
	return ApplyResult{Message: message, Anchor: result, Complete: complete}, nil
}

func (s *Session) composeComment(rec *Recommendation, action string, altIndex int) (string, string, error) {
	switch action {
	case ActionAccept:
		body := rec.CommentDraft
		if body == "" {
			body = rec.Reasoning
		}
		comment := fmt.Sprintf("%s: ACCEPT - %s", s.commentPrefix, body)
		return comment, fmt.Sprintf("Accept comment added to %s.", rec.SectionTitle), nil
	case ActionReject:
		comment := fmt.Sprintf("%s: REJECT - %s", s.commentPrefix, rec.Reasoning)
		return comment, fmt.Sprintf("Reject comment added to %s.", rec.SectionTitle), nil
	case ActionInsertAlternative:
		if altIndex < 0 || altIndex >= len(rec.AlternativeLanguageOptions) {
			return "", "", fmt.Errorf("no alternative language option at index %d", altIndex)
		}
		alt := rec.AlternativeLanguageOptions[altIndex]
		comment := fmt.Sprintf("%s: ALTERNATIVE - %s: %q", s.commentPrefix, alt.Label, alt.Text)
		return comment, fmt.Sprintf("Alternative %d comment added to %s.", altIndex+1, rec.SectionTitle), nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

// EndSession deletes the conversation context and puts the session into its
// absorbing ended state. Ending twice is a no-op.
func (s *Session) EndSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return nil
	}
	if s.conversationID != "" {
		if err := s.conv.End(s.conversationID); err != nil && !errors.Is(err, conversation.ErrNotFound) {
			return err
		}
	}
	s.ended = true
	s.conversationID = ""
	s.state = StateEnded
	s.logger.Info("review.session_ended")
	return nil
}

// State reports the current review state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConversationID reports the primed conversation id, empty after end.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Sections returns the redlined sections found by the scan.
func (s *Session) Sections() []redline.RedlinedSection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]redline.RedlinedSection, len(s.sections))
	copy(out, s.sections)
	return out
}
