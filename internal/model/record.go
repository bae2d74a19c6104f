package model

import (
	"fmt"
	"time"
)

// State tracks a record's progress through the pipeline
type State string

const (
	StateDiscovered State = "discovered"
	StateFetched    State = "fetched"
	StateVerified   State = "verified"
	StateSummarized State = "summarized"
	StateTranslated State = "translated"
	StateRefined    State = "refined"
	StateRanked     State = "ranked"
	StateExported   State = "exported"

	// Terminal side-branches, reachable from any non-terminal state
	StateRejected State = "rejected"
	StateFailed   State = "failed"
)

// stageOrder maps each forward state to its position in the pipeline.
// Rejected and Failed are not part of the forward order.
var stageOrder = map[State]int{
	StateDiscovered: 0,
	StateFetched:    1,
	StateVerified:   2,
	StateSummarized: 3,
	StateTranslated: 4,
	StateRefined:    5,
	StateRanked:     6,
	StateExported:   7,
}

// IsTerminal reports whether no further transition is allowed from s.
func (s State) IsTerminal() bool {
	return s == StateExported || s == StateRejected || s == StateFailed
}

// CanTransition reports whether moving from s to next is a legal
// transition: exactly one step forward, or a jump to a terminal
// side-branch from any non-terminal state.
func (s State) CanTransition(next State) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StateRejected || next == StateFailed {
		return true
	}
	from, ok := stageOrder[s]
	if !ok {
		return false
	}
	to, ok := stageOrder[next]
	if !ok {
		return false
	}
	return to == from+1
}

// NewsItemRecord is the aggregate tracking one candidate link for the
// lifetime of a single pipeline run. Stage outputs are attached as the
// record advances; a terminal record is never mutated again.
type NewsItemRecord struct {
	Candidate    CandidateLink       `json:"candidate"`
	Content      *ArticleContent     `json:"content,omitempty"`
	Verification *VerificationResult `json:"verification,omitempty"`
	Summary      *EnglishSummary     `json:"english_summary,omitempty"`
	Report       *ChineseReport      `json:"chinese_report,omitempty"`

	State           State     `json:"state"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	FailureReason   string    `json:"failure_reason,omitempty"`
	ProcessedAt     time.Time `json:"processed_at,omitempty"`
}

// NewRecord creates a record in the initial Discovered state.
func NewRecord(candidate CandidateLink) *NewsItemRecord {
	return &NewsItemRecord{
		Candidate: candidate,
		State:     StateDiscovered,
	}
}

// Advance moves the record one step forward in the pipeline order.
func (r *NewsItemRecord) Advance(next State) error {
	if !r.State.CanTransition(next) {
		return fmt.Errorf("illegal transition %s -> %s for %s", r.State, next, r.Candidate.URL)
	}
	r.State = next
	return nil
}

// Reject moves the record to the terminal Rejected state with the
// reason naming every failed acceptance predicate.
func (r *NewsItemRecord) Reject(reason string) error {
	if !r.State.CanTransition(StateRejected) {
		return fmt.Errorf("illegal transition %s -> %s for %s", r.State, StateRejected, r.Candidate.URL)
	}
	r.State = StateRejected
	r.RejectionReason = reason
	return nil
}

// Fail moves the record to the terminal Failed state, retaining the
// error text for audit.
func (r *NewsItemRecord) Fail(err error) error {
	if !r.State.CanTransition(StateFailed) {
		return fmt.Errorf("illegal transition %s -> %s for %s", r.State, StateFailed, r.Candidate.URL)
	}
	r.State = StateFailed
	if err != nil {
		r.FailureReason = err.Error()
	}
	return nil
}

// Transition is a stage-change event emitted by the pipeline for
// external progress reporting.
type Transition struct {
	InstitutionID string    `json:"institution_id"`
	URL           string    `json:"url"`
	From          State     `json:"from"`
	To            State     `json:"to"`
	Reason        string    `json:"reason,omitempty"`
	At            time.Time `json:"at"`
}
