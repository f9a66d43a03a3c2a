package planning

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
)

var (
	ErrDraftNotReady      = errors.New("plan draft is not ready for approval")
	ErrDraftNotCollecting = errors.New("plan draft is not collecting answers")
	ErrDraftNotActive     = errors.New("plan draft is no longer active")
)

const (
	maxAnswerText = 600
	maxAnswerID   = 80
	revisionLabel = "Plan revision request:"
)

// ValidationError is a malformed request against a draft.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConstraintViolation blocks approval while the proposal breaks the contract.
type ConstraintViolation struct {
	Violations []string
}

func (e *ConstraintViolation) Error() string {
	return fmt.Sprintf("plan violates %d constraint(s): %s", len(e.Violations), strings.Join(e.Violations, "; "))
}

// Outcome is how a planning round left the draft.
type Outcome string

const (
	OutcomeQuestions     Outcome = "questions"
	OutcomeClarification Outcome = "clarification"
	OutcomeDraftReady    Outcome = "draft_ready"
)

// RoundResult is the output of one planner round.
type RoundResult struct {
	RoundCount            int
	Slots                 mix.Slots
	Confidence            float64
	Contract              mix.Contract
	Questions             []mix.Question
	Proposal              *mix.Proposal
	Violations            []string
	PendingClarifications []string
	RoundLimitReached     bool
}

func (r RoundResult) Outcome() Outcome {
	switch {
	case r.Proposal != nil:
		return OutcomeDraftReady
	case len(r.PendingClarifications) > 0:
		return OutcomeClarification
	default:
		return OutcomeQuestions
	}
}

// Machine owns every status transition of a plan draft. It mutates the
// draft in memory; callers persist it.
type Machine struct {
	now func() time.Time
}

func NewMachine() *Machine { return &Machine{now: time.Now} }

// NewMachineWithClock is used by tests that assert timestamps.
func NewMachineWithClock(now func() time.Time) *Machine { return &Machine{now: now} }

// SubmitAnswers validates and merges one batch of question answers.
func (m *Machine) SubmitAnswers(d *mix.PlanDraft, answers []mix.Answer) error {
	if d.Status != mix.DraftCollecting {
		if !d.Active() {
			return ErrDraftNotActive
		}
		return ErrDraftNotCollecting
	}
	if len(answers) == 0 {
		return &ValidationError{Field: "answers", Message: "at least one answer is required"}
	}
	known := map[string]mix.Question{}
	for _, q := range d.Questions {
		known[q.ID] = q
	}
	clean := make([]mix.Answer, 0, len(answers))
	for i, a := range answers {
		a.QuestionID = truncate(strings.TrimSpace(a.QuestionID), maxAnswerID)
		a.SelectedOptionID = truncate(strings.TrimSpace(a.SelectedOptionID), maxAnswerID)
		a.OtherText = truncate(strings.TrimSpace(a.OtherText), maxAnswerText)
		field := fmt.Sprintf("answers[%d]", i)
		if a.QuestionID == "" {
			return &ValidationError{Field: field, Message: "question_id is required"}
		}
		q, ok := known[a.QuestionID]
		if !ok && a.QuestionID != mix.SlotSongs {
			return &ValidationError{Field: field, Message: fmt.Sprintf("unknown question_id %q", a.QuestionID)}
		}
		if a.SelectedOptionID == "" && a.OtherText == "" {
			return &ValidationError{Field: field, Message: "selected_option_id or other_text is required"}
		}
		if a.SelectedOptionID != "" && ok && !validOption(q, a.SelectedOptionID) {
			return &ValidationError{Field: field, Message: fmt.Sprintf("unknown option %q for %s", a.SelectedOptionID, a.QuestionID)}
		}
		clean = append(clean, a)
	}

	merged := cloneAnswers(d.Answers.Data())
	now := m.now().UTC()
	for _, a := range clean {
		a.AnsweredAt = now
		merged[a.QuestionID] = a
	}
	d.Answers = jsonAnswers(merged)
	return nil
}

func validOption(q mix.Question, id string) bool {
	if q.HasOption(id) || id == mix.OptionOther {
		return true
	}
	return q.ID == mix.SlotSongs && id == OptionRegenerateSuggestions
}

// IsRegenerateOnly reports an answer batch that only asks for fresh song
// suggestions. Such a batch does not count as an answer round.
func IsRegenerateOnly(answers []mix.Answer) bool {
	if len(answers) == 0 {
		return false
	}
	for _, a := range answers {
		if a.QuestionID != mix.SlotSongs || a.SelectedOptionID != OptionRegenerateSuggestions || strings.TrimSpace(a.OtherText) != "" {
			return false
		}
	}
	return true
}

// RegenerateSongSuggestions records the canonical regenerate answer and
// reopens a ready draft for collection.
func (m *Machine) RegenerateSongSuggestions(d *mix.PlanDraft) error {
	switch d.Status {
	case mix.DraftCollecting, mix.DraftReady:
	case mix.DraftApproved:
		return ErrDraftNotCollecting
	default:
		return ErrDraftNotActive
	}
	merged := cloneAnswers(d.Answers.Data())
	merged[mix.SlotSongs] = mix.Answer{
		QuestionID:       mix.SlotSongs,
		SelectedOptionID: OptionRegenerateSuggestions,
		AnsweredAt:       m.now().UTC(),
	}
	d.Answers = jsonAnswers(merged)
	d.Status = mix.DraftCollecting
	return nil
}

// Approve freezes a ready, violation-free proposal.
func (m *Machine) Approve(d *mix.PlanDraft) error {
	if d.Status != mix.DraftReady {
		if !d.Active() {
			return ErrDraftNotActive
		}
		return ErrDraftNotReady
	}
	if len(d.Violations) > 0 {
		return &ConstraintViolation{Violations: append([]string(nil), d.Violations...)}
	}
	if d.Proposal.Data() == nil {
		return ErrDraftNotReady
	}
	now := m.now().UTC()
	d.Status = mix.DraftApproved
	d.ApprovedAt = &now
	return nil
}

// Revise appends a revision request to the draft's effective prompt and
// reopens it. Slot provenance and answers are kept.
func (m *Machine) Revise(d *mix.PlanDraft, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return &ValidationError{Field: "content", Message: "revision text is required"}
	}
	if !d.Active() {
		return ErrDraftNotActive
	}
	d.Prompt = fmt.Sprintf("%s\n\n%s\n%s", strings.TrimSpace(d.Prompt), revisionLabel, text)
	d.PendingClarifications = nil
	d.Status = mix.DraftCollecting
	d.ApprovedAt = nil
	return nil
}

// Supersede retires an active draft. Superseding twice is a no-op.
func (m *Machine) Supersede(d *mix.PlanDraft) {
	if d.Active() {
		d.Status = mix.DraftSuperseded
	}
}

// ApplyRound stores a planner round on the draft and moves it to the state
// the round reached.
func (m *Machine) ApplyRound(d *mix.PlanDraft, r RoundResult) (Outcome, error) {
	if !d.Active() {
		return "", ErrDraftNotActive
	}
	d.RoundCount = r.RoundCount
	d.Slots = jsonSlots(r.Slots)
	d.ConfidenceScore = r.Confidence
	d.Contract = jsonContract(r.Contract)
	d.RoundLimitReached = d.RoundLimitReached || r.RoundLimitReached

	out := r.Outcome()
	switch out {
	case OutcomeDraftReady:
		p := *r.Proposal
		d.Proposal = jsonProposal(&p)
		d.Questions = nil
		d.Violations = append([]string(nil), r.Violations...)
		d.PendingClarifications = nil
		d.Status = mix.DraftReady
	case OutcomeClarification:
		d.Questions = nil
		d.Violations = nil
		d.PendingClarifications = append([]string(nil), r.PendingClarifications...)
		d.Status = mix.DraftCollecting
	default:
		d.Questions = append([]mix.Question(nil), r.Questions...)
		d.Violations = nil
		d.PendingClarifications = nil
		d.Status = mix.DraftCollecting
	}
	d.ApprovedAt = nil
	return out, nil
}

// ReopenForClarification sends an approved draft back to collecting when
// execution finds unresolved clarifications.
func (m *Machine) ReopenForClarification(d *mix.PlanDraft, clarifications []string) {
	d.PendingClarifications = append([]string(nil), clarifications...)
	d.Status = mix.DraftCollecting
	d.ApprovedAt = nil
}

func cloneAnswers(a mix.Answers) mix.Answers {
	out := make(mix.Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

func jsonAnswers(a mix.Answers) datatypes.JSONType[mix.Answers] { return datatypes.NewJSONType(a) }
func jsonSlots(s mix.Slots) datatypes.JSONType[mix.Slots]       { return datatypes.NewJSONType(s) }
func jsonContract(c mix.Contract) datatypes.JSONType[mix.Contract] {
	return datatypes.NewJSONType(c)
}
func jsonProposal(p *mix.Proposal) datatypes.JSONType[*mix.Proposal] {
	return datatypes.NewJSONType(p)
}
