package planning

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testMachine() *Machine {
	return NewMachineWithClock(func() time.Time { return fixedNow })
}

func collectingDraft(t *testing.T) *mix.PlanDraft {
	t.Helper()
	bank, err := LoadQuestionBank()
	if err != nil {
		t.Fatalf("LoadQuestionBank: %v", err)
	}
	return &mix.PlanDraft{
		ID:        uuid.New(),
		Status:    mix.DraftCollecting,
		Prompt:    "Songs: Kesariya, Tum Hi Ho",
		MaxRounds: 5,
		Questions: datatypes.JSONSlice[mix.Question](bank.Build(mix.SlotOrder)),
	}
}

func readyDraft(violations ...string) *mix.PlanDraft {
	p := &mix.Proposal{Title: proposalTitle}
	return &mix.PlanDraft{
		ID:         uuid.New(),
		Status:     mix.DraftReady,
		Proposal:   datatypes.NewJSONType(p),
		Violations: datatypes.JSONSlice[string](violations),
	}
}

func TestSubmitAnswersValidation(t *testing.T) {
	cases := []struct {
		name    string
		answers []mix.Answer
		field   string
	}{
		{"empty batch", nil, "answers"},
		{"missing id", []mix.Answer{{SelectedOptionID: "balanced"}}, "answers[0]"},
		{"unknown question", []mix.Answer{{QuestionID: "tempo", SelectedOptionID: "fast"}}, "answers[0]"},
		{"no value", []mix.Answer{{QuestionID: mix.SlotEnergy}}, "answers[0]"},
		{"unknown option", []mix.Answer{{QuestionID: mix.SlotSongs, SelectedOptionID: OptionLooksCorrect}, {QuestionID: mix.SlotEnergy, SelectedOptionID: "chaotic"}}, "answers[1]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := collectingDraft(t)
			err := testMachine().SubmitAnswers(d, tc.answers)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tc.field {
				t.Fatalf("field = %q, want %q", ve.Field, tc.field)
			}
			if len(d.Answers.Data()) != 0 {
				t.Fatalf("answers were stored on failure")
			}
		})
	}
}

func TestSubmitAnswersMerges(t *testing.T) {
	d := collectingDraft(t)
	m := testMachine()
	if err := m.SubmitAnswers(d, []mix.Answer{{QuestionID: mix.SlotEnergy, SelectedOptionID: "balanced"}}); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	long := strings.Repeat("x", 700)
	if err := m.SubmitAnswers(d, []mix.Answer{
		{QuestionID: mix.SlotEnergy, SelectedOptionID: mix.OptionOther, OtherText: "slow then loud"},
		{QuestionID: " " + mix.SlotUseCase + " ", OtherText: long},
	}); err != nil {
		t.Fatalf("second batch: %v", err)
	}
	got := d.Answers.Data()
	if got[mix.SlotEnergy].OtherText != "slow then loud" {
		t.Fatalf("energy answer not replaced: %+v", got[mix.SlotEnergy])
	}
	if n := len([]rune(got[mix.SlotUseCase].OtherText)); n != maxAnswerText {
		t.Fatalf("other text length = %d", n)
	}
	if !got[mix.SlotUseCase].AnsweredAt.Equal(fixedNow) {
		t.Fatalf("answered_at = %v", got[mix.SlotUseCase].AnsweredAt)
	}
}

func TestSubmitAnswersStatus(t *testing.T) {
	d := readyDraft()
	if err := testMachine().SubmitAnswers(d, []mix.Answer{{QuestionID: mix.SlotSongs, SelectedOptionID: OptionLooksCorrect}}); !errors.Is(err, ErrDraftNotCollecting) {
		t.Fatalf("ready draft: %v", err)
	}
	d.Status = mix.DraftSuperseded
	if err := testMachine().SubmitAnswers(d, []mix.Answer{{QuestionID: mix.SlotSongs, SelectedOptionID: OptionLooksCorrect}}); !errors.Is(err, ErrDraftNotActive) {
		t.Fatalf("superseded draft: %v", err)
	}
}

func TestApproveGating(t *testing.T) {
	m := testMachine()

	d := collectingDraft(t)
	if err := m.Approve(d); !errors.Is(err, ErrDraftNotReady) {
		t.Fatalf("collecting: %v", err)
	}

	d = readyDraft("Expected 3 songs, but plan has 2 songs.")
	err := m.Approve(d)
	var cv *ConstraintViolation
	if !errors.As(err, &cv) || len(cv.Violations) != 1 {
		t.Fatalf("violations: %v", err)
	}
	if d.Status != mix.DraftReady || d.ApprovedAt != nil {
		t.Fatalf("draft changed on rejected approval: %+v", d)
	}

	d = readyDraft()
	d.Proposal = datatypes.NewJSONType[*mix.Proposal](nil)
	if err := m.Approve(d); !errors.Is(err, ErrDraftNotReady) {
		t.Fatalf("missing proposal: %v", err)
	}

	d = readyDraft()
	if err := m.Approve(d); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if d.Status != mix.DraftApproved || d.ApprovedAt == nil || !d.ApprovedAt.Equal(fixedNow) {
		t.Fatalf("approved draft = %+v", d)
	}
	if err := m.Approve(d); !errors.Is(err, ErrDraftNotReady) {
		t.Fatalf("double approve: %v", err)
	}

	d.Status = mix.DraftSuperseded
	if err := m.Approve(d); !errors.Is(err, ErrDraftNotActive) {
		t.Fatalf("superseded: %v", err)
	}
}

func TestRevise(t *testing.T) {
	m := testMachine()
	d := readyDraft()
	d.Prompt = "Songs: Kesariya, Tum Hi Ho"
	d.PendingClarifications = datatypes.JSONSlice[string]{"Need exactly 3 songs"}
	if err := m.Approve(d); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if err := m.Revise(d, "   "); err == nil {
		t.Fatalf("expected validation error for blank revision")
	}
	if err := m.Revise(d, "make it longer"); err != nil {
		t.Fatalf("revise: %v", err)
	}
	if d.Status != mix.DraftCollecting || d.ApprovedAt != nil || len(d.PendingClarifications) != 0 {
		t.Fatalf("revised draft = %+v", d)
	}
	want := "Songs: Kesariya, Tum Hi Ho\n\nPlan revision request:\nmake it longer"
	if d.Prompt != want {
		t.Fatalf("prompt = %q", d.Prompt)
	}
	if SourcePrompt(d.Prompt) != "Songs: Kesariya, Tum Hi Ho" {
		t.Fatalf("source prompt = %q", SourcePrompt(d.Prompt))
	}

	m.Supersede(d)
	if err := m.Revise(d, "again"); !errors.Is(err, ErrDraftNotActive) {
		t.Fatalf("revise superseded: %v", err)
	}
}

func TestApplyRoundOutcomes(t *testing.T) {
	m := testMachine()
	q := []mix.Question{{ID: mix.SlotEnergy, Options: []mix.QuestionOption{{ID: "balanced"}}}}

	d := collectingDraft(t)
	out, err := m.ApplyRound(d, RoundResult{RoundCount: 1, Questions: q})
	if err != nil || out != OutcomeQuestions {
		t.Fatalf("questions: %v %v", out, err)
	}
	if d.Status != mix.DraftCollecting || len(d.Questions) != 1 || d.RoundCount != 1 {
		t.Fatalf("draft = %+v", d)
	}

	out, _ = m.ApplyRound(d, RoundResult{RoundCount: 2, PendingClarifications: []string{"Missing required songs: X."}})
	if out != OutcomeClarification || len(d.Questions) != 0 || len(d.PendingClarifications) != 1 {
		t.Fatalf("clarification: %v %+v", out, d)
	}

	prop := &mix.Proposal{Title: proposalTitle}
	out, _ = m.ApplyRound(d, RoundResult{RoundCount: 3, Proposal: prop, Violations: []string{"v"}, RoundLimitReached: true})
	if out != OutcomeDraftReady || d.Status != mix.DraftReady || len(d.Violations) != 1 || !d.RoundLimitReached {
		t.Fatalf("draft ready: %v %+v", out, d)
	}
	prop.Title = "changed"
	if d.Proposal.Data().Title != proposalTitle {
		t.Fatalf("stored proposal aliases the round result")
	}

	d.Status = mix.DraftSuperseded
	if _, err := m.ApplyRound(d, RoundResult{}); !errors.Is(err, ErrDraftNotActive) {
		t.Fatalf("superseded: %v", err)
	}
}

func TestRegenerateSongSuggestions(t *testing.T) {
	m := testMachine()
	d := readyDraft()
	if err := m.RegenerateSongSuggestions(d); err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	a := d.Answers.Data()[mix.SlotSongs]
	if d.Status != mix.DraftCollecting || a.SelectedOptionID != OptionRegenerateSuggestions {
		t.Fatalf("draft = %+v answer = %+v", d, a)
	}
	if !IsRegenerateOnly([]mix.Answer{a}) {
		t.Fatalf("regenerate answer not recognised")
	}
	if IsRegenerateOnly([]mix.Answer{a, {QuestionID: mix.SlotEnergy, SelectedOptionID: "balanced"}}) {
		t.Fatalf("mixed batch treated as regenerate-only")
	}

	d.Status = mix.DraftApproved
	if err := m.RegenerateSongSuggestions(d); !errors.Is(err, ErrDraftNotCollecting) {
		t.Fatalf("approved: %v", err)
	}
}
