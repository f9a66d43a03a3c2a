package planning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/platform/envutil"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
)

type Settings struct {
	MinRounds              int
	MaxRounds              int
	ConfidenceThreshold    float64
	DefaultSuggestionCount int
}

func SettingsFromEnv() Settings {
	maxRounds := envutil.IntRange("PLANNING_MAX_ROUNDS", 5, 1, 10)
	threshold := envutil.Float("PLANNING_CONFIDENCE_THRESHOLD", 0.78)
	if threshold < 0.2 {
		threshold = 0.2
	}
	if threshold > 0.99 {
		threshold = 0.99
	}
	return Settings{
		MinRounds:              envutil.IntRange("PLANNING_MIN_ROUNDS", 1, 0, maxRounds),
		MaxRounds:              maxRounds,
		ConfidenceThreshold:    threshold,
		DefaultSuggestionCount: envutil.IntRange("AI_GUIDED_DEFAULT_SONG_SUGGESTION_COUNT", 5, 1, 50),
	}
}

// SongSuggester proposes songs for prompts that name an artist or a mood
// but no explicit list.
type SongSuggester interface {
	SuggestSongs(ctx context.Context, prompt, artist string, count int) ([]string, error)
}

// IntentInterpreter reads a free-text revision into a structured Intent.
type IntentInterpreter interface {
	InterpretRevision(ctx context.Context, sourcePrompt, revision string, songs []string) (*Intent, error)
}

// Assistant is the optional AI side of planning.
type Assistant interface {
	SongSuggester
	IntentInterpreter
}

// UnavailableError pauses a round until the AI side has capacity again.
type UnavailableError struct {
	Reason     string
	RetryAfter time.Duration
	Err        error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("planner unavailable: %s", e.Reason)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func IsUnavailable(err error) (*UnavailableError, bool) {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// RoundInput is the user turn a round reacts to.
type RoundInput struct {
	Action   string
	Answers  []mix.Answer
	Revision string
}

type Planner struct {
	log       *logger.Logger
	settings  Settings
	bank      *QuestionBank
	assistant Assistant
	now       func() time.Time
}

// NewPlanner builds a planner. assistant may be nil, in which case rounds
// are fully deterministic and song suggestions are skipped.
func NewPlanner(log *logger.Logger, settings Settings, bank *QuestionBank, assistant Assistant) *Planner {
	return &Planner{
		log:       log.With("service", "Planner"),
		settings:  settings,
		bank:      bank,
		assistant: assistant,
		now:       time.Now,
	}
}

func (p *Planner) Settings() Settings { return p.settings }

// SourcePrompt strips appended revision requests from a draft prompt.
func SourcePrompt(prompt string) string {
	if i := strings.Index(prompt, "\n\n"+revisionLabel); i >= 0 {
		return strings.TrimSpace(prompt[:i])
	}
	return strings.TrimSpace(prompt)
}

func (p *Planner) maxRounds(d *mix.PlanDraft) int {
	if d.MaxRounds > 0 {
		return d.MaxRounds
	}
	return p.settings.MaxRounds
}

// Round runs one planning round over the draft's current state and returns
// the result for Machine.ApplyRound. The draft is not modified.
func (p *Planner) Round(ctx context.Context, d *mix.PlanDraft, in RoundInput) (RoundResult, error) {
	roundCount := d.RoundCount
	switch in.Action {
	case mix.ActionAnswer, mix.ActionRevisePlan, mix.ActionFreeformRevision:
		if !IsRegenerateOnly(in.Answers) {
			roundCount++
		}
	}

	answers := d.Answers.Data()
	prevSlots := d.Slots.Data()
	source := SourcePrompt(d.Prompt)
	revision := strings.TrimSpace(in.Revision)

	var intent *Intent
	if revision != "" && p.assistant != nil {
		it, err := p.assistant.InterpretRevision(ctx, source, revision, prevSlots[mix.SlotSongs].Songs)
		if err != nil {
			if _, ok := IsUnavailable(err); ok {
				return RoundResult{}, err
			}
			p.log.Warn("revision interpreter failed; using heuristics", "draft_id", d.ID, "error", err)
		} else {
			intent = it
		}
	}

	selected, _ := answerValue(answers, mix.SlotSongs)
	songs, songSource, err := p.initialSongs(ctx, source, selected == OptionRegenerateSuggestions)
	if err != nil {
		return RoundResult{}, err
	}
	slots, _ := ResolveSlots(SlotInput{
		Prompt:      d.Prompt,
		Answers:     answers,
		Previous:    prevSlots,
		Songs:       songs,
		SongsSource: songSource,
	})

	contract := d.Contract.Data()
	var songsetChange bool
	var requested []string
	if revision != "" {
		var rm Removal
		contract, rm = RemoveFromContract(contract, revision, prevSlots[mix.SlotSongs].Songs)
		if intent != nil {
			songsetChange = intent.SongsetChange
			requested = NormalizeSongs(intent.RequestedSongs)
		} else {
			songsetChange = RequestsSongsetChange(revision)
		}
		prev, prevSource, prevConf := previousSongs(prevSlots)
		if !rm.RequirementOnly {
			prev = withoutSongs(prev, rm.Songs)
		}
		switch {
		case answeredInBatch(in.Answers, mix.SlotSongs):
		case !songsetChange && len(prev) > 0:
			if prevSource == mix.SourceNone {
				prevSource = mix.SourcePrevious
			}
			slots[mix.SlotSongs] = newSlot(mix.SlotSongs, "", prev, prevSource, maxf(0.78, prevConf))
		case len(requested) > 0:
			slots[mix.SlotSongs] = newSlot(mix.SlotSongs, "", requested, mix.SourceExplicit, 0.88)
		case len(rm.Songs) > 0 && len(prev) > 0:
			slots[mix.SlotSongs] = newSlot(mix.SlotSongs, "", prev, prevSource, maxf(0.78, prevConf))
		}
	}

	base := slots[mix.SlotSongs].Songs
	if in.Action == "" || in.Action == mix.ActionStartNewDraft {
		// Intake only collects: the first round always asks.
		contract = MergeContract(contract, ExtractContract(source, base, nil), p.now())
		return RoundResult{
			RoundCount: roundCount,
			Slots:      slots,
			Confidence: OverallConfidence(slots),
			Contract:   contract,
			Questions:  p.questions(slots, answers, roundCount),
		}, nil
	}
	if revision != "" {
		contract = MergeContract(contract, ExtractContract(revision, base, intent), p.now())
	}

	if n := contract.SongCount; n > 0 && len(base) < n && p.assistant != nil {
		artist, _ := ArtistAndCount(d.Prompt, p.settings.DefaultSuggestionCount)
		if artist == "" {
			artist = DominantArtist(base)
		}
		extra, err := p.suggest(ctx, d.Prompt, artist, n)
		if err != nil {
			return RoundResult{}, err
		}
		base = MergeSongs(base, extra)
	}

	var extraRequired []string
	if songsetChange {
		extraRequired = requested
	}
	constrained, problems := ApplySongConstraints(base, contract, extraRequired)
	if !contract.Empty() {
		if len(constrained) > 0 {
			SetSongs(slots, constrained, mix.SourceConstraintContract, 0.86)
		} else if contract.SongCount > 0 {
			slots[mix.SlotSongs] = newSlot(mix.SlotSongs, "", nil, mix.SourceConstraintContract, 0)
		}
	}
	conf := OverallConfidence(slots)

	res := RoundResult{
		RoundCount: roundCount,
		Slots:      slots,
		Confidence: conf,
		Contract:   contract,
	}
	ready := roundCount >= p.settings.MinRounds && SlotsComplete(slots) && conf >= p.settings.ConfidenceThreshold
	capped := roundCount >= p.maxRounds(d)
	if ready || capped {
		prop := BuildProposal(ProposalInput{
			Prompt:           d.Prompt,
			Slots:            slots,
			Contract:         contract,
			AdjustmentPolicy: d.AdjustmentPolicy,
		})
		res.Proposal = &prop
		res.Violations = append(problems, ValidatePlan(contract, MergeSongs(prop.Songs()), prop.ProvisionalTimeline)...)
		res.RoundLimitReached = capped && !ready
		p.log.Debug("planning round produced proposal", "draft_id", d.ID, "round", roundCount, "violations", len(res.Violations))
		return res, nil
	}
	if len(problems) > 0 {
		res.PendingClarifications = problems
		return res, nil
	}
	res.Questions = p.questions(slots, answers, roundCount)
	return res, nil
}

func (p *Planner) questions(slots mix.Slots, answers mix.Answers, roundCount int) []mix.Question {
	ids := MustAsk(slots, answers, roundCount, p.settings.MinRounds)
	if len(ids) == 0 {
		for _, id := range mix.SlotOrder {
			if slots[id].Confidence < p.settings.ConfidenceThreshold {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		ids = []string{mix.SlotSongs}
	}
	return p.bank.Build(ids)
}

func (p *Planner) initialSongs(ctx context.Context, prompt string, force bool) ([]string, string, error) {
	explicit := ParseSongList(prompt)
	if !force && len(explicit) > 0 {
		return explicit, mix.SourceExplicit, nil
	}
	if p.assistant != nil {
		artist, count := ArtistAndCount(prompt, p.settings.DefaultSuggestionCount)
		suggested, err := p.suggest(ctx, prompt, artist, count)
		if err != nil {
			return nil, "", err
		}
		if len(suggested) > 0 {
			return suggested, mix.SourceSuggested, nil
		}
	}
	if len(explicit) > 0 {
		return explicit, mix.SourceExplicit, nil
	}
	return nil, mix.SourceNone, nil
}

func (p *Planner) suggest(ctx context.Context, prompt, artist string, count int) ([]string, error) {
	if count <= 0 {
		count = p.settings.DefaultSuggestionCount
	}
	out, err := p.assistant.SuggestSongs(ctx, prompt, artist, count)
	if err != nil {
		if _, ok := IsUnavailable(err); ok {
			return nil, err
		}
		p.log.Warn("song suggestion failed", "error", err)
		return nil, nil
	}
	out = filterGeneric(NormalizeSongs(out))
	if len(out) > count {
		out = out[:count]
	}
	return out, nil
}

func answeredInBatch(answers []mix.Answer, id string) bool {
	for _, a := range answers {
		if a.QuestionID == id && (a.SelectedOptionID != "" || a.OtherText != "") {
			return true
		}
	}
	return false
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
