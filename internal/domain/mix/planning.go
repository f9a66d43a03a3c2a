package mix

import "time"

// Slot ids.
const (
	SlotSongs   = "songs_set"
	SlotEnergy  = "energy_curve"
	SlotUseCase = "use_case"
)

var SlotOrder = []string{SlotSongs, SlotEnergy, SlotUseCase}

const (
	SlotFilled  = "filled"
	SlotMissing = "missing"
)

// Slot provenance tags.
const (
	SourceExplicit           = "explicit"
	SourceSuggested          = "suggested"
	SourceUserOther          = "user_other"
	SourceMemory             = "memory"
	SourcePrevious           = "previous"
	SourceInferred           = "inferred"
	SourceSelected           = "selected"
	SourceConstraintContract = "constraint_contract"
	SourceNone               = "none"
)

// Slot is one required planning input with its provenance.
type Slot struct {
	Label      string   `json:"label"`
	Status     string   `json:"status"`
	Value      string   `json:"value,omitempty"`
	Songs      []string `json:"songs,omitempty"`
	Source     string   `json:"source"`
	Confidence float64  `json:"confidence"`
}

func (s Slot) Filled() bool { return s.Status == SlotFilled }

type Slots map[string]Slot

func (s Slots) Clone() Slots {
	out := make(Slots, len(s))
	for k, v := range s {
		v.Songs = append([]string(nil), v.Songs...)
		out[k] = v
	}
	return out
}

type QuestionOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type Question struct {
	ID         string           `json:"question_id"`
	Question   string           `json:"question"`
	Options    []QuestionOption `json:"options"`
	AllowOther bool             `json:"allow_other"`
}

func (q Question) HasOption(id string) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

func (q Question) OptionLabel(id string) string {
	for _, o := range q.Options {
		if o.ID == id {
			return o.Label
		}
	}
	return ""
}

const OptionOther = "other"

type Answer struct {
	QuestionID       string    `json:"question_id"`
	SelectedOptionID string    `json:"selected_option_id,omitempty"`
	OtherText        string    `json:"other_text,omitempty"`
	AnsweredAt       time.Time `json:"answered_at,omitempty"`
}

// Answers are merged per question id; the latest answer wins.
type Answers map[string]Answer

// RepeatRequest asks for a song to appear Count times in the plan.
type RepeatRequest struct {
	Song  string `json:"song"`
	Count int    `json:"count"`
}

// Contract is the frozen set of hard requirements a proposal must meet.
type Contract struct {
	SongCount           int             `json:"song_count,omitempty"`
	SegmentCount        int             `json:"segment_count,omitempty"`
	TransitionCount     int             `json:"transition_count,omitempty"`
	MustIncludeSongs    []string        `json:"must_include_songs,omitempty"`
	PreferredSequence   []string        `json:"preferred_sequence,omitempty"`
	RepeatRequests      []RepeatRequest `json:"repeat_requests,omitempty"`
	KeepExistingSongs   bool            `json:"keep_existing_songs,omitempty"`
	MirrorSequenceAtEnd bool            `json:"mirror_sequence_at_end,omitempty"`
	UpdatedAt           *time.Time      `json:"updated_at,omitempty"`
}

func (c Contract) Empty() bool {
	return c.SongCount == 0 && c.SegmentCount == 0 && c.TransitionCount == 0 &&
		len(c.MustIncludeSongs) == 0 && len(c.PreferredSequence) == 0 && len(c.RepeatRequests) == 0 &&
		!c.KeepExistingSongs && !c.MirrorSequenceAtEnd
}

type ResolvedSong struct {
	RequestedSong string  `json:"requested_song"`
	MatchedTrack  string  `json:"matched_track"`
	Confidence    float64 `json:"confidence"`
	FallbackUsed  bool    `json:"fallback_used"`
}

type ProvisionalSegment struct {
	SegmentIndex   int    `json:"segment_index"`
	Song           string `json:"song"`
	StartSeconds   int    `json:"start_seconds"`
	EndSeconds     int    `json:"end_seconds"`
	TransitionHint string `json:"transition_hint"`
}

// Proposal is the plan a draft converges on. Once approved it is frozen and
// becomes the base of the rendered version.
type Proposal struct {
	Title                  string               `json:"title"`
	Summary                string               `json:"summary"`
	TargetDurationSeconds  int                  `json:"target_duration_seconds"`
	ResolvedSongs          []ResolvedSong       `json:"resolved_songs"`
	EnergyCurve            string               `json:"energy_curve"`
	UseCase                string               `json:"use_case"`
	TransitionStrategy     string               `json:"transition_strategy"`
	DirectiveNotes         []string             `json:"directive_notes,omitempty"`
	ProvisionalTimeline    []ProvisionalSegment `json:"provisional_timeline"`
	ConstraintContract     Contract             `json:"constraint_contract"`
	MinorAutoAdjustAllowed bool                 `json:"minor_auto_adjust_allowed"`
	AdjustmentNote         string               `json:"adjustment_note,omitempty"`
	Segments               []TimelineSegment    `json:"segments,omitempty"`
	MixingRationale        string               `json:"mixing_rationale,omitempty"`
}

func (p Proposal) Songs() []string {
	out := make([]string, 0, len(p.ResolvedSongs))
	for _, s := range p.ResolvedSongs {
		out = append(out, s.MatchedTrack)
	}
	return out
}
