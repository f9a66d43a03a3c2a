package planning

import (
	"math"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
)

// Song-question option ids with meaning beyond their label.
const (
	OptionLooksCorrect          = "looks_correct"
	OptionAddRemove             = "add_remove"
	OptionCustomList            = "custom_list"
	OptionRegenerateSuggestions = "regenerate_suggestions"
)

var slotLabels = map[string]string{
	mix.SlotSongs:   "Song set",
	mix.SlotEnergy:  "Energy curve",
	mix.SlotUseCase: "Purpose / use-case",
}

// SlotInput is everything one slot resolution pass looks at. Songs and
// SongsSource carry the candidates found for the prompt (explicit list or
// suggestions); Previous is the draft's slot state from the last round.
type SlotInput struct {
	Prompt      string
	Answers     mix.Answers
	Previous    mix.Slots
	Songs       []string
	SongsSource string
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

func answerValue(answers mix.Answers, id string) (string, string) {
	a, ok := answers[id]
	if !ok {
		return "", ""
	}
	return a.SelectedOptionID, a.OtherText
}

func previousSongs(prev mix.Slots) ([]string, string, float64) {
	s, ok := prev[mix.SlotSongs]
	if !ok {
		return nil, mix.SourceNone, 0
	}
	songs := filterGeneric(NormalizeSongs(s.Songs))
	src := s.Source
	if src == "" {
		src = mix.SourceNone
	}
	return songs, src, s.Confidence
}

// ResolveSlots fills the three required slots from answers first, then
// prompt inference, keeping provenance and confidence for each. The second
// return is the mean slot confidence.
func ResolveSlots(in SlotInput) (mix.Slots, float64) {
	songs, source := in.Songs, in.SongsSource
	if source == "" {
		source = mix.SourceNone
	}
	selected, other := answerValue(in.Answers, mix.SlotSongs)
	prev, prevSource, prevConf := previousSongs(in.Previous)
	if prevSource == mix.SourceNone || prevSource == "" {
		prevSource = mix.SourcePrevious
	}

	switch {
	case selected == OptionLooksCorrect && len(prev) > 0:
		songs, source = prev, prevSource
	case (selected == OptionAddRemove || selected == OptionCustomList || selected == mix.OptionOther) && other != "":
		if custom := ParseOtherText(other); len(custom) > 0 {
			songs, source = custom, mix.SourceUserOther
		} else if len(prev) > 0 {
			songs, source = prev, prevSource
		}
	case selected == OptionLooksCorrect && len(songs) == 0 && other != "":
		if custom := ParseOtherText(other); len(custom) > 0 {
			songs, source = custom, mix.SourceUserOther
		}
	}
	if len(songs) == 0 && len(prev) > 0 {
		if selected == "" || selected == OptionLooksCorrect || selected == OptionRegenerateSuggestions {
			songs, source = prev, prevSource
		}
	}

	var songsConf float64
	switch {
	case len(songs) == 0:
		songsConf = 0
	case selected == OptionLooksCorrect || selected == OptionAddRemove || selected == OptionCustomList:
		songsConf = 0.95
	case source == mix.SourceExplicit:
		songsConf = 0.82
	case source == mix.SourceSuggested:
		songsConf = 0.68
	case source == mix.SourcePrevious || source == mix.SourceUserOther:
		songsConf = math.Max(0.78, prevConf)
	case source == mix.SourceMemory:
		songsConf = 0.62
	default:
		songsConf = math.Max(0.78, prevConf)
	}

	energy, energyConf, energySrc := resolveChoice(in.Answers, mix.SlotEnergy, energyOptionLabels, InferEnergy(in.Prompt))
	useCase, useConf, useSrc := resolveChoice(in.Answers, mix.SlotUseCase, useCaseOptionLabels, InferUseCase(in.Prompt))

	slots := mix.Slots{
		mix.SlotSongs:   newSlot(mix.SlotSongs, "", songs, source, songsConf),
		mix.SlotEnergy:  newSlot(mix.SlotEnergy, energy, nil, energySrc, energyConf),
		mix.SlotUseCase: newSlot(mix.SlotUseCase, useCase, nil, useSrc, useConf),
	}
	return slots, OverallConfidence(slots)
}

func resolveChoice(answers mix.Answers, id string, lookup map[string]string, inferred string) (string, float64, string) {
	selected, other := answerValue(answers, id)
	switch {
	case other != "":
		return truncate(other, 120), 0.95, mix.SourceUserOther
	case selected != "":
		v := optionValue(lookup, selected)
		if v == "" {
			return "", 0.35, mix.SourceSelected
		}
		return v, 0.9, mix.SourceSelected
	case inferred != "":
		return inferred, 0.65, mix.SourceInferred
	}
	return "", 0, mix.SourceNone
}

func newSlot(id, value string, songs []string, source string, conf float64) mix.Slot {
	status := mix.SlotMissing
	if value != "" || len(songs) > 0 {
		status = mix.SlotFilled
	}
	return mix.Slot{
		Label:      slotLabels[id],
		Status:     status,
		Value:      value,
		Songs:      songs,
		Source:     source,
		Confidence: round3(conf),
	}
}

// SetSongs replaces the song slot, keeping at least floor confidence.
func SetSongs(slots mix.Slots, songs []string, source string, floor float64) {
	conf := floor
	if cur, ok := slots[mix.SlotSongs]; ok && cur.Confidence > conf {
		conf = cur.Confidence
	}
	if len(songs) == 0 {
		conf = 0
	}
	slots[mix.SlotSongs] = newSlot(mix.SlotSongs, "", songs, source, conf)
}

func OverallConfidence(slots mix.Slots) float64 {
	sum := 0.0
	for _, id := range mix.SlotOrder {
		sum += slots[id].Confidence
	}
	return round3(sum / float64(len(mix.SlotOrder)))
}

func SlotsComplete(slots mix.Slots) bool {
	for _, id := range mix.SlotOrder {
		if !slots[id].Filled() {
			return false
		}
	}
	return true
}
