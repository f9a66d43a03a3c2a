package timeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
)

var (
	reCrossfade = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:s|sec|seconds)\s*crossfade`)
	reReverb    = regexp.MustCompile(`reverb(?:\s*(?:amount|level)?)?\s*(?:to|=)?\s*(0(?:\.\d+)?|1(?:\.0+)?)`)
	reDelay     = regexp.MustCompile(`delay[^0-9]{0,12}(\d{2,4})\s*ms`)
)

// ApplyPromptAdjustments applies the effect and crossfade requests found in a
// free-text refinement prompt. It returns the adjusted copy and a note per
// applied change.
func ApplyPromptAdjustments(segments []mix.TimelineSegment, prompt string) ([]mix.TimelineSegment, []string) {
	out := make([]mix.TimelineSegment, len(segments))
	copy(out, segments)
	lowered := strings.ToLower(strings.TrimSpace(prompt))
	if lowered == "" || len(out) == 0 {
		return out, nil
	}
	var applied []string

	crossfade := -1.0
	switch {
	case reCrossfade.MatchString(lowered):
		v, _ := strconv.ParseFloat(reCrossfade.FindStringSubmatch(lowered)[1], 64)
		crossfade = clampFloat(v, 0, MaxCrossfadeSeconds)
		applied = append(applied, fmt.Sprintf("crossfade set to ~%.1fs where possible", crossfade))
	case containsAny(lowered, "long transition", "smooth transitions", "softer transition"):
		crossfade = 3.0
		applied = append(applied, "longer crossfades for smoother transitions")
	case containsAny(lowered, "quick transition", "hard cut", "snappy transitions"):
		crossfade = 0.6
		applied = append(applied, "shorter crossfades for punchier transitions")
	}

	reverb := -1.0
	switch {
	case containsAny(lowered, "no reverb", "without reverb", "dry mix"):
		reverb = 0
		applied = append(applied, "reverb disabled")
	case reReverb.MatchString(lowered):
		v, _ := strconv.ParseFloat(reReverb.FindStringSubmatch(lowered)[1], 64)
		reverb = clampFloat(v, 0, 1)
		applied = append(applied, fmt.Sprintf("reverb set to %.2f", reverb))
	case strings.Contains(lowered, "more reverb"):
		reverb = 0.28
		applied = append(applied, "slightly higher reverb")
	case strings.Contains(lowered, "less reverb"):
		reverb = 0.08
		applied = append(applied, "reduced reverb")
	}

	delayMS, feedback := -1, -1.0
	switch {
	case containsAny(lowered, "no delay", "without delay"):
		delayMS, feedback = 0, 0
		applied = append(applied, "delay disabled")
	case reDelay.MatchString(lowered):
		v, _ := strconv.Atoi(reDelay.FindStringSubmatch(lowered)[1])
		delayMS = int(clampFloat(float64(v), 0, MaxDelayMS))
		applied = append(applied, fmt.Sprintf("delay set to %dms", delayMS))
	case strings.Contains(lowered, "more delay"):
		delayMS, feedback = 240, 0.24
		applied = append(applied, "slightly longer delay tails")
	case strings.Contains(lowered, "less delay"):
		delayMS, feedback = 90, 0.14
		applied = append(applied, "shorter delay tails")
	}

	for i := range out {
		if reverb >= 0 {
			out[i].Effects.ReverbAmount = reverb
		}
		if delayMS >= 0 {
			out[i].Effects.DelayMS = delayMS
		}
		if feedback >= 0 {
			out[i].Effects.DelayFeedback = clampFloat(feedback, 0, MaxDelayFeedback)
		}
		if crossfade >= 0 && i < len(out)-1 {
			limit := clampFloat(minFloat(durationSeconds(out[i]), durationSeconds(out[i+1]))-0.1, 0, MaxCrossfadeSeconds)
			out[i].CrossfadeAfterSeconds = clampFloat(crossfade, 0, limit)
		}
	}
	out[len(out)-1].CrossfadeAfterSeconds = 0
	return out, applied
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
