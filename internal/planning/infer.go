package planning

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	DefaultTargetSeconds = 300
	minTargetSeconds     = 60
	maxTargetSeconds     = 3600
)

var energyOptionLabels = map[string]string{
	"balanced":      "Balanced flow",
	"slow_build":    "Slow build",
	"peaks_valleys": "Peaks and valleys",
	"high_energy":   "High energy throughout",
	"mellow":        "Warm and mellow",
	"other":         "",
}

var useCaseOptionLabels = map[string]string{
	"party":   "Party / dance floor",
	"wedding": "Wedding celebration",
	"sleep":   "Sleep / focus listening",
	"workout": "Workout",
	"drive":   "Drive / road trip",
	"other":   "",
}

func optionValue(lookup map[string]string, id string) string {
	if v, ok := lookup[id]; ok {
		return v
	}
	return titleCase(strings.ReplaceAll(id, "_", " "))
}

func hasAny(text string, tokens ...string) bool {
	for _, t := range tokens {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

// InferEnergy guesses an energy curve from mood keywords.
func InferEnergy(prompt string) string {
	t := strings.ToLower(prompt)
	switch {
	case hasAny(t, "sleep", "chill", "calm", "sufi", "ambient", "lofi", "mellow"):
		return "Warm and mellow"
	case hasAny(t, "wedding", "party", "club", "dance", "high energy", "hype"):
		return "High-energy peaks and drops"
	case hasAny(t, "workout", "gym", "running"):
		return "Steady energetic drive"
	case hasAny(t, "romantic", "soulful", "emotional"):
		return "Soulful gradual build"
	}
	return ""
}

// InferUseCase guesses what the mix is for.
func InferUseCase(prompt string) string {
	t := strings.ToLower(prompt)
	switch {
	case hasAny(t, "sleep", "study", "focus"):
		return "Sleep / focus listening"
	case strings.Contains(t, "wedding"):
		return "Wedding celebration"
	case hasAny(t, "party", "club", "dance floor"):
		return "Party / dance floor"
	case hasAny(t, "workout", "gym"):
		return "Workout"
	case hasAny(t, "drive", "road trip"):
		return "Drive / road trip"
	}
	return ""
}

var (
	minutesRe = regexp.MustCompile(`\b(\d{1,3})\s*(?:minutes?|mins?|min)\b`)
	hoursRe   = regexp.MustCompile(`\b(\d{1,2})\s*(?:hours?|hrs?|hr)\b`)
)

// TargetDuration reads "N minutes"/"N hours" from the prompt. It falls back
// to DefaultTargetSeconds and always clamps to 60..3600.
func TargetDuration(prompt string) int {
	t := strings.ToLower(prompt)
	total := 0
	if m := hoursRe.FindStringSubmatch(t); m != nil {
		n, _ := strconv.Atoi(m[1])
		total += n * 3600
	}
	if m := minutesRe.FindStringSubmatch(t); m != nil {
		n, _ := strconv.Atoi(m[1])
		total += n * 60
	}
	if total < minTargetSeconds {
		total = DefaultTargetSeconds
	}
	if total > maxTargetSeconds {
		total = maxTargetSeconds
	}
	return total
}
