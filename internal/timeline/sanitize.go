package timeline

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
)

var ErrNoSegments = errors.New("timeline requires non-empty segments")

// SegmentError points at the offending segment of a submitted timeline.
type SegmentError struct {
	Index  int
	Reason string
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segments[%d]: %s", e.Index, e.Reason)
}

const (
	MaxCrossfadeSeconds = 8.0
	MaxDelayMS          = 1200
	MaxDelayFeedback    = 0.95
)

// Validate rejects timelines a client should not have submitted. It does
// not clamp; Sanitize does that once track durations are known.
func Validate(segments []mix.TimelineSegment) error {
	if len(segments) == 0 {
		return ErrNoSegments
	}
	for i, s := range segments {
		if s.TrackIndex < 0 {
			return &SegmentError{Index: i, Reason: "track_index is invalid"}
		}
		if s.StartMS < 0 {
			return &SegmentError{Index: i, Reason: "start_ms must be >= 0"}
		}
		if s.EndMS <= s.StartMS {
			return &SegmentError{Index: i, Reason: "end_ms must be greater than start_ms"}
		}
	}
	return nil
}

// DurationLookup resolves a source track's duration in milliseconds.
type DurationLookup func(trackIndex int) (int64, bool)

// Sanitize clamps every window to its track, bounds the effect knobs and
// crossfades, and resequences. Crossfades never exceed the shorter of the two
// neighbours minus 100ms; the last crossfade is always zero.
func Sanitize(segments []mix.TimelineSegment, durations DurationLookup) ([]mix.TimelineSegment, error) {
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}
	out := make([]mix.TimelineSegment, 0, len(segments))
	for i, s := range segments {
		if s.TrackIndex < 0 {
			return nil, &SegmentError{Index: i, Reason: "track_index is invalid"}
		}
		trackMS, ok := int64(0), false
		if durations != nil {
			trackMS, ok = durations(s.TrackIndex)
		}
		if !ok {
			// Unknown duration: trust the submitted end as the track bound.
			trackMS = s.EndMS
		}
		s.StartMS, s.EndMS = ValidateWindow(trackMS, s.StartMS, s.EndMS, DefaultMinDurationMS)
		s.DurationMS = s.EndMS - s.StartMS

		s.ID = truncate(strings.TrimSpace(s.ID), 80)
		if s.ID == "" {
			s.ID = fmt.Sprintf("seg_%d", i+1)
		}
		s.SegmentName = truncate(strings.TrimSpace(s.SegmentName), 120)
		s.TrackID = truncate(strings.TrimSpace(s.TrackID), 80)
		if s.TrackID == "" {
			s.TrackID = strconv.Itoa(s.TrackIndex)
		}
		s.TrackTitle = truncate(strings.TrimSpace(s.TrackTitle), 200)
		s.CrossfadeAfterSeconds = clampFloat(s.CrossfadeAfterSeconds, 0, MaxCrossfadeSeconds)
		s.Effects.ReverbAmount = clampFloat(s.Effects.ReverbAmount, 0, 1)
		s.Effects.DelayMS = int(clampFloat(float64(s.Effects.DelayMS), 0, MaxDelayMS))
		s.Effects.DelayFeedback = clampFloat(s.Effects.DelayFeedback, 0, MaxDelayFeedback)
		out = append(out, s)
	}
	capCrossfades(out)
	return Resequence(out), nil
}

func capCrossfades(segments []mix.TimelineSegment) {
	for i := 0; i < len(segments)-1; i++ {
		limit := clampFloat(minFloat(durationSeconds(segments[i]), durationSeconds(segments[i+1]))-0.1, 0, MaxCrossfadeSeconds)
		segments[i].CrossfadeAfterSeconds = clampFloat(segments[i].CrossfadeAfterSeconds, 0, limit)
	}
	if n := len(segments); n > 0 {
		segments[n-1].CrossfadeAfterSeconds = 0
	}
}

func durationSeconds(s mix.TimelineSegment) float64 {
	d := float64(s.EndMS-s.StartMS) / 1000.0
	if d < 0.1 {
		return 0.1
	}
	return d
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
