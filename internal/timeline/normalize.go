// Package timeline keeps timeline segments structurally valid and diffs them
// against a baseline so only modified segments are reprocessed.
package timeline

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
)

// ErrMinimumSegments is returned by structural edits that would leave the
// timeline empty.
var ErrMinimumSegments = errors.New("timeline must keep at least one segment")

const DefaultMinDurationMS int64 = 1000

// Resequence returns a copy with Order equal to the position, blank names
// filled with "Segment N" and blank ids synthesized.
func Resequence(segments []mix.TimelineSegment) []mix.TimelineSegment {
	out := make([]mix.TimelineSegment, len(segments))
	for i, s := range segments {
		s.Order = i
		if strings.TrimSpace(s.SegmentName) == "" {
			s.SegmentName = fmt.Sprintf("Segment %d", i+1)
		}
		if strings.TrimSpace(s.ID) == "" {
			s.ID = "seg_" + uuid.NewString()[:8]
		}
		out[i] = s
	}
	return out
}

// ValidateWindow clamps start into [0, track-min] first, then end into
// [start+min, track]. A track shorter than min collapses to [0, track].
func ValidateWindow(trackDurationMS, startMS, endMS, minDurationMS int64) (int64, int64) {
	if minDurationMS <= 0 {
		minDurationMS = DefaultMinDurationMS
	}
	if trackDurationMS < 0 {
		trackDurationMS = 0
	}
	maxStart := trackDurationMS - minDurationMS
	if maxStart < 0 {
		maxStart = 0
	}
	start := clampInt(startMS, 0, maxStart)
	lowEnd := start + minDurationMS
	if lowEnd > trackDurationMS {
		lowEnd = trackDurationMS
	}
	end := clampInt(endMS, lowEnd, trackDurationMS)
	return start, end
}

// Diff returns the ids of current segments that differ from the baseline at
// the same position. Extra current segments are always changed.
func Diff(current, baseline []mix.TimelineSegment) []string {
	changed := make([]string, 0)
	for i, cur := range current {
		if i >= len(baseline) || segmentChanged(cur, baseline[i]) {
			changed = append(changed, cur.ID)
		}
	}
	return changed
}

func segmentChanged(a, b mix.TimelineSegment) bool {
	if a.TrackIndex != b.TrackIndex || strings.TrimSpace(a.TrackID) != strings.TrimSpace(b.TrackID) {
		return true
	}
	if strings.TrimSpace(a.SegmentName) != strings.TrimSpace(b.SegmentName) {
		return true
	}
	if a.StartMS != b.StartMS || a.EndMS != b.EndMS {
		return true
	}
	return round3(a.CrossfadeAfterSeconds) != round3(b.CrossfadeAfterSeconds)
}

// Add inserts seg at index (appends when index is out of range) and
// resequences.
func Add(segments []mix.TimelineSegment, index int, seg mix.TimelineSegment) []mix.TimelineSegment {
	out := make([]mix.TimelineSegment, 0, len(segments)+1)
	if index < 0 || index > len(segments) {
		index = len(segments)
	}
	out = append(out, segments[:index]...)
	out = append(out, seg)
	out = append(out, segments[index:]...)
	return Resequence(out)
}

// Remove drops the segment at index. The input is never modified.
func Remove(segments []mix.TimelineSegment, index int) ([]mix.TimelineSegment, error) {
	if len(segments) <= 1 {
		return segments, ErrMinimumSegments
	}
	if index < 0 || index >= len(segments) {
		return segments, fmt.Errorf("segment index %d out of range", index)
	}
	out := make([]mix.TimelineSegment, 0, len(segments)-1)
	out = append(out, segments[:index]...)
	out = append(out, segments[index+1:]...)
	return Resequence(out), nil
}

// Move relocates the segment at from to position to.
func Move(segments []mix.TimelineSegment, from, to int) ([]mix.TimelineSegment, error) {
	if len(segments) == 0 {
		return segments, ErrMinimumSegments
	}
	if from < 0 || from >= len(segments) || to < 0 || to >= len(segments) {
		return segments, fmt.Errorf("move %d -> %d out of range", from, to)
	}
	out := make([]mix.TimelineSegment, len(segments))
	copy(out, segments)
	seg := out[from]
	out = append(out[:from], out[from+1:]...)
	out = append(out[:to], append([]mix.TimelineSegment{seg}, out[to:]...)...)
	return Resequence(out), nil
}

func clampInt(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
