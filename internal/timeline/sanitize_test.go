package timeline

import (
	"errors"
	"testing"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
)

func TestSanitizeClamps(t *testing.T) {
	durations := func(track int) (int64, bool) {
		switch track {
		case 0:
			return 60000, true
		case 1:
			return 4000, true
		}
		return 0, false
	}
	in := []mix.TimelineSegment{
		{ID: "a", TrackIndex: 0, StartMS: 59500, EndMS: 70000, CrossfadeAfterSeconds: 12,
			Effects: mix.SegmentEffects{ReverbAmount: 3, DelayMS: 5000, DelayFeedback: 2}},
		{ID: "", TrackIndex: 1, StartMS: 0, EndMS: 2000, CrossfadeAfterSeconds: 1.5},
	}
	out, err := Sanitize(in, durations)
	if err != nil {
		t.Fatalf("Sanitize: %v", err)
	}
	a, b := out[0], out[1]
	if a.StartMS != 59000 || a.EndMS != 60000 || a.DurationMS != 1000 {
		t.Fatalf("window not clamped: %+v", a)
	}
	if a.CrossfadeAfterSeconds != 0.9 {
		t.Fatalf("crossfade should be capped at shorter neighbour minus 0.1s, got %v", a.CrossfadeAfterSeconds)
	}
	if a.Effects.ReverbAmount != 1 || a.Effects.DelayMS != MaxDelayMS || a.Effects.DelayFeedback != MaxDelayFeedback {
		t.Fatalf("effects not clamped: %+v", a.Effects)
	}
	if b.ID != "seg_2" || b.TrackID != "1" || b.SegmentName != "Segment 2" {
		t.Fatalf("defaults not filled: %+v", b)
	}
	if b.CrossfadeAfterSeconds != 0 {
		t.Fatalf("last crossfade must be zero, got %v", b.CrossfadeAfterSeconds)
	}
}

func TestValidateRejectsBadWindows(t *testing.T) {
	if err := Validate(nil); !errors.Is(err, ErrNoSegments) {
		t.Fatalf("expected ErrNoSegments, got %v", err)
	}
	err := Validate([]mix.TimelineSegment{{TrackIndex: 0, StartMS: 1000, EndMS: 1000}})
	var se *SegmentError
	if !errors.As(err, &se) || se.Index != 0 {
		t.Fatalf("expected SegmentError at 0, got %v", err)
	}
}

func TestApplyPromptAdjustments(t *testing.T) {
	in := []mix.TimelineSegment{
		{ID: "a", StartMS: 0, EndMS: 10000, CrossfadeAfterSeconds: 1},
		{ID: "b", StartMS: 0, EndMS: 2000, CrossfadeAfterSeconds: 1},
	}
	out, applied := ApplyPromptAdjustments(in, "Use a 5s crossfade, no reverb and delay 200ms")
	if len(applied) != 3 {
		t.Fatalf("expected 3 applied notes, got %v", applied)
	}
	if out[0].CrossfadeAfterSeconds != 1.9 {
		t.Fatalf("crossfade should be capped by the 2s neighbour, got %v", out[0].CrossfadeAfterSeconds)
	}
	if out[1].CrossfadeAfterSeconds != 0 || out[0].Effects.ReverbAmount != 0 || out[1].Effects.DelayMS != 200 {
		t.Fatalf("unexpected adjustments: %+v", out)
	}
	if in[0].CrossfadeAfterSeconds != 1 {
		t.Fatalf("input must not be modified")
	}

	_, none := ApplyPromptAdjustments(in, "make it better")
	if len(none) != 0 {
		t.Fatalf("expected no adjustments, got %v", none)
	}
}
