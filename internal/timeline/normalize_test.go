package timeline

import (
	"errors"
	"testing"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
)

func seg(id string, track int, start, end int64) mix.TimelineSegment {
	return mix.TimelineSegment{ID: id, TrackIndex: track, TrackID: "t", StartMS: start, EndMS: end}
}

func TestValidateWindowClampsStartFirst(t *testing.T) {
	cases := []struct {
		name               string
		track, start, end  int64
		min                int64
		wantStart, wantEnd int64
	}{
		{"near end", 10000, 9500, 9900, 1000, 9000, 10000},
		{"negative start", 10000, -50, 4000, 1000, 0, 4000},
		{"end past track", 10000, 2000, 15000, 1000, 2000, 10000},
		{"too short window", 10000, 3000, 3200, 1000, 3000, 4000},
		{"track shorter than min", 500, 100, 400, 1000, 0, 500},
		{"default min", 10000, 9800, 9900, 0, 9000, 10000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, e := ValidateWindow(tc.track, tc.start, tc.end, tc.min)
			if s != tc.wantStart || e != tc.wantEnd {
				t.Fatalf("ValidateWindow(%d,%d,%d,%d) = (%d,%d), want (%d,%d)",
					tc.track, tc.start, tc.end, tc.min, s, e, tc.wantStart, tc.wantEnd)
			}
		})
	}
}

func TestResequenceIsIndexStable(t *testing.T) {
	in := []mix.TimelineSegment{
		{ID: "c", Order: 7},
		{ID: "", Order: 7, SegmentName: "  "},
		{ID: "a", Order: -3, SegmentName: "Intro"},
	}
	out := Resequence(in)
	if len(out) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(out))
	}
	for i, s := range out {
		if s.Order != i {
			t.Fatalf("segment %d has order %d", i, s.Order)
		}
		if s.ID == "" {
			t.Fatalf("segment %d has blank id", i)
		}
	}
	if out[1].SegmentName != "Segment 2" || out[2].SegmentName != "Intro" {
		t.Fatalf("unexpected names: %q %q", out[1].SegmentName, out[2].SegmentName)
	}
	if in[0].Order != 7 {
		t.Fatalf("input must not be modified")
	}
}

func TestDiffIsPositional(t *testing.T) {
	base := []mix.TimelineSegment{seg("a", 0, 0, 5000), seg("b", 1, 0, 5000), seg("c", 2, 0, 5000)}

	same := Resequence(base)
	if got := Diff(same, base); len(got) != 0 {
		t.Fatalf("expected no changes, got %v", got)
	}

	swapped := []mix.TimelineSegment{base[1], base[0], base[2]}
	got := Diff(swapped, base)
	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Fatalf("expected swapped positions changed, got %v", got)
	}

	faded := Resequence(base)
	faded[2].CrossfadeAfterSeconds = 0.0004
	if got := Diff(faded, base); len(got) != 0 {
		t.Fatalf("sub-millisecond crossfade change should be ignored, got %v", got)
	}
	faded[2].CrossfadeAfterSeconds = 0.002
	if got := Diff(faded, base); len(got) != 1 || got[0] != "c" {
		t.Fatalf("expected c changed, got %v", got)
	}

	renamed := Resequence(base)
	renamed[0].SegmentName = "  " + renamed[0].SegmentName + " "
	if got := Diff(renamed, Resequence(base)); len(got) != 0 {
		t.Fatalf("whitespace-only rename should be ignored, got %v", got)
	}

	longer := append(Resequence(base), seg("d", 3, 0, 2000))
	if got := Diff(longer, base); len(got) != 1 || got[0] != "d" {
		t.Fatalf("expected appended segment changed, got %v", got)
	}
}

func TestRemoveLastSegmentFails(t *testing.T) {
	one := []mix.TimelineSegment{seg("only", 0, 0, 3000)}
	out, err := Remove(one, 0)
	if !errors.Is(err, ErrMinimumSegments) {
		t.Fatalf("expected ErrMinimumSegments, got %v", err)
	}
	if len(out) != 1 || len(one) != 1 || one[0].ID != "only" {
		t.Fatalf("list must be unchanged")
	}
}

func TestStructuralEditsResequence(t *testing.T) {
	segs := Resequence([]mix.TimelineSegment{seg("a", 0, 0, 1000), seg("b", 1, 0, 1000), seg("c", 2, 0, 1000)})

	moved, err := Move(segs, 0, 2)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if ids(moved) != "b,c,a" || moved[2].Order != 2 {
		t.Fatalf("unexpected move result %s", ids(moved))
	}
	if ids(segs) != "a,b,c" {
		t.Fatalf("Move must not modify input, got %s", ids(segs))
	}

	removed, err := Remove(moved, 1)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if ids(removed) != "b,a" || removed[1].Order != 1 {
		t.Fatalf("unexpected remove result %s", ids(removed))
	}

	added := Add(removed, 1, seg("z", 4, 0, 1000))
	if ids(added) != "b,z,a" || added[2].Order != 2 {
		t.Fatalf("unexpected add result %s", ids(added))
	}
}

func ids(segs []mix.TimelineSegment) string {
	out := ""
	for i, s := range segs {
		if i > 0 {
			out += ","
		}
		out += s.ID
	}
	return out
}
