package planning

import (
	"reflect"
	"testing"
	"time"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
)

var catalog = []string{"Kesariya - Arijit Singh", "Tum Hi Ho - Arijit Singh", "Believer - Imagine Dragons"}

func TestExtractContractCounts(t *testing.T) {
	c := ExtractContract("Make 3 songs with 4 transitions, total 5 segments, Kesariya 3 times", catalog, nil)
	if c.SongCount != 3 || c.TransitionCount != 4 || c.SegmentCount != 5 {
		t.Fatalf("counts = %d/%d/%d", c.SongCount, c.TransitionCount, c.SegmentCount)
	}
	want := []mix.RepeatRequest{{Song: "Kesariya - Arijit Singh", Count: 3}}
	if !reflect.DeepEqual(c.RepeatRequests, want) {
		t.Fatalf("repeats = %#v", c.RepeatRequests)
	}
	if len(c.MustIncludeSongs) != 0 {
		t.Fatalf("unexpected must-include: %v", c.MustIncludeSongs)
	}
}

func TestExtractContractPreferredSequence(t *testing.T) {
	c := ExtractContract("Believer, then Tum Hi Ho", catalog, nil)
	want := []string{"Believer - Imagine Dragons", "Tum Hi Ho - Arijit Singh"}
	if !reflect.DeepEqual(c.PreferredSequence, want) {
		t.Fatalf("preferred = %#v", c.PreferredSequence)
	}
}

func TestExtractContractIntentOverrides(t *testing.T) {
	mirror := true
	c := ExtractContract("tighten it up", catalog, &Intent{
		SegmentCount:        8,
		RepeatRequests:      []mix.RepeatRequest{{Song: "believer", Count: 2}},
		MirrorSequenceAtEnd: &mirror,
	})
	if c.SegmentCount != 8 || !c.MirrorSequenceAtEnd {
		t.Fatalf("intent not applied: %+v", c)
	}
	if len(c.RepeatRequests) != 1 || c.RepeatRequests[0].Song != "Believer - Imagine Dragons" {
		t.Fatalf("repeat not resolved: %#v", c.RepeatRequests)
	}
}

func TestMergeContract(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	existing := mix.Contract{
		SongCount:         3,
		MustIncludeSongs:  []string{"Alpha"},
		PreferredSequence: []string{"Alpha"},
		RepeatRequests:    []mix.RepeatRequest{{Song: "Alpha", Count: 2}},
	}
	incoming := mix.Contract{
		SegmentCount:        6,
		MustIncludeSongs:    []string{"Bravo", "alpha"},
		PreferredSequence:   []string{"Bravo"},
		RepeatRequests:      []mix.RepeatRequest{{Song: "Alpha", Count: 4}, {Song: "Bravo", Count: 1}},
		MirrorSequenceAtEnd: true,
	}
	got := MergeContract(existing, incoming, now)
	if got.SongCount != 3 || got.SegmentCount != 6 || !got.MirrorSequenceAtEnd {
		t.Fatalf("scalars = %+v", got)
	}
	if !reflect.DeepEqual(got.MustIncludeSongs, []string{"Alpha", "Bravo"}) {
		t.Fatalf("must include = %v", got.MustIncludeSongs)
	}
	if !reflect.DeepEqual(got.PreferredSequence, []string{"Bravo", "Alpha"}) {
		t.Fatalf("preferred = %v", got.PreferredSequence)
	}
	wantRepeats := []mix.RepeatRequest{{Song: "Alpha", Count: 4}, {Song: "Bravo", Count: 1}}
	if !reflect.DeepEqual(got.RepeatRequests, wantRepeats) {
		t.Fatalf("repeats = %#v", got.RepeatRequests)
	}
	if got.UpdatedAt == nil || !got.UpdatedAt.Equal(now) {
		t.Fatalf("updated_at = %v", got.UpdatedAt)
	}
	if len(existing.RepeatRequests) != 1 || existing.RepeatRequests[0].Count != 2 {
		t.Fatalf("existing contract was mutated: %#v", existing.RepeatRequests)
	}
}

func TestRemoveFromContractRequirementOnly(t *testing.T) {
	c := mix.Contract{
		MustIncludeSongs:  []string{"Kesariya"},
		PreferredSequence: []string{"Kesariya", "Believer"},
		RepeatRequests:    []mix.RepeatRequest{{Song: "Kesariya", Count: 2}},
	}
	got, rm := RemoveFromContract(c, "drop the Kesariya requirement", nil)
	if !rm.RequirementOnly || !reflect.DeepEqual(rm.Songs, []string{"Kesariya"}) {
		t.Fatalf("removal = %+v", rm)
	}
	if len(got.MustIncludeSongs) != 0 || len(got.RepeatRequests) != 0 {
		t.Fatalf("contract still references song: %+v", got)
	}
	if !reflect.DeepEqual(got.PreferredSequence, []string{"Believer"}) {
		t.Fatalf("preferred = %v", got.PreferredSequence)
	}
}

func TestRemoveFromContractWithoutTrigger(t *testing.T) {
	c := mix.Contract{MustIncludeSongs: []string{"Kesariya"}}
	got, rm := RemoveFromContract(c, "make it longer", nil)
	if len(rm.Songs) != 0 || !reflect.DeepEqual(got, c) {
		t.Fatalf("unexpected removal %+v -> %+v", rm, got)
	}
}

func TestApplySongConstraints(t *testing.T) {
	t.Run("too few songs", func(t *testing.T) {
		songs, problems := ApplySongConstraints([]string{"Alpha", "Bravo"}, mix.Contract{SongCount: 3}, nil)
		if len(songs) != 2 {
			t.Fatalf("songs = %v", songs)
		}
		want := "Need exactly 3 songs, but only 2 were resolved. Please add more songs."
		if len(problems) != 1 || problems[0] != want {
			t.Fatalf("problems = %v", problems)
		}
	})
	t.Run("trim keeps required", func(t *testing.T) {
		songs, problems := ApplySongConstraints([]string{"Alpha", "Bravo", "Charlie", "Delta"}, mix.Contract{SongCount: 2, MustIncludeSongs: []string{"Delta"}}, nil)
		if len(problems) != 0 {
			t.Fatalf("problems = %v", problems)
		}
		if !reflect.DeepEqual(songs, []string{"Delta", "Alpha"}) {
			t.Fatalf("songs = %v", songs)
		}
	})
	t.Run("too many required", func(t *testing.T) {
		_, problems := ApplySongConstraints(nil, mix.Contract{SongCount: 1, MustIncludeSongs: []string{"Alpha", "Bravo"}}, nil)
		want := "Need exactly 1 songs, but 2 songs are marked required. Please reduce required songs or increase total songs."
		if len(problems) == 0 || problems[0] != want {
			t.Fatalf("problems = %v", problems)
		}
	})
	t.Run("preferred order first", func(t *testing.T) {
		songs, _ := ApplySongConstraints([]string{"Alpha", "Bravo", "Charlie"}, mix.Contract{PreferredSequence: []string{"Charlie"}}, nil)
		if !reflect.DeepEqual(songs, []string{"Charlie", "Alpha", "Bravo"}) {
			t.Fatalf("songs = %v", songs)
		}
	})
}

func TestValidatePlan(t *testing.T) {
	c := mix.Contract{
		SegmentCount:        2,
		MustIncludeSongs:    []string{"Xray"},
		RepeatRequests:      []mix.RepeatRequest{{Song: "Alpha", Count: 3}},
		PreferredSequence:   []string{"Bravo", "Alpha"},
		MirrorSequenceAtEnd: true,
	}
	tl := []mix.ProvisionalSegment{{SegmentIndex: 1, Song: "Alpha"}, {SegmentIndex: 2, Song: "Bravo"}}
	got := ValidatePlan(c, []string{"Alpha", "Bravo"}, tl)
	want := []string{
		"Song 'Alpha' requested 3 times but appears 1 times.",
		"Missing required songs in plan: Xray.",
		"Requested opening song order is not preserved.",
		"Requested ending song order is not preserved.",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("violations = %#v", got)
	}
	if v := ValidatePlan(mix.Contract{SongCount: 2}, []string{"Alpha", "Bravo"}, tl); len(v) != 0 {
		t.Fatalf("expected clean plan, got %v", v)
	}
}

func TestRequestsSongsetChange(t *testing.T) {
	cases := map[string]bool{
		"add two more songs":               true,
		"remove the last track":            true,
		"swap the second song":             true,
		"use 6 transitions of these songs": false,
		"drop the Kesariya requirement":    false,
		"make the ending calmer":           false,
	}
	for prompt, want := range cases {
		if got := RequestsSongsetChange(prompt); got != want {
			t.Fatalf("RequestsSongsetChange(%q) = %v, want %v", prompt, got, want)
		}
	}
}

func TestProvisionalTimeline(t *testing.T) {
	tl := ProvisionalTimeline([]string{"Alpha", "Bravo", "Charlie"}, 300, "Warm and mellow", mix.Contract{})
	if len(tl) != 3 || tl[0].EndSeconds != 100 || tl[2].EndSeconds != 300 || tl[1].TransitionHint != "long blend" {
		t.Fatalf("timeline = %+v", tl)
	}

	tl = ProvisionalTimeline([]string{"Alpha", "Bravo"}, 300, "Balanced flow", mix.Contract{SegmentCount: 4, PreferredSequence: []string{"Bravo"}})
	var songs []string
	for _, s := range tl {
		songs = append(songs, s.Song)
	}
	if !reflect.DeepEqual(songs, []string{"Bravo", "Alpha", "Bravo", "Alpha"}) {
		t.Fatalf("songs = %v", songs)
	}
	if tl[3].StartSeconds != 225 || tl[3].EndSeconds != 300 || tl[0].TransitionHint != "beat-safe blend" {
		t.Fatalf("timeline = %+v", tl)
	}

	tl = ProvisionalTimeline(nil, 90, "", mix.Contract{TransitionCount: 5})
	if len(tl) != 6 || tl[0].Song != "Song A" || tl[5].EndSeconds != 90 {
		t.Fatalf("placeholder timeline = %+v", tl)
	}
}
