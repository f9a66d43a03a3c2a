package planning

import (
	"fmt"
	"math"
	"strings"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
)

const (
	proposalTitle   = "Guided Mix Plan Draft"
	proposalSummary = "Plan draft ready for approval. Rendering starts only after approval."

	defaultEnergy  = "Balanced flow"
	defaultUseCase = "General listening"
)

var placeholderSongs = []string{"Song A", "Song B", "Song C"}

// ProvisionalTimeline lays songs out across the target duration. Segment
// count comes from the contract's hard count, else the song count raised to
// transitions+1 and to the largest repeat request.
func ProvisionalTimeline(songs []string, targetSeconds int, energy string, c mix.Contract) []mix.ProvisionalSegment {
	if len(songs) == 0 {
		songs = placeholderSongs
	}
	count := c.SegmentCount
	if count <= 0 {
		count = len(songs)
		if c.TransitionCount > 0 && c.TransitionCount+1 > count {
			count = c.TransitionCount + 1
		}
		for _, r := range c.RepeatRequests {
			if n := clampCount(r.Count); n > count {
				count = n
			}
		}
	}
	if count < 1 {
		count = 1
	}
	if targetSeconds < 1 {
		targetSeconds = 1
	}
	segDur := int(math.Round(float64(targetSeconds) / float64(count)))
	if segDur < 5 {
		segDur = 5
	}

	cycle := songs
	if len(c.PreferredSequence) > 0 {
		cycle = append([]string(nil), c.PreferredSequence...)
		for _, s := range songs {
			if !containsExact(c.PreferredSequence, s) {
				cycle = append(cycle, s)
			}
		}
	}
	plan := make([]string, count)
	for i := range plan {
		plan[i] = cycle[i%len(cycle)]
	}
	for _, r := range c.RepeatRequests {
		need := clampCount(r.Count)
		for _, s := range plan {
			if s == r.Song {
				need--
			}
		}
		for i := 0; i < len(plan) && need > 0; i++ {
			if plan[i] == r.Song {
				continue
			}
			plan[i] = r.Song
			need--
		}
	}
	if n := len(c.PreferredSequence); n > 0 {
		if n > len(plan) {
			n = len(plan)
		}
		copy(plan[:n], c.PreferredSequence[:n])
		if c.MirrorSequenceAtEnd {
			copy(plan[len(plan)-n:], c.PreferredSequence[:n])
		}
	}

	hint := "beat-safe blend"
	if strings.Contains(strings.ToLower(energy), "mellow") {
		hint = "long blend"
	}
	out := make([]mix.ProvisionalSegment, 0, count)
	cursor := 0
	for i, song := range plan {
		end := cursor + segDur
		if end > targetSeconds {
			end = targetSeconds
		}
		out = append(out, mix.ProvisionalSegment{
			SegmentIndex:   i + 1,
			Song:           song,
			StartSeconds:   cursor,
			EndSeconds:     end,
			TransitionHint: hint,
		})
		cursor = end
	}
	out[len(out)-1].EndSeconds = targetSeconds
	return out
}

// ProposalInput collects what a proposal is built from.
type ProposalInput struct {
	Prompt           string
	Slots            mix.Slots
	Contract         mix.Contract
	AdjustmentPolicy string
}

// BuildProposal assembles the plan a draft presents for approval.
func BuildProposal(in ProposalInput) mix.Proposal {
	target := TargetDuration(in.Prompt)
	songs := in.Slots[mix.SlotSongs].Songs
	energy := in.Slots[mix.SlotEnergy].Value
	if energy == "" {
		energy = defaultEnergy
	}
	useCase := in.Slots[mix.SlotUseCase].Value
	if useCase == "" {
		useCase = defaultUseCase
	}

	resolved := make([]mix.ResolvedSong, 0, len(songs))
	for _, s := range songs {
		resolved = append(resolved, mix.ResolvedSong{RequestedSong: s, MatchedTrack: s, Confidence: 0.85})
	}

	strategy := "Beat-safe blended transitions"
	var notes []string
	if n := in.Contract.TransitionCount; n > 0 {
		strategy = fmt.Sprintf("%s; target ~%d transitions", strategy, n)
		notes = append(notes, fmt.Sprintf("Requested transitions: %d", n))
	}
	if len(in.Contract.RepeatRequests) > 0 {
		parts := make([]string, 0, len(in.Contract.RepeatRequests))
		for _, r := range in.Contract.RepeatRequests {
			parts = append(parts, fmt.Sprintf("%s x%d", r.Song, r.Count))
		}
		notes = append(notes, "Requested repeats: "+strings.Join(parts, ", "))
	}

	minor := in.AdjustmentPolicy == "" || in.AdjustmentPolicy == mix.AdjustmentPolicyMinorAllowed
	note := "Final render will preserve approved timeline boundaries."
	if minor {
		note = "Final render may apply minor beat-safe timing shifts (+/-3s) while preserving approved structure."
	}

	return mix.Proposal{
		Title:                  proposalTitle,
		Summary:                proposalSummary,
		TargetDurationSeconds:  target,
		ResolvedSongs:          resolved,
		EnergyCurve:            energy,
		UseCase:                useCase,
		TransitionStrategy:     strategy,
		DirectiveNotes:         notes,
		ProvisionalTimeline:    ProvisionalTimeline(songs, target, energy, in.Contract),
		ConstraintContract:     in.Contract,
		MinorAutoAdjustAllowed: minor,
		AdjustmentNote:         note,
	}
}

// RenderSegments turns the frozen provisional timeline into engine segments.
// Each segment trims its song from the start; track indexes follow the
// resolved song order.
func RenderSegments(p mix.Proposal) []mix.TimelineSegment {
	index := map[string]int{}
	for i, s := range p.Songs() {
		if _, ok := index[strings.ToLower(s)]; !ok {
			index[strings.ToLower(s)] = i
		}
	}
	out := make([]mix.TimelineSegment, 0, len(p.ProvisionalTimeline))
	for i, ps := range p.ProvisionalTimeline {
		dur := int64(ps.EndSeconds-ps.StartSeconds) * 1000
		if dur <= 0 {
			dur = 1000
		}
		crossfade := 3.0
		if ps.TransitionHint == "long blend" {
			crossfade = 6.0
		}
		if i == len(p.ProvisionalTimeline)-1 {
			crossfade = 0
		}
		track, ok := index[strings.ToLower(ps.Song)]
		if !ok {
			track = i % max(1, len(index))
		}
		out = append(out, mix.TimelineSegment{
			Order:                 i + 1,
			SegmentName:           fmt.Sprintf("%d. %s", ps.SegmentIndex, ps.Song),
			TrackIndex:            track,
			TrackTitle:            ps.Song,
			StartMS:               0,
			EndMS:                 dur,
			DurationMS:            dur,
			CrossfadeAfterSeconds: crossfade,
		})
	}
	return out
}
