package planning

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
)

const (
	maxContractSongCount    = 300
	maxContractSegmentCount = 400
	maxRepeatCount          = 2000
)

var (
	transitionCountRe = regexp.MustCompile(`\b(\d{1,4})\s+transitions?\b`)
	segmentCountRe    = regexp.MustCompile(`\b(?:total\s*)?(\d{1,4})\s+segments?\b`)
	contractSongsRe   = regexp.MustCompile(`\b(?:total\s*)?(\d{1,4})\s+(?:songs?|tracks?)\b`)
	repeatAfterRe     = regexp.MustCompile(`(?i)(?P<phrase>[a-z0-9][a-z0-9 '&/.\-]{1,120}?)\s+(?P<count>\d{1,4})\s+times?\b`)
	repeatBeforeRe    = regexp.MustCompile(`(?i)(?P<count>\d{1,4})\s+times?\s+(?P<phrase>[a-z0-9][a-z0-9 '&/.\-]{1,120})\b`)
	sequenceSplitRe   = regexp.MustCompile(`(?i)\bthen\b|,|;|->`)
	keepExistingRe    = regexp.MustCompile(`(?i)\b(?:keep|preserve|use)\b.{0,30}\b(?:same|existing|these)\s+(?:songs?|tracks?)\b`)
	ofTheseSongsRe    = regexp.MustCompile(`(?i)\bof these (?:songs?|tracks?)\b`)
	mirrorRes         = []*regexp.Regexp{
		regexp.MustCompile(`\bsame order\b.{0,40}\b(?:ending|end)\b`),
		regexp.MustCompile(`\brepeat\b.{0,40}\b(?:ending|end)\b`),
		regexp.MustCompile(`\bat the end\b.{0,30}\bsame\b`),
	}
	removalRe     = regexp.MustCompile(`(?i)\b(?:drop|remove|without|exclude|skip)\s+(?P<phrase>[^,.;\n]+)`)
	removalWordRe = regexp.MustCompile(`(?i)\b(?:drop|remove|without|exclude|skip)\b`)
	requirementRe = regexp.MustCompile(`(?i)\b(?:requirements?|required|constraints?|must[- ]include)\b`)
)

func lastCount(re *regexp.Regexp, text string) int {
	all := re.FindAllStringSubmatch(strings.ToLower(text), -1)
	if len(all) == 0 {
		return 0
	}
	n, err := strconv.Atoi(all[len(all)-1][1])
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

func TransitionCount(prompt string) int { return lastCount(transitionCountRe, prompt) }
func SegmentCount(prompt string) int    { return lastCount(segmentCountRe, prompt) }
func SongCount(prompt string) int       { return lastCount(contractSongsRe, prompt) }

// MirrorAtEnd reports a request to close the mix with the opening order.
func MirrorAtEnd(prompt string) bool {
	t := strings.ToLower(compactSpaces(prompt))
	for _, re := range mirrorRes {
		if re.MatchString(t) {
			return true
		}
	}
	return false
}

// RepeatRequests finds "X 3 times" / "3 times X" and resolves X against songs.
func RepeatRequests(prompt string, songs []string) []mix.RepeatRequest {
	if prompt == "" || len(songs) == 0 {
		return nil
	}
	text := wsRe.ReplaceAllString(prompt, " ")
	var out []mix.RepeatRequest
	for _, re := range []*regexp.Regexp{repeatAfterRe, repeatBeforeRe} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			count, _ := strconv.Atoi(m[re.SubexpIndex("count")])
			count = clampCount(count)
			song := ResolveSongReference(m[re.SubexpIndex("phrase")], songs, 0.55)
			if song == "" {
				continue
			}
			out = addRepeat(out, song, count)
		}
	}
	return out
}

func clampCount(n int) int {
	if n < 1 {
		return 1
	}
	if n > maxRepeatCount {
		return maxRepeatCount
	}
	return n
}

func addRepeat(list []mix.RepeatRequest, song string, count int) []mix.RepeatRequest {
	for i := range list {
		if strings.EqualFold(list[i].Song, song) {
			if count > list[i].Count {
				list[i].Count = count
			}
			return list
		}
	}
	return append(list, mix.RepeatRequest{Song: song, Count: count})
}

// PreferredSequence reads an ordering from clauses separated by "then",
// commas or "->". Removal clauses never contribute.
func PreferredSequence(prompt string, songs []string) []string {
	if prompt == "" || len(songs) == 0 {
		return nil
	}
	var out []string
	for _, clause := range sequenceSplitRe.Split(wsRe.ReplaceAllString(prompt, " "), -1) {
		clause = strings.Trim(clause, " .:-")
		if clause == "" || removalWordRe.MatchString(clause) {
			continue
		}
		song := ResolveSongReference(clause, songs, 0.55)
		if song == "" || containsFold(out, song) {
			continue
		}
		out = append(out, song)
	}
	return out
}

// Intent is a structured reading of a revision prompt produced by the
// optional AI interpreter. Zero values mean "not stated".
type Intent struct {
	SongsetChange       bool                `json:"songset_change"`
	RequestedSongs      []string            `json:"requested_songs"`
	RepeatRequests      []mix.RepeatRequest `json:"repeat_requests"`
	PreferredSequence   []string            `json:"preferred_sequence"`
	SegmentCount        int                 `json:"segment_count"`
	TransitionCount     int                 `json:"transition_count"`
	MirrorSequenceAtEnd *bool               `json:"mirror_sequence_at_end"`
}

// ExtractContract derives hard requirements from one user turn.
func ExtractContract(prompt string, songsContext []string, intent *Intent) mix.Contract {
	prompt = strings.TrimSpace(prompt)
	known := NormalizeSongs(songsContext)
	requested := MergeSongs(ParseSongList(prompt), ParseSongAdditions(prompt))
	if intent != nil {
		requested = MergeSongs(requested, intent.RequestedSongs)
	}
	pool := MergeSongs(known, requested)
	resolved := make([]string, 0, len(requested))
	for _, r := range requested {
		if m := ResolveSongReference(r, pool, 0.4); m != "" {
			resolved = append(resolved, m)
		} else {
			resolved = append(resolved, r)
		}
	}

	c := mix.Contract{
		SongCount:         SongCount(prompt),
		SegmentCount:      SegmentCount(prompt),
		TransitionCount:   TransitionCount(prompt),
		MustIncludeSongs:  MergeSongs(resolved),
		KeepExistingSongs: keepExistingRe.MatchString(prompt) || ofTheseSongsRe.MatchString(prompt),
	}
	refs := pool
	if len(refs) == 0 {
		refs = known
	}
	c.RepeatRequests = RepeatRequests(prompt, refs)
	c.PreferredSequence = PreferredSequence(prompt, refs)
	c.MirrorSequenceAtEnd = MirrorAtEnd(prompt)

	if intent != nil {
		for _, r := range intent.RepeatRequests {
			label := strings.TrimSpace(r.Song)
			if label == "" {
				continue
			}
			if m := ResolveSongReference(label, refs, 0.35); m != "" {
				label = m
			}
			c.RepeatRequests = addRepeat(c.RepeatRequests, label, clampCount(r.Count))
		}
		for _, s := range intent.PreferredSequence {
			if m := ResolveSongReference(s, refs, 0.35); m != "" && !containsFold(c.PreferredSequence, m) {
				c.PreferredSequence = append(c.PreferredSequence, m)
			}
		}
		if c.SegmentCount == 0 && intent.SegmentCount > 0 {
			c.SegmentCount = intent.SegmentCount
		}
		if c.TransitionCount == 0 && intent.TransitionCount > 0 {
			c.TransitionCount = intent.TransitionCount
		}
		if intent.MirrorSequenceAtEnd != nil {
			c.MirrorSequenceAtEnd = *intent.MirrorSequenceAtEnd
		}
	}
	c.PreferredSequence = MergeSongs(c.PreferredSequence)
	return c
}

// MergeContract folds a new turn's requirements into the existing contract.
// Positive counts and set flags override, must-include is a union, the
// incoming order goes first and repeats keep the larger count.
func MergeContract(existing, incoming mix.Contract, now time.Time) mix.Contract {
	out := existing
	if incoming.SongCount > 0 {
		out.SongCount = incoming.SongCount
	}
	if incoming.SegmentCount > 0 {
		out.SegmentCount = incoming.SegmentCount
	}
	if incoming.TransitionCount > 0 {
		out.TransitionCount = incoming.TransitionCount
	}
	if incoming.KeepExistingSongs {
		out.KeepExistingSongs = true
	}
	if incoming.MirrorSequenceAtEnd {
		out.MirrorSequenceAtEnd = true
	}
	out.MustIncludeSongs = MergeSongs(existing.MustIncludeSongs, incoming.MustIncludeSongs)
	out.PreferredSequence = MergeSongs(incoming.PreferredSequence, existing.PreferredSequence)
	out.RepeatRequests = append([]mix.RepeatRequest(nil), existing.RepeatRequests...)
	for _, r := range incoming.RepeatRequests {
		if strings.TrimSpace(r.Song) == "" {
			continue
		}
		out.RepeatRequests = addRepeat(out.RepeatRequests, r.Song, clampCount(r.Count))
	}
	ts := now.UTC()
	out.UpdatedAt = &ts
	return out
}

// Removal is what a "drop X" turn took out of the contract.
type Removal struct {
	Songs []string
	// RequirementOnly is set when the user dropped the requirement and not
	// the song itself ("drop the kesariya requirement").
	RequirementOnly bool
}

// RemoveFromContract applies "drop/remove/without/exclude/skip X" to the
// must-include list, the preferred order and the repeat requests.
func RemoveFromContract(c mix.Contract, prompt string, songs []string) (mix.Contract, Removal) {
	var rm Removal
	matches := removalRe.FindAllStringSubmatch(compactSpaces(prompt), -1)
	if len(matches) == 0 {
		return c, rm
	}
	candidates := MergeSongs(c.MustIncludeSongs, c.PreferredSequence, repeatSongs(c.RepeatRequests), songs)
	for _, m := range matches {
		phrase := m[removalRe.SubexpIndex("phrase")]
		if requirementRe.MatchString(phrase) {
			rm.RequirementOnly = true
		}
		cleaned := cleanSongPhrase(phrase)
		for _, cand := range candidates {
			if songMentioned(cleaned, cand) && !containsFold(rm.Songs, cand) {
				rm.Songs = append(rm.Songs, cand)
			}
		}
		if hit := ResolveSongReference(phrase, candidates, 0.55); hit != "" && !containsFold(rm.Songs, hit) {
			rm.Songs = append(rm.Songs, hit)
		}
	}
	if len(rm.Songs) == 0 {
		return c, rm
	}
	out := c
	out.MustIncludeSongs = withoutSongs(c.MustIncludeSongs, rm.Songs)
	out.PreferredSequence = withoutSongs(c.PreferredSequence, rm.Songs)
	out.RepeatRequests = nil
	for _, r := range c.RepeatRequests {
		if !containsFold(rm.Songs, r.Song) {
			out.RepeatRequests = append(out.RepeatRequests, r)
		}
	}
	return out, rm
}

func songMentioned(phrase, song string) bool {
	if phrase == "" {
		return false
	}
	title := songTitle(song)
	if title != "" && (strings.Contains(phrase, title) || strings.Contains(title, phrase)) {
		return true
	}
	return TokenSimilarity(phrase, title) >= 0.5
}

func repeatSongs(rs []mix.RepeatRequest) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Song)
	}
	return out
}

func withoutSongs(list, drop []string) []string {
	var out []string
	for _, s := range list {
		if !containsFold(drop, s) {
			out = append(out, s)
		}
	}
	return out
}

// ApplySongConstraints merges must-include songs into the base list, applies
// the preferred order and trims to the requested song count. Problems it
// cannot fix are returned as clarification texts.
func ApplySongConstraints(base []string, c mix.Contract, extraRequired []string) ([]string, []string) {
	var problems []string
	songs := MergeSongs(base)
	must := c.MustIncludeSongs
	if len(extraRequired) > 0 {
		must = MergeSongs(must, extraRequired)
	}
	songs = MergeSongs(songs, must)

	if len(c.PreferredSequence) > 0 {
		var ordered []string
		for _, s := range c.PreferredSequence {
			if containsExact(songs, s) {
				ordered = append(ordered, s)
			}
		}
		for _, s := range songs {
			if !containsExact(ordered, s) {
				ordered = append(ordered, s)
			}
		}
		songs = ordered
	}

	if n := c.SongCount; n > 0 {
		if n > maxContractSongCount {
			problems = append(problems, fmt.Sprintf("Requested song count %d is too high. Please confirm a smaller count.", n))
		}
		if len(must) > n {
			problems = append(problems, fmt.Sprintf("Need exactly %d songs, but %d songs are marked required. Please reduce required songs or increase total songs.", n, len(must)))
		}
		if len(songs) < n {
			problems = append(problems, fmt.Sprintf("Need exactly %d songs, but only %d were resolved. Please add more songs.", n, len(songs)))
		} else if len(songs) > n {
			var trimmed []string
			for _, s := range songs {
				if containsExact(must, s) && !containsExact(trimmed, s) {
					trimmed = append(trimmed, s)
				}
			}
			for _, s := range songs {
				if len(trimmed) >= n {
					break
				}
				if !containsExact(trimmed, s) {
					trimmed = append(trimmed, s)
				}
			}
			if len(trimmed) > n {
				trimmed = trimmed[:n]
			}
			songs = trimmed
		}
	}

	var missing []string
	for _, s := range must {
		if !containsExact(songs, s) {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		problems = append(problems, fmt.Sprintf("Missing required songs: %s.", strings.Join(head(missing, 8), ", ")))
	}
	return songs, problems
}

// ValidatePlan checks a built proposal against the contract.
func ValidatePlan(c mix.Contract, songs []string, tl []mix.ProvisionalSegment) []string {
	var v []string
	if c.SongCount > 0 && len(songs) != c.SongCount {
		v = append(v, fmt.Sprintf("Expected %d songs, but plan has %d songs.", c.SongCount, len(songs)))
	}
	if c.SegmentCount > 0 && len(tl) != c.SegmentCount {
		v = append(v, fmt.Sprintf("Expected %d segments, but plan has %d segments.", c.SegmentCount, len(tl)))
	}
	if c.SegmentCount > maxContractSegmentCount {
		v = append(v, fmt.Sprintf("Requested segment count %d is very high. Confirm this count before rendering.", c.SegmentCount))
	}

	var tlSongs []string
	for _, s := range tl {
		if t := strings.TrimSpace(s.Song); t != "" {
			tlSongs = append(tlSongs, t)
		}
	}
	for _, r := range c.RepeatRequests {
		song := strings.TrimSpace(r.Song)
		if song == "" {
			continue
		}
		want := clampCount(r.Count)
		got := 0
		for _, t := range tlSongs {
			if strings.EqualFold(t, song) {
				got++
			}
		}
		if got < want {
			v = append(v, fmt.Sprintf("Song '%s' requested %d times but appears %d times.", song, want, got))
		}
	}

	var missing []string
	for _, s := range c.MustIncludeSongs {
		if !containsFold(songs, s) {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		v = append(v, fmt.Sprintf("Missing required songs in plan: %s.", strings.Join(head(missing, 8), ", ")))
	}

	if len(c.PreferredSequence) > 0 && len(tlSongs) > 0 {
		n := len(c.PreferredSequence)
		if len(tlSongs) < n {
			n = len(tlSongs)
		}
		if !equalFoldSlices(c.PreferredSequence[:n], tlSongs[:n]) {
			v = append(v, "Requested opening song order is not preserved.")
		}
		if c.MirrorSequenceAtEnd && !equalFoldSlices(c.PreferredSequence[:n], tlSongs[len(tlSongs)-n:]) {
			v = append(v, "Requested ending song order is not preserved.")
		}
	}
	return v
}

// RequestsSongsetChange reports whether a revision asks to change which
// songs are in the mix, as opposed to their structure.
func RequestsSongsetChange(prompt string) bool {
	t := strings.ToLower(compactSpaces(prompt))
	if t == "" {
		return false
	}
	if requirementRe.MatchString(t) && removalWordRe.MatchString(t) {
		return false
	}
	structural := songsetStructureRe.MatchString(t)
	if structural && ofTheseSongsRe.MatchString(t) && !songsetMoreRe.MatchString(t) && !songsetSwapRe.MatchString(t) {
		return false
	}
	for _, re := range songsetChangeRes {
		if re.MatchString(t) {
			return true
		}
	}
	return false
}

var (
	songsetStructureRe = regexp.MustCompile(`\b(?:transitions?|crossfades?|segments?|order|sequence|start|ending|end|intro|outro|flow)\b`)
	songsetMoreRe      = regexp.MustCompile(`\b(?:add|include|insert|bring)\b.{0,25}\b(?:more|another|new|extra|different)\b.{0,20}\b(?:songs?|tracks?)\b`)
	songsetSwapRe      = regexp.MustCompile(`\b(?:remove|drop|exclude|replace|swap|change)\b.{0,30}\b(?:songs?|tracks?)\b`)
	songsetChangeRes   = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:add|include|insert|bring)\b.{0,25}\b(?:\d{1,2}|one|two|three|four|five|six|seven|eight|nine|ten|another|new|more|extra)\b.{0,20}\b(?:songs?|tracks?)\b`),
		regexp.MustCompile(`\b(?:add|include|insert|bring)\b.{0,120}\b(?:one is|called|named)\b`),
		regexp.MustCompile(`\b(?:remove|drop|exclude|without)\b.{0,30}\b(?:songs?|tracks?)\b`),
		regexp.MustCompile(`\b(?:replace|swap|change)\b.{0,30}\b(?:songs?|tracks?)\b`),
	}
)

func containsExact(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func equalFoldSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

func head(list []string, n int) []string {
	if len(list) > n {
		return list[:n]
	}
	return list
}
