package planning

import (
	"regexp"
	"strconv"
	"strings"
)

const maxSongLabel = 180

var (
	wsRe = regexp.MustCompile(`\s+`)

	genericPrefixes = []string{
		"i want ", "i need ", "please ", "add ", "remove ", "use ", "keep ",
		"repeat ", "then ", "same order", "order in ",
	}
	genericExact = map[string]bool{
		"song": true, "songs": true, "track": true, "tracks": true, "song list": true, "track list": true,
	}
	bareNumberRe      = regexp.MustCompile(`^\d{1,2}$`)
	structureWordRe   = regexp.MustCompile(`\b(?:times?|transition|transitions|crossfade|segment|segments)\b`)
	positionWordRe    = regexp.MustCompile(`\b(?:start|ending|end|beginning|middle|order|intro|outro|flow)\b`)
	songWordRe        = regexp.MustCompile(`\b(?:songs?|tracks?)\b`)
	ofByFromRe        = regexp.MustCompile(`\b(?:of|by|from)\b`)
	smallNumberRe     = regexp.MustCompile(`\b\d{1,2}\b`)
	trailingSongWords = regexp.MustCompile(`^[a-z0-9][a-z0-9 .&'/\\-]{1,140}\s+(?:songs?|tracks?)$`)

	songListRe     = regexp.MustCompile(`(?i)\b(?:songs?\s*:|(?:using|use|mix of|mix with|combine)\b)(?P<body>.+)`)
	sentenceCutRe  = regexp.MustCompile(`[.\n]`)
	listSplitRe    = regexp.MustCompile(`(?i),|;|\band\b`)
	otherSplitRe   = regexp.MustCompile(`(?i)[\n,;]|\band\b`)
	songCountRe    = regexp.MustCompile(`(?i)\b(?P<count>\d{1,4})\s*(?:songs?|tracks?)\b`)
	artistCutRe    = regexp.MustCompile(`(?i)\b(?:for|with|and|to|that)\b`)
	additionRe     = regexp.MustCompile(`(?i)\badd(?:\s+\w+){0,5}\s+(?:songs?|tracks?)\s*[:\-]?\s*(?P<body>.+)`)
	titleSplitRe   = regexp.MustCompile(`\s*-\s*`)
	tokenRe        = regexp.MustCompile(`[a-z0-9]+`)
	tokenSplitRe   = regexp.MustCompile(`[^a-z0-9]+`)
	artistPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?P<count>\d{1,4})\s+(?P<artist>[a-z0-9][a-z0-9 .&'\-]{1,80}?)\s+songs?\b`),
		regexp.MustCompile(`(?i)\bsongs?\s+(?:of|by|from)\s+(?P<artist>[a-z0-9][a-z0-9 .&'\-]{1,80})\b`),
		regexp.MustCompile(`(?i)\b(?:mashup|mix|medley|playlist)\s+(?P<artist>[a-z0-9][a-z0-9 .&'\-]{1,80}?)\s+songs?\b`),
		regexp.MustCompile(`(?i)\bmix(?:ing)?\s+(?:of|with)\s+(?P<count>\d{1,4})?\s*(?:songs?|tracks?)?\s*(?:by|of|from)?\s*(?P<artist>[a-z0-9][a-z0-9 .&'\-]{1,80})\b`),
	}
)

func compactSpaces(s string) string {
	return strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// NormalizeSongs collapses whitespace, trims list punctuation and drops
// duplicates (case-insensitive) and labels shorter than two characters.
func NormalizeSongs(candidates []string) []string {
	out := make([]string, 0, len(candidates))
	seen := map[string]bool{}
	for _, c := range candidates {
		v := strings.Trim(compactSpaces(c), " -:;,")
		if len([]rune(v)) < 2 {
			continue
		}
		key := strings.ToLower(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, truncate(v, maxSongLabel))
	}
	return out
}

// IsGenericSongRequest reports whether a list fragment is an instruction or a
// count ("5 songs", "then", "transitions") rather than a song label.
func IsGenericSongRequest(candidate string) bool {
	c := strings.ToLower(compactSpaces(strings.Trim(candidate, " -:;,.")))
	if c == "" {
		return true
	}
	for _, p := range genericPrefixes {
		if strings.HasPrefix(c, p) {
			return true
		}
	}
	if genericExact[c] || bareNumberRe.MatchString(c) {
		return true
	}
	hasDash := strings.Contains(c, "-")
	if !hasDash && (structureWordRe.MatchString(c) || positionWordRe.MatchString(c)) {
		return true
	}
	if songWordRe.MatchString(c) {
		if ofByFromRe.MatchString(c) || smallNumberRe.MatchString(c) || trailingSongWords.MatchString(c) {
			return true
		}
	}
	return false
}

func filterGeneric(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || IsGenericSongRequest(p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ParseSongList extracts an explicit song list ("songs: a, b and c",
// "mix of a and b") from a prompt.
func ParseSongList(prompt string) []string {
	compact := compactSpaces(prompt)
	if compact == "" {
		return nil
	}
	m := songListRe.FindStringSubmatch(compact)
	if m == nil {
		return nil
	}
	body := sentenceCutRe.Split(m[songListRe.SubexpIndex("body")], 2)[0]
	return NormalizeSongs(filterGeneric(listSplitRe.Split(body, -1)))
}

// ParseOtherText splits a free-text answer into song labels.
func ParseOtherText(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return NormalizeSongs(filterGeneric(otherSplitRe.Split(text, -1)))
}

// ParseSongAdditions picks up "add two more songs: x and y".
func ParseSongAdditions(prompt string) []string {
	compact := compactSpaces(prompt)
	m := additionRe.FindStringSubmatch(compact)
	if m == nil {
		return nil
	}
	body := sentenceCutRe.Split(m[additionRe.SubexpIndex("body")], 2)[0]
	return NormalizeSongs(filterGeneric(listSplitRe.Split(body, -1)))
}

// MergeSongs concatenates lists, keeping the first spelling of each song.
func MergeSongs(lists ...[]string) []string {
	var out []string
	seen := map[string]bool{}
	for _, l := range lists {
		for _, raw := range l {
			s := strings.Trim(compactSpaces(raw), " -:;,")
			if s == "" || IsGenericSongRequest(s) {
				continue
			}
			key := strings.ToLower(s)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, truncate(s, maxSongLabel))
		}
	}
	return out
}

// ArtistAndCount reads an artist hint and a requested song count from
// prompts like "5 arijit singh songs" or "mashup of songs by queen".
func ArtistAndCount(prompt string, defaultCount int) (string, int) {
	compact := compactSpaces(prompt)
	if compact == "" {
		return "", 0
	}
	if defaultCount <= 0 {
		defaultCount = 5
	}
	count := defaultCount
	if m := songCountRe.FindStringSubmatch(compact); m != nil {
		if n, err := strconv.Atoi(m[songCountRe.SubexpIndex("count")]); err == nil && n > 0 {
			count = n
		}
	}
	artist := ""
	for _, re := range artistPatterns {
		m := re.FindStringSubmatch(compact)
		if m == nil {
			continue
		}
		artist = strings.Trim(m[re.SubexpIndex("artist")], " ,.;:-")
		if idx := re.SubexpIndex("count"); idx >= 0 && m[idx] != "" {
			if n, err := strconv.Atoi(m[idx]); err == nil && n > 0 {
				count = n
			}
		}
		if artist != "" {
			break
		}
	}
	if artist != "" {
		artist = strings.Trim(artistCutRe.Split(artist, 2)[0], " ,.;:-")
	}
	return artist, count
}

// DominantArtist returns the most common artist across "Title - Artist"
// labels, title-cased.
func DominantArtist(songs []string) string {
	counts := map[string]int{}
	var order []string
	for _, s := range songs {
		parts := strings.SplitN(s, " - ", 2)
		if len(parts) != 2 {
			continue
		}
		a := strings.ToLower(strings.Trim(compactSpaces(parts[1]), " ,.;:-"))
		if a == "" {
			continue
		}
		if counts[a] == 0 {
			order = append(order, a)
		}
		counts[a]++
	}
	best := ""
	for _, a := range order {
		if best == "" || counts[a] > counts[best] {
			best = a
		}
	}
	return titleCase(best)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func songTitle(song string) string {
	return strings.ToLower(strings.TrimSpace(titleSplitRe.Split(song, 2)[0]))
}

func tokenSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, t := range tokenSplitRe.Split(strings.ToLower(s), -1) {
		if t != "" {
			out[t] = true
		}
	}
	return out
}

// TokenSimilarity is the Jaccard index of the alphanumeric tokens of a and b.
func TokenSimilarity(a, b string) float64 {
	at, bt := tokenSet(a), tokenSet(b)
	if len(at) == 0 || len(bt) == 0 {
		return 0
	}
	inter := 0
	for t := range at {
		if bt[t] {
			inter++
		}
	}
	union := len(at) + len(bt) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func phraseSimilarity(phrase, song string) float64 {
	p := strings.ToLower(compactSpaces(phrase))
	s := strings.ToLower(compactSpaces(song))
	title := songTitle(song)

	best := TokenSimilarity(p, s)
	if v := TokenSimilarity(p, title); v > best {
		best = v
	}
	if v := matchRatio(p, title); v > best {
		best = v
	}
	pt := tokenRe.FindAllString(p, -1)
	tt := tokenRe.FindAllString(title, -1)
	if len(pt) > 0 && len(tt) > 0 {
		sum := 0.0
		for _, a := range pt {
			top := 0.0
			for _, b := range tt {
				if r := matchRatio(a, b); r > top {
					top = r
				}
			}
			sum += top
		}
		if v := sum / float64(len(pt)); v > best {
			best = v
		}
	}
	return best
}

var (
	repeatLeadRe  = regexp.MustCompile(`(?i)^(?:i want|i need|please|add|use|keep|repeat|play|put|include|of these songs|among these songs|drop|remove|exclude|skip|without)\s+`)
	repeatNounsRe = regexp.MustCompile(`(?i)\b(?:song|songs|track|tracks|requirements?|the)\b`)
)

func cleanSongPhrase(raw string) string {
	p := strings.ToLower(strings.Trim(compactSpaces(raw), " ,.;:-"))
	if p == "" {
		return ""
	}
	p = repeatLeadRe.ReplaceAllString(p, "")
	p = repeatNounsRe.ReplaceAllString(p, "")
	return strings.Trim(compactSpaces(p), " ,.;:-")
}

// ResolveSongReference maps a loose phrase ("kesariya twice") onto the
// closest song label, or "" when nothing scores at least minScore.
func ResolveSongReference(phrase string, songs []string, minScore float64) string {
	cleaned := cleanSongPhrase(phrase)
	if cleaned == "" {
		return ""
	}
	best, bestScore := "", 0.0
	for _, s := range songs {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if score := phraseSimilarity(cleaned, s); score > bestScore {
			best, bestScore = s, score
		}
	}
	if best != "" && bestScore >= minScore {
		return best
	}
	return ""
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
