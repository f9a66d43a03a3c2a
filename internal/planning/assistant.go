package planning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/pkg/httpx"
)

// JSONGenerator is the structured-output call planning needs from an LLM.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error)
}

const defaultRetryAfter = 8 * time.Second

const songSuggestionSystem = `You suggest songs for an audio mashup. Return real, well-known songs that fit the request.
Label each song with its title and main artist. Never return instructions, counts or placeholders.`

const revisionIntentSystem = `You read a user's revision of a mashup plan and return what they want changed.
Only report what the revision states. Leave counts at 0 and lists empty when not mentioned.`

var songSuggestionSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"songs"},
	"properties": map[string]any{
		"songs": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"title", "artist"},
				"properties": map[string]any{
					"title":  map[string]any{"type": "string"},
					"artist": map[string]any{"type": "string"},
				},
			},
		},
	},
}

var revisionIntentSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required": []string{
		"songset_change", "requested_songs", "repeat_requests", "preferred_sequence",
		"segment_count", "transition_count", "mirror_sequence_at_end",
	},
	"properties": map[string]any{
		"songset_change":  map[string]any{"type": "boolean"},
		"requested_songs": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"repeat_requests": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"song", "count"},
				"properties": map[string]any{
					"song":  map[string]any{"type": "string"},
					"count": map[string]any{"type": "integer"},
				},
			},
		},
		"preferred_sequence":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"segment_count":          map[string]any{"type": "integer"},
		"transition_count":       map[string]any{"type": "integer"},
		"mirror_sequence_at_end": map[string]any{"type": "boolean"},
	},
}

// LLMAssistant implements Assistant on top of a JSON-schema LLM call.
type LLMAssistant struct {
	gen JSONGenerator
}

func NewLLMAssistant(gen JSONGenerator) *LLMAssistant { return &LLMAssistant{gen: gen} }

func (a *LLMAssistant) SuggestSongs(ctx context.Context, prompt, artist string, count int) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}
	user, _ := json.Marshal(map[string]any{
		"prompt":          truncate(prompt, 1500),
		"artist_hint":     truncate(artist, 120),
		"requested_count": count,
	})
	obj, err := a.gen.GenerateJSON(ctx, songSuggestionSystem, string(user), "song_suggestions", songSuggestionSchema)
	if err != nil {
		return nil, classifyLLMError("song suggestion", err)
	}
	var parsed struct {
		Songs []struct {
			Title  string `json:"title"`
			Artist string `json:"artist"`
		} `json:"songs"`
	}
	if err := remarshal(obj, &parsed); err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(parsed.Songs))
	for _, s := range parsed.Songs {
		label := strings.Trim(strings.TrimSpace(s.Title)+" - "+strings.TrimSpace(s.Artist), " -")
		if label != "" {
			labels = append(labels, label)
		}
	}
	out := filterGeneric(NormalizeSongs(labels))
	if len(out) > count {
		out = out[:count]
	}
	return out, nil
}

func (a *LLMAssistant) InterpretRevision(ctx context.Context, sourcePrompt, revision string, songs []string) (*Intent, error) {
	user, _ := json.Marshal(map[string]any{
		"source_prompt":   truncate(sourcePrompt, 1200),
		"revision_prompt": truncate(revision, 900),
		"current_songs":   head(songs, 40),
	})
	obj, err := a.gen.GenerateJSON(ctx, revisionIntentSystem, string(user), "revision_intent", revisionIntentSchema)
	if err != nil {
		return nil, classifyLLMError("revision interpreter", err)
	}
	var it Intent
	if err := remarshal(obj, &it); err != nil {
		return nil, err
	}
	return sanitizeIntent(it, songs), nil
}

func sanitizeIntent(it Intent, songs []string) *Intent {
	it.RequestedSongs = filterGeneric(NormalizeSongs(it.RequestedSongs))
	var repeats []mix.RepeatRequest
	for _, r := range it.RepeatRequests {
		label := strings.TrimSpace(r.Song)
		if label == "" {
			continue
		}
		if m := ResolveSongReference(label, songs, 0.35); m != "" {
			label = m
		}
		repeats = addRepeat(repeats, label, clampCount(r.Count))
	}
	it.RepeatRequests = repeats
	it.PreferredSequence = NormalizeSongs(it.PreferredSequence)
	if it.SegmentCount < 0 {
		it.SegmentCount = 0
	}
	if it.TransitionCount < 0 {
		it.TransitionCount = 0
	}
	return &it
}

func remarshal(in map[string]any, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode llm output: %w", err)
	}
	return nil
}

// classifyLLMError turns capacity problems (429, 5xx, timeouts) into an
// UnavailableError so the round pauses instead of failing.
func classifyLLMError(task string, err error) error {
	if !httpx.IsRetryableError(err) {
		return fmt.Errorf("%s: %w", task, err)
	}
	wait := defaultRetryAfter
	var se *httpx.StatusError
	if errors.As(err, &se) && se.RetryAfter > 0 {
		wait = se.RetryAfter
	}
	return &UnavailableError{Reason: fmt.Sprintf("%s unavailable", task), RetryAfter: wait, Err: err}
}
