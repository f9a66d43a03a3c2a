package mix

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestEncodeContentCarriesKind(t *testing.T) {
	draftID := uuid.New()
	raw, err := EncodeContent(PlanningDraftReady{DraftID: draftID, Violations: []string{"Missing required songs in plan: X."}})
	if err != nil {
		t.Fatalf("EncodeContent: %v", err)
	}
	var probe map[string]any
	if err := json.Unmarshal(raw, &probe); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if probe["kind"] != string(KindPlanningDraftReady) {
		t.Fatalf("expected kind %q, got %v", KindPlanningDraftReady, probe["kind"])
	}

	c, err := DecodeContent(raw)
	if err != nil {
		t.Fatalf("DecodeContent: %v", err)
	}
	ready, ok := c.(PlanningDraftReady)
	if !ok {
		t.Fatalf("expected PlanningDraftReady, got %T", c)
	}
	if ready.DraftID != draftID || len(ready.Violations) != 1 {
		t.Fatalf("payload mismatch: %+v", ready)
	}
}

func TestDecodeContentRejectsUnknownKind(t *testing.T) {
	if _, err := DecodeContent([]byte(`{"kind":"bogus"}`)); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestDecodeContentDefaultsToPlain(t *testing.T) {
	c, err := DecodeContent([]byte(`{"text":"hello"}`))
	if err != nil {
		t.Fatalf("DecodeContent: %v", err)
	}
	if p, ok := c.(Plain); !ok || p.Text != "hello" {
		t.Fatalf("expected Plain{hello}, got %#v", c)
	}
}

func TestMessageStatusAdvances(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{MessageQueued, MessageRunning, true},
		{MessageQueued, MessageCompleted, true},
		{MessageRunning, MessageFailed, true},
		{MessageRunning, MessageQueued, false},
		{MessageCompleted, MessageRunning, false},
		{MessageCompleted, MessageFailed, false},
		{MessageRunning, MessageRunning, false},
	}
	for _, tc := range cases {
		if got := MessageStatusAdvances(tc.from, tc.to); got != tc.want {
			t.Fatalf("MessageStatusAdvances(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
