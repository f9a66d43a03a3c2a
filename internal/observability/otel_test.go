package observability

import (
	"context"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	got := parseHeaders(" api-key = abc ,broken, =x,tenant=mix")
	if len(got) != 2 || got["api-key"] != "abc" || got["tenant"] != "mix" {
		t.Fatalf("headers=%v", got)
	}
	if parseHeaders("") != nil {
		t.Fatalf("empty input should give nil")
	}
}

func TestClampRatio(t *testing.T) {
	for in, want := range map[float64]float64{-1: 0, 0.25: 0.25, 3: 1} {
		if got := clampRatio(in); got != want {
			t.Errorf("clampRatio(%v)=%v want %v", in, got, want)
		}
	}
}

func TestStartRunSpanWithoutProvider(t *testing.T) {
	ctx, span := StartRunSpan(context.Background(), "run-1", "mix_prompt", 0)
	defer span.End()
	if ctx == nil {
		t.Fatalf("nil context")
	}
}
