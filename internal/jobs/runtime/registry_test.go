package runtime

import "testing"

type stubHandler struct{ kinds []string }

func (h stubHandler) Kinds() []string    { return h.kinds }
func (h stubHandler) Run(*Context) error { return nil }

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(stubHandler{kinds: []string{"planning_intake", "planning_revision"}}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	for _, k := range []string{"planning_intake", "planning_revision"} {
		if _, ok := r.Get(k); !ok {
			t.Fatalf("kind %s not registered", k)
		}
	}
	if _, ok := r.Get("prompt"); ok {
		t.Fatalf("unexpected handler for prompt")
	}

	cases := []struct {
		name string
		h    Handler
	}{
		{name: "nil", h: nil},
		{name: "no kinds", h: stubHandler{}},
		{name: "empty kind", h: stubHandler{kinds: []string{""}}},
		{name: "duplicate", h: stubHandler{kinds: []string{"prompt", "planning_intake"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := r.Register(tc.h); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	if _, ok := r.Get("prompt"); ok {
		t.Fatalf("failed registration leaked a kind")
	}
}
