package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/mixapi"
	"github.com/yungbote/intellimix-backend/internal/platform/ctxutil"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
	"github.com/yungbote/intellimix-backend/internal/services"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	want := []string{"threads", "messages", "versions", "send", "answer", "approve", "revise", "regenerate", "draft", "watch", "token"}
	have := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("missing command %q", name)
		}
	}
}

func TestParseAnswers(t *testing.T) {
	got, err := parseAnswers([]string{"vibe=energetic", " length = other: about forty minutes "})
	if err != nil {
		t.Fatalf("parseAnswers: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d answers", len(got))
	}
	if got[0].QuestionID != "vibe" || got[0].SelectedOptionID != "energetic" || got[0].OtherText != "" {
		t.Fatalf("first answer %+v", got[0])
	}
	if got[1].QuestionID != "length" || got[1].SelectedOptionID != mix.OptionOther || got[1].OtherText != "about forty minutes" {
		t.Fatalf("second answer %+v", got[1])
	}

	for _, bad := range []string{"vibe", "=x", "vibe="} {
		if _, err := parseAnswers([]string{bad}); err == nil {
			t.Errorf("parseAnswers(%q) accepted", bad)
		}
	}
}

func TestTokenRoundTrip(t *testing.T) {
	userID := uuid.New()
	out, err := execute(t, "token", "--user", userID.String(), "--secret", "cli-test-secret", "--ttl", "1h")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	auth, err := services.NewAuthService(logger.Nop(), services.AuthConfig{SecretKey: "cli-test-secret", Issuer: "intellimix"})
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	ctx, err := auth.SetContextFromToken(context.Background(), strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("SetContextFromToken: %v", err)
	}
	if got := ctxutil.UserID(ctx); got != userID {
		t.Fatalf("user id=%s want %s", got, userID)
	}
}

func TestSendNoWait(t *testing.T) {
	threadID := uuid.New()
	runID := uuid.New()
	var gotReq mixapi.SendMessageRequest
	var gotKey, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/mix-chats/"+threadID.String()+"/messages" {
			http.NotFound(w, r)
			return
		}
		gotKey = r.Header.Get(mixapi.IdempotencyHeader)
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(mixapi.RunAccepted{
			Run:        mix.Run{ID: runID, ThreadID: threadID, Status: mix.RunQueued, Kind: mix.RunKindPrompt, Seq: 1},
			PollHintMS: 1500,
		})
	}))
	defer srv.Close()

	out, err := execute(t, "send", threadID.String(), "Late night house mix",
		"--server", srv.URL, "--token", "tok", "--no-wait", "--new-draft", "--idempotency-key", "key-1")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotKey != "key-1" || gotAuth != "Bearer tok" {
		t.Fatalf("headers key=%q auth=%q", gotKey, gotAuth)
	}
	if gotReq.Content != "Late night house mix" || gotReq.PlanningTarget != mixapi.PlanningTargetNewDraft {
		t.Fatalf("request %+v", gotReq)
	}
	if !strings.Contains(out, runID.String()) || !strings.Contains(out, "status=queued") {
		t.Fatalf("output %q", out)
	}
}

func TestSendRequiresToken(t *testing.T) {
	_, err := execute(t, "send", uuid.NewString(), "hi", "--server", "http://127.0.0.1:1", "--token", "", "--no-wait")
	if err == nil || !strings.Contains(err.Error(), "no token") {
		t.Fatalf("err=%v", err)
	}
}
