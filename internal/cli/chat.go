package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/mixapi"
)

var sendCmd = &cobra.Command{
	Use:   "send <thread-id> <message>",
	Short: "Send a message and follow the run it starts",
	Long: `Send a message to a thread. With guided planning on, plain text revises
the active plan draft or starts a new one; --new-draft always starts fresh.`,
	Args: cobra.ExactArgs(2),
	RunE: runSend,
}

var answerCmd = &cobra.Command{
	Use:   "answer <thread-id> <draft-id> <question=option|question=other:text>...",
	Short: "Answer planning questions",
	Args:  cobra.MinimumNArgs(3),
	RunE:  runAnswer,
}

var approveCmd = &cobra.Command{
	Use:   "approve <thread-id> <draft-id>",
	Short: "Approve a ready plan and render it",
	Args:  cobra.ExactArgs(2),
	RunE:  runPlanAction(mix.ActionApprovePlan),
}

var reviseCmd = &cobra.Command{
	Use:   "revise <thread-id> <draft-id> <instruction>",
	Short: "Revise a ready plan",
	Args:  cobra.ExactArgs(3),
	RunE:  runPlanAction(mix.ActionRevisePlan),
}

var regenerateCmd = &cobra.Command{
	Use:   "regenerate <thread-id> <draft-id>",
	Short: "Ask for a fresh set of song suggestions",
	Args:  cobra.ExactArgs(2),
	RunE:  runPlanAction(mix.ActionRegenerateSuggestions),
}

var draftCmd = &cobra.Command{
	Use:   "draft <thread-id> <draft-id>",
	Short: "Show a plan draft with its open questions",
	Args:  cobra.ExactArgs(2),
	RunE:  runDraft,
}

func init() {
	sendCmd.Flags().String("mode", mix.ModeRefineLast, "refine_last or restart_fresh")
	sendCmd.Flags().Bool("new-draft", false, "start a new plan draft")
	for _, c := range []*cobra.Command{sendCmd, answerCmd, approveCmd, reviseCmd, regenerateCmd} {
		c.Flags().Bool("no-wait", false, "return once the run is accepted")
		c.Flags().String("idempotency-key", "", "reuse a key to make a retry safe (default: random)")
	}
	rootCmd.AddCommand(sendCmd, answerCmd, approveCmd, reviseCmd, regenerateCmd, draftCmd)
}

// parseAnswers reads question=option pairs. An option of the form
// "other:<text>" is a free-text answer.
func parseAnswers(pairs []string) ([]mix.Answer, error) {
	out := make([]mix.Answer, 0, len(pairs))
	for _, p := range pairs {
		qid, val, ok := strings.Cut(p, "=")
		qid, val = strings.TrimSpace(qid), strings.TrimSpace(val)
		if !ok || qid == "" || val == "" {
			return nil, fmt.Errorf("answer %q: want question=option", p)
		}
		a := mix.Answer{QuestionID: qid}
		if text, isOther := strings.CutPrefix(val, "other:"); isOther {
			a.SelectedOptionID = mix.OptionOther
			a.OtherText = strings.TrimSpace(text)
		} else {
			a.SelectedOptionID = val
		}
		out = append(out, a)
	}
	return out, nil
}

func idempotencyKey(cmd *cobra.Command) string {
	if k, _ := cmd.Flags().GetString("idempotency-key"); strings.TrimSpace(k) != "" {
		return strings.TrimSpace(k)
	}
	return uuid.NewString()
}

func runSend(cmd *cobra.Command, args []string) error {
	threadID, err := parseUUID("thread id", args[0])
	if err != nil {
		return err
	}
	mode, _ := cmd.Flags().GetString("mode")
	req := mixapi.SendMessageRequest{Content: args[1], Mode: mode}
	if newDraft, _ := cmd.Flags().GetBool("new-draft"); newDraft {
		req.PlanningTarget = mixapi.PlanningTargetNewDraft
	}
	return submit(cmd, threadID, req)
}

func runAnswer(cmd *cobra.Command, args []string) error {
	threadID, err := parseUUID("thread id", args[0])
	if err != nil {
		return err
	}
	draftID, err := parseUUID("draft id", args[1])
	if err != nil {
		return err
	}
	answers, err := parseAnswers(args[2:])
	if err != nil {
		return err
	}
	return submit(cmd, threadID, mixapi.SendMessageRequest{
		PlanningResponse: &mixapi.PlanningResponse{DraftID: draftID, Answers: answers},
	})
}

func runPlanAction(action string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		threadID, err := parseUUID("thread id", args[0])
		if err != nil {
			return err
		}
		draftID, err := parseUUID("draft id", args[1])
		if err != nil {
			return err
		}
		pa := &mixapi.PlanningAction{DraftID: draftID, Action: action}
		if len(args) > 2 {
			pa.RevisionPrompt = args[2]
		}
		return submit(cmd, threadID, mixapi.SendMessageRequest{PlanningAction: pa})
	}
}

func submit(cmd *cobra.Command, threadID uuid.UUID, req mixapi.SendMessageRequest) error {
	s := loadSettings()
	c, err := newClient(s)
	if err != nil {
		return err
	}
	acc, err := c.SendMessage(cmd.Context(), threadID, req, idempotencyKey(cmd))
	if err != nil {
		return err
	}
	if s.JSON {
		if err := printJSON(cmd.OutOrStdout(), acc); err != nil {
			return err
		}
	} else {
		printAccepted(cmd.OutOrStdout(), acc)
	}
	if noWait, _ := cmd.Flags().GetBool("no-wait"); noWait {
		return nil
	}
	return follow(cmd.Context(), cmd.OutOrStdout(), c, s, threadID, acc)
}

func runDraft(cmd *cobra.Command, args []string) error {
	s := loadSettings()
	threadID, err := parseUUID("thread id", args[0])
	if err != nil {
		return err
	}
	draftID, err := parseUUID("draft id", args[1])
	if err != nil {
		return err
	}
	c, err := newClient(s)
	if err != nil {
		return err
	}
	resp, err := c.GetDraft(cmd.Context(), threadID, draftID)
	if err != nil {
		return err
	}
	if s.JSON {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	w := cmd.OutOrStdout()
	d := resp.Draft
	fmt.Fprintf(w, "draft %s  status=%s  round %d/%d  confidence %.2f\n", d.ID, d.Status, d.RoundCount, d.MaxRounds, d.ConfidenceScore)
	fmt.Fprintf(w, "prompt: %s\n", d.Prompt)
	if len(resp.Draft.ResolvedSongs) > 0 {
		fmt.Fprintf(w, "songs: %s\n", strings.Join(resp.Draft.ResolvedSongs, "; "))
	}
	for _, q := range d.Questions {
		fmt.Fprintf(w, "? %s [%s]\n", q.Question, q.ID)
		for _, o := range q.Options {
			fmt.Fprintf(w, "    %s  %s\n", o.ID, o.Label)
		}
	}
	for _, v := range d.Violations {
		fmt.Fprintf(w, "! %s\n", v)
	}
	for _, p := range d.PendingClarifications {
		fmt.Fprintf(w, "~ %s\n", p)
	}
	return nil
}
