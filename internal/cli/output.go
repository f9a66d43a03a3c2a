package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/yungbote/intellimix-backend/internal/mixapi"
	"github.com/yungbote/intellimix-backend/internal/runs"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printAccepted(w io.Writer, acc *mixapi.RunAccepted) {
	replayed := ""
	if acc.Run.Seq > 0 && acc.Run.Terminal() {
		replayed = " (already finished)"
	}
	fmt.Fprintf(w, "run %s  kind=%s  status=%s%s\n", acc.Run.ID, acc.Run.Kind, acc.Run.Status, replayed)
}

func printProgress(w io.Writer, s runs.Snapshot) {
	r := s.Run
	label := r.ProgressLabel
	if label == "" {
		label = r.ProgressStage
	}
	fmt.Fprintf(w, "[%3d%%] %-10s %s\n", r.ProgressPercent, r.Status, label)
	if r.ErrorMessage != "" {
		fmt.Fprintf(w, "       error: %s\n", r.ErrorMessage)
	}
}

func printMessage(w io.Writer, m mixapi.MessageView) {
	fmt.Fprintf(w, "#%d %s (%s)\n", m.Seq, m.Role, m.Status)
	if text := strings.TrimSpace(m.Text); text != "" {
		for _, line := range strings.Split(text, "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
}
