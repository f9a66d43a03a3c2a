package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/intellimix-backend/internal/apiclient"
	"github.com/yungbote/intellimix-backend/internal/delivery"
	"github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/mixapi"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
	"github.com/yungbote/intellimix-backend/internal/runs"
)

var watchCmd = &cobra.Command{
	Use:   "watch <thread-id> <run-id>",
	Short: "Follow a run until it finishes",
	Args:  cobra.ExactArgs(2),
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	s := loadSettings()
	threadID, err := parseUUID("thread id", args[0])
	if err != nil {
		return err
	}
	runID, err := parseUUID("run id", args[1])
	if err != nil {
		return err
	}
	c, err := newClient(s)
	if err != nil {
		return err
	}
	resp, err := c.FetchRun(cmd.Context(), runID)
	if err != nil {
		return err
	}
	return follow(cmd.Context(), cmd.OutOrStdout(), c, s, threadID, &mixapi.RunAccepted{
		Run:        resp.Run,
		PollHintMS: resp.PollHintMS,
	})
}

// follow tracks one run through the reconciler and prints every applied
// snapshot. Once the run is terminal the thread lists are refreshed and the
// assistant's reply is printed.
func follow(ctx context.Context, w io.Writer, c *apiclient.Client, s Settings, threadID uuid.UUID, acc *mixapi.RunAccepted) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	snaps := make(chan runs.Snapshot, 16)
	refresher := c.Refresher(20)
	cfg := delivery.Config{
		Poll:         c,
		Refresher:    refresher,
		PollInterval: s.PollInterval,
		Sink: delivery.SinkFunc(func(snap runs.Snapshot) {
			select {
			case snaps <- snap:
			case <-ctx.Done():
			}
		}),
	}
	if !s.NoPush {
		cfg.Push = c.Push()
	}
	rec := delivery.New(logger.Nop(), cfg)
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	initial := runs.Snapshot{Run: acc.Run, Terminal: acc.Run.Terminal()}
	rec.Track(acc.Run.ID, threadID, &initial)
	printProgress(w, initial)
	if initial.Terminal {
		return finish(ctx, w, refresher, threadID, initial)
	}

	for {
		select {
		case snap := <-snaps:
			if snap.Run.ID != acc.Run.ID {
				continue
			}
			printProgress(w, snap)
			if snap.Terminal {
				return finish(ctx, w, refresher, threadID, snap)
			}
		case err := <-done:
			if err != nil && ctx.Err() == nil {
				return err
			}
			return ctx.Err()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func finish(ctx context.Context, w io.Writer, refresher *apiclient.Refresher, threadID uuid.UUID, snap runs.Snapshot) error {
	if err := refresher.Refresh(ctx, threadID); err != nil {
		return fmt.Errorf("refresh thread: %w", err)
	}
	lists, _ := refresher.Lists(threadID)
	for _, m := range lists.Messages.Messages {
		if m.ID == snap.Run.AssistantMessageID {
			printMessage(w, m)
		}
	}
	if snap.Run.Status == mix.RunFailed {
		return fmt.Errorf("run %s failed: %s", snap.Run.ID, snap.Run.ErrorMessage)
	}
	return nil
}
