package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Create and list mix chat threads",
}

var threadsCreateCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a thread",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runThreadsCreate,
}

var threadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List threads, most recent first",
	RunE:  runThreadsList,
}

var messagesCmd = &cobra.Command{
	Use:   "messages <thread-id>",
	Short: "Show the latest messages of a thread",
	Args:  cobra.ExactArgs(1),
	RunE:  runMessages,
}

var versionsCmd = &cobra.Command{
	Use:   "versions <thread-id>",
	Short: "List the rendered versions of a thread",
	Args:  cobra.ExactArgs(1),
	RunE:  runVersions,
}

func init() {
	threadsListCmd.Flags().Bool("archived", false, "list archived threads")
	threadsListCmd.Flags().Int("limit", 20, "page size")
	threadsListCmd.Flags().Int("page", 1, "page number")
	messagesCmd.Flags().Int("limit", 20, "number of messages")
	messagesCmd.Flags().Int64("before", 0, "show messages before this seq")

	threadsCmd.AddCommand(threadsCreateCmd, threadsListCmd)
	rootCmd.AddCommand(threadsCmd, messagesCmd, versionsCmd)
}

func parseUUID(name, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

func runThreadsCreate(cmd *cobra.Command, args []string) error {
	s := loadSettings()
	c, err := newClient(s)
	if err != nil {
		return err
	}
	title := ""
	if len(args) == 1 {
		title = args[0]
	}
	resp, err := c.CreateThread(cmd.Context(), title)
	if err != nil {
		return err
	}
	if s.JSON {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", resp.Thread.ID, resp.Thread.Title)
	return nil
}

func runThreadsList(cmd *cobra.Command, _ []string) error {
	s := loadSettings()
	c, err := newClient(s)
	if err != nil {
		return err
	}
	archived, _ := cmd.Flags().GetBool("archived")
	limit, _ := cmd.Flags().GetInt("limit")
	page, _ := cmd.Flags().GetInt("page")
	resp, err := c.ListThreads(cmd.Context(), archived, limit, page)
	if err != nil {
		return err
	}
	if s.JSON {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tPLANNING\tLAST MESSAGE")
	for _, th := range resp.Threads {
		planning := "-"
		if th.ActivePlanningStatus != nil {
			planning = *th.ActivePlanningStatus
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", th.ID, th.Title, planning, th.LastMessageAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func runMessages(cmd *cobra.Command, args []string) error {
	s := loadSettings()
	threadID, err := parseUUID("thread id", args[0])
	if err != nil {
		return err
	}
	c, err := newClient(s)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	before, _ := cmd.Flags().GetInt64("before")
	resp, err := c.ListMessages(cmd.Context(), threadID, before, limit)
	if err != nil {
		return err
	}
	if s.JSON {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	for _, m := range resp.Messages {
		printMessage(cmd.OutOrStdout(), m)
	}
	if resp.HasMore && resp.NextCursor != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "(more: --before %d)\n", *resp.NextCursor)
	}
	return nil
}

func runVersions(cmd *cobra.Command, args []string) error {
	s := loadSettings()
	threadID, err := parseUUID("thread id", args[0])
	if err != nil {
		return err
	}
	c, err := newClient(s)
	if err != nil {
		return err
	}
	resp, err := c.ListVersions(cmd.Context(), threadID)
	if err != nil {
		return err
	}
	if s.JSON {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPARENT\tTITLE\tMP3")
	for _, v := range resp.Versions {
		parent := "-"
		if v.ParentVersionID != nil {
			parent = v.ParentVersionID.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.ID, parent, v.Proposal.Data().Title, v.FinalOutput.Data().MP3URL)
	}
	return tw.Flush()
}
