package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"aurora/internal/config"
	"aurora/internal/graph"
	"aurora/internal/observability"
	"aurora/internal/report"
	"aurora/internal/store"
)

// newHistoryCmd groups the stored-conversation commands.
func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Lists, exports, and deletes stored conversations",
	}

	var repoPath string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Lists stored conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			transcripts, err := openTranscripts()
			if err != nil {
				return err
			}
			defer transcripts.Close()

			summaries, err := transcripts.Conversations(cmd.Context(), repoPath)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No stored conversations.")
				return nil
			}
			for _, s := range summaries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", s.ConversationID, s.Title)
			}
			return nil
		},
	}
	listCmd.Flags().StringVar(&repoPath, "workspace", "", "only conversations about this workspace root")

	var outputPath, graphRoot string
	reportCmd := &cobra.Command{
		Use:   "report <conversation-id>",
		Short: "Exports a conversation as a Markdown report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcripts, err := openTranscripts()
			if err != nil {
				return err
			}
			defer transcripts.Close()

			turns, err := transcripts.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(turns) == 0 {
				return fmt.Errorf("no conversation with id %s", args[0])
			}

			w, err := report.NewWriter(outputPath)
			if err != nil {
				return err
			}
			defer w.Close()

			// The graph adds a diagram of the code the conversation touched;
			// a missing graph just means a text-only report.
			root := turns[0].RepoPath
			if graphRoot != "" {
				root = graphRoot
			}
			gs := graph.NewStore(config.Get().Graph.DataDir, observability.GetLogger())
			g, err := gs.Load(root)
			if err != nil {
				g = nil
			}
			return report.WriteConversation(w, turns[0].Query, turns, g)
		},
	}
	reportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (default stdout)")
	reportCmd.Flags().StringVarP(&graphRoot, "workspace", "w", "", "workspace root whose graph to include (default: the conversation's)")

	deleteCmd := &cobra.Command{
		Use:   "delete <conversation-id>",
		Short: "Deletes a stored conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcripts, err := openTranscripts()
			if err != nil {
				return err
			}
			defer transcripts.Close()
			return transcripts.Delete(cmd.Context(), args[0])
		},
	}

	historyCmd.AddCommand(listCmd, reportCmd, deleteCmd)
	return historyCmd
}

func openTranscripts() (*store.Store, error) {
	return store.Open(config.Get().Database.Path, observability.GetLogger())
}
