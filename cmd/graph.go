package cmd

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"aurora/api/schemas"
	"aurora/internal/config"
	"aurora/internal/graph"
	"aurora/internal/observability"
	"aurora/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// newGraphCmd groups the knowledge-graph query commands.
func newGraphCmd() *cobra.Command {
	graphCmd := &cobra.Command{
		Use:   "graph",
		Short: "Queries and renders a workspace's knowledge graph",
	}
	graphCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace root whose graph to query")

	graphCmd.AddCommand(newGraphSearchCmd(), newGraphVizCmd())
	return graphCmd
}

func loadGraph(cmd *cobra.Command) (*graph.Store, string, error) {
	cfg := config.Get()
	root, _ := cmd.Flags().GetString("workspace")
	return graph.NewStore(cfg.Graph.DataDir, observability.GetLogger()), root, nil
}

func newGraphSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Finds nodes whose id contains the query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gs, root, err := loadGraph(cmd)
			if err != nil {
				return err
			}
			g, err := gs.Load(root)
			if err != nil {
				return err
			}

			results := graph.Search(g, args[0])
			encoded, err := json.MarshalIndent(results, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}
}

func newGraphVizCmd() *cobra.Command {
	var (
		seeds          []string
		neighbors      bool
		conversationID string
	)

	vizCmd := &cobra.Command{
		Use:   "viz",
		Short: "Renders the graph (or a subgraph) as a mermaid diagram",
		Long: `Prints a mermaid flowchart of the knowledge graph. With --seed, only the
named nodes (optionally plus their direct neighbors) are rendered. With
--conversation, the seeds are the graph nodes mentioned anywhere in that
stored conversation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gs, root, err := loadGraph(cmd)
			if err != nil {
				return err
			}
			g, err := gs.Load(root)
			if err != nil {
				return err
			}

			if conversationID != "" {
				mentioned, err := conversationSeeds(cmd, conversationID, g)
				if err != nil {
					return err
				}
				seeds = append(seeds, mentioned...)
			}

			sub := g
			if len(seeds) > 0 {
				sub = graph.ExtractSubgraph(g, seeds, neighbors)
			}
			if len(sub.Nodes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), graph.MermaidNotice("No matching nodes"))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), graph.RenderMermaidBlock(sub))
			return nil
		},
	}

	vizCmd.Flags().StringSliceVar(&seeds, "seed", nil, "node ids to extract a subgraph around")
	vizCmd.Flags().BoolVar(&neighbors, "neighbors", false, "include direct neighbors of the seed nodes")
	vizCmd.Flags().StringVar(&conversationID, "conversation", "", "seed from the nodes a stored conversation mentions")
	return vizCmd
}

// conversationSeeds finds the graph node ids mentioned anywhere in a stored
// conversation's queries and answers.
func conversationSeeds(cmd *cobra.Command, conversationID string, g *schemas.Graph) ([]string, error) {
	cfg := config.Get()
	transcripts, err := store.Open(cfg.Database.Path, observability.GetLogger())
	if err != nil {
		return nil, err
	}
	defer transcripts.Close()

	turns, err := transcripts.Load(cmd.Context(), conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}

	var text strings.Builder
	for _, turn := range turns {
		text.WriteString(turn.Query)
		text.WriteByte('\n')
		text.WriteString(turn.Response)
		text.WriteByte('\n')
	}
	return graph.MentionedNodeIDs(g, text.String()), nil
}
