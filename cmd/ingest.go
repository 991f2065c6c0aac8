package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"aurora/internal/config"
	"aurora/internal/graph"
	"aurora/internal/ingest"
	"aurora/internal/llmclient"
	"aurora/internal/observability"
	"aurora/internal/repos"
	"aurora/internal/scanner"
)

// newIngestCmd creates and configures the `ingest` command.
func newIngestCmd() *cobra.Command {
	var upload bool

	ingestCmd := &cobra.Command{
		Use:   "ingest [workspace]",
		Short: "Builds the knowledge graph for a workspace",
		Long: `Parses the workspace's Python sources into a knowledge graph and stores
it locally. With --upload, the workspace's documents are also pushed into the
remote retrieval index so chat answers can cite them; the two pipelines run
concurrently.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}

			cfg := config.Get()
			logger := observability.GetLogger()
			out := cmd.OutOrStdout()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sc := scanner.New(cfg.Ingestion, logger)
			builder := graph.NewBuilder(sc, graph.NewStore(cfg.Graph.DataDir, logger), cfg.Graph.QualifiedIDs, logger)

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				progress, result := builder.Build(gctx, root)
				for p := range progress {
					fmt.Fprintln(out, p.Message)
				}
				res := <-result
				if res.Err != nil {
					if errors.Is(res.Err, graph.ErrNoSourceFiles) {
						return nil
					}
					return res.Err
				}
				fmt.Fprintf(out, "Graph: %d nodes, %d edges\n", len(res.Graph.Nodes), len(res.Graph.Edges))
				return nil
			})

			if upload {
				client, err := llmclient.NewGeminiClient(cfg.Gemini, cfg.Chat, cfg.Ingestion.PollInterval, logger)
				if err != nil {
					return err
				}
				uploader := ingest.NewUploader(client, sc, cfg.Gemini, cfg.Ingestion, logger)

				g.Go(func() error {
					progress, done := uploader.Run(gctx, root)
					for p := range progress {
						switch p.Kind {
						case ingest.ProgressUploaded:
							fmt.Fprintf(out, "Uploaded %s\n", p.File)
						case ingest.ProgressError:
							fmt.Fprintf(out, "Upload failed for %s: %s\n", p.File, p.Message)
						default:
							fmt.Fprintln(out, p.Message)
						}
					}
					res := <-done
					if res.Err != nil {
						return res.Err
					}
					fmt.Fprintf(out, "Retrieval index: %d uploaded, %d failed\n", res.Uploaded, res.Failed)
					return nil
				})
			}

			if err := g.Wait(); err != nil {
				return err
			}
			return repos.NewRegistry(cfg.Graph.DataDir).Add(root)
		},
	}

	ingestCmd.Flags().BoolVarP(&upload, "upload", "u", false, "also upload documents to the retrieval index")
	return ingestCmd
}
