package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aurora/internal/config"
	"aurora/internal/graph"
	"aurora/internal/ingest"
	"aurora/internal/llmclient"
	"aurora/internal/observability"
	"aurora/internal/orchestrator"
	"aurora/internal/scanner"
	"aurora/internal/store"
	"aurora/internal/tools"
	"aurora/internal/workspace"
)

// newChatCmd creates and configures the `chat` command.
func newChatCmd() *cobra.Command {
	var (
		workspaceRoot string
		resumeID      string
		noRetrieval   bool
	)

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Starts an interactive question-answering session about a workspace",
		Long: `Opens a conversational loop against the configured model. The model may
call local tools (list files, read files, query the knowledge graph, switch
workspace) while composing its answers. Type "exit" or "quit" to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			logger := observability.GetLogger()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			session, transcripts, err := buildSession(ctx, cfg, logger, workspaceRoot, resumeID, noRetrieval)
			if err != nil {
				return err
			}
			if transcripts != nil {
				defer transcripts.Close()
			}

			return runREPL(ctx, cmd, session)
		},
	}

	chatCmd.Flags().StringVarP(&workspaceRoot, "workspace", "w", ".", "workspace root to converse about")
	chatCmd.Flags().StringVar(&resumeID, "resume", "", "conversation id to resume")
	chatCmd.Flags().BoolVar(&noRetrieval, "no-retrieval", false, "skip attaching the remote file search store")
	return chatCmd
}

// buildSession assembles the conversation stack: model client, tool
// registry, transcript store, and optionally a resumed history.
func buildSession(ctx context.Context, cfg *config.Config, logger *zap.Logger, workspaceRoot, resumeID string, noRetrieval bool) (*orchestrator.Session, *store.Store, error) {
	client, err := llmclient.NewGeminiClient(cfg.Gemini, cfg.Chat, cfg.Ingestion.PollInterval, logger)
	if err != nil {
		return nil, nil, err
	}
	client.SetTools(tools.Declarations())

	sc := scanner.New(cfg.Ingestion, logger)
	graphStore := graph.NewStore(cfg.Graph.DataDir, logger)
	registry := tools.NewRegistry(sc, graphStore, cfg.Chat.ListFilesLimit, logger)
	ws := workspace.New(workspaceRoot)

	if !noRetrieval {
		uploader := ingest.NewUploader(client, sc, cfg.Gemini, cfg.Ingestion, logger)
		storeName, err := client.EnsureStore(ctx, uploader.StoreDisplayName(ws.Root()))
		if err != nil {
			logger.Warn("Retrieval store unavailable, continuing without it", zap.Error(err))
		} else {
			client.SetFileSearchStores([]string{storeName})
		}
	}

	transcripts, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		return nil, nil, err
	}

	session := orchestrator.NewSession(cfg.Chat, ws, client, registry, transcripts, logger)
	if resumeID != "" {
		turns, err := transcripts.Load(ctx, resumeID)
		if err != nil {
			transcripts.Close()
			return nil, nil, fmt.Errorf("failed to load conversation %s: %w", resumeID, err)
		}
		session.Resume(resumeID, orchestrator.ReplayHistory(turns))
		logger.Info("Resumed conversation",
			zap.String("conversation_id", resumeID), zap.Int("turns", len(turns)))
	}
	return session, transcripts, nil
}

func runREPL(ctx context.Context, cmd *cobra.Command, session *orchestrator.Session) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Aurora chat (conversation %s). Workspace: %s\n", session.ID(), session.Workspace().Root())
	fmt.Fprintln(out, `Type "exit" or "quit" to leave.`)

	input := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "\nyou> ")
		if !input.Scan() {
			return input.Err()
		}
		line := strings.TrimSpace(input.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		for ev := range session.RunTurn(ctx, line) {
			switch ev.Kind {
			case orchestrator.EventWorking:
				fmt.Fprintf(out, "… %s\n", ev.Message)
			case orchestrator.EventToolStart:
				fmt.Fprintf(out, "🔧 `%s` running...\n", ev.Tool)
			case orchestrator.EventToolOK:
				fmt.Fprintf(out, "✅ `%s`\n", ev.Tool)
			case orchestrator.EventToolFailed:
				fmt.Fprintf(out, "⚠️  `%s`: %s\n", ev.Tool, ev.Message)
			case orchestrator.EventFinal:
				fmt.Fprintf(out, "\naurora> %s\n", ev.Message)
			case orchestrator.EventFailed:
				fmt.Fprintf(out, "\naurora> %s\n", ev.Message)
			}
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}
