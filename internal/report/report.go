// -- internal/report/report.go --
// Renders a stored conversation as a shareable Markdown document: every
// query/answer pair, the tools consulted along the way, and the mermaid
// diagram of the graph nodes the conversation touched.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"aurora/api/schemas"
	"aurora/internal/graph"
)

// nopWriteCloser wraps an io.Writer with a no-op Close.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error { return nil }

// NewWriter opens the report destination. "" and "stdout" write to stdout.
func NewWriter(outputPath string) (io.WriteCloser, error) {
	if outputPath == "" || outputPath == "stdout" {
		return &nopWriteCloser{os.Stdout}, nil
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
	}
	return f, nil
}

// WriteConversation renders turns as Markdown. When g is non-nil, nodes the
// conversation mentioned are rendered as a closing mermaid diagram.
func WriteConversation(w io.Writer, title string, turns []schemas.ConversationTurn, g *schemas.Graph) error {
	if title == "" {
		title = "Conversation"
	}
	fmt.Fprintf(w, "# %s\n\n", title)
	if len(turns) > 0 {
		fmt.Fprintf(w, "_%d turns, %s_\n\n", len(turns),
			turns[0].Timestamp.Format(time.DateOnly))
		if turns[0].RepoPath != "" {
			fmt.Fprintf(w, "Workspace: `%s`\n\n", turns[0].RepoPath)
		}
	}

	var mentioned strings.Builder
	for i, turn := range turns {
		fmt.Fprintf(w, "## %d. %s\n\n", i+1, strings.TrimSpace(turn.Query))

		if len(turn.ToolCalls) > 0 {
			fmt.Fprintf(w, "<details><summary>%d tool call(s)</summary>\n\n", len(turn.ToolCalls))
			for _, call := range turn.ToolCalls {
				fmt.Fprintf(w, "- `%s` %s\n", call.Name, summarizeArgs(call.Args))
			}
			fmt.Fprint(w, "\n</details>\n\n")
		}

		fmt.Fprintf(w, "%s\n\n", strings.TrimSpace(turn.Response))
		mentioned.WriteString(turn.Query)
		mentioned.WriteByte('\n')
		mentioned.WriteString(turn.Response)
		mentioned.WriteByte('\n')
	}

	if g != nil {
		ids := graph.MentionedNodeIDs(g, mentioned.String())
		if len(ids) > 0 {
			sub := graph.ExtractSubgraph(g, ids, true)
			fmt.Fprint(w, "## Graph Context\n\n")
			fmt.Fprint(w, graph.RenderMermaidBlock(sub))
			fmt.Fprint(w, "\n")
		}
	}
	return nil
}

func summarizeArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	// Stable enough for a report: only the common single-string args are
	// shown, anything else is counted.
	for _, key := range []string{"path", "file_path", "directory_path", "query"} {
		if v, ok := args[key].(string); ok && v != "" {
			return fmt.Sprintf("(%s=%q)", key, v)
		}
	}
	return fmt.Sprintf("(%d args)", len(args))
}
