package tools

import "aurora/api/schemas"

// Declarations returns the function declarations advertised to the model.
// Order matches the Kind constants for readability; the model sees names and
// schemas only.
func Declarations() []schemas.FunctionDeclaration {
	return []schemas.FunctionDeclaration{
		{
			Name:        NameSetWorkspace,
			Description: "Sets the active workspace/repository path. Call this first when switching to a new repository.",
			Parameters: &schemas.Schema{
				Type: "OBJECT",
				Properties: map[string]*schemas.Schema{
					"path": {
						Type:        "STRING",
						Description: "The absolute path to the repository root.",
					},
				},
				Required: []string{"path"},
			},
		},
		{
			Name:        NameListFiles,
			Description: "Lists all files in the active workspace or a specific directory.",
			Parameters: &schemas.Schema{
				Type: "OBJECT",
				Properties: map[string]*schemas.Schema{
					"directory_path": {
						Type:        "STRING",
						Description: "Optional specific directory to list. If omitted, lists the current workspace.",
					},
				},
			},
		},
		{
			Name:        NameReadFile,
			Description: "Reads the content of a specific file.",
			Parameters: &schemas.Schema{
				Type: "OBJECT",
				Properties: map[string]*schemas.Schema{
					"file_path": {
						Type:        "STRING",
						Description: "The path of the file to read (relative to workspace or absolute).",
					},
				},
				Required: []string{"file_path"},
			},
		},
		{
			Name:        NameSearchGraph,
			Description: "Searches the knowledge graph for nodes or edges matching the query. Use repo_path to pick which repository's graph to search.",
			Parameters: &schemas.Schema{
				Type: "OBJECT",
				Properties: map[string]*schemas.Schema{
					"query": {
						Type:        "STRING",
						Description: "The search query string (e.g. a function or file name).",
					},
					"repo_path": {
						Type:        "STRING",
						Description: "Optional absolute path of the repository whose graph to search. Defaults to the active workspace.",
					},
				},
				Required: []string{"query"},
			},
		},
	}
}
