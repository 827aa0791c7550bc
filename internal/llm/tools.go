package llm

func pathParam(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

var CreateFileTool = Tool{
	Type: "function",
	Function: ToolFunction{
		Name:        "create_file",
		Description: "Create a new file with the given content.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    pathParam("Absolute project path, e.g. '/src/app.js'"),
				"content": map[string]any{"type": "string", "description": "Complete file content"},
			},
			"required": []string{"path", "content"},
		},
	},
}

var UpdateFileTool = Tool{
	Type: "function",
	Function: ToolFunction{
		Name:        "update_file",
		Description: "Overwrite an existing file with its complete new content.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    pathParam("Absolute project path of the file to overwrite"),
				"content": map[string]any{"type": "string", "description": "Complete new file content"},
			},
			"required": []string{"path", "content"},
		},
	},
}

var DeleteFileTool = Tool{
	Type: "function",
	Function: ToolFunction{
		Name:        "delete_file",
		Description: "Delete a file or folder (recursively).",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": pathParam("Absolute project path to delete")},
			"required":   []string{"path"},
		},
	},
}

var CreateFolderTool = Tool{
	Type: "function",
	Function: ToolFunction{
		Name:        "create_folder",
		Description: "Create an empty folder.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": pathParam("Absolute project path of the folder")},
			"required":   []string{"path"},
		},
	},
}

// ReadFileTool returns file content to the model in the next request.
var ReadFileTool = Tool{
	Type: "function",
	Function: ToolFunction{
		Name:        "read_file",
		Description: "Read a file before editing it. Optionally limit to a 1-indexed inclusive line range.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":       pathParam("Absolute project path of the file to read"),
				"start_line": map[string]any{"type": "integer", "description": "First line to return"},
				"end_line":   map[string]any{"type": "integer", "description": "Last line to return"},
			},
			"required": []string{"path"},
		},
	},
}

// DefaultTools returns the action tools in protocol order.
func DefaultTools() []Tool {
	return []Tool{CreateFileTool, UpdateFileTool, DeleteFileTool, CreateFolderTool, ReadFileTool}
}
