package agent

import (
	"context"
	"strings"

	"github.com/youruser/magide/internal/storage"
)

const rules = `RULES:
1. Read files before editing using 'read_file'.
2. 'update_file' overwrites complete content.
3. Output JSON actions at end.
4. CRITICAL: NEVER output the file content/code in the chat text. Just say 'Creating file...' and put the code ONLY in the JSON tool usage. Do not use code blocks in the chat text.
5. Use JSON format: { actions: [ { type: 'create_file', path: '/path/to/file', content: '...' } ] }. ensure you use 'path' not 'file'.`

// SystemPrompt lists every file in the workspace followed by the action
// protocol rules. It is rebuilt for each request.
func SystemPrompt(ctx context.Context, store storage.Store) (string, error) {
	tree, err := store.Tree(ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("You are Magide. Project Files:\n")
	for _, p := range tree.FilePaths() {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	b.WriteString(rules)
	return b.String(), nil
}
