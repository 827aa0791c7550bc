package storage

import (
	"path"
	"strings"
)

var languages = map[string]string{
	"js":   "javascript",
	"jsx":  "javascript",
	"ts":   "typescript",
	"tsx":  "typescript",
	"html": "html",
	"css":  "css",
	"json": "json",
	"md":   "markdown",
	"py":   "python",
	"java": "java",
	"xml":  "xml",
	"php":  "php",
	"sql":  "sql",
	"yaml": "yaml",
	"yml":  "yaml",
	"go":   "go",
}

// DetectLanguage maps a file name's extension to an editor language tag.
func DetectLanguage(name string) string {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	if lang, ok := languages[strings.ToLower(ext)]; ok {
		return lang
	}
	return "plaintext"
}
