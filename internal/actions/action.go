// Package actions parses file-editing commands out of model output and
// applies them to a workspace.
package actions

import (
	"encoding/json"
	"strconv"
	"strings"
)

type Type string

const (
	CreateFile   Type = "create_file"
	UpdateFile   Type = "update_file"
	DeleteFile   Type = "delete_file"
	CreateFolder Type = "create_folder"
	ReadFile     Type = "read_file"
)

// Known reports whether t is one of the five supported action types.
func (t Type) Known() bool {
	switch t {
	case CreateFile, UpdateFile, DeleteFile, CreateFolder, ReadFile:
		return true
	}
	return false
}

// PathOptional reports whether an action of this type may omit its path.
func (t Type) PathOptional() bool {
	return t == CreateFile || t == CreateFolder
}

// Action is one normalized command. Fields the protocol does not define are
// kept in Extra so the action can be re-serialized without loss.
type Action struct {
	Type      Type
	Path      string
	Content   string
	StartLine int
	EndLine   int
	Extra     map[string]any
}

// fields consumed by normalization; everything else lands in Extra.
var reservedKeys = map[string]bool{
	"type": true, "operation": true,
	"path": true, "filename": true, "file": true, "file_path": true,
	"content": true, "start_line": true, "end_line": true,
}

// MarshalJSON writes the canonical wire form.
func (a Action) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(a.Extra)+5)
	for k, v := range a.Extra {
		m[k] = v
	}
	m["type"] = string(a.Type)
	if a.Path != "" {
		m["path"] = a.Path
	}
	if a.Content != "" || a.Type == CreateFile || a.Type == UpdateFile {
		m["content"] = a.Content
	}
	if a.StartLine > 0 {
		m["start_line"] = a.StartLine
	}
	if a.EndLine > 0 {
		m["end_line"] = a.EndLine
	}
	return json.Marshal(m)
}

// Batch is the canonical {"actions": [...]} envelope.
type Batch struct {
	Actions []Action `json:"actions"`
}

// fromMap builds an Action from a decoded object. pathKeys gives the
// lookup order for the path field.
func fromMap(typ Type, m map[string]any, pathKeys ...string) Action {
	a := Action{Type: typ}
	for _, k := range pathKeys {
		if s := stringField(m, k); s != "" {
			a.Path = s
			break
		}
	}
	a.Content = contentField(m["content"])
	a.StartLine = intField(m["start_line"])
	a.EndLine = intField(m["end_line"])
	for k, v := range m {
		if !reservedKeys[k] {
			if a.Extra == nil {
				a.Extra = make(map[string]any)
			}
			a.Extra[k] = v
		}
	}
	return a
}

// FromToolCall normalizes a native tool call: the function name is the
// action type and the path comes from file_path, path or filename.
func FromToolCall(name string, args map[string]any) Action {
	return fromMap(Type(name), args, "file_path", "path", "filename")
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// contentField accepts strings verbatim and re-encodes structured content
// (models sometimes inline JSON file bodies as objects).
func contentField(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	default:
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func intField(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	case string:
		i, _ := strconv.Atoi(strings.TrimSpace(n))
		return i
	}
	return 0
}
