package actions

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/youruser/magide/internal/logging"
)

var (
	ErrMalformedBatch = errors.New("malformed action batch")
	log               = logging.Get()
)

var (
	// first fenced json block; the closing fence must match the opener
	fencedBlock = regexp2.MustCompile("(```|~~~)json\\s*(.*?)\\s*\\1", regexp2.IgnoreCase|regexp2.Singleline)
	rawActions  = regexp2.MustCompile(`\{\s*"actions"\s*:`, regexp2.None)
	rawUpdate   = regexp2.MustCompile(`\{\s*"update_file"\s*:`, regexp2.None)
	fenceOpen   = regexp2.MustCompile("^(```|~~~)json", regexp2.IgnoreCase)
)

// Extract locates the single action batch in text, preferring a fenced
// json block, then the last raw {"actions": ...}, then the last legacy
// {"update_file": ...}. Raw candidates run to the end of text.
func Extract(text string) (string, bool) {
	if m, _ := fencedBlock.FindStringMatch(text); m != nil {
		return cleanFences(m.GroupByNumber(2).String()), true
	}
	if idx := lastIndex(rawActions, text); idx >= 0 {
		return cleanFences(text[idx:]), true
	}
	if idx := lastIndex(rawUpdate, text); idx >= 0 {
		return cleanFences(text[idx:]), true
	}
	return "", false
}

// lastIndex returns the byte offset of the last match of re in s, or -1.
func lastIndex(re *regexp2.Regexp, s string) int {
	idx := -1
	m, _ := re.FindStringMatch(s)
	for m != nil {
		idx = runeToByteOffset(s, m.Index)
		m, _ = re.FindNextMatch(m)
	}
	return idx
}

// regexp2 reports rune offsets.
func runeToByteOffset(s string, runeIdx int) int {
	i := 0
	for b := range s {
		if i == runeIdx {
			return b
		}
		i++
	}
	return len(s)
}

func cleanFences(s string) string {
	s = strings.TrimSpace(s)
	if m, _ := fenceOpen.FindStringMatch(s); m != nil {
		s = s[len(m.String()):]
	}
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSuffix(s, "~~~")
	return strings.TrimSpace(s)
}

// Parse extracts and normalizes the action batch in text. No batch yields
// (nil, nil); an undecodable batch yields ErrMalformedBatch and the caller
// treats it as zero actions.
func Parse(text string) ([]Action, error) {
	raw, ok := Extract(text)
	if !ok {
		return nil, nil
	}

	v, err := DecodeLastBrace(raw)
	if err != nil {
		log.Warn("action batch parse failed: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
	}
	return Normalize(v), nil
}

// Normalize converts any accepted batch dialect into canonical actions,
// dropping those that need a path and have none.
func Normalize(v any) []Action {
	var candidates []Action

	switch top := v.(type) {
	case map[string]any:
		if list, ok := top["actions"].([]any); ok {
			candidates = normalizeList(list)
		} else if a, ok := singleKeyAction(top, true); ok {
			candidates = []Action{a}
		}
	case []any:
		candidates = normalizeList(top)
	}

	out := make([]Action, 0, len(candidates))
	for _, a := range candidates {
		if a.Path == "" && !a.Type.PathOptional() {
			log.Warn("skipping %s action without path", a.Type)
			continue
		}
		out = append(out, a)
	}
	return out
}

// wrapperPriority decides which key wins when a top-level wrapper names
// more than one action type.
var wrapperPriority = []Type{UpdateFile, CreateFile, DeleteFile, CreateFolder, ReadFile}

// singleKeyAction handles {"update_file": {...}} style wrappers. At the top
// level the key must be a known action type.
func singleKeyAction(m map[string]any, requireKnown bool) (Action, bool) {
	if requireKnown {
		for _, typ := range wrapperPriority {
			if val, ok := m[string(typ)]; ok {
				return wrapperAction(typ, val), true
			}
		}
		return Action{}, false
	}
	for key, val := range m {
		return wrapperAction(Type(key), val), true
	}
	return Action{}, false
}

func wrapperAction(typ Type, val any) Action {
	args, ok := val.(map[string]any)
	if !ok {
		args = map[string]any{}
	}
	return fromMap(typ, args, "filename", "path", "file")
}

func normalizeList(list []any) []Action {
	out := make([]Action, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if _, hasType := m["type"]; !hasType && len(m) == 1 {
			if a, ok := singleKeyAction(m, false); ok {
				out = append(out, a)
				continue
			}
		}

		typ := Type(stringField(m, "type"))
		if typ == "" {
			typ = operationType(stringField(m, "operation"))
		}
		out = append(out, fromMap(typ, m, "path", "filename", "file"))
	}
	return out
}

func operationType(op string) Type {
	switch op {
	case "create":
		return CreateFile
	case "update":
		return UpdateFile
	}
	return Type(op)
}

var (
	completeFence  = regexp2.MustCompile("(```|~~~)json\\s*(.*?)\\s*\\1", regexp2.IgnoreCase|regexp2.Singleline)
	rawActionBlock = regexp2.MustCompile(`\{\s*"actions"\s*:\s*\[.*?\]\s*\}`, regexp2.Singleline)
	trailingOpen   = regexp2.MustCompile("\\n?[ \\t]*(```|~~~)json", regexp2.IgnoreCase)
)

func isActionPayload(s string) bool {
	return strings.Contains(s, `"actions"`) || strings.Contains(s, `"update_file"`) || strings.Contains(s, `"read_file"`)
}

// StripActionBlocks removes action payloads from text for display: fenced
// json blocks carrying actions, raw {"actions": [...]} objects, and an
// unterminated json fence at the end (a batch still streaming in).
func StripActionBlocks(text string) string {
	out, err := completeFence.ReplaceFunc(text, func(m regexp2.Match) string {
		if isActionPayload(m.GroupByNumber(2).String()) {
			return ""
		}
		return m.String()
	}, -1, -1)
	if err != nil {
		out = text
	}
	if replaced, err := rawActionBlock.Replace(out, "", -1, -1); err == nil {
		out = replaced
	}

	if idx := lastIndex(trailingOpen, out); idx >= 0 {
		rest := out[idx:]
		opener, _ := trailingOpen.FindStringMatch(rest)
		fence := strings.TrimSpace(opener.String())[:3]
		if !strings.Contains(rest[len(opener.String()):], fence) {
			out = out[:idx]
		}
	}
	return strings.TrimSpace(out)
}
