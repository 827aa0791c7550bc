// Package preview assembles a single self-contained HTML document from the
// workspace so it can be opened without a server.
package preview

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/youruser/magide/internal/logging"
	"github.com/youruser/magide/internal/storage"
)

// Placeholder is served when the workspace has no HTML entry point.
const Placeholder = "<h1>No index.html found</h1><p>Please create an index.html file to run the preview.</p>"

const defaultEntry = "/index.html"

var (
	log = logging.Get()

	stylesheetTag = regexp2.MustCompile(`<link[^>]+href=(["'])([^"']+)\1[^>]*>`, regexp2.IgnoreCase)
	scriptTag     = regexp2.MustCompile(`<script[^>]+src=(["'])([^"']+)\1[^>]*>\s*</script>`, regexp2.IgnoreCase)
	closingScript = regexp2.MustCompile(`</(script)`, regexp2.IgnoreCase)
)

// Page is a built preview.
type Page struct {
	// Entry is the HTML file the page was built from, empty for the
	// placeholder.
	Entry string
	HTML  string
	// Inlined lists workspace files merged into the page.
	Inlined []string
	// Missing lists local references that could not be resolved.
	Missing []string
}

// Build renders /index.html, or the first .html file of a sorted tree walk,
// with local stylesheets and scripts inlined. A workspace without HTML
// yields the placeholder page.
func Build(ctx context.Context, store storage.Store) (*Page, error) {
	entry, err := findEntry(ctx, store)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		log.Debug("preview: no html entry, serving placeholder")
		return &Page{HTML: Placeholder}, nil
	}

	b := &builder{ctx: ctx, store: store, dir: path.Dir(entry.Path), page: &Page{Entry: entry.Path}}
	html, err := b.inline(entry.Content, stylesheetTag, isStylesheet, func(content string) string {
		return "<style>" + content + "</style>"
	})
	if err != nil {
		return nil, err
	}
	html, err = b.inline(html, scriptTag, nil, func(content string) string {
		escaped, err := closingScript.Replace(content, `<\/$1`, -1, -1)
		if err != nil {
			escaped = content
		}
		return "<script>" + escaped + "</script>"
	})
	if err != nil {
		return nil, err
	}
	b.page.HTML = html
	log.Debug("preview: built %s, %d inlined, %d missing", entry.Path, len(b.page.Inlined), len(b.page.Missing))
	return b.page, nil
}

func findEntry(ctx context.Context, store storage.Store) (*storage.FileRecord, error) {
	rec, err := store.Read(ctx, defaultEntry)
	if err != nil || rec != nil {
		return rec, err
	}

	tree, err := store.Tree(ctx)
	if err != nil {
		return nil, fmt.Errorf("preview: %w", err)
	}
	var found string
	tree.Walk(func(p string, n *storage.Node) bool {
		if found != "" {
			return false
		}
		if !n.IsFolder() && strings.HasSuffix(strings.ToLower(n.Name), ".html") {
			found = p
		}
		return true
	})
	if found == "" {
		return nil, nil
	}
	return store.Read(ctx, found)
}

type builder struct {
	ctx   context.Context
	store storage.Store
	dir   string
	page  *Page
	err   error
}

// isStylesheet filters out icons and similar non-css links.
func isStylesheet(tag, ref string) bool {
	return strings.Contains(strings.ToLower(tag), "stylesheet") || strings.HasSuffix(strings.ToLower(ref), ".css")
}

// inline replaces every match of re whose reference resolves to a
// workspace file with wrap(content). Unresolvable tags are kept verbatim.
func (b *builder) inline(html string, re *regexp2.Regexp, accept func(tag, ref string) bool, wrap func(string) string) (string, error) {
	out, err := re.ReplaceFunc(html, func(m regexp2.Match) string {
		if b.err != nil {
			return m.String()
		}
		ref := m.GroupByNumber(2).String()
		if accept != nil && !accept(m.String(), ref) {
			return m.String()
		}
		p, ok := b.resolve(ref)
		if !ok {
			return m.String()
		}
		rec, err := b.store.Read(b.ctx, p)
		if err != nil {
			b.err = err
			return m.String()
		}
		if rec == nil {
			b.page.Missing = append(b.page.Missing, p)
			return m.String()
		}
		b.page.Inlined = append(b.page.Inlined, p)
		return wrap(rec.Content)
	}, -1, -1)
	if err != nil {
		return "", fmt.Errorf("preview: %w", err)
	}
	if b.err != nil {
		return "", fmt.Errorf("preview: %w", b.err)
	}
	return out, nil
}

// resolve maps an href or src to a workspace path. Remote and data URLs
// are not resolvable.
func (b *builder) resolve(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	lower := strings.ToLower(ref)
	for _, prefix := range []string{"http:", "https:", "//", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return "", false
		}
	}
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	if ref == "" {
		return "", false
	}
	if !strings.HasPrefix(ref, "/") {
		ref = path.Join(b.dir, ref)
	}
	p, err := storage.CleanPath(ref)
	if err != nil || p == "/" {
		return "", false
	}
	return p, true
}
