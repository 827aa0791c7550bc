// Package storage hides the difference between the virtual workspace (a node
// tree persisted to a key-value store) and a real directory on disk.
package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
)

var (
	ErrNotFound       = errors.New("no such file or folder")
	ErrParentNotFound = errors.New("parent folder does not exist")
	ErrIsFolder       = errors.New("path is a folder")
	ErrNotFolder      = errors.New("path is not a folder")
)

// Store is the uniform file system contract used by the executor and UI.
//
// Read returns (nil, nil) when nothing readable exists at path; callers
// branch on the nil record rather than on an error.
type Store interface {
	Read(ctx context.Context, path string) (*FileRecord, error)
	Write(ctx context.Context, path, content string) error
	CreateFolder(ctx context.Context, path string) error
	Delete(ctx context.Context, path string) error
	Tree(ctx context.Context) (*Node, error)
	Refresh(ctx context.Context) error
}

// FileRecord is the result of a successful read.
type FileRecord struct {
	Path     string
	Name     string
	Content  string
	Language string
}

type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// Node is one entry of the workspace tree. Folders own their children;
// names are unique among siblings.
type Node struct {
	Kind     Kind             `json:"type" msgpack:"type"`
	Name     string           `json:"name" msgpack:"name"`
	Content  string           `json:"content,omitempty" msgpack:"content,omitempty"`
	Language string           `json:"language,omitempty" msgpack:"language,omitempty"`
	Children map[string]*Node `json:"children,omitempty" msgpack:"children,omitempty"`
}

func NewFolder(name string) *Node {
	return &Node{Kind: KindFolder, Name: name, Children: make(map[string]*Node)}
}

func NewFile(name, content string) *Node {
	return &Node{Kind: KindFile, Name: name, Content: content, Language: DetectLanguage(name)}
}

func (n *Node) IsFolder() bool { return n.Kind == KindFolder }

// Clone returns a deep copy.
func (n *Node) Clone() *Node {
	c := *n
	if n.Children != nil {
		c.Children = make(map[string]*Node, len(n.Children))
		for name, child := range n.Children {
			c.Children[name] = child.Clone()
		}
	}
	return &c
}

// Child returns the named child of a folder.
func (n *Node) Child(name string) (*Node, bool) {
	if !n.IsFolder() {
		return nil, false
	}
	c, ok := n.Children[name]
	return c, ok
}

// SortedChildren returns children folders first, then by name.
func (n *Node) SortedChildren() []*Node {
	out := make([]*Node, 0, len(n.Children))
	for _, c := range n.Children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsFolder() != out[j].IsFolder() {
			return out[i].IsFolder()
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Walk visits every node below n in sorted order with its slash path.
// Returning false from fn stops descent into that node.
func (n *Node) Walk(fn func(path string, node *Node) bool) {
	var walk func(prefix string, node *Node)
	walk = func(prefix string, node *Node) {
		for _, c := range node.SortedChildren() {
			p := prefix + "/" + c.Name
			if !fn(p, c) {
				continue
			}
			if c.IsFolder() {
				walk(p, c)
			}
		}
	}
	walk("", n)
}

// FilePaths lists the slash path of every file in the tree.
func (n *Node) FilePaths() []string {
	var paths []string
	n.Walk(func(p string, node *Node) bool {
		if !node.IsFolder() {
			paths = append(paths, p)
		}
		return true
	})
	return paths
}

// fixup restores invariants lost in serialization (nil child maps, names).
func (n *Node) fixup() {
	if n.Kind == "" {
		n.Kind = KindFolder
	}
	if !n.IsFolder() {
		n.Children = nil
		if n.Language == "" {
			n.Language = DetectLanguage(n.Name)
		}
		return
	}
	if n.Children == nil {
		n.Children = make(map[string]*Node)
	}
	for name, c := range n.Children {
		if c == nil {
			delete(n.Children, name)
			continue
		}
		if c.Name == "" {
			c.Name = name
		}
		c.fixup()
	}
}

// resolveParent walks all but the last segment as existing folders.
func resolveParent(root *Node, segs []string) (*Node, bool) {
	cur := root
	for _, s := range segs[:len(segs)-1] {
		next, ok := cur.Child(s)
		if !ok || !next.IsFolder() {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Lookup resolves path to a node in the tree rooted at root.
func Lookup(root *Node, path string) (*Node, bool) {
	segs, err := SplitPath(path)
	if err != nil {
		return nil, false
	}
	if len(segs) == 0 {
		return root, true
	}
	parent, ok := resolveParent(root, segs)
	if !ok {
		return nil, false
	}
	return parent.Child(segs[len(segs)-1])
}

func basename(segs []string) string {
	return segs[len(segs)-1]
}

func canonical(segs []string) string {
	return "/" + strings.Join(segs, "/")
}
