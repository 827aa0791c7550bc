package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/youruser/magide/internal/logging"
	"github.com/youruser/magide/internal/storage/kv"
)

// DefaultSnapshotKey is the kv key holding the virtual workspace.
const DefaultSnapshotKey = "magide_vfs"

const (
	welcomeContent = "# Local VFS\nUse \"magide --dir <folder>\" to edit real files."
	demoContent    = "// Try asking the AI to refactor this!\nfunction hello() {\n  console.log(\"Hello World\");\n}"
)

var log = logging.Get()

// MemStore is the virtual workspace: an in-memory tree persisted as a
// single snapshot after every mutation.
type MemStore struct {
	mu    sync.RWMutex
	root  *Node
	kv    kv.Store
	key   string
	codec Codec
}

var _ Store = (*MemStore)(nil)

type MemOption func(*MemStore)

// WithSnapshotKey overrides the kv key.
func WithSnapshotKey(key string) MemOption {
	return func(m *MemStore) { m.key = key }
}

// WithCodec selects the snapshot encoding.
func WithCodec(c Codec) MemOption {
	return func(m *MemStore) { m.codec = c }
}

// OpenMem loads the snapshot from store, seeding the welcome and demo files
// when none exists yet.
func OpenMem(ctx context.Context, store kv.Store, opts ...MemOption) (*MemStore, error) {
	m := &MemStore{kv: store, key: DefaultSnapshotKey, codec: JSON}
	for _, opt := range opts {
		opt(m)
	}

	data, err := store.Get(ctx, m.key)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		m.root = NewFolder("root")
		m.root.Children["welcome.md"] = NewFile("welcome.md", welcomeContent)
		m.root.Children["demo.js"] = NewFile("demo.js", demoContent)
		log.Info("seeded new virtual workspace under key %q", m.key)
		if err := m.persist(ctx); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("load workspace snapshot: %w", err)
	default:
		root, err := m.codec.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("decode workspace snapshot: %w", err)
		}
		if !root.IsFolder() {
			return nil, fmt.Errorf("decode workspace snapshot: root is a %s", root.Kind)
		}
		m.root = root
	}
	return m, nil
}

// persist must be called with mu held. Mutations undo their change when it
// fails so the tree never runs ahead of the snapshot.
func (m *MemStore) persist(ctx context.Context) error {
	data, err := m.codec.Marshal(m.root)
	if err != nil {
		return fmt.Errorf("encode workspace snapshot: %w", err)
	}
	if err := m.kv.Put(ctx, m.key, data); err != nil {
		return fmt.Errorf("save workspace snapshot: %w", err)
	}
	return nil
}

func (m *MemStore) Read(_ context.Context, path string) (*FileRecord, error) {
	segs, err := SplitPath(path)
	if err != nil || len(segs) == 0 {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := Lookup(m.root, path)
	if !ok || n.IsFolder() {
		return nil, nil
	}
	return &FileRecord{Path: canonical(segs), Name: n.Name, Content: n.Content, Language: n.Language}, nil
}

// Write creates or overwrites a file. The parent folder must already exist.
func (m *MemStore) Write(ctx context.Context, path, content string) error {
	segs, err := leafSegments(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	parent, ok := resolveParent(m.root, segs)
	if !ok {
		return fmt.Errorf("write %s: %w", canonical(segs), ErrParentNotFound)
	}
	name := basename(segs)
	if existing, ok := parent.Children[name]; ok {
		if existing.IsFolder() {
			return fmt.Errorf("write %s: %w", canonical(segs), ErrIsFolder)
		}
		prev := existing.Content
		existing.Content = content
		if err := m.persist(ctx); err != nil {
			existing.Content = prev
			return err
		}
		return nil
	}
	parent.Children[name] = NewFile(name, content)
	if err := m.persist(ctx); err != nil {
		delete(parent.Children, name)
		return err
	}
	return nil
}

// CreateFolder creates an empty folder. An existing folder is left as is.
func (m *MemStore) CreateFolder(ctx context.Context, path string) error {
	segs, err := leafSegments(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	parent, ok := resolveParent(m.root, segs)
	if !ok {
		return fmt.Errorf("create folder %s: %w", canonical(segs), ErrParentNotFound)
	}
	name := basename(segs)
	if existing, ok := parent.Children[name]; ok {
		if existing.IsFolder() {
			return nil
		}
		return fmt.Errorf("create folder %s: %w", canonical(segs), ErrNotFolder)
	}
	parent.Children[name] = NewFolder(name)
	if err := m.persist(ctx); err != nil {
		delete(parent.Children, name)
		return err
	}
	return nil
}

// Delete removes a file or a folder with its whole subtree.
func (m *MemStore) Delete(ctx context.Context, path string) error {
	segs, err := leafSegments(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	parent, ok := resolveParent(m.root, segs)
	if !ok {
		return fmt.Errorf("delete %s: %w", canonical(segs), ErrNotFound)
	}
	name := basename(segs)
	removed, ok := parent.Children[name]
	if !ok {
		return fmt.Errorf("delete %s: %w", canonical(segs), ErrNotFound)
	}
	delete(parent.Children, name)
	if err := m.persist(ctx); err != nil {
		parent.Children[name] = removed
		return err
	}
	return nil
}

// Tree returns a deep copy of the workspace.
func (m *MemStore) Tree(context.Context) (*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.root.Clone(), nil
}

// Refresh is a no-op; the in-memory tree is authoritative.
func (m *MemStore) Refresh(context.Context) error { return nil }
