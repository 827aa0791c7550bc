package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// skipDirs are never mirrored into the presentation tree.
var skipDirs = map[string]bool{".git": true}

// DiskStore maps logical paths onto a real directory. It keeps a mirrored
// tree for presentation that is rebuilt only on Open and Refresh.
type DiskStore struct {
	dir string

	mu     sync.RWMutex
	mirror *Node
}

var _ Store = (*DiskStore)(nil)

// OpenDisk opens dir as a workspace and scans it.
func OpenDisk(ctx context.Context, dir string) (*DiskStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open workspace %s: %w", abs, ErrNotFolder)
	}

	d := &DiskStore{dir: abs}
	if err := d.Refresh(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Dir returns the absolute workspace root.
func (d *DiskStore) Dir() string { return d.dir }

// resolve maps a logical path to an absolute path under the root.
func (d *DiskStore) resolve(path string) ([]string, string, error) {
	segs, err := leafSegments(path)
	if err != nil {
		return nil, "", err
	}
	abs, err := SafeJoin(d.dir, filepath.Join(segs...))
	if err != nil {
		return nil, "", err
	}
	ok, err := IsWithinDirReal(d.dir, abs)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", ErrPathEscape
	}
	return segs, abs, nil
}

func (d *DiskStore) Read(ctx context.Context, path string) (*FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	segs, abs, err := d.resolve(path)
	if errors.Is(err, ErrInvalidPath) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	name := basename(segs)
	return &FileRecord{Path: canonical(segs), Name: name, Content: string(data), Language: DetectLanguage(name)}, nil
}

// Write creates intermediate folders, then commits content via a temp file
// and rename in the target directory.
func (d *DiskStore) Write(ctx context.Context, path, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	segs, abs, err := d.resolve(path)
	if err != nil {
		return err
	}

	mode := fs.FileMode(0644)
	if info, err := os.Stat(abs); err == nil {
		if info.IsDir() {
			return fmt.Errorf("write %s: %w", canonical(segs), ErrIsFolder)
		}
		mode = info.Mode().Perm()
	}

	parent := filepath.Dir(abs)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("write %s: %w", canonical(segs), err)
	}

	tmp, err := os.CreateTemp(parent, "."+basename(segs)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", canonical(segs), err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", canonical(segs), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", canonical(segs), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", canonical(segs), err)
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return fmt.Errorf("write %s: %w", canonical(segs), err)
	}
	if err := os.Rename(tmp.Name(), abs); err != nil {
		return fmt.Errorf("write %s: %w", canonical(segs), err)
	}
	return nil
}

func (d *DiskStore) CreateFolder(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	segs, abs, err := d.resolve(path)
	if err != nil {
		return err
	}
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		return fmt.Errorf("create folder %s: %w", canonical(segs), ErrNotFolder)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return fmt.Errorf("create folder %s: %w", canonical(segs), err)
	}
	return nil
}

// Delete removes a file or a directory recursively.
func (d *DiskStore) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	segs, abs, err := d.resolve(path)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", canonical(segs), ErrNotFound)
		}
		return err
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("delete %s: %w", canonical(segs), err)
	}
	return nil
}

// Tree returns the mirror as of the last Refresh. File nodes carry no
// content; read them through Read.
func (d *DiskStore) Tree(context.Context) (*Node, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mirror.Clone(), nil
}

// Refresh rescans the whole directory.
func (d *DiskStore) Refresh(ctx context.Context) error {
	root, err := scanDir(ctx, d.dir, filepath.Base(d.dir))
	if err != nil {
		return fmt.Errorf("scan workspace: %w", err)
	}
	d.mu.Lock()
	d.mirror = root
	d.mu.Unlock()
	log.Debug("scanned workspace %s: %d files", d.dir, len(root.FilePaths()))
	return nil
}

func scanDir(ctx context.Context, dir, name string) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	node := NewFolder(name)
	for _, e := range entries {
		switch {
		case e.IsDir():
			if skipDirs[e.Name()] {
				continue
			}
			child, err := scanDir(ctx, filepath.Join(dir, e.Name()), e.Name())
			if err != nil {
				return nil, err
			}
			node.Children[e.Name()] = child
		case e.Type().IsRegular(), e.Type()&fs.ModeSymlink != 0:
			node.Children[e.Name()] = &Node{Kind: KindFile, Name: e.Name(), Language: DetectLanguage(e.Name())}
		}
	}
	return node, nil
}
