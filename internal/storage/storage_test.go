package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/youruser/magide/internal/storage/kv"
)

type storeFactory func(t *testing.T) Store

func memFactory(t *testing.T) Store {
	m, err := OpenMem(t.Context(), kv.NewMemory())
	if err != nil {
		t.Fatalf("OpenMem: %v", err)
	}
	return m
}

func diskFactory(t *testing.T) Store {
	d, err := OpenDisk(t.Context(), t.TempDir())
	if err != nil {
		t.Fatalf("OpenDisk: %v", err)
	}
	return d
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, f := range map[string]storeFactory{"virtual": memFactory, "real": diskFactory} {
		t.Run(name, func(t *testing.T) { fn(t, f(t)) })
	}
}

func mustRead(t *testing.T, s Store, path string) *FileRecord {
	t.Helper()
	rec, err := s.Read(t.Context(), path)
	if err != nil {
		t.Fatalf("Read(%q): %v", path, err)
	}
	return rec
}

func TestStoreContract(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := t.Context()

		t.Run("write then read", func(t *testing.T) {
			if err := s.Write(ctx, "/app.js", "let a = 1;\nlet b = 2;"); err != nil {
				t.Fatalf("Write: %v", err)
			}
			rec := mustRead(t, s, "/app.js")
			if rec == nil {
				t.Fatal("expected file")
			}
			if rec.Content != "let a = 1;\nlet b = 2;" || rec.Language != "javascript" || rec.Name != "app.js" {
				t.Errorf("rec = %+v", rec)
			}
		})

		t.Run("overwrite", func(t *testing.T) {
			if err := s.Write(ctx, "app.js", "x"); err != nil {
				t.Fatal(err)
			}
			if rec := mustRead(t, s, "/app.js"); rec == nil || rec.Content != "x" {
				t.Errorf("rec = %+v", rec)
			}
		})

		t.Run("redundant separators", func(t *testing.T) {
			if err := s.CreateFolder(ctx, "/src"); err != nil {
				t.Fatal(err)
			}
			if err := s.Write(ctx, "/src/main.js", "main"); err != nil {
				t.Fatal(err)
			}
			for _, p := range []string{"/src/main.js", "src/main.js", "src//main.js/", "./src/main.js"} {
				rec := mustRead(t, s, p)
				if rec == nil || rec.Content != "main" || rec.Path != "/src/main.js" {
					t.Errorf("Read(%q) = %+v", p, rec)
				}
			}
		})

		t.Run("absent is nil without error", func(t *testing.T) {
			for _, p := range []string{"/nope.txt", "/missing/deep.txt", "/app.js/inner.txt", "/src", "/", ""} {
				if rec := mustRead(t, s, p); rec != nil {
					t.Errorf("Read(%q) = %+v, want nil", p, rec)
				}
			}
		})

		t.Run("escape rejected", func(t *testing.T) {
			if err := s.Write(ctx, "/../evil.txt", "x"); !errors.Is(err, ErrPathEscape) {
				t.Errorf("Write escape err = %v", err)
			}
		})

		t.Run("write onto folder", func(t *testing.T) {
			if err := s.Write(ctx, "/src", "x"); !errors.Is(err, ErrIsFolder) {
				t.Errorf("err = %v, want ErrIsFolder", err)
			}
		})

		t.Run("create folder idempotent", func(t *testing.T) {
			if err := s.CreateFolder(ctx, "/src"); err != nil {
				t.Fatalf("second CreateFolder: %v", err)
			}
			if rec := mustRead(t, s, "/src/main.js"); rec == nil {
				t.Error("existing folder contents lost")
			}
		})

		t.Run("folder delete removes descendants", func(t *testing.T) {
			if err := s.CreateFolder(ctx, "/src/lib"); err != nil {
				t.Fatal(err)
			}
			if err := s.Write(ctx, "/src/lib/util.js", "u"); err != nil {
				t.Fatal(err)
			}
			if err := s.Refresh(ctx); err != nil {
				t.Fatal(err)
			}
			if err := s.Delete(ctx, "/src"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			for _, p := range []string{"/src/main.js", "/src/lib/util.js"} {
				if rec := mustRead(t, s, p); rec != nil {
					t.Errorf("%s survived folder delete", p)
				}
			}
			if err := s.Refresh(ctx); err != nil {
				t.Fatal(err)
			}
			tree, err := s.Tree(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if _, ok := Lookup(tree, "/src"); ok {
				t.Error("tree still lists /src")
			}
		})

		t.Run("delete missing", func(t *testing.T) {
			if err := s.Delete(ctx, "/ghost.txt"); !errors.Is(err, ErrNotFound) {
				t.Errorf("err = %v, want ErrNotFound", err)
			}
		})
	})
}

func TestMemStoreSeedsAndPersists(t *testing.T) {
	ctx := t.Context()
	backend := kv.NewMemory()

	m, err := OpenMem(ctx, backend)
	if err != nil {
		t.Fatal(err)
	}
	tree, _ := m.Tree(ctx)
	if got := tree.FilePaths(); !reflect.DeepEqual(got, []string{"/demo.js", "/welcome.md"}) {
		t.Fatalf("seed files = %v", got)
	}

	if err := m.Write(ctx, "/notes.md", "hi"); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenMem(ctx, backend)
	if err != nil {
		t.Fatal(err)
	}
	rec, _ := reopened.Read(ctx, "/notes.md")
	if rec == nil || rec.Content != "hi" || rec.Language != "markdown" {
		t.Errorf("reopened read = %+v", rec)
	}
	rec, _ = reopened.Read(ctx, "/welcome.md")
	if rec == nil {
		t.Error("seed file lost after reopen")
	}
}

func TestMemStoreRequiresParent(t *testing.T) {
	m := memFactory(t)
	err := m.Write(t.Context(), "/missing/a.js", "x")
	if !errors.Is(err, ErrParentNotFound) {
		t.Errorf("err = %v, want ErrParentNotFound", err)
	}
}

func TestMemStoreTreeIsCopy(t *testing.T) {
	ctx := t.Context()
	m := memFactory(t)
	tree, _ := m.Tree(ctx)
	tree.Children["demo.js"].Content = "mutated"

	rec, _ := m.Read(ctx, "/demo.js")
	if rec.Content == "mutated" {
		t.Error("Tree leaked internal node")
	}
}

// flakyKV fails every Put while broken is set.
type flakyKV struct {
	kv.Store
	broken bool
}

func (f *flakyKV) Put(ctx context.Context, key string, value []byte) error {
	if f.broken {
		return errors.New("disk full")
	}
	return f.Store.Put(ctx, key, value)
}

func TestMemStoreFailedPersistLeavesTree(t *testing.T) {
	ctx := t.Context()
	backend := &flakyKV{Store: kv.NewMemory()}
	m, err := OpenMem(ctx, backend)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.CreateFolder(ctx, "/src"); err != nil {
		t.Fatal(err)
	}
	before, _ := m.Tree(ctx)
	backend.broken = true

	mutations := map[string]func() error{
		"overwrite":     func() error { return m.Write(ctx, "/demo.js", "changed") },
		"create file":   func() error { return m.Write(ctx, "/src/new.js", "n") },
		"create folder": func() error { return m.CreateFolder(ctx, "/lib") },
		"delete file":   func() error { return m.Delete(ctx, "/welcome.md") },
		"delete folder": func() error { return m.Delete(ctx, "/src") },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			if err := mutate(); err == nil {
				t.Fatal("expected persist error")
			}
			after, _ := m.Tree(ctx)
			if !reflect.DeepEqual(after, before) {
				t.Errorf("tree changed after failed persist: %v", after.FilePaths())
			}
		})
	}

	backend.broken = false
	if err := m.Write(ctx, "/notes.md", "n"); err != nil {
		t.Fatal(err)
	}
	reopened, err := OpenMem(ctx, backend)
	if err != nil {
		t.Fatal(err)
	}
	if rec, _ := reopened.Read(ctx, "/demo.js"); rec == nil || rec.Content != demoContent {
		t.Errorf("demo.js after reopen = %+v", rec)
	}
	if rec, _ := reopened.Read(ctx, "/src/new.js"); rec != nil {
		t.Error("failed create leaked into a later snapshot")
	}
}

func TestMsgPackSnapshot(t *testing.T) {
	ctx := t.Context()
	backend := kv.NewMemory()

	m, err := OpenMem(ctx, backend, WithCodec(MsgPack), WithSnapshotKey("ws"))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.CreateFolder(ctx, "/empty"); err != nil {
		t.Fatal(err)
	}
	if err := m.CreateFolder(ctx, "/src"); err != nil {
		t.Fatal(err)
	}
	if err := m.Write(ctx, "/src/a.py", "print(1)"); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenMem(ctx, backend, WithCodec(MsgPack), WithSnapshotKey("ws"))
	if err != nil {
		t.Fatal(err)
	}
	rec, _ := reopened.Read(ctx, "src/a.py")
	if rec == nil || rec.Content != "print(1)" || rec.Language != "python" {
		t.Errorf("rec = %+v", rec)
	}
	// empty folders come back with a usable child map
	if err := reopened.Write(ctx, "/empty/b.txt", "b"); err != nil {
		t.Errorf("write into restored empty folder: %v", err)
	}
}

func TestJSONSnapshotShape(t *testing.T) {
	root := NewFolder("root")
	root.Children["a.js"] = NewFile("a.js", "x")
	data, err := JSON.Marshal(root)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"folder","name":"root","children":{"a.js":{"type":"file","name":"a.js","content":"x","language":"javascript"}}}`
	if string(data) != want {
		t.Errorf("snapshot = %s", data)
	}
}

func TestOpenMemCorruptSnapshot(t *testing.T) {
	ctx := t.Context()
	backend := kv.NewMemory()
	_ = backend.Put(ctx, DefaultSnapshotKey, []byte("{not json"))
	if _, err := OpenMem(ctx, backend); err == nil {
		t.Error("expected decode error")
	}
}

func TestDiskStoreAutoCreatesParents(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()
	d, err := OpenDisk(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := d.Write(ctx, "/a/b/c.txt", "deep"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "a", "b", "c.txt"))
	if err != nil || string(data) != "deep" {
		t.Errorf("on disk = %q, %v", data, err)
	}

	entries, _ := os.ReadDir(filepath.Join(dir, "a", "b"))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestDiskStoreMirrorRefresh(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>x</h1>"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, ".git", "objects"), 0755); err != nil {
		t.Fatal(err)
	}

	d, err := OpenDisk(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	tree, _ := d.Tree(ctx)
	if got := tree.FilePaths(); !reflect.DeepEqual(got, []string{"/index.html"}) {
		t.Fatalf("initial mirror = %v", got)
	}

	if err := d.Write(ctx, "/css/site.css", "body{}"); err != nil {
		t.Fatal(err)
	}
	tree, _ = d.Tree(ctx)
	if _, ok := Lookup(tree, "/css/site.css"); ok {
		t.Error("mirror changed before Refresh")
	}

	if err := d.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	tree, _ = d.Tree(ctx)
	if got := tree.FilePaths(); !reflect.DeepEqual(got, []string{"/css/site.css", "/index.html"}) {
		t.Errorf("refreshed mirror = %v", got)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, closeFn, err := Open(ctx, Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if _, ok := s.(*DiskStore); !ok {
		t.Errorf("Open with Dir = %T", s)
	}

	s, closeFn, err = Open(ctx, Options{KV: kv.Config{Backend: "memory"}, Codec: "msgpack"})
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if _, ok := s.(*MemStore); !ok {
		t.Errorf("Open virtual = %T", s)
	}

	if _, _, err := Open(ctx, Options{KV: kv.Config{Backend: "memory"}, Codec: "xml"}); err == nil {
		t.Error("expected codec error")
	}
}
