package editor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/youruser/magide/internal/storage"
	"github.com/youruser/magide/internal/storage/kv"
)

// countingStore records writes and flags overlapping writes of one path.
type countingStore struct {
	storage.Store

	mu       sync.Mutex
	writes   map[string][]string
	inflight map[string]bool
	overlap  bool
	slow     time.Duration
}

func (c *countingStore) Write(ctx context.Context, path, content string) error {
	c.mu.Lock()
	if c.inflight[path] {
		c.overlap = true
	}
	c.inflight[path] = true
	c.mu.Unlock()

	time.Sleep(c.slow)
	err := c.Store.Write(ctx, path, content)

	c.mu.Lock()
	c.inflight[path] = false
	c.writes[path] = append(c.writes[path], content)
	c.mu.Unlock()
	return err
}

func (c *countingStore) writesOf(path string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes[path]...)
}

func newStore(t *testing.T) *countingStore {
	t.Helper()
	mem, err := storage.OpenMem(t.Context(), kv.NewMemory())
	if err != nil {
		t.Fatal(err)
	}
	return &countingStore{Store: mem, writes: map[string][]string{}, inflight: map[string]bool{}}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOpen(t *testing.T) {
	s := NewSession(newStore(t))

	content, lang, err := s.Open(t.Context(), "//demo.js")
	if err != nil {
		t.Fatal(err)
	}
	if lang != "javascript" || content == "" {
		t.Errorf("Open = %q, %q", content, lang)
	}
	if got := s.Paths(); len(got) != 1 || got[0] != "/demo.js" {
		t.Errorf("Paths = %v", got)
	}

	if _, _, err := s.Open(t.Context(), "/missing.js"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing file err = %v", err)
	}
}

func TestChangeDebounced(t *testing.T) {
	store := newStore(t)
	s := NewSession(store, WithDelay(30*time.Millisecond))
	if _, _, err := s.Open(t.Context(), "/demo.js"); err != nil {
		t.Fatal(err)
	}

	for _, c := range []string{"a", "ab", "abc"} {
		if err := s.Change("/demo.js", c); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(store.writesOf("/demo.js")); n != 0 {
		t.Errorf("wrote %d times before the quiet period", n)
	}

	waitFor(t, func() bool { return len(store.writesOf("/demo.js")) == 1 })
	time.Sleep(60 * time.Millisecond)
	if got := store.writesOf("/demo.js"); len(got) != 1 || got[0] != "abc" {
		t.Errorf("writes = %q", got)
	}
	rec, _ := store.Read(t.Context(), "/demo.js")
	if rec.Content != "abc" {
		t.Errorf("stored = %q", rec.Content)
	}
}

func TestChangeSkipsUnchanged(t *testing.T) {
	store := newStore(t)
	s := NewSession(store, WithDelay(10*time.Millisecond))
	original, _, err := s.Open(t.Context(), "/welcome.md")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Change("/welcome.md", original+" "); err != nil {
		t.Fatal(err)
	}
	if err := s.Change("/welcome.md", original); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := store.writesOf("/welcome.md"); len(got) != 0 {
		t.Errorf("writes = %q, want none", got)
	}
}

func TestSavesDoNotOverlap(t *testing.T) {
	store := newStore(t)
	store.slow = 20 * time.Millisecond
	var mu sync.Mutex
	saved := 0
	s := NewSession(store, WithDelay(5*time.Millisecond), WithSaveHook(func(string, error) {
		mu.Lock()
		saved++
		mu.Unlock()
	}))
	if _, _, err := s.Open(t.Context(), "/demo.js"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		if err := s.Change("/demo.js", string(rune('a'+i))); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := s.Close(t.Context()); err != nil {
		t.Fatal(err)
	}

	store.mu.Lock()
	overlap := store.overlap
	store.mu.Unlock()
	if overlap {
		t.Error("two writes of the same path overlapped")
	}
	writes := store.writesOf("/demo.js")
	if len(writes) == 0 || writes[len(writes)-1] != "e" {
		t.Errorf("writes = %q, last must be the final edit", writes)
	}
	mu.Lock()
	defer mu.Unlock()
	if saved != len(writes) {
		t.Errorf("save hook called %d times for %d writes", saved, len(writes))
	}
}

func TestFlushAndClose(t *testing.T) {
	store := newStore(t)
	s := NewSession(store, WithDelay(time.Hour))
	if _, _, err := s.Open(t.Context(), "/demo.js"); err != nil {
		t.Fatal(err)
	}
	if err := s.Change("/demo.js", "flushed"); err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(t.Context()); err != nil {
		t.Fatal(err)
	}
	if got := store.writesOf("/demo.js"); len(got) != 1 || got[0] != "flushed" {
		t.Errorf("writes = %q", got)
	}

	if err := s.Change("/demo.js", "on close"); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(t.Context()); err != nil {
		t.Fatal(err)
	}
	if got := store.writesOf("/demo.js"); len(got) != 2 || got[1] != "on close" {
		t.Errorf("writes = %q", got)
	}

	if err := s.Change("/demo.js", "late"); !errors.Is(err, ErrClosed) {
		t.Errorf("Change after Close = %v", err)
	}
	if _, _, err := s.Open(t.Context(), "/demo.js"); !errors.Is(err, ErrClosed) {
		t.Errorf("Open after Close = %v", err)
	}
	if err := s.Close(t.Context()); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestChangeNotOpen(t *testing.T) {
	s := NewSession(newStore(t))
	if err := s.Change("/demo.js", "x"); !errors.Is(err, ErrNotOpen) {
		t.Errorf("err = %v", err)
	}
	if err := s.Change("/../x", "x"); !errors.Is(err, storage.ErrPathEscape) {
		t.Errorf("escape err = %v", err)
	}
}

func TestReload(t *testing.T) {
	ctx := t.Context()
	store := newStore(t)
	s := NewSession(store, WithDelay(time.Hour))
	for _, p := range []string{"/demo.js", "/welcome.md"} {
		if _, _, err := s.Open(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	// demo.js changes underneath, welcome.md is deleted
	if err := store.Store.Write(ctx, "/demo.js", "from agent"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "/welcome.md"); err != nil {
		t.Fatal(err)
	}
	if err := s.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Content("/demo.js"); got != "from agent" {
		t.Errorf("demo.js buffer = %q", got)
	}
	if _, ok := s.Content("/welcome.md"); ok {
		t.Error("buffer of deleted file still open")
	}

	// a dirty buffer keeps the user's edit
	if err := s.Change("/demo.js", "mine"); err != nil {
		t.Fatal(err)
	}
	if err := store.Store.Write(ctx, "/demo.js", "agent again"); err != nil {
		t.Fatal(err)
	}
	if err := s.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Content("/demo.js"); got != "mine" {
		t.Errorf("dirty buffer = %q", got)
	}
	_ = s.Close(ctx)
}
