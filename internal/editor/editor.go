// Package editor holds buffers opened from the workspace and writes edits
// back once the user stops typing.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/youruser/magide/internal/logging"
	"github.com/youruser/magide/internal/storage"
)

var (
	ErrClosed  = errors.New("editor session is closed")
	ErrNotOpen = errors.New("file is not open")

	log = logging.Get()
)

// DefaultDelay is the quiet period after the last edit before it is saved.
const DefaultDelay = 500 * time.Millisecond

type buffer struct {
	language string
	content  string
	// saved is the hash of the content storage is known to hold.
	saved string
	gen   uint64
	timer *time.Timer

	// persist serializes writes of this path.
	persist sync.Mutex
}

func (b *buffer) dirty() bool {
	return storage.HashContent(b.content) != b.saved
}

// Session tracks open buffers and their pending saves.
type Session struct {
	store  storage.Store
	delay  time.Duration
	onSave func(path string, err error)

	mu      sync.Mutex
	closed  bool
	buffers map[string]*buffer
	timers  sync.WaitGroup
}

type Option func(*Session)

func WithDelay(d time.Duration) Option {
	return func(s *Session) { s.delay = d }
}

// WithSaveHook is called after every write attempt, from the timer
// goroutine for debounced saves.
func WithSaveHook(fn func(path string, err error)) Option {
	return func(s *Session) { s.onSave = fn }
}

func NewSession(store storage.Store, opts ...Option) *Session {
	s := &Session{
		store:   store,
		delay:   DefaultDelay,
		buffers: make(map[string]*buffer),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.delay <= 0 {
		s.delay = DefaultDelay
	}
	return s
}

// Open loads path into a buffer and returns its content and language.
// Reopening a buffer with unsaved edits returns the edited content.
func (s *Session) Open(ctx context.Context, path string) (string, string, error) {
	p, err := storage.CleanPath(path)
	if err != nil {
		return "", "", err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", "", ErrClosed
	}
	if b, ok := s.buffers[p]; ok && b.dirty() {
		content, lang := b.content, b.language
		s.mu.Unlock()
		return content, lang, nil
	}
	s.mu.Unlock()

	rec, err := s.store.Read(ctx, p)
	if err != nil {
		return "", "", err
	}
	if rec == nil {
		return "", "", fmt.Errorf("open %s: %w", p, storage.ErrNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buffers[p]
	if !ok {
		b = &buffer{}
		s.buffers[p] = b
	}
	b.language = rec.Language
	b.content = rec.Content
	b.saved = storage.HashContent(rec.Content)
	return rec.Content, rec.Language, nil
}

// Change records new content for an open buffer and (re)arms its save
// timer. Only the last edit inside the quiet period is written.
func (s *Session) Change(path, content string) error {
	p, err := storage.CleanPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	b, ok := s.buffers[p]
	if !ok {
		return fmt.Errorf("%s: %w", p, ErrNotOpen)
	}

	b.content = content
	b.gen++
	s.stopLocked(b)

	gen := b.gen
	s.timers.Add(1)
	b.timer = time.AfterFunc(s.delay, func() {
		defer s.timers.Done()
		if err := s.save(context.Background(), p, gen); err != nil {
			log.Warn("autosave %s: %v", p, err)
		}
	})
	return nil
}

// stopLocked cancels a pending timer. A timer that already fired finishes
// on its own and notices the newer generation.
func (s *Session) stopLocked(b *buffer) {
	if b.timer != nil && b.timer.Stop() {
		s.timers.Done()
	}
	b.timer = nil
}

// save writes the buffer if it still differs from storage. A non-zero gen
// makes the save a no-op when a newer edit has been made since.
func (s *Session) save(ctx context.Context, p string, gen uint64) error {
	s.mu.Lock()
	b, ok := s.buffers[p]
	if !ok || (gen != 0 && b.gen != gen) {
		s.mu.Unlock()
		return nil
	}
	if gen != 0 {
		b.timer = nil
	}
	s.mu.Unlock()

	b.persist.Lock()
	defer b.persist.Unlock()

	s.mu.Lock()
	content := b.content
	unchanged := !b.dirty()
	s.mu.Unlock()
	if unchanged {
		return nil
	}

	err := s.store.Write(ctx, p, content)
	if err == nil {
		s.mu.Lock()
		b.saved = storage.HashContent(content)
		s.mu.Unlock()
		log.Debug("saved %s (%d bytes)", p, len(content))
	}
	if s.onSave != nil {
		s.onSave(p, err)
	}
	return err
}

// Flush writes every pending edit now.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	var pending []string
	for p, b := range s.buffers {
		s.stopLocked(b)
		if b.dirty() {
			pending = append(pending, p)
		}
	}
	s.mu.Unlock()
	sort.Strings(pending)

	var errs []error
	for _, p := range pending {
		if err := s.save(ctx, p, 0); err != nil {
			errs = append(errs, fmt.Errorf("save %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// Close flushes pending edits, waits for running saves and rejects any
// further use of the session.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.Flush(ctx)
	s.timers.Wait()
	return err
}

// Reload refreshes clean buffers from storage after something else changed
// the workspace. Buffers whose file disappeared are dropped; buffers with
// unsaved edits are left alone.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	var clean []string
	for p, b := range s.buffers {
		if b.timer == nil && !b.dirty() {
			clean = append(clean, p)
		}
	}
	s.mu.Unlock()

	for _, p := range clean {
		rec, err := s.store.Read(ctx, p)
		if err != nil {
			return fmt.Errorf("reload %s: %w", p, err)
		}
		s.mu.Lock()
		b, ok := s.buffers[p]
		switch {
		case !ok || b.timer != nil || b.dirty():
		case rec == nil:
			delete(s.buffers, p)
			log.Debug("closed buffer %s: file removed", p)
		default:
			b.content = rec.Content
			b.language = rec.Language
			b.saved = storage.HashContent(rec.Content)
		}
		s.mu.Unlock()
	}
	return nil
}

// Content returns the current buffer content for path.
func (s *Session) Content(path string) (string, bool) {
	p, err := storage.CleanPath(path)
	if err != nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buffers[p]
	if !ok {
		return "", false
	}
	return b.content, true
}

// Paths lists open buffers in sorted order.
func (s *Session) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.buffers))
	for p := range s.buffers {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
