package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/peterbourgon/diskv/v3"

	"github.com/ramonehamilton/binder-companion/internal/binder"
)

const docExt = ".json"

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// DiskStore keeps one JSON document per binder in a directory that other
// machines may share (a synced folder or network mount). Writes from this
// process are serialized; writers in other processes are detected through
// Watch and resolved by the version check.
type DiskStore struct {
	mu  sync.Mutex
	dir string
	d   *diskv.Diskv
	now func() time.Time
}

// NewDiskStore opens (creating if needed) a document directory.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, ".tmp"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create remote directory: %w", err)
	}
	return &DiskStore{
		dir: dir,
		// No read cache: other writers change files behind our back.
		d: diskv.New(diskv.Options{
			BasePath:          dir,
			AdvancedTransform: func(key string) *diskv.PathKey { return &diskv.PathKey{FileName: key + docExt} },
			InverseTransform:  func(pk *diskv.PathKey) string { return strings.TrimSuffix(pk.FileName, docExt) },
			CacheSizeMax:      0,
			TempDir:           filepath.Join(dir, ".tmp"),
		}),
		now: time.Now,
	}, nil
}

func (s *DiskStore) read(id string) (*binder.Binder, error) {
	if !s.d.Has(id) {
		return nil, ErrNotFound
	}
	data, err := s.d.Read(id)
	if err != nil {
		return nil, fmt.Errorf("failed to read binder %s: %w", id, err)
	}
	var b binder.Binder
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode binder %s: %w", id, err)
	}
	return &b, nil
}

// Fetch reads the stored document.
func (s *DiskStore) Fetch(ctx context.Context, id string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validID.MatchString(id) {
		return nil, fmt.Errorf("invalid binder id %q", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.read(id)
	if err != nil {
		return nil, err
	}
	return newSnapshot(b), nil
}

// Patch applies diff when the stored version matches and rewrites the file.
func (s *DiskStore) Patch(ctx context.Context, id string, diff binder.Diff, expectedVersion int64) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validID.MatchString(id) {
		return nil, fmt.Errorf("invalid binder id %q", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read(id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	next, err := applyPatch(id, current, diff, expectedVersion, s.now())
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("failed to encode binder %s: %w", id, err)
	}
	if err := s.d.WriteStream(id, bytes.NewReader(data), true); err != nil {
		return nil, fmt.Errorf("failed to write binder %s: %w", id, err)
	}
	return newSnapshot(next), nil
}

// Delete erases the document. Missing documents are not an error.
func (s *DiskStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.d.Has(id) {
		return nil
	}
	if err := s.d.Erase(id); err != nil {
		return fmt.Errorf("failed to erase binder %s: %w", id, err)
	}
	return nil
}

// Keys lists the stored binder ids.
func (s *DiskStore) Keys(ctx context.Context) []string {
	var ids []string
	for id := range s.d.Keys(ctx.Done()) {
		ids = append(ids, id)
	}
	return ids
}

// Watch reports the id of every document created, written or removed in the
// directory, by this process or any other. Bursts for one id may be
// delivered once; a full channel drops events.
func (s *DiskStore) Watch(ctx context.Context) (<-chan string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	ids := make(chan string, 64)
	go func() {
		defer close(ids)
		defer func() { _ = watcher.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !evt.Op.Has(fsnotify.Create) && !evt.Op.Has(fsnotify.Write) &&
					!evt.Op.Has(fsnotify.Remove) && !evt.Op.Has(fsnotify.Rename) {
					continue
				}
				name := filepath.Base(evt.Name)
				if !strings.HasSuffix(name, docExt) {
					continue
				}
				id := strings.TrimSuffix(name, docExt)
				if !validID.MatchString(id) {
					continue
				}
				select {
				case ids <- id:
				default:
				}
			}
		}
	}()
	return ids, nil
}
