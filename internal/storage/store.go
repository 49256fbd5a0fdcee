// Package storage is the durable key-value store shared by every session that
// points at the same state directory. One YAML document per key; writes are
// atomic renames under a per-key flock, and Watch reports changes made by any
// process.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/shopfloor/internal/lock"
	atomicyaml "github.com/msageha/shopfloor/internal/yaml"
)

const docExt = ".yaml"

// LockTimeout bounds how long a write waits for another process holding the
// same key.
const LockTimeout = 5 * time.Second

// Change is a store write observed by Watch. Value is nil when the key was
// removed.
type Change struct {
	Key   string
	Value []byte
}

type Store struct {
	stateDir string
	dir      string
	locks    *lock.KeyedMutex
	logger   *zap.Logger
}

// Open prepares <stateDir>/storage.
func Open(stateDir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := filepath.Join(stateDir, "storage")
	if err := os.MkdirAll(filepath.Join(dir, ".locks"), 0755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Store{
		stateDir: stateDir,
		dir:      dir,
		locks:    lock.NewKeyedMutex(),
		logger:   logger.Named("storage"),
	}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, url.QueryEscape(key)+docExt)
}

func keyFromFile(name string) (string, bool) {
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, docExt) {
		return "", false
	}
	key, err := url.QueryUnescape(strings.TrimSuffix(name, docExt))
	if err != nil {
		return "", false
	}
	return key, true
}

// Get decodes key into out. found is false when the key does not exist or
// its document was corrupt and could not be restored.
func (s *Store) Get(key string, out any) (found bool, err error) {
	content, found, err := s.GetRaw(key)
	if err != nil || !found {
		return false, err
	}
	if err := yamlv3.Unmarshal(content, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// GetRaw returns the stored document bytes.
func (s *Store) GetRaw(key string) ([]byte, bool, error) {
	path := s.path(key)
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}

	var probe any
	if err := yamlv3.Unmarshal(content, &probe); err == nil {
		return content, true, nil
	}

	s.logger.Warn("corrupt document, quarantining", zap.String("key", key))
	restored, err := atomicyaml.RecoverCorruptedFile(s.stateDir, path)
	if err != nil {
		return nil, false, fmt.Errorf("recover %s: %w", key, err)
	}
	if !restored {
		return nil, false, nil
	}
	content, err = os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("read restored %s: %w", key, err)
	}
	return content, true, nil
}

func (s *Store) Set(key string, v any) error {
	return s.withLock(key, func() error {
		return atomicyaml.AtomicWrite(s.path(key), v)
	})
}

// SetRaw stores content verbatim. JSON is accepted since it is valid YAML.
func (s *Store) SetRaw(key string, content []byte) error {
	return s.withLock(key, func() error {
		return atomicyaml.AtomicWriteRaw(s.path(key), content)
	})
}

func (s *Store) Remove(key string) error {
	return s.withLock(key, func() error {
		err := os.Remove(s.path(key))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", key, err)
		}
		_ = os.Remove(s.path(key) + ".bak")
		return nil
	})
}

// Keys lists stored keys with the given prefix, sorted.
func (s *Store) Keys(prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list storage: %w", err)
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		key, ok := keyFromFile(e.Name())
		if ok && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Update runs a read-modify-write of key while holding both the in-process and
// the cross-process lock for it. fn receives the zero value when the key is
// absent.
func Update[T any](s *Store, key string, fn func(v *T) error) error {
	return s.withLock(key, func() error {
		var v T
		if _, err := s.Get(key, &v); err != nil {
			return err
		}
		if err := fn(&v); err != nil {
			return err
		}
		return atomicyaml.AtomicWrite(s.path(key), v)
	})
}

func (s *Store) withLock(key string, fn func() error) error {
	defer s.locks.Lock(key)()

	ctx, cancel := context.WithTimeout(context.Background(), LockTimeout)
	defer cancel()
	fl := lock.NewFileLock(filepath.Join(s.dir, ".locks", url.QueryEscape(key)+".lock"))
	if err := fl.LockContext(ctx); err != nil {
		return err
	}
	defer func() {
		if err := fl.Unlock(); err != nil {
			s.logger.Warn("release key lock", zap.String("key", key), zap.Error(err))
		}
	}()
	return fn()
}

// Watch reports every write and removal in the store until ctx is done. The
// channel is closed when watching stops. A single write may be reported more
// than once; consumers must tolerate duplicates.
func (s *Store) Watch(ctx context.Context) (<-chan Change, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", s.dir, err)
	}

	out := make(chan Change, 64)
	go func() {
		defer close(out)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				key, ok := keyFromFile(filepath.Base(event.Name))
				if !ok {
					continue
				}
				change := Change{Key: key}
				switch {
				case event.Has(fsnotify.Write) || event.Has(fsnotify.Create):
					content, err := os.ReadFile(event.Name)
					if err != nil {
						// Replaced again before we could read it; the next event carries it.
						continue
					}
					change.Value = content
				case event.Has(fsnotify.Remove):
				default:
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Error("fsnotify error", zap.Error(err))
			}
		}
	}()
	return out, nil
}
