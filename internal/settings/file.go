package settings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// File is a Backend stored as a flat YAML mapping, for example:
//
//	shake_gestures_enabled: true
//	shake_gestures_action: 4
//
// A missing file reads as empty. Changes made by other writers are picked up
// through fsnotify on the containing directory, so editors that replace the
// file by rename are handled.
type File struct {
	path   string
	logger *slog.Logger

	// writeMu serializes Set so concurrent read-modify-write cycles do not
	// lose updates.
	writeMu sync.Mutex

	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewFile returns a File backend for path. The file does not need to exist,
// but its directory does.
func NewFile(path string, logger *slog.Logger) (*File, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve settings path: %w", err)
	}
	if info, err := os.Stat(filepath.Dir(abs)); err != nil {
		return nil, fmt.Errorf("settings directory: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("settings directory: %s is not a directory", filepath.Dir(abs))
	}
	return &File{
		path:    abs,
		logger:  logger,
		closeCh: make(chan struct{}),
	}, nil
}

// Path returns the absolute path of the settings file.
func (f *File) Path() string {
	return f.path
}

func (f *File) load() (map[string]any, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}

	values := map[string]any{}
	if len(bytes.TrimSpace(data)) == 0 {
		return values, nil
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", f.path, err)
	}
	return values, nil
}

func (f *File) GetInt(_ context.Context, key string, def int) (int, error) {
	if f.isClosed() {
		return 0, ErrClosed
	}
	values, err := f.load()
	if err != nil {
		return 0, err
	}
	raw, ok := values[key]
	if !ok || raw == nil {
		return def, nil
	}
	v, err := parseValue(raw)
	if err != nil {
		return 0, fmt.Errorf("key %s: %w", key, err)
	}
	return v, nil
}

// GetInts reads every key in defaults from a single load of the file.
func (f *File) GetInts(_ context.Context, defaults map[string]int) (map[string]int, error) {
	if f.isClosed() {
		return nil, ErrClosed
	}
	values, err := f.load()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(defaults))
	for key, def := range defaults {
		raw, ok := values[key]
		if !ok || raw == nil {
			out[key] = def
			continue
		}
		v, err := parseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}

// Set rewrites the file with key updated. The write goes through a temporary
// file and a rename so readers never observe a partial document.
func (f *File) Set(_ context.Context, key string, value int) error {
	if f.isClosed() {
		return ErrClosed
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}
	values[key] = value

	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

// Subscribe watches the settings file. A notification is sent only when the
// value of one of keys actually differs from the last value seen.
func (f *File) Subscribe(ctx context.Context, keys ...string) (<-chan struct{}, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrClosed
	}
	f.wg.Add(1)
	f.mu.Unlock()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		f.wg.Done()
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(f.path)); err != nil {
		w.Close()
		f.wg.Done()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(f.path), err)
	}

	last, err := f.load()
	if err != nil {
		// Unreadable now; the first successful load after a change will notify.
		last = nil
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer f.wg.Done()
		defer close(ch)
		defer w.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case <-f.closeCh:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != f.path {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
					!ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
					continue
				}
				cur, err := f.load()
				if err != nil {
					f.logger.Warn("settings file unreadable", "path", f.path, "error", err)
					continue
				}
				if changed(last, cur, keys) {
					last = cur
					notify(ch)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				f.logger.Warn("settings watcher error", "path", f.path, "error", err)
			}
		}
	}()

	return ch, nil
}

// Close stops all watchers.
func (f *File) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	close(f.closeCh)
	f.mu.Unlock()

	f.wg.Wait()
	return nil
}

func (f *File) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func changed(prev, cur map[string]any, keys []string) bool {
	if prev == nil {
		return true
	}
	if len(keys) == 0 {
		if len(prev) != len(cur) {
			return true
		}
		for k := range cur {
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		a, aok := prev[k]
		b, bok := cur[k]
		if aok != bok {
			return true
		}
		if !aok {
			continue
		}
		av, aerr := parseValue(a)
		bv, berr := parseValue(b)
		if aerr != nil || berr != nil {
			if fmt.Sprint(a) != fmt.Sprint(b) {
				return true
			}
			continue
		}
		if av != bv {
			return true
		}
	}
	return false
}
