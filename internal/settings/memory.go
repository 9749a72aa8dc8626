package settings

import (
	"context"
	"sync"
)

type memorySub struct {
	keys []string
	ch   chan struct{}
}

// Memory is an in-process Backend. It is used when no persistent store is
// configured and in tests.
type Memory struct {
	mu     sync.Mutex
	values map[string]int
	subs   map[*memorySub]struct{}
	closed bool
	done   chan struct{}
}

// NewMemory returns a Memory backend seeded with initial.
func NewMemory(initial map[string]int) *Memory {
	values := make(map[string]int, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &Memory{
		values: values,
		subs:   make(map[*memorySub]struct{}),
		done:   make(chan struct{}),
	}
}

func (m *Memory) GetInt(_ context.Context, key string, def int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	v, ok := m.values[key]
	if !ok {
		return def, nil
	}
	return v, nil
}

func (m *Memory) GetInts(_ context.Context, defaults map[string]int) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make(map[string]int, len(defaults))
	for key, def := range defaults {
		if v, ok := m.values[key]; ok {
			out[key] = v
		} else {
			out[key] = def
		}
	}
	return out, nil
}

func (m *Memory) Set(_ context.Context, key string, value int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if old, ok := m.values[key]; ok && old == value {
		return nil
	}
	m.values[key] = value
	for s := range m.subs {
		if matches(s.keys, key) {
			notify(s.ch)
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, keys ...string) (<-chan struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	s := &memorySub{keys: keys, ch: make(chan struct{}, 1)}
	m.subs[s] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-m.done:
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subs[s]; ok {
			delete(m.subs, s)
			close(s.ch)
		}
	}()

	return s.ch, nil
}

// Close closes every subscription channel.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	for s := range m.subs {
		delete(m.subs, s)
		close(s.ch)
	}
	return nil
}
