// Package visibility tracks whether the host is in the foreground.
//
// Hosts without a foreground concept (servers, CLIs) use AlwaysVisible.
// Embedding applications drive a Signal from their own lifecycle events.
package visibility

import (
	"sync"

	"go.uber.org/zap"
)

// Source reports foreground state and its transitions
type Source interface {
	Visible() bool

	// Subscribe registers fn for transitions; the returned func unsubscribes
	Subscribe(fn func(visible bool)) (cancel func())
}

// AlwaysVisible is a Source that never leaves the foreground
type AlwaysVisible struct{}

// Visible implements Source
func (AlwaysVisible) Visible() bool { return true }

// Subscribe implements Source; there are no transitions to report
func (AlwaysVisible) Subscribe(func(bool)) func() { return func() {} }

// Signal is a host-driven Source
type Signal struct {
	mu      sync.Mutex
	visible bool
	nextID  int
	subs    map[int]func(bool)
}

// NewSignal creates a signal in the given initial state
func NewSignal(visible bool) *Signal {
	return &Signal{visible: visible, subs: make(map[int]func(bool))}
}

// Visible implements Source
func (s *Signal) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// Subscribe implements Source
func (s *Signal) Subscribe(fn func(bool)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// SetVisible records the new state and notifies subscribers on change.
// Subscribers run synchronously on the caller's goroutine.
func (s *Signal) SetVisible(visible bool) {
	s.mu.Lock()
	if s.visible == visible {
		s.mu.Unlock()
		return
	}
	s.visible = visible
	subs := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(visible)
	}
}

// Monitor calls a hook when the source returns to the foreground
type Monitor struct {
	source       Source
	onForeground func()
	logger       *zap.Logger

	mu     sync.Mutex
	cancel func()
}

// NewMonitor creates a stopped monitor
func NewMonitor(source Source, onForeground func(), logger *zap.Logger) *Monitor {
	if source == nil {
		source = AlwaysVisible{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{source: source, onForeground: onForeground, logger: logger}
}

// Visible reports the source's current state
func (m *Monitor) Visible() bool {
	return m.source.Visible()
}

// Start subscribes to the source; calling it twice is a no-op
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return
	}
	m.cancel = m.source.Subscribe(m.handle)
}

// Stop unsubscribes; it is safe to call repeatedly
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (m *Monitor) handle(visible bool) {
	if !visible {
		m.logger.Debug("host moved to background")
		return
	}

	m.mu.Lock()
	running := m.cancel != nil
	m.mu.Unlock()
	if !running || m.onForeground == nil {
		return
	}

	m.logger.Debug("host returned to foreground")
	m.onForeground()
}
