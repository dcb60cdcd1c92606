package flagcache

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// observers is a subscription list. Callbacks run outside the lock, so a
// callback may subscribe or unsubscribe.
type observers[T any] struct {
	name   string
	logger *zap.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]func(T)
}

func newObservers[T any](name string, logger *zap.Logger) *observers[T] {
	return &observers[T]{name: name, logger: logger, subs: make(map[uint64]func(T))}
}

func (o *observers[T]) add(fn func(T)) func() {
	if fn == nil {
		return func() {}
	}

	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = fn
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
		})
	}
}

// notify calls subscribers in subscription order
func (o *observers[T]) notify(v T) {
	o.mu.Lock()
	ids := make([]uint64, 0, len(o.subs))
	for id := range o.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, o.subs[id])
	}
	o.mu.Unlock()

	for _, fn := range fns {
		o.call(fn, v)
	}
}

func (o *observers[T]) call(fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("subscriber panicked",
				zap.String("subscription", o.name),
				zap.Any("panic", r),
			)
		}
	}()
	fn(v)
}

func (o *observers[T]) clear() {
	o.mu.Lock()
	o.subs = make(map[uint64]func(T))
	o.mu.Unlock()
}

// OnFlagsUpdate subscribes to cache mutations. fn receives the active
// user's flags keyed by plain flag key.
func (m *Manager) OnFlagsUpdate(fn func(map[string]FlagResult)) (unsubscribe func()) {
	return m.flagSubs.add(fn)
}

// OnConfigUpdate subscribes to config and user changes.
func (m *Manager) OnConfigUpdate(fn func(Config)) (unsubscribe func()) {
	return m.configSubs.add(fn)
}

// OnReady runs fn once when the manager becomes ready. If it already is,
// fn runs immediately on the caller's goroutine.
func (m *Manager) OnReady(fn func()) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	m.readyMu.Lock()
	if m.isReady {
		m.readyMu.Unlock()
		m.readySubs.call(func(struct{}) { fn() }, struct{}{})
		return func() {}
	}
	unsubscribe = m.readySubs.add(func(struct{}) { fn() })
	m.readyMu.Unlock()

	return unsubscribe
}
