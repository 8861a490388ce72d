package product

import (
	"context"
	"slices"
	"sync"
)

// Locker hands out per-product mutual exclusion. Entries are reference counted
// so the map only holds products somebody is currently waiting on.
type Locker struct {
	mu    sync.Mutex
	locks map[uint]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[uint]*lockEntry)}
}

// Lock acquires every id in ascending order and returns the release func.
// Duplicate ids are locked once. Waiting stops when ctx is done.
func (l *Locker) Lock(ctx context.Context, ids ...uint) (func(), error) {
	keys := slices.Clone(ids)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	held := make([]uint, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			id := held[i]
			<-l.entry(id).sem
			l.unref(id)
		}
		held = held[:0]
	}

	for _, id := range keys {
		e := l.ref(id)
		select {
		case e.sem <- struct{}{}:
			held = append(held, id)
		case <-ctx.Done():
			l.unref(id)
			release()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *Locker) ref(id uint) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.locks[id]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		l.locks[id] = e
	}
	e.refs++
	return e
}

func (l *Locker) entry(id uint) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locks[id]
}

func (l *Locker) unref(id uint) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.locks[id]
	if !ok {
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(l.locks, id)
	}
}

// size is the number of products with live entries.
func (l *Locker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
