package memory

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// KeyedLocker is a process-local lock per key. TryLock blocks until the key is
// free or ctx is done; ttl is ignored because holders always unlock.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
	seq   atomic.Uint64
}

type keyedEntry struct {
	ch    chan struct{}
	token string
	refs  int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: map[string]*keyedEntry{}}
}

func (l *KeyedLocker) TryLock(ctx context.Context, key string, _ time.Duration) (string, error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return "", ctx.Err()
	}
	token := strconv.FormatUint(l.seq.Add(1), 10)
	l.mu.Lock()
	e.token = token
	l.mu.Unlock()
	return token, nil
}

func (l *KeyedLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok || e.token != token {
		l.mu.Unlock()
		return nil
	}
	e.token = ""
	l.mu.Unlock()
	<-e.ch
	l.release(key, e)
	return nil
}

func (l *KeyedLocker) release(key string, e *keyedEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}
