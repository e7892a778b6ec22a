package lock

import (
	"context"
	"sync"
	"time"
)

// LocalLocker is a single-process Locker for the memory store driver and tests.
// The mutex guards only the lease table; it is never held while the lease is in use.
type LocalLocker struct {
	mu     sync.Mutex
	leases map[string]time.Time
	now    func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{leases: make(map[string]time.Time), now: time.Now}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	key = "lock:" + key
	if !l.lease(key, ttl) {
		return func() {}, false, nil
	}
	return func() {
		l.mu.Lock()
		delete(l.leases, key)
		l.mu.Unlock()
	}, true, nil
}

func (l *LocalLocker) Seen(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	expires, ok := l.leases["seen:"+key]
	return ok && l.now().Before(expires), nil
}

func (l *LocalLocker) MarkSeen(_ context.Context, key string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.leases["seen:"+key] = l.now().Add(ttl)
	return nil
}

func (l *LocalLocker) lease(key string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expires, held := l.leases[key]; held && now.Before(expires) {
		return false
	}
	l.leases[key] = now.Add(ttl)
	return true
}
