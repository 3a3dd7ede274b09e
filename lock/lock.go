package lock

import (
	"context"
	"sync"
	"time"

	"github.com/xiaoxuxiansheng/gowfs/featurestore"
)

type featureLock struct {
	m          *Manager
	id         string
	acquiredAt time.Time

	mux       sync.RWMutex
	expiresAt time.Time
	locked    []string
	failed    []string
	released  bool
}

func (l *featureLock) ID() string {
	return l.id
}

func (l *featureLock) AcquiredAt() time.Time {
	return l.acquiredAt
}

func (l *featureLock) ExpiresAt() time.Time {
	l.mux.RLock()
	defer l.mux.RUnlock()
	return l.expiresAt
}

func (l *featureLock) expiredAt(now time.Time) bool {
	return !now.Before(l.ExpiresAt())
}

func (l *featureLock) isReleased() bool {
	l.mux.RLock()
	defer l.mux.RUnlock()
	return l.released
}

// SetExpiry 更新过期时间，同时刷新 ttlcache 与 redis 中的记录
func (l *featureLock) SetExpiry(ctx context.Context, expiresAt time.Time) error {
	m := l.m
	m.mux.Lock()
	defer m.mux.Unlock()

	l.mux.Lock()
	l.expiresAt = expiresAt
	fids := append([]string(nil), l.locked...)
	l.mux.Unlock()

	ttl := expiresAt.Sub(m.opts.Now())
	if ttl <= 0 {
		m.locks.Remove(l.id)
		m.expired.Store(l.id, struct{}{})
		return nil
	}
	for _, fid := range fids {
		if err := m.publish(ctx, fid, l.id, expiresAt); err != nil {
			return err
		}
	}
	m.locks.SetWithTTL(l.id, l, ttl)
	return nil
}

func (l *featureLock) NumLocked() int {
	l.mux.RLock()
	defer l.mux.RUnlock()
	return len(l.locked)
}

func (l *featureLock) NumFailedToLock() int {
	l.mux.RLock()
	defer l.mux.RUnlock()
	return len(l.failed)
}

func (l *featureLock) LockedFeatures(ctx context.Context) (featurestore.IDCursor, error) {
	l.mux.RLock()
	defer l.mux.RUnlock()
	return featurestore.NewSliceCursor(append([]string(nil), l.locked...)), nil
}

func (l *featureLock) FailedToLockFeatures(ctx context.Context) (featurestore.IDCursor, error) {
	l.mux.RLock()
	defer l.mux.RUnlock()
	return featurestore.NewSliceCursor(append([]string(nil), l.failed...)), nil
}

func (l *featureLock) IsLocked(fid string) bool {
	l.mux.RLock()
	defer l.mux.RUnlock()
	for _, id := range l.locked {
		if id == fid {
			return true
		}
	}
	return false
}

// Release 释放全部要素，释放后 lockId 不再可用
func (l *featureLock) Release(ctx context.Context) error {
	m := l.m
	m.mux.Lock()
	defer m.mux.Unlock()

	l.mux.Lock()
	fids := l.locked
	l.locked = nil
	l.released = true
	l.mux.Unlock()

	m.dropOwners(ctx, l.id, fids)
	m.locks.Remove(l.id)
	return nil
}

func (l *featureLock) ReleaseFeature(ctx context.Context, fid string) error {
	m := l.m
	m.mux.Lock()
	defer m.mux.Unlock()

	l.mux.Lock()
	for i, id := range l.locked {
		if id == fid {
			l.locked = append(l.locked[:i:i], l.locked[i+1:]...)
			break
		}
	}
	l.mux.Unlock()

	m.dropOwners(ctx, l.id, []string{fid})
	return nil
}
