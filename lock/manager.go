package lock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ReneKroon/ttlcache"
	"github.com/demdxx/gocast"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/xiaoxuxiansheng/gowfs/feature"
	"github.com/xiaoxuxiansheng/gowfs/featurestore"
	"github.com/xiaoxuxiansheng/gowfs/log"
	"github.com/xiaoxuxiansheng/gowfs/ows"
	"github.com/xiaoxuxiansheng/gowfs/pkg"
	"github.com/xiaoxuxiansheng/redis_lock"
)

// Querier 执行锁定查询
type Querier interface {
	Query(ctx context.Context, q featurestore.Query) ([]*feature.Feature, error)
}

// Manager 进程内的锁表，锁到期后由 ttlcache 淘汰；配置了 redis 时，
// 加锁过程由分布式互斥锁串行化，要素的归属同步写入 redis
type Manager struct {
	querier Querier
	opts    *Options

	mux sync.Mutex
	// lockID -> *featureLock
	locks *ttlcache.Cache
	// fid -> lockID
	owners map[string]string
	// 已过期的 lockID
	expired sync.Map
}

func NewManager(querier Querier, opts ...Option) *Manager {
	m := &Manager{
		querier: querier,
		opts:    &Options{},
		locks:   ttlcache.NewCache(),
		owners:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(m.opts)
	}
	repair(m.opts)
	m.locks.SetExpirationCallback(m.onExpire)
	return m
}

// Close 停止 ttlcache 的淘汰协程
func (m *Manager) Close() {
	m.locks.Close()
}

// onExpire 运行在 ttlcache 的协程中，不能获取 m.mux
func (m *Manager) onExpire(key string, value interface{}) {
	if lk, ok := value.(*featureLock); ok && lk.isReleased() {
		return
	}
	m.expired.Store(key, struct{}{})
}

func (m *Manager) AcquireLock(ctx context.Context, queries []featurestore.Query, lockAll bool, expiry time.Duration) (featurestore.Lock, error) {
	if expiry <= 0 {
		expiry = m.opts.DefaultExpiry
	}

	if m.opts.Client != nil {
		guard := redis_lock.NewRedisLock(pkg.BuildLockGuardKey(), m.opts.Client, redis_lock.WithExpireSeconds(m.opts.GuardExpireSeconds))
		if err := guard.Lock(ctx); err != nil {
			return nil, errors.Wrap(err, "acquire lock guard")
		}
		defer func() {
			if err := guard.Unlock(ctx); err != nil {
				log.ErrorContextf(ctx, "release lock guard failed, err: %v", err)
			}
		}()
	}

	m.mux.Lock()
	defer m.mux.Unlock()

	var candidates []string
	seen := make(map[string]bool)
	for _, q := range queries {
		fs, err := m.querier.Query(ctx, q)
		if err != nil {
			return nil, errors.Wrapf(err, "query features of %s", q.TypeName.Local)
		}
		for _, f := range fs {
			if !seen[f.ID] {
				seen[f.ID] = true
				candidates = append(candidates, f.ID)
			}
		}
	}

	var lockable, failed []string
	for _, fid := range candidates {
		locked, err := m.lockedByOther(ctx, fid, "")
		if err != nil {
			return nil, err
		}
		if locked {
			failed = append(failed, fid)
			continue
		}
		lockable = append(lockable, fid)
	}
	if lockAll && len(failed) > 0 {
		return nil, ows.New(fmt.Sprintf("Cannot lock all requested features: %d feature(s) are locked by other locks.", len(failed)), ows.CannotLockAllFeatures)
	}

	now := m.opts.Now()
	lk := &featureLock{
		m:          m,
		id:         uuid.New().String(),
		acquiredAt: now,
		expiresAt:  now.Add(expiry),
		locked:     lockable,
		failed:     failed,
	}
	for _, fid := range lockable {
		m.owners[fid] = lk.id
		if err := m.publish(ctx, fid, lk.id, lk.expiresAt); err != nil {
			m.dropOwners(ctx, lk.id, lockable)
			return nil, err
		}
	}
	m.locks.SetWithTTL(lk.id, lk, expiry)
	log.InfoContextf(ctx, "lock %s acquired, locked: %d, failed: %d", lk.id, len(lockable), len(failed))
	return lk, nil
}

func (m *Manager) GetLock(ctx context.Context, lockID string) (featurestore.Lock, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	lk, err := m.getLock(lockID)
	if err != nil {
		return nil, err
	}
	return lk, nil
}

func (m *Manager) getLock(lockID string) (*featureLock, error) {
	if value, ok := m.locks.Get(lockID); ok {
		lk := value.(*featureLock)
		if !lk.expiredAt(m.opts.Now()) {
			return lk, nil
		}
		m.locks.Remove(lockID)
		m.expired.Store(lockID, struct{}{})
	}
	if _, ok := m.expired.Load(lockID); ok {
		return nil, ows.New(fmt.Sprintf("Lock with id '%s' has expired.", lockID), ows.LockHasExpired, "lockId")
	}
	return nil, ows.InvalidParameter("lockId", fmt.Sprintf("Unknown lockId: %s", lockID))
}

func (m *Manager) IsFeatureLocked(ctx context.Context, fid string, lockID string) (bool, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.lockedByOther(ctx, fid, lockID)
}

// lockedByOther 要素是否被 lockID 以外仍然有效的锁持有
func (m *Manager) lockedByOther(ctx context.Context, fid string, lockID string) (bool, error) {
	if owner, ok := m.owners[fid]; ok {
		if owner == lockID {
			return false, nil
		}
		if _, err := m.getLock(owner); err == nil {
			return true, nil
		}
		delete(m.owners, fid)
	}

	if m.opts.Client == nil {
		return false, nil
	}
	value, err := m.opts.Client.Get(ctx, pkg.BuildFeatureLockKey(fid))
	if errors.Is(err, redis_lock.ErrNil) || (err == nil && value == "") {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "get owner of feature %s", fid)
	}
	owner, expiresAt := parseOwner(value)
	return owner != lockID && m.opts.Now().Before(expiresAt), nil
}

func (m *Manager) publish(ctx context.Context, fid, lockID string, expiresAt time.Time) error {
	if m.opts.Client == nil {
		return nil
	}
	if _, err := m.opts.Client.Set(ctx, pkg.BuildFeatureLockKey(fid), formatOwner(lockID, expiresAt)); err != nil {
		return errors.Wrapf(err, "publish owner of feature %s", fid)
	}
	return nil
}

// dropOwners 调用方需持有 m.mux
func (m *Manager) dropOwners(ctx context.Context, lockID string, fids []string) {
	for _, fid := range fids {
		if m.owners[fid] != lockID {
			continue
		}
		delete(m.owners, fid)
		if m.opts.Client == nil {
			continue
		}
		if err := m.opts.Client.Del(ctx, pkg.BuildFeatureLockKey(fid)); err != nil {
			log.ErrorContextf(ctx, "delete owner of feature %s failed, err: %v", fid, err)
		}
	}
}

func formatOwner(lockID string, expiresAt time.Time) string {
	return fmt.Sprintf("%s|%d", lockID, expiresAt.UnixMilli())
}

func parseOwner(value string) (string, time.Time) {
	parts := strings.SplitN(value, "|", 2)
	if len(parts) != 2 {
		return value, time.Time{}
	}
	return parts[0], time.UnixMilli(gocast.ToInt64(parts[1]))
}
