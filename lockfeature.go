package gowfs

import (
	"context"
	"io"
	"time"

	"github.com/xiaoxuxiansheng/gowfs/featurestore"
	"github.com/xiaoxuxiansheng/gowfs/log"
	"github.com/xiaoxuxiansheng/gowfs/metrics"
	"github.com/xiaoxuxiansheng/gowfs/ows"
	"github.com/xiaoxuxiansheng/gowfs/protocol"
)

// LockFeatureHandler 执行 LockFeature 请求，加锁与续期都由第一个存储的锁管理器负责
type LockFeatureHandler struct {
	stores   *StoreManager
	opts     *Options
	analyzer *queryAnalyzer
}

func NewLockFeatureHandler(stores *StoreManager, opts *Options, analyzer *queryAnalyzer) *LockFeatureHandler {
	return &LockFeatureHandler{stores: stores, opts: opts, analyzer: analyzer}
}

func (h *LockFeatureHandler) DoLockFeature(ctx context.Context, req *protocol.LockFeature, w io.Writer) error {
	stores := h.stores.Stores()
	if len(stores) == 0 {
		return ows.New("Cannot acquire lock manager: no feature store defined", ows.NoApplicableCode)
	}
	manager, err := stores[0].LockManager()
	if err != nil {
		return ows.New("Cannot acquire lock manager: "+err.Error(), ows.NoApplicableCode)
	}

	expiry := h.opts.LockExpiry
	if req.ExpirySeconds != nil {
		expiry = time.Duration(*req.ExpirySeconds) * time.Second
	}

	var lock featurestore.Lock
	if req.ExistingLockID != "" {
		lock, err = h.renew(ctx, manager, req.ExistingLockID, expiry)
	} else {
		lock, err = h.acquire(ctx, stores[0], manager, req, expiry)
	}
	if err != nil {
		return err
	}
	return writeLockFeatureResponse(ctx, w, req.Version, lock)
}

// renew 新的过期时间从最初获取锁的时间算起
func (h *LockFeatureHandler) renew(ctx context.Context, manager featurestore.LockManager, lockID string, expiry time.Duration) (featurestore.Lock, error) {
	lock, err := manager.GetLock(ctx, lockID)
	if err != nil {
		return nil, err
	}
	expiresAt := lock.AcquiredAt().Add(expiry)
	if err := lock.SetExpiry(ctx, expiresAt); err != nil {
		if _, ok := ows.As(err); ok {
			return nil, err
		}
		return nil, ows.New("Cannot renew lock: "+err.Error(), ows.NoApplicableCode)
	}
	log.InfoContextf(ctx, "lock %s renewed until %s", lockID, expiresAt.Format(time.RFC3339))
	metrics.IncLock("renew")
	return lock, nil
}

func (h *LockFeatureHandler) acquire(ctx context.Context, store featurestore.FeatureStore, manager featurestore.LockManager,
	req *protocol.LockFeature, expiry time.Duration) (featurestore.Lock, error) {
	lockAll := true
	if req.LockAll != nil {
		lockAll = *req.LockAll
	}
	queries, err := h.analyzer.analyze(store, req.Queries)
	if err != nil {
		return nil, err
	}

	lock, err := manager.AcquireLock(ctx, queries, lockAll, expiry)
	if err != nil {
		if e, ok := ows.As(err); ok {
			return nil, ows.New(e.Message, ows.CannotLockAllFeatures, e.Locator)
		}
		return nil, ows.New(err.Error(), ows.NoApplicableCode)
	}
	metrics.IncLock("acquire")
	return lock, nil
}
