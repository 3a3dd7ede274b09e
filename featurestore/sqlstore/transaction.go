package sqlstore

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/xiaoxuxiansheng/gowfs/feature"
	"github.com/xiaoxuxiansheng/gowfs/featurestore"
	"github.com/xiaoxuxiansheng/gowfs/filter"
	"github.com/xiaoxuxiansheng/gowfs/log"
	"github.com/xiaoxuxiansheng/gowfs/ows"
	"gorm.io/gorm"
)

type transaction struct {
	store *Store
	tx    *gorm.DB
	dao   *FeatureDAO
	once  sync.Once
	// 已删除要素的锁，提交成功后才释放
	released []releasedFeature
}

type releasedFeature struct {
	lock featurestore.Lock
	fid  string
}

func (t *transaction) Store() featurestore.FeatureStore {
	return t.store
}

func (t *transaction) Commit(ctx context.Context) error {
	err := errors.New("transaction already closed")
	t.once.Do(func() {
		defer func() { <-t.store.sem }()
		if err = errors.Wrap(t.tx.Commit().Error, "commit"); err != nil {
			return
		}
		t.releaseLocks(ctx)
	})
	return err
}

// releaseLocks 数据已提交，释放失败只记录日志，残留的锁随过期清理
func (t *transaction) releaseLocks(ctx context.Context) {
	for _, r := range t.released {
		if err := r.lock.ReleaseFeature(ctx, r.fid); err != nil {
			log.WarnContextf(ctx, "release feature %s from lock %s failed, err: %v", r.fid, r.lock.ID(), err)
		}
	}
	t.released = nil
}

func (t *transaction) Rollback(ctx context.Context) error {
	err := errors.New("transaction already closed")
	t.once.Do(func() {
		defer func() { <-t.store.sem }()
		t.released = nil
		err = errors.Wrap(t.tx.Rollback().Error, "rollback")
	})
	return err
}

// PerformInsert 写入要素及其内嵌要素，返回顶层要素的 id。
// 要素会被原地修改：id 重新分配后，文档内引用随之改写
func (t *transaction) PerformInsert(ctx context.Context, fs []*feature.Feature, mode featurestore.IDGenMode) ([]string, error) {
	var all []*feature.Feature
	for _, f := range fs {
		f.Walk(func(nested *feature.Feature) {
			all = append(all, nested)
		})
	}

	renamed := make(map[string]string, len(all))
	for _, f := range all {
		id, err := t.assignID(ctx, f, mode)
		if err != nil {
			return nil, err
		}
		if f.ID != "" {
			renamed[f.ID] = id
		}
		f.ID = id
	}
	for _, f := range all {
		rewriteReferences(f, renamed)
	}

	now := t.store.opts.Now()
	pos := make([]*FeaturePO, 0, len(all))
	for _, f := range all {
		ft := t.store.schema.FeatureType(f.Type)
		if ft == nil {
			return nil, ows.InvalidParameter("typeName", fmt.Sprintf("Feature type '%s' is not served by this store.", f.Type.Local))
		}
		props, err := encodeProperties(f)
		if err != nil {
			return nil, err
		}
		pos = append(pos, &FeaturePO{
			ID:         f.ID,
			TypeName:   typeKey(ft.Name),
			Properties: props,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	if err := t.dao.CreateFeatures(ctx, pos); err != nil {
		return nil, errors.Wrap(err, "insert features")
	}

	ids := make([]string, 0, len(fs))
	for _, f := range fs {
		ids = append(ids, f.ID)
	}
	log.InfoContextf(ctx, "inserted %d feature(s), mode: %s", len(pos), mode)
	return ids, nil
}

func (t *transaction) assignID(ctx context.Context, f *feature.Feature, mode featurestore.IDGenMode) (string, error) {
	switch mode {
	case featurestore.UseExisting:
		if f.ID == "" {
			return "", ows.InvalidParameter("idgen", "Cannot insert feature with idgen=UseExisting: the feature has no id.")
		}
		exists, err := t.exists(ctx, f.ID)
		if err != nil {
			return "", err
		}
		if exists {
			return "", ows.InvalidParameter("idgen", fmt.Sprintf("Cannot insert feature '%s': a feature with this id already exists.", f.ID))
		}
		return f.ID, nil
	case featurestore.ReplaceDuplicate:
		if f.ID != "" {
			exists, err := t.exists(ctx, f.ID)
			if err != nil {
				return "", err
			}
			if !exists {
				return f.ID, nil
			}
		}
	}
	return strings.ToLower(f.Type.Local) + "_" + uuid.New().String(), nil
}

func (t *transaction) exists(ctx context.Context, fid string) (bool, error) {
	count, err := t.dao.CountFeatures(ctx, WithID(fid))
	if err != nil {
		return false, errors.Wrapf(err, "check feature %s", fid)
	}
	return count > 0, nil
}

func rewriteReferences(f *feature.Feature, renamed map[string]string) {
	for i, p := range f.Properties {
		ref, ok := p.Value.(feature.Reference)
		if !ok || !ref.Internal() {
			continue
		}
		if id, ok := renamed[ref.Target()]; ok {
			f.Properties[i].Value = feature.Reference{Href: "#" + id}
		}
	}
}

func (t *transaction) PerformUpdate(ctx context.Context, typeName xml.Name, replacements []featurestore.PropertyReplacement, f filter.Filter, lock featurestore.Lock) ([]string, error) {
	fs, err := t.store.query(ctx, t.dao, featurestore.Query{TypeName: typeName, Filter: f}, ForUpdate())
	if err != nil {
		return nil, err
	}

	now := t.store.opts.Now()
	ids := make([]string, 0, len(fs))
	for _, ft := range fs {
		if err := t.checkLock(ctx, ft.ID, lock); err != nil {
			return nil, err
		}
		for _, r := range replacements {
			if err := applyReplacement(ft, r); err != nil {
				return nil, err
			}
		}
		props, err := encodeProperties(ft)
		if err != nil {
			return nil, err
		}
		if err := t.dao.UpdateProperties(ctx, ft.ID, props, now); err != nil {
			return nil, errors.Wrapf(err, "update feature %s", ft.ID)
		}
		ids = append(ids, ft.ID)
	}
	return ids, nil
}

func sameName(a, b xml.Name) bool {
	return a.Local == b.Local && (a.Space == "" || b.Space == "" || a.Space == b.Space)
}

// applyReplacement Index 为 -1 时替换或删除该属性的全部值，否则只处理第 Index 个值
func applyReplacement(f *feature.Feature, r featurestore.PropertyReplacement) error {
	var positions []int
	for i, p := range f.Properties {
		if sameName(p.Name, r.Name) {
			positions = append(positions, i)
		}
	}

	if r.Index < 0 {
		insertAt := len(f.Properties)
		if len(positions) > 0 {
			insertAt = positions[0]
		}
		kept := make([]feature.Property, 0, len(f.Properties)+1)
		for i, p := range f.Properties {
			if i == insertAt && !r.Remove {
				kept = append(kept, feature.Property{Name: r.Name, Value: r.Value})
			}
			if !sameName(p.Name, r.Name) {
				kept = append(kept, p)
			}
		}
		if insertAt == len(f.Properties) && !r.Remove {
			kept = append(kept, feature.Property{Name: r.Name, Value: r.Value})
		}
		f.Properties = kept
		return nil
	}

	switch {
	case r.Index < len(positions) && r.Remove:
		pos := positions[r.Index]
		f.Properties = append(f.Properties[:pos:pos], f.Properties[pos+1:]...)
	case r.Index < len(positions):
		f.Properties[positions[r.Index]].Value = r.Value
	case r.Index == len(positions) && !r.Remove:
		at := len(f.Properties)
		if len(positions) > 0 {
			at = positions[len(positions)-1] + 1
		}
		f.Properties = append(f.Properties[:at:at], append([]feature.Property{{Name: r.Name, Value: r.Value}}, f.Properties[at:]...)...)
	default:
		return ows.InvalidParameter("PropertyName", fmt.Sprintf("Feature '%s' has no value with index %d for property '%s'.", f.ID, r.Index+1, r.Name.Local))
	}
	return nil
}

// checkLock 被其他锁持有的要素只能通过对应的 lockId 修改
func (t *transaction) checkLock(ctx context.Context, fid string, lock featurestore.Lock) error {
	var lockID string
	if lock != nil {
		lockID = lock.ID()
	}
	locked, err := t.store.locks.IsFeatureLocked(ctx, fid, lockID)
	if err != nil {
		return err
	}
	if !locked {
		return nil
	}
	if lock == nil {
		return ows.MissingParameter("lockId", fmt.Sprintf("Feature '%s' is locked, but no lockId was provided.", fid))
	}
	return ows.InvalidParameter("lockId", fmt.Sprintf("Feature '%s' is locked by another lock than '%s'.", fid, lockID))
}

func (t *transaction) PerformDeleteByIDs(ctx context.Context, ids []string, lock featurestore.Lock) (int, error) {
	for _, id := range ids {
		if err := t.checkLock(ctx, id, lock); err != nil {
			return 0, err
		}
	}
	return t.delete(ctx, ids, lock)
}

func (t *transaction) PerformDelete(ctx context.Context, typeName xml.Name, f *filter.OperatorFilter, lock featurestore.Lock) (int, error) {
	var flt filter.Filter
	if f != nil {
		flt = f
	}
	fs, err := t.store.query(ctx, t.dao, featurestore.Query{TypeName: typeName, Filter: flt}, ForUpdate())
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(fs))
	for _, ft := range fs {
		if err := t.checkLock(ctx, ft.ID, lock); err != nil {
			return 0, err
		}
		ids = append(ids, ft.ID)
	}
	return t.delete(ctx, ids, lock)
}

func (t *transaction) delete(ctx context.Context, ids []string, lock featurestore.Lock) (int, error) {
	deleted, err := t.dao.DeleteFeatures(ctx, ids)
	if err != nil {
		return 0, errors.Wrap(err, "delete features")
	}
	if lock != nil {
		for _, id := range ids {
			if lock.IsLocked(id) {
				t.released = append(t.released, releasedFeature{lock: lock, fid: id})
			}
		}
	}
	return int(deleted), nil
}

// PerformReplace 删除过滤命中的要素后写入替换要素
func (t *transaction) PerformReplace(ctx context.Context, replacement *feature.Feature, f filter.Filter, lock featurestore.Lock, mode featurestore.IDGenMode) ([]string, error) {
	fs, err := t.store.query(ctx, t.dao, featurestore.Query{TypeName: replacement.Type, Filter: f}, ForUpdate())
	if err != nil {
		return nil, err
	}
	if len(fs) == 0 {
		return nil, ows.InvalidParameter("Filter", "Cannot replace: the filter does not match any feature.")
	}

	ids := make([]string, 0, len(fs))
	for _, ft := range fs {
		if err := t.checkLock(ctx, ft.ID, lock); err != nil {
			return nil, err
		}
		ids = append(ids, ft.ID)
	}
	if _, err := t.delete(ctx, ids, lock); err != nil {
		return nil, err
	}
	return t.PerformInsert(ctx, []*feature.Feature{replacement}, mode)
}
