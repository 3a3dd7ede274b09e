package gowfs

import (
	"context"
	"encoding/xml"
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
	"github.com/xiaoxuxiansheng/gowfs/feature"
	"github.com/xiaoxuxiansheng/gowfs/featurestore"
	"github.com/xiaoxuxiansheng/gowfs/filter"
	"github.com/xiaoxuxiansheng/gowfs/geometry"
	"github.com/xiaoxuxiansheng/gowfs/lock"
)

const appNamespace = "http://www.example.org/app"

func roadSchema() *feature.Schema {
	return &feature.Schema{FeatureTypes: []*feature.FeatureType{{
		Name: xml.Name{Space: appNamespace, Local: "Road"},
		Properties: []*feature.PropertyType{
			{Name: xml.Name{Space: appNamespace, Local: "name"}, Kind: feature.KindSimple, Primitive: feature.TypeString, MaxOccurs: 1},
			{Name: xml.Name{Space: appNamespace, Local: "lanes"}, Kind: feature.KindSimple, Primitive: feature.TypeInteger, MaxOccurs: 1},
			{Name: xml.Name{Space: appNamespace, Local: "geom"}, Kind: feature.KindGeometry, MaxOccurs: 1},
		},
	}}}
}

func riverSchema() *feature.Schema {
	return &feature.Schema{FeatureTypes: []*feature.FeatureType{{
		Name: xml.Name{Space: appNamespace, Local: "River"},
		Properties: []*feature.PropertyType{
			{Name: xml.Name{Space: appNamespace, Local: "name"}, Kind: feature.KindSimple, Primitive: feature.TypeString, MaxOccurs: 1},
		},
	}}}
}

func road(id, name string, lanes int64, x, y float64) *feature.Feature {
	ns := func(local string) xml.Name { return xml.Name{Space: appNamespace, Local: local} }
	return &feature.Feature{
		ID:   id,
		Type: ns("Road"),
		Properties: []feature.Property{
			{Name: ns("name"), Value: name},
			{Name: ns("lanes"), Value: lanes},
			{Name: ns("geom"), Value: &geometry.Geometry{
				Kind:   geometry.KindPoint,
				CRS:    geometry.MustLookupCRS("EPSG:4326"),
				Points: []geometry.Point{{X: x, Y: y}},
			}},
		},
	}
}

// memStore 内存要素存储，事务直接修改数据，只统计提交与回滚次数
type memStore struct {
	schema   *feature.Schema
	features map[string]*feature.Feature
	order    []string
	locks    *lock.Manager

	seq       int
	commits   int
	rollbacks int
	// 非空时所有写操作返回该错误
	failWith error
}

func newMemStore(schema *feature.Schema, fs ...*feature.Feature) *memStore {
	s := &memStore{schema: schema, features: make(map[string]*feature.Feature)}
	for _, f := range fs {
		s.put(f)
	}
	s.locks = lock.NewManager(s)
	return s
}

func (s *memStore) close() {
	s.locks.Close()
}

func (s *memStore) put(f *feature.Feature) {
	if _, ok := s.features[f.ID]; !ok {
		s.order = append(s.order, f.ID)
	}
	s.features[f.ID] = f
}

func (s *memStore) remove(fid string) bool {
	if _, ok := s.features[fid]; !ok {
		return false
	}
	delete(s.features, fid)
	for i, id := range s.order {
		if id == fid {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *memStore) Schema() *feature.Schema {
	return s.schema
}

func (s *memStore) AcquireTransaction(ctx context.Context) (featurestore.Transaction, error) {
	return &memTx{store: s}, nil
}

func (s *memStore) LockManager() (featurestore.LockManager, error) {
	if s.locks == nil {
		return nil, errors.New("no lock manager")
	}
	return s.locks, nil
}

func (s *memStore) Envelope(ctx context.Context, typeName xml.Name) (*geometry.Envelope, error) {
	var env *geometry.Envelope
	for _, id := range s.order {
		f := s.features[id]
		if f.Type.Local != typeName.Local {
			continue
		}
		for _, g := range f.Geometries() {
			e := g.Envelope()
			if env == nil {
				env = &e
				continue
			}
			env.MinX, env.MinY = math.Min(env.MinX, e.MinX), math.Min(env.MinY, e.MinY)
			env.MaxX, env.MaxY = math.Max(env.MaxX, e.MaxX), math.Max(env.MaxY, e.MaxY)
		}
	}
	return env, nil
}

func (s *memStore) HasFeature(ctx context.Context, fid string) (bool, error) {
	_, ok := s.features[fid]
	return ok, nil
}

func (s *memStore) Query(ctx context.Context, q featurestore.Query) ([]*feature.Feature, error) {
	if s.schema.FeatureType(q.TypeName) == nil {
		return nil, errors.Errorf("feature type '%s' is not served", q.TypeName.Local)
	}
	var out []*feature.Feature
	for _, id := range s.order {
		f := s.features[id]
		if f.Type.Local != q.TypeName.Local {
			continue
		}
		ok, err := featurestore.Matches(q.Filter, f)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, f)
		}
	}
	return out, nil
}

type memTx struct {
	store *memStore
}

func (t *memTx) Store() featurestore.FeatureStore {
	return t.store
}

func (t *memTx) checkLock(ctx context.Context, fid string, lk featurestore.Lock) error {
	lockID := ""
	if lk != nil {
		lockID = lk.ID()
	}
	locked, err := t.store.locks.IsFeatureLocked(ctx, fid, lockID)
	if err != nil {
		return err
	}
	if locked {
		return errors.Errorf("feature '%s' is locked", fid)
	}
	return nil
}

func (t *memTx) PerformInsert(ctx context.Context, fs []*feature.Feature, mode featurestore.IDGenMode) ([]string, error) {
	if t.store.failWith != nil {
		return nil, t.store.failWith
	}
	var fids []string
	for _, f := range fs {
		if mode == featurestore.GenerateNew || f.ID == "" {
			t.store.seq++
			f.ID = fmt.Sprintf("%s_%d", strings.ToLower(f.Type.Local), t.store.seq)
		}
		t.store.put(f)
		fids = append(fids, f.ID)
	}
	return fids, nil
}

func (t *memTx) PerformUpdate(ctx context.Context, typeName xml.Name, replacements []featurestore.PropertyReplacement, f filter.Filter, lk featurestore.Lock) ([]string, error) {
	if t.store.failWith != nil {
		return nil, t.store.failWith
	}
	fs, err := t.store.Query(ctx, featurestore.Query{TypeName: typeName, Filter: f})
	if err != nil {
		return nil, err
	}
	var fids []string
	for _, ft := range fs {
		if err := t.checkLock(ctx, ft.ID, lk); err != nil {
			return nil, err
		}
		for _, r := range replacements {
			for i := range ft.Properties {
				if ft.Properties[i].Name.Local == r.Name.Local {
					ft.Properties[i].Value = r.Value
				}
			}
		}
		fids = append(fids, ft.ID)
	}
	return fids, nil
}

func (t *memTx) PerformDeleteByIDs(ctx context.Context, ids []string, lk featurestore.Lock) (int, error) {
	if t.store.failWith != nil {
		return 0, t.store.failWith
	}
	var n int
	for _, id := range ids {
		if err := t.checkLock(ctx, id, lk); err != nil {
			return 0, err
		}
		if t.store.remove(id) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) PerformDelete(ctx context.Context, typeName xml.Name, f *filter.OperatorFilter, lk featurestore.Lock) (int, error) {
	fs, err := t.store.Query(ctx, featurestore.Query{TypeName: typeName, Filter: f})
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(fs))
	for _, ft := range fs {
		ids = append(ids, ft.ID)
	}
	return t.PerformDeleteByIDs(ctx, ids, lk)
}

func (t *memTx) PerformReplace(ctx context.Context, replacement *feature.Feature, f filter.Filter, lk featurestore.Lock, mode featurestore.IDGenMode) ([]string, error) {
	fs, err := t.store.Query(ctx, featurestore.Query{TypeName: replacement.Type, Filter: f})
	if err != nil {
		return nil, err
	}
	for _, ft := range fs {
		if err := t.checkLock(ctx, ft.ID, lk); err != nil {
			return nil, err
		}
		t.store.remove(ft.ID)
	}
	return t.PerformInsert(ctx, []*feature.Feature{replacement}, mode)
}

func (t *memTx) Commit(ctx context.Context) error {
	t.store.commits++
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.store.rollbacks++
	return nil
}
