package sqlstore

import (
	"context"
	"encoding/xml"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaoxuxiansheng/gowfs/feature"
	"github.com/xiaoxuxiansheng/gowfs/featurestore"
	"github.com/xiaoxuxiansheng/gowfs/filter"
	"github.com/xiaoxuxiansheng/gowfs/geometry"
	"github.com/xiaoxuxiansheng/gowfs/lock"
	"github.com/xiaoxuxiansheng/gowfs/ows"
	"gorm.io/gorm"
)

// Options 存储选项
type Options struct {
	LockOptions []lock.Option
	Now         func() time.Time
}

type Option func(*Options)

func WithLockOptions(opts ...lock.Option) Option {
	return func(o *Options) {
		o.LockOptions = append(o.LockOptions, opts...)
	}
}

func WithNow(now func() time.Time) Option {
	return func(o *Options) {
		o.Now = now
	}
}

func repair(o *Options) {
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Store 基于 gorm 的要素存储，属性以 json 保存，几何以 WKT 保存
type Store struct {
	schema *feature.Schema
	db     *gorm.DB
	dao    *FeatureDAO
	locks  *lock.Manager
	opts   *Options
	// 同一时刻只允许一个活动事务
	sem chan struct{}
}

func New(db *gorm.DB, schema *feature.Schema, opts ...Option) *Store {
	s := &Store{
		schema: schema,
		db:     db,
		dao:    NewFeatureDAO(db),
		opts:   &Options{},
		sem:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s.opts)
	}
	repair(s.opts)
	s.locks = lock.NewManager(s, s.opts.LockOptions...)
	return s
}

// Close 停止锁管理器
func (s *Store) Close() {
	s.locks.Close()
}

func (s *Store) Schema() *feature.Schema {
	return s.schema
}

func (s *Store) LockManager() (featurestore.LockManager, error) {
	return s.locks, nil
}

func (s *Store) AcquireTransaction(ctx context.Context) (featurestore.Transaction, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "wait for active transaction")
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		<-s.sem
		return nil, errors.Wrap(tx.Error, "begin transaction")
	}
	return &transaction{store: s, tx: tx, dao: NewFeatureDAO(tx)}, nil
}

func (s *Store) HasFeature(ctx context.Context, fid string) (bool, error) {
	count, err := s.dao.CountFeatures(ctx, WithID(fid))
	if err != nil {
		return false, errors.Wrapf(err, "check feature %s", fid)
	}
	return count > 0, nil
}

func (s *Store) Query(ctx context.Context, q featurestore.Query) ([]*feature.Feature, error) {
	return s.query(ctx, s.dao, q)
}

func (s *Store) query(ctx context.Context, dao *FeatureDAO, q featurestore.Query, extra ...QueryOption) ([]*feature.Feature, error) {
	ft := s.schema.FeatureType(q.TypeName)
	if ft == nil {
		return nil, ows.InvalidParameter("typeName", "Feature type '"+q.TypeName.Local+"' is not served by this store.")
	}

	opts := []QueryOption{WithTypeName(typeKey(ft.Name))}
	if ids, ok := q.Filter.(*filter.IDFilter); ok {
		opts = append(opts, WithIDs(ids.IDs))
	}
	pos, err := dao.GetFeatures(ctx, append(opts, extra...)...)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", ft.Name.Local)
	}

	var out []*feature.Feature
	for _, po := range pos {
		f, err := decodeFeature(po, ft)
		if err != nil {
			return nil, err
		}
		ok, err := featurestore.Matches(q.Filter, f)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, f)
		if q.MaxFeatures > 0 && len(out) >= q.MaxFeatures {
			break
		}
	}
	return out, nil
}

// Envelope 要素类型下全部几何的外包矩形，没有几何时返回 nil
func (s *Store) Envelope(ctx context.Context, typeName xml.Name) (*geometry.Envelope, error) {
	fs, err := s.Query(ctx, featurestore.Query{TypeName: typeName})
	if err != nil {
		return nil, err
	}

	var env *geometry.Envelope
	for _, f := range fs {
		for _, g := range f.Geometries() {
			e := g.Envelope()
			if env == nil {
				env = &e
				continue
			}
			env.MinX = math.Min(env.MinX, e.MinX)
			env.MinY = math.Min(env.MinY, e.MinY)
			env.MaxX = math.Max(env.MaxX, e.MaxX)
			env.MaxY = math.Max(env.MaxY, e.MaxY)
		}
	}
	return env, nil
}
