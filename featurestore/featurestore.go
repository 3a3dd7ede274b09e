package featurestore

import (
	"context"
	"encoding/xml"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaoxuxiansheng/gowfs/feature"
	"github.com/xiaoxuxiansheng/gowfs/filter"
	"github.com/xiaoxuxiansheng/gowfs/geometry"
)

// IDGenMode 插入要素时 id 的生成方式
type IDGenMode int

const (
	GenerateNew IDGenMode = iota
	UseExisting
	ReplaceDuplicate
)

func (m IDGenMode) String() string {
	switch m {
	case UseExisting:
		return "UseExisting"
	case ReplaceDuplicate:
		return "ReplaceDuplicate"
	default:
		return "GenerateNew"
	}
}

// ParseIDGenMode 忽略大小写
func ParseIDGenMode(s string) (IDGenMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "generatenew":
		return GenerateNew, nil
	case "useexisting":
		return UseExisting, nil
	case "replaceduplicate":
		return ReplaceDuplicate, nil
	}
	return GenerateNew, errors.Errorf("unknown idgen mode '%s'", s)
}

// Query 针对单个要素类型的查询
type Query struct {
	TypeName    xml.Name
	Filter      filter.Filter
	MaxFeatures int
}

// PropertyReplacement Update 中的一个属性替换，Index 为 -1 表示替换该属性的全部值
type PropertyReplacement struct {
	Name   xml.Name
	Index  int
	Value  interface{}
	Remove bool
}

// FeatureStore 要素存储
type FeatureStore interface {
	Schema() *feature.Schema
	// AcquireTransaction 同一时刻只能存在一个活动事务
	AcquireTransaction(ctx context.Context) (Transaction, error)
	LockManager() (LockManager, error)
	Envelope(ctx context.Context, typeName xml.Name) (*geometry.Envelope, error)
	HasFeature(ctx context.Context, fid string) (bool, error)
	Query(ctx context.Context, q Query) ([]*feature.Feature, error)
}

// Transaction 要素存储上的事务
type Transaction interface {
	Store() FeatureStore
	PerformInsert(ctx context.Context, fs []*feature.Feature, mode IDGenMode) ([]string, error)
	PerformUpdate(ctx context.Context, typeName xml.Name, replacements []PropertyReplacement, f filter.Filter, lock Lock) ([]string, error)
	PerformDeleteByIDs(ctx context.Context, ids []string, lock Lock) (int, error)
	PerformDelete(ctx context.Context, typeName xml.Name, f *filter.OperatorFilter, lock Lock) (int, error)
	PerformReplace(ctx context.Context, replacement *feature.Feature, f filter.Filter, lock Lock, mode IDGenMode) ([]string, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// LockManager 要素锁管理
type LockManager interface {
	AcquireLock(ctx context.Context, queries []Query, lockAll bool, expiry time.Duration) (Lock, error)
	// GetLock 未知的 lockId 或者已过期的锁返回 ows 异常
	GetLock(ctx context.Context, lockID string) (Lock, error)
	// IsFeatureLocked 要素是否被 lockID 以外的锁锁定
	IsFeatureLocked(ctx context.Context, fid string, lockID string) (bool, error)
}

// Lock 一组要素上的锁
type Lock interface {
	ID() string
	AcquiredAt() time.Time
	ExpiresAt() time.Time
	SetExpiry(ctx context.Context, expiresAt time.Time) error
	NumLocked() int
	NumFailedToLock() int
	LockedFeatures(ctx context.Context) (IDCursor, error)
	FailedToLockFeatures(ctx context.Context) (IDCursor, error)
	IsLocked(fid string) bool
	Release(ctx context.Context) error
	ReleaseFeature(ctx context.Context, fid string) error
}

// IDCursor 要素 id 游标，使用完毕必须 Close
type IDCursor interface {
	Next() bool
	ID() string
	Err() error
	Close() error
}

type sliceCursor struct {
	ids    []string
	pos    int
	closed bool
}

// NewSliceCursor 基于内存切片的游标
func NewSliceCursor(ids []string) IDCursor {
	return &sliceCursor{ids: ids, pos: -1}
}

func (s *sliceCursor) Next() bool {
	if s.closed || s.pos+1 >= len(s.ids) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceCursor) ID() string {
	if s.pos < 0 || s.pos >= len(s.ids) {
		return ""
	}
	return s.ids[s.pos]
}

func (s *sliceCursor) Err() error {
	return nil
}

func (s *sliceCursor) Close() error {
	s.closed = true
	return nil
}

// Matches 要素是否满足过滤条件，nil 过滤器匹配全部
func Matches(f filter.Filter, ft *feature.Feature) (bool, error) {
	switch t := f.(type) {
	case nil:
		return true, nil
	case *filter.IDFilter:
		return t.Matches(ft.ID), nil
	case *filter.OperatorFilter:
		return t.Evaluate(ft)
	}
	return false, errors.Errorf("unsupported filter %T", f)
}
