package parsing

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Lookup 查询已经入库的标识
type Lookup interface {
	// IdentifierExists 记录标识是否已被使用
	IdentifierExists(ctx context.Context, identifier string) (bool, error)
	// ResourceIdentifierExists 是否存在该资源标识的数据元数据
	ResourceIdentifierExists(ctx context.Context, identifier string) (bool, error)
}

// DBLookup 基于记录库表的查询
type DBLookup struct {
	db *gorm.DB
}

func NewDBLookup(db *gorm.DB) *DBLookup {
	return &DBLookup{db: db}
}

func (l *DBLookup) IdentifierExists(ctx context.Context, identifier string) (bool, error) {
	return l.exists(ctx, "SELECT identifier FROM qp_identifier WHERE identifier = ?", identifier)
}

func (l *DBLookup) ResourceIdentifierExists(ctx context.Context, identifier string) (bool, error) {
	return l.exists(ctx, "SELECT resourceidentifier FROM isoqp_resourceidentifier WHERE resourceidentifier = ?", identifier)
}

func (l *DBLookup) exists(ctx context.Context, query, value string) (bool, error) {
	var found []string
	if err := l.db.WithContext(ctx).Raw(query, value).Scan(&found).Error; err != nil {
		return false, errors.Wrapf(err, "lookup '%s'", value)
	}
	return len(found) > 0, nil
}
