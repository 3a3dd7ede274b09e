package sqlstore

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FeaturePO struct {
	ID         string    `gorm:"column:id;primaryKey"`
	TypeName   string    `gorm:"column:type_name"`
	Properties string    `gorm:"column:properties"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (f FeaturePO) TableName() string {
	return "wfs_feature"
}

type QueryOption func(db *gorm.DB) *gorm.DB

func WithID(id string) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", id)
	}
}

func WithIDs(ids []string) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("id IN ?", ids)
	}
}

func WithTypeName(typeName string) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("type_name = ?", typeName)
	}
}

// ForUpdate 在事务中加写锁
func ForUpdate() QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
}

type FeatureDAO struct {
	db *gorm.DB
}

func NewFeatureDAO(db *gorm.DB) *FeatureDAO {
	return &FeatureDAO{
		db: db,
	}
}

func (f *FeatureDAO) GetFeatures(ctx context.Context, opts ...QueryOption) ([]*FeaturePO, error) {
	db := f.db.WithContext(ctx).Model(&FeaturePO{})
	for _, opt := range opts {
		db = opt(db)
	}

	var features []*FeaturePO
	return features, db.Scan(&features).Error
}

func (f *FeatureDAO) CountFeatures(ctx context.Context, opts ...QueryOption) (int64, error) {
	db := f.db.WithContext(ctx).Model(&FeaturePO{})
	for _, opt := range opts {
		db = opt(db)
	}

	var count int64
	return count, db.Count(&count).Error
}

func (f *FeatureDAO) CreateFeatures(ctx context.Context, features []*FeaturePO) error {
	if len(features) == 0 {
		return nil
	}
	return f.db.WithContext(ctx).Model(&FeaturePO{}).Create(features).Error
}

func (f *FeatureDAO) UpdateProperties(ctx context.Context, id string, properties string, now time.Time) error {
	return f.db.WithContext(ctx).Model(&FeaturePO{}).Where("id = ?", id).Updates(map[string]interface{}{
		"properties": properties,
		"updated_at": now,
	}).Error
}

func (f *FeatureDAO) DeleteFeatures(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	db := f.db.WithContext(ctx).Where("id IN ?", ids).Delete(&FeaturePO{})
	return db.RowsAffected, db.Error
}
