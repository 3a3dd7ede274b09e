package generating

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaoxuxiansheng/gowfs/log"
	"github.com/xiaoxuxiansheng/gowfs/metrics"
	"github.com/xiaoxuxiansheng/gowfs/recordstore"
	"gorm.io/gorm"
)

// ErrRecordNotFound 更新的记录不存在
var ErrRecordNotFound = errors.New("record not found")

const bboxPlaceholder = "ST_GeomFromText(?, 4326, 'axis-order=long-lat')"

// Generator 把解析出的属性写入记录库，每条记录一个数据库事务
type Generator struct {
	db *gorm.DB
}

func NewGenerator(db *gorm.DB) *Generator {
	return &Generator{db: db}
}

// Insert 返回新记录在 datasets 表中的 id
func (g *Generator) Insert(ctx context.Context, parsed *recordstore.ParsedProfileElement) (int, error) {
	if parsed == nil || parsed.Queryable == nil {
		return 0, errors.New("nil record")
	}
	var id int
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		next, err := nextID(tx, recordstore.TableDatasets)
		if err != nil {
			return err
		}
		qp, rp := parsed.Queryable, returnable(parsed)
		if err := tx.Exec("INSERT INTO datasets (id, version, status, anytext, modified, hassecurityconstraints, language, parentidentifier, source, association) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			next, nil, nil, AnyText(qp, rp), nullTime(qp.Modified), qp.HasSecurityConstraints,
			nullString(qp.Language), nullString(qp.ParentIdentifier), nullString(rp.Source), nullString(strings.Join(rp.Relations, ","))).Error; err != nil {
			return errors.Wrap(err, "insert datasets row")
		}
		id = next
		writeProperties(ctx, tx, next, parsed, false)
		return nil
	})
	if err != nil {
		return 0, err
	}
	metrics.IncRecord("insert")
	log.InfoContextf(ctx, "inserted record %d", id)
	return id, nil
}

// Update 先删除该记录的所有属性行再重新写入
func (g *Generator) Update(ctx context.Context, parsed *recordstore.ParsedProfileElement, id int) error {
	if parsed == nil || parsed.Queryable == nil {
		return errors.New("nil record")
	}
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		qp, rp := parsed.Queryable, returnable(parsed)
		res := tx.Exec("UPDATE datasets SET anytext = ?, modified = ?, hassecurityconstraints = ?, language = ?, parentidentifier = ?, source = ?, association = ? WHERE id = ?",
			AnyText(qp, rp), nullTime(qp.Modified), qp.HasSecurityConstraints, nullString(qp.Language),
			nullString(qp.ParentIdentifier), nullString(rp.Source), nullString(strings.Join(rp.Relations, ",")), id)
		if res.Error != nil {
			return errors.Wrap(res.Error, "update datasets row")
		}
		if res.RowsAffected == 0 {
			return errors.Wrapf(ErrRecordNotFound, "dataset %d", id)
		}
		writeProperties(ctx, tx, id, parsed, true)
		return nil
	})
	if err != nil {
		return err
	}
	metrics.IncRecord("update")
	log.InfoContextf(ctx, "updated record %d", id)
	return nil
}

// FindByIdentifier 按记录标识查找 datasets id
func (g *Generator) FindByIdentifier(ctx context.Context, identifier string) (int, bool, error) {
	var ids []int
	if err := g.db.WithContext(ctx).Raw("SELECT datasets.id FROM datasets, qp_identifier WHERE datasets.id = qp_identifier.fk_datasets AND qp_identifier.identifier = ?",
		identifier).Scan(&ids).Error; err != nil {
		return 0, false, errors.Wrapf(err, "find record '%s'", identifier)
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}

// SelectIDs 执行返回 datasets id 的查询
func (g *Generator) SelectIDs(ctx context.Context, query string, args ...interface{}) ([]int, error) {
	var ids []int
	if err := g.db.WithContext(ctx).Raw(query, args...).Scan(&ids).Error; err != nil {
		return nil, errors.Wrap(err, "select records")
	}
	return ids, nil
}

// Delete 删除 datasets 行，属性表依赖外键级联删除
func (g *Generator) Delete(ctx context.Context, ids []int) (int, error) {
	var deleted int
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			res := tx.Exec("DELETE FROM datasets WHERE id = ?", id)
			if res.Error != nil {
				return errors.Wrapf(res.Error, "delete dataset %d", id)
			}
			deleted += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for i := 0; i < deleted; i++ {
		metrics.IncRecord("delete")
	}
	return deleted, nil
}

// nextID 表中当前最大 id 加一
func nextID(tx *gorm.DB, table recordstore.Table) (int, error) {
	var ids []int
	if err := tx.Raw(fmt.Sprintf("SELECT id FROM %s ORDER BY id DESC LIMIT 1", table)).Scan(&ids).Error; err != nil {
		return 0, errors.Wrapf(err, "next id of %s", table)
	}
	if len(ids) == 0 {
		return 1, nil
	}
	return ids[0] + 1, nil
}

// writeProperties 单条语句失败只记录日志，不影响其余属性
func writeProperties(ctx context.Context, tx *gorm.DB, fk int, parsed *recordstore.ParsedProfileElement, isUpdate bool) {
	for _, p := range collect(parsed) {
		if isUpdate {
			if err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE fk_datasets = ?", p.table), fk).Error; err != nil {
				log.ErrorContextf(ctx, "clear %s of dataset %d: %v", p.table, fk, err)
			}
		}
		if len(p.rows) == 0 {
			continue
		}
		id, err := nextID(tx, p.table)
		if err != nil {
			log.ErrorContextf(ctx, "skip %s of dataset %d: %v", p.table, fk, err)
			continue
		}
		stmt := p.insert()
		for _, row := range p.rows {
			args := append([]interface{}{id, fk}, row...)
			if err := tx.Exec(stmt, args...).Error; err != nil {
				log.ErrorContextf(ctx, "insert into %s of dataset %d: %v", p.table, fk, err)
				continue
			}
			id++
		}
	}
}

func returnable(parsed *recordstore.ParsedProfileElement) *recordstore.ReturnableProperties {
	if parsed.Returnable == nil {
		return &recordstore.ReturnableProperties{}
	}
	return parsed.Returnable
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
