package sqlstore

import (
	"context"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/xiaoxuxiansheng/gowfs/feature"
	"github.com/xiaoxuxiansheng/gowfs/featurestore"
	"github.com/xiaoxuxiansheng/gowfs/filter"
	"github.com/xiaoxuxiansheng/gowfs/geometry"
	"github.com/xiaoxuxiansheng/gowfs/ows"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var columns = []string{"id", "type_name", "properties", "created_at", "updated_at"}

func roadSchema() *feature.Schema {
	return &feature.Schema{FeatureTypes: []*feature.FeatureType{{
		Name: xml.Name{Local: "Road"},
		Properties: []*feature.PropertyType{
			{Name: xml.Name{Local: "name"}, Kind: feature.KindSimple, Primitive: feature.TypeString, MaxOccurs: feature.Unbounded},
			{Name: xml.Name{Local: "lanes"}, Kind: feature.KindSimple, Primitive: feature.TypeInteger, MaxOccurs: 1},
			{Name: xml.Name{Local: "geom"}, Kind: feature.KindGeometry, MaxOccurs: 1},
		},
	}}}
}

func roadProperties(name string, lanes int, x, y float64) string {
	body, _ := json.Marshal([]propertyPO{
		{Name: "name", Kind: valueSimple, Value: name},
		{Name: "lanes", Kind: valueSimple, Value: feature.ValueString(int64(lanes))},
		{Name: "geom", Kind: valueGeometry, Value: feature.ValueString(&geometry.Geometry{Kind: geometry.KindPoint, Points: []geometry.Point{{X: x, Y: y}}}), CRS: "EPSG:4326"},
	})
	return string(body)
}

func newTestStore(t *testing.T, now time.Time) (*Store, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	mock.ExpectQuery("SELECT VERSION()").WillReturnRows(sqlmock.NewRows([]string{"VERSION"}).AddRow("1"))

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn: db,
	}), &gorm.Config{
		DisableAutomaticPing: true,
		NowFunc: func() time.Time {
			return now
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	s := New(gdb, roadSchema(), WithNow(func() time.Time { return now }))
	return s, mock, func() {
		s.Close()
		db.Close()
	}
}

func Test_Store_Query(t *testing.T) {
	now := time.Now()
	s, mock, closer := newTestStore(t, now)
	defer closer()

	ctx := context.Background()
	rows := sqlmock.NewRows(columns).
		AddRow("road_1", "Road", roadProperties("A1", 4, 7, 50), now, now).
		AddRow("road_2", "Road", roadProperties("B2", 2, 8, 51), now, now)
	mock.ExpectQuery("SELECT \\* FROM `wfs_feature` WHERE type_name = \\?").WithArgs("Road").WillReturnRows(rows)

	fs, err := s.Query(ctx, featurestore.Query{
		TypeName: xml.Name{Local: "Road"},
		Filter:   &filter.OperatorFilter{Operator: &filter.Comparison{Op: filter.GreaterThan, Property: "lanes", Literal: "2", MatchCase: true}},
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(fs))
	assert.Equal(t, "road_1", fs[0].ID)
	assert.Equal(t, int64(4), fs[0].Get("lanes")[0].Value)
	assert.Equal(t, 1, len(fs[0].Geometries()))

	_, err = s.Query(ctx, featurestore.Query{TypeName: xml.Name{Local: "River"}})
	assert.Equal(t, ows.InvalidParameterValue, ows.CodeOf(err))
}

func Test_Store_Envelope(t *testing.T) {
	now := time.Now()
	s, mock, closer := newTestStore(t, now)
	defer closer()

	rows := sqlmock.NewRows(columns).
		AddRow("road_1", "Road", roadProperties("A1", 4, 7, 50), now, now).
		AddRow("road_2", "Road", roadProperties("B2", 2, 8, 51), now, now)
	mock.ExpectQuery("SELECT \\* FROM `wfs_feature` WHERE type_name = \\?").WithArgs("Road").WillReturnRows(rows)

	env, err := s.Envelope(context.Background(), xml.Name{Local: "Road"})
	assert.Equal(t, nil, err)
	assert.Equal(t, 7.0, env.MinX)
	assert.Equal(t, 50.0, env.MinY)
	assert.Equal(t, 8.0, env.MaxX)
	assert.Equal(t, 51.0, env.MaxY)
}

func Test_Transaction_Insert(t *testing.T) {
	now := time.Now()
	s, mock, closer := newTestStore(t, now)
	defer closer()

	ctx := context.Background()
	tests := []struct {
		name string
		f    func()
	}{
		{
			name: "generate new",
			f: func() {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO `wfs_feature`").WillReturnResult(sqlmock.NewResult(0, 2))
				mock.ExpectCommit()

				tx, err := s.AcquireTransaction(ctx)
				assert.Equal(t, nil, err)
				a := &feature.Feature{ID: "a", Type: xml.Name{Local: "Road"}, Properties: []feature.Property{{Name: xml.Name{Local: "name"}, Value: "A"}}}
				b := &feature.Feature{ID: "b", Type: xml.Name{Local: "Road"}, Properties: []feature.Property{{Name: xml.Name{Local: "next"}, Value: feature.Reference{Href: "#a"}}}}
				ids, err := tx.PerformInsert(ctx, []*feature.Feature{a, b}, featurestore.GenerateNew)
				assert.Equal(t, nil, err)
				assert.Equal(t, 2, len(ids))
				assert.Equal(t, true, strings.HasPrefix(ids[0], "road_"))
				assert.Equal(t, "#"+ids[0], b.Properties[0].Value.(feature.Reference).Href)
				assert.Equal(t, nil, tx.Commit(ctx))
				assert.Equal(t, true, tx.Commit(ctx) != nil)
			},
		},
		{
			name: "use existing duplicate",
			f: func() {
				mock.ExpectBegin()
				mock.ExpectQuery("SELECT count\\(\\*\\) FROM `wfs_feature` WHERE id = \\?").WithArgs("a").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
				mock.ExpectRollback()

				tx, err := s.AcquireTransaction(ctx)
				assert.Equal(t, nil, err)
				_, err = tx.PerformInsert(ctx, []*feature.Feature{{ID: "a", Type: xml.Name{Local: "Road"}}}, featurestore.UseExisting)
				assert.Equal(t, ows.InvalidParameterValue, ows.CodeOf(err))
				assert.Equal(t, nil, tx.Rollback(ctx))
			},
		},
		{
			name: "use existing without id",
			f: func() {
				mock.ExpectBegin()
				mock.ExpectRollback()

				tx, err := s.AcquireTransaction(ctx)
				assert.Equal(t, nil, err)
				_, err = tx.PerformInsert(ctx, []*feature.Feature{{Type: xml.Name{Local: "Road"}}}, featurestore.UseExisting)
				assert.Equal(t, true, err != nil)
				assert.Equal(t, nil, tx.Rollback(ctx))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.f()
			assert.Equal(t, nil, mock.ExpectationsWereMet())
		})
	}
}

func Test_Transaction_Update(t *testing.T) {
	now := time.Now()
	s, mock, closer := newTestStore(t, now)
	defer closer()

	ctx := context.Background()
	mock.ExpectBegin()
	rows := sqlmock.NewRows(columns).AddRow("road_1", "Road", roadProperties("A1", 4, 7, 50), now, now)
	mock.ExpectQuery("SELECT \\* FROM `wfs_feature` WHERE type_name = \\? AND id IN \\(\\?\\) FOR UPDATE").WithArgs("Road", "road_1").WillReturnRows(rows)
	mock.ExpectExec("UPDATE `wfs_feature` SET `properties`=\\?,`updated_at`=\\? WHERE id = \\?").WithArgs(sqlmock.AnyArg(), now, "road_1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := s.AcquireTransaction(ctx)
	assert.Equal(t, nil, err)
	ids, err := tx.PerformUpdate(ctx, xml.Name{Local: "Road"}, []featurestore.PropertyReplacement{
		{Name: xml.Name{Local: "lanes"}, Index: -1, Value: int64(6)},
		{Name: xml.Name{Local: "name"}, Index: 1, Value: "E40"},
	}, &filter.IDFilter{IDs: []string{"road_1"}}, nil)
	assert.Equal(t, nil, err)
	assert.Equal(t, []string{"road_1"}, ids)
	assert.Equal(t, nil, tx.Commit(ctx))
	assert.Equal(t, nil, mock.ExpectationsWereMet())
}

func Test_applyReplacement(t *testing.T) {
	base := func() *feature.Feature {
		return &feature.Feature{ID: "f", Properties: []feature.Property{
			{Name: xml.Name{Local: "name"}, Value: "a"},
			{Name: xml.Name{Local: "name"}, Value: "b"},
			{Name: xml.Name{Local: "lanes"}, Value: int64(2)},
		}}
	}
	values := func(f *feature.Feature, local string) []interface{} {
		var out []interface{}
		for _, p := range f.Get(local) {
			out = append(out, p.Value)
		}
		return out
	}

	tests := []struct {
		name      string
		r         featurestore.PropertyReplacement
		expect    []interface{}
		expectErr bool
	}{
		{
			name:   "replace all",
			r:      featurestore.PropertyReplacement{Name: xml.Name{Local: "name"}, Index: -1, Value: "c"},
			expect: []interface{}{"c"},
		},
		{
			name:   "remove all",
			r:      featurestore.PropertyReplacement{Name: xml.Name{Local: "name"}, Index: -1, Remove: true},
			expect: nil,
		},
		{
			name:   "replace second",
			r:      featurestore.PropertyReplacement{Name: xml.Name{Local: "name"}, Index: 1, Value: "c"},
			expect: []interface{}{"a", "c"},
		},
		{
			name:   "remove first",
			r:      featurestore.PropertyReplacement{Name: xml.Name{Local: "name"}, Index: 0, Remove: true},
			expect: []interface{}{"b"},
		},
		{
			name:   "append",
			r:      featurestore.PropertyReplacement{Name: xml.Name{Local: "name"}, Index: 2, Value: "c"},
			expect: []interface{}{"a", "b", "c"},
		},
		{
			name:      "index out of range",
			r:         featurestore.PropertyReplacement{Name: xml.Name{Local: "name"}, Index: 5, Value: "c"},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := base()
			err := applyReplacement(f, tt.r)
			assert.Equal(t, tt.expectErr, err != nil)
			if tt.expectErr {
				return
			}
			assert.Equal(t, tt.expect, values(f, "name"))
			assert.Equal(t, []interface{}{int64(2)}, values(f, "lanes"))
		})
	}
}

func Test_Transaction_Delete(t *testing.T) {
	now := time.Now()
	s, mock, closer := newTestStore(t, now)
	defer closer()

	ctx := context.Background()
	tests := []struct {
		name string
		f    func()
	}{
		{
			name: "by ids",
			f: func() {
				mock.ExpectBegin()
				mock.ExpectExec("DELETE FROM `wfs_feature` WHERE id IN \\(\\?,\\?\\)").WithArgs("road_1", "road_2").WillReturnResult(sqlmock.NewResult(0, 2))
				mock.ExpectCommit()

				tx, err := s.AcquireTransaction(ctx)
				assert.Equal(t, nil, err)
				n, err := tx.PerformDeleteByIDs(ctx, []string{"road_1", "road_2"}, nil)
				assert.Equal(t, nil, err)
				assert.Equal(t, 2, n)
				assert.Equal(t, nil, tx.Commit(ctx))
			},
		},
		{
			name: "by operator",
			f: func() {
				mock.ExpectBegin()
				rows := sqlmock.NewRows(columns).
					AddRow("road_1", "Road", roadProperties("A1", 4, 7, 50), now, now).
					AddRow("road_2", "Road", roadProperties("B2", 2, 8, 51), now, now)
				mock.ExpectQuery("SELECT \\* FROM `wfs_feature` WHERE type_name = \\? FOR UPDATE").WithArgs("Road").WillReturnRows(rows)
				mock.ExpectExec("DELETE FROM `wfs_feature` WHERE id IN \\(\\?\\)").WithArgs("road_2").WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()

				tx, err := s.AcquireTransaction(ctx)
				assert.Equal(t, nil, err)
				n, err := tx.PerformDelete(ctx, xml.Name{Local: "Road"}, &filter.OperatorFilter{
					Operator: &filter.Comparison{Op: filter.EqualTo, Property: "name", Literal: "b2"},
				}, nil)
				assert.Equal(t, nil, err)
				assert.Equal(t, 1, n)
				assert.Equal(t, nil, tx.Commit(ctx))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.f()
			assert.Equal(t, nil, mock.ExpectationsWereMet())
		})
	}
}

func Test_Transaction_lockedFeature(t *testing.T) {
	now := time.Now()
	s, mock, closer := newTestStore(t, now)
	defer closer()

	ctx := context.Background()
	rows := sqlmock.NewRows(columns).AddRow("road_1", "Road", roadProperties("A1", 4, 7, 50), now, now)
	mock.ExpectQuery("SELECT \\* FROM `wfs_feature` WHERE type_name = \\? AND id IN \\(\\?\\)").WithArgs("Road", "road_1").WillReturnRows(rows)

	lm, err := s.LockManager()
	assert.Equal(t, nil, err)
	lk, err := lm.AcquireLock(ctx, []featurestore.Query{{TypeName: xml.Name{Local: "Road"}, Filter: &filter.IDFilter{IDs: []string{"road_1"}}}}, true, time.Minute)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, lk.NumLocked())

	tests := []struct {
		name   string
		lock   featurestore.Lock
		expect ows.Code
	}{
		{
			name:   "without lock id",
			expect: ows.MissingParameterValue,
		},
		{
			name:   "with lock id",
			lock:   lk,
			expect: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.ExpectBegin()
			if tt.expect == "" {
				mock.ExpectExec("DELETE FROM `wfs_feature` WHERE id IN \\(\\?\\)").WithArgs("road_1").WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			} else {
				mock.ExpectRollback()
			}

			tx, err := s.AcquireTransaction(ctx)
			assert.Equal(t, nil, err)
			_, err = tx.PerformDeleteByIDs(ctx, []string{"road_1"}, tt.lock)
			if tt.expect == "" {
				assert.Equal(t, nil, err)
				assert.Equal(t, nil, tx.Commit(ctx))
				return
			}
			assert.Equal(t, tt.expect, ows.CodeOf(err))
			assert.Equal(t, nil, tx.Rollback(ctx))
		})
	}
	// 删除后要素从锁中释放
	assert.Equal(t, 0, lk.NumLocked())
}

func Test_Store_AcquireTransaction_busy(t *testing.T) {
	now := time.Now()
	s, mock, closer := newTestStore(t, now)
	defer closer()

	mock.ExpectBegin()
	mock.ExpectRollback()
	tx, err := s.AcquireTransaction(context.Background())
	assert.Equal(t, nil, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = s.AcquireTransaction(ctx)
	assert.Equal(t, true, err != nil)

	assert.Equal(t, nil, tx.Rollback(context.Background()))
}

func Test_Transaction_deleteRollback(t *testing.T) {
	now := time.Now()
	s, mock, closer := newTestStore(t, now)
	defer closer()

	ctx := context.Background()
	rows := sqlmock.NewRows(columns).AddRow("road_1", "Road", roadProperties("A1", 4, 7, 50), now, now)
	mock.ExpectQuery("SELECT \\* FROM `wfs_feature` WHERE type_name = \\? AND id IN \\(\\?\\)").WithArgs("Road", "road_1").WillReturnRows(rows)

	lm, err := s.LockManager()
	assert.Equal(t, nil, err)
	lk, err := lm.AcquireLock(ctx, []featurestore.Query{{TypeName: xml.Name{Local: "Road"}, Filter: &filter.IDFilter{IDs: []string{"road_1"}}}}, true, time.Minute)
	assert.Equal(t, nil, err)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `wfs_feature` WHERE id IN \\(\\?\\)").WithArgs("road_1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	tx, err := s.AcquireTransaction(ctx)
	assert.Equal(t, nil, err)
	n, err := tx.PerformDeleteByIDs(ctx, []string{"road_1"}, lk)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, n)
	// 提交前不释放
	assert.Equal(t, 1, lk.NumLocked())

	assert.Equal(t, nil, tx.Rollback(ctx))
	assert.Equal(t, 1, lk.NumLocked())
	assert.Equal(t, true, lk.IsLocked("road_1"))
	assert.Equal(t, nil, mock.ExpectationsWereMet())
}
