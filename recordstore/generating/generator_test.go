package generating

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/xiaoxuxiansheng/gowfs/recordstore"
	"github.com/xiaoxuxiansheng/gowfs/xmlnode"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const (
	insertDatasets = "INSERT INTO datasets (id, version, status, anytext, modified, hassecurityconstraints, language, parentidentifier, source, association) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	updateDatasets = "UPDATE datasets SET anytext = ?, modified = ?, hassecurityconstraints = ?, language = ?, parentidentifier = ?, source = ?, association = ? WHERE id = ?"
	riversWKT      = "POLYGON((7 50, 8.5 50, 8.5 51, 7 51, 7 50))"
)

func newTestGenerator(t *testing.T) (*Generator, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	mock.ExpectQuery("SELECT VERSION()").WillReturnRows(sqlmock.NewRows([]string{"VERSION"}).AddRow("1"))
	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn: db,
	}), &gorm.Config{
		DisableAutomaticPing: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	return NewGenerator(gdb), mock
}

func riversRecord() *recordstore.ParsedProfileElement {
	return &recordstore.ParsedProfileElement{
		Format: recordstore.FormatDC,
		Queryable: &recordstore.QueryableProperties{
			Identifiers: []string{"rec-1"},
			Titles:      []string{"Rivers"},
			Type:        "dataset",
			BoundingBox: &recordstore.BoundingBox{West: 7, South: 50, East: 8.5, North: 51},
		},
	}
}

func idRows(ids ...int) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id"})
	for _, id := range ids {
		rows.AddRow(id)
	}
	return rows
}

func expectNextID(mock sqlmock.Sqlmock, table recordstore.Table, last ...int) {
	mock.ExpectQuery(regexp.QuoteMeta(fmt.Sprintf("SELECT id FROM %s ORDER BY id DESC LIMIT 1", table))).
		WillReturnRows(idRows(last...))
}

// expectRiversProperties 标识、标题、类型与范围四张表有数据
func expectRiversProperties(mock sqlmock.Sqlmock, fk int, isUpdate bool, titleErr error) {
	inserts := map[recordstore.Table]func(){
		recordstore.TableIdentifier: func() {
			expectNextID(mock, recordstore.TableIdentifier)
			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO qp_identifier (id, fk_datasets, identifier) VALUES (?, ?, ?)")).
				WithArgs(1, fk, "rec-1").WillReturnResult(sqlmock.NewResult(1, 1))
		},
		recordstore.TableTitle: func() {
			expectNextID(mock, recordstore.TableTitle, 7)
			e := mock.ExpectExec(regexp.QuoteMeta("INSERT INTO isoqp_title (id, fk_datasets, title) VALUES (?, ?, ?)")).
				WithArgs(8, fk, "Rivers")
			if titleErr != nil {
				e.WillReturnError(titleErr)
				return
			}
			e.WillReturnResult(sqlmock.NewResult(8, 1))
		},
		recordstore.TableType: func() {
			expectNextID(mock, recordstore.TableType)
			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO isoqp_type (id, fk_datasets, type) VALUES (?, ?, ?)")).
				WithArgs(1, fk, "dataset").WillReturnResult(sqlmock.NewResult(1, 1))
		},
		recordstore.TableBoundingBox: func() {
			expectNextID(mock, recordstore.TableBoundingBox, 2)
			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO isoqp_boundingbox (id, fk_datasets, bbox) VALUES (?, ?, ST_GeomFromText(?, 4326, 'axis-order=long-lat'))")).
				WithArgs(3, fk, riversWKT).WillReturnResult(sqlmock.NewResult(3, 1))
		},
	}
	for _, table := range PropertyTables {
		if isUpdate {
			mock.ExpectExec(regexp.QuoteMeta(fmt.Sprintf("DELETE FROM %s WHERE fk_datasets = ?", table))).
				WithArgs(fk).WillReturnResult(sqlmock.NewResult(0, 0))
		}
		if f, ok := inserts[table]; ok {
			f()
		}
	}
}

func Test_Generator_Insert(t *testing.T) {
	tests := []struct {
		name     string
		last     []int
		expectID int
		titleErr error
	}{
		{name: "first record", expectID: 1},
		{name: "next record", last: []int{4}, expectID: 5},
		{name: "swallowed property failure", last: []int{4}, expectID: 5, titleErr: errors.New("duplicate entry")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, mock := newTestGenerator(t)
			mock.ExpectBegin()
			expectNextID(mock, recordstore.TableDatasets, tt.last...)
			mock.ExpectExec(regexp.QuoteMeta(insertDatasets)).
				WithArgs(tt.expectID, nil, nil, "Rivers # dataset", nil, false, nil, nil, nil, nil).
				WillReturnResult(sqlmock.NewResult(int64(tt.expectID), 1))
			expectRiversProperties(mock, tt.expectID, false, tt.titleErr)
			mock.ExpectCommit()

			id, err := g.Insert(context.Background(), riversRecord())
			assert.Nil(t, err)
			assert.Equal(t, tt.expectID, id)
			assert.Nil(t, mock.ExpectationsWereMet())
		})
	}
}

func Test_Generator_Insert_datasetsFailure(t *testing.T) {
	g, mock := newTestGenerator(t)
	mock.ExpectBegin()
	expectNextID(mock, recordstore.TableDatasets, 1)
	mock.ExpectExec(regexp.QuoteMeta(insertDatasets)).WillReturnError(errors.New("table is full"))
	mock.ExpectRollback()

	_, err := g.Insert(context.Background(), riversRecord())
	assert.Equal(t, true, err != nil)
	assert.Nil(t, mock.ExpectationsWereMet())

	_, err = g.Insert(context.Background(), nil)
	assert.Equal(t, true, err != nil)
}

func Test_Generator_Insert_representations(t *testing.T) {
	g, mock := newTestGenerator(t)
	record := &recordstore.ParsedProfileElement{
		Queryable: &recordstore.QueryableProperties{},
		Record: &recordstore.GeneratedRecord{Representations: []recordstore.Representation{
			{Format: recordstore.FormatDC, Set: recordstore.Brief, Data: xmlnode.NewElement(recordstore.CSW202Namespace, "csw", "BriefRecord")},
		}},
	}
	mock.ExpectBegin()
	expectNextID(mock, recordstore.TableDatasets)
	mock.ExpectExec(regexp.QuoteMeta(insertDatasets)).WillReturnResult(sqlmock.NewResult(1, 1))
	expectNextID(mock, recordstore.TableRecordBrief, 9)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO recordbrief (id, fk_datasets, format, data) VALUES (?, ?, ?, ?)")).
		WithArgs(10, 1, 1, `<csw:BriefRecord xmlns:csw="http://www.opengis.net/cat/csw/2.0.2"/>`).
		WillReturnResult(sqlmock.NewResult(10, 1))
	mock.ExpectCommit()

	id, err := g.Insert(context.Background(), record)
	assert.Nil(t, err)
	assert.Equal(t, 1, id)
	assert.Nil(t, mock.ExpectationsWereMet())
}

func Test_Generator_Update(t *testing.T) {
	g, mock := newTestGenerator(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(updateDatasets)).
		WithArgs("Rivers # dataset", nil, false, nil, nil, nil, nil, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectRiversProperties(mock, 5, true, nil)
	mock.ExpectCommit()

	assert.Nil(t, g.Update(context.Background(), riversRecord(), 5))
	assert.Nil(t, mock.ExpectationsWereMet())
}

func Test_Generator_Update_notFound(t *testing.T) {
	g, mock := newTestGenerator(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(updateDatasets)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := g.Update(context.Background(), riversRecord(), 42)
	assert.Equal(t, true, errors.Is(err, ErrRecordNotFound))
	assert.Nil(t, mock.ExpectationsWereMet())
}

func Test_Generator_FindByIdentifier(t *testing.T) {
	const query = "SELECT datasets.id FROM datasets, qp_identifier WHERE datasets.id = qp_identifier.fk_datasets AND qp_identifier.identifier = ?"
	g, mock := newTestGenerator(t)
	mock.ExpectQuery(regexp.QuoteMeta(query)).WithArgs("rec-1").WillReturnRows(idRows(3))
	mock.ExpectQuery(regexp.QuoteMeta(query)).WithArgs("rec-2").WillReturnRows(idRows())

	id, ok, err := g.FindByIdentifier(context.Background(), "rec-1")
	assert.Nil(t, err)
	assert.Equal(t, true, ok)
	assert.Equal(t, 3, id)

	_, ok, err = g.FindByIdentifier(context.Background(), "rec-2")
	assert.Nil(t, err)
	assert.Equal(t, false, ok)
	assert.Nil(t, mock.ExpectationsWereMet())
}

func Test_Generator_Delete(t *testing.T) {
	g, mock := newTestGenerator(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM datasets WHERE id = ?")).WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM datasets WHERE id = ?")).WithArgs(4).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	n, err := g.Delete(context.Background(), []int{3, 4})
	assert.Nil(t, err)
	assert.Equal(t, 1, n)
	assert.Nil(t, mock.ExpectationsWereMet())
}

func Test_Generator_Delete_failure(t *testing.T) {
	g, mock := newTestGenerator(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM datasets WHERE id = ?")).WithArgs(3).WillReturnError(errors.New("lock wait timeout"))
	mock.ExpectRollback()

	_, err := g.Delete(context.Background(), []int{3})
	assert.Equal(t, true, err != nil)
	assert.Nil(t, mock.ExpectationsWereMet())
}

func Test_BBoxWKT(t *testing.T) {
	assert.Equal(t, riversWKT, BBoxWKT(&recordstore.BoundingBox{West: 7, South: 50, East: 8.5, North: 51}))
	assert.Equal(t, "POLYGON((-10.25 -5, 3 -5, 3 0.000001, -10.25 0.000001, -10.25 -5))",
		BBoxWKT(&recordstore.BoundingBox{West: -10.25, South: -5, East: 3, North: 0.000001}))
}

func Test_AnyText(t *testing.T) {
	qp := &recordstore.QueryableProperties{
		Keywords:     []recordstore.Keyword{{Type: "theme", Values: []string{"water", " "}, Thesaurus: "GEMET"}},
		Titles:       []string{"Rivers"},
		Abstracts:    []string{"All rivers"},
		Formats:      []recordstore.FormatName{{Name: "GML", Version: "3.2"}},
		Type:         "dataset",
		ServiceType:  "view",
		CouplingType: "tight",
	}
	rp := &recordstore.ReturnableProperties{Publisher: "agency", Rights: []string{"license"}}
	assert.Equal(t, "theme # GEMET # water # Rivers # All rivers # GML # dataset # agency # license # view # tight", AnyText(qp, rp))
	assert.Equal(t, "", AnyText(&recordstore.QueryableProperties{}, &recordstore.ReturnableProperties{}))
}
