package parsing

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func newTestLookup(t *testing.T) (*DBLookup, sqlmock.Sqlmock) {
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
	return NewDBLookup(gdb), mock
}

func Test_DBLookup_IdentifierExists(t *testing.T) {
	tests := []struct {
		name      string
		rows      *sqlmock.Rows
		err       error
		expect    bool
		expectErr bool
	}{
		{name: "exists", rows: sqlmock.NewRows([]string{"identifier"}).AddRow("rec-1"), expect: true},
		{name: "free", rows: sqlmock.NewRows([]string{"identifier"})},
		{name: "failure", err: errors.New("broken pipe"), expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup, mock := newTestLookup(t)
			expect := mock.ExpectQuery(regexp.QuoteMeta("SELECT identifier FROM qp_identifier WHERE identifier = ?")).
				WithArgs("rec-1")
			if tt.err != nil {
				expect.WillReturnError(tt.err)
			} else {
				expect.WillReturnRows(tt.rows)
			}

			exists, err := lookup.IdentifierExists(context.Background(), "rec-1")
			assert.Equal(t, tt.expectErr, err != nil)
			assert.Equal(t, tt.expect, exists)
			assert.Nil(t, mock.ExpectationsWereMet())
		})
	}
}

func Test_DBLookup_ResourceIdentifierExists(t *testing.T) {
	lookup, mock := newTestLookup(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT resourceidentifier FROM isoqp_resourceidentifier WHERE resourceidentifier = ?")).
		WithArgs("res-1").
		WillReturnRows(sqlmock.NewRows([]string{"resourceidentifier"}).AddRow("res-1"))

	exists, err := lookup.ResourceIdentifierExists(context.Background(), "res-1")
	assert.Nil(t, err)
	assert.Equal(t, true, exists)
	assert.Nil(t, mock.ExpectationsWereMet())
}
