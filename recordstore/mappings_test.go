package recordstore

import (
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xiaoxuxiansheng/gowfs/xmlnode"
)

func Test_Mapping_paths(t *testing.T) {
	ns := xmlnode.Namespaces{"apiso": APISONamespace, "dc": DCNamespace, "csw": CSW202Namespace}
	tests := []struct {
		name      string
		path      string
		table     Table
		column    string
		withJoin  bool
		expectErr bool
	}{
		{name: "local name", path: "Title", table: TableTitle, column: "title", withJoin: true},
		{name: "prefixed", path: "apiso:Modified", table: TableDatasets, column: "modified"},
		{name: "two steps", path: "csw:Record/dc:Identifier", table: TableIdentifier, column: "identifier", withJoin: true},
		{name: "any text", path: "AnyText", table: TableDatasets, column: "anytext"},
		{name: "three steps", path: "a/b/c", expectErr: true},
		{name: "unbound prefix", path: "foo:Title", expectErr: true},
		{name: "not queryable", path: "apiso:Nothing", expectErr: true},
		{name: "predicate", path: "apiso:Title[1]", expectErr: true},
		{name: "empty", path: "", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Mapping(tt.path, ns)
			assert.Equal(t, tt.expectErr, err != nil)
			if tt.expectErr {
				return
			}
			assert.Equal(t, tt.table, m.Table)
			assert.Equal(t, tt.column, m.Column)
			assert.Equal(t, tt.withJoin, len(m.Joins) == 1)
			if tt.withJoin {
				assert.Equal(t, Field{Table: TableDatasets, Column: ColumnID}, m.Joins[0].From)
				assert.Equal(t, Field{Table: tt.table, Column: ColumnFKDatasets}, m.Joins[0].To)
			}
		})
	}
}

func Test_Lookup_namespaces(t *testing.T) {
	m, ok := Lookup(xml.Name{Space: DCTNamespace, Local: "Abstract"})
	assert.Equal(t, true, ok)
	assert.Equal(t, TableAbstract, m.Table)

	// apiso 优先
	m, ok = LookupLocal("Modified")
	assert.Equal(t, true, ok)
	assert.Equal(t, TypeDate, m.Type)

	m, ok = LookupLocal("coverage")
	assert.Equal(t, true, ok)
	assert.Equal(t, "bbox", m.Column)

	_, ok = Lookup(xml.Name{Space: GMDNamespace, Local: "Title"})
	assert.Equal(t, false, ok)
}

func Test_Lookup_dcElementNames(t *testing.T) {
	tests := []struct {
		name  xml.Name
		table Table
	}{
		{name: xml.Name{Space: DCNamespace, Local: "title"}, table: TableTitle},
		{name: xml.Name{Space: DCNamespace, Local: "subject"}, table: TableKeyword},
		{name: xml.Name{Space: DCNamespace, Local: "identifier"}, table: TableIdentifier},
		{name: xml.Name{Space: DCNamespace, Local: "format"}, table: TableFormat},
		{name: xml.Name{Space: DCNamespace, Local: "type"}, table: TableType},
		{name: xml.Name{Space: DCNamespace, Local: "relation"}, table: TableAssociation},
		{name: xml.Name{Space: DCTNamespace, Local: "abstract"}, table: TableAbstract},
		{name: xml.Name{Space: DCTNamespace, Local: "modified"}, table: TableDatasets},
	}

	for _, tt := range tests {
		t.Run(tt.name.Local, func(t *testing.T) {
			m, ok := Lookup(tt.name)
			assert.Equal(t, true, ok)
			assert.Equal(t, tt.table, m.Table)

			upper, ok := Lookup(xml.Name{Space: tt.name.Space, Local: strings.ToUpper(tt.name.Local[:1]) + tt.name.Local[1:]})
			assert.Equal(t, true, ok)
			assert.Equal(t, m, upper)
		})
	}
}

func Test_PropertyMapping_SQLValue(t *testing.T) {
	security, _ := LookupLocal("HasSecurityConstraint")
	v, err := security.SQLValue(" true ")
	assert.Nil(t, err)
	assert.Equal(t, true, v)
	_, err = security.SQLValue("maybe")
	assert.Equal(t, true, err != nil)

	modified, _ := LookupLocal("Modified")
	v, err = modified.SQLValue("2010-05-01")
	assert.Nil(t, err)
	assert.Equal(t, time.Date(2010, 5, 1, 0, 0, 0, 0, time.UTC), v)
	_, err = modified.SQLValue("yesterday")
	assert.Equal(t, true, err != nil)

	title, _ := LookupLocal("Title")
	v, err = title.SQLValue("Rivers")
	assert.Nil(t, err)
	assert.Equal(t, "Rivers", v)
}

func Test_ProfileTable(t *testing.T) {
	for set, table := range map[ElementSet]Table{Brief: TableRecordBrief, Summary: TableRecordSummary, Full: TableRecordFull} {
		got, err := ProfileTable(set)
		assert.Nil(t, err)
		assert.Equal(t, table, got)
	}
	_, err := ProfileTable("hits")
	assert.Equal(t, true, err != nil)
	assert.Equal(t, "SummaryRecord", RecordElement(TableRecordSummary))
}

func Test_ParseDate(t *testing.T) {
	d, err := ParseDate("2008-09-21T10:11:12Z")
	assert.Nil(t, err)
	assert.Equal(t, 2008, d.Year())
	d, err = ParseDate("2008-09-21T10:11:12")
	assert.Nil(t, err)
	assert.Equal(t, 10, d.Hour())
	_, err = ParseDate("21.09.2008")
	assert.Equal(t, true, err != nil)
}
