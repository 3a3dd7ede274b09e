package catalog

import (
	"fmt"
	"strings"

	"github.com/xiaoxuxiansheng/gowfs/filter"
	"github.com/xiaoxuxiansheng/gowfs/geometry"
	"github.com/xiaoxuxiansheng/gowfs/ows"
	"github.com/xiaoxuxiansheng/gowfs/recordstore"
	"github.com/xiaoxuxiansheng/gowfs/recordstore/generating"
	"github.com/xiaoxuxiansheng/gowfs/xmlnode"
)

// 过滤器中属性名默认可用的前缀
var defaultNamespaces = xmlnode.Namespaces{
	"apiso": recordstore.APISONamespace,
	"dc":    recordstore.DCNamespace,
	"dct":   recordstore.DCTNamespace,
	"csw":   recordstore.CSW202Namespace,
	"ows":   recordstore.OWSNamespace,
}

var comparisonSQL = map[filter.ComparisonOp]string{
	filter.EqualTo:              "=",
	filter.NotEqualTo:           "<>",
	filter.LessThan:             "<",
	filter.GreaterThan:          ">",
	filter.LessThanOrEqualTo:    "<=",
	filter.GreaterThanOrEqualTo: ">=",
}

// queryBuilder 把过滤器翻译成带占位符的 SQL
type queryBuilder struct {
	ns    xmlnode.Namespaces
	joins []recordstore.Join
	args  []interface{}
}

func newQueryBuilder(ns xmlnode.Namespaces) *queryBuilder {
	return &queryBuilder{ns: ns}
}

// selectIDs SELECT DISTINCT datasets.id ... 形式的完整查询
func (b *queryBuilder) selectIDs(f filter.Filter) (string, []interface{}, error) {
	where, err := b.filter(f)
	if err != nil {
		return "", nil, err
	}
	var sb strings.Builder
	sb.WriteString("SELECT DISTINCT datasets.id FROM datasets")
	for _, j := range b.joins {
		fmt.Fprintf(&sb, " LEFT OUTER JOIN %s ON %s.%s = %s.%s",
			j.To.Table, j.From.Table, j.From.Column, j.To.Table, j.To.Column)
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(where)
	return sb.String(), b.args, nil
}

func (b *queryBuilder) filter(f filter.Filter) (string, error) {
	switch t := f.(type) {
	case *filter.IDFilter:
		if len(t.IDs) == 0 {
			return "", ows.New("Empty id filter.", ows.InvalidParameterValue, "Constraint")
		}
		b.join(recordstore.TableIdentifier)
		marks := make([]string, 0, len(t.IDs))
		for _, id := range t.IDs {
			marks = append(marks, "?")
			b.args = append(b.args, id)
		}
		return fmt.Sprintf("qp_identifier.identifier IN (%s)", strings.Join(marks, ", ")), nil
	case *filter.OperatorFilter:
		return b.operator(t.Operator)
	}
	return "", ows.New("Missing constraint.", ows.MissingParameterValue, "Constraint")
}

func (b *queryBuilder) operator(op filter.Operator) (string, error) {
	switch t := op.(type) {
	case *filter.Comparison:
		m, col, err := b.column(t.Property)
		if err != nil {
			return "", err
		}
		sqlOp, ok := comparisonSQL[t.Op]
		if !ok {
			return "", ows.Newf(ows.OperationNotSupported, "Comparison '%s' is not supported.", t.Op)
		}
		value, err := m.SQLValue(t.Literal)
		if err != nil {
			return "", ows.New(err.Error(), ows.InvalidParameterValue, "Constraint")
		}
		b.args = append(b.args, value)
		if m.Type == recordstore.TypeString && !t.MatchCase {
			return fmt.Sprintf("LOWER(%s) %s LOWER(?)", col, sqlOp), nil
		}
		return fmt.Sprintf("%s %s ?", col, sqlOp), nil
	case *filter.Like:
		m, col, err := b.column(t.Property)
		if err != nil {
			return "", err
		}
		if m.Type != recordstore.TypeString {
			return "", ows.Newf(ows.InvalidParameterValue, "PropertyIsLike on non-text property '%s'.", t.Property)
		}
		b.args = append(b.args, likePattern(t))
		if !t.MatchCase {
			return fmt.Sprintf("LOWER(%s) LIKE LOWER(?)", col), nil
		}
		return fmt.Sprintf("%s LIKE ?", col), nil
	case *filter.IsNull:
		_, col, err := b.column(t.Property)
		if err != nil {
			return "", err
		}
		return col + " IS NULL", nil
	case *filter.Logical:
		if len(t.Operands) == 0 {
			return "", ows.Newf(ows.InvalidParameterValue, "%s without operands.", t.Op)
		}
		parts := make([]string, 0, len(t.Operands))
		for _, o := range t.Operands {
			s, err := b.operator(o)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "(" + strings.Join(parts, " "+strings.ToUpper(string(t.Op))+" ") + ")", nil
	case *filter.Not:
		s, err := b.operator(t.Operand)
		if err != nil {
			return "", err
		}
		return "NOT (" + s + ")", nil
	case *filter.BBox:
		return b.bbox(t)
	}
	return "", ows.Newf(ows.OperationNotSupported, "Filter operator %T is not supported.", op)
}

func (b *queryBuilder) bbox(t *filter.BBox) (string, error) {
	col := "isoqp_boundingbox.bbox"
	if t.Property != "" {
		m, c, err := b.column(t.Property)
		if err != nil {
			return "", err
		}
		if m.Table != recordstore.TableBoundingBox {
			return "", ows.Newf(ows.InvalidParameterValue, "BBOX on non-spatial property '%s'.", t.Property)
		}
		col = c
	} else {
		b.join(recordstore.TableBoundingBox)
	}
	tr, err := geometry.NewTransformer("CRS:84")
	if err != nil {
		return "", err
	}
	env, err := tr.Transform(t.Envelope)
	if err != nil {
		return "", ows.New(err.Error(), ows.InvalidParameterValue, "Constraint")
	}
	e := env.Envelope()
	b.args = append(b.args, generating.BBoxWKT(&recordstore.BoundingBox{West: e.MinX, South: e.MinY, East: e.MaxX, North: e.MaxY}))
	return fmt.Sprintf("MBRIntersects(%s, ST_GeomFromText(?, 4326, 'axis-order=long-lat'))", col), nil
}

// column 映射属性路径并记录所需的连接
func (b *queryBuilder) column(path string) (*recordstore.JoinedMapping, string, error) {
	m, err := recordstore.Mapping(path, b.ns)
	if err != nil {
		return nil, "", ows.New(err.Error(), ows.InvalidParameterValue, "Constraint")
	}
	for _, j := range m.Joins {
		b.join(j.To.Table)
	}
	return m, fmt.Sprintf("%s.%s", m.Table, m.Column), nil
}

func (b *queryBuilder) join(table recordstore.Table) {
	if table == recordstore.TableDatasets {
		return
	}
	for _, j := range b.joins {
		if j.To.Table == table {
			return
		}
	}
	b.joins = append(b.joins, recordstore.Join{
		From: recordstore.Field{Table: recordstore.TableDatasets, Column: recordstore.ColumnID},
		To:   recordstore.Field{Table: table, Column: recordstore.ColumnFKDatasets},
	})
}

// likePattern 通配符转成 SQL LIKE，字面的 % 和 _ 用反斜杠转义
func likePattern(l *filter.Like) string {
	var sb strings.Builder
	pattern := []rune(l.Pattern)
	for i := 0; i < len(pattern); i++ {
		ch := string(pattern[i])
		switch {
		case l.Escape != "" && ch == l.Escape && i+1 < len(pattern):
			i++
			sb.WriteString(escapeLike(string(pattern[i])))
		case ch == l.WildCard:
			sb.WriteByte('%')
		case ch == l.SingleChar:
			sb.WriteByte('_')
		default:
			sb.WriteString(escapeLike(ch))
		}
	}
	return sb.String()
}

func escapeLike(s string) string {
	switch s {
	case "%", "_", `\`:
		return `\` + s
	}
	return s
}
