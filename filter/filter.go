package filter

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/xiaoxuxiansheng/gowfs/feature"
	"github.com/xiaoxuxiansheng/gowfs/geometry"
)

// Filter id 过滤器或者谓词过滤器
type Filter interface {
	filter()
}

// IDFilter 按要素 id 过滤
type IDFilter struct {
	IDs []string
}

func (*IDFilter) filter() {}

// Matches 要素 id 是否在列表中
func (i *IDFilter) Matches(fid string) bool {
	for _, id := range i.IDs {
		if id == fid {
			return true
		}
	}
	return false
}

// OperatorFilter 谓词过滤器
type OperatorFilter struct {
	Operator Operator
}

func (*OperatorFilter) filter() {}

// Evaluate 对要素求值
func (o *OperatorFilter) Evaluate(f *feature.Feature) (bool, error) {
	return o.Operator.Evaluate(f)
}

// Operator 谓词
type Operator interface {
	Evaluate(f *feature.Feature) (bool, error)
}

// ComparisonOp 二元比较运算符
type ComparisonOp string

const (
	EqualTo              ComparisonOp = "PropertyIsEqualTo"
	NotEqualTo           ComparisonOp = "PropertyIsNotEqualTo"
	LessThan             ComparisonOp = "PropertyIsLessThan"
	GreaterThan          ComparisonOp = "PropertyIsGreaterThan"
	LessThanOrEqualTo    ComparisonOp = "PropertyIsLessThanOrEqualTo"
	GreaterThanOrEqualTo ComparisonOp = "PropertyIsGreaterThanOrEqualTo"
)

// Comparison 属性与字面量的比较，任一属性值满足即为真
type Comparison struct {
	Op        ComparisonOp
	Property  string
	Literal   string
	MatchCase bool
}

func (c *Comparison) Evaluate(f *feature.Feature) (bool, error) {
	for _, p := range f.Get(localName(c.Property)) {
		if c.compare(feature.ValueString(p.Value)) {
			return true, nil
		}
	}
	return false, nil
}

func (c *Comparison) compare(value string) bool {
	// 两侧都是数值时按数值比较
	lv, lerr := cast.ToFloat64E(value)
	rv, rerr := cast.ToFloat64E(c.Literal)
	var cmp int
	if lerr == nil && rerr == nil {
		switch {
		case lv < rv:
			cmp = -1
		case lv > rv:
			cmp = 1
		}
	} else {
		l, r := value, c.Literal
		if !c.MatchCase {
			l, r = strings.ToLower(l), strings.ToLower(r)
		}
		cmp = strings.Compare(l, r)
	}

	switch c.Op {
	case EqualTo:
		return cmp == 0
	case NotEqualTo:
		return cmp != 0
	case LessThan:
		return cmp < 0
	case GreaterThan:
		return cmp > 0
	case LessThanOrEqualTo:
		return cmp <= 0
	case GreaterThanOrEqualTo:
		return cmp >= 0
	}
	return false
}

// Like 通配符匹配
type Like struct {
	Property   string
	Pattern    string
	WildCard   string
	SingleChar string
	Escape     string
	MatchCase  bool
}

func (l *Like) Evaluate(f *feature.Feature) (bool, error) {
	re, err := l.regexp()
	if err != nil {
		return false, err
	}
	for _, p := range f.Get(localName(l.Property)) {
		if re.MatchString(feature.ValueString(p.Value)) {
			return true, nil
		}
	}
	return false, nil
}

func (l *Like) regexp() (*regexp.Regexp, error) {
	var sb strings.Builder
	if !l.MatchCase {
		sb.WriteString("(?i)")
	}
	sb.WriteByte('^')
	pattern := []rune(l.Pattern)
	for i := 0; i < len(pattern); i++ {
		ch := string(pattern[i])
		switch {
		case l.Escape != "" && ch == l.Escape && i+1 < len(pattern):
			i++
			sb.WriteString(regexp.QuoteMeta(string(pattern[i])))
		case ch == l.WildCard:
			sb.WriteString(".*")
		case ch == l.SingleChar:
			sb.WriteByte('.')
		default:
			sb.WriteString(regexp.QuoteMeta(ch))
		}
	}
	sb.WriteByte('$')
	re, err := regexp.Compile(sb.String())
	return re, errors.Wrap(err, "compile like pattern")
}

// IsNull 属性不存在或为空
type IsNull struct {
	Property string
}

func (n *IsNull) Evaluate(f *feature.Feature) (bool, error) {
	for _, p := range f.Get(localName(n.Property)) {
		if p.Value != nil && feature.ValueString(p.Value) != "" {
			return false, nil
		}
	}
	return true, nil
}

// LogicalOp 逻辑运算符
type LogicalOp string

const (
	And LogicalOp = "And"
	Or  LogicalOp = "Or"
)

type Logical struct {
	Op       LogicalOp
	Operands []Operator
}

func (l *Logical) Evaluate(f *feature.Feature) (bool, error) {
	for _, op := range l.Operands {
		ok, err := op.Evaluate(f)
		if err != nil {
			return false, err
		}
		if l.Op == And && !ok {
			return false, nil
		}
		if l.Op == Or && ok {
			return true, nil
		}
	}
	return l.Op == And, nil
}

type Not struct {
	Operand Operator
}

func (n *Not) Evaluate(f *feature.Feature) (bool, error) {
	ok, err := n.Operand.Evaluate(f)
	return !ok, err
}

// BBox 几何与矩形相交，Property 为空时取要素的所有几何属性
type BBox struct {
	Property string
	Envelope *geometry.Geometry
}

func (b *BBox) Evaluate(f *feature.Feature) (bool, error) {
	var geoms []*geometry.Geometry
	if b.Property == "" {
		geoms = f.Geometries()
	} else {
		for _, p := range f.Get(localName(b.Property)) {
			if g, ok := p.Value.(*geometry.Geometry); ok && g != nil {
				geoms = append(geoms, g)
			}
		}
	}
	if len(geoms) == 0 {
		return false, nil
	}

	for _, g := range geoms {
		ok, err := b.intersects(g)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// intersects 坐标系不同时统一换算到 lon/lat 后比较
func (b *BBox) intersects(g *geometry.Geometry) (bool, error) {
	box := b.Envelope
	if !box.CRS.IsZero() && !g.CRS.IsZero() && box.CRS != g.CRS {
		tr, err := geometry.NewTransformer("CRS:84")
		if err != nil {
			return false, err
		}
		if box, err = tr.Transform(box); err != nil {
			return false, err
		}
		if g, err = tr.Transform(g); err != nil {
			return false, err
		}
	}
	return g.Envelope().Intersects(box.Envelope()), nil
}

// localName 去掉属性路径中的前缀与上下文
func localName(path string) string {
	path = strings.TrimSpace(path)
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	if i := strings.Index(path, ":"); i >= 0 {
		path = path[i+1:]
	}
	return path
}
