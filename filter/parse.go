package filter

import (
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/xiaoxuxiansheng/gowfs/geometry"
	"github.com/xiaoxuxiansheng/gowfs/gml"
	"github.com/xiaoxuxiansheng/gowfs/xmlnode"
)

const (
	OGCNamespace = "http://www.opengis.net/ogc"
	FESNamespace = "http://www.opengis.net/fes/2.0"
)

// Parse 解析 ogc:Filter (1.0 / 1.1) 或 fes:Filter (2.0)
func Parse(n *xmlnode.Node) (Filter, error) {
	if n == nil || (n.Name.Space != OGCNamespace && n.Name.Space != FESNamespace) || n.Name.Local != "Filter" {
		return nil, errors.New("expected ogc:Filter or fes:Filter element")
	}
	if len(n.Children) == 0 {
		return nil, errors.New("empty filter")
	}

	if isIDElement(n.Children[0]) {
		ids := make([]string, 0, len(n.Children))
		for _, c := range n.Children {
			if !isIDElement(c) {
				return nil, errors.Errorf("id filter mixed with '%s'", c.Name.Local)
			}
			id := idOf(c)
			if id == "" {
				return nil, errors.Errorf("%s without id", c.Name.Local)
			}
			ids = append(ids, id)
		}
		return &IDFilter{IDs: ids}, nil
	}

	if len(n.Children) != 1 {
		return nil, errors.New("filter must contain exactly one operator")
	}
	op, err := parseOperator(n.Children[0])
	if err != nil {
		return nil, err
	}
	return &OperatorFilter{Operator: op}, nil
}

func isIDElement(n *xmlnode.Node) bool {
	switch n.Name.Local {
	case "FeatureId", "GmlObjectId", "ResourceId":
		return true
	}
	return false
}

func idOf(n *xmlnode.Node) string {
	switch n.Name.Local {
	case "FeatureId":
		return n.Attr("fid")
	case "GmlObjectId":
		return n.Attr("id")
	case "ResourceId":
		return n.Attr("rid")
	}
	return ""
}

func parseOperator(n *xmlnode.Node) (Operator, error) {
	switch n.Name.Local {
	case string(EqualTo), string(NotEqualTo), string(LessThan), string(GreaterThan),
		string(LessThanOrEqualTo), string(GreaterThanOrEqualTo):
		property, literal, err := operands(n)
		if err != nil {
			return nil, err
		}
		return &Comparison{Op: ComparisonOp(n.Name.Local), Property: property, Literal: literal, MatchCase: matchCase(n)}, nil
	case "PropertyIsLike":
		property, literal, err := operands(n)
		if err != nil {
			return nil, err
		}
		escape := n.Attr("escapeChar")
		if escape == "" {
			escape = n.Attr("escape")
		}
		return &Like{
			Property:   property,
			Pattern:    literal,
			WildCard:   n.Attr("wildCard"),
			SingleChar: n.Attr("singleChar"),
			Escape:     escape,
			MatchCase:  matchCase(n),
		}, nil
	case "PropertyIsNull":
		property := propertyName(n)
		if property == "" {
			return nil, errors.New("PropertyIsNull without property")
		}
		return &IsNull{Property: property}, nil
	case "PropertyIsBetween":
		property := propertyName(n)
		lower := n.Child("", "LowerBoundary").Child("", "Literal")
		upper := n.Child("", "UpperBoundary").Child("", "Literal")
		if property == "" || lower == nil || upper == nil {
			return nil, errors.New("PropertyIsBetween needs property, lower and upper boundary")
		}
		return &Logical{Op: And, Operands: []Operator{
			&Comparison{Op: GreaterThanOrEqualTo, Property: property, Literal: lower.Value(), MatchCase: true},
			&Comparison{Op: LessThanOrEqualTo, Property: property, Literal: upper.Value(), MatchCase: true},
		}}, nil
	case string(And), string(Or):
		if len(n.Children) < 2 {
			return nil, errors.Errorf("%s needs at least two operands", n.Name.Local)
		}
		l := &Logical{Op: LogicalOp(n.Name.Local)}
		for _, c := range n.Children {
			op, err := parseOperator(c)
			if err != nil {
				return nil, err
			}
			l.Operands = append(l.Operands, op)
		}
		return l, nil
	case "Not":
		if len(n.Children) != 1 {
			return nil, errors.New("Not needs exactly one operand")
		}
		op, err := parseOperator(n.Children[0])
		if err != nil {
			return nil, err
		}
		return &Not{Operand: op}, nil
	case "BBOX":
		var envelope *xmlnode.Node
		for _, c := range n.Children {
			if gml.IsGMLNamespace(c.Name.Space) {
				envelope = c
			}
		}
		if envelope == nil {
			return nil, errors.New("BBOX without envelope")
		}
		g, err := gml.ParseGeometry(envelope, geometry.CRS{})
		if err != nil {
			return nil, errors.Wrap(err, "BBOX")
		}
		if g.Kind != geometry.KindEnvelope {
			return nil, errors.Errorf("BBOX expects an envelope, got %s", g.Kind)
		}
		return &BBox{Property: propertyName(n), Envelope: g}, nil
	}
	return nil, errors.Errorf("unsupported filter operator '%s'", n.Name.Local)
}

func propertyName(n *xmlnode.Node) string {
	if p := n.Child("", "PropertyName"); p != nil {
		return p.Value()
	}
	return n.Child("", "ValueReference").Value()
}

func operands(n *xmlnode.Node) (string, string, error) {
	property := propertyName(n)
	literal := n.Child("", "Literal")
	if property == "" || literal == nil {
		return "", "", errors.Errorf("%s needs a property and a literal", n.Name.Local)
	}
	return property, literal.Value(), nil
}

// matchCase 缺省为 true
func matchCase(n *xmlnode.Node) bool {
	v := n.Attr("matchCase")
	if v == "" {
		return true
	}
	return cast.ToBool(v)
}

// SetDefaultCRS 为没有声明坐标系的几何字面量补上默认坐标系
func SetDefaultCRS(f Filter, crs geometry.CRS) {
	if of, ok := f.(*OperatorFilter); ok {
		setDefaultCRS(of.Operator, crs)
	}
}

func setDefaultCRS(op Operator, crs geometry.CRS) {
	switch o := op.(type) {
	case *BBox:
		if o.Envelope != nil && o.Envelope.CRS.IsZero() {
			o.Envelope.CRS = crs
		}
	case *Logical:
		for _, operand := range o.Operands {
			setDefaultCRS(operand, crs)
		}
	case *Not:
		setDefaultCRS(o.Operand, crs)
	}
}
