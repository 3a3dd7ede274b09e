package gml

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/xiaoxuxiansheng/gowfs/geometry"
	"github.com/xiaoxuxiansheng/gowfs/xmlnode"
)

// IsGMLNamespace 是否为任一 GML 版本的命名空间
func IsGMLNamespace(space string) bool {
	return space == Namespace || space == Namespace32
}

// ParseGeometry 解析 GML 2 / 3.x 几何元素，元素上的 srsName 优先于 defaultCRS
func ParseGeometry(n *xmlnode.Node, defaultCRS geometry.CRS) (*geometry.Geometry, error) {
	if n == nil {
		return nil, errors.New("missing geometry element")
	}
	if !IsGMLNamespace(n.Name.Space) {
		return nil, errors.Errorf("element '%s' is not a gml geometry", n.Name.Local)
	}

	crs := defaultCRS
	if srsName := n.Attr("srsName"); srsName != "" {
		var err error
		if crs, err = geometry.LookupCRS(srsName); err != nil {
			return nil, err
		}
	}

	g := &geometry.Geometry{CRS: crs}
	var err error
	switch n.Name.Local {
	case "Point":
		g.Kind = geometry.KindPoint
		g.Points, err = positions(n)
	case "LineString":
		g.Kind = geometry.KindLineString
		g.Points, err = positions(n)
	case "LinearRing":
		g.Kind = geometry.KindLineString
		g.Points, err = positions(n)
	case "Polygon":
		g.Kind = geometry.KindPolygon
		g.Rings, err = rings(n)
	case "Envelope", "Box":
		g.Kind = geometry.KindEnvelope
		g.Points, err = corners(n)
	case "MultiPoint":
		g.Kind = geometry.KindMultiPoint
		g.Parts, err = members(n, crs, "pointMember", "pointMembers")
	case "MultiLineString", "MultiCurve":
		g.Kind = geometry.KindMultiLineString
		g.Parts, err = members(n, crs, "lineStringMember", "curveMember", "curveMembers")
	case "MultiPolygon", "MultiSurface":
		g.Kind = geometry.KindMultiPolygon
		g.Parts, err = members(n, crs, "polygonMember", "surfaceMember", "surfaceMembers")
	default:
		return nil, errors.Errorf("unsupported geometry type '%s'", n.Name.Local)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", n.Name.Local)
	}
	return g, nil
}

// positions 支持 pos, posList, coordinates 与 GML2 的 coord
func positions(n *xmlnode.Node) ([]geometry.Point, error) {
	var out []geometry.Point
	for _, c := range n.Children {
		switch c.Name.Local {
		case "pos":
			ps, err := parseNumbers(c.Value(), 2)
			if err != nil {
				return nil, err
			}
			out = append(out, ps...)
		case "posList":
			dim := 2
			if d := c.Attr("srsDimension"); d != "" {
				var err error
				if dim, err = cast.ToIntE(d); err != nil || dim < 2 {
					return nil, errors.Errorf("invalid srsDimension '%s'", d)
				}
			}
			ps, err := parseNumbers(c.Value(), dim)
			if err != nil {
				return nil, err
			}
			out = append(out, ps...)
		case "coordinates":
			ps, err := parseCoordinates(c)
			if err != nil {
				return nil, err
			}
			out = append(out, ps...)
		case "coord":
			x, err := cast.ToFloat64E(c.Child("", "X").Value())
			if err != nil {
				return nil, errors.Wrap(err, "invalid coord X")
			}
			y, err := cast.ToFloat64E(c.Child("", "Y").Value())
			if err != nil {
				return nil, errors.Wrap(err, "invalid coord Y")
			}
			out = append(out, geometry.Point{X: x, Y: y})
		case "pointProperty", "pointRep":
			p, err := ParseGeometry(c.FirstElement(), geometry.CRS{})
			if err != nil {
				return nil, err
			}
			out = append(out, p.Points...)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no coordinates")
	}
	return out, nil
}

// parseNumbers 按维度把空白分隔的数值切分成点，只保留前两维
func parseNumbers(text string, dim int) ([]geometry.Point, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 || len(fields)%dim != 0 {
		return nil, errors.Errorf("coordinate list '%s' does not match dimension %d", text, dim)
	}
	out := make([]geometry.Point, 0, len(fields)/dim)
	for i := 0; i < len(fields); i += dim {
		x, err := cast.ToFloat64E(fields[i])
		if err != nil {
			return nil, errors.Errorf("invalid coordinate '%s'", fields[i])
		}
		y, err := cast.ToFloat64E(fields[i+1])
		if err != nil {
			return nil, errors.Errorf("invalid coordinate '%s'", fields[i+1])
		}
		out = append(out, geometry.Point{X: x, Y: y})
	}
	return out, nil
}

// parseCoordinates gml:coordinates，分隔符取自 decimal / cs / ts 属性
func parseCoordinates(n *xmlnode.Node) ([]geometry.Point, error) {
	decimal, cs, ts := ".", ",", " "
	if v := n.Attr("decimal"); v != "" {
		decimal = v
	}
	if v := n.Attr("cs"); v != "" {
		cs = v
	}
	if v := n.Attr("ts"); v != "" {
		ts = v
	}

	var tuples []string
	if strings.TrimSpace(ts) == "" {
		tuples = strings.Fields(n.Value())
	} else {
		tuples = strings.Split(n.Value(), ts)
	}
	var out []geometry.Point
	for _, tuple := range tuples {
		tuple = strings.TrimSpace(tuple)
		if tuple == "" {
			continue
		}
		parts := strings.Split(tuple, cs)
		if len(parts) < 2 {
			return nil, errors.Errorf("invalid coordinate tuple '%s'", tuple)
		}
		var xy [2]float64
		for i := 0; i < 2; i++ {
			v, err := cast.ToFloat64E(strings.Replace(strings.TrimSpace(parts[i]), decimal, ".", 1))
			if err != nil {
				return nil, errors.Errorf("invalid coordinate tuple '%s'", tuple)
			}
			xy[i] = v
		}
		out = append(out, geometry.Point{X: xy[0], Y: xy[1]})
	}
	return out, nil
}

// rings GML3 exterior/interior 与 GML2 outerBoundaryIs/innerBoundaryIs
func rings(n *xmlnode.Node) ([][]geometry.Point, error) {
	var exterior []geometry.Point
	var interiors [][]geometry.Point
	for _, c := range n.Children {
		switch c.Name.Local {
		case "exterior", "outerBoundaryIs", "interior", "innerBoundaryIs":
		default:
			continue
		}
		ring := c.Child("", "LinearRing")
		if ring == nil {
			return nil, errors.Errorf("%s without LinearRing", c.Name.Local)
		}
		ps, err := positions(ring)
		if err != nil {
			return nil, err
		}
		if c.Name.Local == "exterior" || c.Name.Local == "outerBoundaryIs" {
			exterior = ps
			continue
		}
		interiors = append(interiors, ps)
	}
	if exterior == nil {
		return nil, errors.New("polygon without exterior ring")
	}
	return append([][]geometry.Point{exterior}, interiors...), nil
}

// corners Envelope 的 lowerCorner/upperCorner，或者两个 pos / coord / coordinates
func corners(n *xmlnode.Node) ([]geometry.Point, error) {
	lower, upper := n.Child("", "lowerCorner"), n.Child("", "upperCorner")
	if lower != nil && upper != nil {
		lo, err := parseNumbers(lower.Value(), 2)
		if err != nil {
			return nil, err
		}
		hi, err := parseNumbers(upper.Value(), 2)
		if err != nil {
			return nil, err
		}
		return []geometry.Point{lo[0], hi[0]}, nil
	}
	ps, err := positions(n)
	if err != nil {
		return nil, err
	}
	if len(ps) != 2 {
		return nil, errors.New("envelope needs exactly two corners")
	}
	return ps, nil
}

func members(n *xmlnode.Node, crs geometry.CRS, names ...string) ([]*geometry.Geometry, error) {
	var out []*geometry.Geometry
	for _, c := range n.Children {
		if !contains(names, c.Name.Local) {
			continue
		}
		// xxxMembers 中可以包含多个几何
		for _, member := range c.Children {
			g, err := ParseGeometry(member, crs)
			if err != nil {
				return nil, err
			}
			out = append(out, g)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no members")
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
