package geometry

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// ParseWKT 解析 WKT 输出的几何，POLYGON 不会还原成 Envelope
func ParseWKT(wkt string, crs CRS) (*Geometry, error) {
	s := strings.TrimSpace(wkt)
	open := strings.Index(s, "(")
	if open < 0 || !strings.HasSuffix(s, ")") {
		return nil, errors.Errorf("invalid wkt '%s'", wkt)
	}
	tag := strings.ToUpper(strings.TrimSpace(s[:open]))
	body := s[open:]

	g := &Geometry{CRS: crs}
	var err error
	switch tag {
	case "POINT":
		g.Kind = KindPoint
		g.Points, err = parsePointSeq(body)
	case "LINESTRING":
		g.Kind = KindLineString
		g.Points, err = parsePointSeq(body)
	case "POLYGON":
		g.Kind = KindPolygon
		g.Rings, err = parseRingSeq(body)
	case "MULTIPOINT", "MULTILINESTRING", "MULTIPOLYGON":
		g.Kind = map[string]Kind{
			"MULTIPOINT":      KindMultiPoint,
			"MULTILINESTRING": KindMultiLineString,
			"MULTIPOLYGON":    KindMultiPolygon,
		}[tag]
		g.Parts, err = parseParts(g.Kind, body, crs)
	default:
		return nil, errors.Errorf("unsupported wkt type '%s'", tag)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parse wkt %s", tag)
	}
	return g, nil
}

// splitGroups 拆分最外层括号内按逗号分隔的分组
func splitGroups(body string) ([]string, error) {
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, "(") || !strings.HasSuffix(body, ")") {
		return nil, errors.Errorf("unbalanced '%s'", body)
	}
	body = body[1 : len(body)-1]

	var groups []string
	depth, start := 0, 0
	for i, ch := range body {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, errors.New("unbalanced parentheses")
			}
		case ',':
			if depth == 0 {
				groups = append(groups, strings.TrimSpace(body[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, errors.New("unbalanced parentheses")
	}
	return append(groups, strings.TrimSpace(body[start:])), nil
}

func parsePointSeq(body string) ([]Point, error) {
	groups, err := splitGroups(body)
	if err != nil {
		return nil, err
	}
	out := make([]Point, 0, len(groups))
	for _, g := range groups {
		// MULTIPOINT((1 2), (3 4)) 中的点带括号
		g = strings.TrimSuffix(strings.TrimPrefix(g, "("), ")")
		fields := strings.Fields(g)
		if len(fields) < 2 {
			return nil, errors.Errorf("invalid position '%s'", g)
		}
		x, err := cast.ToFloat64E(fields[0])
		if err != nil {
			return nil, errors.Errorf("invalid coordinate '%s'", fields[0])
		}
		y, err := cast.ToFloat64E(fields[1])
		if err != nil {
			return nil, errors.Errorf("invalid coordinate '%s'", fields[1])
		}
		out = append(out, Point{X: x, Y: y})
	}
	return out, nil
}

func parseRingSeq(body string) ([][]Point, error) {
	groups, err := splitGroups(body)
	if err != nil {
		return nil, err
	}
	var rings [][]Point
	for _, g := range groups {
		ring, err := parsePointSeq(g)
		if err != nil {
			return nil, err
		}
		rings = append(rings, ring)
	}
	return rings, nil
}

func parseParts(kind Kind, body string, crs CRS) ([]*Geometry, error) {
	groups, err := splitGroups(body)
	if err != nil {
		return nil, err
	}
	var parts []*Geometry
	for _, g := range groups {
		part := &Geometry{CRS: crs}
		switch kind {
		case KindMultiPoint:
			part.Kind = KindPoint
			part.Points, err = parsePointSeq("(" + strings.TrimSuffix(strings.TrimPrefix(g, "("), ")") + ")")
		case KindMultiLineString:
			part.Kind = KindLineString
			part.Points, err = parsePointSeq(g)
		default:
			part.Kind = KindPolygon
			part.Rings, err = parseRingSeq(g)
		}
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, nil
}
