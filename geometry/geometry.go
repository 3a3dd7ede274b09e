package geometry

import (
	"math"
	"strings"
)

// Kind 几何类型
type Kind string

const (
	KindPoint           Kind = "Point"
	KindLineString      Kind = "LineString"
	KindPolygon         Kind = "Polygon"
	KindMultiPoint      Kind = "MultiPoint"
	KindMultiLineString Kind = "MultiLineString"
	KindMultiPolygon    Kind = "MultiPolygon"
	KindEnvelope        Kind = "Envelope"
)

type Point struct {
	X float64
	Y float64
}

// Geometry 简单要素几何
//   - Point / LineString: Points
//   - Polygon: Rings，第一个为外环
//   - Envelope: Points[0] 为 lowerCorner，Points[1] 为 upperCorner
//   - Multi*: Parts
type Geometry struct {
	Kind   Kind
	CRS    CRS
	Points []Point
	Rings  [][]Point
	Parts  []*Geometry
}

// Envelope 外包矩形
type Envelope struct {
	MinX, MinY, MaxX, MaxY float64
	CRS                    CRS
}

// NewEnvelope 以角点构造 Envelope 几何
func NewEnvelope(lower, upper Point, crs CRS) *Geometry {
	return &Geometry{Kind: KindEnvelope, CRS: crs, Points: []Point{lower, upper}}
}

// Intersects 两个外包矩形是否相交
func (e Envelope) Intersects(o Envelope) bool {
	return e.MinX <= o.MaxX && o.MinX <= e.MaxX && e.MinY <= o.MaxY && o.MinY <= e.MaxY
}

// Envelope 计算几何的外包矩形
func (g *Geometry) Envelope() Envelope {
	env := Envelope{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1), CRS: g.CRS}
	g.walk(func(p Point) {
		env.MinX = math.Min(env.MinX, p.X)
		env.MinY = math.Min(env.MinY, p.Y)
		env.MaxX = math.Max(env.MaxX, p.X)
		env.MaxY = math.Max(env.MaxY, p.Y)
	})
	return env
}

func (g *Geometry) walk(f func(Point)) {
	for _, p := range g.Points {
		f(p)
	}
	for _, ring := range g.Rings {
		for _, p := range ring {
			f(p)
		}
	}
	for _, part := range g.Parts {
		part.walk(f)
	}
}

// mapPoints 返回逐点变换后的副本
func (g *Geometry) mapPoints(crs CRS, f func(Point) Point) *Geometry {
	out := &Geometry{Kind: g.Kind, CRS: crs}
	if g.Points != nil {
		out.Points = make([]Point, 0, len(g.Points))
		for _, p := range g.Points {
			out.Points = append(out.Points, f(p))
		}
	}
	for _, ring := range g.Rings {
		r := make([]Point, 0, len(ring))
		for _, p := range ring {
			r = append(r, f(p))
		}
		out.Rings = append(out.Rings, r)
	}
	for _, part := range g.Parts {
		out.Parts = append(out.Parts, part.mapPoints(crs, f))
	}
	return out
}

// WKT 以给定的坐标格式化器输出 WKT，Envelope 输出为矩形 POLYGON
func (g *Geometry) WKT(f *DecimalFormatter) string {
	var sb strings.Builder
	g.writeWKT(&sb, f, true)
	return sb.String()
}

func (g *Geometry) writeWKT(sb *strings.Builder, f *DecimalFormatter, tagged bool) {
	writeSeq := func(points []Point) {
		sb.WriteByte('(')
		for i, p := range points {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(f.Format(p.X))
			sb.WriteByte(' ')
			sb.WriteString(f.Format(p.Y))
		}
		sb.WriteByte(')')
	}
	writeRings := func(rings [][]Point) {
		sb.WriteByte('(')
		for i, ring := range rings {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeSeq(ring)
		}
		sb.WriteByte(')')
	}

	switch g.Kind {
	case KindPoint:
		if tagged {
			sb.WriteString("POINT")
		}
		writeSeq(g.Points)
	case KindLineString:
		if tagged {
			sb.WriteString("LINESTRING")
		}
		writeSeq(g.Points)
	case KindPolygon:
		if tagged {
			sb.WriteString("POLYGON")
		}
		writeRings(g.Rings)
	case KindEnvelope:
		lo, hi := g.Points[0], g.Points[1]
		sb.WriteString("POLYGON")
		writeRings([][]Point{{lo, {X: hi.X, Y: lo.Y}, hi, {X: lo.X, Y: hi.Y}, lo}})
	case KindMultiPoint, KindMultiLineString, KindMultiPolygon:
		sb.WriteString(strings.ToUpper(string(g.Kind)))
		sb.WriteByte('(')
		for i, part := range g.Parts {
			if i > 0 {
				sb.WriteString(", ")
			}
			part.writeWKT(sb, f, false)
		}
		sb.WriteByte(')')
	}
}
