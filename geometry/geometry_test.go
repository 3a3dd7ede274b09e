package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_LookupCRS(t *testing.T) {
	tests := []struct {
		name      string
		srsName   string
		code      string
		latLon    bool
		expectErr bool
	}{
		{name: "epsg short", srsName: "EPSG:4326", code: "EPSG:4326"},
		{name: "urn", srsName: "urn:ogc:def:crs:EPSG::4326", code: "EPSG:4326", latLon: true},
		{name: "urn versioned", srsName: "urn:x-ogc:def:crs:EPSG:6.6:4258", code: "EPSG:4258", latLon: true},
		{name: "gml srs", srsName: "http://www.opengis.net/gml/srs/epsg.xml#25832", code: "EPSG:25832"},
		{name: "http def", srsName: "http://www.opengis.net/def/crs/EPSG/0/3857", code: "EPSG:3857"},
		{name: "crs84", srsName: "CRS:84", code: "EPSG:4326"},
		{name: "unknown code", srsName: "EPSG:123456", expectErr: true},
		{name: "garbage", srsName: "foo", expectErr: true},
		{name: "empty", srsName: "", expectErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crs, err := LookupCRS(tt.srsName)
			assert.Equal(t, tt.expectErr, err != nil)
			if tt.expectErr {
				return
			}
			assert.Equal(t, tt.code, crs.Code)
			assert.Equal(t, tt.latLon, crs.LatLon)
		})
	}
}

func Test_Transformer(t *testing.T) {
	_, err := NewTransformer("EPSG:999999")
	assert.Equal(t, true, err != nil)

	tr, err := NewTransformer("EPSG:4326")
	assert.Equal(t, nil, err)

	latLon := MustLookupCRS("urn:ogc:def:crs:EPSG::4326")
	g := &Geometry{Kind: KindPoint, CRS: latLon, Points: []Point{{X: 50.7, Y: 7.1}}}
	out, err := tr.Transform(g)
	assert.Equal(t, nil, err)
	assert.Equal(t, Point{X: 7.1, Y: 50.7}, out.Points[0])
	assert.Equal(t, "EPSG:4326", out.CRS.Code)

	merc := MustLookupCRS("EPSG:3857")
	g = &Geometry{Kind: KindPoint, CRS: merc, Points: []Point{{X: 0, Y: 0}}}
	out, err = tr.Transform(g)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, math.Abs(out.Points[0].X) < 1e-9)
	assert.Equal(t, true, math.Abs(out.Points[0].Y) < 1e-9)

	utm := MustLookupCRS("EPSG:25832")
	_, err = tr.Transform(&Geometry{Kind: KindPoint, CRS: utm, Points: []Point{{X: 1, Y: 1}}})
	assert.Equal(t, true, err != nil)
}

func Test_DecimalFormatter(t *testing.T) {
	_, err := NewDecimalFormatter(-1)
	assert.Equal(t, true, err != nil)

	f, err := NewDecimalFormatter(4)
	assert.Equal(t, nil, err)
	assert.Equal(t, "7.1", f.Format(7.1))
	assert.Equal(t, "7.1235", f.Format(7.123456))
	assert.Equal(t, "10", f.Format(10))
	assert.Equal(t, "0", f.Format(-0.00001))
}

func Test_Inspect(t *testing.T) {
	wgs := MustLookupCRS("EPSG:4326")
	tests := []struct {
		name      string
		g         *Geometry
		expectErr bool
	}{
		{name: "valid point", g: &Geometry{Kind: KindPoint, CRS: wgs, Points: []Point{{X: 7, Y: 50}}}},
		{name: "lat out of range", g: &Geometry{Kind: KindPoint, CRS: wgs, Points: []Point{{X: 7, Y: 95}}}, expectErr: true},
		{name: "nan", g: &Geometry{Kind: KindPoint, Points: []Point{{X: math.NaN(), Y: 1}}}, expectErr: true},
		{name: "short line", g: &Geometry{Kind: KindLineString, Points: []Point{{X: 1, Y: 1}}}, expectErr: true},
		{name: "open ring", g: &Geometry{Kind: KindPolygon, Rings: [][]Point{{{0, 0}, {1, 0}, {1, 1}, {0, 1}}}}, expectErr: true},
		{name: "closed ring", g: &Geometry{Kind: KindPolygon, Rings: [][]Point{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}}},
		{name: "inverted envelope", g: NewEnvelope(Point{X: 2, Y: 2}, Point{X: 1, Y: 1}, wgs), expectErr: true},
		{name: "multi with bad part", g: &Geometry{Kind: KindMultiPoint, CRS: wgs, Parts: []*Geometry{{Kind: KindPoint, Points: []Point{{X: 200, Y: 0}}}}}, expectErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectErr, Inspect(tt.g) != nil)
		})
	}
}

func Test_WKT(t *testing.T) {
	f, _ := NewDecimalFormatter(6)
	wgs := MustLookupCRS("EPSG:4326")
	env := NewEnvelope(Point{X: -10, Y: 40}, Point{X: 20, Y: 60}, wgs)
	assert.Equal(t, "POLYGON((-10 40, 20 40, 20 60, -10 60, -10 40))", env.WKT(f))

	mp := &Geometry{Kind: KindMultiPoint, Parts: []*Geometry{
		{Kind: KindPoint, Points: []Point{{X: 1, Y: 2}}},
		{Kind: KindPoint, Points: []Point{{X: 3, Y: 4}}},
	}}
	assert.Equal(t, "MULTIPOINT((1 2), (3 4))", mp.WKT(f))

	e := env.Envelope()
	assert.Equal(t, true, e.Intersects(Envelope{MinX: 0, MinY: 0, MaxX: 5, MaxY: 45}))
	assert.Equal(t, false, e.Intersects(Envelope{MinX: 30, MinY: 0, MaxX: 35, MaxY: 45}))
}

func Test_ParseWKT(t *testing.T) {
	f, _ := NewDecimalFormatter(6)
	crs := MustLookupCRS("EPSG:4326")
	tests := []struct {
		name      string
		wkt       string
		kind      Kind
		expectErr bool
	}{
		{name: "point", wkt: "POINT(7.5 51)", kind: KindPoint},
		{name: "polygon with hole", wkt: "POLYGON((0 0, 4 0, 4 4, 0 0), (1 1, 2 1, 2 2, 1 1))", kind: KindPolygon},
		{name: "multi point", wkt: "MULTIPOINT((1 2), (3 4))", kind: KindMultiPoint},
		{name: "multi polygon", wkt: "MULTIPOLYGON(((0 0, 1 0, 1 1, 0 0)), ((5 5, 6 5, 6 6, 5 5)))", kind: KindMultiPolygon},
		{name: "unknown tag", wkt: "CIRCLE(1 2)", expectErr: true},
		{name: "unbalanced", wkt: "LINESTRING((1 2, 3 4)", expectErr: true},
		{name: "bad number", wkt: "POINT(a b)", expectErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := ParseWKT(tt.wkt, crs)
			assert.Equal(t, tt.expectErr, err != nil)
			if err != nil {
				return
			}
			assert.Equal(t, tt.kind, g.Kind)
			assert.Equal(t, crs, g.CRS)
			assert.Equal(t, tt.wkt, g.WKT(f))
		})
	}
}
