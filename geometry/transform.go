package geometry

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Transformer 把几何变换到目标坐标系
type Transformer interface {
	Target() CRS
	Transform(g *Geometry) (*Geometry, error)
}

const earthRadius = 6378137.0

type transformer struct {
	target CRS
}

// NewTransformer 构造变换器，目标坐标系无法识别时直接返回错误
func NewTransformer(target string) (Transformer, error) {
	crs, err := LookupCRS(target)
	if err != nil {
		return nil, errors.Wrap(err, "init geometry transformer")
	}
	return &transformer{target: crs}, nil
}

func (t *transformer) Target() CRS {
	return t.target
}

// Transform 支持同一基准下的轴序调整，以及 WGS84 与 web mercator 之间的换算
func (t *transformer) Transform(g *Geometry) (*Geometry, error) {
	if g == nil {
		return nil, nil
	}
	src := g.CRS
	if src.IsZero() || src == t.target {
		return g, nil
	}

	toLonLat, err := toLonLatFunc(src)
	if err != nil {
		return nil, err
	}
	fromLonLat, err := fromLonLatFunc(t.target)
	if err != nil {
		return nil, err
	}
	if src.SameDatum(t.target) {
		// 仅轴序不同
		toLonLat, fromLonLat = axisFunc(src), axisFunc(t.target)
	}
	return g.mapPoints(t.target, func(p Point) Point {
		return fromLonLat(toLonLat(p))
	}), nil
}

func axisFunc(crs CRS) func(Point) Point {
	if crs.LatLon {
		return swap
	}
	return identity
}

func identity(p Point) Point {
	return p
}

func swap(p Point) Point {
	return Point{X: p.Y, Y: p.X}
}

func toLonLatFunc(crs CRS) (func(Point) Point, error) {
	switch {
	case crs.Geographic:
		return axisFunc(crs), nil
	case crs.EPSG == 3857 || crs.EPSG == 900913:
		return func(p Point) Point {
			lon := p.X / earthRadius * 180 / math.Pi
			lat := (2*math.Atan(math.Exp(p.Y/earthRadius)) - math.Pi/2) * 180 / math.Pi
			return Point{X: lon, Y: lat}
		}, nil
	}
	return nil, errors.Errorf("no transformation from %s", crs)
}

func fromLonLatFunc(crs CRS) (func(Point) Point, error) {
	switch {
	case crs.Geographic:
		return axisFunc(crs), nil
	case crs.EPSG == 3857 || crs.EPSG == 900913:
		return func(p Point) Point {
			x := p.X * math.Pi / 180 * earthRadius
			y := math.Log(math.Tan(math.Pi/4+p.Y*math.Pi/360)) * earthRadius
			return Point{X: x, Y: y}
		}, nil
	}
	return nil, errors.Errorf("no transformation to %s", crs)
}

// DecimalFormatter 坐标输出的小数位格式化
type DecimalFormatter struct {
	places int
}

// NewDecimalFormatter 小数位需要在 [0, 15] 之间
func NewDecimalFormatter(places int) (*DecimalFormatter, error) {
	if places < 0 || places > 15 {
		return nil, errors.Errorf("invalid number of decimal places: %d", places)
	}
	return &DecimalFormatter{places: places}, nil
}

// Format 去掉末尾多余的 0
func (f *DecimalFormatter) Format(v float64) string {
	s := strconv.FormatFloat(v, 'f', f.places, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	if s == "-0" {
		s = "0"
	}
	return s
}

// Inspect 检查坐标合法性：有限数值，地理坐标系下不越界，线与面的点数与闭合
func Inspect(g *Geometry) error {
	if g == nil {
		return nil
	}
	var err error
	lonLat := axisFunc(g.CRS)
	g.walk(func(p Point) {
		if err != nil {
			return
		}
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			err = errors.New("coordinate is not a finite number")
			return
		}
		if g.CRS.Geographic {
			ll := lonLat(p)
			if ll.X < -180 || ll.X > 180 || ll.Y < -90 || ll.Y > 90 {
				err = errors.Errorf("coordinate (%v %v) is outside the domain of %s", p.X, p.Y, g.CRS)
			}
		}
	})
	if err != nil {
		return err
	}

	switch g.Kind {
	case KindPoint:
		if len(g.Points) != 1 {
			return errors.New("point needs exactly one position")
		}
	case KindLineString:
		if len(g.Points) < 2 {
			return errors.New("line string needs at least two positions")
		}
	case KindEnvelope:
		if len(g.Points) != 2 {
			return errors.New("envelope needs lower and upper corner")
		}
		if g.Points[0].X > g.Points[1].X || g.Points[0].Y > g.Points[1].Y {
			return errors.New("envelope lower corner exceeds upper corner")
		}
	case KindPolygon:
		if len(g.Rings) == 0 {
			return errors.New("polygon needs an exterior ring")
		}
		for _, ring := range g.Rings {
			if len(ring) < 4 {
				return errors.New("polygon ring needs at least four positions")
			}
			if ring[0] != ring[len(ring)-1] {
				return errors.New("polygon ring is not closed")
			}
		}
	}
	for _, part := range g.Parts {
		if part.CRS.IsZero() {
			part.CRS = g.CRS
		}
		if err := Inspect(part); err != nil {
			return err
		}
	}
	return nil
}
