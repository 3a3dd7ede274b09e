package geometry

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// CRS 坐标参考系
type CRS struct {
	// 规范化后的标识，例如 EPSG:4326
	Code string
	EPSG int
	// 坐标轴顺序为纬度在前
	LatLon     bool
	Geographic bool
}

func (c CRS) String() string {
	return c.Code
}

// IsZero 未指定坐标系
func (c CRS) IsZero() bool {
	return c.Code == ""
}

// SameDatum 两个坐标系仅轴序不同
func (c CRS) SameDatum(o CRS) bool {
	return c.EPSG == o.EPSG
}

var geographicCodes = map[int]bool{
	4326: true,
	4258: true,
	4269: true,
	4979: true,
}

var projectedCodes = map[int]bool{
	3857:   true,
	900913: true,
	3035:   true,
	25832:  true,
	25833:  true,
	31466:  true,
	31467:  true,
	31468:  true,
	32632:  true,
	32633:  true,
}

// ErrUnknownCRS 无法识别的 srsName
var ErrUnknownCRS = errors.New("unknown crs")

// LookupCRS 解析 srsName，支持 EPSG:xxxx, urn, http 以及 CRS:84 写法
func LookupCRS(name string) (CRS, error) {
	raw := strings.TrimSpace(name)
	if raw == "" {
		return CRS{}, errors.Wrap(ErrUnknownCRS, "empty srsName")
	}
	lower := strings.ToLower(raw)

	if lower == "crs:84" || lower == "urn:ogc:def:crs:ogc:1.3:crs84" || lower == "http://www.opengis.net/def/crs/ogc/1.3/crs84" {
		return CRS{Code: "EPSG:4326", EPSG: 4326, Geographic: true}, nil
	}

	var codeStr string
	latLon := false
	switch {
	case strings.HasPrefix(lower, "epsg:"):
		codeStr = lower[len("epsg:"):]
	case strings.HasPrefix(lower, "urn:ogc:def:crs:epsg:"), strings.HasPrefix(lower, "urn:x-ogc:def:crs:epsg:"):
		// urn:ogc:def:crs:EPSG::4326 或 urn:ogc:def:crs:EPSG:6.6:4326
		codeStr = lower[strings.LastIndex(lower, ":")+1:]
		latLon = true
	case strings.HasPrefix(lower, "http://www.opengis.net/gml/srs/epsg.xml#"):
		codeStr = lower[strings.Index(lower, "#")+1:]
	case strings.HasPrefix(lower, "http://www.opengis.net/def/crs/epsg/"):
		codeStr = lower[strings.LastIndex(lower, "/")+1:]
		latLon = true
	default:
		return CRS{}, errors.Wrapf(ErrUnknownCRS, "unsupported srsName '%s'", raw)
	}

	code, err := cast.ToIntE(codeStr)
	if err != nil {
		return CRS{}, errors.Wrapf(ErrUnknownCRS, "invalid epsg code in '%s'", raw)
	}
	geographic := geographicCodes[code]
	if !geographic && !projectedCodes[code] {
		return CRS{}, errors.Wrapf(ErrUnknownCRS, "epsg code %d is not known", code)
	}
	return CRS{
		Code:       fmt.Sprintf("EPSG:%d", code),
		EPSG:       code,
		LatLon:     latLon && geographic,
		Geographic: geographic,
	}, nil
}

// MustLookupCRS 仅用于内置常量
func MustLookupCRS(name string) CRS {
	crs, err := LookupCRS(name)
	if err != nil {
		panic(err)
	}
	return crs
}
