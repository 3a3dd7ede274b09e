package sqlstore

import (
	"encoding/xml"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/xiaoxuxiansheng/gowfs/feature"
	"github.com/xiaoxuxiansheng/gowfs/geometry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	valueSimple    = "simple"
	valueGeometry  = "geometry"
	valueReference = "reference"
	valueFeature   = "feature"
)

type propertyPO struct {
	Space string `json:"space,omitempty"`
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Value string `json:"value"`
	CRS   string `json:"crs,omitempty"`
}

// typeKey 要素类型在库中的名称，形如 {namespace}local
func typeKey(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return "{" + name.Space + "}" + name.Local
}

func encodeProperties(f *feature.Feature) (string, error) {
	pos := make([]propertyPO, 0, len(f.Properties))
	for _, p := range f.Properties {
		po := propertyPO{Space: p.Name.Space, Name: p.Name.Local, Kind: valueSimple}
		switch v := p.Value.(type) {
		case *geometry.Geometry:
			po.Kind = valueGeometry
			po.CRS = v.CRS.Code
		case feature.Reference:
			po.Kind = valueReference
		case *feature.Feature:
			po.Kind = valueFeature
		}
		po.Value = feature.ValueString(p.Value)
		pos = append(pos, po)
	}
	body, err := json.Marshal(pos)
	if err != nil {
		return "", errors.Wrapf(err, "encode properties of %s", f.ID)
	}
	return string(body), nil
}

func decodeFeature(po *FeaturePO, ft *feature.FeatureType) (*feature.Feature, error) {
	var pos []propertyPO
	if err := json.Unmarshal([]byte(po.Properties), &pos); err != nil {
		return nil, errors.Wrapf(err, "decode properties of %s", po.ID)
	}

	f := &feature.Feature{ID: po.ID, Type: ft.Name, Properties: make([]feature.Property, 0, len(pos))}
	for _, p := range pos {
		name := xml.Name{Space: p.Space, Local: p.Name}
		var value interface{} = p.Value
		switch p.Kind {
		case valueGeometry:
			var crs geometry.CRS
			if p.CRS != "" {
				var err error
				if crs, err = geometry.LookupCRS(p.CRS); err != nil {
					return nil, errors.Wrapf(err, "decode geometry of %s", po.ID)
				}
			}
			g, err := geometry.ParseWKT(p.Value, crs)
			if err != nil {
				return nil, errors.Wrapf(err, "decode geometry of %s", po.ID)
			}
			value = g
		case valueReference:
			value = feature.Reference{Href: p.Value}
		case valueFeature:
			// 内嵌要素单独存储，这里只保留引用
			value = feature.Reference{Href: "#" + p.Value}
		default:
			if pt := ft.Property(name); pt != nil {
				v, err := feature.ParseSimpleValue(pt, p.Value)
				if err != nil {
					return nil, errors.Wrapf(err, "decode %s", po.ID)
				}
				value = v
			}
		}
		f.Properties = append(f.Properties, feature.Property{Name: name, Value: value})
	}
	return f, nil
}
