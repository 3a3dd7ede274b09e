package feature

import (
	"encoding/xml"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// PropertyKind 属性类别
type PropertyKind string

const (
	KindSimple    PropertyKind = "simple"
	KindGeometry  PropertyKind = "geometry"
	KindReference PropertyKind = "reference"
)

// PrimitiveType 简单属性的值类型
type PrimitiveType string

const (
	TypeString   PrimitiveType = "string"
	TypeInteger  PrimitiveType = "integer"
	TypeDecimal  PrimitiveType = "decimal"
	TypeBoolean  PrimitiveType = "boolean"
	TypeDate     PrimitiveType = "date"
	TypeDateTime PrimitiveType = "dateTime"
)

// Unbounded maxOccurs 不限
const Unbounded = -1

// PropertyType 属性声明
type PropertyType struct {
	Name      xml.Name
	Kind      PropertyKind
	Primitive PrimitiveType
	MinOccurs int
	MaxOccurs int
}

// MultiValued 是否允许多次出现
func (p *PropertyType) MultiValued() bool {
	return p.MaxOccurs == Unbounded || p.MaxOccurs > 1
}

// FeatureType 要素类型
type FeatureType struct {
	Name       xml.Name
	Properties []*PropertyType
}

// Property 按名称查找属性声明，名称没有命名空间时只比较本地名
func (f *FeatureType) Property(name xml.Name) *PropertyType {
	for _, p := range f.Properties {
		if p.Name.Local != name.Local {
			continue
		}
		if name.Space == "" || p.Name.Space == "" || p.Name.Space == name.Space {
			return p
		}
	}
	return nil
}

// Schema 一个存储提供的全部要素类型
type Schema struct {
	FeatureTypes []*FeatureType
}

// FeatureType 按名称查找要素类型，名称没有命名空间时只比较本地名
func (s *Schema) FeatureType(name xml.Name) *FeatureType {
	if s == nil {
		return nil
	}
	for _, ft := range s.FeatureTypes {
		if ft.Name.Local != name.Local {
			continue
		}
		if name.Space == "" || ft.Name.Space == name.Space {
			return ft
		}
	}
	return nil
}

// ParseSimpleValue 按属性声明把文本转换成对应类型
func ParseSimpleValue(pt *PropertyType, text string) (interface{}, error) {
	text = strings.TrimSpace(text)
	switch pt.Primitive {
	case TypeInteger:
		v, err := cast.ToInt64E(text)
		if err != nil {
			return nil, errors.Wrapf(err, "value '%s' of property '%s' is not an integer", text, pt.Name.Local)
		}
		return v, nil
	case TypeDecimal:
		v, err := cast.ToFloat64E(text)
		if err != nil {
			return nil, errors.Wrapf(err, "value '%s' of property '%s' is not a decimal", text, pt.Name.Local)
		}
		return v, nil
	case TypeBoolean:
		v, err := cast.ToBoolE(text)
		if err != nil {
			return nil, errors.Wrapf(err, "value '%s' of property '%s' is not a boolean", text, pt.Name.Local)
		}
		return v, nil
	case TypeDate, TypeDateTime:
		v, err := ParseTime(text)
		if err != nil {
			return nil, errors.Wrapf(err, "value '%s' of property '%s' is not a date", text, pt.Name.Local)
		}
		return v, nil
	default:
		return text, nil
	}
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// ParseTime 支持 xsd:date 与 xsd:dateTime
func ParseTime(text string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unsupported time format '%s'", text)
}

func toString(v interface{}) string {
	return cast.ToString(v)
}
