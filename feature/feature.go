package feature

import (
	"encoding/xml"
	"time"

	"github.com/xiaoxuxiansheng/gowfs/geometry"
)

// Reference xlink 引用，指向文档内 (#id) 或外部的要素
type Reference struct {
	Href string
}

// Internal 是否为文档内引用
func (r Reference) Internal() bool {
	return len(r.Href) > 0 && r.Href[0] == '#'
}

// Target 引用的要素 id
func (r Reference) Target() string {
	if r.Internal() {
		return r.Href[1:]
	}
	return r.Href
}

// Property 要素属性，Value 的取值类型：
// string, int64, float64, bool, time.Time, *geometry.Geometry, Reference, *Feature
type Property struct {
	Name  xml.Name
	Value interface{}
}

// Feature 要素
type Feature struct {
	ID         string
	Type       xml.Name
	Properties []Property
}

// Get 按本地名取属性，保持文档中的顺序
func (f *Feature) Get(local string) []Property {
	var out []Property
	for _, p := range f.Properties {
		if p.Name.Local == local {
			out = append(out, p)
		}
	}
	return out
}

// Geometries 要素中所有的几何属性值
func (f *Feature) Geometries() []*geometry.Geometry {
	var out []*geometry.Geometry
	for _, p := range f.Properties {
		if g, ok := p.Value.(*geometry.Geometry); ok && g != nil {
			out = append(out, g)
		}
	}
	return out
}

// References 要素中所有的 xlink 引用，包括内嵌要素中的
func (f *Feature) References() []Reference {
	var out []Reference
	for _, p := range f.Properties {
		switch v := p.Value.(type) {
		case Reference:
			out = append(out, v)
		case *Feature:
			out = append(out, v.References()...)
		}
	}
	return out
}

// Walk 深度优先遍历要素及其内嵌要素
func (f *Feature) Walk(fn func(*Feature)) {
	fn(f)
	for _, p := range f.Properties {
		if nested, ok := p.Value.(*Feature); ok && nested != nil {
			nested.Walk(fn)
		}
	}
}

// Clone 浅拷贝属性列表
func (f *Feature) Clone() *Feature {
	out := &Feature{ID: f.ID, Type: f.Type}
	out.Properties = append(out.Properties, f.Properties...)
	return out
}

// ValueString 属性值的文本形式，用于比较与序列化
func ValueString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format(time.RFC3339)
	case Reference:
		return t.Href
	case *Feature:
		return t.ID
	case *geometry.Geometry:
		f, _ := geometry.NewDecimalFormatter(8)
		return t.WKT(f)
	default:
		return toString(t)
	}
}
