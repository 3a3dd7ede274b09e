package gml

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/xiaoxuxiansheng/gowfs/feature"
	"github.com/xiaoxuxiansheng/gowfs/geometry"
	"github.com/xiaoxuxiansheng/gowfs/xmlnode"
)

// ErrReference 无法解析的 xlink 引用
var ErrReference = errors.New("unresolvable reference")

// Resolver 在要素存储中查找引用的要素
type Resolver interface {
	HasFeature(ctx context.Context, fid string) (bool, error)
}

// ReferencePolicy 引用检查策略
type ReferencePolicy struct {
	// 检查文档内引用，文档中找不到时再查 Resolver
	Internal bool
	// 检查外部引用
	External bool
	Resolver Resolver
}

// Reader 按要素类型声明读取 GML 要素
type Reader struct {
	version    Version
	schema     *feature.Schema
	defaultCRS geometry.CRS
	policy     ReferencePolicy
}

type ReaderOption func(*Reader)

// WithDefaultCRS 几何元素没有 srsName 时使用的坐标系
func WithDefaultCRS(crs geometry.CRS) ReaderOption {
	return func(r *Reader) {
		r.defaultCRS = crs
	}
}

func WithReferencePolicy(policy ReferencePolicy) ReaderOption {
	return func(r *Reader) {
		r.policy = policy
	}
}

func NewReader(version Version, schema *feature.Schema, opts ...ReaderOption) *Reader {
	r := &Reader{version: version, schema: schema}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reader) Version() Version {
	return r.version
}

// ReadFeatures 读取 Insert 的内容：wfs/gml 要素集合，应用定义的要素集合，或者不带外壳的要素
func (r *Reader) ReadFeatures(ctx context.Context, nodes []*xmlnode.Node) ([]*feature.Feature, error) {
	var out []*feature.Feature
	ids := make(map[string]bool)
	for _, n := range nodes {
		fs, err := r.readMembers(n, ids)
		if err != nil {
			return nil, err
		}
		out = append(out, fs...)
	}
	if err := r.checkReferences(ctx, out, ids); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadFeature 读取单个要素，用于 Replace
func (r *Reader) ReadFeature(ctx context.Context, n *xmlnode.Node) (*feature.Feature, error) {
	ids := make(map[string]bool)
	f, err := r.readFeature(n, ids)
	if err != nil {
		return nil, err
	}
	if err := r.checkReferences(ctx, []*feature.Feature{f}, ids); err != nil {
		return nil, err
	}
	return f, nil
}

func (r *Reader) readMembers(n *xmlnode.Node, ids map[string]bool) ([]*feature.Feature, error) {
	if n == nil {
		return nil, errors.New("empty feature member")
	}
	if r.schema.FeatureType(n.Name) != nil {
		f, err := r.readFeature(n, ids)
		if err != nil {
			return nil, err
		}
		return []*feature.Feature{f}, nil
	}
	if !strings.HasSuffix(n.Name.Local, "FeatureCollection") && !strings.HasSuffix(n.Name.Local, "Collection") {
		return nil, errors.Errorf("element '%s' is neither a feature nor a feature collection", n.Name.Local)
	}

	var out []*feature.Feature
	for _, c := range n.Children {
		switch c.Name.Local {
		case "featureMember", "member":
			fs, err := r.readMembers(c.FirstElement(), ids)
			if err != nil {
				return nil, err
			}
			out = append(out, fs...)
		case "featureMembers":
			for _, m := range c.Children {
				fs, err := r.readMembers(m, ids)
				if err != nil {
					return nil, err
				}
				out = append(out, fs...)
			}
		}
	}
	return out, nil
}

func (r *Reader) readFeature(n *xmlnode.Node, ids map[string]bool) (*feature.Feature, error) {
	if n == nil {
		return nil, errors.New("missing feature element")
	}
	ft := r.schema.FeatureType(n.Name)
	if ft == nil {
		return nil, errors.Errorf("feature type '%s' is not known", n.Name.Local)
	}

	f := &feature.Feature{ID: featureID(n), Type: ft.Name}
	if f.ID != "" {
		if ids[f.ID] {
			return nil, errors.Errorf("duplicate gml id '%s'", f.ID)
		}
		ids[f.ID] = true
	}

	occurs := make(map[*feature.PropertyType]int)
	for _, c := range n.Children {
		if IsGMLNamespace(c.Name.Space) {
			// gml:boundedBy, gml:name 等标准属性
			continue
		}
		pt := ft.Property(c.Name)
		if pt == nil {
			return nil, errors.Errorf("property '%s' is not defined for feature type '%s'", c.Name.Local, ft.Name.Local)
		}
		occurs[pt]++
		if occurs[pt] > 1 && !pt.MultiValued() {
			return nil, errors.Errorf("property '%s' occurs more than once", c.Name.Local)
		}
		value, err := r.propertyValue(pt, c, ids)
		if err != nil {
			return nil, err
		}
		f.Properties = append(f.Properties, feature.Property{Name: pt.Name, Value: value})
	}
	for _, pt := range ft.Properties {
		if occurs[pt] < pt.MinOccurs {
			return nil, errors.Errorf("property '%s' of feature type '%s' is missing", pt.Name.Local, ft.Name.Local)
		}
	}
	return f, nil
}

// PropertyValue 按属性声明解析属性元素 (或 wfs:Value 元素) 的内容
func (r *Reader) PropertyValue(pt *feature.PropertyType, n *xmlnode.Node) (interface{}, error) {
	return r.propertyValue(pt, n, make(map[string]bool))
}

func (r *Reader) propertyValue(pt *feature.PropertyType, n *xmlnode.Node, ids map[string]bool) (interface{}, error) {
	switch pt.Kind {
	case feature.KindGeometry:
		elem := n.FirstElement()
		if elem != nil && elem.Name.Space != r.version.Namespace() {
			return nil, errors.Errorf("geometry of property '%s' is not in the %s namespace", pt.Name.Local, r.version)
		}
		g, err := ParseGeometry(elem, r.defaultCRS)
		if err != nil {
			return nil, errors.Wrapf(err, "property '%s'", pt.Name.Local)
		}
		if err := geometry.Inspect(g); err != nil {
			return nil, errors.Wrapf(err, "property '%s'", pt.Name.Local)
		}
		return g, nil
	case feature.KindReference:
		if href := n.AttrNS(XLinkNamespace, "href"); href != "" {
			return feature.Reference{Href: href}, nil
		}
		nested, err := r.readFeature(n.FirstElement(), ids)
		if err != nil {
			return nil, errors.Wrapf(err, "property '%s'", pt.Name.Local)
		}
		return nested, nil
	default:
		return feature.ParseSimpleValue(pt, n.Text)
	}
}

func (r *Reader) checkReferences(ctx context.Context, fs []*feature.Feature, ids map[string]bool) error {
	for _, f := range fs {
		for _, ref := range f.References() {
			if err := r.checkReference(ctx, ref, ids); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Reader) checkReference(ctx context.Context, ref feature.Reference, ids map[string]bool) error {
	if ref.Internal() {
		if !r.policy.Internal || ids[ref.Target()] {
			return nil
		}
		if ok, err := r.resolve(ctx, ref.Target()); err != nil || ok {
			return err
		}
		return errors.Wrapf(ErrReference, "local reference '%s' cannot be resolved", ref.Href)
	}

	if !r.policy.External {
		return nil
	}
	target := ref.Href
	if i := strings.LastIndex(target, "#"); i >= 0 {
		target = target[i+1:]
	}
	if ids[target] {
		return nil
	}
	if ok, err := r.resolve(ctx, target); err != nil || ok {
		return err
	}
	return errors.Wrapf(ErrReference, "reference '%s' cannot be resolved", ref.Href)
}

func (r *Reader) resolve(ctx context.Context, fid string) (bool, error) {
	if r.policy.Resolver == nil {
		return false, nil
	}
	ok, err := r.policy.Resolver.HasFeature(ctx, fid)
	if err != nil {
		return false, errors.Wrapf(err, "resolve reference '%s'", fid)
	}
	return ok, nil
}

// featureID GML 3 的 gml:id，GML 2 的 fid
func featureID(n *xmlnode.Node) string {
	if id := n.AttrNS(Namespace32, "id"); id != "" {
		return id
	}
	if id := n.AttrNS(Namespace, "id"); id != "" {
		return id
	}
	return n.Attr("fid")
}
