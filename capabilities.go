package gowfs

import (
	"context"
	"io"

	"github.com/xiaoxuxiansheng/gowfs/feature"
	"github.com/xiaoxuxiansheng/gowfs/geometry"
	"github.com/xiaoxuxiansheng/gowfs/log"
	"github.com/xiaoxuxiansheng/gowfs/ows"
	"github.com/xiaoxuxiansheng/gowfs/protocol"
)

// 没有数据或者无法变换时使用的全球范围
var worldEnvelope = geometry.Envelope{MinX: -180, MinY: -90, MaxX: 180, MaxY: 90}

// CapabilitiesHandler 输出要素类型列表与各类型的 WGS84 范围
type CapabilitiesHandler struct {
	stores *StoreManager
	opts   *Options
}

func NewCapabilitiesHandler(stores *StoreManager, opts *Options) *CapabilitiesHandler {
	return &CapabilitiesHandler{stores: stores, opts: opts}
}

// wgs84Envelope 变换到经度在前的 WGS84
func (h *CapabilitiesHandler) wgs84Envelope(ctx context.Context, ft *feature.FeatureType) geometry.Envelope {
	store := h.stores.StoreFor(ft.Name)
	if store == nil {
		return worldEnvelope
	}
	env, err := store.Envelope(ctx, ft.Name)
	if err != nil {
		log.WarnContextf(ctx, "cannot determine envelope of feature type %s, err: %v", ft.Name.Local, err)
		return worldEnvelope
	}
	if env == nil {
		return worldEnvelope
	}
	g := geometry.NewEnvelope(geometry.Point{X: env.MinX, Y: env.MinY}, geometry.Point{X: env.MaxX, Y: env.MaxY}, env.CRS)
	transformed, err := h.opts.Transformer.Transform(g)
	if err != nil {
		log.WarnContextf(ctx, "cannot transform envelope of feature type %s, err: %v", ft.Name.Local, err)
		return worldEnvelope
	}
	return transformed.Envelope()
}

func (h *CapabilitiesHandler) DoGetCapabilities(ctx context.Context, version ows.Version, w io.Writer) error {
	f := h.opts.Formatter
	rw := newResponseWriter(w)
	root := qname("wfs", "WFS_Capabilities")

	switch version {
	case ows.Version100:
		rw.start(root, attr("version", string(version)), nsAttr("wfs", protocol.WFSNamespace))
	case ows.Version110:
		rw.start(root, attr("version", string(version)), nsAttr("wfs", protocol.WFSNamespace), nsAttr("ows", ows.OWS10Namespace))
	default:
		rw.start(root, attr("version", string(version)), nsAttr("wfs", protocol.WFS20Namespace), nsAttr("ows", ows.OWS11Namespace))
	}

	list := qname("wfs", "FeatureTypeList")
	rw.start(list)
	for _, ft := range h.stores.FeatureTypes() {
		env := h.wgs84Envelope(ctx, ft)
		entry := qname("wfs", "FeatureType")
		rw.start(entry)
		rw.text(qname("wfs", "Name"), ft.Name.Local)
		rw.text(qname("wfs", "Title"), ft.Name.Local)
		switch version {
		case ows.Version100:
			rw.text(qname("wfs", "SRS"), h.opts.QueryCRS)
			rw.empty(qname("wfs", "LatLongBoundingBox"),
				attr("minx", f.Format(env.MinX)), attr("miny", f.Format(env.MinY)),
				attr("maxx", f.Format(env.MaxX)), attr("maxy", f.Format(env.MaxY)))
		default:
			if version == ows.Version110 {
				rw.text(qname("wfs", "DefaultSRS"), h.opts.QueryCRS)
			} else {
				rw.text(qname("wfs", "DefaultCRS"), h.opts.QueryCRS)
			}
			bbox := qname("ows", "WGS84BoundingBox")
			rw.start(bbox)
			rw.text(qname("ows", "LowerCorner"), f.Format(env.MinX)+" "+f.Format(env.MinY))
			rw.text(qname("ows", "UpperCorner"), f.Format(env.MaxX)+" "+f.Format(env.MaxY))
			rw.end(bbox)
		}
		rw.end(entry)
	}
	rw.end(list)
	rw.end(root)
	return rw.flush()
}
