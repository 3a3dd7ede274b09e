package gowfs

import (
	"time"

	"github.com/xiaoxuxiansheng/gowfs/featurestore"
	"github.com/xiaoxuxiansheng/gowfs/geometry"
	"github.com/xiaoxuxiansheng/gowfs/gml"
	"github.com/xiaoxuxiansheng/gowfs/ows"
)

type Options struct {
	// 对外提供的协议版本，从低到高
	Versions           []ows.Version
	EnableTransactions bool
	MaxFeatures        int
	// 几何与过滤器没有声明坐标系时使用
	QueryCRS               string
	ReferenceResolvingMode ReferenceResolvingMode
	IDGenMode              featurestore.IDGenMode
	// LockFeature 没有指定 expiry 时的锁时长
	LockExpiry time.Duration
	Formats    *gml.FormatRegistry
	// 能力文档中 WGS84BoundingBox 的变换与输出
	Transformer geometry.Transformer
	Formatter   *geometry.DecimalFormatter
	// CreateStoredQuery 是否可用
	ManagedStoredQueries bool
}

type Option func(*Options)

func WithVersions(versions ...ows.Version) Option {
	return func(o *Options) {
		o.Versions = versions
	}
}

func WithTransactions(enable bool) Option {
	return func(o *Options) {
		o.EnableTransactions = enable
	}
}

func WithMaxFeatures(maxFeatures int) Option {
	if maxFeatures <= 0 {
		maxFeatures = 15000
	}

	return func(o *Options) {
		o.MaxFeatures = maxFeatures
	}
}

func WithQueryCRS(crs string) Option {
	return func(o *Options) {
		o.QueryCRS = crs
	}
}

func WithReferenceResolvingMode(mode ReferenceResolvingMode) Option {
	return func(o *Options) {
		o.ReferenceResolvingMode = mode
	}
}

func WithIDGenMode(mode featurestore.IDGenMode) Option {
	return func(o *Options) {
		o.IDGenMode = mode
	}
}

func WithLockExpiry(expiry time.Duration) Option {
	if expiry <= 0 {
		expiry = 5 * time.Minute
	}

	return func(o *Options) {
		o.LockExpiry = expiry
	}
}

func WithFormats(formats *gml.FormatRegistry) Option {
	return func(o *Options) {
		o.Formats = formats
	}
}

func WithTransformer(transformer geometry.Transformer) Option {
	return func(o *Options) {
		o.Transformer = transformer
	}
}

func WithFormatter(formatter *geometry.DecimalFormatter) Option {
	return func(o *Options) {
		o.Formatter = formatter
	}
}

func WithManagedStoredQueries(enable bool) Option {
	return func(o *Options) {
		o.ManagedStoredQueries = enable
	}
}

func repair(o *Options) {
	if len(o.Versions) == 0 {
		o.Versions = ows.SupportedVersions
	}

	if o.MaxFeatures <= 0 {
		o.MaxFeatures = 15000
	}

	if o.QueryCRS == "" {
		o.QueryCRS = "EPSG:4326"
	}

	if o.LockExpiry <= 0 {
		o.LockExpiry = 5 * time.Minute
	}

	if o.Formats == nil {
		o.Formats = gml.NewFormatRegistry()
	}
}
