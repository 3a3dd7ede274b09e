package gml

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/xiaoxuxiansheng/gowfs/ows"
)

const (
	Namespace      = "http://www.opengis.net/gml"
	Namespace32    = "http://www.opengis.net/gml/3.2"
	XLinkNamespace = "http://www.w3.org/1999/xlink"
)

// Version GML 版本
type Version string

const (
	GML2  Version = "GML2"
	GML30 Version = "GML30"
	GML31 Version = "GML31"
	GML32 Version = "GML32"
)

// Namespace 版本对应的命名空间
func (v Version) Namespace() string {
	if v == GML32 {
		return Namespace32
	}
	return Namespace
}

// DefaultVersion 未声明输入格式时各协议版本的默认 GML 版本
func DefaultVersion(v ows.Version) Version {
	switch v {
	case ows.Version100:
		return GML2
	case ows.Version110:
		return GML31
	default:
		return GML32
	}
}

// Format 一种输入格式
type Format struct {
	Name      string
	Version   Version
	MimeTypes []string
}

// FormatFactory 根据配置的 mime 类型构造格式
type FormatFactory func(mimeTypes []string) (*Format, error)

// FormatRegistry mime 类型到格式的映射，自定义格式通过工厂函数注册
type FormatRegistry struct {
	mux       sync.RWMutex
	factories map[string]FormatFactory
	formats   map[string]*Format
}

// NewFormatRegistry 预置 GML 2 / 3.0 / 3.1 / 3.2 的内置格式
func NewFormatRegistry() *FormatRegistry {
	r := &FormatRegistry{
		factories: make(map[string]FormatFactory),
		formats:   make(map[string]*Format),
	}
	builtins := []*Format{
		{Name: "gml2", Version: GML2, MimeTypes: []string{"text/xml; subtype=gml/2.1.2", "GML2"}},
		{Name: "gml30", Version: GML30, MimeTypes: []string{"text/xml; subtype=gml/3.0.1"}},
		{Name: "gml31", Version: GML31, MimeTypes: []string{"text/xml; subtype=gml/3.1.1", "GML3"}},
		{Name: "gml32", Version: GML32, MimeTypes: []string{"text/xml; subtype=gml/3.2.1", "text/xml; subtype=gml/3.2.2", "application/gml+xml; version=3.2"}},
	}
	for _, f := range builtins {
		format := f
		r.factories[format.Name] = versionFactory(format.Name, format.Version)
		for _, mime := range format.MimeTypes {
			r.formats[normalizeMime(mime)] = format
		}
	}
	return r
}

func versionFactory(name string, version Version) FormatFactory {
	return func(mimeTypes []string) (*Format, error) {
		return &Format{Name: name, Version: version, MimeTypes: mimeTypes}, nil
	}
}

// RegisterFactory 注册自定义格式工厂
func (r *FormatRegistry) RegisterFactory(name string, factory FormatFactory) error {
	if name == "" || factory == nil {
		return errors.New("format name and factory are required")
	}
	r.mux.Lock()
	defer r.mux.Unlock()
	if _, ok := r.factories[name]; ok {
		return errors.Errorf("repeat format name: %s", name)
	}
	r.factories[name] = factory
	return nil
}

// Configure 用已注册的工厂构造格式，并绑定到给定的 mime 类型
func (r *FormatRegistry) Configure(name string, mimeTypes []string) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	factory, ok := r.factories[name]
	if !ok {
		return errors.Errorf("format '%s' is not registered", name)
	}
	format, err := factory(mimeTypes)
	if err != nil {
		return errors.Wrapf(err, "configure format %s", name)
	}
	for _, mime := range mimeTypes {
		r.formats[normalizeMime(mime)] = format
	}
	return nil
}

// VersionFor 按 mime 类型查找 GML 版本
func (r *FormatRegistry) VersionFor(mime string) (Version, bool) {
	r.mux.RLock()
	defer r.mux.RUnlock()
	format, ok := r.formats[normalizeMime(mime)]
	if !ok {
		return "", false
	}
	return format.Version, true
}

// Resolve 声明了输入格式时必须能识别，否则按协议版本取默认值
func (r *FormatRegistry) Resolve(inputFormat string, version ows.Version) (Version, error) {
	if strings.TrimSpace(inputFormat) == "" {
		return DefaultVersion(version), nil
	}
	if v, ok := r.VersionFor(inputFormat); ok {
		return v, nil
	}
	return "", ows.InvalidParameter("inputFormat", "Unsupported input format: "+inputFormat)
}

// normalizeMime 忽略大小写以及分号后的空白
func normalizeMime(mime string) string {
	parts := strings.Split(mime, ";")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.ToLower(strings.Join(parts, ";"))
}
