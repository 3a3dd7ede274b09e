package config

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"github.com/xiaoxuxiansheng/gowfs"
	"github.com/xiaoxuxiansheng/gowfs/feature"
	"github.com/xiaoxuxiansheng/gowfs/featurestore"
	"github.com/xiaoxuxiansheng/gowfs/gml"
	"github.com/xiaoxuxiansheng/gowfs/log"
	"github.com/xiaoxuxiansheng/gowfs/ows"
	"gopkg.in/yaml.v2"
)

// Config 服务配置，支持 yaml 与 toml 两种格式
type Config struct {
	Server       Server        `yaml:"server" toml:"server"`
	WFS          WFS           `yaml:"wfs" toml:"wfs"`
	MySQL        MySQL         `yaml:"mysql" toml:"mysql"`
	Redis        Redis         `yaml:"redis" toml:"redis"`
	Log          log.Options   `yaml:"log" toml:"log"`
	RecordStore  RecordStore   `yaml:"recordStore" toml:"recordStore"`
	FeatureTypes []FeatureType `yaml:"featureTypes" toml:"featureTypes"`
}

type Server struct {
	Addr string `yaml:"addr" toml:"addr"`
	// 以秒为单位
	ReadTimeout     int `yaml:"readTimeout" toml:"readTimeout"`
	WriteTimeout    int `yaml:"writeTimeout" toml:"writeTimeout"`
	ShutdownTimeout int `yaml:"shutdownTimeout" toml:"shutdownTimeout"`
	// 允许跨域访问的来源，为空时不开启 CORS
	AllowedOrigins []string `yaml:"allowedOrigins" toml:"allowedOrigins"`
}

type WFS struct {
	Versions               []string `yaml:"versions" toml:"versions"`
	EnableTransactions     bool     `yaml:"enableTransactions" toml:"enableTransactions"`
	MaxFeatures            int      `yaml:"maxFeatures" toml:"maxFeatures"`
	QueryCRS               string   `yaml:"queryCRS" toml:"queryCRS"`
	ReferenceResolvingMode string   `yaml:"referenceResolvingMode" toml:"referenceResolvingMode"`
	IDGenMode              string   `yaml:"idGenMode" toml:"idGenMode"`
	// 以秒为单位
	LockExpiry           int      `yaml:"lockExpiry" toml:"lockExpiry"`
	ManagedStoredQueries bool     `yaml:"managedStoredQueries" toml:"managedStoredQueries"`
	Formats              []Format `yaml:"formats" toml:"formats"`
}

// Format 把 mime 类型绑定到已注册的输入格式上
type Format struct {
	Name      string   `yaml:"name" toml:"name"`
	MimeTypes []string `yaml:"mimeTypes" toml:"mimeTypes"`
}

type MySQL struct {
	DSN string `yaml:"dsn" toml:"dsn"`
}

// Redis 地址为空时锁只在进程内互斥
type Redis struct {
	Network  string `yaml:"network" toml:"network"`
	Address  string `yaml:"address" toml:"address"`
	Password string `yaml:"password" toml:"password"`
	// 锁守护 key 的过期秒数
	GuardExpireSeconds int64 `yaml:"guardExpireSeconds" toml:"guardExpireSeconds"`
}

type RecordStore struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	Inspire bool `yaml:"inspire" toml:"inspire"`
}

type FeatureType struct {
	Namespace  string     `yaml:"namespace" toml:"namespace"`
	Name       string     `yaml:"name" toml:"name"`
	Properties []Property `yaml:"properties" toml:"properties"`
}

// Property type 取值为 string/integer/decimal/boolean/date/dateTime/geometry/reference
type Property struct {
	Name      string `yaml:"name" toml:"name"`
	Type      string `yaml:"type" toml:"type"`
	MinOccurs int    `yaml:"minOccurs" toml:"minOccurs"`
	// -1 表示不限
	MaxOccurs int `yaml:"maxOccurs" toml:"maxOccurs"`
}

// Default 缺省配置
func Default() *Config {
	c := &Config{}
	c.repair()
	return c
}

// Load 按扩展名选择解析格式，文件中的 ${ENV} 会先被替换为环境变量
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(raw, strings.ToLower(filepath.Ext(path)) == ".toml")
}

func Parse(raw []byte, isToml bool) (*Config, error) {
	content := []byte(os.ExpandEnv(string(raw)))
	c := &Config{}
	if isToml {
		if err := toml.Unmarshal(content, c); err != nil {
			return nil, errors.Wrap(err, "unmarshal toml config")
		}
	} else if err := yaml.Unmarshal(content, c); err != nil {
		return nil, errors.Wrap(err, "unmarshal yaml config")
	}
	c.repair()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Marshal 以 toml 或 yaml 输出配置
func (c *Config) Marshal(isToml bool) ([]byte, error) {
	if isToml {
		return toml.Marshal(*c)
	}
	return yaml.Marshal(c)
}

func (c *Config) repair() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 30
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = 60
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10
	}

	if len(c.WFS.Versions) == 0 {
		for _, v := range ows.SupportedVersions {
			c.WFS.Versions = append(c.WFS.Versions, string(v))
		}
	}
	if c.WFS.MaxFeatures <= 0 {
		c.WFS.MaxFeatures = 15000
	}
	if c.WFS.QueryCRS == "" {
		c.WFS.QueryCRS = "EPSG:4326"
	}
	if c.WFS.ReferenceResolvingMode == "" {
		c.WFS.ReferenceResolvingMode = gowfs.CheckAll.String()
	}
	if c.WFS.IDGenMode == "" {
		c.WFS.IDGenMode = featurestore.GenerateNew.String()
	}
	if c.WFS.LockExpiry <= 0 {
		c.WFS.LockExpiry = 300
	}

	if c.Redis.Network == "" {
		c.Redis.Network = "tcp"
	}
	if c.Redis.GuardExpireSeconds <= 0 {
		c.Redis.GuardExpireSeconds = 10
	}
	c.Log = c.Log.Repair()
}

func (c *Config) validate() error {
	if _, err := c.ServiceOptions(); err != nil {
		return err
	}
	_, err := c.Schema()
	return err
}

// ServiceOptions 转换为 WebFeatureService 的构造选项
func (c *Config) ServiceOptions() ([]gowfs.Option, error) {
	versions := make([]ows.Version, 0, len(c.WFS.Versions))
	for _, raw := range c.WFS.Versions {
		v, err := ows.ParseVersion(raw)
		if err != nil {
			return nil, errors.Wrap(err, "wfs.versions")
		}
		versions = append(versions, v)
	}
	mode, err := gowfs.ParseReferenceResolvingMode(c.WFS.ReferenceResolvingMode)
	if err != nil {
		return nil, errors.Wrap(err, "wfs.referenceResolvingMode")
	}
	idGen, err := featurestore.ParseIDGenMode(c.WFS.IDGenMode)
	if err != nil {
		return nil, errors.Wrap(err, "wfs.idGenMode")
	}

	formats := gml.NewFormatRegistry()
	for _, f := range c.WFS.Formats {
		if err := formats.Configure(f.Name, f.MimeTypes); err != nil {
			return nil, errors.Wrapf(err, "wfs.formats %s", f.Name)
		}
	}

	return []gowfs.Option{
		gowfs.WithVersions(versions...),
		gowfs.WithTransactions(c.WFS.EnableTransactions),
		gowfs.WithMaxFeatures(c.WFS.MaxFeatures),
		gowfs.WithQueryCRS(c.WFS.QueryCRS),
		gowfs.WithReferenceResolvingMode(mode),
		gowfs.WithIDGenMode(idGen),
		gowfs.WithLockExpiry(c.LockExpiry()),
		gowfs.WithFormats(formats),
		gowfs.WithManagedStoredQueries(c.WFS.ManagedStoredQueries),
	}, nil
}

func (c *Config) LockExpiry() time.Duration {
	return time.Duration(c.WFS.LockExpiry) * time.Second
}

// Schema 由 featureTypes 构造要素模式，属性名缺省使用类型的命名空间
func (c *Config) Schema() (*feature.Schema, error) {
	schema := &feature.Schema{}
	seen := make(map[xml.Name]bool)
	for _, ft := range c.FeatureTypes {
		if ft.Name == "" {
			return nil, errors.New("feature type without name")
		}
		name := xml.Name{Space: ft.Namespace, Local: ft.Name}
		if seen[name] {
			return nil, errors.Errorf("repeat feature type: %s", ft.Name)
		}
		seen[name] = true

		declared := &feature.FeatureType{Name: name}
		for _, p := range ft.Properties {
			pt, err := propertyType(ft.Namespace, p)
			if err != nil {
				return nil, errors.Wrapf(err, "feature type %s", ft.Name)
			}
			declared.Properties = append(declared.Properties, pt)
		}
		schema.FeatureTypes = append(schema.FeatureTypes, declared)
	}
	return schema, nil
}

func propertyType(namespace string, p Property) (*feature.PropertyType, error) {
	if p.Name == "" {
		return nil, errors.New("property without name")
	}
	pt := &feature.PropertyType{
		Name:      xml.Name{Space: namespace, Local: p.Name},
		MinOccurs: p.MinOccurs,
		MaxOccurs: p.MaxOccurs,
	}
	if pt.MaxOccurs == 0 {
		pt.MaxOccurs = 1
	}

	switch typ := strings.TrimSpace(p.Type); typ {
	case string(feature.KindGeometry):
		pt.Kind = feature.KindGeometry
	case string(feature.KindReference):
		pt.Kind = feature.KindReference
	case "", string(feature.TypeString):
		pt.Kind, pt.Primitive = feature.KindSimple, feature.TypeString
	case string(feature.TypeInteger), string(feature.TypeDecimal), string(feature.TypeBoolean),
		string(feature.TypeDate), string(feature.TypeDateTime):
		pt.Kind, pt.Primitive = feature.KindSimple, feature.PrimitiveType(typ)
	default:
		return nil, errors.Errorf("property %s has unknown type '%s'", p.Name, typ)
	}
	return pt, nil
}
