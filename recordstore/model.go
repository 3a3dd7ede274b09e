package recordstore

import (
	"time"

	"github.com/xiaoxuxiansheng/gowfs/xmlnode"
)

// Format 记录在库中的格式编号
type Format int

const (
	FormatDC  Format = 1
	FormatISO Format = 2
)

func (f Format) String() string {
	if f == FormatISO {
		return "ISO"
	}
	return "DC"
}

// ElementSet 输出的记录详略程度
type ElementSet string

const (
	Brief   ElementSet = "brief"
	Summary ElementSet = "summary"
	Full    ElementSet = "full"
)

var ElementSets = []ElementSet{Brief, Summary, Full}

type Keyword struct {
	Type      string
	Values    []string
	Thesaurus string
}

type FormatName struct {
	Name    string
	Version string
}

// BoundingBox WGS84 经纬度范围
type BoundingBox struct {
	West  float64
	South float64
	East  float64
	North float64
}

// OperatesOn 服务记录耦合的数据资源
type OperatesOn struct {
	OperatesOn string
	Identifier string
	Name       string
}

// QueryableProperties 可以作为查询条件的属性，每一类写入一张表
type QueryableProperties struct {
	Identifiers      []string
	Language         string
	ParentIdentifier string
	Type             string
	Modified         time.Time
	CRS              []string

	Titles          []string
	AlternateTitles []string
	Abstracts       []string
	Keywords        []Keyword
	TopicCategories []string
	Formats         []FormatName

	RevisionDate    time.Time
	CreationDate    time.Time
	PublicationDate time.Time

	ResourceIdentifiers []string
	ResourceLanguages   []string
	OrganisationName    string

	TempExtentBegin time.Time
	TempExtentEnd   time.Time

	Denominator   int
	DistanceValue float64
	DistanceUOM   string

	GeographicDescriptionCodes []string
	BoundingBox                *BoundingBox

	ServiceType         string
	ServiceTypeVersions []string
	Operations          []string
	OperatesOn          []OperatesOn
	CouplingType        string

	Limitations       []string
	AccessConstraints []string
	OtherConstraints  []string
	Classifications   []string

	Degree                bool
	SpecificationTitles   []string
	SpecificationDateType string
	SpecificationDate     time.Time
	Lineage               string

	HasSecurityConstraints bool
}

// ReturnableProperties 只用于输出的属性
type ReturnableProperties struct {
	Creator         string
	Publisher       string
	Contributor     string
	Source          string
	Relations       []string
	Rights          []string
	GraphicOverview string
}

// Representation 某个格式与详略程度下的记录
type Representation struct {
	Format Format
	Set    ElementSet
	Data   *xmlnode.Node
}

// GeneratedRecord 入库的各种记录表示
type GeneratedRecord struct {
	// 缺少 fileIdentifier 时生成的元素
	Identifier      *xmlnode.Node
	Representations []Representation
}

// Get 不存在时返回 nil
func (g *GeneratedRecord) Get(format Format, set ElementSet) *xmlnode.Node {
	if g == nil {
		return nil
	}
	for _, r := range g.Representations {
		if r.Format == format && r.Set == set {
			return r.Data
		}
	}
	return nil
}

// ParsedProfileElement 一条记录的解析结果
type ParsedProfileElement struct {
	Format     Format
	Queryable  *QueryableProperties
	Returnable *ReturnableProperties
	Record     *GeneratedRecord
}
