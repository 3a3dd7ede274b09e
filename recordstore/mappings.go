package recordstore

import (
	"encoding/xml"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/xiaoxuxiansheng/gowfs/xmlnode"
)

const (
	APISONamespace  = "http://www.opengis.net/cat/csw/apiso/1.0"
	DCNamespace     = "http://purl.org/dc/elements/1.1/"
	DCTNamespace    = "http://purl.org/dc/terms/"
	CSW202Namespace = "http://www.opengis.net/cat/csw/2.0.2"
	OWSNamespace    = "http://www.opengis.net/ows"
	GMDNamespace    = "http://www.isotc211.org/2005/gmd"
	GCONamespace    = "http://www.isotc211.org/2005/gco"
	SRVNamespace    = "http://www.isotc211.org/2005/srv"
)

// Table 库表名
type Table string

const (
	TableDatasets                  Table = "datasets"
	TableIdentifier                Table = "qp_identifier"
	TableOrganisationName          Table = "isoqp_organisationname"
	TableTemporalExtent            Table = "isoqp_temporalextent"
	TableSpatialResolution         Table = "isoqp_spatialresolution"
	TableCouplingType              Table = "isoqp_couplingtype"
	TableOperatesOnData            Table = "isoqp_operatesondata"
	TableOperation                 Table = "isoqp_operation"
	TableGeographicDescriptionCode Table = "isoqp_geographicdescriptioncode"
	TableServiceTypeVersion        Table = "isoqp_servicetypeversion"
	TableServiceType               Table = "isoqp_servicetype"
	TableResourceLanguage          Table = "isoqp_resourcelanguage"
	TableRevisionDate              Table = "isoqp_revisiondate"
	TableCreationDate              Table = "isoqp_creationdate"
	TablePublicationDate           Table = "isoqp_publicationdate"
	TableResourceIdentifier        Table = "isoqp_resourceidentifier"
	TableAlternateTitle            Table = "isoqp_alternatetitle"
	TableAssociation               Table = "isoqp_association"
	TableTitle                     Table = "isoqp_title"
	TableType                      Table = "isoqp_type"
	TableKeyword                   Table = "isoqp_keyword"
	TableTopicCategory             Table = "isoqp_topiccategory"
	TableFormat                    Table = "isoqp_format"
	TableAbstract                  Table = "isoqp_abstract"
	TableBoundingBox               Table = "isoqp_boundingbox"
	TableCRS                       Table = "isoqp_crs"
	TableDegree                    Table = "addqp_degree"
	TableSpecification             Table = "addqp_specification"
	TableLimitation                Table = "addqp_limitation"
	TableAccessConstraint          Table = "addqp_accessconstraint"
	TableOtherConstraint           Table = "addqp_otherconstraint"
	TableClassification            Table = "addqp_classification"
	TableLineage                   Table = "addqp_lineage"

	TableRecordBrief   Table = "recordbrief"
	TableRecordSummary Table = "recordsummary"
	TableRecordFull    Table = "recordfull"
)

// 各表共有的列
const (
	ColumnID         = "id"
	ColumnFKDatasets = "fk_datasets"
	ColumnData       = "data"
	ColumnFormat     = "format"
	ColumnIdentifier = "identifier"
)

// PrimitiveType 列的值类型
type PrimitiveType string

const (
	TypeString  PrimitiveType = "string"
	TypeDate    PrimitiveType = "date"
	TypeBoolean PrimitiveType = "boolean"
)

// PropertyMapping 可查询属性对应的表与列
type PropertyMapping struct {
	Table  Table
	Column string
	Type   PrimitiveType
}

// Field 表中的一列
type Field struct {
	Table  Table
	Column string
}

// Join datasets 到属性表的连接
type Join struct {
	From Field
	To   Field
}

// JoinedMapping 带连接条件的映射，datasets 上的属性没有连接
type JoinedMapping struct {
	PropertyMapping
	Joins []Join
}

var mappings = make(map[xml.Name]PropertyMapping)

// 本地名查找时的命名空间优先级
var lookupOrder = []string{APISONamespace, DCNamespace, DCTNamespace, CSW202Namespace, OWSNamespace}

func add(space, local string, table Table, column string, typ PrimitiveType) {
	mappings[xml.Name{Space: space, Local: local}] = PropertyMapping{Table: table, Column: column, Type: typ}
}

func init() {
	// 通用可查询属性
	add(APISONamespace, "title", TableTitle, "title", TypeString)
	add(APISONamespace, "Title", TableTitle, "title", TypeString)
	add(DCNamespace, "Title", TableTitle, "title", TypeString)
	add(DCNamespace, "title", TableTitle, "title", TypeString)
	add(CSW202Namespace, "Title", TableTitle, "title", TypeString)

	add(APISONamespace, "abstract", TableAbstract, "abstract", TypeString)
	add(APISONamespace, "Abstract", TableAbstract, "abstract", TypeString)
	add(DCTNamespace, "Abstract", TableAbstract, "abstract", TypeString)
	add(DCTNamespace, "abstract", TableAbstract, "abstract", TypeString)
	add(CSW202Namespace, "Abstract", TableAbstract, "abstract", TypeString)

	add(APISONamespace, "BoundingBox", TableBoundingBox, "bbox", TypeString)
	add(DCNamespace, "coverage", TableBoundingBox, "bbox", TypeString)
	add(OWSNamespace, "BoundingBox", TableBoundingBox, "bbox", TypeString)
	add(OWSNamespace, "boundingBox", TableBoundingBox, "bbox", TypeString)
	add(CSW202Namespace, "BoundingBox", TableBoundingBox, "bbox", TypeString)

	add(APISONamespace, "type", TableType, "type", TypeString)
	add(APISONamespace, "Type", TableType, "type", TypeString)
	add(DCNamespace, "Type", TableType, "type", TypeString)
	add(DCNamespace, "type", TableType, "type", TypeString)
	add(CSW202Namespace, "Type", TableType, "type", TypeString)

	add(APISONamespace, "format", TableFormat, "format", TypeString)
	add(APISONamespace, "Format", TableFormat, "format", TypeString)
	add(DCNamespace, "Format", TableFormat, "format", TypeString)
	add(DCNamespace, "format", TableFormat, "format", TypeString)
	add(CSW202Namespace, "Format", TableFormat, "format", TypeString)

	add(APISONamespace, "Subject", TableKeyword, "keyword", TypeString)
	add(APISONamespace, "subject", TableKeyword, "keyword", TypeString)
	add(DCNamespace, "Subject", TableKeyword, "keyword", TypeString)
	add(DCNamespace, "subject", TableKeyword, "keyword", TypeString)
	add(CSW202Namespace, "Subject", TableKeyword, "keyword", TypeString)

	add(APISONamespace, "AnyText", TableDatasets, "anytext", TypeString)
	add(APISONamespace, "anyText", TableDatasets, "anytext", TypeString)
	add(CSW202Namespace, "AnyText", TableDatasets, "anytext", TypeString)

	add(APISONamespace, "identifier", TableIdentifier, "identifier", TypeString)
	add(APISONamespace, "Identifier", TableIdentifier, "identifier", TypeString)
	add(DCNamespace, "Identifier", TableIdentifier, "identifier", TypeString)
	add(DCNamespace, "identifier", TableIdentifier, "identifier", TypeString)
	add(CSW202Namespace, "Identifier", TableIdentifier, "identifier", TypeString)

	add(APISONamespace, "modified", TableDatasets, "modified", TypeDate)
	add(APISONamespace, "Modified", TableDatasets, "modified", TypeDate)
	add(DCTNamespace, "Modified", TableDatasets, "modified", TypeDate)
	add(DCTNamespace, "modified", TableDatasets, "modified", TypeDate)
	add(CSW202Namespace, "Modified", TableDatasets, "modified", TypeDate)

	add(APISONamespace, "CRS", TableCRS, "crs", TypeString)
	add(DCNamespace, "CRS", TableCRS, "crs", TypeString)

	add(APISONamespace, "association", TableAssociation, "relation", TypeString)
	add(APISONamespace, "Association", TableAssociation, "relation", TypeString)
	add(CSW202Namespace, "Association", TableAssociation, "relation", TypeString)
	add(DCNamespace, "Relation", TableAssociation, "relation", TypeString)
	add(DCNamespace, "relation", TableAssociation, "relation", TypeString)

	// ISO 附加可查询属性
	add(APISONamespace, "Language", TableDatasets, "language", TypeString)
	add(APISONamespace, "language", TableDatasets, "language", TypeString)
	add(APISONamespace, "RevisionDate", TableRevisionDate, "revisiondate", TypeDate)
	add(APISONamespace, "CreationDate", TableCreationDate, "creationdate", TypeDate)
	add(APISONamespace, "AlternateTitle", TableAlternateTitle, "alternatetitle", TypeString)
	add(APISONamespace, "PublicationDate", TablePublicationDate, "publicationdate", TypeDate)
	add(APISONamespace, "OrganisationName", TableOrganisationName, "organisationname", TypeString)
	add(APISONamespace, "HasSecurityConstraint", TableDatasets, "hassecurityconstraints", TypeBoolean)
	add(APISONamespace, "ResourceIdentifier", TableResourceIdentifier, "resourceidentifier", TypeString)
	add(APISONamespace, "ParentIdentifier", TableDatasets, "parentidentifier", TypeString)
	add(APISONamespace, "KeywordType", TableKeyword, "keywordtype", TypeString)
	add(APISONamespace, "TopicCategory", TableTopicCategory, "topiccategory", TypeString)
	add(APISONamespace, "ResourceLanguage", TableResourceLanguage, "resourcelanguage", TypeString)
	add(APISONamespace, "GeographicDescriptionCode", TableGeographicDescriptionCode, "geographicdescriptioncode", TypeString)
	add(APISONamespace, "Denominator", TableSpatialResolution, "denominator", TypeString)
	add(APISONamespace, "DistanceValue", TableSpatialResolution, "distancevalue", TypeString)
	add(APISONamespace, "DistanceUOM", TableSpatialResolution, "distanceuom", TypeString)
	add(APISONamespace, "TempExtent_begin", TableTemporalExtent, "tempextent_begin", TypeDate)
	add(APISONamespace, "TempExtent_end", TableTemporalExtent, "tempextent_end", TypeDate)
	add(APISONamespace, "ServiceType", TableServiceType, "servicetype", TypeString)
	add(APISONamespace, "ServiceTypeVersion", TableServiceTypeVersion, "servicetypeversion", TypeString)
	add(APISONamespace, "Operation", TableOperation, "operation", TypeString)
	add(APISONamespace, "OperatesOn", TableOperatesOnData, "operateson", TypeString)
	add(APISONamespace, "OperatesOnIdentifier", TableOperatesOnData, "operatesonidentifier", TypeString)
	add(APISONamespace, "OperatesOnName", TableOperatesOnData, "operatesonname", TypeString)
	add(APISONamespace, "CouplingType", TableCouplingType, "couplingtype", TypeString)

	// INSPIRE 附加可查询属性
	add(APISONamespace, "Degree", TableDegree, "degree", TypeBoolean)
	add(APISONamespace, "AccessConstraints", TableAccessConstraint, "accessconstraint", TypeString)
	add(APISONamespace, "OtherConstraints", TableOtherConstraint, "otherconstraint", TypeString)
	add(APISONamespace, "Classification", TableClassification, "classification", TypeString)
	add(APISONamespace, "ConditionApplyingToAccessAndUse", TableLimitation, "limitation", TypeString)
	add(APISONamespace, "Lineage", TableLineage, "lineage", TypeString)
	add(APISONamespace, "SpecificationTitle", TableSpecification, "specificationtitle", TypeString)
	add(APISONamespace, "SpecificationDateType", TableSpecification, "specificationdatetype", TypeString)
	add(APISONamespace, "SpecificationDate", TableSpecification, "specificationdate", TypeDate)
}

// Lookup 按限定名查找映射
func Lookup(name xml.Name) (PropertyMapping, bool) {
	m, ok := mappings[name]
	return m, ok
}

// LookupLocal 只有本地名时按命名空间优先级查找
func LookupLocal(local string) (PropertyMapping, bool) {
	for _, space := range lookupOrder {
		if m, ok := mappings[xml.Name{Space: space, Local: local}]; ok {
			return m, true
		}
	}
	return PropertyMapping{}, false
}

// Mapping 把属性路径映射到列，路径为一步 (属性) 或者两步 (记录类型/属性)
func Mapping(path string, ns xmlnode.Namespaces) (*JoinedMapping, error) {
	steps := strings.Split(strings.Trim(strings.TrimSpace(path), "/"), "/")
	if len(steps) < 1 || len(steps) > 2 || steps[0] == "" {
		return nil, errors.Errorf("cannot map property name '%s': must contain one or two steps", path)
	}
	step := steps[len(steps)-1]
	if strings.ContainsAny(step, "[@(") {
		return nil, errors.Errorf("cannot map property name '%s': only simple name steps are supported", path)
	}

	var (
		m  PropertyMapping
		ok bool
	)
	if i := strings.Index(step, ":"); i >= 0 {
		space, known := ns[step[:i]]
		if !known {
			return nil, errors.Errorf("cannot map property name '%s': unbound prefix '%s'", path, step[:i])
		}
		m, ok = Lookup(xml.Name{Space: space, Local: step[i+1:]})
	} else {
		m, ok = LookupLocal(step)
	}
	if !ok {
		return nil, errors.Errorf("property name '%s' is not queryable", path)
	}

	jm := &JoinedMapping{PropertyMapping: m}
	if m.Table != TableDatasets {
		jm.Joins = []Join{{
			From: Field{Table: TableDatasets, Column: ColumnID},
			To:   Field{Table: m.Table, Column: ColumnFKDatasets},
		}}
	}
	return jm, nil
}

// SQLValue 把过滤器中的字面量转换成列类型的值
func (m PropertyMapping) SQLValue(literal string) (interface{}, error) {
	switch m.Type {
	case TypeBoolean:
		b, err := cast.ToBoolE(strings.TrimSpace(literal))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid boolean literal '%s' for %s.%s", literal, m.Table, m.Column)
		}
		return b, nil
	case TypeDate:
		t, err := ParseDate(literal)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid date literal '%s' for %s.%s", literal, m.Table, m.Column)
		}
		return t, nil
	}
	return literal, nil
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05", "2006"}

// ParseDate 支持 xs:date, xs:dateTime 以及年份
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unparsable date '%s'", s)
}

// ProfileTable 详略程度对应的记录表
func ProfileTable(set ElementSet) (Table, error) {
	switch set {
	case Brief:
		return TableRecordBrief, nil
	case Summary:
		return TableRecordSummary, nil
	case Full:
		return TableRecordFull, nil
	}
	return "", errors.Errorf("unknown element set '%s'", set)
}

// RecordElement 记录表对应的 csw 输出元素名
func RecordElement(table Table) string {
	switch table {
	case TableRecordBrief:
		return "BriefRecord"
	case TableRecordSummary:
		return "SummaryRecord"
	case TableRecordFull:
		return "Record"
	}
	return ""
}
