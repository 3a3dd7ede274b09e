package generating

import (
	"fmt"
	"strings"
	"time"

	"github.com/xiaoxuxiansheng/gowfs/recordstore"
)

// propertyRows 一张属性表待写入的行，每行不含 id 与 fk_datasets
type propertyRows struct {
	table   recordstore.Table
	columns []string
	// 非空时替换对应列的 ? 占位
	placeholders map[string]string
	rows         [][]interface{}
}

func (p *propertyRows) insert() string {
	values := []string{"?", "?"}
	for _, c := range p.columns {
		if ph, ok := p.placeholders[c]; ok {
			values = append(values, ph)
			continue
		}
		values = append(values, "?")
	}
	return fmt.Sprintf("INSERT INTO %s (id, fk_datasets, %s) VALUES (%s)",
		p.table, strings.Join(p.columns, ", "), strings.Join(values, ", "))
}

func (p *propertyRows) add(values ...interface{}) {
	p.rows = append(p.rows, values)
}

func single(table recordstore.Table, column string, values ...string) propertyRows {
	p := propertyRows{table: table, columns: []string{column}}
	for _, v := range values {
		if v != "" {
			p.add(v)
		}
	}
	return p
}

func date(table recordstore.Table, column string, t time.Time) propertyRows {
	p := propertyRows{table: table, columns: []string{column}}
	if !t.IsZero() {
		p.add(t)
	}
	return p
}

// PropertyTables 写入顺序，更新时也按该顺序清理
var PropertyTables = []recordstore.Table{
	recordstore.TableIdentifier,
	recordstore.TableTitle,
	recordstore.TableAlternateTitle,
	recordstore.TableAbstract,
	recordstore.TableKeyword,
	recordstore.TableTopicCategory,
	recordstore.TableFormat,
	recordstore.TableType,
	recordstore.TableCRS,
	recordstore.TableRevisionDate,
	recordstore.TableCreationDate,
	recordstore.TablePublicationDate,
	recordstore.TableResourceIdentifier,
	recordstore.TableResourceLanguage,
	recordstore.TableOrganisationName,
	recordstore.TableTemporalExtent,
	recordstore.TableSpatialResolution,
	recordstore.TableGeographicDescriptionCode,
	recordstore.TableBoundingBox,
	recordstore.TableServiceType,
	recordstore.TableServiceTypeVersion,
	recordstore.TableOperation,
	recordstore.TableOperatesOnData,
	recordstore.TableCouplingType,
	recordstore.TableAssociation,
	recordstore.TableLimitation,
	recordstore.TableAccessConstraint,
	recordstore.TableOtherConstraint,
	recordstore.TableClassification,
	recordstore.TableDegree,
	recordstore.TableSpecification,
	recordstore.TableLineage,
	recordstore.TableRecordBrief,
	recordstore.TableRecordSummary,
	recordstore.TableRecordFull,
}

// collect 与 PropertyTables 顺序一致
func collect(parsed *recordstore.ParsedProfileElement) []propertyRows {
	qp, rp := parsed.Queryable, returnable(parsed)

	keywords := propertyRows{table: recordstore.TableKeyword, columns: []string{"keywordtype", "keyword", "thesaurus"}}
	for _, k := range qp.Keywords {
		for _, v := range k.Values {
			keywords.add(nullString(k.Type), v, nullString(k.Thesaurus))
		}
	}

	var formats []string
	for _, f := range qp.Formats {
		formats = append(formats, f.Name)
	}

	temporal := propertyRows{table: recordstore.TableTemporalExtent, columns: []string{"tempextent_begin", "tempextent_end"}}
	if !qp.TempExtentBegin.IsZero() || !qp.TempExtentEnd.IsZero() {
		temporal.add(nullTime(qp.TempExtentBegin), nullTime(qp.TempExtentEnd))
	}

	resolution := propertyRows{table: recordstore.TableSpatialResolution, columns: []string{"denominator", "distancevalue", "distanceuom"}}
	if qp.Denominator != 0 || qp.DistanceValue != 0 || qp.DistanceUOM != "" {
		resolution.add(qp.Denominator, qp.DistanceValue, nullString(qp.DistanceUOM))
	}

	bbox := propertyRows{
		table:        recordstore.TableBoundingBox,
		columns:      []string{"bbox"},
		placeholders: map[string]string{"bbox": bboxPlaceholder},
	}
	if b := qp.BoundingBox; b != nil {
		bbox.add(BBoxWKT(b))
	}

	operatesOn := propertyRows{table: recordstore.TableOperatesOnData, columns: []string{"operateson", "operatesonidentifier", "operatesonname"}}
	for _, o := range qp.OperatesOn {
		operatesOn.add(o.OperatesOn, o.Identifier, o.Name)
	}

	degree := propertyRows{table: recordstore.TableDegree, columns: []string{"degree"}}
	if qp.Degree || len(qp.SpecificationTitles) > 0 {
		degree.add(qp.Degree)
	}
	specification := propertyRows{table: recordstore.TableSpecification, columns: []string{"specificationtitle", "specificationdatetype", "specificationdate"}}
	for _, title := range qp.SpecificationTitles {
		specification.add(title, nullString(qp.SpecificationDateType), nullTime(qp.SpecificationDate))
	}

	rows := []propertyRows{
		single(recordstore.TableIdentifier, "identifier", qp.Identifiers...),
		single(recordstore.TableTitle, "title", qp.Titles...),
		single(recordstore.TableAlternateTitle, "alternatetitle", qp.AlternateTitles...),
		single(recordstore.TableAbstract, "abstract", qp.Abstracts...),
		keywords,
		single(recordstore.TableTopicCategory, "topiccategory", qp.TopicCategories...),
		single(recordstore.TableFormat, "format", formats...),
		single(recordstore.TableType, "type", qp.Type),
		single(recordstore.TableCRS, "crs", qp.CRS...),
		date(recordstore.TableRevisionDate, "revisiondate", qp.RevisionDate),
		date(recordstore.TableCreationDate, "creationdate", qp.CreationDate),
		date(recordstore.TablePublicationDate, "publicationdate", qp.PublicationDate),
		single(recordstore.TableResourceIdentifier, "resourceidentifier", qp.ResourceIdentifiers...),
		single(recordstore.TableResourceLanguage, "resourcelanguage", qp.ResourceLanguages...),
		single(recordstore.TableOrganisationName, "organisationname", qp.OrganisationName),
		temporal,
		resolution,
		single(recordstore.TableGeographicDescriptionCode, "geographicdescriptioncode", qp.GeographicDescriptionCodes...),
		bbox,
		single(recordstore.TableServiceType, "servicetype", qp.ServiceType),
		single(recordstore.TableServiceTypeVersion, "servicetypeversion", qp.ServiceTypeVersions...),
		single(recordstore.TableOperation, "operation", qp.Operations...),
		operatesOn,
		single(recordstore.TableCouplingType, "couplingtype", qp.CouplingType),
		single(recordstore.TableAssociation, "relation", rp.Relations...),
		single(recordstore.TableLimitation, "limitation", qp.Limitations...),
		single(recordstore.TableAccessConstraint, "accessconstraint", qp.AccessConstraints...),
		single(recordstore.TableOtherConstraint, "otherconstraint", qp.OtherConstraints...),
		single(recordstore.TableClassification, "classification", qp.Classifications...),
		degree,
		specification,
		single(recordstore.TableLineage, "lineage", qp.Lineage),
	}
	return append(rows, representations(parsed)...)
}

// representations 按详略程度分表，每张表每种格式一行
func representations(parsed *recordstore.ParsedProfileElement) []propertyRows {
	var out []propertyRows
	for _, set := range recordstore.ElementSets {
		table, _ := recordstore.ProfileTable(set)
		p := propertyRows{table: table, columns: []string{recordstore.ColumnFormat, recordstore.ColumnData}}
		if parsed.Record != nil {
			for _, r := range parsed.Record.Representations {
				if r.Set == set && r.Data != nil {
					p.add(int(r.Format), r.Data.String())
				}
			}
		}
		out = append(out, p)
	}
	return out
}

// BBoxWKT 经度在前的 WGS84 多边形
func BBoxWKT(b *recordstore.BoundingBox) string {
	w, s, e, n := formatCoord(b.West), formatCoord(b.South), formatCoord(b.East), formatCoord(b.North)
	return fmt.Sprintf("POLYGON((%s %s, %s %s, %s %s, %s %s, %s %s))", w, s, e, s, e, n, w, n, w, s)
}
