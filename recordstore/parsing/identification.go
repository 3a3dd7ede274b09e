package parsing

import (
	"context"

	"github.com/demdxx/gocast"
	"github.com/xiaoxuxiansheng/gowfs/log"
	"github.com/xiaoxuxiansheng/gowfs/recordstore"
	"github.com/xiaoxuxiansheng/gowfs/xmlnode"
)

// parseIdentificationInfo gmd:MD_DataIdentification 或 srv:SV_ServiceIdentification
func (p *Parser) parseIdentificationInfo(ctx context.Context, ident *xmlnode.Node,
	qp *recordstore.QueryableProperties, rp *recordstore.ReturnableProperties, isInspire bool) error {
	if ident == nil {
		return nil
	}
	citation := ident.SelectOne(ns, "gmd:citation/gmd:CI_Citation")

	qp.Titles = append(citation.ValuesOf(ns, "gmd:title/gco:CharacterString"),
		citation.ValuesOf(ns, "gmd:title/gmd:PT_FreeText/gmd:textGroup/gmd:LocalisedCharacterString")...)
	qp.AlternateTitles = citation.ValuesOf(ns, "gmd:alternateTitle/gco:CharacterString")

	for _, d := range citation.Select(ns, "gmd:date/gmd:CI_Date") {
		date := parseDate(ctx, firstOf(d, "gmd:date/gco:Date", "gmd:date/gco:DateTime"))
		switch d.ValueOf(ns, "gmd:dateType/gmd:CI_DateTypeCode@codeListValue", "") {
		case "revision":
			qp.RevisionDate = date
		case "creation":
			qp.CreationDate = date
		case "publication":
			qp.PublicationDate = date
		}
	}

	for _, id := range citation.Select(ns, "gmd:identifier") {
		if code := firstOf(id, "gmd:MD_Identifier/gmd:code/gco:CharacterString", "gmd:RS_Identifier/gmd:code/gco:CharacterString"); code != "" {
			qp.ResourceIdentifiers = append(qp.ResourceIdentifiers, code)
		}
	}
	if isInspire && len(qp.ResourceIdentifiers) > 0 {
		ident.SetAttr("id", qp.ResourceIdentifiers[0])
		ident.SetAttr("uuid", qp.ResourceIdentifiers[0])
	}

	qp.Abstracts = append(ident.ValuesOf(ns, "gmd:abstract/gco:CharacterString"),
		ident.ValuesOf(ns, "gmd:abstract/gmd:PT_FreeText/gmd:textGroup/gmd:LocalisedCharacterString")...)
	rp.GraphicOverview = ident.ValueOf(ns, "gmd:graphicOverview/gmd:MD_BrowseGraphic/gmd:fileName/gco:CharacterString", "")

	parseConstraints(ident, qp, rp)

	qp.TopicCategories = ident.ValuesOf(ns, "gmd:topicCategory/gmd:MD_TopicCategoryCode")
	qp.ResourceLanguages = append(ident.ValuesOf(ns, "gmd:language/gco:CharacterString"),
		ident.ValuesOf(ns, "gmd:language/gmd:LanguageCode@codeListValue")...)

	resolution := ident.SelectOne(ns, "gmd:spatialResolution/gmd:MD_Resolution")
	if v := resolution.ValueOf(ns, "gmd:equivalentScale/gmd:MD_RepresentativeFraction/gmd:denominator/gco:Integer", ""); v != "" {
		qp.Denominator = gocast.ToInt(v)
	}
	if distance := resolution.SelectOne(ns, "gmd:distance/gco:Distance"); distance != nil {
		qp.DistanceValue = gocast.ToFloat64(distance.Value())
		qp.DistanceUOM = distance.Attr("uom")
	}

	rp.Relations = ident.ValuesOf(ns, "gmd:aggregationInfo/gmd:MD_AggregateInformation/gmd:associationType/gmd:DS_AssociationTypeCode@codeListValue")

	parseResponsibleParties(ident, qp, rp)
	parseExtent(ctx, ident, qp)
	qp.Keywords = append(parseKeywords(ident.Select(ns, "gmd:descriptiveKeywords/gmd:MD_Keywords")),
		parseKeywords(ident.Select(ns, "srv:keywords/gmd:MD_Keywords"))...)

	if !ident.Is(recordstore.SRVNamespace, "SV_ServiceIdentification") {
		return nil
	}
	return p.parseServiceIdentification(ctx, ident, qp, isInspire)
}

func (p *Parser) parseServiceIdentification(ctx context.Context, service *xmlnode.Node,
	qp *recordstore.QueryableProperties, isInspire bool) error {
	qp.ServiceType = service.ValueOf(ns, "srv:serviceType/gco:LocalName", "")
	qp.ServiceTypeVersions = service.ValuesOf(ns, "srv:serviceTypeVersion/gco:CharacterString")
	qp.Operations = service.ValuesOf(ns, "srv:containsOperations/srv:SV_OperationMetadata/srv:operationName/gco:CharacterString")

	var operatesOn []string
	for _, o := range service.Select(ns, "srv:operatesOn") {
		ref := o.Attr("uuidref")
		if ref == "" {
			ref = o.ValueOf(ns, "gmd:MD_DataIdentification/gmd:citation/gmd:CI_Citation/gmd:identifier/gmd:MD_Identifier/gmd:code/gco:CharacterString", "")
		}
		if ref != "" {
			operatesOn = append(operatesOn, ref)
		}
	}

	var coupledIdentifiers []string
	for _, res := range service.Select(ns, "srv:coupledResource/srv:SV_CoupledResource") {
		id := res.ValueOf(ns, "srv:identifier/gco:CharacterString", "")
		name := res.ValueOf(ns, "srv:operationName/gco:CharacterString", "")
		if id != "" {
			coupledIdentifiers = append(coupledIdentifiers, id)
		}
		for _, ref := range operatesOn {
			if ref == id {
				qp.OperatesOn = append(qp.OperatesOn, recordstore.OperatesOn{OperatesOn: ref, Identifier: id, Name: name})
				break
			}
		}
	}

	qp.CouplingType = service.ValueOf(ns, "srv:couplingType/srv:SV_CouplingType@codeListValue", "")
	if !isInspire || qp.CouplingType != "tight" {
		return nil
	}
	if err := p.checkCoupling(ctx, operatesOn, coupledIdentifiers); err != nil {
		log.WarnContextf(ctx, "reject service record: %v", err)
		return err
	}
	return nil
}

func parseConstraints(ident *xmlnode.Node, qp *recordstore.QueryableProperties, rp *recordstore.ReturnableProperties) {
	for _, c := range ident.Select(ns, "gmd:resourceConstraints") {
		qp.Limitations = append(qp.Limitations, c.ValuesOf(ns, "*/gmd:useLimitation/gco:CharacterString")...)
		access := c.ValuesOf(ns, "gmd:MD_LegalConstraints/gmd:accessConstraints/gmd:MD_RestrictionCode@codeListValue")
		qp.AccessConstraints = append(qp.AccessConstraints, access...)
		rp.Rights = append(rp.Rights, access...)
		qp.OtherConstraints = append(qp.OtherConstraints,
			c.ValuesOf(ns, "gmd:MD_LegalConstraints/gmd:otherConstraints/gco:CharacterString")...)
		if security := c.SelectOne(ns, "gmd:MD_SecurityConstraints"); security != nil {
			qp.HasSecurityConstraints = true
			qp.Classifications = append(qp.Classifications,
				security.ValuesOf(ns, "gmd:classification/gmd:MD_ClassificationCode@codeListValue")...)
		}
	}
}

// parseResponsibleParties 按角色映射到 creator / publisher / contributor
func parseResponsibleParties(ident *xmlnode.Node, qp *recordstore.QueryableProperties, rp *recordstore.ReturnableProperties) {
	for _, party := range ident.Select(ns, "gmd:pointOfContact/gmd:CI_ResponsibleParty") {
		org := party.ValueOf(ns, "gmd:organisationName/gco:CharacterString", "")
		if org == "" {
			continue
		}
		if qp.OrganisationName == "" {
			qp.OrganisationName = org
		}
		switch party.ValueOf(ns, "gmd:role/gmd:CI_RoleCode@codeListValue", "") {
		case "originator":
			rp.Creator = org
		case "publisher":
			rp.Publisher = org
		case "author":
			rp.Contributor = org
		}
	}
}

func parseExtent(ctx context.Context, ident *xmlnode.Node, qp *recordstore.QueryableProperties) {
	extents := append(ident.Select(ns, "gmd:extent/gmd:EX_Extent"), ident.Select(ns, "srv:extent/gmd:EX_Extent")...)
	for _, extent := range extents {
		period := extent.SelectOne(ns, "gmd:temporalElement/gmd:EX_TemporalExtent/gmd:extent/*")
		if period != nil && qp.TempExtentBegin.IsZero() {
			qp.TempExtentBegin = parseDate(ctx, period.ValueOf(ns, "*:beginPosition", ""))
			qp.TempExtentEnd = parseDate(ctx, period.ValueOf(ns, "*:endPosition", ""))
		}

		for _, geo := range extent.Select(ns, "gmd:geographicElement/gmd:EX_GeographicBoundingBox") {
			if qp.BoundingBox != nil {
				break
			}
			west := geo.ValueOf(ns, "gmd:westBoundLongitude/gco:Decimal", "")
			east := geo.ValueOf(ns, "gmd:eastBoundLongitude/gco:Decimal", "")
			south := geo.ValueOf(ns, "gmd:southBoundLatitude/gco:Decimal", "")
			north := geo.ValueOf(ns, "gmd:northBoundLatitude/gco:Decimal", "")
			if west == "" || east == "" || south == "" || north == "" {
				continue
			}
			qp.BoundingBox = &recordstore.BoundingBox{
				West:  gocast.ToFloat64(west),
				South: gocast.ToFloat64(south),
				East:  gocast.ToFloat64(east),
				North: gocast.ToFloat64(north),
			}
			qp.CRS = append(qp.CRS, "EPSG:4326")
		}
		qp.GeographicDescriptionCodes = append(qp.GeographicDescriptionCodes,
			extent.ValuesOf(ns, "gmd:geographicElement/gmd:EX_GeographicDescription/gmd:geographicIdentifier/gmd:MD_Identifier/gmd:code/gco:CharacterString")...)
	}
}

func parseKeywords(groups []*xmlnode.Node) []recordstore.Keyword {
	var keywords []recordstore.Keyword
	for _, g := range groups {
		values := g.ValuesOf(ns, "gmd:keyword/gco:CharacterString")
		if len(values) == 0 {
			continue
		}
		keywords = append(keywords, recordstore.Keyword{
			Type:      g.ValueOf(ns, "gmd:type/gmd:MD_KeywordTypeCode@codeListValue", ""),
			Values:    values,
			Thesaurus: g.ValueOf(ns, "gmd:thesaurusName/gmd:CI_Citation/gmd:title/gco:CharacterString", ""),
		})
	}
	return keywords
}

// parseDataQualityInfo 一致性、规范与数据志
func parseDataQualityInfo(ctx context.Context, root *xmlnode.Node, qp *recordstore.QueryableProperties) {
	for _, quality := range root.Select(ns, "gmd:dataQualityInfo/gmd:DQ_DataQuality") {
		for _, result := range quality.Select(ns, "gmd:report/*/gmd:result/gmd:DQ_ConformanceResult") {
			if result.ValueOf(ns, "gmd:pass/gco:Boolean", "") == "true" {
				qp.Degree = true
			}
			spec := result.SelectOne(ns, "gmd:specification/gmd:CI_Citation")
			qp.SpecificationTitles = append(qp.SpecificationTitles, spec.ValuesOf(ns, "gmd:title/gco:CharacterString")...)
			if qp.SpecificationDateType == "" {
				qp.SpecificationDateType = spec.ValueOf(ns, "gmd:date/gmd:CI_Date/gmd:dateType/gmd:CI_DateTypeCode@codeListValue", "")
				qp.SpecificationDate = parseDate(ctx, firstOf(spec, "gmd:date/gmd:CI_Date/gmd:date/gco:Date", "gmd:date/gmd:CI_Date/gmd:date/gco:DateTime"))
			}
		}
		if qp.Lineage == "" {
			qp.Lineage = quality.ValueOf(ns, "gmd:lineage/gmd:LI_Lineage/gmd:statement/gco:CharacterString", "")
		}
	}
}
