package parsing

import (
	"github.com/xiaoxuxiansheng/gowfs/recordstore"
	"github.com/xiaoxuxiansheng/gowfs/xmlnode"
)

// 摘要记录保留的 MD_Metadata 子元素
var isoSummaryElements = map[string]bool{
	"fileIdentifier":          true,
	"language":                true,
	"characterSet":            true,
	"parentIdentifier":        true,
	"hierarchyLevel":          true,
	"hierarchyLevelName":      true,
	"contact":                 true,
	"dateStamp":               true,
	"metadataStandardName":    true,
	"metadataStandardVersion": true,
	"referenceSystemInfo":     true,
	"identificationInfo":      true,
	"distributionInfo":        true,
	"dataQualityInfo":         true,
}

// 简要记录中标识信息保留的子元素
var isoBriefIdentification = map[string]bool{
	"citation":           true,
	"graphicOverview":    true,
	"serviceType":        true,
	"serviceTypeVersion": true,
	"extent":             true,
}

func isoRepresentations(full *xmlnode.Node) []recordstore.Representation {
	summary := filterChildren(full, func(c *xmlnode.Node) bool { return isoSummaryElements[c.Name.Local] })

	brief := filterChildren(full, func(c *xmlnode.Node) bool {
		switch c.Name.Local {
		case "fileIdentifier", "hierarchyLevel", "identificationInfo":
			return true
		}
		return false
	})
	for _, info := range brief.Children {
		if info.Name.Local != "identificationInfo" {
			continue
		}
		for i, ident := range info.Children {
			reduced := filterChildren(ident, func(c *xmlnode.Node) bool { return isoBriefIdentification[c.Name.Local] })
			if citation := reduced.SelectOne(ns, "gmd:citation/gmd:CI_Citation"); citation != nil {
				citation.Children = citation.ChildrenNamed(recordstore.GMDNamespace, "title")
			}
			info.Children[i] = reduced
		}
	}

	return []recordstore.Representation{
		{Format: recordstore.FormatISO, Set: recordstore.Brief, Data: brief},
		{Format: recordstore.FormatISO, Set: recordstore.Summary, Data: summary},
		{Format: recordstore.FormatISO, Set: recordstore.Full, Data: full},
	}
}

// filterChildren 深拷贝后只保留满足条件的直接子元素
func filterChildren(n *xmlnode.Node, keep func(*xmlnode.Node) bool) *xmlnode.Node {
	out := &xmlnode.Node{Name: n.Name, Prefix: n.Prefix, Text: n.Text}
	out.Attrs = append(out.Attrs, n.Attrs...)
	for _, c := range n.Children {
		if keep(c) {
			out.Children = append(out.Children, c.Clone())
		}
	}
	return out
}

func dcRepresentations(qp *recordstore.QueryableProperties, rp *recordstore.ReturnableProperties) []recordstore.Representation {
	brief := dcRecord("BriefRecord", qp, rp, recordstore.Brief)
	summary := dcRecord("SummaryRecord", qp, rp, recordstore.Summary)
	full := dcRecord("Record", qp, rp, recordstore.Full)
	return []recordstore.Representation{
		{Format: recordstore.FormatDC, Set: recordstore.Brief, Data: brief},
		{Format: recordstore.FormatDC, Set: recordstore.Summary, Data: summary},
		{Format: recordstore.FormatDC, Set: recordstore.Full, Data: full},
	}
}

func dcRecord(local string, qp *recordstore.QueryableProperties, rp *recordstore.ReturnableProperties, set recordstore.ElementSet) *xmlnode.Node {
	record := xmlnode.NewElement(recordstore.CSW202Namespace, "csw", local)
	dc := func(local string, values ...string) {
		for _, v := range values {
			if v == "" {
				continue
			}
			record.AddChild(xmlnode.NewElement(recordstore.DCNamespace, "dc", local)).Text = v
		}
	}
	dct := func(local string, values ...string) {
		for _, v := range values {
			if v == "" {
				continue
			}
			record.AddChild(xmlnode.NewElement(recordstore.DCTNamespace, "dct", local)).Text = v
		}
	}

	dc("identifier", qp.Identifiers...)
	dc("title", qp.Titles...)
	dc("type", qp.Type)

	if set != recordstore.Brief {
		for _, k := range qp.Keywords {
			dc("subject", k.Values...)
		}
		for _, f := range qp.Formats {
			dc("format", f.Name)
		}
		if !qp.Modified.IsZero() {
			dct("modified", qp.Modified.Format("2006-01-02"))
		}
		dct("abstract", qp.Abstracts...)
	}
	if set == recordstore.Full {
		dc("creator", rp.Creator)
		dc("publisher", rp.Publisher)
		dc("contributor", rp.Contributor)
		dc("source", rp.Source)
		dc("rights", rp.Rights...)
		dc("language", qp.Language)
		dc("relation", rp.Relations...)
	}

	if qp.BoundingBox != nil {
		box := record.AddChild(xmlnode.NewElement(recordstore.OWSNamespace, "ows", "BoundingBox"))
		box.SetAttr("crs", "urn:ogc:def:crs:OGC:2:84")
		lower := box.AddChild(xmlnode.NewElement(recordstore.OWSNamespace, "ows", "LowerCorner"))
		lower.Text = formatFloat(qp.BoundingBox.West) + " " + formatFloat(qp.BoundingBox.South)
		upper := box.AddChild(xmlnode.NewElement(recordstore.OWSNamespace, "ows", "UpperCorner"))
		upper.Text = formatFloat(qp.BoundingBox.East) + " " + formatFloat(qp.BoundingBox.North)
	}
	return record
}
