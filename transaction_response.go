package gowfs

import (
	"encoding/xml"
	"io"
	"strconv"

	"github.com/xiaoxuxiansheng/gowfs/filter"
	"github.com/xiaoxuxiansheng/gowfs/ows"
	"github.com/xiaoxuxiansheng/gowfs/protocol"
)

// responseWriter 基于 token 的 XML 输出，第一个错误之后的写入全部忽略
type responseWriter struct {
	enc *xml.Encoder
	err error
}

func newResponseWriter(w io.Writer) *responseWriter {
	rw := &responseWriter{enc: xml.NewEncoder(w)}
	_, rw.err = io.WriteString(w, xml.Header)
	return rw
}

// qname 带前缀的元素名，命名空间由根元素上的 xmlns 声明
func qname(prefix, local string) xml.Name {
	return xml.Name{Local: prefix + ":" + local}
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

func nsAttr(prefix, uri string) xml.Attr {
	return attr("xmlns:"+prefix, uri)
}

// schemaAttrs 根元素上的 xsi 声明与 schemaLocation
func schemaAttrs(version ows.Version) []xml.Attr {
	return []xml.Attr{
		nsAttr("xsi", protocol.XSINamespace),
		attr("xsi:schemaLocation", protocol.SchemaLocation(version)),
	}
}

func rootAttrs(version ows.Version, attrs ...xml.Attr) []xml.Attr {
	return append(attrs, schemaAttrs(version)...)
}

func (r *responseWriter) start(name xml.Name, attrs ...xml.Attr) {
	if r.err != nil {
		return
	}
	var kept []xml.Attr
	for _, a := range attrs {
		if a.Value != "" {
			kept = append(kept, a)
		}
	}
	r.err = r.enc.EncodeToken(xml.StartElement{Name: name, Attr: kept})
}

func (r *responseWriter) end(name xml.Name) {
	if r.err != nil {
		return
	}
	r.err = r.enc.EncodeToken(xml.EndElement{Name: name})
}

func (r *responseWriter) text(name xml.Name, value string) {
	r.start(name)
	if r.err == nil {
		r.err = r.enc.EncodeToken(xml.CharData(value))
	}
	r.end(name)
}

func (r *responseWriter) empty(name xml.Name, attrs ...xml.Attr) {
	r.start(name, attrs...)
	r.end(name)
}

func (r *responseWriter) flush() error {
	if r.err != nil {
		return r.err
	}
	return r.enc.Flush()
}

// transactionResult 一次事务的累计结果
type transactionResult struct {
	inserted *ActionResults
	updated  *ActionResults
	replaced *ActionResults
	deleted  int
}

func newTransactionResult() *transactionResult {
	return &transactionResult{
		inserted: NewActionResults(),
		updated:  NewActionResults(),
		replaced: NewActionResults(),
	}
}

// writeTransactionResponse failed 只在 1.0.0 下使用
func writeTransactionResponse(w io.Writer, req *protocol.Transaction, res *transactionResult, failed bool, message string) error {
	switch req.Version {
	case ows.Version100:
		return writeTransaction100(w, req, res, failed, message)
	case ows.Version110:
		return writeTransaction110(w, res)
	default:
		return writeTransaction200(w, res)
	}
}

func writeTransaction100(w io.Writer, req *protocol.Transaction, res *transactionResult, failed bool, message string) error {
	rw := newResponseWriter(w)
	root := qname("wfs", "WFS_TransactionResponse")
	rw.start(root, rootAttrs(ows.Version100, attr("version", string(ows.Version100)),
		nsAttr("wfs", protocol.WFSNamespace), nsAttr("ogc", filter.OGCNamespace))...)

	insertResult := qname("wfs", "InsertResult")
	featureID := qname("ogc", "FeatureId")
	for _, handle := range res.inserted.Handles() {
		rw.start(insertResult, attr("handle", handle))
		for _, fid := range res.inserted.Fids(handle) {
			rw.empty(featureID, attr("fid", fid))
		}
		rw.end(insertResult)
	}
	if fids := res.inserted.FidsWithoutHandle(); len(fids) > 0 {
		rw.start(insertResult)
		for _, fid := range fids {
			rw.empty(featureID, attr("fid", fid))
		}
		rw.end(insertResult)
	}

	result, status := qname("wfs", "TransactionResult"), qname("wfs", "Status")
	rw.start(result, attr("handle", req.Handle))
	rw.start(status)
	if failed {
		rw.empty(qname("wfs", "FAILED"))
	} else {
		rw.empty(qname("wfs", "SUCCESS"))
	}
	rw.end(status)
	if message != "" {
		rw.text(qname("wfs", "Message"), message)
	}
	rw.end(result)
	rw.end(root)
	return rw.flush()
}

func writeTransaction110(w io.Writer, res *transactionResult) error {
	rw := newResponseWriter(w)
	root := qname("wfs", "TransactionResponse")
	rw.start(root, rootAttrs(ows.Version110, attr("version", string(ows.Version110)),
		nsAttr("wfs", protocol.WFSNamespace), nsAttr("ogc", filter.OGCNamespace))...)

	summary := qname("wfs", "TransactionSummary")
	rw.start(summary)
	rw.text(qname("wfs", "totalInserted"), strconv.Itoa(res.inserted.Total()))
	rw.text(qname("wfs", "totalUpdated"), strconv.Itoa(res.updated.Total()))
	rw.text(qname("wfs", "totalDeleted"), strconv.Itoa(res.deleted))
	rw.end(summary)

	if res.inserted.Total() > 0 {
		writeActionResults(rw, "InsertResults", res.inserted, qname("ogc", "FeatureId"), "fid")
	}
	rw.end(root)
	return rw.flush()
}

func writeTransaction200(w io.Writer, res *transactionResult) error {
	rw := newResponseWriter(w)
	root := qname("wfs", "TransactionResponse")
	rw.start(root, rootAttrs(ows.Version200, attr("version", string(ows.Version200)),
		nsAttr("wfs", protocol.WFS20Namespace), nsAttr("fes", filter.FESNamespace))...)

	summary := qname("wfs", "TransactionSummary")
	rw.start(summary)
	rw.text(qname("wfs", "totalInserted"), strconv.Itoa(res.inserted.Total()))
	rw.text(qname("wfs", "totalUpdated"), strconv.Itoa(res.updated.Total()))
	rw.text(qname("wfs", "totalReplaced"), strconv.Itoa(res.replaced.Total()))
	rw.text(qname("wfs", "totalDeleted"), strconv.Itoa(res.deleted))
	rw.end(summary)

	resourceID := qname("fes", "ResourceId")
	if res.inserted.Total() > 0 {
		writeActionResults(rw, "InsertResults", res.inserted, resourceID, "rid")
	}
	if res.updated.Total() > 0 {
		writeActionResults(rw, "UpdateResults", res.updated, resourceID, "rid")
	}
	if res.replaced.Total() > 0 {
		writeActionResults(rw, "ReplaceResults", res.replaced, resourceID, "rid")
	}
	rw.end(root)
	return rw.flush()
}

// writeActionResults 每个 id 一个 wfs:Feature，无 handle 的排在最后
func writeActionResults(rw *responseWriter, local string, results *ActionResults, idName xml.Name, idAttr string) {
	container, feature := qname("wfs", local), qname("wfs", "Feature")
	rw.start(container)
	for _, handle := range results.Handles() {
		for _, fid := range results.Fids(handle) {
			rw.start(feature, attr("handle", handle))
			rw.empty(idName, attr(idAttr, fid))
			rw.end(feature)
		}
	}
	for _, fid := range results.FidsWithoutHandle() {
		rw.start(feature)
		rw.empty(idName, attr(idAttr, fid))
		rw.end(feature)
	}
	rw.end(container)
}
