package gowfs

import (
	"context"
	"encoding/xml"
	"io"
	"sort"
	"sync"

	"github.com/xiaoxuxiansheng/gowfs/filter"
	"github.com/xiaoxuxiansheng/gowfs/log"
	"github.com/xiaoxuxiansheng/gowfs/ows"
	"github.com/xiaoxuxiansheng/gowfs/protocol"
)

const (
	// QueryExpressionLanguage CreateStoredQuery 唯一支持的查询语言
	QueryExpressionLanguage = "urn:ogc:def:queryLanguage:OGC-WFS::WFSQueryExpression"
	GetFeatureByID          = "urn:ogc:def:query:OGC-WFS::GetFeatureById"
	GetFeatureByType        = "urn:ogc:def:query:OGC-WFS::GetFeatureByType"
)

type storedQuery struct {
	definition *protocol.StoredQueryDefinition
	// 由 CreateStoredQuery 创建，可以被 DropStoredQuery 删除
	managed bool
}

// StoredQueryHandler 存储查询的管理与展开
type StoredQueryHandler struct {
	mux     sync.RWMutex
	queries map[string]*storedQuery
	stores  *StoreManager
	managed bool
}

func NewStoredQueryHandler(stores *StoreManager, managed bool) *StoredQueryHandler {
	h := &StoredQueryHandler{
		queries: make(map[string]*storedQuery),
		stores:  stores,
		managed: managed,
	}
	h.queries[GetFeatureByID] = &storedQuery{definition: &protocol.StoredQueryDefinition{
		ID:         GetFeatureByID,
		Title:      "GetFeatureById",
		Abstract:   "Returns the single feature whose value is equal to the specified value of the ID argument",
		Parameters: []protocol.StoredQueryParameter{{Name: "ID", Type: "xs:string"}},
		Language:   QueryExpressionLanguage,
	}}
	h.queries[GetFeatureByType] = &storedQuery{definition: &protocol.StoredQueryDefinition{
		ID:         GetFeatureByType,
		Title:      "GetFeatureByType",
		Abstract:   "Returns all features of the specified feature type",
		Parameters: []protocol.StoredQueryParameter{{Name: "TYPENAME", Type: "xs:QName"}},
		Language:   QueryExpressionLanguage,
	}}
	return h
}

func (h *StoredQueryHandler) HasStoredQuery(id string) bool {
	h.mux.RLock()
	defer h.mux.RUnlock()
	_, ok := h.queries[id]
	return ok
}

// Create 全部定义校验通过后才会加入
func (h *StoredQueryHandler) Create(ctx context.Context, req *protocol.CreateStoredQuery) error {
	if !h.managed {
		return ows.New("Performing CreateStoredQuery requests is not configured.", ows.OperationProcessingFailed)
	}

	h.mux.Lock()
	defer h.mux.Unlock()
	for _, def := range req.Definitions {
		if _, ok := h.queries[def.ID]; ok {
			return ows.New("Stored query with id '"+def.ID+"' is already known.", ows.DuplicateStoredQueryIdValue, def.ID)
		}
	}
	for _, def := range req.Definitions {
		if def.Language != QueryExpressionLanguage {
			return ows.New("Stored query with id '"+def.ID+"' contains an unsupported language "+def.Language+
				". Currently only "+QueryExpressionLanguage+" is supported", ows.InvalidParameterValue, "language")
		}
	}
	for _, def := range req.Definitions {
		log.InfoContextf(ctx, "adding stored query definition with id '%s'", def.ID)
		h.queries[def.ID] = &storedQuery{definition: def, managed: true}
	}
	return nil
}

// Drop 只能删除 CreateStoredQuery 创建的查询
func (h *StoredQueryHandler) Drop(ctx context.Context, req *protocol.DropStoredQuery) error {
	h.mux.Lock()
	defer h.mux.Unlock()
	q, ok := h.queries[req.ID]
	if !ok {
		return ows.New("Stored query with id '"+req.ID+"' is not known.", ows.InvalidParameterValue, "storedQueryId")
	}
	if !q.managed {
		return ows.New("Stored query with id '"+req.ID+"' is configured by the service provider. "+
			"It cannot be removed by a DropStoredQuery request.", ows.InvalidParameterValue, "storedQueryId")
	}
	log.InfoContextf(ctx, "remove stored query with id '%s'", req.ID)
	delete(h.queries, req.ID)
	return nil
}

// Definitions ids 为空时返回全部，按 id 排序
func (h *StoredQueryHandler) Definitions(ids []string) ([]*protocol.StoredQueryDefinition, error) {
	h.mux.RLock()
	defer h.mux.RUnlock()
	if len(ids) == 0 {
		for id := range h.queries {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	}

	out := make([]*protocol.StoredQueryDefinition, 0, len(ids))
	for _, id := range ids {
		q, ok := h.queries[id]
		if !ok {
			return nil, ows.New("No StoredQuery with id '"+id+"' is known to this server.", ows.InvalidParameterValue)
		}
		out = append(out, q.definition)
	}
	return out, nil
}

// Expand 把存储查询展开成普通查询，普通查询原样返回
func (h *StoredQueryHandler) Expand(q protocol.Query) ([]protocol.Query, error) {
	if q.StoredQueryID == "" {
		return []protocol.Query{q}, nil
	}

	switch q.StoredQueryID {
	case GetFeatureByID:
		id := q.Parameters["ID"]
		if id == "" {
			return nil, ows.MissingParameter("ID", "Stored query '"+GetFeatureByID+"' requires parameter ID.")
		}
		return []protocol.Query{{Filter: &filter.IDFilter{IDs: []string{id}}}}, nil
	case GetFeatureByType:
		typeName := q.Parameters["TYPENAME"]
		if typeName == "" {
			return nil, ows.MissingParameter("TYPENAME", "Stored query '"+GetFeatureByType+"' requires parameter TYPENAME.")
		}
		return []protocol.Query{{TypeNames: []xml.Name{protocol.QName(typeName)}}}, nil
	}

	h.mux.RLock()
	sq, ok := h.queries[q.StoredQueryID]
	h.mux.RUnlock()
	if !ok {
		return nil, ows.New("No StoredQuery with id '"+q.StoredQueryID+"' is known to this server.", ows.InvalidParameterValue, "storedQueryId")
	}
	return protocol.ExpandQueryExpression(sq.definition.Expression, q.Parameters)
}

// returnTypes 没有声明返回类型时为全部要素类型，按本地名排序
func (h *StoredQueryHandler) returnTypes(def *protocol.StoredQueryDefinition) []xml.Name {
	names := append([]xml.Name(nil), def.ReturnTypes...)
	if len(names) == 0 && h.stores != nil {
		for _, ft := range h.stores.FeatureTypes() {
			names = append(names, ft.Name)
		}
	}
	sort.Slice(names, func(i, j int) bool { return names[i].Local < names[j].Local })
	return names
}

type statusResponse struct {
	XMLName xml.Name
	Status  string `xml:"status,attr"`
}

type listStoredQueriesResponse struct {
	XMLName xml.Name          `xml:"http://www.opengis.net/wfs/2.0 ListStoredQueriesResponse"`
	Queries []listStoredQuery `xml:"StoredQuery"`
}

type listStoredQuery struct {
	ID          string   `xml:"id,attr"`
	Title       string   `xml:"Title,omitempty"`
	ReturnTypes []string `xml:"ReturnFeatureType"`
}

type describeStoredQueriesResponse struct {
	XMLName      xml.Name                 `xml:"http://www.opengis.net/wfs/2.0 DescribeStoredQueriesResponse"`
	Descriptions []storedQueryDescription `xml:"StoredQueryDescription"`
}

type storedQueryDescription struct {
	ID          string                 `xml:"id,attr"`
	Title       string                 `xml:"Title,omitempty"`
	Abstract    string                 `xml:"Abstract,omitempty"`
	Parameters  []storedQueryParameter `xml:"Parameter"`
	Expressions []queryExpressionText  `xml:"QueryExpressionText"`
}

type storedQueryParameter struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
}

type queryExpressionText struct {
	ReturnFeatureTypes string `xml:"returnFeatureTypes,attr"`
	Language           string `xml:"language,attr"`
	IsPrivate          bool   `xml:"isPrivate,attr"`
}

func (h *StoredQueryHandler) DoCreateStoredQuery(ctx context.Context, req *protocol.CreateStoredQuery, w io.Writer) error {
	if err := h.Create(ctx, req); err != nil {
		return err
	}
	return writeStatus(w, "CreateStoredQueryResponse")
}

func (h *StoredQueryHandler) DoDropStoredQuery(ctx context.Context, req *protocol.DropStoredQuery, w io.Writer) error {
	if err := h.Drop(ctx, req); err != nil {
		return err
	}
	return writeStatus(w, "DropStoredQueryResponse")
}

func (h *StoredQueryHandler) DoListStoredQueries(ctx context.Context, req *protocol.ListStoredQueries, w io.Writer) error {
	defs, err := h.Definitions(nil)
	if err != nil {
		return err
	}
	resp := listStoredQueriesResponse{}
	for _, def := range defs {
		item := listStoredQuery{ID: def.ID, Title: def.Title}
		for _, name := range h.returnTypes(def) {
			item.ReturnTypes = append(item.ReturnTypes, name.Local)
		}
		resp.Queries = append(resp.Queries, item)
	}
	return writeXML(w, resp)
}

func (h *StoredQueryHandler) DoDescribeStoredQueries(ctx context.Context, req *protocol.DescribeStoredQueries, w io.Writer) error {
	defs, err := h.Definitions(req.IDs)
	if err != nil {
		return err
	}
	resp := describeStoredQueriesResponse{}
	for _, def := range defs {
		desc := storedQueryDescription{ID: def.ID, Title: def.Title, Abstract: def.Abstract}
		for _, p := range def.Parameters {
			desc.Parameters = append(desc.Parameters, storedQueryParameter{Name: p.Name, Type: p.Type})
		}
		var returnTypes string
		for i, name := range h.returnTypes(def) {
			if i > 0 {
				returnTypes += " "
			}
			returnTypes += name.Local
		}
		// 查询表达式不对外输出
		desc.Expressions = append(desc.Expressions, queryExpressionText{
			ReturnFeatureTypes: returnTypes,
			Language:           def.Language,
			IsPrivate:          true,
		})
		resp.Descriptions = append(resp.Descriptions, desc)
	}
	return writeXML(w, resp)
}

func writeStatus(w io.Writer, local string) error {
	return writeXML(w, statusResponse{
		XMLName: xml.Name{Space: protocol.WFS20Namespace, Local: local},
		Status:  "OK",
	})
}

// writeXML 带 xml 声明输出
func writeXML(w io.Writer, v interface{}) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Flush()
}
