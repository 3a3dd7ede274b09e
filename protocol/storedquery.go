package protocol

import (
	"strings"

	"github.com/xiaoxuxiansheng/gowfs/ows"
	"github.com/xiaoxuxiansheng/gowfs/xmlnode"
)

func ParseCreateStoredQuery(version ows.Version, root *xmlnode.Node) (*CreateStoredQuery, error) {
	if !isWFS(root, "CreateStoredQuery") {
		return nil, parseError("expected wfs:CreateStoredQuery, got '%s'", root.Name.Local)
	}

	req := &CreateStoredQuery{Version: version}
	for _, d := range root.ChildrenNamed("", "StoredQueryDefinition") {
		def := &StoredQueryDefinition{
			ID:       d.Attr("id"),
			Title:    d.Child("", "Title").Value(),
			Abstract: d.Child("", "Abstract").Value(),
		}
		if def.ID == "" {
			return nil, ows.MissingParameter("id", "StoredQueryDefinition without id.")
		}
		for _, p := range d.ChildrenNamed("", "Parameter") {
			def.Parameters = append(def.Parameters, StoredQueryParameter{Name: p.Attr("name"), Type: p.Attr("type")})
		}
		expr := d.Child("", "QueryExpressionText")
		if expr == nil {
			return nil, ows.MissingParameter("QueryExpressionText", "StoredQueryDefinition '"+def.ID+"' without QueryExpressionText.")
		}
		def.Language = expr.Attr("language")
		def.ReturnTypes = QNames(expr.Attr("returnFeatureTypes"))
		def.Expression = expr
		req.Definitions = append(req.Definitions, def)
	}
	if len(req.Definitions) == 0 {
		return nil, ows.MissingParameter("StoredQueryDefinition", "CreateStoredQuery without definitions.")
	}
	return req, nil
}

func ParseDropStoredQuery(version ows.Version, root *xmlnode.Node) (*DropStoredQuery, error) {
	if !isWFS(root, "DropStoredQuery") {
		return nil, parseError("expected wfs:DropStoredQuery, got '%s'", root.Name.Local)
	}
	id := root.Attr("id")
	if id == "" {
		return nil, ows.MissingParameter("id", "DropStoredQuery without id.")
	}
	return &DropStoredQuery{Version: version, ID: id}, nil
}

func ParseDropStoredQueryKVP(version ows.Version, params KVP) (*DropStoredQuery, error) {
	id := params.Get("STOREDQUERY_ID", "ID")
	if id == "" {
		return nil, ows.MissingParameter("STOREDQUERY_ID", "DropStoredQuery without STOREDQUERY_ID.")
	}
	return &DropStoredQuery{Version: version, ID: id}, nil
}

func ParseDescribeStoredQueries(version ows.Version, root *xmlnode.Node) (*DescribeStoredQueries, error) {
	if !isWFS(root, "DescribeStoredQueries") {
		return nil, parseError("expected wfs:DescribeStoredQueries, got '%s'", root.Name.Local)
	}
	req := &DescribeStoredQueries{Version: version}
	for _, c := range root.ChildrenNamed("", "StoredQueryId") {
		req.IDs = append(req.IDs, c.Value())
	}
	return req, nil
}

func ParseDescribeStoredQueriesKVP(version ows.Version, params KVP) (*DescribeStoredQueries, error) {
	return &DescribeStoredQueries{Version: version, IDs: splitComma(params.Get("STOREDQUERY_ID"))}, nil
}

// ExpandQueryExpression 用参数替换 QueryExpressionText 中的 ${NAME}，再解析其中的 wfs:Query
func ExpandQueryExpression(expr *xmlnode.Node, params map[string]string) ([]Query, error) {
	if expr == nil {
		return nil, ows.New("Stored query without query expression.", ows.OperationProcessingFailed)
	}
	expanded := expr.Clone()
	substitute(expanded, params)

	var queries []Query
	for _, c := range expanded.ChildrenNamed("", "Query") {
		q := Query{TypeNames: QNames(c.Attr("typeNames"))}
		if len(q.TypeNames) == 0 {
			q.TypeNames = QNames(c.Attr("typeName"))
		}
		f, err := filterOf(c)
		if err != nil {
			return nil, err
		}
		q.Filter = f
		queries = append(queries, q)
	}
	return queries, nil
}

// substitute 参数名忽略大小写
func substitute(n *xmlnode.Node, params map[string]string) {
	replace := func(s string) string {
		if !strings.Contains(s, "${") {
			return s
		}
		for name, value := range params {
			s = replaceFold(s, "${"+name+"}", value)
		}
		return s
	}
	n.Text = replace(n.Text)
	for i := range n.Attrs {
		n.Attrs[i].Value = replace(n.Attrs[i].Value)
	}
	for _, c := range n.Children {
		substitute(c, params)
	}
}

func replaceFold(s, old, value string) string {
	upper := strings.ToUpper(s)
	target := strings.ToUpper(old)
	var sb strings.Builder
	for {
		i := strings.Index(upper, target)
		if i < 0 {
			sb.WriteString(s)
			return sb.String()
		}
		sb.WriteString(s[:i])
		sb.WriteString(value)
		s, upper = s[i+len(old):], upper[i+len(old):]
	}
}
