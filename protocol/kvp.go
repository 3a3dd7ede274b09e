package protocol

import (
	"net/url"
	"strings"

	"github.com/xiaoxuxiansheng/gowfs/filter"
	"github.com/xiaoxuxiansheng/gowfs/ows"
	"github.com/xiaoxuxiansheng/gowfs/xmlnode"
)

// KVP 键统一为大写的请求参数
type KVP map[string]string

// NewKVP 同名参数只保留第一个
func NewKVP(values url.Values) KVP {
	kvp := make(KVP, len(values))
	for k, vs := range values {
		key := strings.ToUpper(k)
		if _, ok := kvp[key]; ok || len(vs) == 0 {
			continue
		}
		kvp[key] = vs[0]
	}
	return kvp
}

// Get 返回第一个非空的参数值
func (k KVP) Get(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(k[strings.ToUpper(key)]); v != "" {
			return v
		}
	}
	return ""
}

// splitList 拆分 (a)(b) 形式的参数列表，没有括号时整体作为一项
func splitList(s string) []string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "(") {
		if s == "" {
			return nil
		}
		return []string{s}
	}

	var out []string
	depth, start := 0, 0
	for i, ch := range s {
		switch ch {
		case '(':
			if depth == 0 {
				start = i + 1
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
			}
		}
	}
	return out
}

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseKVPQueries TYPENAME(S) 与 FILTER / FEATUREID / RESOURCEID / STOREDQUERY_ID 的组合
func parseKVPQueries(params KVP) ([]Query, error) {
	if id := params.Get("STOREDQUERY_ID"); id != "" {
		q := Query{StoredQueryID: id, Parameters: make(map[string]string)}
		for k, v := range params {
			q.Parameters[k] = v
		}
		return []Query{q}, nil
	}

	typeNames := splitList(params.Get("TYPENAMES", "TYPENAME"))
	if ids := params.Get("RESOURCEID", "FEATUREID"); ids != "" {
		var all []string
		for _, group := range splitList(ids) {
			all = append(all, splitComma(group)...)
		}
		q := Query{Filter: &filter.IDFilter{IDs: all}}
		for _, t := range typeNames {
			q.TypeNames = append(q.TypeNames, QNames(t)...)
		}
		return []Query{q}, nil
	}

	filters := splitList(params.Get("FILTER"))
	if len(filters) > 0 && len(filters) != len(typeNames) {
		return nil, ows.InvalidParameter("FILTER", "The number of filters must match the number of type names.")
	}

	queries := make([]Query, 0, len(typeNames))
	for i, t := range typeNames {
		q := Query{TypeNames: QNames(t)}
		if len(filters) > 0 {
			n, err := xmlnode.ParseString(filters[i])
			if err != nil {
				return nil, ows.InvalidParameter("FILTER", err.Error())
			}
			f, err := filter.Parse(n)
			if err != nil {
				return nil, ows.InvalidParameter("FILTER", err.Error())
			}
			q.Filter = f
		}
		queries = append(queries, q)
	}
	return queries, nil
}
