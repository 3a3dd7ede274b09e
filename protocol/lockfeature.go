package protocol

import (
	"strings"

	"github.com/spf13/cast"
	"github.com/xiaoxuxiansheng/gowfs/ows"
	"github.com/xiaoxuxiansheng/gowfs/xmlnode"
)

// expirySeconds 1.x 的 expiry 单位为分钟，2.0.0 为秒
func expirySeconds(version ows.Version, s string) (*int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	v, err := cast.ToIntE(strings.TrimSpace(s))
	if err != nil || v < 0 {
		return nil, ows.InvalidParameter("expiry", "Invalid expiry '"+s+"'.")
	}
	if version != ows.Version200 {
		v *= 60
	}
	return &v, nil
}

func lockAll(s string) (*bool, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return nil, nil
	case "ALL":
		v := true
		return &v, nil
	case "SOME":
		v := false
		return &v, nil
	}
	return nil, ows.InvalidParameter("lockAction", "Invalid lockAction '"+s+"', expected ALL or SOME.")
}

// ParseLockFeature 解析 wfs:LockFeature 文档
func ParseLockFeature(version ows.Version, root *xmlnode.Node) (*LockFeature, error) {
	if !isWFS(root, "LockFeature") {
		return nil, parseError("expected wfs:LockFeature, got '%s'", root.Name.Local)
	}

	req := &LockFeature{
		Version:        version,
		Handle:         root.Attr("handle"),
		ExistingLockID: root.Attr("lockId"),
	}
	var err error
	if req.ExpirySeconds, err = expirySeconds(version, root.Attr("expiry")); err != nil {
		return nil, err
	}
	if req.LockAll, err = lockAll(root.Attr("lockAction")); err != nil {
		return nil, err
	}

	for _, c := range root.Children {
		switch c.Name.Local {
		case "Lock", "Query":
			names := c.Attr("typeName")
			if names == "" {
				names = c.Attr("typeNames")
			}
			q := Query{TypeNames: QNames(names)}
			if len(q.TypeNames) == 0 {
				return nil, ows.MissingParameter("typeName", "Lock without typeName.")
			}
			if q.Filter, err = filterOf(c); err != nil {
				return nil, err
			}
			req.Queries = append(req.Queries, q)
		case "StoredQuery":
			q := Query{StoredQueryID: c.Attr("id"), Parameters: make(map[string]string)}
			for _, p := range c.ChildrenNamed("", "Parameter") {
				q.Parameters[strings.ToUpper(p.Attr("name"))] = p.Value()
			}
			req.Queries = append(req.Queries, q)
		default:
			return nil, parseError("unexpected element '%s' in LockFeature", c.Name.Local)
		}
	}
	if req.ExistingLockID == "" && len(req.Queries) == 0 {
		return nil, ows.MissingParameter("Query", "LockFeature without queries.")
	}
	return req, nil
}

// ParseLockFeatureKVP 解析 KVP 编码的 LockFeature
func ParseLockFeatureKVP(version ows.Version, params KVP) (*LockFeature, error) {
	req := &LockFeature{
		Version:        version,
		ExistingLockID: params.Get("LOCKID"),
	}
	var err error
	if req.ExpirySeconds, err = expirySeconds(version, params.Get("EXPIRY")); err != nil {
		return nil, err
	}
	if req.LockAll, err = lockAll(params.Get("LOCKACTION")); err != nil {
		return nil, err
	}
	if req.ExistingLockID != "" {
		return req, nil
	}

	if req.Queries, err = parseKVPQueries(params); err != nil {
		return nil, err
	}
	if len(req.Queries) == 0 {
		return nil, ows.MissingParameter("TYPENAME", "LockFeature without TYPENAME, FEATUREID or STOREDQUERY_ID.")
	}
	return req, nil
}
