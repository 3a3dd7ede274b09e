package protocol

import (
	"strings"

	"github.com/spf13/cast"
	"github.com/xiaoxuxiansheng/gowfs/featurestore"
	"github.com/xiaoxuxiansheng/gowfs/filter"
	"github.com/xiaoxuxiansheng/gowfs/ows"
	"github.com/xiaoxuxiansheng/gowfs/xmlnode"
)

// ParseTransaction 解析 wfs:Transaction 文档
func ParseTransaction(version ows.Version, root *xmlnode.Node) (*Transaction, error) {
	if !isWFS(root, "Transaction") {
		return nil, parseError("expected wfs:Transaction, got '%s'", root.Name.Local)
	}

	tx := &Transaction{
		Version: version,
		Handle:  root.Attr("handle"),
		LockID:  root.Attr("lockId"),
	}
	release, err := parseReleaseAction(root.Attr("releaseAction"))
	if err != nil {
		return nil, err
	}
	tx.ReleaseAction = release

	for _, c := range root.Children {
		if c.Name.Local == "LockId" {
			tx.LockID = c.Value()
			continue
		}
		if c.Name.Space != WFSNamespace && c.Name.Space != WFS20Namespace {
			return nil, parseError("unexpected element '%s' in transaction", c.Name.Local)
		}

		var action Action
		switch c.Name.Local {
		case "Insert":
			action, err = parseInsert(version, c)
		case "Update":
			action, err = parseUpdate(c)
		case "Delete":
			action, err = parseDelete(c)
		case "Replace":
			if version != ows.Version200 {
				return nil, ows.New("Replace is only available in WFS 2.0.0.", ows.OperationNotSupported, "Replace")
			}
			action, err = parseReplace(c)
		case "Native":
			action = &Native{
				Handle:       c.Attr("handle"),
				VendorID:     c.Attr("vendorId"),
				SafeToIgnore: cast.ToBool(c.Attr("safeToIgnore")),
				Payload:      c,
			}
		default:
			return nil, parseError("unknown transaction action '%s'", c.Name.Local)
		}
		if err != nil {
			return nil, err
		}
		tx.Actions = append(tx.Actions, action)
	}
	return tx, nil
}

func parseReleaseAction(s string) (ReleaseAction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return ReleaseUnset, nil
	case "ALL":
		return ReleaseAll, nil
	case "SOME":
		return ReleaseSome, nil
	}
	return ReleaseUnset, ows.InvalidParameter("releaseAction", "Invalid releaseAction '"+s+"', expected ALL or SOME.")
}

func parseIDGen(s string) (*featurestore.IDGenMode, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	mode, err := featurestore.ParseIDGenMode(s)
	if err != nil {
		return nil, ows.InvalidParameter("idgen", err.Error())
	}
	return &mode, nil
}

func parseInsert(version ows.Version, n *xmlnode.Node) (*Insert, error) {
	insert := &Insert{
		Handle:      n.Attr("handle"),
		InputFormat: n.Attr("inputFormat"),
		SRSName:     n.Attr("srsName"),
		Features:    n.Children,
	}
	// idgen 只在 1.1.0 中定义
	if version == ows.Version110 {
		mode, err := parseIDGen(n.Attr("idgen"))
		if err != nil {
			return nil, err
		}
		insert.IDGen = mode
	}
	return insert, nil
}

func parseUpdate(n *xmlnode.Node) (*Update, error) {
	typeName := n.Attr("typeName")
	if typeName == "" {
		return nil, ows.MissingParameter("typeName", "Update without typeName.")
	}
	update := &Update{
		Handle:      n.Attr("handle"),
		TypeName:    QName(typeName),
		InputFormat: n.Attr("inputFormat"),
		SRSName:     n.Attr("srsName"),
	}

	for _, p := range n.ChildrenNamed("", "Property") {
		name := p.Child("", "ValueReference")
		if name == nil {
			name = p.Child("", "Name")
		}
		if name == nil || name.Value() == "" {
			return nil, ows.MissingParameter("Name", "Update property without name.")
		}
		prop := UpdateProperty{Path: name.Value(), Value: p.Child("", "Value")}
		if strings.EqualFold(name.Attr("action"), "remove") {
			prop.Value = nil
		}
		update.Properties = append(update.Properties, prop)
	}

	f, err := filterOf(n)
	if err != nil {
		return nil, err
	}
	update.Filter = f
	return update, nil
}

func parseDelete(n *xmlnode.Node) (*Delete, error) {
	typeName := n.Attr("typeName")
	if typeName == "" {
		return nil, ows.MissingParameter("typeName", "Delete without typeName.")
	}
	f, err := filterOf(n)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, ows.MissingParameter("Filter", "Delete without filter.")
	}
	return &Delete{Handle: n.Attr("handle"), TypeName: QName(typeName), Filter: f}, nil
}

func parseReplace(n *xmlnode.Node) (*Replace, error) {
	replace := &Replace{
		Handle:      n.Attr("handle"),
		InputFormat: n.Attr("inputFormat"),
		SRSName:     n.Attr("srsName"),
	}
	for _, c := range n.Children {
		if c.Name.Local == "Filter" && (c.Name.Space == filter.OGCNamespace || c.Name.Space == filter.FESNamespace) {
			continue
		}
		if replace.Feature != nil {
			return nil, parseError("Replace must contain exactly one feature")
		}
		replace.Feature = c
	}
	if replace.Feature == nil {
		return nil, ows.MissingParameter("Replace", "Replace without replacement feature.")
	}

	f, err := filterOf(n)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, ows.MissingParameter("Filter", "Replace without filter.")
	}
	replace.Filter = f
	return replace, nil
}

// ParseTransactionKVP KVP 编码的事务只支持删除
func ParseTransactionKVP(version ows.Version, params KVP) (*Transaction, error) {
	operation := params.Get("OPERATION", "ACTION")
	if !strings.EqualFold(operation, "Delete") {
		return nil, ows.New("Only Delete is supported in KVP transactions.", ows.OperationNotSupported, "OPERATION")
	}

	release, err := parseReleaseAction(params.Get("RELEASEACTION"))
	if err != nil {
		return nil, err
	}
	tx := &Transaction{
		Version:       version,
		LockID:        params.Get("LOCKID"),
		ReleaseAction: release,
	}

	queries, err := parseKVPQueries(params)
	if err != nil {
		return nil, err
	}
	for _, q := range queries {
		if q.Filter == nil {
			return nil, ows.MissingParameter("FILTER", "Delete without FILTER or FEATUREID.")
		}
		for _, typeName := range q.TypeNames {
			tx.Actions = append(tx.Actions, &Delete{TypeName: typeName, Filter: q.Filter})
		}
	}
	if len(tx.Actions) == 0 {
		return nil, ows.MissingParameter("TYPENAME", "Delete without TYPENAME.")
	}
	return tx, nil
}
