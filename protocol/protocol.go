package protocol

import (
	"encoding/xml"
	"strings"

	"github.com/xiaoxuxiansheng/gowfs/featurestore"
	"github.com/xiaoxuxiansheng/gowfs/filter"
	"github.com/xiaoxuxiansheng/gowfs/ows"
	"github.com/xiaoxuxiansheng/gowfs/xmlnode"
)

const (
	WFSNamespace   = "http://www.opengis.net/wfs"
	WFS20Namespace = "http://www.opengis.net/wfs/2.0"
	XSINamespace   = "http://www.w3.org/2001/XMLSchema-instance"
)

// 响应文档的 xsi:schemaLocation
const (
	WFS100TransactionURL = "http://schemas.opengis.net/wfs/1.0.0/WFS-transaction.xsd"
	WFS110SchemaURL      = "http://schemas.opengis.net/wfs/1.1.0/wfs.xsd"
	WFS200SchemaURL      = "http://schemas.opengis.net/wfs/2.0/wfs.xsd"
)

// SchemaLocation 版本对应的 "命名空间 schema地址" 对
func SchemaLocation(version ows.Version) string {
	switch version {
	case ows.Version100:
		return WFSNamespace + " " + WFS100TransactionURL
	case ows.Version110:
		return WFSNamespace + " " + WFS110SchemaURL
	default:
		return WFS20Namespace + " " + WFS200SchemaURL
	}
}

// ReleaseAction 事务结束后锁的处理方式，零值表示未指定
type ReleaseAction string

const (
	ReleaseUnset ReleaseAction = ""
	ReleaseAll   ReleaseAction = "ALL"
	ReleaseSome  ReleaseAction = "SOME"
)

// Action 事务中的一个动作：*Insert, *Update, *Delete, *Replace, *Native
type Action interface {
	ActionHandle() string
}

// Transaction 一次事务请求
type Transaction struct {
	Version       ows.Version
	Handle        string
	LockID        string
	ReleaseAction ReleaseAction
	Actions       []Action
}

type Insert struct {
	Handle      string
	InputFormat string
	SRSName     string
	// nil 表示未指定
	IDGen    *featurestore.IDGenMode
	Features []*xmlnode.Node
}

func (i *Insert) ActionHandle() string { return i.Handle }

// UpdateProperty Path 为属性名或者 name[N]，Value 为 nil 时删除属性
type UpdateProperty struct {
	Path  string
	Value *xmlnode.Node
}

type Update struct {
	Handle      string
	TypeName    xml.Name
	InputFormat string
	SRSName     string
	Properties  []UpdateProperty
	Filter      filter.Filter
}

func (u *Update) ActionHandle() string { return u.Handle }

type Delete struct {
	Handle   string
	TypeName xml.Name
	Filter   filter.Filter
}

func (d *Delete) ActionHandle() string { return d.Handle }

type Replace struct {
	Handle      string
	InputFormat string
	SRSName     string
	Feature     *xmlnode.Node
	Filter      filter.Filter
	IDGen       *featurestore.IDGenMode
}

func (r *Replace) ActionHandle() string { return r.Handle }

type Native struct {
	Handle       string
	VendorID     string
	SafeToIgnore bool
	Payload      *xmlnode.Node
}

func (n *Native) ActionHandle() string { return n.Handle }

// Query LockFeature 中的查询，StoredQueryID 不为空时由存储查询展开
type Query struct {
	TypeNames     []xml.Name
	Filter        filter.Filter
	StoredQueryID string
	Parameters    map[string]string
}

// LockFeature 加锁或者续期请求
type LockFeature struct {
	Version        ows.Version
	Handle         string
	ExistingLockID string
	// 秒，nil 表示未指定
	ExpirySeconds *int
	// nil 表示未指定
	LockAll *bool
	Queries []Query
}

// CreateStoredQuery 新增存储查询
type CreateStoredQuery struct {
	Version     ows.Version
	Definitions []*StoredQueryDefinition
}

// StoredQueryDefinition 存储查询定义，Expressions 为 wfs:QueryExpressionText 的内容
type StoredQueryDefinition struct {
	ID          string
	Title       string
	Abstract    string
	Parameters  []StoredQueryParameter
	Language    string
	ReturnTypes []xml.Name
	Expression  *xmlnode.Node
}

type StoredQueryParameter struct {
	Name string
	Type string
}

type DropStoredQuery struct {
	Version ows.Version
	ID      string
}

type DescribeStoredQueries struct {
	Version ows.Version
	IDs     []string
}

type ListStoredQueries struct {
	Version ows.Version
}

// QName 去掉前缀后的限定名，前缀无法在当前上下文中解析
func QName(s string) xml.Name {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	return xml.Name{Local: s}
}

// QNames 逗号或空白分隔的限定名列表
func QNames(s string) []xml.Name {
	var out []xml.Name
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		if part = strings.Trim(part, "()"); part != "" {
			out = append(out, QName(part))
		}
	}
	return out
}

func isWFS(n *xmlnode.Node, local string) bool {
	return n != nil && n.Name.Local == local && (n.Name.Space == WFSNamespace || n.Name.Space == WFS20Namespace)
}

func parseError(format string, args ...interface{}) error {
	return ows.Newf(ows.OperationParsingFailed, format, args...)
}

// filterOf 元素下的 ogc:Filter / fes:Filter，没有时返回 nil
func filterOf(n *xmlnode.Node) (filter.Filter, error) {
	for _, c := range n.Children {
		if c.Name.Local != "Filter" || (c.Name.Space != filter.OGCNamespace && c.Name.Space != filter.FESNamespace) {
			continue
		}
		f, err := filter.Parse(c)
		if err != nil {
			return nil, ows.New(err.Error(), ows.InvalidParameterValue, "Filter")
		}
		return f, nil
	}
	return nil, nil
}
