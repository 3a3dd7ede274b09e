package xmlnode

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const xmlnsPrefix = "xmlns"

// Attr 已解析命名空间的属性，Prefix 保留原始前缀用于回写
type Attr struct {
	Name   xml.Name
	Prefix string
	Value  string
}

// Node 通用的 XML 元素树，Name.Space 为命名空间 uri
type Node struct {
	Name     xml.Name
	Prefix   string
	Attrs    []Attr
	Text     string
	Children []*Node
}

// NewElement 构造元素节点
func NewElement(space, prefix, local string) *Node {
	return &Node{Name: xml.Name{Space: space, Local: local}, Prefix: prefix}
}

// Parse 读取一个完整的 XML 文档，返回根元素
func Parse(r io.Reader) (*Node, error) {
	d := xml.NewDecoder(r)
	scopes := []map[string]string{{"xml": "http://www.w3.org/XML/1998/namespace"}}
	var stack []*Node
	var root *Node

	for {
		tok, err := d.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "parse xml")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			scope := make(map[string]string)
			for _, a := range t.Attr {
				switch {
				case a.Name.Space == "" && a.Name.Local == xmlnsPrefix:
					scope[""] = a.Value
				case a.Name.Space == xmlnsPrefix:
					scope[a.Name.Local] = a.Value
				}
			}
			scopes = append(scopes, scope)

			node := &Node{Prefix: t.Name.Space, Name: xml.Name{Local: t.Name.Local}}
			space, ok := resolve(scopes, t.Name.Space)
			if !ok {
				return nil, errors.Errorf("parse xml: undeclared prefix '%s'", t.Name.Space)
			}
			node.Name.Space = space
			for _, a := range t.Attr {
				attr := Attr{Name: xml.Name{Local: a.Name.Local}, Prefix: a.Name.Space, Value: a.Value}
				if a.Name.Space != "" && a.Name.Space != xmlnsPrefix {
					// 属性没有默认命名空间
					attr.Name.Space, _ = resolve(scopes, a.Name.Space)
				}
				node.Attrs = append(node.Attrs, attr)
			}

			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			} else if root == nil {
				root = node
			}
			stack = append(stack, node)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, errors.New("parse xml: unbalanced end element")
			}
			stack = stack[:len(stack)-1]
			scopes = scopes[:len(scopes)-1]

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}

	if root == nil {
		return nil, errors.New("parse xml: document has no root element")
	}
	if len(stack) != 0 {
		return nil, errors.New("parse xml: unexpected end of document")
	}
	return root, nil
}

// ParseString Parse 的字符串版本
func ParseString(s string) (*Node, error) {
	return Parse(strings.NewReader(s))
}

func resolve(scopes []map[string]string, prefix string) (string, bool) {
	for i := len(scopes) - 1; i >= 0; i-- {
		if uri, ok := scopes[i][prefix]; ok {
			return uri, true
		}
	}
	// 无默认命名空间
	return "", prefix == ""
}

// Is 判断元素名
func (n *Node) Is(space, local string) bool {
	return n != nil && n.Name.Space == space && n.Name.Local == local
}

// Value 去除首尾空白后的文本
func (n *Node) Value() string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.Text)
}

// Attr 按本地名取属性，忽略命名空间
func (n *Node) Attr(local string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attrs {
		if a.Name.Local == local && a.Prefix != xmlnsPrefix {
			return a.Value
		}
	}
	return ""
}

// AttrNS 按命名空间与本地名取属性
func (n *Node) AttrNS(space, local string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attrs {
		if a.Name.Space == space && a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// SetAttr 设置无命名空间属性
func (n *Node) SetAttr(local, value string) {
	for i, a := range n.Attrs {
		if a.Name.Local == local && a.Name.Space == "" && a.Prefix == "" {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: xml.Name{Local: local}, Value: value})
}

// Child 第一个匹配的子元素，space 为空时只比较本地名
func (n *Node) Child(space, local string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name.Local == local && (space == "" || c.Name.Space == space) {
			return c
		}
	}
	return nil
}

// ChildrenNamed 所有匹配的子元素
func (n *Node) ChildrenNamed(space, local string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Name.Local == local && (space == "" || c.Name.Space == space) {
			out = append(out, c)
		}
	}
	return out
}

// FirstElement 第一个子元素
func (n *Node) FirstElement() *Node {
	if n == nil || len(n.Children) == 0 {
		return nil
	}
	return n.Children[0]
}

// AddChild 追加子元素并返回它
func (n *Node) AddChild(c *Node) *Node {
	n.Children = append(n.Children, c)
	return c
}

// Clone 深拷贝
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{Name: n.Name, Prefix: n.Prefix, Text: n.Text}
	out.Attrs = append(out.Attrs, n.Attrs...)
	for _, c := range n.Children {
		out.Children = append(out.Children, c.Clone())
	}
	return out
}

// String 序列化，根元素上补齐子树中用到的命名空间声明
func (n *Node) String() string {
	var buf bytes.Buffer
	_ = n.Encode(&buf)
	return buf.String()
}

// Encode 序列化到 w
func (n *Node) Encode(w io.Writer) error {
	if n == nil {
		return errors.New("write nil node")
	}
	declared := make(map[string]bool)
	for _, a := range n.Attrs {
		switch {
		case a.Prefix == "" && a.Name.Local == xmlnsPrefix:
			declared[""] = true
		case a.Prefix == xmlnsPrefix:
			declared[a.Name.Local] = true
		}
	}
	used := make(map[string]string)
	n.collectNamespaces(used)

	var extra []Attr
	for prefix, uri := range used {
		if declared[prefix] || prefix == "xml" {
			continue
		}
		if prefix == "" {
			if uri == "" {
				continue
			}
			extra = append(extra, Attr{Name: xml.Name{Local: xmlnsPrefix}, Value: uri})
			continue
		}
		extra = append(extra, Attr{Name: xml.Name{Local: prefix}, Prefix: xmlnsPrefix, Value: uri})
	}
	sortAttrs(extra)

	var sb strings.Builder
	n.write(&sb, extra)
	_, err := io.WriteString(w, sb.String())
	return err
}

func (n *Node) collectNamespaces(used map[string]string) {
	if _, ok := used[n.Prefix]; !ok {
		used[n.Prefix] = n.Name.Space
	}
	for _, a := range n.Attrs {
		if a.Prefix == "" || a.Prefix == xmlnsPrefix {
			continue
		}
		if _, ok := used[a.Prefix]; !ok {
			used[a.Prefix] = a.Name.Space
		}
	}
	for _, c := range n.Children {
		c.collectNamespaces(used)
	}
}

func sortAttrs(attrs []Attr) {
	for i := 1; i < len(attrs); i++ {
		for j := i; j > 0 && attrs[j].Name.Local < attrs[j-1].Name.Local; j-- {
			attrs[j], attrs[j-1] = attrs[j-1], attrs[j]
		}
	}
}

func qualified(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}

func (n *Node) write(sb *strings.Builder, extra []Attr) {
	name := qualified(n.Prefix, n.Name.Local)
	sb.WriteByte('<')
	sb.WriteString(name)
	for _, a := range append(extra, n.Attrs...) {
		sb.WriteByte(' ')
		sb.WriteString(qualified(a.Prefix, a.Name.Local))
		sb.WriteString(`="`)
		_ = xml.EscapeText(sb, []byte(a.Value))
		sb.WriteByte('"')
	}
	text := n.Text
	if len(n.Children) > 0 {
		text = strings.TrimSpace(text)
	}
	if text == "" && len(n.Children) == 0 {
		sb.WriteString("/>")
		return
	}
	sb.WriteByte('>')
	_ = xml.EscapeText(sb, []byte(text))
	for _, c := range n.Children {
		c.write(sb, nil)
	}
	sb.WriteString("</")
	sb.WriteString(name)
	sb.WriteByte('>')
}
