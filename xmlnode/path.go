package xmlnode

import "strings"

// Namespaces 路径表达式中前缀到命名空间 uri 的映射
type Namespaces map[string]string

type step struct {
	space string
	local string
	any   bool
}

// parseSteps 不认识的前缀按本地名匹配
func parseSteps(ns Namespaces, path string) ([]step, string) {
	path = strings.TrimPrefix(strings.TrimSpace(path), "./")
	var attr string
	if i := strings.LastIndex(path, "@"); i >= 0 {
		attr = path[i+1:]
		path = path[:i]
	}
	path = strings.Trim(path, "/")
	if path == "" || path == "." {
		return nil, attr
	}

	parts := strings.Split(path, "/")
	steps := make([]step, 0, len(parts))
	for _, p := range parts {
		if p == "*" {
			steps = append(steps, step{any: true})
			continue
		}
		s := step{local: p}
		if i := strings.Index(p, ":"); i >= 0 {
			s.space = ns[p[:i]]
			s.local = p[i+1:]
		}
		steps = append(steps, s)
	}
	return steps, attr
}

// Select 按路径选取所有元素，路径中不能包含属性
func (n *Node) Select(ns Namespaces, path string) []*Node {
	if n == nil {
		return nil
	}
	steps, _ := parseSteps(ns, path)
	current := []*Node{n}
	for _, s := range steps {
		var next []*Node
		for _, c := range current {
			for _, child := range c.Children {
				if s.any || (child.Name.Local == s.local && (s.space == "" || child.Name.Space == s.space)) {
					next = append(next, child)
				}
			}
		}
		current = next
		if len(current) == 0 {
			return nil
		}
	}
	return current
}

// SelectOne 第一个匹配的元素
func (n *Node) SelectOne(ns Namespaces, path string) *Node {
	if nodes := n.Select(ns, path); len(nodes) > 0 {
		return nodes[0]
	}
	return nil
}

// ValuesOf 取路径上所有节点的文本，路径以 @name 结尾时取属性值，空值被忽略
func (n *Node) ValuesOf(ns Namespaces, path string) []string {
	steps, attr := parseSteps(ns, path)
	var nodes []*Node
	if len(steps) == 0 {
		if n != nil {
			nodes = []*Node{n}
		}
	} else {
		stepPath := path
		if attr != "" {
			stepPath = path[:strings.LastIndex(path, "@")]
		}
		nodes = n.Select(ns, stepPath)
	}

	var out []string
	for _, node := range nodes {
		v := node.Value()
		if attr != "" {
			v = strings.TrimSpace(node.Attr(attr))
		}
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ValueOf 第一个非空值，不存在时返回 def
func (n *Node) ValueOf(ns Namespaces, path, def string) string {
	if vs := n.ValuesOf(ns, path); len(vs) > 0 {
		return vs[0]
	}
	return def
}
