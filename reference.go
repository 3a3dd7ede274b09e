package gowfs

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/xiaoxuxiansheng/gowfs/gml"
)

// ReferenceResolvingMode 插入要素时 xlink 引用的检查方式
type ReferenceResolvingMode int

const (
	// CheckAll 文档内引用与外部引用都必须可解析
	CheckAll ReferenceResolvingMode = iota
	// CheckInternally 只检查文档内引用
	CheckInternally
	// SkipAll 不检查
	SkipAll
)

func (r ReferenceResolvingMode) String() string {
	switch r {
	case CheckInternally:
		return "CHECK_INTERNALLY"
	case SkipAll:
		return "SKIP_ALL"
	default:
		return "CHECK_ALL"
	}
}

func ParseReferenceResolvingMode(s string) (ReferenceResolvingMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CHECK_ALL":
		return CheckAll, nil
	case "CHECK_INTERNALLY":
		return CheckInternally, nil
	case "SKIP_ALL":
		return SkipAll, nil
	}
	return CheckAll, errors.Errorf("unknown reference resolving mode '%s'", s)
}

// policy 转成读取 GML 时的检查策略，resolver 为写入的目标存储
func (r ReferenceResolvingMode) policy(resolver gml.Resolver) gml.ReferencePolicy {
	switch r {
	case CheckInternally:
		return gml.ReferencePolicy{Internal: true, Resolver: resolver}
	case SkipAll:
		return gml.ReferencePolicy{}
	default:
		return gml.ReferencePolicy{Internal: true, External: true, Resolver: resolver}
	}
}
