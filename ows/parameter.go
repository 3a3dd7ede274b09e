package ows

import (
	"fmt"

	"github.com/pkg/errors"
)

// ParameterError 请求参数缺失或取值非法。
// 与直接构造的 InvalidParameterValue 异常不同，事务处理对它有单独的分支：1.0.0 下输出 FAILED 响应而不是异常报告
type ParameterError struct {
	Missing bool
	Name    string
	Message string
}

func (p *ParameterError) Error() string {
	if p.Missing {
		return fmt.Sprintf("missing parameter '%s': %s", p.Name, p.Message)
	}
	return fmt.Sprintf("invalid value for parameter '%s': %s", p.Name, p.Message)
}

// Code 对应的异常码
func (p *ParameterError) Code() Code {
	if p.Missing {
		return MissingParameterValue
	}
	return InvalidParameterValue
}

// MissingParameter 缺少参数
func MissingParameter(name, message string) error {
	return errors.WithStack(&ParameterError{Missing: true, Name: name, Message: message})
}

// InvalidParameter 参数取值非法
func InvalidParameter(name, message string) error {
	return errors.WithStack(&ParameterError{Name: name, Message: message})
}

// AsParameterError 从错误链中取出 ParameterError
func AsParameterError(err error) (*ParameterError, bool) {
	var p *ParameterError
	if errors.As(err, &p) {
		return p, true
	}
	return nil, false
}

// FromParameterError 转成对外的 OWS 异常
func FromParameterError(p *ParameterError, prefix string) error {
	return New(prefix+p.Message, p.Code(), p.Name)
}
