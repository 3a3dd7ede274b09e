package ows

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Code OWS 异常码
type Code string

func (c Code) String() string {
	return string(c)
}

const (
	NoApplicableCode            Code = "NoApplicableCode"
	MissingParameterValue       Code = "MissingParameterValue"
	InvalidParameterValue       Code = "InvalidParameterValue"
	InvalidValue                Code = "InvalidValue"
	OperationNotSupported       Code = "OperationNotSupported"
	OperationProcessingFailed   Code = "OperationProcessingFailed"
	OperationParsingFailed      Code = "OperationParsingFailed"
	VersionNegotiationFailed    Code = "VersionNegotiationFailed"
	CannotLockAllFeatures       Code = "CannotLockAllFeatures"
	LockHasExpired              Code = "LockHasExpired"
	DuplicateStoredQueryIdValue Code = "DuplicateStoredQueryIdValue"
)

// Exception 对外暴露的 OWS 异常，对应 ExceptionReport 中的一个 Exception
type Exception struct {
	Code    Code
	Locator string
	Message string
}

func (e *Exception) Error() string {
	if e.Locator == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s(%s): %s", e.Code, e.Locator, e.Message)
}

// New 构造一个带堆栈的 OWS 异常，locator 可选
func New(message string, code Code, locator ...string) error {
	e := &Exception{Code: code, Message: message}
	if len(locator) > 0 {
		e.Locator = locator[0]
	}
	return errors.WithStack(e)
}

// Newf 格式化 message 的 New
func Newf(code Code, format string, args ...interface{}) error {
	return New(fmt.Sprintf(format, args...), code)
}

// Wrap 把任意错误转成指定异常码的 OWS 异常，保留原始错误信息
func Wrap(err error, code Code) error {
	if err == nil {
		return nil
	}
	e := &Exception{Code: code, Message: err.Error()}
	if origin, ok := As(err); ok {
		e.Message = origin.Message
		e.Locator = origin.Locator
	}
	return errors.WithStack(e)
}

// As 从错误链中取出 OWS 异常
func As(err error) (*Exception, bool) {
	var e *Exception
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf 返回错误对应的异常码，其他错误视为 NoApplicableCode
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	if p, ok := AsParameterError(err); ok {
		return p.Code()
	}
	return NoApplicableCode
}

// IsClientInput 是否为 ParameterError
func IsClientInput(err error) bool {
	_, ok := AsParameterError(err)
	return ok
}

// HTTPStatus OWS 1.1 中异常码与 http 状态码的对应关系
func HTTPStatus(code Code) int {
	switch code {
	case NoApplicableCode, OperationProcessingFailed:
		return http.StatusInternalServerError
	case OperationNotSupported:
		return http.StatusNotImplemented
	case CannotLockAllFeatures, LockHasExpired:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}
