// Package apperr 定义业务错误分类，HTTP 层据此映射状态码。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 是错误大类。
type Kind int

const (
	Internal Kind = iota
	NotFound
	InsufficientStock
	Validation
	Conflict
	Unauthorized
	Forbidden
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case InsufficientStock:
		return "insufficient_stock"
	case Validation:
		return "validation"
	case Conflict:
		return "conflict"
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Error 携带分类与面向用户的消息。
type Error struct {
	kind Kind
	msg  string
}

func New(kind Kind, msg string) *Error { return &Error{kind: kind, msg: msg} }

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Kind() Kind     { return e.kind }

type kinded interface {
	Kind() Kind
}

// KindOf 沿错误链查找分类，未分类的错误一律视为 Internal。
func KindOf(err error) Kind {
	if err == nil {
		return Internal
	}
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return Internal
}

// Is 判断 err 是否属于 kind。
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus 将分类映射为 HTTP 状态码。
func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound:
		return http.StatusNotFound
	case InsufficientStock, Validation:
		return http.StatusBadRequest
	case Conflict:
		return http.StatusConflict
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
