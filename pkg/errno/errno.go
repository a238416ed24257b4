package errno

import (
	"errors"
	"net/http"
	"time"
)

// Errno defines the error code logic
type Errno struct {
	Code       int
	Message    string
	HTTPStatus int
}

func (e Errno) Error() string {
	return e.Message
}

// WithMessage 复制一份错误码并替换提示信息
func (e Errno) WithMessage(msg string) Errno {
	e.Message = msg
	return e
}

// Is 按错误码匹配, 使 errors.Is(err, errno.ErrConflict) 对 Detail 同样生效
func (e Errno) Is(target error) bool {
	var t Errno
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// Detail 携带定位信息的业务错误 (哪个名次/哪个用户失败)
// cause 只用于日志, 永远不会出现在响应里
type Detail struct {
	Errno
	Position *int
	FID      *int64
	Reason   string
	OpensAt  *time.Time
	Fields   map[string]interface{}
	cause    error
}

func (d *Detail) Error() string {
	if d.cause != nil {
		return d.Message + ": " + d.cause.Error()
	}
	return d.Message
}

func (d *Detail) Unwrap() error {
	return d.cause
}

func (d *Detail) Is(target error) bool {
	return d.Errno.Is(target)
}

// Data 返回可以直接放进响应体的结构化信息
func (d *Detail) Data() map[string]interface{} {
	data := map[string]interface{}{}
	if d.Position != nil {
		data["position"] = *d.Position
	}
	if d.FID != nil {
		data["fid"] = *d.FID
	}
	if d.Reason != "" {
		data["reason"] = d.Reason
	}
	if d.OpensAt != nil {
		data["opens_at"] = d.OpensAt.UTC().Format(time.RFC3339)
	}
	for k, v := range d.Fields {
		data[k] = v
	}
	return data
}

// New 基于错误码构造 Detail
func New(base Errno, msg string) *Detail {
	if msg != "" {
		base = base.WithMessage(msg)
	}
	return &Detail{Errno: base}
}

// Wrap 附带底层错误, 底层错误文本不会暴露给调用方
func Wrap(base Errno, msg string, cause error) *Detail {
	d := New(base, msg)
	d.cause = cause
	return d
}

func (d *Detail) AtPosition(position int) *Detail {
	d.Position = &position
	return d
}

func (d *Detail) ForFID(fid int64) *Detail {
	d.FID = &fid
	return d
}

func (d *Detail) WithReason(reason string) *Detail {
	d.Reason = reason
	return d
}

func (d *Detail) WithOpensAt(t time.Time) *Detail {
	d.OpensAt = &t
	return d
}

func (d *Detail) WithField(key string, value interface{}) *Detail {
	if d.Fields == nil {
		d.Fields = map[string]interface{}{}
	}
	d.Fields[key] = value
	return d
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	var detail *Detail
	if errors.As(err, &detail) {
		return detail.Code, detail.Message
	}

	switch typed := err.(type) {
	case *Errno:
		return typed.Code, typed.Message
	case Errno:
		return typed.Code, typed.Message
	default:
		// 未知错误不透出原始文本 (可能包含 SQL / RPC 细节)
		return InternalServerError.Code, InternalServerError.Message
	}
}

// Status 返回错误对应的 HTTP 状态码
func Status(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var detail *Detail
	if errors.As(err, &detail) && detail.HTTPStatus != 0 {
		return detail.HTTPStatus
	}
	var e Errno
	if errors.As(err, &e) && e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}

// DataOf 提取错误附带的结构化数据
func DataOf(err error) map[string]interface{} {
	var detail *Detail
	if errors.As(err, &detail) {
		return detail.Data()
	}
	return map[string]interface{}{}
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success", HTTPStatus: http.StatusOK}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error", HTTPStatus: http.StatusInternalServerError}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct", HTTPStatus: http.StatusBadRequest}
	ErrTokenInvalid     = Errno{Code: 10003, Message: "Token invalid", HTTPStatus: http.StatusUnauthorized}
	ErrDatabase         = Errno{Code: 10004, Message: "Database error", HTTPStatus: http.StatusInternalServerError}
	ErrForbidden        = Errno{Code: 10005, Message: "Admin permission required", HTTPStatus: http.StatusForbidden}
)

// Settlement Errors (30000+)
var (
	ErrValidation      = Errno{Code: 30001, Message: "Validation failed", HTTPStatus: http.StatusBadRequest}
	ErrConflict        = Errno{Code: 30002, Message: "Operation already completed by another actor", HTTPStatus: http.StatusConflict}
	ErrCorruptionGuard = Errno{Code: 30003, Message: "Settlement aborted to prevent data corruption", HTTPStatus: http.StatusInternalServerError}
	ErrUpstream        = Errno{Code: 30004, Message: "Upstream service failure", HTTPStatus: http.StatusBadGateway}
	ErrIneligible      = Errno{Code: 30005, Message: "Not eligible", HTTPStatus: http.StatusForbidden}
	ErrNotFound        = Errno{Code: 30006, Message: "Resource not found", HTTPStatus: http.StatusNotFound}
)
