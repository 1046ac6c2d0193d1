package orientdb

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorCode 错误码
type ErrorCode string

const (
	ErrCodeConfig       ErrorCode = "CONFIG"
	ErrCodeTransport    ErrorCode = "TRANSPORT"
	ErrCodeIO           ErrorCode = "IO"
	ErrCodeProtocol     ErrorCode = "PROTOCOL"
	ErrCodeBinding      ErrorCode = "BINDING"
	ErrCodeInvalidParam ErrorCode = "INVALID_PARAM"
	ErrCodeNotSupported ErrorCode = "NOT_SUPPORTED"
	ErrCodeClosed       ErrorCode = "CLOSED"
)

var (
	// ErrMissingDatabase 未配置数据库名
	ErrMissingDatabase = errors.New("orientdb: database name is required")
	// ErrMissingAction 调用 REST 接口时未指定 action
	ErrMissingAction = errors.New("orientdb: action is required")
	// ErrEmptyResponse 服务端没有返回任何内容
	ErrEmptyResponse = errors.New("orientdb: empty response")
	// ErrUnknownParamType 未知的参数类型
	ErrUnknownParamType = errors.New("orientdb: unknown parameter type")
	// ErrClosed 连接已关闭
	ErrClosed = errors.New("orientdb: connection is closed")
)

// Error 带错误码和堆栈的错误
type Error struct {
	Code    ErrorCode
	Message string
	Stack   []string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *Error) Unwrap() error {
	return e.Cause
}

// StackTrace 返回调用堆栈
func (e *Error) StackTrace() []string {
	return e.Stack
}

// NewError 创建错误
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStackTrace(),
		Cause:   cause,
	}
}

// WrapError 包装错误，已经是 *Error 时保留原有堆栈
func WrapError(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}

	var inner *Error
	if errors.As(err, &inner) {
		return &Error{
			Code:    code,
			Message: message,
			Stack:   inner.Stack,
			Cause:   err,
		}
	}

	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStackTrace(),
		Cause:   err,
	}
}

func captureStackTrace() []string {
	pc := make([]uintptr, 32)
	n := runtime.Callers(3, pc)
	if n == 0 {
		return []string{}
	}

	frames := runtime.CallersFrames(pc[:n])
	stack := make([]string, 0, n)
	for {
		frame, more := frames.Next()
		fn := frame.Function
		file := frame.File
		if idx := strings.LastIndex(file, "/"); idx != -1 {
			file = file[idx+1:]
		}
		if idx := strings.LastIndex(fn, "/"); idx != -1 {
			fn = fn[idx+1:]
		}
		stack = append(stack, fmt.Sprintf("  at %s (%s:%d)", fn, file, frame.Line))
		if !more {
			break
		}
	}
	return stack
}

// IsErrorCode 检查错误链中最外层 *Error 的错误码
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// GetErrorCode 获取错误码，不是 *Error 时返回空串
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HTTPError 非预期的 HTTP 状态码
type HTTPError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("HTTP %d %s %s: %s", e.StatusCode, e.Method, e.URL, body)
}

func configError(message string, cause error) *Error {
	return NewError(ErrCodeConfig, message, cause)
}

func bindingError(format string, args ...interface{}) *Error {
	return NewError(ErrCodeBinding, fmt.Sprintf(format, args...), ErrUnknownParamType)
}

func protocolError(message string, body []byte) *Error {
	snippet := string(body)
	if len(snippet) > 256 {
		snippet = snippet[:256] + "..."
	}
	return NewError(ErrCodeProtocol, message, fmt.Errorf("body: %q", snippet))
}
