package core

import (
	"errors"
	"fmt"
)

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 支持错误检查函数（IsXXX），对 fmt.Errorf("%w") 包装后的错误同样有效
//
// 使用场景：
//   - 模型构建：EMPTY_CORPUS, INVALID_INPUT, DIMENSION_MISMATCH
//   - 推荐查询：NOT_FOUND, NOT_READY
//   - 模型持久化：MODEL_NOT_FOUND, IO_ERROR
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "EMPTY_CORPUS"）
	Message string // 错误消息
	Module  string // 模块名称（如 "content", "collaborative", "modelstore"）
	Cause   error  // 底层错误（可选）
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is 按 Module + Code 匹配，使 errors.Is(err, ErrNotFound) 对派生错误也成立。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return t.Module == "" || t.Module == e.Module
}

// IsDomainError 检查错误链中是否存在 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取错误链中的第一个 DomainError，如果不存在则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// 错误代码常量
const (
	ErrorCodeNotFound          = "NOT_FOUND"          // id 不在当前发布的模型中
	ErrorCodeNotSupported      = "NOT_SUPPORTED"      // 操作不支持
	ErrorCodeInvalidInput      = "INVALID_INPUT"      // 输入无效
	ErrorCodeEmptyCorpus       = "EMPTY_CORPUS"       // 训练数据为空
	ErrorCodeNotReady          = "NOT_READY"          // 尚无可用模型
	ErrorCodeDimensionMismatch = "DIMENSION_MISMATCH" // 矩阵形状不一致
	ErrorCodeModelNotFound     = "MODEL_NOT_FOUND"    // 没有已持久化的模型
	ErrorCodeIO                = "IO_ERROR"           // 存储读写失败
)

// 模块名称常量
const (
	ModuleStore         = "store"
	ModuleContent       = "content"
	ModuleCollaborative = "collaborative"
	ModuleRecommender   = "recommender"
	ModuleModelStore    = "modelstore"
	ModuleSource        = "source"
)

// 通用错误（Module 为空，匹配任意模块的同 Code 错误）
var (
	ErrEmptyCorpus       = NewDomainError("", ErrorCodeEmptyCorpus, "empty corpus")
	ErrNotFound          = NewDomainError("", ErrorCodeNotFound, "not found")
	ErrModelNotReady     = NewDomainError("", ErrorCodeNotReady, "model not ready")
	ErrDimensionMismatch = NewDomainError("", ErrorCodeDimensionMismatch, "dimension mismatch")
	ErrModelNotFound     = NewDomainError("", ErrorCodeModelNotFound, "model not found")
	ErrIO                = NewDomainError("", ErrorCodeIO, "io error")
	ErrInvalidInput      = NewDomainError("", ErrorCodeInvalidInput, "invalid input")
)

// NotFoundError 构造 id 不存在的错误，例如 NotFoundError(ModuleContent, "item", "b1")。
func NotFoundError(module, kind, id string) error {
	return NewDomainError(module, ErrorCodeNotFound, fmt.Sprintf("%s: %s %q not found", module, kind, id))
}

// EmptyCorpusError 构造训练数据为空的错误。
func EmptyCorpusError(module string) error {
	return NewDomainError(module, ErrorCodeEmptyCorpus, module+": build with zero records")
}

// DimensionMismatchError 构造矩阵形状不一致的错误。
func DimensionMismatchError(module, format string, args ...any) error {
	return NewDomainError(module, ErrorCodeDimensionMismatch, module+": "+fmt.Sprintf(format, args...))
}

// InvalidInputError 构造输入无效的错误。
func InvalidInputError(module, format string, args ...any) error {
	return NewDomainError(module, ErrorCodeInvalidInput, module+": "+fmt.Sprintf(format, args...))
}

// NewIOError 包装存储层错误，保留 cause 以便 errors.Is / errors.As。
func NewIOError(module, op string, cause error) error {
	return &DomainError{
		Module:  module,
		Code:    ErrorCodeIO,
		Message: module + ": " + op,
		Cause:   cause,
	}
}

func hasCode(err error, code string) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsNotSupported 检查错误是否为 NOT_SUPPORTED
func IsNotSupported(err error) bool { return hasCode(err, ErrorCodeNotSupported) }

// IsInvalidInput 检查错误是否为 INVALID_INPUT
func IsInvalidInput(err error) bool { return hasCode(err, ErrorCodeInvalidInput) }

// IsEmptyCorpus 检查错误是否为 EMPTY_CORPUS
func IsEmptyCorpus(err error) bool { return hasCode(err, ErrorCodeEmptyCorpus) }

// IsModelNotReady 检查错误是否为 NOT_READY
func IsModelNotReady(err error) bool { return hasCode(err, ErrorCodeNotReady) }

// IsDimensionMismatch 检查错误是否为 DIMENSION_MISMATCH
func IsDimensionMismatch(err error) bool { return hasCode(err, ErrorCodeDimensionMismatch) }

// IsModelNotFound 检查错误是否为 MODEL_NOT_FOUND
func IsModelNotFound(err error) bool { return hasCode(err, ErrorCodeModelNotFound) }

// IsIOError 检查错误是否为 IO_ERROR
func IsIOError(err error) bool { return hasCode(err, ErrorCodeIO) }
