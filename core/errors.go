package core

import "errors"

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 可包装底层错误（Err），支持 errors.Is / errors.As
//
// 使用场景：
//   - Store 错误：NOT_FOUND, UNAVAILABLE
//   - Cache 错误：CACHE_MISS
//   - Config 错误：INVALID_CONFIG, UNKNOWN_PROFILE
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "INVALID_CONFIG"）
	Message string // 错误消息
	Module  string // 模块名称（如 "store", "cache", "config"）
	Err     error  // 底层错误（可选）
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is 按 Module + Code 匹配，使包装后的哨兵错误仍可被 errors.Is 识别。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Module == t.Module && e.Code == t.Code
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// WrapDomainError 创建包装底层错误的领域错误
func WrapDomainError(module, code, message string, err error) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// GetDomainError 获取错误链上的 DomainError，如果不存在则返回 nil
func GetDomainError(err error) *DomainError {
	var de *DomainError
	if errors.As(err, &de) {
		return de
	}
	return nil
}

// 错误代码常量
const (
	ErrorCodeNotFound       = "NOT_FOUND"       // 资源不存在
	ErrorCodeUnavailable    = "UNAVAILABLE"     // 存储/索引不可用
	ErrorCodeInvalidInput   = "INVALID_INPUT"   // 输入无效
	ErrorCodeCacheMiss      = "CACHE_MISS"      // 缓存未命中
	ErrorCodeInvalidConfig  = "INVALID_CONFIG"  // 配置错误
	ErrorCodeUnknownProfile = "UNKNOWN_PROFILE" // 未知的 profile
)

// 模块名称常量
const (
	ModuleStore  = "store"
	ModuleCache  = "cache"
	ModuleVector = "vector"
	ModuleConfig = "config"
)

var (
	// ErrNotFound 表示记录不存在
	ErrNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: not found")

	// ErrCacheMiss 表示相似缓存中没有该源视频的条目
	ErrCacheMiss = NewDomainError(ModuleCache, ErrorCodeCacheMiss, "cache: miss")

	// ErrIndexUnavailable 表示向量索引暂不可用（熔断打开等）
	ErrIndexUnavailable = NewDomainError(ModuleVector, ErrorCodeUnavailable, "vector: index unavailable")

	// ErrInvalidConfig 表示 profile 配置不合法
	ErrInvalidConfig = NewDomainError(ModuleConfig, ErrorCodeInvalidConfig, "config: invalid")

	// ErrUnknownProfile 表示 mode 无法解析到任何 profile
	ErrUnknownProfile = NewDomainError(ModuleConfig, ErrorCodeUnknownProfile, "config: unknown profile")
)

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool {
	de := GetDomainError(err)
	return de != nil && de.Code == ErrorCodeNotFound
}

// IsCacheMiss 检查错误是否为缓存未命中
func IsCacheMiss(err error) bool {
	de := GetDomainError(err)
	return de != nil && de.Code == ErrorCodeCacheMiss
}

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool {
	de := GetDomainError(err)
	return de != nil && de.Code == ErrorCodeUnavailable
}

// IsConfig 检查错误是否为配置类错误（唯一允许透传给调用方的错误）
func IsConfig(err error) bool {
	de := GetDomainError(err)
	return de != nil && de.Module == ModuleConfig
}
