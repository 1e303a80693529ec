// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 通用错误类型
	ErrorTypeValidation   ErrorType = "validation_error"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeError        ErrorType = "processing_error" // 存储等内部处理失败
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeTimeout      ErrorType = "timeout"

	// 生成后端相关
	ErrorTypeMalformedResponse ErrorType = "malformed_response"
	ErrorTypeQuotaExceeded     ErrorType = "quota_exceeded"
	ErrorTypeGeneration        ErrorType = "generation_error"
	ErrorTypeSceneGeneration   ErrorType = "scene_generation"
	ErrorTypeAnchorGeneration  ErrorType = "anchor_generation"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // 用户友好的错误代码
	Scene   int    // 仅 scene_generation 使用，从 1 开始
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewConflictError 创建冲突错误
func NewConflictError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConflict, message, originalError)
}

// NewTimeoutError 生成超出时间预算
func NewTimeoutError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeTimeout, message, originalError)
}

// NewMalformedResponseError 后端返回的结构化数据缺字段或无法解析
func NewMalformedResponseError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeMalformedResponse, message, originalError)
}

// NewQuotaExceededError 后端配额耗尽
func NewQuotaExceededError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeQuotaExceeded, message, originalError)
}

// NewGenerationError 其余后端失败
func NewGenerationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeGeneration, message, originalError)
}

// NewAnchorGenerationError 分镜锚点图生成失败，整个分镜中止
func NewAnchorGenerationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeAnchorGeneration, message, originalError)
}

// NewSceneGenerationError 逐场景视频生成失败，scene 从 1 开始
func NewSceneGenerationError(scene int, originalError error) *AppError {
	e := NewAppError(ErrorTypeSceneGeneration, fmt.Sprintf("第 %d 个场景生成失败", scene), originalError)
	e.Scene = scene
	return e
}

func isType(err error, t ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == t
	}
	return false
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool { return isType(err, ErrorTypeValidation) }

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsConflictError 检查是否为冲突错误
func IsConflictError(err error) bool { return isType(err, ErrorTypeConflict) }

func IsTimeoutError(err error) bool { return isType(err, ErrorTypeTimeout) }

func IsMalformedResponseError(err error) bool { return isType(err, ErrorTypeMalformedResponse) }

func IsQuotaExceededError(err error) bool { return isType(err, ErrorTypeQuotaExceeded) }

func IsGenerationError(err error) bool { return isType(err, ErrorTypeGeneration) }

func IsAnchorGenerationError(err error) bool { return isType(err, ErrorTypeAnchorGeneration) }

// SceneOf 返回失败场景编号
func SceneOf(err error) (int, bool) {
	var appError *AppError
	if errors.As(err, &appError) && appError.Type == ErrorTypeSceneGeneration {
		return appError.Scene, true
	}
	return 0, false
}

// TypeOf 返回最外层 AppError 的类型，非 AppError 返回空串
func TypeOf(err error) ErrorType {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type
	}
	return ""
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	case ErrorTypeConflict:
		return "CONFLICT"
	case ErrorTypeTimeout:
		return "GENERATION_TIMEOUT"
	case ErrorTypeMalformedResponse:
		return "MALFORMED_RESPONSE"
	case ErrorTypeQuotaExceeded:
		return "QUOTA_EXCEEDED"
	case ErrorTypeGeneration:
		return "GENERATION_FAILED"
	case ErrorTypeSceneGeneration:
		return "VIDEO_FAILED_SCENE"
	case ErrorTypeAnchorGeneration:
		return "ANCHOR_FAILED"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		// 如果已经是 AppError，只更新消息
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
			Scene:   appError.Scene,
		}
	}

	// 否则创建新的 AppError
	return NewAppError(errType, message, err)
}
