// internal/api/error_codes.go
package api

import (
	"errors"
	"net/http"

	apperrors "github.com/Corphon/Direktiva/internal/errors"
	"github.com/Corphon/Direktiva/internal/services"
)

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"
	ErrorRateLimited   = "RATE_LIMITED"

	// 资源
	ErrorScriptNotFound    = "SCRIPT_NOT_FOUND"
	ErrorCandidateNotFound = "CANDIDATE_NOT_FOUND"
	ErrorTaskNotFound      = "TASK_NOT_FOUND"

	// 生成后端
	ErrorLLMServiceUnavailable = "LLM_SERVICE_UNAVAILABLE"
	ErrorLLMConfigInvalid      = "LLM_CONFIG_INVALID"
	ErrorLLMProviderMissing    = "LLM_PROVIDER_MISSING"

	// 导出
	ErrorExportFailed        = "EXPORT_FAILED"
	ErrorExportFormatInvalid = "EXPORT_FORMAT_INVALID"
	ErrorExportDataEmpty     = "EXPORT_DATA_EMPTY"
)

// errorStatus 错误分类 → HTTP 状态码
var errorStatus = map[apperrors.ErrorType]int{
	apperrors.ErrorTypeValidation:        http.StatusBadRequest,
	apperrors.ErrorTypeNotFound:          http.StatusNotFound,
	apperrors.ErrorTypeConflict:          http.StatusConflict,
	apperrors.ErrorTypeQuotaExceeded:     http.StatusTooManyRequests,
	apperrors.ErrorTypeMalformedResponse: http.StatusBadGateway,
	apperrors.ErrorTypeAnchorGeneration:  http.StatusFailedDependency,
	apperrors.ErrorTypeSceneGeneration:   http.StatusUnprocessableEntity,
	apperrors.ErrorTypeGeneration:        http.StatusInternalServerError,
	apperrors.ErrorTypeError:             http.StatusInternalServerError,
	apperrors.ErrorTypeTimeout:           http.StatusGatewayTimeout,
}

// classifyError 返回状态码与错误代码；未分类的错误按内部错误处理
func classifyError(err error) (int, string) {
	if errors.Is(err, services.ErrLLMNotReady) {
		return http.StatusServiceUnavailable, ErrorLLMServiceUnavailable
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, ErrorInternalError
	}
	status, ok := errorStatus[appErr.Type]
	if !ok {
		status = http.StatusInternalServerError
	}
	return status, appErr.Code
}
