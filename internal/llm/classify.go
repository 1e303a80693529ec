// internal/llm/classify.go
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	apperrors "github.com/Corphon/Direktiva/internal/errors"
	"github.com/openai/openai-go/v3"
	"google.golang.org/api/googleapi"
)

// StatusError REST 提供者返回的非 2xx 响应
type StatusError struct {
	Provider   string
	StatusCode int
	Status     string // 例如 RESOURCE_EXHAUSTED
	Message    string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s API错误(%d %s): %s", e.Provider, e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("%s API错误(%d): %s", e.Provider, e.StatusCode, e.Message)
}

// Classify 把提供者的原始错误归入应用错误分类。已分类的错误原样返回。
func Classify(err error, message string) error {
	if err == nil {
		return nil
	}
	if apperrors.TypeOf(err) != "" {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTimeoutError(message+": 超出生成时间预算", err)
	}
	if isQuota(err) {
		return apperrors.NewQuotaExceededError(message+": 后端配额已用尽", err)
	}
	return apperrors.NewGenerationError(message, err)
}

func isQuota(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		if se.StatusCode == http.StatusTooManyRequests || se.Status == "RESOURCE_EXHAUSTED" {
			return true
		}
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return true
	}

	var oerr *openai.Error
	if errors.As(err, &oerr) && oerr.StatusCode == http.StatusTooManyRequests {
		return true
	}

	return exhaustedToken.MatchString(err.Error())
}

// exhaustedToken 只匹配完整的状态名，不匹配消息里偶然出现的数字
var exhaustedToken = regexp.MustCompile(`\b(RESOURCE_EXHAUSTED|ResourceExhausted)\b`)
