package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/movemonth/internal/model"
)

// internalErrorCode は想定外の失敗に使うエラーコード。
const internalErrorCode = "INTERNAL_ERROR"

// retryAfterSeconds は再試行可能な失敗に付与するRetry-Afterの秒数。
const retryAfterSeconds = "30"

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// retryableはフロントエンドが「再試行」ボタンを出すかの判断に使う。
type ErrorResponseBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	Action    string `json:"action"`
	Retryable bool   `json:"retryable"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// 原因エラー（apiErr.Err）はレスポンスに含めない。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	retryable := apiErr.Retryable()

	w.Header().Set("Cache-Control", "no-store")
	if retryable {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	writeJSONBody(w, statusCode, ErrorResponseBody{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		Category:  apiErr.Category,
		Action:    apiErr.Action,
		Retryable: retryable,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     internalErrorCode,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

func writeJSONBody(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}
