package middleware

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/summarize/pkg/validation"
)

// MaxJSONBodyBytes はJSONリクエストボディの上限サイズ。
const MaxJSONBodyBytes = 1 << 20

const ginKeyPayload = "validated_payload"

// ValidateBody はリクエストボディをスキーマで検証するGinミドルウェアを返す。
// 検証済みの値は Payload で取り出せる。違反の詳細はログにのみ出力し、
// クライアントには400と固定のメッセージを返す。
func ValidateBody[T any](schema *validation.Schema[T], logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxJSONBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
					"error": "リクエストボディが大きすぎます",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "リクエストボディを読み取れません",
			})
			return
		}
		if len(bytes.TrimSpace(body)) == 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "リクエストボディがありません",
			})
			return
		}

		payload, err := schema.Validate(body)
		if err != nil {
			attrs := []any{"schema", schema.Name(), "path", c.Request.URL.Path, "request_id", GetRequestID(c)}
			var verr *validation.Error
			if errors.As(err, &verr) {
				attrs = append(attrs, "violations", verr.Violations)
			}
			logger.WarnContext(c.Request.Context(), "リクエストボディの検証に失敗しました", attrs...)
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "リクエストボディが不正です",
			})
			return
		}

		c.Set(ginKeyPayload, payload)
		c.Next()
	}
}

// Payload はValidateBodyで検証済みの値を取り出す。
func Payload[T any](c *gin.Context) (T, bool) {
	v, ok := c.Get(ginKeyPayload)
	if !ok {
		var zero T
		return zero, false
	}
	p, ok := v.(T)
	return p, ok
}
