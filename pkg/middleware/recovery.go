package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// Recovery はパニックからの回復を行うGinミドルウェアを返す。
// パニック発生時にスタックトレースをリクエストIDとともにログに出力し、500エラーを返す。
// http.ErrAbortHandler は net/http に処理させるため再度パニックする。
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if r == http.ErrAbortHandler {
				panic(r)
			}

			attrs := []any{
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"panic", r,
				"request_id", GetRequestID(c),
				"stack", string(debug.Stack()),
			}
			if id := GetUserID(c); id != "" {
				attrs = append(attrs, "user_id", id)
			}
			logger.ErrorContext(c.Request.Context(), "ハンドラーでパニックが発生しました", attrs...)

			// 書き込み済みのレスポンスにはボディを追加しない
			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "内部サーバーエラーが発生しました",
			})
		}()
		c.Next()
	}
}
