package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderRequestID はリクエストIDを受け渡すHTTPヘッダー名。
const HeaderRequestID = "X-Request-ID"

const ginKeyRequestID = "request_id"

// maxRequestIDLength を超える受信リクエストIDは採用しない。
const maxRequestIDLength = 128

type requestIDKey struct{}

// RequestID は受信したX-Request-IDを引き継ぐか新たに採番し、
// Ginコンテキスト・リクエストのcontext・レスポンスヘッダーに設定するミドルウェアを返す。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		c.Set(ginKeyRequestID, id)
		c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), id))
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// WithRequestID はcontextにリクエストIDを設定する。
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext はcontextからリクエストIDを取得する。
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// GetRequestID はGinコンテキストからリクエストIDを取得する。
func GetRequestID(c *gin.Context) string {
	return c.GetString(ginKeyRequestID)
}

// Logger はリクエストごとに1行のアクセスログを出力するミドルウェアを返す。
// ステータスが5xxならError、4xxならWarn、それ以外はInfoで出力する。
func Logger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("route", route),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
			slog.String("request_id", GetRequestID(c)),
		}
		if id, ok := CurrentIdentity(c); ok {
			attrs = append(attrs, slog.String("user_id", id.ID))
		}
		logger.LogAttrs(c.Request.Context(), level, "HTTPリクエスト", attrs...)
	}
}
