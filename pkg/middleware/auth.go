package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/summarize/pkg/token"
)

// 認証失敗の理由。レスポンスの "reason" とメトリクスのラベルに使う。
const (
	ReasonNoToken        = "no token"
	ReasonMalformedToken = "malformed token"
	ReasonInvalidToken   = "invalid token"
	ReasonTokenExpired   = "token expired"
)

// OutcomeAuthenticated は認証成功を表すメトリクスのラベル。
const OutcomeAuthenticated = "authenticated"

var unauthorizedMessages = map[string]string{
	ReasonNoToken:        "トークンが指定されていません",
	ReasonMalformedToken: "トークンの形式が不正です",
	ReasonInvalidToken:   "トークンが無効です",
	ReasonTokenExpired:   "トークンの有効期限が切れています",
}

// ErrIdentityNotFound は利用者が存在しないか削除済みの場合にIdentityStoreが返すエラー。
var ErrIdentityNotFound = errors.New("middleware: 利用者が見つかりません")

// Identity は認証済みリクエストに紐づく利用者。
type Identity struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// TokenVerifier はトークンの検証を行う。*token.Service が実装する。
type TokenVerifier interface {
	Verify(raw string) (token.Verified, error)
}

// IdentityStore はトークンの利用者IDから現在の利用者を引く。
type IdentityStore interface {
	FindIdentity(ctx context.Context, id string) (Identity, error)
}

// AuthRecorder は認証結果を記録する。nilでもよい。
type AuthRecorder interface {
	RecordAuth(outcome string)
}

const ginKeyIdentity = "identity"

type identityKey struct{}

// Authenticate は "Authorization: Bearer <token>" を検証するGinミドルウェアを返す。
//
// 失敗時は401で {"error": ..., "reason": ...} を返して処理を中断する。
// 署名不正・種別違い・利用者の不在はいずれも "invalid token" として同じ応答になる。
// 利用者ストアの障害は500として扱う。
func Authenticate(verifier TokenVerifier, identities IdentityStore, logger *slog.Logger, recorder AuthRecorder) gin.HandlerFunc {
	record := func(outcome string) {
		if recorder != nil {
			recorder.RecordAuth(outcome)
		}
	}
	reject := func(c *gin.Context, reason string, attrs ...any) {
		record(reason)
		attrs = append(attrs, "reason", reason, "path", c.Request.URL.Path, "request_id", GetRequestID(c))
		logger.WarnContext(c.Request.Context(), "認証に失敗しました", attrs...)
		AbortUnauthenticated(c, reason)
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			reject(c, ReasonNoToken)
			return
		}

		raw, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found {
			reject(c, ReasonMalformedToken)
			return
		}

		verified, err := verifier.Verify(raw)
		if err != nil {
			reject(c, ReasonInvalidToken, "error", err)
			return
		}
		claimed, ok := verified.Access()
		if !ok {
			reject(c, ReasonInvalidToken, "kind", string(verified.Kind()))
			return
		}
		if verified.Expired {
			reject(c, ReasonTokenExpired, "user_id", claimed.ID)
			return
		}

		identity, err := identities.FindIdentity(c.Request.Context(), claimed.ID)
		if errors.Is(err, ErrIdentityNotFound) {
			reject(c, ReasonInvalidToken, "user_id", claimed.ID)
			return
		}
		if err != nil {
			record("error")
			logger.ErrorContext(c.Request.Context(), "利用者の取得に失敗しました",
				"error", err, "user_id", claimed.ID, "request_id", GetRequestID(c))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "内部サーバーエラーが発生しました",
			})
			return
		}

		record(OutcomeAuthenticated)
		c.Set(ginKeyIdentity, identity)
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), identity))
		c.Next()
	}
}

// AbortUnauthenticated は理由に対応する401応答を返して処理を中断する。
func AbortUnauthenticated(c *gin.Context, reason string) {
	msg, ok := unauthorizedMessages[reason]
	if !ok {
		reason = ReasonInvalidToken
		msg = unauthorizedMessages[ReasonInvalidToken]
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":  msg,
		"reason": reason,
	})
}

// WithIdentity はcontextに利用者を設定する。
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext はcontextから利用者を取得する。
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// CurrentIdentity はGinコンテキストから利用者を取得する。
// Authenticateミドルウェアが事前に適用されている必要がある。
func CurrentIdentity(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(ginKeyIdentity)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// GetUserID はGinコンテキストから利用者IDを取得する。未認証なら空文字列を返す。
func GetUserID(c *gin.Context) string {
	id, _ := CurrentIdentity(c)
	return id.ID
}
