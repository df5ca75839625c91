package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/summarize/internal/store"
	"github.com/nao1215/summarize/pkg/middleware"
	"github.com/nao1215/summarize/pkg/token"
)

// メトリクスに記録する認証フロー名。
const (
	flowRegister = "register"
	flowLogin    = "login"
	flowRefresh  = "refresh"
)

// errInvalidLogin はログイン失敗時の唯一の応答メッセージ。
// 利用者の有無とパスワードの誤りを区別しない。
const errInvalidLogin = "メールアドレスまたはパスワードが正しくありません"

// tokenPair は発行したトークンの組。
type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// issuePair は利用者のアクセストークンとリフレッシュトークンを発行する。
// リフレッシュトークンには ID と Email のみを含める。
func (s *Server) issuePair(u store.User) (tokenPair, error) {
	access, err := s.tokens.Issue(token.Identity{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}, token.KindAccess, s.accessTTL)
	if err != nil {
		return tokenPair{}, fmt.Errorf("アクセストークンの発行に失敗: %w", err)
	}
	refresh, err := s.tokens.Issue(token.Identity{ID: u.ID, Email: u.Email}, token.KindRefresh, s.refreshTTL)
	if err != nil {
		return tokenPair{}, fmt.Errorf("リフレッシュトークンの発行に失敗: %w", err)
	}
	return tokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// handleRegister は利用者登録を処理するハンドラを返す。
// ユーザー名かメールアドレスが既に使われている場合は409を返す。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		req, _ := middleware.Payload[registerRequest](c)
		ctx := c.Request.Context()

		protected, err := s.hasher.Protect(req.Password)
		if err != nil {
			s.metrics.RecordCredentialFlow(flowRegister, "error")
			s.logger.ErrorContext(ctx, "パスワードの保護に失敗しました", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "アカウントの作成に失敗しました"})
			return
		}

		user, err := s.users.Create(ctx, store.CreateUserParams{
			Username:  req.Username,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Password:  protected,
		})
		if errors.Is(err, store.ErrConflict) {
			s.metrics.RecordCredentialFlow(flowRegister, "conflict")
			c.JSON(http.StatusConflict, gin.H{"error": "ユーザー名またはメールアドレスは既に使われています"})
			return
		}
		if err != nil {
			s.metrics.RecordCredentialFlow(flowRegister, "error")
			s.logger.ErrorContext(ctx, "利用者の作成に失敗しました", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "アカウントの作成に失敗しました"})
			return
		}

		pair, err := s.issuePair(user)
		if err != nil {
			s.metrics.RecordCredentialFlow(flowRegister, "error")
			s.logger.ErrorContext(ctx, "トークンの発行に失敗しました", "error", err, "user_id", user.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "アカウントの作成に失敗しました"})
			return
		}

		s.metrics.RecordCredentialFlow(flowRegister, "success")
		s.logger.InfoContext(ctx, "利用者を登録しました", "user_id", user.ID)
		c.JSON(http.StatusCreated, gin.H{"data": pair})
	}
}

// handleLogin はログインを処理するハンドラを返す。
// email があれば email で、なければ username で利用者を探す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		req, _ := middleware.Payload[loginRequest](c)
		ctx := c.Request.Context()

		var (
			user store.User
			err  error
		)
		if req.Email != "" {
			user, err = s.users.FindByEmail(ctx, req.Email)
		} else {
			user, err = s.users.FindByUsername(ctx, req.Username)
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			s.metrics.RecordCredentialFlow(flowLogin, "error")
			s.logger.ErrorContext(ctx, "利用者の取得に失敗しました", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "内部サーバーエラーが発生しました"})
			return
		}
		if err != nil || !s.hasher.Verify(req.Password, user.Password) {
			s.metrics.RecordCredentialFlow(flowLogin, "rejected")
			c.JSON(http.StatusNotFound, gin.H{"error": errInvalidLogin})
			return
		}

		pair, err := s.issuePair(user)
		if err != nil {
			s.metrics.RecordCredentialFlow(flowLogin, "error")
			s.logger.ErrorContext(ctx, "トークンの発行に失敗しました", "error", err, "user_id", user.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "内部サーバーエラーが発生しました"})
			return
		}

		s.metrics.RecordCredentialFlow(flowLogin, "success")
		c.JSON(http.StatusOK, gin.H{"data": pair})
	}
}

// handleRefresh はリフレッシュトークンを新しいトークンの組と交換するハンドラを返す。
// 失敗時は認証ミドルウェアと同じ形式の401を返す。
func (s *Server) handleRefresh() gin.HandlerFunc {
	return func(c *gin.Context) {
		req, _ := middleware.Payload[refreshRequest](c)
		ctx := c.Request.Context()

		reject := func(reason string, attrs ...any) {
			s.metrics.RecordCredentialFlow(flowRefresh, "rejected")
			attrs = append(attrs, "reason", reason, "request_id", middleware.GetRequestID(c))
			s.logger.WarnContext(ctx, "トークンの再発行を拒否しました", attrs...)
			middleware.AbortUnauthenticated(c, reason)
		}

		verified, err := s.tokens.Verify(req.RefreshToken)
		if err != nil {
			reject(middleware.ReasonInvalidToken, "error", err)
			return
		}
		claimed, ok := verified.Refresh()
		if !ok {
			reject(middleware.ReasonInvalidToken, "kind", string(verified.Kind()))
			return
		}
		if verified.Expired {
			reject(middleware.ReasonTokenExpired, "user_id", claimed.ID)
			return
		}

		user, err := s.users.FindByID(ctx, claimed.ID)
		if errors.Is(err, store.ErrNotFound) {
			reject(middleware.ReasonInvalidToken, "user_id", claimed.ID)
			return
		}
		if err != nil {
			s.metrics.RecordCredentialFlow(flowRefresh, "error")
			s.logger.ErrorContext(ctx, "利用者の取得に失敗しました", "error", err, "user_id", claimed.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "内部サーバーエラーが発生しました"})
			return
		}

		pair, err := s.issuePair(user)
		if err != nil {
			s.metrics.RecordCredentialFlow(flowRefresh, "error")
			s.logger.ErrorContext(ctx, "トークンの発行に失敗しました", "error", err, "user_id", user.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "内部サーバーエラーが発生しました"})
			return
		}

		s.metrics.RecordCredentialFlow(flowRefresh, "success")
		c.JSON(http.StatusOK, gin.H{"data": pair})
	}
}
