package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/summarize/internal/store"
	"github.com/nao1215/summarize/pkg/middleware"
)

// userResponse は他の利用者から見える利用者情報。メールアドレスは含めない。
type userResponse struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	CreatedAt    time.Time `json:"createdAt"`
	SummaryCount int       `json:"nbSummarizes"`
}

// handleGetMe は認証済み利用者の情報を返すハンドラを返す。
func (s *Server) handleGetMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := middleware.CurrentIdentity(c)
		if !ok {
			middleware.AbortUnauthenticated(c, middleware.ReasonInvalidToken)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": identity})
	}
}

// handleUpdateMe は認証済み利用者の表示情報を更新するハンドラを返す。
// ユーザー名が既に使われている場合は409を返す。
func (s *Server) handleUpdateMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		req, _ := middleware.Payload[updateUserRequest](c)

		user, err := s.users.Update(c.Request.Context(), userID, store.UpdateUserParams{
			Username:  req.Username,
			FirstName: req.FirstName,
			LastName:  req.LastName,
		})
		switch {
		case errors.Is(err, store.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "ユーザー名は既に使われています"})
			return
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "利用者が見つかりません"})
			return
		case err != nil:
			s.logger.ErrorContext(c.Request.Context(), "利用者の更新に失敗しました", "error", err, "user_id", userID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "利用者の更新に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": middleware.Identity{
			ID:        user.ID,
			Username:  user.Username,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Email:     user.Email,
			CreatedAt: user.CreatedAt,
		}})
	}
}

// handleDeleteMe は認証済み利用者を論理削除するハンドラを返す。
// 削除後は同じトークンでの認証が通らなくなる。
func (s *Server) handleDeleteMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)

		err := s.users.SoftDelete(c.Request.Context(), userID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.ErrorContext(c.Request.Context(), "利用者の削除に失敗しました", "error", err, "user_id", userID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "利用者の削除に失敗しました"})
			return
		}

		s.logger.InfoContext(c.Request.Context(), "利用者を削除しました", "user_id", userID)
		c.Status(http.StatusNoContent)
	}
}

// handleGetUser は指定されたIDの利用者を返すハンドラを返す。
func (s *Server) handleGetUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := c.Param("id")

		user, err := s.users.FindByID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "利用者が見つかりません"})
			return
		}
		if err != nil {
			s.logger.ErrorContext(ctx, "利用者の取得に失敗しました", "error", err, "target_id", id)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "利用者の取得に失敗しました"})
			return
		}

		summaries, err := s.summaries.ListByUser(ctx, user.ID)
		if err != nil {
			s.logger.ErrorContext(ctx, "要約一覧の取得に失敗しました", "error", err, "target_id", id)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "利用者の取得に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": userResponse{
			ID:           user.ID,
			Username:     user.Username,
			FirstName:    user.FirstName,
			LastName:     user.LastName,
			CreatedAt:    user.CreatedAt,
			SummaryCount: len(summaries),
		}})
	}
}
