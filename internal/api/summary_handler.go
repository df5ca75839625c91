package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nao1215/summarize/internal/store"
	"github.com/nao1215/summarize/pkg/httpclient"
	"github.com/nao1215/summarize/pkg/middleware"
)

// maxUploadBytes はアップロードできるPDFの上限サイズ。
const maxUploadBytes = 32 << 20

const pdfExt = ".pdf"

// handleListSummaries は認証済み利用者の要約一覧を返すハンドラを返す。
func (s *Server) handleListSummaries() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)

		summaries, err := s.summaries.ListByUser(c.Request.Context(), userID)
		if err != nil {
			s.logger.ErrorContext(c.Request.Context(), "要約一覧の取得に失敗しました", "error", err, "user_id", userID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "要約一覧の取得に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": summaries})
	}
}

// handleGetSummary は要約詳細を返すハンドラを返す。
// 他の利用者の要約には403を返す。
func (s *Server) handleGetSummary() gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, ok := s.ownedSummary(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": summary})
	}
}

// handleCreateSummary は要約を作成するハンドラを返す。
// pdf_file はアップロード済みのファイル名である必要がある。
func (s *Server) handleCreateSummary() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		req, _ := middleware.Payload[createSummaryRequest](c)

		if !s.uploadExists(req.PDFFile) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "pdf_file が不正です"})
			return
		}

		summary, err := s.summaries.Create(c.Request.Context(), userID, req.Content, req.PDFFile)
		if err != nil {
			s.logger.ErrorContext(c.Request.Context(), "要約の作成に失敗しました", "error", err, "user_id", userID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "要約の作成に失敗しました"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"data": summary})
	}
}

// handleUpdateSummary は要約の本文を置き換えるハンドラを返す。
func (s *Server) handleUpdateSummary() gin.HandlerFunc {
	return func(c *gin.Context) {
		current, ok := s.ownedSummary(c)
		if !ok {
			return
		}
		req, _ := middleware.Payload[updateSummaryRequest](c)

		summary, err := s.summaries.UpdateContent(c.Request.Context(), current.ID, req.Content)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "要約が見つかりません"})
			return
		}
		if err != nil {
			s.logger.ErrorContext(c.Request.Context(), "要約の更新に失敗しました", "error", err, "summary_id", current.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "要約の更新に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": summary})
	}
}

// handleDeleteSummary は要約を削除するハンドラを返す。
func (s *Server) handleDeleteSummary() gin.HandlerFunc {
	return func(c *gin.Context) {
		current, ok := s.ownedSummary(c)
		if !ok {
			return
		}

		err := s.summaries.Delete(c.Request.Context(), current.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.ErrorContext(c.Request.Context(), "要約の削除に失敗しました", "error", err, "summary_id", current.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "要約の削除に失敗しました"})
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// handleStartExtraction はアップロードされたPDFを保存し、要約サービスで抽出を開始するハンドラを返す。
// 要約サービスの呼び出しに失敗した場合、保存したファイルは削除する。
func (s *Server) handleStartExtraction() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

		fh, err := c.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "ファイルが大きすぎます"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "ファイルがアップロードされていません"})
			return
		}
		if !strings.EqualFold(filepath.Ext(filepath.Base(fh.Filename)), pdfExt) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "PDFファイルのみアップロードできます"})
			return
		}

		name := uuid.NewString() + pdfExt
		path := filepath.Join(s.uploadDir, name)
		if err := c.SaveUploadedFile(fh, path); err != nil {
			s.logger.ErrorContext(ctx, "ファイルの保存に失敗しました", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ファイルの保存に失敗しました"})
			return
		}

		f, err := os.Open(path)
		if err != nil {
			s.discardUpload(c, path)
			s.logger.ErrorContext(ctx, "保存したファイルを開けません", "error", err, "pdf_file", name)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ファイルの保存に失敗しました"})
			return
		}
		extraction, err := s.summarizer.StartExtraction(ctx, name, f)
		_ = f.Close()
		if err != nil {
			s.metrics.RecordUpstream(upstreamSummarizer, "start", "error")
			s.discardUpload(c, path)
			s.logger.ErrorContext(ctx, "抽出の開始に失敗しました", "error", err, "pdf_file", name)
			c.JSON(upstreamStatus(err), gin.H{"error": "抽出の開始に失敗しました"})
			return
		}

		s.metrics.RecordUpstream(upstreamSummarizer, "start", "success")
		c.JSON(http.StatusCreated, gin.H{
			"data":     extraction,
			"pdf_file": name,
		})
	}
}

// handlePollExtraction は抽出処理の状態を要約サービスに問い合わせるハンドラを返す。
func (s *Server) handlePollExtraction() gin.HandlerFunc {
	return func(c *gin.Context) {
		req, _ := middleware.Payload[pollRequest](c)

		data, err := s.summarizer.PollExtraction(c.Request.Context(), req.RequestID)
		if err != nil {
			s.metrics.RecordUpstream(upstreamSummarizer, "poll", "error")
			s.logger.ErrorContext(c.Request.Context(), "抽出状態の取得に失敗しました", "error", err, "summarize_request_id", req.RequestID)
			c.JSON(upstreamStatus(err), gin.H{"error": "抽出状態の取得に失敗しました"})
			return
		}

		s.metrics.RecordUpstream(upstreamSummarizer, "poll", "success")
		c.JSON(http.StatusOK, gin.H{"data": data})
	}
}

// ownedSummary はパスパラメータの要約を取得し、認証済み利用者の所有であることを確認する。
// 失敗時は応答を書き込んでfalseを返す。
func (s *Server) ownedSummary(c *gin.Context) (store.Summary, bool) {
	userID := middleware.GetUserID(c)
	id := c.Param("id")

	summary, err := s.summaries.FindByID(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "要約が見つかりません"})
		return store.Summary{}, false
	}
	if err != nil {
		s.logger.ErrorContext(c.Request.Context(), "要約の取得に失敗しました", "error", err, "summary_id", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "要約の取得に失敗しました"})
		return store.Summary{}, false
	}
	if summary.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "この要約へのアクセス権がありません"})
		return store.Summary{}, false
	}
	return summary, true
}

// uploadExists はファイル名がアップロードディレクトリ直下の既存ファイルを指すかを返す。
func (s *Server) uploadExists(name string) bool {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return false
	}
	info, err := os.Stat(filepath.Join(s.uploadDir, name))
	return err == nil && info.Mode().IsRegular()
}

func (s *Server) discardUpload(c *gin.Context, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.WarnContext(c.Request.Context(), "保存したファイルの削除に失敗しました", "error", err, "path", path)
	}
}

// upstreamStatus は要約サービスのエラーを応答ステータスに変換する。
// 要約サービスが4xxを返した場合は入力の誤りとして400にする。
func upstreamStatus(err error) int {
	var se *httpclient.StatusError
	if errors.As(err, &se) && se.ClientError() {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}
