package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/nao1215/summarize/internal/config"
	"github.com/nao1215/summarize/internal/store"
	"github.com/nao1215/summarize/internal/summarizer"
	"github.com/nao1215/summarize/pkg/credential"
	"github.com/nao1215/summarize/pkg/httpclient"
	"github.com/nao1215/summarize/pkg/metrics"
	"github.com/nao1215/summarize/pkg/middleware"
	"github.com/nao1215/summarize/pkg/token"
)

const (
	// metricsNamespace はPrometheusメトリクスの名前空間。
	metricsNamespace = "summarize"
	// shutdownTimeout は停止時に処理中のリクエストを待つ時間。
	shutdownTimeout = 10 * time.Second
	// upstreamSummarizer はメトリクスに記録する外部サービス名。
	upstreamSummarizer = "summarizer"
)

// Server は要約APIのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// db はデータベース接続。Close で閉じる。
	db *sqlx.DB
	// users は利用者リポジトリ。
	users *store.UserRepository
	// summaries は要約リポジトリ。
	summaries *store.SummaryRepository
	// hasher はパスワードの保護と照合を行う。
	hasher *credential.Hasher
	// tokens はトークンの発行と検証を行う。
	tokens *token.Service
	// summarizer はPDF要約サービスのクライアント。
	summarizer *summarizer.Client
	// metrics はPrometheusメトリクス。
	metrics *metrics.Metrics
	logger  *slog.Logger

	accessTTL  time.Duration
	refreshTTL time.Duration
	// uploadDir はアップロードされたPDFの保存先。
	uploadDir string
}

// components はサーバーを組み立てる部品。テストでは軽量な部品を差し込む。
type components struct {
	port           string
	db             *sqlx.DB
	hasher         *credential.Hasher
	tokens         *token.Service
	summarizer     *summarizer.Client
	metrics        *metrics.Metrics
	logger         *slog.Logger
	accessTTL      time.Duration
	refreshTTL     time.Duration
	uploadDir      string
	allowedOrigins []string
}

// NewServer は設定から各部品を生成し、新しいサーバーを返す。
// 秘密鍵の不足やデータベースの初期化失敗はエラーとして返す。
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	hasher, err := credential.NewHasher(cfg.CredentialSecret)
	if err != nil {
		return nil, fmt.Errorf("パスワードハッシャーの生成に失敗: %w", err)
	}
	tokens, err := token.New(cfg.JWTSecret, token.WithIssuer(cfg.JWTIssuer))
	if err != nil {
		return nil, fmt.Errorf("トークンサービスの生成に失敗: %w", err)
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o750); err != nil {
		return nil, fmt.Errorf("アップロードディレクトリの作成に失敗: %w", err)
	}

	db, err := store.Open(ctx, cfg.DBDriver, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}

	return newServer(components{
		port:           cfg.Port,
		db:             db,
		hasher:         hasher,
		tokens:         tokens,
		summarizer:     summarizer.New(cfg.AIURL, httpclient.WithTimeout(cfg.AITimeout)),
		metrics:        metrics.New(metricsNamespace),
		logger:         logger,
		accessTTL:      cfg.AccessTokenTTL,
		refreshTTL:     cfg.RefreshTokenTTL,
		uploadDir:      cfg.UploadDir,
		allowedOrigins: cfg.AllowedOrigins,
	}), nil
}

func newServer(c components) *Server {
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(c.logger))
	router.Use(middleware.Recovery(c.logger))
	router.Use(middleware.CORS(c.allowedOrigins))
	router.Use(c.metrics.Middleware())

	s := &Server{
		router:     router,
		port:       c.port,
		db:         c.db,
		users:      store.NewUserRepository(c.db),
		summaries:  store.NewSummaryRepository(c.db),
		hasher:     c.hasher,
		tokens:     c.tokens,
		summarizer: c.summarizer,
		metrics:    c.metrics,
		logger:     c.logger,
		accessTTL:  c.accessTTL,
		refreshTTL: c.refreshTTL,
		uploadDir:  c.uploadDir,
	}
	s.setupRoutes()

	return s
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// 認証エンドポイント（認証不要）
	auth := s.router.Group("/auth")
	{
		auth.POST("/register", middleware.ValidateBody(registerSchema, s.logger), s.handleRegister())
		auth.POST("/login", middleware.ValidateBody(loginSchema, s.logger), s.handleLogin())
		auth.POST("/refresh", middleware.ValidateBody(refreshSchema, s.logger), s.handleRefresh())
	}

	authenticate := middleware.Authenticate(s.tokens, identityStore{users: s.users}, s.logger, s.metrics)

	users := s.router.Group("/users")
	users.Use(authenticate)
	{
		users.GET("/me", s.handleGetMe())
		users.PUT("/me", middleware.ValidateBody(updateUserSchema, s.logger), s.handleUpdateMe())
		users.DELETE("/me", s.handleDeleteMe())
		users.GET("/:id", s.handleGetUser())
	}

	summaries := s.router.Group("/summarizes")
	summaries.Use(authenticate)
	{
		summaries.GET("", s.handleListSummaries())
		summaries.GET("/:id", s.handleGetSummary())
		summaries.POST("", middleware.ValidateBody(createSummarySchema, s.logger), s.handleCreateSummary())
		summaries.PUT("/:id", middleware.ValidateBody(updateSummarySchema, s.logger), s.handleUpdateSummary())
		summaries.DELETE("/:id", s.handleDeleteSummary())

		// PDFからの要約抽出
		summaries.POST("/extraction", s.handleStartExtraction())
		summaries.POST("/extraction/poll", middleware.ValidateBody(pollSchema, s.logger), s.handlePollExtraction())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "summarize-api"})
	})
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
}

// Handler はルーティング済みのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxが終了するとグレースフルに停止する。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("サーバーを起動します", "port", s.port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("サーバーの起動に失敗: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("サーバーを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("サーバーの停止に失敗: %w", err)
	}
	return nil
}

// Close はデータベース接続を閉じる。
func (s *Server) Close() error {
	return s.db.Close()
}

// identityStore は利用者リポジトリを認証ミドルウェアの IdentityStore に合わせる。
type identityStore struct {
	users *store.UserRepository
}

func (i identityStore) FindIdentity(ctx context.Context, id string) (middleware.Identity, error) {
	u, err := i.users.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return middleware.Identity{}, middleware.ErrIdentityNotFound
	}
	if err != nil {
		return middleware.Identity{}, err
	}
	return middleware.Identity{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}, nil
}
