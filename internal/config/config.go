// Package config は環境変数からAPIサーバーの設定を読み込む。
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nao1215/summarize/pkg/logging"
)

// Config はAPIサーバーの設定。
type Config struct {
	// Port はリッスンポート。
	Port string
	// CredentialSecret はパスワードハッシュのペッパー（SECRET）。
	CredentialSecret string
	// JWTSecret はトークン署名用のシークレット。
	JWTSecret string
	// JWTIssuer はトークンの発行者名。
	JWTIssuer string
	// AccessTokenTTL はアクセストークンの有効期間。0なら無期限。
	AccessTokenTTL time.Duration
	// RefreshTokenTTL はリフレッシュトークンの有効期間。0なら無期限。
	RefreshTokenTTL time.Duration
	// DBDriver は "sqlite" か "pgx"。
	DBDriver string
	// DatabaseURL はドライバーに渡すDSN。
	DatabaseURL string
	// AIURL はPDF要約サービスのベースURL。
	AIURL string
	// AITimeout はPDF要約サービス呼び出しのタイムアウト。
	AITimeout time.Duration
	// UploadDir はアップロードされたPDFの保存先。
	UploadDir string
	// AllowedOrigins はCORSで許可するオリジン。
	AllowedOrigins []string
	// LogLevel はログの出力レベル。
	LogLevel slog.Level
	// Environment は実行環境（"production" ならJSONログ）。
	Environment string
}

// 既定値。
const (
	defaultPort        = "3000"
	defaultIssuer      = "summarize-api"
	defaultAccessTTL   = 24 * time.Hour
	defaultRefreshTTL  = 30 * 24 * time.Hour
	defaultDriver      = "sqlite"
	defaultSQLiteDSN   = "file:/data/summarize.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	defaultAITimeout   = 2 * time.Minute
	defaultUploadDir   = "/data/uploads"
	defaultFrontendURL = "http://localhost:5173"
)

// Error は設定の不足・不正をまとめて報告する。
type Error struct {
	Missing []string
	Invalid []string
}

func (e *Error) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "未設定: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "不正な値: "+strings.Join(e.Invalid, ", "))
	}
	return "config: " + strings.Join(parts, "; ")
}

// Load はプロセスの環境変数から設定を読み込む。
func Load() (*Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup は lookup で引いた値から設定を組み立てる。
// 必須項目の欠落と不正な値はすべてまとめて *Error で返す。
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	l := loader{lookup: lookup, errs: &Error{}}

	cfg := &Config{
		Port:             l.getOr("PORT", defaultPort),
		CredentialSecret: l.required("SECRET"),
		JWTSecret:        l.required("JWT_SECRET"),
		JWTIssuer:        l.getOr("JWT_ISSUER", defaultIssuer),
		AccessTokenTTL:   l.duration("ACCESS_TOKEN_TTL", defaultAccessTTL),
		RefreshTokenTTL:  l.duration("REFRESH_TOKEN_TTL", defaultRefreshTTL),
		DBDriver:         l.getOr("DB_DRIVER", defaultDriver),
		AIURL:            strings.TrimRight(l.required("AI_URL"), "/"),
		AITimeout:        l.duration("AI_TIMEOUT", defaultAITimeout),
		UploadDir:        l.getOr("UPLOAD_DIR", defaultUploadDir),
		AllowedOrigins:   splitList(l.getOr("FRONTEND_URL", defaultFrontendURL)),
		Environment:      l.getOr("ENV", "development"),
	}

	switch cfg.DBDriver {
	case "sqlite":
		cfg.DatabaseURL = l.getOr("DATABASE_URL", defaultSQLiteDSN)
	case "pgx":
		cfg.DatabaseURL = l.required("DATABASE_URL")
	default:
		l.invalid("DB_DRIVER")
	}

	level, err := logging.ParseLevel(l.getOr("LOG_LEVEL", "info"))
	if err != nil {
		l.invalid("LOG_LEVEL")
	}
	cfg.LogLevel = level

	if len(l.errs.Missing) > 0 || len(l.errs.Invalid) > 0 {
		return nil, l.errs
	}
	return cfg, nil
}

type loader struct {
	lookup func(string) (string, bool)
	errs   *Error
}

// getOr は環境変数が空の場合にデフォルト値を返す。
func (l loader) getOr(key, defaultValue string) string {
	if v, ok := l.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return defaultValue
}

func (l loader) required(key string) string {
	v := l.getOr(key, "")
	if v == "" {
		l.errs.Missing = append(l.errs.Missing, key)
	}
	return v
}

func (l loader) duration(key string, defaultValue time.Duration) time.Duration {
	raw := l.getOr(key, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		l.invalid(key)
		return defaultValue
	}
	return d
}

func (l loader) invalid(key string) {
	l.errs.Invalid = append(l.errs.Invalid, key)
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// String はシークレットを伏せた設定の要約を返す。
func (c *Config) String() string {
	return fmt.Sprintf("port=%s driver=%s ai_url=%s upload_dir=%s issuer=%s access_ttl=%s refresh_ttl=%s env=%s",
		c.Port, c.DBDriver, c.AIURL, c.UploadDir, c.JWTIssuer, c.AccessTokenTTL, c.RefreshTokenTTL, c.Environment)
}
