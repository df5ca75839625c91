package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/nao1215/summarize/pkg/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

var (
	// ErrNotFound は対象のレコードが存在しない場合に返される。
	ErrNotFound = errors.New("store: レコードが見つかりません")
	// ErrConflict は一意制約に違反した場合に返される。
	ErrConflict = errors.New("store: レコードが既に存在します")
)

// pgUniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const pgUniqueViolation = "23505"

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Open はデータベースに接続し、マイグレーションを適用する。
// driverには "sqlite" または "pgx" を指定する。
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*sqlx.DB, error) {
	dialect, err := migration.DialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: データベース接続に失敗: %w", err)
	}
	if driver == "sqlite" && strings.Contains(dsn, ":memory:") {
		// インメモリDBは接続ごとに別のDBになる
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: データベースへの疎通確認に失敗: %w", err)
	}

	migrations, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: マイグレーションの読み込みに失敗: %w", err)
	}
	version, err := migration.Run(ctx, db.DB, dialect, migrations, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.InfoContext(ctx, "データベースを初期化しました", "driver", driver, "schema_version", version)

	return db, nil
}

// now は保存用の現在時刻を返す。PostgreSQLの精度に合わせてマイクロ秒で切り捨てる。
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE"))
	}
	return false
}
