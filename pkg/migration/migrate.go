// Package migration はデータベーススキーマのマイグレーションを適用する。
//
// マイグレーションはgooseの注釈付きSQLファイル（"-- +goose Up" / "-- +goose Down"）で、
// ファイル名の先頭の番号順に適用される。適用状態はgooseの管理テーブルで追跡する。
package migration

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

// DialectFor はdatabase/sqlのドライバー名に対応するgooseの方言を返す。
func DialectFor(driver string) (goose.Dialect, error) {
	switch driver {
	case "sqlite", "sqlite3":
		return goose.DialectSQLite3, nil
	case "pgx", "postgres":
		return goose.DialectPostgres, nil
	}
	return "", fmt.Errorf("migration: 未対応のドライバーです: %q", driver)
}

// Run はfsys直下のマイグレーションのうち未適用のものを順に適用し、適用後のバージョンを返す。
func Run(ctx context.Context, db *sql.DB, dialect goose.Dialect, fsys fs.FS, logger *slog.Logger) (int64, error) {
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return 0, fmt.Errorf("migration: プロバイダーの初期化に失敗: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("migration: マイグレーションの適用に失敗: %w", err)
	}
	for _, r := range results {
		logger.InfoContext(ctx, "マイグレーションを適用しました",
			"version", r.Source.Version,
			"path", r.Source.Path,
			"duration", r.Duration,
		)
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("migration: 現在のバージョンの取得に失敗: %w", err)
	}
	return version, nil
}
