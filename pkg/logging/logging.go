// Package logging はアプリケーション全体で使う構造化ロガーを生成する。
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// EnvProduction は本番環境を表すENVの値。
const EnvProduction = "production"

// New は環境に応じたslogロガーを生成する。
// 本番ではJSON、それ以外ではソース位置付きのテキストで出力する。
func New(w io.Writer, level slog.Level, env string) *slog.Logger {
	var handler slog.Handler
	if env == EnvProduction {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level, AddSource: true})
	}
	return slog.New(handler).With("service", "summarize-api")
}

// ParseLevel は "debug" / "info" / "warn" / "error" をslogのレベルに変換する。
// 空文字列はinfoとして扱う。
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("logging: 未知のログレベルです: %q", s)
}
