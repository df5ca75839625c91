// 要約APIサーバーのエントリポイント。
// 利用者の認証と、PDFから抽出した要約のCRUDを提供する。
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/summarize/internal/api"
	"github.com/nao1215/summarize/internal/config"
	"github.com/nao1215/summarize/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "要約APIサーバーの実行に失敗: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.Environment)
	slog.SetDefault(logger)
	logger.Info("設定を読み込みました", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := api.NewServer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("サーバーの初期化に失敗: %w", err)
	}
	defer func() {
		if err := server.Close(); err != nil {
			logger.Error("データベース接続のクローズに失敗しました", "error", err)
		}
	}()

	return server.Run(ctx)
}
