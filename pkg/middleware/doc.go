// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// アクセストークンによる認証ゲート、リクエストボディのスキーマ検証、
// リクエストIDの付与とアクセスログ、パニックリカバリ、CORS設定を含む。
package middleware
