// Package api は要約APIのHTTPサーバーを提供する。
//
// 認証エンドポイント（/auth）は利用者の登録・ログイン・トークン再発行を扱い、
// /users と /summarizes は認証ミドルウェアの後ろに置かれる。
// 状態を変更するルートではハンドラの前にリクエストボディをスキーマで検証する。
package api
