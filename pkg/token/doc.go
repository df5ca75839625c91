// Package token はHS256署名付きのアクセストークンとリフレッシュトークンを発行・検証する。
//
// トークンの種別はクレーム内の "kind" で区別し、検証結果の Verified から
// Access / Refresh のいずれかとしてのみ取り出せる。期限切れのトークンは
// 署名が正しい場合に限り、Expired を立てた上で内容を返す。
package token
