// Package httpclient は外部サービスとのHTTP通信を行うクライアントを提供する。
//
// JSONとmultipart/form-dataのリクエストを送り、2xx以外の応答は *StatusError として返す。
// リクエストのcontextにリクエストIDがあれば X-Request-ID ヘッダーで伝播する。
package httpclient
