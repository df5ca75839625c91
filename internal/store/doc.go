// Package store は利用者と要約を永続化するリポジトリを提供する。
//
// database/sql のドライバーとして modernc.org/sqlite（"sqlite"）と
// pgx（"pgx"）に対応し、クエリは sqlx でドライバーごとのプレースホルダーに変換する。
// スキーマは Open 時に埋め込みのマイグレーションで最新化される。
package store
