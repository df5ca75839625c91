// Package validation はJSONリクエストボディを閉じたスキーマで検証する。
//
// スキーマはGoの構造体で表し、各フィールドの json タグが名前を、validate タグが
// 必須・少なくとも1つ必須などの規則を表す。宣言されていないフィールドや
// 型の合わない値、ボディ末尾の余分なデータはすべて違反として扱う。
// キーは json タグの名前と大文字小文字まで一致する必要があり、同じキーの重複も違反になる。
//
// 違反の詳細は *Error に保持されるが、クライアントへ返すことは想定していない。
package validation
