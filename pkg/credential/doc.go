// Package credential は利用者パスワードを保存形式へ変換し、照合する。
//
// 保存形式は "<16バイトソルトの小文字16進>:<Argon2idハッシュのBase64>" で、
// 同じパスワードでも呼び出しごとに異なる値になる。ハッシュの入力はプロセス秘密鍵を
// 鍵としたHMAC-SHA256で、秘密鍵が異なれば同じパスワードでも照合できない。
//
// 保存値は一方向で、元のパスワードには戻せない。照合は候補から同じソルトで
// ハッシュを再計算し、定数時間で比較する。
package credential
