package credential

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize  = 16
	hashSize  = 32
	separator = ":"
)

// ErrMissingSecret は秘密鍵が空の場合に返される。
var ErrMissingSecret = errors.New("credential: 秘密鍵が設定されていません")

// hashEncoding は余りビットが0でない入力を拒否する。
var hashEncoding = base64.StdEncoding.Strict()

// KDFParams はArgon2idのパラメータ。保存値には含めないため、変更すると既存の保存値は照合できなくなる。
type KDFParams struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

// DefaultKDFParams は本番で使用するパラメータ。
var DefaultKDFParams = KDFParams{Time: 1, Memory: 64 * 1024, Threads: 4}

// Option はHasherの生成オプション。
type Option func(*KDFParams)

// WithKDFParams はArgon2idのパラメータを差し替える。
func WithKDFParams(p KDFParams) Option {
	return func(dst *KDFParams) {
		*dst = p
	}
}

// Hasher はパスワードの保存値の生成と照合を行う。
// 生成後は不変で、複数のgoroutineから同時に使用できる。
type Hasher struct {
	pepper []byte
	params KDFParams
}

// NewHasher はプロセス秘密鍵をペッパーとして使うHasherを生成する。
func NewHasher(secret string, opts ...Option) (*Hasher, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}

	params := DefaultKDFParams
	for _, opt := range opts {
		opt(&params)
	}
	return &Hasher{pepper: []byte(secret), params: params}, nil
}

// Protect はパスワードを保存形式に変換する。
// ソルトは毎回ランダムに生成する。
func (h *Hasher) Protect(password string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("credential: ソルトの生成に失敗: %w", err)
	}
	return hex.EncodeToString(salt) + separator + hashEncoding.EncodeToString(h.derive(password, salt)), nil
}

// Verify は候補パスワードが保存値と一致するかを返す。
// 保存値が不正・改変済み・別の秘密鍵で作られたものであれば false を返す。
func (h *Hasher) Verify(candidate, stored string) bool {
	salt, want, ok := parse(stored)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare(h.derive(candidate, salt), want) == 1
}

// derive はHMAC-SHA256でペッパーを混ぜた値をArgon2idの入力にする。
func (h *Hasher) derive(password string, salt []byte) []byte {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(password))
	return argon2.IDKey(mac.Sum(nil), salt, h.params.Time, h.params.Memory, h.params.Threads, hashSize)
}

func parse(stored string) (salt, hash []byte, ok bool) {
	saltHex, body, found := strings.Cut(stored, separator)
	if !found {
		return nil, nil, false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) != saltSize || hex.EncodeToString(salt) != saltHex {
		return nil, nil, false
	}
	hash, err = hashEncoding.DecodeString(body)
	if err != nil || len(hash) != hashSize {
		return nil, nil, false
	}
	return salt, hash, true
}
