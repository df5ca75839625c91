package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind はトークンの種別。
type Kind string

const (
	// KindAccess はAPI呼び出しに使うトークン。
	KindAccess Kind = "ACCESS"
	// KindRefresh はトークンの再発行にのみ使うトークン。
	KindRefresh Kind = "REFRESH"
)

func (k Kind) valid() bool {
	return k == KindAccess || k == KindRefresh
}

// DefaultIssuer はWithIssuerを指定しない場合の発行者名。
const DefaultIssuer = "summarize-api"

var (
	// ErrMissingSecret は署名用シークレットが空の場合に返される。
	ErrMissingSecret = errors.New("token: 署名用シークレットが設定されていません")
	// ErrInvalidToken は署名・形式・発行者・種別のいずれかが不正な場合に返される。
	ErrInvalidToken = errors.New("token: トークンが無効です")
)

// Identity はトークンに埋め込む利用者情報。
// リフレッシュトークンには ID と Email のみを含める。
type Identity struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// claims はJWTのペイロード。
type claims struct {
	UserID    string `json:"id"`
	Email     string `json:"email,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Kind      Kind   `json:"kind"`
	jwt.RegisteredClaims
}

// Verified は検証済みトークンの内容。
type Verified struct {
	identity  Identity
	kind      Kind
	IssuedAt  time.Time
	ExpiresAt time.Time // 無期限トークンではゼロ値
	Expired   bool
}

// Kind はトークンの種別を返す。
func (v Verified) Kind() Kind {
	return v.kind
}

// Access はアクセストークンであれば利用者情報を返す。
func (v Verified) Access() (Identity, bool) {
	if v.kind != KindAccess {
		return Identity{}, false
	}
	return v.identity, true
}

// Refresh はリフレッシュトークンであれば利用者情報を返す。
func (v Verified) Refresh() (Identity, bool) {
	if v.kind != KindRefresh {
		return Identity{}, false
	}
	return v.identity, true
}

// Service はトークンの発行と検証を行う。
// 生成後は不変で、複数のgoroutineから同時に使用できる。
type Service struct {
	secret []byte
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// Option はServiceの生成オプション。
type Option func(*Service)

// WithIssuer は発行者名を設定する。
func WithIssuer(issuer string) Option {
	return func(s *Service) {
		s.issuer = issuer
	}
}

// WithClock は現在時刻の取得方法を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New は署名用シークレットからServiceを生成する。
func New(secret string, opts ...Option) (*Service, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	s := &Service{
		secret: []byte(secret),
		issuer: DefaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.now),
	)
	return s, nil
}

// Issue は利用者情報を含むトークンを発行する。
// ttl が0の場合は有効期限を設定しない。負の場合は発行時点で期限切れになる。
func (s *Service) Issue(id Identity, kind Kind, ttl time.Duration) (string, error) {
	if !kind.valid() {
		return "", fmt.Errorf("token: 未知のトークン種別です: %q", kind)
	}
	if id.ID == "" {
		return "", errors.New("token: 利用者IDが空です")
	}

	now := s.now()
	c := claims{
		UserID:    id.ID,
		Email:     id.Email,
		Username:  id.Username,
		FirstName: id.FirstName,
		LastName:  id.LastName,
		Kind:      kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Issuer:   s.issuer,
			Subject:  id.ID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl != 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token: 署名に失敗: %w", err)
	}
	return signed, nil
}

// Verify はトークンの署名と内容を検証する。
// 署名が正しく期限だけが切れている場合は Expired=true で内容を返し、エラーにはしない。
func (s *Service) Verify(raw string) (Verified, error) {
	c := &claims{}
	_, err := s.parser.ParseWithClaims(raw, c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})

	expired := false
	if err != nil {
		// jwt/v5 は署名を検証してからクレームを検証するため、
		// ErrTokenExpired は署名が正しいことを意味する。
		if !errors.Is(err, jwt.ErrTokenExpired) {
			return Verified{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		expired = true
	}

	if c.Issuer != s.issuer || !c.Kind.valid() || c.UserID == "" {
		return Verified{}, ErrInvalidToken
	}

	v := Verified{
		identity: Identity{
			ID:        c.UserID,
			Email:     c.Email,
			Username:  c.Username,
			FirstName: c.FirstName,
			LastName:  c.LastName,
		},
		kind:    c.Kind,
		Expired: expired,
	}
	if c.IssuedAt != nil {
		v.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		v.ExpiresAt = c.ExpiresAt.Time
	}
	return v, nil
}
