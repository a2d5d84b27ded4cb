package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken は形式不正・署名不一致・期限切れのトークンを表す
var ErrInvalidToken = errors.New("invalid token")

// MinSecretLen は HS256 の署名鍵として受け付ける最小バイト数
const MinSecretLen = 32

// TokenManager は用途 (audience) ごとの署名付きトークンを発行・検証する
type TokenManager struct {
	secret     []byte
	audience   string
	expiration time.Duration
	now        func() time.Time
}

// NewTokenManager は TokenManager を生成する。expiration が 0 のトークンは失効しない
func NewTokenManager(secret []byte, audience string, expiration time.Duration) (*TokenManager, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("token secret must be at least %d bytes, got %d", MinSecretLen, len(secret))
	}
	if audience == "" {
		return nil, errors.New("token audience is required")
	}
	return &TokenManager{
		secret:     secret,
		audience:   audience,
		expiration: expiration,
		now:        time.Now,
	}, nil
}

// WithClock は時刻の取得元を差し替える（テスト用）
func (m *TokenManager) WithClock(now func() time.Time) *TokenManager {
	m.now = now
	return m
}

// Generate は subject (例: 購読者のメールアドレス) を sub に持つ HS256 トークンを生成する
func (m *TokenManager) Generate(subject string) (string, error) {
	now := m.now()
	claims := jwt.RegisteredClaims{
		Subject:  subject,
		Audience: jwt.ClaimStrings{m.audience},
		IssuedAt: jwt.NewNumericDate(now),
	}
	if m.expiration > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.expiration))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Validate はトークンを検証し subject を返す
func (m *TokenManager) Validate(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(m.audience),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
