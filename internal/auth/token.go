package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuerName はトークンのiss claimに設定する値。
const TokenIssuerName = "briefly"

// ErrInvalidToken はトークンの署名・有効期限・形式のいずれかが不正であることを表す。
var ErrInvalidToken = errors.New("invalid token")

// TokenIssuer はHS256署名のアクセストークンを発行・検証する。
type TokenIssuer struct {
	secret  []byte
	expiry  time.Duration
	nowFunc func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(secret string, expiry time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:  []byte(secret),
		expiry:  expiry,
		nowFunc: time.Now,
	}
}

// Issue はユーザーIDをsubjectとするトークンと有効期限を返す。
func (t *TokenIssuer) Issue(userID string) (string, time.Time, error) {
	now := t.nowFunc()
	expiresAt := now.Add(t.expiry)
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    TokenIssuerName,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate はトークンを検証し、subjectのユーザーIDを返す。
// 失敗時はErrInvalidTokenをラップしたエラーを返す。
func (t *TokenIssuer) Validate(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(TokenIssuerName),
		jwt.WithTimeFunc(t.nowFunc),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
