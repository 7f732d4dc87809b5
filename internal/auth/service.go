// Package auth はパスワードによるログインとアクセストークンの発行・検証を提供する。
package auth

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/briefly/internal/model"
	"github.com/hitoshi/briefly/internal/repository"
)

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	tokens   *TokenIssuer
	nowFunc  func() time.Time
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, tokens *TokenIssuer) *Service {
	return &Service{
		userRepo: userRepo,
		tokens:   tokens,
		nowFunc:  time.Now,
	}
}

// Login はemailとパスワードを照合し、アクセストークンを発行する。
// emailは単独で一意ではないため、同じemailのアカウントを古い順に照合し最初に一致したものを使う。
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	candidates, err := s.userRepo.ListByEmail(ctx, email)
	if err != nil {
		return nil, model.NewServiceError("Failed to log in", err)
	}

	var matched *model.User
	for _, u := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil {
			matched = u
			break
		}
	}
	if matched == nil {
		slog.Info("login failed", slog.Int("candidates", len(candidates)))
		return nil, model.NewInvalidCredentialsError()
	}

	token, expiresAt, err := s.tokens.Issue(matched.ID)
	if err != nil {
		return nil, model.NewServiceError("Failed to log in", err)
	}

	now := s.nowFunc()
	if err := s.userRepo.TouchLastLogin(ctx, matched.ID, now); err != nil {
		// ログイン自体は成功扱い
		slog.Warn("failed to update last login",
			slog.String("user_id", matched.ID),
			slog.String("error", err.Error()),
		)
	} else {
		matched.LastLoggedInAt = &now
	}

	slog.Info("user logged in", slog.String("user_id", matched.ID))
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: matched}, nil
}

// CurrentUser はトークンから取り出したユーザーIDのユーザーを返す。
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, model.NewServiceError("Failed to load user", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}

// ValidateToken はアクセストークンを検証しユーザーIDを返す。
func (s *Service) ValidateToken(token string) (string, error) {
	return s.tokens.Validate(token)
}
