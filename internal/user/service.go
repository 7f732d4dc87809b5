// Package user はユーザー登録のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/briefly/internal/model"
	"github.com/hitoshi/briefly/internal/repository"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 8

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[1-9][0-9]{3,14}$`)
)

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	FirstName       string
	LastName        string
	Email           string
	Phone           string
	Password        string
	ConfirmPassword string
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo repository.UserRepository
	hashCost int
	nowFunc  func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{
		userRepo: userRepo,
		hashCost: bcrypt.DefaultCost,
		nowFunc:  time.Now,
	}
}

// Register は新しいユーザーを登録する。
// emailとphoneの組が既に存在する場合はDuplicateUserErrorを返す。
// 重複判定はリポジトリの単一INSERTに委ね、事前の存在確認は行わない。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in = normalize(in)
	if err := validate(in); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, model.NewServiceError("Failed to register user", err)
	}

	u := &model.User{
		ID:           uuid.New().String(),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Phone:        in.Phone,
		Email:        in.Email,
		PasswordHash: string(hash),
		CreatedAt:    s.nowFunc(),
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return nil, model.NewDuplicateUserError()
		}
		return nil, model.NewServiceError("Failed to register user", err)
	}

	slog.Info("user registered", slog.String("user_id", u.ID))
	return u, nil
}

// normalize は前後の空白を除去し、emailを小文字化、phoneから区切り文字を除去する。
func normalize(in RegisterInput) RegisterInput {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = NormalizePhone(in.Phone)
	return in
}

// phoneSeparators は電話番号の表記から取り除く区切り文字。
var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")

// NormalizePhone は電話番号から前後の空白と区切り文字（空白、ハイフン、括弧）を除去する。
// 登録時と検索時で同じ表記に揃えるために使う。
func NormalizePhone(phone string) string {
	return phoneSeparators.Replace(strings.TrimSpace(phone))
}

func validate(in RegisterInput) error {
	switch {
	case in.FirstName == "":
		return model.NewValidationError("first name is required")
	case in.LastName == "":
		return model.NewValidationError("last name is required")
	case !emailPattern.MatchString(in.Email):
		return model.NewValidationError("please enter a valid email address")
	case !phonePattern.MatchString(in.Phone):
		return model.NewValidationError("please enter a valid phone number")
	case len(in.Password) < MinPasswordLength:
		return model.NewValidationError("password must be at least 8 characters")
	case in.Password != in.ConfirmPassword:
		return model.NewValidationError("passwords do not match")
	}
	return nil
}
