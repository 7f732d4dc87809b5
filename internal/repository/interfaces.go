// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/briefly/internal/model"
)

// ErrDuplicateUser はemailとphoneの組が既に登録済みであることを表す。
var ErrDuplicateUser = errors.New("user with the same email and phone already exists")

// ErrNotFound は更新・削除対象の行が存在しないことを表す。
var ErrNotFound = errors.New("record not found")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。
	// emailとphoneの重複確認と挿入は単一のINSERT文で行い、重複時はErrDuplicateUserを返す。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail は指定emailのユーザーのうち最も古いものを返す。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByPhone は指定phoneのユーザーのうち最も古いものを返す。見つからない場合はnilを返す。
	FindByPhone(ctx context.Context, phone string) (*model.User, error)

	// ListByEmail は指定emailのユーザーを作成日時の昇順で返す。
	// emailは単独では一意でないため、ログイン時の照合に使う。
	ListByEmail(ctx context.Context, email string) ([]*model.User, error)

	// TouchLastLogin は最終ログイン日時を更新する。
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// SummaryRepository は要約データの永続化インターフェース。
type SummaryRepository interface {
	// Create は要約を作成する。
	Create(ctx context.Context, summary *model.Summary) error

	// FindByID は指定IDの要約を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Summary, error)

	// ListByUserID はユーザーの要約一覧を作成日時の降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Summary, error)

	// UpdateGenerated は生成タイトルと本文のみを上書きする。
	// 対象が存在しない場合はErrNotFoundを返す。
	UpdateGenerated(ctx context.Context, id, title, body string, updatedAt time.Time) error

	// Delete は指定IDの要約を削除する。対象が存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id string) error

	// ExistsByBlobID は指定Blobを参照する要約が存在するかを返す。
	ExistsByBlobID(ctx context.Context, blobID string) (bool, error)
}

// ShareRepository は共有レコードの永続化インターフェース。
type ShareRepository interface {
	// Create は共有レコードを作成する。
	Create(ctx context.Context, record *model.SharedSummaryRecord) error

	// ListByRecipient は受信者宛ての共有レコードを共有日時の降順で返す。
	ListByRecipient(ctx context.Context, recipientUserID string) ([]*model.SharedSummaryRecord, error)
}
