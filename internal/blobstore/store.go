// Package blobstore はアップロード元ファイルの保存先を提供する。
// PostgreSQLのチャンクテーブルとローカルファイルシステムの2つのバックエンドを持つ。
package blobstore

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/hitoshi/briefly/internal/model"
)

// ErrNotFound は指定IDのBlobが存在しないことを表す。
var ErrNotFound = errors.New("blob not found")

// DefaultChunkSize はPostgresStoreのデフォルトのチャンクサイズ（255KiB）。
const DefaultChunkSize = 255 * 1024

// PutInput はBlob保存の入力。
type PutInput struct {
	OwnerUserID string
	Filename    string
	ContentType string
	Body        io.Reader
}

// Store はBlobストアのインターフェース。
type Store interface {
	// Put は本文を保存し、採番したIDとサイズ、SHA-256を含むメタデータを返す。
	Put(ctx context.Context, in PutInput) (*model.Blob, error)

	// Open はメタデータと本文のストリームを返す。呼び出し側はReadCloserを閉じること。
	// 存在しない場合はErrNotFoundを返す。
	Open(ctx context.Context, id string) (*model.Blob, io.ReadCloser, error)

	// Delete はBlobを削除する。存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id string) error

	// ListOlderThan はcutoffより前に作成されたBlobのメタデータを作成日時の昇順で返す。
	ListOlderThan(ctx context.Context, cutoff time.Time) ([]*model.Blob, error)
}
