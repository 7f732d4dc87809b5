package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/briefly/internal/model"
)

const metaSuffix = ".meta.json"

// FileStore はローカルディスクにファイルを保存する。
// 本文は {dir}/{id}、メタデータは {dir}/{id}.meta.json に置く。
type FileStore struct {
	dir string
}

var _ Store = (*FileStore)(nil)

// blobMeta はサイドカーファイルに書き出すメタデータ。
type blobMeta struct {
	ID          string    `json:"id"`
	OwnerUserID string    `json:"owner_user_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewFileStore はFileStoreを生成する。ディレクトリが存在しない場合は作成する。
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create blob directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Put は本文を一時ファイルに書き込みながらSHA-256を計算し、fsync後にリネームで確定する。
// メタデータは本文の確定後に同じ手順で書き出す。
func (s *FileStore) Put(ctx context.Context, in PutInput) (*model.Blob, error) {
	id := uuid.New().String()
	dataPath := s.dataPath(id)

	hasher := sha256.New()
	size, err := writeAtomic(dataPath, io.TeeReader(&ctxReader{ctx: ctx, r: in.Body}, hasher))
	if err != nil {
		return nil, err
	}

	meta := blobMeta{
		ID:          id,
		OwnerUserID: in.OwnerUserID,
		Filename:    in.Filename,
		ContentType: in.ContentType,
		Size:        size,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
		CreatedAt:   time.Now(),
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		os.Remove(dataPath)
		return nil, fmt.Errorf("failed to encode blob metadata: %w", err)
	}
	if _, err := writeAtomic(s.metaPath(id), bytes.NewReader(encoded)); err != nil {
		os.Remove(dataPath)
		return nil, err
	}

	return meta.toModel(), nil
}

// Open はメタデータを読み込み、本文ファイルを開いて返す。
func (s *FileStore) Open(ctx context.Context, id string) (*model.Blob, io.ReadCloser, error) {
	if !validID(id) {
		return nil, nil, ErrNotFound
	}

	meta, err := s.readMeta(id)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(s.dataPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open blob %s: %w", id, err)
	}
	return meta.toModel(), f, nil
}

// Delete は本文とメタデータを削除する。どちらも存在しなかった場合はErrNotFoundを返す。
func (s *FileStore) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}

	found := false
	for _, p := range []string{s.dataPath(id), s.metaPath(id)} {
		err := os.Remove(p)
		switch {
		case err == nil:
			found = true
		case errors.Is(err, os.ErrNotExist):
		default:
			return fmt.Errorf("failed to delete blob file %s: %w", p, err)
		}
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// ListOlderThan はメタデータファイルを走査してcutoffより前に作成されたBlobを返す。
func (s *FileStore) ListOlderThan(ctx context.Context, cutoff time.Time) ([]*model.Blob, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+metaSuffix))
	if err != nil {
		return nil, fmt.Errorf("failed to list blob metadata: %w", err)
	}

	var blobs []*model.Blob
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := strings.TrimSuffix(filepath.Base(m), metaSuffix)
		meta, err := s.readMeta(id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if meta.CreatedAt.Before(cutoff) {
			blobs = append(blobs, meta.toModel())
		}
	}

	sort.Slice(blobs, func(i, j int) bool {
		return blobs[i].CreatedAt.Before(blobs[j].CreatedAt)
	})
	return blobs, nil
}

func (s *FileStore) dataPath(id string) string {
	return filepath.Join(s.dir, id)
}

func (s *FileStore) metaPath(id string) string {
	return filepath.Join(s.dir, id+metaSuffix)
}

func (s *FileStore) readMeta(id string) (*blobMeta, error) {
	raw, err := os.ReadFile(s.metaPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob metadata %s: %w", id, err)
	}
	var meta blobMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode blob metadata %s: %w", id, err)
	}
	return &meta, nil
}

func (m *blobMeta) toModel() *model.Blob {
	return &model.Blob{
		ID:          m.ID,
		OwnerUserID: m.OwnerUserID,
		Filename:    m.Filename,
		ContentType: m.ContentType,
		Size:        m.Size,
		Checksum:    m.Checksum,
		CreatedAt:   m.CreatedAt,
	}
}

// validID はIDがUUID形式であることを確認する。パス操作文字を含むIDを弾く。
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// writeAtomic は temp file → 書き込み → fsync → rename の順でファイルを確定する。
// 失敗時は一時ファイルを削除する。
func writeAtomic(path string, r io.Reader) (int64, error) {
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	size, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to write blob data: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to fsync blob data: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to close blob file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to rename blob file: %w", err)
	}
	return size, nil
}

// ctxReader はコンテキストのキャンセルで読み込みを打ち切る。
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
