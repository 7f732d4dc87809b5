package blobstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/briefly/internal/model"
)

// PostgresStore はblobsテーブルとblob_chunksテーブルにファイルを分割保存する。
// 書き込みと読み出しはいずれもチャンク単位で行い、ファイル全体をメモリに載せない。
type PostgresStore struct {
	db        *sql.DB
	chunkSize int
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore はPostgresStoreを生成する。chunkSizeが0以下の場合はDefaultChunkSizeを使う。
func NewPostgresStore(db *sql.DB, chunkSize int) *PostgresStore {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &PostgresStore{db: db, chunkSize: chunkSize}
}

// Put は本文をチャンクに分割して同一トランザクションで保存する。
// SHA-256は書き込みながら計算する。
func (s *PostgresStore) Put(ctx context.Context, in PutInput) (*model.Blob, error) {
	blob := &model.Blob{
		ID:          uuid.New().String(),
		OwnerUserID: in.OwnerUserID,
		Filename:    in.Filename,
		ContentType: in.ContentType,
		CreatedAt:   time.Now(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO blobs (id, owner_user_id, filename, content_type, chunk_size, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		blob.ID, blob.OwnerUserID, blob.Filename, blob.ContentType, s.chunkSize, blob.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert blob: %w", err)
	}

	hasher := sha256.New()
	buf := make([]byte, s.chunkSize)
	var size int64
	for n := 0; ; n++ {
		read, rerr := io.ReadFull(in.Body, buf)
		if read > 0 {
			chunk := buf[:read]
			hasher.Write(chunk)
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO blob_chunks (blob_id, n, data) VALUES ($1, $2, $3)`,
				blob.ID, n, chunk,
			); err != nil {
				return nil, fmt.Errorf("failed to insert blob chunk %d: %w", n, err)
			}
			size += int64(read)
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return nil, fmt.Errorf("failed to read upload body: %w", rerr)
		}
	}

	blob.Size = size
	blob.Checksum = hex.EncodeToString(hasher.Sum(nil))

	if _, err := tx.ExecContext(ctx,
		`UPDATE blobs SET size = $2, checksum = $3 WHERE id = $1`,
		blob.ID, blob.Size, blob.Checksum,
	); err != nil {
		return nil, fmt.Errorf("failed to finalize blob: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return blob, nil
}

// Open はメタデータを取得し、チャンクを1件ずつ読み出すReadCloserを返す。
func (s *PostgresStore) Open(ctx context.Context, id string) (*model.Blob, io.ReadCloser, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil, ErrNotFound
	}

	blob := &model.Blob{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_user_id, filename, content_type, size, checksum, created_at
		 FROM blobs WHERE id = $1`,
		id,
	).Scan(&blob.ID, &blob.OwnerUserID, &blob.Filename, &blob.ContentType, &blob.Size, &blob.Checksum, &blob.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find blob: %w", err)
	}

	return blob, &chunkReader{ctx: ctx, db: s.db, blobID: blob.ID, size: blob.Size}, nil
}

// Delete はBlobを削除する。チャンクはCASCADEで削除される。
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOlderThan はcutoffより前に作成されたBlobを返す。
func (s *PostgresStore) ListOlderThan(ctx context.Context, cutoff time.Time) ([]*model.Blob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_user_id, filename, content_type, size, checksum, created_at
		 FROM blobs WHERE created_at < $1 ORDER BY created_at ASC`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}
	defer rows.Close()

	var blobs []*model.Blob
	for rows.Next() {
		b := &model.Blob{}
		if err := rows.Scan(&b.ID, &b.OwnerUserID, &b.Filename, &b.ContentType, &b.Size, &b.Checksum, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan blob: %w", err)
		}
		blobs = append(blobs, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate blobs: %w", err)
	}
	return blobs, nil
}

// chunkReader はblob_chunksを番号順に1件ずつ取得するio.ReadCloser。
// 同時に保持するのは1チャンク分のみ。
// sizeに達する前にチャンクが見つからなくなった場合はio.ErrUnexpectedEOFを返す。
type chunkReader struct {
	ctx    context.Context
	db     *sql.DB
	blobID string
	size   int64
	read   int64
	next   int
	buf    []byte
	closed bool
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, errors.New("read from closed blob reader")
	}
	for len(r.buf) == 0 {
		if r.read >= r.size {
			return 0, io.EOF
		}
		if err := r.fetch(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	r.read += int64(n)
	return n, nil
}

func (r *chunkReader) fetch() error {
	var data []byte
	err := r.db.QueryRowContext(r.ctx,
		`SELECT data FROM blob_chunks WHERE blob_id = $1 AND n = $2`,
		r.blobID, r.next,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("blob %s: chunk %d missing after %d of %d bytes: %w", r.blobID, r.next, r.read, r.size, io.ErrUnexpectedEOF)
	}
	if err != nil {
		return fmt.Errorf("failed to read blob chunk %d: %w", r.next, err)
	}
	r.next++
	r.buf = data
	return nil
}

func (r *chunkReader) Close() error {
	r.closed = true
	r.buf = nil
	return nil
}
