package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/briefly/internal/model"
)

const summaryColumns = `id, owner_user_id, content_type, source_kind, input_text,
	generated_title, generated_body, original_filename, mime_type, stored_blob_id,
	created_at, updated_at`

// PostgresSummaryRepo はPostgreSQLを使用した要約リポジトリ。
type PostgresSummaryRepo struct {
	db *sql.DB
}

// NewPostgresSummaryRepo はPostgresSummaryRepoを生成する。
func NewPostgresSummaryRepo(db *sql.DB) *PostgresSummaryRepo {
	return &PostgresSummaryRepo{db: db}
}

// Create は要約を作成する。
func (r *PostgresSummaryRepo) Create(ctx context.Context, s *model.Summary) error {
	var filename, mimeType, blobID sql.NullString
	if fm := s.FileMetadata; fm != nil {
		filename = sql.NullString{String: fm.OriginalFilename, Valid: true}
		mimeType = sql.NullString{String: fm.MimeType, Valid: true}
		blobID = sql.NullString{String: fm.StoredBlobID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO summaries (`+summaryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID, s.OwnerUserID, string(s.ContentType), string(s.SourceKind), nullString(s.InputText),
		s.GeneratedTitle, s.GeneratedBody, filename, mimeType, blobID,
		s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert summary: %w", err)
	}
	return nil
}

// FindByID は指定IDの要約を取得する。見つからない場合はnilを返す。
func (r *PostgresSummaryRepo) FindByID(ctx context.Context, id string) (*model.Summary, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	s, err := scanSummary(r.db.QueryRowContext(ctx,
		`SELECT `+summaryColumns+` FROM summaries WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to find summary by ID: %w", err)
	}
	return s, nil
}

// ListByUserID はユーザーの要約一覧を作成日時の降順で返す。
func (r *PostgresSummaryRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Summary, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+summaryColumns+` FROM summaries
		 WHERE owner_user_id = $1
		 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*model.Summary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate summaries: %w", err)
	}
	return summaries, nil
}

// UpdateGenerated は生成タイトルと本文のみを上書きする。
// 楽観ロックは行わず、同時更新は後勝ちとなる。
func (r *PostgresSummaryRepo) UpdateGenerated(ctx context.Context, id, title, body string, updatedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE summaries SET generated_title = $2, generated_body = $3, updated_at = $4 WHERE id = $1`,
		id, title, body, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update summary: %w", err)
	}
	return expectOneRow(result)
}

// Delete は指定IDの要約を削除する。
func (r *PostgresSummaryRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM summaries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete summary: %w", err)
	}
	return expectOneRow(result)
}

// ExistsByBlobID は指定Blobを参照する要約が存在するかを返す。
func (r *PostgresSummaryRepo) ExistsByBlobID(ctx context.Context, blobID string) (bool, error) {
	if _, err := uuid.Parse(blobID); err != nil {
		return false, nil
	}
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM summaries WHERE stored_blob_id = $1)`, blobID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check blob reference: %w", err)
	}
	return exists, nil
}

// scanSummary は1行をSummaryに読み込む。行が存在しない場合は(nil, nil)を返す。
func scanSummary(row rowScanner) (*model.Summary, error) {
	s := &model.Summary{}
	var (
		contentType, sourceKind    string
		inputText                  sql.NullString
		filename, mimeType, blobID sql.NullString
	)
	err := row.Scan(&s.ID, &s.OwnerUserID, &contentType, &sourceKind, &inputText,
		&s.GeneratedTitle, &s.GeneratedBody, &filename, &mimeType, &blobID,
		&s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.ContentType = model.ContentType(contentType)
	s.SourceKind = model.SourceKind(sourceKind)
	if inputText.Valid {
		v := inputText.String
		s.InputText = &v
	}
	if blobID.Valid {
		s.FileMetadata = &model.FileMetadata{
			OriginalFilename: filename.String,
			MimeType:         mimeType.String,
			StoredBlobID:     blobID.String,
		}
	}
	return s, nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

// expectOneRow は更新・削除が1行以上に作用したことを確認する。
func expectOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// compile-time interface check
var _ SummaryRepository = (*PostgresSummaryRepo)(nil)
