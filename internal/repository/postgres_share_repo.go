package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/hitoshi/briefly/internal/model"
)

// PostgresShareRepo はPostgreSQLを使用した共有レコードリポジトリ。
type PostgresShareRepo struct {
	db *sql.DB
}

// NewPostgresShareRepo はPostgresShareRepoを生成する。
func NewPostgresShareRepo(db *sql.DB) *PostgresShareRepo {
	return &PostgresShareRepo{db: db}
}

// Create は共有レコードを作成する。
func (r *PostgresShareRepo) Create(ctx context.Context, rec *model.SharedSummaryRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO shared_summaries (id, summary_id, sender_user_id, recipient_user_id, shared_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.SummaryID, rec.SenderUserID, rec.RecipientUserID, rec.SharedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert shared summary: %w", err)
	}
	return nil
}

// ListByRecipient は受信者宛ての共有レコードを共有日時の降順で返す。
func (r *PostgresShareRepo) ListByRecipient(ctx context.Context, recipientUserID string) ([]*model.SharedSummaryRecord, error) {
	if _, err := uuid.Parse(recipientUserID); err != nil {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, summary_id, sender_user_id, recipient_user_id, shared_at
		 FROM shared_summaries
		 WHERE recipient_user_id = $1
		 ORDER BY shared_at DESC, id DESC`, recipientUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list shared summaries: %w", err)
	}
	defer rows.Close()

	var records []*model.SharedSummaryRecord
	for rows.Next() {
		rec := &model.SharedSummaryRecord{}
		if err := rows.Scan(&rec.ID, &rec.SummaryID, &rec.SenderUserID, &rec.RecipientUserID, &rec.SharedAt); err != nil {
			return nil, fmt.Errorf("failed to scan shared summary: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate shared summaries: %w", err)
	}
	return records, nil
}

// compile-time interface check
var _ ShareRepository = (*PostgresShareRepo)(nil)
