// Package share は要約の共有と、共有された要約の一覧取得を提供する。
package share

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/briefly/internal/metrics"
	"github.com/hitoshi/briefly/internal/model"
	"github.com/hitoshi/briefly/internal/repository"
	"github.com/hitoshi/briefly/internal/user"
)

// SharedDateLayout は共有一覧に表示する共有日の書式。
const SharedDateLayout = "January 02, 2006"

// resolveConcurrency は共有一覧の要約・送信者解決の同時実行数上限。
const resolveConcurrency = 8

// Service は共有サービス。
type Service struct {
	summaryRepo repository.SummaryRepository
	userRepo    repository.UserRepository
	shareRepo   repository.ShareRepository
	metrics     metrics.MetricsCollector
	nowFunc     func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	summaryRepo repository.SummaryRepository,
	userRepo repository.UserRepository,
	shareRepo repository.ShareRepository,
	mc metrics.MetricsCollector,
) *Service {
	return &Service{
		summaryRepo: summaryRepo,
		userRepo:    userRepo,
		shareRepo:   shareRepo,
		metrics:     mc,
		nowFunc:     time.Now,
	}
}

// Share は送信者が所有する要約を受信者へ共有し、作成した共有記録を返す。
// 受信者はメールアドレス、電話番号、ユーザーIDのいずれかで指定する。
// 同じ組み合わせでの重複共有は許容する。
func (s *Service) Share(ctx context.Context, senderUserID, summaryID, recipientIdentifier string) (*model.SharedSummaryRecord, error) {
	recipientIdentifier = strings.TrimSpace(recipientIdentifier)
	if recipientIdentifier == "" {
		return nil, model.NewValidationError("recipient must not be empty")
	}

	sum, err := s.summaryRepo.FindByID(ctx, summaryID)
	if err != nil {
		return nil, model.NewServiceError("Failed to load summary", err)
	}
	if sum == nil || sum.OwnerUserID != senderUserID {
		return nil, model.NewSummaryNotFoundError(summaryID)
	}

	recipient, err := s.resolveRecipient(ctx, recipientIdentifier)
	if err != nil {
		return nil, model.NewServiceError("Failed to look up recipient", err)
	}
	if recipient == nil {
		return nil, model.NewRecipientNotFoundError()
	}
	if recipient.ID == sum.OwnerUserID {
		return nil, model.NewSelfShareError()
	}

	record := &model.SharedSummaryRecord{
		ID:              uuid.New().String(),
		SummaryID:       sum.ID,
		SenderUserID:    sum.OwnerUserID,
		RecipientUserID: recipient.ID,
		SharedAt:        s.nowFunc(),
	}
	if err := s.shareRepo.Create(ctx, record); err != nil {
		return nil, model.NewServiceError("Failed to share summary", err)
	}

	s.metrics.RecordShare()
	slog.Info("summary shared",
		slog.String("share_id", record.ID),
		slog.String("summary_id", record.SummaryID),
		slog.String("user_id", record.SenderUserID),
		slog.String("recipient_user_id", record.RecipientUserID),
	)
	return record, nil
}

// resolveRecipient は識別子の形式に応じてユーザーを検索する。
// "@"を含めばメールアドレス、UUID形式ならユーザーID、それ以外は電話番号として扱う。
// 電話番号は登録時と同じく区切り文字を除去してから検索する。
func (s *Service) resolveRecipient(ctx context.Context, identifier string) (*model.User, error) {
	switch {
	case strings.Contains(identifier, "@"):
		return s.userRepo.FindByEmail(ctx, strings.ToLower(identifier))
	case isUUID(identifier):
		return s.userRepo.FindByID(ctx, identifier)
	default:
		return s.userRepo.FindByPhone(ctx, user.NormalizePhone(identifier))
	}
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// ListSharedWith はユーザー宛てに共有された要約を共有日時の降順で返す。
// 要約または送信者が既に削除されている共有記録はエラーにせず読み飛ばす。
func (s *Service) ListSharedWith(ctx context.Context, userID string) ([]*model.SharedSummaryView, error) {
	records, err := s.shareRepo.ListByRecipient(ctx, userID)
	if err != nil {
		return nil, model.NewServiceError("Failed to list shared summaries", err)
	}

	// 並行に解決し、記録の順序はスロット位置で保つ
	views := make([]*model.SharedSummaryView, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for i, rec := range records {
		g.Go(func() error {
			view, err := s.resolveView(gctx, rec)
			if err != nil {
				return err
			}
			views[i] = view
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, model.NewServiceError("Failed to resolve shared summaries", err)
	}

	result := make([]*model.SharedSummaryView, 0, len(views))
	for _, v := range views {
		if v != nil {
			result = append(result, v)
		}
	}
	return result, nil
}

// resolveView は共有記録に対応する要約と送信者を取得してビューを組み立てる。
// どちらかが存在しない場合はnilを返す。
func (s *Service) resolveView(ctx context.Context, rec *model.SharedSummaryRecord) (*model.SharedSummaryView, error) {
	sum, err := s.summaryRepo.FindByID(ctx, rec.SummaryID)
	if err != nil {
		return nil, err
	}
	if sum == nil {
		slog.Debug("skipping share of deleted summary",
			slog.String("share_id", rec.ID),
			slog.String("summary_id", rec.SummaryID),
		)
		return nil, nil
	}

	sender, err := s.userRepo.FindByID(ctx, rec.SenderUserID)
	if err != nil {
		return nil, err
	}
	if sender == nil {
		slog.Debug("skipping share from deleted user",
			slog.String("share_id", rec.ID),
			slog.String("sender_user_id", rec.SenderUserID),
		)
		return nil, nil
	}

	return &model.SharedSummaryView{
		ID:               sum.ID,
		Title:            sum.GeneratedTitle,
		ContentType:      sum.ContentType,
		OutputData:       sum.GeneratedBody,
		InputData:        inputData(sum),
		SharedBy:         sender.Email,
		SharedAt:         rec.SharedAt.Format(SharedDateLayout),
		SummaryCreatedAt: sum.CreatedAt,
	}, nil
}

// inputData は入力テキスト、ファイル入力の場合は元ファイル名を返す。
func inputData(sum *model.Summary) string {
	if sum.InputText != nil {
		return *sum.InputText
	}
	if sum.FileMetadata != nil {
		return sum.FileMetadata.OriginalFilename
	}
	return ""
}
