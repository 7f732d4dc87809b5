// Package summary は要約のライフサイクル（作成、取得、再生成、削除、元ファイル取得）を管理する。
package summary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/briefly/internal/blobstore"
	"github.com/hitoshi/briefly/internal/extract"
	"github.com/hitoshi/briefly/internal/metrics"
	"github.com/hitoshi/briefly/internal/model"
	"github.com/hitoshi/briefly/internal/repository"
	"github.com/hitoshi/briefly/internal/summarizer"
)

// ファイル名とMIMEタイプの最大文字数（blobs / summaries テーブルの列長）。
const (
	MaxFilenameLength = 255
	MaxMimeTypeLength = 255
)

// Summarizer はAI要約ゲートウェイのインターフェース。
type Summarizer interface {
	Summarize(ctx context.Context, contentType model.ContentType, text string) (*summarizer.Result, error)
	Regenerate(ctx context.Context, in summarizer.RegenerateInput) (*summarizer.Result, error)
}

// CreateTextInput はテキスト入力からの要約作成パラメータ。
type CreateTextInput struct {
	OwnerUserID string
	ContentType model.ContentType
	UploadKind  model.SourceKind // 空の場合はtext
	Text        string
}

// CreateFileInput はファイル入力からの要約作成パラメータ。
type CreateFileInput struct {
	OwnerUserID string
	ContentType model.ContentType
	UploadKind  model.SourceKind // 空の場合はfile
	Filename    string
	MimeType    string
	Raw         []byte
}

// Service は要約ライフサイクルのサービス層。
// 要約をメモリに保持せず、全ての操作でIDから取得し直す。
type Service struct {
	repo      repository.SummaryRepository
	blobs     blobstore.Store
	gateway   Summarizer
	metrics   metrics.MetricsCollector
	nowFunc   func() time.Time
	idFunc    func() string
	extracter func(filename, mimeHint string, raw []byte) (string, error)
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	repo repository.SummaryRepository,
	blobs blobstore.Store,
	gateway Summarizer,
	mc metrics.MetricsCollector,
) *Service {
	return &Service{
		repo:      repo,
		blobs:     blobs,
		gateway:   gateway,
		metrics:   mc,
		nowFunc:   time.Now,
		idFunc:    func() string { return uuid.New().String() },
		extracter: extract.Extract,
	}
}

// CreateFromText はテキストを要約して新しい要約を保存する。
// AI呼び出しが失敗した場合は何も保存しない。
func (s *Service) CreateFromText(ctx context.Context, in CreateTextInput) (*model.Summary, error) {
	if !in.ContentType.Valid() {
		return nil, model.NewInvalidContentTypeError(string(in.ContentType))
	}
	if in.UploadKind != "" && in.UploadKind != model.SourceKindText {
		return nil, model.NewValidationError(fmt.Sprintf("upload kind %q requires a file upload", in.UploadKind))
	}
	if strings.TrimSpace(in.Text) == "" {
		return nil, model.NewValidationError("text must not be empty")
	}

	res, err := s.gateway.Summarize(ctx, in.ContentType, in.Text)
	if err != nil {
		return nil, asAPIError(err, "Failed to generate summary")
	}

	now := s.nowFunc()
	text := in.Text
	sum := &model.Summary{
		ID:             s.idFunc(),
		OwnerUserID:    in.OwnerUserID,
		ContentType:    in.ContentType,
		SourceKind:     model.SourceKindText,
		InputText:      &text,
		GeneratedTitle: res.Title,
		GeneratedBody:  res.Body,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, sum); err != nil {
		return nil, model.NewServiceError("Failed to save summary", err)
	}

	s.metrics.RecordSummaryCreated(metrics.SourceText)
	slog.Info("summary created",
		slog.String("summary_id", sum.ID),
		slog.String("user_id", sum.OwnerUserID),
		slog.String("content_type", string(sum.ContentType)),
		slog.String("source", string(sum.SourceKind)),
	)
	return sum, nil
}

// CreateFromFile はファイルをBlobストアに保存してからテキストを抽出し、要約を保存する。
// Blob保存後に失敗した場合、Blobは孤立したまま残る（クリーンアップワーカーが回収する）。
func (s *Service) CreateFromFile(ctx context.Context, in CreateFileInput) (*model.Summary, error) {
	if !in.ContentType.Valid() {
		return nil, model.NewInvalidContentTypeError(string(in.ContentType))
	}
	if in.UploadKind != "" && in.UploadKind != model.SourceKindFile {
		return nil, model.NewValidationError(fmt.Sprintf("upload kind %q cannot be used with a file upload", in.UploadKind))
	}
	if err := validateFileMetadata(in.Filename, in.MimeType); err != nil {
		return nil, err
	}

	blob, err := s.blobs.Put(ctx, blobstore.PutInput{
		OwnerUserID: in.OwnerUserID,
		Filename:    in.Filename,
		ContentType: in.MimeType,
		Body:        bytes.NewReader(in.Raw),
	})
	if err != nil {
		return nil, model.NewServiceError("Failed to store uploaded file", err)
	}
	s.metrics.RecordBlobBytesStored(blob.Size)

	text, err := s.extracter(in.Filename, in.MimeType, in.Raw)
	if err != nil {
		s.logOrphan(blob.ID, in.OwnerUserID, "extraction failed", err)
		return nil, asAPIError(err, "Failed to read uploaded file")
	}
	if strings.TrimSpace(text) == "" {
		s.logOrphan(blob.ID, in.OwnerUserID, "no extractable text", nil)
		return nil, model.NewValidationError("file contains no extractable text")
	}

	res, err := s.gateway.Summarize(ctx, in.ContentType, text)
	if err != nil {
		s.logOrphan(blob.ID, in.OwnerUserID, "summarization failed", err)
		return nil, asAPIError(err, "Failed to generate summary")
	}

	now := s.nowFunc()
	sum := &model.Summary{
		ID:             s.idFunc(),
		OwnerUserID:    in.OwnerUserID,
		ContentType:    in.ContentType,
		SourceKind:     model.SourceKindFile,
		GeneratedTitle: res.Title,
		GeneratedBody:  res.Body,
		CreatedAt:      now,
		UpdatedAt:      now,
		FileMetadata: &model.FileMetadata{
			OriginalFilename: in.Filename,
			MimeType:         in.MimeType,
			StoredBlobID:     blob.ID,
		},
	}
	if err := s.repo.Create(ctx, sum); err != nil {
		s.logOrphan(blob.ID, in.OwnerUserID, "persisting summary failed", err)
		return nil, model.NewServiceError("Failed to save summary", err)
	}

	s.metrics.RecordSummaryCreated(metrics.SourceFile)
	slog.Info("summary created",
		slog.String("summary_id", sum.ID),
		slog.String("user_id", sum.OwnerUserID),
		slog.String("content_type", string(sum.ContentType)),
		slog.String("source", string(sum.SourceKind)),
		slog.String("blob_id", blob.ID),
	)
	return sum, nil
}

// validateFileMetadata はBlob保存前にファイル名とMIMEタイプを検査する。
func validateFileMetadata(filename, mimeType string) error {
	switch {
	case strings.TrimSpace(filename) == "":
		return model.NewValidationError("filename must not be empty")
	case !utf8.ValidString(filename) || strings.ContainsRune(filename, 0):
		return model.NewValidationError("filename must be valid UTF-8 text")
	case utf8.RuneCountInString(filename) > MaxFilenameLength:
		return model.NewValidationError(fmt.Sprintf("filename must be at most %d characters", MaxFilenameLength))
	case !utf8.ValidString(mimeType) || strings.ContainsRune(mimeType, 0):
		return model.NewValidationError("content type must be valid UTF-8 text")
	case utf8.RuneCountInString(mimeType) > MaxMimeTypeLength:
		return model.NewValidationError(fmt.Sprintf("content type must be at most %d characters", MaxMimeTypeLength))
	}
	return nil
}

// Get は指定IDの要約を返す。存在しない場合はSummaryNotFoundErrorを返す。
func (s *Service) Get(ctx context.Context, summaryID string) (*model.Summary, error) {
	sum, err := s.repo.FindByID(ctx, summaryID)
	if err != nil {
		return nil, model.NewServiceError("Failed to load summary", err)
	}
	if sum == nil {
		return nil, model.NewSummaryNotFoundError(summaryID)
	}
	return sum, nil
}

// GetOwned は指定ユーザーが所有する要約を返す。
// 他ユーザーの要約は存在しないものとして扱う。
func (s *Service) GetOwned(ctx context.Context, userID, summaryID string) (*model.Summary, error) {
	sum, err := s.Get(ctx, summaryID)
	if err != nil {
		return nil, err
	}
	if sum.OwnerUserID != userID {
		return nil, model.NewSummaryNotFoundError(summaryID)
	}
	return sum, nil
}

// ListForUser はユーザーの要約を作成日時の降順で返す。該当がない場合は空スライスを返す。
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*model.Summary, error) {
	list, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, model.NewServiceError("Failed to list summaries", err)
	}
	if list == nil {
		list = []*model.Summary{}
	}
	return list, nil
}

// Regenerate はフィードバックをもとに要約本文を作り直し、同じIDのまま上書き保存する。
// 以前の版は保持しない。同時に再生成された場合は後勝ち。
func (s *Service) Regenerate(ctx context.Context, summaryID, feedback string) (*model.Summary, error) {
	if strings.TrimSpace(feedback) == "" {
		return nil, model.NewValidationError("feedback must not be empty")
	}

	sum, err := s.Get(ctx, summaryID)
	if err != nil {
		return nil, err
	}

	source, err := s.sourceText(ctx, sum)
	if err != nil {
		return nil, err
	}

	res, err := s.gateway.Regenerate(ctx, summarizer.RegenerateInput{
		ContentType: sum.ContentType,
		SourceText:  source,
		PriorTitle:  sum.GeneratedTitle,
		PriorBody:   sum.GeneratedBody,
		Feedback:    feedback,
	})
	if err != nil {
		return nil, asAPIError(err, "Failed to regenerate summary")
	}

	now := s.nowFunc()
	if err := s.repo.UpdateGenerated(ctx, sum.ID, res.Title, res.Body, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewSummaryNotFoundError(summaryID)
		}
		return nil, model.NewServiceError("Failed to save regenerated summary", err)
	}

	sum.GeneratedTitle = res.Title
	sum.GeneratedBody = res.Body
	sum.UpdatedAt = now

	s.metrics.RecordSummaryRegenerated()
	slog.Info("summary regenerated",
		slog.String("summary_id", sum.ID),
		slog.String("user_id", sum.OwnerUserID),
	)
	return sum, nil
}

// sourceText は再生成に使う元テキストを返す。
// 入力テキストが保存されていればそれを、なければ元ファイルから抽出し直す。
func (s *Service) sourceText(ctx context.Context, sum *model.Summary) (string, error) {
	if sum.InputText != nil {
		return *sum.InputText, nil
	}
	if sum.FileMetadata == nil {
		return "", model.NewServiceError("Summary has no source to regenerate from",
			fmt.Errorf("summary %s has neither input text nor file metadata", sum.ID))
	}

	blobID := sum.FileMetadata.StoredBlobID
	_, rc, err := s.blobs.Open(ctx, blobID)
	if errors.Is(err, blobstore.ErrNotFound) {
		return "", model.NewBlobNotFoundError(blobID)
	}
	if err != nil {
		return "", model.NewServiceError("Failed to open original file", err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", model.NewServiceError("Failed to read original file", err)
	}

	text, err := s.extracter(sum.FileMetadata.OriginalFilename, sum.FileMetadata.MimeType, raw)
	if err != nil {
		return "", asAPIError(err, "Failed to read original file")
	}
	return text, nil
}

// Delete は要約を削除する。元ファイルがある場合は先にBlobを削除し、
// その削除が完了（または既に存在しない）した場合のみ要約レコードを削除する。
func (s *Service) Delete(ctx context.Context, summaryID string) error {
	sum, err := s.Get(ctx, summaryID)
	if err != nil {
		return err
	}

	if fm := sum.FileMetadata; fm != nil {
		err := s.blobs.Delete(ctx, fm.StoredBlobID)
		switch {
		case err == nil:
		case errors.Is(err, blobstore.ErrNotFound):
			slog.Warn("blob already removed before summary deletion",
				slog.String("summary_id", sum.ID),
				slog.String("blob_id", fm.StoredBlobID),
			)
		default:
			slog.Error("blob deletion failed; summary kept",
				slog.String("summary_id", sum.ID),
				slog.String("blob_id", fm.StoredBlobID),
				slog.String("error", err.Error()),
			)
			return model.NewServiceError("Failed to delete the original file", err)
		}
	}

	if err := s.repo.Delete(ctx, sum.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewSummaryNotFoundError(summaryID)
		}
		return model.NewServiceError("Failed to delete summary", err)
	}

	s.metrics.RecordSummaryDeleted()
	slog.Info("summary deleted",
		slog.String("summary_id", sum.ID),
		slog.String("user_id", sum.OwnerUserID),
	)
	return nil
}

// DownloadOriginalFile は元ファイルのメタデータと本文ストリームを返す。
// 呼び出し側はReadCloserを閉じること。
func (s *Service) DownloadOriginalFile(ctx context.Context, blobID string) (*model.Blob, io.ReadCloser, error) {
	blob, rc, err := s.blobs.Open(ctx, blobID)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, nil, model.NewBlobNotFoundError(blobID)
	}
	if err != nil {
		return nil, nil, model.NewServiceError("Failed to open original file", err)
	}
	return blob, rc, nil
}

func (s *Service) logOrphan(blobID, userID, reason string, cause error) {
	attrs := []any{
		slog.String("blob_id", blobID),
		slog.String("user_id", userID),
		slog.String("reason", reason),
	}
	if cause != nil {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}
	slog.Warn("uploaded blob left without summary", attrs...)
}

// asAPIError はAPIErrorをそのまま返し、それ以外はServiceErrorでラップする。
func asAPIError(err error, message string) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return model.NewServiceError(message, err)
}
