// Package cleanup は要約から参照されなくなったアップロードファイルの回収ジョブを提供する。
// ファイル保存後に要約の作成が失敗した場合、Blobは孤立したまま残るため、
// 猶予期間を過ぎた未参照のBlobを定期的に削除する。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/briefly/internal/blobstore"
	"github.com/hitoshi/briefly/internal/model"
)

// DefaultGracePeriod は作成直後のBlobを回収対象から外す期間のデフォルト値。
const DefaultGracePeriod = 24 * time.Hour

// BlobSource は回収対象のBlobを列挙・削除するインターフェース。blobstore.Storeが満たす。
type BlobSource interface {
	ListOlderThan(ctx context.Context, cutoff time.Time) ([]*model.Blob, error)
	Delete(ctx context.Context, id string) error
}

// ReferenceChecker はBlobを参照する要約の有無を判定するインターフェース。
type ReferenceChecker interface {
	ExistsByBlobID(ctx context.Context, blobID string) (bool, error)
}

// OrphanRecorder は回収件数の記録先。
type OrphanRecorder interface {
	RecordOrphanBlobsDeleted(count int)
}

// CleanupJob は孤立Blobの回収ジョブ。
// 冪等であり、複数プロセスから同時に実行されても既に削除済みのBlobは無視する。
type CleanupJob struct {
	blobs       BlobSource
	refs        ReferenceChecker
	recorder    OrphanRecorder
	logger      *slog.Logger
	GracePeriod time.Duration

	nowFunc func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// gracePeriodが0以下の場合はDefaultGracePeriodを使用する。
func NewCleanupJob(
	blobs BlobSource,
	refs ReferenceChecker,
	recorder OrphanRecorder,
	logger *slog.Logger,
	gracePeriod time.Duration,
) *CleanupJob {
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}
	return &CleanupJob{
		blobs:       blobs,
		refs:        refs,
		recorder:    recorder,
		logger:      logger,
		GracePeriod: gracePeriod,
		nowFunc:     time.Now,
	}
}

// Start は指定間隔でRunを繰り返す。起動直後に1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("孤立ファイル回収ジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("grace_period", j.GracePeriod),
	)

	j.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("孤立ファイル回収ジョブを停止しました")
			return
		case <-ticker.C:
			j.runAndLog(ctx)
		}
	}
}

func (j *CleanupJob) runAndLog(ctx context.Context) {
	if _, err := j.Run(ctx); err != nil {
		j.logger.Error("孤立ファイル回収ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// Run は猶予期間より前に作成され、どの要約からも参照されていないBlobを削除し、削除件数を返す。
// 個々のBlobの判定や削除の失敗はログに記録して次のBlobに進む。
func (j *CleanupJob) Run(ctx context.Context) (int, error) {
	start := j.nowFunc()
	cutoff := start.Add(-j.GracePeriod)

	candidates, err := j.blobs.ListOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("回収候補の取得に失敗: %w", err)
	}

	deleted := 0
	for _, b := range candidates {
		if err := ctx.Err(); err != nil {
			j.finish(deleted, len(candidates), start)
			return deleted, err
		}

		referenced, err := j.refs.ExistsByBlobID(ctx, b.ID)
		if err != nil {
			j.logger.Warn("参照確認に失敗したためスキップします",
				slog.String("blob_id", b.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if referenced {
			continue
		}

		if err := j.blobs.Delete(ctx, b.ID); err != nil {
			if errors.Is(err, blobstore.ErrNotFound) {
				continue
			}
			j.logger.Warn("孤立ファイルの削除に失敗しました",
				slog.String("blob_id", b.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		deleted++
		j.logger.Info("孤立ファイルを削除しました",
			slog.String("blob_id", b.ID),
			slog.String("owner_user_id", b.OwnerUserID),
			slog.Int64("size", b.Size),
			slog.Time("created_at", b.CreatedAt),
		)
	}

	j.finish(deleted, len(candidates), start)
	return deleted, nil
}

func (j *CleanupJob) finish(deleted, scanned int, start time.Time) {
	if deleted > 0 {
		j.recorder.RecordOrphanBlobsDeleted(deleted)
	}
	j.logger.Info("孤立ファイル回収ジョブが完了しました",
		slog.Int("scanned_count", scanned),
		slog.Int("deleted_count", deleted),
		slog.Float64("duration_ms", float64(j.nowFunc().Sub(start).Milliseconds())),
	)
}
