package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/briefly/internal/model"
)

func newTestSummary(ownerID string, createdAt time.Time) *model.Summary {
	input := "print('hi')"
	return &model.Summary{
		ID:             uuid.New().String(),
		OwnerUserID:    ownerID,
		ContentType:    model.ContentTypeCode,
		SourceKind:     model.SourceKindText,
		InputText:      &input,
		GeneratedTitle: "T",
		GeneratedBody:  "B",
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

func TestPostgresSummaryRepo_FindByID_InvalidUUID(t *testing.T) {
	repo := NewPostgresSummaryRepo(nil)
	s, err := repo.FindByID(context.Background(), "nope")
	if err != nil || s != nil {
		t.Errorf("FindByID = (%v, %v), want (nil, nil)", s, err)
	}
}

// TestPostgresSummaryRepo_CreateAndFind はテキスト入力とファイル入力の要約が往復することを検証する。
func TestPostgresSummaryRepo_CreateAndFind(t *testing.T) {
	db := setupTestDB(t)
	users := NewPostgresUserRepo(db)
	repo := NewPostgresSummaryRepo(db)
	ctx := context.Background()

	owner := createTestUser(t, users, "a@x.com", "+1000")

	text := newTestSummary(owner.ID, time.Now())
	if err := repo.Create(ctx, text); err != nil {
		t.Fatalf("Create: %v", err)
	}

	blobID := uuid.New().String()
	file := newTestSummary(owner.ID, time.Now())
	file.SourceKind = model.SourceKindFile
	file.InputText = nil
	file.ContentType = model.ContentTypeResearch
	file.FileMetadata = &model.FileMetadata{OriginalFilename: "paper.pdf", MimeType: "application/pdf", StoredBlobID: blobID}
	if err := repo.Create(ctx, file); err != nil {
		t.Fatalf("Create: %v", err)
	}

	gotText, err := repo.FindByID(ctx, text.ID)
	if err != nil || gotText == nil {
		t.Fatalf("FindByID: %v %v", gotText, err)
	}
	if gotText.InputText == nil || *gotText.InputText != "print('hi')" {
		t.Errorf("InputText = %v", gotText.InputText)
	}
	if gotText.FileMetadata != nil {
		t.Errorf("FileMetadata = %+v, want nil", gotText.FileMetadata)
	}
	if gotText.GeneratedTitle != "T" || gotText.GeneratedBody != "B" {
		t.Errorf("generated = {%q, %q}", gotText.GeneratedTitle, gotText.GeneratedBody)
	}

	gotFile, err := repo.FindByID(ctx, file.ID)
	if err != nil || gotFile == nil {
		t.Fatalf("FindByID: %v %v", gotFile, err)
	}
	if gotFile.InputText != nil {
		t.Errorf("InputText = %v, want nil", *gotFile.InputText)
	}
	if gotFile.FileMetadata == nil || gotFile.FileMetadata.StoredBlobID != blobID || gotFile.FileMetadata.OriginalFilename != "paper.pdf" {
		t.Errorf("FileMetadata = %+v", gotFile.FileMetadata)
	}

	exists, err := repo.ExistsByBlobID(ctx, blobID)
	if err != nil || !exists {
		t.Errorf("ExistsByBlobID = (%v, %v), want (true, nil)", exists, err)
	}
	exists, err = repo.ExistsByBlobID(ctx, uuid.New().String())
	if err != nil || exists {
		t.Errorf("ExistsByBlobID(unknown) = (%v, %v), want (false, nil)", exists, err)
	}
}

// TestPostgresSummaryRepo_ListByUserID は所有者の要約のみが作成日時の降順で返ることを検証する。
func TestPostgresSummaryRepo_ListByUserID(t *testing.T) {
	db := setupTestDB(t)
	users := NewPostgresUserRepo(db)
	repo := NewPostgresSummaryRepo(db)
	ctx := context.Background()

	a := createTestUser(t, users, "a@x.com", "+1000")
	b := createTestUser(t, users, "b@x.com", "+2000")

	base := time.Now().Add(-time.Hour)
	first := newTestSummary(a.ID, base)
	second := newTestSummary(a.ID, base.Add(time.Minute))
	other := newTestSummary(b.ID, base.Add(2*time.Minute))
	for _, s := range []*model.Summary{first, other, second} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	list, err := repo.ListByUserID(ctx, a.ID)
	if err != nil {
		t.Fatalf("ListByUserID: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("order = [%s %s], want [%s %s]", list[0].ID, list[1].ID, second.ID, first.ID)
	}

	empty, err := repo.ListByUserID(ctx, uuid.New().String())
	if err != nil {
		t.Fatalf("ListByUserID: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("len = %d, want 0", len(empty))
	}
}

// TestPostgresSummaryRepo_UpdateAndDelete は生成結果の上書きと削除を検証する。
func TestPostgresSummaryRepo_UpdateAndDelete(t *testing.T) {
	db := setupTestDB(t)
	users := NewPostgresUserRepo(db)
	repo := NewPostgresSummaryRepo(db)
	ctx := context.Background()

	owner := createTestUser(t, users, "a@x.com", "+1000")
	s := newTestSummary(owner.ID, time.Now())
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.UpdateGenerated(ctx, s.ID, "T", "B2", time.Now()); err != nil {
		t.Fatalf("UpdateGenerated: %v", err)
	}
	got, _ := repo.FindByID(ctx, s.ID)
	if got.GeneratedBody != "B2" || got.ID != s.ID {
		t.Errorf("after update = %+v", got)
	}

	if err := repo.Delete(ctx, s.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := repo.FindByID(ctx, s.ID); got != nil {
		t.Errorf("expected nil after delete, got %+v", got)
	}
	if err := repo.Delete(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete: err = %v, want ErrNotFound", err)
	}
	if err := repo.UpdateGenerated(ctx, s.ID, "T", "B", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateGenerated after delete: err = %v, want ErrNotFound", err)
	}
}
