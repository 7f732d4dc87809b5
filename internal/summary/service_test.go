package summary

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/briefly/internal/blobstore"
	"github.com/hitoshi/briefly/internal/metrics"
	"github.com/hitoshi/briefly/internal/model"
	"github.com/hitoshi/briefly/internal/repository"
	"github.com/hitoshi/briefly/internal/summarizer"
)

// --- モック ---

type mockSummaryRepo struct {
	createFn          func(ctx context.Context, s *model.Summary) error
	findByIDFn        func(ctx context.Context, id string) (*model.Summary, error)
	listByUserIDFn    func(ctx context.Context, userID string) ([]*model.Summary, error)
	updateGeneratedFn func(ctx context.Context, id, title, body string, updatedAt time.Time) error
	deleteFn          func(ctx context.Context, id string) error
}

func (m *mockSummaryRepo) Create(ctx context.Context, s *model.Summary) error {
	if m.createFn != nil {
		return m.createFn(ctx, s)
	}
	return nil
}
func (m *mockSummaryRepo) FindByID(ctx context.Context, id string) (*model.Summary, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockSummaryRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Summary, error) {
	if m.listByUserIDFn != nil {
		return m.listByUserIDFn(ctx, userID)
	}
	return nil, nil
}
func (m *mockSummaryRepo) UpdateGenerated(ctx context.Context, id, title, body string, updatedAt time.Time) error {
	if m.updateGeneratedFn != nil {
		return m.updateGeneratedFn(ctx, id, title, body, updatedAt)
	}
	return nil
}
func (m *mockSummaryRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}
func (m *mockSummaryRepo) ExistsByBlobID(ctx context.Context, blobID string) (bool, error) {
	return false, nil
}

type mockBlobStore struct {
	putFn    func(ctx context.Context, in blobstore.PutInput) (*model.Blob, error)
	openFn   func(ctx context.Context, id string) (*model.Blob, io.ReadCloser, error)
	deleteFn func(ctx context.Context, id string) error
}

func (m *mockBlobStore) Put(ctx context.Context, in blobstore.PutInput) (*model.Blob, error) {
	if m.putFn != nil {
		return m.putFn(ctx, in)
	}
	data, _ := io.ReadAll(in.Body)
	return &model.Blob{ID: "blob-1", OwnerUserID: in.OwnerUserID, Filename: in.Filename, Size: int64(len(data))}, nil
}
func (m *mockBlobStore) Open(ctx context.Context, id string) (*model.Blob, io.ReadCloser, error) {
	if m.openFn != nil {
		return m.openFn(ctx, id)
	}
	return nil, nil, blobstore.ErrNotFound
}
func (m *mockBlobStore) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}
func (m *mockBlobStore) ListOlderThan(ctx context.Context, cutoff time.Time) ([]*model.Blob, error) {
	return nil, nil
}

type mockGateway struct {
	summarizeFn  func(ctx context.Context, ct model.ContentType, text string) (*summarizer.Result, error)
	regenerateFn func(ctx context.Context, in summarizer.RegenerateInput) (*summarizer.Result, error)
}

func (m *mockGateway) Summarize(ctx context.Context, ct model.ContentType, text string) (*summarizer.Result, error) {
	if m.summarizeFn != nil {
		return m.summarizeFn(ctx, ct, text)
	}
	return &summarizer.Result{Title: "Title", Body: "<p>Body</p>"}, nil
}
func (m *mockGateway) Regenerate(ctx context.Context, in summarizer.RegenerateInput) (*summarizer.Result, error) {
	if m.regenerateFn != nil {
		return m.regenerateFn(ctx, in)
	}
	return &summarizer.Result{Title: in.PriorTitle, Body: "<p>Regenerated</p>"}, nil
}

var fixedNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newTestService(repo *mockSummaryRepo, blobs *mockBlobStore, gw *mockGateway) *Service {
	svc := NewService(repo, blobs, gw, metrics.NewCollector(prometheus.NewRegistry()))
	svc.nowFunc = func() time.Time { return fixedNow }
	svc.idFunc = func() string { return "sum-1" }
	return svc
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T: %v", err, err)
	}
	if apiErr.Code != code {
		t.Errorf("expected code %s, got %s", code, apiErr.Code)
	}
}

func strPtr(s string) *string { return &s }

// --- CreateFromText ---

func TestCreateFromText_Success(t *testing.T) {
	var saved *model.Summary
	repo := &mockSummaryRepo{
		createFn: func(ctx context.Context, s *model.Summary) error {
			saved = s
			return nil
		},
	}
	var gotText string
	gw := &mockGateway{
		summarizeFn: func(ctx context.Context, ct model.ContentType, text string) (*summarizer.Result, error) {
			if ct != model.ContentTypeCode {
				t.Errorf("expected content type code, got %s", ct)
			}
			gotText = text
			return &summarizer.Result{Title: "Sorting", Body: "<p>Sorts things.</p>"}, nil
		},
	}
	svc := newTestService(repo, &mockBlobStore{}, gw)

	sum, err := svc.CreateFromText(context.Background(), CreateTextInput{
		OwnerUserID: "user-1",
		ContentType: model.ContentTypeCode,
		Text:        "func sort() {}",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotText != "func sort() {}" {
		t.Errorf("gateway received %q", gotText)
	}
	if saved == nil || saved.ID != "sum-1" {
		t.Fatal("summary was not persisted")
	}
	if sum.SourceKind != model.SourceKindText {
		t.Errorf("expected source kind text, got %s", sum.SourceKind)
	}
	if sum.InputText == nil || *sum.InputText != "func sort() {}" {
		t.Errorf("expected input text to be stored, got %v", sum.InputText)
	}
	if sum.FileMetadata != nil {
		t.Error("text summary must not carry file metadata")
	}
	if sum.GeneratedTitle != "Sorting" || sum.GeneratedBody != "<p>Sorts things.</p>" {
		t.Errorf("unexpected generated content: %q %q", sum.GeneratedTitle, sum.GeneratedBody)
	}
	if !sum.CreatedAt.Equal(fixedNow) || !sum.UpdatedAt.Equal(fixedNow) {
		t.Errorf("unexpected timestamps: %v %v", sum.CreatedAt, sum.UpdatedAt)
	}
}

func TestCreateFromText_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   CreateTextInput
		code string
	}{
		{"invalid content type", CreateTextInput{ContentType: "poetry", Text: "x"}, model.ErrCodeInvalidContentType},
		{"empty text", CreateTextInput{ContentType: model.ContentTypeResearch, Text: "  \n\t"}, model.ErrCodeValidation},
		{"file upload kind", CreateTextInput{ContentType: model.ContentTypeResearch, UploadKind: model.SourceKindFile, Text: "x"}, model.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			gw := &mockGateway{
				summarizeFn: func(ctx context.Context, ct model.ContentType, text string) (*summarizer.Result, error) {
					called = true
					return nil, nil
				},
			}
			svc := newTestService(&mockSummaryRepo{}, &mockBlobStore{}, gw)
			_, err := svc.CreateFromText(context.Background(), tt.in)
			assertAPIErrorCode(t, err, tt.code)
			if called {
				t.Error("gateway must not be called on invalid input")
			}
		})
	}
}

func TestCreateFromText_GatewayFailurePersistsNothing(t *testing.T) {
	created := false
	repo := &mockSummaryRepo{
		createFn: func(ctx context.Context, s *model.Summary) error {
			created = true
			return nil
		},
	}
	gw := &mockGateway{
		summarizeFn: func(ctx context.Context, ct model.ContentType, text string) (*summarizer.Result, error) {
			return nil, model.NewAIGatewayTimeoutError()
		},
	}
	svc := newTestService(repo, &mockBlobStore{}, gw)

	_, err := svc.CreateFromText(context.Background(), CreateTextInput{
		OwnerUserID: "user-1", ContentType: model.ContentTypeCode, Text: "x",
	})
	assertAPIErrorCode(t, err, model.ErrCodeAIGatewayTimeout)
	if created {
		t.Error("summary must not be persisted when the gateway fails")
	}
}

func TestCreateFromText_RepoFailure(t *testing.T) {
	dbErr := errors.New("connection reset")
	repo := &mockSummaryRepo{
		createFn: func(ctx context.Context, s *model.Summary) error { return dbErr },
	}
	svc := newTestService(repo, &mockBlobStore{}, &mockGateway{})

	_, err := svc.CreateFromText(context.Background(), CreateTextInput{
		OwnerUserID: "user-1", ContentType: model.ContentTypeCode, Text: "x",
	})
	assertAPIErrorCode(t, err, model.ErrCodeServiceError)
	if !errors.Is(err, dbErr) {
		t.Error("expected service error to wrap the repository error")
	}
}

// --- CreateFromFile ---

func TestCreateFromFile_Success(t *testing.T) {
	var putIn blobstore.PutInput
	var putBody []byte
	blobs := &mockBlobStore{
		putFn: func(ctx context.Context, in blobstore.PutInput) (*model.Blob, error) {
			putIn = in
			putBody, _ = io.ReadAll(in.Body)
			return &model.Blob{ID: "blob-9", Size: int64(len(putBody))}, nil
		},
	}
	var saved *model.Summary
	repo := &mockSummaryRepo{
		createFn: func(ctx context.Context, s *model.Summary) error {
			saved = s
			return nil
		},
	}
	var gotText string
	gw := &mockGateway{
		summarizeFn: func(ctx context.Context, ct model.ContentType, text string) (*summarizer.Result, error) {
			gotText = text
			return &summarizer.Result{Title: "Notes", Body: "<p>Short.</p>"}, nil
		},
	}
	svc := newTestService(repo, blobs, gw)

	sum, err := svc.CreateFromFile(context.Background(), CreateFileInput{
		OwnerUserID: "user-1",
		ContentType: model.ContentTypeDocumentation,
		Filename:    "notes.txt",
		MimeType:    "text/plain",
		Raw:         []byte("hello notes"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if putIn.OwnerUserID != "user-1" || putIn.Filename != "notes.txt" || putIn.ContentType != "text/plain" {
		t.Errorf("unexpected put input: %+v", putIn)
	}
	if string(putBody) != "hello notes" {
		t.Errorf("blob body = %q", putBody)
	}
	if gotText != "hello notes" {
		t.Errorf("gateway received %q", gotText)
	}
	if saved == nil {
		t.Fatal("summary was not persisted")
	}
	if sum.SourceKind != model.SourceKindFile || sum.InputText != nil {
		t.Errorf("unexpected source fields: %s %v", sum.SourceKind, sum.InputText)
	}
	if sum.FileMetadata == nil || sum.FileMetadata.StoredBlobID != "blob-9" || sum.FileMetadata.OriginalFilename != "notes.txt" {
		t.Errorf("unexpected file metadata: %+v", sum.FileMetadata)
	}
}

func TestCreateFromFile_ExtractionFailureLeavesNoSummary(t *testing.T) {
	putCalled := false
	blobs := &mockBlobStore{
		putFn: func(ctx context.Context, in blobstore.PutInput) (*model.Blob, error) {
			putCalled = true
			return &model.Blob{ID: "blob-1"}, nil
		},
	}
	created := false
	repo := &mockSummaryRepo{
		createFn: func(ctx context.Context, s *model.Summary) error {
			created = true
			return nil
		},
	}
	svc := newTestService(repo, blobs, &mockGateway{})

	_, err := svc.CreateFromFile(context.Background(), CreateFileInput{
		OwnerUserID: "user-1",
		ContentType: model.ContentTypeCode,
		Filename:    "latin1.txt",
		Raw:         []byte{0xff, 0xfe, 0x41},
	})
	assertAPIErrorCode(t, err, model.ErrCodeUnsupportedEncoding)
	if !putCalled {
		t.Error("blob must be stored before extraction")
	}
	if created {
		t.Error("summary must not be persisted when extraction fails")
	}
}

func TestCreateFromFile_NoExtractableText(t *testing.T) {
	svc := newTestService(&mockSummaryRepo{}, &mockBlobStore{}, &mockGateway{})
	_, err := svc.CreateFromFile(context.Background(), CreateFileInput{
		OwnerUserID: "user-1",
		ContentType: model.ContentTypeCode,
		Filename:    "blank.txt",
		Raw:         []byte("   \n"),
	})
	assertAPIErrorCode(t, err, model.ErrCodeValidation)
}

func TestCreateFromFile_ValidationBeforeStore(t *testing.T) {
	tests := []struct {
		name string
		in   CreateFileInput
		code string
	}{
		{"invalid content type", CreateFileInput{ContentType: "", Filename: "a.txt", Raw: []byte("x")}, model.ErrCodeInvalidContentType},
		{"missing filename", CreateFileInput{ContentType: model.ContentTypeCode, Raw: []byte("x")}, model.ErrCodeValidation},
		{"text upload kind", CreateFileInput{ContentType: model.ContentTypeCode, UploadKind: model.SourceKindText, Filename: "a.txt", Raw: []byte("x")}, model.ErrCodeValidation},
		{"filename too long", CreateFileInput{ContentType: model.ContentTypeCode, Filename: strings.Repeat("a", MaxFilenameLength-3) + ".txt", Raw: []byte("x")}, model.ErrCodeValidation},
		{"multibyte filename too long", CreateFileInput{ContentType: model.ContentTypeCode, Filename: strings.Repeat("資", MaxFilenameLength) + ".txt", Raw: []byte("x")}, model.ErrCodeValidation},
		{"filename with NUL", CreateFileInput{ContentType: model.ContentTypeCode, Filename: "a\x00.txt", Raw: []byte("x")}, model.ErrCodeValidation},
		{"filename not UTF-8", CreateFileInput{ContentType: model.ContentTypeCode, Filename: "a\xff.txt", Raw: []byte("x")}, model.ErrCodeValidation},
		{"mime type too long", CreateFileInput{ContentType: model.ContentTypeCode, Filename: "a.txt", MimeType: "text/" + strings.Repeat("x", MaxMimeTypeLength), Raw: []byte("x")}, model.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blobs := &mockBlobStore{
				putFn: func(ctx context.Context, in blobstore.PutInput) (*model.Blob, error) {
					t.Error("blob store must not be called on invalid input")
					return nil, nil
				},
			}
			svc := newTestService(&mockSummaryRepo{}, blobs, &mockGateway{})
			_, err := svc.CreateFromFile(context.Background(), tt.in)
			assertAPIErrorCode(t, err, tt.code)
		})
	}
}

func TestValidateFileMetadata_LengthBoundary(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		mimeType string
		wantErr  bool
	}{
		{"255 ascii characters", strings.Repeat("a", MaxFilenameLength), "text/plain", false},
		{"255 multibyte characters", strings.Repeat("資", MaxFilenameLength), "", false},
		{"256 characters", strings.Repeat("a", MaxFilenameLength+1), "text/plain", true},
		{"255 character mime type", "a.txt", strings.Repeat("m", MaxMimeTypeLength), false},
		{"256 character mime type", "a.txt", strings.Repeat("m", MaxMimeTypeLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFileMetadata(tt.filename, tt.mimeType)
			if tt.wantErr {
				assertAPIErrorCode(t, err, model.ErrCodeValidation)
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCreateFromFile_StoreFailure(t *testing.T) {
	blobs := &mockBlobStore{
		putFn: func(ctx context.Context, in blobstore.PutInput) (*model.Blob, error) {
			return nil, errors.New("disk full")
		},
	}
	gw := &mockGateway{
		summarizeFn: func(ctx context.Context, ct model.ContentType, text string) (*summarizer.Result, error) {
			t.Error("gateway must not be called when the blob cannot be stored")
			return nil, nil
		},
	}
	svc := newTestService(&mockSummaryRepo{}, blobs, gw)

	_, err := svc.CreateFromFile(context.Background(), CreateFileInput{
		OwnerUserID: "user-1", ContentType: model.ContentTypeCode, Filename: "a.txt", Raw: []byte("x"),
	})
	assertAPIErrorCode(t, err, model.ErrCodeServiceError)
}

func TestCreateFromFile_MalformedAIResponse(t *testing.T) {
	gw := &mockGateway{
		summarizeFn: func(ctx context.Context, ct model.ContentType, text string) (*summarizer.Result, error) {
			return nil, model.NewMalformedAIResponseError()
		},
	}
	svc := newTestService(&mockSummaryRepo{}, &mockBlobStore{}, gw)

	_, err := svc.CreateFromFile(context.Background(), CreateFileInput{
		OwnerUserID: "user-1", ContentType: model.ContentTypeCode, Filename: "a.txt", Raw: []byte("x"),
	})
	assertAPIErrorCode(t, err, model.ErrCodeMalformedAIResponse)
}

// --- Get / GetOwned / ListForUser ---

func TestGet_NotFound(t *testing.T) {
	svc := newTestService(&mockSummaryRepo{}, &mockBlobStore{}, &mockGateway{})
	_, err := svc.Get(context.Background(), "missing")
	assertAPIErrorCode(t, err, model.ErrCodeSummaryNotFound)
}

func TestGetOwned_OtherUserIsNotFound(t *testing.T) {
	repo := &mockSummaryRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Summary, error) {
			return &model.Summary{ID: id, OwnerUserID: "owner"}, nil
		},
	}
	svc := newTestService(repo, &mockBlobStore{}, &mockGateway{})

	if _, err := svc.GetOwned(context.Background(), "owner", "sum-1"); err != nil {
		t.Fatalf("owner should see the summary: %v", err)
	}
	_, err := svc.GetOwned(context.Background(), "intruder", "sum-1")
	assertAPIErrorCode(t, err, model.ErrCodeSummaryNotFound)
}

func TestListForUser_EmptyIsNotNil(t *testing.T) {
	svc := newTestService(&mockSummaryRepo{}, &mockBlobStore{}, &mockGateway{})
	list, err := svc.ListForUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", list)
	}
}

// --- Regenerate ---

func TestRegenerate_TextSource(t *testing.T) {
	stored := &model.Summary{
		ID:             "sum-1",
		OwnerUserID:    "user-1",
		ContentType:    model.ContentTypeResearch,
		SourceKind:     model.SourceKindText,
		InputText:      strPtr("original text"),
		GeneratedTitle: "Old title",
		GeneratedBody:  "<p>old</p>",
		CreatedAt:      fixedNow.Add(-time.Hour),
		UpdatedAt:      fixedNow.Add(-time.Hour),
	}
	var updatedTitle, updatedBody string
	repo := &mockSummaryRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Summary, error) { return stored, nil },
		updateGeneratedFn: func(ctx context.Context, id, title, body string, updatedAt time.Time) error {
			updatedTitle, updatedBody = title, body
			if !updatedAt.Equal(fixedNow) {
				t.Errorf("unexpected updatedAt %v", updatedAt)
			}
			return nil
		},
	}
	var gotIn summarizer.RegenerateInput
	gw := &mockGateway{
		regenerateFn: func(ctx context.Context, in summarizer.RegenerateInput) (*summarizer.Result, error) {
			gotIn = in
			return &summarizer.Result{Title: in.PriorTitle, Body: "<p>shorter</p>"}, nil
		},
	}
	svc := newTestService(repo, &mockBlobStore{}, gw)

	sum, err := svc.Regenerate(context.Background(), "sum-1", "make it shorter")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotIn.SourceText != "original text" || gotIn.PriorBody != "<p>old</p>" || gotIn.Feedback != "make it shorter" {
		t.Errorf("unexpected regenerate input: %+v", gotIn)
	}
	if updatedTitle != "Old title" || updatedBody != "<p>shorter</p>" {
		t.Errorf("unexpected update: %q %q", updatedTitle, updatedBody)
	}
	if sum.ID != "sum-1" || sum.GeneratedBody != "<p>shorter</p>" {
		t.Errorf("unexpected result: %+v", sum)
	}
	if !sum.CreatedAt.Equal(fixedNow.Add(-time.Hour)) {
		t.Error("createdAt must not change on regeneration")
	}
}

func TestRegenerate_FileSourceReExtracts(t *testing.T) {
	repo := &mockSummaryRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Summary, error) {
			return &model.Summary{
				ID:          id,
				ContentType: model.ContentTypeCode,
				SourceKind:  model.SourceKindFile,
				FileMetadata: &model.FileMetadata{
					OriginalFilename: "main.go",
					MimeType:         "text/plain",
					StoredBlobID:     "blob-7",
				},
			}, nil
		},
	}
	blobs := &mockBlobStore{
		openFn: func(ctx context.Context, id string) (*model.Blob, io.ReadCloser, error) {
			if id != "blob-7" {
				t.Errorf("unexpected blob id %s", id)
			}
			return &model.Blob{ID: id}, io.NopCloser(strings.NewReader("package main")), nil
		},
	}
	var gotSource string
	gw := &mockGateway{
		regenerateFn: func(ctx context.Context, in summarizer.RegenerateInput) (*summarizer.Result, error) {
			gotSource = in.SourceText
			return &summarizer.Result{Title: "t", Body: "b"}, nil
		},
	}
	svc := newTestService(repo, blobs, gw)

	if _, err := svc.Regenerate(context.Background(), "sum-1", "more detail"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotSource != "package main" {
		t.Errorf("expected re-extracted source, got %q", gotSource)
	}
}

func TestRegenerate_Errors(t *testing.T) {
	t.Run("empty feedback", func(t *testing.T) {
		svc := newTestService(&mockSummaryRepo{}, &mockBlobStore{}, &mockGateway{})
		_, err := svc.Regenerate(context.Background(), "sum-1", " ")
		assertAPIErrorCode(t, err, model.ErrCodeValidation)
	})

	t.Run("missing summary", func(t *testing.T) {
		svc := newTestService(&mockSummaryRepo{}, &mockBlobStore{}, &mockGateway{})
		_, err := svc.Regenerate(context.Background(), "gone", "x")
		assertAPIErrorCode(t, err, model.ErrCodeSummaryNotFound)
	})

	t.Run("deleted during regeneration", func(t *testing.T) {
		repo := &mockSummaryRepo{
			findByIDFn: func(ctx context.Context, id string) (*model.Summary, error) {
				return &model.Summary{ID: id, ContentType: model.ContentTypeCode, InputText: strPtr("x")}, nil
			},
			updateGeneratedFn: func(ctx context.Context, id, title, body string, updatedAt time.Time) error {
				return repository.ErrNotFound
			},
		}
		svc := newTestService(repo, &mockBlobStore{}, &mockGateway{})
		_, err := svc.Regenerate(context.Background(), "sum-1", "x")
		assertAPIErrorCode(t, err, model.ErrCodeSummaryNotFound)
	})

	t.Run("gateway failure leaves record untouched", func(t *testing.T) {
		repo := &mockSummaryRepo{
			findByIDFn: func(ctx context.Context, id string) (*model.Summary, error) {
				return &model.Summary{ID: id, ContentType: model.ContentTypeCode, InputText: strPtr("x")}, nil
			},
			updateGeneratedFn: func(ctx context.Context, id, title, body string, updatedAt time.Time) error {
				t.Error("record must not be updated when the gateway fails")
				return nil
			},
		}
		gw := &mockGateway{
			regenerateFn: func(ctx context.Context, in summarizer.RegenerateInput) (*summarizer.Result, error) {
				return nil, model.NewAIGatewayTimeoutError()
			},
		}
		svc := newTestService(repo, &mockBlobStore{}, gw)
		_, err := svc.Regenerate(context.Background(), "sum-1", "x")
		assertAPIErrorCode(t, err, model.ErrCodeAIGatewayTimeout)
	})
}

// --- Delete ---

func TestDelete_TextSummary(t *testing.T) {
	deleted := ""
	repo := &mockSummaryRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Summary, error) {
			return &model.Summary{ID: id, SourceKind: model.SourceKindText}, nil
		},
		deleteFn: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	blobs := &mockBlobStore{
		deleteFn: func(ctx context.Context, id string) error {
			t.Error("blob store must not be touched for text summaries")
			return nil
		},
	}
	svc := newTestService(repo, blobs, &mockGateway{})

	if err := svc.Delete(context.Background(), "sum-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != "sum-1" {
		t.Errorf("expected sum-1 to be deleted, got %q", deleted)
	}
}

func TestDelete_FileSummary(t *testing.T) {
	tests := []struct {
		name          string
		blobErr       error
		wantErr       bool
		wantRowDelete bool
	}{
		{"blob deleted", nil, false, true},
		{"blob already gone", blobstore.ErrNotFound, false, true},
		{"blob deletion fails", errors.New("io error"), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var order []string
			repo := &mockSummaryRepo{
				findByIDFn: func(ctx context.Context, id string) (*model.Summary, error) {
					return &model.Summary{
						ID:           id,
						SourceKind:   model.SourceKindFile,
						FileMetadata: &model.FileMetadata{StoredBlobID: "blob-1"},
					}, nil
				},
				deleteFn: func(ctx context.Context, id string) error {
					order = append(order, "summary")
					return nil
				},
			}
			blobs := &mockBlobStore{
				deleteFn: func(ctx context.Context, id string) error {
					order = append(order, "blob")
					return tt.blobErr
				},
			}
			svc := newTestService(repo, blobs, &mockGateway{})

			err := svc.Delete(context.Background(), "sum-1")
			if tt.wantErr {
				assertAPIErrorCode(t, err, model.ErrCodeServiceError)
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			want := []string{"blob"}
			if tt.wantRowDelete {
				want = append(want, "summary")
			}
			if strings.Join(order, ",") != strings.Join(want, ",") {
				t.Errorf("deletion order = %v, want %v", order, want)
			}
		})
	}
}

func TestDelete_Missing(t *testing.T) {
	svc := newTestService(&mockSummaryRepo{}, &mockBlobStore{}, &mockGateway{})
	err := svc.Delete(context.Background(), "gone")
	assertAPIErrorCode(t, err, model.ErrCodeSummaryNotFound)
}

// --- DownloadOriginalFile ---

func TestDownloadOriginalFile(t *testing.T) {
	blobs := &mockBlobStore{
		openFn: func(ctx context.Context, id string) (*model.Blob, io.ReadCloser, error) {
			if id != "blob-1" {
				return nil, nil, blobstore.ErrNotFound
			}
			return &model.Blob{ID: id, Filename: "a.pdf", ContentType: "application/pdf"},
				io.NopCloser(bytes.NewReader([]byte("%PDF-1.4"))), nil
		},
	}
	svc := newTestService(&mockSummaryRepo{}, blobs, &mockGateway{})

	blob, rc, err := svc.DownloadOriginalFile(context.Background(), "blob-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if blob.Filename != "a.pdf" || string(data) != "%PDF-1.4" {
		t.Errorf("unexpected download: %+v %q", blob, data)
	}

	_, _, err = svc.DownloadOriginalFile(context.Background(), "missing")
	assertAPIErrorCode(t, err, model.ErrCodeBlobNotFound)
}
