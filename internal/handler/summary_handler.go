package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/briefly/internal/model"
)

// multipartOverhead はアップロードのファイル本体以外に許容するバイト数。
const multipartOverhead = 1 << 20

// maxFormFieldSize はマルチパートのテキストフィールドの上限。
const maxFormFieldSize = 1 << 10

// downloadBufferSize はダウンロード時のコピーバッファサイズ。
const downloadBufferSize = 32 << 10

// CreateTextParams はテキスト入力での要約作成パラメータ。
type CreateTextParams struct {
	ContentType string
	UploadKind  string
	Text        string
}

// CreateFileParams はファイルアップロードでの要約作成パラメータ。
type CreateFileParams struct {
	ContentType string
	UploadKind  string
	Filename    string
	MimeType    string
	Raw         []byte
}

// FileDownload はダウンロードするファイルのメタデータと本文。
type FileDownload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

// SummaryServiceInterface は要約ハンドラーが必要とするサービスインターフェース。
// 全ての操作は呼び出しユーザーが所有する要約のみを対象とする。
type SummaryServiceInterface interface {
	CreateFromText(ctx context.Context, userID string, p CreateTextParams) (*summaryResponse, error)
	CreateFromFile(ctx context.Context, userID string, p CreateFileParams) (*summaryResponse, error)
	Get(ctx context.Context, userID, summaryID string) (*summaryResponse, error)
	ListForUser(ctx context.Context, userID string) ([]summaryResponse, error)
	Regenerate(ctx context.Context, userID, summaryID, feedback string) (*summaryResponse, error)
	Delete(ctx context.Context, userID, summaryID string) error
	DownloadOriginalFile(ctx context.Context, userID, blobID string) (*FileDownload, error)
}

// summaryResponse は要約のAPIレスポンス。
type summaryResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ContentType string    `json:"content_type"`
	UploadType  string    `json:"upload_type"`
	InputText   *string   `json:"input_text,omitempty"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	FileName    string    `json:"file_name,omitempty"`
	BlobID      string    `json:"blob_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type createSummaryRequest struct {
	Type       string `json:"type"`
	UploadType string `json:"upload_type"`
	Text       string `json:"text"`
}

type createSummaryResponse struct {
	SummaryID string `json:"summary_id"`
	BlobID    string `json:"blob_id,omitempty"`
}

type regenerateRequest struct {
	Feedback string `json:"feedback"`
}

type regenerateResponse struct {
	Message string          `json:"message"`
	Summary summaryResponse `json:"summary"`
}

// SummaryHandler は要約のHTTPハンドラー。
type SummaryHandler struct {
	service       SummaryServiceInterface
	maxUploadSize int64
}

// NewSummaryHandler はSummaryHandlerを生成する。
func NewSummaryHandler(service SummaryServiceInterface, maxUploadSize int64) *SummaryHandler {
	return &SummaryHandler{
		service:       service,
		maxUploadSize: maxUploadSize,
	}
}

// CreateSummary はテキストから要約を作成する。
// POST /api/summaries
func (h *SummaryHandler) CreateSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createSummaryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sum, err := h.service.CreateFromText(r.Context(), userID, CreateTextParams{
		ContentType: req.Type,
		UploadKind:  req.UploadType,
		Text:        req.Text,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createSummaryResponse{SummaryID: sum.ID})
}

// UploadSummary はアップロードされたファイルから要約を作成する。
// POST /api/summaries/upload (multipart: file, type, upload_type)
func (h *SummaryHandler) UploadSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	params, err := h.readUpload(w, r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			err = model.NewUploadTooLargeError(h.maxUploadSize)
		}
		handleServiceError(w, err)
		return
	}

	sum, err := h.service.CreateFromFile(r.Context(), userID, *params)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createSummaryResponse{SummaryID: sum.ID, BlobID: sum.BlobID})
}

// readUpload はマルチパートをストリームで読み、ファイル本体を上限付きでメモリに読み込む。
func (h *SummaryHandler) readUpload(w http.ResponseWriter, r *http.Request) (*CreateFileParams, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, model.NewValidationError("request must be multipart/form-data")
	}

	params := &CreateFileParams{}
	gotFile := false
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, wrapUploadReadError(err)
		}

		switch part.FormName() {
		case "file":
			if gotFile {
				part.Close()
				return nil, model.NewValidationError("only one file may be uploaded")
			}
			raw, err := io.ReadAll(io.LimitReader(part, h.maxUploadSize+1))
			part.Close()
			if err != nil {
				return nil, wrapUploadReadError(err)
			}
			if int64(len(raw)) > h.maxUploadSize {
				return nil, model.NewUploadTooLargeError(h.maxUploadSize)
			}
			params.Filename = part.FileName()
			params.MimeType = partContentType(part)
			params.Raw = raw
			gotFile = true
		case "type", "upload_type":
			v, err := readFormField(part)
			if err != nil {
				return nil, err
			}
			if part.FormName() == "type" {
				params.ContentType = v
			} else {
				params.UploadKind = v
			}
		default:
			part.Close()
		}
	}

	if !gotFile {
		return nil, model.NewValidationError("file is required")
	}
	return params, nil
}

func readFormField(part *multipart.Part) (string, error) {
	defer part.Close()
	v, err := io.ReadAll(io.LimitReader(part, maxFormFieldSize+1))
	if err != nil {
		return "", wrapUploadReadError(err)
	}
	if len(v) > maxFormFieldSize {
		return "", model.NewValidationError(part.FormName() + " is too long")
	}
	return strings.TrimSpace(string(v)), nil
}

func partContentType(part *multipart.Part) string {
	ct := part.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return mediaType
}

func wrapUploadReadError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return err
	}
	return model.NewValidationError("malformed multipart body")
}

// ListUserSummaries はユーザーの要約一覧を返す。
// GET /api/users/{userID}/summaries
func (h *SummaryHandler) ListUserSummaries(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if chi.URLParam(r, "userID") != userID {
		writeAPIErrorResponse(w, http.StatusForbidden, errForbidden)
		return
	}

	list, err := h.service.ListForUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, list)
}

// GetSummary は要約を1件返す。
// GET /api/summaries/{id}
func (h *SummaryHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	sum, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sum)
}

// DeleteSummary は要約と元ファイルを削除する。
// DELETE /api/summaries/{id}
func (h *SummaryHandler) DeleteSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Summary deleted successfully"})
}

// RegenerateSummary はフィードバックをもとに要約を作り直す。
// POST /api/summaries/{id}/regenerate
func (h *SummaryHandler) RegenerateSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req regenerateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sum, err := h.service.Regenerate(r.Context(), userID, chi.URLParam(r, "id"), req.Feedback)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, regenerateResponse{
		Message: "Summary regenerated successfully",
		Summary: *sum,
	})
}

// DownloadFile は元ファイルをストリームで返す。
// GET /api/files/{blobID}
func (h *SummaryHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	file, err := h.service.DownloadOriginalFile(r.Context(), userID, chi.URLParam(r, "blobID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer file.Body.Close()

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", contentDisposition(file.Filename))
	w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	w.WriteHeader(http.StatusOK)

	// ヘッダー送信後の失敗はステータスを変えられないためログのみ
	if _, err := io.CopyBuffer(w, file.Body, make([]byte, downloadBufferSize)); err != nil {
		slog.Warn("file download interrupted",
			slog.String("user_id", userID),
			slog.String("blob_id", chi.URLParam(r, "blobID")),
			slog.String("error", err.Error()),
		)
	}
}

// contentDisposition はattachmentのContent-Dispositionヘッダー値を返す。
// 非ASCIIのファイル名はRFC 2231形式でエンコードされる。
func contentDisposition(filename string) string {
	if filename == "" {
		filename = "download"
	}
	v := mime.FormatMediaType("attachment", map[string]string{"filename": filename})
	if v == "" {
		return "attachment"
	}
	return v
}
