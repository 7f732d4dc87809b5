package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// ShareServiceInterface は共有ハンドラーが必要とするサービスインターフェース。
type ShareServiceInterface interface {
	Share(ctx context.Context, senderUserID, summaryID, recipient string) (string, error)
	ListSharedWith(ctx context.Context, userID string) ([]sharedSummaryResponse, error)
}

// sharedSummaryResponse は共有された要約のAPIレスポンス。
type sharedSummaryResponse struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	ContentType      string    `json:"content_type"`
	OutputData       string    `json:"output_data"`
	InputData        string    `json:"input_data"`
	SharedBy         string    `json:"shared_by"`
	SharedAt         string    `json:"shared_at"`
	SummaryCreatedAt time.Time `json:"summary_created_at"`
}

type shareRequest struct {
	Recipient string `json:"recipient"`
}

type shareResponse struct {
	Message string `json:"message"`
	ShareID string `json:"share_id"`
}

// ShareHandler は要約共有のHTTPハンドラー。
type ShareHandler struct {
	service ShareServiceInterface
}

// NewShareHandler はShareHandlerを生成する。
func NewShareHandler(service ShareServiceInterface) *ShareHandler {
	return &ShareHandler{service: service}
}

// ShareSummary は要約を他のユーザーと共有する。
// POST /api/summaries/{id}/share
func (h *ShareHandler) ShareSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req shareRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	shareID, err := h.service.Share(r.Context(), userID, chi.URLParam(r, "id"), req.Recipient)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, shareResponse{
		Message: "Summary shared successfully",
		ShareID: shareID,
	})
}

// ListSharedSummaries はユーザーに共有された要約の一覧を返す。
// GET /api/users/{userID}/shared-summaries
func (h *ShareHandler) ListSharedSummaries(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if chi.URLParam(r, "userID") != userID {
		writeAPIErrorResponse(w, http.StatusForbidden, errForbidden)
		return
	}

	list, err := h.service.ListSharedWith(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, list)
}
