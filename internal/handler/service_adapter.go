package handler

import (
	"context"

	"github.com/hitoshi/briefly/internal/auth"
	"github.com/hitoshi/briefly/internal/model"
	"github.com/hitoshi/briefly/internal/share"
	"github.com/hitoshi/briefly/internal/summary"
	"github.com/hitoshi/briefly/internal/user"
)

// SummaryServiceAdapter は summary.Service を SummaryServiceInterface に適合させるアダプタ。
// 所有者以外からの参照は存在しない要約と同じく404として扱う。
type SummaryServiceAdapter struct {
	svc *summary.Service
}

var _ SummaryServiceInterface = (*SummaryServiceAdapter)(nil)

// NewSummaryServiceAdapter はSummaryServiceAdapterを生成する。
func NewSummaryServiceAdapter(svc *summary.Service) *SummaryServiceAdapter {
	return &SummaryServiceAdapter{svc: svc}
}

// CreateFromText はテキストから要約を作成しhandlerレスポンス型で返す。
func (a *SummaryServiceAdapter) CreateFromText(ctx context.Context, userID string, p CreateTextParams) (*summaryResponse, error) {
	sum, err := a.svc.CreateFromText(ctx, summary.CreateTextInput{
		OwnerUserID: userID,
		ContentType: model.ContentType(p.ContentType),
		UploadKind:  model.SourceKind(p.UploadKind),
		Text:        p.Text,
	})
	if err != nil {
		return nil, err
	}
	resp := toSummaryResponse(sum)
	return &resp, nil
}

// CreateFromFile はファイルから要約を作成しhandlerレスポンス型で返す。
func (a *SummaryServiceAdapter) CreateFromFile(ctx context.Context, userID string, p CreateFileParams) (*summaryResponse, error) {
	sum, err := a.svc.CreateFromFile(ctx, summary.CreateFileInput{
		OwnerUserID: userID,
		ContentType: model.ContentType(p.ContentType),
		UploadKind:  model.SourceKind(p.UploadKind),
		Filename:    p.Filename,
		MimeType:    p.MimeType,
		Raw:         p.Raw,
	})
	if err != nil {
		return nil, err
	}
	resp := toSummaryResponse(sum)
	return &resp, nil
}

// Get は呼び出しユーザーが所有する要約を返す。
func (a *SummaryServiceAdapter) Get(ctx context.Context, userID, summaryID string) (*summaryResponse, error) {
	sum, err := a.svc.GetOwned(ctx, userID, summaryID)
	if err != nil {
		return nil, err
	}
	resp := toSummaryResponse(sum)
	return &resp, nil
}

// ListForUser はユーザーの要約一覧を返す。
func (a *SummaryServiceAdapter) ListForUser(ctx context.Context, userID string) ([]summaryResponse, error) {
	list, err := a.svc.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	results := make([]summaryResponse, len(list))
	for i, sum := range list {
		results[i] = toSummaryResponse(sum)
	}
	return results, nil
}

// Regenerate は所有権を確認してから要約を再生成する。
func (a *SummaryServiceAdapter) Regenerate(ctx context.Context, userID, summaryID, feedback string) (*summaryResponse, error) {
	if _, err := a.svc.GetOwned(ctx, userID, summaryID); err != nil {
		return nil, err
	}
	sum, err := a.svc.Regenerate(ctx, summaryID, feedback)
	if err != nil {
		return nil, err
	}
	resp := toSummaryResponse(sum)
	return &resp, nil
}

// Delete は所有権を確認してから要約を削除する。
func (a *SummaryServiceAdapter) Delete(ctx context.Context, userID, summaryID string) error {
	if _, err := a.svc.GetOwned(ctx, userID, summaryID); err != nil {
		return err
	}
	return a.svc.Delete(ctx, summaryID)
}

// DownloadOriginalFile は呼び出しユーザーがアップロードした元ファイルを返す。
func (a *SummaryServiceAdapter) DownloadOriginalFile(ctx context.Context, userID, blobID string) (*FileDownload, error) {
	blob, body, err := a.svc.DownloadOriginalFile(ctx, blobID)
	if err != nil {
		return nil, err
	}
	if blob.OwnerUserID != userID {
		body.Close()
		return nil, model.NewBlobNotFoundError(blobID)
	}
	return &FileDownload{
		Filename:    blob.Filename,
		ContentType: blob.ContentType,
		Size:        blob.Size,
		Body:        body,
	}, nil
}

// toSummaryResponse はドメインのSummaryをhandlerのレスポンス型に変換する。
func toSummaryResponse(sum *model.Summary) summaryResponse {
	resp := summaryResponse{
		ID:          sum.ID,
		UserID:      sum.OwnerUserID,
		ContentType: string(sum.ContentType),
		UploadType:  string(sum.SourceKind),
		InputText:   sum.InputText,
		Title:       sum.GeneratedTitle,
		Body:        sum.GeneratedBody,
		CreatedAt:   sum.CreatedAt,
		UpdatedAt:   sum.UpdatedAt,
	}
	if sum.FileMetadata != nil {
		resp.FileName = sum.FileMetadata.OriginalFilename
		resp.BlobID = sum.FileMetadata.StoredBlobID
	}
	return resp
}

// ShareServiceAdapter は share.Service を ShareServiceInterface に適合させるアダプタ。
type ShareServiceAdapter struct {
	svc *share.Service
}

var _ ShareServiceInterface = (*ShareServiceAdapter)(nil)

// NewShareServiceAdapter はShareServiceAdapterを生成する。
func NewShareServiceAdapter(svc *share.Service) *ShareServiceAdapter {
	return &ShareServiceAdapter{svc: svc}
}

// Share は要約を共有し、共有レコードのIDを返す。
func (a *ShareServiceAdapter) Share(ctx context.Context, senderUserID, summaryID, recipient string) (string, error) {
	rec, err := a.svc.Share(ctx, senderUserID, summaryID, recipient)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// ListSharedWith はユーザーに共有された要約をhandlerレスポンス型で返す。
func (a *ShareServiceAdapter) ListSharedWith(ctx context.Context, userID string) ([]sharedSummaryResponse, error) {
	views, err := a.svc.ListSharedWith(ctx, userID)
	if err != nil {
		return nil, err
	}

	results := make([]sharedSummaryResponse, len(views))
	for i, v := range views {
		results[i] = sharedSummaryResponse{
			ID:               v.ID,
			Title:            v.Title,
			ContentType:      string(v.ContentType),
			OutputData:       v.OutputData,
			InputData:        v.InputData,
			SharedBy:         v.SharedBy,
			SharedAt:         v.SharedAt,
			SummaryCreatedAt: v.SummaryCreatedAt,
		}
	}
	return results, nil
}

// UserServiceAdapter は user.Service を UserServiceInterface に適合させるアダプタ。
type UserServiceAdapter struct {
	svc *user.Service
}

var _ UserServiceInterface = (*UserServiceAdapter)(nil)

// NewUserServiceAdapter はUserServiceAdapterを生成する。
func NewUserServiceAdapter(svc *user.Service) *UserServiceAdapter {
	return &UserServiceAdapter{svc: svc}
}

// Register はユーザーを登録し、作成されたユーザーIDを返す。
func (a *UserServiceAdapter) Register(ctx context.Context, req registerRequest) (string, error) {
	u, err := a.svc.Register(ctx, user.RegisterInput{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		Phone:           req.Phone,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

// AuthServiceAdapter は auth.Service を AuthServiceInterface に適合させるアダプタ。
type AuthServiceAdapter struct {
	svc *auth.Service
}

var _ AuthServiceInterface = (*AuthServiceAdapter)(nil)

// NewAuthServiceAdapter はAuthServiceAdapterを生成する。
func NewAuthServiceAdapter(svc *auth.Service) *AuthServiceAdapter {
	return &AuthServiceAdapter{svc: svc}
}

// Login はログインしてトークンとユーザー情報を返す。
func (a *AuthServiceAdapter) Login(ctx context.Context, email, password string) (*loginResponse, error) {
	res, err := a.svc.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return &loginResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		User:      toUserResponse(res.User),
	}, nil
}

// CurrentUser は認証済みユーザーの情報を返す。
func (a *AuthServiceAdapter) CurrentUser(ctx context.Context, userID string) (*userResponse, error) {
	u, err := a.svc.CurrentUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	resp := toUserResponse(u)
	return &resp, nil
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:             u.ID,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Email:          u.Email,
		Phone:          u.Phone,
		CreatedAt:      u.CreatedAt,
		LastLoggedInAt: u.LastLoggedInAt,
	}
}
