// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, summary, share, ai, system
	Action   string // ユーザー向け対処方法

	cause error
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap はラップされた下位エラーを返す。
func (e *APIError) Unwrap() error {
	return e.cause
}

// 定義済みエラーコード
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeInvalidContentType  = "INVALID_CONTENT_TYPE"
	ErrCodeUnsupportedEncoding = "UNSUPPORTED_ENCODING"
	ErrCodeSummaryNotFound     = "SUMMARY_NOT_FOUND"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeRecipientNotFound   = "RECIPIENT_NOT_FOUND"
	ErrCodeBlobNotFound        = "BLOB_NOT_FOUND"
	ErrCodeDuplicateUser       = "DUPLICATE_USER"
	ErrCodeSelfShare           = "SELF_SHARE"
	ErrCodeMalformedAIResponse = "MALFORMED_AI_RESPONSE"
	ErrCodeAIGatewayTimeout    = "AI_GATEWAY_TIMEOUT"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeUploadTooLarge      = "UPLOAD_TOO_LARGE"
	ErrCodeServiceError        = "SERVICE_ERROR"
)

// NewValidationError は入力値の不正を表すエラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("Invalid input: %s", reason),
		Category: "validation",
		Action:   "Check the request parameters and try again.",
	}
}

// NewInvalidContentTypeError は未対応のコンテンツ種別エラーを生成する。
func NewInvalidContentTypeError(contentType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidContentType,
		Message:  fmt.Sprintf("Unsupported content type: %q", contentType),
		Category: "validation",
		Action:   "Use one of: code, research, documentation.",
	}
}

// NewUnsupportedEncodingError はテキストとしてデコードできないファイルのエラーを生成する。
func NewUnsupportedEncodingError(filename string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedEncoding,
		Message:  fmt.Sprintf("File is not valid UTF-8 text: %s", filename),
		Category: "validation",
		Action:   "Upload a UTF-8 encoded text file, a PDF or a Word document.",
	}
}

// NewSummaryNotFoundError は要約未検出エラーを生成する。
func NewSummaryNotFoundError(summaryID string) *APIError {
	return &APIError{
		Code:     ErrCodeSummaryNotFound,
		Message:  "Summary not found",
		Category: "summary",
		Action:   fmt.Sprintf("Check the summary ID: %s", summaryID),
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: "auth",
		Action:   "Log in again.",
	}
}

// NewRecipientNotFoundError は共有先ユーザーが登録されていない場合のエラーを生成する。
func NewRecipientNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeRecipientNotFound,
		Message:  "Recipient must be a registered user",
		Category: "share",
		Action:   "Enter the email address or phone number of a registered user.",
	}
}

// NewBlobNotFoundError はアップロード元ファイルが見つからない場合のエラーを生成する。
func NewBlobNotFoundError(blobID string) *APIError {
	return &APIError{
		Code:     ErrCodeBlobNotFound,
		Message:  fmt.Sprintf("File not found: %s", blobID),
		Category: "summary",
		Action:   "The original file may have been deleted together with its summary.",
	}
}

// NewDuplicateUserError は同一のメールアドレスと電話番号の組が既に登録済みの場合のエラーを生成する。
func NewDuplicateUserError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUser,
		Message:  "An account with this email and phone number already exists",
		Category: "auth",
		Action:   "Log in with the existing account.",
	}
}

// NewSelfShareError は自分自身への共有エラーを生成する。
func NewSelfShareError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfShare,
		Message:  "Cannot share with yourself",
		Category: "share",
		Action:   "Choose another registered user as the recipient.",
	}
}

// NewMalformedAIResponseError はAI応答からタイトルと要約を取り出せなかった場合のエラーを生成する。
func NewMalformedAIResponseError() *APIError {
	return &APIError{
		Code:     ErrCodeMalformedAIResponse,
		Message:  "The AI service returned a response that could not be parsed",
		Category: "ai",
		Action:   "Try again. If the problem persists, shorten the input.",
	}
}

// NewAIGatewayTimeoutError はAI呼び出しのタイムアウトエラーを生成する。
func NewAIGatewayTimeoutError() *APIError {
	return &APIError{
		Code:     ErrCodeAIGatewayTimeout,
		Message:  "The AI service did not respond in time",
		Category: "ai",
		Action:   "Wait a moment and try again.",
	}
}

// NewInvalidCredentialsError はログイン情報の不一致エラーを生成する。
// メールアドレスの存在有無は区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password",
		Category: "auth",
		Action:   "Check your email address and password.",
	}
}

// NewUploadTooLargeError はアップロードサイズ上限超過エラーを生成する。
func NewUploadTooLargeError(limit int64) *APIError {
	return &APIError{
		Code:     ErrCodeUploadTooLarge,
		Message:  fmt.Sprintf("Uploaded file exceeds the limit of %d bytes", limit),
		Category: "validation",
		Action:   "Upload a smaller file.",
	}
}

// NewServiceError は下位レイヤー（ストレージ、外部サービス）の予期しない失敗をラップする。
// 下位エラーの内容はレスポンスに含めず、ログとerrors.Isの判定にのみ使う。
func NewServiceError(message string, cause error) *APIError {
	return &APIError{
		Code:     ErrCodeServiceError,
		Message:  message,
		Category: "system",
		Action:   "Wait a moment and try again.",
		cause:    cause,
	}
}
