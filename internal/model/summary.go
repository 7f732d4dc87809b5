// Package model はドメインモデルを定義する。
package model

import "time"

// ContentType は要約対象コンテンツの種別を表す。
// 種別ごとにAIへのシステムプロンプトとモデルが切り替わる。
type ContentType string

const (
	// ContentTypeCode はソースコードの要約。
	ContentTypeCode ContentType = "code"
	// ContentTypeResearch は研究論文・抜粋の要約。
	ContentTypeResearch ContentType = "research"
	// ContentTypeDocumentation はドキュメント一般の要約。
	ContentTypeDocumentation ContentType = "documentation"
)

// Valid は既知のコンテンツ種別かどうかを返す。
func (c ContentType) Valid() bool {
	switch c {
	case ContentTypeCode, ContentTypeResearch, ContentTypeDocumentation:
		return true
	}
	return false
}

// SourceKind は要約の入力元を表す。
type SourceKind string

const (
	// SourceKindText はフォームに直接入力されたテキスト。
	SourceKindText SourceKind = "text"
	// SourceKindFile はアップロードされたファイル。
	SourceKindFile SourceKind = "file"
)

// Valid は既知の入力元かどうかを返す。
func (k SourceKind) Valid() bool {
	return k == SourceKindText || k == SourceKindFile
}

// Summary はユーザー入力とAIが生成したタイトル・本文の組を表す。
// FileMetadataが設定されている場合、StoredBlobIDは要約が削除されるまで
// 有効なBlobを指していなければならない。
type Summary struct {
	ID             string
	OwnerUserID    string
	ContentType    ContentType
	SourceKind     SourceKind
	InputText      *string // ファイル入力の場合はnil
	GeneratedTitle string
	GeneratedBody  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	FileMetadata   *FileMetadata
}

// FileMetadata はアップロード元ファイルの情報を表す。
type FileMetadata struct {
	OriginalFilename string
	MimeType         string
	StoredBlobID     string
}
