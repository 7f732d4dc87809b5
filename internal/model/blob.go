// Package model はドメインモデルを定義する。
package model

import "time"

// Blob はBlobストアに保存されたアップロード元ファイルのメタデータを表す。
type Blob struct {
	ID          string
	OwnerUserID string
	Filename    string
	ContentType string
	Size        int64
	Checksum    string // SHA-256（hex）
	CreatedAt   time.Time
}
