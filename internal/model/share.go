// Package model はドメインモデルを定義する。
package model

import "time"

// SharedSummaryRecord はあるユーザーの要約を別ユーザーへ共有した記録を表す。
// SummaryIDは作成時点でのみ存在が保証される弱参照で、要約削除時にも連鎖削除しない。
type SharedSummaryRecord struct {
	ID              string
	SummaryID       string
	SenderUserID    string
	RecipientUserID string
	SharedAt        time.Time
}

// SharedSummaryView は共有された要約の表示用ビュー。
// 共有記録・要約・送信者を結合したもの。
type SharedSummaryView struct {
	ID               string
	Title            string
	ContentType      ContentType
	OutputData       string
	InputData        string
	SharedBy         string // 送信者のメールアドレス
	SharedAt         string // 人間が読める形式の共有日
	SummaryCreatedAt time.Time
}
