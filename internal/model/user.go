// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// (Email, Phone) の組はユーザー間で一意。
type User struct {
	ID             string
	FirstName      string
	LastName       string
	Phone          string
	Email          string
	PasswordHash   string
	CreatedAt      time.Time
	LastLoggedInAt *time.Time
}

// FullName は表示用の氏名を返す。
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
