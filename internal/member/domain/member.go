package domain

import (
	"time"
)

// MemberStatus 用來表示使用者狀態
type MemberStatus int

// 状态: 0=offline, 1=online, 2=ban ,3=delete
const (
	// MemberStatusOffLine 使用者離線
	MemberStatusOffLine MemberStatus = iota
	// MemberStatusOnLine 使用者在線
	MemberStatusOnLine
	// MemberStatusBan 使用者被封鎖
	MemberStatusBan
	// MemberStatusDelete 使用者已刪除
	MemberStatusDelete
)

// Member 用來表示使用者，只保留聊天需要的顯示欄位
type Member struct {
	ID         int64        `json:"id"`
	MemberID   string       `json:"member_id"`
	Email      string       `json:"email"`
	FullName   string       `json:"full_name"`
	ProfilePic string       `json:"profile_pic"`
	Bio        string       `json:"bio"`
	Status     MemberStatus `json:"status"`
}

// Active member can chat (not banned or deleted)
func (m *Member) Active() bool {
	return m.Status < MemberStatusBan
}

// MemberSession 用來表示使用者的 Session，由登入服務寫入 redis
type MemberSession struct {
	Token        string    `json:"Token"`
	MemberID     string    `json:"MemberID"`
	CreatedAt    time.Time `json:"CreatedAt"`
	LastActivity time.Time `json:"LastActivity"`
	ExpiredAt    time.Time `json:"ExpiredAt"`
}

// IsExpired 檢查 Session 是否已過期
func (s *MemberSession) IsExpired() bool {
	return time.Now().After(s.ExpiredAt)
}

// MemberQuery join conditions are used to query members
type MemberQuery struct {
	ID       *int64  `db:"id"`
	MemberID *string `db:"member_id"`
	Email    *string `db:"email"`
}
