// Package models defines the persistence models shared by the REST API
// and the Telegram bot. Boards own categories, categories own goals,
// goals own comments; access is gated by BoardParticipant roles.
package models

import "time"

type Role int16

const (
	RoleOwner  Role = 1
	RoleWriter Role = 2
	RoleReader Role = 3
)

func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleWriter || r == RoleReader
}

type GoalStatus int16

const (
	StatusToDo       GoalStatus = 1
	StatusInProgress GoalStatus = 2
	StatusDone       GoalStatus = 3
	StatusArchived   GoalStatus = 4
)

type GoalPriority int16

const (
	PriorityLow      GoalPriority = 1
	PriorityMedium   GoalPriority = 2
	PriorityHigh     GoalPriority = 3
	PriorityCritical GoalPriority = 4
)

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string `gorm:"size:150;uniqueIndex;not null" json:"username"`
	PasswordHash string `gorm:"size:128;not null" json:"-"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session maps an opaque bearer token to a user. Tokens are issued by
// the login endpoint and never expire server-side; logout deletes them.
type Session struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Token     string `gorm:"size:36;uniqueIndex;not null"`
	UserID    uint   `gorm:"index;not null"`
	CreatedAt time.Time
}

type Board struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Title     string `gorm:"size:255;not null" json:"title"`
	IsDeleted bool   `gorm:"not null;default:false" json:"is_deleted"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Participants []BoardParticipant `gorm:"foreignKey:BoardID" json:"participants,omitempty"`
}

type BoardParticipant struct {
	ID        uint `gorm:"primaryKey;autoIncrement" json:"id"`
	BoardID   uint `gorm:"not null;uniqueIndex:ux_board_user,priority:1" json:"board_id"`
	UserID    uint `gorm:"not null;uniqueIndex:ux_board_user,priority:2" json:"user_id"`
	Role      Role `gorm:"not null;default:1" json:"role"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type GoalCategory struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	BoardID   uint   `gorm:"index;not null" json:"board_id"`
	UserID    uint   `gorm:"not null" json:"user_id"`
	Title     string `gorm:"size:255;not null" json:"title"`
	IsDeleted bool   `gorm:"not null;default:false" json:"is_deleted"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Goal struct {
	ID          uint         `gorm:"primaryKey;autoIncrement" json:"id"`
	CategoryID  uint         `gorm:"index;not null" json:"category_id"`
	UserID      uint         `gorm:"not null" json:"user_id"`
	Title       string       `gorm:"size:255;not null" json:"title"`
	Description string       `json:"description"`
	Status      GoalStatus   `gorm:"not null;default:1" json:"status"`
	Priority    GoalPriority `gorm:"not null;default:2" json:"priority"`
	DueDate     *time.Time   `json:"due_date,omitempty"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type GoalComment struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	GoalID    uint   `gorm:"index;not null" json:"goal_id"`
	UserID    uint   `gorm:"not null" json:"user_id"`
	Text      string `gorm:"not null" json:"text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatIdentity links a Telegram account to an internal user. It is
// created on first contact with UserID unset; redeeming the verification
// code through the REST API sets UserID. Rows are never deleted.
type ChatIdentity struct {
	ID               uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	TgChatID         int64  `gorm:"uniqueIndex;not null" json:"tg_chat_id"`
	TgUserID         int64  `gorm:"uniqueIndex;not null" json:"tg_user_id"`
	TgUsername       string `gorm:"size:32" json:"tg_username,omitempty"`
	UserID           *uint  `gorm:"index" json:"user_id,omitempty"`
	VerificationCode string `gorm:"size:10;uniqueIndex;not null" json:"-"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (ChatIdentity) TableName() string { return "chat_identities" }
