// Package goals implements the board/category/goal/comment operations
// shared by the REST API and the Telegram bot. Every operation takes the
// acting user and enforces the board participant role rules: readers see,
// writers and owners create and edit, only owners manage the board
// itself.
package goals

import (
	"time"

	"github.com/MrLerich/diplom8/db/models"
)

// CategorySummary is the slice of a category the bot shows during the
// /create flow.
type CategorySummary struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
}

// GoalSummary is one line of the /goals listing.
type GoalSummary struct {
	ID            uint   `json:"id"`
	Title         string `json:"title"`
	CategoryTitle string `json:"category_title"`
}

type CreateGoalInput struct {
	CategoryID  uint
	Title       string
	Description string
	Priority    models.GoalPriority
	DueDate     *time.Time
}

type UpdateGoalInput struct {
	Title       *string
	Description *string
	Status      *models.GoalStatus
	Priority    *models.GoalPriority
	DueDate     *time.Time
}

// ParticipantUpdate is one entry of a board-participant reconciliation.
// The full desired set (minus the owner) is submitted at once; missing
// users are removed, new users added, changed roles updated.
type ParticipantUpdate struct {
	UserID uint        `json:"user_id"`
	Role   models.Role `json:"role"`
}
