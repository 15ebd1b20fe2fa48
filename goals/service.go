package goals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrLerich/diplom8/db/models"
	"gorm.io/gorm"
)

type Service struct {
	gdb *gorm.DB
}

func NewService(gdb *gorm.DB) *Service {
	return &Service{gdb: gdb}
}

var writableRoles = []models.Role{models.RoleOwner, models.RoleWriter}

// participantRole returns the acting user's role on a board, or
// ErrNotAuthorized when the user does not participate at all.
func (s *Service) participantRole(ctx context.Context, userID, boardID uint) (models.Role, error) {
	var part models.BoardParticipant
	err := s.gdb.WithContext(ctx).
		Where("board_id = ? AND user_id = ?", boardID, userID).
		First(&part).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNotAuthorized
	}
	if err != nil {
		return 0, err
	}
	return part.Role, nil
}

func (s *Service) requireWritable(ctx context.Context, userID, boardID uint) error {
	role, err := s.participantRole(ctx, userID, boardID)
	if err != nil {
		return err
	}
	if role != models.RoleOwner && role != models.RoleWriter {
		return ErrNotAuthorized
	}
	return nil
}

// Boards

func (s *Service) ListBoards(ctx context.Context, userID uint) ([]models.Board, error) {
	var boards []models.Board
	err := s.gdb.WithContext(ctx).
		Joins("JOIN board_participants ON board_participants.board_id = boards.id").
		Where("board_participants.user_id = ? AND boards.is_deleted = ?", userID, false).
		Order("boards.title").
		Find(&boards).Error
	return boards, err
}

func (s *Service) GetBoard(ctx context.Context, userID, boardID uint) (*models.Board, error) {
	if _, err := s.participantRole(ctx, userID, boardID); err != nil {
		return nil, err
	}
	var board models.Board
	err := s.gdb.WithContext(ctx).
		Preload("Participants").
		Where("id = ? AND is_deleted = ?", boardID, false).
		First(&board).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &board, nil
}

// CreateBoard creates the board and its owner participant in one
// transaction, like the original board serializer does.
func (s *Service) CreateBoard(ctx context.Context, userID uint, title string) (*models.Board, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: board title is required", ErrInvalidInput)
	}
	board := &models.Board{Title: title}
	err := s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(board).Error; err != nil {
			return err
		}
		return tx.Create(&models.BoardParticipant{
			BoardID: board.ID,
			UserID:  userID,
			Role:    models.RoleOwner,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return board, nil
}

// UpdateBoard renames the board and reconciles its participant set.
// Owner only. The owner's own participant row is untouched: an owner can
// neither demote nor remove themselves.
func (s *Service) UpdateBoard(ctx context.Context, userID, boardID uint, title string, participants []ParticipantUpdate) (*models.Board, error) {
	role, err := s.participantRole(ctx, userID, boardID)
	if err != nil {
		return nil, err
	}
	if role != models.RoleOwner {
		return nil, ErrNotAuthorized
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: board title is required", ErrInvalidInput)
	}
	desired := make(map[uint]models.Role, len(participants))
	for _, p := range participants {
		if p.UserID == userID {
			continue
		}
		if !p.Role.Valid() || p.Role == models.RoleOwner {
			return nil, fmt.Errorf("%w: participant role must be writer or reader", ErrInvalidInput)
		}
		desired[p.UserID] = p.Role
	}

	err = s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var board models.Board
		if err := tx.Where("id = ? AND is_deleted = ?", boardID, false).First(&board).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var existing []models.BoardParticipant
		if err := tx.Where("board_id = ? AND user_id <> ?", boardID, userID).Find(&existing).Error; err != nil {
			return err
		}
		for _, old := range existing {
			want, ok := desired[old.UserID]
			if !ok {
				if err := tx.Delete(&models.BoardParticipant{}, old.ID).Error; err != nil {
					return err
				}
				continue
			}
			if old.Role != want {
				if err := tx.Model(&models.BoardParticipant{}).Where("id = ?", old.ID).Update("role", want).Error; err != nil {
					return err
				}
			}
			delete(desired, old.UserID)
		}
		for uid, r := range desired {
			if err := tx.Create(&models.BoardParticipant{BoardID: boardID, UserID: uid, Role: r}).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.Board{}).Where("id = ?", boardID).Update("title", title).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetBoard(ctx, userID, boardID)
}

// DeleteBoard soft-deletes the board, soft-deletes its categories and
// archives every goal under them, atomically.
func (s *Service) DeleteBoard(ctx context.Context, userID, boardID uint) error {
	role, err := s.participantRole(ctx, userID, boardID)
	if err != nil {
		return err
	}
	if role != models.RoleOwner {
		return ErrNotAuthorized
	}
	return s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Board{}).
			Where("id = ? AND is_deleted = ?", boardID, false).
			Update("is_deleted", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Model(&models.GoalCategory{}).
			Where("board_id = ?", boardID).
			Update("is_deleted", true).Error; err != nil {
			return err
		}
		return tx.Model(&models.Goal{}).
			Where("category_id IN (?)", tx.Model(&models.GoalCategory{}).Select("id").Where("board_id = ?", boardID)).
			Update("status", models.StatusArchived).Error
	})
}

// Categories

func (s *Service) ListCategories(ctx context.Context, userID uint) ([]models.GoalCategory, error) {
	var cats []models.GoalCategory
	err := s.gdb.WithContext(ctx).
		Joins("JOIN board_participants ON board_participants.board_id = goal_categories.board_id").
		Where("board_participants.user_id = ? AND goal_categories.is_deleted = ?", userID, false).
		Order("goal_categories.title").
		Find(&cats).Error
	return cats, err
}

// ListWritableCategories returns the non-deleted categories the user may
// create goals in: boards where the user is owner or writer. This is the
// list the bot offers during /create.
func (s *Service) ListWritableCategories(ctx context.Context, userID uint) ([]CategorySummary, error) {
	var cats []CategorySummary
	err := s.gdb.WithContext(ctx).
		Model(&models.GoalCategory{}).
		Select("goal_categories.id, goal_categories.title").
		Joins("JOIN board_participants ON board_participants.board_id = goal_categories.board_id").
		Where("board_participants.user_id = ? AND board_participants.role IN ?", userID, writableRoles).
		Where("goal_categories.is_deleted = ?", false).
		Order("goal_categories.title").
		Scan(&cats).Error
	return cats, err
}

func (s *Service) CreateCategory(ctx context.Context, userID, boardID uint, title string) (*models.GoalCategory, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: category title is required", ErrInvalidInput)
	}
	var board models.Board
	err := s.gdb.WithContext(ctx).First(&board, boardID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if board.IsDeleted {
		return nil, ErrBoardDeleted
	}
	if err := s.requireWritable(ctx, userID, boardID); err != nil {
		return nil, err
	}
	cat := &models.GoalCategory{BoardID: boardID, UserID: userID, Title: title}
	if err := s.gdb.WithContext(ctx).Create(cat).Error; err != nil {
		return nil, err
	}
	return cat, nil
}

// DeleteCategory soft-deletes the category and archives its goals.
func (s *Service) DeleteCategory(ctx context.Context, userID, categoryID uint) error {
	var cat models.GoalCategory
	err := s.gdb.WithContext(ctx).First(&cat, categoryID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := s.requireWritable(ctx, userID, cat.BoardID); err != nil {
		return err
	}
	return s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.GoalCategory{}).
			Where("id = ?", categoryID).
			Update("is_deleted", true).Error; err != nil {
			return err
		}
		return tx.Model(&models.Goal{}).
			Where("category_id = ?", categoryID).
			Update("status", models.StatusArchived).Error
	})
}

// Goals

// ListActiveGoals returns every non-archived goal in a category on a
// board the user participates in, oldest first.
func (s *Service) ListActiveGoals(ctx context.Context, userID uint) ([]GoalSummary, error) {
	var out []GoalSummary
	err := s.gdb.WithContext(ctx).
		Model(&models.Goal{}).
		Select("goals.id, goals.title, goal_categories.title AS category_title").
		Joins("JOIN goal_categories ON goal_categories.id = goals.category_id").
		Joins("JOIN board_participants ON board_participants.board_id = goal_categories.board_id").
		Where("board_participants.user_id = ?", userID).
		Where("goals.status <> ?", models.StatusArchived).
		Order("goals.created_at").
		Scan(&out).Error
	return out, err
}

func (s *Service) GetGoal(ctx context.Context, userID, goalID uint) (*models.Goal, error) {
	var goal models.Goal
	err := s.gdb.WithContext(ctx).
		Joins("JOIN goal_categories ON goal_categories.id = goals.category_id").
		Joins("JOIN board_participants ON board_participants.board_id = goal_categories.board_id").
		Where("board_participants.user_id = ? AND goals.id = ?", userID, goalID).
		First(&goal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &goal, nil
}

// CreateGoal creates a goal under the category. The acting user must be
// owner or writer on the category's board; deleted categories are
// rejected. An unset due date defaults to today, matching the bot's
// behavior.
func (s *Service) CreateGoal(ctx context.Context, userID uint, in CreateGoalInput) (*models.Goal, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: goal title is required", ErrInvalidInput)
	}
	var cat models.GoalCategory
	err := s.gdb.WithContext(ctx).First(&cat, in.CategoryID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if cat.IsDeleted {
		return nil, ErrCategoryDeleted
	}
	if err := s.requireWritable(ctx, userID, cat.BoardID); err != nil {
		return nil, err
	}

	priority := in.Priority
	if priority == 0 {
		priority = models.PriorityMedium
	}
	due := in.DueDate
	if due == nil {
		today := time.Now().Truncate(24 * time.Hour)
		due = &today
	}
	goal := &models.Goal{
		CategoryID:  cat.ID,
		UserID:      userID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Status:      models.StatusToDo,
		Priority:    priority,
		DueDate:     due,
	}
	if err := s.gdb.WithContext(ctx).Create(goal).Error; err != nil {
		return nil, err
	}
	return goal, nil
}

func (s *Service) UpdateGoal(ctx context.Context, userID, goalID uint, in UpdateGoalInput) (*models.Goal, error) {
	goal, err := s.GetGoal(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}
	var cat models.GoalCategory
	if err := s.gdb.WithContext(ctx).First(&cat, goal.CategoryID).Error; err != nil {
		return nil, err
	}
	if err := s.requireWritable(ctx, userID, cat.BoardID); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		if t == "" {
			return nil, fmt.Errorf("%w: goal title is required", ErrInvalidInput)
		}
		updates["title"] = t
	}
	if in.Description != nil {
		updates["description"] = strings.TrimSpace(*in.Description)
	}
	if in.Status != nil {
		updates["status"] = *in.Status
	}
	if in.Priority != nil {
		updates["priority"] = *in.Priority
	}
	if in.DueDate != nil {
		updates["due_date"] = *in.DueDate
	}
	if len(updates) > 0 {
		if err := s.gdb.WithContext(ctx).Model(&models.Goal{}).Where("id = ?", goalID).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return s.GetGoal(ctx, userID, goalID)
}

// DeleteGoal archives the goal instead of removing the row, like the
// original API does.
func (s *Service) DeleteGoal(ctx context.Context, userID, goalID uint) error {
	goal, err := s.GetGoal(ctx, userID, goalID)
	if err != nil {
		return err
	}
	var cat models.GoalCategory
	if err := s.gdb.WithContext(ctx).First(&cat, goal.CategoryID).Error; err != nil {
		return err
	}
	if err := s.requireWritable(ctx, userID, cat.BoardID); err != nil {
		return err
	}
	return s.gdb.WithContext(ctx).Model(&models.Goal{}).
		Where("id = ?", goalID).
		Update("status", models.StatusArchived).Error
}

// Comments

func (s *Service) ListComments(ctx context.Context, userID, goalID uint) ([]models.GoalComment, error) {
	if _, err := s.GetGoal(ctx, userID, goalID); err != nil {
		return nil, err
	}
	var comments []models.GoalComment
	err := s.gdb.WithContext(ctx).
		Where("goal_id = ?", goalID).
		Order("created_at DESC").
		Find(&comments).Error
	return comments, err
}

func (s *Service) CreateComment(ctx context.Context, userID, goalID uint, text string) (*models.GoalComment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: comment text is required", ErrInvalidInput)
	}
	goal, err := s.GetGoal(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}
	var cat models.GoalCategory
	if err := s.gdb.WithContext(ctx).First(&cat, goal.CategoryID).Error; err != nil {
		return nil, err
	}
	if err := s.requireWritable(ctx, userID, cat.BoardID); err != nil {
		return nil, err
	}
	comment := &models.GoalComment{GoalID: goalID, UserID: userID, Text: text}
	if err := s.gdb.WithContext(ctx).Create(comment).Error; err != nil {
		return nil, err
	}
	return comment, nil
}
