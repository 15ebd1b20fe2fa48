package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/MrLerich/diplom8/db/models"
	"github.com/MrLerich/diplom8/goals"
)

// GoalService is the slice of the goals service the dispatcher needs.
type GoalService interface {
	ListWritableCategories(ctx context.Context, userID uint) ([]goals.CategorySummary, error)
	ListActiveGoals(ctx context.Context, userID uint) ([]goals.GoalSummary, error)
	CreateGoal(ctx context.Context, userID uint, in goals.CreateGoalInput) (*models.Goal, error)
}

const helpText = "Commands:\n" +
	"/goals - list your goals\n" +
	"/create - create a new goal\n" +
	"/cancel - cancel the current operation"

// Dispatcher interprets one inbound message against the chat's
// conversation state and produces the reply. Top-level commands always
// win over flow state, so a user can escape any flow.
type Dispatcher struct {
	svc    GoalService
	states *StateStore
	logger *slog.Logger
}

func NewDispatcher(svc GoalService, states *StateStore, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{svc: svc, states: states, logger: logger}
}

func (d *Dispatcher) Handle(ctx context.Context, chatID int64, userID uint, text string) Reply {
	text = strings.TrimSpace(text)

	switch text {
	case "/cancel":
		d.states.Reset(chatID)
		return SingleReply("Operation cancelled")
	case "/start":
		return SingleReply(helpText)
	case "/goals":
		d.states.Reset(chatID)
		return d.listGoals(ctx, chatID, userID)
	case "/create":
		return d.startCreate(ctx, chatID, userID)
	}

	st := d.states.Get(chatID)
	switch st.Phase {
	case PhaseAwaitingCategory:
		return d.chooseCategory(ctx, chatID, userID, text)
	case PhaseAwaitingGoalTitle:
		return d.createGoal(ctx, chatID, userID, st.CategoryID, text)
	default:
		return SingleReply(fmt.Sprintf("Unknown command: %s", text))
	}
}

func (d *Dispatcher) listGoals(ctx context.Context, chatID int64, userID uint) Reply {
	items, err := d.svc.ListActiveGoals(ctx, userID)
	if err != nil {
		d.logger.Warn("bot_list_goals_error", "chat_id", chatID, "error", err.Error())
		return SingleReply("Something went wrong, please try again later")
	}
	if len(items) == 0 {
		return SingleReply("You have no goals yet")
	}
	lines := make([]string, 0, len(items)+1)
	lines = append(lines, "Your goals:")
	for _, g := range items {
		lines = append(lines, fmt.Sprintf("#%d %s (%s)", g.ID, g.Title, g.CategoryTitle))
	}
	return MultiReply(lines...)
}

func (d *Dispatcher) startCreate(ctx context.Context, chatID int64, userID uint) Reply {
	cats, err := d.svc.ListWritableCategories(ctx, userID)
	if err != nil {
		d.logger.Warn("bot_list_categories_error", "chat_id", chatID, "error", err.Error())
		return SingleReply("Something went wrong, please try again later")
	}
	if len(cats) == 0 {
		d.states.Reset(chatID)
		return SingleReply("You have no categories to create goals in")
	}
	lines := make([]string, 0, len(cats)+1)
	lines = append(lines, "Choose a category:")
	for _, c := range cats {
		lines = append(lines, fmt.Sprintf("#%d %s", c.ID, c.Title))
	}
	d.states.Set(chatID, State{Phase: PhaseAwaitingCategory})
	return MultiReply(lines...)
}

// chooseCategory matches the user's text against the writable category
// list, by exact title or by numeric id. A miss keeps the chat in the
// selection phase so the next attempt can still succeed.
func (d *Dispatcher) chooseCategory(ctx context.Context, chatID int64, userID uint, text string) Reply {
	cats, err := d.svc.ListWritableCategories(ctx, userID)
	if err != nil {
		d.logger.Warn("bot_list_categories_error", "chat_id", chatID, "error", err.Error())
		return SingleReply("Something went wrong, please try again later")
	}
	var chosen *goals.CategorySummary
	id, idErr := strconv.ParseUint(strings.TrimPrefix(text, "#"), 10, 64)
	for i := range cats {
		if cats[i].Title == text || (idErr == nil && uint64(cats[i].ID) == id) {
			chosen = &cats[i]
			break
		}
	}
	if chosen == nil {
		return SingleReply(fmt.Sprintf("Category %q does not exist", text))
	}
	d.states.Set(chatID, State{Phase: PhaseAwaitingGoalTitle, CategoryID: chosen.ID})
	return SingleReply("Enter the goal title")
}

func (d *Dispatcher) createGoal(ctx context.Context, chatID int64, userID uint, categoryID uint, title string) Reply {
	goal, err := d.svc.CreateGoal(ctx, userID, goals.CreateGoalInput{
		CategoryID: categoryID,
		Title:      title,
	})
	// One attempt per flow: success and failure both reset to idle.
	d.states.Reset(chatID)
	if err != nil {
		switch {
		case errors.Is(err, goals.ErrNotAuthorized):
			return SingleReply("You are not allowed to create goals in this category")
		case errors.Is(err, goals.ErrCategoryDeleted), errors.Is(err, goals.ErrNotFound):
			return SingleReply("This category no longer exists")
		default:
			d.logger.Warn("bot_create_goal_error", "chat_id", chatID, "error", err.Error())
			return SingleReply("Something went wrong, please try again later")
		}
	}
	return SingleReply(fmt.Sprintf("Goal #%d %q created", goal.ID, goal.Title))
}
