package bot

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/MrLerich/diplom8/db/models"
	"github.com/MrLerich/diplom8/goals"
)

type fakeGoalService struct {
	categories []goals.CategorySummary
	goals      []goals.GoalSummary
	createErr  error
	nextGoalID uint

	created []goals.CreateGoalInput
}

func (f *fakeGoalService) ListWritableCategories(ctx context.Context, userID uint) ([]goals.CategorySummary, error) {
	return f.categories, nil
}

func (f *fakeGoalService) ListActiveGoals(ctx context.Context, userID uint) ([]goals.GoalSummary, error) {
	return f.goals, nil
}

func (f *fakeGoalService) CreateGoal(ctx context.Context, userID uint, in goals.CreateGoalInput) (*models.Goal, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, in)
	f.nextGoalID++
	return &models.Goal{ID: f.nextGoalID, CategoryID: in.CategoryID, Title: in.Title}, nil
}

func newTestDispatcher(svc GoalService) (*Dispatcher, *StateStore) {
	states := NewStateStore()
	return NewDispatcher(svc, states, nil), states
}

func TestDispatcher_StartShowsHelp(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(&fakeGoalService{})
	reply := d.Handle(context.Background(), 10, 1, "/start")
	if len(reply.Lines()) != 1 || reply.Lines()[0] != helpText {
		t.Fatalf("reply mismatch: got %v", reply.Lines())
	}
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(&fakeGoalService{})
	reply := d.Handle(context.Background(), 10, 1, "what")
	want := "Unknown command: what"
	if len(reply.Lines()) != 1 || reply.Lines()[0] != want {
		t.Fatalf("reply mismatch: got %v want %q", reply.Lines(), want)
	}
}

func TestDispatcher_GoalsListing(t *testing.T) {
	t.Parallel()

	svc := &fakeGoalService{goals: []goals.GoalSummary{
		{ID: 1, Title: "Write report", CategoryTitle: "Work"},
		{ID: 2, Title: "Buy milk", CategoryTitle: "Home"},
	}}
	d, _ := newTestDispatcher(svc)

	reply := d.Handle(context.Background(), 10, 1, "/goals")
	want := []string{
		"Your goals:",
		"#1 Write report (Work)",
		"#2 Buy milk (Home)",
	}
	if !reflect.DeepEqual(reply.Lines(), want) {
		t.Fatalf("reply mismatch: got %v want %v", reply.Lines(), want)
	}
}

func TestDispatcher_GoalsEmpty(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(&fakeGoalService{})
	reply := d.Handle(context.Background(), 10, 1, "/goals")
	if len(reply.Lines()) != 1 || reply.Lines()[0] != "You have no goals yet" {
		t.Fatalf("reply mismatch: got %v", reply.Lines())
	}
}

func TestDispatcher_CreateFlow(t *testing.T) {
	t.Parallel()

	svc := &fakeGoalService{categories: []goals.CategorySummary{
		{ID: 3, Title: "Work"},
		{ID: 4, Title: "Home"},
	}}
	d, states := newTestDispatcher(svc)
	ctx := context.Background()

	reply := d.Handle(ctx, 10, 1, "/create")
	want := []string{"Choose a category:", "#3 Work", "#4 Home"}
	if !reflect.DeepEqual(reply.Lines(), want) {
		t.Fatalf("category prompt mismatch: got %v want %v", reply.Lines(), want)
	}
	if got := states.Get(10).Phase; got != PhaseAwaitingCategory {
		t.Fatalf("phase mismatch: got %v want %v", got, PhaseAwaitingCategory)
	}

	reply = d.Handle(ctx, 10, 1, "Home")
	if len(reply.Lines()) != 1 || reply.Lines()[0] != "Enter the goal title" {
		t.Fatalf("title prompt mismatch: got %v", reply.Lines())
	}
	st := states.Get(10)
	if st.Phase != PhaseAwaitingGoalTitle || st.CategoryID != 4 {
		t.Fatalf("state mismatch: got %+v", st)
	}

	reply = d.Handle(ctx, 10, 1, "Buy milk")
	if len(reply.Lines()) != 1 || reply.Lines()[0] != `Goal #1 "Buy milk" created` {
		t.Fatalf("created reply mismatch: got %v", reply.Lines())
	}
	if got := states.Get(10).Phase; got != PhaseIdle {
		t.Fatalf("phase mismatch after create: got %v want %v", got, PhaseIdle)
	}
	if len(svc.created) != 1 || svc.created[0].CategoryID != 4 || svc.created[0].Title != "Buy milk" {
		t.Fatalf("created input mismatch: got %+v", svc.created)
	}
}

func TestDispatcher_CreateFlowByNumericID(t *testing.T) {
	t.Parallel()

	svc := &fakeGoalService{categories: []goals.CategorySummary{{ID: 9, Title: "Work"}}}
	d, states := newTestDispatcher(svc)
	ctx := context.Background()

	d.Handle(ctx, 10, 1, "/create")
	reply := d.Handle(ctx, 10, 1, "#9")
	if len(reply.Lines()) != 1 || reply.Lines()[0] != "Enter the goal title" {
		t.Fatalf("reply mismatch: got %v", reply.Lines())
	}
	if got := states.Get(10).CategoryID; got != 9 {
		t.Fatalf("category mismatch: got %d want 9", got)
	}
}

func TestDispatcher_CreateUnknownCategoryKeepsPhase(t *testing.T) {
	t.Parallel()

	svc := &fakeGoalService{categories: []goals.CategorySummary{{ID: 3, Title: "Work"}}}
	d, states := newTestDispatcher(svc)
	ctx := context.Background()

	d.Handle(ctx, 10, 1, "/create")
	reply := d.Handle(ctx, 10, 1, "Nope")
	want := `Category "Nope" does not exist`
	if len(reply.Lines()) != 1 || reply.Lines()[0] != want {
		t.Fatalf("reply mismatch: got %v want %q", reply.Lines(), want)
	}
	if got := states.Get(10).Phase; got != PhaseAwaitingCategory {
		t.Fatalf("phase mismatch: got %v want %v", got, PhaseAwaitingCategory)
	}

	// A second, correct attempt still succeeds.
	reply = d.Handle(ctx, 10, 1, "Work")
	if len(reply.Lines()) != 1 || reply.Lines()[0] != "Enter the goal title" {
		t.Fatalf("retry reply mismatch: got %v", reply.Lines())
	}
}

func TestDispatcher_CreateNoCategories(t *testing.T) {
	t.Parallel()

	d, states := newTestDispatcher(&fakeGoalService{})
	reply := d.Handle(context.Background(), 10, 1, "/create")
	if len(reply.Lines()) != 1 || reply.Lines()[0] != "You have no categories to create goals in" {
		t.Fatalf("reply mismatch: got %v", reply.Lines())
	}
	if got := states.Get(10).Phase; got != PhaseIdle {
		t.Fatalf("phase mismatch: got %v want %v", got, PhaseIdle)
	}
}

func TestDispatcher_CancelFromAnyPhase(t *testing.T) {
	t.Parallel()

	svc := &fakeGoalService{categories: []goals.CategorySummary{{ID: 3, Title: "Work"}}}
	for _, setup := range []State{
		{Phase: PhaseIdle},
		{Phase: PhaseAwaitingCategory},
		{Phase: PhaseAwaitingGoalTitle, CategoryID: 3},
	} {
		d, states := newTestDispatcher(svc)
		states.Set(10, setup)

		reply := d.Handle(context.Background(), 10, 1, "/cancel")
		if len(reply.Lines()) != 1 || reply.Lines()[0] != "Operation cancelled" {
			t.Fatalf("reply mismatch from %+v: got %v", setup, reply.Lines())
		}
		if got := states.Get(10).Phase; got != PhaseIdle {
			t.Fatalf("phase mismatch from %+v: got %v want %v", setup, got, PhaseIdle)
		}
	}
}

func TestDispatcher_CommandsOverrideFlowState(t *testing.T) {
	t.Parallel()

	svc := &fakeGoalService{categories: []goals.CategorySummary{{ID: 3, Title: "Work"}}}
	d, states := newTestDispatcher(svc)
	states.Set(10, State{Phase: PhaseAwaitingGoalTitle, CategoryID: 3})

	reply := d.Handle(context.Background(), 10, 1, "/goals")
	if len(reply.Lines()) != 1 || reply.Lines()[0] != "You have no goals yet" {
		t.Fatalf("reply mismatch: got %v", reply.Lines())
	}
	if got := states.Get(10).Phase; got != PhaseIdle {
		t.Fatalf("phase mismatch: got %v want %v", got, PhaseIdle)
	}
	if len(svc.created) != 0 {
		t.Fatalf("no goal should have been created, got %+v", svc.created)
	}
}

func TestDispatcher_CreateGoalErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{goals.ErrNotAuthorized, "You are not allowed to create goals in this category"},
		{goals.ErrCategoryDeleted, "This category no longer exists"},
		{goals.ErrNotFound, "This category no longer exists"},
		{fmt.Errorf("db: %w", errors.New("locked")), "Something went wrong, please try again later"},
	}
	for _, tc := range cases {
		svc := &fakeGoalService{
			categories: []goals.CategorySummary{{ID: 3, Title: "Work"}},
			createErr:  tc.err,
		}
		d, states := newTestDispatcher(svc)
		states.Set(10, State{Phase: PhaseAwaitingGoalTitle, CategoryID: 3})

		reply := d.Handle(context.Background(), 10, 1, "Buy milk")
		if len(reply.Lines()) != 1 || reply.Lines()[0] != tc.want {
			t.Fatalf("reply mismatch for %v: got %v want %q", tc.err, reply.Lines(), tc.want)
		}
		if got := states.Get(10).Phase; got != PhaseIdle {
			t.Fatalf("phase mismatch for %v: got %v want %v", tc.err, got, PhaseIdle)
		}
	}
}
