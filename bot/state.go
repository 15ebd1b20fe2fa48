package bot

import "sync"

// Phase is where a chat currently stands in the /create flow.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingCategory
	PhaseAwaitingGoalTitle
)

// State is the conversation state of one chat. CategoryID is set iff the
// phase is PhaseAwaitingGoalTitle.
type State struct {
	Phase      Phase
	CategoryID uint
}

// StateStore keeps per-chat conversation state, keyed by chat id. It is
// process-local and volatile: a restart drops every in-flight flow, and
// the user starts over. The mutex keeps it safe if dispatch is ever
// parallelized per chat.
type StateStore struct {
	mu     sync.Mutex
	byChat map[int64]State
}

func NewStateStore() *StateStore {
	return &StateStore{byChat: make(map[int64]State)}
}

func (s *StateStore) Get(chatID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byChat[chatID]
}

func (s *StateStore) Set(chatID int64, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byChat[chatID] = st
}

// Reset returns the chat to idle and clears any stored category.
func (s *StateStore) Reset(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byChat, chatID)
}
