package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrLerich/diplom8/bot"
	"github.com/MrLerich/diplom8/db/models"
	"github.com/MrLerich/diplom8/goals"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// apiServer exposes the goal tracker over HTTP. sendText is optional;
// when set, a successful bot verification notifies the linked chat.
type apiServer struct {
	gdb      *gorm.DB
	svc      *goals.Service
	linker   *bot.Linker
	sendText func(ctx context.Context, chatID int64, text string) error
	logger   *slog.Logger
}

func (s *apiServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	mux.HandleFunc("/auth/register", s.handleRegister)
	mux.HandleFunc("/auth/login", s.handleLogin)
	mux.HandleFunc("/boards", s.handleBoards)
	mux.HandleFunc("/boards/", s.handleBoardByID)
	mux.HandleFunc("/categories", s.handleCategories)
	mux.HandleFunc("/categories/", s.handleCategoryByID)
	mux.HandleFunc("/goals", s.handleGoals)
	mux.HandleFunc("/goals/", s.handleGoalByID)
	mux.HandleFunc("/bot/verify", s.handleBotVerify)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, goals.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, goals.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "not allowed")
	case errors.Is(err, goals.ErrInvalidInput),
		errors.Is(err, goals.ErrBoardDeleted),
		errors.Is(err, goals.ErrCategoryDeleted):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// requireUser resolves the bearer token to a user id, or writes 401.
func (s *apiServer) requireUser(w http.ResponseWriter, r *http.Request) (uint, bool) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return 0, false
	}
	var sess models.Session
	err := s.gdb.WithContext(r.Context()).Where("token = ?", strings.TrimSpace(token)).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return 0, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return 0, false
	}
	return sess.UserID, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *apiServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	user := &models.User{Username: username, PasswordHash: string(hash)}
	err = s.gdb.WithContext(r.Context()).Create(user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
			writeError(w, http.StatusConflict, "username already taken")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *apiServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var user models.User
	err := s.gdb.WithContext(r.Context()).Where("username = ?", strings.TrimSpace(req.Username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	sess := &models.Session{Token: uuid.NewString(), UserID: user.ID}
	if err := s.gdb.WithContext(r.Context()).Create(sess).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": sess.Token})
}

type boardRequest struct {
	Title        string                    `json:"title"`
	Participants []goals.ParticipantUpdate `json:"participants,omitempty"`
}

func (s *apiServer) handleBoards(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		boards, err := s.svc.ListBoards(r.Context(), userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, boards)
	case http.MethodPost:
		var req boardRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		board, err := s.svc.CreateBoard(r.Context(), userID, req.Title)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, board)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleBoardByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "/boards/")
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		board, err := s.svc.GetBoard(r.Context(), userID, id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, board)
	case http.MethodPatch, http.MethodPut:
		var req boardRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		board, err := s.svc.UpdateBoard(r.Context(), userID, id, req.Title, req.Participants)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, board)
	case http.MethodDelete:
		if err := s.svc.DeleteBoard(r.Context(), userID, id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type categoryRequest struct {
	BoardID uint   `json:"board_id"`
	Title   string `json:"title"`
}

func (s *apiServer) handleCategories(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		cats, err := s.svc.ListCategories(r.Context(), userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cats)
	case http.MethodPost:
		var req categoryRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		cat, err := s.svc.CreateCategory(r.Context(), userID, req.BoardID, req.Title)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, cat)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleCategoryByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "/categories/")
	if !ok {
		return
	}
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.svc.DeleteCategory(r.Context(), userID, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createGoalRequest struct {
	CategoryID  uint                `json:"category_id"`
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Priority    models.GoalPriority `json:"priority,omitempty"`
	DueDate     *time.Time          `json:"due_date,omitempty"`
}

type updateGoalRequest struct {
	Title       *string              `json:"title,omitempty"`
	Description *string              `json:"description,omitempty"`
	Status      *models.GoalStatus   `json:"status,omitempty"`
	Priority    *models.GoalPriority `json:"priority,omitempty"`
	DueDate     *time.Time           `json:"due_date,omitempty"`
}

func (s *apiServer) handleGoals(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		list, err := s.svc.ListActiveGoals(r.Context(), userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req createGoalRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		goal, err := s.svc.CreateGoal(r.Context(), userID, goals.CreateGoalInput{
			CategoryID:  req.CategoryID,
			Title:       req.Title,
			Description: req.Description,
			Priority:    req.Priority,
			DueDate:     req.DueDate,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, goal)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type commentRequest struct {
	Text string `json:"text"`
}

// handleGoalByID covers /goals/{id} and /goals/{id}/comments.
func (s *apiServer) handleGoalByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/goals/"), "/")
	parts := strings.Split(rest, "/")
	id64, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	id := uint(id64)

	if len(parts) == 2 && parts[1] == "comments" {
		switch r.Method {
		case http.MethodGet:
			comments, err := s.svc.ListComments(r.Context(), userID, id)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, comments)
		case http.MethodPost:
			var req commentRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			comment, err := s.svc.CreateComment(r.Context(), userID, id, req.Text)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, comment)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		goal, err := s.svc.GetGoal(r.Context(), userID, id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, goal)
	case http.MethodPatch, http.MethodPut:
		var req updateGoalRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		goal, err := s.svc.UpdateGoal(r.Context(), userID, id, goals.UpdateGoalInput{
			Title:       req.Title,
			Description: req.Description,
			Status:      req.Status,
			Priority:    req.Priority,
			DueDate:     req.DueDate,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, goal)
	case http.MethodDelete:
		if err := s.svc.DeleteGoal(r.Context(), userID, id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type verifyRequest struct {
	VerificationCode string `json:"verification_code"`
}

// handleBotVerify redeems a verification code for the authenticated user,
// linking their Telegram chat. The bot keeps prompting until this
// succeeds.
func (s *apiServer) handleBotVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req verifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	identity, err := s.linker.Verify(r.Context(), userID, req.VerificationCode)
	if err != nil {
		if errors.Is(err, bot.ErrCodeNotFound) {
			writeError(w, http.StatusBadRequest, "unknown verification code")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if s.sendText != nil {
		if err := s.sendText(r.Context(), identity.TgChatID, "Verification successful!"); err != nil {
			s.logger.Warn("verify_notify_error", "chat_id", identity.TgChatID, "error", err.Error())
		}
	}
	writeJSON(w, http.StatusOK, identity)
}

func pathID(w http.ResponseWriter, r *http.Request, prefix string) (uint, bool) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if rest == "" || strings.Contains(rest, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return 0, false
	}
	id, err := strconv.ParseUint(rest, 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return uint(id), true
}
