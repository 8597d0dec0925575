package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"gwi.com/leadership-simulator/internal/core"
	"gwi.com/leadership-simulator/internal/store"
)

type APIHandler struct {
	userService      *core.UserService
	chatService      *core.ChatService
	dashboardService *core.DashboardService
	retention        *core.RetentionJob
}

func NewAPIHandler(us *core.UserService, cs *core.ChatService, ds *core.DashboardService, rj *core.RetentionJob) *APIHandler {
	return &APIHandler{
		userService:      us,
		chatService:      cs,
		dashboardService: ds,
		retention:        rj,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decode reads a JSON body into req and validates it. It writes the 400
// response itself and reports whether the handler may go on.
func decode(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	if err := validateRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := h.userService.Register(r.Context(), core.Registration{
		Username: req.Username,
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		var dup *store.DuplicateFieldError
		if errors.As(err, &dup) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": dup.Error(), "field": dup.Field})
			return
		}
		log.WithError(err).WithField("username", req.Username).Error("Error creating user")
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.userService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrAuthFailed) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		log.WithError(err).WithField("username", req.Username).Error("Error during login")
		writeError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())
	if err := h.userService.Logout(r.Context(), session.ID); err != nil {
		log.WithError(err).WithField("session", session.ID).Error("Error ending session")
		writeError(w, http.StatusInternalServerError, "Failed to log out")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFrom(r.Context()))
}

func (h *APIHandler) MySummaryHandler(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	summary := h.dashboardService.UserSummary(r.Context(), user.Username)
	if summary == nil {
		summary = &store.UserSummary{Username: user.Username, Name: user.Name, Email: user.Email}
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *APIHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	messages, err := h.chatService.History(r.Context(), user.Username)
	if err != nil {
		log.WithError(err).WithField("username", user.Username).Error("Error loading history")
		messages = []store.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *APIHandler) ClearHistoryHandler(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	removed, err := h.chatService.ClearHistory(r.Context(), user.Username)
	if err != nil {
		log.WithError(err).WithField("username", user.Username).Error("Error clearing history")
		writeError(w, http.StatusInternalServerError, "Failed to clear history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

// PostMessageHandler answers with JSON, or with a server-sent event stream of
// reply deltas when the client asks for text/event-stream.
func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	var req PostMessageRequest
	if !decode(w, r, &req) {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	stream := canFlush && strings.Contains(r.Header.Get("Accept"), "text/event-stream")
	var onDelta func(string)
	if stream {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		onDelta = func(delta string) {
			writeEvent(w, "delta", map[string]string{"text": delta})
			flusher.Flush()
		}
	}

	reply, err := h.chatService.PostMessage(r.Context(), session, req.Content, onDelta)
	if err != nil {
		log.WithError(err).WithField("username", session.Username).Error("Error posting message")
		if stream {
			writeEvent(w, "error", map[string]string{"error": "Failed to post message"})
			flusher.Flush()
			return
		}
		if errors.Is(err, core.ErrEmptyMessage) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to post message")
		return
	}

	if stream {
		writeEvent(w, "done", reply)
		flusher.Flush()
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func writeEvent(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.WithError(err).Warn("Failed to encode event")
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func (h *APIHandler) FeedbackHandler(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req FeedbackRequest
	if !decode(w, r, &req) {
		return
	}

	action, err := h.chatService.SubmitFeedback(r.Context(), user.Username, req.Text)
	if err != nil {
		if errors.Is(err, core.ErrEmptyFeedback) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.WithError(err).WithField("username", user.Username).Error("Error saving feedback")
		writeError(w, http.StatusInternalServerError, "Failed to save feedback")
		return
	}
	writeJSON(w, http.StatusCreated, action)
}

func (h *APIHandler) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		log.WithError(err).Error("Error listing users")
		users = []store.UserProfile{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *APIHandler) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if admin := userFrom(r.Context()); strings.EqualFold(admin.Username, username) {
		writeError(w, http.StatusBadRequest, "Administrators cannot delete themselves")
		return
	}

	if err := h.userService.Delete(r.Context(), username); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		log.WithError(err).WithField("username", username).Error("Error deleting user")
		writeError(w, http.StatusInternalServerError, "Failed to delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dashboardService.Snapshot(r.Context()))
}

func (h *APIHandler) UserSummaryHandler(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	summary := h.dashboardService.UserSummary(r.Context(), username)
	if summary == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *APIHandler) CleanupHandler(w http.ResponseWriter, r *http.Request) {
	res, err := h.retention.RunOnce(r.Context())
	if err != nil {
		log.WithError(err).Error("Error running retention cleanup")
		writeError(w, http.StatusInternalServerError, "Cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
