package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"gwi.com/leadership-simulator/internal/store"
)

var (
	ErrEmptyMessage  = errors.New("message content cannot be empty")
	ErrEmptyFeedback = errors.New("feedback cannot be empty")
)

type ChatService struct {
	dbStore      *store.SQLiteStore
	assistant    Assistant
	evaluator    Evaluator
	historyLimit int
}

// NewChatService wires the conversation flow. historyLimit bounds both the
// history endpoint and the context handed to the assistant; 0 is unbounded.
func NewChatService(db *store.SQLiteStore, assistant Assistant, evaluator Evaluator, historyLimit int) *ChatService {
	return &ChatService{
		dbStore:      db,
		assistant:    assistant,
		evaluator:    evaluator,
		historyLimit: historyLimit,
	}
}

// ChatReply is the outcome of one user turn. Error replies are shown to the
// user but never persisted.
type ChatReply struct {
	Message         store.Message `json:"message"`
	Verdict         Verdict       `json:"verdict,omitempty"`
	Error           bool          `json:"error"`
	ThreadPersisted bool          `json:"thread_persisted"`
}

// PostMessage records the user's turn, evaluates it, and returns the
// assistant's answer. Only a failure to record the user's own turn is
// returned as an error; evaluation and assistant failures degrade.
func (s *ChatService) PostMessage(ctx context.Context, session *store.Session, content string, onDelta func(string)) (*ChatReply, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	username := session.Username
	logger := log.WithFields(log.Fields{"username": username, "session": session.ID})

	userMsg, err := s.dbStore.AppendMessage(ctx, username, store.RoleUser, content)
	if err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	reply := &ChatReply{Verdict: s.evaluate(ctx, session, logger)}

	thread, persisted, err := s.dbStore.GetOrCreateThreadHandle(ctx, username, s.assistant.NewThread)
	if err != nil {
		logger.WithError(err).Error("Failed to resolve assistant thread")
		reply.Message = errorTurn(username, err)
		reply.Error = true
		return reply, nil
	}
	reply.ThreadPersisted = persisted

	history, err := s.dbStore.GetHistory(ctx, username, s.historyLimit)
	if err != nil {
		logger.WithError(err).Warn("Failed to load history for the assistant, continuing without it")
		history = nil
	}
	if n := len(history); n > 0 && history[n-1].ID == userMsg.ID {
		history = history[:n-1]
	}

	content, err = s.assistant.Reply(ctx, thread, turnsFromMessages(history), content, onDelta)
	if err != nil {
		logger.WithError(err).Error("Assistant reply failed")
		reply.Message = errorTurn(username, err)
		reply.Error = true
		return reply, nil
	}

	assistantMsg, err := s.dbStore.AppendMessage(ctx, username, store.RoleAssistant, content)
	if err != nil {
		// The user still sees the answer; it is only missing from history.
		logger.WithError(err).Error("Failed to store assistant message")
		reply.Message = store.Message{Username: username, Role: store.RoleAssistant, Content: content}
		return reply, nil
	}
	reply.Message = *assistantMsg
	return reply, nil
}

// evaluate classifies the latest turn and records the verdict. It returns ""
// when no verdict was recorded.
func (s *ChatService) evaluate(ctx context.Context, session *store.Session, logger *log.Entry) Verdict {
	recent, err := s.dbStore.RecentMessages(ctx, session.Username, EvaluationWindow)
	if err != nil {
		logger.WithError(err).Warn("Failed to load turns for evaluation")
		return ""
	}

	verdict, err := s.evaluator.Evaluate(ctx, turnsFromMessages(recent))
	if err != nil {
		logger.WithError(err).Warn("Automatic evaluation failed")
		return ""
	}

	metadata := evaluationMetadata(session.ID)
	if _, err := s.dbStore.LogAction(ctx, session.Username, store.ActionEvaluation, string(verdict), metadata); err != nil {
		logger.WithError(err).Error("Failed to record evaluation")
		return ""
	}
	if err := s.dbStore.IncrementSessionDecisions(ctx, session.ID); err != nil {
		logger.WithError(err).Warn("Failed to update session decision count")
	}
	logger.WithField("verdict", verdict).Info("Recorded automatic evaluation")
	return verdict
}

func evaluationMetadata(sessionID string) *string {
	raw, err := json.Marshal(map[string]string{"session_id": sessionID})
	if err != nil {
		return nil
	}
	s := string(raw)
	return &s
}

func errorTurn(username string, err error) store.Message {
	return store.Message{
		Username: username,
		Role:     store.RoleAssistant,
		Content:  fmt.Sprintf("Error communicating with the assistant: %v", err),
	}
}

// History returns the user's conversation oldest first.
func (s *ChatService) History(ctx context.Context, username string) ([]store.Message, error) {
	return s.dbStore.GetHistory(ctx, username, s.historyLimit)
}

func (s *ChatService) ClearHistory(ctx context.Context, username string) (int64, error) {
	removed, err := s.dbStore.ClearHistory(ctx, username)
	if err != nil {
		return 0, err
	}
	log.WithFields(log.Fields{"username": username, "removed": removed}).Info("Cleared conversation history")
	return removed, nil
}

// SubmitFeedback records free-text feedback as a manual_feedback action. It
// never counts toward the hit/miss statistics.
func (s *ChatService) SubmitFeedback(ctx context.Context, username, text string) (*store.Action, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyFeedback
	}
	return s.dbStore.LogAction(ctx, username, store.ActionFeedback, "", &text)
}
