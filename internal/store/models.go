package store

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	// ActionEvaluation rows are the statistical record of the dashboard and
	// survive retention cleanup.
	ActionEvaluation = "automatic_evaluation"
	ActionFeedback   = "manual_feedback"

	OutcomeHit  = "hit"
	OutcomeMiss = "miss"
)

type UserProfile struct {
	Username  string     `json:"username"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	IsAdmin   bool       `json:"is_admin"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login"`
}

// Credential is the read-only projection handed to external auth components.
type Credential struct {
	Name         string `json:"name" yaml:"name"`
	Email        string `json:"email" yaml:"email"`
	PasswordHash string `json:"password" yaml:"password"`
}

type Message struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type Action struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	ActionType string    `json:"action_type"`
	Outcome    string    `json:"outcome"`
	Metadata   *string   `json:"metadata,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type ThreadBinding struct {
	Username  string    `json:"username"`
	ThreadID  string    `json:"thread_id"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
}

type Session struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	ExpiresAt      time.Time  `json:"expires_at"`
	TotalDecisions int        `json:"total_decisions"`
}

type UserSummary struct {
	Username      string     `json:"username"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Hits          int        `json:"hits"`
	Misses        int        `json:"misses"`
	Total         int        `json:"total"`
	Accuracy      float64    `json:"accuracy"`
	FirstActivity *time.Time `json:"first_activity"`
	LastActivity  *time.Time `json:"last_activity"`
	LastLogin     *time.Time `json:"last_login"`
}

type GlobalStats struct {
	TotalUsers    int `json:"total_users"`
	TotalMessages int `json:"total_messages"`
	TotalActions  int `json:"total_actions"`
	ActiveUsers   int `json:"active_users"`
}

// Overview aggregates every evaluation action regardless of user.
type Overview struct {
	TotalDecisions int     `json:"total_decisions"`
	TotalHits      int     `json:"total_hits"`
	Accuracy       float64 `json:"accuracy"`
}

type CleanupResult struct {
	MessagesRemoved int64 `json:"messages_removed"`
	ActionsRemoved  int64 `json:"actions_removed"`
}
