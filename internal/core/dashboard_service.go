package core

import (
	"context"

	log "github.com/sirupsen/logrus"

	"gwi.com/leadership-simulator/internal/store"
)

const recentActionsLimit = 10

// DashboardService serves admin reads. A failing store never fails a read:
// the error is logged and the affected section comes back empty.
type DashboardService struct {
	dbStore *store.SQLiteStore
}

func NewDashboardService(db *store.SQLiteStore) *DashboardService {
	return &DashboardService{dbStore: db}
}

type Dashboard struct {
	Overview  store.Overview      `json:"overview"`
	Global    store.GlobalStats   `json:"global"`
	Summaries []store.UserSummary `json:"summaries"`
	Recent    []store.Action      `json:"recent_actions"`
}

func (s *DashboardService) Snapshot(ctx context.Context) Dashboard {
	return Dashboard{
		Overview:  s.Overview(ctx),
		Global:    s.GlobalStats(ctx),
		Summaries: s.Summaries(ctx),
		Recent:    s.RecentActions(ctx),
	}
}

func (s *DashboardService) Overview(ctx context.Context) store.Overview {
	overview, err := s.dbStore.GetOverview(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to load overview")
		return store.Overview{}
	}
	return *overview
}

func (s *DashboardService) GlobalStats(ctx context.Context) store.GlobalStats {
	stats, err := s.dbStore.GetGlobalStats(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to load global stats")
		return store.GlobalStats{}
	}
	return *stats
}

func (s *DashboardService) Summaries(ctx context.Context) []store.UserSummary {
	summaries, err := s.dbStore.GetAllUserSummaries(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to load user summaries")
		return []store.UserSummary{}
	}
	return summaries
}

func (s *DashboardService) RecentActions(ctx context.Context) []store.Action {
	actions, err := s.dbStore.RecentActions(ctx, recentActionsLimit)
	if err != nil {
		log.WithError(err).Error("Failed to load recent actions")
		return []store.Action{}
	}
	return actions
}

// UserSummary returns nil for unknown users and when the store fails.
func (s *DashboardService) UserSummary(ctx context.Context, username string) *store.UserSummary {
	summary, err := s.dbStore.GetUserSummary(ctx, username)
	if err != nil {
		log.WithError(err).WithField("username", username).Error("Failed to load user summary")
		return nil
	}
	return summary
}
