package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserSummaryScenario(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateUser(ctx, "ana", "Ana", "ana@x.com", "secret1")
	require.NoError(t, err)

	logEvaluations(t, s, "ana", OutcomeHit, OutcomeHit, OutcomeMiss)

	summary, err := s.GetUserSummary(ctx, "ana")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.Hits)
	assert.Equal(t, 1, summary.Misses)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 66.67, summary.Accuracy)
	require.NotNil(t, summary.FirstActivity)
	require.NotNil(t, summary.LastActivity)
	assert.True(t, summary.FirstActivity.Before(*summary.LastActivity))
}

func TestUserSummaryWithoutDecisions(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	mustCreateUser(t, s, "ana")

	_, err := s.LogAction(ctx, "ana", ActionFeedback, "the scenario felt unrealistic", nil)
	require.NoError(t, err)

	summary, err := s.GetUserSummary(ctx, "ana")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 0, summary.Total)
	assert.Equal(t, 0.0, summary.Accuracy)
	assert.Nil(t, summary.FirstActivity)
	assert.Nil(t, summary.LastActivity)
}

func TestUserSummaryUnknownUser(t *testing.T) {
	s, _ := newTestStore(t)
	summary, err := s.GetUserSummary(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, summary)
}

func TestAllUserSummariesOrdering(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for _, u := range []string{"dee", "bo", "cy", "ana"} {
		mustCreateUser(t, s, u)
	}
	logEvaluations(t, s, "ana", OutcomeHit, OutcomeHit, OutcomeMiss)
	logEvaluations(t, s, "bo", OutcomeHit)
	logEvaluations(t, s, "dee", OutcomeMiss)
	// Non-evaluation actions must neither count nor hide the user.
	_, err := s.LogAction(ctx, "cy", ActionFeedback, "great", nil)
	require.NoError(t, err)

	summaries, err := s.GetAllUserSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 4)

	var order []string
	for _, sum := range summaries {
		order = append(order, sum.Username)
	}
	assert.Equal(t, []string{"ana", "bo", "dee", "cy"}, order)

	assert.Equal(t, UserSummary{
		Username: "cy", Name: "Name cy", Email: "cy@x.com",
	}, summaries[3])
	assert.Equal(t, 100.0, summaries[1].Accuracy)
	assert.Equal(t, 0.0, summaries[2].Accuracy)

	again, err := s.GetAllUserSummaries(ctx)
	require.NoError(t, err)
	assert.Equal(t, summaries, again)
}

func TestAllUserSummariesTwoUserScenario(t *testing.T) {
	s, _ := newTestStore(t)
	mustCreateUser(t, s, "bo")
	mustCreateUser(t, s, "ana")
	logEvaluations(t, s, "bo", OutcomeHit)
	logEvaluations(t, s, "ana", OutcomeHit, OutcomeMiss, OutcomeHit)

	summaries, err := s.GetAllUserSummaries(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "ana", summaries[0].Username)
	assert.Equal(t, 3, summaries[0].Total)
	assert.Equal(t, "bo", summaries[1].Username)
	assert.Equal(t, 1, summaries[1].Total)
}

func TestLogActionRejectsInvalidEvaluationOutcome(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	mustCreateUser(t, s, "ana")

	for _, outcome := range []string{"", "HIT", "acerto", "maybe"} {
		_, err := s.LogAction(ctx, "ana", ActionEvaluation, outcome, nil)
		assert.ErrorIs(t, err, ErrInvalidOutcome, "outcome %q", outcome)
	}
	_, err := s.LogAction(ctx, "ana", "", "x", nil)
	assert.ErrorIs(t, err, ErrEmptyAction)
	_, err = s.LogAction(ctx, "", ActionEvaluation, OutcomeHit, nil)
	assert.ErrorIs(t, err, ErrEmptyUsername)

	stats, err := s.GetGlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalActions)
}

func TestGlobalStatsAndOverview(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for _, u := range []string{"ana", "bo", "cy"} {
		mustCreateUser(t, s, u)
	}
	_, err := s.AppendMessage(ctx, "ana", RoleUser, "hi")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, "ana", RoleAssistant, "hello")
	require.NoError(t, err)
	logEvaluations(t, s, "ana", OutcomeHit, OutcomeMiss)
	logEvaluations(t, s, "bo", OutcomeHit)
	meta := `{"source":"sidebar"}`
	_, err = s.LogAction(ctx, "cy", ActionFeedback, "ok", &meta)
	require.NoError(t, err)

	stats, err := s.GetGlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, GlobalStats{TotalUsers: 3, TotalMessages: 2, TotalActions: 4, ActiveUsers: 2}, *stats)

	overview, err := s.GetOverview(ctx)
	require.NoError(t, err)
	assert.Equal(t, Overview{TotalDecisions: 3, TotalHits: 2, Accuracy: 66.67}, *overview)
}

func TestRecentActionsNewestFirst(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	mustCreateUser(t, s, "ana")
	mustCreateUser(t, s, "bo")
	logEvaluations(t, s, "ana", OutcomeHit)
	logEvaluations(t, s, "bo", OutcomeMiss)
	_, err := s.LogAction(ctx, "ana", ActionFeedback, "note", nil)
	require.NoError(t, err)
	logEvaluations(t, s, "ana", OutcomeMiss)

	recent, err := s.RecentActions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "ana", recent[0].Username)
	assert.Equal(t, OutcomeMiss, recent[0].Outcome)
	assert.Equal(t, "bo", recent[1].Username)
	for _, a := range recent {
		assert.Equal(t, ActionEvaluation, a.ActionType)
	}
}

func TestCleanupKeepsEvaluations(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	mustCreateUser(t, s, "ana")

	_, err := s.AppendMessage(ctx, "ana", RoleUser, "old message")
	require.NoError(t, err)
	_, err = s.LogAction(ctx, "ana", ActionFeedback, "old feedback", nil)
	require.NoError(t, err)
	logEvaluations(t, s, "ana", OutcomeHit)

	clock.Advance(31 * 24 * time.Hour)

	_, err = s.AppendMessage(ctx, "ana", RoleUser, "fresh message")
	require.NoError(t, err)
	_, err = s.LogAction(ctx, "ana", ActionFeedback, "fresh feedback", nil)
	require.NoError(t, err)

	result, err := s.Cleanup(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, CleanupResult{MessagesRemoved: 1, ActionsRemoved: 1}, result)

	history, err := s.GetHistory(ctx, "ana", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh message"}, contents(history))

	summary, err := s.GetUserSummary(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)

	_, err = s.Cleanup(ctx, 0)
	assert.Error(t, err)
}
