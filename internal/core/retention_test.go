package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRetentionJobValidates(t *testing.T) {
	s := newTestStore(t)

	_, err := NewRetentionJob(s, 0, "0 3 * * *")
	require.Error(t, err)

	_, err = NewRetentionJob(s, time.Hour, "every night")
	require.Error(t, err)

	job, err := NewRetentionJob(s, time.Hour, "0 3 * * *")
	require.NoError(t, err)
	require.NoError(t, job.Start())
	job.Stop()
}

func TestRetentionRunOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	session := newSession(t, s, "ana")
	provider := &fakeProvider{verdict: "hit"}
	_, err := NewChatService(s, provider, provider, 0).PostMessage(ctx, session, "hello", nil)
	require.NoError(t, err)

	// Nothing is older than a day yet.
	job, err := NewRetentionJob(s, 24*time.Hour, "0 3 * * *")
	require.NoError(t, err)
	res, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.MessagesRemoved)

	later := time.Now().Add(48 * time.Hour)
	s.SetClock(func() time.Time { return later })
	res, err = job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.MessagesRemoved)
	assert.Equal(t, int64(0), res.ActionsRemoved)

	summary, err := s.GetUserSummary(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Hits)
}
