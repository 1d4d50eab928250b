package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gaur97shiv/playknow/internal/apperr"
	"github.com/Gaur97shiv/playknow/internal/model"
	"github.com/Gaur97shiv/playknow/internal/repository"
)

type memFraudLogs struct {
	logs     []*model.FraudLog
	gotLimit int
}

func (m *memFraudLogs) ListByUser(_ context.Context, userID int64, limit int) ([]*model.FraudLog, error) {
	m.gotLimit = limit
	var out []*model.FraudLog
	for _, l := range m.logs {
		if (userID == 0 && !l.Resolved) || l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memFraudLogs) Resolve(_ context.Context, id int64, action model.FraudAction, at time.Time) (*model.FraudLog, error) {
	for _, l := range m.logs {
		if l.ID == id {
			l.Resolved, l.Action, l.ResolvedAt = true, action, &at
			return l, nil
		}
	}
	return nil, repository.ErrFraudLogNotFound
}

func TestFraudReview_ListAndResolve(t *testing.T) {
	ctx := context.Background()
	now := at(15, 10, 0)
	store := &memFraudLogs{logs: []*model.FraudLog{
		{ID: 1, UserID: 7, Severity: model.SeverityMedium},
		{ID: 2, UserID: 8, Severity: model.SeverityHigh},
	}}
	svc := NewFraudReviewService(store, func() time.Time { return now })

	queue, err := svc.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, queue, 2)
	assert.Equal(t, DefaultFraudLogLimit, store.gotLimit)

	l, err := svc.Resolve(ctx, 2, string(model.FraudActionTemporarySuspension))
	require.NoError(t, err)
	assert.True(t, l.Resolved)
	require.NotNil(t, l.ResolvedAt)
	assert.Equal(t, now, *l.ResolvedAt)

	queue, err = svc.List(ctx, 0, 500)
	require.NoError(t, err)
	assert.Len(t, queue, 1)
	assert.Equal(t, MaxFraudLogLimit, store.gotLimit)

	mine, err := svc.List(ctx, 8, 5)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, int64(2), mine[0].ID)

	none, err := svc.List(ctx, 99, 5)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestFraudReview_Validation(t *testing.T) {
	ctx := context.Background()
	svc := NewFraudReviewService(&memFraudLogs{}, nil)

	_, err := svc.List(ctx, -1, 10)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Resolve(ctx, 1, "shrug")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Resolve(ctx, 0, "warning")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Resolve(ctx, 42, "warning")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
