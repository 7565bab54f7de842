package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/paywall/internal/config"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/metrics"
	"github.com/magabrotheeeer/paywall/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) ExpireSubscriptions(ctx context.Context, now time.Time) ([]string, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *RepoMock) FindExpiringSubscriptions(ctx context.Context, now, until time.Time) ([]*models.ExpiringSubscription, error) {
	args := m.Called(ctx, now, until)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ExpiringSubscription), args.Error(1)
}

func (m *RepoMock) MarkReminderSent(ctx context.Context, id string, now time.Time) (bool, error) {
	args := m.Called(ctx, id, now)
	return args.Bool(0), args.Error(1)
}

func (m *RepoMock) DeleteStalePending(ctx context.Context, olderThan time.Time) (int, error) {
	args := m.Called(ctx, olderThan)
	return args.Int(0), args.Error(1)
}

type NotifierMock struct{ mock.Mock }

func (m *NotifierMock) Send(ctx context.Context, n models.Notification) error {
	return m.Called(ctx, n).Error(0)
}

type AccessMock struct{ mock.Mock }

func (m *AccessMock) InvalidateEntitlement(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

var now = time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

var sweeperCfg = config.Sweeper{ReminderWindow: 72 * time.Hour, PendingTTL: 24 * time.Hour}

func newService() (*Service, *RepoMock, *NotifierMock, *AccessMock) {
	repo := new(RepoMock)
	notifier := new(NotifierMock)
	access := new(AccessMock)
	s := New(repo, notifier, access, sweeperCfg, func() time.Time { return now }, sl.Discard())
	return s, repo, notifier, access
}

func TestExpireSweep_InvalidatesOwners(t *testing.T) {
	s, repo, _, access := newService()
	metrics.SweepProcessedTotal.Reset()
	metrics.SweepErrorsTotal.Reset()

	repo.On("ExpireSubscriptions", mock.Anything, now).Return([]string{"u1", "u2"}, nil).Once()
	access.On("InvalidateEntitlement", mock.Anything, "u1").Return(nil).Once()
	access.On("InvalidateEntitlement", mock.Anything, "u2").Return(errors.New("redis down")).Once()

	n, err := s.ExpireSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.SweepProcessedTotal.WithLabelValues(SweepExpire)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SweepErrorsTotal.WithLabelValues(SweepExpire)))
	access.AssertExpectations(t)
}

func TestExpireSweep_NothingToDo(t *testing.T) {
	s, repo, _, access := newService()
	repo.On("ExpireSubscriptions", mock.Anything, now).Return([]string{}, nil).Once()

	n, err := s.ExpireSweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	access.AssertNotCalled(t, "InvalidateEntitlement", mock.Anything, mock.Anything)
}

func TestExpireSweep_StoreError(t *testing.T) {
	s, repo, _, _ := newService()
	repo.On("ExpireSubscriptions", mock.Anything, now).Return(nil, errors.New("conn refused")).Once()

	_, err := s.ExpireSweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweeper.ExpireSweep")
}

func expiring(id, email string) *models.ExpiringSubscription {
	return &models.ExpiringSubscription{
		ID:         id,
		UserID:     "user-" + id,
		Email:      email,
		Username:   "name-" + id,
		PlanName:   "premium",
		Scope:      models.ScopeGlobal,
		ExpiryDate: now.Add(48 * time.Hour),
	}
}

func TestReminderSweep(t *testing.T) {
	s, repo, notifier, _ := newService()
	until := now.Add(72 * time.Hour)

	repo.On("FindExpiringSubscriptions", mock.Anything, now, until).Return([]*models.ExpiringSubscription{
		expiring("a", "a@example.com"),
		expiring("b", "b@example.com"),
		expiring("c", "c@example.com"),
		expiring("d", "d@example.com"),
	}, nil).Once()
	repo.On("MarkReminderSent", mock.Anything, "a", now).Return(true, nil).Once()
	// b уже напомнили в параллельном проходе
	repo.On("MarkReminderSent", mock.Anything, "b", now).Return(false, nil).Once()
	repo.On("MarkReminderSent", mock.Anything, "c", now).Return(false, errors.New("timeout")).Once()
	repo.On("MarkReminderSent", mock.Anything, "d", now).Return(true, nil).Once()

	notifier.On("Send", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		return n.Email == "a@example.com"
	})).Return(nil).Once()
	notifier.On("Send", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		return n.Email == "d@example.com"
	})).Return(errors.New("broker down")).Once()

	sent, err := s.ReminderSweep(context.Background())
	require.NoError(t, err, "dispatch failures never fail the sweep")
	assert.Equal(t, 1, sent)
	repo.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestReminderSweep_Empty(t *testing.T) {
	s, repo, notifier, _ := newService()
	repo.On("FindExpiringSubscriptions", mock.Anything, now, now.Add(72*time.Hour)).
		Return([]*models.ExpiringSubscription{}, nil).Once()

	sent, err := s.ReminderSweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestCleanupSweep(t *testing.T) {
	s, repo, _, _ := newService()
	repo.On("DeleteStalePending", mock.Anything, now.Add(-24*time.Hour)).Return(3, nil).Once()

	n, err := s.CleanupSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRunAll(t *testing.T) {
	s, repo, _, access := newService()
	repo.On("ExpireSubscriptions", mock.Anything, now).Return([]string{"u1"}, nil).Once()
	access.On("InvalidateEntitlement", mock.Anything, "u1").Return(nil).Once()
	repo.On("FindExpiringSubscriptions", mock.Anything, now, now.Add(72*time.Hour)).
		Return([]*models.ExpiringSubscription{}, nil).Once()
	repo.On("DeleteStalePending", mock.Anything, now.Add(-24*time.Hour)).Return(2, nil).Once()

	res, err := s.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Expired: 1, Reminded: 0, Deleted: 2}, res)
}

func TestRunAll_ReturnsFirstError(t *testing.T) {
	s, repo, _, _ := newService()
	repo.On("ExpireSubscriptions", mock.Anything, now).Return([]string{}, nil).Once()
	repo.On("FindExpiringSubscriptions", mock.Anything, now, now.Add(72*time.Hour)).
		Return([]*models.ExpiringSubscription{}, nil).Once()
	repo.On("DeleteStalePending", mock.Anything, now.Add(-24*time.Hour)).Return(0, errors.New("disk full")).Once()

	_, err := s.RunAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweeper.CleanupSweep")
}
