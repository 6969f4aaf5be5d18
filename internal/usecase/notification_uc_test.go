package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xconfess-notify/internal/domain"
	"xconfess-notify/internal/queue"
	"xconfess-notify/pkg/xerrors"
)

type mockRepo struct {
	createNotificationFn func(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	listRecentFn         func(ctx context.Context, userID string, since time.Time) ([]*domain.Notification, error)
	markManyReadFn       func(ctx context.Context, ids []string) error
	countUnreadFn        func(ctx context.Context, userID string) (int, error)
	getPreferenceFn      func(ctx context.Context, userID string) (*domain.Preference, error)
	createPreferenceFn   func(ctx context.Context, p *domain.Preference) (*domain.Preference, error)
	updatePreferenceFn   func(ctx context.Context, p *domain.Preference) (*domain.Preference, error)
}

func (m *mockRepo) CreateNotification(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	if m.createNotificationFn != nil {
		return m.createNotificationFn(ctx, n)
	}
	out := *n
	out.ID = "created"
	return &out, nil
}

func (m *mockRepo) ListRecentUnreadMessages(ctx context.Context, userID string, since time.Time) ([]*domain.Notification, error) {
	if m.listRecentFn != nil {
		return m.listRecentFn(ctx, userID, since)
	}
	return nil, nil
}

func (m *mockRepo) MarkManyRead(ctx context.Context, ids []string) error {
	if m.markManyReadFn != nil {
		return m.markManyReadFn(ctx, ids)
	}
	return nil
}

func (m *mockRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	if m.countUnreadFn != nil {
		return m.countUnreadFn(ctx, userID)
	}
	return 0, nil
}

func (m *mockRepo) GetPreference(ctx context.Context, userID string) (*domain.Preference, error) {
	if m.getPreferenceFn != nil {
		return m.getPreferenceFn(ctx, userID)
	}
	return domain.DefaultPreference(userID), nil
}

func (m *mockRepo) CreatePreference(ctx context.Context, p *domain.Preference) (*domain.Preference, error) {
	if m.createPreferenceFn != nil {
		return m.createPreferenceFn(ctx, p)
	}
	return p, nil
}

func (m *mockRepo) UpdatePreference(ctx context.Context, p *domain.Preference) (*domain.Preference, error) {
	if m.updatePreferenceFn != nil {
		return m.updatePreferenceFn(ctx, p)
	}
	return p, nil
}

func (m *mockRepo) GetNotificationByID(context.Context, string) (*domain.Notification, error) {
	panic("not expected")
}
func (m *mockRepo) ListNotifications(context.Context, string, bool, int, int) ([]*domain.Notification, error) {
	panic("not expected")
}
func (m *mockRepo) CountNotifications(context.Context, string, bool) (int, error) {
	panic("not expected")
}
func (m *mockRepo) MarkNotificationRead(context.Context, string, string) error {
	panic("not expected")
}
func (m *mockRepo) MarkAllRead(context.Context, string) error { panic("not expected") }
func (m *mockRepo) MarkEmailSent(context.Context, string, time.Time) error {
	panic("not expected")
}

type mockEnqueuer struct {
	payloads []queue.Payload
}

func (m *mockEnqueuer) Enqueue(_ context.Context, p queue.Payload) (*queue.Job, error) {
	m.payloads = append(m.payloads, p)
	return &queue.Job{ID: "job1", Payload: p}, nil
}

type pushedEvent struct {
	userID string
	event  string
}

type mockPusher struct {
	events []pushedEvent
}

func (m *mockPusher) Send(userID, event string, _ any) {
	m.events = append(m.events, pushedEvent{userID: userID, event: event})
}

func (m *mockPusher) IsOnline(string) bool { return true }

func newTestUsecase(repo *mockRepo) (*NotificationUsecase, *mockEnqueuer, *mockPusher) {
	q := &mockEnqueuer{}
	p := &mockPusher{}
	return NewNotificationUsecase(repo, q, p), q, p
}

func TestCreateNotificationDeliversAndEnqueues(t *testing.T) {
	pref := domain.DefaultPreference("u1")
	pref.EmailAddress = "u1@example.com"

	repo := &mockRepo{
		getPreferenceFn: func(context.Context, string) (*domain.Preference, error) {
			return pref, nil
		},
		countUnreadFn: func(context.Context, string) (int, error) { return 3, nil },
	}
	uc, q, p := newTestUsecase(repo)

	created, err := uc.CreateNotification(context.Background(), CreateInput{
		Kind:    domain.KindNewMessage,
		UserID:  "u1",
		Title:   "New Message",
		Message: "hello",
	})
	require.NoError(t, err)
	require.NotNil(t, created)

	require.Len(t, q.payloads, 1)
	assert.Equal(t, created.ID, q.payloads[0].NotificationID)

	require.Len(t, p.events, 2)
	assert.Equal(t, domain.WSNewNotification, p.events[0].event)
	assert.Equal(t, domain.WSUnreadCount, p.events[1].event)
}

func TestCreateNotificationDroppedWhenInAppDisabled(t *testing.T) {
	pref := domain.DefaultPreference("u1")
	pref.EnableInAppNotifications = false

	repo := &mockRepo{
		getPreferenceFn: func(context.Context, string) (*domain.Preference, error) {
			return pref, nil
		},
		createNotificationFn: func(context.Context, *domain.Notification) (*domain.Notification, error) {
			panic("a dropped event must not persist")
		},
	}
	uc, q, p := newTestUsecase(repo)

	created, err := uc.CreateNotification(context.Background(), CreateInput{
		Kind:   domain.KindNewMessage,
		UserID: "u1",
	})
	require.NoError(t, err)
	assert.Nil(t, created)
	assert.Empty(t, q.payloads)
	assert.Empty(t, p.events)
}

func TestCreateNotificationDroppedPerKindToggle(t *testing.T) {
	pref := domain.DefaultPreference("u1")
	pref.InAppNewMessage = false

	repo := &mockRepo{
		getPreferenceFn: func(context.Context, string) (*domain.Preference, error) {
			return pref, nil
		},
	}
	uc, _, _ := newTestUsecase(repo)

	created, err := uc.CreateNotification(context.Background(), CreateInput{
		Kind:   domain.KindNewMessage,
		UserID: "u1",
	})
	require.NoError(t, err)
	assert.Nil(t, created)
}

func TestCreateNotificationDroppedInQuietHours(t *testing.T) {
	pref := domain.DefaultPreference("u1")
	pref.EnableQuietHours = true
	// A window covering the whole day keeps the test independent of wall
	// clock time.
	pref.QuietHoursStart = "00:00:00"
	pref.QuietHoursEnd = "24:00:00"

	repo := &mockRepo{
		getPreferenceFn: func(context.Context, string) (*domain.Preference, error) {
			return pref, nil
		},
	}
	uc, q, _ := newTestUsecase(repo)

	created, err := uc.CreateNotification(context.Background(), CreateInput{
		Kind:   domain.KindNewMessage,
		UserID: "u1",
	})
	require.NoError(t, err)
	assert.Nil(t, created)
	assert.Empty(t, q.payloads)
}

func TestCreateNotificationSkipsEmailWithoutAddress(t *testing.T) {
	pref := domain.DefaultPreference("u1") // no email address set

	repo := &mockRepo{
		getPreferenceFn: func(context.Context, string) (*domain.Preference, error) {
			return pref, nil
		},
	}
	uc, q, _ := newTestUsecase(repo)

	created, err := uc.CreateNotification(context.Background(), CreateInput{
		Kind:   domain.KindNewMessage,
		UserID: "u1",
	})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Empty(t, q.payloads)
}

func TestInQuietHours(t *testing.T) {
	pref := &domain.Preference{
		EnableQuietHours: true,
		QuietHoursStart:  "22:00:00",
		QuietHoursEnd:    "07:00:00",
		Timezone:         "UTC",
	}
	day := func(h, m int) time.Time {
		return time.Date(2026, 3, 10, h, m, 0, 0, time.UTC)
	}

	// Window wraps midnight.
	assert.True(t, inQuietHours(pref, day(23, 30)))
	assert.True(t, inQuietHours(pref, day(3, 0)))
	assert.True(t, inQuietHours(pref, day(6, 59)))
	assert.False(t, inQuietHours(pref, day(7, 0)), "end boundary is exclusive")
	assert.False(t, inQuietHours(pref, day(12, 0)))
	assert.True(t, inQuietHours(pref, day(22, 0)), "start boundary is inclusive")

	// Plain daytime window.
	pref.QuietHoursStart = "09:00:00"
	pref.QuietHoursEnd = "17:00:00"
	assert.True(t, inQuietHours(pref, day(12, 0)))
	assert.False(t, inQuietHours(pref, day(8, 59)))
	assert.False(t, inQuietHours(pref, day(17, 0)))

	// Disabled or incomplete windows never suppress.
	pref.EnableQuietHours = false
	assert.False(t, inQuietHours(pref, day(12, 0)))
	pref.EnableQuietHours = true
	pref.QuietHoursEnd = ""
	assert.False(t, inQuietHours(pref, day(12, 0)))
}

func TestBatchAggregationAtThreshold(t *testing.T) {
	pref := domain.DefaultPreference("u1") // threshold 3, window 5m
	recent := []*domain.Notification{
		{ID: "a", Kind: domain.KindNewMessage, Metadata: domain.Metadata{MessageID: "m1"}},
		{ID: "b", Kind: domain.KindNewMessage, Metadata: domain.Metadata{MessageID: "m2"}},
	}

	var markedRead []string
	repo := &mockRepo{
		getPreferenceFn: func(context.Context, string) (*domain.Preference, error) {
			return pref, nil
		},
		listRecentFn: func(context.Context, string, time.Time) ([]*domain.Notification, error) {
			return recent, nil
		},
		markManyReadFn: func(_ context.Context, ids []string) error {
			markedRead = ids
			return nil
		},
	}
	uc, _, _ := newTestUsecase(repo)

	created, err := uc.CreateMessageNotification(context.Background(), "u1", "s1", "m3", "hi")
	require.NoError(t, err)
	require.NotNil(t, created)

	assert.Equal(t, domain.KindMessageBatch, created.Kind)
	assert.Equal(t, "3 New Messages", created.Title)
	assert.Equal(t, 3, created.Metadata.MessageCount)
	assert.Equal(t, []string{"m1", "m2", "m3"}, created.Metadata.MessageIDs)
	assert.Equal(t, []string{"a", "b"}, markedRead)
}

func TestGatedBatchLeavesPriorsUnread(t *testing.T) {
	pref := domain.DefaultPreference("u1")
	pref.EnableQuietHours = true
	pref.QuietHoursStart = "00:00:00"
	pref.QuietHoursEnd = "24:00:00"

	repo := &mockRepo{
		getPreferenceFn: func(context.Context, string) (*domain.Preference, error) {
			return pref, nil
		},
		listRecentFn: func(context.Context, string, time.Time) ([]*domain.Notification, error) {
			return []*domain.Notification{
				{ID: "a", Kind: domain.KindNewMessage, Metadata: domain.Metadata{MessageID: "m1"}},
				{ID: "b", Kind: domain.KindNewMessage, Metadata: domain.Metadata{MessageID: "m2"}},
			}, nil
		},
		createNotificationFn: func(context.Context, *domain.Notification) (*domain.Notification, error) {
			panic("a dropped batch must not persist")
		},
		markManyReadFn: func(_ context.Context, ids []string) error {
			panic("a dropped batch must not absorb prior notifications")
		},
	}
	uc, q, _ := newTestUsecase(repo)

	created, err := uc.CreateMessageNotification(context.Background(), "u1", "s1", "m3", "hi")
	require.NoError(t, err)
	assert.Nil(t, created)
	assert.Empty(t, q.payloads)
}

func TestBelowThresholdCreatesIndividual(t *testing.T) {
	pref := domain.DefaultPreference("u1")
	repo := &mockRepo{
		getPreferenceFn: func(context.Context, string) (*domain.Preference, error) {
			return pref, nil
		},
		listRecentFn: func(context.Context, string, time.Time) ([]*domain.Notification, error) {
			return []*domain.Notification{
				{ID: "a", Metadata: domain.Metadata{MessageID: "m1"}},
			}, nil
		},
		markManyReadFn: func(context.Context, []string) error {
			panic("individual delivery must not absorb prior notifications")
		},
	}
	uc, _, _ := newTestUsecase(repo)

	created, err := uc.CreateMessageNotification(context.Background(), "u1", "s1", "m2", "hi")
	require.NoError(t, err)
	require.NotNil(t, created)

	assert.Equal(t, domain.KindNewMessage, created.Kind)
	assert.Equal(t, "m2", created.Metadata.MessageID)
	assert.Equal(t, "s1", created.Metadata.SenderID)
}

func TestGetUserPreferencePropagatesDBErrors(t *testing.T) {
	dbErr := errors.New("connection reset by peer")
	repo := &mockRepo{
		getPreferenceFn: func(context.Context, string) (*domain.Preference, error) {
			return nil, dbErr
		},
		createPreferenceFn: func(context.Context, *domain.Preference) (*domain.Preference, error) {
			panic("a transient read failure must not create a preference row")
		},
	}
	uc, _, _ := newTestUsecase(repo)

	_, err := uc.GetUserPreference(context.Background(), "u1")
	assert.ErrorIs(t, err, dbErr)
}

func TestGetUserPreferenceCreatesDefaults(t *testing.T) {
	var createdPref *domain.Preference
	repo := &mockRepo{
		getPreferenceFn: func(context.Context, string) (*domain.Preference, error) {
			return nil, xerrors.ErrNotFound
		},
		createPreferenceFn: func(_ context.Context, p *domain.Preference) (*domain.Preference, error) {
			createdPref = p
			return p, nil
		},
	}
	uc, _, _ := newTestUsecase(repo)

	pref, err := uc.GetUserPreference(context.Background(), "fresh-user")
	require.NoError(t, err)
	require.NotNil(t, createdPref)
	assert.Equal(t, "fresh-user", pref.UserID)
	assert.True(t, pref.EnableInAppNotifications)
	assert.True(t, pref.EnableEmailNotifications)
	assert.False(t, pref.EnableQuietHours)
	assert.Equal(t, 3, pref.BatchThreshold)
	assert.Equal(t, 5, pref.BatchWindowMinutes)
}
