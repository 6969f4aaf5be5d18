package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"xconfess-notify/internal/domain"
	"xconfess-notify/internal/queue"
	"xconfess-notify/internal/repository"
	"xconfess-notify/pkg/xerrors"
)

// Enqueuer is the slice of the delivery queue the gate needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, p queue.Payload) (*queue.Job, error)
}

// Pusher is the slice of the live fan-out the gate needs.
type Pusher interface {
	Send(userID, event string, data any)
	IsOnline(userID string) bool
}

type NotificationUsecase struct {
	repo   repository.Repository
	queue  Enqueuer
	pusher Pusher
}

func NewNotificationUsecase(r repository.Repository, q Enqueuer, p Pusher) *NotificationUsecase {
	return &NotificationUsecase{repo: r, queue: q, pusher: p}
}

// CreateInput is one gated notification request.
type CreateInput struct {
	Kind     domain.NotificationKind
	UserID   string
	Title    string
	Message  string
	Metadata domain.Metadata
}

// HandleEvent routes an inbound event from the confession/comment
// subsystems through the preference gate.
func (uc *NotificationUsecase) HandleEvent(ctx context.Context, ev domain.MessageEvent) (*domain.Notification, error) {
	if ev.Kind == domain.KindNewMessage {
		return uc.CreateMessageNotification(ctx, ev.UserID, ev.SenderID, ev.MessageID, ev.PreviewText)
	}
	return uc.CreateNotification(ctx, CreateInput{
		Kind:    ev.Kind,
		UserID:  ev.UserID,
		Title:   "System Notification",
		Message: ev.PreviewText,
	})
}

// CreateMessageNotification applies the batch aggregation rule for
// message-type events before creating either an individual or a batch
// notification.
func (uc *NotificationUsecase) CreateMessageNotification(ctx context.Context, userID, senderID, messageID, preview string) (*domain.Notification, error) {
	pref, err := uc.GetUserPreference(ctx, userID)
	if err != nil {
		return nil, err
	}

	since := time.Now().Add(-time.Duration(pref.BatchWindowMinutes) * time.Minute)
	recent, err := uc.repo.ListRecentUnreadMessages(ctx, userID, since)
	if err != nil {
		return nil, err
	}

	// The incoming event counts toward the threshold.
	if len(recent)+1 >= pref.BatchThreshold {
		return uc.createBatchNotification(ctx, userID, recent, messageID)
	}

	return uc.CreateNotification(ctx, CreateInput{
		Kind:    domain.KindNewMessage,
		UserID:  userID,
		Title:   "New Message",
		Message: preview,
		Metadata: domain.Metadata{
			MessageID: messageID,
			SenderID:  senderID,
		},
	})
}

func (uc *NotificationUsecase) createBatchNotification(ctx context.Context, userID string, recent []*domain.Notification, newMessageID string) (*domain.Notification, error) {
	messageIDs := make([]string, 0, len(recent)+1)
	for _, n := range recent {
		if n.Metadata.MessageID != "" {
			messageIDs = append(messageIDs, n.Metadata.MessageID)
		}
	}
	messageIDs = append(messageIDs, newMessageID)
	count := len(messageIDs)

	created, err := uc.CreateNotification(ctx, CreateInput{
		Kind:    domain.KindMessageBatch,
		UserID:  userID,
		Title:   fmt.Sprintf("%d New Messages", count),
		Message: fmt.Sprintf("You have %d unread messages", count),
		Metadata: domain.Metadata{
			MessageCount: count,
			MessageIDs:   messageIDs,
		},
	})
	if err != nil {
		return nil, err
	}
	if created == nil {
		// The batch itself was gated off (quiet hours, toggles). The
		// priors were not absorbed by anything, so they stay unread.
		return nil, nil
	}

	// Mark the absorbed individual notifications read so they do not
	// resurface alongside the batch.
	ids := make([]string, len(recent))
	for i, n := range recent {
		ids[i] = n.ID
	}
	if err := uc.repo.MarkManyRead(ctx, ids); err != nil {
		return nil, err
	}
	return created, nil
}

// CreateNotification is the preference gate. A nil, nil return means the
// event was dropped with no side effects.
func (uc *NotificationUsecase) CreateNotification(ctx context.Context, in CreateInput) (*domain.Notification, error) {
	pref, err := uc.GetUserPreference(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	if !shouldSendInApp(pref, in.Kind) {
		return nil, nil
	}
	if inQuietHours(pref, time.Now()) {
		return nil, nil
	}

	created, err := uc.repo.CreateNotification(ctx, &domain.Notification{
		Kind:     in.Kind,
		UserID:   in.UserID,
		Title:    in.Title,
		Message:  in.Message,
		Metadata: in.Metadata,
	})
	if err != nil {
		return nil, err
	}

	if shouldSendEmail(pref, in.Kind) {
		if _, err := uc.queue.Enqueue(ctx, queue.Payload{
			NotificationID: created.ID,
			UserID:         in.UserID,
		}); err != nil {
			// The in-app notification exists; losing the email job is
			// logged, not fatal.
			log.Printf("[notify] enqueue email job for notification %s failed: %v", created.ID, err)
		}
	}

	uc.fanOut(ctx, created)
	return created, nil
}

// fanOut pushes the new notification and a fresh unread count to every
// live connection of the user. Best effort only.
func (uc *NotificationUsecase) fanOut(ctx context.Context, n *domain.Notification) {
	if uc.pusher == nil {
		return
	}
	uc.pusher.Send(n.UserID, domain.WSNewNotification, n)

	count, err := uc.repo.CountUnread(ctx, n.UserID)
	if err != nil {
		log.Printf("[notify] unread count for user %s failed: %v", n.UserID, err)
		return
	}
	uc.pusher.Send(n.UserID, domain.WSUnreadCount, map[string]int{"count": count})
}

func shouldSendInApp(pref *domain.Preference, kind domain.NotificationKind) bool {
	if !pref.EnableInAppNotifications {
		return false
	}
	switch kind {
	case domain.KindNewMessage:
		return pref.InAppNewMessage
	case domain.KindMessageBatch:
		return pref.InAppMessageBatch
	default:
		return true
	}
}

func shouldSendEmail(pref *domain.Preference, kind domain.NotificationKind) bool {
	if !pref.EnableEmailNotifications || pref.EmailAddress == "" {
		return false
	}
	switch kind {
	case domain.KindNewMessage:
		return pref.EmailNewMessage
	case domain.KindMessageBatch:
		return pref.EmailMessageBatch
	default:
		return false
	}
}

// inQuietHours evaluates the user's local wall clock against the
// configured [start, end) window. Windows crossing midnight (e.g.
// 22:00 -> 07:00) wrap correctly; an unknown timezone falls back to
// server-local time.
func inQuietHours(pref *domain.Preference, now time.Time) bool {
	if !pref.EnableQuietHours || pref.QuietHoursStart == "" || pref.QuietHoursEnd == "" {
		return false
	}
	loc := time.Local
	if pref.Timezone != "" {
		if l, err := time.LoadLocation(pref.Timezone); err == nil {
			loc = l
		}
	}
	current := now.In(loc).Format("15:04:05")
	start, end := pref.QuietHoursStart, pref.QuietHoursEnd
	if start <= end {
		return current >= start && current < end
	}
	return current >= start || current < end
}

// -----------------------------
// Read path
// -----------------------------

func (uc *NotificationUsecase) GetUserNotifications(ctx context.Context, userID string, page, limit int, unreadOnly bool) ([]*domain.Notification, int, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	offset := (page - 1) * limit

	items, err := uc.repo.ListNotifications(ctx, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, 0, 0, err
	}
	total, err := uc.repo.CountNotifications(ctx, userID, unreadOnly)
	if err != nil {
		return nil, 0, 0, err
	}
	unread, err := uc.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, 0, 0, err
	}
	return items, total, unread, nil
}

func (uc *NotificationUsecase) MarkAsRead(ctx context.Context, notificationID, userID string) error {
	return uc.repo.MarkNotificationRead(ctx, notificationID, userID)
}

func (uc *NotificationUsecase) MarkAllAsRead(ctx context.Context, userID string) error {
	return uc.repo.MarkAllRead(ctx, userID)
}

func (uc *NotificationUsecase) CountUnread(ctx context.Context, userID string) (int, error) {
	return uc.repo.CountUnread(ctx, userID)
}

// GetUserPreference returns the user's preference row, creating one with
// defaults on first read.
func (uc *NotificationUsecase) GetUserPreference(ctx context.Context, userID string) (*domain.Preference, error) {
	pref, err := uc.repo.GetPreference(ctx, userID)
	if err == nil {
		return pref, nil
	}
	if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}
	return uc.repo.CreatePreference(ctx, domain.DefaultPreference(userID))
}

func (uc *NotificationUsecase) UpdateUserPreference(ctx context.Context, userID string, updated *domain.Preference) (*domain.Preference, error) {
	if _, err := uc.GetUserPreference(ctx, userID); err != nil {
		return nil, err
	}
	updated.UserID = userID
	return uc.repo.UpdatePreference(ctx, updated)
}
