package repository

import (
	"context"
	"encoding/json"
	"time"

	"xconfess-notify/internal/domain"
	"xconfess-notify/pkg/xerrors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository aggregates all notification DB operations.
type Repository interface {
	// Notifications
	CreateNotification(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	GetNotificationByID(ctx context.Context, id string) (*domain.Notification, error)
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*domain.Notification, error)
	CountNotifications(ctx context.Context, userID string, unreadOnly bool) (int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) error
	MarkManyRead(ctx context.Context, ids []string) error
	ListRecentUnreadMessages(ctx context.Context, userID string, since time.Time) ([]*domain.Notification, error)
	MarkEmailSent(ctx context.Context, id string, at time.Time) error

	// Preferences
	GetPreference(ctx context.Context, userID string) (*domain.Preference, error)
	CreatePreference(ctx context.Context, p *domain.Preference) (*domain.Preference, error)
	UpdatePreference(ctx context.Context, p *domain.Preference) (*domain.Preference, error)
}

type pgRepo struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &pgRepo{db: db}
}

const notificationColumns = `
	id, kind, user_id, title, message, metadata,
	is_read, read_at, is_email_sent, email_sent_at,
	created_at, updated_at
`

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	var meta []byte
	err := row.Scan(
		&n.ID,
		&n.Kind,
		&n.UserID,
		&n.Title,
		&n.Message,
		&meta,
		&n.IsRead,
		&n.ReadAt,
		&n.IsEmailSent,
		&n.EmailSentAt,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, xerrors.ErrNotFound
		}
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &n.Metadata); err != nil {
			return nil, err
		}
	}
	return &n, nil
}

func (p *pgRepo) CreateNotification(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	meta, err := json.Marshal(n.Metadata)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO notifications (
			id, kind, user_id, title, message, metadata,
			is_read, read_at, is_email_sent, email_sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + notificationColumns

	row := p.db.QueryRow(ctx, query,
		n.ID,
		n.Kind,
		n.UserID,
		n.Title,
		n.Message,
		meta,
		n.IsRead,
		n.ReadAt,
		n.IsEmailSent,
		n.EmailSentAt,
	)
	return scanNotification(row)
}

func (p *pgRepo) GetNotificationByID(ctx context.Context, id string) (*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	return scanNotification(p.db.QueryRow(ctx, query, id))
}

func (p *pgRepo) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1 AND ($2 = false OR is_read = false)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := p.db.Query(ctx, query, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return notifications, nil
}

func (p *pgRepo) CountNotifications(ctx context.Context, userID string, unreadOnly bool) (int, error) {
	query := `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = $1 AND ($2 = false OR is_read = false)`

	var count int
	if err := p.db.QueryRow(ctx, query, userID, unreadOnly).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (p *pgRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	return p.CountNotifications(ctx, userID, true)
}

func (p *pgRepo) MarkNotificationRead(ctx context.Context, id, userID string) error {
	query := `
		UPDATE notifications
		SET is_read = true,
		    read_at = COALESCE(read_at, NOW()),
		    updated_at = NOW()
		WHERE id = $1 AND user_id = $2`

	ct, err := p.db.Exec(ctx, query, id, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (p *pgRepo) MarkAllRead(ctx context.Context, userID string) error {
	query := `
		UPDATE notifications
		SET is_read = true, read_at = NOW(), updated_at = NOW()
		WHERE user_id = $1 AND is_read = false`

	_, err := p.db.Exec(ctx, query, userID)
	return err
}

func (p *pgRepo) MarkManyRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
		UPDATE notifications
		SET is_read = true, read_at = NOW(), updated_at = NOW()
		WHERE id = ANY($1)`

	_, err := p.db.Exec(ctx, query, ids)
	return err
}

func (p *pgRepo) ListRecentUnreadMessages(ctx context.Context, userID string, since time.Time) ([]*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1
		  AND kind = $2
		  AND is_read = false
		  AND created_at > $3
		ORDER BY created_at DESC`

	rows, err := p.db.Query(ctx, query, userID, domain.KindNewMessage, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return notifications, nil
}

// MarkEmailSent flips the monotonic is_email_sent flag. The WHERE clause
// keeps the transition one-way; re-marking an already-sent notification
// is a no-op, not an error.
func (p *pgRepo) MarkEmailSent(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE notifications
		SET is_email_sent = true,
		    email_sent_at = COALESCE(email_sent_at, $2),
		    updated_at = NOW()
		WHERE id = $1`

	ct, err := p.db.Exec(ctx, query, id, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

const preferenceColumns = `
	id, user_id,
	enable_in_app, in_app_new_message, in_app_message_batch,
	enable_email, email_new_message, email_message_batch, email_address,
	batch_window_minutes, batch_threshold,
	enable_quiet_hours, quiet_hours_start, quiet_hours_end, timezone,
	created_at, updated_at
`

func scanPreference(row pgx.Row) (*domain.Preference, error) {
	var p domain.Preference
	var emailAddr, quietStart, quietEnd, tz *string
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.EnableInAppNotifications,
		&p.InAppNewMessage,
		&p.InAppMessageBatch,
		&p.EnableEmailNotifications,
		&p.EmailNewMessage,
		&p.EmailMessageBatch,
		&emailAddr,
		&p.BatchWindowMinutes,
		&p.BatchThreshold,
		&p.EnableQuietHours,
		&quietStart,
		&quietEnd,
		&tz,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, xerrors.ErrNotFound
		}
		return nil, err
	}
	if emailAddr != nil {
		p.EmailAddress = *emailAddr
	}
	if quietStart != nil {
		p.QuietHoursStart = *quietStart
	}
	if quietEnd != nil {
		p.QuietHoursEnd = *quietEnd
	}
	if tz != nil {
		p.Timezone = *tz
	}
	return &p, nil
}

func (p *pgRepo) GetPreference(ctx context.Context, userID string) (*domain.Preference, error) {
	query := `SELECT ` + preferenceColumns + ` FROM notification_preferences WHERE user_id = $1`
	return scanPreference(p.db.QueryRow(ctx, query, userID))
}

func (p *pgRepo) CreatePreference(ctx context.Context, pref *domain.Preference) (*domain.Preference, error) {
	if pref.ID == "" {
		pref.ID = uuid.New().String()
	}
	query := `
		INSERT INTO notification_preferences (
			id, user_id,
			enable_in_app, in_app_new_message, in_app_message_batch,
			enable_email, email_new_message, email_message_batch, email_address,
			batch_window_minutes, batch_threshold,
			enable_quiet_hours, quiet_hours_start, quiet_hours_end, timezone
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12, NULLIF($13, ''), NULLIF($14, ''), NULLIF($15, ''))
		ON CONFLICT (user_id) DO NOTHING
		RETURNING ` + preferenceColumns

	row := p.db.QueryRow(ctx, query,
		pref.ID,
		pref.UserID,
		pref.EnableInAppNotifications,
		pref.InAppNewMessage,
		pref.InAppMessageBatch,
		pref.EnableEmailNotifications,
		pref.EmailNewMessage,
		pref.EmailMessageBatch,
		pref.EmailAddress,
		pref.BatchWindowMinutes,
		pref.BatchThreshold,
		pref.EnableQuietHours,
		pref.QuietHoursStart,
		pref.QuietHoursEnd,
		pref.Timezone,
	)
	created, err := scanPreference(row)
	if err == xerrors.ErrNotFound {
		// Lost the insert race: another request created the row first.
		return p.GetPreference(ctx, pref.UserID)
	}
	return created, err
}

func (p *pgRepo) UpdatePreference(ctx context.Context, pref *domain.Preference) (*domain.Preference, error) {
	query := `
		UPDATE notification_preferences SET
			enable_in_app = $2,
			in_app_new_message = $3,
			in_app_message_batch = $4,
			enable_email = $5,
			email_new_message = $6,
			email_message_batch = $7,
			email_address = NULLIF($8, ''),
			batch_window_minutes = $9,
			batch_threshold = $10,
			enable_quiet_hours = $11,
			quiet_hours_start = NULLIF($12, ''),
			quiet_hours_end = NULLIF($13, ''),
			timezone = NULLIF($14, ''),
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + preferenceColumns

	row := p.db.QueryRow(ctx, query,
		pref.UserID,
		pref.EnableInAppNotifications,
		pref.InAppNewMessage,
		pref.InAppMessageBatch,
		pref.EnableEmailNotifications,
		pref.EmailNewMessage,
		pref.EmailMessageBatch,
		pref.EmailAddress,
		pref.BatchWindowMinutes,
		pref.BatchThreshold,
		pref.EnableQuietHours,
		pref.QuietHoursStart,
		pref.QuietHoursEnd,
		pref.Timezone,
	)
	return scanPreference(row)
}
