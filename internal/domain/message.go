package domain

// MessageEvent is the inbound event from the confession/comment subsystems.
type MessageEvent struct {
	Kind        NotificationKind `json:"kind"`
	UserID      string           `json:"userId"`
	SenderID    string           `json:"senderId,omitempty"`
	MessageID   string           `json:"messageId,omitempty"`
	PreviewText string           `json:"previewText"`
}

// WSEvent is the envelope exchanged on the live channel, both directions.
type WSEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Live channel event names.
const (
	WSNewNotification   = "new-notification"
	WSUnreadCount       = "unread-count"
	WSNotificationRead  = "notification-read"
	WSAllRead           = "all-notifications-read"
	WSError             = "error"
	WSMarkRead          = "mark-read"
	WSMarkAllRead       = "mark-all-read"
	WSGetUnreadCount    = "get-unread-count"
)
