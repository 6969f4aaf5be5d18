package domain

import "time"

type NotificationKind string

const (
	KindNewMessage   NotificationKind = "new_message"
	KindMessageBatch NotificationKind = "message_batch"
	KindSystem       NotificationKind = "system"
)

// Metadata shape varies by kind: individual message notifications carry
// MessageID/SenderID, batch notifications carry MessageIDs/MessageCount.
type Metadata struct {
	MessageID    string   `json:"messageId,omitempty"`
	SenderID     string   `json:"senderId,omitempty"`
	MessageCount int      `json:"messageCount,omitempty"`
	MessageIDs   []string `json:"messageIds,omitempty"`
}

// Notification is one delivered or pending in-app item, owned exclusively
// by the user it targets.
type Notification struct {
	ID          string           `json:"id"`
	Kind        NotificationKind `json:"kind"`
	UserID      string           `json:"userId"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Metadata    Metadata         `json:"metadata"`
	IsRead      bool             `json:"isRead"`
	ReadAt      *time.Time       `json:"readAt,omitempty"`
	IsEmailSent bool             `json:"isEmailSent"`
	EmailSentAt *time.Time       `json:"emailSentAt,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}
