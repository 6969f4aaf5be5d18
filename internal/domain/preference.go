package domain

import "time"

// Preference is the per-user delivery configuration. Exactly one row per
// user; lazily created with defaults on first read.
type Preference struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`

	EnableInAppNotifications bool `json:"enableInAppNotifications"`
	InAppNewMessage          bool `json:"inAppNewMessage"`
	InAppMessageBatch        bool `json:"inAppMessageBatch"`

	EnableEmailNotifications bool   `json:"enableEmailNotifications"`
	EmailNewMessage          bool   `json:"emailNewMessage"`
	EmailMessageBatch        bool   `json:"emailMessageBatch"`
	EmailAddress             string `json:"emailAddress,omitempty"`

	BatchWindowMinutes int `json:"batchWindowMinutes"`
	BatchThreshold     int `json:"batchThreshold"`

	EnableQuietHours bool   `json:"enableQuietHours"`
	QuietHoursStart  string `json:"quietHoursStart,omitempty"` // "HH:MM:SS"
	QuietHoursEnd    string `json:"quietHoursEnd,omitempty"`   // "HH:MM:SS"
	Timezone         string `json:"timezone,omitempty"`        // IANA name

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DefaultPreference returns the documented defaults for a user with no
// stored preference row.
func DefaultPreference(userID string) *Preference {
	return &Preference{
		UserID:                   userID,
		EnableInAppNotifications: true,
		InAppNewMessage:          true,
		InAppMessageBatch:        true,
		EnableEmailNotifications: true,
		EmailNewMessage:          true,
		EmailMessageBatch:        true,
		BatchWindowMinutes:       5,
		BatchThreshold:           3,
		EnableQuietHours:         false,
	}
}
