package model

// Channel is a reminder delivery route.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

type AttemptStatus string

const (
	AttemptSuccess AttemptStatus = "success"
	AttemptFailed  AttemptStatus = "failed"
)

// NotificationAttempt is an append-only log record of one channel send.
type NotificationAttempt struct {
	ID        uint          `gorm:"primaryKey" json:"-"`
	TaskID    string        `gorm:"index" json:"taskId"`
	UserID    string        `gorm:"index" json:"userId"`
	Type      Channel       `json:"type"`
	Status    AttemptStatus `json:"status"`
	Timestamp int64         `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
}
