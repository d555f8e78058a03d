package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification 用户通知日志（按 cursor 回放）
type Notification struct {
	ID               uuid.UUID       `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID           uuid.UUID       `json:"user_id" gorm:"type:varchar(36);not null;index:idx_notification_cursor"`
	AppID            string          `json:"app_id" gorm:"type:varchar(40);not null;index:idx_notification_cursor"`
	Cursor           int64           `json:"cursor" gorm:"column:seq;not null;index:idx_notification_cursor"`
	NotificationType string          `json:"notification_type" gorm:"type:varchar(40);not null"` // 'new-friend-request' | 'new-friend' | 'friend-updated' | 'friend-deleted' | 'activity'
	Data             json.RawMessage `json:"data" gorm:"type:text"`
	CreatedAt        time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
