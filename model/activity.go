package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Activity 用户发布的动态（供好友回填）
type Activity struct {
	ID        uuid.UUID       `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID    uuid.UUID       `json:"user_id" gorm:"type:varchar(36);not null;index:idx_activity_cursor"`
	AppID     string          `json:"app_id" gorm:"type:varchar(40);not null;index:idx_activity_cursor"`
	Cursor    int64           `json:"cursor" gorm:"column:seq;not null;index:idx_activity_cursor"`
	Data      json.RawMessage `json:"data" gorm:"type:text"`
	CreatedAt time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

func (Activity) TableName() string {
	return "activities"
}

func (a *Activity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// AutoMigrate 建表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &Friend{}, &Invitation{}, &Block{}, &Notification{}, &Activity{})
}
