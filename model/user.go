package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User 本地用户（username 构成对外 endpoint）
type User struct {
	ID          uuid.UUID `json:"id" gorm:"type:varchar(36);primaryKey"`
	Username    string    `json:"username" gorm:"type:varchar(80);uniqueIndex;not null"`
	DisplayName string    `json:"display_name" gorm:"type:varchar(120)"`
	IsCommunity bool      `json:"is_community" gorm:"default:false"`
	Online      bool      `json:"online" gorm:"default:false"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
