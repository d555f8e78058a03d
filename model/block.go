package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Block 屏蔽表：屏蔽后不再接受/发出该 endpoint 的好友请求
type Block struct {
	ID             uuid.UUID `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID         uuid.UUID `json:"user_id" gorm:"type:varchar(36);not null;index"`
	RemoteEndPoint string    `json:"remote_endpoint" gorm:"type:varchar(255);not null"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (Block) TableName() string {
	return "blocks"
}

func (b *Block) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
