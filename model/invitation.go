package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	InvitationStatusOpen = "open"
	InvitationStatusUsed = "used"
)

// Invitation 邀请：持有 token 的对端首次请求时自动通过
type Invitation struct {
	ID        uuid.UUID `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:varchar(36);not null;index"`
	Type      string    `json:"type" gorm:"type:varchar(20)"`
	Email     string    `json:"email" gorm:"type:varchar(120)"`
	Note      string    `json:"note" gorm:"type:text"`
	Token     string    `json:"token" gorm:"type:varchar(64);uniqueIndex"`
	Status    string    `json:"status" gorm:"type:varchar(20);default:open"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (Invitation) TableName() string {
	return "invitations"
}

func (i *Invitation) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
