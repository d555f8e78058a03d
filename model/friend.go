package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Friend 单向的关系视图，两端服务器各自保存一行
type Friend struct {
	ID                   uuid.UUID `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID               uuid.UUID `json:"user_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_friend_user_endpoint"`
	Status               string    `json:"status" gorm:"type:varchar(20);not null;index"` // 'pending' | 'accepted'
	Originator           bool      `json:"originator"`
	RemoteEndPoint       string    `json:"remote_endpoint" gorm:"type:varchar(255);not null;uniqueIndex:idx_friend_user_endpoint"`
	RemoteHost           string    `json:"remote_host" gorm:"type:varchar(255)"`
	RemoteUsername       string    `json:"remote_username" gorm:"type:varchar(80)"`
	UniqueRemoteUsername string    `json:"unique_remote_username" gorm:"type:varchar(100)"`
	RemoteName           string    `json:"remote_name" gorm:"type:varchar(120)"`
	RemotePublicKey      string    `json:"-" gorm:"type:text"`
	RemoteAccessToken    string    `json:"-" gorm:"type:varchar(36)"`
	LocalAccessToken     string    `json:"-" gorm:"type:varchar(36);index"`
	LocalRequestToken    string    `json:"-" gorm:"type:varchar(36)"`
	RemoteRequestToken   string    `json:"-" gorm:"type:varchar(36)"`
	KeyPair              KeyPair   `json:"-" gorm:"type:text"`
	Audiences            Audiences `json:"audiences" gorm:"type:text"`
	HighWater            HighWater `json:"high_water" gorm:"type:text"`
	Online               bool      `json:"online"`
	Hash                 string    `json:"hash" gorm:"type:varchar(36)"`
	InviteToken          *string   `json:"-" gorm:"type:varchar(64)"`
	IsCommunity          bool      `json:"is_community"`
	CreatedAt            time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt            time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Friend) TableName() string {
	return "friends"
}

func (f *Friend) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// IsAccepted 是否已建立好友关系
func (f *Friend) IsAccepted() bool {
	return f.Status == FriendStatusAccepted
}
