package service

import (
	"context"
	"encoding/json"
	"fmt"

	"dinq_federation/event"
	"dinq_federation/model"
	"dinq_federation/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AppFriends 关系生命周期通知的应用 ID
const AppFriends = "friends"

// NotificationPusher 推送到用户的通知通道（本机或经 Redis 转发到其他实例）
type NotificationPusher interface {
	PushNotification(user model.User, appID string, data any) bool
}

// FriendSummary 通知里暴露的好友信息（不含任何凭证）
type FriendSummary struct {
	ID                   uuid.UUID       `json:"id"`
	Status               string          `json:"status"`
	Originator           bool            `json:"originator"`
	RemoteEndPoint       string          `json:"remoteEndPoint"`
	RemoteUsername       string          `json:"remoteUsername"`
	UniqueRemoteUsername string          `json:"uniqueRemoteUsername"`
	RemoteName           string          `json:"remoteName"`
	Audiences            model.Audiences `json:"audiences"`
	Online               bool            `json:"online"`
	Hash                 string          `json:"hash"`
	IsCommunity          bool            `json:"community"`
}

// Summarize 去除凭证字段
func Summarize(f model.Friend) FriendSummary {
	return FriendSummary{
		ID:                   f.ID,
		Status:               f.Status,
		Originator:           f.Originator,
		RemoteEndPoint:       f.RemoteEndPoint,
		RemoteUsername:       f.RemoteUsername,
		UniqueRemoteUsername: f.UniqueRemoteUsername,
		RemoteName:           f.RemoteName,
		Audiences:            f.Audiences,
		Online:               f.Online,
		Hash:                 f.Hash,
		IsCommunity:          f.IsCommunity,
	}
}

type NotificationService struct {
	store  *store.Store
	clock  *CursorClock
	log    *zap.Logger
	pusher NotificationPusher
}

// NewNotificationService 订阅关系事件并注册 notification-backfill-friends
func NewNotificationService(s *store.Store, bus *event.Bus, log *zap.Logger) *NotificationService {
	svc := &NotificationService{store: s, clock: &CursorClock{}, log: log}

	for _, name := range []string{event.NewFriendRequest, event.NewFriend, event.FriendUpdated, event.FriendDeleted} {
		name := name
		bus.OnFriend(name, func(ctx context.Context, user model.User, friend model.Friend) {
			payload := map[string]any{"friend": Summarize(friend)}
			if _, err := svc.CreateNotification(ctx, user, AppFriends, name, payload); err != nil {
				log.Error("failed to record friend notification", zap.String("event", name), zap.Error(err))
			}
		})
	}
	bus.OnNotificationBackfill(AppFriends, svc.backfill)
	return svc
}

// SetPusher 设置推送器（用于依赖注入）
func (s *NotificationService) SetPusher(pusher NotificationPusher) {
	s.pusher = pusher
}

// CreateNotification 保存通知并推送给在线用户
func (s *NotificationService) CreateNotification(ctx context.Context, user model.User, appID, notifType string, payload any) (*model.Notification, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid notification payload: %w", err)
	}

	n := &model.Notification{
		UserID:           user.ID,
		AppID:            appID,
		Cursor:           s.clock.Next(),
		NotificationType: notifType,
		Data:             data,
	}
	if err := s.store.Notifications.NewInstance(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	s.Push(user, appID, n)
	return n, nil
}

// Push 只推送不落库
func (s *NotificationService) Push(user model.User, appID string, data any) bool {
	if s.pusher == nil {
		return false
	}
	return s.pusher.PushNotification(user, appID, data)
}

// GetNotifications cursor 之后的通知，升序
func (s *NotificationService) GetNotifications(ctx context.Context, userID uuid.UUID, appID string, after int64, limit int) ([]model.Notification, error) {
	items, err := s.store.Notifications.After(ctx, userID, appID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	return items, nil
}

func (s *NotificationService) backfill(user model.User, highWater int64, emit event.Emitter) {
	items, err := s.GetNotifications(context.Background(), user.ID, AppFriends, highWater, 0)
	if err != nil {
		s.log.Error("notification backfill failed", zap.String("user", user.Username), zap.Error(err))
		return
	}
	for i := range items {
		if err := emit(AppFriends, "data", items[i]); err != nil {
			s.log.Warn("notification backfill aborted", zap.String("user", user.Username), zap.Error(err))
			return
		}
	}
}
