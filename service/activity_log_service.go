package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"dinq_federation/event"
	"dinq_federation/model"
	"dinq_federation/store"

	"go.uber.org/zap"
)

// AppPost 动态应用 ID
const AppPost = "post"

// EmitterLookup 查询已打开的活动通道
type EmitterLookup interface {
	ActivityEmitter(user model.User, friend model.Friend) event.Emitter
}

// ActivityLogService 发布动态、推送给在线好友、重连时回填
type ActivityLogService struct {
	store   *store.Store
	friends *FriendService
	notifs  *NotificationService
	clock   *CursorClock
	log     *zap.Logger
	lookup  EmitterLookup
}

// NewActivityLogService 注册 activity-backfill-post 与 activity-data-post
func NewActivityLogService(s *store.Store, bus *event.Bus, friends *FriendService, notifs *NotificationService, log *zap.Logger) *ActivityLogService {
	svc := &ActivityLogService{store: s, friends: friends, notifs: notifs, clock: &CursorClock{}, log: log}
	bus.OnActivityBackfill(AppPost, svc.backfill)
	bus.OnActivityData(AppPost, svc.receive)
	return svc
}

// SetEmitterLookup 设置通道查询（用于依赖注入）
func (s *ActivityLogService) SetEmitterLookup(lookup EmitterLookup) {
	s.lookup = lookup
}

// Post 发布动态并推送给在线好友，返回已推送的好友数
func (s *ActivityLogService) Post(ctx context.Context, user *model.User, data json.RawMessage) (*model.Activity, int, error) {
	if !json.Valid(data) {
		return nil, 0, invalid("post data must be json")
	}
	item := &model.Activity{
		UserID: user.ID,
		AppID:  AppPost,
		Cursor: s.clock.Next(),
		Data:   data,
	}
	if err := s.store.Activities.NewInstance(ctx, item); err != nil {
		return nil, 0, fmt.Errorf("failed to create activity: %w", err)
	}

	friends, err := s.store.Friends.GetInstances(ctx, store.Query{"user_id": user.ID, "status": model.FriendStatusAccepted})
	if err != nil {
		return item, 0, fmt.Errorf("failed to query friends: %w", err)
	}

	sent := 0
	for _, f := range friends {
		if !f.Audiences.Has(model.AudienceFriends) || s.lookup == nil {
			continue
		}
		emit := s.lookup.ActivityEmitter(*user, f)
		if emit == nil {
			// 不在线，重连时回填
			continue
		}
		if err := emit(AppPost, "data", item); err != nil {
			if errors.Is(err, event.ErrNotReady) {
				// 回填进行中，由回填或下次重连补发
				continue
			}
			s.log.Warn("activity push failed", zap.String("endpoint", f.RemoteEndPoint), zap.Error(err))
			continue
		}
		sent++
	}
	return item, sent, nil
}

func (s *ActivityLogService) backfill(user model.User, friend model.Friend, highWater int64, emit event.Emitter) {
	if !friend.Audiences.Has(model.AudienceFriends) {
		return
	}
	items, err := s.store.Activities.After(context.Background(), user.ID, AppPost, highWater, 0)
	if err != nil {
		s.log.Error("activity backfill failed", zap.String("user", user.Username), zap.Error(err))
		return
	}
	for i := range items {
		if err := emit(AppPost, "data", items[i]); err != nil {
			s.log.Warn("activity backfill aborted", zap.String("endpoint", friend.RemoteEndPoint), zap.Error(err))
			return
		}
	}
}

// receive 好友的动态：推进游标并转发到本地用户的通知通道；不超过游标的重复项丢弃
func (s *ActivityLogService) receive(user model.User, friend model.Friend, data event.Payload) {
	var item struct {
		Cursor int64 `json:"cursor"`
	}
	if !data.IsJSON() || json.Unmarshal(data.Data, &item) != nil || item.Cursor == 0 {
		s.log.Warn("dropping malformed post", zap.String("endpoint", friend.RemoteEndPoint))
		return
	}
	advanced, err := s.friends.SaveHighWater(context.Background(), friend.ID, AppPost, item.Cursor)
	if err != nil {
		s.log.Error("failed to save highwater", zap.String("endpoint", friend.RemoteEndPoint), zap.Error(err))
	} else if !advanced {
		s.log.Debug("dropping duplicate post", zap.String("endpoint", friend.RemoteEndPoint), zap.Int64("cursor", item.Cursor))
		return
	}
	s.notifs.Push(user, AppPost, map[string]any{
		"from": Summarize(friend),
		"item": json.RawMessage(data.Data),
	})
}
