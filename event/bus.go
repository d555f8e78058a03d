// Package event 向外部应用代码发布关系生命周期与通道数据事件
package event

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"dinq_federation/model"

	"go.uber.org/zap"
)

// 关系生命周期事件
const (
	NewFriendRequest = "new-friend-request"
	NewFriend        = "new-friend"
	FriendUpdated    = "friend-updated"
	FriendDeleted    = "friend-deleted"
)

// ContentTypeJSON 应用数据默认内容类型
const ContentTypeJSON = "application/json"

// ErrNotReady 通道尚未完成该应用的回填，实时推送应跳过（由回填补齐）
var ErrNotReady = errors.New("channel backfill pending")

// Payload 活动通道上的应用数据；ContentType 为空或 application/json 时 Data 为 JSON，否则为原始字节
type Payload struct {
	ContentType string
	Data        []byte
}

// IsJSON 内容类型为 JSON 或未声明
func (p Payload) IsJSON() bool {
	return p.ContentType == "" || p.ContentType == ContentTypeJSON
}

// Emitter 向通道对端发送 {appId, data}，eventType 为帧类型（data / highwater）
type Emitter func(appID, eventType string, data any) error

// ConnInfo 通道连接信息
type ConnInfo struct {
	Key        string
	RemoteAddr string
	Inbound    bool // true 表示对端连入
}

type (
	FriendHandler               func(ctx context.Context, user model.User, friend model.Friend)
	OpenActivityHandler         func(user model.User, friend model.Friend, emit Emitter, info ConnInfo)
	CloseActivityHandler        func(user model.User, friend model.Friend, reason string, info ConnInfo)
	OpenNotificationHandler     func(user model.User, emit Emitter, info ConnInfo)
	CloseNotificationHandler    func(user model.User, reason string, info ConnInfo)
	ActivityDataHandler         func(user model.User, friend model.Friend, data Payload)
	ActivityBackfillHandler     func(user model.User, friend model.Friend, highWater int64, emit Emitter)
	NotificationDataHandler     func(user model.User, data json.RawMessage)
	NotificationBackfillHandler func(user model.User, highWater int64, emit Emitter)
)

// Bus 事件总线：每个事件名一个固定签名，处理器按注册顺序同步调用
type Bus struct {
	log *zap.Logger

	mu                   sync.RWMutex
	friend               map[string][]FriendHandler
	openActivity         []OpenActivityHandler
	closeActivity        []CloseActivityHandler
	openNotification     []OpenNotificationHandler
	closeNotification    []CloseNotificationHandler
	activityData         map[string][]ActivityDataHandler
	activityBackfill     map[string][]ActivityBackfillHandler
	notificationData     map[string][]NotificationDataHandler
	notificationBackfill map[string][]NotificationBackfillHandler
}

func NewBus(log *zap.Logger) *Bus {
	return &Bus{
		log:                  log,
		friend:               make(map[string][]FriendHandler),
		activityData:         make(map[string][]ActivityDataHandler),
		activityBackfill:     make(map[string][]ActivityBackfillHandler),
		notificationData:     make(map[string][]NotificationDataHandler),
		notificationBackfill: make(map[string][]NotificationBackfillHandler),
	}
}

// OnFriend 订阅 new-friend-request / new-friend / friend-updated / friend-deleted
func (b *Bus) OnFriend(name string, h FriendHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.friend[name] = append(b.friend[name], h)
}

func (b *Bus) OnOpenActivity(h OpenActivityHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openActivity = append(b.openActivity, h)
}

func (b *Bus) OnCloseActivity(h CloseActivityHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeActivity = append(b.closeActivity, h)
}

func (b *Bus) OnOpenNotification(h OpenNotificationHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openNotification = append(b.openNotification, h)
}

func (b *Bus) OnCloseNotification(h CloseNotificationHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeNotification = append(b.closeNotification, h)
}

// OnActivityData 订阅 activity-data-<appID>
func (b *Bus) OnActivityData(appID string, h ActivityDataHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.activityData[appID] = append(b.activityData[appID], h)
}

// OnActivityBackfill 订阅 activity-backfill-<appID>
func (b *Bus) OnActivityBackfill(appID string, h ActivityBackfillHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.activityBackfill[appID] = append(b.activityBackfill[appID], h)
}

// OnNotificationData 订阅 notification-data-<appID>
func (b *Bus) OnNotificationData(appID string, h NotificationDataHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notificationData[appID] = append(b.notificationData[appID], h)
}

// OnNotificationBackfill 订阅 notification-backfill-<appID>
func (b *Bus) OnNotificationBackfill(appID string, h NotificationBackfillHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notificationBackfill[appID] = append(b.notificationBackfill[appID], h)
}

// ActivityApps 已注册活动处理器的应用（排序）
func (b *Bus) ActivityApps() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return appKeys(b.activityData, b.activityBackfill)
}

// NotificationApps 已注册通知处理器的应用（排序）
func (b *Bus) NotificationApps() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return appKeys(b.notificationData, b.notificationBackfill)
}

func appKeys[A, B any](data map[string][]A, backfill map[string][]B) []string {
	seen := make(map[string]struct{})
	for k := range data {
		seen[k] = struct{}{}
	}
	for k := range backfill {
		seen[k] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// EmitFriend 发布关系生命周期事件
func (b *Bus) EmitFriend(ctx context.Context, name string, user model.User, friend model.Friend) {
	b.mu.RLock()
	hs := append([]FriendHandler(nil), b.friend[name]...)
	b.mu.RUnlock()
	for _, h := range hs {
		b.safe(name, func() { h(ctx, user, friend) })
	}
}

func (b *Bus) EmitOpenActivity(user model.User, friend model.Friend, emit Emitter, info ConnInfo) {
	b.mu.RLock()
	hs := append([]OpenActivityHandler(nil), b.openActivity...)
	b.mu.RUnlock()
	for _, h := range hs {
		b.safe("open-activity-connection", func() { h(user, friend, emit, info) })
	}
}

func (b *Bus) EmitCloseActivity(user model.User, friend model.Friend, reason string, info ConnInfo) {
	b.mu.RLock()
	hs := append([]CloseActivityHandler(nil), b.closeActivity...)
	b.mu.RUnlock()
	for _, h := range hs {
		b.safe("close-activity-connection", func() { h(user, friend, reason, info) })
	}
}

func (b *Bus) EmitOpenNotification(user model.User, emit Emitter, info ConnInfo) {
	b.mu.RLock()
	hs := append([]OpenNotificationHandler(nil), b.openNotification...)
	b.mu.RUnlock()
	for _, h := range hs {
		b.safe("open-notification-connection", func() { h(user, emit, info) })
	}
}

func (b *Bus) EmitCloseNotification(user model.User, reason string, info ConnInfo) {
	b.mu.RLock()
	hs := append([]CloseNotificationHandler(nil), b.closeNotification...)
	b.mu.RUnlock()
	for _, h := range hs {
		b.safe("close-notification-connection", func() { h(user, reason, info) })
	}
}

// EmitActivityData 返回是否有处理器
func (b *Bus) EmitActivityData(appID string, user model.User, friend model.Friend, data Payload) bool {
	b.mu.RLock()
	hs := append([]ActivityDataHandler(nil), b.activityData[appID]...)
	b.mu.RUnlock()
	for _, h := range hs {
		b.safe("activity-data-"+appID, func() { h(user, friend, data) })
	}
	return len(hs) > 0
}

func (b *Bus) EmitActivityBackfill(appID string, user model.User, friend model.Friend, highWater int64, emit Emitter) bool {
	b.mu.RLock()
	hs := append([]ActivityBackfillHandler(nil), b.activityBackfill[appID]...)
	b.mu.RUnlock()
	for _, h := range hs {
		b.safe("activity-backfill-"+appID, func() { h(user, friend, highWater, emit) })
	}
	return len(hs) > 0
}

func (b *Bus) EmitNotificationData(appID string, user model.User, data json.RawMessage) bool {
	b.mu.RLock()
	hs := append([]NotificationDataHandler(nil), b.notificationData[appID]...)
	b.mu.RUnlock()
	for _, h := range hs {
		b.safe("notification-data-"+appID, func() { h(user, data) })
	}
	return len(hs) > 0
}

func (b *Bus) EmitNotificationBackfill(appID string, user model.User, highWater int64, emit Emitter) bool {
	b.mu.RLock()
	hs := append([]NotificationBackfillHandler(nil), b.notificationBackfill[appID]...)
	b.mu.RUnlock()
	for _, h := range hs {
		b.safe("notification-backfill-"+appID, func() { h(user, highWater, emit) })
	}
	return len(hs) > 0
}

// safe 处理器 panic 不影响调用方
func (b *Bus) safe(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked", zap.String("event", name), zap.Any("error", r))
		}
	}()
	fn()
}
