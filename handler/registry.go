package handler

import (
	"sync"

	"dinq_federation/event"
	"dinq_federation/model"
)

// ChannelHandle 已认证的通道
type ChannelHandle interface {
	Emit(appID, eventType string, data any) error
	SendRaw(msg []byte) error
	Close()
}

// ActivityKey 活动通道注册键
func ActivityKey(username, remoteEndPoint string) string {
	return username + "<-" + remoteEndPoint
}

// Registry 活动通道与通知通道的连接表，归属于一个 App 实例
type Registry struct {
	mu            sync.RWMutex
	activity      map[string]ChannelHandle
	notifications map[string]ChannelHandle
}

func NewRegistry() *Registry {
	return &Registry{
		activity:      make(map[string]ChannelHandle),
		notifications: make(map[string]ChannelHandle),
	}
}

// AddActivity 键已存在时拒绝
func (r *Registry) AddActivity(key string, h ChannelHandle) error {
	return r.add(r.activity, key, h)
}

// RemoveActivity 只删除同一个 handle，避免误删后来的连接
func (r *Registry) RemoveActivity(key string, h ChannelHandle) {
	r.remove(r.activity, key, h)
}

func (r *Registry) LookupActivity(key string) (ChannelHandle, bool) {
	return r.lookup(r.activity, key)
}

// AddNotification 同一用户只允许一个通知连接
func (r *Registry) AddNotification(username string, h ChannelHandle) error {
	return r.add(r.notifications, username, h)
}

func (r *Registry) RemoveNotification(username string, h ChannelHandle) {
	r.remove(r.notifications, username, h)
}

func (r *Registry) LookupNotification(username string) (ChannelHandle, bool) {
	return r.lookup(r.notifications, username)
}

// liveEmitter 回填完成前拒绝实时推送的通道
type liveEmitter interface {
	EmitLive(appID, eventType string, data any) error
}

// ActivityEmitter 实时推送用；未连接时返回 nil（正常情况），回填未完成时 emitter 返回 event.ErrNotReady
func (r *Registry) ActivityEmitter(user model.User, friend model.Friend) event.Emitter {
	h, ok := r.LookupActivity(ActivityKey(user.Username, friend.RemoteEndPoint))
	if !ok {
		return nil
	}
	if l, ok := h.(liveEmitter); ok {
		return l.EmitLive
	}
	return h.Emit
}

// NotificationEmitter 未连接时返回 nil
func (r *Registry) NotificationEmitter(username string) event.Emitter {
	h, ok := r.LookupNotification(username)
	if !ok {
		return nil
	}
	return h.Emit
}

// ActivityCount 当前活动通道数
func (r *Registry) ActivityCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.activity)
}

// CloseAll 关闭全部连接（进程退出时）
func (r *Registry) CloseAll() {
	r.mu.RLock()
	handles := make([]ChannelHandle, 0, len(r.activity)+len(r.notifications))
	for _, h := range r.activity {
		handles = append(handles, h)
	}
	for _, h := range r.notifications {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	for _, h := range handles {
		h.Close()
	}
}

func (r *Registry) add(m map[string]ChannelHandle, key string, h ChannelHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := m[key]; exists {
		return ErrAlreadyConnected
	}
	m[key] = h
	return nil
}

func (r *Registry) remove(m map[string]ChannelHandle, key string, h ChannelHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, exists := m[key]; exists && cur == h {
		delete(m, key)
	}
}

func (r *Registry) lookup(m map[string]ChannelHandle, key string) (ChannelHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := m[key]
	return h, ok
}
