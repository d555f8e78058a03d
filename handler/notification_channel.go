package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"dinq_federation/event"
	"dinq_federation/middleware"
	"dinq_federation/model"
	"dinq_federation/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis Pub/Sub channel 名称
const redisBroadcastChannel = "federation:notifications"

const presenceTTL = 30 * time.Second

// BroadcastMessage 跨 Pod 广播消息格式
type BroadcastMessage struct {
	Username string `json:"username"`
	PodID    string `json:"pod_id"` // 发送方 Pod ID，用于去重
	Payload  []byte `json:"payload"`
}

// notificationConn 本地用户设备的通知连接
type notificationConn struct {
	*Channel
	user model.User
}

// Emit 通知通道是明文 {appId, data}
func (n *notificationConn) Emit(appID, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return n.SendFrame(eventType, Envelope{AppID: appID, Data: payload})
}

// NotificationHub 服务器与本地用户之间的通知通道
type NotificationHub struct {
	registry *Registry
	bus      *event.Bus
	auth     *service.ChannelAuthenticator
	users    *service.UserService
	rdb      *redis.Client
	log      *zap.Logger
	upgrader websocket.Upgrader

	// Pod ID（用于跨 Pod 广播去重）
	podID string

	// 停止 Pub/Sub 订阅
	stopPubSub chan struct{}
}

// NewNotificationHub rdb 为 nil 时只做本机推送
func NewNotificationHub(
	registry *Registry,
	bus *event.Bus,
	auth *service.ChannelAuthenticator,
	users *service.UserService,
	rdb *redis.Client,
	allowedOrigins []string,
	log *zap.Logger,
) *NotificationHub {
	return &NotificationHub{
		registry: registry,
		bus:      bus,
		auth:     auth,
		users:    users,
		rdb:      rdb,
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin: checkOrigin(allowedOrigins),
		},
		podID:      uuid.New().String(),
		stopPubSub: make(chan struct{}),
	}
}

// checkOrigin 空列表允许所有来源（仅用于本地开发）
func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == origin {
				return true
			}
		}
		return false
	}
}

// ServeWS 处理通知通道连接（token 通过查询参数、cookie 或 header 传入）
func (h *NotificationHub) ServeWS(c *gin.Context) {
	user, err := h.auth.AuthenticateSession(c.Request.Context(), middleware.TokenFromRequest(c))
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("notification upgrade failed", zap.String("user", user.Username), zap.Error(err))
		return
	}

	nc := &notificationConn{Channel: newChannel(user.Username, conn, h.log), user: *user}
	if err := h.registry.AddNotification(user.Username, nc); err != nil {
		h.log.Info("duplicate notification connection rejected", zap.String("user", user.Username))
		rejectConn(conn, "already connected")
		return
	}

	info := event.ConnInfo{Key: user.Username, RemoteAddr: c.Request.RemoteAddr, Inbound: true}
	go h.run(nc, info)
}

func (h *NotificationHub) run(nc *notificationConn, info event.ConnInfo) {
	go nc.writePump()

	if err := nc.SendFrame(FrameAuthenticated, nil); err != nil {
		h.log.Warn("failed to greet notification client", zap.String("user", nc.user.Username), zap.Error(err))
	}
	h.setPresence(nc.user, true)
	h.bus.EmitOpenNotification(nc.user, nc.Emit, info)

	reason := nc.readPump(func(msg WSMessage) { h.handleFrame(nc, msg) })

	nc.Close()
	h.registry.RemoveNotification(nc.user.Username, nc)
	h.setPresence(nc.user, false)
	h.bus.EmitCloseNotification(nc.user, reason, info)
}

func (h *NotificationHub) handleFrame(nc *notificationConn, msg WSMessage) {
	switch msg.Type {
	case FrameHeartbeat:
		// 心跳消息，刷新 Redis 在线状态
		h.refreshPresence(nc.user)

	case FrameData, FrameHighWater:
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil || env.AppID == "" {
			h.log.Warn("dropping notification frame: bad envelope", zap.String("user", nc.user.Username))
			return
		}
		if msg.Type == FrameData {
			h.bus.EmitNotificationData(env.AppID, nc.user, env.Data)
			return
		}
		var hw int64
		if err := json.Unmarshal(env.Data, &hw); err != nil {
			h.log.Warn("dropping notification frame: bad highwater", zap.String("user", nc.user.Username))
			return
		}
		h.bus.EmitNotificationBackfill(env.AppID, nc.user, hw, nc.Emit)

	default:
		h.log.Debug("ignoring notification frame", zap.String("type", msg.Type))
	}
}

// PushNotification 推送给用户（支持跨 Pod）
// 先尝试本地发送，同时 publish 到 Redis 让其他 Pod 也能收到
func (h *NotificationHub) PushNotification(user model.User, appID string, data any) bool {
	payload, err := json.Marshal(data)
	if err != nil {
		h.log.Error("failed to marshal notification", zap.Error(err))
		return false
	}
	frame, err := encodeFrame(FrameData, Envelope{AppID: appID, Data: payload})
	if err != nil {
		h.log.Error("failed to marshal notification frame", zap.Error(err))
		return false
	}

	// 1. 先尝试本地发送
	sent := h.sendLocal(user.Username, frame)

	// 2. 发布到 Redis，让其他 Pod 也能推送
	if h.rdb != nil {
		msgBytes, err := json.Marshal(BroadcastMessage{Username: user.Username, PodID: h.podID, Payload: frame})
		if err != nil {
			h.log.Error("failed to marshal broadcast message", zap.Error(err))
			return sent
		}
		if err := h.rdb.Publish(context.Background(), redisBroadcastChannel, msgBytes).Err(); err != nil {
			h.log.Error("failed to publish to redis", zap.Error(err))
		}
	}
	return sent
}

func (h *NotificationHub) sendLocal(username string, frame []byte) bool {
	handle, ok := h.registry.LookupNotification(username)
	if !ok {
		// 用户不在线（正常情况，不记录）
		return false
	}
	if err := handle.SendRaw(frame); err != nil {
		h.log.Warn("notification send failed", zap.String("user", username), zap.Error(err))
		return false
	}
	return true
}

// StartPubSub 启动 Redis Pub/Sub 订阅（跨 Pod 通知广播）
func (h *NotificationHub) StartPubSub() {
	if h.rdb == nil {
		return
	}
	go func() {
		ctx := context.Background()
		pubsub := h.rdb.Subscribe(ctx, redisBroadcastChannel)
		defer pubsub.Close()

		h.log.Info("redis pub/sub subscribed", zap.String("pod", h.podID[:8]))

		ch := pubsub.Channel()
		for {
			select {
			case <-h.stopPubSub:
				h.log.Info("redis pub/sub stopping", zap.String("pod", h.podID[:8]))
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				h.handleBroadcastMessage([]byte(msg.Payload))
			}
		}
	}()
}

// StopPubSub 停止 Redis Pub/Sub 订阅
func (h *NotificationHub) StopPubSub() {
	select {
	case <-h.stopPubSub:
	default:
		close(h.stopPubSub)
	}
}

// handleBroadcastMessage 处理来自 Redis 的广播消息
func (h *NotificationHub) handleBroadcastMessage(data []byte) {
	var msg BroadcastMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.log.Error("failed to unmarshal broadcast message", zap.Error(err))
		return
	}

	// 忽略自己发的消息（避免重复推送）
	if msg.PodID == h.podID {
		return
	}
	h.sendLocal(msg.Username, msg.Payload)
}

// IsUserOnline 检查用户是否在线（本机或 Redis 在线标记）
func (h *NotificationHub) IsUserOnline(ctx context.Context, user model.User) bool {
	if _, ok := h.registry.LookupNotification(user.Username); ok {
		return true
	}
	if h.rdb == nil {
		return false
	}
	n, err := h.rdb.Exists(ctx, presenceKey(user)).Result()
	return err == nil && n > 0
}

func presenceKey(user model.User) string {
	return "online:" + user.ID.String()
}

func (h *NotificationHub) refreshPresence(user model.User) {
	if h.rdb == nil {
		return
	}
	if err := h.rdb.Set(context.Background(), presenceKey(user), "1", presenceTTL).Err(); err != nil {
		h.log.Debug("failed to refresh presence", zap.String("user", user.Username), zap.Error(err))
	}
}

// setPresence 在线标记：Redis TTL key + users.online，失败不影响通道
func (h *NotificationHub) setPresence(user model.User, online bool) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if h.rdb != nil {
			if online {
				h.rdb.Set(ctx, presenceKey(user), "1", presenceTTL)
			} else {
				h.rdb.Del(ctx, presenceKey(user))
			}
		}
		if err := h.users.SetOnline(ctx, &user, online); err != nil {
			h.log.Debug("failed to update user online flag", zap.String("user", user.Username), zap.Error(err))
		}
	}()
}
