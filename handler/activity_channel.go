package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"dinq_federation/encryption"
	"dinq_federation/event"
	"dinq_federation/model"
	"dinq_federation/service"
	"dinq_federation/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// authMessage 活动通道认证帧
type authMessage struct {
	Username          string `json:"username"`
	FriendAccessToken string `json:"friendAccessToken"`
}

// ActivityChannels 好友服务器之间的加密活动通道（服务端与客户端两半）
type ActivityChannels struct {
	registry *Registry
	bus      *event.Bus
	codec    encryption.Codec
	auth     *service.ChannelAuthenticator
	friends  *service.FriendService
	log      *zap.Logger

	upgrader    websocket.Upgrader
	dialer      *websocket.Dialer
	rewrite     func(string) string
	apiPrefix   string
	authTimeout time.Duration
	lookback    time.Duration

	mu         sync.Mutex
	connecting map[string]struct{}
}

// ActivityOptions 通道参数
type ActivityOptions struct {
	AuthTimeout time.Duration
	Lookback    time.Duration
	Rewrite     func(string) string
	APIPrefix   string // 对端活动通道挂载在 <APIPrefix>-activity
}

func NewActivityChannels(
	registry *Registry,
	bus *event.Bus,
	codec encryption.Codec,
	auth *service.ChannelAuthenticator,
	friends *service.FriendService,
	opts ActivityOptions,
	log *zap.Logger,
) *ActivityChannels {
	if opts.Rewrite == nil {
		opts.Rewrite = func(u string) string { return u }
	}
	return &ActivityChannels{
		registry: registry,
		bus:      bus,
		codec:    codec,
		auth:     auth,
		friends:  friends,
		log:      log,
		upgrader: websocket.Upgrader{
			// 对端是服务器，不携带浏览器 Origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		dialer:      &websocket.Dialer{HandshakeTimeout: opts.AuthTimeout},
		rewrite:     opts.Rewrite,
		apiPrefix:   opts.APIPrefix,
		authTimeout: opts.AuthTimeout,
		lookback:    opts.Lookback,
		connecting:  make(map[string]struct{}),
	}
}

const contentTypeOctetStream = "application/octet-stream"

// activityConn 已认证的活动通道
type activityConn struct {
	*Channel
	user   model.User
	friend model.Friend
	codec  encryption.Codec
	info   event.ConnInfo

	gateMu sync.Mutex
	gates  map[string]*appGate
}

// appGate 每个应用的回填闸门：回填完成前不做实时推送
type appGate struct {
	mu    sync.Mutex
	ready bool
}

// Emit 加密 {appId, contentType, data} 后按 eventType 发送
func (a *activityConn) Emit(appID, eventType string, data any) error {
	env, err := newEnvelope(appID, data)
	if err != nil {
		return err
	}
	plaintext, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ciphertext, err := a.codec.Encrypt(a.friend.RemotePublicKey, a.friend.KeyPair.Private, plaintext, encryption.ContentTypeJSON)
	if err != nil {
		return fmt.Errorf("failed to encrypt: %w", err)
	}
	return a.SendFrame(eventType, ciphertext)
}

// EmitLive 实时推送；该应用的回填尚未完成时返回 event.ErrNotReady
func (a *activityConn) EmitLive(appID, eventType string, data any) error {
	g := a.gate(appID)
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.ready {
		return event.ErrNotReady
	}
	return a.Emit(appID, eventType, data)
}

// backfill 持有闸门执行回填，结束后放开实时推送
func (a *activityConn) backfill(appID string, fn func()) {
	g := a.gate(appID)
	g.mu.Lock()
	defer g.mu.Unlock()
	fn()
	g.ready = true
}

func (a *activityConn) gate(appID string) *appGate {
	a.gateMu.Lock()
	defer a.gateMu.Unlock()
	g, ok := a.gates[appID]
	if !ok {
		g = &appGate{}
		a.gates[appID] = g
	}
	return g
}

// newEnvelope []byte 与非 JSON 的 Payload 以 base64 放入 data，并标注 contentType
func newEnvelope(appID string, data any) (Envelope, error) {
	env := Envelope{AppID: appID}
	var err error
	switch v := data.(type) {
	case []byte:
		env.ContentType = contentTypeOctetStream
		env.Data, err = json.Marshal(v)
	case event.Payload:
		env.ContentType = v.ContentType
		if v.IsJSON() {
			if !json.Valid(v.Data) {
				return env, errors.New("payload is not valid json")
			}
			env.Data = v.Data
		} else {
			env.Data, err = json.Marshal(v.Data)
		}
	default:
		env.Data, err = json.Marshal(data)
	}
	return env, err
}

// payload 还原应用数据；非 JSON 内容从 base64 解出原始字节
func (e Envelope) payload() (event.Payload, error) {
	p := event.Payload{ContentType: e.ContentType}
	if p.IsJSON() {
		p.Data = e.Data
		return p, nil
	}
	var raw []byte
	if err := json.Unmarshal(e.Data, &raw); err != nil {
		return p, err
	}
	p.Data = raw
	return p, nil
}

// ServeWS 对端连入：第一帧必须是 authentication
func (m *ActivityChannels) ServeWS(c *gin.Context) {
	conn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		m.log.Warn("activity upgrade failed", zap.Error(err))
		return
	}

	conn.SetReadDeadline(time.Now().Add(m.authTimeout))
	var first WSMessage
	if err := conn.ReadJSON(&first); err != nil || first.Type != FrameAuthentication {
		rejectConn(conn, "authentication required")
		return
	}
	var auth authMessage
	if err := json.Unmarshal(first.Data, &auth); err != nil {
		rejectConn(conn, "malformed authentication")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), m.authTimeout)
	defer cancel()
	user, friend, err := m.auth.AuthenticateFriend(ctx, auth.Username, auth.FriendAccessToken)
	if err != nil {
		m.log.Info("activity authentication rejected",
			zap.String("username", auth.Username),
			zap.String("remote_addr", c.Request.RemoteAddr),
			zap.Error(err),
		)
		rejectConn(conn, "invalid credentials")
		return
	}

	key := ActivityKey(user.Username, friend.RemoteEndPoint)
	ac := m.newConn(key, conn, *user, *friend, event.ConnInfo{Key: key, RemoteAddr: c.Request.RemoteAddr, Inbound: true})
	if err := m.registry.AddActivity(key, ac); err != nil {
		m.log.Info("duplicate activity connection rejected", zap.String("key", key))
		rejectConn(conn, "already connected")
		return
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(WSMessage{Type: FrameAuthenticated}); err != nil {
		m.registry.RemoveActivity(key, ac)
		conn.Close()
		return
	}

	go m.run(ac)
}

// Connect 打开到好友服务器的活动通道；已连接或正在连接时直接返回
func (m *ActivityChannels) Connect(ctx context.Context, user model.User, friend model.Friend) error {
	key := ActivityKey(user.Username, friend.RemoteEndPoint)
	if _, ok := m.registry.LookupActivity(key); ok {
		return nil
	}
	if !m.reserve(key) {
		return nil
	}
	defer m.release(key)

	// 以存储中的最新状态为准（highWater、status）
	fresh, err := m.friends.FindFriend(ctx, user.ID, friend.RemoteEndPoint)
	if err != nil {
		return err
	}
	if !fresh.IsAccepted() {
		return service.ErrNotAccepted
	}

	target, err := utils.ActivityURL(m.rewrite(fresh.RemoteEndPoint), m.apiPrefix)
	if err != nil {
		return err
	}
	conn, _, err := m.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", target, err)
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(map[string]any{
		"type": FrameAuthentication,
		"data": authMessage{Username: fresh.RemoteUsername, FriendAccessToken: fresh.RemoteAccessToken},
	}); err != nil {
		conn.Close()
		return fmt.Errorf("failed to send authentication: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(m.authTimeout))
	var reply WSMessage
	if err := conn.ReadJSON(&reply); err != nil {
		conn.Close()
		return fmt.Errorf("no authentication reply: %w", err)
	}
	if reply.Type != FrameAuthenticated {
		conn.Close()
		var body struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(reply.Data, &body)
		return fmt.Errorf("%w: %s", service.ErrUnauthorized, body.Message)
	}

	ac := m.newConn(key, conn, user, *fresh, event.ConnInfo{Key: key, RemoteAddr: conn.RemoteAddr().String()})
	if err := m.registry.AddActivity(key, ac); err != nil {
		// 对端同时连入了
		conn.Close()
		return nil
	}

	go m.run(ac)
	return nil
}

// Disconnect 关闭活动通道（未连接时忽略）
func (m *ActivityChannels) Disconnect(user model.User, friend model.Friend) {
	if h, ok := m.registry.LookupActivity(ActivityKey(user.Username, friend.RemoteEndPoint)); ok {
		h.Close()
	}
}

func (m *ActivityChannels) reserve(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.connecting[key]; busy {
		return false
	}
	m.connecting[key] = struct{}{}
	return true
}

func (m *ActivityChannels) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connecting, key)
}

func (m *ActivityChannels) newConn(key string, conn *websocket.Conn, user model.User, friend model.Friend, info event.ConnInfo) *activityConn {
	return &activityConn{
		Channel: newChannel(key, conn, m.log),
		user:    user,
		friend:  friend,
		codec:   m.codec,
		info:    info,
		gates:   make(map[string]*appGate),
	}
}

// run 认证后的通道生命周期：回填请求、open 事件、读循环、close 事件
func (m *ActivityChannels) run(ac *activityConn) {
	go ac.writePump()

	for _, appID := range m.bus.ActivityApps() {
		hw, ok := ac.friend.HighWater[appID]
		if !ok {
			hw = service.DefaultHighWater(m.lookback)
		}
		if err := ac.Emit(appID, FrameHighWater, hw); err != nil {
			m.log.Warn("failed to send highwater", zap.String("key", ac.Key), zap.String("app", appID), zap.Error(err))
		}
	}

	m.setOnline(ac.friend, true)
	m.log.Info("activity channel open", zap.String("key", ac.Key), zap.Bool("inbound", ac.info.Inbound))
	m.bus.EmitOpenActivity(ac.user, ac.friend, ac.Emit, ac.info)

	reason := ac.readPump(func(msg WSMessage) { m.handleFrame(ac, msg) })

	ac.Close()
	m.registry.RemoveActivity(ac.Key, ac)
	m.setOnline(ac.friend, false)
	m.log.Info("activity channel closed", zap.String("key", ac.Key), zap.String("reason", reason))
	m.bus.EmitCloseActivity(ac.user, ac.friend, reason, ac.info)
}

// handleFrame 解密失败或格式错误的帧丢弃并记录，不关闭通道
func (m *ActivityChannels) handleFrame(ac *activityConn, msg WSMessage) {
	if msg.Type != FrameData && msg.Type != FrameHighWater {
		m.log.Debug("ignoring activity frame", zap.String("key", ac.Key), zap.String("type", msg.Type))
		return
	}

	var ciphertext string
	if err := json.Unmarshal(msg.Data, &ciphertext); err != nil {
		m.log.Warn("dropping activity frame: not a ciphertext", zap.String("key", ac.Key))
		return
	}
	res := m.codec.Decrypt(ac.friend.RemotePublicKey, ac.friend.KeyPair.Private, ciphertext)
	if !res.Valid {
		m.log.Warn("dropping activity frame: decrypt failed", zap.String("key", ac.Key), zap.String("reason", res.InvalidReason))
		return
	}

	var env Envelope
	if !res.IsJSON() || json.Unmarshal(res.Data, &env) != nil || env.AppID == "" {
		m.log.Warn("dropping activity frame: bad envelope", zap.String("key", ac.Key))
		return
	}

	switch msg.Type {
	case FrameData:
		data, err := env.payload()
		if err != nil {
			m.log.Warn("dropping activity frame: bad payload", zap.String("key", ac.Key), zap.String("app", env.AppID))
			return
		}
		if !m.bus.EmitActivityData(env.AppID, ac.user, ac.friend, data) {
			m.log.Debug("no handler for activity data", zap.String("app", env.AppID))
		}
	case FrameHighWater:
		var hw int64
		if err := json.Unmarshal(env.Data, &hw); err != nil {
			m.log.Warn("dropping activity frame: bad highwater", zap.String("key", ac.Key))
			return
		}
		ac.backfill(env.AppID, func() {
			m.bus.EmitActivityBackfill(env.AppID, ac.user, ac.friend, hw, ac.Emit)
		})
	}
}

// setOnline 更新好友在线标记，失败不影响通道
func (m *ActivityChannels) setOnline(friend model.Friend, online bool) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.friends.SetFriendOnline(ctx, &friend, online); err != nil && !errors.Is(err, context.Canceled) {
			m.log.Debug("failed to update friend online flag", zap.String("endpoint", friend.RemoteEndPoint), zap.Error(err))
		}
	}()
}
