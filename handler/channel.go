package handler

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 帧类型
const (
	FrameAuthentication = "authentication"
	FrameAuthenticated  = "authenticated"
	FrameUnauthorized   = "unauthorized"
	FrameData           = "data"
	FrameHighWater      = "highwater"
	FrameHeartbeat      = "heartbeat"
	FrameError          = "error"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

var (
	ErrChannelClosed    = errors.New("channel closed")
	ErrAlreadyConnected = errors.New("already connected")
)

// WSMessage WebSocket 消息格式
type WSMessage struct {
	Type string          `json:"type"` // 'authentication' | 'data' | 'highwater' | 'heartbeat' ...
	Data json.RawMessage `json:"data,omitempty"`
}

// Envelope 应用数据封装；contentType 缺省为 JSON
type Envelope struct {
	AppID       string          `json:"appId"`
	ContentType string          `json:"contentType,omitempty"`
	Data        json.RawMessage `json:"data"`
}

// Channel 一条 websocket 连接及其读写协程
type Channel struct {
	Key  string
	Conn *websocket.Conn
	send chan []byte
	done chan struct{}
	log  *zap.Logger

	closeOnce sync.Once
}

func newChannel(key string, conn *websocket.Conn, log *zap.Logger) *Channel {
	return &Channel{
		Key:  key,
		Conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
		log:  log,
	}
}

// encodeFrame 序列化 {type, data}
func encodeFrame(frameType string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(WSMessage{Type: frameType, Data: raw})
}

// SendFrame 发送一帧；缓冲满时最多等待 writeWait
func (c *Channel) SendFrame(frameType string, data any) error {
	msg, err := encodeFrame(frameType, data)
	if err != nil {
		return err
	}
	return c.SendRaw(msg)
}

// SendRaw 发送已序列化的帧
func (c *Channel) SendRaw(msg []byte) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	timer := time.NewTimer(writeWait)
	defer timer.Stop()
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrChannelClosed
	case <-timer.C:
		return errors.New("send buffer full")
	}
}

// Close 关闭连接，readPump 随之退出
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Closed 连接是否已关闭
func (c *Channel) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// readPump 从 WebSocket 读取消息，返回关闭原因
func (c *Channel) readPump(onMessage func(msg WSMessage)) string {
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if c.Closed() {
				return "closed locally"
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket unexpected close", zap.String("key", c.Key), zap.Error(err))
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				if closeErr.Text != "" {
					return closeErr.Text
				}
				return "closed by peer"
			}
			return err.Error()
		}

		var wsMsg WSMessage
		if err := json.Unmarshal(message, &wsMsg); err != nil {
			c.log.Warn("invalid frame", zap.String("key", c.Key), zap.Error(err))
			continue
		}
		onMessage(wsMsg)
	}
}

// writePump 向 WebSocket 写入消息，并定期 ping
func (c *Channel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			// 发送 ping 保持连接
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			// 先把已排队的帧写完
			for {
				select {
				case message := <-c.send:
					c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
						return
					}
					continue
				default:
				}
				break
			}
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closed"))
			return
		}
	}
}

// rejectConn 握手阶段拒绝连接
func rejectConn(conn *websocket.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if msg, err := encodeFrame(FrameUnauthorized, map[string]string{"message": message}); err == nil {
		_ = conn.WriteMessage(websocket.TextMessage, msg)
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message))
	conn.Close()
}
