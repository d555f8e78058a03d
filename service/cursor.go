package service

import (
	"sync"
	"time"
)

// CursorClock 单调递增的游标（unix 微秒，同一微秒内自增）
type CursorClock struct {
	mu   sync.Mutex
	last int64
}

// Next 返回严格大于上一次的游标
func (c *CursorClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UnixMicro()
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return now
}

// DefaultHighWater 没有记录时的默认游标：当前时间减去回溯窗口
func DefaultHighWater(lookback time.Duration) int64 {
	return time.Now().Add(-lookback).UnixMicro()
}
