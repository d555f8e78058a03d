package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// 关系状态
const (
	FriendStatusPending  = "pending"
	FriendStatusAccepted = "accepted"
)

// 可见范围
const (
	AudiencePublic  = "public"
	AudienceFriends = "friends"
)

// Audiences 好友可见范围集合（JSON 存储）
type Audiences []string

// Has 是否包含指定范围
func (a Audiences) Has(audience string) bool {
	for _, v := range a {
		if v == audience {
			return true
		}
	}
	return false
}

// With 追加范围（已存在则不重复追加）
func (a Audiences) With(audience string) Audiences {
	if a.Has(audience) {
		return a
	}
	out := make(Audiences, 0, len(a)+1)
	out = append(out, a...)
	return append(out, audience)
}

// ValidAudience 校验范围取值
func ValidAudience(audience string) bool {
	return audience == AudiencePublic || audience == AudienceFriends
}

func (a Audiences) Value() (driver.Value, error) {
	if a == nil {
		a = Audiences{}
	}
	b, err := json.Marshal([]string(a))
	return string(b), err
}

func (a *Audiences) Scan(value interface{}) error {
	return scanJSON(value, a)
}

// HighWater 每个应用的游标 map[appID]cursor
type HighWater map[string]int64

func (h HighWater) Value() (driver.Value, error) {
	if h == nil {
		h = HighWater{}
	}
	b, err := json.Marshal(map[string]int64(h))
	return string(b), err
}

func (h *HighWater) Scan(value interface{}) error {
	return scanJSON(value, h)
}

// KeyPair 关系级密钥对（base64）
type KeyPair struct {
	Public  string `json:"public"`
	Private string `json:"private"`
}

func (k KeyPair) Value() (driver.Value, error) {
	b, err := json.Marshal(k)
	return string(b), err
}

func (k *KeyPair) Scan(value interface{}) error {
	return scanJSON(value, k)
}

func scanJSON(value interface{}, dst interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported column type %T", value)
	}
}
