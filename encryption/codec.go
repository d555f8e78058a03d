// Package encryption 关系级加解密：每个好友关系独立的 curve25519 密钥对
package encryption

import "dinq_federation/model"

// ContentTypeJSON 应用数据默认内容类型
const ContentTypeJSON = "application/json"

// Result 解密结果；Valid=false 时调用方应丢弃数据
type Result struct {
	Valid         bool
	Data          []byte
	ContentType   string
	InvalidReason string
}

// IsJSON 内容类型为 JSON 或未声明
func (r Result) IsJSON() bool {
	return r.ContentType == "" || r.ContentType == ContentTypeJSON
}

// Codec 认证加密
type Codec interface {
	Encrypt(peerPublicKey, ownPrivateKey string, plaintext []byte, contentType string) (string, error)
	Decrypt(peerPublicKey, ownPrivateKey, ciphertext string) Result
}

// KeyPairProvider 为每个关系生成密钥对
type KeyPairProvider interface {
	NewKeyPair() (model.KeyPair, error)
}
