package encryption

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"dinq_federation/model"

	"golang.org/x/crypto/nacl/box"
)

const nonceSize = 24

// sealed 加密前的明文封装
type sealed struct {
	ContentType string `json:"contentType,omitempty"`
	Data        []byte `json:"data"`
}

// Box 基于 nacl/box（curve25519 + xsalsa20poly1305）的 Codec 与 KeyPairProvider
type Box struct {
	rand io.Reader
}

// NewBox 创建 Box
func NewBox() *Box {
	return &Box{rand: rand.Reader}
}

// NewKeyPair 生成新的密钥对（base64）
func (b *Box) NewKeyPair() (model.KeyPair, error) {
	pub, priv, err := box.GenerateKey(b.rand)
	if err != nil {
		return model.KeyPair{}, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return model.KeyPair{
		Public:  base64.StdEncoding.EncodeToString(pub[:]),
		Private: base64.StdEncoding.EncodeToString(priv[:]),
	}, nil
}

// Encrypt 输出 base64(nonce || box)
func (b *Box) Encrypt(peerPublicKey, ownPrivateKey string, plaintext []byte, contentType string) (string, error) {
	peer, err := decodeKey(peerPublicKey)
	if err != nil {
		return "", fmt.Errorf("invalid peer public key: %w", err)
	}
	own, err := decodeKey(ownPrivateKey)
	if err != nil {
		return "", fmt.Errorf("invalid private key: %w", err)
	}

	msg, err := json.Marshal(sealed{ContentType: contentType, Data: plaintext})
	if err != nil {
		return "", err
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(b.rand, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to read nonce: %w", err)
	}

	out := box.Seal(nonce[:], msg, &nonce, peer, own)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt 校验失败不返回错误，只标记 Valid=false
func (b *Box) Decrypt(peerPublicKey, ownPrivateKey, ciphertext string) Result {
	peer, err := decodeKey(peerPublicKey)
	if err != nil {
		return invalid("bad peer public key")
	}
	own, err := decodeKey(ownPrivateKey)
	if err != nil {
		return invalid("bad private key")
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return invalid("bad encoding")
	}
	if len(raw) < nonceSize+box.Overhead {
		return invalid("ciphertext too short")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	msg, ok := box.Open(nil, raw[nonceSize:], &nonce, peer, own)
	if !ok {
		return invalid("signature mismatch")
	}

	var s sealed
	if err := json.Unmarshal(msg, &s); err != nil {
		return invalid("malformed envelope")
	}
	return Result{Valid: true, Data: s.Data, ContentType: s.ContentType}
}

func invalid(reason string) Result {
	return Result{Valid: false, InvalidReason: reason}
}

func decodeKey(s string) (*[32]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, errors.New("key must be 32 bytes")
	}
	var k [32]byte
	copy(k[:], raw)
	return &k, nil
}
