package encryption

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBox_RoundTrip(t *testing.T) {
	b := NewBox()
	alice, err := b.NewKeyPair()
	require.NoError(t, err)
	bob, err := b.NewKeyPair()
	require.NoError(t, err)

	ct, err := b.Encrypt(bob.Public, alice.Private, []byte(`{"appId":"post","data":1}`), ContentTypeJSON)
	require.NoError(t, err)

	res := b.Decrypt(alice.Public, bob.Private, ct)
	require.True(t, res.Valid, res.InvalidReason)
	assert.Equal(t, `{"appId":"post","data":1}`, string(res.Data))
	assert.True(t, res.IsJSON())
}

func TestBox_Tampered(t *testing.T) {
	b := NewBox()
	alice, _ := b.NewKeyPair()
	bob, _ := b.NewKeyPair()

	ct, err := b.Encrypt(bob.Public, alice.Private, []byte("hello"), "text/plain")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(ct)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	res := b.Decrypt(alice.Public, bob.Private, tampered)
	assert.False(t, res.Valid)
	assert.Nil(t, res.Data)
	assert.Equal(t, "signature mismatch", res.InvalidReason)
}

func TestBox_WrongKey(t *testing.T) {
	b := NewBox()
	alice, _ := b.NewKeyPair()
	bob, _ := b.NewKeyPair()
	mallory, _ := b.NewKeyPair()

	ct, err := b.Encrypt(bob.Public, alice.Private, []byte("hello"), "text/plain")
	require.NoError(t, err)

	res := b.Decrypt(mallory.Public, bob.Private, ct)
	assert.False(t, res.Valid)

	res = b.Decrypt(alice.Public, bob.Private, ct)
	require.True(t, res.Valid)
	assert.Equal(t, "text/plain", res.ContentType)
	assert.False(t, res.IsJSON())
}

func TestBox_Garbage(t *testing.T) {
	b := NewBox()
	alice, _ := b.NewKeyPair()

	assert.False(t, b.Decrypt(alice.Public, alice.Private, "not base64!").Valid)
	assert.False(t, b.Decrypt(alice.Public, alice.Private, "AAAA").Valid)
	assert.False(t, b.Decrypt("short", alice.Private, "AAAA").Valid)
}
