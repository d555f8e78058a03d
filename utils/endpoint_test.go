package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidEndpoint(t *testing.T) {
	assert.True(t, ValidEndpoint("https://example.com/antisocial/alice"))
	assert.True(t, ValidEndpoint("http://127.0.0.1:3000/antisocial/bob"))
	assert.False(t, ValidEndpoint("example.com/alice"))
	assert.False(t, ValidEndpoint("ftp://example.com/alice"))
	assert.False(t, ValidEndpoint(""))
}

func TestActivityURL(t *testing.T) {
	u, err := ActivityURL("https://example.com/antisocial/alice", "/antisocial")
	require.NoError(t, err)
	assert.Equal(t, "wss://example.com/antisocial-activity", u)

	// 只取 scheme/host，路径与查询参数不参与推导
	u, err = ActivityURL("http://127.0.0.1:3000/fed/v1/bob?x=1", "/antisocial/")
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:3000/antisocial-activity", u)

	// endpoint 没有前缀段
	u, err = ActivityURL("http://h.example.com/bob", "/antisocial")
	require.NoError(t, err)
	assert.Equal(t, "ws://h.example.com/antisocial-activity", u)

	_, err = ActivityURL("ftp://example.com/x", "/antisocial")
	assert.Error(t, err)
	_, err = ActivityURL("http:///bob", "/antisocial")
	assert.Error(t, err)
}

func TestEndpointHash(t *testing.T) {
	h := EndpointHash("https://example.com/antisocial/alice")
	assert.Len(t, h, 8)
	assert.Equal(t, h, EndpointHash("https://example.com/antisocial/alice"))
	assert.NotEqual(t, h, EndpointHash("https://example.com/antisocial/bob"))
	assert.Equal(t, "https://example.com", EndpointHost("https://example.com/antisocial/alice"))
}
