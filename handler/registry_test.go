package handler

import (
	"sync"
	"sync/atomic"
	"testing"

	"dinq_federation/event"
	"dinq_federation/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	emitted []string
	closed  bool
}

func (f *fakeHandle) Emit(appID, eventType string, data any) error {
	f.emitted = append(f.emitted, appID+":"+eventType)
	return nil
}
func (f *fakeHandle) SendRaw(msg []byte) error { return nil }
func (f *fakeHandle) Close()                   { f.closed = true }

func TestRegistry_AddRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	first, second := &fakeHandle{}, &fakeHandle{}
	key := ActivityKey("alice", "http://b.example.com/antisocial/bob")

	require.NoError(t, r.AddActivity(key, first))
	assert.ErrorIs(t, r.AddActivity(key, second), ErrAlreadyConnected)

	got, ok := r.LookupActivity(key)
	require.True(t, ok)
	assert.Same(t, first, got)

	// 旧 handle 不能删除新连接
	r.RemoveActivity(key, second)
	_, ok = r.LookupActivity(key)
	assert.True(t, ok)

	r.RemoveActivity(key, first)
	_, ok = r.LookupActivity(key)
	assert.False(t, ok)
}

func TestRegistry_Emitters(t *testing.T) {
	r := NewRegistry()
	user := model.User{Username: "alice"}
	friend := model.Friend{RemoteEndPoint: "http://b.example.com/antisocial/bob"}

	assert.Nil(t, r.ActivityEmitter(user, friend))
	assert.Nil(t, r.NotificationEmitter("alice"))

	h := &fakeHandle{}
	require.NoError(t, r.AddActivity(ActivityKey(user.Username, friend.RemoteEndPoint), h))
	require.NoError(t, r.AddNotification("alice", h))

	emit := r.ActivityEmitter(user, friend)
	require.NotNil(t, emit)
	require.NoError(t, emit("post", FrameData, 1))
	require.NoError(t, r.NotificationEmitter("alice")("friends", FrameData, 2))
	assert.Equal(t, []string{"post:data", "friends:data"}, h.emitted)

	assert.ErrorIs(t, r.AddNotification("alice", &fakeHandle{}), ErrAlreadyConnected)
}

type gatedHandle struct {
	fakeHandle
}

func (g *gatedHandle) EmitLive(appID, eventType string, data any) error {
	return event.ErrNotReady
}

func TestRegistry_ActivityEmitterPrefersLive(t *testing.T) {
	r := NewRegistry()
	user := model.User{Username: "alice"}
	friend := model.Friend{RemoteEndPoint: "http://b.example.com/antisocial/bob"}

	h := &gatedHandle{}
	require.NoError(t, r.AddActivity(ActivityKey(user.Username, friend.RemoteEndPoint), h))

	emit := r.ActivityEmitter(user, friend)
	require.NotNil(t, emit)
	assert.ErrorIs(t, emit("post", FrameData, 1), event.ErrNotReady)
	assert.Empty(t, h.emitted)
}

func TestRegistry_ConcurrentAdd(t *testing.T) {
	r := NewRegistry()
	key := ActivityKey("alice", "http://b.example.com/antisocial/bob")

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.AddActivity(key, &fakeHandle{}) == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, 1, r.ActivityCount())
}
