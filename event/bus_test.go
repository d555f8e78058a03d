package event

import (
	"context"
	"testing"

	"dinq_federation/model"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestBus_FriendEventsInOrder(t *testing.T) {
	bus := NewBus(zap.NewNop())
	var calls []string

	bus.OnFriend(NewFriend, func(ctx context.Context, user model.User, friend model.Friend) {
		calls = append(calls, "first:"+user.Username)
	})
	bus.OnFriend(NewFriend, func(ctx context.Context, user model.User, friend model.Friend) {
		calls = append(calls, "second:"+friend.RemoteUsername)
	})
	bus.OnFriend(FriendDeleted, func(ctx context.Context, user model.User, friend model.Friend) {
		calls = append(calls, "deleted")
	})

	bus.EmitFriend(context.Background(), NewFriend, model.User{Username: "alice"}, model.Friend{RemoteUsername: "bob"})
	assert.Equal(t, []string{"first:alice", "second:bob"}, calls)
}

func TestBus_PanicIsContained(t *testing.T) {
	bus := NewBus(zap.NewNop())
	reached := false

	bus.OnActivityData("post", func(user model.User, friend model.Friend, data Payload) {
		panic("boom")
	})
	bus.OnActivityData("post", func(user model.User, friend model.Friend, data Payload) {
		reached = true
	})

	assert.NotPanics(t, func() {
		assert.True(t, bus.EmitActivityData("post", model.User{}, model.Friend{}, Payload{Data: []byte(`1`)}))
	})
	assert.True(t, reached)
	assert.False(t, bus.EmitActivityData("missing", model.User{}, model.Friend{}, Payload{}))
}

func TestBus_Apps(t *testing.T) {
	bus := NewBus(zap.NewNop())
	bus.OnActivityBackfill("post", func(model.User, model.Friend, int64, Emitter) {})
	bus.OnActivityData("chat", func(model.User, model.Friend, Payload) {})
	bus.OnActivityData("post", func(model.User, model.Friend, Payload) {})
	bus.OnNotificationBackfill("friends", func(model.User, int64, Emitter) {})

	assert.Equal(t, []string{"chat", "post"}, bus.ActivityApps())
	assert.Equal(t, []string{"friends"}, bus.NotificationApps())
}

func TestPayload_IsJSON(t *testing.T) {
	assert.True(t, Payload{}.IsJSON())
	assert.True(t, Payload{ContentType: ContentTypeJSON}.IsJSON())
	assert.False(t, Payload{ContentType: "image/png"}.IsJSON())
}
