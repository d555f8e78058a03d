package store_test

import (
	"context"
	"encoding/json"
	"testing"

	"dinq_federation/model"
	"dinq_federation/store"
	"dinq_federation/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollection_CRUD(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	user := &model.User{Username: "alice", DisplayName: "Alice"}
	require.NoError(t, s.Users.NewInstance(ctx, user))
	assert.NotEqual(t, uuid.Nil, user.ID)

	friend := &model.Friend{
		UserID:         user.ID,
		Status:         model.FriendStatusPending,
		Originator:     true,
		RemoteEndPoint: "http://peer.example.com/antisocial/bob",
		KeyPair:        model.KeyPair{Public: "pub", Private: "priv"},
		Audiences:      model.Audiences{model.AudiencePublic},
		HighWater:      model.HighWater{"post": 42},
	}
	require.NoError(t, s.Friends.NewInstance(ctx, friend))

	rows, err := s.Friends.GetInstances(ctx, store.Query{"user_id": user.ID, "remote_end_point": friend.RemoteEndPoint})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "priv", rows[0].KeyPair.Private)
	assert.Equal(t, int64(42), rows[0].HighWater["post"])
	assert.True(t, rows[0].Audiences.Has(model.AudiencePublic))

	got := rows[0]
	got.Status = model.FriendStatusAccepted
	got.Audiences = got.Audiences.With(model.AudienceFriends)
	require.NoError(t, s.Friends.UpdateInstance(ctx, &got, "status", "audiences"))

	rows, err = s.Friends.GetInstances(ctx, store.Query{"id": friend.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.FriendStatusAccepted, rows[0].Status)
	assert.Equal(t, model.Audiences{model.AudiencePublic, model.AudienceFriends}, rows[0].Audiences)

	require.NoError(t, s.Friends.DeleteInstance(ctx, friend.ID))
	rows, err = s.Friends.GetInstances(ctx, store.Query{"id": friend.ID})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCollection_UniqueFriendPerEndpoint(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	userID := uuid.New()
	endpoint := "http://peer.example.com/antisocial/bob"
	require.NoError(t, s.Friends.NewInstance(ctx, &model.Friend{UserID: userID, Status: model.FriendStatusPending, RemoteEndPoint: endpoint}))

	err := s.Friends.NewInstance(ctx, &model.Friend{UserID: userID, Status: model.FriendStatusPending, RemoteEndPoint: endpoint})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrDuplicate)

	var storeErr *store.Error
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "friends", storeErr.Collection)
	assert.Equal(t, "create", storeErr.Op)
}

func TestCollection_DeleteMissing(t *testing.T) {
	s := testutil.SetupTestStore(t)

	err := s.Blocks.DeleteInstance(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLogCollection_After(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()
	userID := uuid.New()

	for _, cursor := range []int64{30, 10, 20} {
		require.NoError(t, s.Activities.NewInstance(ctx, &model.Activity{
			UserID: userID,
			AppID:  "post",
			Cursor: cursor,
			Data:   json.RawMessage(`{}`),
		}))
	}
	require.NoError(t, s.Activities.NewInstance(ctx, &model.Activity{UserID: userID, AppID: "other", Cursor: 99, Data: json.RawMessage(`{}`)}))

	items, err := s.Activities.After(ctx, userID, "post", 10, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(20), items[0].Cursor)
	assert.Equal(t, int64(30), items[1].Cursor)
}

func TestCollection_UpdateWhere(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	inv := &model.Invitation{UserID: uuid.New(), Token: "tok", Status: model.InvitationStatusOpen}
	require.NoError(t, s.Invitations.NewInstance(ctx, inv))

	open := store.Query{"id": inv.ID, "status": model.InvitationStatusOpen}
	used := map[string]any{"status": model.InvitationStatusUsed}

	n, err := s.Invitations.UpdateWhere(ctx, open, used)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// 条件不再满足，第二次迁移不生效
	n, err = s.Invitations.UpdateWhere(ctx, open, used)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	rows, err := s.Invitations.GetInstances(ctx, store.Query{"id": inv.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.InvitationStatusUsed, rows[0].Status)

	_, err = s.Invitations.UpdateWhere(ctx, nil, used)
	assert.Error(t, err)
}
