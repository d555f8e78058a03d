package service

import (
	"context"

	"dinq_federation/model"
	"dinq_federation/store"

	"github.com/google/uuid"
)

// TokenValidator 校验本地会话凭证
type TokenValidator interface {
	ValidateToken(token string) (uuid.UUID, error)
}

// ChannelAuthenticator 两种通道共用的认证逻辑
type ChannelAuthenticator struct {
	store  *store.Store
	users  *UserService
	tokens TokenValidator
}

func NewChannelAuthenticator(s *store.Store, tokens TokenValidator) *ChannelAuthenticator {
	return &ChannelAuthenticator{store: s, users: NewUserService(s), tokens: tokens}
}

// AuthenticateFriend 活动通道：username + 对端出示的 accessToken
func (a *ChannelAuthenticator) AuthenticateFriend(ctx context.Context, username, friendAccessToken string) (*model.User, *model.Friend, error) {
	if username == "" || friendAccessToken == "" {
		return nil, nil, ErrUnauthorized
	}
	user, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	friends, err := a.store.Friends.GetInstances(ctx, store.Query{"user_id": user.ID, "local_access_token": friendAccessToken})
	if err != nil {
		return nil, nil, err
	}
	if len(friends) != 1 {
		return nil, nil, ErrFriendNotFound
	}
	if !friends[0].IsAccepted() {
		return nil, nil, ErrNotAccepted
	}
	return user, &friends[0], nil
}

// AuthenticateSession 通知通道：本地会话 token
func (a *ChannelAuthenticator) AuthenticateSession(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	userID, err := a.tokens.ValidateToken(token)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return a.users.GetByID(ctx, userID)
}
