package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"dinq_federation/model"
	"dinq_federation/store"

	"github.com/google/uuid"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,79}$`)

type UserService struct {
	store *store.Store
}

func NewUserService(s *store.Store) *UserService {
	return &UserService{store: s}
}

// CreateUser 创建本地用户（注册流程不在本服务内，此处仅供运维和测试）
func (s *UserService) CreateUser(ctx context.Context, username, displayName string, community bool) (*model.User, error) {
	if !usernamePattern.MatchString(username) {
		return nil, invalid("bad username %q", username)
	}
	user := &model.User{Username: username, DisplayName: displayName, IsCommunity: community}
	if err := s.store.Users.NewInstance(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, invalid("username %q taken", username)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetByUsername 按用户名查询
func (s *UserService) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.findOne(ctx, store.Query{"username": username})
}

// GetByID 按 ID 查询
func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.findOne(ctx, store.Query{"id": id})
}

func (s *UserService) findOne(ctx context.Context, q store.Query) (*model.User, error) {
	users, err := s.store.Users.GetInstances(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	if len(users) != 1 {
		return nil, ErrUserNotFound
	}
	return &users[0], nil
}

// SetOnline 更新在线标记
func (s *UserService) SetOnline(ctx context.Context, user *model.User, online bool) error {
	user.Online = online
	return s.store.Users.UpdateInstance(ctx, user, "online")
}
