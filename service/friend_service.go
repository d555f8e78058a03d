package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dinq_federation/encryption"
	"dinq_federation/event"
	"dinq_federation/model"
	"dinq_federation/store"
	"dinq_federation/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// friend-update 的特殊状态
const (
	UpdateStatusDelete = "delete"
	UpdateStatusBlock  = "block"
)

// ChannelConnector 打开/关闭与好友的活动通道
type ChannelConnector interface {
	Connect(ctx context.Context, user model.User, friend model.Friend) error
	Disconnect(user model.User, friend model.Friend)
}

// Endpoints 本服务器的对外地址
type Endpoints struct {
	PublicHost string
	APIPrefix  string
}

// Of 用户的对外 endpoint
func (e Endpoints) Of(username string) string {
	return e.PublicHost + strings.TrimRight(e.APIPrefix, "/") + "/" + username
}

// FriendService 好友关系状态机
type FriendService struct {
	store       *store.Store
	peers       PeerClient
	keys        encryption.KeyPairProvider
	bus         *event.Bus
	blocks      *RelationshipService
	invitations *InvitationService
	users       *UserService
	endpoints   Endpoints
	log         *zap.Logger

	connectOnAccept bool
	connector       ChannelConnector
}

func NewFriendService(
	s *store.Store,
	peers PeerClient,
	keys encryption.KeyPairProvider,
	bus *event.Bus,
	endpoints Endpoints,
	log *zap.Logger,
) *FriendService {
	return &FriendService{
		store:       s,
		peers:       peers,
		keys:        keys,
		bus:         bus,
		blocks:      NewRelationshipService(s),
		invitations: NewInvitationService(s),
		users:       NewUserService(s),
		endpoints:   endpoints,
		log:         log,
	}
}

// SetConnector 设置活动通道连接器（用于依赖注入）
func (s *FriendService) SetConnector(connector ChannelConnector, connectOnAccept bool) {
	s.connector = connector
	s.connectOnAccept = connectOnAccept
}

// Endpoint 本地用户的对外 endpoint
func (s *FriendService) Endpoint(username string) string {
	return s.endpoints.Of(username)
}

// GetFriends 用户的全部关系
func (s *FriendService) GetFriends(ctx context.Context, userID uuid.UUID) ([]model.Friend, error) {
	friends, err := s.store.Friends.GetInstances(ctx, store.Query{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to query friends: %w", err)
	}
	return friends, nil
}

// FindFriend 按 endpoint 查找唯一关系
func (s *FriendService) FindFriend(ctx context.Context, userID uuid.UUID, endpoint string) (*model.Friend, error) {
	return s.findOne(ctx, store.Query{"user_id": userID, "remote_end_point": endpoint})
}

func (s *FriendService) findOne(ctx context.Context, q store.Query) (*model.Friend, error) {
	friends, err := s.store.Friends.GetInstances(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query friend: %w", err)
	}
	if len(friends) != 1 {
		return nil, ErrFriendNotFound
	}
	return &friends[0], nil
}

// checkBlocked 已屏蔽的 endpoint 不能建立关系
func (s *FriendService) checkBlocked(user *model.User, endpoint string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		blocked, err := s.blocks.IsBlocked(ctx, user.ID, endpoint)
		if err != nil {
			return err
		}
		if blocked {
			return ErrBlocked
		}
		return nil
	}
}

func (s *FriendService) checkDuplicate(user *model.User, endpoint string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		existing, err := s.store.Friends.GetInstances(ctx, store.Query{"user_id": user.ID, "remote_end_point": endpoint})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return ErrDuplicateFriend
		}
		return nil
	}
}

func (s *FriendService) newPending(user *model.User, endpoint string, originator bool) *model.Friend {
	return &model.Friend{
		UserID:            user.ID,
		Status:            model.FriendStatusPending,
		Originator:        originator,
		RemoteEndPoint:    endpoint,
		RemoteHost:        utils.EndpointHost(endpoint),
		LocalAccessToken:  uuid.NewString(),
		LocalRequestToken: uuid.NewString(),
		Audiences:         model.Audiences{model.AudiencePublic},
		HighWater:         model.HighWater{},
		Hash:              utils.EndpointHash(endpoint),
	}
}

func (s *FriendService) deleteRow(friend *model.Friend) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return s.store.Friends.DeleteInstance(ctx, friend.ID)
	}
}

// applyExchange 写入对端凭证
func (s *FriendService) applyExchange(ctx context.Context, friend *model.Friend, res *ExchangeResult) error {
	unique, err := s.uniqueRemoteUsername(ctx, friend.UserID, res.Username)
	if err != nil {
		return err
	}
	friend.RemoteAccessToken = res.AccessToken
	friend.RemotePublicKey = res.PublicKey
	friend.RemoteName = res.Name
	friend.RemoteUsername = res.Username
	friend.UniqueRemoteUsername = unique
	friend.IsCommunity = res.Community
	return nil
}

// uniqueRemoteUsername 同名好友追加序号
func (s *FriendService) uniqueRemoteUsername(ctx context.Context, userID uuid.UUID, username string) (string, error) {
	same, err := s.store.Friends.GetInstances(ctx, store.Query{"user_id": userID, "remote_username": username})
	if err != nil {
		return "", err
	}
	if len(same) == 0 {
		return username, nil
	}
	return fmt.Sprintf("%s-%d", username, len(same)), nil
}

// RequestFriend 发起好友请求
func (s *FriendService) RequestFriend(ctx context.Context, user *model.User, endpoint, inviteToken string) (*model.Friend, error) {
	if !utils.ValidEndpoint(endpoint) {
		return nil, invalid("malformed endpoint %q", endpoint)
	}
	if endpoint == s.endpoints.Of(user.Username) {
		return nil, ErrSelfFriend
	}

	var friend *model.Friend
	var peerRequestToken string
	var exchanged *ExchangeResult
	myEndpoint := s.endpoints.Of(user.Username)

	err := newPipeline("request-friend", s.log).
		Step("check-blocked", s.checkBlocked(user, endpoint)).
		Step("check-duplicate", s.checkDuplicate(user, endpoint)).
		Step("generate-keypair", func(ctx context.Context) error {
			kp, err := s.keys.NewKeyPair()
			if err != nil {
				return err
			}
			friend = s.newPending(user, endpoint, true)
			friend.KeyPair = kp
			if inviteToken != "" {
				friend.InviteToken = &inviteToken
			}
			return nil
		}).
		StepWithUndo("create-pending",
			func(ctx context.Context) error { return s.store.Friends.NewInstance(ctx, friend) },
			func(ctx context.Context) error { return s.deleteRow(friend)(ctx) }).
		Step("send-friend-request", func(ctx context.Context) error {
			var err error
			peerRequestToken, err = s.peers.SendFriendRequest(ctx, endpoint, myEndpoint, friend.LocalRequestToken, inviteToken)
			return err
		}).
		Step("exchange-token", func(ctx context.Context) error {
			var err error
			exchanged, err = s.peers.ExchangeToken(ctx, endpoint, myEndpoint, peerRequestToken)
			return err
		}).
		Step("save-token", func(ctx context.Context) error {
			if err := s.applyExchange(ctx, friend, exchanged); err != nil {
				return err
			}
			friend.RemoteRequestToken = peerRequestToken
			if exchanged.Status == model.FriendStatusAccepted {
				// 对端持有我们的邀请，直接成为好友
				friend.Status = model.FriendStatusAccepted
				friend.Audiences = model.Audiences{model.AudiencePublic, model.AudienceFriends}
			}
			return s.store.Friends.UpdateInstance(ctx, friend)
		}).
		Run(ctx)
	if err != nil {
		return nil, err
	}

	if friend.IsAccepted() {
		s.bus.EmitFriend(ctx, event.NewFriend, *user, *friend)
		s.maybeConnect(*user, *friend)
	}
	return friend, nil
}

// ReceiveFriendRequest 对端投递的好友请求，返回本地 requestToken
func (s *FriendService) ReceiveFriendRequest(ctx context.Context, username, remoteEndPoint, requestToken, inviteToken string) (string, error) {
	if !utils.ValidEndpoint(remoteEndPoint) {
		return "", invalid("malformed endpoint %q", remoteEndPoint)
	}
	if requestToken == "" {
		return "", invalid("missing requestToken")
	}
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if remoteEndPoint == s.endpoints.Of(user.Username) {
		return "", ErrSelfFriend
	}

	var friend *model.Friend
	var invitation *model.Invitation
	var exchanged *ExchangeResult

	err = newPipeline("receive-friend-request", s.log).
		Step("check-blocked", s.checkBlocked(user, remoteEndPoint)).
		Step("check-duplicate", s.checkDuplicate(user, remoteEndPoint)).
		Step("generate-keypair", func(ctx context.Context) error {
			kp, err := s.keys.NewKeyPair()
			if err != nil {
				return err
			}
			friend = s.newPending(user, remoteEndPoint, false)
			friend.KeyPair = kp
			friend.RemoteRequestToken = requestToken
			return nil
		}).
		StepWithUndo("claim-invite",
			func(ctx context.Context) error {
				if inviteToken == "" {
					return nil
				}
				inv, err := s.invitations.Claim(ctx, user.ID, inviteToken)
				if errors.Is(err, ErrInvitationNotFound) {
					// 无效或已被兑换的邀请按普通请求处理
					s.log.Info("ignoring unusable invite token", zap.String("user", username), zap.String("endpoint", remoteEndPoint))
					return nil
				}
				if err != nil {
					return err
				}
				invitation = inv
				friend.InviteToken = &inviteToken
				friend.Status = model.FriendStatusAccepted
				friend.Audiences = model.Audiences{model.AudiencePublic, model.AudienceFriends}
				return nil
			},
			func(ctx context.Context) error {
				if invitation == nil {
					return nil
				}
				return s.invitations.Release(ctx, invitation)
			}).
		StepWithUndo("create-pending",
			func(ctx context.Context) error { return s.store.Friends.NewInstance(ctx, friend) },
			func(ctx context.Context) error { return s.deleteRow(friend)(ctx) }).
		Step("exchange-token", func(ctx context.Context) error {
			var err error
			exchanged, err = s.peers.ExchangeToken(ctx, remoteEndPoint, s.endpoints.Of(user.Username), requestToken)
			return err
		}).
		Step("save-token", func(ctx context.Context) error {
			if err := s.applyExchange(ctx, friend, exchanged); err != nil {
				return err
			}
			return s.store.Friends.UpdateInstance(ctx, friend)
		}).
		Run(ctx)
	if err != nil {
		return "", err
	}

	if friend.IsAccepted() {
		s.bus.EmitFriend(ctx, event.NewFriend, *user, *friend)
	} else {
		s.bus.EmitFriend(ctx, event.NewFriendRequest, *user, *friend)
	}
	return friend.LocalRequestToken, nil
}

// ExchangeToken 对端凭 requestToken 取回我们的 accessToken 与公钥
func (s *FriendService) ExchangeToken(ctx context.Context, username, endpoint, requestToken string) (*ExchangeResult, error) {
	if endpoint == "" || requestToken == "" {
		return nil, invalid("missing endpoint or requestToken")
	}
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	friend, err := s.findOne(ctx, store.Query{
		"user_id":             user.ID,
		"local_request_token": requestToken,
		"remote_end_point":    endpoint,
	})
	if err != nil {
		return nil, err
	}
	return &ExchangeResult{
		Status:      friend.Status,
		AccessToken: friend.LocalAccessToken,
		PublicKey:   friend.KeyPair.Public,
		Name:        user.DisplayName,
		Username:    user.Username,
		Community:   user.IsCommunity,
	}, nil
}

// Accept 接受好友请求：先通知对端，成功后再修改本地
func (s *FriendService) Accept(ctx context.Context, user *model.User, endpoint string) (*model.Friend, error) {
	if !utils.ValidEndpoint(endpoint) {
		return nil, invalid("malformed endpoint %q", endpoint)
	}
	friend, err := s.findOne(ctx, store.Query{
		"user_id":          user.ID,
		"remote_end_point": endpoint,
		"status":           model.FriendStatusPending,
	})
	if err != nil {
		return nil, err
	}

	err = newPipeline("friend-request-accept", s.log).
		Step("webhook", func(ctx context.Context) error {
			return s.peers.CallWebhook(ctx, friend.RemoteEndPoint, friend.RemoteAccessToken, ActionFriendAccepted)
		}).
		Step("save", func(ctx context.Context) error {
			friend.Status = model.FriendStatusAccepted
			friend.Audiences = friend.Audiences.With(model.AudienceFriends)
			return s.store.Friends.UpdateInstance(ctx, friend, "status", "audiences")
		}).
		Run(ctx)
	if err != nil {
		return nil, err
	}

	s.bus.EmitFriend(ctx, event.NewFriend, *user, *friend)
	s.maybeConnect(*user, *friend)
	return friend, nil
}

// Decline 拒绝好友请求
func (s *FriendService) Decline(ctx context.Context, user *model.User, endpoint string) error {
	return s.removeWithWebhook(ctx, "friend-request-decline", user, endpoint, ActionFriendDeclined)
}

// Cancel 撤回自己发出的好友请求
func (s *FriendService) Cancel(ctx context.Context, user *model.User, endpoint string) error {
	return s.removeWithWebhook(ctx, "request-friend-cancel", user, endpoint, ActionFriendCancel)
}

func (s *FriendService) removeWithWebhook(ctx context.Context, op string, user *model.User, endpoint, action string) error {
	if !utils.ValidEndpoint(endpoint) {
		return invalid("malformed endpoint %q", endpoint)
	}
	friend, err := s.FindFriend(ctx, user.ID, endpoint)
	if err != nil {
		return err
	}
	err = newPipeline(op, s.log).
		Step("webhook", func(ctx context.Context) error {
			return s.peers.CallWebhook(ctx, friend.RemoteEndPoint, friend.RemoteAccessToken, action)
		}).
		Step("delete", s.deleteRow(friend)).
		Run(ctx)
	if err != nil {
		return err
	}
	s.bus.EmitFriend(ctx, event.FriendDeleted, *user, *friend)
	return nil
}

// Update 修改可见范围，或删除/屏蔽好友
func (s *FriendService) Update(ctx context.Context, user *model.User, endpoint, status string, audiences []string) (*model.Friend, error) {
	if !utils.ValidEndpoint(endpoint) {
		return nil, invalid("malformed endpoint %q", endpoint)
	}
	friend, err := s.FindFriend(ctx, user.ID, endpoint)
	if err != nil {
		return nil, err
	}

	switch status {
	case UpdateStatusDelete, UpdateStatusBlock:
		err = newPipeline("friend-"+status, s.log).
			Step("webhook", func(ctx context.Context) error {
				return s.peers.CallWebhook(ctx, friend.RemoteEndPoint, friend.RemoteAccessToken, ActionFriendDelete)
			}).
			Step("block", func(ctx context.Context) error {
				if status != UpdateStatusBlock {
					return nil
				}
				_, err := s.blocks.BlockEndpoint(ctx, user.ID, endpoint)
				if errors.Is(err, ErrAlreadyBlocked) {
					return nil
				}
				return err
			}).
			Step("disconnect", func(ctx context.Context) error {
				s.disconnect(*user, *friend)
				return nil
			}).
			Step("delete", s.deleteRow(friend)).
			Run(ctx)
		if err != nil {
			return nil, err
		}
		s.bus.EmitFriend(ctx, event.FriendDeleted, *user, *friend)
		return friend, nil

	case "":
		next := model.Audiences{}
		for _, a := range audiences {
			if !model.ValidAudience(a) {
				return nil, invalid("unknown audience %q", a)
			}
			next = next.With(a)
		}
		err = newPipeline("friend-update", s.log).
			Step("webhook", func(ctx context.Context) error {
				return s.peers.CallWebhook(ctx, friend.RemoteEndPoint, friend.RemoteAccessToken, ActionFriendUpdate)
			}).
			Step("save", func(ctx context.Context) error {
				friend.Audiences = next
				return s.store.Friends.UpdateInstance(ctx, friend, "audiences")
			}).
			Run(ctx)
		if err != nil {
			return nil, err
		}
		s.bus.EmitFriend(ctx, event.FriendUpdated, *user, *friend)
		return friend, nil

	default:
		return nil, invalid("unknown status %q", status)
	}
}

// Block 屏蔽 endpoint；已有关系时走删除流程并通知对端
func (s *FriendService) Block(ctx context.Context, user *model.User, endpoint string) error {
	if !utils.ValidEndpoint(endpoint) {
		return invalid("malformed endpoint %q", endpoint)
	}
	_, err := s.FindFriend(ctx, user.ID, endpoint)
	switch {
	case err == nil:
		_, err = s.Update(ctx, user, endpoint, UpdateStatusBlock, nil)
		return err
	case errors.Is(err, ErrFriendNotFound):
		_, err = s.blocks.BlockEndpoint(ctx, user.ID, endpoint)
		return err
	default:
		return err
	}
}

// HandleWebhook 对端通知的状态同步
func (s *FriendService) HandleWebhook(ctx context.Context, username, accessToken, action string) error {
	if accessToken == "" {
		return invalid("missing accessToken")
	}
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	friend, err := s.findOne(ctx, store.Query{"user_id": user.ID, "local_access_token": accessToken})
	if err != nil {
		return err
	}

	switch action {
	case ActionFriendAccepted:
		friend.Status = model.FriendStatusAccepted
		friend.Audiences = friend.Audiences.With(model.AudienceFriends)
		if err := s.store.Friends.UpdateInstance(ctx, friend, "status", "audiences"); err != nil {
			return &OpError{Op: "friend-webhook", Step: "save", Err: err}
		}
		s.bus.EmitFriend(ctx, event.NewFriend, *user, *friend)
		s.maybeConnect(*user, *friend)

	case ActionFriendUpdate:
		s.bus.EmitFriend(ctx, event.FriendUpdated, *user, *friend)

	case ActionFriendDeclined, ActionFriendCancel, ActionFriendDelete:
		s.disconnect(*user, *friend)
		if err := s.store.Friends.DeleteInstance(ctx, friend.ID); err != nil {
			return &OpError{Op: "friend-webhook", Step: "delete", Err: err}
		}
		s.bus.EmitFriend(ctx, event.FriendDeleted, *user, *friend)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return nil
}

// SetFriendOnline 更新好友在线标记
func (s *FriendService) SetFriendOnline(ctx context.Context, friend *model.Friend, online bool) error {
	friend.Online = online
	return s.store.Friends.UpdateInstance(ctx, friend, "online")
}

// SaveHighWater 保存应用游标（只前进不后退），返回游标是否前进
func (s *FriendService) SaveHighWater(ctx context.Context, friendID uuid.UUID, appID string, cursor int64) (bool, error) {
	friend, err := s.findOne(ctx, store.Query{"id": friendID})
	if err != nil {
		return false, err
	}
	if friend.HighWater == nil {
		friend.HighWater = model.HighWater{}
	}
	if friend.HighWater[appID] >= cursor {
		return false, nil
	}
	friend.HighWater[appID] = cursor
	if err := s.store.Friends.UpdateInstance(ctx, friend, "high_water"); err != nil {
		return false, err
	}
	return true, nil
}

// maybeConnect 发起方在关系被接受后主动连接对端
func (s *FriendService) maybeConnect(user model.User, friend model.Friend) {
	if !s.connectOnAccept || s.connector == nil || !friend.Originator || !friend.IsAccepted() {
		return
	}
	go func() {
		// 对端可能还未提交 accepted 状态，短暂重试
		for attempt := 1; attempt <= 3; attempt++ {
			time.Sleep(time.Duration(attempt) * 250 * time.Millisecond)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := s.connector.Connect(ctx, user, friend)
			cancel()
			if err == nil {
				return
			}
			s.log.Warn("connect on accept failed",
				zap.String("user", user.Username),
				zap.String("endpoint", friend.RemoteEndPoint),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
	}()
}

func (s *FriendService) disconnect(user model.User, friend model.Friend) {
	if s.connector != nil {
		s.connector.Disconnect(user, friend)
	}
}
