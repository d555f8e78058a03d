// Package app 组装一个联邦服务实例：存储、服务、通道与路由
package app

import (
	"dinq_federation/config"
	"dinq_federation/encryption"
	"dinq_federation/event"
	"dinq_federation/handler"
	"dinq_federation/middleware"
	"dinq_federation/service"
	"dinq_federation/store"
	"dinq_federation/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// App 一个联邦服务实例，连接表和事件总线都归它所有
type App struct {
	Config *config.Config
	Log    *zap.Logger
	Store  *store.Store
	Redis  *redis.Client

	Bus      *event.Bus
	Registry *handler.Registry
	Auth     *middleware.Auth

	Users         *service.UserService
	Friends       *service.FriendService
	Relationships *service.RelationshipService
	Invitations   *service.InvitationService
	Notifications *service.NotificationService
	Activities    *service.ActivityLogService

	ActivityChannels *handler.ActivityChannels
	NotificationHub  *handler.NotificationHub
}

// New 组装依赖；rdb 可为 nil（单实例）
func New(cfg *config.Config, st *store.Store, rdb *redis.Client, log *zap.Logger) *App {
	a := &App{
		Config:   cfg,
		Log:      log,
		Store:    st,
		Redis:    rdb,
		Bus:      event.NewBus(log),
		Registry: handler.NewRegistry(),
		Auth:     middleware.NewAuth(cfg.JWTSecret),
	}

	codec := encryption.NewBox()

	var rewrite func(string) string
	if cfg.BehindProxy {
		rewrite = service.ProxyRewrite(cfg.PublicHost, cfg.Port)
	}
	peers := service.NewHTTPPeerClient(cfg.PeerTimeout, rewrite)

	a.Users = service.NewUserService(st)
	a.Relationships = service.NewRelationshipService(st)
	a.Invitations = service.NewInvitationService(st)
	a.Friends = service.NewFriendService(st, peers, codec, a.Bus, service.Endpoints{
		PublicHost: cfg.PublicHost,
		APIPrefix:  cfg.APIPrefix,
	}, log)
	a.Notifications = service.NewNotificationService(st, a.Bus, log)
	a.Activities = service.NewActivityLogService(st, a.Bus, a.Friends, a.Notifications, log)

	chAuth := service.NewChannelAuthenticator(st, a.Auth)
	a.ActivityChannels = handler.NewActivityChannels(a.Registry, a.Bus, codec, chAuth, a.Friends, handler.ActivityOptions{
		AuthTimeout: cfg.AuthTimeout,
		Lookback:    cfg.BackfillLookback,
		Rewrite:     rewrite,
		APIPrefix:   cfg.APIPrefix,
	}, log)
	a.NotificationHub = handler.NewNotificationHub(a.Registry, a.Bus, chAuth, a.Users, rdb, cfg.AllowedOrigins, log)

	// 依赖注入
	a.Friends.SetConnector(a.ActivityChannels, cfg.ConnectOnAccept)
	a.Notifications.SetPusher(a.NotificationHub)
	a.Activities.SetEmitterLookup(a.Registry)

	a.NotificationHub.StartPubSub()
	return a
}

// Router 注册全部路由
func (a *App) Router() *gin.Engine {
	r := gin.New()
	r.Use(middleware.TraceID(), middleware.Logger(a.Log), middleware.ErrorHandler(a.Log))

	friendHandler := handler.NewFriendHandler(a.Friends, a.Users)
	relHandler := handler.NewRelationshipHandler(a.Relationships, a.Friends, a.Users)
	invHandler := handler.NewInvitationHandler(a.Invitations, a.Users)
	postHandler := handler.NewPostHandler(a.Activities, a.Users)
	notifHandler := handler.NewNotificationHandler(a.Notifications, a.Users)

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		utils.SuccessResponse(c, gin.H{"activity_channels": a.Registry.ActivityCount()})
	})

	prefix := a.Config.APIPrefix

	// 通道（握手内认证，不经过 HTTP 认证中间件）
	r.GET(prefix+"-activity", a.ActivityChannels.ServeWS)
	r.GET(prefix+"-notifications", a.NotificationHub.ServeWS)

	// 对端服务器调用的接口（限流）
	peer := r.Group(prefix + "/:username")
	peer.Use(middleware.RateLimit(rate.Limit(a.Config.RateLimitRPS), a.Config.RateLimitBurst))
	{
		peer.POST("/friend-request", friendHandler.FriendRequest)
		peer.POST("/exchange-token", friendHandler.ExchangeToken)
		peer.POST("/friend-webhook", friendHandler.Webhook)
	}

	// 本地用户接口（需要认证）
	user := r.Group(prefix + "/:username")
	user.Use(a.Auth.RequireUser())
	{
		user.GET("/request-friend", friendHandler.RequestFriend)
		user.POST("/friend-request-accept", friendHandler.Accept)
		user.POST("/friend-request-decline", friendHandler.Decline)
		user.POST("/request-friend-cancel", friendHandler.Cancel)
		user.POST("/friend-update", friendHandler.Update)
		user.GET("/friends", friendHandler.GetFriends)

		user.POST("/block", relHandler.Block)
		user.POST("/unblock", relHandler.Unblock)
		user.GET("/blocks", relHandler.GetBlocks)

		user.POST("/invitations", invHandler.CreateInvitation)
		user.GET("/invitations", invHandler.GetInvitations)

		user.POST("/posts", postHandler.CreatePost)
		user.GET("/notifications", notifHandler.GetNotifications)
	}

	return r
}

// Shutdown 关闭通道与订阅
func (a *App) Shutdown() {
	a.NotificationHub.StopPubSub()
	a.Registry.CloseAll()
}
