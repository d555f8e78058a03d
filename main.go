package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dinq_federation/app"
	"dinq_federation/config"
	"dinq_federation/store"
	"dinq_federation/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func init() {
	// 设置时区为 UTC（推荐服务端统一使用 UTC）
	time.Local = time.UTC
}

func main() {
	addUser := flag.String("adduser", "", "create a local user and print a session token")
	tokenTTL := flag.Duration("token-ttl", 720*time.Hour, "session token lifetime for -adduser")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required")
	}

	// 初始化数据库
	st, err := store.Open(cfg.DatabaseMode, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer st.Close()

	// 初始化 Redis
	rdb, err := utils.InitRedis(context.Background(), logger, cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
	}

	a := app.New(cfg, st, rdb, logger)
	defer a.Shutdown()

	if *addUser != "" {
		if err := createUser(a, *addUser, *tokenTTL); err != nil {
			logger.Fatal("failed to create user", zap.Error(err))
		}
		return
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: a.Router(),
	}

	go func() {
		logger.Info("federation service starting", zap.String("port", cfg.Port), zap.String("public_host", cfg.PublicHost))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
}

// createUser 运维入口：创建本地用户并签发会话 token
func createUser(a *app.App, username string, ttl time.Duration) error {
	user, err := a.Users.CreateUser(context.Background(), username, username, false)
	if err != nil {
		return err
	}
	token, err := a.Auth.IssueToken(user.ID, ttl)
	if err != nil {
		return err
	}
	fmt.Printf("endpoint: %s\ntoken: %s\n", a.Friends.Endpoint(username), token)
	return nil
}
