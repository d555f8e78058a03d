package utils

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// InitRedis 初始化 Redis 连接（url 为空时返回 nil，表示单实例部署）
func InitRedis(ctx context.Context, log *zap.Logger, url, password string, db int) (*redis.Client, error) {
	if url == "" {
		log.Info("redis disabled, running single instance")
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     url,
		Password: password,
		DB:       db,
	})

	// 测试连接
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	log.Info("redis connected", zap.String("addr", url))
	return rdb, nil
}
