package database

import (
	"context"
	"fmt"
	"mcq_tutor_backend/internal/config"
	"time"

	"github.com/go-redis/redis/v8"
)

// InitRedis 连接 Redis。Redis 是可选依赖：关闭时会话历史退化为进程内存储
func InitRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return rdb, nil
}
