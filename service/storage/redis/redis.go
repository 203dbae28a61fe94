package redis

import (
	"context"
	"time"

	"PPDirect/tools/errs"

	"github.com/redis/go-redis/v9"
)

// Config 用于初始化 Redis
type Config struct {
	Addr     string `envconfig:"ADDR"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0"`
	PoolSize int    `envconfig:"POOL_SIZE" default:"20"`
}

// Enabled reports whether an address was configured.
func (c Config) Enabled() bool { return c.Addr != "" }

// NewClient 建立连接并 ping 一次
func NewClient(ctx context.Context, c Config) (*redis.Client, error) {
	if !c.Enabled() {
		return nil, errs.ErrArgs.WrapMsg("redis addr is empty")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errs.WrapMsg(err, "redis ping", "addr", c.Addr)
	}
	return rdb, nil
}
