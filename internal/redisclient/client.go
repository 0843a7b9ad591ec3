// Package redisclient builds the shared Redis client used for session
// denylisting and OAuth state.
package redisclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ncecere/insights_dashboard/internal/config"
)

// New builds a client from cfg. The URL may be a redis:// URL or a bare address.
func New(cfg config.RedisConfig) *redis.Client {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		opts = &redis.Options{Addr: cfg.URL}
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	client := redis.NewClient(opts)
	client.AddHook(maintNotificationsFilter{})
	return client
}

// Connect builds a client and verifies it answers.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("redis url is empty")
	}
	client := New(cfg)
	if err := Ping(ctx, client); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func Ping(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// maintNotificationsFilter drops the CLIENT MAINT_NOTIFICATIONS handshake,
// which servers older than 8.2 and miniredis reject.
type maintNotificationsFilter struct{}

func isMaintNotifications(cmd redis.Cmder) bool {
	args := cmd.Args()
	if !strings.EqualFold(cmd.FullName(), "client") || len(args) < 2 {
		return false
	}
	sub, ok := args[1].(string)
	return ok && strings.EqualFold(sub, "maint_notifications")
}

func (maintNotificationsFilter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (maintNotificationsFilter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if isMaintNotifications(cmd) {
			return nil
		}
		return next(ctx, cmd)
	}
}

func (maintNotificationsFilter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		kept := cmds[:0]
		for _, cmd := range cmds {
			if !isMaintNotifications(cmd) {
				kept = append(kept, cmd)
			}
		}
		return next(ctx, kept)
	}
}
