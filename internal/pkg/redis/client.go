// internal/pkg/redis/client.go
package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Client 封装了 go-redis 客户端以及按名称注册的 Lua 脚本。
type Client struct {
	client  *redis.Client
	scripts map[string]*redis.Script
	mu      sync.RWMutex
}

// NewClient 连接 Redis 并做一次 PING。
func NewClient(ctx context.Context, addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return Wrap(rdb), nil
}

// Wrap 复用一个已有的 go-redis 客户端（测试中指向 miniredis）。
func Wrap(rdb *redis.Client) *Client {
	return &Client{client: rdb, scripts: make(map[string]*redis.Script)}
}

// LoadScriptFromContent 注册脚本并预先加载到服务端脚本缓存。
func (c *Client) LoadScriptFromContent(ctx context.Context, name, content string) error {
	script := redis.NewScript(content)
	if err := script.Load(ctx, c.client).Err(); err != nil {
		return fmt.Errorf("failed to load lua script %q: %w", name, err)
	}
	c.mu.Lock()
	c.scripts[name] = script
	c.mu.Unlock()
	return nil
}

// RunScript 执行已注册的脚本，服务端缓存丢失时自动回退为 EVAL。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("lua script %q is not loaded", name)
	}
	return script.Run(ctx, c.client, keys, args...).Result()
}

func (c *Client) GetClient() *redis.Client {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}
