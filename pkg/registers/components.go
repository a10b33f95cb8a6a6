package registers

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/counter-agent/internal/device/snmp"
	"github.com/counter-agent/internal/flexcounter"
	"github.com/counter-agent/pkg/logger"
)

// RedisComponent 计数器数据库连接
type RedisComponent struct {
	client redis.UniversalClient
}

func NewRedisComponent(client redis.UniversalClient) *RedisComponent {
	return &RedisComponent{client: client}
}

func (c *RedisComponent) Name() string { return "redis" }

func (c *RedisComponent) Init(ctx context.Context) error { return c.Check(ctx) }

func (c *RedisComponent) Check(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *RedisComponent) Close() error { return c.client.Close() }

// SNMPComponent SNMP 设备驱动，检查时读取 sysUpTime
type SNMPComponent struct {
	driver *snmp.Driver
}

func NewSNMPComponent(driver *snmp.Driver) *SNMPComponent {
	return &SNMPComponent{driver: driver}
}

func (c *SNMPComponent) Name() string { return "snmp" }

func (c *SNMPComponent) Init(context.Context) error { return c.driver.Connect() }

func (c *SNMPComponent) Check(ctx context.Context) error {
	uptime, err := c.driver.Ping(ctx)
	if err != nil {
		return err
	}
	logger.Debug("snmp agent reachable", c.Name(), zap.Uint64("sys_uptime", uptime))
	return nil
}

func (c *SNMPComponent) Close() error { return c.driver.Close() }

// SimComponent 模拟设备，无外部连接
type SimComponent struct{}

func (SimComponent) Name() string                { return "sim" }
func (SimComponent) Init(context.Context) error  { return nil }
func (SimComponent) Check(context.Context) error { return nil }
func (SimComponent) Close() error                { return nil }

// ErrManagerClosed 轮询引擎已停止
var ErrManagerClosed = errors.New("flex counter manager is shut down")

// ManagerComponent 轮询引擎，检查时输出各组状态（debug 级别）
type ManagerComponent struct {
	mgr *flexcounter.Manager
}

func NewManagerComponent(mgr *flexcounter.Manager) *ManagerComponent {
	return &ManagerComponent{mgr: mgr}
}

func (c *ManagerComponent) Name() string { return "flexcounter" }

func (c *ManagerComponent) Init(context.Context) error { return nil }

func (c *ManagerComponent) Check(context.Context) error {
	if c.mgr.Closed() {
		return ErrManagerClosed
	}
	for _, g := range c.mgr.Groups() {
		logger.Debug("group status", g.Name,
			zap.String("state", g.State),
			zap.Int64("poll_interval_ms", g.PollIntervalMs),
			zap.Int("objects", g.Objects))
	}
	return nil
}

func (c *ManagerComponent) Close() error {
	c.mgr.Shutdown()
	return nil
}
