package registers

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/counter-agent/internal/device"
	"github.com/counter-agent/internal/device/fake"
	"github.com/counter-agent/internal/device/snmp"
	"github.com/counter-agent/internal/flexcounter"
	"github.com/counter-agent/internal/idmap"
	"github.com/counter-agent/internal/plugin"
	"github.com/counter-agent/internal/table"
	"github.com/counter-agent/pkg/config"
	"github.com/counter-agent/pkg/logger"
	"github.com/counter-agent/pkg/metrics"
)

// Runtime 启动完成后的运行时对象
type Runtime struct {
	Registry *prometheus.Registry
	Agent    *AgentImpl
	Manager  *flexcounter.Manager
	IDs      *idmap.Map
}

// InitPromRegistry 返回值
// promReg	*prometheus.Registry	Prometheus 指标注册器，可用于 HTTP endpoint 暴露 metrics 或做单元测试
// factory	*metrics.MetricFactory	包裹同一注册器的指标工厂
func InitPromRegistry(enableProcess bool) (*prometheus.Registry, *metrics.MetricFactory) {
	// 初始化Prometheus指标注册器（不注册Go指标）
	promReg := prometheus.NewRegistry()
	// 仅注册进程指标（可选）
	if enableProcess {
		promReg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	}
	return promReg, metrics.NewMetricFactory(metrics.NewPromRegistry(promReg))
}

// NewRedisClient 按配置创建计数器库客户端
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Network:     cfg.Network,
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})
}

// deviceModules 返回设备驱动及对应组件，未选中的驱动不注册
func deviceModules(cfg config.DeviceConfig) (device.Device, []Module) {
	if cfg.Driver == "snmp" {
		drv := snmp.New(snmp.Config{
			Target:    cfg.SNMP.Target,
			Port:      cfg.SNMP.Port,
			Community: cfg.SNMP.Community,
			Version:   cfg.SNMP.Version,
			Timeout:   cfg.SNMP.Timeout,
			Retries:   cfg.SNMP.Retries,
		})
		return drv, []Module{
			{Enabled: true, Name: "snmp", NewFunc: func() Component { return NewSNMPComponent(drv) }},
			{Enabled: false, Name: "sim"},
		}
	}
	return fake.New(), []Module{
		{Enabled: false, Name: "snmp"},
		{Enabled: true, Name: "sim", NewFunc: func() Component { return SimComponent{} }},
	}
}

// Bootstrap 按依赖顺序启动：指标 → Redis → 设备 → 轮询引擎 → 健康检查 → 静态组
func Bootstrap(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	const enableProcess = true
	promReg, factory := InitPromRegistry(enableProcess)

	client := NewRedisClient(cfg.Redis)
	dev, devModules := deviceModules(cfg.Device)

	ids := idmap.NewMap()
	switchVID := idmap.SwitchVID(cfg.Device.SwitchIndex)
	switchRID := device.ObjectID(cfg.Device.SwitchRID)
	if switchRID == 0 {
		switchRID = switchVID
	}
	ids.Set(switchVID, switchRID)

	scripts := plugin.NewRedis(client)
	mgr := flexcounter.NewManager(flexcounter.Options{
		Device:   dev,
		Table:    table.NewRedis(client, cfg.Redis.Table),
		Resolver: ids,
		Plugins:  scripts,
		Metrics:  factory.NewPollerMetrics(),
	})

	agent := NewRegistry(cfg.Health.Interval, nil, factory.NewHealthMetrics())
	modules := append([]Module{
		{Enabled: true, Name: "redis", NewFunc: func() Component { return NewRedisComponent(client) }},
	}, devModules...)
	modules = append(modules, Module{Enabled: true, Name: "flexcounter", NewFunc: func() Component { return NewManagerComponent(mgr) }})
	if _, err := RegisterComponents(agent, modules); err != nil {
		return nil, err
	}
	if err := agent.Start(ctx); err != nil {
		return nil, errors.Join(err, agent.CloseAll())
	}

	if err := RegisterGroups(ctx, mgr, cfg.Groups, cfg.Device.SwitchIndex, ids, scripts); err != nil {
		return nil, errors.Join(err, agent.Shutdown(ctx))
	}

	logger.Info("counter agent started", "",
		zap.String("driver", cfg.Device.Driver),
		zap.String("table", cfg.Redis.Table),
		zap.Int("groups", len(cfg.Groups)),
		zap.Duration("health_interval", cfg.Health.Interval))

	return &Runtime{Registry: promReg, Agent: agent, Manager: mgr, IDs: ids}, nil
}
