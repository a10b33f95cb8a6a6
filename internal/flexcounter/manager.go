// Package flexcounter 计数器轮询引擎。
// 对象注册到具名的组中，每个启用的组按自己的周期轮询，
// 自动选择批量或逐对象读取，并将结果写入计数器表。
package flexcounter

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/counter-agent/internal/device"
	"github.com/counter-agent/internal/idmap"
	"github.com/counter-agent/internal/plugin"
	"github.com/counter-agent/internal/table"
	"github.com/counter-agent/pkg/logger"
	"github.com/counter-agent/pkg/metrics"
)

var ErrClosed = errors.New("flexcounter: manager shut down")

// Options Manager 的依赖项，Plugins、Clock、Metrics 可为空
type Options struct {
	Device   device.Device
	Table    table.Table
	Resolver idmap.Resolver
	Plugins  plugin.Runner
	Clock    clockwork.Clock
	Metrics  *metrics.PollerMetrics
}

// Manager 管理一个设备连接下的全部组，以及它们共享的能力缓存
type Manager struct {
	dev      device.Device
	table    table.Table
	resolver idmap.Resolver
	plugins  *plugin.Dispatcher
	clock    clockwork.Clock
	metrics  *metrics.PollerMetrics
	caps     *CapabilityCache

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	groups map[string]*Group
	closed bool
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		dev:      opts.Device,
		table:    opts.Table,
		resolver: opts.Resolver,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		caps:     NewCapabilityCache(opts.Device),
		groups:   make(map[string]*Group),
	}
	if m.clock == nil {
		m.clock = clockwork.NewRealClock()
	}
	if m.metrics == nil {
		reg := metrics.NewPromRegistry(prometheus.NewRegistry())
		m.metrics = metrics.NewMetricFactory(reg).NewPollerMetrics()
	}
	if opts.Plugins != nil {
		m.plugins = plugin.NewDispatcher("flex-counter-plugins", opts.Plugins)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

func (m *Manager) Capabilities() *CapabilityCache { return m.caps }

// Group 返回指定名称的组，首次使用时创建，Shutdown 之后返回 nil
func (m *Manager) Group(name string) *Group {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	g, ok := m.groups[name]
	if !ok {
		g = newGroup(name, m)
		m.groups[name] = g
		logger.Debug("group created", name)
	}
	return g
}

func (m *Manager) lookup(name string) *Group {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.groups[name]
}

// withGroup 在指定组上执行 fn，若组在查找与执行之间被回收则重建一次
func (m *Manager) withGroup(name string, fn func(g *Group) error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		g := m.Group(name)
		if g == nil {
			return ErrClosed
		}
		err = fn(g)
		m.prune(g)
		if !errors.Is(err, ErrGroupRemoved) {
			return err
		}
	}
	return err
}

// prune 回收已无对象、配置和插件的组，它与下次引用时新建的组没有区别
func (m *Manager) prune(g *Group) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.groups[g.name] != g {
		return
	}
	g.mu.Lock()
	idle := !g.removed && g.idleLocked()
	if idle {
		g.removed = true
		g.scheduleLocked()
	}
	g.mu.Unlock()
	if !idle {
		return
	}
	delete(m.groups, g.name)
	m.metrics.Objects.DeleteLabelValues(g.name)
	logger.Debug("group pruned", g.name)
}

func (m *Manager) AddCounter(ctx context.Context, group string, vid, rid device.ObjectID, fvs []FieldValue) error {
	return m.withGroup(group, func(g *Group) error {
		return g.AddCounter(ctx, vid, rid, fvs)
	})
}

// RemoveCounter 组不存在时不做任何操作
func (m *Manager) RemoveCounter(ctx context.Context, group string, vid device.ObjectID) {
	if g := m.lookup(group); g != nil {
		g.RemoveCounter(ctx, vid)
		m.prune(g)
	}
}

// AddGroupPlugin 应用组配置和插件列表
func (m *Manager) AddGroupPlugin(group string, fvs []FieldValue) error {
	return m.withGroup(group, func(g *Group) error {
		return g.Configure(fvs)
	})
}

func (m *Manager) RemoveGroupPlugins(group string) {
	if g := m.lookup(group); g != nil {
		g.RemovePlugins()
		m.prune(g)
	}
}

// RemoveGroup 停止组并删除它发布的全部内容
func (m *Manager) RemoveGroup(ctx context.Context, name string) {
	m.mu.Lock()
	g, ok := m.groups[name]
	delete(m.groups, name)
	m.mu.Unlock()
	if !ok {
		return
	}
	for _, oc := range g.stop() {
		g.retire(ctx, oc)
	}
	m.metrics.Objects.DeleteLabelValues(name)
	logger.Info("group removed", name)
}

// Groups 按名称排序返回全部组的状态
func (m *Manager) Groups() []GroupStatus {
	m.mu.Lock()
	list := make([]*Group, 0, len(m.groups))
	for _, g := range m.groups {
		list = append(list, g)
	}
	m.mu.Unlock()

	out := make([]GroupStatus, len(list))
	for i, g := range list {
		out[i] = g.Status()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Closed 是否已执行 Shutdown
func (m *Manager) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Shutdown 取消全部组任务，不等待进行中的 tick，已发布的行保留
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	groups := m.groups
	m.groups = make(map[string]*Group)
	m.mu.Unlock()

	for _, g := range groups {
		g.stop()
	}
	m.cancel()
	logger.Info("flex counter manager stopped", "", zap.Int("groups", len(groups)))
}
