package flexcounter

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/counter-agent/internal/device"
	"github.com/counter-agent/internal/plugin"
	"github.com/counter-agent/pkg/logger"
)

// scheduleLocked 启动、重启或停止组的轮询任务，
// 仅当组已启用、设置了周期且有对象时运行。停止时不等待进行中的 tick。
func (g *Group) scheduleLocked() {
	count := g.objectCountLocked()
	g.m.metrics.Objects.WithLabelValues(g.name).Set(float64(count))
	if count > 0 {
		g.populated = true
	}

	want := !g.removed && g.enabled && g.interval > 0 && !g.emptyLocked()
	if !want {
		if g.cancel != nil {
			g.cancel()
			g.cancel = nil
			g.running = 0
			logger.Info("polling stopped", g.name, zap.String("state", g.stateLocked().String()))
		}
		return
	}
	if g.cancel != nil && g.running == g.interval {
		return
	}
	if g.cancel != nil {
		g.cancel()
	}
	ctx, cancel := context.WithCancel(g.m.ctx)
	g.cancel = cancel
	g.running = g.interval
	go g.run(ctx, g.interval)
}

// run 每个周期执行一次 tick，直到 ctx 取消。首次 tick 在启动后一个完整周期触发。
func (g *Group) run(ctx context.Context, interval time.Duration) {
	ticker := g.m.clock.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("polling started", g.name, zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !g.scheduledTick(ctx) {
				return
			}
		}
	}
}

// scheduledTick 为持有 ctx 的任务执行一次 tick。
// 排在慢 tick 之后的 tick，若期间任务已取消则直接丢弃。
func (g *Group) scheduledTick(ctx context.Context) bool {
	g.tickMu.Lock()
	defer g.tickMu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	// 已开始的 tick 不受取消影响，设备调用照常完成
	g.tickLocked(context.WithoutCancel(ctx))
	return true
}

type kindObjects struct {
	kind    *kindSpec
	objects []*objectContext
}

type pluginSet struct {
	field string
	shas  []string
}

type tickSnapshot struct {
	interval time.Duration
	mode     device.StatsMode
	kinds    []kindObjects
	plugins  []pluginSet
}

// snapshot 复制一次 tick 所需的数据，无可轮询内容时 ok 为 false
func (g *Group) snapshot() (tickSnapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.removed || g.emptyLocked() {
		return tickSnapshot{}, false
	}
	snap := tickSnapshot{interval: g.interval, mode: g.mode}
	for i := range kinds {
		col := g.collectors[kinds[i].field]
		if col == nil || len(col.objects) == 0 {
			continue
		}
		snap.kinds = append(snap.kinds, kindObjects{kind: &kinds[i], objects: col.list()})
	}
	for _, field := range pluginFields {
		if shas := g.plugins[field]; len(shas) > 0 {
			snap.plugins = append(snap.plugins, pluginSet{field: field, shas: append([]string(nil), shas...)})
		}
	}
	return snap, true
}

// tick 轮询全部已注册对象一次，然后执行插件
func (g *Group) tick(ctx context.Context) {
	g.tickMu.Lock()
	defer g.tickMu.Unlock()
	g.tickLocked(ctx)
}

func (g *Group) tickLocked(ctx context.Context) {
	snap, ok := g.snapshot()
	if !ok {
		return
	}
	start := g.m.clock.Now()
	for _, ko := range snap.kinds {
		if ko.kind.attribute {
			g.collectAttributes(ctx, ko.kind, ko.objects)
			continue
		}
		g.collectCounters(ctx, ko.kind, ko.objects, snap.mode)
	}
	g.runPlugins(ctx, snap)

	elapsed := g.m.clock.Since(start)
	g.m.metrics.Ticks.WithLabelValues(g.name).Inc()
	g.m.metrics.TickDuration.WithLabelValues(g.name).Observe(elapsed.Seconds())
	if logger.Enabled(zap.DebugLevel) {
		logger.Debug("tick done", g.name, zap.Int("kinds", len(snap.kinds)), zap.Duration("elapsed", elapsed))
	}
}

// runPlugins 以插件对应类型的对象 key 调用每个插件，
// 参数为计数器表名和毫秒周期。
func (g *Group) runPlugins(ctx context.Context, snap tickSnapshot) {
	if len(snap.plugins) == 0 || g.m.plugins == nil {
		return
	}
	args := []string{g.m.table.Name(), strconv.FormatInt(snap.interval.Milliseconds(), 10)}

	var calls []plugin.Call
	for _, ps := range snap.plugins {
		keys := pluginKeys(snap, pluginObjectType[ps.field])
		if len(keys) == 0 {
			continue
		}
		for _, sha := range ps.shas {
			calls = append(calls, plugin.Call{SHA: sha, Keys: keys, Args: args})
		}
	}
	if len(calls) == 0 {
		return
	}
	for i, err := range g.m.plugins.RunAll(ctx, calls) {
		if err != nil {
			g.m.metrics.DeviceErrors.WithLabelValues(g.name, "plugin").Inc()
			logger.Warn("plugin failed", g.name, zap.String("sha", calls[i].SHA), zap.Error(err))
		}
	}
}

func pluginKeys(snap tickSnapshot, ot device.ObjectType) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, ko := range snap.kinds {
		if ko.kind.objectType != ot {
			continue
		}
		for _, oc := range ko.objects {
			if _, ok := seen[oc.key]; ok {
				continue
			}
			seen[oc.key] = struct{}{}
			keys = append(keys, oc.key)
		}
	}
	return keys
}
