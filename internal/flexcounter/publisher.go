package flexcounter

import (
	"context"

	"go.uber.org/zap"

	"github.com/counter-agent/internal/table"
	"github.com/counter-agent/pkg/logger"
)

// publish 写入单个对象的值，同一次更新中删除旧列。
// tick 取快照之后被移除的上下文不会再写入。
func (g *Group) publish(ctx context.Context, c *objectContext, values []string) {
	fvs := make([]table.FieldValue, len(values))
	for i, v := range values {
		fvs[i] = table.FieldValue{Field: c.names[i], Value: v}
	}

	g.publishMu.Lock()
	defer g.publishMu.Unlock()
	if c.removed.Load() {
		return
	}
	if err := g.m.table.Apply(ctx, c.key, c.stale, fvs); err != nil {
		g.m.metrics.DeviceErrors.WithLabelValues(g.name, "publish").Inc()
		logger.Warn("publish counters failed", g.name, zap.String("key", c.key), zap.Error(err))
		return
	}
	c.stale = nil
	c.lastGood = values
}

// retire 标记 c 已移除并删除其发布的内容
func (g *Group) retire(ctx context.Context, c *objectContext) {
	g.publishMu.Lock()
	defer g.publishMu.Unlock()
	c.removed.Store(true)
	if err := g.m.table.Del(ctx, c.key, c.columns()...); err != nil {
		logger.Warn("delete counters failed", g.name, zap.String("key", c.key), zap.Error(err))
	}
}

// replace 用 next 替换 prev，不触碰表，next 首次写入时删除 prev 独有的列
func (g *Group) replace(prev, next *objectContext) {
	g.publishMu.Lock()
	defer g.publishMu.Unlock()
	prev.removed.Store(true)
	next.supersede(prev)
}

// lastGood 返回 c 最近一次成功发布的值
func (g *Group) lastGood(c *objectContext) []string {
	g.publishMu.Lock()
	defer g.publishMu.Unlock()
	return append([]string(nil), c.lastGood...)
}
