package flexcounter

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/counter-agent/internal/device"
	"github.com/counter-agent/pkg/logger"
)

// collector 保存组内某一类注册的全部上下文，按虚拟 id 索引
type collector struct {
	kind    *kindSpec
	objects map[device.ObjectID]*objectContext
	// 保持注册顺序，分桶结果稳定
	order []device.ObjectID
}

func newCollector(k *kindSpec) *collector {
	return &collector{kind: k, objects: make(map[device.ObjectID]*objectContext)}
}

func (c *collector) put(oc *objectContext) {
	if _, ok := c.objects[oc.vid]; !ok {
		c.order = append(c.order, oc.vid)
	}
	c.objects[oc.vid] = oc
}

func (c *collector) remove(vid device.ObjectID) *objectContext {
	oc, ok := c.objects[vid]
	if !ok {
		return nil
	}
	delete(c.objects, vid)
	for i, v := range c.order {
		if v == vid {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
	return oc
}

func (c *collector) list() []*objectContext {
	out := make([]*objectContext, 0, len(c.order))
	for _, vid := range c.order {
		out = append(out, c.objects[vid])
	}
	return out
}

type bucket struct {
	switchID device.ObjectID
	ids      []int32
	members  []*objectContext
}

// buckets 按 switch 与完整有序 id 列表分桶，桶顺序按首次出现排列
func buckets(objs []*objectContext) []*bucket {
	type key struct {
		switchID device.ObjectID
		ids      string
	}
	index := make(map[key]*bucket)
	var out []*bucket
	for _, oc := range objs {
		k := key{oc.switchID, oc.bucket}
		b, ok := index[k]
		if !ok {
			b = &bucket{switchID: oc.switchID, ids: oc.ids}
			index[k] = b
			out = append(out, b)
		}
		b.members = append(b.members, oc)
	}
	return out
}

func formatCounters(values []uint64) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strconv.FormatUint(v, 10)
	}
	return out
}

// collectCounters 读取并发布某类计数器的全部上下文
func (g *Group) collectCounters(ctx context.Context, k *kindSpec, objs []*objectContext, mode device.StatsMode) {
	readAndClear := mode == device.StatsModeReadAndClear && k.clearable
	for _, b := range buckets(objs) {
		perObject := b.members
		if len(b.members) > 1 && k.bulkable && g.m.caps.IsBulkSupported(b.switchID, k.objectType, b.ids) {
			perObject = g.readBulk(ctx, k, b, readAndClear)
		}
		for _, oc := range perObject {
			g.readObject(ctx, k, oc, readAndClear)
		}
	}
}

// readBulk 一次调用读取整个桶，返回本轮仍需逐对象读取的成员
func (g *Group) readBulk(ctx context.Context, k *kindSpec, b *bucket, readAndClear bool) []*objectContext {
	ot := k.objectType
	keys := make([]device.ObjectID, len(b.members))
	for i, oc := range b.members {
		keys[i] = oc.rid
	}
	ids := b.members[0].statIDs()

	mode := device.StatsModeBulkRead
	explicitClear := false
	if readAndClear {
		if g.m.caps.IsBulkClearSupported(b.switchID, ot, b.ids) {
			mode = device.StatsModeBulkReadAndClear
		} else {
			explicitClear = true
		}
	}

	statuses, values, err := g.m.dev.BulkGetStats(ctx, b.switchID, ot, keys, ids, mode)
	if mode == device.StatsModeBulkReadAndClear && errors.Is(err, device.ErrNotSupported) {
		g.m.caps.DemoteBulkClear(b.switchID, ot, b.ids)
		logger.Debug("bulk read-and-clear not supported, clearing explicitly", g.name,
			zap.String("object_type", ot.String()))
		explicitClear = true
		statuses, values, err = g.m.dev.BulkGetStats(ctx, b.switchID, ot, keys, ids, device.StatsModeBulkRead)
	}
	if errors.Is(err, device.ErrNotSupported) {
		if g.m.caps.DemoteBulk(b.switchID, ot, b.ids) {
			g.m.metrics.BulkDemotions.WithLabelValues(ot.String()).Inc()
			logger.Info("bulk polling not supported, falling back to per-object reads", g.name,
				zap.String("object_type", ot.String()), zap.Int("stats", len(ids)))
		}
		return b.members
	}
	if err == nil && (len(statuses) != len(keys) || len(values) != len(keys)) {
		err = errors.New("bulk result size mismatch")
	}
	if err != nil {
		g.m.metrics.DeviceErrors.WithLabelValues(g.name, "bulk_get_stats").Inc()
		logger.Warn("bulk counter read failed", g.name,
			zap.String("object_type", ot.String()), zap.Int("objects", len(keys)), zap.Error(err))
		return nil
	}

	var retry []*objectContext
	for i, oc := range b.members {
		if st := statuses[i]; st != nil {
			if errors.Is(st, device.ErrNotSupported) {
				retry = append(retry, oc)
				continue
			}
			g.m.metrics.DeviceErrors.WithLabelValues(g.name, "bulk_get_stats").Inc()
			logger.Debug("bulk counter read failed for object", g.name,
				zap.String("key", oc.key), zap.Error(st))
			continue
		}
		if len(values[i]) != len(ids) {
			g.m.metrics.DeviceErrors.WithLabelValues(g.name, "bulk_get_stats").Inc()
			continue
		}
		if explicitClear {
			g.clear(ctx, oc)
		}
		g.publish(ctx, oc, formatCounters(values[i]))
	}
	return retry
}

// readObject 逐对象读取单个上下文
func (g *Group) readObject(ctx context.Context, k *kindSpec, oc *objectContext, readAndClear bool) {
	var (
		values []uint64
		err    error
		op     = "get_stats"
	)
	if readAndClear && oc.readAndClear {
		op = "get_stats_ext"
		values, err = g.m.dev.GetStatsExt(ctx, k.objectType, oc.rid, oc.statIDs(), device.StatsModeReadAndClear)
	} else {
		values, err = g.m.dev.GetStats(ctx, k.objectType, oc.rid, oc.statIDs())
	}
	if err == nil && len(values) != len(oc.ids) {
		err = errors.New("counter result size mismatch")
	}
	if err != nil {
		g.m.metrics.DeviceErrors.WithLabelValues(g.name, op).Inc()
		logger.Debug("counter read failed", g.name, zap.String("key", oc.key), zap.Error(err))
		return
	}
	if readAndClear && !oc.readAndClear {
		g.clear(ctx, oc)
	}
	g.publish(ctx, oc, formatCounters(values))
}

// clear 在读取成功后清零计数器。
// 失败时对象进入降级状态，已读到的值照常发布。
func (g *Group) clear(ctx context.Context, oc *objectContext) {
	if err := g.m.dev.ClearStats(ctx, oc.kind.objectType, oc.rid, oc.statIDs()); err != nil {
		g.m.metrics.ClearFailures.WithLabelValues(g.name).Inc()
		logger.Warn("clear counters failed, values published without reset", g.name,
			zap.String("key", oc.key), zap.Error(err))
	}
}

// collectAttributes 读取并发布某类属性的全部上下文
func (g *Group) collectAttributes(ctx context.Context, k *kindSpec, objs []*objectContext) {
	for _, oc := range objs {
		vals, err := g.m.dev.GetAttributes(ctx, k.objectType, oc.rid, oc.attrIDs())
		if err == nil && len(vals) != len(oc.ids) {
			err = errors.New("attribute result size mismatch")
		}
		if err != nil {
			g.m.metrics.DeviceErrors.WithLabelValues(g.name, "get_attributes").Inc()
			logger.Debug("attribute read failed", g.name, zap.String("key", oc.key), zap.Error(err))
			continue
		}
		out := make([]string, len(vals))
		for i, v := range vals {
			info, err := device.Attr(k.objectType, device.AttrID(oc.ids[i]))
			if err != nil {
				out[i] = strconv.FormatUint(v.Uint, 10)
				continue
			}
			out[i] = info.Format(v)
		}
		g.publish(ctx, oc, out)
	}
}
