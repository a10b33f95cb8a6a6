// Package fake 进程内的 device.Device 实现。
// 每个操作都可以用 hook 替换，未设置 hook 时模拟一颗芯片，计数器每次读取都会增长，
// 同时作为 "sim" 驱动使用。
package fake

import (
	"context"
	"sync"

	"github.com/counter-agent/internal/device"
)

// Calls 使用的操作名
const (
	OpGetStats             = "GetStats"
	OpGetStatsExt          = "GetStatsExt"
	OpBulkGetStats         = "BulkGetStats"
	OpClearStats           = "ClearStats"
	OpQueryStatsCapability = "QueryStatsCapability"
	OpGetAttributes        = "GetAttributes"
)

type (
	GetStatsFunc             func(ctx context.Context, ot device.ObjectType, oid device.ObjectID, ids []device.StatID) ([]uint64, error)
	GetStatsExtFunc          func(ctx context.Context, ot device.ObjectType, oid device.ObjectID, ids []device.StatID, mode device.StatsMode) ([]uint64, error)
	BulkGetStatsFunc         func(ctx context.Context, switchID device.ObjectID, ot device.ObjectType, keys []device.ObjectID, ids []device.StatID, mode device.StatsMode) ([]error, [][]uint64, error)
	ClearStatsFunc           func(ctx context.Context, ot device.ObjectType, oid device.ObjectID, ids []device.StatID) error
	QueryStatsCapabilityFunc func(ctx context.Context, switchID device.ObjectID, ot device.ObjectType, capacity int) ([]device.StatCapability, error)
	GetAttributesFunc        func(ctx context.Context, ot device.ObjectType, oid device.ObjectID, ids []device.AttrID) ([]device.AttrValue, error)
)

type counterKey struct {
	ot   device.ObjectType
	oid  device.ObjectID
	stat device.StatID
}

// Device 并发安全，轮询运行期间也可以替换 hook
type Device struct {
	mu sync.Mutex

	getStats             GetStatsFunc
	getStatsExt          GetStatsExtFunc
	bulkGetStats         BulkGetStatsFunc
	clearStats           ClearStatsFunc
	queryStatsCapability QueryStatsCapabilityFunc
	getAttributes        GetAttributesFunc

	calls    map[string]int
	counters map[counterKey]uint64
}

var _ device.Device = (*Device)(nil)

func New() *Device {
	return &Device{
		calls:    make(map[string]int),
		counters: make(map[counterKey]uint64),
	}
}

func (d *Device) OnGetStats(fn GetStatsFunc) {
	d.mu.Lock()
	d.getStats = fn
	d.mu.Unlock()
}

func (d *Device) OnGetStatsExt(fn GetStatsExtFunc) {
	d.mu.Lock()
	d.getStatsExt = fn
	d.mu.Unlock()
}

func (d *Device) OnBulkGetStats(fn BulkGetStatsFunc) {
	d.mu.Lock()
	d.bulkGetStats = fn
	d.mu.Unlock()
}

func (d *Device) OnClearStats(fn ClearStatsFunc) {
	d.mu.Lock()
	d.clearStats = fn
	d.mu.Unlock()
}

func (d *Device) OnQueryStatsCapability(fn QueryStatsCapabilityFunc) {
	d.mu.Lock()
	d.queryStatsCapability = fn
	d.mu.Unlock()
}

func (d *Device) OnGetAttributes(fn GetAttributesFunc) {
	d.mu.Lock()
	d.getAttributes = fn
	d.mu.Unlock()
}

// Calls 返回 op 的调用次数
func (d *Device) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// ResetCalls 清零全部调用计数
func (d *Device) ResetCalls() {
	d.mu.Lock()
	d.calls = make(map[string]int)
	d.mu.Unlock()
}

func (d *Device) enter(op string) {
	d.mu.Lock()
	d.calls[op]++
	d.mu.Unlock()
}

func (d *Device) GetStats(ctx context.Context, ot device.ObjectType, oid device.ObjectID, ids []device.StatID) ([]uint64, error) {
	d.enter(OpGetStats)
	d.mu.Lock()
	fn := d.getStats
	d.mu.Unlock()
	if fn != nil {
		return fn(ctx, ot, oid, ids)
	}
	return d.simRead(ot, oid, ids, false), nil
}

func (d *Device) GetStatsExt(ctx context.Context, ot device.ObjectType, oid device.ObjectID, ids []device.StatID, mode device.StatsMode) ([]uint64, error) {
	d.enter(OpGetStatsExt)
	d.mu.Lock()
	fn := d.getStatsExt
	d.mu.Unlock()
	if fn != nil {
		return fn(ctx, ot, oid, ids, mode)
	}
	return d.simRead(ot, oid, ids, mode.Has(device.StatsModeReadAndClear)), nil
}

func (d *Device) BulkGetStats(ctx context.Context, switchID device.ObjectID, ot device.ObjectType, keys []device.ObjectID, ids []device.StatID, mode device.StatsMode) ([]error, [][]uint64, error) {
	d.enter(OpBulkGetStats)
	d.mu.Lock()
	fn := d.bulkGetStats
	d.mu.Unlock()
	if fn != nil {
		return fn(ctx, switchID, ot, keys, ids, mode)
	}
	statuses := make([]error, len(keys))
	values := make([][]uint64, len(keys))
	rc := mode.Has(device.StatsModeBulkReadAndClear)
	for i, key := range keys {
		values[i] = d.simRead(ot, key, ids, rc)
	}
	return statuses, values, nil
}

func (d *Device) ClearStats(ctx context.Context, ot device.ObjectType, oid device.ObjectID, ids []device.StatID) error {
	d.enter(OpClearStats)
	d.mu.Lock()
	fn := d.clearStats
	d.mu.Unlock()
	if fn != nil {
		return fn(ctx, ot, oid, ids)
	}
	d.mu.Lock()
	for _, id := range ids {
		delete(d.counters, counterKey{ot, oid, id})
	}
	d.mu.Unlock()
	return nil
}

func (d *Device) QueryStatsCapability(ctx context.Context, switchID device.ObjectID, ot device.ObjectType, capacity int) ([]device.StatCapability, error) {
	d.enter(OpQueryStatsCapability)
	d.mu.Lock()
	fn := d.queryStatsCapability
	d.mu.Unlock()
	if fn != nil {
		return fn(ctx, switchID, ot, capacity)
	}
	return nil, device.ErrNotImplemented
}

func (d *Device) GetAttributes(ctx context.Context, ot device.ObjectType, oid device.ObjectID, ids []device.AttrID) ([]device.AttrValue, error) {
	d.enter(OpGetAttributes)
	d.mu.Lock()
	fn := d.getAttributes
	d.mu.Unlock()
	if fn != nil {
		return fn(ctx, ot, oid, ids)
	}
	out := make([]device.AttrValue, len(ids))
	for i, id := range ids {
		out[i] = device.AttrValue{ID: id}
	}
	return out, nil
}

// simRead 每个计数器按 stat 序号加 1 递增，同一对象的不同统计项增速不同
func (d *Device) simRead(ot device.ObjectType, oid device.ObjectID, ids []device.StatID, readAndClear bool) []uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]uint64, len(ids))
	for i, id := range ids {
		k := counterKey{ot, oid, id}
		d.counters[k] += uint64(id) + 1
		out[i] = d.counters[k]
		if readAndClear {
			delete(d.counters, k)
		}
	}
	return out
}

// Capabilities 构造 QueryStatsCapability hook，按给定模式声明给定统计项，遵循两阶段协议
func Capabilities(modes device.StatsMode, stats ...device.StatID) QueryStatsCapabilityFunc {
	return func(_ context.Context, _ device.ObjectID, _ device.ObjectType, capacity int) ([]device.StatCapability, error) {
		if capacity < len(stats) {
			return nil, &device.BufferOverflowError{Required: len(stats)}
		}
		out := make([]device.StatCapability, len(stats))
		for i, s := range stats {
			out[i] = device.StatCapability{Stat: s, Modes: modes}
		}
		return out, nil
	}
}

// Fixed 构造 GetStats hook，第 i 个 id 返回 (i+1)*step
func Fixed(step uint64) GetStatsFunc {
	return func(_ context.Context, _ device.ObjectType, _ device.ObjectID, ids []device.StatID) ([]uint64, error) {
		out := make([]uint64, len(ids))
		for i := range ids {
			out[i] = uint64(i+1) * step
		}
		return out, nil
	}
}
