package flexcounter

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/counter-agent/internal/device"
	"github.com/counter-agent/pkg/logger"
)

type capKey struct {
	switchID device.ObjectID
	ot       device.ObjectType
}

type capEntry struct {
	// known 为 false 表示设备无法枚举能力列表
	known bool
	modes map[device.StatID]device.StatsMode
	// verdicts 记录能力未知时单项试读的结论
	verdicts map[device.StatID]bool
}

type bulkKey struct {
	switchID device.ObjectID
	ot       device.ObjectType
	ids      string
}

// CapabilityCache 按 (switch, 对象类型) 缓存设备支持的统计项，
// 以及某个有序 id 集合能否批量读取。结论只会从乐观变为确定，不会回退。
type CapabilityCache struct {
	dev device.Device

	mu        sync.RWMutex
	entries   map[capKey]*capEntry
	bulk      map[bulkKey]bool
	bulkClear map[bulkKey]bool
}

func NewCapabilityCache(dev device.Device) *CapabilityCache {
	return &CapabilityCache{
		dev:       dev,
		entries:   make(map[capKey]*capEntry),
		bulk:      make(map[bulkKey]bool),
		bulkClear: make(map[bulkKey]bool),
	}
}

func idsKey(ids []int32) string {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(int64(id), 10))
	}
	return b.String()
}

// entry 返回能力条目，首次引用时向设备查询
func (c *CapabilityCache) entry(ctx context.Context, switchID device.ObjectID, ot device.ObjectType) *capEntry {
	k := capKey{switchID, ot}
	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()
	if ok {
		return e
	}

	e = c.query(ctx, switchID, ot)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[k]; ok {
		return existing
	}
	c.entries[k] = e
	return e
}

// query 执行两阶段能力枚举（先取数量，再取列表）
func (c *CapabilityCache) query(ctx context.Context, switchID device.ObjectID, ot device.ObjectType) *capEntry {
	unknown := &capEntry{verdicts: make(map[device.StatID]bool)}

	_, err := c.dev.QueryStatsCapability(ctx, switchID, ot, 0)
	var overflow *device.BufferOverflowError
	if !errors.As(err, &overflow) {
		logger.Debug("stats capability query not available, assuming optimistic support", "",
			zap.String("object_type", ot.String()), zap.Error(err))
		return unknown
	}

	list, err := c.dev.QueryStatsCapability(ctx, switchID, ot, overflow.Required)
	if err != nil {
		logger.Debug("stats capability query failed, assuming optimistic support", "",
			zap.String("object_type", ot.String()), zap.Error(err))
		return unknown
	}

	e := &capEntry{known: true, modes: make(map[device.StatID]device.StatsMode, len(list))}
	for _, sc := range list {
		e.modes[sc.Stat] |= sc.Modes
	}
	logger.Debug("stats capability loaded", "",
		zap.String("object_type", ot.String()), zap.Int("stats", len(e.modes)))
	return e
}

// IsCounterSupported 判断设备能否逐对象读取 id。
// 设备无法枚举能力时，用 probe 对象单项试读一次。
// 只记录成功或明确不支持的结论，其他错误不落定，留给下一次注册再试。
func (c *CapabilityCache) IsCounterSupported(ctx context.Context, switchID device.ObjectID, ot device.ObjectType, id device.StatID, probe device.ObjectID) bool {
	e := c.entry(ctx, switchID, ot)
	if e.known {
		return e.modes[id].Has(device.StatsModeRead)
	}

	c.mu.RLock()
	v, ok := e.verdicts[id]
	c.mu.RUnlock()
	if ok {
		return v
	}

	_, err := c.dev.GetStats(ctx, ot, probe, []device.StatID{id})
	supported := err == nil
	if !supported {
		logger.Debug("counter not supported", "",
			zap.String("object_type", ot.String()),
			zap.String("stat", device.StatName(ot, id)),
			zap.Error(err))
	}
	if !supported && !errors.Is(err, device.ErrNotSupported) && !errors.Is(err, device.ErrNotImplemented) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := e.verdicts[id]; ok {
		return v
	}
	e.verdicts[id] = supported
	return supported
}

// SupportsMode 判断能力列表是否为每个 id 声明了 mode，能力未知时恒为 false
func (c *CapabilityCache) SupportsMode(ctx context.Context, switchID device.ObjectID, ot device.ObjectType, ids []device.StatID, mode device.StatsMode) bool {
	e := c.entry(ctx, switchID, ot)
	if !e.known || len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if !e.modes[id].Has(mode) {
			return false
		}
	}
	return true
}

func (c *CapabilityCache) IsBulkSupported(switchID device.ObjectID, ot device.ObjectType, ids []int32) bool {
	return c.verdict(c.bulk, bulkKey{switchID, ot, idsKey(ids)})
}

// DemoteBulk 将该集合标记为不支持批量读取，返回结论是否发生变化
func (c *CapabilityCache) DemoteBulk(switchID device.ObjectID, ot device.ObjectType, ids []int32) bool {
	return c.demote(c.bulk, bulkKey{switchID, ot, idsKey(ids)})
}

func (c *CapabilityCache) IsBulkClearSupported(switchID device.ObjectID, ot device.ObjectType, ids []int32) bool {
	return c.verdict(c.bulkClear, bulkKey{switchID, ot, idsKey(ids)})
}

func (c *CapabilityCache) DemoteBulkClear(switchID device.ObjectID, ot device.ObjectType, ids []int32) bool {
	return c.demote(c.bulkClear, bulkKey{switchID, ot, idsKey(ids)})
}

func (c *CapabilityCache) verdict(m map[bulkKey]bool, k bulkKey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := m[k]
	return !ok || v
}

func (c *CapabilityCache) demote(m map[bulkKey]bool, k bulkKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := m[k]; ok && !v {
		return false
	}
	m[k] = false
	return true
}
