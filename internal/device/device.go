// Package device 定义与厂商无关的统计接口，供计数器轮询读取：
// 对象类型、统计项与属性标识、读取模式，以及所有驱动需实现的 Device 接口。
package device

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// ObjectID 设备对象标识。
// 轮询器中有两种：虚拟 id（稳定，用作表的 key）和真实 id（用于设备调用）。
type ObjectID uint64

// StatID 对象类型内的计数器标识
type StatID int32

// AttrID 对象类型内的属性标识
type AttrID int32

// StatsMode 设备对某统计项支持的读取模式位集合
type StatsMode uint32

const (
	StatsModeRead StatsMode = 1 << iota
	StatsModeReadAndClear
	StatsModeBulkRead
	StatsModeBulkReadAndClear
)

// Has 判断 o 的每一位是否都在 m 中置位
func (m StatsMode) Has(o StatsMode) bool { return m&o == o }

func (m StatsMode) String() string {
	var parts []string
	for _, b := range []struct {
		bit  StatsMode
		name string
	}{
		{StatsModeRead, "READ"},
		{StatsModeReadAndClear, "READ_AND_CLEAR"},
		{StatsModeBulkRead, "BULK_READ"},
		{StatsModeBulkReadAndClear, "BULK_READ_AND_CLEAR"},
	} {
		if m&b.bit != 0 {
			parts = append(parts, b.name)
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// StatCapability 统计能力枚举中的一项
type StatCapability struct {
	Stat  StatID
	Modes StatsMode
}

// Device 单个交换芯片的统计与属性接口
//
// BulkGetStats 每个 key 返回一个状态和一行数值，第三个返回值非 nil 表示整体调用失败。
//
// QueryStatsCapability 分两阶段：capacity 小于支持项数量时
// 返回携带所需容量的 *BufferOverflowError。
type Device interface {
	GetStats(ctx context.Context, ot ObjectType, oid ObjectID, ids []StatID) ([]uint64, error)
	GetStatsExt(ctx context.Context, ot ObjectType, oid ObjectID, ids []StatID, mode StatsMode) ([]uint64, error)
	BulkGetStats(ctx context.Context, switchID ObjectID, ot ObjectType, keys []ObjectID, ids []StatID, mode StatsMode) ([]error, [][]uint64, error)
	ClearStats(ctx context.Context, ot ObjectType, oid ObjectID, ids []StatID) error
	QueryStatsCapability(ctx context.Context, switchID ObjectID, ot ObjectType, capacity int) ([]StatCapability, error)
	GetAttributes(ctx context.Context, ot ObjectType, oid ObjectID, ids []AttrID) ([]AttrValue, error)
}

// FormatOID 按表 key 和对象 id 类属性的写法格式化对象 id
func FormatOID(oid ObjectID) string {
	return fmt.Sprintf("oid:0x%x", uint64(oid))
}

// ParseOID FormatOID 的逆操作，也接受不带前缀的十六进制或十进制数
func ParseOID(s string) (ObjectID, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "oid:")
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("parse object id %q: %w", s, err)
	}
	return ObjectID(v), nil
}
