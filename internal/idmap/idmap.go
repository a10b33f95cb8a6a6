// Package idmap 将用作表 key 的虚拟对象 id 转换为设备可识别的真实 id
//
// 虚拟 id 布局：bits 56-63 为 switch 序号，bits 48-55 为对象类型，bits 0-39 为类型内序号。
package idmap

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/counter-agent/internal/device"
)

const (
	switchShift = 56
	typeShift   = 48
	indexMask   = 1<<40 - 1
)

var ErrUnknownID = errors.New("idmap: unknown object id")

// Resolver 轮询器需要的对象 id 查询接口
type Resolver interface {
	RealID(vid device.ObjectID) (device.ObjectID, error)
	ObjectTypeOf(vid device.ObjectID) device.ObjectType
	// SwitchOf 返回 vid 所属 switch 的真实 id
	SwitchOf(vid device.ObjectID) (device.ObjectID, error)
}

// Make 构造虚拟 id
func Make(switchIndex uint8, ot device.ObjectType, index uint64) device.ObjectID {
	return device.ObjectID(uint64(switchIndex)<<switchShift | uint64(uint8(ot))<<typeShift | index&indexMask)
}

// SwitchVID 返回指定序号 switch 的虚拟 id
func SwitchVID(switchIndex uint8) device.ObjectID {
	return Make(switchIndex, device.ObjectTypeSwitch, uint64(switchIndex))
}

func SwitchIndex(vid device.ObjectID) uint8 { return uint8(uint64(vid) >> switchShift) }

func TypeOf(vid device.ObjectID) device.ObjectType {
	return device.ObjectType(uint8(uint64(vid) >> typeShift))
}

func Index(vid device.ObjectID) uint64 { return uint64(vid) & indexMask }

// Map 基于 vid 到 rid 映射表的 Resolver
type Map struct {
	mu  sync.RWMutex
	v2r map[device.ObjectID]device.ObjectID
}

var _ Resolver = (*Map)(nil)

func NewMap() *Map {
	return &Map{v2r: make(map[device.ObjectID]device.ObjectID)}
}

func (m *Map) Set(vid, rid device.ObjectID) {
	m.mu.Lock()
	m.v2r[vid] = rid
	m.mu.Unlock()
}

func (m *Map) Remove(vid device.ObjectID) {
	m.mu.Lock()
	delete(m.v2r, vid)
	m.mu.Unlock()
}

func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.v2r)
}

func (m *Map) RealID(vid device.ObjectID) (device.ObjectID, error) {
	m.mu.RLock()
	rid, ok := m.v2r[vid]
	m.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%s: %w", device.FormatOID(vid), ErrUnknownID)
	}
	return rid, nil
}

func (m *Map) ObjectTypeOf(vid device.ObjectID) device.ObjectType { return TypeOf(vid) }

func (m *Map) SwitchOf(vid device.ObjectID) (device.ObjectID, error) {
	return m.RealID(SwitchVID(SwitchIndex(vid)))
}

// Allocator 为单个 switch 分配虚拟 id
type Allocator struct {
	switchIndex uint8
	next        [256]atomic.Uint64
}

func NewAllocator(switchIndex uint8) *Allocator {
	return &Allocator{switchIndex: switchIndex}
}

// Switch 返回分配器所属 switch 的虚拟 id
func (a *Allocator) Switch() device.ObjectID { return SwitchVID(a.switchIndex) }

// Next 分配一个 ot 类型的新虚拟 id
func (a *Allocator) Next(ot device.ObjectType) device.ObjectID {
	idx := a.next[uint8(ot)].Add(1)
	return Make(a.switchIndex, ot, idx)
}
