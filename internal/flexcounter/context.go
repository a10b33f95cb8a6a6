package flexcounter

import (
	"sync/atomic"

	"github.com/counter-agent/internal/device"
)

// objectContext 表示组内某类注册下的一个被监控对象。
// 安装后除 removed 和下方由 tick 持有的字段外不可变，id 列表变化时换装新上下文。
type objectContext struct {
	kind     *kindSpec
	vid      device.ObjectID
	rid      device.ObjectID
	switchID device.ObjectID
	key      string

	requested []string
	ids       []int32
	names     []string
	bucket    string
	// 设备为全部 id 声明了逐对象读清时置位
	readAndClear bool

	removed atomic.Bool

	// 归 tick 协程所有，由组的 publishMu 保护
	stale    []string
	lastGood []string
}

func newObjectContext(k *kindSpec, vid, rid, switchID device.ObjectID, requested []string, ids []int32) *objectContext {
	c := &objectContext{
		kind:      k,
		vid:       vid,
		rid:       rid,
		switchID:  switchID,
		key:       device.FormatOID(vid),
		requested: requested,
		ids:       ids,
		names:     make([]string, len(ids)),
		bucket:    idsKey(ids),
	}
	for i, id := range ids {
		c.names[i] = k.name(id)
	}
	return c
}

// sameIDs 判断 o 轮询的有序 id 是否完全一致
func (c *objectContext) sameIDs(o *objectContext) bool {
	return c.bucket == o.bucket
}

// supersede 继承 prev 中 c 不再发布的列，c 下次写入时一并删除
func (c *objectContext) supersede(prev *objectContext) {
	keep := make(map[string]struct{}, len(c.names))
	for _, n := range c.names {
		keep[n] = struct{}{}
	}
	seen := make(map[string]struct{})
	for _, list := range [][]string{prev.stale, prev.names} {
		for _, n := range list {
			if _, ok := keep[n]; ok {
				continue
			}
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			c.stale = append(c.stale, n)
		}
	}
}

// columns 返回上下文可能写过的全部字段，包括待删除的旧字段
func (c *objectContext) columns() []string {
	out := make([]string, 0, len(c.names)+len(c.stale))
	out = append(out, c.names...)
	return append(out, c.stale...)
}

func (c *objectContext) statIDs() []device.StatID {
	out := make([]device.StatID, len(c.ids))
	for i, id := range c.ids {
		out[i] = device.StatID(id)
	}
	return out
}

func (c *objectContext) attrIDs() []device.AttrID {
	out := make([]device.AttrID, len(c.ids))
	for i, id := range c.ids {
		out[i] = device.AttrID(id)
	}
	return out
}
