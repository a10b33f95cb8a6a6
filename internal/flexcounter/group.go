package flexcounter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/counter-agent/internal/device"
	"github.com/counter-agent/pkg/logger"
)

var ErrGroupRemoved = errors.New("flexcounter: group removed")

// State 组的调度状态
type State int

const (
	StateUnconfigured State = iota
	StateConfiguredDisabled
	StateActive
	// StateDraining 已启用但从未有过对象，没有轮询任务，加入对象后进入 StateActive
	StateDraining
	// StateRemoved 组失去了最后一个对象，或已被 RemoveGroup 删除。
	// 只有后者拒绝新对象，前者保留配置，下次 AddCounter 时恢复。
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateConfiguredDisabled:
		return "disabled"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateRemoved:
		return "removed"
	}
	return "unknown"
}

// Group 按同一周期轮询的一组被监控对象
type Group struct {
	name string
	m    *Manager

	// mu 保护以下注册状态
	mu         sync.Mutex
	interval   time.Duration
	statusSet  bool
	enabled    bool
	mode       device.StatsMode
	collectors map[string]*collector
	plugins    map[string][]string
	removed    bool
	populated  bool
	cancel     context.CancelFunc
	running    time.Duration

	// tickMu 保证任务重启前后的 tick 串行执行
	tickMu sync.Mutex
	// publishMu 保证表写入与删除之间的先后顺序
	publishMu sync.Mutex
}

func newGroup(name string, m *Manager) *Group {
	return &Group{
		name:       name,
		m:          m,
		mode:       device.StatsModeRead,
		collectors: make(map[string]*collector),
		plugins:    make(map[string][]string),
	}
}

func (g *Group) Name() string { return g.name }

type counterRequest struct {
	kind  *kindSpec
	names []string
	ids   []int32
}

func (g *Group) parseCounterFields(fvs []FieldValue) ([]counterRequest, error) {
	reqs := make([]counterRequest, 0, len(fvs))
	for _, fv := range fvs {
		k, ok := kindByField[fv.Field]
		if !ok {
			return nil, fmt.Errorf("group %s: unknown counter field %q", g.name, fv.Field)
		}
		names := splitList(fv.Value)
		ids, err := k.parseIDs(names)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", g.name, err)
		}
		reqs = append(reqs, counterRequest{kind: k, names: names, ids: ids})
	}
	return reqs, nil
}

// AddCounter 将 vid 注册到 fvs 中的每一类。
// rid 为 0 时通过 resolver 解析。空 id 列表表示从该类移除 vid，设备不支持的 id 直接丢弃。
func (g *Group) AddCounter(ctx context.Context, vid, rid device.ObjectID, fvs []FieldValue) error {
	reqs, err := g.parseCounterFields(fvs)
	if err != nil {
		return err
	}
	ot := g.m.resolver.ObjectTypeOf(vid)
	for _, r := range reqs {
		if r.kind.objectType != ot {
			return fmt.Errorf("group %s: %s expects %s objects, %s is %s",
				g.name, r.kind.field, r.kind.objectType, device.FormatOID(vid), ot)
		}
	}
	if rid == 0 {
		if rid, err = g.m.resolver.RealID(vid); err != nil {
			return fmt.Errorf("group %s: resolve real id: %w", g.name, err)
		}
	}
	switchID, err := g.m.resolver.SwitchOf(vid)
	if err != nil {
		return fmt.Errorf("group %s: resolve switch: %w", g.name, err)
	}

	// 设备探测在加组锁之前完成
	built := make([]*objectContext, len(reqs))
	for i, r := range reqs {
		built[i] = g.buildContext(ctx, r, vid, rid, switchID)
	}

	g.mu.Lock()
	if g.removed {
		g.mu.Unlock()
		return ErrGroupRemoved
	}
	var retired []*objectContext
	for i, r := range reqs {
		field := r.kind.field
		col := g.collectors[field]
		var prev *objectContext
		if col != nil {
			prev = col.objects[vid]
		}
		next := built[i]
		switch {
		case next == nil:
			if prev != nil {
				col.remove(vid)
				retired = append(retired, prev)
			}
		case prev != nil && prev.rid == next.rid && prev.sameIDs(next):
		default:
			if col == nil {
				col = newCollector(r.kind)
				g.collectors[field] = col
			}
			if prev != nil {
				g.replace(prev, next)
			}
			col.put(next)
		}
		if col != nil && len(col.objects) == 0 {
			delete(g.collectors, field)
		}
	}
	g.scheduleLocked()
	g.mu.Unlock()

	for _, oc := range retired {
		g.retire(ctx, oc)
	}
	return nil
}

// buildContext 过滤请求的 id，没有可轮询项时返回 nil
func (g *Group) buildContext(ctx context.Context, r counterRequest, vid, rid, switchID device.ObjectID) *objectContext {
	if len(r.ids) == 0 {
		return nil
	}
	ot := r.kind.objectType
	supported := r.ids
	if !r.kind.attribute {
		supported = make([]int32, 0, len(r.ids))
		for _, id := range r.ids {
			if g.m.caps.IsCounterSupported(ctx, switchID, ot, device.StatID(id), rid) {
				supported = append(supported, id)
			}
		}
	}
	if len(supported) == 0 {
		logger.Debug("no supported counters, object not polled", g.name,
			zap.String("field", r.kind.field), zap.String("key", device.FormatOID(vid)))
		return nil
	}
	oc := newObjectContext(r.kind, vid, rid, switchID, r.names, supported)
	if r.kind.clearable {
		oc.readAndClear = g.m.caps.SupportsMode(ctx, switchID, ot, oc.statIDs(), device.StatsModeReadAndClear)
	}
	return oc
}

// RemoveCounter 从组内各类移除 vid，并删除本组为其发布的字段
func (g *Group) RemoveCounter(ctx context.Context, vid device.ObjectID) {
	g.mu.Lock()
	var retired []*objectContext
	for field, col := range g.collectors {
		if oc := col.remove(vid); oc != nil {
			retired = append(retired, oc)
		}
		if len(col.objects) == 0 {
			delete(g.collectors, field)
		}
	}
	g.scheduleLocked()
	g.mu.Unlock()

	for _, oc := range retired {
		g.retire(ctx, oc)
	}
}

// Configure 应用组配置和插件列表，所有字段校验通过后才生效
func (g *Group) Configure(fvs []FieldValue) error {
	var (
		interval  *time.Duration
		enabled   *bool
		mode      *device.StatsMode
		newPlugin = make(map[string][]string)
	)
	for _, fv := range fvs {
		switch {
		case fv.Field == PollIntervalField:
			ms, err := strconv.ParseUint(fv.Value, 10, 32)
			if err != nil {
				return fmt.Errorf("group %s: invalid %s %q", g.name, fv.Field, fv.Value)
			}
			d := time.Duration(ms) * time.Millisecond
			interval = &d
		case fv.Field == StatusField:
			var on bool
			switch fv.Value {
			case StatusEnable:
				on = true
			case StatusDisable:
			default:
				return fmt.Errorf("group %s: invalid %s %q", g.name, fv.Field, fv.Value)
			}
			enabled = &on
		case fv.Field == StatsModeField:
			var sm device.StatsMode
			switch fv.Value {
			case StatsModeRead:
				sm = device.StatsModeRead
			case StatsModeReadAndClear:
				sm = device.StatsModeReadAndClear
			default:
				return fmt.Errorf("group %s: invalid %s %q", g.name, fv.Field, fv.Value)
			}
			mode = &sm
		case IsPluginField(fv.Field):
			newPlugin[fv.Field] = append(newPlugin[fv.Field], splitList(fv.Value)...)
		default:
			return fmt.Errorf("group %s: unknown group field %q", g.name, fv.Field)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.removed {
		return ErrGroupRemoved
	}
	if interval != nil {
		g.interval = *interval
	}
	if enabled != nil {
		g.statusSet = true
		g.enabled = *enabled
	}
	if mode != nil {
		g.mode = *mode
	}
	for field, shas := range newPlugin {
		g.plugins[field] = appendUnique(g.plugins[field], shas...)
	}
	g.scheduleLocked()
	logger.Debug("group configured", g.name,
		zap.Duration("interval", g.interval),
		zap.Bool("enabled", g.enabled),
		zap.String("stats_mode", g.mode.String()))
	return nil
}

func appendUnique(list []string, items ...string) []string {
	for _, it := range items {
		dup := false
		for _, s := range list {
			if s == it {
				dup = true
				break
			}
		}
		if !dup {
			list = append(list, it)
		}
	}
	return list
}

// RemovePlugins 移除全部插件，不影响计数器
func (g *Group) RemovePlugins() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.plugins = make(map[string][]string)
}

// idleLocked 判断组是否已无保留价值：没有对象、配置和插件
func (g *Group) idleLocked() bool {
	return g.emptyLocked() && g.interval == 0 && !g.statusSet &&
		g.mode == device.StatsModeRead && len(g.plugins) == 0
}

// IsEmpty 判断组内是否没有被轮询的对象，插件不计入
func (g *Group) IsEmpty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.emptyLocked()
}

func (g *Group) emptyLocked() bool {
	for _, col := range g.collectors {
		if len(col.objects) > 0 {
			return false
		}
	}
	return true
}

func (g *Group) objectCountLocked() int {
	seen := make(map[device.ObjectID]struct{})
	for _, col := range g.collectors {
		for vid := range col.objects {
			seen[vid] = struct{}{}
		}
	}
	return len(seen)
}

func (g *Group) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stateLocked()
}

func (g *Group) stateLocked() State {
	switch {
	case g.removed, g.populated && g.emptyLocked():
		return StateRemoved
	case g.interval == 0 && !g.statusSet:
		return StateUnconfigured
	case !g.enabled || g.interval == 0:
		return StateConfiguredDisabled
	case g.emptyLocked():
		return StateDraining
	}
	return StateActive
}

// GroupStatus 组的状态快照
type GroupStatus struct {
	Name           string         `json:"name"`
	State          string         `json:"state"`
	PollIntervalMs int64          `json:"poll_interval_ms"`
	Enabled        bool           `json:"enabled"`
	StatsMode      string         `json:"stats_mode"`
	Objects        int            `json:"objects"`
	Kinds          map[string]int `json:"kinds,omitempty"`
	Plugins        map[string]int `json:"plugins,omitempty"`
}

func (g *Group) Status() GroupStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := GroupStatus{
		Name:           g.name,
		State:          g.stateLocked().String(),
		PollIntervalMs: g.interval.Milliseconds(),
		Enabled:        g.enabled,
		StatsMode:      StatsModeRead,
		Objects:        g.objectCountLocked(),
	}
	if g.mode == device.StatsModeReadAndClear {
		st.StatsMode = StatsModeReadAndClear
	}
	if len(g.collectors) > 0 {
		st.Kinds = make(map[string]int, len(g.collectors))
		for field, col := range g.collectors {
			st.Kinds[field] = len(col.objects)
		}
	}
	if len(g.plugins) > 0 {
		st.Plugins = make(map[string]int, len(g.plugins))
		for field, shas := range g.plugins {
			st.Plugins[field] = len(shas)
		}
	}
	return st
}

// LastGood 返回 vid 在 field 下最近一次发布的值，没有则为 nil
func (g *Group) LastGood(field string, vid device.ObjectID) []string {
	g.mu.Lock()
	col := g.collectors[field]
	var oc *objectContext
	if col != nil {
		oc = col.objects[vid]
	}
	g.mu.Unlock()
	if oc == nil {
		return nil
	}
	return g.lastGood(oc)
}

// stop 取消任务并标记组已删除，返回仍在注册的全部上下文
func (g *Group) stop() []*objectContext {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removed = true
	var out []*objectContext
	for _, col := range g.collectors {
		out = append(out, col.list()...)
	}
	g.collectors = make(map[string]*collector)
	g.scheduleLocked()
	return out
}
