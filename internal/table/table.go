// Package table 计数器发布的目标存储：每个对象一行，每个计数器或属性一个字段
package table

import (
	"context"
	"sort"
	"sync"
)

// FieldValue 行中的一列
type FieldValue struct {
	Field string
	Value string
}

// Table 具名的 hash 行集合
//
// Apply 原子地删除 del 字段并写入 fvs，读者看不到中间状态。
// Del 不带字段时删除整行。没有字段的行视为不存在。
type Table interface {
	Name() string
	Set(ctx context.Context, key string, fvs []FieldValue) error
	Get(ctx context.Context, key string) (map[string]string, error)
	Keys(ctx context.Context) ([]string, error)
	Del(ctx context.Context, key string, fields ...string) error
	Apply(ctx context.Context, key string, del []string, fvs []FieldValue) error
}

// Memory 进程内的 Table 实现
type Memory struct {
	name string
	mu   sync.RWMutex
	rows map[string]map[string]string
}

var _ Table = (*Memory)(nil)

func NewMemory(name string) *Memory {
	return &Memory{name: name, rows: make(map[string]map[string]string)}
}

func (m *Memory) Name() string { return m.name }

func (m *Memory) Set(ctx context.Context, key string, fvs []FieldValue) error {
	return m.Apply(ctx, key, nil, fvs)
}

func (m *Memory) Get(_ context.Context, key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[key]
	if !ok {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(row))
	for f, v := range row {
		out[f] = v
	}
	return out, nil
}

// Keys 按字典序返回行 key
func (m *Memory) Keys(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.rows))
	for k := range m.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Del(_ context.Context, key string, fields ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(fields) == 0 {
		delete(m.rows, key)
		return nil
	}
	m.deleteFields(key, fields)
	return nil
}

func (m *Memory) Apply(_ context.Context, key string, del []string, fvs []FieldValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteFields(key, del)
	if len(fvs) == 0 {
		return nil
	}
	row, ok := m.rows[key]
	if !ok {
		row = make(map[string]string, len(fvs))
		m.rows[key] = row
	}
	for _, fv := range fvs {
		row[fv.Field] = fv.Value
	}
	return nil
}

func (m *Memory) deleteFields(key string, fields []string) {
	row, ok := m.rows[key]
	if !ok {
		return
	}
	for _, f := range fields {
		delete(row, f)
	}
	if len(row) == 0 {
		delete(m.rows, key)
	}
}
