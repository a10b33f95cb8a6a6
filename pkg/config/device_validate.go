package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/counter-agent/internal/device"
)

// Validate HTTP服务配置校验
func (h *ServerConfig) Validate() error {
	if err := valid.Struct(h); err != nil {
		return err
	}
	// 	校验Addr格式(必须是 ":port" 或 "ip:port")
	if h.Addr == "" {
		return errors.New("[ERROR] Server.Addr cannot be empty")
	}
	// 	用net包解析地址，验证格式合法性
	_, err := net.ResolveTCPAddr("tcp", h.Addr)
	if err != nil {
		return fmt.Errorf("[ERROR] Server.Addr format invalid (expected: :port or ip:port), got %s: %w", h.Addr, err)
	}
	return nil
}

// Validate Redis 配置校验
func (r *RedisConfig) Validate() error {
	if err := valid.Struct(r); err != nil {
		return err
	}
	// tcp 时必须是 host:port，unix 时是 socket 路径
	if r.Network == "tcp" {
		if _, _, err := net.SplitHostPort(r.Addr); err != nil {
			return fmt.Errorf("redis.addr must be host:port for tcp, got %q: %w", r.Addr, err)
		}
	}
	if strings.ContainsAny(r.Table, ": \t") {
		return fmt.Errorf("redis.table must not contain ':' or whitespace, got %q", r.Table)
	}
	return nil
}

// Validate 设备驱动校验，snmp 驱动必须有目标地址
func (d *DeviceConfig) Validate() error {
	if err := valid.Struct(d); err != nil {
		return err
	}
	if d.Driver != "snmp" {
		return nil
	}
	if strings.TrimSpace(d.SNMP.Target) == "" {
		return errors.New("device.snmp.target is required when device.driver is snmp")
	}
	if d.SNMP.Timeout > time.Minute {
		return fmt.Errorf("device.snmp.timeout must not exceed 1m, got %s", d.SNMP.Timeout)
	}
	return nil
}

// validateGroups 轮询组校验
// 组名不能重复
// 对象类型必须是已知类型，同一组内 (type, index, field) 不能重复
// 插件字段以 _PLUGIN_LIST 结尾，对象字段以 _ID_LIST 结尾
// 字段名和计数器名是否被支持在注册时由轮询引擎判断
func validateGroups(groups []GroupConfig) error {
	seenGroup := map[string]bool{}
	for i := range groups {
		g := &groups[i]
		if err := valid.Struct(g); err != nil {
			return fmt.Errorf("groups[%d]: %w", i, err)
		}
		if seenGroup[g.Name] {
			return fmt.Errorf("groups: duplicated group %q", g.Name)
		}
		seenGroup[g.Name] = true

		if g.PollInterval > 0 && g.PollInterval < time.Millisecond {
			return fmt.Errorf("group %s: poll_interval must be at least 1ms, got %s", g.Name, g.PollInterval)
		}
		for _, p := range g.Plugins {
			if !strings.HasSuffix(p.Field, "_PLUGIN_LIST") {
				return fmt.Errorf("group %s: plugin field %q is not a *_PLUGIN_LIST field", g.Name, p.Field)
			}
		}

		seenObj := map[string]bool{}
		for _, o := range g.Objects {
			if _, ok := device.ParseObjectType(o.Type); !ok {
				return fmt.Errorf("group %s: unknown object type %q", g.Name, o.Type)
			}
			if !strings.HasSuffix(o.Field, "_ID_LIST") {
				return fmt.Errorf("group %s: object field %q is not a *_ID_LIST field", g.Name, o.Field)
			}
			key := fmt.Sprintf("%s/%d/%s", strings.ToUpper(o.Type), o.Index, o.Field)
			if seenObj[key] {
				return fmt.Errorf("group %s: duplicated object %s", g.Name, key)
			}
			seenObj[key] = true
		}
	}
	return nil
}
