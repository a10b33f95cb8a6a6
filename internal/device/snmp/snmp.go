// Package snmp 基于 IF-MIB 实现 device.Device，
// 可轮询任意支持 SNMP 的交换机的端口计数器和端口运行状态。端口的真实 id 即其 ifIndex。
package snmp

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	g "github.com/gosnmp/gosnmp"

	"github.com/counter-agent/internal/device"
)

const (
	oidIfInNUcastPkts  = ".1.3.6.1.2.1.2.2.1.12"
	oidIfInDiscards    = ".1.3.6.1.2.1.2.2.1.13"
	oidIfInErrors      = ".1.3.6.1.2.1.2.2.1.14"
	oidIfInUnknown     = ".1.3.6.1.2.1.2.2.1.15"
	oidIfOutNUcastPkts = ".1.3.6.1.2.1.2.2.1.18"
	oidIfOutDiscards   = ".1.3.6.1.2.1.2.2.1.19"
	oidIfOutErrors     = ".1.3.6.1.2.1.2.2.1.20"
	oidIfOperStatus    = ".1.3.6.1.2.1.2.2.1.8"
	oidSysUpTime       = ".1.3.6.1.2.1.1.3.0"
	oidIfHCInOctets    = ".1.3.6.1.2.1.31.1.1.1.6"
	oidIfHCInUcast     = ".1.3.6.1.2.1.31.1.1.1.7"
	oidIfHCInMulticast = ".1.3.6.1.2.1.31.1.1.1.8"
	oidIfHCInBroadcast = ".1.3.6.1.2.1.31.1.1.1.9"
	oidIfHCOutOctets   = ".1.3.6.1.2.1.31.1.1.1.10"
	oidIfHCOutUcast    = ".1.3.6.1.2.1.31.1.1.1.11"
	oidIfHCOutMulti    = ".1.3.6.1.2.1.31.1.1.1.12"
	oidIfHCOutBroad    = ".1.3.6.1.2.1.31.1.1.1.13"
)

// portStatColumns 端口统计项名到 IF-MIB 列的映射
var portStatColumns = map[string]string{
	"SAI_PORT_STAT_IF_IN_OCTETS":          oidIfHCInOctets,
	"SAI_PORT_STAT_IF_IN_UCAST_PKTS":      oidIfHCInUcast,
	"SAI_PORT_STAT_IF_IN_NON_UCAST_PKTS":  oidIfInNUcastPkts,
	"SAI_PORT_STAT_IF_IN_DISCARDS":        oidIfInDiscards,
	"SAI_PORT_STAT_IF_IN_ERRORS":          oidIfInErrors,
	"SAI_PORT_STAT_IF_IN_UNKNOWN_PROTOS":  oidIfInUnknown,
	"SAI_PORT_STAT_IF_IN_BROADCAST_PKTS":  oidIfHCInBroadcast,
	"SAI_PORT_STAT_IF_IN_MULTICAST_PKTS":  oidIfHCInMulticast,
	"SAI_PORT_STAT_IF_OUT_OCTETS":         oidIfHCOutOctets,
	"SAI_PORT_STAT_IF_OUT_UCAST_PKTS":     oidIfHCOutUcast,
	"SAI_PORT_STAT_IF_OUT_NON_UCAST_PKTS": oidIfOutNUcastPkts,
	"SAI_PORT_STAT_IF_OUT_DISCARDS":       oidIfOutDiscards,
	"SAI_PORT_STAT_IF_OUT_ERRORS":         oidIfOutErrors,
	"SAI_PORT_STAT_IF_OUT_BROADCAST_PKTS": oidIfHCOutBroad,
	"SAI_PORT_STAT_IF_OUT_MULTICAST_PKTS": oidIfHCOutMulti,
}

var (
	statColumns  = buildStatColumns()
	operStatusID = mustAttr(device.ObjectTypePort, "SAI_PORT_ATTR_OPER_STATUS")
)

func buildStatColumns() map[device.StatID]string {
	out := make(map[device.StatID]string, len(portStatColumns))
	for name, col := range portStatColumns {
		id, ok := device.StatByName(device.ObjectTypePort, name)
		if !ok {
			panic("snmp: unknown port stat " + name)
		}
		out[id] = col
	}
	return out
}

func mustAttr(ot device.ObjectType, name string) device.AttrID {
	a, ok := device.AttrByName(ot, name)
	if !ok {
		panic("snmp: unknown attribute " + name)
	}
	return a.ID
}

// Config 驱动连接的 SNMP agent
type Config struct {
	Target    string
	Port      uint16
	Community string
	Version   string
	Timeout   time.Duration
	Retries   int
}

// Driver 基于单个 SNMP 会话的 device.Device。
// gosnmp 会话不支持并发，请求串行执行。
type Driver struct {
	mu     sync.Mutex
	client *g.GoSNMP
}

var _ device.Device = (*Driver)(nil)

func New(cfg Config) *Driver {
	return &Driver{client: &g.GoSNMP{
		Target:             cfg.Target,
		Port:               cfg.Port,
		Community:          cfg.Community,
		Version:            Version(cfg.Version),
		Timeout:            cfg.Timeout,
		Retries:            cfg.Retries,
		MaxOids:            g.MaxOids,
		ExponentialTimeout: true,
	}}
}

// Version 将配置的版本字符串转为 gosnmp 版本，默认 v2c
func Version(v string) g.SnmpVersion {
	switch v {
	case "1":
		return g.Version1
	case "3":
		return g.Version3
	default:
		return g.Version2c
	}
}

func (d *Driver) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.client.Connect(); err != nil {
		return fmt.Errorf("snmp connect %s: %w", d.client.Target, err)
	}
	return nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client.Conn == nil {
		return nil
	}
	return d.client.Conn.Close()
}

// Ping 读取 sysUpTime，单位为百分之一秒
func (d *Driver) Ping(ctx context.Context) (uint64, error) {
	pdus, err := d.get(ctx, []string{oidSysUpTime})
	if err != nil {
		return 0, err
	}
	return ToCounter(pdus[0])
}

// StatOIDs 返回 ifIndex 端口上各 id 的实例 OID
func StatOIDs(ifIndex device.ObjectID, ids []device.StatID) ([]string, error) {
	out := make([]string, len(ids))
	for i, id := range ids {
		col, ok := statColumns[id]
		if !ok {
			return nil, fmt.Errorf("%s: %w", device.StatName(device.ObjectTypePort, id), device.ErrNotSupported)
		}
		out[i] = instance(col, ifIndex)
	}
	return out, nil
}

func instance(column string, ifIndex device.ObjectID) string {
	return column + "." + strconv.FormatUint(uint64(ifIndex), 10)
}

// ToCounter 将 counter 或 gauge 类型的 PDU 转为数值
func ToCounter(pdu g.SnmpPDU) (uint64, error) {
	switch pdu.Type {
	case g.Counter32, g.Counter64, g.Gauge32, g.Integer, g.Uinteger32, g.TimeTicks:
		return g.ToBigInt(pdu.Value).Uint64(), nil
	case g.NoSuchObject, g.NoSuchInstance, g.EndOfMibView:
		return 0, fmt.Errorf("%s: %w", pdu.Name, device.ErrNotSupported)
	default:
		return 0, fmt.Errorf("%s: unexpected pdu type %v: %w", pdu.Name, pdu.Type, device.ErrFailure)
	}
}

// OperStatus 将 IF-MIB ifOperStatus 映射为端口运行状态枚举
func OperStatus(ifOperStatus int64) int32 {
	switch ifOperStatus {
	case 1:
		return device.PortOperStatusUp
	case 2:
		return device.PortOperStatusDown
	case 3:
		return device.PortOperStatusTesting
	case 6:
		return device.PortOperStatusNotPresent
	default:
		return device.PortOperStatusUnknown
	}
}

func (d *Driver) get(ctx context.Context, oids []string) ([]g.SnmpPDU, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	byName := make(map[string]g.SnmpPDU, len(oids))
	for start := 0; start < len(oids); start += g.MaxOids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+g.MaxOids, len(oids))
		pkt, err := d.client.Get(oids[start:end])
		if err != nil {
			return nil, fmt.Errorf("snmp get: %v: %w", err, device.ErrFailure)
		}
		if pkt.Error != g.NoError {
			return nil, fmt.Errorf("snmp get: %v: %w", pkt.Error, device.ErrFailure)
		}
		for _, v := range pkt.Variables {
			byName[normalize(v.Name)] = v
		}
	}

	out := make([]g.SnmpPDU, len(oids))
	for i, oid := range oids {
		v, ok := byName[normalize(oid)]
		if !ok {
			return nil, fmt.Errorf("snmp get: %s missing from response: %w", oid, device.ErrFailure)
		}
		out[i] = v
	}
	return out, nil
}

func normalize(oid string) string {
	return "." + strings.TrimPrefix(oid, ".")
}

func (d *Driver) GetStats(ctx context.Context, ot device.ObjectType, oid device.ObjectID, ids []device.StatID) ([]uint64, error) {
	if ot != device.ObjectTypePort {
		return nil, fmt.Errorf("snmp %s stats: %w", ot, device.ErrNotSupported)
	}
	oids, err := StatOIDs(oid, ids)
	if err != nil {
		return nil, err
	}
	pdus, err := d.get(ctx, oids)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, len(pdus))
	for i, pdu := range pdus {
		if out[i], err = ToCounter(pdu); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *Driver) GetStatsExt(ctx context.Context, ot device.ObjectType, oid device.ObjectID, ids []device.StatID, mode device.StatsMode) ([]uint64, error) {
	if mode != device.StatsModeRead {
		return nil, fmt.Errorf("snmp stats mode %s: %w", mode, device.ErrNotSupported)
	}
	return d.GetStats(ctx, ot, oid, ids)
}

func (d *Driver) BulkGetStats(ctx context.Context, _ device.ObjectID, ot device.ObjectType, keys []device.ObjectID, ids []device.StatID, mode device.StatsMode) ([]error, [][]uint64, error) {
	if mode != device.StatsModeBulkRead {
		return nil, nil, fmt.Errorf("snmp stats mode %s: %w", mode, device.ErrNotSupported)
	}
	if ot != device.ObjectTypePort {
		return nil, nil, fmt.Errorf("snmp %s stats: %w", ot, device.ErrNotSupported)
	}

	oids := make([]string, 0, len(keys)*len(ids))
	for _, key := range keys {
		o, err := StatOIDs(key, ids)
		if err != nil {
			return nil, nil, err
		}
		oids = append(oids, o...)
	}
	pdus, err := d.get(ctx, oids)
	if err != nil {
		return nil, nil, err
	}

	statuses := make([]error, len(keys))
	values := make([][]uint64, len(keys))
	for i := range keys {
		row := make([]uint64, len(ids))
		for j := range ids {
			v, err := ToCounter(pdus[i*len(ids)+j])
			if err != nil {
				statuses[i] = err
				row = nil
				break
			}
			row[j] = v
		}
		values[i] = row
	}
	return statuses, values, nil
}

func (d *Driver) ClearStats(context.Context, device.ObjectType, device.ObjectID, []device.StatID) error {
	return fmt.Errorf("snmp clear: %w", device.ErrNotSupported)
}

// QueryStatsCapability 声明 IF-MIB 端口统计项支持单个和批量读取，
// 其他对象类型在 SNMP 下没有统计项。
func (d *Driver) QueryStatsCapability(_ context.Context, _ device.ObjectID, ot device.ObjectType, capacity int) ([]device.StatCapability, error) {
	if ot != device.ObjectTypePort {
		return []device.StatCapability{}, nil
	}
	if capacity < len(statColumns) {
		return nil, &device.BufferOverflowError{Required: len(statColumns)}
	}
	out := make([]device.StatCapability, 0, len(statColumns))
	for _, id := range device.Stats(device.ObjectTypePort) {
		if _, ok := statColumns[id]; ok {
			out = append(out, device.StatCapability{Stat: id, Modes: device.StatsModeRead | device.StatsModeBulkRead})
		}
	}
	return out, nil
}

func (d *Driver) GetAttributes(ctx context.Context, ot device.ObjectType, oid device.ObjectID, ids []device.AttrID) ([]device.AttrValue, error) {
	if ot != device.ObjectTypePort {
		return nil, fmt.Errorf("snmp %s attributes: %w", ot, device.ErrNotSupported)
	}
	oids := make([]string, len(ids))
	for i, id := range ids {
		if id != operStatusID {
			return nil, fmt.Errorf("snmp port attribute %d: %w", id, device.ErrNotSupported)
		}
		oids[i] = instance(oidIfOperStatus, oid)
	}
	pdus, err := d.get(ctx, oids)
	if err != nil {
		return nil, err
	}
	out := make([]device.AttrValue, len(pdus))
	for i, pdu := range pdus {
		if pdu.Type != g.Integer {
			return nil, fmt.Errorf("%s: unexpected pdu type %v: %w", pdu.Name, pdu.Type, device.ErrFailure)
		}
		out[i] = device.AttrValue{ID: ids[i], Enum: OperStatus(g.ToBigInt(pdu.Value).Int64())}
	}
	return out, nil
}
