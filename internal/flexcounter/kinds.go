package flexcounter

import (
	"fmt"
	"strings"

	"github.com/counter-agent/internal/device"
)

// 组配置字段
const (
	PollIntervalField = "POLL_INTERVAL"
	StatusField       = "FLEX_COUNTER_STATUS"
	StatsModeField    = "STATS_MODE"

	StatusEnable  = "enable"
	StatusDisable = "disable"

	StatsModeRead         = "STATS_MODE_READ"
	StatsModeReadAndClear = "STATS_MODE_READ_AND_CLEAR"
)

// 计数器与属性列表字段
const (
	PortCounterIDList        = "PORT_COUNTER_ID_LIST"
	PortDebugCounterIDList   = "PORT_DEBUG_COUNTER_ID_LIST"
	PortAttrIDList           = "PORT_ATTR_ID_LIST"
	QueueCounterIDList       = "QUEUE_COUNTER_ID_LIST"
	QueueAttrIDList          = "QUEUE_ATTR_ID_LIST"
	PGCounterIDList          = "PG_COUNTER_ID_LIST"
	PGAttrIDList             = "PG_ATTR_ID_LIST"
	RIFCounterIDList         = "RIF_COUNTER_ID_LIST"
	SwitchDebugCounterIDList = "SWITCH_DEBUG_COUNTER_ID_LIST"
	TunnelCounterIDList      = "TUNNEL_COUNTER_ID_LIST"
	BufferPoolCounterIDList  = "BUFFER_POOL_COUNTER_ID_LIST"
	FlowCounterIDList        = "FLOW_COUNTER_ID_LIST"
	MacsecFlowCounterIDList  = "MACSEC_FLOW_COUNTER_ID_LIST"
	MacsecSACounterIDList    = "MACSEC_SA_COUNTER_ID_LIST"
	MacsecSAAttrIDList       = "MACSEC_SA_ATTR_ID_LIST"
	ACLCounterAttrIDList     = "ACL_COUNTER_ATTR_ID_LIST"
	ENICounterIDList         = "ENI_COUNTER_ID_LIST"
)

// 插件列表字段
const (
	PortPluginField        = "PORT_PLUGIN_LIST"
	QueuePluginField       = "QUEUE_PLUGIN_LIST"
	PGPluginField          = "PG_PLUGIN_LIST"
	RIFPluginField         = "RIF_PLUGIN_LIST"
	BufferPoolPluginField  = "BUFFER_POOL_PLUGIN_LIST"
	TunnelPluginField      = "TUNNEL_PLUGIN_LIST"
	FlowCounterPluginField = "FLOW_COUNTER_PLUGIN_LIST"
)

// FieldValue 一条注册字段
type FieldValue struct {
	Field string
	Value string
}

// kindSpec 描述一个携带 id 列表的注册字段
type kindSpec struct {
	field      string
	objectType device.ObjectType
	attribute  bool
	// 可清零的类遵循组的读清模式
	clearable bool
	bulkable  bool
}

func counterKind(field string, ot device.ObjectType) kindSpec {
	return kindSpec{field: field, objectType: ot, clearable: true, bulkable: true}
}

func attrKind(field string, ot device.ObjectType) kindSpec {
	return kindSpec{field: field, objectType: ot, attribute: true}
}

// kinds 有序，tick 按此顺序轮询
var kinds = []kindSpec{
	counterKind(PortCounterIDList, device.ObjectTypePort),
	counterKind(PortDebugCounterIDList, device.ObjectTypePort),
	attrKind(PortAttrIDList, device.ObjectTypePort),
	counterKind(QueueCounterIDList, device.ObjectTypeQueue),
	attrKind(QueueAttrIDList, device.ObjectTypeQueue),
	counterKind(PGCounterIDList, device.ObjectTypeIngressPriorityGroup),
	attrKind(PGAttrIDList, device.ObjectTypeIngressPriorityGroup),
	counterKind(RIFCounterIDList, device.ObjectTypeRouterInterface),
	counterKind(SwitchDebugCounterIDList, device.ObjectTypeSwitch),
	counterKind(TunnelCounterIDList, device.ObjectTypeTunnel),
	{field: BufferPoolCounterIDList, objectType: device.ObjectTypeBufferPool},
	counterKind(FlowCounterIDList, device.ObjectTypeCounter),
	counterKind(MacsecFlowCounterIDList, device.ObjectTypeMacsecFlow),
	counterKind(MacsecSACounterIDList, device.ObjectTypeMacsecSA),
	attrKind(MacsecSAAttrIDList, device.ObjectTypeMacsecSA),
	attrKind(ACLCounterAttrIDList, device.ObjectTypeACLCounter),
	counterKind(ENICounterIDList, device.ObjectTypeENI),
}

var kindByField = func() map[string]*kindSpec {
	m := make(map[string]*kindSpec, len(kinds))
	for i := range kinds {
		m[kinds[i].field] = &kinds[i]
	}
	return m
}()

var pluginObjectType = map[string]device.ObjectType{
	PortPluginField:        device.ObjectTypePort,
	QueuePluginField:       device.ObjectTypeQueue,
	PGPluginField:          device.ObjectTypeIngressPriorityGroup,
	RIFPluginField:         device.ObjectTypeRouterInterface,
	BufferPoolPluginField:  device.ObjectTypeBufferPool,
	TunnelPluginField:      device.ObjectTypeTunnel,
	FlowCounterPluginField: device.ObjectTypeCounter,
}

// pluginFields 插件执行顺序
var pluginFields = []string{
	PortPluginField,
	QueuePluginField,
	PGPluginField,
	RIFPluginField,
	BufferPoolPluginField,
	TunnelPluginField,
	FlowCounterPluginField,
}

// IsCounterField 判断 field 是否为计数器或属性列表字段
func IsCounterField(field string) bool {
	_, ok := kindByField[field]
	return ok
}

// IsPluginField 判断 field 是否为插件列表字段
func IsPluginField(field string) bool {
	_, ok := pluginObjectType[field]
	return ok
}

// splitList 按逗号拆分列表，忽略空项
func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseIDs 解析 id 列表字段中的名称
func (k *kindSpec) parseIDs(names []string) ([]int32, error) {
	ids := make([]int32, 0, len(names))
	for _, n := range names {
		if k.attribute {
			a, ok := device.AttrByName(k.objectType, n)
			if !ok {
				return nil, fmt.Errorf("%s: unknown %s attribute %q", k.field, k.objectType, n)
			}
			ids = append(ids, int32(a.ID))
			continue
		}
		id, ok := device.StatByName(k.objectType, n)
		if !ok {
			return nil, fmt.Errorf("%s: unknown %s stat %q", k.field, k.objectType, n)
		}
		ids = append(ids, int32(id))
	}
	return ids, nil
}

func (k *kindSpec) name(id int32) string {
	if k.attribute {
		if a, err := device.Attr(k.objectType, device.AttrID(id)); err == nil {
			return a.Name
		}
		return fmt.Sprintf("%s_ATTR_%d", k.objectType, id)
	}
	return device.StatName(k.objectType, device.StatID(id))
}
