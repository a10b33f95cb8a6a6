package device

import (
	"fmt"
	"strings"
)

// ObjectType 计数器所属的设备对象类型
type ObjectType int32

const (
	ObjectTypeNull ObjectType = iota
	ObjectTypePort
	ObjectTypeQueue
	ObjectTypeIngressPriorityGroup
	ObjectTypeRouterInterface
	ObjectTypeSwitch
	ObjectTypeTunnel
	ObjectTypeBufferPool
	ObjectTypeCounter
	ObjectTypeMacsecFlow
	ObjectTypeMacsecSA
	ObjectTypeACLCounter
	ObjectTypeENI
	objectTypeMax
)

var objectTypeNames = [...]string{
	ObjectTypeNull:                 "NULL",
	ObjectTypePort:                 "PORT",
	ObjectTypeQueue:                "QUEUE",
	ObjectTypeIngressPriorityGroup: "INGRESS_PRIORITY_GROUP",
	ObjectTypeRouterInterface:      "ROUTER_INTERFACE",
	ObjectTypeSwitch:               "SWITCH",
	ObjectTypeTunnel:               "TUNNEL",
	ObjectTypeBufferPool:           "BUFFER_POOL",
	ObjectTypeCounter:              "COUNTER",
	ObjectTypeMacsecFlow:           "MACSEC_FLOW",
	ObjectTypeMacsecSA:             "MACSEC_SA",
	ObjectTypeACLCounter:           "ACL_COUNTER",
	ObjectTypeENI:                  "ENI",
}

func (t ObjectType) String() string {
	if t >= 0 && t < objectTypeMax {
		return objectTypeNames[t]
	}
	return fmt.Sprintf("OBJECT_TYPE(%d)", int32(t))
}

// Valid 判断 t 是否为已知且非空的对象类型
func (t ObjectType) Valid() bool { return t > ObjectTypeNull && t < objectTypeMax }

// ParseObjectType 按名称查找对象类型，SAI_OBJECT_TYPE_ 前缀可省略
func ParseObjectType(name string) (ObjectType, bool) {
	name = strings.TrimPrefix(strings.ToUpper(name), "SAI_OBJECT_TYPE_")
	for t := ObjectTypeNull + 1; t < objectTypeMax; t++ {
		if objectTypeNames[t] == name {
			return t, true
		}
	}
	return ObjectTypeNull, false
}

// 统计项名称在所属对象类型内按 StatID 索引
var statNames = map[ObjectType][]string{
	ObjectTypePort: prefixed("SAI_PORT_STAT_",
		"IF_IN_OCTETS", "IF_IN_UCAST_PKTS", "IF_IN_NON_UCAST_PKTS", "IF_IN_DISCARDS",
		"IF_IN_ERRORS", "IF_IN_UNKNOWN_PROTOS", "IF_IN_BROADCAST_PKTS", "IF_IN_MULTICAST_PKTS",
		"IF_OUT_OCTETS", "IF_OUT_UCAST_PKTS", "IF_OUT_NON_UCAST_PKTS", "IF_OUT_DISCARDS",
		"IF_OUT_ERRORS", "IF_OUT_BROADCAST_PKTS", "IF_OUT_MULTICAST_PKTS",
		"IN_CONFIGURED_DROP_REASONS_0_DROPPED_PKTS", "IN_CONFIGURED_DROP_REASONS_1_DROPPED_PKTS",
		"OUT_CONFIGURED_DROP_REASONS_0_DROPPED_PKTS", "OUT_CONFIGURED_DROP_REASONS_1_DROPPED_PKTS"),
	ObjectTypeQueue: prefixed("SAI_QUEUE_STAT_",
		"PACKETS", "BYTES", "DROPPED_PACKETS", "DROPPED_BYTES",
		"CURR_OCCUPANCY_BYTES", "WATERMARK_BYTES", "SHARED_WATERMARK_BYTES"),
	ObjectTypeIngressPriorityGroup: prefixed("SAI_INGRESS_PRIORITY_GROUP_STAT_",
		"PACKETS", "BYTES", "CURR_OCCUPANCY_BYTES", "WATERMARK_BYTES",
		"SHARED_WATERMARK_BYTES", "XOFF_ROOM_WATERMARK_BYTES", "DROPPED_PACKETS"),
	ObjectTypeRouterInterface: prefixed("SAI_ROUTER_INTERFACE_STAT_",
		"IN_OCTETS", "IN_PACKETS", "OUT_OCTETS", "OUT_PACKETS",
		"IN_ERROR_OCTETS", "IN_ERROR_PACKETS", "OUT_ERROR_OCTETS", "OUT_ERROR_PACKETS"),
	ObjectTypeSwitch: prefixed("SAI_SWITCH_STAT_",
		"IN_CONFIGURED_DROP_REASONS_0_DROPPED_PKTS", "IN_CONFIGURED_DROP_REASONS_1_DROPPED_PKTS",
		"OUT_CONFIGURED_DROP_REASONS_0_DROPPED_PKTS", "OUT_CONFIGURED_DROP_REASONS_1_DROPPED_PKTS"),
	ObjectTypeTunnel: prefixed("SAI_TUNNEL_STAT_",
		"IN_OCTETS", "IN_PACKETS", "OUT_OCTETS", "OUT_PACKETS"),
	ObjectTypeBufferPool: prefixed("SAI_BUFFER_POOL_STAT_",
		"CURR_OCCUPANCY_BYTES", "WATERMARK_BYTES", "DROPPED_PACKETS", "XOFF_ROOM_WATERMARK_BYTES"),
	ObjectTypeCounter: prefixed("SAI_COUNTER_STAT_",
		"PACKETS", "BYTES"),
	ObjectTypeMacsecFlow: prefixed("SAI_MACSEC_FLOW_STAT_",
		"OTHER_ERR", "OCTETS_UNCONTROLLED", "OCTETS_CONTROLLED", "UCAST_PKTS_UNCONTROLLED",
		"UCAST_PKTS_CONTROLLED", "CONTROL_PKTS", "PKTS_UNTAGGED", "IN_PKTS_NO_TAG", "IN_PKTS_BAD_TAG"),
	ObjectTypeMacsecSA: prefixed("SAI_MACSEC_SA_STAT_",
		"OCTETS_ENCRYPTED", "OCTETS_PROTECTED", "OUT_PKTS_ENCRYPTED", "OUT_PKTS_PROTECTED",
		"IN_PKTS_UNCHECKED", "IN_PKTS_DELAYED", "IN_PKTS_LATE", "IN_PKTS_INVALID",
		"IN_PKTS_NOT_VALID", "IN_PKTS_NOT_USING_SA", "IN_PKTS_UNUSED_SA", "IN_PKTS_OK"),
	ObjectTypeENI: prefixed("SAI_ENI_STAT_",
		"FLOW_CREATED", "FLOW_CREATE_FAILED", "FLOW_DELETED", "FLOW_DELETE_FAILED",
		"RX_BYTES", "RX_PACKETS", "TX_BYTES", "TX_PACKETS"),
}

var statIndex = buildIndex(statNames)

func prefixed(prefix string, names ...string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = prefix + n
	}
	return out
}

func buildIndex(m map[ObjectType][]string) map[ObjectType]map[string]int32 {
	idx := make(map[ObjectType]map[string]int32, len(m))
	for ot, names := range m {
		byName := make(map[string]int32, len(names))
		for i, n := range names {
			byName[n] = int32(i)
		}
		idx[ot] = byName
	}
	return idx
}

// StatByName 按列名查找指定对象类型的统计项
func StatByName(ot ObjectType, name string) (StatID, bool) {
	id, ok := statIndex[ot][name]
	return StatID(id), ok
}

// StatName 返回统计项列名，无元数据时返回数字占位名
func StatName(ot ObjectType, id StatID) string {
	names := statNames[ot]
	if id >= 0 && int(id) < len(names) {
		return names[id]
	}
	return fmt.Sprintf("%s_STAT_%d", ot, int32(id))
}

// Stats 按 id 顺序返回该对象类型的全部统计项
func Stats(ot ObjectType) []StatID {
	out := make([]StatID, len(statNames[ot]))
	for i := range out {
		out[i] = StatID(i)
	}
	return out
}
