package device

import (
	"fmt"
	"strconv"
)

// ValueKind 属性值的语义类型，决定驱动填充 AttrValue 的哪个字段以及如何格式化
type ValueKind int

const (
	ValueBool ValueKind = iota + 1
	ValueUint8
	ValueUint32
	ValueUint64
	ValueInt32
	ValueObjectID
	ValueEnum
)

// AttrValue 一次属性读取的结果，只有与 ValueKind 对应的字段有效
type AttrValue struct {
	ID   AttrID
	Bool bool
	Uint uint64
	Int  int64
	OID  ObjectID
	Enum int32
}

// AttrInfo 属性元数据
type AttrInfo struct {
	ObjectType ObjectType
	ID         AttrID
	Name       string
	Kind       ValueKind
	EnumNames  map[int32]string
}

// Format 按属性语义类型格式化 v
func (a AttrInfo) Format(v AttrValue) string {
	switch a.Kind {
	case ValueBool:
		return strconv.FormatBool(v.Bool)
	case ValueUint8, ValueUint32, ValueUint64:
		return strconv.FormatUint(v.Uint, 10)
	case ValueInt32:
		return strconv.FormatInt(v.Int, 10)
	case ValueObjectID:
		return FormatOID(v.OID)
	case ValueEnum:
		if name, ok := a.EnumNames[v.Enum]; ok {
			return name
		}
		return strconv.FormatInt(int64(v.Enum), 10)
	}
	return ""
}

var portOperStatus = map[int32]string{
	0: "SAI_PORT_OPER_STATUS_UNKNOWN",
	1: "SAI_PORT_OPER_STATUS_UP",
	2: "SAI_PORT_OPER_STATUS_DOWN",
	3: "SAI_PORT_OPER_STATUS_TESTING",
	4: "SAI_PORT_OPER_STATUS_NOT_PRESENT",
}

// 端口运行状态取值
const (
	PortOperStatusUnknown int32 = iota
	PortOperStatusUp
	PortOperStatusDown
	PortOperStatusTesting
	PortOperStatusNotPresent
)

var attrs = map[ObjectType][]AttrInfo{
	ObjectTypePort: {
		{Name: "SAI_PORT_ATTR_OPER_STATUS", Kind: ValueEnum, EnumNames: portOperStatus},
	},
	ObjectTypeQueue: {
		{Name: "SAI_QUEUE_ATTR_PAUSE_STATUS", Kind: ValueBool},
	},
	ObjectTypeIngressPriorityGroup: {
		{Name: "SAI_INGRESS_PRIORITY_GROUP_ATTR_PORT", Kind: ValueObjectID},
	},
	ObjectTypeMacsecSA: {
		{Name: "SAI_MACSEC_SA_ATTR_CONFIGURED_EGRESS_XPN", Kind: ValueUint64},
		{Name: "SAI_MACSEC_SA_ATTR_AN", Kind: ValueUint8},
		{Name: "SAI_MACSEC_SA_ATTR_CURRENT_XPN", Kind: ValueUint64},
	},
	ObjectTypeACLCounter: {
		{Name: "SAI_ACL_COUNTER_ATTR_PACKETS", Kind: ValueUint64},
		{Name: "SAI_ACL_COUNTER_ATTR_BYTES", Kind: ValueUint64},
	},
}

func init() {
	for ot, list := range attrs {
		for i := range list {
			list[i].ObjectType = ot
			list[i].ID = AttrID(i)
		}
	}
}

// AttrByName 按名称查找指定对象类型的属性
func AttrByName(ot ObjectType, name string) (AttrInfo, bool) {
	for _, a := range attrs[ot] {
		if a.Name == name {
			return a, true
		}
	}
	return AttrInfo{}, false
}

// Attr 返回属性 id 的元数据
func Attr(ot ObjectType, id AttrID) (AttrInfo, error) {
	list := attrs[ot]
	if id < 0 || int(id) >= len(list) {
		return AttrInfo{}, fmt.Errorf("unknown attribute %d for %s", id, ot)
	}
	return list[id], nil
}
