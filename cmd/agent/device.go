package agent

import (
	"github.com/spf13/cobra"
)

func initRedisFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	f.String("redis.network", defaultCfg.Redis.Network, "-> Redis network [tcp,unix] | 连接方式")
	f.String("redis.addr", defaultCfg.Redis.Addr, "-> Redis address | 地址")
	f.String("redis.password", defaultCfg.Redis.Password, "-> Redis password | 密码")
	f.Int("redis.db", defaultCfg.Redis.DB, "-> Counters DB number | 库编号")
	f.String("redis.table", defaultCfg.Redis.Table, "-> Counters table name | 计数器表名")
	f.Int("redis.pool_size", defaultCfg.Redis.PoolSize, "-> Connection pool size, 0 for default | 连接池大小")
	f.Duration("redis.dial_timeout", defaultCfg.Redis.DialTimeout, "-> Dial timeout | 连接超时")
}

func initDeviceFlags(root *cobra.Command) {
	f := root.PersistentFlags()
	prefix := "device."

	f.String(prefix+"driver", defaultCfg.Device.Driver, "-> Device driver [snmp,sim] | 设备驱动")
	f.Uint8(prefix+"switch_index", defaultCfg.Device.SwitchIndex, "-> Switch index in virtual ids | 交换机编号")
	f.Uint64(prefix+"switch_rid", defaultCfg.Device.SwitchRID, "-> Switch real id, 0 for the virtual id | 交换机真实ID")
	f.String(prefix+"snmp.target", defaultCfg.Device.SNMP.Target, "-> SNMP agent address | SNMP 地址")
	f.Uint16(prefix+"snmp.port", defaultCfg.Device.SNMP.Port, "-> SNMP port | SNMP 端口")
	f.String(prefix+"snmp.community", defaultCfg.Device.SNMP.Community, "-> SNMP community | 团体名")
	f.String(prefix+"snmp.version", defaultCfg.Device.SNMP.Version, "-> SNMP version [1,2c,3] | 协议版本")
	f.Duration(prefix+"snmp.timeout", defaultCfg.Device.SNMP.Timeout, "-> SNMP request timeout | 请求超时")
	f.Int(prefix+"snmp.retries", defaultCfg.Device.SNMP.Retries, "-> SNMP retries | 重试次数")
}
