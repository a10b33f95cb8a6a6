package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀（COUNTER_AGENT_REDIS_ADDR -> redis.addr）
const EnvPrefix = "COUNTER_AGENT"

var valid = validator.New()

// Config 全局配置结构体（聚合所有核心模块）
type Config struct {
	Server ServerConfig  `yaml:"server" mapstructure:"server" comment:"HTTP服务配置（metrics/health/groups）"`
	Redis  RedisConfig   `yaml:"redis" mapstructure:"redis" comment:"计数器数据库配置"`
	Device DeviceConfig  `yaml:"device" mapstructure:"device" comment:"设备驱动配置"`
	Health HealthConfig  `yaml:"health" mapstructure:"health" comment:"健康检查配置"`
	Groups []GroupConfig `yaml:"groups" mapstructure:"groups" comment:"静态轮询组及对象注册"`
	Log    ZapLogConfig  `yaml:"log" mapstructure:"log" comment:"日志配置"`
}

// ServerConfig HTTP服务配置（超时统一为time.Duration，支持"30s"解析）
type ServerConfig struct {
	Addr         string        `yaml:"addr" mapstructure:"addr" env:"SERVER_ADDR" validate:"required,hostname_port" comment:"HTTP监听地址（格式：ip:port）"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" env:"SERVER_READ_TIMEOUT" validate:"required,gt=0" comment:"读取超时时间（如30s）"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" env:"SERVER_WRITE_TIMEOUT" validate:"required,gt=0" comment:"写入超时时间（如30s）"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" validate:"required,gt=0" comment:"空闲连接超时时间（如60s）"`
}

// RedisConfig 计数器表所在的 Redis
type RedisConfig struct {
	Network     string        `yaml:"network" mapstructure:"network" env:"REDIS_NETWORK" validate:"required,oneof=tcp unix" comment:"连接方式（tcp/unix）" default:"tcp"`
	Addr        string        `yaml:"addr" mapstructure:"addr" env:"REDIS_ADDR" validate:"required" comment:"地址（host:port 或 unix socket 路径）" default:"127.0.0.1:6379"`
	Password    string        `yaml:"password" mapstructure:"password" env:"REDIS_PASSWORD" comment:"密码"`
	DB          int           `yaml:"db" mapstructure:"db" env:"REDIS_DB" validate:"gte=0,lte=15" comment:"库编号" default:"2"`
	Table       string        `yaml:"table" mapstructure:"table" env:"REDIS_TABLE" validate:"required" comment:"计数器表名" default:"COUNTERS"`
	PoolSize    int           `yaml:"pool_size" mapstructure:"pool_size" env:"REDIS_POOL_SIZE" validate:"gte=0" comment:"连接池大小（0 使用默认值）" default:"0"`
	DialTimeout time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" validate:"required,gt=0" comment:"连接超时" default:"5s"`
}

// DeviceConfig 设备驱动
type DeviceConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver" env:"DEVICE_DRIVER" validate:"required,oneof=snmp sim" comment:"驱动（snmp/sim）" default:"sim"`
	SwitchIndex uint8      `yaml:"switch_index" mapstructure:"switch_index" env:"DEVICE_SWITCH_INDEX" comment:"交换机编号（写入虚拟ID高位）" default:"0"`
	SwitchRID   uint64     `yaml:"switch_rid" mapstructure:"switch_rid" env:"DEVICE_SWITCH_RID" comment:"交换机真实ID（0 表示与虚拟ID相同）" default:"0"`
	SNMP        SNMPConfig `yaml:"snmp" mapstructure:"snmp" comment:"SNMP 驱动参数（driver=snmp 时生效）"`
}

// SNMPConfig SNMP 目标
type SNMPConfig struct {
	Target    string        `yaml:"target" mapstructure:"target" env:"DEVICE_SNMP_TARGET" comment:"交换机地址"`
	Port      uint16        `yaml:"port" mapstructure:"port" env:"DEVICE_SNMP_PORT" validate:"gt=0" comment:"端口" default:"161"`
	Community string        `yaml:"community" mapstructure:"community" env:"DEVICE_SNMP_COMMUNITY" comment:"团体名" default:"public"`
	Version   string        `yaml:"version" mapstructure:"version" env:"DEVICE_SNMP_VERSION" validate:"oneof=1 2c 3" comment:"协议版本（1/2c/3）" default:"2c"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout" env:"DEVICE_SNMP_TIMEOUT" validate:"gt=0" comment:"单次请求超时" default:"2s"`
	Retries   int           `yaml:"retries" mapstructure:"retries" env:"DEVICE_SNMP_RETRIES" validate:"gte=0" comment:"重试次数" default:"1"`
}

// HealthConfig 后台健康检查
type HealthConfig struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval" env:"HEALTH_INTERVAL" validate:"required,gt=0" comment:"检查间隔（如10s）" default:"10s"`
}

// GroupConfig 一个轮询组（字段名与计数器表的组配置字段一致）
type GroupConfig struct {
	Name         string         `yaml:"name" mapstructure:"name" validate:"required" comment:"组名（如 PORT_STAT_COUNTER）"`
	PollInterval time.Duration  `yaml:"poll_interval" mapstructure:"poll_interval" validate:"gte=0" comment:"轮询间隔（0 表示未配置）"`
	Status       string         `yaml:"status" mapstructure:"status" validate:"omitempty,oneof=enable disable" comment:"启用状态（enable/disable）"`
	StatsMode    string         `yaml:"stats_mode" mapstructure:"stats_mode" validate:"omitempty,oneof=STATS_MODE_READ STATS_MODE_READ_AND_CLEAR" comment:"读取模式"`
	Plugins      []PluginConfig `yaml:"plugins" mapstructure:"plugins" validate:"dive" comment:"后处理脚本"`
	Objects      []ObjectConfig `yaml:"objects" mapstructure:"objects" validate:"dive" comment:"注册的对象"`
}

// PluginConfig 一个 Lua 脚本，启动时加载到 Redis 并以 SHA 注册
type PluginConfig struct {
	Field  string `yaml:"field" mapstructure:"field" validate:"required" comment:"插件字段（如 PORT_PLUGIN_LIST）"`
	Script string `yaml:"script" mapstructure:"script" validate:"required" comment:"脚本路径"`
}

// ObjectConfig 一个对象的计数器注册
type ObjectConfig struct {
	Type  string   `yaml:"type" mapstructure:"type" validate:"required" comment:"对象类型（如 PORT）"`
	Index uint64   `yaml:"index" mapstructure:"index" validate:"gt=0" comment:"对象序号（写入虚拟ID低位）"`
	RID   uint64   `yaml:"rid" mapstructure:"rid" comment:"真实ID（snmp 下为 ifIndex，0 表示与序号相同）"`
	Field string   `yaml:"field" mapstructure:"field" validate:"required" comment:"ID 列表字段（如 PORT_COUNTER_ID_LIST）"`
	IDs   []string `yaml:"ids" mapstructure:"ids" comment:"计数器或属性名"`
}

// ZapLogConfig 日志配置（修复标签笔误、补充默认值）
type ZapLogConfig struct {
	Level     string `yaml:"level" mapstructure:"level" env:"LOG_LEVEL" validate:"required,oneof=debug info warn error panic fatal" comment:"日志级别" default:"info"`
	Format    string `yaml:"format" mapstructure:"format" env:"LOG_FORMAT" validate:"required,oneof=json console" comment:"日志格式（json/console）" default:"json"`
	Path      string `yaml:"path" mapstructure:"path" env:"LOG_PATH" validate:"required" comment:"日志存储路径" default:"./logs"`
	MaxSize   int    `yaml:"max_size" mapstructure:"max_size" env:"LOG_MAX_SIZE" validate:"required,gt=0" comment:"单个日志文件最大大小（MB）" default:"100"`
	MaxBackup int    `yaml:"max_backup" mapstructure:"max_backup" env:"LOG_MAX_BACKUP" validate:"gte=0" comment:"日志文件最大备份数" default:"30"`
	MaxAge    int    `yaml:"max_age" mapstructure:"max_age" env:"LOG_MAX_AGE" validate:"gte=0" comment:"日志文件最大保存天数" default:"7"`
	Compress  bool   `yaml:"compress" mapstructure:"compress" env:"LOG_COMPRESS" comment:"是否压缩过期日志" default:"true"`
}

// NewDefaultConfig 创建默认配置（所有字段兜底，避免空指针/非法值）
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         "0.0.0.0:9108",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Redis: RedisConfig{
			Network:     "tcp",
			Addr:        "127.0.0.1:6379",
			DB:          2,
			Table:       "COUNTERS",
			DialTimeout: 5 * time.Second,
		},
		Device: DeviceConfig{
			Driver: "sim",
			SNMP: SNMPConfig{
				Port:      161,
				Community: "public",
				Version:   "2c",
				Timeout:   2 * time.Second,
				Retries:   1,
			},
		},
		Health: HealthConfig{
			Interval: 10 * time.Second,
		},
		Log: ZapLogConfig{
			Level:     "info",
			Format:    "json",
			Path:      "./logs",
			MaxSize:   100,
			MaxBackup: 30,
			MaxAge:    7,
			Compress:  true,
		},
	}
}

// LoadConfigWithCli 支持 time.Duration，(.env + Flags + YAML + ENV)
func LoadConfigWithCli(cmd *cobra.Command) (*Config, error) {
	// 0. 先加载 .env，文件不存在时忽略
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	v := viper.New()

	// 1. 绑定 Cobra Flags → Viper
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	// 2. 解析配置文件 (--config)
	configFile, _ := cmd.Flags().GetString("config")
	return load(v, configFile)
}

// LoadFile 只从配置文件和环境变量加载（测试与工具使用）
func LoadFile(path string) (*Config, error) {
	return load(viper.New(), path)
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func load(v *viper.Viper, configFile string) (*Config, error) {
	cfg := NewDefaultConfig()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	// 3. 绑定环境变量 ENV -> Viper （COUNTER_AGENT_REDIS_ADDR -> redis.addr）
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	// 4. 解码反序列化到结构体（支持 time.Duration）
	decoderConfig := &mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	}

	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// 5. 校验配置
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// envKeys AutomaticEnv 只对 viper 已知的 key 生效，没有 flag 时需要显式绑定
var envKeys = []string{
	"server.addr", "server.read_timeout", "server.write_timeout", "server.idle_timeout",
	"redis.network", "redis.addr", "redis.password", "redis.db", "redis.table", "redis.pool_size", "redis.dial_timeout",
	"device.driver", "device.switch_index", "device.switch_rid",
	"device.snmp.target", "device.snmp.port", "device.snmp.community", "device.snmp.version", "device.snmp.timeout", "device.snmp.retries",
	"health.interval",
	"log.level", "log.format", "log.path", "log.max_size", "log.max_backup", "log.max_age", "log.compress",
}

func bindEnv(v *viper.Viper) {
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}
}

// Validate 配置校验
func (c *Config) Validate() error {
	err := valid.Struct(c)
	if err != nil {
		return err
	}
	// 	1,校验Server服务配置
	if err := c.Server.Validate(); err != nil {
		return err
	}
	// 	2，校验Redis
	if err := c.Redis.Validate(); err != nil {
		return err
	}
	// 	3，校验设备驱动
	if err := c.Device.Validate(); err != nil {
		return err
	}
	// 	4，校验轮询组
	if err := validateGroups(c.Groups); err != nil {
		return err
	}
	// 	5，校验日志配置
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return nil
}
