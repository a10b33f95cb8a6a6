package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  addr: 127.0.0.1:9200
redis:
  addr: 10.0.0.5:6379
  db: 4
device:
  driver: snmp
  switch_index: 1
  snmp:
    target: 10.0.0.1
    community: private
groups:
  - name: PORT_STAT_COUNTER
    poll_interval: 1s
    status: enable
    plugins:
      - field: PORT_PLUGIN_LIST
        script: /etc/counter-agent/port_rates.lua
    objects:
      - type: PORT
        index: 1
        rid: 17
        field: PORT_COUNTER_ID_LIST
        ids: [SAI_PORT_STAT_IF_IN_OCTETS, SAI_PORT_STAT_IF_OUT_OCTETS]
  - name: PORT_STATUS
    poll_interval: 500ms
    stats_mode: STATS_MODE_READ
    objects:
      - type: port
        index: 1
        field: PORT_ATTR_ID_LIST
        ids: SAI_PORT_ATTR_OPER_STATUS
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body+"\nlog:\n  path: "+filepath.Join(dir, "logs")+"\n"), 0o644))
	return path
}

func validDefault(t *testing.T) *Config {
	cfg := NewDefaultConfig()
	cfg.Log.Path = t.TempDir()
	return cfg
}

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, validDefault(t).Validate())
}

func TestLoadFile(t *testing.T) {
	t.Setenv("COUNTER_AGENT_REDIS_TABLE", "FLEX_COUNTERS")
	t.Setenv("COUNTER_AGENT_HEALTH_INTERVAL", "3s")

	cfg, err := LoadFile(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9200", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout, "unset keys keep defaults")
	assert.Equal(t, "10.0.0.5:6379", cfg.Redis.Addr)
	assert.Equal(t, 4, cfg.Redis.DB)
	assert.Equal(t, "FLEX_COUNTERS", cfg.Redis.Table)
	assert.Equal(t, 3*time.Second, cfg.Health.Interval)
	assert.Equal(t, "snmp", cfg.Device.Driver)
	assert.Equal(t, uint8(1), cfg.Device.SwitchIndex)
	assert.Equal(t, "private", cfg.Device.SNMP.Community)
	assert.Equal(t, uint16(161), cfg.Device.SNMP.Port)

	require.Len(t, cfg.Groups, 2)
	port := cfg.Groups[0]
	assert.Equal(t, "PORT_STAT_COUNTER", port.Name)
	assert.Equal(t, time.Second, port.PollInterval)
	assert.Equal(t, "enable", port.Status)
	assert.Equal(t, []PluginConfig{{Field: "PORT_PLUGIN_LIST", Script: "/etc/counter-agent/port_rates.lua"}}, port.Plugins)
	assert.Equal(t, []ObjectConfig{{
		Type:  "PORT",
		Index: 1,
		RID:   17,
		Field: "PORT_COUNTER_ID_LIST",
		IDs:   []string{"SAI_PORT_STAT_IF_IN_OCTETS", "SAI_PORT_STAT_IF_OUT_OCTETS"},
	}}, port.Objects)

	status := cfg.Groups[1]
	assert.Equal(t, 500*time.Millisecond, status.PollInterval)
	assert.Equal(t, []string{"SAI_PORT_ATTR_OPER_STATUS"}, status.Objects[0].IDs, "a scalar id list is split")
}

func TestLoadConfigWithCli(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("COUNTER_AGENT_REDIS_TABLE=FROM_DOTENV\nCOUNTER_AGENT_REDIS_DB=7\n"), 0o644))
	// godotenv 会写入进程环境变量，测试结束后恢复
	t.Setenv("COUNTER_AGENT_REDIS_TABLE", "")
	t.Setenv("COUNTER_AGENT_REDIS_DB", "")
	require.NoError(t, os.Unsetenv("COUNTER_AGENT_REDIS_TABLE"))
	require.NoError(t, os.Unsetenv("COUNTER_AGENT_REDIS_DB"))

	cmd := &cobra.Command{Use: "test"}
	f := cmd.Flags()
	f.String("config", "", "")
	f.String("env-file", "", "")
	f.String("redis.addr", "127.0.0.1:6379", "")
	f.String("log.path", "", "")
	require.NoError(t, f.Parse([]string{
		"--config", writeConfig(t, sampleYAML),
		"--env-file", envFile,
		"--redis.addr", "192.168.1.9:6380",
		"--log.path", filepath.Join(dir, "logs"),
	}))

	cfg, err := LoadConfigWithCli(cmd)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.9:6380", cfg.Redis.Addr, "flags beat the config file")
	assert.Equal(t, "FROM_DOTENV", cfg.Redis.Table)
	assert.Equal(t, 7, cfg.Redis.DB, "env beats the config file")
	assert.Len(t, cfg.Groups, 2)
}

func TestMissingEnvFileIsIgnored(t *testing.T) {
	assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "absent.env")))
	assert.NoError(t, loadEnvFile(""))
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	_, err = LoadFile(writeConfig(t, "redis:\n  network: udp\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	port := ObjectConfig{Type: "PORT", Index: 1, Field: "PORT_COUNTER_ID_LIST", IDs: []string{"SAI_PORT_STAT_IF_IN_OCTETS"}}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad server addr", mutate: func(c *Config) { c.Server.Addr = "nope" }, wantErr: true},
		{name: "zero read timeout", mutate: func(c *Config) { c.Server.ReadTimeout = 0 }, wantErr: true},
		{name: "redis tcp without port", mutate: func(c *Config) { c.Redis.Addr = "localhost" }, wantErr: true},
		{name: "redis unix socket", mutate: func(c *Config) { c.Redis.Network = "unix"; c.Redis.Addr = "/var/run/redis/redis.sock" }},
		{name: "redis db out of range", mutate: func(c *Config) { c.Redis.DB = 16 }, wantErr: true},
		{name: "redis table with colon", mutate: func(c *Config) { c.Redis.Table = "COUNTERS:" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Device.Driver = "sai" }, wantErr: true},
		{name: "snmp without target", mutate: func(c *Config) { c.Device.Driver = "snmp" }, wantErr: true},
		{name: "snmp with target", mutate: func(c *Config) { c.Device.Driver = "snmp"; c.Device.SNMP.Target = "10.0.0.1" }},
		{name: "bad snmp version", mutate: func(c *Config) { c.Device.SNMP.Version = "4" }, wantErr: true},
		{name: "zero health interval", mutate: func(c *Config) { c.Health.Interval = 0 }, wantErr: true},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: true},
		{
			name: "group ok",
			mutate: func(c *Config) {
				c.Groups = []GroupConfig{{Name: "PORT_STAT_COUNTER", PollInterval: time.Second, Status: "enable", Objects: []ObjectConfig{port}}}
			},
		},
		{
			name:    "group without name",
			mutate:  func(c *Config) { c.Groups = []GroupConfig{{PollInterval: time.Second}} },
			wantErr: true,
		},
		{
			name: "duplicated group",
			mutate: func(c *Config) {
				c.Groups = []GroupConfig{{Name: "G"}, {Name: "G"}}
			},
			wantErr: true,
		},
		{
			name:    "bad status",
			mutate:  func(c *Config) { c.Groups = []GroupConfig{{Name: "G", Status: "on"}} },
			wantErr: true,
		},
		{
			name:    "bad stats mode",
			mutate:  func(c *Config) { c.Groups = []GroupConfig{{Name: "G", StatsMode: "STATS_MODE_CLEAR"}} },
			wantErr: true,
		},
		{
			name:    "sub millisecond interval",
			mutate:  func(c *Config) { c.Groups = []GroupConfig{{Name: "G", PollInterval: time.Microsecond}} },
			wantErr: true,
		},
		{
			name: "plugin field",
			mutate: func(c *Config) {
				c.Groups = []GroupConfig{{Name: "G", Plugins: []PluginConfig{{Field: "PORT_COUNTER_ID_LIST", Script: "x.lua"}}}}
			},
			wantErr: true,
		},
		{
			name: "plugin without script",
			mutate: func(c *Config) {
				c.Groups = []GroupConfig{{Name: "G", Plugins: []PluginConfig{{Field: "PORT_PLUGIN_LIST"}}}}
			},
			wantErr: true,
		},
		{
			name: "unknown object type",
			mutate: func(c *Config) {
				o := port
				o.Type = "LINK"
				c.Groups = []GroupConfig{{Name: "G", Objects: []ObjectConfig{o}}}
			},
			wantErr: true,
		},
		{
			name: "zero object index",
			mutate: func(c *Config) {
				o := port
				o.Index = 0
				c.Groups = []GroupConfig{{Name: "G", Objects: []ObjectConfig{o}}}
			},
			wantErr: true,
		},
		{
			name: "object field",
			mutate: func(c *Config) {
				o := port
				o.Field = "PORT_PLUGIN_LIST"
				c.Groups = []GroupConfig{{Name: "G", Objects: []ObjectConfig{o}}}
			},
			wantErr: true,
		},
		{
			name: "duplicated object",
			mutate: func(c *Config) {
				o := port
				o.Type = "port"
				c.Groups = []GroupConfig{{Name: "G", Objects: []ObjectConfig{port, o}}}
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefault(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestShippedConfigLoads(t *testing.T) {
	t.Setenv("COUNTER_AGENT_LOG_PATH", t.TempDir())
	cfg, err := LoadFile(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sim", cfg.Device.Driver)
	assert.Len(t, cfg.Groups, 3)
	assert.Equal(t, "STATS_MODE_READ_AND_CLEAR", cfg.Groups[2].StatsMode)
}
