package agent

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/counter-agent/pkg/config"
)

var (
	cfgFile   string
	envFile   string
	GlobalCfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "counter-agent",
	Short: "Switch counter poller: reads ASIC/SNMP stats per polling group and publishes them to the counters DB",
	RunE: func(cmd *cobra.Command, args []string) error {
		var err error
		GlobalCfg, err = config.LoadConfigWithCli(cmd)
		if err != nil {
			// 统一输出错误到 stderr，不返回给 cobra
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintf(os.Stderr, "请检查配置文件路径或使用 -c 参数指定\n")
			os.Exit(1)
		}
		if err := Run(cmd.Context(), GlobalCfg); err != nil {
			fmt.Fprintf(os.Stderr, "服务启动失败: %v\n", err)
			os.Exit(1)
		}
		return nil
	},
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径（如 configs/config.yaml）")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", ".env 文件路径（不存在时忽略）")
	// 注册分组 flag
	initServerFlags(rootCmd)
	initRedisFlags(rootCmd)
	initDeviceFlags(rootCmd)
	initLogFlags(rootCmd)
}
