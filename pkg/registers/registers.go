package registers

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/counter-agent/pkg/logger"
)

type Module struct {
	Enabled bool
	Name    string
	NewFunc func() Component
}

// RegisterComponents 组件注册统一入口（开关控制 + 循环注册）
// 新增依赖只需在 modules 列表添加一条
// 返回所有已注册组件
func RegisterComponents(agent Agent, modules []Module) ([]Component, error) {
	var registered []Component
	for _, m := range modules {
		if !m.Enabled {
			logger.Debug("component disabled", agentLogGroup, zap.String("name", m.Name))
			continue
		}
		c := m.NewFunc()
		agent.Register(c)
		registered = append(registered, c)
		logger.Debug("registered component", agentLogGroup, zap.String("name", m.Name))
	}
	if len(registered) == 0 {
		return nil, fmt.Errorf("no components enabled; check the device and redis config")
	}
	// 日志输出所有已启用的组件（便于排查配置）
	names := make([]string, len(registered))
	for i, c := range registered {
		names[i] = c.Name()
	}
	logger.Debug("all enabled components registered", agentLogGroup, zap.Strings("enabled_components", names))
	return registered, nil
}
