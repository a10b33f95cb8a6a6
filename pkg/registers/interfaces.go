package registers

import "context"

// Agent 后台组件管理器（封装组件生命周期与周期性健康检查）
// 新增依赖仅需实现 Component 接口，通过 Agent 注册即可
type Agent interface {
	Register(component Component)       // 注册组件
	Start(ctx context.Context) error    // 初始化全部组件并启动检查循环
	Healthy() error                     // 最近一轮检查结果，nil 表示全部健康
	Shutdown(ctx context.Context) error // 优雅停止（逆序关闭组件）
}

// Component 外部依赖组件（Redis、设备驱动、轮询引擎）
type Component interface {
	Name() string                    // 组件名称（唯一标识）
	Init(ctx context.Context) error  // 初始化（建立连接、预检查资源）
	Check(ctx context.Context) error // 健康检查
	Close() error                    // 关闭（释放资源）
}
