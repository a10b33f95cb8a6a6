package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/counter-agent/internal/server"
	"github.com/counter-agent/pkg/config"
	"github.com/counter-agent/pkg/logger"
	"github.com/counter-agent/pkg/registers"
	"github.com/counter-agent/pkg/signal"
	"github.com/counter-agent/pkg/util"
)

const shutdownTimeout = 10 * time.Second

// Run 启动顺序：日志 → banner → 依赖与轮询引擎 → HTTP → 等待退出信号
func Run(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	//	1，初始化日志
	if err := logger.Init(cfg.Log); err != nil {
		return fmt.Errorf("日志初始化失败: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.SetDefaultGroup("agent")

	// 2，banner
	util.PrintBanner(os.Stdout, "counter-agent", "blue",
		fmt.Sprintf("driver=%s table=%s@%s/%d", cfg.Device.Driver, cfg.Redis.Table, cfg.Redis.Addr, cfg.Redis.DB))
	logger.Info("log initialization successful", "",
		zap.String("path", cfg.Log.Path), zap.String("level", cfg.Log.Level), zap.String("format", cfg.Log.Format))

	// 3，依赖、轮询引擎、静态组
	rt, err := registers.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	// 4，HTTP服务（metrics/health/groups）
	httpServer := server.NewHTTPServer(cfg.Server, rt.Registry, rt.Agent, rt.Manager)
	if err := httpServer.Start(); err != nil {
		return errors.Join(fmt.Errorf("start HTTP server failed: %w", err), rt.Agent.Shutdown(ctx))
	}

	// HTTP 运行期失败同样触发关闭
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case err := <-httpServer.Errors():
			cancel(err)
		case <-runCtx.Done():
		}
	}()

	// 5，阻塞等待退出信号，关闭顺序：HTTP服务 → 组件（轮询引擎 → 设备 → Redis）
	return signal.WaitForShutdown(runCtx, shutdownTimeout, func(ctx context.Context) error {
		return errors.Join(httpServer.Shutdown(ctx), rt.Agent.Shutdown(ctx))
	})
}
