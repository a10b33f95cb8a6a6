package registers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/counter-agent/pkg/logger"
	"github.com/counter-agent/pkg/metrics"
)

const agentLogGroup = "component-registry"

// ErrNotChecked 组件尚未完成首次检查
var ErrNotChecked = errors.New("component not checked yet")

// AgentImpl 实现 registers.Agent 接口
type AgentImpl struct {
	components []Component
	interval   time.Duration
	clock      clockwork.Clock
	metrics    *metrics.HealthMetrics
	cancel     context.CancelFunc
	done       chan struct{}
	mu         sync.Mutex
	status     map[string]error
}

// NewRegistry 创建组件注册器，clock 为空时使用真实时钟
func NewRegistry(interval time.Duration, clock clockwork.Clock, m *metrics.HealthMetrics) *AgentImpl {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AgentImpl{
		interval: interval,
		clock:    clock,
		metrics:  m,
		status:   make(map[string]error),
	}
}

// Register 注册组件
func (r *AgentImpl) Register(c Component) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components = append(r.components, c)
	r.status[c.Name()] = ErrNotChecked
}

// InitAll 按注册顺序初始化，任一失败即返回
func (r *AgentImpl) InitAll(ctx context.Context) error {
	for _, c := range r.snapshot() {
		if err := c.Init(ctx); err != nil {
			return fmt.Errorf("component %s init failed: %w", c.Name(), err)
		}
		logger.Debug("component initialized successfully", agentLogGroup, zap.String("name", c.Name()))
	}
	return nil
}

// Start 初始化全部组件，完成首次检查后在后台按 interval 循环检查
func (r *AgentImpl) Start(ctx context.Context) error {
	if err := r.InitAll(ctx); err != nil {
		return err
	}
	_ = r.CheckAll(ctx)

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	ticker := r.clock.NewTicker(r.interval)
	logger.Debug("component health loop started", agentLogGroup,
		zap.Duration("interval", r.interval),
		zap.Int("registered-components-count", len(r.snapshot())))

	go func() {
		defer close(r.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				_ = r.CheckAll(loopCtx) // 单组件失败不影响整体
			case <-loopCtx.Done():
				logger.Info("component health loop stopped", agentLogGroup, zap.Error(context.Cause(loopCtx)))
				return
			}
		}
	}()
	return nil
}

// CheckAll 检查全部组件并记录结果
func (r *AgentImpl) CheckAll(ctx context.Context) error {
	var errs []error
	for _, c := range r.snapshot() {
		err := c.Check(ctx)
		r.mu.Lock()
		r.status[c.Name()] = err
		r.mu.Unlock()
		if r.metrics != nil {
			up := 1.0
			if err != nil {
				up = 0
				r.metrics.CheckFailures.WithLabelValues(c.Name()).Inc()
			}
			r.metrics.Up.WithLabelValues(c.Name()).Set(up)
		}
		if err != nil {
			logger.Warn("health check failed", agentLogGroup, zap.String("name", c.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Healthy 返回最近一轮检查的失败项
func (r *AgentImpl) Healthy() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, c := range r.components {
		if err := r.status[c.Name()]; err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown 停止检查循环并逆序关闭组件
func (r *AgentImpl) Shutdown(ctx context.Context) error {
	logger.Info("starting to shutdown components", agentLogGroup)
	if r.cancel != nil {
		r.cancel()
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return r.CloseAll()
}

// CloseAll 逆序关闭组件，返回全部错误
func (r *AgentImpl) CloseAll() error {
	comps := r.snapshot()
	var errs []error
	for i := len(comps) - 1; i >= 0; i-- {
		c := comps[i]
		logger.Debug("closing component", agentLogGroup, zap.String("name", c.Name()))
		if err := c.Close(); err != nil {
			logger.Error("failed to close component", agentLogGroup, zap.String("name", c.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (r *AgentImpl) snapshot() []Component {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Component(nil), r.components...)
}
