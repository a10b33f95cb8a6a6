// Package server 提供HTTP服务器核心功能，包含Prometheus指标暴露、健康检查端点、
// 轮询组状态查询及优雅关闭机制，用于支撑服务可观测性。
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/counter-agent/internal/flexcounter"
	"github.com/counter-agent/pkg/config"
	"github.com/counter-agent/pkg/logger"
)

// HealthChecker 返回最近一次依赖检查结果，nil 表示健康
type HealthChecker interface {
	Healthy() error
}

// GroupLister 提供轮询组状态快照
type GroupLister interface {
	Groups() []flexcounter.GroupStatus
}

// HTTPServer HTTP服务实例，封装监听地址、HTTP服务器核心对象和Prometheus指标注册器
// 核心能力：暴露/metrics指标端点、/health健康检查端点、/groups组状态端点、优雅启动/关闭
type HTTPServer struct {
	addr     string               // 监听地址（格式：ip:port）
	server   *http.Server         // 底层HTTP服务器对象
	registry *prometheus.Registry // Prometheus指标注册器（注入自定义指标）
	health   HealthChecker
	groups   GroupLister
	errCh    chan error
}

// statusWriter 包装http.ResponseWriter，用于捕获HTTP响应状态码
type statusWriter struct {
	http.ResponseWriter     // 嵌入原生ResponseWriter，继承其所有方法
	status              int // 记录响应状态码，默认200 OK
}

// httpShutdownTimeout 优雅关闭超时时间，避免关闭流程无限阻塞
const httpShutdownTimeout = 5 * time.Second

// NewHTTPServer 创建HTTP服务实例（依赖注入模式）
// 参数：
//
//	cfg: 监听地址与读/写/空闲超时
//	registry: Prometheus指标注册器，用于暴露自定义指标
//	health: 依赖健康检查，为空时 /health 恒为 200
//	groups: 轮询组状态来源，为空时 /groups 返回空列表
func NewHTTPServer(cfg config.ServerConfig, registry *prometheus.Registry, health HealthChecker, groups GroupLister) *HTTPServer {
	s := &HTTPServer{
		addr:     cfg.Addr,
		registry: registry,
		health:   health,
		groups:   groups,
		errCh:    make(chan error, 1),
	}
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler 返回全部端点的路由
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	metricsHandler := promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(logger.GetLogger()), // 复用全局日志器
	})
	mux.Handle("/metrics", logged("metrics request received", metricsHandler))
	mux.Handle("/health", logged("health check received", http.HandlerFunc(s.serveHealth)))
	mux.Handle("/groups", logged("groups request received", http.HandlerFunc(s.serveGroups)))
	return mux
}

// logged 请求日志记录：方法、URL、客户端地址、响应状态码、处理耗时
func logged(msg string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		logger.Debug(
			msg,
			"",
			zap.String("method", r.Method),
			zap.String("url", r.URL.String()),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// serveHealth 依赖全部健康返回 200 OK，否则 503 并附失败原因
func (s *HTTPServer) serveHealth(w http.ResponseWriter, _ *http.Request) {
	if s.health != nil {
		if err := s.health.Healthy(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// serveGroups 以 JSON 返回各轮询组状态
func (s *HTTPServer) serveGroups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	list := []flexcounter.GroupStatus{}
	if s.groups != nil {
		list = s.groups.Groups()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(list); err != nil {
		logger.Warn("encode groups failed", "", zap.Error(err))
	}
}

// WriteHeader 记录响应状态码到statusWriter实例中
func (w *statusWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Start 启动HTTP服务（非阻塞模式）
// 监听失败同步返回；运行期错误写入 Errors()
func (s *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	logger.Info(
		"starting HTTP server",
		"",
		zap.String("listen_addr", ln.Addr().String()),
		zap.Duration("read_timeout", s.server.ReadTimeout),
		zap.Duration("write_timeout", s.server.WriteTimeout),
		zap.Duration("idle_timeout", s.server.IdleTimeout),
	)

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server stopped unexpectedly", "", zap.Error(err), zap.String("listen_addr", s.addr))
			s.errCh <- err
			return
		}
		logger.Info("HTTP server stopped listening", "", zap.String("listen_addr", s.addr))
	}()
	return nil
}

// Errors 运行期致命错误
func (s *HTTPServer) Errors() <-chan error { return s.errCh }

// Shutdown 优雅关闭HTTP服务：停止接收新请求，等待现有请求在超时时间内完成
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	logger.Info("starting graceful shutdown of HTTP server", "", zap.String("listen_addr", s.addr))

	shutdownCtx, cancel := context.WithTimeout(ctx, httpShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		// 超时视为关闭完成
		if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
			return nil
		}
		logger.Error("HTTP server shutdown failed", "", zap.Error(err), zap.String("listen_addr", s.addr))
		return err
	}
	logger.Info("HTTP server shutdown successfully", "", zap.String("listen_addr", s.addr))
	return nil
}
