// Package signal 阻塞等待退出信号，然后在限定时间内执行关闭流程
package signal

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/counter-agent/pkg/logger"
)

// ErrShutdownTimeout 关闭函数未在超时时间内返回
var ErrShutdownTimeout = errors.New("graceful shutdown timed out")

// WaitForShutdown 监听退出信号（SIGINT/SIGTERM）或 ctx 结束，随后在 timeout 内执行关闭函数
func WaitForShutdown(ctx context.Context, timeout time.Duration, shutdownFunc func(ctx context.Context) error) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("service is running, waiting for shutdown signal (SIGINT/SIGTERM)", "")
	<-sigCtx.Done()
	logger.Info("shutdown requested", "", zap.Error(context.Cause(sigCtx)))

	return Shutdown(timeout, shutdownFunc)
}

// Shutdown 带超时执行关闭函数，超时后不再等待
func Shutdown(timeout time.Duration, shutdownFunc func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- shutdownFunc(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("graceful shutdown failed", "", zap.Error(err))
			return err
		}
		logger.Info("graceful shutdown completed", "")
		return nil
	case <-ctx.Done():
		logger.Error("graceful shutdown timed out", "", zap.Duration("timeout", timeout))
		return ErrShutdownTimeout
	}
}
