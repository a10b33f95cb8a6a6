package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HealthMetrics 后台组件健康检查指标
type HealthMetrics struct {
	Up            *prometheus.GaugeVec
	CheckFailures *prometheus.CounterVec
}

// NewHealthMetrics 创建并注册健康检查指标
// 标签 component: redis / snmp / sim / flexcounter
func (f *MetricFactory) NewHealthMetrics() *HealthMetrics {
	return &HealthMetrics{
		Up: promauto.With(f.reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "counter_agent_component_up",
				Help: "Whether the last health check of a component succeeded (1) or not (0)",
			},
			[]string{"component"},
		),
		CheckFailures: promauto.With(f.reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "counter_agent_component_check_failures_total",
				Help: "Total number of failed component health checks",
			},
			[]string{"component"},
		),
	}
}
