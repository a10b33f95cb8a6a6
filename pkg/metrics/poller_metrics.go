package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PollerMetrics 计数器轮询引擎的自监控指标
type PollerMetrics struct {
	TickDuration  *prometheus.HistogramVec
	Ticks         *prometheus.CounterVec
	DeviceErrors  *prometheus.CounterVec
	BulkDemotions *prometheus.CounterVec
	ClearFailures *prometheus.CounterVec
	Objects       *prometheus.GaugeVec
}

// NewPollerMetrics 一次性创建并注册全部轮询指标
func (f *MetricFactory) NewPollerMetrics() *PollerMetrics {
	return &PollerMetrics{
		TickDuration:  f.NewPollTickDurationSeconds(),
		Ticks:         f.NewPollTicksTotal(),
		DeviceErrors:  f.NewPollDeviceErrorsTotal(),
		BulkDemotions: f.NewPollBulkDemotionsTotal(),
		ClearFailures: f.NewPollClearFailuresTotal(),
		Objects:       f.NewPollObjects(),
	}
}

// NewPollTickDurationSeconds 单个轮询组一次 tick 的耗时（秒）
// 标签 group: 轮询组名称
func (f *MetricFactory) NewPollTickDurationSeconds() *prometheus.HistogramVec {
	return promauto.With(f.reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flex_counter_tick_duration_seconds",
			Help:    "Duration of one polling tick per group",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms ~ 2s
		},
		[]string{"group"},
	)
}

func (f *MetricFactory) NewPollTicksTotal() *prometheus.CounterVec {
	return promauto.With(f.reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "flex_counter_ticks_total",
			Help: "Total number of polling ticks per group",
		},
		[]string{"group"},
	)
}

// NewPollDeviceErrorsTotal 设备调用失败次数
// 标签 op: get_stats / bulk_get_stats / clear_stats / get_attributes / plugin
func (f *MetricFactory) NewPollDeviceErrorsTotal() *prometheus.CounterVec {
	return promauto.With(f.reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "flex_counter_device_errors_total",
			Help: "Total number of failed device calls per group and operation",
		},
		[]string{"group", "op"},
	)
}

// NewPollBulkDemotionsTotal 批量读取被降级为逐对象读取的次数
func (f *MetricFactory) NewPollBulkDemotionsTotal() *prometheus.CounterVec {
	return promauto.With(f.reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "flex_counter_bulk_demotions_total",
			Help: "Total number of counter sets demoted from bulk to per-object polling",
		},
		[]string{"object_type"},
	)
}

// NewPollClearFailuresTotal read-and-clear 模式下清零失败次数（值仍会发布）
func (f *MetricFactory) NewPollClearFailuresTotal() *prometheus.CounterVec {
	return promauto.With(f.reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "flex_counter_clear_failures_total",
			Help: "Total number of failed counter clears after a successful read",
		},
		[]string{"group"},
	)
}

func (f *MetricFactory) NewPollObjects() *prometheus.GaugeVec {
	return promauto.With(f.reg).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flex_counter_objects",
			Help: "Number of objects registered per group",
		},
		[]string{"group"},
	)
}
