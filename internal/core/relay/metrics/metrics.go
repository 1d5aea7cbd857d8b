// Package metrics 提供中继服务的 Prometheus 指标
//
// 所有指标注册在独立的 Registry 上，由 /metrics 端点通过 promhttp 暴露，
// 不污染全局默认注册表，测试中可以反复创建。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tonrelay"

// Metrics 中继指标集合
type Metrics struct {
	registry *prometheus.Registry

	// 入站管线
	Received      prometheus.Counter // 从覆盖网络收到的消息
	ParseFailures prometheus.Counter // 无法解码的消息
	Duplicates    prometheus.Counter // TTL 窗口内的重复消息
	DedupErrors   prometheus.Counter // 去重后端出错（按非重复放行）
	Routed        prometheus.Counter // 进入路由的消息

	// 投递
	Deliveries       prometheus.Counter // 成功入队的帧
	DeliveryFailures prometheus.Counter // 入队失败（连接已关闭或队列已满）

	// 缓存清理
	Evictions prometheus.Counter

	// 客户端连接
	Connections prometheus.Gauge
	Commands    *prometheus.CounterVec // type, status

	// 注入
	Injected       prometheus.Counter
	InjectFailures prometheus.Counter
}

// New 创建并注册全部指标
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "received_total",
			Help:      "Total number of external messages received from the overlay",
		}),
		ParseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "parse_failures_total",
			Help:      "Total number of inbound messages that could not be decoded",
		}),
		Duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duplicates_total",
			Help:      "Total number of inbound messages already seen within the TTL",
		}),
		DedupErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "dedup_errors_total",
			Help:      "Total number of dedup backend errors",
		}),
		Routed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "routed_total",
			Help:      "Total number of messages handed to the router",
		}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "deliveries_total",
			Help:      "Total number of frames queued to subscribers",
		}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "delivery_failures_total",
			Help:      "Total number of frames that could not be queued",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "evictions_total",
			Help:      "Total number of expired fingerprints removed",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Number of open subscriber connections",
		}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "commands_total",
			Help:      "Total number of client commands",
		}, []string{"type", "status"}), // status: ok/error
		Injected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "injected_total",
			Help:      "Total number of client messages injected into the overlay",
		}),
		InjectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "inject_failures_total",
			Help:      "Total number of failed injections",
		}),
	}

	m.registry.MustRegister(
		m.Received, m.ParseFailures, m.Duplicates, m.DedupErrors, m.Routed,
		m.Deliveries, m.DeliveryFailures, m.Evictions,
		m.Connections, m.Commands,
		m.Injected, m.InjectFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RegisterGaugeFunc 注册按需取值的仪表（订阅数、对等节点数、缓存条目数）
func (m *Metrics) RegisterGaugeFunc(subsystem, name, help string, fn func() float64) error {
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn))
}

// Registry 底层注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler /metrics 端点
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
