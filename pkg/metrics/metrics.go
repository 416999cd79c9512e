package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 保存流水线的 Prometheus 计数器。所有方法对 nil 接收者安全，
// 不需要指标时直接传 nil。
type Metrics struct {
	registry        *prometheus.Registry
	discoveredTotal *prometheus.CounterVec
	composedTotal   *prometheus.CounterVec
	skippedTotal    *prometheus.CounterVec
	cacheHitsTotal  *prometheus.CounterVec
	encodesTotal    *prometheus.CounterVec
	yearsTotal      *prometheus.CounterVec
	activeYears     prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	discoveredTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "animator_rasters_discovered_total",
		Help: "Raster files found in year directories",
	}, []string{"product"})
	composedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "animator_frames_composed_total",
		Help: "Frames successfully composed",
	}, []string{"product"})
	skippedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "animator_frames_skipped_total",
		Help: "Frames skipped, by reason",
	}, []string{"product", "reason"})
	cacheHitsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "animator_frame_cache_hits_total",
		Help: "Frames served from the frame cache",
	}, []string{"product"})
	encodesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "animator_encodes_total",
		Help: "Encoder invocations, by result",
	}, []string{"product", "result"})
	yearsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "animator_years_total",
		Help: "Year runs finished, by terminal state",
	}, []string{"product", "state"})
	activeYears := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "animator_active_years",
		Help: "Year runs currently in progress",
	})

	registry.MustRegister(
		discoveredTotal,
		composedTotal,
		skippedTotal,
		cacheHitsTotal,
		encodesTotal,
		yearsTotal,
		activeYears,
	)

	return &Metrics{
		registry:        registry,
		discoveredTotal: discoveredTotal,
		composedTotal:   composedTotal,
		skippedTotal:    skippedTotal,
		cacheHitsTotal:  cacheHitsTotal,
		encodesTotal:    encodesTotal,
		yearsTotal:      yearsTotal,
		activeYears:     activeYears,
	}
}

func (m *Metrics) AddDiscovered(product string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.discoveredTotal.WithLabelValues(product).Add(float64(n))
}

func (m *Metrics) IncComposed(product string, cached bool) {
	if m == nil {
		return
	}
	m.composedTotal.WithLabelValues(product).Inc()
	if cached {
		m.cacheHitsTotal.WithLabelValues(product).Inc()
	}
}

func (m *Metrics) IncSkipped(product, reason string) {
	if m == nil {
		return
	}
	m.skippedTotal.WithLabelValues(product, reason).Inc()
}

// IncEncode 记录一次编码结果，result 为 success 或 failure。
func (m *Metrics) IncEncode(product, result string) {
	if m == nil {
		return
	}
	m.encodesTotal.WithLabelValues(product, result).Inc()
}

// YearStarted 与 YearFinished 成对调用。
func (m *Metrics) YearStarted() {
	if m == nil {
		return
	}
	m.activeYears.Inc()
}

func (m *Metrics) YearFinished(product, state string) {
	if m == nil {
		return
	}
	m.activeYears.Dec()
	m.yearsTotal.WithLabelValues(product, state).Inc()
}

// Handler 返回暴露指标的 http.Handler。
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
