// internal/utils/metrics.go
package utils

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector 进程内指标：计数器、仪表和简单直方图
type MetricsCollector struct {
	mu         sync.RWMutex
	counters   map[string]*int64
	gauges     map[string]*int64
	histograms map[string]*Histogram
}

// Histogram 只记录 count/sum/min/max
type Histogram struct {
	mu    sync.Mutex
	count int64
	sum   int64
	min   int64
	max   int64
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// NewMetricsCollector 独立实例，测试使用
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*int64),
		gauges:     make(map[string]*int64),
		histograms: make(map[string]*Histogram),
	}
}

// GetMetricsCollector 返回全局实例
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsCollector()
	})
	return globalMetrics
}

// slot 读锁快路径，不存在时加写锁创建
func (m *MetricsCollector) slot(table map[string]*int64, name string) *int64 {
	m.mu.RLock()
	v, ok := table[name]
	m.mu.RUnlock()
	if ok {
		return v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok = table[name]; !ok {
		v = new(int64)
		table[name] = v
	}
	return v
}

func (m *MetricsCollector) IncrementCounter(name string) {
	atomic.AddInt64(m.slot(m.counters, name), 1)
}

func (m *MetricsCollector) AddCounter(name string, value int64) {
	atomic.AddInt64(m.slot(m.counters, name), value)
}

func (m *MetricsCollector) GetCounterValue(name string) int64 {
	return atomic.LoadInt64(m.slot(m.counters, name))
}

func (m *MetricsCollector) SetGauge(name string, value int64) {
	atomic.StoreInt64(m.slot(m.gauges, name), value)
}

func (m *MetricsCollector) IncGauge(name string) {
	atomic.AddInt64(m.slot(m.gauges, name), 1)
}

func (m *MetricsCollector) DecGauge(name string) {
	atomic.AddInt64(m.slot(m.gauges, name), -1)
}

func (m *MetricsCollector) GetGauge(name string) int64 {
	return atomic.LoadInt64(m.slot(m.gauges, name))
}

// RecordHistogram 记录一个观测值
func (m *MetricsCollector) RecordHistogram(name string, value int64) {
	m.mu.RLock()
	h, ok := m.histograms[name]
	m.mu.RUnlock()

	if !ok {
		m.mu.Lock()
		if h, ok = m.histograms[name]; !ok {
			h = &Histogram{min: value, max: value}
			m.histograms[name] = h
		}
		m.mu.Unlock()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	if value < h.min {
		h.min = value
	}
	if value > h.max {
		h.max = value
	}
}

// GetMetrics 返回所有指标的快照
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, v := range m.counters {
		counters[name] = atomic.LoadInt64(v)
	}
	gauges := make(map[string]int64, len(m.gauges))
	for name, v := range m.gauges {
		gauges[name] = atomic.LoadInt64(v)
	}
	histograms := make(map[string]map[string]int64, len(m.histograms))
	for name, h := range m.histograms {
		h.mu.Lock()
		histograms[name] = map[string]int64{"count": h.count, "sum": h.sum, "min": h.min, "max": h.max}
		h.mu.Unlock()
	}

	return map[string]interface{}{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
	}
}

// GenerationMetrics 生成后端相关的指标记录
type GenerationMetrics struct {
	metrics *MetricsCollector
	logger  *Logger
}

func NewGenerationMetrics(m *MetricsCollector) *GenerationMetrics {
	if m == nil {
		m = GetMetricsCollector()
	}
	return &GenerationMetrics{metrics: m, logger: GetLogger()}
}

// RecordBackendCall 记录一次后端调用；category 为空表示成功
func (gm *GenerationMetrics) RecordBackendCall(operation, category string, duration time.Duration) {
	gm.metrics.IncrementCounter("backend_requests_total")
	gm.metrics.IncrementCounter("backend_requests_" + operation)
	gm.metrics.RecordHistogram("backend_latency_ms_"+operation, duration.Milliseconds())

	if category != "" {
		gm.metrics.IncrementCounter("backend_failures_total")
		gm.metrics.IncrementCounter("backend_failures_" + category)
		gm.logger.Warn("后端调用失败", map[string]interface{}{
			"operation":   operation,
			"category":    category,
			"duration_ms": duration.Milliseconds(),
		})
		return
	}

	gm.logger.Debug("后端调用完成", map[string]interface{}{
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	})
}

// RecordFrame 记录分镜单帧的终态
func (gm *GenerationMetrics) RecordFrame(status string) {
	gm.metrics.IncrementCounter("storyboard_frames_" + status)
}

// RecordAPIRequest 记录一次 HTTP 请求
func (gm *GenerationMetrics) RecordAPIRequest(path, method string, statusCode int, duration time.Duration) {
	gm.metrics.IncrementCounter("api_requests_total")
	gm.metrics.IncrementCounter("api_requests_" + method + "_" + path)
	gm.metrics.RecordHistogram("api_response_time_ms", duration.Milliseconds())

	class := "2xx"
	switch {
	case statusCode >= 500:
		class = "5xx"
	case statusCode >= 400:
		class = "4xx"
	case statusCode >= 300:
		class = "3xx"
	}
	gm.metrics.IncrementCounter("api_responses_" + class)
}
