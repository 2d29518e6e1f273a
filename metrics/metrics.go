// Package metrics 定义 Prometheus 指标：训练、模型规模、推荐请求、HTTP、熔断器。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 训练
	TrainingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookrec_training_duration_seconds",
			Help:    "Duration of model training in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"}, // content / collaborative
	)

	TrainingErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookrec_training_errors_total",
			Help: "Total number of failed training runs",
		},
		[]string{"model", "code"},
	)

	TrainingLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bookrec_training_last_success_timestamp_seconds",
			Help: "Unix time of the last successful training run",
		},
		[]string{"model"},
	)

	// 模型规模
	ModelSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bookrec_model_size",
			Help: "Size of the published model",
		},
		[]string{"model", "dimension"}, // content/items, collaborative/users, collaborative/items
	)

	ModelReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookrec_model_reloads_total",
			Help: "Total number of model reloads from the model store",
		},
		[]string{"result"},
	)

	// 推荐
	RecommendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookrec_recommend_requests_total",
			Help: "Total number of recommendation requests",
		},
		[]string{"mode", "result"}, // mode: hybrid / collaborative; result: ok / not_found / not_ready / error
	)

	RecommendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookrec_recommend_duration_seconds",
			Help:    "Duration of recommendation requests in seconds",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"mode"},
	)

	PipelineNodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookrec_pipeline_node_duration_seconds",
			Help:    "Duration of each recommendation pipeline node in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"node", "kind", "result"},
	)

	// HTTP
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookrec_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// 熔断器
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bookrec_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookrec_circuit_breaker_requests_total",
			Help: "Total number of requests through the circuit breaker",
		},
		[]string{"name", "result"}, // success / failure / rejected
	)

	SourceFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookrec_source_fetch_errors_total",
			Help: "Total number of failed upstream fetch attempts",
		},
		[]string{"source", "kind"},
	)
)

// RecordTraining 记录一次训练结果
func RecordTraining(model string, start time.Time, code string) {
	TrainingDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
	if code != "" {
		TrainingErrors.WithLabelValues(model, code).Inc()
		return
	}
	TrainingLastSuccess.WithLabelValues(model).SetToCurrentTime()
}

// RecordRecommend 记录一次推荐请求
func RecordRecommend(mode, result string, start time.Time) {
	RecommendRequests.WithLabelValues(mode, result).Inc()
	RecommendDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}

// ObserveNode 记录一个 Pipeline Node 的耗时
func ObserveNode(node, kind string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	PipelineNodeDuration.WithLabelValues(node, kind, result).Observe(elapsed.Seconds())
}
