package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal - общее количество запросов
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Общее количество HTTP запросов",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration - длительность запросов
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Длительность HTTP запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// RequestsInFlight - количество запросов в обработке
	RequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Текущее количество запросов в обработке",
		},
	)

	// AllocationsTotal - исходы операций движка закрепления заказов
	AllocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocation_operations_total",
			Help: "Количество операций движка закрепления по исходам",
		},
		[]string{"result"},
	)

	// CapacityRejectionsTotal - отказы по вместимости рейса
	CapacityRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "allocation_capacity_rejections_total",
			Help: "Количество отказов принятия заказа из-за вместимости рейса",
		},
	)

	// ReconciliationDrift - расхождение занятой вместимости рейсов
	ReconciliationDrift = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reconciliation_capacity_drift",
			Help: "Количество рейсов с расхождением счетчика вместимости, найденных последней сверкой",
		},
	)
)

// PrometheusMiddleware собирает метрики для HTTP запросов
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Увеличиваем счетчик запросов в обработке
		RequestsInFlight.Inc()
		defer RequestsInFlight.Dec()

		// Фиксируем время начала запроса
		start := time.Now()

		// Обрабатываем запрос
		c.Next()

		// Вычисляем длительность запроса
		duration := time.Since(start).Seconds()

		// Получаем статус код и эндпоинт
		status := strconv.Itoa(c.Writer.Status())
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}

		// Увеличиваем счетчик запросов
		RequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()

		// Добавляем длительность запроса
		RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(duration)
	}
}

// TrackAllocation отмечает исход операции движка закрепления
func TrackAllocation(result string) {
	AllocationsTotal.WithLabelValues(result).Inc()
}

// TrackCapacityRejection отмечает отказ по вместимости
func TrackCapacityRejection() {
	CapacityRejectionsTotal.Inc()
}

// TrackReconciliationDrift публикует число рейсов с расхождением счетчиков
func TrackReconciliationDrift(driftedTrips int) {
	ReconciliationDrift.Set(float64(driftedTrips))
}
