package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	ReasonDeadlineExceeded = "deadline_exceeded"
	ReasonUniqueViolation  = "unique_violation"
	ReasonNotFound         = "not_found"
	ReasonDB               = "db"
	ReasonUnknown          = "unknown"
)

const (
	StateNone            = "NONE"
	StatePendingCheckout = "PENDING_CHECKOUT"
	StateActive          = "ACTIVE"
	StateCanceled        = "CANCELED"
)

// LifecycleMetrics tracks subscription state transitions and provider latency.
type LifecycleMetrics struct {
	transitions      *prometheus.CounterVec
	errors           *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	transitionCounts map[string]map[string]prometheus.Counter
}

var (
	lifecycleMetricsOnce sync.Once
	lifecycleMetrics     *LifecycleMetrics
)

// Lifecycle returns the process-wide lifecycle metrics registry.
func Lifecycle() *LifecycleMetrics {
	return LifecycleWithConfig(Config{})
}

func LifecycleWithConfig(cfg Config) *LifecycleMetrics {
	lifecycleMetricsOnce.Do(func() {
		lifecycleMetrics = newLifecycleMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return lifecycleMetrics
}

// ResetLifecycleMetricsForTest resets the lifecycle metrics singleton for tests.
func ResetLifecycleMetricsForTest() {
	lifecycleMetricsOnce = sync.Once{}
	lifecycleMetrics = nil
}

func newLifecycleMetrics(registerer prometheus.Registerer, cfg Config) *LifecycleMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "finora"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "finora_subscription_transitions_total",
		Help:        "Subscription lifecycle transitions.",
		ConstLabels: constLabels,
	}, []string{"from", "to"})
	errorsVec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "finora_subscription_errors_total",
		Help:        "Subscription lifecycle failures by operation and low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"operation", "reason"})
	providerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "finora_provider_call_duration_seconds",
		Help:        "Payment provider call latency.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		ConstLabels: constLabels,
	}, []string{"operation"})

	transitions = registerOrExisting(registerer, transitions).(*prometheus.CounterVec)
	errorsVec = registerOrExisting(registerer, errorsVec).(*prometheus.CounterVec)
	providerDuration = registerOrExisting(registerer, providerDuration).(*prometheus.HistogramVec)

	allowed := map[string][]string{
		StateNone:            {StatePendingCheckout, StateActive},
		StatePendingCheckout: {StateActive, StateNone},
		StateActive:          {StateActive, StateCanceled},
		StateCanceled:        {StateActive},
	}
	transitionCounts := map[string]map[string]prometheus.Counter{}
	for from, targets := range allowed {
		transitionCounts[from] = map[string]prometheus.Counter{}
		for _, to := range targets {
			transitionCounts[from][to] = transitions.WithLabelValues(from, to)
		}
	}

	return &LifecycleMetrics{
		transitions:      transitions,
		errors:           errorsVec,
		providerDuration: providerDuration,
		transitionCounts: transitionCounts,
	}
}

func registerOrExisting(registerer prometheus.Registerer, collector prometheus.Collector) prometheus.Collector {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector
		}
		panic(err)
	}
	return collector
}

// RecordTransition counts a lifecycle transition. Unknown pairs are dropped.
func (m *LifecycleMetrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	if counter, ok := m.transitionCounts[from][to]; ok {
		counter.Inc()
	}
}

func (m *LifecycleMetrics) RecordError(operation string, err error) {
	if m == nil || err == nil {
		return
	}
	m.errors.WithLabelValues(strings.TrimSpace(operation), ClassifyErrorReason(err)).Inc()
}

func (m *LifecycleMetrics) ObserveProviderCall(operation string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.providerDuration.WithLabelValues(strings.TrimSpace(operation)).Observe(elapsed.Seconds())
}

// ClassifyErrorReason maps storage and context errors to a bounded label set.
func ClassifyErrorReason(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ReasonUniqueViolation
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ReasonNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			return ReasonUniqueViolation
		}
		return ReasonDB
	}
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		if code := strings.TrimSpace(coded.ErrorCode()); code != "" {
			return code
		}
	}
	return ReasonUnknown
}
