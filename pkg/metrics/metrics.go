package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all allocation platform metrics
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Kafka metrics
	KafkaEventsPublished *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec

	// MongoDB metrics
	MongoDBOperations        *prometheus.CounterVec
	MongoDBOperationDuration *prometheus.HistogramVec
	MongoDBConnectionsOpen   prometheus.Gauge

	// Business metrics
	BatchesAdded        *prometheus.CounterVec
	UnitsReserved       *prometheus.CounterVec
	UnitsCommitted      *prometheus.CounterVec
	UnitsReleased       *prometheus.CounterVec
	UnitsExpired        *prometheus.CounterVec
	RequestsCreated     *prometheus.CounterVec
	MatchesEvaluated    *prometheus.CounterVec
	AlertsRaised        *prometheus.CounterVec
	AvailableUnitsGauge *prometheus.GaugeVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
	Subsystem   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "donation",
		Subsystem:   serviceName,
	}
}

// New creates a new Metrics instance
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()

	// Register standard Go metrics
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,
	}

	// HTTP metrics
	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method", "path"},
	)

	m.HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "http_requests_in_flight",
			Help:        "Number of HTTP requests currently being processed",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		},
	)

	// Kafka metrics
	m.KafkaEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "kafka_events_published_total",
			Help:      "Total number of Kafka events published",
		},
		[]string{"service", "topic", "event_type", "status"},
	)

	m.KafkaPublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "kafka_publish_duration_seconds",
			Help:      "Kafka publish duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"service", "topic"},
	)

	// MongoDB metrics
	m.MongoDBOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "mongodb_operations_total",
			Help:      "Total number of MongoDB operations",
		},
		[]string{"service", "collection", "operation", "status"},
	)

	m.MongoDBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "mongodb_operation_duration_seconds",
			Help:      "MongoDB operation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"service", "collection", "operation"},
	)

	m.MongoDBConnectionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "mongodb_connections_open",
			Help:        "Number of open MongoDB connections",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		},
	)

	// Business metrics
	m.BatchesAdded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "stock_batches_added_total",
			Help:      "Total number of stock batches registered",
		},
		[]string{"service", "blood_group", "component"},
	)

	m.UnitsReserved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "units_reserved_total",
			Help:      "Total number of units reserved",
		},
		[]string{"service", "blood_group", "component"},
	)

	m.UnitsCommitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "units_committed_total",
			Help:      "Total number of reserved units committed",
		},
		[]string{"service", "blood_group", "component"},
	)

	m.UnitsReleased = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "units_released_total",
			Help:      "Total number of reserved units released",
		},
		[]string{"service", "blood_group", "component", "reason"},
	)

	m.UnitsExpired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "units_expired_total",
			Help:      "Total number of units removed by expiry sweeps",
		},
		[]string{"service", "blood_group", "component"},
	)

	m.RequestsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "requests_created_total",
			Help:      "Total number of donation requests created",
		},
		[]string{"service", "kind", "urgency"},
	)

	m.MatchesEvaluated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "matches_evaluated_total",
			Help:      "Total number of donor match evaluations",
		},
		[]string{"service", "kind"},
	)

	m.AlertsRaised = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "alerts_raised_total",
			Help:      "Total number of emergency alerts raised",
		},
		[]string{"service", "alert_type", "severity"},
	)

	m.AvailableUnitsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "available_units",
			Help:      "Currently available units per stock line",
		},
		[]string{"service", "bank_id", "blood_group", "component"},
	)

	// Circuit breaker metrics
	m.CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"service", "name"},
	)

	m.CircuitBreakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "circuit_breaker_trips_total",
			Help:      "Total number of circuit breaker trips",
		},
		[]string{"service", "name"},
	)

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.KafkaEventsPublished,
		m.KafkaPublishDuration,
		m.MongoDBOperations,
		m.MongoDBOperationDuration,
		m.MongoDBConnectionsOpen,
		m.BatchesAdded,
		m.UnitsReserved,
		m.UnitsCommitted,
		m.UnitsReleased,
		m.UnitsExpired,
		m.RequestsCreated,
		m.MatchesEvaluated,
		m.AlertsRaised,
		m.AvailableUnitsGauge,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
	)

	return m
}

// Handler returns an HTTP handler for metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// RecordKafkaPublish records a Kafka publish event
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, status).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

// RecordMongoDBOperation records a MongoDB operation
func (m *Metrics) RecordMongoDBOperation(collection, operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.MongoDBOperations.WithLabelValues(m.serviceName, collection, operation, status).Inc()
	m.MongoDBOperationDuration.WithLabelValues(m.serviceName, collection, operation).Observe(duration.Seconds())
}

// SetMongoDBConnections sets the number of open MongoDB connections
func (m *Metrics) SetMongoDBConnections(count int) {
	m.MongoDBConnectionsOpen.Set(float64(count))
}

// RecordBatchAdded records a stock batch registration
func (m *Metrics) RecordBatchAdded(bloodGroup, component string) {
	m.BatchesAdded.WithLabelValues(m.serviceName, bloodGroup, component).Inc()
}

// RecordUnitsReserved records reserved units
func (m *Metrics) RecordUnitsReserved(bloodGroup, component string, units int) {
	m.UnitsReserved.WithLabelValues(m.serviceName, bloodGroup, component).Add(float64(units))
}

// RecordUnitsCommitted records committed units
func (m *Metrics) RecordUnitsCommitted(bloodGroup, component string, units int) {
	m.UnitsCommitted.WithLabelValues(m.serviceName, bloodGroup, component).Add(float64(units))
}

// RecordUnitsReleased records released units
func (m *Metrics) RecordUnitsReleased(bloodGroup, component, reason string, units int) {
	m.UnitsReleased.WithLabelValues(m.serviceName, bloodGroup, component, reason).Add(float64(units))
}

// RecordUnitsExpired records units removed by an expiry sweep
func (m *Metrics) RecordUnitsExpired(bloodGroup, component string, units int) {
	m.UnitsExpired.WithLabelValues(m.serviceName, bloodGroup, component).Add(float64(units))
}

// RecordRequestCreated records a request creation
func (m *Metrics) RecordRequestCreated(kind, urgency string) {
	m.RequestsCreated.WithLabelValues(m.serviceName, kind, urgency).Inc()
}

// RecordMatchEvaluated records a donor match evaluation
func (m *Metrics) RecordMatchEvaluated(kind string) {
	m.MatchesEvaluated.WithLabelValues(m.serviceName, kind).Inc()
}

// RecordAlertRaised records an emergency alert
func (m *Metrics) RecordAlertRaised(alertType, severity string) {
	m.AlertsRaised.WithLabelValues(m.serviceName, alertType, severity).Inc()
}

// SetAvailableUnits sets the available units gauge for a stock line
func (m *Metrics) SetAvailableUnits(bankID, bloodGroup, component string, units int) {
	m.AvailableUnitsGauge.WithLabelValues(m.serviceName, bankID, bloodGroup, component).Set(float64(units))
}

// SetCircuitBreakerState sets the circuit breaker state
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(name string) {
	m.CircuitBreakerTrips.WithLabelValues(m.serviceName, name).Inc()
}

// IncrementHTTPRequestsInFlight increments in-flight requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements in-flight requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}
