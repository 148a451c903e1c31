package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Metrics holds all application metrics
type Metrics struct {
	meter metric.Meter

	// Quote engine metrics
	QuotesTotal   metric.Int64Counter
	QuoteDuration metric.Float64Histogram
	QuoteTierUsed metric.Int64Counter

	// Swap pipeline metrics
	SwapsSubmitted       metric.Int64Counter
	SwapStateTransitions metric.Int64Counter
	SwapConfirmDuration  metric.Float64Histogram

	// Allowance metrics
	AllowanceChecks    metric.Int64Counter
	ApprovalsSubmitted metric.Int64Counter

	// Balance metrics
	BalanceReads metric.Int64Counter

	// RPC endpoint metrics
	RPCEndpointHealth metric.Int64Gauge

	// Gas metrics
	GasPriceWei metric.Float64Gauge

	// Chain watcher metrics
	HeadsReceived          metric.Int64Counter
	WebSocketReconnections metric.Int64Counter
	WebSocketConnected     metric.Int64Gauge

	// Cache metrics
	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter

	// Circuit breaker metrics
	CircuitBreakerState metric.Int64Gauge

	// Notification metrics
	NotificationsPublished metric.Int64Counter

	// Error metrics
	Errors metric.Int64Counter

	// Prometheus exporter for HTTP handler
	exporter *prometheus.Exporter
}

// NewMetrics creates a new Metrics instance
func NewMetrics(serviceName string, enabled bool) (*Metrics, error) {
	if !enabled {
		return &Metrics{}, nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	m := &Metrics{
		meter:    provider.Meter(serviceName),
		exporter: exporter,
	}

	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return m, nil
}

// initMetrics initializes all metric instruments
func (m *Metrics) initMetrics() error {
	var err error

	m.QuotesTotal, err = m.meter.Int64Counter(
		"swap.quotes.total",
		metric.WithDescription("Total quote requests served"),
	)
	if err != nil {
		return err
	}

	m.QuoteDuration, err = m.meter.Float64Histogram(
		"swap.quote.duration",
		metric.WithDescription("Quote computation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	m.QuoteTierUsed, err = m.meter.Int64Counter(
		"swap.quote.tier",
		metric.WithDescription("Quote estimation tier that produced the result"),
	)
	if err != nil {
		return err
	}

	m.SwapsSubmitted, err = m.meter.Int64Counter(
		"swap.submissions.total",
		metric.WithDescription("Total swap transactions submitted"),
	)
	if err != nil {
		return err
	}

	m.SwapStateTransitions, err = m.meter.Int64Counter(
		"swap.state.transitions",
		metric.WithDescription("Swap state machine transitions"),
	)
	if err != nil {
		return err
	}

	m.SwapConfirmDuration, err = m.meter.Float64Histogram(
		"swap.confirm.duration",
		metric.WithDescription("Time from submission to terminal state in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	m.AllowanceChecks, err = m.meter.Int64Counter(
		"swap.allowance.checks",
		metric.WithDescription("Allowance reads performed before token-input swaps"),
	)
	if err != nil {
		return err
	}

	m.ApprovalsSubmitted, err = m.meter.Int64Counter(
		"swap.approvals.submitted",
		metric.WithDescription("Approval transactions submitted"),
	)
	if err != nil {
		return err
	}

	m.BalanceReads, err = m.meter.Int64Counter(
		"swap.balance.reads",
		metric.WithDescription("Balance queries served"),
	)
	if err != nil {
		return err
	}

	m.RPCEndpointHealth, err = m.meter.Int64Gauge(
		"swap.rpc.endpoint.health",
		metric.WithDescription("RPC endpoint health status (1=healthy, 0=unhealthy)"),
	)
	if err != nil {
		return err
	}

	m.GasPriceWei, err = m.meter.Float64Gauge(
		"swap.gas.price.wei",
		metric.WithDescription("Last observed suggested gas price in wei"),
	)
	if err != nil {
		return err
	}

	m.HeadsReceived, err = m.meter.Int64Counter(
		"swap.chain.heads.received",
		metric.WithDescription("Chain head events received"),
	)
	if err != nil {
		return err
	}

	m.WebSocketReconnections, err = m.meter.Int64Counter(
		"swap.websocket.reconnections",
		metric.WithDescription("Total WebSocket reconnections"),
	)
	if err != nil {
		return err
	}

	m.WebSocketConnected, err = m.meter.Int64Gauge(
		"swap.websocket.connected",
		metric.WithDescription("WebSocket connection status (1=connected, 0=disconnected)"),
	)
	if err != nil {
		return err
	}

	m.CacheHits, err = m.meter.Int64Counter(
		"swap.cache.hits",
		metric.WithDescription("Total cache hits"),
	)
	if err != nil {
		return err
	}

	m.CacheMisses, err = m.meter.Int64Counter(
		"swap.cache.misses",
		metric.WithDescription("Total cache misses"),
	)
	if err != nil {
		return err
	}

	m.CircuitBreakerState, err = m.meter.Int64Gauge(
		"swap.circuit_breaker.state",
		metric.WithDescription("Circuit breaker state (0=closed, 1=open, 2=half-open)"),
	)
	if err != nil {
		return err
	}

	m.NotificationsPublished, err = m.meter.Int64Counter(
		"swap.notifications.published",
		metric.WithDescription("Swap outcome notifications published"),
	)
	if err != nil {
		return err
	}

	m.Errors, err = m.meter.Int64Counter(
		"swap.errors",
		metric.WithDescription("Total errors encountered"),
	)
	if err != nil {
		return err
	}

	return nil
}

// RecordQuote records a served quote with the tier that produced it
func (m *Metrics) RecordQuote(ctx context.Context, pair, tier string, duration time.Duration, success bool) {
	if m.QuotesTotal == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("pair", pair),
		attribute.String("tier", tier),
		attribute.Bool("success", success),
	}
	m.QuotesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.QuoteDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.QuoteTierUsed.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
}

// RecordSwapSubmitted records a swap transaction submission
func (m *Metrics) RecordSwapSubmitted(ctx context.Context, pair, kind string) {
	if m.SwapsSubmitted == nil {
		return
	}
	m.SwapsSubmitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pair", pair),
		attribute.String("kind", kind),
	))
}

// RecordStateTransition records a swap state machine transition
func (m *Metrics) RecordStateTransition(ctx context.Context, from, to string) {
	if m.SwapStateTransitions == nil {
		return
	}
	m.SwapStateTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordSwapConfirm records time from submission to terminal state
func (m *Metrics) RecordSwapConfirm(ctx context.Context, duration time.Duration, outcome string) {
	if m.SwapConfirmDuration == nil {
		return
	}
	m.SwapConfirmDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordAllowanceCheck records an allowance read and whether approval was needed
func (m *Metrics) RecordAllowanceCheck(ctx context.Context, token string, approvalNeeded bool) {
	if m.AllowanceChecks == nil {
		return
	}
	m.AllowanceChecks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("token", token),
		attribute.Bool("approval_needed", approvalNeeded),
	))
}

// RecordApprovalSubmitted records an approval transaction submission
func (m *Metrics) RecordApprovalSubmitted(ctx context.Context, token string) {
	if m.ApprovalsSubmitted == nil {
		return
	}
	m.ApprovalsSubmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("token", token)))
}

// RecordBalanceRead records a balance query
func (m *Metrics) RecordBalanceRead(ctx context.Context, token string, cached bool) {
	if m.BalanceReads == nil {
		return
	}
	m.BalanceReads.Add(ctx, 1, metric.WithAttributes(
		attribute.String("token", token),
		attribute.Bool("cached", cached),
	))
}

// RecordRPCEndpointHealth records RPC endpoint health status
func (m *Metrics) RecordRPCEndpointHealth(ctx context.Context, url string, healthy bool) {
	if m.RPCEndpointHealth == nil {
		return
	}
	val := int64(0)
	if healthy {
		val = 1
	}
	m.RPCEndpointHealth.Record(ctx, val, metric.WithAttributes(attribute.String("url", url)))
}

// RecordGasPrice records the last observed suggested gas price
func (m *Metrics) RecordGasPrice(ctx context.Context, wei float64) {
	if m.GasPriceWei == nil {
		return
	}
	m.GasPriceWei.Record(ctx, wei)
}

// RecordHeadReceived records a chain head event
func (m *Metrics) RecordHeadReceived(ctx context.Context, blockNumber uint64) {
	if m.HeadsReceived == nil {
		return
	}
	m.HeadsReceived.Add(ctx, 1, metric.WithAttributes(
		attribute.Int64("block_number", int64(blockNumber)),
	))
}

// RecordWebSocketReconnection records a WebSocket reconnection
func (m *Metrics) RecordWebSocketReconnection(ctx context.Context, attempts int) {
	if m.WebSocketReconnections == nil {
		return
	}
	m.WebSocketReconnections.Add(ctx, 1, metric.WithAttributes(attribute.Int("attempts", attempts)))
}

// RecordWebSocketConnection records WebSocket connection status with URL
func (m *Metrics) RecordWebSocketConnection(ctx context.Context, url string, connected bool) {
	if m.WebSocketConnected == nil {
		return
	}
	val := int64(0)
	if connected {
		val = 1
	}
	m.WebSocketConnected.Record(ctx, val, metric.WithAttributes(attribute.String("url", url)))
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit(ctx context.Context, layer string) {
	if m.CacheHits == nil {
		return
	}
	m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("layer", layer)))
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss(ctx context.Context, layer string) {
	if m.CacheMisses == nil {
		return
	}
	m.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("layer", layer)))
}

// SetCircuitBreakerState sets circuit breaker state
// 0 = closed, 1 = open, 2 = half-open
func (m *Metrics) SetCircuitBreakerState(ctx context.Context, service string, state int64) {
	if m.CircuitBreakerState == nil {
		return
	}
	m.CircuitBreakerState.Record(ctx, state, metric.WithAttributes(attribute.String("service", service)))
}

// RecordNotificationPublished records a published swap outcome notification
func (m *Metrics) RecordNotificationPublished(ctx context.Context, outcome string, success bool) {
	if m.NotificationsPublished == nil {
		return
	}
	m.NotificationsPublished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Bool("success", success),
	))
}

// RecordError records an error
func (m *Metrics) RecordError(ctx context.Context, errorType string) {
	if m.Errors == nil {
		return
	}
	m.Errors.Add(ctx, 1, metric.WithAttributes(attribute.String("type", errorType)))
}

// Handler returns the HTTP handler for Prometheus metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
