package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"

	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/aws"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/observability"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/swap"
)

// publishTimeout bounds a single SNS publish after the swap path has
// already moved on
const publishTimeout = 10 * time.Second

// SwapEvent is the JSON payload published for a finished swap attempt
type SwapEvent struct {
	TxHash    string    `json:"txHash,omitempty"`
	State     string    `json:"state"`
	Phase     string    `json:"phase,omitempty"`
	Pair      string    `json:"pair"`
	AmountIn  string    `json:"amountIn"`
	AmountOut string    `json:"amountOut,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher publishes swap outcomes to SNS. Publishing is fire and forget:
// the swap path never waits on delivery and a publish failure only logs.
type Publisher struct {
	snsClient *aws.SNSClient
	topicARN  string
	logger    *observability.Logger
	metrics   *observability.Metrics
	tracer    observability.Tracer
}

// PublisherConfig holds publisher configuration
type PublisherConfig struct {
	SNSClient *aws.SNSClient
	TopicARN  string
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Tracer    observability.Tracer
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if cfg.SNSClient == nil {
		return nil, fmt.Errorf("SNS client is required")
	}
	if cfg.TopicARN == "" {
		return nil, fmt.Errorf("SNS topic ARN is required")
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewTracer("", false)
	}
	return &Publisher{
		snsClient: cfg.SNSClient,
		topicARN:  cfg.TopicARN,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
	}, nil
}

// ReportSwapOutcome publishes a terminal swap outcome without blocking the
// caller. Implements swap.OutcomeReporter.
func (p *Publisher) ReportSwapOutcome(ctx context.Context, outcome swap.Outcome) {
	detached := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(detached, publishTimeout)
		defer cancel()
		if err := p.publish(ctx, outcome); err != nil && p.logger != nil {
			p.logger.LogError(ctx, "publishing swap outcome failed", err,
				"tx_hash", outcome.TxHash.Hex(),
				"topic_arn", p.topicARN,
			)
		}
	}()
}

func (p *Publisher) publish(ctx context.Context, outcome swap.Outcome) error {
	ctx, span := p.tracer.Start(
		ctx,
		"notification.publish",
		observability.WithAttributes(
			attribute.String("state", outcome.State.String()),
			attribute.String("topic_arn", p.topicARN),
		),
	)
	defer span.End()

	event := eventFromOutcome(outcome)
	attributes := map[string]string{
		"state": event.State,
		"pair":  event.Pair,
	}
	if event.Phase != "" {
		attributes["phase"] = event.Phase
	}

	if err := p.snsClient.Publish(ctx, p.topicARN, event, attributes); err != nil {
		span.RecordError(err)
		return fmt.Errorf("SNS publish failed: %w", err)
	}
	if p.metrics != nil {
		p.metrics.RecordNotificationPublished(ctx, event.State, true)
	}
	if p.logger != nil {
		p.logger.LogInfo(ctx, "published swap outcome",
			"tx_hash", event.TxHash,
			"state", event.State,
			"pair", event.Pair,
		)
	}
	return nil
}

// CircuitBreakerState returns the SNS circuit breaker state
func (p *Publisher) CircuitBreakerState() string {
	return p.snsClient.CircuitBreakerState().String()
}

func eventFromOutcome(outcome swap.Outcome) SwapEvent {
	event := SwapEvent{
		State:     outcome.State.String(),
		Pair:      outcome.Intent.InToken.Symbol + "/" + outcome.Intent.OutToken.Symbol,
		Timestamp: time.Now().UTC(),
	}
	if outcome.TxHash != (common.Hash{}) {
		event.TxHash = outcome.TxHash.Hex()
	}
	if outcome.Intent.AmountIn != nil {
		event.AmountIn = outcome.Intent.AmountIn.String()
	}
	if outcome.AmountOut != nil {
		event.AmountOut = outcome.AmountOut.String()
	}
	if outcome.Err != nil {
		event.Error = outcome.Err.Error()
		event.Phase = outcome.Phase().String()
	}
	return event
}
